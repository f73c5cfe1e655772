package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"cadence/internal/alert"
	"cadence/internal/checkpoint"
	"cadence/internal/coach"
	"cadence/internal/config"
	"cadence/internal/inbox"
	"cadence/internal/logging"
	"cadence/internal/memory"
	"cadence/internal/orchestrator"
	"cadence/internal/session"
	"cadence/internal/timetrack"
)

var (
	// Global flags
	verbose    bool
	workspace  string
	configPath string
	offline    bool
	exportPath string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "cadence",
	Short: "cadence - time-boxed weekly review coaching",
	Long: `cadence runs a structured, time-boxed weekly review session:
a mind sweep, processing, project review, and prioritization, inside a
30-minute budget with a coach that keeps things moving.

Interrupted sessions checkpoint after every answer and resume exactly
where they stopped.

Run without arguments to start a new session.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		if err := logging.Initialize(resolveWorkspace()); err != nil {
			logger.Warn("category logging disabled", zap.Error(err))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStart(cmd, args)
	},
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a new review session",
	RunE:  runStart,
}

var resumeCmd = &cobra.Command{
	Use:   "resume <session-id>",
	Short: "Resume an interrupted session",
	Args:  cobra.ExactArgs(1),
	RunE:  runResume,
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List resumable sessions",
	RunE:  runSessionsList,
}

var abandonCmd = &cobra.Command{
	Use:   "abandon <session-id>",
	Short: "Abandon an interrupted session, keeping what it captured",
	Args:  cobra.ExactArgs(1),
	RunE:  runAbandon,
}

var historyCmd = &cobra.Command{
	Use:   "history <session-id>",
	Short: "Show what a past session recorded",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: <workspace>/.cadence/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&offline, "offline", false, "Run with the scripted coach, no LLM calls")
	rootCmd.PersistentFlags().StringVar(&exportPath, "timetrack-export", "", "Read time entries from a local JSON export instead of the API")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(abandonCmd)
	rootCmd.AddCommand(historyCmd)
}

func resolveWorkspace() string {
	if workspace != "" {
		return workspace
	}
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

// runtime bundles everything a command needs and owns shutdown order.
type runtime struct {
	cfg   *config.Config
	store *checkpoint.SQLiteStore
	sink  *memory.SQLiteSink
	mem   *memory.Writer
	orc   *orchestrator.Orchestrator
}

func buildRuntime() (*runtime, error) {
	ws := resolveWorkspace()
	cfgPath := configPath
	if cfgPath == "" {
		cfgPath = filepath.Join(ws, ".cadence", "config.yaml")
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dbPath := cfg.Storage.DatabasePath
	if !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(ws, ".cadence", dbPath)
	}
	store, err := checkpoint.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	sink := memory.NewSQLiteSink(store.GetDB())
	mem := memory.NewWriter(sink)

	llmCfg := cfg.LLM
	if offline {
		llmCfg.APIKey = ""
	}

	orc, err := orchestrator.New(orchestrator.Deps{
		Store:   store,
		Coach:   coach.NewCoach(coach.New(llmCfg)),
		Tracker: buildTracker(cfg),
		Inbox:   buildInbox(cfg),
		Memory:  mem,
		Alerter: bellAlerter(),
		Budgets: cfg.Budgets,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	return &runtime{cfg: cfg, store: store, sink: sink, mem: mem, orc: orc}, nil
}

func (r *runtime) close() {
	r.mem.Close()
	if err := r.store.Close(); err != nil {
		logger.Warn("failed to close session store", zap.Error(err))
	}
}

// bellAlerter rings the terminal bell on urgent thresholds. The alert
// text itself reaches the user through the chat transcript, so anything
// visible here would double up.
func bellAlerter() alert.Alerter {
	return alert.Func(func(phase session.Phase, threshold, message string) {
		if threshold == "ten" || threshold == "expired" {
			fmt.Fprint(os.Stderr, "\a")
		}
	})
}

func buildTracker(cfg *config.Config) timetrack.Reader {
	if exportPath != "" {
		return &timetrack.FileReader{Path: exportPath}
	}
	tt := cfg.Integrations.TimeTracking
	if tt.ExportPath != "" {
		return &timetrack.FileReader{Path: tt.ExportPath}
	}
	if !tt.Enabled || tt.BaseURL == "" {
		return nil
	}
	return timetrack.NewRESTReader(tt.BaseURL, tt.Token, tt.GetTimeout())
}

func buildInbox(cfg *config.Config) inbox.Inbox {
	ib := cfg.Integrations.Inbox
	if !ib.Enabled || ib.BaseURL == "" {
		return inbox.Nop{}
	}
	return inbox.NewRESTInbox(ib.BaseURL, ib.Token, ib.GetTimeout())
}

func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runStart(cmd *cobra.Command, args []string) error {
	rt, err := buildRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	ctx, cancel := commandContext()
	defer cancel()

	s, step, err := rt.orc.Start(ctx)
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	logger.Info("session started", zap.String("session_id", s.ID))
	return runChat(ctx, rt.orc, s, step)
}

func runResume(cmd *cobra.Command, args []string) error {
	rt, err := buildRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	ctx, cancel := commandContext()
	defer cancel()

	s, err := rt.orc.Resume(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to resume session %s: %w", args[0], err)
	}
	step, err := rt.orc.Advance(ctx, s)
	if err != nil {
		return err
	}
	logger.Info("session resumed",
		zap.String("session_id", s.ID),
		zap.String("phase", string(s.CurrentPhase)))
	return runChat(ctx, rt.orc, s, step)
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	rt, err := buildRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	records, err := rt.store.List()
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}
	if len(records) == 0 {
		fmt.Println("No resumable sessions.")
		return nil
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].UpdatedAt.After(records[j].UpdatedAt)
	})

	fmt.Printf("%-16s %-20s %s\n", "SESSION", "PHASE", "LAST ACTIVITY")
	for _, r := range records {
		fmt.Printf("%-16s %-20s %s\n", r.SessionID, r.Phase, r.UpdatedAt.Local().Format(time.RFC822))
	}
	fmt.Printf("\nResume with: cadence resume <session-id>\n")
	return nil
}

func runAbandon(cmd *cobra.Command, args []string) error {
	rt, err := buildRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	ctx, cancel := commandContext()
	defer cancel()

	s, err := rt.orc.Resume(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to load session %s: %w", args[0], err)
	}
	if err := rt.orc.Abandon(ctx, s); err != nil {
		return fmt.Errorf("failed to abandon session %s: %w", args[0], err)
	}
	fmt.Printf("Session %s abandoned. Captured items are kept in the archive.\n", s.ID)
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	rt, err := buildRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	ctx, cancel := commandContext()
	defer cancel()

	episodes, err := rt.sink.RecentEpisodes(ctx, args[0], 20)
	if err != nil {
		return fmt.Errorf("failed to read history for %s: %w", args[0], err)
	}
	if len(episodes) == 0 {
		fmt.Printf("No recorded history for session %s.\n", args[0])
		return nil
	}

	fmt.Printf("Session %s\n\n", args[0])
	for _, ep := range episodes {
		fmt.Printf("  %s  %s\n", ep.RecordedAt.Local().Format(time.RFC822), ep.Kind)
	}

	triples, err := rt.sink.About(ctx, args[0], 50)
	if err != nil {
		return fmt.Errorf("failed to read decisions for %s: %w", args[0], err)
	}
	if len(triples) > 0 {
		fmt.Println("\nDecisions:")
		for _, t := range triples {
			fmt.Printf("  %s %s\n", t.Predicate, t.Object)
		}
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
