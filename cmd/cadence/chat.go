package main

// Interactive session interface built on bubbletea. The orchestrator
// does the thinking; this file only renders steps and feeds answers
// back.

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"cadence/internal/orchestrator"
	"cadence/internal/session"
)

var (
	coachStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true)

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("57")).
			Padding(0, 1)

	timerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	timerUrgentStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("9")).
				Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))
)

type chatMessage struct {
	role    string // "coach" or "you"
	content string
	time    time.Time
}

// Messages for tea updates
type (
	stepMsg struct{ step *orchestrator.Step }
	errMsg  struct{ err error }
	tickMsg time.Time
	pollMsg time.Time
)

type chatModel struct {
	// UI components
	textinput textinput.Model
	viewport  viewport.Model
	spinner   spinner.Model
	renderer  *glamour.TermRenderer

	// State
	history   []chatMessage
	isLoading bool
	done      bool
	err       error
	width     int
	height    int
	ready     bool

	// Countdown display
	remaining time.Duration
	stepAt    time.Time

	// Backend
	ctx  context.Context
	orc  *orchestrator.Orchestrator
	sess *session.Session
	step *orchestrator.Step
}

func newChatModel(ctx context.Context, orc *orchestrator.Orchestrator, s *session.Session, step *orchestrator.Step) chatModel {
	ti := textinput.New()
	ti.Placeholder = "your answer..."
	ti.Focus()
	ti.CharLimit = 500

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	renderer, _ := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)

	m := chatModel{
		textinput: ti,
		spinner:   sp,
		renderer:  renderer,
		ctx:       ctx,
		orc:       orc,
		sess:      s,
	}
	m.absorb(step)
	return m
}

// absorb folds a step's output into the transcript.
func (m *chatModel) absorb(step *orchestrator.Step) {
	m.step = step
	m.stepAt = time.Now()
	if step == nil {
		return
	}
	m.remaining = step.Remaining
	for _, text := range step.Messages {
		m.history = append(m.history, chatMessage{role: "coach", content: text, time: time.Now()})
	}
	// Idle polls re-surface the same pending question; repeat prompts
	// would fill the transcript.
	if step.Question != nil && !m.lastCoachSaid(step.Question.Prompt) {
		m.history = append(m.history, chatMessage{role: "coach", content: step.Question.Prompt, time: time.Now()})
	}
	if step.Done {
		m.done = true
	}
}

// lastCoachSaid reports whether the most recent coach line matches text.
func (m *chatModel) lastCoachSaid(text string) bool {
	for i := len(m.history) - 1; i >= 0; i-- {
		if m.history[i].role != "coach" {
			continue
		}
		return m.history[i].content == text
	}
	return false
}

func (m chatModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, tickCmd(), pollCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// pollCmd drives idle time-box checks: thresholds can fire while the
// user stares at the prompt.
func pollCmd() tea.Cmd {
	return tea.Tick(10*time.Second, func(t time.Time) tea.Msg { return pollMsg(t) })
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		spCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			return m.handleSubmit()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		headerHeight := 2
		footerHeight := 3
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-headerHeight-footerHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - headerHeight - footerHeight
		}
		m.renderer, _ = glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(min(msg.Width-4, 100)),
		)
		m.refreshViewport()

	case stepMsg:
		m.isLoading = false
		m.absorb(msg.step)
		m.refreshViewport()
		if m.done {
			return m, tea.Quit
		}
		m.textinput.Focus()

	case errMsg:
		m.isLoading = false
		m.err = msg.err
		return m, tea.Quit

	case tickMsg:
		// redraw for the countdown; the orchestrator owns the real clock
		return m, tickCmd()

	case pollMsg:
		if m.isLoading || m.done {
			return m, pollCmd()
		}
		return m, tea.Batch(pollCmd(), m.pollTimebox())
	}

	m.textinput, tiCmd = m.textinput.Update(msg)
	m.viewport, vpCmd = m.viewport.Update(msg)
	m.spinner, spCmd = m.spinner.Update(msg)
	return m, tea.Batch(tiCmd, vpCmd, spCmd)
}

func (m chatModel) handleSubmit() (tea.Model, tea.Cmd) {
	if m.isLoading || m.done || m.step == nil || m.step.Question == nil {
		return m, nil
	}
	value := strings.TrimSpace(m.textinput.Value())
	if value == "" {
		return m, nil
	}
	m.textinput.Reset()

	if value == "/abandon" {
		orc, sess, ctx := m.orc, m.sess, m.ctx
		m.isLoading = true
		return m, func() tea.Msg {
			if err := orc.Abandon(ctx, sess); err != nil {
				return errMsg{err: err}
			}
			return stepMsg{step: &orchestrator.Step{
				Messages: []string{"Session abandoned. Everything you captured is kept."},
				Done:     true,
			}}
		}
	}

	m.history = append(m.history, chatMessage{role: "you", content: value, time: time.Now()})
	m.refreshViewport()
	m.isLoading = true

	orc, sess, ctx := m.orc, m.sess, m.ctx
	return m, tea.Batch(m.spinner.Tick, func() tea.Msg {
		step, err := orc.SubmitAnswer(ctx, sess, value)
		if err != nil {
			return errMsg{err: err}
		}
		return stepMsg{step: step}
	})
}

// pollTimebox re-enters the orchestrator without an answer so idle
// threshold crossings surface in the transcript.
func (m chatModel) pollTimebox() tea.Cmd {
	orc, sess, ctx := m.orc, m.sess, m.ctx
	return func() tea.Msg {
		step, err := orc.Advance(ctx, sess)
		if err != nil {
			return errMsg{err: err}
		}
		return stepMsg{step: step}
	}
}

func (m *chatModel) refreshViewport() {
	if !m.ready {
		return
	}
	var b strings.Builder
	for _, msg := range m.history {
		switch msg.role {
		case "you":
			b.WriteString(userStyle.Render("you ▸ " + msg.content))
			b.WriteString("\n")
		default:
			content := msg.content
			if m.renderer != nil {
				if rendered, err := m.renderer.Render(content); err == nil {
					content = strings.TrimSpace(rendered)
				}
			}
			b.WriteString(coachStyle.Render("coach") + "\n" + content)
			b.WriteString("\n")
		}
	}
	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

func (m chatModel) View() string {
	if !m.ready {
		return "starting session..."
	}

	phase := "done"
	if m.step != nil && !m.done {
		phase = string(m.step.Phase)
	}
	header := headerStyle.Render(fmt.Sprintf(" cadence · %s · %s ", m.sess.ID, phase))
	header += " " + m.renderCountdown()

	footer := m.textinput.View()
	if m.isLoading {
		footer = m.spinner.View() + " thinking..."
	}
	help := helpStyle.Render("enter: answer · /abandon: stop early · ctrl+c: pause (resume later)")

	return fmt.Sprintf("%s\n%s\n%s\n%s", header, m.viewport.View(), footer, help)
}

func (m chatModel) renderCountdown() string {
	if m.step == nil || m.done || m.remaining <= 0 {
		return ""
	}
	left := m.remaining - time.Since(m.stepAt)
	if left < 0 {
		left = 0
	}
	text := fmt.Sprintf("⏱ %02d:%02d", int(left.Minutes()), int(left.Seconds())%60)
	if left < m.remaining/5 {
		return timerUrgentStyle.Render(text)
	}
	return timerStyle.Render(text)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// runChat drives the whole session through the TUI, or prints the final
// summary when the session finished before the first question.
func runChat(ctx context.Context, orc *orchestrator.Orchestrator, s *session.Session, step *orchestrator.Step) error {
	if step != nil && step.Done {
		for _, msg := range step.Messages {
			fmt.Println(msg)
		}
		fmt.Printf("Session %s complete.\n", s.ID)
		return nil
	}

	p := tea.NewProgram(newChatModel(ctx, orc, s, step), tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return fmt.Errorf("chat interface failed: %w", err)
	}

	if cm, ok := final.(chatModel); ok {
		if cm.err != nil {
			return cm.err
		}
		if cm.done && cm.sess.Completed {
			fmt.Printf("Session %s complete. Nice work.\n", cm.sess.ID)
		} else if !cm.done {
			fmt.Printf("Session %s paused. Resume with: cadence resume %s\n", cm.sess.ID, cm.sess.ID)
		}
	}
	return nil
}
