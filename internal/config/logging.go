package config

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string          `yaml:"level"`  // debug, info, warn, error
	Format     string          `yaml:"format"` // json, text
	File       string          `yaml:"file,omitempty"`
	Categories map[string]bool `yaml:"categories,omitempty"` // per-category enable, all on when empty
}

// DebugEnabled reports whether debug-level category logging is on.
func (l LoggingConfig) DebugEnabled() bool {
	return l.Level == "debug"
}
