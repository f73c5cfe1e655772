package config

import "time"

// IntegrationsConfig configures external service integrations. Every
// integration degrades gracefully: a disabled or unreachable service
// never blocks a session.
type IntegrationsConfig struct {
	// External time-tracking service (read-only)
	TimeTracking TimeTrackingIntegration `yaml:"time_tracking"`

	// Task inbox service
	Inbox InboxIntegration `yaml:"inbox"`
}

// TimeTrackingIntegration configures the time entry source.
type TimeTrackingIntegration struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
	Timeout string `yaml:"timeout"`

	// Optional local JSON export used instead of the REST endpoint.
	ExportPath string `yaml:"export_path"`
}

// InboxIntegration configures the task inbox service.
type InboxIntegration struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
	Timeout string `yaml:"timeout"`
}

// GetTimeout parses the integration timeout with a safe fallback.
func (t TimeTrackingIntegration) GetTimeout() time.Duration {
	return parseTimeout(t.Timeout, 15*time.Second)
}

// GetTimeout parses the integration timeout with a safe fallback.
func (i InboxIntegration) GetTimeout() time.Duration {
	return parseTimeout(i.Timeout, 15*time.Second)
}

func parseTimeout(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
