// Package settings defines application-level configuration data.
package settings

import "time"

// FetchConfig defines how feeds are downloaded.
type FetchConfig struct {
	TimeoutSeconds int    `yaml:"timeout_seconds" kong:"help='Per-fetch timeout in seconds',default='15'"`
	Retries        int    `yaml:"retries" kong:"help='Retries after a failed fetch',default='2'"`
	UserAgent      string `yaml:"user_agent" kong:"help='HTTP User-Agent',default='Feedtree/1.0'"`
	DiscoverIcons  bool   `yaml:"discover_icons" kong:"help='Look up site icons for feeds without an image',default='true'"`
}

// Settings represents the application configuration.
type Settings struct {
	DatabaseFile           string      `yaml:"database_file" kong:"help='Hierarchy database path (*.json for a plain JSON file)'"`
	RetentionLimit         int         `yaml:"retention_limit" kong:"help='Articles kept per stream, 0 keeps all',default='200'"`
	RefreshIntervalMinutes int         `yaml:"refresh_interval_minutes" kong:"help='Minutes between automatic refreshes in serve mode, 0 disables',default='15'"`
	LogLevel               string      `yaml:"log_level" kong:"help='Log level',default='info'"`
	MetricsAddr            string      `yaml:"metrics_addr" kong:"help='Listen address for /metrics in serve mode'"`
	Feeds                  []string    `yaml:"feeds,omitempty" kong:"help='Feed URLs added to the root folder while the hierarchy is empty'"`
	Fetch                  FetchConfig `yaml:"fetch" kong:"embed,prefix='fetch.'"`
}

// FetchTimeout returns the per-fetch timeout, or zero for none.
func (s Settings) FetchTimeout() time.Duration {
	if s.Fetch.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(s.Fetch.TimeoutSeconds) * time.Second
}

// RefreshInterval returns the automatic refresh period, or zero when disabled.
func (s Settings) RefreshInterval() time.Duration {
	if s.RefreshIntervalMinutes <= 0 {
		return 0
	}
	return time.Duration(s.RefreshIntervalMinutes) * time.Minute
}
