package config

import (
	"fmt"
	"net/url"
)

const (
	defaultListen = ":8090"
)

// Config represents the main configuration structure
type Config struct {
	Listen       string `json:"listen" mapstructure:"listen"`
	DataDir      string `json:"data_dir" mapstructure:"data-dir"`
	ManifestsDir string `json:"manifests_dir" mapstructure:"manifests-dir"`

	// CallbackBaseURL is the externally reachable base of the OAuth
	// callback receiver, e.g. "http://127.0.0.1:8090".
	CallbackBaseURL string `json:"callback_base_url" mapstructure:"callback-base-url"`

	// AtlassianAuthURL is the host-mediated authorization page users are
	// sent to for the builtin Atlassian provider.
	AtlassianAuthURL string `json:"atlassian_auth_url" mapstructure:"atlassian-auth-url"`

	// DisableKeyring falls back to the in-memory secret store. Secrets do
	// not survive a restart in this mode.
	DisableKeyring bool `json:"disable_keyring" mapstructure:"disable-keyring"`

	// Logging configuration
	Logging *LogConfig `json:"logging,omitempty" mapstructure:"logging"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level         string `json:"level" mapstructure:"level"`
	EnableFile    bool   `json:"enable_file" mapstructure:"enable-file"`
	EnableConsole bool   `json:"enable_console" mapstructure:"enable-console"`
	Filename      string `json:"filename" mapstructure:"filename"`
	LogDir        string `json:"log_dir,omitempty" mapstructure:"log-dir"`
	MaxSize       int    `json:"max_size" mapstructure:"max-size"`       // MB
	MaxBackups    int    `json:"max_backups" mapstructure:"max-backups"` // number of backup files
	MaxAge        int    `json:"max_age" mapstructure:"max-age"`         // days
	Compress      bool   `json:"compress" mapstructure:"compress"`
	JSONFormat    bool   `json:"json_format" mapstructure:"json-format"`
}

// DefaultConfig returns configuration with sane defaults
func DefaultConfig() *Config {
	return &Config{
		Listen:           defaultListen,
		CallbackBaseURL:  "http://127.0.0.1:8090",
		AtlassianAuthURL: "https://id.atlassian.com/authorize",
	}
}

// Validate checks the configuration for obvious mistakes
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address cannot be empty")
	}
	if c.CallbackBaseURL == "" {
		return fmt.Errorf("callback base URL cannot be empty")
	}
	if u, err := url.Parse(c.CallbackBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("callback base URL %q is not an absolute URL", c.CallbackBaseURL)
	}
	if c.AtlassianAuthURL != "" {
		if u, err := url.Parse(c.AtlassianAuthURL); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("atlassian auth URL %q is not an absolute URL", c.AtlassianAuthURL)
		}
	}
	return nil
}
