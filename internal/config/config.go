package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Auth method names accepted in FlowConfig.AuthMethod.
const (
	AuthUser   = "user"
	AuthScript = "script"
)

// Config is the root application configuration.
type Config struct {
	Flow    FlowConfig    `yaml:"flow"`
	Web     WebConfig     `yaml:"web"`
	Publish PublishConfig `yaml:"publish"`

	// DataDir holds the local history database. Defaults to ~/.shotpipe.
	DataDir string `yaml:"data_dir" env:"SHOTPIPE_DATA_DIR"`

	// DisabledTools lists node tools excluded from registration, e.g. to
	// keep a render farm from publishing.
	DisabledTools []string `yaml:"disabled_tools" env:"SHOTPIPE_DISABLED_TOOLS" env-separator:","`
}

// FlowConfig holds connection settings for the production-tracking site.
type FlowConfig struct {
	SiteURL    string        `yaml:"site_url"    env:"FLOW_SITE_URL"`
	AuthMethod string        `yaml:"auth_method" env:"FLOW_AUTH_METHOD" env-default:"script"`
	Login      string        `yaml:"login"       env:"FLOW_LOGIN"`
	Password   string        `yaml:"password"    env:"FLOW_PASSWORD"`
	ScriptName string        `yaml:"script_name" env:"FLOW_SCRIPT_NAME" env-default:"shotpipe"`
	APIKey     string        `yaml:"api_key"     env:"FLOW_API_KEY"`
	Timeout    time.Duration `yaml:"timeout"     env:"FLOW_TIMEOUT"     env-default:"30s"`
}

// WebConfig holds HTTP server settings.
type WebConfig struct {
	Bind            string        `yaml:"bind"             env:"WEB_BIND"             env-default:"127.0.0.1"`
	Port            int           `yaml:"port"             env:"WEB_PORT"             env-default:"8189"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"WEB_SHUTDOWN_TIMEOUT" env-default:"5s"`
}

// PublishConfig holds status codes and naming defaults used by the
// selection and publish operations.
type PublishConfig struct {
	// InProgressStatus is written to shots and tasks when a browse node
	// flips them to "in progress".
	InProgressStatus string `yaml:"in_progress_status" env:"PUBLISH_IN_PROGRESS_STATUS" env-default:"ip"`

	// DefaultStatus is the status assigned to newly created versions.
	DefaultStatus string `yaml:"default_status" env:"PUBLISH_DEFAULT_STATUS" env-default:"rev"`

	// FilenameTemplate documents the derived-filename shape. The derivation
	// itself is fixed; the template travels in the pipe for host display.
	FilenameTemplate string `yaml:"filename_template" env:"PUBLISH_FILENAME_TEMPLATE" env-default:"{project}_{sequence}_{shot}_{task}_v{version:03d}"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Flow: FlowConfig{
			AuthMethod: AuthScript,
			ScriptName: "shotpipe",
			Timeout:    30 * time.Second,
		},
		Web: WebConfig{
			Bind:            "127.0.0.1",
			Port:            8189,
			ShutdownTimeout: 5 * time.Second,
		},
		Publish: PublishConfig{
			InProgressStatus: "ip",
			DefaultStatus:    "rev",
			FilenameTemplate: "{project}_{sequence}_{shot}_{task}_v{version:03d}",
		},
	}
}

// Validate checks invariants that cleanenv tags cannot express.
func (c *Config) Validate() error {
	switch c.Flow.AuthMethod {
	case AuthUser, AuthScript:
	default:
		return fmt.Errorf("flow.auth_method must be %q or %q, got %q", AuthUser, AuthScript, c.Flow.AuthMethod)
	}
	if c.Web.Port <= 0 || c.Web.Port > 65535 {
		return fmt.Errorf("web.port out of range: %d", c.Web.Port)
	}
	return nil
}

// ResolveDataDir returns the configured data directory, defaulting to
// ~/.shotpipe when unset.
func (c *Config) ResolveDataDir() (string, error) {
	if c.DataDir != "" {
		return c.DataDir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve data dir: %w", err)
	}
	return filepath.Join(home, ".shotpipe"), nil
}
