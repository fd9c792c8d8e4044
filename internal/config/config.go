// Package config loads pw-ci settings from a TOML file with environment
// fallbacks for the keys the classic rc file carried.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Config is the full pw-ci configuration
type Config struct {
	Patchwork PatchworkConfig `toml:"patchwork"`
	CI        CIConfig        `toml:"ci"`
	Report    ReportConfig    `toml:"report"`
	General   GeneralConfig   `toml:"general"`
	Watch     WatchConfig     `toml:"watch"`
}

// PatchworkConfig names the review tracker to reconcile against
type PatchworkConfig struct {
	// Instance is the tracker base URL, e.g. https://patchwork.ozlabs.org
	Instance string `toml:"instance"`
	Project  string `toml:"project"`
	// Credentials is "user:password" for basic auth, empty for anonymous
	Credentials string `toml:"credentials"`
}

// CIConfig configures the providers and the CI-side extras
type CIConfig struct {
	// Providers fixes the polling order. Empty derives the list from the
	// tokens that are set.
	Providers []string `toml:"providers"`

	GitHubToken string `toml:"github_token"`
	TravisToken string `toml:"travis_token"`
	CirrusToken string `toml:"cirrus_token"`

	// GitHubAPIBase overrides the GitHub API URL for fake-server setups
	GitHubAPIBase string `toml:"github_api_base"`
	EnableDummy   bool   `toml:"enable_dummy"`

	// PatchURLFilter is a sed-style s/pat/repl/ rewrite for patch links
	// in reports; "q" or empty disables it
	PatchURLFilter string `toml:"patch_url_filter"`

	ScriptsDir      string `toml:"scripts_dir"`
	FetchLogs       bool   `toml:"fetch_logs"`
	PostResult      bool   `toml:"post_result"`
	PostResultExtra string `toml:"post_result_extra"`

	// RecheckFilters are the CI names honored in Recheck-request comments
	RecheckFilters []string `toml:"recheck_filters"`
}

// ReportConfig addresses the outgoing notifications
type ReportConfig struct {
	From   string `toml:"from"`
	To     string `toml:"to"`
	DryRun bool   `toml:"dry_run"`

	// Status word overrides for subject and Test-Status lines
	Success string `toml:"success"`
	Failure string `toml:"failure"`
	Warning string `toml:"warning"`
}

type GeneralConfig struct {
	DatabasePath string `toml:"database_path"`
}

type WatchConfig struct {
	// Cron is a five-field schedule for watch mode
	Cron string `toml:"cron"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		General: GeneralConfig{
			DatabasePath: "~/.pw-ci.db",
		},
		Watch: WatchConfig{
			Cron: "*/5 * * * *",
		},
	}
}

// DefaultConfigPath returns the standard config file location
func DefaultConfigPath() string {
	return ExpandPath("~/.config/pw-ci/config.toml")
}

// Load reads the config file at path, overlaying it on the defaults. A
// missing file yields the defaults. Environment variables named after the
// classic rc keys fill fields the file leaves empty.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnv()
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyEnv()
	return cfg, nil
}

// applyEnv fills empty fields from the environment keys the shell rc file
// used to export
func (c *Config) applyEnv() {
	envDefault(&c.Patchwork.Instance, "pw_instance")
	envDefault(&c.Patchwork.Project, "pw_project")
	envDefault(&c.Patchwork.Credentials, "pw_credentials")
	envDefault(&c.CI.GitHubToken, "github_token")
	envDefault(&c.CI.TravisToken, "travis_token")
	envDefault(&c.CI.CirrusToken, "cirrus_token")
	envDefault(&c.Report.From, "pw_ci_from")
	envDefault(&c.Report.To, "pw_ci_to")
}

func envDefault(field *string, key string) {
	if *field != "" {
		return
	}
	if v := os.Getenv(key); v != "" {
		*field = v
	}
}

// Token returns the API token configured for a provider name
func (c *CIConfig) Token(name string) string {
	switch strings.ToLower(name) {
	case "github":
		return c.GitHubToken
	case "travis":
		return c.TravisToken
	case "cirrus":
		return c.CirrusToken
	}
	return ""
}

// EnabledProviders returns the providers to poll, in order. An explicit
// list wins; otherwise every provider with a token is enabled, plus the
// dummy when asked for.
func (c *CIConfig) EnabledProviders() []string {
	if len(c.Providers) > 0 {
		return c.Providers
	}

	var names []string
	if c.GitHubToken != "" {
		names = append(names, "github")
	}
	if c.TravisToken != "" {
		names = append(names, "travis")
	}
	if c.CirrusToken != "" {
		names = append(names, "cirrus")
	}
	if c.EnableDummy {
		names = append(names, "dummy")
	}
	return names
}

// ValidateMonitor checks the settings the tracker-side monitor needs
func (c *Config) ValidateMonitor() error {
	if c.Patchwork.Instance == "" {
		return fmt.Errorf("patchwork.instance is required")
	}
	if c.Patchwork.Project == "" {
		return fmt.Errorf("patchwork.project is required")
	}
	return nil
}

// ValidateCIMon checks the settings the CI-side monitor needs
func (c *Config) ValidateCIMon() error {
	if err := c.ValidateMonitor(); err != nil {
		return err
	}
	if len(c.CI.EnabledProviders()) == 0 {
		return fmt.Errorf("no CI providers configured: set a token or enable_dummy")
	}
	if !c.Report.DryRun {
		if c.Report.From == "" {
			return fmt.Errorf("report.from is required")
		}
		if c.Report.To == "" {
			return fmt.Errorf("report.to is required")
		}
	}
	return nil
}

// ExpandPath resolves a leading ~ to the user's home directory
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if path == "~" {
			return home
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
