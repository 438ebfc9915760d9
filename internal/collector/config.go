package collector

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds collector-side configuration. It is read from a YAML file,
// with the endpoint and credential overridable from the environment.
type Config struct {
	APIURL           string   `yaml:"api_url"`
	APIKey           string   `yaml:"api_key"`
	CDPAddress       string   `yaml:"cdp_address"`
	CDPPort          int      `yaml:"cdp_port"`
	InternalPrefixes []string `yaml:"internal_prefixes"`
	StateFile        string   `yaml:"state_file"`
	LogFile          string   `yaml:"log_file"`
}

// DefaultConfigPath returns the per-user config file location.
func DefaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "collector.yaml"
	}
	return filepath.Join(dir, "tabs-declutter", "collector.yaml")
}

// LoadConfig reads the YAML file at path, falling back to defaults for
// anything unset. A missing file is not an error; missing credentials are
// caught by Validate before any capture is attempted.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{
		CDPAddress:       "127.0.0.1",
		CDPPort:          9222,
		InternalPrefixes: DefaultInternalPrefixes,
		StateFile:        defaultStatePath(),
		LogFile:          "logs/collector.log",
	}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Defaults plus environment only.
	case err != nil:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if v := os.Getenv("DECLUTTER_API_URL"); v != "" {
		cfg.APIURL = v
	}
	if v := os.Getenv("DECLUTTER_API_KEY"); v != "" {
		cfg.APIKey = v
	}

	return cfg, nil
}

// Validate reports missing endpoint configuration. This is an operator
// error, surfaced before any tab enumeration or network call.
func (c *Config) Validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("api_url is not configured: set it in the config file or DECLUTTER_API_URL")
	}
	if c.APIKey == "" {
		return fmt.Errorf("api_key is not configured: set it in the config file or DECLUTTER_API_KEY")
	}
	return nil
}

// CDPURL returns the DevTools HTTP endpoint of the browser.
func (c *Config) CDPURL() string {
	return fmt.Sprintf("http://%s:%d", c.CDPAddress, c.CDPPort)
}

func defaultStatePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "collector-state.json"
	}
	return filepath.Join(dir, "tabs-declutter", "state.json")
}
