// Package config provides configuration management for satchel.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mrz1836/satchel/internal/chain"
	"github.com/mrz1836/satchel/internal/fileutil"
	satchelerr "github.com/mrz1836/satchel/pkg/errors"
)

// Config represents the application configuration.
type Config struct {
	Version     int               `yaml:"version"`
	Home        string            `yaml:"home"`
	Network     string            `yaml:"network"`
	Networks    NetworksConfig    `yaml:"networks"`
	Timeouts    TimeoutsConfig    `yaml:"timeouts"`
	Fees        FeesConfig        `yaml:"fees"`
	Derivation  DerivationConfig  `yaml:"derivation"`
	Performance PerformanceConfig `yaml:"performance"`
	Output      OutputConfig      `yaml:"output"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// NetworksConfig defines per-network provider settings.
type NetworksConfig struct {
	Mainnet NetworkConfig `yaml:"mainnet"`
	Testnet NetworkConfig `yaml:"testnet"`
	Regtest NetworkConfig `yaml:"regtest"`
}

// NetworkConfig lists the indexers for one network in priority order.
type NetworkConfig struct {
	Providers []ProviderConfig `yaml:"providers"`
	Explorer  string           `yaml:"explorer,omitempty"`
}

// ProviderConfig is one esplora-compatible indexer.
type ProviderConfig struct {
	URL  string `yaml:"url"`
	Role string `yaml:"role,omitempty"` // query, broadcast, or all (default)
}

// TimeoutsConfig defines per-attempt provider timeouts.
type TimeoutsConfig struct {
	QuerySeconds     int `yaml:"query_seconds"`
	BroadcastSeconds int `yaml:"broadcast_seconds"`
}

// FeesConfig defines fee settings.
type FeesConfig struct {
	DefaultRate uint64 `yaml:"default_rate"` // sat/vB, used when no provider answers
	MaxRate     uint64 `yaml:"max_rate"`
	Speed       string `yaml:"speed"`
}

// DerivationConfig defines key derivation settings.
type DerivationConfig struct {
	Account      uint32 `yaml:"account"`
	ReceiveCount int    `yaml:"receive_count"`
	ChangeCount  int    `yaml:"change_count"`
}

// PerformanceConfig bounds fan-out and request rates.
type PerformanceConfig struct {
	Concurrency   int     `yaml:"concurrency"`
	RatePerSecond float64 `yaml:"rate_per_second"`
	RateBurst     int     `yaml:"rate_burst"`
}

// OutputConfig defines output formatting settings.
type OutputConfig struct {
	DefaultFormat string `yaml:"default_format"`
	Verbose       bool   `yaml:"verbose"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Load reads configuration from the specified file on top of the defaults.
func Load(path string) (*Config, error) {
	// #nosec G304 -- config file path is from validated user input
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, satchelerr.WithDetails(satchelerr.ErrConfigNotFound, map[string]string{"path": path})
	}
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := Defaults()
	if err = yaml.Unmarshal(data, cfg); err != nil {
		return nil, satchelerr.WithSuggestion(
			satchelerr.Wrap(satchelerr.ErrConfigInvalid, "%s: %v", path, err),
			"fix the YAML or recreate it with 'satchel config init --force'",
		)
	}
	return cfg, nil
}

// LoadOrDefaults reads path, falling back to the defaults when the file does
// not exist.
func LoadOrDefaults(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, satchelerr.ErrConfigNotFound) {
		return Defaults(), nil
	}
	return cfg, err
}

// Save writes configuration to the specified file atomically.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return fileutil.WriteAtomic(path, data, fileutil.PrivateFile)
}

// DefaultLogFile is the log file name under the home directory.
const DefaultLogFile = "satchel.log"

// Path returns the default config file path.
func Path(home string) string {
	return filepath.Join(home, "config.yaml")
}

// Validate checks values the rest of the program relies on.
func (c *Config) Validate() error {
	invalid := func(key, value string) error {
		return satchelerr.WithDetails(satchelerr.ErrConfigInvalid, map[string]string{key: value})
	}

	if _, err := chain.NetworkByName(c.Network); err != nil {
		return err
	}
	for name, nc := range c.Networks.byName() {
		for _, p := range nc.Providers {
			if _, err := chain.ParseRole(p.Role); err != nil {
				return invalid("networks."+name+".role", p.Role)
			}
			if strings.TrimSpace(p.URL) == "" {
				return invalid("networks."+name+".url", p.URL)
			}
		}
	}
	if c.Fees.MaxRate == 0 || c.Fees.DefaultRate == 0 || c.Fees.DefaultRate > c.Fees.MaxRate {
		return invalid("fees.default_rate", fmt.Sprint(c.Fees.DefaultRate))
	}
	if _, err := chain.ParseSpeed(c.Fees.Speed); err != nil {
		return invalid("fees.speed", c.Fees.Speed)
	}
	if c.Derivation.ReceiveCount < 1 || c.Derivation.ChangeCount < 0 {
		return invalid("derivation.receive_count", fmt.Sprint(c.Derivation.ReceiveCount))
	}
	switch c.Output.DefaultFormat {
	case "auto", "text", "json":
	default:
		return invalid("output.default_format", c.Output.DefaultFormat)
	}
	switch c.Logging.Level {
	case "off", "none", "error", "info", "debug":
	default:
		return invalid("logging.level", c.Logging.Level)
	}
	return nil
}

func (n *NetworksConfig) byName() map[string]*NetworkConfig {
	return map[string]*NetworkConfig{
		chain.NameMainnet: &n.Mainnet,
		chain.NameTestnet: &n.Testnet,
		chain.NameRegtest: &n.Regtest,
	}
}

// ForNetwork returns the settings block for a network name.
func (c *Config) ForNetwork(name string) (*NetworkConfig, error) {
	network, err := chain.NetworkByName(name)
	if err != nil {
		return nil, err
	}
	return c.Networks.byName()[network.Name()], nil
}

// ResolveNetwork returns the named network with the configured providers
// and explorer applied. An empty provider list keeps the built-in defaults.
func (c *Config) ResolveNetwork(name string) (chain.Network, error) {
	network, err := chain.NetworkByName(name)
	if err != nil {
		return chain.Network{}, err
	}
	nc := c.Networks.byName()[network.Name()]

	if len(nc.Providers) > 0 {
		endpoints := make([]chain.Endpoint, 0, len(nc.Providers))
		for _, p := range nc.Providers {
			role, roleErr := chain.ParseRole(p.Role)
			if roleErr != nil {
				return chain.Network{}, roleErr
			}
			if ep := chain.NewEndpoint(p.URL, role); ep.URL != "" {
				endpoints = append(endpoints, ep)
			}
		}
		network = network.WithEndpoints(endpoints...)
	}
	if nc.Explorer != "" {
		network = network.WithExplorer(nc.Explorer)
	}
	return network, nil
}

// GetNetwork resolves the configured network.
func (c *Config) GetNetwork() (chain.Network, error) {
	return c.ResolveNetwork(c.Network)
}

// GetHome returns the satchel home directory with "~" expanded.
func (c *Config) GetHome() string {
	return ExpandPath(c.Home)
}

// QueryTimeout returns the per-attempt query timeout.
func (c *Config) QueryTimeout() time.Duration {
	return seconds(c.Timeouts.QuerySeconds, chain.DefaultQueryTimeout)
}

// BroadcastTimeout returns the per-attempt broadcast timeout.
func (c *Config) BroadcastTimeout() time.Duration {
	return seconds(c.Timeouts.BroadcastSeconds, chain.DefaultBroadcastTimeout)
}

func seconds(n int, fallback time.Duration) time.Duration {
	if n <= 0 {
		return fallback
	}
	return time.Duration(n) * time.Second
}

// GetLoggingLevel returns the configured logging level.
func (c *Config) GetLoggingLevel() string {
	return c.Logging.Level
}

// GetLoggingFile returns the configured log file path, <home>/satchel.log
// when none is set.
func (c *Config) GetLoggingFile() string {
	if c.Logging.File == "" {
		return filepath.Join(c.GetHome(), DefaultLogFile)
	}
	return ExpandPath(c.Logging.File)
}

// GetOutputFormat returns the default output format.
func (c *Config) GetOutputFormat() string {
	return c.Output.DefaultFormat
}

// IsVerbose returns true if verbose output is enabled.
func (c *Config) IsVerbose() bool {
	return c.Output.Verbose
}

// DefaultHome returns the default satchel home directory.
func DefaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".satchel"
	}
	return filepath.Join(home, ".satchel")
}

// ExpandPath replaces a leading "~/" with the user's home directory.
func ExpandPath(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
