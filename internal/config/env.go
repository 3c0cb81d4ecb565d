package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/mrz1836/go-sanitize"
)

// Environment variable names.
const (
	EnvHome         = "SATCHEL_HOME"
	EnvNetwork      = "SATCHEL_NETWORK"
	EnvProviders    = "SATCHEL_PROVIDERS"
	EnvOutputFormat = "SATCHEL_OUTPUT_FORMAT"
	EnvVerbose      = "SATCHEL_VERBOSE"
	EnvLogLevel     = "SATCHEL_LOG_LEVEL"
)

// ApplyEnvironment applies environment variable overrides to the configuration.
// SATCHEL_PROVIDERS replaces the provider list of the selected network.
func ApplyEnvironment(cfg *Config) {
	if v := os.Getenv(EnvHome); v != "" {
		cfg.Home = v
	}

	if v := os.Getenv(EnvNetwork); v != "" {
		cfg.Network = strings.ToLower(strings.TrimSpace(v))
	}

	if v := os.Getenv(EnvProviders); v != "" {
		if nc, err := cfg.ForNetwork(cfg.Network); err == nil {
			if urls := ParseProviderList(v); len(urls) > 0 {
				nc.Providers = providers(urls)
			}
		}
	}

	if v := os.Getenv(EnvOutputFormat); v != "" {
		cfg.Output.DefaultFormat = strings.ToLower(v)
	}

	if v := os.Getenv(EnvVerbose); v != "" {
		cfg.Output.Verbose = parseBool(v)
	}

	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
}

// ParseProviderList splits a comma separated list of URLs, cleaning each and
// dropping empties.
func ParseProviderList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if u := SanitizeURL(part); u != "" {
			out = append(out, u)
		}
	}
	return out
}

// parseBool parses a boolean string value.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "1" || s == "true" || s == "yes" || s == "on" {
		return true
	}
	b, _ := strconv.ParseBool(s)
	return b
}

// SanitizeURL cleans a URL string by removing invalid characters and trimming whitespace.
// This is useful for cleaning user-provided provider URLs that may contain copy-paste artifacts.
func SanitizeURL(url string) string {
	return sanitize.URL(strings.TrimSpace(url))
}
