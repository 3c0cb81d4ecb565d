package config

import "github.com/mrz1836/satchel/internal/chain"

// DefaultFeeRate is the sat/vB rate assumed when no provider answers.
const DefaultFeeRate uint64 = 10

func providers(urls []string) []ProviderConfig {
	out := make([]ProviderConfig, 0, len(urls))
	for _, u := range urls {
		out = append(out, ProviderConfig{URL: u, Role: chain.RoleAll.String()})
	}
	return out
}

// Defaults returns the default configuration.
func Defaults() *Config {
	return &Config{
		Version: 1,
		Home:    "~/.satchel",
		Network: chain.NameMainnet,
		Networks: NetworksConfig{
			Mainnet: NetworkConfig{
				Providers: providers(chain.DefaultMainnetProviders),
				Explorer:  "https://mempool.space",
			},
			Testnet: NetworkConfig{
				Providers: providers(chain.DefaultTestnetProviders),
				Explorer:  "https://mempool.space/signet",
			},
			Regtest: NetworkConfig{
				Providers: providers(chain.DefaultRegtestProviders),
			},
		},
		Timeouts: TimeoutsConfig{
			QuerySeconds:     5,
			BroadcastSeconds: 10,
		},
		Fees: FeesConfig{
			DefaultRate: DefaultFeeRate,
			MaxRate:     10_000,
			Speed:       string(chain.SpeedMedium),
		},
		Derivation: DerivationConfig{
			Account:      0,
			ReceiveCount: 20,
			ChangeCount:  20,
		},
		Performance: PerformanceConfig{
			Concurrency:   8,
			RatePerSecond: chain.DefaultRatePerSecond,
			RateBurst:     chain.DefaultRateBurst,
		},
		Output: OutputConfig{
			DefaultFormat: "auto",
			Verbose:       false,
		},
		Logging: LoggingConfig{
			Level: "error",
			File:  "",
		},
	}
}
