package chain

import (
	"strings"

	"github.com/btcsuite/btcd/chaincfg"

	satchelerr "github.com/mrz1836/satchel/pkg/errors"
)

// Network names.
const (
	NameMainnet = "mainnet"
	NameTestnet = "testnet"
	NameRegtest = "regtest"
)

// BIP44 coin types. Every test network shares coin type 1.
const (
	CoinTypeMainnet uint32 = 0
	CoinTypeTestnet uint32 = 1
)

// Default indexer lists per network.
//
//nolint:gochecknoglobals // Default provider lists
var (
	DefaultMainnetProviders = []string{
		"https://fulcrum.angor.online",
		"https://electrs.angor.online",
		"https://cyphermunkhouse.angor.online",
		"https://indexer.angor.fund",
	}
	DefaultTestnetProviders = []string{
		"https://signet.angor.online",
		"https://signet2.angor.online",
	}
	DefaultRegtestProviders = []string{
		"http://localhost:3000",
	}
)

// Network is an immutable description of a Bitcoin network together with the
// ordered provider list used to reach it. Values are passed to each
// operation; nothing holds on to one between calls.
type Network struct {
	name      string
	params    *chaincfg.Params
	coinType  uint32
	endpoints []Endpoint
	explorer  string
}

// Mainnet returns the Bitcoin main network with its default providers.
func Mainnet() Network {
	return Network{
		name:      NameMainnet,
		params:    &chaincfg.MainNetParams,
		coinType:  CoinTypeMainnet,
		endpoints: EndpointsFromURLs(DefaultMainnetProviders, RoleAll),
		explorer:  "https://mempool.space",
	}
}

// Testnet returns the signet test network with its default providers.
func Testnet() Network {
	return Network{
		name:      NameTestnet,
		params:    &chaincfg.SigNetParams,
		coinType:  CoinTypeTestnet,
		endpoints: EndpointsFromURLs(DefaultTestnetProviders, RoleAll),
		explorer:  "https://mempool.space/signet",
	}
}

// Regtest returns a local regression test network.
func Regtest() Network {
	return Network{
		name:      NameRegtest,
		params:    &chaincfg.RegressionNetParams,
		coinType:  CoinTypeTestnet,
		endpoints: EndpointsFromURLs(DefaultRegtestProviders, RoleAll),
	}
}

// NetworkByName resolves a network name. "signet" is accepted for testnet.
func NetworkByName(name string) (Network, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case NameMainnet, "main", "bitcoin":
		return Mainnet(), nil
	case NameTestnet, "signet":
		return Testnet(), nil
	case NameRegtest:
		return Regtest(), nil
	default:
		return Network{}, satchelerr.WithSuggestion(
			satchelerr.WithDetails(satchelerr.ErrUnknownNetwork, map[string]string{"network": name}),
			"use mainnet, testnet, or regtest",
		)
	}
}

// Name returns the network name.
func (n Network) Name() string { return n.name }

// Params returns the chain parameters. Callers must not modify them.
func (n Network) Params() *chaincfg.Params { return n.params }

// CoinType returns the BIP44 coin type used in derivation paths.
func (n Network) CoinType() uint32 { return n.coinType }

// HRP returns the bech32 human-readable prefix for segwit addresses.
func (n Network) HRP() string {
	if n.params == nil {
		return ""
	}
	return n.params.Bech32HRPSegwit
}

// IsMainnet reports whether this is the production network.
func (n Network) IsMainnet() bool { return n.name == NameMainnet }

// IsZero reports whether n is the zero value.
func (n Network) IsZero() bool { return n.params == nil }

// Endpoints returns a copy of the endpoints serving role, in priority order.
func (n Network) Endpoints(role Role) []Endpoint {
	return FilterEndpoints(n.endpoints, role)
}

// WithEndpoints returns a copy of n using the given endpoints.
func (n Network) WithEndpoints(endpoints ...Endpoint) Network {
	cp := n
	cp.endpoints = append([]Endpoint(nil), endpoints...)
	return cp
}

// WithExplorer returns a copy of n using the given explorer base URL.
func (n Network) WithExplorer(base string) Network {
	cp := n
	cp.explorer = strings.TrimRight(base, "/")
	return cp
}

// TxURL returns the explorer link for a transaction, or "" if none is set.
func (n Network) TxURL(txid string) string {
	if n.explorer == "" {
		return ""
	}
	return n.explorer + "/tx/" + txid
}

// AddressURL returns the explorer link for an address, or "" if none is set.
func (n Network) AddressURL(address string) string {
	if n.explorer == "" {
		return ""
	}
	return n.explorer + "/address/" + address
}
