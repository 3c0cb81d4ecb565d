package wallet

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mrz1836/satchel/internal/chain"
	satchelerr "github.com/mrz1836/satchel/pkg/errors"
)

// PurposeBIP84 is the purpose level for native segwit P2WPKH accounts.
const PurposeBIP84 uint32 = 84

// Chain levels of an account.
const (
	ChainReceive uint32 = 0
	ChainChange  uint32 = 1
)

// hardenedOffset mirrors hdkeychain.HardenedKeyStart for path bounds checks.
const hardenedOffset uint32 = 0x80000000

// DerivationPath is a BIP84-shaped path m/purpose'/coin'/account'/chain/index.
// The first three levels are hardened.
type DerivationPath struct {
	Purpose  uint32
	CoinType uint32
	Account  uint32
	Chain    uint32
	Index    uint32
}

// BIP84Path returns the path for an address of network.
func BIP84Path(network chain.Network, account, chainLevel, index uint32) DerivationPath {
	return DerivationPath{
		Purpose:  PurposeBIP84,
		CoinType: network.CoinType(),
		Account:  account,
		Chain:    chainLevel,
		Index:    index,
	}
}

// String renders the path with ' marking hardened levels.
func (p DerivationPath) String() string {
	return fmt.Sprintf("m/%d'/%d'/%d'/%d/%d", p.Purpose, p.CoinType, p.Account, p.Chain, p.Index)
}

// IsChange reports whether the path is on the internal chain.
func (p DerivationPath) IsChange() bool { return p.Chain == ChainChange }

// ParseDerivationPath parses "m/84'/0'/0'/0/5". Both ' and h mark hardened
// levels; the first three must be hardened and the last two must not.
func ParseDerivationPath(s string) (DerivationPath, error) {
	invalid := func(reason string) error {
		return satchelerr.WithSuggestion(
			satchelerr.WithDetails(satchelerr.ErrInvalidInput, map[string]string{"path": s}),
			reason,
		)
	}

	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 6 || (parts[0] != "m" && parts[0] != "M") {
		return DerivationPath{}, invalid("expected m/purpose'/coin'/account'/chain/index")
	}

	var levels [5]uint32
	for i, part := range parts[1:] {
		hardened := strings.HasSuffix(part, "'") || strings.HasSuffix(part, "h") || strings.HasSuffix(part, "H")
		if hardened {
			part = part[:len(part)-1]
		}
		if hardened != (i < 3) {
			return DerivationPath{}, invalid("purpose, coin and account are hardened; chain and index are not")
		}
		n, err := strconv.ParseUint(part, 10, 32)
		if err != nil || uint32(n) >= hardenedOffset {
			return DerivationPath{}, invalid("level " + strconv.Itoa(i+1) + " is not a valid index")
		}
		levels[i] = uint32(n)
	}

	p := DerivationPath{
		Purpose:  levels[0],
		CoinType: levels[1],
		Account:  levels[2],
		Chain:    levels[3],
		Index:    levels[4],
	}
	if p.Chain != ChainReceive && p.Chain != ChainChange {
		return DerivationPath{}, invalid("chain must be 0 (receive) or 1 (change)")
	}
	return p, nil
}
