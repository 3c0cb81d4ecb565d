package wallet

import (
	"github.com/cosmos/go-bip39"

	"github.com/mrz1836/satchel/internal/secure"
)

// SeedSize is the length of a BIP39 seed in bytes.
const SeedSize = 64

// WithSeed validates phrase, derives its seed with the optional passphrase,
// and passes the seed to fn. The seed buffer is zeroed when fn returns,
// errors, or panics, and fn must not retain it.
func WithSeed(phrase, passphrase string, fn func(seed []byte) error) error {
	if err := ValidateMnemonic(phrase); err != nil {
		return err
	}

	buf := secure.BytesFrom(bip39.NewSeed(NormalizeMnemonicInput(phrase), passphrase))
	defer buf.Destroy()

	return fn(buf.Bytes())
}
