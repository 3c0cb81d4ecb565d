package wallet

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/decred/dcrd/hdkeychain/v3"

	"github.com/mrz1836/satchel/internal/chain"
	"github.com/mrz1836/satchel/internal/secure"
	satchelerr "github.com/mrz1836/satchel/pkg/errors"
)

// hdNetParams satisfies hdkeychain.NetworkParams. The version bytes only
// affect serialized extended keys, which are never exported, so the mainnet
// values serve every network.
type hdNetParams struct{}

func (hdNetParams) HDPrivKeyVersion() [4]byte { return [4]byte{0x04, 0x88, 0xAD, 0xE4} }
func (hdNetParams) HDPubKeyVersion() [4]byte  { return [4]byte{0x04, 0x88, 0xB2, 0x1E} }

// deriveKey walks seed down path. Every intermediate key is zeroed; the
// caller owns and must zero the returned key.
func deriveKey(seed []byte, path DerivationPath) (*hdkeychain.ExtendedKey, error) {
	key, err := hdkeychain.NewMaster(seed, hdNetParams{})
	if err != nil {
		return nil, fmt.Errorf("creating master key: %w", err)
	}

	steps := []uint32{
		hdkeychain.HardenedKeyStart + path.Purpose,
		hdkeychain.HardenedKeyStart + path.CoinType,
		hdkeychain.HardenedKeyStart + path.Account,
		path.Chain,
		path.Index,
	}
	for _, step := range steps {
		child, childErr := key.ChildBIP32Std(step)
		key.Zero()
		if childErr != nil {
			return nil, fmt.Errorf("deriving %s: %w", path, childErr)
		}
		key = child
	}
	return key, nil
}

// witnessAddress encodes a compressed public key as a P2WPKH address.
func witnessAddress(pubKey []byte, network chain.Network) (*btcutil.AddressWitnessPubKeyHash, error) {
	addr, err := btcutil.NewAddressWitnessPubKeyHash(btcutil.Hash160(pubKey), network.Params())
	if err != nil {
		return nil, fmt.Errorf("encoding witness address: %w", err)
	}
	return addr, nil
}

// DeriveAddress derives the P2WPKH address at m/84'/coin'/account'/chain/index.
func DeriveAddress(seed []byte, network chain.Network, account, chainLevel, index uint32) (AddressRecord, error) {
	path := BIP84Path(network, account, chainLevel, index)
	key, err := deriveKey(seed, path)
	if err != nil {
		return AddressRecord{}, err
	}
	defer key.Zero()

	pub := key.SerializedPubKey()
	addr, err := witnessAddress(pub, network)
	if err != nil {
		return AddressRecord{}, err
	}

	return AddressRecord{
		Address:   addr.EncodeAddress(),
		Path:      path.String(),
		Index:     index,
		Change:    path.IsChange(),
		PublicKey: hex.EncodeToString(pub),
	}, nil
}

// DeriveAccount validates phrase and derives receiveCount receive and
// changeCount change addresses for account. Zero counts use the defaults.
func DeriveAccount(phrase, passphrase string, network chain.Network, account uint32,
	receiveCount, changeCount int,
) (*Account, error) {
	if receiveCount <= 0 {
		receiveCount = DefaultReceiveCount
	}
	if changeCount <= 0 {
		changeCount = DefaultChangeCount
	}

	acct := &Account{
		Index:   account,
		Name:    AccountName(account),
		Network: network.Name(),
		Receive: make([]AddressRecord, 0, receiveCount),
		Change:  make([]AddressRecord, 0, changeCount),
	}

	err := WithSeed(phrase, passphrase, func(seed []byte) error {
		for i := 0; i < receiveCount; i++ {
			rec, err := DeriveAddress(seed, network, account, ChainReceive, uint32(i)) //nolint:gosec // bounded count
			if err != nil {
				return err
			}
			acct.Receive = append(acct.Receive, rec)
		}
		for i := 0; i < changeCount; i++ {
			rec, err := DeriveAddress(seed, network, account, ChainChange, uint32(i)) //nolint:gosec // bounded count
			if err != nil {
				return err
			}
			acct.Change = append(acct.Change, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return acct, nil
}

// WithSigningKey derives the private key at path and passes it to fn. The key
// and its serialized bytes are zeroed on every exit path.
func WithSigningKey(seed []byte, path DerivationPath, fn func(*btcec.PrivateKey) error) error {
	key, err := deriveKey(seed, path)
	if err != nil {
		return err
	}
	defer key.Zero()

	raw, err := key.SerializedPrivKey()
	if err != nil {
		return satchelerr.Wrap(err, "extracting private key at %s", path)
	}
	buf := secure.BytesFrom(raw)
	defer buf.Destroy()

	priv, _ := btcec.PrivKeyFromBytes(buf.Bytes())
	defer priv.Zero()

	return fn(priv)
}

// AddressForKey returns the P2WPKH address of a signing key on network.
func AddressForKey(priv *btcec.PrivateKey, network chain.Network) (string, error) {
	addr, err := witnessAddress(priv.PubKey().SerializeCompressed(), network)
	if err != nil {
		return "", err
	}
	return addr.EncodeAddress(), nil
}
