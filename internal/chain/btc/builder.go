package btc

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/mrz1836/satchel/internal/chain"
	"github.com/mrz1836/satchel/internal/wallet"
	satchelerr "github.com/mrz1836/satchel/pkg/errors"
)

const (
	txVersion     int32 = 2
	sigHashType         = txscript.SigHashAll
	inputSequence       = wire.MaxTxInSequenceNum - 1 // no RBF signal
)

// BuildRequest describes a payment to build and sign.
type BuildRequest struct {
	Phrase        string
	Passphrase    string
	Recipient     string
	Amount        uint64 // ignored when SweepAll is set
	FeeRate       uint64 // sat/vB
	Candidates    []wallet.Spendable
	ChangeAddress string // defaults to the first input's address
	Network       chain.Network
	SweepAll      bool
}

// Output is one output of a built transaction.
type Output struct {
	Address  string `json:"address"`
	Amount   uint64 `json:"amount"`
	IsChange bool   `json:"is_change,omitempty"`
}

// SignedTransaction is a fully signed, serialized transaction.
type SignedTransaction struct {
	Hex     string             `json:"hex"`
	TxID    string             `json:"txid"`
	VSize   int64              `json:"vsize"`
	Fee     uint64             `json:"fee"`
	Amount  uint64             `json:"amount"`
	Change  uint64             `json:"change"`
	Inputs  []wallet.Spendable `json:"inputs"`
	Outputs []Output           `json:"outputs"`
}

// FeeRate returns the effective fee rate in sat/vB.
func (s *SignedTransaction) FeeRate() float64 {
	if s.VSize == 0 {
		return 0
	}
	return float64(s.Fee) / float64(s.VSize)
}

// Build validates req, selects inputs, signs every input with the key derived
// at its owner's path, and returns the serialized transaction. Validation
// and selection happen before any key material is derived. The seed and
// every signing key are zeroed before Build returns.
func Build(req BuildRequest) (*SignedTransaction, error) {
	if err := wallet.ValidateMnemonic(req.Phrase); err != nil {
		return nil, err
	}
	if !req.SweepAll {
		if err := ValidateAmount(req.Amount); err != nil {
			return nil, err
		}
	}
	if err := ValidateFeeRate(req.FeeRate); err != nil {
		return nil, err
	}

	recipientScript, err := PayToAddress(req.Recipient, req.Network)
	if err != nil {
		return nil, satchelerr.Wrap(err, "recipient")
	}
	var changeScript []byte
	if req.ChangeAddress != "" {
		if changeScript, err = PayToAddress(req.ChangeAddress, req.Network); err != nil {
			return nil, satchelerr.Wrap(err, "change address")
		}
	}

	var sel *Selection
	if req.SweepAll {
		sel, err = SweepAmount(req.Candidates, req.FeeRate)
	} else {
		sel, err = SelectUTXOs(req.Candidates, req.Amount, req.FeeRate)
	}
	if err != nil {
		return nil, err
	}

	changeAddress := req.ChangeAddress
	if sel.HasChange && changeScript == nil {
		changeAddress = sel.Inputs[0].Owner.Address
		if changeScript, err = PayToAddress(changeAddress, req.Network); err != nil {
			return nil, satchelerr.Wrap(err, "change address")
		}
	}

	outputs := []Output{{Address: req.Recipient, Amount: sel.Amount}}
	txOuts := []*wire.TxOut{wire.NewTxOut(int64(sel.Amount), recipientScript)} //nolint:gosec // bounded by supply
	if sel.HasChange {
		outputs = append(outputs, Output{Address: changeAddress, Amount: sel.Change, IsChange: true})
		txOuts = append(txOuts, wire.NewTxOut(int64(sel.Change), changeScript)) //nolint:gosec // bounded by supply
	}

	packet, prevOuts, err := newPacket(sel.Inputs, txOuts, req.Network)
	if err != nil {
		return nil, err
	}

	err = wallet.WithSeed(req.Phrase, req.Passphrase, func(seed []byte) error {
		return signInputs(packet, sel.Inputs, prevOuts, seed, req.Network)
	})
	if err != nil {
		return nil, err
	}

	tx, err := finalize(packet, prevOuts)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err = tx.Serialize(&buf); err != nil {
		return nil, fmt.Errorf("serializing transaction: %w", err)
	}

	var outSum uint64
	for _, o := range outputs {
		outSum += o.Amount
	}

	return &SignedTransaction{
		Hex:     hex.EncodeToString(buf.Bytes()),
		TxID:    tx.TxHash().String(),
		VSize:   VirtualSize(tx),
		Fee:     sel.Total - outSum,
		Amount:  sel.Amount,
		Change:  sel.Change,
		Inputs:  sel.Inputs,
		Outputs: outputs,
	}, nil
}

// newPacket creates the unsigned PSBT with a witness UTXO and SIGHASH_ALL on
// every input. It returns the previous outputs keyed by outpoint.
func newPacket(inputs []wallet.Spendable, txOuts []*wire.TxOut, network chain.Network,
) (*psbt.Packet, *txscript.MultiPrevOutFetcher, error) {
	outpoints := make([]*wire.OutPoint, 0, len(inputs))
	sequences := make([]uint32, 0, len(inputs))
	prevOuts := txscript.NewMultiPrevOutFetcher(nil)
	witnessUtxos := make([]*wire.TxOut, 0, len(inputs))

	for _, in := range inputs {
		hash, err := chainhash.NewHashFromStr(in.UTXO.TxID)
		if err != nil {
			return nil, nil, satchelerr.WithDetails(satchelerr.ErrInvalidInput, map[string]string{"txid": in.UTXO.TxID})
		}
		script, err := PayToAddress(in.Owner.Address, network)
		if err != nil {
			return nil, nil, satchelerr.Wrap(err, "input %s", in.UTXO.Outpoint())
		}

		op := wire.NewOutPoint(hash, in.UTXO.Vout)
		prev := wire.NewTxOut(int64(in.UTXO.Amount), script) //nolint:gosec // bounded by supply
		outpoints = append(outpoints, op)
		sequences = append(sequences, inputSequence)
		prevOuts.AddPrevOut(*op, prev)
		witnessUtxos = append(witnessUtxos, prev)
	}

	packet, err := psbt.New(outpoints, txOuts, txVersion, 0, sequences)
	if err != nil {
		return nil, nil, fmt.Errorf("creating psbt: %w", err)
	}
	updater, err := psbt.NewUpdater(packet)
	if err != nil {
		return nil, nil, fmt.Errorf("creating psbt updater: %w", err)
	}
	for i, prev := range witnessUtxos {
		if err = updater.AddInWitnessUtxo(prev, i); err != nil {
			return nil, nil, fmt.Errorf("adding witness utxo %d: %w", i, err)
		}
		if err = updater.AddInSighashType(sigHashType, i); err != nil {
			return nil, nil, fmt.Errorf("adding sighash type %d: %w", i, err)
		}
	}
	return packet, prevOuts, nil
}

// signInputs signs each input with the key at its owner's path. A key whose
// address differs from the owner's is a fatal derivation failure.
func signInputs(packet *psbt.Packet, inputs []wallet.Spendable, prevOuts *txscript.MultiPrevOutFetcher,
	seed []byte, network chain.Network,
) error {
	updater, err := psbt.NewUpdater(packet)
	if err != nil {
		return fmt.Errorf("creating psbt updater: %w", err)
	}
	tx := packet.UnsignedTx
	sigHashes := txscript.NewTxSigHashes(tx, prevOuts)

	for i, in := range inputs {
		path, err := in.Owner.DerivationPath()
		if err != nil {
			return derivationFailure(in, err.Error())
		}
		if in.UTXO.Address != "" && in.UTXO.Address != in.Owner.Address {
			return derivationFailure(in, "output address does not match owner")
		}
		prev := packet.Inputs[i].WitnessUtxo

		err = wallet.WithSigningKey(seed, path, func(priv *btcec.PrivateKey) error {
			addr, addrErr := wallet.AddressForKey(priv, network)
			if addrErr != nil {
				return addrErr
			}
			keyScript, scriptErr := PayToAddress(addr, network)
			if scriptErr != nil {
				return scriptErr
			}
			if !bytes.Equal(keyScript, prev.PkScript) {
				return derivationFailure(in, "derived key "+addr+" does not own the output")
			}

			sig, sigErr := txscript.RawTxInWitnessSignature(tx, sigHashes, i, prev.Value, prev.PkScript, sigHashType, priv)
			if sigErr != nil {
				return fmt.Errorf("signing input %d: %w", i, sigErr)
			}
			if _, signErr := updater.Sign(i, sig, priv.PubKey().SerializeCompressed(), nil, nil); signErr != nil {
				return fmt.Errorf("attaching signature %d: %w", i, signErr)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func derivationFailure(in wallet.Spendable, reason string) error {
	return satchelerr.WithDetails(satchelerr.ErrDerivationFailure, map[string]string{
		"outpoint": in.UTXO.Outpoint(),
		"path":     in.Owner.Path,
		"reason":   reason,
	})
}

// finalize completes every input, extracts the network transaction, and runs
// each input through the script engine.
func finalize(packet *psbt.Packet, prevOuts *txscript.MultiPrevOutFetcher) (*wire.MsgTx, error) {
	if err := psbt.MaybeFinalizeAll(packet); err != nil {
		return nil, fmt.Errorf("finalizing psbt: %w", err)
	}
	tx, err := psbt.Extract(packet)
	if err != nil {
		return nil, fmt.Errorf("extracting transaction: %w", err)
	}
	if err = VerifyInputs(tx, prevOuts); err != nil {
		return nil, err
	}
	return tx, nil
}

// VerifyInputs executes every input's scripts against its previous output.
func VerifyInputs(tx *wire.MsgTx, prevOuts txscript.PrevOutputFetcher) error {
	sigHashes := txscript.NewTxSigHashes(tx, prevOuts)
	for i, in := range tx.TxIn {
		prev := prevOuts.FetchPrevOutput(in.PreviousOutPoint)
		if prev == nil {
			return fmt.Errorf("missing previous output for input %d", i)
		}
		vm, err := txscript.NewEngine(prev.PkScript, tx, i, txscript.StandardVerifyFlags, nil, sigHashes, prev.Value, prevOuts)
		if err != nil {
			return fmt.Errorf("creating script engine for input %d: %w", i, err)
		}
		if err = vm.Execute(); err != nil {
			return fmt.Errorf("verifying input %d: %w", i, err)
		}
	}
	return nil
}

// VirtualSize returns ceil(weight / 4) where weight = stripped*3 + total.
func VirtualSize(tx *wire.MsgTx) int64 {
	weight := tx.SerializeSizeStripped()*3 + tx.SerializeSize()
	return int64((weight + 3) / 4)
}

// DecodeTransaction parses raw transaction hex.
func DecodeTransaction(rawHex string) (*wire.MsgTx, error) {
	raw, err := hex.DecodeString(rawHex)
	if err != nil {
		return nil, satchelerr.WithDetails(satchelerr.ErrInvalidInput, map[string]string{"reason": "transaction is not hex"})
	}
	var tx wire.MsgTx
	if err = tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, satchelerr.WithDetails(satchelerr.ErrInvalidInput, map[string]string{"reason": err.Error()})
	}
	return &tx, nil
}
