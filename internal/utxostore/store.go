// Package utxostore persists UTXO snapshots so a transaction can be built
// from a previously fetched set, and remembers outputs spent by broadcasts
// the indexers may not have seen yet.
package utxostore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/mrz1836/satchel/internal/chain"
	"github.com/mrz1836/satchel/internal/fileutil"
	"github.com/mrz1836/satchel/internal/wallet"
)

const (
	// DefaultFileName is the snapshot name under the network directory.
	DefaultFileName = "utxos.json"

	// currentVersion is the current file format version.
	currentVersion = 1

	// SpentMarkTTL is how long a spent mark hides an output the indexers
	// still report. It matches the default mempool expiry, after which an
	// unconfirmed spend is gone from every node that kept it.
	SpentMarkTTL = 14 * 24 * time.Hour
)

var (
	// ErrUnsupportedVersion is returned for snapshots written by a newer release.
	ErrUnsupportedVersion = errors.New("unsupported utxo snapshot version")

	// ErrNetworkMismatch is returned when a snapshot belongs to another network.
	ErrNetworkMismatch = errors.New("utxo snapshot network mismatch")
)

// StoredUTXO is a spendable output persisted to disk with its owner.
type StoredUTXO struct {
	TxID          string               `json:"txid"`
	Vout          uint32               `json:"vout"`
	Amount        uint64               `json:"amount"` // satoshis
	Height        int64                `json:"height"`
	Confirmations uint32               `json:"confirmations"`
	Owner         wallet.AddressRecord `json:"owner"`

	// Storage-specific fields
	Spent       bool      `json:"spent"`
	SpentTxID   string    `json:"spent_txid,omitempty"` // txid that spent this output
	SpentAt     time.Time `json:"spent_at,omitempty"`
	FirstSeen   time.Time `json:"first_seen"`
	LastUpdated time.Time `json:"last_updated"`
}

// Key returns the unique identifier for this output (txid:vout).
func (u *StoredUTXO) Key() string {
	return key(u.TxID, u.Vout)
}

// Spendable converts the stored output back to the form the builder takes.
func (u *StoredUTXO) Spendable() wallet.Spendable {
	return wallet.Spendable{
		UTXO: chain.UTXO{
			TxID:          u.TxID,
			Vout:          u.Vout,
			Amount:        u.Amount,
			Height:        u.Height,
			Confirmations: u.Confirmations,
			Address:       u.Owner.Address,
		},
		Owner: u.Owner,
	}
}

func key(txid string, vout uint32) string {
	return fmt.Sprintf("%s:%d", txid, vout)
}

// File is the JSON file structure (versioned).
type File struct {
	Version   int                    `json:"version"`
	Network   string                 `json:"network"`
	UpdatedAt time.Time              `json:"updated_at"`
	UTXOs     map[string]*StoredUTXO `json:"utxos"` // key: txid:vout
}

// Store manages one snapshot file. It is safe for concurrent use.
type Store struct {
	path string
	mu   sync.RWMutex
	data *File
}

// New creates a store backed by path. Nothing is read until Load.
func New(path string) *Store {
	return &Store{
		path: path,
		data: &File{
			Version:   currentVersion,
			UpdatedAt: time.Now(),
			UTXOs:     make(map[string]*StoredUTXO),
		},
	}
}

// DefaultPath returns the snapshot location for network under home.
func DefaultPath(home, network string) string {
	return filepath.Join(home, network, DefaultFileName)
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

// Load reads the snapshot. A missing file leaves the store empty.
func (s *Store) Load() error {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading utxo snapshot: %w", err)
	}

	var f File
	if err = json.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parsing utxo snapshot %s: %w", s.path, err)
	}
	if f.Version > currentVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, f.Version)
	}
	if f.UTXOs == nil {
		f.UTXOs = make(map[string]*StoredUTXO)
	}
	f.Version = currentVersion

	s.mu.Lock()
	s.data = &f
	s.mu.Unlock()
	return nil
}

// LoadFor loads the snapshot and checks it belongs to network.
func (s *Store) LoadFor(network string) error {
	if err := s.Load(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.data.Network != "" && len(s.data.UTXOs) > 0 && s.data.Network != network {
		return fmt.Errorf("%w: snapshot is %s, wallet is %s", ErrNetworkMismatch, s.data.Network, network)
	}
	return nil
}

// Save writes the snapshot atomically.
func (s *Store) Save() error {
	s.mu.RLock()
	raw, err := json.MarshalIndent(s.data, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encoding utxo snapshot: %w", err)
	}
	return fileutil.WriteAtomic(s.path, raw, fileutil.PrivateFile)
}

// Network returns the network the snapshot was taken on.
func (s *Store) Network() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Network
}

// Replace records a fresh fetch. Outputs absent from spendables are dropped.
// Outputs already marked spent stay spent until the indexers stop reporting
// them or the mark is older than SpentMarkTTL.
func (s *Store) Replace(network string, spendables []wallet.Spendable) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data.Network != network {
		s.data.UTXOs = make(map[string]*StoredUTXO)
		s.data.Network = network
	}

	fresh := make(map[string]*StoredUTXO, len(spendables))
	for _, sp := range spendables {
		k := key(sp.UTXO.TxID, sp.UTXO.Vout)
		stored := &StoredUTXO{
			TxID:          sp.UTXO.TxID,
			Vout:          sp.UTXO.Vout,
			Amount:        sp.UTXO.Amount,
			Height:        sp.UTXO.Height,
			Confirmations: sp.UTXO.Confirmations,
			Owner:         sp.Owner,
			FirstSeen:     now,
			LastUpdated:   now,
		}
		if old, ok := s.data.UTXOs[k]; ok {
			stored.FirstSeen = old.FirstSeen
			if old.Spent && !markExpired(old, now) {
				stored.Spent = true
				stored.SpentTxID = old.SpentTxID
				stored.SpentAt = spentAt(old)
			}
		}
		fresh[k] = stored
	}
	s.data.UTXOs = fresh
	s.data.UpdatedAt = now
}

// Spendables returns the unspent outputs ordered by txid then vout.
func (s *Store) Spendables() []wallet.Spendable {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]wallet.Spendable, 0, len(s.data.UTXOs))
	for _, u := range s.data.UTXOs {
		if !u.Spent {
			out = append(out, u.Spendable())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UTXO.TxID != out[j].UTXO.TxID {
			return out[i].UTXO.TxID < out[j].UTXO.TxID
		}
		return out[i].UTXO.Vout < out[j].UTXO.Vout
	})
	return out
}

// IsSpent reports whether the output was marked spent.
func (s *Store) IsSpent(txid string, vout uint32) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.data.UTXOs[key(txid, vout)]
	return ok && u.Spent
}

// MarkSpent flags an output as spent by spentTxID. It returns false when
// the output is not in the snapshot.
func (s *Store) MarkSpent(txid string, vout uint32, spentTxID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.data.UTXOs[key(txid, vout)]
	if !ok {
		return false
	}
	now := time.Now()
	u.Spent = true
	u.SpentTxID = spentTxID
	u.SpentAt = now
	u.LastUpdated = now
	return true
}

// RecordSpent marks sp spent by spentTxID on network, adding it to the
// snapshot when a live fetch found it. A snapshot of another network is
// reset first.
func (s *Store) RecordSpent(network string, sp wallet.Spendable, spentTxID string) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data.Network != network {
		s.data.UTXOs = make(map[string]*StoredUTXO)
		s.data.Network = network
	}
	k := key(sp.UTXO.TxID, sp.UTXO.Vout)
	u, ok := s.data.UTXOs[k]
	if !ok {
		u = &StoredUTXO{
			TxID:          sp.UTXO.TxID,
			Vout:          sp.UTXO.Vout,
			Amount:        sp.UTXO.Amount,
			Height:        sp.UTXO.Height,
			Confirmations: sp.UTXO.Confirmations,
			Owner:         sp.Owner,
			FirstSeen:     now,
		}
		s.data.UTXOs[k] = u
	}
	u.Spent = true
	u.SpentTxID = spentTxID
	u.SpentAt = now
	u.LastUpdated = now
}

// spentAt returns when u was marked. Snapshots written before marks were
// timestamped fall back to the last update.
func spentAt(u *StoredUTXO) time.Time {
	if u.SpentAt.IsZero() {
		return u.LastUpdated
	}
	return u.SpentAt
}

func markExpired(u *StoredUTXO, now time.Time) bool {
	return now.Sub(spentAt(u)) > SpentMarkTTL
}

func clearMark(u *StoredUTXO) {
	u.Spent = false
	u.SpentTxID = ""
	u.SpentAt = time.Time{}
	u.LastUpdated = time.Now()
}

// PendingSpends returns the distinct txids that spent marked outputs,
// sorted.
func (s *Store) PendingSpends() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, u := range s.data.UTXOs {
		if u.Spent && u.SpentTxID != "" {
			seen[u.SpentTxID] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for txid := range seen {
		out = append(out, txid)
	}
	sort.Strings(out)
	return out
}

// ClearSpent removes the marks left by spentTxID and returns how many
// outputs became spendable again.
func (s *Store) ClearSpent(spentTxID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, u := range s.data.UTXOs {
		if u.Spent && u.SpentTxID == spentTxID {
			clearMark(u)
			n++
		}
	}
	return n
}

// ResetSpent removes every spent mark and returns how many were cleared.
func (s *Store) ResetSpent() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, u := range s.data.UTXOs {
		if u.Spent {
			clearMark(u)
			n++
		}
	}
	return n
}

// TxLookup reports whether any provider knows txid.
type TxLookup func(ctx context.Context, txid string) (bool, error)

// Reconcile checks the spends whose outputs the indexers still report in
// reported. A spend no provider knows was dropped or never propagated, so
// its marks are cleared. It returns the cleared txids. A failed lookup
// leaves the marks in place; only cancellation is returned as an error.
func (s *Store) Reconcile(ctx context.Context, reported []wallet.Spendable, known TxLookup) ([]string, error) {
	stale := s.spendsStillReported(reported)

	var cleared []string
	for _, txid := range stale {
		if err := ctx.Err(); err != nil {
			return cleared, err
		}
		ok, err := known(ctx, txid)
		if err != nil || ok {
			continue
		}
		if s.ClearSpent(txid) > 0 {
			cleared = append(cleared, txid)
		}
	}
	return cleared, nil
}

// spendsStillReported returns the sorted spend txids of marked outputs that
// appear in reported.
func (s *Store) spendsStillReported(reported []wallet.Spendable) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, sp := range reported {
		u, ok := s.data.UTXOs[key(sp.UTXO.TxID, sp.UTXO.Vout)]
		if ok && u.Spent && u.SpentTxID != "" {
			seen[u.SpentTxID] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for txid := range seen {
		out = append(out, txid)
	}
	sort.Strings(out)
	return out
}

// FilterSpent drops candidates the store knows are spent. Unknown outputs
// are kept.
func (s *Store) FilterSpent(candidates []wallet.Spendable) []wallet.Spendable {
	out := make([]wallet.Spendable, 0, len(candidates))
	for _, c := range candidates {
		if !s.IsSpent(c.UTXO.TxID, c.UTXO.Vout) {
			out = append(out, c)
		}
	}
	return out
}

// Count returns the number of stored outputs, spent or not.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data.UTXOs)
}

// IsEmpty reports whether the store holds no outputs.
func (s *Store) IsEmpty() bool {
	return s.Count() == 0
}

// UpdatedAt returns when the snapshot was last refreshed.
func (s *Store) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.UpdatedAt
}
