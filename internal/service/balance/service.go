// Package balance aggregates per-address chain queries over a set of derived
// addresses with a bounded fan-out.
package balance

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/mrz1836/satchel/internal/chain"
	"github.com/mrz1836/satchel/internal/wallet"
)

// DefaultMaxConcurrent bounds the number of addresses queried at once.
const DefaultMaxConcurrent = 8

// ErrNoBalance is recorded for an address whose gateway returned neither a
// balance nor an error.
var ErrNoBalance = errors.New("gateway returned no balance")

// Config holds the configuration for the balance service.
type Config struct {
	Gateway       Gateway
	Logger        LogWriter
	MaxConcurrent int
}

// Service aggregates balances and UTXOs across addresses.
type Service struct {
	gateway Gateway
	logger  LogWriter
	limit   int
}

// NewService creates a new balance service.
func NewService(cfg *Config) *Service {
	s := &Service{
		gateway: cfg.Gateway,
		logger:  cfg.Logger,
		limit:   cfg.MaxConcurrent,
	}
	if s.limit <= 0 {
		s.limit = DefaultMaxConcurrent
	}
	if s.logger == nil {
		s.logger = nopLogger{}
	}
	return s
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Error(string, ...any) {}

// fanOut runs fn for every index with at most limit in flight. Each call's
// error is stored at its index; fanOut itself never fails.
func (s *Service) fanOut(ctx context.Context, n int, fn func(ctx context.Context, i int) error) []error {
	errs := make([]error, n)
	var g errgroup.Group
	g.SetLimit(s.limit)

	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			errs[i] = fn(ctx, i)
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

// uniqueAddresses drops repeated addresses, keeping first-seen order.
func uniqueAddresses(addresses []string) []string {
	seen := make(map[string]struct{}, len(addresses))
	out := make([]string, 0, len(addresses))
	for _, a := range addresses {
		if _, dup := seen[a]; dup {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}

// uniqueRecords drops records whose address was already seen.
func uniqueRecords(records []wallet.AddressRecord) []wallet.AddressRecord {
	seen := make(map[string]struct{}, len(records))
	out := make([]wallet.AddressRecord, 0, len(records))
	for _, r := range records {
		if _, dup := seen[r.Address]; dup {
			continue
		}
		seen[r.Address] = struct{}{}
		out = append(out, r)
	}
	return out
}

// GetAggregateBalance sums the balances of addresses. Each address is
// queried and counted once. An address every provider failed for lands in
// Failures and is left out of the totals; it never fails the call. The error
// is non-nil only when ctx ends first.
func (s *Service) GetAggregateBalance(ctx context.Context, addresses []string, providers []chain.Endpoint) (*AggregateBalance, error) {
	addresses = uniqueAddresses(addresses)
	balances := make([]*chain.Balance, len(addresses))
	errs := s.fanOut(ctx, len(addresses), func(ctx context.Context, i int) error {
		bal, err := s.gateway.GetBalance(ctx, addresses[i], providers)
		if err != nil {
			return err
		}
		if bal == nil {
			return ErrNoBalance
		}
		balances[i] = bal
		return nil
	})

	result := &AggregateBalance{PerAddress: make([]AddressBalance, 0, len(addresses))}
	for i, addr := range addresses {
		if errs[i] != nil {
			s.logger.Debug("balance for %s unavailable: %v", addr, errs[i])
			result.Failures = append(result.Failures, AddressFailure{Address: addr, Err: errs[i]})
			continue
		}
		b := balances[i]
		result.Total += b.Confirmed
		result.Unconfirmed += b.Unconfirmed
		result.PerAddress = append(result.PerAddress, AddressBalance{
			Address:     addr,
			Confirmed:   b.Confirmed,
			Unconfirmed: b.Unconfirmed,
			TxCount:     b.TxCount,
		})
	}
	if len(result.Failures) > 0 {
		s.logger.Error("balance: %d of %d addresses failed", len(result.Failures), len(addresses))
	}
	return result, ctx.Err()
}

// GetAggregateUTXOs lists the unspent outputs of every record and tags each
// with its owner. Records sharing an address are queried once. Outputs are
// concatenated in record order. Per-address
// failures are captured as in GetAggregateBalance.
func (s *Service) GetAggregateUTXOs(ctx context.Context, records []wallet.AddressRecord, providers []chain.Endpoint) (*AggregateUTXOs, error) {
	records = uniqueRecords(records)
	found := make([][]chain.UTXO, len(records))
	errs := s.fanOut(ctx, len(records), func(ctx context.Context, i int) error {
		utxos, err := s.gateway.GetUTXOs(ctx, records[i].Address, providers)
		if err != nil {
			return err
		}
		found[i] = utxos
		return nil
	})

	result := &AggregateUTXOs{}
	for i, rec := range records {
		if errs[i] != nil {
			s.logger.Debug("utxos for %s unavailable: %v", rec.Address, errs[i])
			result.Failures = append(result.Failures, AddressFailure{Address: rec.Address, Err: errs[i]})
			continue
		}
		for _, u := range found[i] {
			result.Spendables = append(result.Spendables, wallet.Spendable{UTXO: u, Owner: rec})
		}
	}
	if len(result.Failures) > 0 {
		s.logger.Error("utxos: %d of %d addresses failed", len(result.Failures), len(records))
	}
	return result, ctx.Err()
}
