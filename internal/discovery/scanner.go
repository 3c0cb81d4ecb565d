package discovery

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mrz1836/satchel/internal/chain"
	"github.com/mrz1836/satchel/internal/wallet"
)

// Scanner performs gap-limit discovery against a provider list.
type Scanner struct {
	client    ChainClient
	network   chain.Network
	providers []chain.Endpoint
	opts      *Options
}

// NewScanner creates a scanner querying the network's query providers.
func NewScanner(client ChainClient, network chain.Network, opts *Options) *Scanner {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &Scanner{
		client:    client,
		network:   network,
		providers: network.Endpoints(chain.RoleQuery),
		opts:      opts,
	}
}

// Scan walks accounts from StartAccount until one has no history or
// MaxAccounts have been scanned. The first unused account is included so
// callers see where the next account starts. Any address that no provider
// answered for fails the scan.
func (s *Scanner) Scan(ctx context.Context, seed []byte) (*Result, error) {
	if err := s.opts.Validate(); err != nil {
		return nil, err
	}
	if len(seed) == 0 {
		return nil, ErrInvalidSeed
	}

	start := time.Now()
	result := &Result{GapLimit: s.opts.GapLimit}

	for i := 0; i < s.opts.MaxAccounts; i++ {
		account := s.opts.StartAccount + uint32(i) //nolint:gosec // bounded by MaxAccounts
		ar, err := s.scanAccount(ctx, seed, account)
		if err != nil {
			return nil, err
		}
		result.Accounts = append(result.Accounts, *ar)
		result.AddressesScanned += ar.Scanned
		if !ar.IsUsed() {
			break
		}
	}

	result.Duration = time.Since(start)
	result.DurationMS = result.Duration.Milliseconds()
	return result, nil
}

func (s *Scanner) scanAccount(ctx context.Context, seed []byte, account uint32) (*AccountResult, error) {
	ar := &AccountResult{Account: account}
	for _, level := range []uint32{wallet.ChainReceive, wallet.ChainChange} {
		used, scanned, err := s.scanChain(ctx, seed, account, level)
		if err != nil {
			return nil, err
		}
		ar.Scanned += scanned
		for _, d := range used {
			ar.Used = append(ar.Used, d)
			ar.Confirmed += d.Confirmed
			ar.Unconfirmed += d.Unconfirmed
			if level == wallet.ChainChange {
				ar.NextChange = d.Index + 1
			} else {
				ar.NextReceive = d.Index + 1
			}
		}
	}
	return ar, nil
}

// scanChain queries addresses in batches that exactly cover the remaining
// gap, so no more than GapLimit addresses past the last used one are ever
// requested.
func (s *Scanner) scanChain(ctx context.Context, seed []byte, account, level uint32) ([]DiscoveredAddress, int, error) {
	var used []DiscoveredAddress
	scanned, gap := 0, 0
	next := uint32(0)

	for gap < s.opts.GapLimit {
		if err := ctx.Err(); err != nil {
			return nil, scanned, err
		}

		batch := s.opts.GapLimit - gap
		records := make([]wallet.AddressRecord, batch)
		for i := range records {
			rec, err := wallet.DeriveAddress(seed, s.network, account, level, next+uint32(i)) //nolint:gosec // bounded by GapLimit
			if err != nil {
				return nil, scanned, fmt.Errorf("deriving address at index %d: %w", next+uint32(i), err) //nolint:gosec // bounded by GapLimit
			}
			records[i] = rec
		}

		balances, err := s.query(ctx, records)
		if err != nil {
			return nil, scanned, err
		}

		for i, b := range balances {
			scanned++
			if b.TxCount == 0 {
				gap++
				if gap >= s.opts.GapLimit {
					break
				}
				continue
			}
			gap = 0
			used = append(used, DiscoveredAddress{
				Address:     records[i].Address,
				Path:        records[i].Path,
				Account:     account,
				Index:       records[i].Index,
				Change:      level == wallet.ChainChange,
				TxCount:     b.TxCount,
				Confirmed:   b.Confirmed,
				Unconfirmed: b.Unconfirmed,
			})
		}
		next += uint32(batch) //nolint:gosec // bounded by GapLimit

		s.report(ProgressUpdate{Account: account, Change: level == wallet.ChainChange, Scanned: scanned, Used: len(used)})
	}
	return used, scanned, nil
}

// query looks up every record concurrently, preserving order.
func (s *Scanner) query(ctx context.Context, records []wallet.AddressRecord) ([]*chain.Balance, error) {
	out := make([]*chain.Balance, len(records))
	g, gctx := errgroup.WithContext(ctx)
	if s.opts.MaxConcurrent > 0 {
		g.SetLimit(s.opts.MaxConcurrent)
	}
	for i, rec := range records {
		g.Go(func() error {
			b, err := s.client.GetBalance(gctx, rec.Address, s.providers)
			if err != nil {
				return fmt.Errorf("%s: %w", rec.Address, err)
			}
			out[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Scanner) report(update ProgressUpdate) {
	if s.opts.ProgressCallback != nil {
		s.opts.ProgressCallback(update)
	}
}
