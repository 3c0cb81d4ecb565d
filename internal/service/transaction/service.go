// Package transaction orchestrates a send: validate, gather spendable
// outputs, pick a fee rate, build and sign, then broadcast.
package transaction

import (
	"context"

	"github.com/mrz1836/satchel/internal/chain"
	"github.com/mrz1836/satchel/internal/chain/btc"
	"github.com/mrz1836/satchel/internal/metrics"
	"github.com/mrz1836/satchel/internal/utxostore"
	"github.com/mrz1836/satchel/internal/wallet"
	satchelerr "github.com/mrz1836/satchel/pkg/errors"
)

// Config holds dependencies for the transaction service.
type Config struct {
	UTXOs       UTXOSource
	Fees        FeeSource
	Broadcaster Broadcaster
	Store       SpentStore         // optional
	TxKnown     utxostore.TxLookup // optional, lets stale spent marks be cleared
	Metrics     *metrics.Metrics
	Logger      LogWriter
}

// Service provides transaction sending functionality.
type Service struct {
	utxos       UTXOSource
	fees        FeeSource
	broadcaster Broadcaster
	store       SpentStore
	txKnown     utxostore.TxLookup
	metrics     *metrics.Metrics
	logger      LogWriter
}

// NewService creates a new transaction service.
func NewService(cfg *Config) *Service {
	s := &Service{
		utxos:       cfg.UTXOs,
		fees:        cfg.Fees,
		broadcaster: cfg.Broadcaster,
		store:       cfg.Store,
		txKnown:     cfg.TxKnown,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
	}
	if s.logger == nil {
		s.logger = nopLogger{}
	}
	return s
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Error(string, ...any) {}

// Send builds, signs, and unless DryRun is set broadcasts a payment.
// Every input check runs before the first remote call.
func (s *Service) Send(ctx context.Context, req *SendRequest) (*SendResult, error) {
	amount, err := s.validate(req)
	if err != nil {
		return nil, err
	}

	queryProviders := req.Network.Endpoints(chain.RoleQuery)
	rate, source, err := s.feeRate(ctx, req, queryProviders)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("send: to=%s amount=%s sweep=%v rate=%d (%s)", req.To, req.AmountStr, req.SweepAll(), rate, source)

	candidates, err := s.candidates(ctx, req, queryProviders)
	if err != nil {
		return nil, err
	}

	signed, err := btc.Build(btc.BuildRequest{
		Phrase:        req.Phrase,
		Passphrase:    req.Passphrase,
		Recipient:     req.To,
		Amount:        amount,
		FeeRate:       rate,
		Candidates:    candidates,
		ChangeAddress: req.ChangeAddress,
		Network:       req.Network,
		SweepAll:      req.SweepAll(),
	})
	s.metrics.RecordBuild(err)
	if err != nil {
		s.logger.Error("send: build failed: %v", err)
		return nil, err
	}
	s.logger.Debug("send: built %s inputs=%d vsize=%d fee=%d", signed.TxID, len(signed.Inputs), signed.VSize, signed.Fee)

	result := &SendResult{
		SignedTransaction: signed,
		To:                req.To,
		FeeRate:           rate,
		FeeSource:         source,
	}
	if req.DryRun {
		return result, nil
	}

	txid, err := s.broadcaster.Broadcast(ctx, signed.Hex, req.Network.Endpoints(chain.RoleBroadcast))
	if err != nil {
		return nil, satchelerr.Wrap(err, "broadcasting %s", signed.TxID)
	}
	if txid != signed.TxID {
		s.logger.Error("send: provider reported txid %s for %s", txid, signed.TxID)
	}
	result.Broadcast = true
	result.ExplorerURL = req.Network.TxURL(signed.TxID)

	s.markSpent(req.Network.Name(), signed)
	return result, nil
}

// validate checks the request and parses the amount. Zero is returned for a
// sweep.
func (s *Service) validate(req *SendRequest) (uint64, error) {
	if req.Network.IsZero() {
		return 0, satchelerr.ErrUnknownNetwork
	}
	if err := wallet.ValidateMnemonic(req.Phrase); err != nil {
		return 0, err
	}
	if err := btc.ValidateAddress(req.To, req.Network); err != nil {
		return 0, err
	}
	if req.ChangeAddress != "" {
		if err := btc.ValidateAddress(req.ChangeAddress, req.Network); err != nil {
			return 0, satchelerr.Wrap(err, "change address")
		}
	}
	if req.FeeRate > 0 {
		if err := btc.ValidateFeeRate(req.FeeRate); err != nil {
			return 0, err
		}
	} else if _, err := chain.ParseSpeed(req.Speed); err != nil {
		return 0, err
	}
	if req.Snapshot == nil && len(req.Records) == 0 {
		return 0, satchelerr.WithSuggestion(satchelerr.ErrNoUTXOs, "derive at least one address to spend from")
	}
	if req.SweepAll() {
		return 0, nil
	}

	amount, err := chain.ParseAmount(req.AmountStr)
	if err != nil {
		return 0, err
	}
	if amount == 0 {
		return 0, satchelerr.WithDetails(satchelerr.ErrInvalidAmount, map[string]string{"amount": req.AmountStr})
	}
	return amount, nil
}

func (s *Service) feeRate(ctx context.Context, req *SendRequest, providers []chain.Endpoint) (uint64, string, error) {
	if req.FeeRate > 0 {
		return req.FeeRate, FeeFromFlag, nil
	}
	speed, err := chain.ParseSpeed(req.Speed)
	if err != nil {
		return 0, "", err
	}
	est := s.fees.FeeEstimates(ctx, providers)
	source := FeeFromProvider
	if est.Fallback {
		source = FeeFromDefault
	}
	rate := est.ForSpeed(speed)
	if err = btc.ValidateFeeRate(rate); err != nil {
		return 0, "", err
	}
	return rate, source, nil
}

func (s *Service) candidates(ctx context.Context, req *SendRequest, providers []chain.Endpoint) ([]wallet.Spendable, error) {
	var candidates []wallet.Spendable
	if req.Snapshot != nil {
		candidates = req.Snapshot
		s.logger.Debug("send: using %d outputs from snapshot", len(candidates))
	} else {
		agg, err := s.utxos.GetAggregateUTXOs(ctx, req.Records, providers)
		if err != nil {
			return nil, err
		}
		if len(agg.Spendables) == 0 && len(agg.Failures) > 0 {
			return nil, satchelerr.Wrap(agg.Failures[0].Err, "listing utxos for %d addresses", len(agg.Failures))
		}
		candidates = agg.Spendables
		if err = s.reconcile(ctx, candidates); err != nil {
			return nil, err
		}
	}

	if s.store != nil {
		candidates = s.store.FilterSpent(candidates)
	}
	if len(candidates) == 0 {
		return nil, satchelerr.ErrNoUTXOs
	}
	return candidates, nil
}

// reconcile clears marks on outputs the indexers still report when the
// spending transaction is unknown to every provider.
func (s *Service) reconcile(ctx context.Context, reported []wallet.Spendable) error {
	if s.store == nil || s.txKnown == nil {
		return nil
	}
	cleared, err := s.store.Reconcile(ctx, reported, s.txKnown)
	if err != nil {
		return err
	}
	if len(cleared) == 0 {
		return nil
	}
	s.logger.Debug("send: cleared spent marks left by unknown txs %v", cleared)
	if err = s.store.Save(); err != nil {
		s.logger.Error("send: saving utxo snapshot: %v", err)
	}
	return nil
}

func (s *Service) markSpent(network string, signed *btc.SignedTransaction) {
	if s.store == nil {
		return
	}
	for _, in := range signed.Inputs {
		s.store.RecordSpent(network, in, signed.TxID)
	}
	if err := s.store.Save(); err != nil {
		s.logger.Error("send: saving utxo snapshot: %v", err)
	}
}
