// Package esplora talks to Esplora-compatible indexers (electrs, mempool.space
// and their forks) and layers ordered failover over a provider list.
package esplora

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mrz1836/satchel/internal/chain"
	satchelerr "github.com/mrz1836/satchel/pkg/errors"
)

const (
	// defaultHTTPTimeout bounds a request when the caller's context has no
	// deadline. Failover attempts set their own, shorter deadline.
	defaultHTTPTimeout = 30 * time.Second

	maxBodyBytes  = 4 << 20
	maxErrorBytes = 1 << 10

	// confirmedPageSize is the number of confirmed txs esplora returns per
	// /txs page; a full page means more may follow.
	confirmedPageSize = 25
	maxTxPages        = 40

	userAgent = "satchel"
)

// ErrMalformedResponse indicates a provider answered with a body that could
// not be understood.
var ErrMalformedResponse = errors.New("malformed provider response")

// HTTPError is a non-2xx response.
type HTTPError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s returned %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s returned %d: %s", e.URL, e.StatusCode, e.Body)
}

// Unwrap classifies every HTTP failure as a network error.
func (e *HTTPError) Unwrap() error { return satchelerr.ErrNetworkError }

// StatusCode returns the HTTP status of err, or 0 when it is not an HTTPError.
func StatusCode(err error) int {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode
	}
	return 0
}

// endpointMissing reports whether a status means the provider does not
// implement the route at all.
func endpointMissing(err error) bool {
	switch StatusCode(err) {
	case http.StatusNotFound, http.StatusMethodNotAllowed, http.StatusNotImplemented:
		return true
	default:
		return false
	}
}

// ClientOptions contains optional configuration for a Client.
type ClientOptions struct {
	// HTTPClient overrides the default client.
	HTTPClient *http.Client

	// Limiter throttles requests per provider. Nil disables throttling.
	Limiter *chain.RateLimiter
}

// Client queries a single provider.
type Client struct {
	base       string
	httpClient *http.Client
	limiter    *chain.RateLimiter
}

// NewClient creates a client for endpoint.
func NewClient(endpoint chain.Endpoint, opts *ClientOptions) *Client {
	c := &Client{
		base:       strings.TrimRight(endpoint.URL, "/"),
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	if opts != nil {
		if opts.HTTPClient != nil {
			c.httpClient = opts.HTTPClient
		}
		c.limiter = opts.Limiter
	}
	return c
}

// URL returns the provider base URL.
func (c *Client) URL() string { return c.base }

// GetAddressStats returns the confirmed and mempool statistics of address.
func (c *Client) GetAddressStats(ctx context.Context, address string) (*chain.Balance, error) {
	var resp addressResponse
	if err := c.getJSON(ctx, "/api/address/"+url.PathEscape(address), &resp); err != nil {
		return nil, err
	}

	chainStats, mempool := resp.ChainStats, resp.MempoolStats
	if chainStats.SpentTxoSum > chainStats.FundedTxoSum {
		return nil, fmt.Errorf("%w: spent exceeds funded for %s", ErrMalformedResponse, address)
	}
	return &chain.Balance{
		Address:       address,
		Confirmed:     chainStats.FundedTxoSum - chainStats.SpentTxoSum,
		Unconfirmed:   int64(mempool.FundedTxoSum) - int64(mempool.SpentTxoSum), //nolint:gosec // bounded by supply
		TotalReceived: chainStats.FundedTxoSum + mempool.FundedTxoSum,
		TotalSent:     chainStats.SpentTxoSum + mempool.SpentTxoSum,
		TxCount:       chainStats.TxCount + mempool.TxCount,
	}, nil
}

// ListUTXOs returns the unspent outputs paying address. Providers without the
// /utxo route are served by walking the address history and checking each
// output's spend status. Confirmations are left at zero.
func (c *Client) ListUTXOs(ctx context.Context, address string) ([]chain.UTXO, error) {
	var resp []utxoResponse
	err := c.getJSON(ctx, "/api/address/"+url.PathEscape(address)+"/utxo", &resp)
	if endpointMissing(err) {
		return c.listUTXOsFromHistory(ctx, address)
	}
	if err != nil {
		return nil, err
	}

	utxos := make([]chain.UTXO, 0, len(resp))
	for _, u := range resp {
		if u.TxID == "" {
			return nil, fmt.Errorf("%w: utxo without txid", ErrMalformedResponse)
		}
		utxos = append(utxos, chain.UTXO{
			TxID:    u.TxID,
			Vout:    u.Vout,
			Amount:  u.Value,
			Height:  confirmedHeight(u.Status),
			Address: address,
		})
	}
	sortUTXOs(utxos)
	return utxos, nil
}

func (c *Client) listUTXOsFromHistory(ctx context.Context, address string) ([]chain.UTXO, error) {
	txs, err := c.addressHistory(ctx, address)
	if err != nil {
		return nil, err
	}

	var utxos []chain.UTXO
	for _, tx := range txs {
		paying := make([]uint32, 0, len(tx.Vout))
		for i, out := range tx.Vout {
			if out.ScriptPubKeyAddress == address {
				paying = append(paying, uint32(i)) //nolint:gosec // output index
			}
		}
		if len(paying) == 0 {
			continue
		}

		var spends []outspendResponse
		if err = c.getJSON(ctx, "/api/tx/"+url.PathEscape(tx.TxID)+"/outspends", &spends); err != nil {
			return nil, err
		}
		for _, vout := range paying {
			if int(vout) >= len(spends) {
				return nil, fmt.Errorf("%w: outspends for %s too short", ErrMalformedResponse, tx.TxID)
			}
			if spends[vout].Spent {
				continue
			}
			utxos = append(utxos, chain.UTXO{
				TxID:    tx.TxID,
				Vout:    vout,
				Amount:  tx.Vout[vout].Value,
				Height:  confirmedHeight(tx.Status),
				Address: address,
			})
		}
	}
	sortUTXOs(utxos)
	return utxos, nil
}

// addressHistory pages through /txs and /txs/chain/{last} until a short page.
// A history longer than maxTxPages is an error rather than a partial list.
func (c *Client) addressHistory(ctx context.Context, address string) ([]txResponse, error) {
	base := "/api/address/" + url.PathEscape(address) + "/txs"
	var all []txResponse
	seen := map[string]bool{}
	path := base

	for page := 0; page < maxTxPages; page++ {
		var txs []txResponse
		if err := c.getJSON(ctx, path, &txs); err != nil {
			return nil, err
		}

		confirmed := 0
		var last string
		for _, tx := range txs {
			if tx.TxID == "" || seen[tx.TxID] {
				continue
			}
			seen[tx.TxID] = true
			all = append(all, tx)
			if tx.Status.Confirmed {
				confirmed++
				last = tx.TxID
			}
		}
		if confirmed < confirmedPageSize || last == "" {
			return all, nil
		}
		path = base + "/chain/" + url.PathEscape(last)
	}
	// a truncated history could report spent outputs as unspent
	return nil, fmt.Errorf("%w: history of %s exceeds %d pages", ErrMalformedResponse, address, maxTxPages)
}

// TipHeight returns the current chain height. Providers that mount the block
// routes under /api are tried there when the bare route is missing.
func (c *Client) TipHeight(ctx context.Context) (int64, error) {
	body, err := c.getText(ctx, "/blocks/tip/height")
	if endpointMissing(err) {
		body, err = c.getText(ctx, "/api/blocks/tip/height")
	}
	if err != nil {
		return 0, err
	}
	height, err := strconv.ParseInt(strings.TrimSpace(body), 10, 64)
	if err != nil || height < 0 {
		return 0, fmt.Errorf("%w: tip height %q", ErrMalformedResponse, body)
	}
	return height, nil
}

// Broadcast submits raw transaction hex and returns the txid the provider
// reports. A non-2xx answer is an explicit rejection.
func (c *Client) Broadcast(ctx context.Context, rawHex string) (string, error) {
	body, err := c.do(ctx, http.MethodPost, "/api/tx", strings.NewReader(strings.TrimSpace(rawHex)), "text/plain")
	if err != nil {
		var he *HTTPError
		if errors.As(err, &he) {
			return "", satchelerr.BroadcastRejected(c.base, he.StatusCode, he.Body)
		}
		return "", err
	}
	txid := strings.TrimSpace(body)
	if len(txid) != 64 {
		return "", fmt.Errorf("%w: broadcast returned %q", ErrMalformedResponse, txid)
	}
	return txid, nil
}

// FeeEstimates returns recommended fee rates. mempool.space style providers
// answer /api/v1/fees/recommended; plain esplora answers /api/fee-estimates
// with a block-target map.
func (c *Client) FeeEstimates(ctx context.Context) (*chain.FeeEstimates, error) {
	var rec recommendedFees
	err := c.getJSON(ctx, "/api/v1/fees/recommended", &rec)
	if err == nil {
		return recommendedToEstimates(rec), nil
	}
	if ctx.Err() != nil {
		return nil, err
	}

	var targets map[string]float64
	if fallbackErr := c.getJSON(ctx, "/api/fee-estimates", &targets); fallbackErr != nil {
		return nil, errors.Join(err, fallbackErr)
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: empty fee estimates", ErrMalformedResponse)
	}
	return targetsToEstimates(targets), nil
}

// TxStatus returns the confirmation state of txid.
func (c *Client) TxStatus(ctx context.Context, txid string) (*chain.TxStatus, error) {
	var resp statusResponse
	if err := c.getJSON(ctx, "/api/tx/"+url.PathEscape(txid)+"/status", &resp); err != nil {
		return nil, err
	}
	return &chain.TxStatus{
		TxID:        txid,
		Confirmed:   resp.Confirmed,
		BlockHeight: resp.BlockHeight,
		BlockHash:   resp.BlockHash,
		BlockTime:   resp.BlockTime,
	}, nil
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	body, err := c.do(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return err
	}
	if err = json.Unmarshal([]byte(body), v); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrMalformedResponse, path, err)
	}
	return nil
}

func (c *Client) getText(ctx context.Context, path string) (string, error) {
	return c.do(ctx, http.MethodGet, path, nil, "")
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string) (string, error) {
	if err := c.limiter.Wait(ctx, c.base); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", satchelerr.ErrNetworkError, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBytes))
		return "", &HTTPError{URL: c.base + path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("%w: reading %s: %w", satchelerr.ErrNetworkError, path, err)
	}
	return string(data), nil
}

func confirmedHeight(s statusResponse) int64 {
	if !s.Confirmed {
		return 0
	}
	return s.BlockHeight
}

func sortUTXOs(utxos []chain.UTXO) {
	sort.SliceStable(utxos, func(i, j int) bool {
		if utxos[i].TxID != utxos[j].TxID {
			return utxos[i].TxID < utxos[j].TxID
		}
		return utxos[i].Vout < utxos[j].Vout
	})
}

// ceilRate rounds a fractional sat/vB rate up; non-positive becomes 0.
func ceilRate(v float64) uint64 {
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return uint64(math.Ceil(v))
}

// recommendedToEstimates fills zero tiers from the defaults.
func recommendedToEstimates(rec recommendedFees) *chain.FeeEstimates {
	def := chain.DefaultFeeEstimates()
	orDefault := func(v float64, d uint64) uint64 {
		if r := ceilRate(v); r > 0 {
			return r
		}
		return d
	}
	return &chain.FeeEstimates{
		Fastest:  orDefault(rec.FastestFee, def.Fastest),
		HalfHour: orDefault(rec.HalfHourFee, def.HalfHour),
		Hour:     orDefault(rec.HourFee, def.Hour),
		Economy:  orDefault(rec.EconomyFee, def.Economy),
		Minimum:  orDefault(rec.MinimumFee, def.Minimum),
	}
}

// targetsToEstimates maps esplora block targets onto tiers: 1 block is
// fastest, 3 half hour, 6 hour, 144 economy and 1008 minimum. A missing
// target uses the nearest larger one that exists.
func targetsToEstimates(targets map[string]float64) *chain.FeeEstimates {
	byTarget := make(map[int]float64, len(targets))
	keys := make([]int, 0, len(targets))
	for k, v := range targets {
		n, err := strconv.Atoi(k)
		if err != nil || n <= 0 {
			continue
		}
		byTarget[n] = v
		keys = append(keys, n)
	}
	sort.Ints(keys)

	pick := func(target int) uint64 {
		for _, k := range keys {
			if k >= target {
				return ceilRate(byTarget[k])
			}
		}
		if len(keys) > 0 {
			return ceilRate(byTarget[keys[len(keys)-1]])
		}
		return 0
	}

	def := chain.DefaultFeeEstimates()
	est := &chain.FeeEstimates{
		Fastest:  pick(1),
		HalfHour: pick(3),
		Hour:     pick(6),
		Economy:  pick(144),
		Minimum:  pick(1008),
	}
	if est.Minimum == 0 {
		est.Minimum = def.Minimum
	}
	return est
}
