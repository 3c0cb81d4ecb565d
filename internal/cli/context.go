package cli

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrz1836/satchel/internal/chain"
	"github.com/mrz1836/satchel/internal/chain/esplora"
	"github.com/mrz1836/satchel/internal/config"
	"github.com/mrz1836/satchel/internal/metrics"
	"github.com/mrz1836/satchel/internal/output"
	"github.com/mrz1836/satchel/internal/service/balance"
)

// LogWriter is the logging surface commands use.
type LogWriter interface {
	Debug(format string, args ...any)
	Error(format string, args ...any)
}

// Compile-time interface checks.
var (
	_ LogWriter         = (*config.Logger)(nil)
	_ balance.Gateway   = (*esplora.Gateway)(nil)
	_ esplora.Logger    = (*config.Logger)(nil)
	_ balance.LogWriter = (*config.Logger)(nil)
)

// CommandContext holds the dependencies of one command invocation.
type CommandContext struct {
	Cfg     *config.Config
	Log     *config.Logger
	Fmt     *output.Formatter
	Network chain.Network
	Metrics *metrics.Metrics
	Stdin   io.Reader
	Stderr  io.Writer

	gateway *esplora.Gateway
}

// NewCommandContext creates a context with the given dependencies.
func NewCommandContext(cfg *config.Config, logger *config.Logger, formatter *output.Formatter) *CommandContext {
	return &CommandContext{
		Cfg:    cfg,
		Log:    logger,
		Fmt:    formatter,
		Stdin:  os.Stdin,
		Stderr: os.Stderr,
	}
}

type cmdContextKey struct{}

// SetCmdContext attaches cc to cmd.
func SetCmdContext(cmd *cobra.Command, cc *CommandContext) {
	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	cmd.SetContext(context.WithValue(base, cmdContextKey{}, cc))
}

// GetCmdContext returns the context attached to cmd.
func GetCmdContext(cmd *cobra.Command) (*CommandContext, error) {
	if ctx := cmd.Context(); ctx != nil {
		if cc, ok := ctx.Value(cmdContextKey{}).(*CommandContext); ok && cc != nil {
			return cc, nil
		}
	}
	return nil, errNoCommandContext
}

// Gateway returns the provider gateway for this invocation.
func (c *CommandContext) Gateway() *esplora.Gateway {
	if c.gateway == nil {
		c.gateway = esplora.NewGateway(esplora.GatewayOptions{
			QueryTimeout:     c.Cfg.QueryTimeout(),
			BroadcastTimeout: c.Cfg.BroadcastTimeout(),
			Limiter:          chain.NewRateLimiter(c.Cfg.Performance.RatePerSecond, c.Cfg.Performance.RateBurst),
			Logger:           c.Log,
			Metrics:          c.Metrics,
		})
	}
	return c.gateway
}

// Balances returns the aggregate balance service.
func (c *CommandContext) Balances() *balance.Service {
	return balance.NewService(&balance.Config{
		Gateway:       c.Gateway(),
		Logger:        c.Log,
		MaxConcurrent: c.Cfg.Performance.Concurrency,
	})
}

// QueryProviders returns the endpoints that answer queries.
func (c *CommandContext) QueryProviders() []chain.Endpoint {
	return c.Network.Endpoints(chain.RoleQuery)
}

// BroadcastProviders returns the endpoints that accept transactions.
func (c *CommandContext) BroadcastProviders() []chain.Endpoint {
	return c.Network.Endpoints(chain.RoleBroadcast)
}

// commandTimeout bounds a whole command: every provider may use its full
// attempt timeout, plus slack for local work.
func (c *CommandContext) commandTimeout(perAttempt time.Duration) time.Duration {
	n := max(len(c.QueryProviders()), len(c.BroadcastProviders()), 1)
	return time.Duration(n)*perAttempt + 30*time.Second
}

// contextWithTimeout returns a timeout context rooted in the command context.
func contextWithTimeout(cmd *cobra.Command, d time.Duration) (context.Context, context.CancelFunc) {
	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	return context.WithTimeout(base, d)
}
