package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/lookervault/lookervault/adapter"
	"github.com/lookervault/lookervault/adapter/redis"
	"github.com/lookervault/lookervault/adapter/webhook"
	"github.com/lookervault/lookervault/cli/config"
	"github.com/lookervault/lookervault/log"
	"github.com/lookervault/lookervault/looker"
	"github.com/lookervault/lookervault/metrics"
	"github.com/lookervault/lookervault/ratelimit"
	"github.com/lookervault/lookervault/store"
)

// loadConfig resolves configuration with flag > env > file precedence.
// The --db flag wins over LOOKERVAULT_DB_PATH and the config file.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Resolve(c.String("config"))
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("config: %v", err), exitConfig)
	}
	if db := c.String("db"); db != "" {
		cfg.Extraction.DBPath = db
	}
	return cfg, nil
}

// openStore opens the local store sized for the given worker count.
func openStore(cfg *config.Config, workers int) (*store.Store, error) {
	st, err := store.Open(cfg.DBPath(), store.Options{MaxConns: workers + 1})
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("open store %s: %v", cfg.DBPath(), err), exitFailure)
	}
	return st, nil
}

// buildClient creates a Looker API client from resolved configuration.
// Missing credentials are a configuration error.
func buildClient(cfg *config.Config, limiter *ratelimit.Limiter, logger *log.Logger) (*looker.Client, error) {
	verifySSL := true
	if cfg.Looker.VerifySSL != nil {
		verifySSL = *cfg.Looker.VerifySSL
	}
	client, err := looker.NewClient(looker.Config{
		BaseURL:      cfg.Looker.BaseURL,
		ClientID:     cfg.Looker.ClientID,
		ClientSecret: cfg.Looker.ClientSecret,
		Timeout:      cfg.Looker.Timeout.Duration,
		VerifySSL:    verifySSL,
	}, limiter, logger)
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("looker: %v", err), exitConfig)
	}
	return client, nil
}

// limiterFor resolves rate limit capacities with flag > config precedence.
func limiterFor(c *cli.Context, perMinuteCfg, perSecondCfg int) *ratelimit.Limiter {
	perMinute := c.Int("rate-limit-per-minute")
	if perMinute <= 0 {
		perMinute = perMinuteCfg
	}
	perSecond := c.Int("rate-limit-per-second")
	if perSecond <= 0 {
		perSecond = perSecondCfg
	}
	return ratelimit.New(perMinute, perSecond)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// runExit maps a session error onto the exit code contract.
func runExit(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return cli.Exit("cancelled", exitInterrupted)
	}
	if errors.Is(err, looker.ErrAuth) {
		return cli.Exit(err.Error(), exitConnection)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return cli.Exit(err.Error(), exitConnection)
	}
	var statusErr *looker.StatusError
	if errors.As(err, &statusErr) || errors.Is(err, looker.ErrRetriesExhausted) {
		return cli.Exit(err.Error(), exitAPI)
	}
	return cli.Exit(err.Error(), exitFailure)
}

// buildAdapter creates the configured session notifier, or nil when no
// adapter is configured.
func buildAdapter(cfg *config.Config) (adapter.Adapter, error) {
	retries := redis.DefaultRetries
	if cfg.Adapter.Retries != nil {
		retries = *cfg.Adapter.Retries
	}
	switch cfg.Adapter.Type {
	case "":
		return nil, nil
	case "redis":
		return redis.New(redis.Config{
			URL:     cfg.Adapter.URL,
			Channel: cfg.Adapter.Channel,
			Timeout: cfg.Adapter.Timeout.Duration,
			Retries: retries,
		})
	case "webhook":
		return webhook.New(webhook.Config{
			URL:     cfg.Adapter.URL,
			Headers: cfg.Adapter.Headers,
			Timeout: cfg.Adapter.Timeout.Duration,
			Retries: retries,
		})
	default:
		return nil, cli.Exit(fmt.Sprintf("unknown adapter type %q (must be redis or webhook)", cfg.Adapter.Type), exitConfig)
	}
}

// publishCompletion notifies the configured adapter that a session ended.
// Best effort: a failed notification is logged, never fatal.
func publishCompletion(cfg *config.Config, logger *log.Logger, snap metrics.Snapshot, status string) {
	ad, err := buildAdapter(cfg)
	if err != nil {
		logger.Warn("adapter setup failed", map[string]any{"error": err.Error()})
		return
	}
	if ad == nil {
		return
	}
	defer func() { _ = ad.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := ad.Publish(ctx, adapter.FromMetrics(snap, status)); err != nil {
		logger.Warn("session notification failed", map[string]any{"error": err.Error()})
	}
}

// isStderrTTY returns true if stderr is a TTY.
func isStderrTTY() bool {
	info, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
