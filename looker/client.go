package looker

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/lookervault/lookervault/log"
	"github.com/lookervault/lookervault/ratelimit"
)

// Defaults and bounds for the per-call and retry budgets.
const (
	DefaultTimeout = 30 * time.Second
	MaxTimeout     = 300 * time.Second

	maxAttempts    = 5
	initialBackoff = time.Second
	maxBackoff     = 60 * time.Second
	retryDeadline  = 10 * time.Minute

	apiPrefix = "/api/4.0"
)

// Config holds the connection settings for one Looker instance.
type Config struct {
	// BaseURL is the instance URL, e.g. https://company.looker.com.
	BaseURL string
	// ClientID and ClientSecret are API3 credentials.
	ClientID     string
	ClientSecret string
	// Timeout is the per-call timeout (default 30s, capped at 300s).
	Timeout time.Duration
	// VerifySSL disables TLS verification when false.
	VerifySSL bool
}

// Validate checks that required connection settings are present.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("looker base URL is required")
	}
	if _, err := url.Parse(c.BaseURL); err != nil {
		return fmt.Errorf("invalid looker base URL: %w", err)
	}
	if c.ClientID == "" || c.ClientSecret == "" {
		return errors.New("looker client credentials are required")
	}
	return nil
}

// Client is the shared Looker API client. Safe for concurrent use: all
// mutability is confined to the token cache (one mutex) and the adaptive
// multiplier inside the rate limiter.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *ratelimit.Limiter
	logger  *log.Logger

	tokenMu     sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewClient creates a client sharing the given rate limiter across all
// callers. A nil logger is replaced with a no-op logger.
func NewClient(cfg Config, limiter *ratelimit.Limiter, logger *log.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Timeout > MaxTimeout {
		cfg.Timeout = MaxTimeout
	}
	if limiter == nil {
		limiter = ratelimit.New(0, 0)
	}
	if logger == nil {
		logger = log.NewNop()
	}

	transport := http.DefaultTransport
	if !cfg.VerifySSL {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		transport = t
	}

	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout, Transport: transport},
		limiter: limiter,
		logger:  logger,
	}, nil
}

// BaseURL returns the configured instance URL.
func (c *Client) BaseURL() string {
	return strings.TrimRight(c.cfg.BaseURL, "/")
}

// Limiter exposes the shared rate limiter (for stats reporting).
func (c *Client) Limiter() *ratelimit.Limiter {
	return c.limiter
}

// authToken returns a cached API token, logging in when absent or expired.
func (c *Client) authToken(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry.Add(-30*time.Second)) {
		return c.token, nil
	}

	form := url.Values{}
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.BaseURL()+apiPrefix+"/login", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("looker login: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("looker login: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{Code: resp.StatusCode, Body: truncate(string(body))}
	}

	var login struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &login); err != nil {
		return "", fmt.Errorf("looker login: decoding response: %w", err)
	}
	if login.AccessToken == "" {
		return "", fmt.Errorf("looker login: empty access token")
	}

	c.token = login.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(login.ExpiresIn) * time.Second)
	return c.token, nil
}

// invalidateToken drops the cached token so the next call re-authenticates.
func (c *Client) invalidateToken() {
	c.tokenMu.Lock()
	c.token = ""
	c.tokenMu.Unlock()
}

// do performs one API call under the full per-call contract: rate limiter
// acquisition before each attempt, exponential backoff with jitter on
// transient failures, fail-fast on validation and not-found, and limiter
// feedback on 429s and successes. Returns the raw response body.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte) ([]byte, error) {
	deadline := time.Now().Add(retryDeadline)
	backoff := initialBackoff

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			// Jittered exponential backoff between attempts.
			sleep := backoff/2 + time.Duration(rand.Int63n(int64(backoff/2)+1))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(sleep):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
		if time.Now().After(deadline) {
			break
		}

		if err := c.limiter.Acquire(ctx); err != nil {
			return nil, err
		}

		respBody, err := c.once(ctx, method, path, query, body)
		if err == nil {
			c.limiter.OnSuccess()
			return respBody, nil
		}
		lastErr = err

		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			if statusErr.Code == http.StatusTooManyRequests {
				c.limiter.On429()
				c.logger.Warn("looker rate limited", map[string]any{
					"path": path, "attempt": attempt,
				})
				continue
			}
			if statusErr.Code == http.StatusUnauthorized {
				// Expired token; drop it so the next attempt re-authenticates.
				c.invalidateToken()
				continue
			}
			if !retriable(statusErr.Code) {
				return nil, err
			}
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		c.logger.Warn("looker call failed, retrying", map[string]any{
			"path": path, "attempt": attempt, "error": err.Error(),
		})
	}

	return nil, fmt.Errorf("%s %s: %w: %w", method, path, ErrRetriesExhausted, lastErr)
}

// once performs a single HTTP round trip.
func (c *Client) once(ctx context.Context, method, path string, query url.Values, body []byte) ([]byte, error) {
	token, err := c.authToken(ctx)
	if err != nil {
		return nil, err
	}

	u := c.BaseURL() + apiPrefix + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "token "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Body: truncate(string(respBody))}
	}
	return respBody, nil
}

func truncate(s string) string {
	const max = 512
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
