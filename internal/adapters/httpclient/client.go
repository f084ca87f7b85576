package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/alejandrodnm/dexscalper/internal/domain"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultRetryWait = 500 * time.Millisecond
)

// StatusError es una respuesta 4xx: el servidor rechazó la petición y reintentar no sirve.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("client error %d: %s", e.Code, e.Body)
}

// Config configura un Client.
type Config struct {
	BaseURL    string
	RatePerSec float64 // 0 = sin límite
	Burst      int
	MaxRetries int
	RetryWait  time.Duration
	Timeout    time.Duration
	Headers    map[string]string
}

// Client es un HTTP client JSON con rate limiting y retries.
// Los fallos de transporte, 429 y 5xx agotados envuelven domain.ErrNetwork.
type Client struct {
	http       *http.Client
	base       string
	limiter    *rate.Limiter
	maxRetries int
	retryWait  time.Duration
	headers    map[string]string
}

// New crea un Client.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = defaultRetryWait
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &Client{
		http:       &http.Client{Timeout: cfg.Timeout},
		base:       strings.TrimRight(cfg.BaseURL, "/"),
		limiter:    rate.NewLimiter(limit, cfg.Burst),
		maxRetries: cfg.MaxRetries,
		retryWait:  cfg.RetryWait,
		headers:    cfg.Headers,
	}
}

// BaseURL devuelve la URL base sin barra final.
func (c *Client) BaseURL() string {
	return c.base
}

// Get hace un GET a base+path con query y decodifica el JSON en out.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return c.doWithRetry(ctx, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		c.setHeaders(req)
		return c.http.Do(req)
	}, out)
}

// Post hace un POST JSON a base+path y decodifica el JSON en out.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}
	return c.doWithRetry(ctx, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(b))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		c.setHeaders(req)
		return c.http.Do(req)
	}, out)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
}

// doWithRetry ejecuta la función con backoff exponencial, respetando el contexto.
func (c *Client) doWithRetry(ctx context.Context, fn func() (*http.Response, error), out any) error {
	var lastErr error
	bo := c.retryBackOff()
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w: %w", domain.ErrNetwork, err)
		}

		resp, err := fn()
		if err != nil {
			lastErr = err
			if attempt < c.maxRetries {
				c.sleep(ctx, bo)
			}
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("server status %d", resp.StatusCode)
			if resp.StatusCode == http.StatusTooManyRequests {
				slog.Warn("rate limited by API", "host", c.base, "attempt", attempt+1)
			}
			if attempt < c.maxRetries {
				c.sleep(ctx, bo)
			}
			continue
		}

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		}

		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("request failed after %d retries: %w: %w", c.maxRetries, domain.ErrNetwork, lastErr)
}

// retryBackOff duplica la espera en cada reintento: retryWait, 2x, 4x...
func (c *Client) retryBackOff() backoff.BackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     c.retryWait,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         backoff.DefaultMaxInterval,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	return b
}

// sleep espera el siguiente intervalo de bo, respetando el contexto.
func (c *Client) sleep(ctx context.Context, bo backoff.BackOff) {
	t := time.NewTimer(bo.NextBackOff())
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
