// Package restsource extracts bill lists and details from the JSON services of
// the 2021-2026 legislative portal.
package restsource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/openpolitica/proyectos-ley/internal/crawler"
	"github.com/openpolitica/proyectos-ley/internal/metrics"
)

const (
	defaultTimeout = 60 * time.Second
	adapterLabel   = "rest"
	statusSuccess  = "success"
)

// Config controls the shared HTTP client.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Client is the resty client shared by the list and metadata extractors.
type Client struct {
	http   *resty.Client
	waiter crawler.Waiter
	logger *zap.Logger
}

// NewClient builds a Client. waiter may be nil.
func NewClient(cfg Config, waiter crawler.Waiter, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := resty.New()
	c.SetTimeout(cfg.Timeout)
	if cfg.UserAgent != "" {
		c.SetHeader("User-Agent", cfg.UserAgent)
	}
	return &Client{http: c, waiter: waiter, logger: logger}
}

// envelope is the wrapper every portal service answers with.
type envelope struct {
	Code   int             `json:"code"`
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}

// do sends req and returns the raw response. Transport failures wrap
// crawler.ErrTransientFetch.
func (c *Client) do(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	if c.waiter != nil {
		if err := c.waiter.Wait(ctx, url); err != nil {
			return nil, err
		}
	}
	start := time.Now()
	resp, err := req.SetContext(ctx).Execute(method, url)
	if err != nil {
		metrics.ObserveRequest(url, adapterLabel, 0, 0, time.Since(start))
		return nil, fmt.Errorf("%s %s: %w: %w", method, url, crawler.ErrTransientFetch, err)
	}
	metrics.ObserveRequest(url, adapterLabel, resp.StatusCode(), len(resp.Body()), resp.Time())
	c.logger.Debug("portal response",
		zap.String("method", method),
		zap.String("url", url),
		zap.Int("status", resp.StatusCode()),
		zap.Duration("duration", resp.Time()),
	)
	return resp, nil
}

// decodeEnvelope checks the HTTP status and the body-level code and status,
// returning the data payload.
func decodeEnvelope(resp *resty.Response) (json.RawMessage, error) {
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("status %d: %w", resp.StatusCode(), crawler.ErrTransientFetch)
	}
	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w: %w", crawler.ErrTransientFetch, err)
	}
	if env.Code != http.StatusOK || env.Status != statusSuccess {
		return nil, fmt.Errorf("envelope code %d status %q: %w", env.Code, env.Status, crawler.ErrTransientFetch)
	}
	return env.Data, nil
}

// flexInt accepts a JSON number or a numeric string.
type flexInt int

func (n *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		*n = 0
		return nil
	}
	v, err := strconv.Atoi(string(data))
	if err != nil {
		return fmt.Errorf("decode number %q: %w", data, err)
	}
	*n = flexInt(v)
	return nil
}
