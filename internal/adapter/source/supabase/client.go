// Package supabase reads tables from a PostgREST endpoint (Supabase REST API)
// one page at a time.
package supabase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"github.com/mmcdole/tablesync/internal/domain"
	"github.com/mmcdole/tablesync/internal/metrics"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout = 30 * time.Second
	userAgent      = "tablesync/1.0"
	bodyExcerpt    = 256
)

// Config holds the connection settings for a Client
type Config struct {
	URL               string        // Project URL, e.g. https://xyz.supabase.co
	Key               string        // Sent as apikey and bearer token
	Timeout           time.Duration // Per-request timeout
	RequestsPerSecond float64       // 0 = unlimited
	BreakerName       string        // Defaults to "supabase"
}

// Client implements domain.PageReader for a PostgREST endpoint
type Client struct {
	baseURL    string
	key        string
	httpClient *http.Client
	limiter    *rate.Limiter
	cb         *gobreaker.CircuitBreaker[[]domain.Row]
	logger     *slog.Logger
}

// NewClient creates a new REST table client.
// Circuit breaker configuration:
// - Max 3 concurrent requests in half-open state
// - 1 minute measurement window
// - 2 minute timeout before attempting recovery
// - Opens after 60% failure rate with minimum 10 requests
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.BreakerName == "" {
		cfg.BreakerName = "supabase"
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	c := &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		key:     cfg.Key,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}

	metrics.CircuitBreakerState.WithLabelValues(cfg.BreakerName).Set(0)

	c.cb = gobreaker.NewCircuitBreaker[[]domain.Row](gobreaker.Settings{
		Name:        cfg.BreakerName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			if ratio >= 0.6 {
				logger.Warn("opening circuit breaker", "failures", counts.TotalFailures, "failure_rate", ratio*100)
				return true
			}
			return false
		},
		// Only unreachability counts against the breaker; a rejected key or a
		// missing table is an answer from a healthy server.
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, domain.ErrServerOffline)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})

	return c
}

// Reachable reports whether requests are currently let through. It turns
// false once the breaker opens and recovers after a successful probe.
func (c *Client) Reachable() bool {
	return c.cb.State() != gobreaker.StateOpen
}

// ReadPage returns rows [offset, offset+limit) of table
func (c *Client) ReadPage(ctx context.Context, table string, offset, limit int, order *domain.Order) ([]domain.Row, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	rows, err := c.cb.Execute(func() ([]domain.Row, error) {
		body, err := c.doRequest(ctx, table, pageQuery(offset, limit, order))
		if err != nil {
			return nil, err
		}
		return c.parseRows(body)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		c.logger.Warn("request rejected by circuit breaker", "table", table, "error", err)
		return nil, fmt.Errorf("%w: %w", domain.ErrServerOffline, err)
	}
	return rows, err
}

// pageQuery builds the PostgREST query for one page
func pageQuery(offset, limit int, order *domain.Order) url.Values {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))
	if order != nil && order.Column != "" {
		q.Set("order", orderParam(order))
	}
	return q
}

// orderParam formats an Order as "col.asc.nullslast"
func orderParam(o *domain.Order) string {
	dir := "desc"
	if o.Ascending {
		dir = "asc"
	}
	nulls := "nullslast"
	if o.NullsFirst {
		nulls = "nullsfirst"
	}
	return o.Column + "." + dir + "." + nulls
}

// doRequest performs an authenticated GET against /rest/v1/{table}
func (c *Client) doRequest(ctx context.Context, table string, query url.Values) ([]byte, error) {
	reqURL := fmt.Sprintf("%s/rest/v1/%s?%s", c.baseURL, url.PathEscape(table), query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("apikey", c.key)
	req.Header.Set("Authorization", "Bearer "+c.key)
	req.Header.Set("User-Agent", userAgent)

	c.logger.Debug("page request", "table", table, "offset", query.Get("offset"), "limit", query.Get("limit"))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.logger.Error("page request failed", "table", table, "error", err)
		return nil, fmt.Errorf("%w: %w", domain.ErrServerOffline, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %w", domain.ErrServerOffline, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, domain.ErrAuthFailed
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", domain.ErrDatasetNotFound, table)
	case resp.StatusCode >= 500:
		c.logger.Error("page request error", "table", table, "status", resp.StatusCode, "body", excerpt(body))
		return nil, fmt.Errorf("%w: status %d: %s", domain.ErrServerOffline, resp.StatusCode, excerpt(body))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		c.logger.Error("page request error", "table", table, "status", resp.StatusCode, "body", excerpt(body))
		return nil, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, excerpt(body))
	}

	return body, nil
}

// parseRows decodes a JSON array of rows, keeping numbers as json.Number so
// integer ids survive unchanged
func (c *Client) parseRows(body []byte) ([]domain.Row, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var rows []domain.Row
	if err := dec.Decode(&rows); err != nil {
		c.logger.Error("JSON parse error", "error", err, "bodyLen", len(body))
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if rows == nil {
		rows = []domain.Row{}
	}
	return rows, nil
}

func excerpt(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) <= bodyExcerpt {
		return s
	}
	cut := bodyExcerpt
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// stateToFloat converts circuit breaker state to numeric value for metrics
func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
