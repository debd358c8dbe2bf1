// Package shipstation pulls shipped orders from the fulfillment API and
// records them as distribution entries.
package shipstation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/silq-qms/qmsgo/internal/config"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// ErrRetriesExhausted is wrapped by errors returned after the last retry of a
// rate-limited or failing request
var ErrRetriesExhausted = errors.New("shipstation: retries exhausted")

// APIError is a non-success HTTP response from the fulfillment API
type APIError struct {
	StatusCode int
	Path       string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("shipstation %s: HTTP %d: %s", e.Path, e.StatusCode, e.Body)
}

// Retryable reports whether the status is worth another attempt
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

const maxErrorBody = 512

// Client is a minimal ShipStation REST client
type Client struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        logrus.FieldLogger

	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// NewClient creates a client from configuration
func NewClient(cfg config.ShipStationConfig, log logrus.FieldLogger) *Client {
	perMin := cfg.RequestsPerMin
	if perMin <= 0 {
		perMin = 40
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMin)), 5),
		log:        log.WithField("module", "shipstation_client"),
		maxRetries: cfg.MaxRetries,
		baseDelay:  time.Second,
		maxDelay:   30 * time.Second,
	}
}

// SetBackoff overrides the retry delays
func (c *Client) SetBackoff(base, max time.Duration) {
	c.baseDelay, c.maxDelay = base, max
}

// ListOrders returns one page of orders created in [start, end]
func (c *Client) ListOrders(ctx context.Context, start, end time.Time, page, pageSize int) (*OrdersPage, error) {
	q := url.Values{}
	q.Set("createDateStart", start.UTC().Format("2006-01-02 15:04:05"))
	q.Set("createDateEnd", end.UTC().Format("2006-01-02 15:04:05"))
	q.Set("page", strconv.Itoa(page))
	q.Set("pageSize", strconv.Itoa(pageSize))
	q.Set("sortBy", "OrderDate")
	q.Set("sortDir", "ASC")

	var out OrdersPage
	if err := c.get(ctx, "/orders", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetOrder returns full order detail
func (c *Client) GetOrder(ctx context.Context, orderID int64) (*Order, error) {
	var out Order
	if err := c.get(ctx, "/orders/"+strconv.FormatInt(orderID, 10), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListShipments returns one page of shipments for an order
func (c *Client) ListShipments(ctx context.Context, orderID int64, page, pageSize int) (*ShipmentsPage, error) {
	q := url.Values{}
	q.Set("orderId", strconv.FormatInt(orderID, 10))
	q.Set("includeShipmentItems", "true")
	q.Set("page", strconv.Itoa(page))
	q.Set("pageSize", strconv.Itoa(pageSize))

	var out ShipmentsPage
	if err := c.get(ctx, "/shipments", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// get performs a GET with retries on 429, 5xx and transport errors
func (c *Client) get(ctx context.Context, path string, q url.Values, out interface{}) error {
	endpoint := c.baseURL + path
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		retryAfter, err := c.do(ctx, endpoint, path, out)
		if err == nil {
			return nil
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Retryable() {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err

		if attempt >= c.maxRetries {
			return fmt.Errorf("%w: %s after %d attempts: %w", ErrRetriesExhausted, path, attempt+1, lastErr)
		}

		delay := c.backoff(attempt, retryAfter)
		c.log.WithFields(logrus.Fields{
			"path":    path,
			"attempt": attempt + 1,
			"delay":   delay.String(),
			"error":   err,
		}).Warn("retrying shipstation request")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// do sends one request and returns the server's requested wait, if any
func (c *Client) do(ctx context.Context, endpoint, path string, out interface{}) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, err
	}
	req.SetBasicAuth(c.apiKey, c.apiSecret)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("shipstation %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return retryAfter(resp.Header), &APIError{
			StatusCode: resp.StatusCode,
			Path:       path,
			Body:       strings.TrimSpace(string(body)),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return 0, fmt.Errorf("decode shipstation %s: %w", path, err)
	}
	return 0, nil
}

func (c *Client) backoff(attempt int, hint time.Duration) time.Duration {
	d := c.baseDelay << uint(attempt)
	if d <= 0 || d > c.maxDelay {
		d = c.maxDelay
	}
	if hint > d {
		d = hint
	}
	if d > c.maxDelay {
		d = c.maxDelay
	}
	return d
}

// retryAfter reads Retry-After or ShipStation's X-Rate-Limit-Reset (seconds)
func retryAfter(h http.Header) time.Duration {
	for _, name := range []string{"Retry-After", "X-Rate-Limit-Reset"} {
		if v := strings.TrimSpace(h.Get(name)); v != "" {
			if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
				return time.Duration(secs) * time.Second
			}
		}
	}
	return 0
}
