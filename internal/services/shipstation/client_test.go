package shipstation

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/silq-qms/qmsgo/internal/config"
	"github.com/silq-qms/qmsgo/internal/testutil"
)

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c := NewClient(config.ShipStationConfig{
		URL:            srv.URL,
		APIKey:         "key",
		APISecret:      "secret",
		MaxRetries:     2,
		RequestsPerMin: 600000,
	}, testutil.Logger(t))
	c.SetBackoff(time.Millisecond, 5*time.Millisecond)
	return c, srv
}

func TestClientRetriesRateLimit(t *testing.T) {
	var calls int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if user, pass, ok := r.BasicAuth(); !ok || user != "key" || pass != "secret" {
			t.Errorf("missing basic auth")
		}
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"orders":[{"orderId":7,"orderNumber":"SO-7"}],"total":1,"page":1,"pages":1}`))
	})

	page, err := c.ListOrders(context.Background(), time.Now().Add(-time.Hour), time.Now(), 1, 100)
	if err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
	if len(page.Orders) != 1 || page.Orders[0].OrderNumber != "SO-7" {
		t.Errorf("unexpected page: %+v", page)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("expected 2 calls, got %d", got)
	}
}

func TestClientRetriesExhausted(t *testing.T) {
	var calls int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.GetOrder(context.Background(), 42)
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("expected ErrRetriesExhausted, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected wrapped 503 APIError, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestClientDoesNotRetryAuthFailure(t *testing.T) {
	var calls int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("bad credentials"))
	})

	_, err := c.ListShipments(context.Background(), 1, 1, 100)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 APIError, got %v", err)
	}
	if errors.Is(err, ErrRetriesExhausted) {
		t.Errorf("401 should not be retried")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("expected 1 call, got %d", got)
	}
}

func TestClientSendsShipmentQuery(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/shipments" {
			t.Errorf("path = %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("orderId") != "99" || q.Get("includeShipmentItems") != "true" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"shipments":[{"shipmentId":5,"shipDate":"2025-05-02","voided":false}],"pages":1}`))
	})

	page, err := c.ListShipments(context.Background(), 99, 1, 50)
	if err != nil {
		t.Fatalf("ListShipments: %v", err)
	}
	if len(page.Shipments) != 1 || page.Shipments[0].ShipmentID != 5 {
		t.Errorf("unexpected shipments: %+v", page.Shipments)
	}
}
