package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/silq-qms/qmsgo/internal/audit"
	"github.com/silq-qms/qmsgo/internal/customers"
	"github.com/silq-qms/qmsgo/internal/distribution"
	"github.com/silq-qms/qmsgo/internal/middleware"
	"github.com/silq-qms/qmsgo/internal/ratelimit"
	"github.com/silq-qms/qmsgo/internal/reports"
	"github.com/silq-qms/qmsgo/internal/salesorders"
	"github.com/silq-qms/qmsgo/internal/storage"
	"github.com/silq-qms/qmsgo/internal/testutil"
)

const testSecret = "handler-test-secret"

type testServer struct {
	router *Router
	token  string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db := testutil.NewDB(t)
	log := testutil.Logger(t)
	sink := audit.NewDBSink(log)
	matcher := customers.NewMatcher(log)
	store, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}

	r := NewRouter(Deps{
		DB:            db,
		Log:           log,
		JWTSecret:     testSecret,
		Audit:         sink,
		Distributions: distribution.NewService(matcher, sink, log),
		SalesOrders:   salesorders.NewImporter(matcher, sink, log),
		Reports:       reports.NewGenerator(store, sink, log),
		SyncLimiter:   ratelimit.New(1, 1, 16),
	})
	token, err := middleware.GenerateToken("qa@example.com", "admin", testSecret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	return &testServer{router: r, token: token}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func TestHealthIsPublic(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/shipstation/runs", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated api status = %d", rec.Code)
	}
}

func TestDistributionLifecycle(t *testing.T) {
	s := newTestServer(t)
	entry := distribution.ManualInput{
		ShipDate:     "2025-05-14",
		OrderNumber:  "SO-900",
		FacilityName: "Hospital A, Inc.",
		City:         "Austin",
		State:        "TX",
		Zip:          "78701",
		SKU:          "211410SPT",
		LotNumber:    "slq12345",
		Quantity:     3,
	}

	rec := s.do(t, http.MethodPost, "/api/distributions", entry)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d body=%s", rec.Code, rec.Body)
	}
	var created distribution.EntryResult
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Entry == nil || created.Entry.LotNumber != "SLQ-12345" {
		t.Fatalf("unexpected entry: %+v", created.Entry)
	}

	bad := entry
	bad.SKU = "NOPE"
	if rec := s.do(t, http.MethodPost, "/api/distributions", bad); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("invalid create status = %d", rec.Code)
	}

	path := "/api/distributions/" + strconv.FormatInt(created.Entry.ID, 10)
	if rec := s.do(t, http.MethodDelete, path, map[string]string{}); rec.Code != http.StatusBadRequest {
		t.Errorf("delete without reason status = %d", rec.Code)
	}
	if rec := s.do(t, http.MethodDelete, path, map[string]string{"reason": "entered twice"}); rec.Code != http.StatusNoContent {
		t.Errorf("delete status = %d body=%s", rec.Code, rec.Body)
	}
	if rec := s.do(t, http.MethodDelete, path, map[string]string{"reason": "again"}); rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d", rec.Code)
	}
}

func TestImportDistributionsUpload(t *testing.T) {
	s := newTestServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "distribution.csv")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	fw.Write([]byte("Ship Date,Order Number,Facility Name,SKU,Lot,Quantity\n" +
		"2025-05-01,SO-1,Clinic One,211410SPT,SLQ-11111,2\n" +
		"2025-05-02,SO-2,Clinic Two,BADSKU,SLQ-22222,1\n"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/distributions/import", &body)
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("import status = %d body=%s", rec.Code, rec.Body)
	}

	var res distribution.ImportResult
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Created != 1 || len(res.Errors) != 1 || res.Errors[0].Row != 3 {
		t.Errorf("unexpected import result: %+v", res)
	}
}

func TestTracingReportEndpoints(t *testing.T) {
	s := newTestServer(t)
	entry := distribution.ManualInput{
		ShipDate: "2025-05-14", OrderNumber: "SO-1", FacilityName: "Clinic One",
		SKU: "211610SPT", LotNumber: "SLQ-54321", Quantity: 1,
	}
	if rec := s.do(t, http.MethodPost, "/api/distributions", entry); rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}

	rec := s.do(t, http.MethodPost, "/api/tracing-reports", map[string]string{"month": "2025-05"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("generate status = %d body=%s", rec.Code, rec.Body)
	}
	var rep struct {
		ID       int64  `json:"id"`
		SHA256   string `json:"sha256"`
		RowCount int    `json:"rowCount"`
	}
	json.NewDecoder(rec.Body).Decode(&rep)
	if rep.RowCount != 1 {
		t.Errorf("row count = %d", rep.RowCount)
	}

	base := "/api/tracing-reports/" + strconv.FormatInt(rep.ID, 10)
	rec = s.do(t, http.MethodGet, base+"/download", nil)
	if rec.Code != http.StatusOK || rec.Header().Get("X-Content-SHA256") != rep.SHA256 {
		t.Errorf("download status = %d sha=%s", rec.Code, rec.Header().Get("X-Content-SHA256"))
	}
	rec = s.do(t, http.MethodGet, base+"/pdf", nil)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "application/pdf" {
		t.Errorf("pdf status = %d", rec.Code)
	}

	if rec := s.do(t, http.MethodPost, "/api/tracing-reports", map[string]string{"month": "May"}); rec.Code != http.StatusBadRequest {
		t.Errorf("bad month status = %d", rec.Code)
	}
}

func TestSyncUnavailableWithoutCredentials(t *testing.T) {
	s := newTestServer(t)
	if rec := s.do(t, http.MethodPost, "/api/shipstation/sync", nil); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("first trigger status = %d", rec.Code)
	}
	if rec := s.do(t, http.MethodPost, "/api/shipstation/sync", nil); rec.Code != http.StatusTooManyRequests {
		t.Errorf("second trigger status = %d, want 429", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, "/api/shipstation/runs/99", nil); rec.Code != http.StatusNotFound {
		t.Errorf("missing run status = %d", rec.Code)
	}
}
