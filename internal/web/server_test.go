package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/JonMunkholm/testcatalog/internal/blob/fs"
	"github.com/JonMunkholm/testcatalog/internal/config"
	"github.com/JonMunkholm/testcatalog/internal/core"
	"github.com/JonMunkholm/testcatalog/internal/export"
	"github.com/JonMunkholm/testcatalog/internal/metrics"
	"github.com/JonMunkholm/testcatalog/internal/store/memory"
)

const catalogCSV = "name,category,subCategory,cptCode\n" +
	"CBC,Laboratory Tests,Hematology,85027\n" +
	"MRI Brain,Imaging Studies,Magnetic Resonance Imaging,70551\n"

func testConfig() *config.Config {
	return &config.Config{
		Import: config.ImportConfig{MaxFileSize: 1 << 20},
		Export: config.ExportConfig{DualResource: true},
	}
}

type fixture struct {
	srv   *Server
	store *memory.Store
}

func newFixture(t *testing.T, cfg *config.Config, opts ...Option) *fixture {
	t.Helper()
	store := memory.New()
	svc := core.NewService(store, store)
	return &fixture{srv: NewServer(svc, cfg, opts...), store: store}
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.srv.Router().ServeHTTP(rec, req)
	return rec
}

func (f *fixture) importCSV(t *testing.T, body string) importResponse {
	t.Helper()
	rec := f.do(httptest.NewRequest(http.MethodPost, "/api/import?filename=catalog.csv", strings.NewReader(body)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("import status = %d, body = %s", rec.Code, rec.Body)
	}
	var resp importResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode import response: %v", err)
	}
	return resp
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body, err)
	}
	return body
}

// ============================================================================
// Import Tests
// ============================================================================

func TestImport_RawBody(t *testing.T) {
	f := newFixture(t, testConfig())
	resp := f.importCSV(t, catalogCSV)

	if resp.Session.Filename != "catalog.csv" || resp.Session.SuccessCount != 2 {
		t.Errorf("session = %+v", resp.Session)
	}
	if resp.Session.Status != core.SessionCompleted {
		t.Errorf("status = %s", resp.Session.Status)
	}
	if len(resp.Entries) != 2 || resp.Error != nil {
		t.Errorf("entries = %d, error = %+v", len(resp.Entries), resp.Error)
	}
}

func TestImport_Multipart(t *testing.T) {
	f := newFixture(t, testConfig())

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, _ := mw.CreateFormFile("file", "upload.csv")
	_, _ = part.Write([]byte("\xEF\xBB\xBF" + catalogCSV))
	_ = mw.WriteField("policy", "update")
	_ = mw.WriteField("notes", "initial load")
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := f.do(req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	var resp importResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Session.Filename != "upload.csv" || resp.Session.Policy != core.PolicyUpdate {
		t.Errorf("session = %+v", resp.Session)
	}
	if resp.Session.Notes != "initial load" || resp.Session.SuccessCount != 2 {
		t.Errorf("session = %+v", resp.Session)
	}
}

func TestImport_DuplicateSkipped(t *testing.T) {
	f := newFixture(t, testConfig())
	f.importCSV(t, catalogCSV)
	resp := f.importCSV(t, catalogCSV)

	if resp.Session.DuplicateCount != 2 || resp.Session.SuccessCount != 0 {
		t.Errorf("second session = %+v", resp.Session)
	}
	for _, e := range resp.Entries {
		if e.Operation != core.OpSkip || e.Status != core.StatusDuplicate {
			t.Errorf("entry = %s/%s, want skip/duplicate", e.Operation, e.Status)
		}
	}
}

func TestImport_EmptyFile(t *testing.T) {
	f := newFixture(t, testConfig())
	rec := f.do(httptest.NewRequest(http.MethodPost, "/api/import", strings.NewReader("")))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	var resp importResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.ImportSessionResult == nil || resp.Session.Status != core.SessionFailed {
		t.Errorf("response = %s", rec.Body)
	}
	if resp.Error == nil || resp.Error.Code != "FILE005" {
		t.Errorf("error = %+v", resp.Error)
	}
}

func TestImport_Errors(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		body     string
		maxSize  int64
		wantCode int
		wantMsg  string
	}{
		{"bad policy", "/api/import?policy=overwrite", catalogCSV, 1 << 20, http.StatusBadRequest, "IMP006"},
		{"too large", "/api/import", catalogCSV, 10, http.StatusRequestEntityTooLarge, "FILE001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Import.MaxFileSize = tt.maxSize
			f := newFixture(t, cfg)

			rec := f.do(httptest.NewRequest(http.MethodPost, tt.url, strings.NewReader(tt.body)))
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantCode, rec.Body)
			}
			if got := decodeError(t, rec).Code; got != tt.wantMsg {
				t.Errorf("code = %s, want %s", got, tt.wantMsg)
			}
		})
	}
}

func TestPreview_WritesNothing(t *testing.T) {
	f := newFixture(t, testConfig())
	rec := f.do(httptest.NewRequest(http.MethodPost, "/api/import/preview", strings.NewReader(catalogCSV)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	var resp importResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if !resp.DryRun || resp.Session.SuccessCount != 2 {
		t.Errorf("preview = %+v", resp.Session)
	}

	snap, _ := f.store.Snapshot(context.Background())
	sessions, _ := f.store.ListSessions(context.Background(), 0)
	if len(snap) != 0 || len(sessions) != 0 {
		t.Errorf("preview wrote %d records and %d sessions", len(snap), len(sessions))
	}
}

// ============================================================================
// Session Tests
// ============================================================================

func TestSessions(t *testing.T) {
	f := newFixture(t, testConfig())
	id := f.importCSV(t, catalogCSV).Session.ID

	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/sessions", nil))
	var list struct {
		Sessions []core.ImportSession `json:"sessions"`
		Count    int                  `json:"count"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &list)
	if list.Count != 1 || list.Sessions[0].ID != id {
		t.Errorf("sessions = %s", rec.Body)
	}

	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/sessions/"+id, nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"completed"`) {
		t.Errorf("get session = %d %s", rec.Code, rec.Body)
	}

	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/sessions/"+id+"/audit", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"count":2`) {
		t.Errorf("audit json = %d %s", rec.Code, rec.Body)
	}

	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/sessions/"+id+"/audit?format=csv", nil))
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("audit csv content type = %q", ct)
	}
	if lines := strings.Count(rec.Body.String(), "\n"); lines != 3 {
		t.Errorf("audit csv lines = %d, want 3", lines)
	}
}

func TestSessions_NotFound(t *testing.T) {
	f := newFixture(t, testConfig())
	for _, path := range []string{"/api/sessions/missing", "/api/sessions/missing/audit"} {
		rec := f.do(httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("GET %s = %d, want 404", path, rec.Code)
		}
		if got := decodeError(t, rec).Code; got != "IMP003" {
			t.Errorf("GET %s code = %s", path, got)
		}
	}
}

func TestSessions_BadLimit(t *testing.T) {
	f := newFixture(t, testConfig())
	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/sessions?limit=-1", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

// ============================================================================
// Catalog Tests
// ============================================================================

func TestListTests_Filter(t *testing.T) {
	f := newFixture(t, testConfig())
	f.importCSV(t, catalogCSV)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/tests?category=imaging+studies", nil))
	var body struct {
		Tests []core.TestRecord `json:"tests"`
		Count int               `json:"count"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Count != 1 || body.Tests[0].ID != "TTES-IMG-MRI-70551" {
		t.Errorf("tests = %s", rec.Body)
	}
}

func TestListCategories(t *testing.T) {
	f := newFixture(t, testConfig())
	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/categories", nil))

	var cats []categoryView
	if err := json.Unmarshal(rec.Body.Bytes(), &cats); err != nil {
		t.Fatal(err)
	}
	imaging := 0
	for _, c := range cats {
		if c.Imaging {
			imaging++
			if c.Name != core.ImagingCategory {
				t.Errorf("imaging category = %s", c.Name)
			}
		}
	}
	if len(cats) == 0 || imaging != 1 {
		t.Errorf("categories = %d, imaging = %d", len(cats), imaging)
	}
}

func TestHealth(t *testing.T) {
	cfg := testConfig()
	f := newFixture(t, cfg)
	if rec := f.do(httptest.NewRequest(http.MethodGet, "/healthz", nil)); rec.Code != http.StatusOK {
		t.Errorf("healthz = %d", rec.Code)
	}

	down := newFixture(t, cfg, WithHealthCheck(func(context.Context) error { return errors.New("connection refused") }))
	rec := down.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable || decodeError(t, rec).Code != "DB004" {
		t.Errorf("unhealthy = %d %s", rec.Code, rec.Body)
	}
}

// ============================================================================
// Export Tests
// ============================================================================

func TestExport_Formats(t *testing.T) {
	f := newFixture(t, testConfig())
	f.importCSV(t, catalogCSV)

	tests := []struct {
		query       string
		contentType string
		contains    string
	}{
		{"", "text/csv", "id,name,category"},
		{"?format=legacy", "text/csv", "id,name,category"},
		{"?format=consolidated", "text/csv", "baseCptCode,familySize"},
		{"?format=json&category=Laboratory+Tests", "application/json", `"TTES-LAB-HEM-85027"`},
		{"?format=fhir", "application/fhir+json", `"total":3`},
		{"?format=fhir&dual=false", "application/fhir+json", `"total":2`},
		{"?format=fhir-ndjson", "application/fhir+ndjson", `"resourceType":"ImagingStudy"`},
		{"?format=standard&split=true", "text/csv", "baseCptCode,cptSuffix"},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := f.do(httptest.NewRequest(http.MethodGet, "/api/export"+tt.query, nil))
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
			}
			if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, tt.contentType) {
				t.Errorf("Content-Type = %q, want %q", ct, tt.contentType)
			}
			if !strings.Contains(rec.Body.String(), tt.contains) {
				t.Errorf("body missing %q:\n%s", tt.contains, rec.Body)
			}
		})
	}
}

func TestExport_InvalidRequest(t *testing.T) {
	f := newFixture(t, testConfig())
	for _, q := range []string{"?format=xml", "?category=Astrology", "?pretty=maybe"} {
		rec := f.do(httptest.NewRequest(http.MethodGet, "/api/export"+q, nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("GET /api/export%s = %d, want 400", q, rec.Code)
		}
	}
}

func TestPublish(t *testing.T) {
	sink, err := fs.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	m := metrics.New()
	f := newFixture(t, testConfig(), WithPublisher(export.NewPublisher(sink)), WithMetrics(m))
	f.importCSV(t, catalogCSV)

	req := httptest.NewRequest(http.MethodPost, "/api/export/publish", strings.NewReader(`{"format":"fhir","pretty":true}`))
	rec := f.do(req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("publish = %d %s", rec.Code, rec.Body)
	}
	var pub export.Published
	_ = json.Unmarshal(rec.Body.Bytes(), &pub)
	if pub.Format != "fhir" || pub.Count != 2 || !strings.HasPrefix(pub.Object.Key, "exports/fhir/") {
		t.Errorf("published = %+v", pub)
	}

	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/exports?format=fhir", nil))
	if !strings.Contains(rec.Body.String(), `"count":1`) {
		t.Errorf("exports = %s", rec.Body)
	}

	rec = f.do(httptest.NewRequest(http.MethodPost, "/api/export/publish", strings.NewReader(`{"format":"pdf"}`)))
	if rec.Code != http.StatusBadRequest || decodeError(t, rec).Code != "EXP002" {
		t.Errorf("invalid publish = %d %s", rec.Code, rec.Body)
	}

	rec = f.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), `testcatalog_export_publish_total{driver="fs",result="ok"} 1`) {
		t.Errorf("metrics missing publish counter")
	}
}

func TestPublish_Disabled(t *testing.T) {
	f := newFixture(t, testConfig())
	rec := f.do(httptest.NewRequest(http.MethodPost, "/api/export/publish", strings.NewReader(`{}`)))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

// ============================================================================
// Middleware Wiring Tests
// ============================================================================

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 100, ImportLimit: 1}
	f := newFixture(t, cfg)

	first := f.do(httptest.NewRequest(http.MethodPost, "/api/import", strings.NewReader(catalogCSV)))
	second := f.do(httptest.NewRequest(http.MethodPost, "/api/import", strings.NewReader(catalogCSV)))
	if first.Code != http.StatusCreated || second.Code != http.StatusTooManyRequests {
		t.Errorf("codes = %d, %d", first.Code, second.Code)
	}
	if decodeError(t, second).Code != "RATE001" {
		t.Errorf("rate limit body = %s", second.Body)
	}

	if rec := f.do(httptest.NewRequest(http.MethodGet, "/api/tests", nil)); rec.Code != http.StatusOK {
		t.Errorf("non-import route limited: %d", rec.Code)
	}
}

func TestSecurityHeaders(t *testing.T) {
	f := newFixture(t, testConfig())
	rec := f.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing nosniff header")
	}
}
