package api

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// Validation failures must reject before any storage access, so these
// handlers run with a nil store.

func TestErrors_ListRejectsInvalidStatusFilter(t *testing.T) {
	h := NewErrorHandler(nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/errors?status=bogus", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestErrors_UpdateStatusRejectsUnknownStatus(t *testing.T) {
	h := NewErrorHandler(nil, nil)

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/errors/grp-1/status",
		strings.NewReader(`{"status": "archived"}`))
	rec := httptest.NewRecorder()
	h.UpdateStatus(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestErrors_UpdateStatusRejectsMalformedBody(t *testing.T) {
	h := NewErrorHandler(nil, nil)

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/errors/grp-1/status",
		strings.NewReader(`{`))
	rec := httptest.NewRecorder()
	h.UpdateStatus(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestErrors_ListPerformanceRequiresDSN(t *testing.T) {
	h := NewErrorHandler(nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/performance", nil)
	rec := httptest.NewRecorder()
	h.ListPerformance(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestAlerts_CreateRuleValidation(t *testing.T) {
	h := NewAlertHandler(nil)

	cases := []struct {
		name string
		body string
	}{
		{"missing dsn", `{"name": "n", "type": "new_error", "recipients": ["a@b.c"]}`},
		{"missing name", `{"dsn": "p", "type": "new_error", "recipients": ["a@b.c"]}`},
		{"unknown type", `{"dsn": "p", "name": "n", "type": "volume", "recipients": ["a@b.c"]}`},
		{"threshold rule without threshold", `{"dsn": "p", "name": "n", "type": "error_threshold", "recipients": ["a@b.c"]}`},
		{"no recipients", `{"dsn": "p", "name": "n", "type": "new_error"}`},
		{"negative cooldown", `{"dsn": "p", "name": "n", "type": "new_error", "recipients": ["a@b.c"], "cooldown_minutes": -5}`},
		{"malformed body", `{`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/alerts/rules",
				strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			h.CreateRule(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestAlerts_UpdateRuleValidation(t *testing.T) {
	h := NewAlertHandler(nil)

	cases := []struct {
		name string
		body string
	}{
		{"zero threshold", `{"threshold": 0}`},
		{"negative cooldown", `{"cooldown_minutes": -1}`},
		{"malformed body", `{`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPatch, "/api/v1/alerts/rules/rule-1",
				strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			h.UpdateRule(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func multipartUpload(t *testing.T, fields map[string]string, filename, content string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("creating form file: %v", err)
		}
		fw.Write([]byte(content))
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sourcemap", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestSourceMaps_UploadValidation(t *testing.T) {
	h := NewSourceMapHandler(nil)

	cases := []struct {
		name     string
		fields   map[string]string
		filename string
		content  string
	}{
		{"missing dsn", map[string]string{"version": "1.0.0"}, "a.js.map", `{"version":3,"mappings":"AAAA"}`},
		{"missing version", map[string]string{"dsn": "proj-1"}, "a.js.map", `{"version":3,"mappings":"AAAA"}`},
		{"missing file", map[string]string{"dsn": "proj-1", "version": "1.0.0"}, "", ""},
		{"not json", map[string]string{"dsn": "proj-1", "version": "1.0.0"}, "a.js.map", "console.log(1)"},
		{"json without mappings", map[string]string{"dsn": "proj-1", "version": "1.0.0"}, "a.js.map", `{"version": 3}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.Upload(rec, multipartUpload(t, tc.fields, tc.filename, tc.content))

			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestSourceMaps_ListRequiresDSN(t *testing.T) {
	h := NewSourceMapHandler(nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sourcemaps", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
