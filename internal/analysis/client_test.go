package analysis

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestClientForwardsBodyAndContentType(t *testing.T) {
	var gotPath, gotType string
	var gotBody []byte
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"concerns":{"acne":{"score":4,"severity":"Medium","advice":"wash"}},"latency_ms":12}`))
	}))
	defer upstream.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, _ := mw.CreateFormFile("file", "face.jpg")
	_, _ = fw.Write([]byte("jpegbytes"))
	_ = mw.WriteField("user_condition", "acne")
	_ = mw.Close()
	sent := body.Bytes()

	c := NewClient(upstream.URL+"/", time.Second)
	raw, err := c.Forward(context.Background(), bytes.NewReader(sent), mw.FormDataContentType())
	if err != nil {
		t.Fatalf("Forward() error = %v", err)
	}
	if gotPath != "/analyze" {
		t.Fatalf("path = %q, want %q", gotPath, "/analyze")
	}
	if gotType != mw.FormDataContentType() {
		t.Fatalf("content type = %q, want %q", gotType, mw.FormDataContentType())
	}
	if !bytes.Equal(gotBody, sent) {
		t.Fatalf("upstream body differs from forwarded body")
	}

	report, err := Summarize(raw)
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if len(report.Concerns) != 1 || report.Concerns["acne"].Severity != "Medium" {
		t.Fatalf("report = %+v", report)
	}
	if report.LatencyMS != 12 {
		t.Fatalf("LatencyMS = %v, want 12", report.LatencyMS)
	}
}

func TestClientUpstreamErrorMessage(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("overloaded"))
	}))
	defer upstream.Close()

	_, err := NewClient(upstream.URL, time.Second).Forward(context.Background(), strings.NewReader("x"), "text/plain")
	var upErr *UpstreamError
	if !errors.As(err, &upErr) {
		t.Fatalf("Forward() error = %v, want *UpstreamError", err)
	}
	if upErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("StatusCode = %d, want %d", upErr.StatusCode, http.StatusServiceUnavailable)
	}
	if upErr.Error() != "API error 503: overloaded" {
		t.Fatalf("Error() = %q", upErr.Error())
	}
}

func TestClientRejectsInvalidJSON(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>"))
	}))
	defer upstream.Close()

	_, err := NewClient(upstream.URL, time.Second).Forward(context.Background(), strings.NewReader("x"), "text/plain")
	if err == nil {
		t.Fatalf("Forward() expected error for invalid JSON")
	}
	var upErr *UpstreamError
	if errors.As(err, &upErr) {
		t.Fatalf("Forward() error should not be an upstream error: %v", err)
	}
}

func TestNewClientDefaultsEndpoint(t *testing.T) {
	c := NewClient("", 0)
	if c.Endpoint() != DefaultBaseURL+"/analyze" {
		t.Fatalf("Endpoint() = %q", c.Endpoint())
	}
}

func TestRedactPII(t *testing.T) {
	got := RedactPII("dry skin, mail me at jane@example.com or +1 (555) 123-4567")
	if strings.Contains(got, "jane@example.com") || strings.Contains(got, "555") {
		t.Fatalf("RedactPII() leaked PII: %q", got)
	}
	if !strings.Contains(got, "[REDACTED_EMAIL]") || !strings.Contains(got, "[REDACTED_PHONE]") {
		t.Fatalf("RedactPII() = %q, missing markers", got)
	}

	long := strings.Repeat("a", 500)
	if n := len([]rune(RedactPII(long))); n != maxLoggedCondition+1 {
		t.Fatalf("clipped length = %d, want %d", n, maxLoggedCondition+1)
	}
}

func TestReportHelpers(t *testing.T) {
	r := Report{Concerns: map[string]Concern{
		"wrinkles": {Severity: "Low"},
		"acne":     {Severity: "High"},
	}}
	names := r.ConcernNames()
	if len(names) != 2 || names[0] != "acne" {
		t.Fatalf("ConcernNames() = %v", names)
	}
	if r.HighSeverity() != 1 {
		t.Fatalf("HighSeverity() = %d, want 1", r.HighSeverity())
	}
}
