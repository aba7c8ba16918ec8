package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ent0n29/skinlens/internal/config"
	"github.com/ent0n29/skinlens/internal/imaging"
	"github.com/ent0n29/skinlens/internal/relay"
)

func TestBuildInMemory(t *testing.T) {
	cfg := config.Config{
		MetricsNamespace:      "test_build",
		AnalysisAPIBaseURL:    "http://127.0.0.1:1",
		AnalysisAPITimeout:    time.Second,
		RelayTTL:              15 * time.Minute,
		RelaySweepInterval:    time.Minute,
		RelayPollInterval:     2 * time.Second,
		UploadMaxBytes:        1 << 20,
		TranscodeMode:         "reencode",
		TranscodeQuality:      80,
		TranscodeMaxDimension: 2048,
	}

	res, err := Build(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			t.Fatalf("Cleanup() error = %v", err)
		}
	}()

	if res.Store.Mode() != "in-memory" {
		t.Fatalf("store mode = %q, want in-memory", res.Store.Mode())
	}
	if _, ok := res.Store.(*relay.MemoryStore); !ok {
		t.Fatalf("store type = %T, want *relay.MemoryStore", res.Store)
	}
	if _, ok := res.Transcoder.(*imaging.Reencoder); !ok {
		t.Fatalf("transcoder type = %T, want *imaging.Reencoder", res.Transcoder)
	}
	if got := res.Analyzer.Endpoint(); got != "http://127.0.0.1:1/analyze" {
		t.Fatalf("analyzer endpoint = %q, want %q", got, "http://127.0.0.1:1/analyze")
	}

	ctx, cancel := context.WithCancel(context.Background())
	res.StartJanitor(ctx)
	cancel()
}

func TestNewTranscoderOff(t *testing.T) {
	if _, ok := newTranscoder(config.Config{TranscodeMode: "OFF"}).(imaging.Passthrough); !ok {
		t.Fatalf("TRANSCODE_MODE=off should select Passthrough")
	}
}

func TestExpirySweepRefreshesRelayGauge(t *testing.T) {
	cfg := config.Config{
		MetricsNamespace:   "test_expiry",
		AnalysisAPIBaseURL: "http://127.0.0.1:1",
		AnalysisAPITimeout: time.Second,
		RelayTTL:           20 * time.Millisecond,
		TranscodeMode:      "off",
	}
	res, err := Build(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer res.Cleanup()

	if err := res.Store.Put(context.Background(), "abc123", []byte("img"), "image/jpeg"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	res.Metrics.RelayEntries.Set(1)

	time.Sleep(60 * time.Millisecond)
	mem := res.Store.(*relay.MemoryStore)
	if expired := mem.Sweep(); len(expired) != 1 {
		t.Fatalf("Sweep() = %v, want one expired entry", expired)
	}

	rec := httptest.NewRecorder()
	res.Metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	if !strings.Contains(body, "test_expiry_relay_entries 0") {
		t.Fatalf("relay_entries not refreshed after expiry:\n%s", body)
	}
	if !strings.Contains(body, `test_expiry_relay_events_total{event="expired"} 1`) {
		t.Fatalf("expired event not counted:\n%s", body)
	}
}
