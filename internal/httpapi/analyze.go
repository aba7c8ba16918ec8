package httpapi

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	gerrors "github.com/goliatone/go-errors"

	"github.com/ent0n29/skinlens/internal/analysis"
	"github.com/ent0n29/skinlens/internal/observability"
	"github.com/ent0n29/skinlens/internal/reliability"
)

func (s *Server) analyzeLimit() int64 {
	if s.cfg.AnalyzeMaxBytes > 0 {
		return s.cfg.AnalyzeMaxBytes
	}
	return defaultAnalyzeMaxBytes
}

// handleAnalyze relays the browser's multipart body to the analysis API and returns its JSON.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	limit := s.analyzeLimit()
	if r.ContentLength > limit {
		s.metrics.AnalyzeRequests.WithLabelValues("too_large").Inc()
		respondErr(w, errAnalyzeTooLarge(limit))
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.metrics.AnalyzeRequests.WithLabelValues("too_large").Inc()
			respondErr(w, errAnalyzeTooLarge(limit))
			return
		}
		s.metrics.AnalyzeRequests.WithLabelValues("error").Inc()
		respondErr(w, fmt.Errorf("read analyze body: %w", err))
		return
	}
	contentType := r.Header.Get("Content-Type")

	started := time.Now()
	raw, err := s.analyzer.Forward(r.Context(), bytes.NewReader(body), contentType)
	s.metrics.ObserveStage(observability.StageAnalyzeUpstream, time.Since(started))
	if err != nil {
		var upstream *analysis.UpstreamError
		if errors.As(err, &upstream) {
			class := reliability.ClassifyStatus(upstream.StatusCode)
			s.metrics.AnalyzeRequests.WithLabelValues("upstream_" + class).Inc()
			log.Printf("analyze upstream status=%d class=%s", upstream.StatusCode, class)
			respondError(w, upstream.StatusCode, upstream.Error())
			return
		}
		s.metrics.AnalyzeRequests.WithLabelValues("error").Inc()
		respondErr(w, err)
		return
	}
	s.metrics.AnalyzeRequests.WithLabelValues("ok").Inc()

	condition := analysis.RedactPII(userCondition(contentType, body))
	if report, err := analysis.Summarize(raw); err == nil {
		log.Printf("analyze ok concerns=%s high=%d upstream_latency_ms=%.0f condition=%q",
			strings.Join(report.ConcernNames(), ","), report.HighSeverity(), report.LatencyMS, condition)
	} else {
		log.Printf("analyze ok unrecognised report shape condition=%q", condition)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

func errAnalyzeTooLarge(limit int64) error {
	return gerrors.New(fmt.Sprintf("Request exceeds the %d byte limit.", limit), gerrors.CategoryBadInput).
		WithCode(http.StatusRequestEntityTooLarge).
		WithTextCode("PAYLOAD_TOO_LARGE")
}

// userCondition pulls the optional free-text field out of a buffered multipart body.
func userCondition(contentType string, body []byte) string {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") || params["boundary"] == "" {
		return ""
	}
	mr := multipart.NewReader(bytes.NewReader(body), params["boundary"])
	for {
		part, err := mr.NextPart()
		if err != nil {
			return ""
		}
		if part.FormName() == "user_condition" && part.FileName() == "" {
			text, _ := io.ReadAll(io.LimitReader(part, 4<<10))
			return strings.TrimSpace(string(text))
		}
	}
}
