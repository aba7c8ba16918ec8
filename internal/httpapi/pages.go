package httpapi

import (
	"bytes"
	"log"
	"net/http"
	"strings"

	"github.com/skip2/go-qrcode"

	"github.com/ent0n29/skinlens/internal/relay"
)

const qrSize = 256

type desktopPage struct {
	SessionID      string
	UploadURL      string
	QRURL          string
	PollIntervalMS int64
	TTLMS          int64
}

type mobilePage struct {
	SessionID string
	UploadAPI string
}

type createSessionResponse struct {
	SessionID      string `json:"session_id"`
	UploadURL      string `json:"upload_url"`
	QRURL          string `json:"qr_url"`
	TTLMS          int64  `json:"ttl_ms"`
	PollIntervalMS int64  `json:"poll_interval_ms"`
}

// publicBaseURL is the origin the phone should reach, without a trailing slash.
func (s *Server) publicBaseURL(r *http.Request) string {
	if base := strings.TrimRight(strings.TrimSpace(s.cfg.PublicBaseURL), "/"); base != "" {
		return base
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")); proto != "" {
		scheme = strings.ToLower(strings.TrimSpace(strings.Split(proto, ",")[0]))
	}
	return scheme + "://" + r.Host
}

func (s *Server) newHandoff(r *http.Request) createSessionResponse {
	id := relay.NewSessionID()
	ttl := s.cfg.RelayTTL
	if ttl <= 0 {
		ttl = relay.DefaultTTL
	}
	return createSessionResponse{
		SessionID:      id,
		UploadURL:      s.publicBaseURL(r) + "/upload/" + id,
		QRURL:          "/api/qr/" + id,
		TTLMS:          ttl.Milliseconds(),
		PollIntervalMS: s.cfg.RelayPollInterval.Milliseconds(),
	}
}

func (s *Server) handleDesktopPage(w http.ResponseWriter, r *http.Request) {
	handoff := s.newHandoff(r)
	s.renderPage(w, "analyzer.html", desktopPage{
		SessionID:      handoff.SessionID,
		UploadURL:      handoff.UploadURL,
		QRURL:          handoff.QRURL,
		PollIntervalMS: handoff.PollIntervalMS,
		TTLMS:          handoff.TTLMS,
	})
}

func (s *Server) handleMobilePage(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	s.renderPage(w, "mobile.html", mobilePage{
		SessionID: id,
		UploadAPI: "/api/upload/" + id,
	})
}

func (s *Server) renderPage(w http.ResponseWriter, name string, data any) {
	var buf bytes.Buffer
	if err := s.pages.ExecuteTemplate(&buf, name, data); err != nil {
		log.Printf("render page=%s: %v", name, err)
		respondError(w, http.StatusInternalServerError, "")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	noStore(w)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	noStore(w)
	respondJSON(w, http.StatusCreated, s.newHandoff(r))
}

func (s *Server) handleQR(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	png, err := qrcode.Encode(s.publicBaseURL(r)+"/upload/"+id, qrcode.Medium, qrSize)
	if err != nil {
		respondErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	noStore(w)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}
