package httpapi

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	gerrors "github.com/goliatone/go-errors"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/skinlens/internal/observability"
	"github.com/ent0n29/skinlens/internal/protocol"
	"github.com/ent0n29/skinlens/internal/relay"
)

const noImageMessage = "No image file provided in 'file' field."

// multipart parts above this size spill to temp files.
const multipartMemory = 8 << 20

func errNoImage() error {
	return gerrors.NewValidation(noImageMessage, gerrors.FieldError{
		Field:   "file",
		Message: "binary part required",
	}).WithCode(http.StatusBadRequest).WithTextCode("NO_IMAGE_PROVIDED")
}

func errTooLarge(limit int64) error {
	return gerrors.New(fmt.Sprintf("Upload exceeds the %d byte limit.", limit), gerrors.CategoryBadInput).
		WithCode(http.StatusRequestEntityTooLarge).
		WithTextCode("PAYLOAD_TOO_LARGE")
}

func (s *Server) uploadLimit() int64 {
	if s.cfg.UploadMaxBytes > 0 {
		return s.cfg.UploadMaxBytes
	}
	return defaultUploadMaxBytes
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	noStore(w)

	data, contentType, err := s.readImagePart(w, r)
	if err != nil {
		s.metrics.Uploads.WithLabelValues(uploadOutcome(err)).Inc()
		respondErr(w, err)
		return
	}
	s.metrics.UploadBytes.WithLabelValues("received").Observe(float64(len(data)))

	started := time.Now()
	out, outType, err := s.transcoder.Transcode(r.Context(), data, contentType)
	s.metrics.ObserveStage(observability.StageTranscode, time.Since(started))
	if err != nil {
		s.metrics.Uploads.WithLabelValues("transcode_error").Inc()
		respondErr(w, err)
		return
	}

	if err := s.store.Put(r.Context(), id, out, outType); err != nil {
		s.metrics.Uploads.WithLabelValues("store_error").Inc()
		respondErr(w, fmt.Errorf("store upload: %w", err))
		return
	}
	s.metrics.UploadBytes.WithLabelValues("stored").Observe(float64(len(out)))
	s.metrics.Uploads.WithLabelValues("ok").Inc()
	s.metrics.RelayEvents.WithLabelValues("put").Inc()
	s.refreshRelayGauge(r)
	s.broker.Publish(id)

	log.Printf("upload stored session=%s type=%s received=%d stored=%d", id, outType, len(data), len(out))
	respondJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// readImagePart extracts the binary "file" part of a multipart upload.
func (s *Server) readImagePart(w http.ResponseWriter, r *http.Request) ([]byte, string, error) {
	limit := s.uploadLimit()
	if r.ContentLength > limit {
		return nil, "", errTooLarge(limit)
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, "", errTooLarge(limit)
		}
		return nil, "", errNoImage()
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	// A "file" sent as a plain text field never shows up in MultipartForm.File.
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, "", errNoImage()
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", fmt.Errorf("read upload: %w", err)
	}

	contentType := strings.TrimSpace(header.Header.Get("Content-Type"))
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	return data, contentType, nil
}

func uploadOutcome(err error) string {
	var clientErr *gerrors.Error
	if errors.As(err, &clientErr) {
		switch clientErr.Code {
		case http.StatusRequestEntityTooLarge:
			return "too_large"
		case http.StatusBadRequest:
			return "no_image"
		}
	}
	return "error"
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	noStore(w)

	entry, err := s.store.Get(r.Context(), id)
	if errors.Is(err, relay.ErrNotFound) {
		s.metrics.RelayEvents.WithLabelValues("miss").Inc()
		respondJSON(w, http.StatusNotFound, map[string]any{"ready": false})
		return
	}
	if err != nil {
		respondErr(w, fmt.Errorf("load upload: %w", err))
		return
	}
	s.metrics.RelayEvents.WithLabelValues("hit").Inc()

	contentType := entry.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(entry.Payload)
}

func (s *Server) handleDeleteUpload(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	if err := s.store.Delete(r.Context(), id); err != nil {
		respondErr(w, fmt.Errorf("delete upload: %w", err))
		return
	}
	s.metrics.RelayEvents.WithLabelValues("delete").Inc()
	s.refreshRelayGauge(r)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) refreshRelayGauge(r *http.Request) {
	n, err := s.store.Len(r.Context())
	if err != nil {
		return
	}
	s.metrics.RelayEntries.Set(float64(n))
}

// handleUploadEvents tells a watching desktop page when the phone upload lands. Clients still
// confirm through GET /api/upload/{sessionId}.
func (s *Server) handleUploadEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	// Subscribe before the first lookup so a Put in between is not missed.
	ready, cancel := s.broker.Subscribe(id)
	s.metrics.RelayWatchers.Set(float64(s.broker.Watchers()))
	defer func() {
		cancel()
		s.metrics.RelayWatchers.Set(float64(s.broker.Watchers()))
	}()

	checks := make(chan struct{}, 1)
	badInput := make(chan string, 1)
	readerDone := make(chan struct{})
	conn.SetReadLimit(4 << 10)
	go func() {
		defer close(readerDone)
		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if msgType != websocket.TextMessage {
				continue
			}
			parsed, err := protocol.ParseClientMessage(data)
			if err != nil {
				select {
				case badInput <- err.Error():
				default:
				}
				continue
			}
			if ctl, ok := parsed.(protocol.ClientControl); ok && ctl.Action == protocol.ActionCheck {
				select {
				case checks <- struct{}{}:
				default:
				}
			}
		}
	}()

	ttl := s.cfg.RelayTTL
	if ttl <= 0 {
		ttl = relay.DefaultTTL
	}
	deadline := time.NewTimer(ttl)
	defer deadline.Stop()

	write := func(msg any) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(msg) == nil
	}
	// lookup reports whether the watch is finished.
	lookup := func() bool {
		entry, err := s.store.Get(r.Context(), id)
		if err != nil {
			return false
		}
		write(protocol.UploadReady{
			Type:        protocol.TypeUploadReady,
			SessionID:   id,
			ContentType: entry.ContentType,
			Bytes:       len(entry.Payload),
		})
		return true
	}

	if lookup() {
		return
	}
	if !write(protocol.UploadPending{Type: protocol.TypeUploadPending, SessionID: id}) {
		return
	}

	for {
		select {
		case <-ready:
			if lookup() {
				return
			}
		case <-checks:
			if lookup() {
				return
			}
			if !write(protocol.UploadPending{Type: protocol.TypeUploadPending, SessionID: id}) {
				return
			}
		case detail := <-badInput:
			if !write(protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: id,
				Code:      "invalid_client_message",
				Detail:    detail,
			}) {
				return
			}
		case <-deadline.C:
			write(protocol.WatchExpired{Type: protocol.TypeWatchExpired, SessionID: id})
			return
		case <-readerDone:
			return
		case <-r.Context().Done():
			return
		}
	}
}
