package httpapi

import (
	"encoding/json"
	"errors"
	"html/template"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	gerrors "github.com/goliatone/go-errors"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/skinlens/internal/analysis"
	"github.com/ent0n29/skinlens/internal/config"
	"github.com/ent0n29/skinlens/internal/imaging"
	"github.com/ent0n29/skinlens/internal/observability"
	"github.com/ent0n29/skinlens/internal/relay"
)

const (
	defaultUploadMaxBytes  int64 = 25 << 20
	defaultAnalyzeMaxBytes int64 = 40 << 20
)

type Server struct {
	cfg        config.Config
	store      relay.Store
	broker     *relay.Broker
	transcoder imaging.Transcoder
	analyzer   *analysis.Client
	metrics    *observability.Metrics
	upgrader   websocket.Upgrader
	static     http.Handler
	pages      *template.Template
}

func New(cfg config.Config, store relay.Store, broker *relay.Broker, transcoder imaging.Transcoder, analyzer *analysis.Client, metrics *observability.Metrics) *Server {
	if broker == nil {
		broker = relay.NewBroker()
	}
	if transcoder == nil {
		transcoder = imaging.Passthrough{}
	}
	if analyzer == nil {
		analyzer = analysis.NewClient(cfg.AnalysisAPIBaseURL, cfg.AnalysisAPITimeout)
	}
	if metrics == nil {
		metrics = observability.NewMetrics(cfg.MetricsNamespace, nil)
	}
	return &Server{
		cfg:        cfg,
		store:      store,
		broker:     broker,
		transcoder: transcoder,
		analyzer:   analyzer,
		metrics:    metrics,
		static:     newStaticHandler(),
		pages:      mustParsePages(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Only the desktop page served by this process may watch a session.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleDesktopPage)
	r.Get("/upload/{sessionId}", s.handleMobilePage)
	r.Handle("/static/*", http.StripPrefix("/static/", s.static))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		s.metrics.Handler().ServeHTTP(w, r)
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/session", s.handleCreateSession)
		r.Get("/qr/{sessionId}", s.handleQR)
		r.Post("/analyze", s.handleAnalyze)
		r.Get("/status", s.handleStatus)
		r.Get("/perf/latency", s.handlePerfLatency)

		r.Post("/upload/{sessionId}", s.handleUpload)
		r.Get("/upload/{sessionId}", s.handleRetrieve)
		r.Delete("/upload/{sessionId}", s.handleDeleteUpload)
		r.Get("/upload/{sessionId}/events", s.handleUploadEvents)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":           "ready",
		"relay_store_mode": s.relayStoreMode(),
	})
}

func (s *Server) relayStoreMode() string {
	if s.store == nil {
		return "disabled"
	}
	mode := strings.TrimSpace(s.store.Mode())
	if mode == "" {
		return "unknown"
	}
	return mode
}

// sessionID returns the validated {sessionId} URL parameter, writing a 400 when it is unusable.
func sessionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(chi.URLParam(r, "sessionId"))
	if !relay.ValidSessionID(id) {
		respondErr(w, gerrors.New("invalid session id", gerrors.CategoryBadInput).
			WithCode(http.StatusBadRequest).
			WithTextCode("INVALID_SESSION_ID"))
		return "", false
	}
	return id, true
}

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, message string) {
	if strings.TrimSpace(message) == "" {
		message = "Something went wrong"
	}
	respondJSON(w, status, errorResponse{Error: message})
}

// respondErr maps client errors built with go-errors to their status; anything else is a 500.
func respondErr(w http.ResponseWriter, err error) {
	var clientErr *gerrors.Error
	if errors.As(err, &clientErr) && clientErr.Code >= 400 && clientErr.Code < 500 {
		respondError(w, clientErr.Code, clientErr.Message)
		return
	}
	log.Printf("request failed: %v", err)
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	respondError(w, http.StatusInternalServerError, msg)
}

func noStore(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
}
