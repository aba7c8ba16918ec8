package httpapi

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type statusCheck struct {
	ID     string `json:"id"`
	Status string `json:"status"` // ok|warn|error
	Label  string `json:"label"`
	Detail string `json:"detail,omitempty"`
	Fix    string `json:"fix,omitempty"`
}

type statusResponse struct {
	RelayStoreMode   string        `json:"relay_store_mode"`
	AnalysisEndpoint string        `json:"analysis_endpoint"`
	TranscodeMode    string        `json:"transcode_mode"`
	RelayTTLMS       int64         `json:"relay_ttl_ms"`
	Checks           []statusCheck `json:"checks"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	storeMode := s.relayStoreMode()
	transcodeMode := strings.ToLower(strings.TrimSpace(s.cfg.TranscodeMode))
	if transcodeMode == "" {
		transcodeMode = "reencode"
	}

	checks := make([]statusCheck, 0, 6)
	switch storeMode {
	case "postgres":
		checks = append(checks, statusCheck{
			ID:     "relay_store",
			Status: "ok",
			Label:  "Photo relay",
			Detail: "postgres (unlogged, swept by TTL)",
		})
	case "in-memory":
		checks = append(checks, statusCheck{
			ID:     "relay_store",
			Status: "ok",
			Label:  "Photo relay",
			Detail: "in-memory",
			Fix:    "Uploads are per-process. Set DATABASE_URL when running more than one replica.",
		})
	default:
		checks = append(checks, statusCheck{
			ID:     "relay_store",
			Status: "error",
			Label:  "Photo relay",
			Detail: storeMode,
		})
	}
	if n, err := s.store.Len(r.Context()); err == nil {
		checks = append(checks, statusCheck{
			ID:     "relay_entries",
			Status: "ok",
			Label:  "Waiting uploads",
			Detail: fmt.Sprintf("%d", n),
		})
	} else {
		checks = append(checks, statusCheck{
			ID:     "relay_entries",
			Status: "error",
			Label:  "Waiting uploads",
			Detail: err.Error(),
		})
	}

	endpoint := s.analyzer.Endpoint()
	if err := dialEndpoint(endpoint); err != nil {
		checks = append(checks, statusCheck{
			ID:     "analysis_api",
			Status: "warn",
			Label:  "Skin analysis API",
			Detail: "unreachable: " + err.Error(),
			Fix:    "Check ANALYSIS_API_BASE_URL and outbound network access.",
		})
	} else {
		checks = append(checks, statusCheck{
			ID:     "analysis_api",
			Status: "ok",
			Label:  "Skin analysis API",
			Detail: endpoint,
		})
	}

	if transcodeMode == "off" {
		checks = append(checks, statusCheck{
			ID:     "transcode",
			Status: "warn",
			Label:  "Upload transcoding",
			Detail: "off; photos are relayed as sent",
			Fix:    "Set TRANSCODE_MODE=reencode to shrink phone photos before relay.",
		})
	} else {
		checks = append(checks, statusCheck{
			ID:     "transcode",
			Status: "ok",
			Label:  "Upload transcoding",
			Detail: fmt.Sprintf("re-encode (quality %d, max %dpx)", s.cfg.TranscodeQuality, s.cfg.TranscodeMaxDimension),
		})
	}

	if strings.TrimSpace(s.cfg.PublicBaseURL) == "" {
		checks = append(checks, statusCheck{
			ID:     "public_base_url",
			Status: "warn",
			Label:  "QR code address",
			Detail: "derived from request Host",
			Fix:    "Set APP_PUBLIC_BASE_URL when the desktop opens the app on localhost.",
		})
	}

	respondJSON(w, http.StatusOK, statusResponse{
		RelayStoreMode:   storeMode,
		AnalysisEndpoint: endpoint,
		TranscodeMode:    transcodeMode,
		RelayTTLMS:       s.cfg.RelayTTL.Milliseconds(),
		Checks:           checks,
	})
}

// dialEndpoint only checks that a TCP connection to the endpoint host can be opened.
func dialEndpoint(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return err
	}
	host := strings.TrimSpace(u.Host)
	if host == "" {
		return fmt.Errorf("host missing")
	}
	addr := host
	if u.Port() == "" {
		port := "80"
		if u.Scheme == "https" {
			port = "443"
		}
		addr = net.JoinHostPort(u.Hostname(), port)
	}
	c, err := net.DialTimeout("tcp", addr, 250*time.Millisecond)
	if err != nil {
		return err
	}
	_ = c.Close()
	return nil
}
