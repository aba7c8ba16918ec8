package httpapi

import "net/http"

// handlePerfLatency reports the recent per-stage latency window.
func (s *Server) handlePerfLatency(w http.ResponseWriter, _ *http.Request) {
	noStore(w)
	respondJSON(w, http.StatusOK, s.metrics.SnapshotStages())
}
