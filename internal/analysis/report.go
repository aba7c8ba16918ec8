package analysis

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Concern is one scored skin concern in an analysis report.
type Concern struct {
	Score    float64 `json:"score"`
	Severity string  `json:"severity"`
	Advice   string  `json:"advice"`
}

// Report is the subset of the upstream response the server looks at. The browser receives
// the raw response, not this struct.
type Report struct {
	Concerns          map[string]Concern `json:"concerns"`
	Overlays          map[string]string  `json:"overlays_base64_png"`
	LatencyMS         float64            `json:"latency_ms"`
	UserConditionEcho string             `json:"user_condition_echo"`
}

// Summarize decodes the known report fields.
func Summarize(raw json.RawMessage) (Report, error) {
	var r Report
	if err := json.Unmarshal(raw, &r); err != nil {
		return Report{}, fmt.Errorf("decode report: %w", err)
	}
	return r, nil
}

// ConcernNames returns concern keys in a stable order.
func (r Report) ConcernNames() []string {
	names := make([]string, 0, len(r.Concerns))
	for k := range r.Concerns {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// HighSeverity counts concerns flagged "High".
func (r Report) HighSeverity() int {
	n := 0
	for _, c := range r.Concerns {
		if c.Severity == "High" {
			n++
		}
	}
	return n
}
