package observability

import (
	"math"
	"sort"
	"sync"
	"time"
)

const (
	StageTranscode       = "transcode"
	StageAnalyzeUpstream = "analyze_upstream"
)

// trackedStages lists the stages reported by /api/perf/latency, in output order, with their
// p95 targets in milliseconds. Prometheus keeps the long-term histogram; this is the recent view.
var trackedStages = [...]struct {
	name      string
	targetP95 float64
}{
	{StageTranscode, 400},
	{StageAnalyzeUpstream, 8000},
}

type StageStats struct {
	Stage       string  `json:"stage"`
	Samples     int     `json:"samples"`
	LastMS      float64 `json:"last_ms"`
	AvgMS       float64 `json:"avg_ms"`
	P50MS       float64 `json:"p50_ms"`
	P95MS       float64 `json:"p95_ms"`
	TargetP95MS float64 `json:"target_p95_ms"`
}

type StageSnapshot struct {
	GeneratedAt time.Time    `json:"generated_at"`
	WindowSize  int          `json:"window_size"`
	Stages      []StageStats `json:"stages"`
}

// stageWindow is a fixed-size ring of recent samples per tracked stage.
type stageWindow struct {
	mu    sync.Mutex
	size  int
	rings [len(trackedStages)][]float64
	count [len(trackedStages)]int
}

func newStageWindow(size int) *stageWindow {
	if size <= 0 {
		size = 256
	}
	w := &stageWindow{size: size}
	for i := range w.rings {
		w.rings[i] = make([]float64, size)
	}
	return w
}

func stageIndex(stage string) int {
	for i, s := range trackedStages {
		if s.name == stage {
			return i
		}
	}
	return -1
}

// Observe records ms for a tracked stage. Unknown stages and negative samples are ignored.
func (w *stageWindow) Observe(stage string, ms float64) {
	i := stageIndex(stage)
	if i < 0 || ms < 0 {
		return
	}
	w.mu.Lock()
	w.rings[i][w.count[i]%w.size] = ms
	w.count[i]++
	w.mu.Unlock()
}

func (w *stageWindow) Snapshot() StageSnapshot {
	snap := StageSnapshot{
		GeneratedAt: time.Now().UTC(),
		WindowSize:  w.size,
		Stages:      []StageStats{},
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for i, stage := range trackedStages {
		total := w.count[i]
		if total == 0 {
			continue
		}
		n := min(total, w.size)
		samples := append([]float64(nil), w.rings[i][:n]...)
		last := w.rings[i][(total-1)%w.size]
		sort.Float64s(samples)

		sum := 0.0
		for _, v := range samples {
			sum += v
		}
		snap.Stages = append(snap.Stages, StageStats{
			Stage:       stage.name,
			Samples:     n,
			LastMS:      round2(last),
			AvgMS:       round2(sum / float64(n)),
			P50MS:       round2(nearestRank(samples, 0.50)),
			P95MS:       round2(nearestRank(samples, 0.95)),
			TargetP95MS: stage.targetP95,
		})
	}
	return snap
}

// nearestRank expects sorted, non-empty input.
func nearestRank(sorted []float64, q float64) float64 {
	rank := int(math.Ceil(q * float64(len(sorted))))
	rank = max(1, min(rank, len(sorted)))
	return sorted[rank-1]
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
