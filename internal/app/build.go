package app

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ent0n29/skinlens/internal/analysis"
	"github.com/ent0n29/skinlens/internal/config"
	"github.com/ent0n29/skinlens/internal/httpapi"
	"github.com/ent0n29/skinlens/internal/imaging"
	"github.com/ent0n29/skinlens/internal/observability"
	"github.com/ent0n29/skinlens/internal/relay"
)

type BuildResult struct {
	Config     config.Config
	API        *httpapi.Server
	Store      relay.Store
	Broker     *relay.Broker
	Transcoder imaging.Transcoder
	Analyzer   *analysis.Client
	Metrics    *observability.Metrics

	// Cleanup should be called on shutdown to release external resources (DB pool).
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace, nil)

	var store relay.Store
	store, err := relay.NewStore(ctx, cfg.DatabaseURL,
		relay.WithTTL(cfg.RelayTTL),
		relay.WithExpireHook(func(id string) {
			metrics.RelayEvents.WithLabelValues("expired").Inc()
			// Hooks run outside the store lock, so reading Len here is safe.
			if n, err := store.Len(context.Background()); err == nil {
				metrics.RelayEntries.Set(float64(n))
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("relay store init failed: %w", err)
	}
	log.Printf("relay store: %s (ttl %s)", store.Mode(), cfg.RelayTTL)

	transcoder := newTranscoder(cfg)
	analyzer := analysis.NewClient(cfg.AnalysisAPIBaseURL, cfg.AnalysisAPITimeout)
	log.Printf("analysis endpoint: %s", analyzer.Endpoint())

	broker := relay.NewBroker()
	api := httpapi.New(cfg, store, broker, transcoder, analyzer, metrics)

	cleanup := func() error {
		var errs []string
		if err := store.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}

	return &BuildResult{
		Config:     cfg,
		API:        api,
		Store:      store,
		Broker:     broker,
		Transcoder: transcoder,
		Analyzer:   analyzer,
		Metrics:    metrics,
		Cleanup:    cleanup,
	}, nil
}

// StartJanitor runs the periodic relay sweep for the in-memory store when an interval is set.
// The postgres store sweeps on every call and needs no janitor.
func (b *BuildResult) StartJanitor(ctx context.Context) {
	if b.Config.RelaySweepInterval <= 0 {
		return
	}
	if mem, ok := b.Store.(*relay.MemoryStore); ok {
		mem.StartJanitor(ctx, b.Config.RelaySweepInterval)
		log.Printf("relay janitor: every %s (ttl %s)", b.Config.RelaySweepInterval.Round(time.Millisecond), mem.TTL())
	}
}

func newTranscoder(cfg config.Config) imaging.Transcoder {
	if strings.EqualFold(strings.TrimSpace(cfg.TranscodeMode), "off") {
		log.Printf("upload transcoding: off")
		return imaging.Passthrough{}
	}
	log.Printf("upload transcoding: re-encode (quality %d, max %dpx, max %d pixels)",
		cfg.TranscodeQuality, cfg.TranscodeMaxDimension, cfg.TranscodeMaxPixels)
	return imaging.NewReencoder(cfg.TranscodeQuality, cfg.TranscodeMaxDimension, cfg.TranscodeMaxPixels)
}
