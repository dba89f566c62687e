package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/comptox-ai/comptox-api-client/internal/watcher"
	"github.com/comptox-ai/comptox-api-client/pkg/publishers"
)

// Watch is the watch-mode runtime. It polls targets on an interval and fans
// out change events.
type Watch struct {
	app      *App
	targets  []watcher.Target
	fanout   *publishers.Fanout
	service  *watcher.Service
	interval time.Duration
}

// NewWatch loads targets and publishers and builds the watch loop. A missing
// publishers file leaves changes logged only. Non-empty publisherIDs restrict
// the fan-out to those publishers.
func NewWatch(ctx context.Context, a *App, publisherIDs ...string) (*Watch, error) {
	if a == nil {
		return nil, fmt.Errorf("app must not be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, log := a.cfg, a.log

	targets, err := watcher.LoadTargets(cfg.TargetsFile)
	if err != nil {
		return nil, fmt.Errorf("load targets: %w", err)
	}
	targetIDs := make([]string, 0, len(targets))
	for _, t := range targets {
		targetIDs = append(targetIDs, t.ID)
	}
	log.InfoObj("targets loaded", "targets_meta", map[string]any{
		"count": len(targetIDs),
		"ids":   targetIDs,
	})

	fanout, err := buildFanout(ctx, a, publisherIDs)
	if err != nil {
		return nil, err
	}

	poller := watcher.NewHooksPoller(a.client, a.hooks)
	return &Watch{
		app:      a,
		targets:  targets,
		fanout:   fanout,
		service:  watcher.NewService(poller, fanout, log, a.store),
		interval: cfg.WatchInterval,
	}, nil
}

func buildFanout(ctx context.Context, a *App, publisherIDs []string) (*publishers.Fanout, error) {
	cfg, log := a.cfg, a.log

	if _, err := os.Stat(cfg.PublishersFile); errors.Is(err, os.ErrNotExist) {
		if len(publisherIDs) > 0 {
			return nil, fmt.Errorf("publishers %v selected but publishers file %s not found", publisherIDs, cfg.PublishersFile)
		}
		log.WarnObj("publishers file not found; changes are logged only", "publishers_file", cfg.PublishersFile)
		return publishers.NewFanout(nil), nil
	}

	publisherReg, err := publishers.LoadRegistry(cfg.PublishersFile)
	if err != nil {
		return nil, fmt.Errorf("load publishers registry: %w", err)
	}
	enabled, err := selectPublishers(publisherReg, publisherIDs)
	if err != nil {
		return nil, err
	}

	pubClients, err := publishers.BuildAll(ctx, publishers.DefaultRegistry(), enabled, log)
	if err != nil {
		return nil, fmt.Errorf("build publishers: %w", err)
	}
	summaries := make([]map[string]string, 0, len(enabled))
	for _, pubCfg := range enabled {
		summaries = append(summaries, map[string]string{
			"id":   pubCfg.ID,
			"type": pubCfg.Type,
		})
	}
	log.InfoObj("publishers registry loaded", "publishers_meta", map[string]any{
		"count":      len(summaries),
		"publishers": summaries,
	})
	return publishers.NewFanout(pubClients), nil
}

func selectPublishers(reg *publishers.ConfigRegistry, ids []string) ([]publishers.PublisherConfig, error) {
	if len(ids) == 0 {
		return reg.Enabled(), nil
	}
	out := make([]publishers.PublisherConfig, 0, len(ids))
	for _, id := range ids {
		pubCfg, ok := reg.ByID(id)
		if !ok {
			return nil, fmt.Errorf("publisher %q is not declared", id)
		}
		if !pubCfg.EnabledValue() {
			return nil, fmt.Errorf("publisher %q is disabled", id)
		}
		out = append(out, pubCfg)
	}
	return out, nil
}

// Run starts the watch loop until the context is cancelled.
func (w *Watch) Run(ctx context.Context) error {
	if w == nil || w.service == nil {
		return fmt.Errorf("watch is not initialized")
	}
	log := w.app.log

	log.InfoObj("watch loop starting", "watch_state", map[string]any{
		"targets_count":    len(w.targets),
		"publishers_count": w.fanout.Size(),
		"watch_interval":   w.interval.String(),
	})

	if err := w.RunOnce(ctx); err != nil {
		log.ErrorObj("initial watch pass failed", "error", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.InfoObj("watch loop exiting", "reason", ctx.Err())
			return nil
		case <-ticker.C:
			if err := w.RunOnce(ctx); err != nil {
				log.ErrorObj("scheduled watch pass failed", "error", err)
			}
		}
	}
}

// RunOnce performs a single pass across all targets.
func (w *Watch) RunOnce(ctx context.Context) error {
	start := time.Now()
	if err := w.service.Run(ctx, w.targets); err != nil {
		return err
	}
	w.app.log.InfoObj("watch pass completed", "watch_meta", map[string]any{
		"targets_count": len(w.targets),
		"elapsed_ms":    time.Since(start).Milliseconds(),
	})
	return nil
}

// Close releases publisher connections.
func (w *Watch) Close() error {
	if w == nil {
		return nil
	}
	if err := w.fanout.Close(); err != nil {
		w.app.log.ErrorObj("publishers close failed", "error", err)
		return err
	}
	return nil
}
