package archive

import (
	"context"
	"log/slog"
	"time"
)

// RetentionWorker periodically archives aged-out pallets and, when an export
// sink is configured, expires archive rows past the retention period.
type RetentionWorker struct {
	manager  *Manager
	cfg      *ArchiveConfig
	sink     Sink
	interval time.Duration
	logger   *slog.Logger
}

// NewRetentionWorker creates a new RetentionWorker. A nil sink disables
// archive expiry; purging still runs.
func NewRetentionWorker(manager *Manager, cfg *ArchiveConfig, sink Sink, logger *slog.Logger) *RetentionWorker {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg == nil {
		cfg = DefaultArchiveConfig()
	}
	interval := cfg.WorkerInterval
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &RetentionWorker{
		manager:  manager,
		cfg:      cfg,
		sink:     sink,
		interval: interval,
		logger:   logger,
	}
}

// Run starts the worker. It runs until the context is cancelled.
func (w *RetentionWorker) Run(ctx context.Context) {
	if w.manager == nil || !w.cfg.WorkerEnabled {
		w.logger.Info("archive retention worker disabled",
			"hasManager", w.manager != nil,
			"enabled", w.cfg.WorkerEnabled)
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("archive retention worker started",
		"purgeAfterDays", w.cfg.PurgeAfterDays,
		"retentionYears", w.cfg.RetentionYears,
		"export", w.sink != nil,
		"interval", w.interval.String())

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("archive retention worker stopped")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single purge and expiry pass.
func (w *RetentionWorker) RunOnce(ctx context.Context) {
	statuses, err := w.cfg.Statuses()
	if err != nil {
		w.logger.Error("archive retention misconfigured", "error", err)
		return
	}

	purged, err := w.manager.Purge(ctx, statuses, w.cfg.PurgeAge())
	if err != nil {
		w.logger.Error("archive purge failed", "error", err)
	} else if purged.Archived > 0 {
		w.logger.Info("archive purge completed",
			"archived", purged.Archived,
			"cutoff", purged.Cutoff.Format(time.RFC3339))
	}

	if w.sink == nil {
		return
	}
	confirm := ExportConfirm(w.sink, w.manager.clock, func(location string) {
		w.logger.Info("expired archive rows exported", "location", location)
	})
	expired, deleted, err := w.manager.PurgeArchive(ctx, w.cfg.RetentionAge(), confirm)
	if err != nil {
		w.logger.Error("archive expiry failed", "error", err)
	} else if deleted > 0 {
		w.logger.Info("archive expiry completed",
			"deleted", deleted,
			"cutoff", expired.Cutoff.Format(time.RFC3339))
	}
}
