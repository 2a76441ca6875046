package engagement

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/ayush/research-catalog/backend/internal/apperr"
	"github.com/ayush/research-catalog/backend/internal/metrics"
	"github.com/ayush/research-catalog/backend/internal/models"
)

// Flush writes every record changed since the last flush, and removes the
// records of deleted artifacts. Records that fail to save are retried on
// the next flush. It returns the number of records written.
func (l *Ledger) Flush(ctx context.Context) (int, error) {
	if l.persister == nil {
		return 0, nil
	}
	l.flushMu.Lock()
	defer l.flushMu.Unlock()

	l.mu.Lock()
	removed := make([]string, 0, len(l.removed))
	for id := range l.removed {
		removed = append(removed, id)
	}
	clear(l.removed)
	entries := make([]*entry, 0, len(l.records))
	for _, e := range l.records {
		entries = append(entries, e)
	}
	l.mu.Unlock()

	var pending []*entry
	var snaps []models.EngagementRecord
	for _, e := range entries {
		e.mu.Lock()
		if e.dirty {
			pending = append(pending, e)
			snaps = append(snaps, e.snapshot())
			e.dirty = false
		}
		e.mu.Unlock()
	}

	var errs []error
	written := 0
	for i, rec := range snaps {
		if err := l.withTimeout(ctx, func(ctx context.Context) error {
			return l.persister.SaveRecord(ctx, rec)
		}); err != nil {
			errs = append(errs, err)
			e := pending[i]
			e.mu.Lock()
			e.dirty = true
			e.mu.Unlock()
			continue
		}
		written++
	}
	for _, id := range removed {
		if err := l.withTimeout(ctx, func(ctx context.Context) error {
			return l.persister.DeleteRecord(ctx, id)
		}); err != nil {
			errs = append(errs, err)
			l.mu.Lock()
			l.removed[id] = struct{}{}
			l.mu.Unlock()
		}
	}

	if err := errors.Join(errs...); err != nil {
		metrics.EngagementFlushes.WithLabelValues("error").Inc()
		l.log.Warn("engagement flush incomplete",
			zap.Int("written", written),
			zap.Int("failed", len(errs)),
			zap.Error(err),
		)
		return written, apperr.Unavailable("flush engagement", err)
	}
	metrics.EngagementFlushes.WithLabelValues("ok").Inc()
	if written > 0 || len(removed) > 0 {
		l.log.Info("engagement flushed", zap.Int("written", written), zap.Int("removed", len(removed)))
	}
	return written, nil
}

func (l *Ledger) withTimeout(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	return fn(ctx)
}

// Restore loads persisted records. Records whose artifact is no longer in
// the catalog are skipped and queued for removal.
func (l *Ledger) Restore(records []models.EngagementRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()

	loaded := 0
	for _, rec := range records {
		if _, err := l.catalog.Get(rec.ArtifactID); err != nil {
			l.removed[rec.ArtifactID] = struct{}{}
			continue
		}
		e := newEntry(rec.ArtifactID)
		e.rec = rec
		if e.rec.Favorites == nil {
			e.rec.Favorites = make(map[string]bool)
		}
		for i, c := range rec.Comments {
			e.index[c.ID] = i
			l.comments[c.ID] = rec.ArtifactID
		}
		l.records[rec.ArtifactID] = e
		loaded++
	}
	l.log.Info("engagement restored",
		zap.Int("records", loaded),
		zap.Int("orphans", len(records)-loaded),
	)
}
