// Package refresh implements the background metadata refresher. It
// periodically refetches remote metadata for entities that opted into a
// refresh frequency and saves a new revision when the content changed
// and validates cleanly.
package refresh

import (
	"context"
	"log/slog"
	"time"

	"github.com/starford/raido/internal/checksum"
	"github.com/starford/raido/internal/forms"
	"github.com/starford/raido/internal/metrics"
	"github.com/starford/raido/internal/models"
)

// Registry is the subset of registry operations the refresher needs.
type Registry interface {
	ListRemoteEntities() ([]models.Entity, error)
}

// NotifyFunc is called after a successful refresh.
type NotifyFunc func(kind string, entityID int64, name string)

// refreshUser is the author recorded on automatic revisions.
var refreshUser = models.User{Username: "metarefresh", FullName: "Metadata refresh"}

const refreshCommitMsg = "Automatic update of remote metadata"

// Refresher scans for due entities at a fixed interval.
type Refresher struct {
	reg      Registry
	deps     forms.Deps
	fetcher  *forms.Fetcher
	metrics  *metrics.Metrics
	logger   *slog.Logger
	interval time.Duration
	notify   NotifyFunc

	now func() time.Time // test hook
}

// New creates a Refresher.
func New(reg Registry, deps forms.Deps, fetcher *forms.Fetcher, m *metrics.Metrics, logger *slog.Logger, interval time.Duration, notify NotifyFunc) *Refresher {
	return &Refresher{
		reg:      reg,
		deps:     deps,
		fetcher:  fetcher,
		metrics:  m,
		logger:   logger,
		interval: interval,
		notify:   notify,
		now:      time.Now,
	}
}

// Run scans on every interval tick until ctx is cancelled.
func (r *Refresher) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("refresher: started", slog.Duration("interval", r.interval))
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("refresher: stopped")
			return nil
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce refreshes every due entity.
func (r *Refresher) RunOnce(ctx context.Context) {
	entities, err := r.reg.ListRemoteEntities()
	if err != nil {
		r.logger.Error("refresher: list entities failed", slog.String("error", err.Error()))
		return
	}
	for i := range entities {
		entity := &entities[i]
		if !r.due(entity) {
			continue
		}
		r.refreshOne(ctx, entity)
	}
}

// due reports whether the entity's refresh period has elapsed since its
// last metadata change.
func (r *Refresher) due(e *models.Entity) bool {
	period := e.Metarefresh.Interval()
	if period == 0 {
		return false
	}
	return !r.now().Before(e.UpdatedAt.Add(period))
}

func (r *Refresher) refreshOne(ctx context.Context, entity *models.Entity) {
	form := forms.NewRemoteForm(
		r.deps, entity, &refreshUser, r.fetcher, entity.MetadataURL, refreshCommitMsg, true)

	errs, err := form.Validate(ctx)
	if err != nil {
		r.logger.Error("refresher: validate failed",
			slog.Int64("entity_id", entity.ID), slog.String("error", err.Error()))
		r.metrics.RecordRefresh("error")
		return
	}
	if errs.Any() {
		if errs.Has(forms.FieldURL) && errs[forms.FieldURL][0] == forms.MsgNoChanges {
			r.metrics.RecordRefresh("unchanged")
			return
		}
		r.logger.Warn("refresher: metadata rejected",
			slog.Int64("entity_id", entity.ID), slog.String("errors", errs.Error()))
		r.metrics.RecordRefresh("rejected")
		return
	}

	if _, err := form.Save(ctx); err != nil {
		r.logger.Error("refresher: save failed",
			slog.Int64("entity_id", entity.ID), slog.String("error", err.Error()))
		r.metrics.RecordRefresh("error")
		return
	}

	r.logger.Info("refresher: metadata refreshed",
		slog.Int64("entity_id", entity.ID), slog.String("name", entity.Name),
		slog.String("checksum", checksum.Short([]byte(form.Metadata()))))
	r.metrics.RecordRefresh("refreshed")
	r.metrics.RecordRevision()
	if r.notify != nil {
		r.notify("metadata", entity.ID, entity.Name)
	}
}
