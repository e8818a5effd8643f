// Package updater runs the update cycle: fetch the catalog, diff it against
// the mod store, notify communities and persist the new state.
package updater

import (
	"context"
	"fmt"
	"sync"
	"time"

	"mod-update-notifier/db"
	"mod-update-notifier/diff"
	"mod-update-notifier/dispatch"
	"mod-update-notifier/events"
	"mod-update-notifier/metrics"
	"mod-update-notifier/portal"
	"mod-update-notifier/subscription"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Catalog is the portal side of a cycle.
type Catalog interface {
	FetchCatalog(ctx context.Context) ([]portal.Entry, error)
	Changelog(ctx context.Context, name, version string) (string, error)
}

// ModStore is the persisted mod state.
type ModStore interface {
	Snapshot(ctx context.Context) (*db.Snapshot, error)
	Commit(ctx context.Context, records []db.Mod) error
}

// CommunitySource provides the community preferences for resolution.
type CommunitySource interface {
	Load(ctx context.Context) (db.Communities, error)
}

// Dispatcher delivers change events.
type Dispatcher interface {
	Dispatch(ctx context.Context, cycleID string, events []diff.ChangeEvent, idx *subscription.Index) dispatch.Report
}

type Options struct {
	DiffWorkers     int
	SuppressInitial bool // do not notify while the mod store is empty
}

// Result describes one cycle.
type Result struct {
	dispatch.Report
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration_ns"`
	CatalogSize int           `json:"catalog_size"`
	Created     int           `json:"created"`
	Bumped      int           `json:"version_bumped"`
	Metadata    int           `json:"metadata_changed"`
	Upserts     int           `json:"upserts"`
	Anomalies   []string      `json:"anomalies,omitempty"`
	Seeded      bool          `json:"seeded"`
	Persisted   bool          `json:"persisted"`
	Error       string        `json:"error,omitempty"`
}

// Engine owns the collaborators of a cycle.
type Engine struct {
	catalog     Catalog
	mods        ModStore
	communities CommunitySource
	dispatcher  Dispatcher
	publisher   events.Publisher
	metrics     *metrics.Metrics
	opts        Options
	log         *zap.SugaredLogger

	mu   sync.RWMutex
	last *Result
}

func NewEngine(catalog Catalog, mods ModStore, communities CommunitySource, dispatcher Dispatcher,
	publisher events.Publisher, m *metrics.Metrics, opts Options, log *zap.SugaredLogger) *Engine {
	if publisher == nil {
		publisher = &events.NoopPublisher{}
	}
	if opts.DiffWorkers < 1 {
		opts.DiffWorkers = 1
	}
	return &Engine{
		catalog:     catalog,
		mods:        mods,
		communities: communities,
		dispatcher:  dispatcher,
		publisher:   publisher,
		metrics:     m,
		opts:        opts,
		log:         log,
	}
}

// LastResult returns the result of the most recent cycle.
func (e *Engine) LastResult() (Result, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.last == nil {
		return Result{}, false
	}
	return *e.last, true
}

// RunCycle runs fetch, diff, dispatch and commit once. A fetch error aborts
// the cycle before anything is mutated. Notifications go out before the
// commit, so a failed or interrupted commit means they will be sent again
// next cycle.
func (e *Engine) RunCycle(ctx context.Context) (Result, error) {
	return e.run(ctx, false)
}

// Seed stores the current catalog without sending any notification.
func (e *Engine) Seed(ctx context.Context) (Result, error) {
	return e.run(ctx, true)
}

func (e *Engine) run(ctx context.Context, seed bool) (res Result, err error) {
	res.CycleID = uuid.NewString()
	res.StartedAt = time.Now()
	log := e.log.With(zap.String("cycle", res.CycleID))

	defer func() {
		res.Duration = time.Since(res.StartedAt)
		if err != nil {
			res.Error = err.Error()
		}
		e.mu.Lock()
		last := res
		e.last = &last
		e.mu.Unlock()
	}()

	log.Info("Starting update cycle")
	entries, err := e.catalog.FetchCatalog(ctx)
	if err != nil {
		return res, fmt.Errorf("fetching catalog: %w", err)
	}
	res.CatalogSize = len(entries)
	e.metrics.CatalogSize(len(entries))

	snap, err := e.mods.Snapshot(ctx)
	if err != nil {
		return res, err
	}

	changes, err := diff.Diff(ctx, entries, snap, e.opts.DiffWorkers)
	if err != nil {
		return res, fmt.Errorf("diffing catalog: %w", err)
	}
	res.Upserts = len(changes.Upserts)
	res.Anomalies = changes.Anomalies
	for _, a := range changes.Anomalies {
		log.Warnw("Skipping mod with release time going backwards", "detail", a)
	}
	for _, ev := range changes.Events {
		switch ev.Kind {
		case diff.Created:
			res.Created++
		case diff.VersionBumped:
			res.Bumped++
		case diff.MetadataChanged:
			res.Metadata++
		}
	}
	log.Infow("Catalog compared",
		"mods", len(entries), "created", res.Created, "version_bumped", res.Bumped,
		"metadata_changed", res.Metadata, "upserts", res.Upserts, "anomalies", len(res.Anomalies))

	if changes.Empty() {
		log.Info("Nothing changed")
		return res, nil
	}

	res.Seeded = seed || (e.opts.SuppressInitial && snap.Len() == 0)
	if res.Seeded {
		log.Infow("Seeding mod store, notifications suppressed", "mods", res.Upserts)
	} else if len(changes.Events) > 0 {
		communities, err := e.communities.Load(ctx)
		if err != nil {
			return res, err
		}
		idx := subscription.FromCommunities(communities)
		e.attachChangelogs(ctx, log, changes.Events, idx)
		res.Report = e.dispatcher.Dispatch(ctx, res.CycleID, changes.Events, idx)
		res.Report.CycleID = res.CycleID
	}

	if err := ctx.Err(); err != nil {
		log.Warnw("Cycle interrupted, not persisting; changes will be seen again", zap.Error(err))
		return res, fmt.Errorf("cycle interrupted before commit: %w", err)
	}
	if err := e.mods.Commit(ctx, changes.Upserts); err != nil {
		return res, err
	}
	res.Persisted = true

	e.metrics.Events(diff.Created.String(), res.Created)
	e.metrics.Events(diff.VersionBumped.String(), res.Bumped)
	e.metrics.Events(diff.MetadataChanged.String(), res.Metadata)
	e.publish(ctx, log, res, changes.Events)

	log.Infow("Update cycle finished",
		"sent", res.MessagesSent, "failed", res.Failed(), "skipped", res.Skipped, "seeded", res.Seeded)
	return res, nil
}

// attachChangelogs fetches the changelog of every version change that at
// least one recipient will see. A failed fetch only costs that changelog.
func (e *Engine) attachChangelogs(ctx context.Context, log *zap.SugaredLogger, evs []diff.ChangeEvent, idx *subscription.Index) {
	var g errgroup.Group
	g.SetLimit(e.opts.DiffWorkers)
	for i := range evs {
		ev := &evs[i]
		if ev.Kind == diff.MetadataChanged || ev.Changelog != nil || !wantsChangelog(idx.Resolve(*ev)) {
			continue
		}
		g.Go(func() error {
			text, err := e.catalog.Changelog(ctx, ev.Slug, ev.NewVersion)
			if err != nil {
				log.Warnw("Could not fetch changelog", "mod", ev.Slug, zap.Error(err))
				return nil
			}
			if text != "" {
				ev.Changelog = &text
			}
			return nil
		})
	}
	_ = g.Wait()
}

func wantsChangelog(servers []db.Server) bool {
	for _, s := range servers {
		if s.ChangelogVisible() {
			return true
		}
	}
	return false
}

func (e *Engine) publish(ctx context.Context, log *zap.SugaredLogger, res Result, evs []diff.ChangeEvent) {
	if !res.Seeded {
		for _, ev := range evs {
			if err := e.publisher.Publish(ctx, events.TopicFor(ev.Kind), events.NewModChanged(res.CycleID, ev)); err != nil {
				log.Warnw("Failed to publish change event", "mod", ev.Slug, zap.Error(err))
			}
		}
	}
	summary := events.CycleCompleted{
		CycleID:         res.CycleID,
		StartedAt:       res.StartedAt,
		Duration:        time.Since(res.StartedAt),
		CatalogSize:     res.CatalogSize,
		Upserts:         res.Upserts,
		EventsProcessed: res.EventsProcessed,
		MessagesSent:    res.MessagesSent,
		MessagesFailed:  res.Failed(),
		Skipped:         res.Skipped,
		Seeded:          res.Seeded,
	}
	if err := e.publisher.Publish(ctx, events.TopicCycleCompleted, summary); err != nil {
		log.Warnw("Failed to publish cycle summary", zap.Error(err))
	}
}
