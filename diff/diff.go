// Package diff compares a fetched catalog against the stored mod state.
package diff

import (
	"context"
	"fmt"
	"time"

	"mod-update-notifier/db"
	"mod-update-notifier/portal"

	"golang.org/x/sync/errgroup"
)

// Kind classifies a change event.
type Kind int

const (
	Created Kind = iota
	VersionBumped
	MetadataChanged
)

func (k Kind) String() string {
	switch k {
	case Created:
		return "created"
	case VersionBumped:
		return "version_bumped"
	case MetadataChanged:
		return "metadata_changed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ChangeEvent describes one observed change to a mod. The display fields are
// copied from the catalog entry so the event can be formatted on its own.
type ChangeEvent struct {
	Slug            string
	Kind            Kind
	PreviousVersion *string // nil for Created
	NewVersion      string
	Changelog       *string // filled in after the diff, nil when unknown

	Title           string
	Owner           string
	Summary         string
	Category        string
	Thumbnail       string
	FactorioVersion string
	ReleasedAt      time.Time
}

// Lookup is the read side of the mod store the diff needs.
type Lookup interface {
	Lookup(name string) (db.Mod, bool)
}

// Result is the outcome of one diff. Events and Upserts follow catalog order.
type Result struct {
	Events    []ChangeEvent
	Upserts   []db.Mod
	Anomalies []string
}

// Empty reports whether the diff found nothing to notify or persist.
func (r Result) Empty() bool {
	return len(r.Events) == 0 && len(r.Upserts) == 0
}

type outcome struct {
	event   *ChangeEvent
	upsert  *db.Mod
	anomaly string
}

// Diff classifies every catalog entry against store on a pool of workers.
// Duplicate names keep their first occurrence. Mods missing from the catalog
// are left alone.
func Diff(ctx context.Context, catalog []portal.Entry, store Lookup, workers int) (Result, error) {
	if workers < 1 {
		workers = 1
	}

	entries := dedupe(catalog)
	outcomes := make([]outcome, len(entries))

	chunk := (len(entries) + workers - 1) / workers
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for start := 0; start < len(entries); start += chunk {
		end := min(start+chunk, len(entries))
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				prev, found := store.Lookup(entries[i].Name)
				outcomes[i] = compare(entries[i], prev, found)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	var res Result
	for _, o := range outcomes {
		if o.anomaly != "" {
			res.Anomalies = append(res.Anomalies, o.anomaly)
		}
		if o.event != nil {
			res.Events = append(res.Events, *o.event)
		}
		if o.upsert != nil {
			res.Upserts = append(res.Upserts, *o.upsert)
		}
	}
	return res, nil
}

func dedupe(catalog []portal.Entry) []portal.Entry {
	seen := make(map[string]struct{}, len(catalog))
	out := make([]portal.Entry, 0, len(catalog))
	for _, e := range catalog {
		if _, ok := seen[e.Name]; ok {
			continue
		}
		seen[e.Name] = struct{}{}
		out = append(out, e)
	}
	return out
}

func compare(e portal.Entry, prev db.Mod, found bool) outcome {
	record := toRecord(e)

	if !found {
		// Release-less mods are remembered but not announced.
		if e.Version == "" {
			return outcome{upsert: &record}
		}
		return outcome{event: newEvent(e, Created, nil), upsert: &record}
	}

	if e.ReleasedAt.Before(prev.ReleasedAt) {
		return outcome{anomaly: fmt.Sprintf("%s: release time went back from %s (%s) to %s (%s)",
			e.Name, prev.ReleasedAt.Format(time.RFC3339), prev.Version, e.ReleasedAt.Format(time.RFC3339), e.Version)}
	}

	switch {
	case e.Version != prev.Version:
		previous := prev.Version
		return outcome{event: newEvent(e, VersionBumped, &previous), upsert: &record}
	case metadataDiffers(e, prev):
		previous := prev.Version
		return outcome{event: newEvent(e, MetadataChanged, &previous), upsert: &record}
	case e.DownloadsCount != prev.DownloadsCount || e.Thumbnail != prev.Thumbnail || !e.ReleasedAt.Equal(prev.ReleasedAt):
		return outcome{upsert: &record}
	default:
		return outcome{}
	}
}

func metadataDiffers(e portal.Entry, prev db.Mod) bool {
	return e.Title != prev.Title ||
		e.Summary != prev.Summary ||
		e.Category != prev.Category ||
		e.FactorioVersion != prev.FactorioVersion ||
		e.Owner != prev.Owner
}

func newEvent(e portal.Entry, kind Kind, previous *string) *ChangeEvent {
	ev := &ChangeEvent{
		Slug:            e.Name,
		Kind:            kind,
		PreviousVersion: previous,
		NewVersion:      e.Version,
		Title:           e.Title,
		Owner:           e.Owner,
		Summary:         e.Summary,
		Category:        e.Category,
		Thumbnail:       e.Thumbnail,
		FactorioVersion: e.FactorioVersion,
		ReleasedAt:      e.ReleasedAt,
	}
	if e.Changelog != "" {
		changelog := e.Changelog
		ev.Changelog = &changelog
	}
	return ev
}

func toRecord(e portal.Entry) db.Mod {
	return db.Mod{
		Name:            e.Name,
		Title:           e.Title,
		Owner:           e.Owner,
		Summary:         e.Summary,
		Category:        e.Category,
		DownloadsCount:  e.DownloadsCount,
		FactorioVersion: e.FactorioVersion,
		Version:         e.Version,
		ReleasedAt:      e.ReleasedAt,
		Thumbnail:       e.Thumbnail,
	}
}
