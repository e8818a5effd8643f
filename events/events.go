// Package events publishes observed mod changes to a message bus so other
// services can react to them.
package events

import (
	"context"
	"time"

	"mod-update-notifier/diff"
)

// Event topic constants
const (
	TopicModCreated         = "modnotifier.mod.created"
	TopicModVersionBumped   = "modnotifier.mod.version_bumped"
	TopicModMetadataChanged = "modnotifier.mod.metadata_changed"
	TopicCycleCompleted     = "modnotifier.cycle.completed"
)

// TopicFor returns the topic a change event is published on.
func TopicFor(kind diff.Kind) string {
	switch kind {
	case diff.Created:
		return TopicModCreated
	case diff.MetadataChanged:
		return TopicModMetadataChanged
	default:
		return TopicModVersionBumped
	}
}

// Event types

type ModChanged struct {
	CycleID         string    `json:"cycle_id"`
	Name            string    `json:"name"`
	Kind            string    `json:"kind"`
	PreviousVersion *string   `json:"previous_version,omitempty"`
	Version         string    `json:"version"`
	Title           string    `json:"title"`
	Owner           string    `json:"owner"`
	FactorioVersion string    `json:"factorio_version,omitempty"`
	ReleasedAt      time.Time `json:"released_at"`
}

// NewModChanged converts a change event for publication.
func NewModChanged(cycleID string, ev diff.ChangeEvent) ModChanged {
	return ModChanged{
		CycleID:         cycleID,
		Name:            ev.Slug,
		Kind:            ev.Kind.String(),
		PreviousVersion: ev.PreviousVersion,
		Version:         ev.NewVersion,
		Title:           ev.Title,
		Owner:           ev.Owner,
		FactorioVersion: ev.FactorioVersion,
		ReleasedAt:      ev.ReleasedAt,
	}
}

type CycleCompleted struct {
	CycleID         string        `json:"cycle_id"`
	StartedAt       time.Time     `json:"started_at"`
	Duration        time.Duration `json:"duration_ns"`
	CatalogSize     int           `json:"catalog_size"`
	Upserts         int           `json:"upserts"`
	EventsProcessed int           `json:"events_processed"`
	MessagesSent    int           `json:"messages_sent"`
	MessagesFailed  int           `json:"messages_failed"`
	Skipped         int           `json:"skipped"`
	Seeded          bool          `json:"seeded,omitempty"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}

// New returns a NATS publisher for url, or a NoopPublisher when url is empty.
func New(url string) (Publisher, error) {
	if url == "" {
		return &NoopPublisher{}, nil
	}
	return NewNATSPublisher(url)
}
