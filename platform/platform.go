// Package platform defines what the notifier needs from a chat platform.
package platform

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sender delivers a message to a channel and returns the platform's id for it.
type Sender interface {
	SendMessage(ctx context.Context, channelID string, msg Message) (string, error)
}

// Message is a single notification. Content carries the role mention, if any.
type Message struct {
	Content      string
	MentionRoles []string
	Embeds       []Embed
}

type Embed struct {
	Title       string
	URL         string
	Description string
	Color       int
	Author      *EmbedAuthor
	Fields      []EmbedField
	Thumbnail   string
	Timestamp   time.Time
}

type EmbedAuthor struct {
	Name string
	URL  string
}

type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

// ErrorKind classifies send failures by how the dispatcher should react.
type ErrorKind int

const (
	Transient   ErrorKind = iota // retry with backoff
	RateLimited                  // pause the shared budget for RetryAfter, then retry
	Forbidden                    // permanent
	NotFound                     // permanent
)

func (k ErrorKind) String() string {
	switch k {
	case Transient:
		return "transient"
	case RateLimited:
		return "rate_limited"
	case Forbidden:
		return "forbidden"
	case NotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Error is returned by Sender implementations.
type Error struct {
	Kind       ErrorKind
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Kind == RateLimited {
		return fmt.Sprintf("%s (retry after %s): %v", e.Kind, e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Permanent reports whether retrying can never succeed.
func (e *Error) Permanent() bool {
	return e.Kind == Forbidden || e.Kind == NotFound
}

// KindOf returns the kind of err. Errors that are not *Error count as Transient.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return Transient
}
