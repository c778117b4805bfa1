// Package history provides an optional audit sink for completed pulls:
// a MongoDB-backed Recorder, and a no-op default. This generalizes
// pkg/session's Store persistence pattern from "current session state"
// to "append-only log of past pulls" — Record behaves like Store.Set,
// but nothing ever reads its own writes back inside this package.
package history

import (
	"context"
	"time"
)

// PullRecord captures one completed (or failed) pull invocation.
type PullRecord struct {
	Remote          string    `bson:"remote" json:"remote"`
	Roots           []string  `bson:"roots" json:"roots"`
	NFetchedMeta    int       `bson:"n_fetched_metadata" json:"n_fetched_metadata"`
	NFetchedContent int       `bson:"n_fetched_content" json:"n_fetched_content"`
	BytesFetched    int64     `bson:"bytes_fetched" json:"bytes_fetched"`
	StartedAt       time.Time `bson:"started_at" json:"started_at"`
	EndedAt         time.Time `bson:"ended_at" json:"ended_at"`
	Error           string    `bson:"error,omitempty" json:"error,omitempty"`
}

// Duration is a convenience accessor for EndedAt.Sub(StartedAt).
func (r PullRecord) Duration() time.Duration { return r.EndedAt.Sub(r.StartedAt) }

// Recorder persists a PullRecord. Recorder errors are never fatal to the
// pull itself: pull.Run discards them and continues (spec: "Purely
// additive; failures to write history never fail the pull").
type Recorder interface {
	Record(ctx context.Context, rec PullRecord) error
}

// NoopRecorder discards every record. It is the default when no
// history backend is configured.
type NoopRecorder struct{}

func (NoopRecorder) Record(context.Context, PullRecord) error { return nil }

var _ Recorder = NoopRecorder{}
