package engine

import (
	"context"
	"io"
	"log/slog"

	"github.com/roach88/tally/internal/schema"
	"github.com/roach88/tally/internal/store"
)

// Tracker records budget mutations as hashed, sealed commits and serves
// the history built from them.
//
// Thread-safety model:
//   - All methods are safe from any goroutine
//   - Concurrent writes serialize at the store's transaction boundary
//   - Subscribe/cancel may race freely with writes
type Tracker struct {
	store    *store.Store
	keys     KeyProvider
	identity IdentityProvider
	clock    Clock
	log      *slog.Logger
	schema   *schema.Validator
	notify   *notifier

	exportWorkers int
}

// Option allows configuration of tracker dependencies.
type Option func(*Tracker)

// WithClock sets the timestamp source.
//
// Default: SystemClock.
func WithClock(c Clock) Option {
	return func(t *Tracker) {
		t.clock = c
	}
}

// WithIdentity sets the user and device provider.
//
// Default: an identity with no author and no device, so commits record
// "Unknown User" unless the request names an author.
func WithIdentity(id IdentityProvider) Option {
	return func(t *Tracker) {
		t.identity = id
	}
}

// WithLogger sets the structured logger.
//
// Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) {
		t.log = l
	}
}

// WithSchema sets the payload validator.
//
// Default: the embedded entity schema.
func WithSchema(v *schema.Validator) Option {
	return func(t *Tracker) {
		t.schema = v
	}
}

// WithExportWorkers bounds concurrent snapshot decryption during export.
//
// Default: 4.
func WithExportWorkers(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.exportWorkers = n
		}
	}
}

// New creates a Tracker over the given store.
//
// keys supplies the snapshot key for each operation. Options configure the
// remaining collaborators (clock, identity, logger, schema).
func New(s *store.Store, keys KeyProvider, opts ...Option) *Tracker {
	t := &Tracker{
		store:         s,
		keys:          keys,
		identity:      StaticIdentity{},
		clock:         SystemClock{},
		log:           slog.Default(),
		exportWorkers: 4,
	}

	for _, opt := range opts {
		opt(t)
	}

	if t.schema == nil {
		t.schema = schema.MustNew()
	}
	if t.keys == nil {
		t.keys = StaticKey(nil)
	}
	t.notify = newNotifier(t.log)
	return t
}

// DiscardLogger returns a logger that drops every record. Used by tests.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ClearHistory wipes every commit and change. This is the only destructive
// operation; there is no per-commit deletion.
func (t *Tracker) ClearHistory(ctx context.Context) error {
	if err := t.store.Clear(ctx); err != nil {
		t.log.Error("clear history failed", "error", err)
		return newError(KindStorage, "clear history", err)
	}

	t.log.Warn("history cleared")
	t.notify.publish(Notification{Kind: NotifyCleared})
	return nil
}
