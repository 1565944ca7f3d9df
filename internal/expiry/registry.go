// Package expiry tracks which artifacts are currently available and for how
// much longer, and reaps them once their lifetime elapses.
//
// Each identifier moves through ABSENT -> REGISTERED -> EXPIRING -> ABSENT.
// Only Register enters REGISTERED and only the scheduler, via Expire, leaves
// it. The mapping is the single source of truth for availability.
package expiry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dharsanguruparan/FlatDrop/internal/clock"
	"github.com/dharsanguruparan/FlatDrop/internal/metrics"
)

var (
	// ErrNotFound means the artifact never existed or has expired.
	ErrNotFound = errors.New("artifact not available")
	// ErrAlreadyRegistered is returned when an id is registered twice.
	ErrAlreadyRegistered = errors.New("artifact already registered")
)

// Scheduler runs a fire-once expiry for id at the given instant. Scheduled
// expiries cannot be cancelled.
type Scheduler interface {
	Schedule(ctx context.Context, id string, at time.Time) error
}

// ExpireFunc is what a Scheduler calls when an expiry comes due.
type ExpireFunc func(ctx context.Context, id string)

// Reaper physically deletes an artifact and its intermediate page images.
type Reaper interface {
	Reap(ctx context.Context, id string) error
}

// Journal records expiries outside the process. Optional.
type Journal interface {
	MarkExpired(ctx context.Context, id string, at time.Time) error
}

type state int

const (
	stateRegistered state = iota + 1
	stateExpiring
)

type entry struct {
	expiresAt time.Time
	state     state
}

// Registry maps artifact ids to their absolute expiry.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry

	clock   clock.Clock
	sched   Scheduler
	reaper  Reaper
	journal Journal
	metrics metrics.Metrics
	log     zerolog.Logger
}

// Option customizes a Registry.
type Option func(*Registry)

// WithJournal records expiries in j.
func WithJournal(j Journal) Option {
	return func(r *Registry) { r.journal = j }
}

// WithMetrics reports registry activity to m.
func WithMetrics(m metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(r *Registry) { r.log = log }
}

// NewRegistry builds a Registry. The caller must route the scheduler's
// callbacks to Expire.
func NewRegistry(c clock.Clock, sched Scheduler, reaper Reaper, opts ...Option) *Registry {
	r := &Registry{
		entries: make(map[string]*entry),
		clock:   c,
		sched:   sched,
		reaper:  reaper,
		metrics: metrics.Noop{},
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register records id as available for ttl and schedules its expiry. The
// entry is rolled back if scheduling fails.
func (r *Registry) Register(ctx context.Context, id string, ttl time.Duration) (time.Time, error) {
	if ttl <= 0 {
		return time.Time{}, fmt.Errorf("register %s: ttl must be positive, got %v", id, ttl)
	}
	r.mu.Lock()
	if _, exists := r.entries[id]; exists {
		r.mu.Unlock()
		return time.Time{}, fmt.Errorf("register %s: %w", id, ErrAlreadyRegistered)
	}
	expiresAt := r.clock.Now().Add(ttl)
	r.entries[id] = &entry{expiresAt: expiresAt, state: stateRegistered}
	r.mu.Unlock()

	if err := r.sched.Schedule(ctx, id, expiresAt); err != nil {
		r.mu.Lock()
		delete(r.entries, id)
		r.mu.Unlock()
		return time.Time{}, fmt.Errorf("schedule expiry for %s: %w", id, err)
	}
	r.metrics.IncActiveArtifacts()
	r.log.Debug().Str("artifact", id).Time("expires_at", expiresAt).Msg("artifact registered")
	return expiresAt, nil
}

// TimeRemaining returns how long id stays available. It never blocks on I/O.
func (r *Registry) TimeRemaining(id string) (time.Duration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok || e.state != stateRegistered {
		return 0, ErrNotFound
	}
	if d := e.expiresAt.Sub(r.clock.Now()); d > 0 {
		return d, nil
	}
	return 0, nil
}

// Len reports how many ids are registered or expiring.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Expire is the scheduler callback. It hides the entry, reaps the artifact
// and removes the mapping whether or not the reap succeeded. An id with no
// entry is still reaped: durable schedulers can fire after a restart.
func (r *Registry) Expire(ctx context.Context, id string) {
	r.mu.Lock()
	e, tracked := r.entries[id]
	if tracked {
		if e.state == stateExpiring {
			r.mu.Unlock()
			return
		}
		e.state = stateExpiring
	}
	r.mu.Unlock()

	log := r.log.With().Str("artifact", id).Logger()
	result := "ok"
	if err := r.reaper.Reap(ctx, id); err != nil {
		result = "reap_failed"
		log.Error().Err(err).Msg("reap expired artifact")
	}

	if tracked {
		r.mu.Lock()
		delete(r.entries, id)
		r.mu.Unlock()
		r.metrics.DecActiveArtifacts()
	} else {
		result = "untracked"
	}
	r.metrics.IncExpirations(result)

	if r.journal != nil {
		if err := r.journal.MarkExpired(ctx, id, r.clock.Now()); err != nil {
			log.Warn().Err(err).Msg("journal expiry")
		}
	}
	log.Info().Str("result", result).Msg("artifact expired")
}
