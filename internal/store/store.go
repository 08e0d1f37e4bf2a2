// Package store owns the current flight set and its fetch state. All mutation
// goes through Refresh; everything else observes copies.
package store

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/rookhaven/flightmap/internal/domain"
	"github.com/rookhaven/flightmap/internal/observability"
)

// FailedMessage is the stable, user-presentable refresh failure text. The raw
// transport or format error never crosses this boundary.
const FailedMessage = "Failed to fetch flight data. Please try again later."

// ErrRefreshInFlight is returned when a refresh is requested while one is
// already running. Concurrent requests are coalesced, not queued: the caller
// gets this sentinel and the in-flight result serves everyone.
var ErrRefreshInFlight = errors.New("refresh already in flight")

// Status is the fetch-state machine position.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusReady
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// Fetcher retrieves raw state-vector rows from the upstream feed.
type Fetcher interface {
	FetchRawStates(ctx context.Context) ([]domain.RawStateVector, error)
}

// Snapshot is a copy-out view of the store at one state transition.
// Generation increments on every successful replacement of the flight set, so
// consumers can key caches on it.
type Snapshot struct {
	Status     Status
	Flights    []domain.Flight
	Message    string
	Generation uint64
}

// Store holds the current flight set and fetch state. The flight set contains
// at most one entry per ID and is fully replaced on each successful refresh;
// a failed refresh leaves the previous set intact.
type Store struct {
	fetcher Fetcher
	logger  *slog.Logger
	metrics *observability.Metrics

	mu         sync.Mutex
	status     Status
	flights    []domain.Flight
	message    string
	generation uint64
	inFlight   bool
	issued     uint64 // refresh sequence numbers handed out
	applied    uint64 // highest sequence whose result was applied

	subs    map[int]chan Snapshot
	nextSub int
}

// New creates an idle Store.
func New(fetcher Fetcher, logger *slog.Logger, metrics *observability.Metrics) *Store {
	return &Store{
		fetcher: fetcher,
		logger:  logger,
		metrics: metrics,
		status:  StatusIdle,
		subs:    make(map[int]chan Snapshot),
	}
}

// State returns a copy of the current snapshot.
func (s *Store) State() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Ready reports whether the first refresh has resolved, successfully or not.
// Used by the readiness endpoint.
func (s *Store) Ready(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.applied == 0 {
		return errors.New("first refresh has not completed yet")
	}
	return nil
}

// Subscribe registers an observer of state transitions. Each subscriber has a
// one-slot buffer with drop-oldest semantics, so a slow consumer only ever
// misses intermediate snapshots, never blocks the store. The returned func
// cancels the subscription and closes the channel.
func (s *Store) Subscribe() (<-chan Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan Snapshot, 1)
	s.subs[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// Refresh runs one fetch-normalize-replace cycle synchronously. If another
// refresh is already in flight it returns ErrRefreshInFlight without issuing
// a second network call. On success the flight set is replaced and the state
// becomes Ready; on failure the set is untouched and the state becomes Failed
// with the stable message. Refresh itself never returns the upstream error.
func (s *Store) Refresh(ctx context.Context) error {
	seq, err := s.begin()
	if err != nil {
		return err
	}
	s.complete(ctx, seq)
	return nil
}

// RefreshAsync starts a refresh in a background goroutine, returning
// ErrRefreshInFlight when one is already running. Used by the manual trigger.
func (s *Store) RefreshAsync(ctx context.Context) error {
	seq, err := s.begin()
	if err != nil {
		return err
	}
	go s.complete(ctx, seq)
	return nil
}

// begin claims the in-flight slot and moves the state machine to Loading
// before any network activity starts.
func (s *Store) begin() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inFlight {
		s.metrics.RefreshTotal.WithLabelValues("coalesced").Inc()
		return 0, ErrRefreshInFlight
	}
	s.inFlight = true
	s.issued++
	s.status = StatusLoading
	s.message = ""
	s.metrics.RefreshLoading.Set(1)
	s.broadcastLocked()
	return s.issued, nil
}

// complete performs the fetch and applies the result. Results are applied in
// issuance order: a completion for a sequence at or below the last applied one
// is discarded, which makes the rare overlapping-completion race deterministic.
func (s *Store) complete(ctx context.Context, seq uint64) {
	start := time.Now()
	rows, err := s.fetcher.FetchRawStates(ctx)

	var flights []domain.Flight
	if err == nil {
		flights = domain.NormalizeStates(rows)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.inFlight = false
	s.metrics.RefreshLoading.Set(0)
	s.metrics.RefreshDuration.Observe(time.Since(start).Seconds())

	if seq <= s.applied {
		s.logger.Warn("discarding stale refresh result", "seq", seq, "applied", s.applied)
		return
	}
	s.applied = seq

	if err != nil {
		s.status = StatusFailed
		s.message = FailedMessage
		s.metrics.RefreshTotal.WithLabelValues("failure").Inc()
		s.logger.Error("refresh failed", "error", err, "retained_flights", len(s.flights))
		s.broadcastLocked()
		return
	}

	dropped := domain.DroppedStates(rows, len(flights))
	s.flights = flights
	s.status = StatusReady
	s.message = ""
	s.generation++
	s.metrics.RefreshTotal.WithLabelValues("success").Inc()
	s.metrics.FlightsCurrent.Set(float64(len(flights)))
	s.metrics.RowsDropped.Add(float64(dropped))
	s.logger.Info("refresh complete",
		"flights", len(flights),
		"dropped_rows", dropped,
		"generation", s.generation,
		"duration", time.Since(start),
	)
	s.broadcastLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	flights := make([]domain.Flight, len(s.flights))
	copy(flights, s.flights)
	return Snapshot{
		Status:     s.status,
		Flights:    flights,
		Message:    s.message,
		Generation: s.generation,
	}
}

// broadcastLocked pushes the current snapshot to every subscriber, replacing
// any undelivered previous snapshot.
func (s *Store) broadcastLocked() {
	snap := s.snapshotLocked()
	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}
