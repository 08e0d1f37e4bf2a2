package store_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rookhaven/flightmap/internal/domain"
	"github.com/rookhaven/flightmap/internal/observability"
	"github.com/rookhaven/flightmap/internal/store"
)

// --- mocks ---

// mockFetcher serves queued results, one per call, and can block to simulate
// a slow upstream.
type mockFetcher struct {
	mu      sync.Mutex
	results []fetchResult
	calls   int
	block   chan struct{} // when non-nil, FetchRawStates waits on it
}

type fetchResult struct {
	rows []domain.RawStateVector
	err  error
}

func (m *mockFetcher) FetchRawStates(_ context.Context) ([]domain.RawStateVector, error) {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if len(m.results) == 0 {
		return nil, nil
	}
	r := m.results[0]
	m.results = m.results[1:]
	return r.rows, r.err
}

func (m *mockFetcher) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func row(id string, lon, lat float64) domain.RawStateVector {
	return domain.RawStateVector{
		id, id + "-CS", "Testland", nil, nil,
		lon, lat, 1000.0, false, 100.0, 45.0,
		nil, nil, nil, nil, "", false,
	}
}

func newStore(f store.Fetcher) *store.Store {
	return store.New(f, slog.Default(), observability.NewMetricsForTesting())
}

// --- tests ---

func TestRefreshSuccess(t *testing.T) {
	f := &mockFetcher{results: []fetchResult{
		{rows: []domain.RawStateVector{row("abc123", -73.5, 40.7), row("def456", 8.5, 50.0)}},
	}}
	s := newStore(f)

	require.NoError(t, s.Refresh(context.Background()))

	snap := s.State()
	assert.Equal(t, store.StatusReady, snap.Status)
	assert.Empty(t, snap.Message)
	assert.Equal(t, uint64(1), snap.Generation)
	require.Len(t, snap.Flights, 2)
	assert.Equal(t, "abc123", snap.Flights[0].ID)
}

func TestRefreshFailureKeepsPriorFlights(t *testing.T) {
	f := &mockFetcher{results: []fetchResult{
		{rows: []domain.RawStateVector{row("abc123", -73.5, 40.7), row("def456", 8.5, 50.0), row("ghi789", 2.3, 48.8)}},
		{err: errors.New("connection refused")},
	}}
	s := newStore(f)

	require.NoError(t, s.Refresh(context.Background()))
	ready := s.State()
	require.Len(t, ready.Flights, 3)

	require.NoError(t, s.Refresh(context.Background()))
	failed := s.State()

	assert.Equal(t, store.StatusFailed, failed.Status)
	assert.Equal(t, store.FailedMessage, failed.Message)
	assert.Len(t, failed.Flights, 3, "failed refresh must not touch the prior set")
	assert.Equal(t, ready.Generation, failed.Generation)
	if diff := cmp.Diff(ready.Flights, failed.Flights); diff != "" {
		t.Errorf("flight set changed across failed refresh (-ready +failed):\n%s", diff)
	}
}

func TestRefreshFailureBeforeFirstSuccess(t *testing.T) {
	f := &mockFetcher{results: []fetchResult{{err: errors.New("boom")}}}
	s := newStore(f)

	require.NoError(t, s.Refresh(context.Background()))
	snap := s.State()
	assert.Equal(t, store.StatusFailed, snap.Status)
	assert.Empty(t, snap.Flights)
	assert.Equal(t, store.FailedMessage, snap.Message)
}

func TestRefreshReplacesWholeSet(t *testing.T) {
	f := &mockFetcher{results: []fetchResult{
		{rows: []domain.RawStateVector{row("abc123", -73.5, 40.7), row("def456", 8.5, 50.0)}},
		{rows: []domain.RawStateVector{row("def456", 9.0, 51.0)}},
	}}
	s := newStore(f)

	require.NoError(t, s.Refresh(context.Background()))
	require.NoError(t, s.Refresh(context.Background()))

	snap := s.State()
	require.Len(t, snap.Flights, 1, "set is replaced, not merged")
	assert.Equal(t, "def456", snap.Flights[0].ID)
	assert.Equal(t, 51.0, snap.Flights[0].Latitude)
	assert.Equal(t, uint64(2), snap.Generation)
}

func TestConcurrentRefreshCoalesced(t *testing.T) {
	block := make(chan struct{})
	f := &mockFetcher{
		block:   block,
		results: []fetchResult{{rows: []domain.RawStateVector{row("abc123", -73.5, 40.7)}}},
	}
	s := newStore(f)

	require.NoError(t, s.RefreshAsync(context.Background()))

	// The store is Loading while the upstream call is blocked.
	require.Eventually(t, func() bool {
		return s.State().Status == store.StatusLoading
	}, time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, s.Refresh(context.Background()), store.ErrRefreshInFlight)
	assert.ErrorIs(t, s.RefreshAsync(context.Background()), store.ErrRefreshInFlight)

	close(block)
	require.Eventually(t, func() bool {
		return s.State().Status == store.StatusReady
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, f.callCount(), "coalesced requests must not issue extra network calls")
}

func TestSubscribeReceivesTransitions(t *testing.T) {
	f := &mockFetcher{results: []fetchResult{
		{rows: []domain.RawStateVector{row("abc123", -73.5, 40.7)}},
	}}
	s := newStore(f)

	ch, cancel := s.Subscribe()
	defer cancel()

	require.NoError(t, s.Refresh(context.Background()))

	// The one-slot buffer keeps only the latest transition: Ready wins over
	// the intermediate Loading snapshot.
	select {
	case snap := <-ch:
		assert.Equal(t, store.StatusReady, snap.Status)
		assert.Len(t, snap.Flights, 1)
	case <-time.After(time.Second):
		t.Fatal("no snapshot delivered")
	}
}

func TestSubscribeCancelClosesChannel(t *testing.T) {
	s := newStore(&mockFetcher{})
	ch, cancel := s.Subscribe()
	cancel()
	cancel() // idempotent

	_, open := <-ch
	assert.False(t, open)
}

func TestStateReturnsCopy(t *testing.T) {
	f := &mockFetcher{results: []fetchResult{
		{rows: []domain.RawStateVector{row("abc123", -73.5, 40.7)}},
	}}
	s := newStore(f)
	require.NoError(t, s.Refresh(context.Background()))

	snap := s.State()
	snap.Flights[0].Callsign = "mutated"

	assert.Equal(t, "abc123-CS", s.State().Flights[0].Callsign)
}

func TestReadiness(t *testing.T) {
	f := &mockFetcher{results: []fetchResult{{err: errors.New("boom")}}}
	s := newStore(f)

	assert.Error(t, s.Ready(context.Background()), "not ready before first refresh resolves")

	require.NoError(t, s.Refresh(context.Background()))
	assert.NoError(t, s.Ready(context.Background()), "a resolved failure still counts as ready")
}
