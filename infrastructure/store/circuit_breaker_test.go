package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-leaderboard/internal/ports"
)

func newTestBreaker(next ports.LeaderboardStore, maxFailures int) (*CircuitBreakerStore, *time.Time, *countingMetrics) {
	metrics := newCountingMetrics()
	b := NewCircuitBreakerStore(next, maxFailures, time.Minute, metrics, nil)
	now := baseTime
	b.now = func() time.Time { return now }
	return b, &now, metrics
}

func TestCircuitBreakerStore_TripsAndRecovers(t *testing.T) {
	ctx := context.Background()
	backend := newScriptedStore(unavailable("upsert"), unavailable("upsert"), unavailable("upsert"))
	b, now, metrics := newTestBreaker(backend, 2)

	assert.Error(t, b.Upsert(ctx, entry("A", 1, baseTime)))
	assert.Equal(t, BreakerClosed, b.State())
	assert.Error(t, b.Upsert(ctx, entry("A", 1, baseTime)))
	assert.Equal(t, BreakerOpen, b.State())

	err := b.Upsert(ctx, entry("A", 1, baseTime))
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.ErrorIs(t, err, ports.ErrStoreUnavailable)
	assert.Equal(t, 2, backend.Calls(), "open circuit does not reach the backend")

	*now = now.Add(2 * time.Minute)
	assert.Error(t, b.Upsert(ctx, entry("A", 1, baseTime)), "failed probe")
	assert.Equal(t, BreakerOpen, b.State())
	assert.ErrorIs(t, b.Upsert(ctx, entry("A", 1, baseTime)), ErrCircuitOpen)

	*now = now.Add(2 * time.Minute)
	require.NoError(t, b.Upsert(ctx, entry("A", 1, baseTime)))
	assert.Equal(t, BreakerClosed, b.State())
	assert.Equal(t, 4, backend.Calls())

	all, err := b.LoadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, names(all))

	assert.Equal(t, 2.0, metrics.counter("store_circuit_trips_total"))
	assert.Equal(t, 2.0, metrics.counter("store_circuit_rejected_total"))
	assert.Equal(t, float64(BreakerClosed), metrics.gauge("store_circuit_state"))
}

func TestCircuitBreakerStore_IgnoresPermanentErrors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	backend := newScriptedStore(boom, boom, boom)
	b, _, _ := newTestBreaker(backend, 1)

	for range 3 {
		assert.ErrorIs(t, b.Reset(ctx), boom)
	}
	assert.Equal(t, BreakerClosed, b.State())
	assert.Equal(t, 3, backend.Calls())
}

func TestCircuitBreakerStore_SuccessResetsFailureCount(t *testing.T) {
	ctx := context.Background()
	backend := newScriptedStore(unavailable("load"), nil, unavailable("load"))
	b, _, _ := newTestBreaker(backend, 2)

	_, err := b.GetSorted(ctx)
	assert.Error(t, err)
	_, err = b.GetSorted(ctx)
	assert.NoError(t, err)
	_, err = b.GetSorted(ctx)
	assert.Error(t, err)
	assert.Equal(t, BreakerClosed, b.State(), "failures must be consecutive")
}

func TestBreakerState_String(t *testing.T) {
	assert.Equal(t, "closed", BreakerClosed.String())
	assert.Equal(t, "open", BreakerOpen.String())
	assert.Equal(t, "half_open", BreakerHalfOpen.String())
	assert.Equal(t, "unknown", BreakerState(9).String())
}
