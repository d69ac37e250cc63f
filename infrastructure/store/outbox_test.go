package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-leaderboard/internal/ports"
)

func TestNewOutbox_InvalidSchedule(t *testing.T) {
	_, err := NewOutbox(newScriptedStore(), OutboxConfig{Schedule: "every now and then"}, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid outbox schedule")
}

func TestOutbox_DeferKeepsNewestPerTeam(t *testing.T) {
	metrics := newCountingMetrics()
	o, err := NewOutbox(newScriptedStore(), OutboxConfig{}, metrics, nil)
	require.NoError(t, err)

	assert.True(t, o.Defer(entry("A", 3, baseTime.Add(time.Minute))))
	assert.True(t, o.Defer(entry("A", 1, baseTime)), "older entry for a queued team is accepted but discarded")
	assert.True(t, o.Defer(entry("B", 2, baseTime)))

	assert.Equal(t, 2, o.Pending())
	assert.Equal(t, 2.0, metrics.gauge("outbox_pending"))
	assert.Equal(t, 3.0, o.pending["A"].RMSE60)
}

func TestOutbox_Capacity(t *testing.T) {
	o, err := NewOutbox(newScriptedStore(), OutboxConfig{Capacity: 2}, nil, nil)
	require.NoError(t, err)

	assert.True(t, o.Defer(entry("A", 1, baseTime)))
	assert.True(t, o.Defer(entry("B", 1, baseTime)))
	assert.False(t, o.Defer(entry("C", 1, baseTime)), "full outbox rejects new teams")
	assert.True(t, o.Defer(entry("A", 2, baseTime.Add(time.Second))), "queued teams can still be refreshed")
	assert.Equal(t, 2, o.Pending())
}

func TestOutbox_Flush(t *testing.T) {
	ctx := context.Background()

	t.Run("writes and drains", func(t *testing.T) {
		store := newScriptedStore()
		metrics := newCountingMetrics()
		o, err := NewOutbox(store, OutboxConfig{}, metrics, nil)
		require.NoError(t, err)

		o.Defer(entry("A", 2, baseTime))
		o.Defer(entry("B", 1, baseTime))

		require.NoError(t, o.Flush(ctx))
		assert.Zero(t, o.Pending())
		assert.Equal(t, 2.0, metrics.counter("outbox_flushed_total"))
		assert.Zero(t, metrics.gauge("outbox_pending"))

		sorted, err := store.GetSorted(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"B", "A"}, names(sorted))
	})

	t.Run("failures stay queued", func(t *testing.T) {
		store := newScriptedStore(unavailable("upsert"))
		o, err := NewOutbox(store, OutboxConfig{}, nil, nil)
		require.NoError(t, err)

		o.Defer(entry("A", 2, baseTime))

		err = o.Flush(ctx)
		require.Error(t, err)
		assert.ErrorIs(t, err, ports.ErrStoreUnavailable)
		assert.Contains(t, err.Error(), "team A")
		assert.Equal(t, 1, o.Pending())

		require.NoError(t, o.Flush(ctx), "store recovered")
		assert.Zero(t, o.Pending())
	})

	t.Run("replay does not clobber a newer stored entry", func(t *testing.T) {
		store := newScriptedStore()
		o, err := NewOutbox(store, OutboxConfig{}, nil, nil)
		require.NoError(t, err)

		o.Defer(entry("A", 9, baseTime))
		require.NoError(t, store.Upsert(ctx, entry("A", 1, baseTime.Add(time.Minute))))

		require.NoError(t, o.Flush(ctx))
		all, err := store.LoadAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, 1.0, all[0].RMSE60)
	})

	t.Run("empty flush", func(t *testing.T) {
		store := newScriptedStore()
		o, err := NewOutbox(store, OutboxConfig{}, nil, nil)
		require.NoError(t, err)
		require.NoError(t, o.Flush(ctx))
		assert.Zero(t, store.Calls())
	})
}

func TestOutbox_ScheduledFlush(t *testing.T) {
	store := newScriptedStore()
	o, err := NewOutbox(store, OutboxConfig{Schedule: "@every 1s"}, nil, nil)
	require.NoError(t, err)

	o.Defer(entry("A", 1, baseTime))
	o.Start()
	defer func() { <-o.Stop().Done() }()

	assert.Eventually(t, func() bool { return o.Pending() == 0 }, 5*time.Second, 50*time.Millisecond)

	all, err := store.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, names(all))
}
