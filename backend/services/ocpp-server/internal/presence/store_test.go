package presence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"csms/backend/services/ocpp-server/internal/events"
)

// fakeRedis implements the handful of commands the store issues.
type fakeRedis struct {
	redis.Cmdable

	mu   sync.Mutex
	keys map[string]time.Duration
	err  error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{keys: make(map[string]time.Duration)}
}

func (f *fakeRedis) Set(_ context.Context, key string, _ interface{}, ttl time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	f.keys[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := f.keys[k]; ok {
			delete(f.keys, k)
			n++
		}
	}
	return redis.NewIntResult(n, f.err)
}

func (f *fakeRedis) Exists(_ context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := f.keys[k]; ok {
			n++
		}
	}
	return redis.NewIntResult(n, f.err)
}

func (f *fakeRedis) ttl(key string) (time.Duration, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ttl, ok := f.keys[key]
	return ttl, ok
}

type staticLister []string

func (l staticLister) ConnectedIDs() []string { return l }

func TestStoreFollowsConnectionEvents(t *testing.T) {
	ctx := context.Background()
	client := newFakeRedis()
	store := NewStore(client, time.Minute, zap.NewNop())

	store.Emit(events.StationConnected, events.ConnectionPayload{ChargePointID: "CP1", Timestamp: time.Now()})
	ttl, ok := client.ttl("csms:presence:CP1")
	require.True(t, ok)
	assert.Equal(t, time.Minute, ttl)

	online, err := store.IsOnline(ctx, "CP1")
	require.NoError(t, err)
	assert.True(t, online)

	store.Emit(events.MeterValues, events.MeterValuesPayload{ChargePointID: "CP1"})
	store.Emit(events.StationDisconnected, events.ConnectionPayload{ChargePointID: "CP1", Timestamp: time.Now()})

	online, err = store.IsOnline(ctx, "CP1")
	require.NoError(t, err)
	assert.False(t, online)
}

func TestStoreErrorsAreWrapped(t *testing.T) {
	client := newFakeRedis()
	client.err = errors.New("connection refused")
	store := NewStore(client, 0, zap.NewNop())

	err := store.Mark(context.Background(), "CP1", time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, client.err)
	assert.NotPanics(t, func() {
		store.Emit(events.StationConnected, events.ConnectionPayload{ChargePointID: "CP1"})
	})
}

func TestRunRefreshesConnected(t *testing.T) {
	client := newFakeRedis()
	store := NewStore(client, 30*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		store.Run(ctx, staticLister{"CP1", "CP2"})
		close(done)
	}()

	require.Eventually(t, func() bool {
		_, ok1 := client.ttl("csms:presence:CP1")
		_, ok2 := client.ttl("csms:presence:CP2")
		return ok1 && ok2
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}
