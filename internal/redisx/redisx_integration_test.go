//go:build integration

package redisx

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(ctr) })

	host, err := ctr.Host(ctx)
	require.NoError(t, err)
	port, err := ctr.MappedPort(ctx, "6379")
	require.NoError(t, err)
	return fmt.Sprintf("%s:%s", host, port.Port())
}

func TestLocker_Serializes(t *testing.T) {
	rdb := New(startRedis(t))
	defer rdb.Close()
	l := NewLocker(rdb)

	var (
		mu      sync.Mutex
		inside  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), 42)
			require.NoError(t, err)
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()
			time.Sleep(20 * time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}

func TestLocker_TimesOut(t *testing.T) {
	rdb := New(startRedis(t))
	defer rdb.Close()
	l := NewLocker(rdb)

	unlock, err := l.Lock(context.Background(), 7)
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, 7)
	assert.ErrorIs(t, err, ErrLockTimeout)
}

func TestStatusCacheAndDedup(t *testing.T) {
	rdb := New(startRedis(t))
	defer rdb.Close()
	ctx := context.Background()

	c := &StatusCache{RDB: rdb}
	_, hit, err := c.Get(ctx, 42)
	require.NoError(t, err)
	assert.False(t, hit)

	gen, err := c.Generation(ctx, 42)
	require.NoError(t, err)
	ok, err := c.Put(ctx, CachedStatus{OrderID: 42, State: "CONFIRMED", TxID: "99"}, gen)
	require.NoError(t, err)
	require.True(t, ok)
	st, hit, err := c.Get(ctx, 42)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "CONFIRMED", st.State)

	require.NoError(t, c.Invalidate(ctx, 42))
	_, hit, _ = c.Get(ctx, 42)
	assert.False(t, hit)

	d := &Dedup{RDB: rdb}
	seen, err := d.Seen(ctx, "dedup:test:e1")
	require.NoError(t, err)
	assert.False(t, seen)
	require.NoError(t, d.Mark(ctx, "dedup:test:e1"))
	seen, _ = d.Seen(ctx, "dedup:test:e1")
	assert.True(t, seen)
}

func TestStatusCache_InvalidateWinsOverSlowReader(t *testing.T) {
	rdb := New(startRedis(t))
	defer rdb.Close()
	ctx := context.Background()
	c := &StatusCache{RDB: rdb}

	// reader misses, takes the generation, then reads the row
	gen, err := c.Generation(ctx, 7)
	require.NoError(t, err)
	stale := CachedStatus{OrderID: 7, State: "UNCONFIRMED", TxID: "99"}

	// the order moves before the reader writes back
	require.NoError(t, c.Invalidate(ctx, 7))

	ok, err := c.Put(ctx, stale, gen)
	require.NoError(t, err)
	assert.False(t, ok)
	_, hit, err := c.Get(ctx, 7)
	require.NoError(t, err)
	assert.False(t, hit)

	// the next reader sees the new generation and may cache
	gen, err = c.Generation(ctx, 7)
	require.NoError(t, err)
	assert.NotEmpty(t, gen)
	ok, err = c.Put(ctx, CachedStatus{OrderID: 7, State: "CONFIRMED", TxID: "99"}, gen)
	require.NoError(t, err)
	assert.True(t, ok)
	st, hit, _ := c.Get(ctx, 7)
	assert.True(t, hit)
	assert.Equal(t, "CONFIRMED", st.State)
}
