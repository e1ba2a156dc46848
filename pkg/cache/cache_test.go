package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewFromRedis(rdb)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestGetSetRoundTrip(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	type doc struct {
		Name string `json:"name"`
		N    int    `json:"n"`
	}

	err := c.Set(ctx, "k1", doc{Name: "m1", N: 7}, time.Minute)
	require.NoError(t, err)

	var got doc
	err = c.GetJSON(ctx, "k1", &got)
	require.NoError(t, err)
	assert.Equal(t, "m1", got.Name)
	assert.Equal(t, 7, got.N)
}

func TestGetMissing(t *testing.T) {
	c, _ := newTestClient(t)

	_, err := c.Get(context.Background(), "absent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetTTLExpires(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "short", "v", time.Minute))
	mr.FastForward(2 * time.Minute)

	_, err := c.Get(ctx, "short")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetNXAndXX(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	stored, err := c.SetNX(ctx, "k", "first", time.Minute)
	require.NoError(t, err)
	assert.True(t, stored)

	stored, err = c.SetNX(ctx, "k", "second", time.Minute)
	require.NoError(t, err)
	assert.False(t, stored)

	stored, err = c.SetXX(ctx, "k", "third", time.Minute)
	require.NoError(t, err)
	assert.True(t, stored)

	b, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "third", string(b))

	stored, err = c.SetXX(ctx, "missing", "v", time.Minute)
	require.NoError(t, err)
	assert.False(t, stored)
}

func TestDeleteAndExists(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", "1", 0))
	require.NoError(t, c.Set(ctx, "b", "2", 0))

	n, err := c.Exists(ctx, "a", "b", "c")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = c.Delete(ctx, "a", "b", "c")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestDeletePatternScansFullKeyspace(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	// More keys than one SCAN batch so the cursor loop is exercised.
	for i := 0; i < 250; i++ {
		require.NoError(t, c.Set(ctx, fmt.Sprintf("tenant:t1:monitor:%d", i), "v", 0))
	}
	require.NoError(t, c.Set(ctx, "tenant:t2:monitor:0", "keep", 0))

	n, err := c.DeletePattern(ctx, "tenant:t1:monitor:*")
	require.NoError(t, err)
	assert.Equal(t, int64(250), n)

	keys, err := c.KeysPattern(ctx, "tenant:*")
	require.NoError(t, err)
	assert.Equal(t, []string{"tenant:t2:monitor:0"}, keys)
}

func TestSetOperations(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.SAdd(ctx, "active", "m1", "m2"))
	require.NoError(t, c.SAdd(ctx, "active", "m2"))

	members, err := c.SMembers(ctx, "active")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"m1", "m2"}, members)

	require.NoError(t, c.SRem(ctx, "active", "m1"))
	members, err = c.SMembers(ctx, "active")
	require.NoError(t, err)
	assert.Equal(t, []string{"m2"}, members)
}

func TestListOperations(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.LPush(ctx, "recent", "a"))
	require.NoError(t, c.LPush(ctx, "recent", "b"))

	vals, err := c.LRange(ctx, "recent", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, vals)
}

func TestTransactionalPipeline(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	err := c.Pipeline(ctx, true, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, "p1", "v1", 0)
		pipe.SAdd(ctx, "pset", "x")
		return nil
	})
	require.NoError(t, err)

	b, err := c.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "v1", string(b))

	members, err := c.SMembers(ctx, "pset")
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, members)
}

func TestPublishSubscribe(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	sub := c.Subscribe(ctx, "blip0:monitor:update")
	defer sub.Close()

	// Wait for the subscription to register before publishing.
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	n, err := c.Publish(ctx, "blip0:monitor:update", map[string]string{"action": "create"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	select {
	case msg := <-sub.Channel():
		assert.Contains(t, msg.Payload, "create")
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}
