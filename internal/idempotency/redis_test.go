package idempotency

import (
	"context"
	"net"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flappingKeyHook answers every SETNX with "exists" and every GET with a miss,
// as if the key expired between the two calls each time. No server is contacted.
type flappingKeyHook struct {
	claims int
}

func (h *flappingKeyHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (h *flappingKeyHook) ProcessHook(redis.ProcessHook) redis.ProcessHook {
	return func(_ context.Context, cmd redis.Cmder) error {
		switch c := cmd.(type) {
		case *redis.BoolCmd:
			h.claims++
			c.SetVal(false)
			return nil
		case *redis.StringCmd:
			c.SetErr(redis.Nil)
			return redis.Nil
		}
		return nil
	}
}

func (h *flappingKeyHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func Test_RedisStore_BeginGivesUpOnFlappingKey(t *testing.T) {
	// given
	hook := &flappingKeyHook{}
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	rdb.AddHook(hook)
	t.Cleanup(func() { _ = rdb.Close() })
	store := NewRedisStore(rdb, 0, 0)

	// when
	resp, err := store.Begin(context.Background(), uuid.New(), "k-1")

	// then
	require.ErrorIs(t, err, ErrInFlight)
	assert.Nil(t, resp)
	assert.Equal(t, claimAttempts, hook.claims)
}

func Test_ScopedKey(t *testing.T) {
	cartA, cartB := uuid.New(), uuid.New()

	assert.Equal(t, cartA.String()+":k-1", ScopedKey(cartA, "k-1"))
	assert.NotEqual(t, ScopedKey(cartA, "k-1"), ScopedKey(cartB, "k-1"))
}
