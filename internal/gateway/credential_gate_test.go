package gateway

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/hungson175/hd-tts/internal/broker"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestIsLocalhostIgnoresForwardedForByDefault(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "203.0.113.5:1234"
	req.Header.Set("X-Forwarded-For", "127.0.0.1")

	require.False(t, isLocalhost(req, false))
	require.True(t, isLocalhost(req, true))
}

func TestIsLocalhostAcceptsLoopbackSocket(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "127.0.0.1:9999"
	require.True(t, isLocalhost(req, false))
}

func TestRateLimiterAllowsUpToPerSecondThenDenies(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	rl := newRateLimiter(broker.NewFromClient(client), 2)
	ctx := context.Background()

	ok1, err := rl.allow(ctx, "caller-a")
	require.NoError(t, err)
	require.True(t, ok1)

	ok2, err := rl.allow(ctx, "caller-a")
	require.NoError(t, err)
	require.True(t, ok2)

	ok3, err := rl.allow(ctx, "caller-a")
	require.NoError(t, err)
	require.False(t, ok3)
}

func TestRateLimiterDisabledWhenPerSecIsZero(t *testing.T) {
	rl := newRateLimiter(nil, 0)
	ok, err := rl.allow(context.Background(), "anyone")
	require.NoError(t, err)
	require.True(t, ok)
}
