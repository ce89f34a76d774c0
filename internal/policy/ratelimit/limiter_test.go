package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiterWaitPacesSameHost(t *testing.T) {
	t.Parallel()

	l := New(Config{PerSecond: 10, Burst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://www.ifood.com.br/delivery/a"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://WWW.ifood.com.br/delivery/b"))
	require.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestLimiterHostsAreIndependent(t *testing.T) {
	t.Parallel()

	l := New(Config{PerSecond: 1, Burst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://www.ifood.com.br/delivery/a"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://aiqfome.com/sp/araraquara/b"))
	require.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestLimiterDisabled(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	ctx := context.Background()
	start := time.Now()
	for range 5 {
		require.NoError(t, l.Wait(ctx, "https://aiqfome.com/x"))
	}
	require.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestLimiterWaitHonorsContext(t *testing.T) {
	t.Parallel()

	l := New(Config{PerSecond: 0.1, Burst: 1})
	require.NoError(t, l.Wait(context.Background(), "https://aiqfome.com/x"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, l.Wait(ctx, "https://aiqfome.com/y"))
}

func TestHost(t *testing.T) {
	t.Parallel()

	require.Equal(t, "www.ifood.com.br", Host("https://WWW.iFood.com.br/delivery"))
	require.Equal(t, "unknown", Host("not a url"))
}
