package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"tenderlens/internal/cache"
)

type sample struct {
	Labels []string `json:"labels"`
	Data   []int    `json:"data"`
}

func TestTiered_LocalOnly(t *testing.T) {
	ctx := context.Background()
	tiered := cache.NewTiered(cache.New(10), nil, nil)

	var got sample
	require.False(t, tiered.Load(ctx, "k", &got))

	tiered.Store(ctx, "k", sample{Labels: []string{"医疗"}, Data: []int{3}}, time.Minute)
	require.True(t, tiered.Load(ctx, "k", &got))
	require.Equal(t, []string{"医疗"}, got.Labels)
	require.Equal(t, []int{3}, got.Data)
}

func TestTiered_StoredValueIsDetached(t *testing.T) {
	ctx := context.Background()
	tiered := cache.NewTiered(cache.New(10), nil, nil)

	v := sample{Labels: []string{"a"}, Data: []int{1}}
	tiered.Store(ctx, "k", v, time.Minute)
	v.Data[0] = 99

	var got sample
	require.True(t, tiered.Load(ctx, "k", &got))
	require.Equal(t, 1, got.Data[0])
}

func TestTiered_RedisHitPopulatesLocal(t *testing.T) {
	ctx := context.Background()
	_, client := newRedis(t)
	remote := cache.NewRemoteCache(client, "", nil)
	local := cache.New(10)

	writer := cache.NewTiered(cache.New(10), remote, nil)
	writer.Store(ctx, "k", sample{Data: []int{7}}, time.Minute)

	reader := cache.NewTiered(local, remote, nil)
	var got sample
	require.True(t, reader.Load(ctx, "k", &got))
	require.Equal(t, []int{7}, got.Data)
	require.Equal(t, 1, local.Len())
}

func TestTiered_InvalidatePrefixClearsBothTiers(t *testing.T) {
	ctx := context.Background()
	_, client := newRedis(t)
	remote := cache.NewRemoteCache(client, "", nil)
	tiered := cache.NewTiered(cache.New(10), remote, nil)

	tiered.Store(ctx, "dash:a:trend", sample{}, time.Minute)
	tiered.Store(ctx, "dash:b:trend", sample{}, time.Minute)

	require.Equal(t, 2, tiered.InvalidatePrefix(ctx, "dash:a:"))

	var got sample
	require.False(t, tiered.Load(ctx, "dash:a:trend", &got))
	require.True(t, tiered.Load(ctx, "dash:b:trend", &got))
}

func TestTiered_RedisFailureIsLoggedNotFatal(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedis(t)
	remote := cache.NewRemoteCache(client, "", nil)
	logger, hook := test.NewNullLogger()
	tiered := cache.NewTiered(cache.New(10), remote, logger)
	mr.Close()

	tiered.Store(ctx, "k", sample{Data: []int{1}}, time.Minute)

	var got sample
	require.True(t, tiered.Load(ctx, "k", &got), "local tier still serves")
	require.NotNil(t, hook.LastEntry())
	require.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestTiered_NilIsSafe(t *testing.T) {
	var tiered *cache.Tiered
	var got sample
	require.False(t, tiered.Load(context.Background(), "k", &got))
	tiered.Store(context.Background(), "k", sample{}, time.Minute)
	require.Zero(t, tiered.InvalidatePrefix(context.Background(), "k"))
}
