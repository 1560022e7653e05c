package health

import (
	"context"
	"testing"

	"cargohold-backend/internal/middleware"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type okPinger struct{}

func (okPinger) Ping() error { return nil }

func TestCollectHealth_NoDependencies(t *testing.T) {
	result := CollectHealth(context.Background(), nil, nil)

	assert.Equal(t, "issue", result.Status)
	assert.Equal(t, "disconnected", result.Dependencies["database"].Status)
	assert.Equal(t, "disconnected", result.Dependencies["redis"].Status)
	assert.NotEmpty(t, result.Runtime.GoVersion)
}

func TestCollectHealth_AllConnected(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ctx := context.Background()

	require.NoError(t, rdb.Set(ctx, middleware.KeyReqTotal, "10", 0).Err())
	require.NoError(t, rdb.Set(ctx, middleware.KeyReqErrors, "2", 0).Err())

	result := CollectHealth(ctx, rdb, okPinger{})

	assert.Equal(t, "ok", result.Status)
	assert.Equal(t, "connected", result.Dependencies["database"].Status)
	assert.Equal(t, "connected", result.Dependencies["redis"].Status)
	assert.Equal(t, 10, result.Traffic.TotalRequests)
	assert.Equal(t, 2, result.Traffic.FailedCount)
	assert.Equal(t, 8, result.Traffic.SuccessCount)
	assert.Equal(t, "80.0", result.Traffic.SuccessRate)
}
