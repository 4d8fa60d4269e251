package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"aimate/pkg/config"
)

func TestPoolConfig_Defaults(t *testing.T) {
	cfg := config.DBConfig{Host: "localhost", Port: 5432, User: "u", Password: "p", Name: "aimate"}

	poolCfg, err := PoolConfig(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, int32(10), poolCfg.MaxConns)
	assert.Equal(t, int32(2), poolCfg.MinConns)

	tracer, ok := poolCfg.ConnConfig.Tracer.(*SlowQueryTracer)
	require.True(t, ok)
	assert.Equal(t, 100*time.Millisecond, tracer.slowThreshold)
}

func TestPoolConfig_Overrides(t *testing.T) {
	cfg := config.DBConfig{
		Host: "localhost", Port: 5432, User: "u", Password: "p", Name: "aimate",
		MaxConns: 25, MinConns: 5, SlowQuery: 250 * time.Millisecond,
	}

	poolCfg, err := PoolConfig(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, int32(25), poolCfg.MaxConns)
	assert.Equal(t, int32(5), poolCfg.MinConns)
	assert.Equal(t, 250*time.Millisecond, poolCfg.ConnConfig.Tracer.(*SlowQueryTracer).slowThreshold)
}

func TestPoolConfig_MinAboveMaxIgnored(t *testing.T) {
	cfg := config.DBConfig{Host: "localhost", Port: 5432, User: "u", Name: "aimate", MaxConns: 3, MinConns: 8}

	poolCfg, err := PoolConfig(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, int32(3), poolCfg.MaxConns)
	assert.Equal(t, int32(2), poolCfg.MinConns)
}
