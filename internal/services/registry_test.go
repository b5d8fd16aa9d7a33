package services

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docrouter/internal/config"
)

func TestRegistryAccessors(t *testing.T) {
	reg := NewRegistry(Options{})
	require.NotNil(t, reg)

	assert.Nil(t, reg.Pipeline())
	assert.Nil(t, reg.Gate())
	assert.Nil(t, reg.Knowledge())
	assert.Nil(t, reg.Queue())
	assert.Nil(t, reg.Similarity())
}

func TestRegistryCloseEmpty(t *testing.T) {
	reg := NewRegistry(Options{})
	assert.NoError(t, reg.Close())
}

func TestBuild_InMemory(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Path = ":memory:"
	cfg.Similarity.Path = t.TempDir()

	reg, err := Build(cfg, zap.NewNop(), BuildOptions{
		Registerer: prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	defer reg.Close()

	require.NotNil(t, reg.Pipeline())
	require.NotNil(t, reg.Gate())
	require.NotNil(t, reg.Knowledge())
	require.NotNil(t, reg.Queue())

	// The wired pipeline is usable end to end.
	stats, err := reg.Pipeline().KnowledgeStats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.PendingReviews)
}

func TestBuild_ScanDisabled(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Path = ":memory:"
	cfg.Similarity.Path = t.TempDir()
	cfg.Scan.Disabled = true

	reg, err := Build(cfg, zap.NewNop(), BuildOptions{
		Registerer: prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	defer reg.Close()
	require.NotNil(t, reg.Pipeline())
}
