package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "production", cfg.App.Environment)
	assert.Equal(t, "127.0.0.1", cfg.Postgres.Host)
	assert.False(t, cfg.Elasticsearch.Enabled())
	assert.False(t, cfg.Redis.Enabled())
}

func TestLoadReadsEnvironmentOverrides(t *testing.T) {
	t.Setenv("SERVER_ADDRESS", ":9090")
	t.Setenv("POSTGRES_HOST", "db.internal")
	t.Setenv("ELASTICSEARCH_ADDRESSES", "http://es.internal:9200")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "db.internal", cfg.Postgres.Host)
	assert.True(t, cfg.Elasticsearch.Enabled())
}
