package factory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rain-1/lumbergh/internal/history/opensearch"
	"github.com/rain-1/lumbergh/internal/history/sqlite"
)

func TestFactoryDSNTypes(t *testing.T) {
	tests := []struct {
		name        string
		dsn         string
		expectError bool
	}{
		{"Empty DSN", "", true},
		{"Invalid scheme", "invalid://test", true},
		{"OpenSearch DSN", "opensearch://localhost:9200/service-logs", false},
		{"SQLite memory DSN", "sqlite://:memory:", false},
		{"SQLite bare memory DSN", ":memory:", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink, err := NewSinkFromDSN(tt.dsn)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, sink)
			if closer, ok := sink.(interface{ Close() error }); ok {
				_ = closer.Close()
			}
		})
	}
}

func TestFactorySQLiteFile(t *testing.T) {
	sink, err := NewSinkFromDSN(t.TempDir() + "/history.db")
	require.NoError(t, err)
	s, ok := sink.(*sqlite.Sink)
	require.True(t, ok)
	_ = s.Close()
}

func TestFactoryOpenSearchType(t *testing.T) {
	sink, err := NewSinkFromDSN("elasticsearch://search:9200")
	require.NoError(t, err)
	_, ok := sink.(*opensearch.Sink)
	assert.True(t, ok)
}

func TestClickHouseTarget(t *testing.T) {
	tests := []struct {
		dsn, addr, database, table string
	}{
		{"clickhouse://ch:9000?database=ops&table=events", "ch:9000", "ops", "events"},
		{"clickhouse://ch:9000", "ch:9000", "", "service_history"},
		{"clickhouse://", "localhost:9000", "", "service_history"},
	}
	for _, tt := range tests {
		addr, db, table, err := clickHouseTarget(tt.dsn)
		require.NoError(t, err, tt.dsn)
		assert.Equal(t, tt.addr, addr, tt.dsn)
		assert.Equal(t, tt.database, db, tt.dsn)
		assert.Equal(t, tt.table, table, tt.dsn)
	}
}

func TestOpenSearchTarget(t *testing.T) {
	base, index, err := openSearchTarget("opensearch://search:9200/logs")
	require.NoError(t, err)
	assert.Equal(t, "http://search:9200", base)
	assert.Equal(t, "logs", index)

	base, index, err = openSearchTarget("opensearch://search:9200?tls=true")
	require.NoError(t, err)
	assert.Equal(t, "https://search:9200", base)
	assert.Equal(t, "service-history", index)

	_, _, err = openSearchTarget("opensearch:///idx")
	assert.Error(t, err)
}
