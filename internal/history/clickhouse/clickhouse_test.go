package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/clickhouse"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/rain-1/lumbergh/internal/history"
)

// setupClickHouseContainer starts a ClickHouse container and returns its
// native-protocol address.
func setupClickHouseContainer(ctx context.Context, t *testing.T) (testcontainers.Container, string) {
	t.Helper()

	clickHouseContainer, err := clickhouse.Run(ctx,
		"clickhouse/clickhouse-server:24.3.2.23",
		clickhouse.WithUsername("default"),
		clickhouse.WithPassword(""),
		clickhouse.WithDatabase("default"),
		testcontainers.WithWaitStrategy(
			wait.ForHTTP("/ping").
				WithPort("8123/tcp").
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err, "start ClickHouse container")

	host, err := clickHouseContainer.Host(ctx)
	require.NoError(t, err)
	port, err := clickHouseContainer.MappedPort(ctx, "9000")
	require.NoError(t, err)

	return clickHouseContainer, host + ":" + port.Port()
}

func TestOptional(t *testing.T) {
	assert.Nil(t, optional(""))
	s := optional("SIGTERM")
	require.NotNil(t, s)
	assert.Equal(t, "SIGTERM", *s)
}

func TestClickHouseSink_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	container, addr := setupClickHouseContainer(ctx, t)
	defer func() {
		if err := container.Terminate(ctx); err != nil {
			t.Errorf("Failed to terminate ClickHouse container: %v", err)
		}
	}()

	sink, err := New(addr, "", "service_history")
	require.NoError(t, err)
	defer func() { assert.NoError(t, sink.Close()) }()

	require.NoError(t, sink.Send(ctx, history.Event{Type: history.EventExit, OccurredAt: time.Now().UTC(), Name: "web", PID: 9, ExitCode: 2}))
	require.NoError(t, sink.Send(ctx, history.Event{Type: history.EventExit, OccurredAt: time.Now().UTC(), Name: "web", PID: 10, ExitCode: -1, Signal: "SIGKILL"}))

	var n uint64
	require.NoError(t, sink.conn.QueryRow(ctx, "SELECT count() FROM service_history WHERE name = 'web'").Scan(&n))
	assert.Equal(t, uint64(2), n)

	var signalled uint64
	require.NoError(t, sink.conn.QueryRow(ctx,
		"SELECT count() FROM service_history WHERE pid = 10 AND exit_code IS NULL AND signal = 'SIGKILL'").Scan(&signalled))
	assert.Equal(t, uint64(1), signalled)
}

func TestClickHouseSink_ConnectionError(t *testing.T) {
	_, err := New("127.0.0.1:1", "", "service_history")
	assert.Error(t, err)
}
