package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/pkg/errors"

	"github.com/rain-1/lumbergh/internal/history"
)

// Sink sends events to ClickHouse using the official ClickHouse Go client.
type Sink struct {
	conn  driver.Conn
	table string
}

// New connects to the native ClickHouse endpoint at addr and creates table
// if it does not exist.
func New(addr, database, table string) (*Sink, error) {
	if database == "" {
		database = "default"
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: database,
			Username: "default",
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "connect to clickhouse")
	}

	ctx := context.Background()
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "ping clickhouse")
	}

	s := &Sink{conn: conn, table: table}
	if err := s.ensureSchema(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	q := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		occurred_at DateTime64(3),
		event LowCardinality(String),
		name String,
		pid Int32,
		exit_code Nullable(Int32),
		signal Nullable(String),
		error Nullable(String)
	) ENGINE = MergeTree ORDER BY (name, occurred_at)`, s.table)
	return errors.Wrapf(s.conn.Exec(ctx, q), "create %s", s.table)
}

func (s *Sink) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	var code *int32
	if e.Type == history.EventExit && e.Signal == "" {
		c := int32(e.ExitCode)
		code = &c
	}
	query := fmt.Sprintf(`INSERT INTO %s (occurred_at, event, name, pid, exit_code, signal, error) VALUES (?, ?, ?, ?, ?, ?, ?)`, s.table)
	err := s.conn.Exec(ctx, query,
		e.OccurredAt.UTC(),
		string(e.Type),
		e.Name,
		int32(e.PID),
		code,
		optional(e.Signal),
		optional(e.Error),
	)
	return errors.Wrap(err, "insert event into clickhouse")
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
