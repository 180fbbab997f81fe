package scan

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pg-sharding/colexec/pkg/execlog"
	"github.com/pg-sharding/colexec/pkg/frame"
	"github.com/pg-sharding/colexec/pkg/models/execerror"
	"github.com/pg-sharding/colexec/pkg/provenance"
)

// inferDtype picks the column type from the first non-null value.
// Anything that is not a number, a bool or a string is read as a string.
func inferDtype(values []any) frame.DataType {
	for _, v := range values {
		switch v.(type) {
		case nil:
			continue
		case bool:
			return frame.Boolean
		case int8, int16, int32:
			return frame.Int32
		case int, int64:
			return frame.Int64
		case uint8, uint16, uint32:
			return frame.UInt32
		case uint, uint64:
			return frame.UInt64
		case float32, float64:
			return frame.Float64
		default:
			return frame.String
		}
	}
	return frame.Null
}

func normalize(v any) any {
	switch x := v.(type) {
	case nil, bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float64:
		return v
	case float32:
		return float64(x)
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(v)
}

// rowsToFrame turns row major values into a frame.
func rowsToFrame(names []string, rows [][]any) (*frame.DataFrame, error) {
	cols := make([]*frame.Series, len(names))
	for j, name := range names {
		values := make([]any, len(rows))
		for i, row := range rows {
			values[i] = normalize(row[j])
		}
		dtype := inferDtype(values)
		if dtype == frame.String {
			for i, v := range values {
				if v != nil {
					values[i] = fmt.Sprint(v)
				}
			}
		}
		s, err := frame.FromValues(name, dtype, values)
		if err != nil {
			return nil, execerror.Newf(execerror.EXEC_SCHEMA_MISMATCH, "column %s: %s", name, err)
		}
		cols[j] = s
	}
	return frame.New(cols...)
}

type pgxQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresSource runs Query over a single pgx connection.
type PostgresSource struct {
	DSN   string
	Query string
	Args  []any

	// set in tests to bypass dialing
	conn pgxQuerier
}

func (s *PostgresSource) Kind() provenance.SourceKind {
	return provenance.SourceDatabase
}

func (s *PostgresSource) Location() []string {
	return []string{s.Query}
}

func (s *PostgresSource) connect(ctx context.Context) (pgxQuerier, func(), error) {
	if s.conn != nil {
		return s.conn, func() {}, nil
	}
	cfg, err := pgx.ParseConfig(s.DSN)
	if err != nil {
		return nil, nil, execerror.Newf(execerror.EXEC_INVALID_OPERATION, "invalid postgres dsn: %s", err)
	}
	cfg.Tracer = &tracelog.TraceLog{
		Logger:   &execlog.ZeroTraceLogger{},
		LogLevel: tracelog.LogLevelDebug,
	}
	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, nil, execerror.Newf(execerror.EXEC_COMPUTE, "failed to connect to postgres: %s", err)
	}
	return conn, func() {
		if err := conn.Close(context.Background()); err != nil {
			execlog.Zero.Error().Err(err).Msg("failed to close postgres connection")
		}
	}, nil
}

func (s *PostgresSource) Read(ctx context.Context, opts ReadOptions) (*frame.DataFrame, *frame.Series, error) {
	conn, closeConn, err := s.connect(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer closeConn()

	rows, err := conn.Query(ctx, s.Query, s.Args...)
	if err != nil {
		return nil, nil, execerror.Newf(execerror.EXEC_COMPUTE, "query failed: %s", err)
	}
	defer rows.Close()

	fds := rows.FieldDescriptions()
	names := make([]string, len(fds))
	for i, fd := range fds {
		names[i] = fd.Name
	}
	var values [][]any
	for rows.Next() {
		row, err := rows.Values()
		if err != nil {
			return nil, nil, err
		}
		values = append(values, row)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, execerror.Newf(execerror.EXEC_COMPUTE, "query failed: %s", err)
	}
	execlog.Zero.Debug().Int("rows", len(values)).Msg("read postgres query")

	df, err := rowsToFrame(names, values)
	if err != nil {
		return nil, nil, err
	}
	return Finish(df, opts)
}

// SQLSource runs Query through database/sql. The lib/pq driver is
// registered as "postgres".
type SQLSource struct {
	Driver string
	DSN    string
	Query  string
	Args   []any

	db *sqlx.DB
}

// NewSQLSourceFromDB reads through an already open handle.
func NewSQLSourceFromDB(db *sqlx.DB, query string, args ...any) *SQLSource {
	return &SQLSource{Driver: db.DriverName(), Query: query, Args: args, db: db}
}

func (s *SQLSource) Kind() provenance.SourceKind {
	return provenance.SourceDatabase
}

func (s *SQLSource) Location() []string {
	return []string{s.Query}
}

func (s *SQLSource) Read(ctx context.Context, opts ReadOptions) (*frame.DataFrame, *frame.Series, error) {
	db := s.db
	if db == nil {
		var err error
		if db, err = sqlx.ConnectContext(ctx, s.Driver, s.DSN); err != nil {
			return nil, nil, execerror.Newf(execerror.EXEC_COMPUTE, "failed to connect to %s: %s", s.Driver, err)
		}
		defer db.Close()
	}

	rows, err := db.QueryxContext(ctx, s.Query, s.Args...)
	if err != nil {
		return nil, nil, execerror.Newf(execerror.EXEC_COMPUTE, "query failed: %s", err)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}
	var values [][]any
	for rows.Next() {
		row, err := rows.SliceScan()
		if err != nil {
			return nil, nil, err
		}
		values = append(values, row)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, execerror.Newf(execerror.EXEC_COMPUTE, "query failed: %s", err)
	}

	df, err := rowsToFrame(names, values)
	if err != nil {
		return nil, nil, err
	}
	return Finish(df, opts)
}

var (
	_ Source = &PostgresSource{}
	_ Source = &SQLSource{}
)
