package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/microsoft/go-mssqldb"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"codeberg.org/graphmirror/graphmirror/pkg/config"
)

// Store wraps the mirror database. All SQL is written with ? placeholders
// and rebound per driver.
type Store struct {
	db     *sql.DB
	driver string
	logger *zap.Logger
}

func Open(cfg *config.DatabaseConfig, logger *zap.Logger) (*Store, error) {
	driver, dsn, err := buildDSN(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == "sqlite" {
		// SQLite doesn't benefit from connection pooling
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db, driver: driver, logger: logger}, nil
}

func buildDSN(cfg *config.DatabaseConfig) (driver, dsn string, err error) {
	switch cfg.Driver {
	case "sqlite":
		path := cfg.Path
		if path == ":memory:" {
			path = ":memory:?mode=memory"
			return "sqlite", "file:" + path, nil
		}
		return "sqlite", fmt.Sprintf("file:%s?mode=rwc", path), nil
	case "postgres":
		port := cfg.Port
		if port == 0 {
			port = 5432
		}
		dsn = fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode,
		)
		return "postgres", dsn, nil
	case "mysql":
		port := cfg.Port
		if port == 0 {
			port = 3306
		}
		// clientFoundRows makes RowsAffected report matched rows, not changed
		// rows. The update-then-insert upserts depend on that to tell "row
		// exists, unchanged" apart from "row missing".
		dsn = fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=true&clientFoundRows=true",
			cfg.User, cfg.Password, cfg.Host, port, cfg.Name,
		)
		return "mysql", dsn, nil
	case "sqlserver":
		port := cfg.Port
		if port == 0 {
			port = 1433
		}
		dsn = fmt.Sprintf(
			"server=%s;port=%d;user id=%s;password=%s;database=%s;encrypt=%s",
			cfg.Host, port, cfg.User, cfg.Password, cfg.Name, cfg.Encrypt,
		)
		return "sqlserver", dsn, nil
	default:
		return "", "", fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Driver() string {
	return s.driver
}

// rebind converts ? placeholders to the driver's native form.
func (s *Store) rebind(query string) string {
	switch s.driver {
	case "postgres", "sqlserver":
	default:
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] != '?' {
			b.WriteByte(query[i])
			continue
		}
		n++
		if s.driver == "postgres" {
			b.WriteString("$" + strconv.Itoa(n))
		} else {
			b.WriteString("@p" + strconv.Itoa(n))
		}
	}
	return b.String()
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(query), args...)
}

func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.rebind(query), args...)
}

// PageClause returns the driver's row-limiting fragment and its arguments.
// SQL Server has no LIMIT/OFFSET and needs an ORDER BY for OFFSET..FETCH.
func (s *Store) PageClause(limit, offset int) (string, []any) {
	if s.driver == "sqlserver" {
		return "ORDER BY (SELECT NULL) OFFSET ? ROWS FETCH NEXT ? ROWS ONLY", []any{offset, limit}
	}
	return "LIMIT ? OFFSET ?", []any{limit, offset}
}

// QueryMaps runs an arbitrary SELECT and scans each row into a column map.
// Report queries are shaped at runtime, so fixed-struct scanning doesn't fit.
func (s *Store) QueryMaps(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	return rowsToMaps(rows)
}

// QueryCount runs a single-value COUNT query.
func (s *Store) QueryCount(ctx context.Context, query string, args ...any) (int, error) {
	var total int
	if err := s.queryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count query failed: %w", err)
	}
	return total, nil
}

func rowsToMaps(rows *sql.Rows) ([]map[string]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		results = append(results, row)
	}

	return results, rows.Err()
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
