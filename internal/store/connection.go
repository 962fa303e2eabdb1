package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Supported database drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Connection holds the database connection and the dialect it speaks
type Connection struct {
	DB     *sql.DB
	Driver string
}

// NewConnection opens and migrates the result database. An empty postgres
// DSN is built from the standard PG* environment variables.
func NewConnection(ctx context.Context, driver, dsn string) (*Connection, error) {
	switch driver {
	case DriverPostgres:
		if dsn == "" {
			dsn = postgresDSNFromEnv()
		}
	case DriverSQLite:
		if dsn == "" {
			dsn = "geolink.db"
		}
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Set connection pool settings
	if driver == DriverSQLite {
		// a single writer; also keeps an in-memory database alive
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(10)
	}

	c := &Connection{DB: db, Driver: driver}
	if err := c.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// Close closes the database connection
func (c *Connection) Close() error {
	return c.DB.Close()
}

// rebind rewrites ? placeholders into the driver's positional form
func (c *Connection) rebind(query string) string {
	if c.Driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (c *Connection) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS match_run (
			run_id     TEXT PRIMARY KEY,
			created_at TEXT NOT NULL,
			params     TEXT NOT NULL DEFAULT '{}'
		)`,
		`CREATE TABLE IF NOT EXISTS match_result (
			run_id               TEXT NOT NULL,
			target_id            TEXT NOT NULL,
			candidate_id         TEXT,
			string_dist          DOUBLE PRECISION,
			spatial_dist         DOUBLE PRECISION,
			status               TEXT NOT NULL,
			period               INTEGER NOT NULL DEFAULT 0,
			reason               TEXT NOT NULL DEFAULT '',
			region_ids           TEXT NOT NULL DEFAULT '[]',
			review_candidate_ids TEXT NOT NULL DEFAULT '[]',
			PRIMARY KEY (run_id, target_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_match_result_status ON match_result(run_id, status)`,
	}
	for _, s := range stmts {
		if _, err := c.DB.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("failed to migrate schema: %w", err)
		}
	}
	return nil
}

func postgresDSNFromEnv() string {
	host := getEnvOrDefault("PGHOST", "localhost")
	port := getEnvOrDefault("PGPORT", "15432")
	user := getEnvOrDefault("PGUSER", "user")
	password := getEnvOrDefault("PGPASSWORD", "password")
	dbname := getEnvOrDefault("PGDATABASE", "geolink")

	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)
}

// getEnvOrDefault returns environment variable or default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
