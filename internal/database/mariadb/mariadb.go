// Package mariadb implements the attendance repositories on MariaDB/MySQL.
package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/kozaktomas/rollcall/internal/database"
)

// errDuplicateEntry is the MySQL server error number for unique key conflicts.
const errDuplicateEntry = 1062

// Pool manages a MariaDB connection pool.
type Pool struct {
	db *sql.DB
}

// NewPool creates a new MariaDB connection pool.
func NewPool(dsn string) (*Pool, error) {
	if dsn == "" {
		return nil, errors.New("MariaDB DSN is required")
	}

	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid MariaDB DSN: %w", err)
	}
	// DATETIME columns are scanned straight into time.Time.
	cfg.ParseTime = true
	cfg.Loc = time.UTC

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create MariaDB connector: %w", err)
	}
	db := sql.OpenDB(connector)

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MariaDB: %w", err)
	}

	return &Pool{db: db}, nil
}

// Close closes the connection pool.
func (p *Pool) Close() error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("closing database connection: %w", err)
		}
	}
	return nil
}

// Backend implements database.Backend on a MariaDB pool.
type Backend struct {
	pool *Pool
}

var _ database.Backend = (*Backend)(nil)

// Initialize connects to MariaDB, ensures the schema exists and returns the backend.
func Initialize(dsn string) (*Backend, error) {
	pool, err := NewPool(dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.EnsureSchema(context.Background()); err != nil {
		_ = pool.Close()
		return nil, err
	}
	return &Backend{pool: pool}, nil
}

// NewBackend wraps a pool whose schema is already in place.
func NewBackend(pool *Pool) *Backend {
	return &Backend{pool: pool}
}

// Close closes the underlying pool.
func (b *Backend) Close() error {
	return b.pool.Close()
}

func isDuplicateEntry(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == errDuplicateEntry
}
