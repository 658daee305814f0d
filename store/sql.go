package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

// Supported drivers.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

const schema = `CREATE TABLE IF NOT EXISTS client_state (
	k VARCHAR(191) NOT NULL PRIMARY KEY,
	v TEXT NOT NULL
)`

// SQLStore is a Store backed by a database/sql table. The same queries run on
// SQLite and MySQL.
type SQLStore struct {
	db *sql.DB
}

// Open opens (and creates if needed) the client state table using driver and dsn.
// For SQLite the parent directory of dsn is created.
func Open(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	switch driver {
	case DriverSQLite:
		if dir := filepath.Dir(dsn); dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, fmt.Errorf("could not create store directory: %w", err)
			}
		}
	case DriverMySQL:
	default:
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open store: %w", err)
	}
	if driver == DriverSQLite {
		// a single connection keeps ":memory:" databases consistent
		db.SetMaxOpenConns(1)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not create store schema: %w", err)
	}

	return &SQLStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Get implements Store.
func (s *SQLStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT v FROM client_state WHERE k=?", key).Scan(&value)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", false, nil
	case err != nil:
		return "", false, fmt.Errorf("could not read %q: %w", key, err)
	}
	return value, true, nil
}

// Set implements Store.
func (s *SQLStore) Set(ctx context.Context, key, value string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "UPDATE client_state SET v=? WHERE k=?", value, key)
	if err != nil {
		return fmt.Errorf("could not update %q: %w", key, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not read rows affected: %w", err)
	}

	if n == 0 {
		_, err = tx.ExecContext(ctx, "INSERT INTO client_state(k, v) VALUES(?, ?)", key, value)
		// MySQL reports 0 affected rows when the value is unchanged, so the row may already exist
		var myErr *mysql.MySQLError
		if errors.As(err, &myErr) && myErr.Number == 1062 {
			err = nil
		}
		if err != nil {
			return fmt.Errorf("could not insert %q: %w", key, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}
	return nil
}

// Delete implements Store.
func (s *SQLStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM client_state WHERE k=?", key); err != nil {
		return fmt.Errorf("could not delete %q: %w", key, err)
	}
	return nil
}
