// persistence/postgresql.go
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"  // postgres driver
	_ "modernc.org/sqlite" // sqlite driver

	"github.com/hectormc-main/casa-playgroundServer/models"
)

// SQLStore keeps the snapshot in the state_records table through database/sql.
type SQLStore struct {
	db *sql.DB
	// numbered placeholders ($1) for postgres, ? for sqlite
	numbered bool
}

// NewPostgreSQL connects to PostgreSQL with lib/pq.
func NewPostgreSQL(host string, port int, user, password, dbname string) (*SQLStore, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	return newSQLStore(db, true)
}

// NewSQLite opens (or creates) a SQLite database file.
func NewSQLite(path string) (*SQLStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path)
	if path != ":memory:" {
		dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// one connection keeps :memory: databases alive and serializes sqlite writers
	db.SetMaxOpenConns(1)

	return newSQLStore(db, false)
}

func newSQLStore(db *sql.DB, numbered bool) (*SQLStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLStore{db: db, numbered: numbered}
	if err := s.initTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) initTables(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS state_records (
            record_key VARCHAR(32) PRIMARY KEY,
            data TEXT NOT NULL,
            version BIGINT NOT NULL DEFAULT 0,
            updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
        )
    `)
	return err
}

// rebind rewrites ? placeholders to $N when the driver needs numbered ones.
func (s *SQLStore) rebind(query string) string {
	if !s.numbered {
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

// Load reads every state record and rebuilds the snapshot.
func (s *SQLStore) Load(ctx context.Context) (*models.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT record_key, data, version FROM state_records`)
	if err != nil {
		return nil, fmt.Errorf("load state records: %w", err)
	}
	defer rows.Close()

	var records []record
	for rows.Next() {
		var r record
		var version int64
		if err := rows.Scan(&r.key, &r.data, &version); err != nil {
			return nil, fmt.Errorf("scan state record: %w", err)
		}
		r.version = uint64(version)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load state records: %w", err)
	}
	return joinRecords(records)
}

// Save upserts both records in one transaction.
func (s *SQLStore) Save(ctx context.Context, snapshot *models.Snapshot) error {
	records, err := splitSnapshot(snapshot)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := s.rebind(`
        INSERT INTO state_records (record_key, data, version, updated_at)
        VALUES (?, ?, ?, ?)
        ON CONFLICT (record_key)
        DO UPDATE SET data = excluded.data, version = excluded.version, updated_at = excluded.updated_at
    `)
	now := time.Now().UTC()
	for _, r := range records {
		if _, err := tx.ExecContext(ctx, query, r.key, r.data, int64(r.version), now); err != nil {
			return fmt.Errorf("upsert %s: %w", r.key, err)
		}
	}
	return tx.Commit()
}

// Close closes the database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
