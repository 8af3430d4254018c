package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "modernc.org/sqlite"             // pure go sqlite driver

	"epiconsole/internal/entity"
)

const defaultPostgresDSN = "postgres://localhost/epiconsole?sslmode=disable"

var sqlOpen = sql.Open

// SQLBackend stores documents in a single records table. It serves both the
// sqlite and the postgres driver; only placeholders and the payload column
// type differ.
type SQLBackend struct {
	db      *sql.DB
	dialect string
}

// OpenSQLite opens (or creates) the database file at path.
func OpenSQLite(ctx context.Context, path string) (*SQLBackend, error) {
	if path == "" {
		path = "epiconsole.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sqlOpen("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a single connection keeps sqlite writes from contending
	db.SetMaxOpenConns(1)
	return newSQLBackend(ctx, db, "sqlite")
}

// OpenPostgres connects using dsn (falls back to a localhost default).
func OpenPostgres(ctx context.Context, dsn string) (*SQLBackend, error) {
	if dsn == "" {
		dsn = defaultPostgresDSN
	}
	db, err := sqlOpen("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return newSQLBackend(ctx, db, "postgres")
}

func newSQLBackend(ctx context.Context, db *sql.DB, dialect string) (*SQLBackend, error) {
	b := &SQLBackend{db: db, dialect: dialect}
	payloadType := "BLOB"
	if dialect == "postgres" {
		payloadType = "JSONB"
	}
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS records (
			collection TEXT NOT NULL,
			id BIGINT NOT NULL,
			payload ` + payloadType + ` NOT NULL,
			PRIMARY KEY (collection, id)
		)`,
		`CREATE TABLE IF NOT EXISTS sequences (
			collection TEXT PRIMARY KEY,
			last_id BIGINT NOT NULL
		)`,
	}
	for _, stmt := range ddl {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create tables: %w", err)
		}
	}
	return b, nil
}

// rebind rewrites ? placeholders for postgres.
func (b *SQLBackend) rebind(q string) string {
	if b.dialect != "postgres" {
		return q
	}
	var sb strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			sb.WriteString("$" + strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func (b *SQLBackend) List(ctx context.Context, collection string) ([]Document, error) {
	rows, err := b.db.QueryContext(ctx, b.rebind(`SELECT id, payload FROM records WHERE collection = ? ORDER BY id`), collection)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", collection, err)
	}
	defer func() { _ = rows.Close() }()
	out := []Document{}
	for rows.Next() {
		var (
			id      int64
			payload []byte
		)
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, Document{ID: entity.ID(id), Payload: payload})
	}
	return out, rows.Err()
}

func (b *SQLBackend) Get(ctx context.Context, collection string, id entity.ID) (Document, error) {
	var payload []byte
	err := b.db.QueryRowContext(ctx, b.rebind(`SELECT payload FROM records WHERE collection = ? AND id = ?`), collection, int64(id)).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNoRecord
	}
	if err != nil {
		return Document{}, fmt.Errorf("select %s %s: %w", collection, id, err)
	}
	return Document{ID: id, Payload: payload}, nil
}

func (b *SQLBackend) Put(ctx context.Context, collection string, doc Document) error {
	q := `INSERT INTO records (collection, id, payload) VALUES (?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET payload = excluded.payload`
	if _, err := b.db.ExecContext(ctx, b.rebind(q), collection, int64(doc.ID), string(doc.Payload)); err != nil {
		return fmt.Errorf("upsert %s %s: %w", collection, doc.ID, err)
	}
	return nil
}

func (b *SQLBackend) Delete(ctx context.Context, collection string, id entity.ID) error {
	res, err := b.db.ExecContext(ctx, b.rebind(`DELETE FROM records WHERE collection = ? AND id = ?`), collection, int64(id))
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", collection, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNoRecord
	}
	return nil
}

func (b *SQLBackend) NextID(ctx context.Context, collection string) (entity.ID, error) {
	q := `INSERT INTO sequences (collection, last_id) VALUES (?, 1)
		ON CONFLICT (collection) DO UPDATE SET last_id = sequences.last_id + 1
		RETURNING last_id`
	var id int64
	if err := b.db.QueryRowContext(ctx, b.rebind(q), collection).Scan(&id); err != nil {
		return 0, fmt.Errorf("next id for %s: %w", collection, err)
	}
	return entity.ID(id), nil
}

// Close releases the connection pool.
func (b *SQLBackend) Close() error { return b.db.Close() }

// DB exposes the underlying handle for tests.
func (b *SQLBackend) DB() *sql.DB { return b.db }
