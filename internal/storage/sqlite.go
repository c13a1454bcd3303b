package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/deusflow/sitewatch/internal/news"
)

// SQLiteStore keeps all sources in one SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// modernc sqlite serialises writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	PRAGMA journal_mode = WAL;

	CREATE TABLE IF NOT EXISTS sent_items (
		source     TEXT NOT NULL,
		identifier TEXT NOT NULL,
		seq        INTEGER NOT NULL,
		PRIMARY KEY (source, identifier)
	);

	CREATE INDEX IF NOT EXISTS idx_sent_items_source_seq ON sent_items(source, seq);

	CREATE TABLE IF NOT EXISTS source_hash (
		source TEXT PRIMARY KEY,
		hash   TEXT NOT NULL
	);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *SQLiteStore) Load(ctx context.Context, source string, maxItems int) (news.State, error) {
	st := news.NewState(maxItems)

	err := s.db.QueryRowContext(ctx, `SELECT hash FROM source_hash WHERE source = ?`, source).Scan(&st.Hash)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return st, fmt.Errorf("load hash: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT identifier FROM sent_items WHERE source = ? ORDER BY seq`, source)
	if err != nil {
		return st, fmt.Errorf("load sent items: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return st, fmt.Errorf("scan sent item: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return st, fmt.Errorf("load sent items: %w", err)
	}
	st.Sent = news.SentSetFrom(ids, maxItems)
	return st, nil
}

// Save replaces the source's rows inside one transaction.
func (s *SQLiteStore) Save(ctx context.Context, source string, mode news.Mode, st news.State) error {
	if err := s.save(ctx, source, mode, st); err != nil {
		return &PersistError{Source: source, Err: err}
	}
	return nil
}

func (s *SQLiteStore) save(ctx context.Context, source string, mode news.Mode, st news.State) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if mode == news.ModeHash {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO source_hash (source, hash) VALUES (?, ?)
			ON CONFLICT(source) DO UPDATE SET hash = excluded.hash`, source, st.Hash)
		if err != nil {
			return err
		}
		return tx.Commit()
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM sent_items WHERE source = ?`, source); err != nil {
		return err
	}
	if st.Sent != nil {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO sent_items (source, identifier, seq) VALUES (?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i, id := range st.Sent.IDs() {
			if _, err := stmt.ExecContext(ctx, source, id, i); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
