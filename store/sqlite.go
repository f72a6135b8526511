package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// SqliteStore stores one collection in a SQLite database.
//
// Tables:
//
//	documents(seq, collection, id, data)  UNIQUE (collection, id)
type SqliteStore struct {
	db         *sql.DB
	collection string
}

// OpenSqliteStore opens <endpoint>/<database>.db, creating the file and the
// documents table if absent.
func OpenSqliteStore(ctx context.Context, p Params) (*SqliteStore, error) {
	if err := os.MkdirAll(p.Endpoint, 0o755); err != nil {
		return nil, err
	}
	dbPath := filepath.Join(p.Endpoint, p.Database+".db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS documents (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		data TEXT NOT NULL,
		UNIQUE (collection, id)
	)`); err != nil {
		db.Close()
		return nil, err
	}
	return &SqliteStore{db: db, collection: p.Container}, nil
}

func (s *SqliteStore) Create(ctx context.Context, rec Record) error {
	id, ok := rec.ID()
	if !ok {
		return ErrMissingID
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO documents (collection, id, data) VALUES (?, ?, ?)",
		s.collection, id, string(b),
	)
	if isConstraintErr(err) {
		return fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	return err
}

func (s *SqliteStore) List(ctx context.Context, limit int) ([]Record, error) {
	query := "SELECT data FROM documents WHERE collection = ? ORDER BY seq"
	args := []any{s.collection}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := []Record{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		doc, err := DecodeRecord([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("decode stored record: %w", err)
		}
		result = append(result, doc)
	}
	return result, rows.Err()
}

func (s *SqliteStore) Close(context.Context) error {
	return s.db.Close()
}

func isConstraintErr(err error) bool {
	if err == nil {
		return false
	}
	if se, ok := err.(sqlite3.Error); ok {
		return se.Code == sqlite3.ErrConstraint
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
