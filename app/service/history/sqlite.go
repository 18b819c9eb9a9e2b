package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/samber/oops"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
)`

// sqliteStore keeps the transcript as a JSON value in a key-value table.
type sqliteStore struct {
	db  *sql.DB
	key string
}

func newSQLiteStore(path, key string) (*sqliteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, oops.In("history").Wrapf(err, "create history dir")
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, oops.In("history").Wrapf(err, "open sqlite")
	}
	db.SetMaxOpenConns(1)

	if _, err = db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, oops.In("history").Wrapf(err, "create kv table")
	}

	return &sqliteStore{db: db, key: key}, nil
}

func (s *sqliteStore) Load(ctx context.Context) ([]Message, error) {
	var value string

	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, s.key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return []Message{}, nil
	}
	if err != nil {
		return nil, oops.In("history").Wrapf(err, "select history")
	}

	messages := []Message{}
	if err = json.Unmarshal([]byte(value), &messages); err != nil {
		return nil, oops.In("history").Wrapf(err, "parse history")
	}

	return messages, nil
}

func (s *sqliteStore) Save(ctx context.Context, messages []Message) error {
	if messages == nil {
		messages = []Message{}
	}

	value, err := json.Marshal(messages)
	if err != nil {
		return oops.In("history").Wrapf(err, "marshal history")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		s.key, string(value), time.Now().UnixMilli(),
	)
	if err != nil {
		return oops.In("history").Wrapf(err, "upsert history")
	}

	return nil
}

func (s *sqliteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, s.key); err != nil {
		return oops.In("history").Wrapf(err, "delete history")
	}

	return nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}
