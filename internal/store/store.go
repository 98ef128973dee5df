// Package store 持久化客户端状态：当前会话 ID 与每个会话的问答历史。
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/zhouzirui/ai-interview/client/internal/model/interview"
)

const sessionIDKey = "session_id"

// Store wraps a SQLite database file.
type Store struct {
	db    *sql.DB
	clock func() time.Time
}

// Open creates the database file if needed and applies the schema.
// Path ":memory:" keeps everything in memory.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
		}
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, clock: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS client_state (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS history (
    sid TEXT NOT NULL,
    seq INTEGER NOT NULL,
    question TEXT NOT NULL,
    answer TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (sid, seq)
);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveSessionID persists the active session identifier.
func (s *Store) SaveSessionID(ctx context.Context, sid string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO client_state(key, value) VALUES(?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
		sessionIDKey, sid)
	if err != nil {
		return fmt.Errorf("save session id: %w", err)
	}
	return nil
}

// SessionID returns the last persisted session identifier, or "".
func (s *Store) SessionID(ctx context.Context) (string, error) {
	var sid string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM client_state WHERE key = ?`, sessionIDKey).Scan(&sid)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load session id: %w", err)
	}
	return sid, nil
}

// AppendHistory stores the seq-th (0-based) entry of a session's history.
// Re-appending the same seq overwrites it.
func (s *Store) AppendHistory(ctx context.Context, sid string, seq int, entry interview.HistoryEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO history(sid, seq, question, answer, created_at) VALUES(?, ?, ?, ?, ?)
		 ON CONFLICT(sid, seq) DO UPDATE SET question=excluded.question, answer=excluded.answer`,
		sid, seq, entry.Question, entry.Answer, s.clock().UTC())
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// History returns a session's entries in turn order.
func (s *Store) History(ctx context.Context, sid string) ([]interview.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT question, answer FROM history WHERE sid = ? ORDER BY seq ASC`, sid)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []interview.HistoryEntry
	for rows.Next() {
		var e interview.HistoryEntry
		if err := rows.Scan(&e.Question, &e.Answer); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
