// Package store provides persistent storage for users, conversation
// history, and rate-limit counters backed by SQLite. All public methods
// are safe for concurrent use (SQLite serializes writes).
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Tanzania-AI-Community/twiga/pkg/providers"
)

// User is a registered WhatsApp contact. ClassInfo maps class names to
// the subjects the user teaches in them, e.g. "Form 2" -> ["Geometry"].
type User struct {
	ID        int64
	WaID      string
	Name      string
	ClassInfo map[string][]string
	CreatedAt time.Time
}

type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the database at dbPath and migrates the
// schema.
func NewStore(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		wa_id      TEXT NOT NULL UNIQUE,
		name       TEXT NOT NULL DEFAULT '',
		class_info TEXT NOT NULL DEFAULT '{}',
		created_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS messages (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id      INTEGER NOT NULL,
		role         TEXT NOT NULL,
		content      TEXT NOT NULL DEFAULT '',
		tool_calls   TEXT,
		tool_call_id TEXT,
		tool_name    TEXT,
		created_at   TEXT NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);
	CREATE INDEX IF NOT EXISTS idx_messages_user ON messages(user_id, id);
	CREATE TABLE IF NOT EXISTS rate_limits (
		user_id INTEGER NOT NULL,
		day     TEXT NOT NULL,
		count   INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (user_id, day)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// GetOrCreateUser looks up a user by WhatsApp ID, creating a row on
// first contact.
func (s *Store) GetOrCreateUser(ctx context.Context, waID, name string) (*User, error) {
	user, err := s.getUserByWaID(ctx, waID)
	if err == nil {
		return user, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("query user %s: %w", waID, err)
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (wa_id, name, class_info, created_at) VALUES (?, ?, '{}', ?)`,
		waID, name, now.Format(time.RFC3339),
	)
	if err != nil {
		// Another goroutine may have inserted the same wa_id first.
		if user, qerr := s.getUserByWaID(ctx, waID); qerr == nil {
			return user, nil
		}
		return nil, fmt.Errorf("create user %s: %w", waID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("user insert id: %w", err)
	}
	return &User{ID: id, WaID: waID, Name: name, ClassInfo: map[string][]string{}, CreatedAt: now}, nil
}

func (s *Store) getUserByWaID(ctx context.Context, waID string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, wa_id, name, class_info, created_at FROM users WHERE wa_id = ?`, waID)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	var classInfo, createdAt string
	if err := row.Scan(&u.ID, &u.WaID, &u.Name, &classInfo, &createdAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(classInfo), &u.ClassInfo); err != nil {
		u.ClassInfo = map[string][]string{}
	}
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		u.CreatedAt = t
	}
	return &u, nil
}

// UpdateUserProfile replaces the stored name and class info.
func (s *Store) UpdateUserProfile(ctx context.Context, userID int64, name string, classInfo map[string][]string) error {
	raw, err := json.Marshal(classInfo)
	if err != nil {
		return fmt.Errorf("encode class info: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE users SET name = ?, class_info = ? WHERE id = ?`,
		name, string(raw), userID,
	)
	if err != nil {
		return fmt.Errorf("update user %d: %w", userID, err)
	}
	return nil
}

// GetHistory returns the last limit messages for a user in
// chronological order. limit <= 0 means no cap.
func (s *Store) GetHistory(ctx context.Context, userID int64, limit int) ([]providers.Message, error) {
	query := `SELECT role, content, tool_calls, tool_call_id, tool_name
		FROM messages WHERE user_id = ? ORDER BY id DESC`
	args := []interface{}{userID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history for user %d: %w", userID, err)
	}
	defer rows.Close()

	var reversed []providers.Message
	for rows.Next() {
		var msg providers.Message
		var toolCalls, toolCallID, toolName sql.NullString
		if err := rows.Scan(&msg.Role, &msg.Content, &toolCalls, &toolCallID, &toolName); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		if toolCalls.Valid && toolCalls.String != "" {
			if err := json.Unmarshal([]byte(toolCalls.String), &msg.ToolCalls); err != nil {
				return nil, fmt.Errorf("decode tool calls: %w", err)
			}
		}
		msg.ToolCallID = toolCallID.String
		msg.ToolName = toolName.String
		reversed = append(reversed, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}

	history := make([]providers.Message, 0, len(reversed))
	for i := len(reversed) - 1; i >= 0; i-- {
		history = append(history, reversed[i])
	}
	return history, nil
}

// SaveMessages appends a batch of messages for a user in one
// transaction, preserving order.
func (s *Store) SaveMessages(ctx context.Context, userID int64, messages []providers.Message) error {
	if len(messages) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO messages (user_id, role, content, tool_calls, tool_call_id, tool_name, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare message insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, msg := range messages {
		var toolCalls interface{}
		if len(msg.ToolCalls) > 0 {
			raw, err := json.Marshal(msg.ToolCalls)
			if err != nil {
				return fmt.Errorf("encode tool calls: %w", err)
			}
			toolCalls = string(raw)
		}
		if _, err := stmt.ExecContext(ctx, userID, msg.Role, msg.Content, toolCalls, msg.ToolCallID, msg.ToolName, now); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
	}
	return tx.Commit()
}

// IncrementDailyCount bumps today's message counter for a user and
// returns the new count.
func (s *Store) IncrementDailyCount(ctx context.Context, userID int64) (int, error) {
	day := time.Now().UTC().Format("2006-01-02")
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rate_limits (user_id, day, count) VALUES (?, ?, 1)
		 ON CONFLICT(user_id, day) DO UPDATE SET count = count + 1`,
		userID, day,
	)
	if err != nil {
		return 0, fmt.Errorf("increment rate counter: %w", err)
	}

	var count int
	err = s.db.QueryRowContext(ctx,
		`SELECT count FROM rate_limits WHERE user_id = ? AND day = ?`, userID, day,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("read rate counter: %w", err)
	}
	return count, nil
}

// PruneRateCounters deletes counters older than today. Run from the
// daily maintenance job.
func (s *Store) PruneRateCounters(ctx context.Context) (int64, error) {
	day := time.Now().UTC().Format("2006-01-02")
	res, err := s.db.ExecContext(ctx, `DELETE FROM rate_limits WHERE day < ?`, day)
	if err != nil {
		return 0, fmt.Errorf("prune rate counters: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
