// Package sqlite provides a SQLite-backed classroom archive implementation.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/louisbranch/classpulse/internal/classroom/storage"
	"github.com/louisbranch/classpulse/internal/classroom/storage/sqlite/migrations"
	sqlitemigrate "github.com/louisbranch/classpulse/internal/platform/storage/sqlitemigrate"
	_ "modernc.org/sqlite"
)

// MemoryPath opens an archive that lives only as long as the process.
const MemoryPath = ":memory:"

// Store persists classroom archive state in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite archive store and applies embedded migrations.
// Passing MemoryPath keeps the archive in memory.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := path
	if path != MemoryPath {
		dsn = filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if path == MemoryPath {
		// Each pooled connection would otherwise see its own empty database.
		sqlDB.SetMaxOpenConns(1)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// AppendResolvedPoll inserts one resolved poll record.
func (s *Store) AppendResolvedPoll(ctx context.Context, poll storage.ResolvedPoll) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	pollID := strings.TrimSpace(poll.PollID)
	if pollID == "" {
		return fmt.Errorf("poll id is required")
	}
	if strings.TrimSpace(poll.Question) == "" {
		return fmt.Errorf("question is required")
	}

	options, err := json.Marshal(poll.Options)
	if err != nil {
		return fmt.Errorf("encode options: %w", err)
	}
	flags, err := json.Marshal(poll.CorrectFlags)
	if err != nil {
		return fmt.Errorf("encode correct flags: %w", err)
	}
	tally, err := json.Marshal(poll.Tally)
	if err != nil {
		return fmt.Errorf("encode tally: %w", err)
	}

	resolvedAt := poll.ResolvedAt
	if resolvedAt.IsZero() {
		resolvedAt = time.Now()
	}

	_, err = s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO resolved_polls (
		   poll_id,
		   question,
		   options,
		   correct_flags,
		   tally,
		   resolved_at
		 ) VALUES (?, ?, ?, ?, ?, ?)`,
		pollID,
		poll.Question,
		string(options),
		string(flags),
		string(tally),
		toMillis(resolvedAt),
	)
	if err != nil {
		return fmt.Errorf("append resolved poll: %w", err)
	}
	return nil
}

// ListResolvedPolls returns up to limit resolved polls, oldest first.
func (s *Store) ListResolvedPolls(ctx context.Context, limit int) ([]storage.ResolvedPoll, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT poll_id, question, options, correct_flags, tally, resolved_at
		   FROM resolved_polls
		  ORDER BY resolved_at ASC, poll_id ASC
		  LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list resolved polls: %w", err)
	}
	defer rows.Close()

	polls := make([]storage.ResolvedPoll, 0, limit)
	for rows.Next() {
		var poll storage.ResolvedPoll
		var options string
		var flags string
		var tally string
		var resolvedAt int64
		if err := rows.Scan(&poll.PollID, &poll.Question, &options, &flags, &tally, &resolvedAt); err != nil {
			return nil, fmt.Errorf("list resolved polls: %w", err)
		}
		if err := json.Unmarshal([]byte(options), &poll.Options); err != nil {
			return nil, fmt.Errorf("decode options for %s: %w", poll.PollID, err)
		}
		if err := json.Unmarshal([]byte(flags), &poll.CorrectFlags); err != nil {
			return nil, fmt.Errorf("decode correct flags for %s: %w", poll.PollID, err)
		}
		if err := json.Unmarshal([]byte(tally), &poll.Tally); err != nil {
			return nil, fmt.Errorf("decode tally for %s: %w", poll.PollID, err)
		}
		poll.ResolvedAt = fromMillis(resolvedAt)
		polls = append(polls, poll)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list resolved polls: %w", err)
	}
	return polls, nil
}

// AppendChatMessage inserts one archived chat message.
func (s *Store) AppendChatMessage(ctx context.Context, msg storage.ChatRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	messageID := strings.TrimSpace(msg.MessageID)
	if messageID == "" {
		return fmt.Errorf("message id is required")
	}
	if msg.Text == "" {
		return fmt.Errorf("message text is required")
	}

	sentAt := msg.SentAt
	if sentAt.IsZero() {
		sentAt = time.Now()
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO chat_messages (message_id, sender, text, sent_at)
		 VALUES (?, ?, ?, ?)`,
		messageID,
		msg.Sender,
		msg.Text,
		toMillis(sentAt),
	)
	if err != nil {
		return fmt.Errorf("append chat message: %w", err)
	}
	return nil
}

// ListChatMessages returns up to limit of the most recent messages, oldest
// first.
func (s *Store) ListChatMessages(ctx context.Context, limit int) ([]storage.ChatRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT message_id, sender, text, sent_at
		   FROM (SELECT message_id, sender, text, sent_at
		           FROM chat_messages
		          ORDER BY sent_at DESC, message_id DESC
		          LIMIT ?)
		  ORDER BY sent_at ASC, message_id ASC`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	defer rows.Close()

	messages := make([]storage.ChatRecord, 0, limit)
	for rows.Next() {
		var msg storage.ChatRecord
		var sentAt int64
		if err := rows.Scan(&msg.MessageID, &msg.Sender, &msg.Text, &sentAt); err != nil {
			return nil, fmt.Errorf("list chat messages: %w", err)
		}
		msg.SentAt = fromMillis(sentAt)
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	return messages, nil
}

var _ storage.Archive = (*Store)(nil)
