// Package ledger remembers which mailbox messages were already handled.
//
// It stores delivery bookkeeping only: the message key, the run that saw
// it, and the Message-ID of any reply sent. Classifications are recomputed
// on demand and never persisted.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Get for a key that was never handled.
var ErrNotFound = errors.New("ledger: message not found")

type Entry struct {
	Key       string // Message-ID, or a mailbox/UID key when the header is missing
	RunID     string
	Mailbox   string
	UID       uint32
	ReplyID   string // Message-ID of the sent reply, empty if none
	HandledAt time.Time
}

// Replied reports whether a reply was delivered for the message.
func (e *Entry) Replied() bool { return e.ReplyID != "" }

type Store struct {
	db *sql.DB
}

// scanEntry handles nullable columns when scanning a row
func scanEntry(scanner interface{ Scan(...any) error }) (*Entry, error) {
	var e Entry
	var runID, mailbox, replyID sql.NullString
	var handledAt sql.NullTime
	var uid int64

	if err := scanner.Scan(&e.Key, &runID, &mailbox, &uid, &replyID, &handledAt); err != nil {
		return nil, err
	}
	e.RunID = runID.String
	e.Mailbox = mailbox.String
	e.UID = uint32(uid)
	e.ReplyID = replyID.String
	e.HandledAt = handledAt.Time
	return &e, nil
}

func NewStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite allows one writer; serialize through a single connection
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS handled_messages (
		message_key TEXT PRIMARY KEY,
		run_id TEXT,
		mailbox TEXT,
		uid INTEGER DEFAULT 0,
		reply_id TEXT,
		handled_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_hm_handled_at ON handled_messages(handled_at);
	CREATE INDEX IF NOT EXISTS idx_hm_run_id ON handled_messages(run_id);
	`

	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// Seen reports whether key was handled by any earlier run.
func (s *Store) Seen(ctx context.Context, key string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM handled_messages WHERE message_key = ?`, key).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to query ledger: %w", err)
	}
	return n > 0, nil
}

// MarkHandled records key. Marking a key twice keeps the first run and
// fills in the reply ID if the earlier record had none.
func (s *Store) MarkHandled(ctx context.Context, key, runID, mailbox string, uid uint32, replyID string) error {
	query := `
	INSERT INTO handled_messages (message_key, run_id, mailbox, uid, reply_id, handled_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(message_key) DO UPDATE SET
		reply_id = COALESCE(NULLIF(handled_messages.reply_id, ''), excluded.reply_id)
	`
	_, err := s.db.ExecContext(ctx, query, key, runID, mailbox, int64(uid), replyID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record handled message: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (*Entry, error) {
	query := `
	SELECT message_key, run_id, mailbox, uid, reply_id, handled_at
	FROM handled_messages WHERE message_key = ?`

	e, err := scanEntry(s.db.QueryRowContext(ctx, query, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query entry: %w", err)
	}
	return e, nil
}

// Recent returns the latest handled messages, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	query := `
	SELECT message_key, run_id, mailbox, uid, reply_id, handled_at
	FROM handled_messages ORDER BY handled_at DESC, rowid DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

type Stats struct {
	Handled int
	Replied int
}

func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `
	SELECT COUNT(*), COALESCE(SUM(CASE WHEN reply_id IS NOT NULL AND reply_id != '' THEN 1 ELSE 0 END), 0)
	FROM handled_messages`).Scan(&st.Handled, &st.Replied)
	if err != nil {
		return st, fmt.Errorf("failed to query stats: %w", err)
	}
	return st, nil
}

// Prune deletes entries handled before cutoff and returns how many went.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM handled_messages WHERE handled_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune ledger: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) Close() error {
	return s.db.Close()
}
