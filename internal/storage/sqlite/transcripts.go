// Package sqlite persists final transcript segments to a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"ai-live-transcription-service/internal/models"
	"ai-live-transcription-service/internal/observability/logging"
)

// TranscriptStore appends finals and session errors to per-session
// transcripts.
type TranscriptStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open opens (or creates) the database at path and prepares the schema.
func Open(path string) (*TranscriptStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// SQLite serialises writers; one connection avoids SQLITE_BUSY between
	// concurrent sessions.
	db.SetMaxOpenConns(1)

	s, err := NewTranscriptStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewTranscriptStore wraps an open database.
func NewTranscriptStore(db *sql.DB) (*TranscriptStore, error) {
	s := &TranscriptStore{
		db:     db,
		logger: logging.WithComponent("sqlite-transcripts"),
	}
	if err := s.initDB(); err != nil {
		return nil, err
	}
	return s, nil
}

// initDB initializes the database tables
func (s *TranscriptStore) initDB() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS transcript_segments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			text TEXT NOT NULL,
			confidence REAL NOT NULL,
			reason TEXT NOT NULL,
			start_seconds REAL NOT NULL,
			end_seconds REAL NOT NULL,
			created_at TIMESTAMP NOT NULL,
			UNIQUE (session_id, seq)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create transcript_segments table: %w", err)
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS transcript_errors (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			code TEXT NOT NULL,
			message TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create transcript_errors table: %w", err)
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_segments_session ON transcript_segments(session_id, seq)`,
		`CREATE INDEX IF NOT EXISTS idx_errors_session ON transcript_errors(session_id)`,
	}
	for _, indexSQL := range indexes {
		if _, err := s.db.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create transcript index: %w", err)
		}
	}

	return nil
}

// Name identifies the store as a persistence sink.
func (s *TranscriptStore) Name() string {
	return "sqlite"
}

// PersistFinal appends a final segment.
func (s *TranscriptStore) PersistFinal(ctx context.Context, ev models.TranscriptFinal) error {
	createdAt := time.Now().UTC()
	if ev.Timestamp > 0 {
		createdAt = time.UnixMilli(ev.Timestamp).UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transcript_segments
		(session_id, seq, text, confidence, reason, start_seconds, end_seconds, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.SessionID,
		int64(ev.Seq),
		ev.Text,
		ev.Confidence,
		ev.Reason,
		ev.Timing.Start,
		ev.Timing.End,
		createdAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to insert transcript segment: %w", err)
	}

	s.logger.Debug().
		Str("sessionId", ev.SessionID).
		Uint64("seq", ev.Seq).
		Msg("Stored transcript segment")
	return nil
}

// PersistError records a session error.
func (s *TranscriptStore) PersistError(ctx context.Context, ev models.TranscriptError) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transcript_errors (session_id, code, message, created_at) VALUES (?, ?, ?, ?)`,
		ev.SessionID, ev.Code, ev.Message, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to insert transcript error: %w", err)
	}
	return nil
}

// Transcript returns a session's finals in emission order.
func (s *TranscriptStore) Transcript(ctx context.Context, sessionID string) ([]models.TranscriptFinal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, text, confidence, reason, start_seconds, end_seconds, created_at
		FROM transcript_segments
		WHERE session_id = ?
		ORDER BY seq ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query transcript: %w", err)
	}
	defer rows.Close()

	var finals []models.TranscriptFinal
	for rows.Next() {
		var (
			ev        = models.TranscriptFinal{Type: models.TypeFinal, SessionID: sessionID}
			seq       int64
			createdAt string
		)
		if err := rows.Scan(&seq, &ev.Text, &ev.Confidence, &ev.Reason, &ev.Timing.Start, &ev.Timing.End, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan transcript row: %w", err)
		}
		ev.Seq = uint64(seq)
		ev.Timing.Duration = ev.Timing.End - ev.Timing.Start
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			ev.Timestamp = t.UnixMilli()
		}
		finals = append(finals, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transcript rows: %w", err)
	}
	return finals, nil
}

// ErrorCount returns the number of recorded errors for a session.
func (s *TranscriptStore) ErrorCount(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transcript_errors WHERE session_id = ?`, sessionID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count transcript errors: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *TranscriptStore) Close() error {
	return s.db.Close()
}
