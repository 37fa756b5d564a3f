package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS interactions (
	id              TEXT PRIMARY KEY,
	occurredAt      REAL NOT NULL,
	kind            TEXT NOT NULL,
	transcript      TEXT NOT NULL DEFAULT '',
	durationSeconds REAL NOT NULL DEFAULT 0,
	audioPath       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS interactions_occurred ON interactions (occurredAt DESC);
`

// Interaction is a saved voice note.
type Interaction struct {
	ID              string    `json:"id"`
	OccurredAt      time.Time `json:"occurredAt"`
	Kind            string    `json:"kind"`
	Transcript      string    `json:"transcript"`
	DurationSeconds float64   `json:"durationSeconds"`
	AudioPath       string    `json:"audioPath"`
}

// Store persists interactions in SQLite.
type Store struct {
	db *sql.DB
}

// DefaultDBPath returns the default database path.
func DefaultDBPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".voxlog", "journal.sqlite")
}

// Open opens or creates the database at path with WAL enabled.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores an interaction, assigning an ID when it has none.
func (s *Store) Save(ctx context.Context, in Interaction) (Interaction, error) {
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.Kind == "" {
		in.Kind = "voice"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO interactions (id, occurredAt, kind, transcript, durationSeconds, audioPath)
		VALUES (?, ?, ?, ?, ?, ?)
	`, in.ID, unixFromTime(in.OccurredAt), in.Kind, in.Transcript, in.DurationSeconds, in.AudioPath)
	if err != nil {
		return Interaction{}, fmt.Errorf("insert interaction: %w", err)
	}
	return in, nil
}

// List returns up to limit interactions, most recent first.
func (s *Store) List(ctx context.Context, limit int) ([]Interaction, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, occurredAt, kind, transcript, durationSeconds, audioPath
		FROM interactions
		ORDER BY occurredAt DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query interactions: %w", err)
	}
	defer rows.Close()

	var out []Interaction
	for rows.Next() {
		var in Interaction
		var occurredAt float64
		if err := rows.Scan(&in.ID, &occurredAt, &in.Kind, &in.Transcript,
			&in.DurationSeconds, &in.AudioPath); err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		in.OccurredAt = timeFromUnix(occurredAt)
		out = append(out, in)
	}
	return out, rows.Err()
}

// DetachAudio clears the audio path of interactions whose file was deleted.
// The transcripts are kept.
func (s *Store) DetachAudio(ctx context.Context, paths []string) (int64, error) {
	var total int64
	for _, p := range paths {
		res, err := s.db.ExecContext(ctx, `UPDATE interactions SET audioPath = '' WHERE audioPath = ?`, p)
		if err != nil {
			return total, fmt.Errorf("detach audio %s: %w", p, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

func unixFromTime(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func timeFromUnix(ts float64) time.Time {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}
