// internal/db/store.go
package db

import (
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"parley/internal/session"
)

type Store struct {
	db *sql.DB
}

type SessionRecord struct {
	ID        string
	Topic     string
	GroupName string
	Status    string
	CreatedAt time.Time
	EndedAt   time.Time
}

type BlockRecord struct {
	ID        int64
	SessionID string
	Speaker   string
	Kind      string
	Content   string
	Position  int
}

func Open() (*Store, error) {
	dataDir, err := dataDir()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, err
	}

	dbPath := filepath.Join(dataDir, "transcripts.db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, err
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func dataDir() (string, error) {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "parley"), nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		topic TEXT NOT NULL,
		group_name TEXT,
		status TEXT DEFAULT 'ended',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		ended_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS blocks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL REFERENCES sessions(id),
		speaker TEXT,
		kind TEXT DEFAULT 'ai',
		content TEXT NOT NULL,
		position INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_blocks_session ON blocks(session_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SaveSession stores a finished session and its speaker blocks.
// Saving the same session id again replaces the stored transcript.
func (s *Store) SaveSession(id, topic, group, status string, blocks []session.SpeakerBlock) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO sessions (id, topic, group_name, status) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET status = excluded.status, ended_at = CURRENT_TIMESTAMP`,
		id, topic, group, status,
	)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM blocks WHERE session_id = ?`, id); err != nil {
		return err
	}

	for i, b := range blocks {
		_, err = tx.Exec(
			`INSERT INTO blocks (session_id, speaker, kind, content, position) VALUES (?, ?, ?, ?, ?)`,
			id, b.Speaker, b.Kind.String(), b.Text, i,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetSession retrieves a stored session by ID
func (s *Store) GetSession(id string) (*SessionRecord, error) {
	row := s.db.QueryRow(
		`SELECT id, topic, group_name, status, created_at, ended_at
		 FROM sessions WHERE id = ?`, id,
	)

	var rec SessionRecord
	var group sql.NullString
	err := row.Scan(&rec.ID, &rec.Topic, &group, &rec.Status, &rec.CreatedAt, &rec.EndedAt)
	if err != nil {
		return nil, err
	}
	rec.GroupName = group.String
	return &rec, nil
}

// ListSessions returns all stored sessions, most recent first
func (s *Store) ListSessions() ([]SessionRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, topic, group_name, status, created_at, ended_at
		 FROM sessions ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		var group sql.NullString
		if err := rows.Scan(&rec.ID, &rec.Topic, &group, &rec.Status, &rec.CreatedAt, &rec.EndedAt); err != nil {
			return nil, err
		}
		rec.GroupName = group.String
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GetBlocks retrieves all blocks for a session in utterance order
func (s *Store) GetBlocks(sessionID string) ([]BlockRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, speaker, kind, content, position
		 FROM blocks WHERE session_id = ? ORDER BY position`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var blocks []BlockRecord
	for rows.Next() {
		var b BlockRecord
		var speaker sql.NullString
		if err := rows.Scan(&b.ID, &b.SessionID, &speaker, &b.Kind, &b.Content, &b.Position); err != nil {
			return nil, err
		}
		b.Speaker = speaker.String
		blocks = append(blocks, b)
	}
	return blocks, rows.Err()
}

// DeleteSession removes a stored session and its blocks
func (s *Store) DeleteSession(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM blocks WHERE session_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}
