package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"questmaster/shared"
)

// fixed width so that text ordering equals time ordering
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore keeps sessions in a single SQLite table, conversation and
// subtasks as JSON columns.
type SQLiteStore struct {
	conn *sql.DB
	path string
	now  func() time.Time
}

// DefaultDBPath returns $XDG_DATA_HOME/questmaster/questmaster.db.
func DefaultDBPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "questmaster", "questmaster.db")
}

// OpenSQLite opens (creating if needed) the database at path and applies
// pending migrations.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// one writer at a time, sqlite serializes writes anyway
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	store := &SQLiteStore{conn: conn, path: path, now: time.Now}
	if err := store.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return store, nil
}

func (st *SQLiteStore) Path() string {
	return st.path
}

func (st *SQLiteStore) Close() error {
	return st.conn.Close()
}

const migrationV1Sessions = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	conversation TEXT NOT NULL DEFAULT '[]',
	location TEXT NOT NULL DEFAULT '',
	extra_instructions TEXT NOT NULL DEFAULT '',
	final_instruction TEXT,
	subtasks TEXT NOT NULL DEFAULT '[]',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_created_at ON sessions(created_at);
`

func (st *SQLiteStore) migrate() error {
	_, err := st.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var currentVersion int
	row := st.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migrationV1Sessions},
	}
	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		tx, err := st.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration v%d: %w", m.version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.version, err)
		}
	}
	return nil
}

func (st *SQLiteStore) FindOrCreate(ctx context.Context, id string) (*Session, bool, error) {
	if id != "" {
		s, err := st.Get(ctx, id)
		if err == nil {
			return s, false, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, false, err
		}
	}
	return New(uuid.NewString(), st.now().UTC().Round(0)), true, nil
}

const selectSession = `
	SELECT id, conversation, location, extra_instructions, final_instruction, subtasks, created_at, updated_at
	FROM sessions
`

func (st *SQLiteStore) Get(ctx context.Context, id string) (*Session, error) {
	row := st.conn.QueryRowContext(ctx, selectSession+" WHERE id = ?", id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	return s, nil
}

func (st *SQLiteStore) Latest(ctx context.Context) (*Session, error) {
	row := st.conn.QueryRowContext(ctx, selectSession+" ORDER BY created_at DESC, rowid DESC LIMIT 1")
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: store is empty", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get latest session: %w", err)
	}
	return s, nil
}

// Save writes the whole session in one statement.
func (st *SQLiteStore) Save(ctx context.Context, s *Session) error {
	if s.ID == "" {
		return fmt.Errorf("save session: empty id")
	}
	conversation, subtasks, err := encodeLists(s)
	if err != nil {
		return err
	}
	now := st.now().UTC().Round(0)
	createdAt := s.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	_, err = st.conn.ExecContext(ctx, `
		INSERT INTO sessions (id, conversation, location, extra_instructions, final_instruction, subtasks, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			conversation = excluded.conversation,
			location = excluded.location,
			extra_instructions = excluded.extra_instructions,
			final_instruction = excluded.final_instruction,
			subtasks = excluded.subtasks,
			updated_at = excluded.updated_at
	`, s.ID, conversation, s.Location, s.ExtraInstructions, nullString(s.FinalInstruction), subtasks,
		formatTime(createdAt), formatTime(now))
	if err != nil {
		return fmt.Errorf("save session %s: %w", s.ID, err)
	}
	s.UpdatedAt = now
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var (
		s                      Session
		conversation, subtasks string
		finalInstruction       sql.NullString
		createdAt, updatedAt   string
	)
	err := row.Scan(&s.ID, &conversation, &s.Location, &s.ExtraInstructions, &finalInstruction, &subtasks, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	s.FinalInstruction = finalInstruction.String
	s.Conversation = []shared.Turn{}
	if err := json.Unmarshal([]byte(conversation), &s.Conversation); err != nil {
		return nil, fmt.Errorf("decode conversation: %w", err)
	}
	s.Subtasks = []shared.Subtask{}
	if err := json.Unmarshal([]byte(subtasks), &s.Subtasks); err != nil {
		return nil, fmt.Errorf("decode subtasks: %w", err)
	}
	if s.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if s.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &s, nil
}

func encodeLists(s *Session) (string, string, error) {
	turns := s.Conversation
	if turns == nil {
		turns = []shared.Turn{}
	}
	conversation, err := json.Marshal(turns)
	if err != nil {
		return "", "", fmt.Errorf("encode conversation: %w", err)
	}
	list := s.Subtasks
	if list == nil {
		list = []shared.Subtask{}
	}
	subtasks, err := json.Marshal(list)
	if err != nil {
		return "", "", fmt.Errorf("encode subtasks: %w", err)
	}
	return string(conversation), string(subtasks), nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
