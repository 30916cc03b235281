// internal/storage/sqlite.go
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/Tsegaye16/BookCompanion/internal/models"
)

// SQLiteStore is the canonical persistence for character state, conversation
// logs and long-term memory.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates/opens the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Single-process store. One shared connection avoids writer lock
	// contention with SQLite under concurrent goroutines.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=NORMAL;`,
		`PRAGMA busy_timeout=5000;`,
		`CREATE TABLE IF NOT EXISTS characters (
			character_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			book_source TEXT NOT NULL,
			user_id TEXT NOT NULL DEFAULT '',
			arousal REAL NOT NULL DEFAULT 0.5,
			valence REAL NOT NULL DEFAULT 0.5,
			dominance REAL NOT NULL DEFAULT 0.5,
			sadness REAL NOT NULL DEFAULT 0.0,
			anger REAL NOT NULL DEFAULT 0.0,
			joy REAL NOT NULL DEFAULT 0.0,
			fear REAL NOT NULL DEFAULT 0.0,
			selection_threshold REAL NOT NULL DEFAULT 0.5,
			resolution_level REAL NOT NULL DEFAULT 0.5,
			goal_directedness REAL NOT NULL DEFAULT 0.5,
			securing_rate REAL NOT NULL DEFAULT 0.5,
			created_at_ms INTEGER NOT NULL,
			updated_at_ms INTEGER NOT NULL
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS characters_identity_idx ON characters(name, book_source, user_id);`,
		`CREATE TABLE IF NOT EXISTS conversations (
			conversation_id TEXT PRIMARY KEY,
			character_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			created_at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS conversations_character_idx ON conversations(character_id, user_id);`,
		`CREATE TABLE IF NOT EXISTS messages (
			message_id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS messages_conversation_idx ON messages(conversation_id, created_at_ms);`,
		`CREATE TABLE IF NOT EXISTS long_term_memory (
			memory_id TEXT PRIMARY KEY,
			character_id TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			created_at_ms INTEGER NOT NULL
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS memory_character_key_idx ON long_term_memory(character_id, key);`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// SaveState upserts the emotion state for the identity and returns the
// character id. Saving the same identity twice updates in place.
func (s *SQLiteStore) SaveState(ctx context.Context, ident models.CharacterIdentity, state *models.EmotionState) (string, error) {
	now := time.Now().UnixMilli()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO characters (
			character_id, name, book_source, user_id,
			arousal, valence, dominance, sadness, anger, joy, fear,
			selection_threshold, resolution_level, goal_directedness, securing_rate,
			created_at_ms, updated_at_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name, book_source, user_id) DO UPDATE SET
			arousal = excluded.arousal,
			valence = excluded.valence,
			dominance = excluded.dominance,
			sadness = excluded.sadness,
			anger = excluded.anger,
			joy = excluded.joy,
			fear = excluded.fear,
			selection_threshold = excluded.selection_threshold,
			resolution_level = excluded.resolution_level,
			goal_directedness = excluded.goal_directedness,
			securing_rate = excluded.securing_rate,
			updated_at_ms = excluded.updated_at_ms`,
		uuid.NewString(), ident.Name, ident.BookSource, ident.UserID,
		state.Arousal, state.Valence, state.Dominance,
		state.Sadness, state.Anger, state.Joy, state.Fear,
		state.SelectionThreshold, state.ResolutionLevel, state.GoalDirectedness, state.SecuringRate,
		now, now,
	)
	if err != nil {
		return "", fmt.Errorf("save character state: %w", err)
	}

	var characterID string
	err = s.db.QueryRowContext(ctx,
		`SELECT character_id FROM characters WHERE name = ? AND book_source = ? AND user_id = ?`,
		ident.Name, ident.BookSource, ident.UserID,
	).Scan(&characterID)
	if err != nil {
		return "", fmt.Errorf("resolve character id: %w", err)
	}

	return characterID, nil
}

// LoadState retrieves the emotion state for the identity. A never-saved
// identity yields (nil, "", nil).
func (s *SQLiteStore) LoadState(ctx context.Context, ident models.CharacterIdentity) (*models.EmotionState, string, error) {
	state := &models.EmotionState{}
	var characterID string

	err := s.db.QueryRowContext(ctx, `
		SELECT character_id,
			arousal, valence, dominance, sadness, anger, joy, fear,
			selection_threshold, resolution_level, goal_directedness, securing_rate
		FROM characters
		WHERE name = ? AND book_source = ? AND user_id = ?`,
		ident.Name, ident.BookSource, ident.UserID,
	).Scan(&characterID,
		&state.Arousal, &state.Valence, &state.Dominance,
		&state.Sadness, &state.Anger, &state.Joy, &state.Fear,
		&state.SelectionThreshold, &state.ResolutionLevel, &state.GoalDirectedness, &state.SecuringRate,
	)
	if err == sql.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("load character state: %w", err)
	}

	return state, characterID, nil
}

// CreateConversation opens a new conversation for the character and user.
func (s *SQLiteStore) CreateConversation(ctx context.Context, characterID, userID string) (string, error) {
	conversationID := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (conversation_id, character_id, user_id, created_at_ms) VALUES (?, ?, ?, ?)`,
		conversationID, characterID, userID, time.Now().UnixMilli(),
	)
	if err != nil {
		return "", fmt.Errorf("create conversation: %w", err)
	}
	return conversationID, nil
}

// AppendMessage appends one immutable turn to a conversation.
func (s *SQLiteStore) AppendMessage(ctx context.Context, conversationID, role, content string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (message_id, conversation_id, role, content, created_at_ms) VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), conversationID, strings.ToLower(role), content, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// History returns the character's turns oldest-first. An empty userID
// returns turns across all of the character's conversations.
func (s *SQLiteStore) History(ctx context.Context, characterID, userID string, limit int) ([]models.ConversationTurn, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT m.message_id, m.conversation_id, m.role, m.content, m.created_at_ms
		FROM messages m
		JOIN conversations c ON m.conversation_id = c.conversation_id
		WHERE c.character_id = ?`
	args := []interface{}{characterID}

	if userID != "" {
		query += ` AND c.user_id = ?`
		args = append(args, userID)
	}

	query += ` ORDER BY m.created_at_ms ASC, m.rowid ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	return scanTurns(rows)
}

// SearchMentions returns the character's turns whose content contains term,
// newest-first, bounded to limit.
func (s *SQLiteStore) SearchMentions(ctx context.Context, characterID, term string, limit int) ([]models.ConversationTurn, error) {
	if limit <= 0 {
		limit = 5
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.message_id, m.conversation_id, m.role, m.content, m.created_at_ms
		FROM messages m
		JOIN conversations c ON m.conversation_id = c.conversation_id
		WHERE c.character_id = ? AND LOWER(m.content) LIKE LOWER(?)
		ORDER BY m.created_at_ms DESC, m.rowid DESC
		LIMIT ?`,
		characterID, "%"+term+"%", limit,
	)
	if err != nil {
		return nil, fmt.Errorf("search mentions: %w", err)
	}
	defer rows.Close()

	return scanTurns(rows)
}

// SaveMemory upserts a long-term memory entry for the character.
func (s *SQLiteStore) SaveMemory(ctx context.Context, characterID, key, value string) error {
	// Delete-then-insert keeps a fresh timestamp on overwrite.
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM long_term_memory WHERE character_id = ? AND key = ?`,
		characterID, key,
	); err != nil {
		return fmt.Errorf("replace memory: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO long_term_memory (memory_id, character_id, key, value, created_at_ms) VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), characterID, key, value, time.Now().UnixMilli(),
	); err != nil {
		return fmt.Errorf("save memory: %w", err)
	}
	return nil
}

// LoadMemory retrieves a long-term memory value; ("", nil) when absent.
func (s *SQLiteStore) LoadMemory(ctx context.Context, characterID, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM long_term_memory WHERE character_id = ? AND key = ?`,
		characterID, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load memory: %w", err)
	}
	return value, nil
}

func scanTurns(rows *sql.Rows) ([]models.ConversationTurn, error) {
	var turns []models.ConversationTurn
	for rows.Next() {
		var turn models.ConversationTurn
		var createdAtMS int64
		if err := rows.Scan(&turn.ID, &turn.ConversationID, &turn.Role, &turn.Content, &createdAtMS); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		turn.Timestamp = time.UnixMilli(createdAtMS)
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return turns, nil
}
