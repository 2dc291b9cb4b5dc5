// Package directory is the room directory: which rooms exist and who
// participates in them. It is backed by SQLite.
package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrRoomNotFound is returned when a room id is unknown.
var ErrRoomNotFound = errors.New("room not found")

// Room is a chat room with a fixed participant set.
type Room struct {
	ID           int64
	Participants []int64
	CreatedAt    time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS rooms (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS room_participants (
	room_id INTEGER NOT NULL,
	user_id INTEGER NOT NULL,
	PRIMARY KEY (room_id, user_id),
	FOREIGN KEY (room_id) REFERENCES rooms(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_room_participants_user ON room_participants(user_id);
`

// SQLite implements core.RoomDirectory.
type SQLite struct {
	db *sql.DB
}

// New opens the database at dbPath and applies the schema.
func New(dbPath string) (*SQLite, error) {
	return NewWithSetup(dbPath, Migrate)
}

// NewWithSetup opens the database and runs setup instead of the default
// migration. Useful for tests that seed fixtures.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLite, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps an
	// in-memory database alive across queries.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Migrate creates the directory tables if they are missing.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// RoomExists reports whether a room with the id exists.
func (s *SQLite) RoomExists(ctx context.Context, roomID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM rooms WHERE id = ?)`, roomID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query room: %w", err)
	}
	return exists, nil
}

// IsMember reports whether the user participates in the room.
func (s *SQLite) IsMember(ctx context.Context, roomID, userID int64) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM room_participants
			WHERE room_id = ? AND user_id = ?
		)
	`
	var member bool
	if err := s.db.QueryRowContext(ctx, query, roomID, userID).Scan(&member); err != nil {
		return false, fmt.Errorf("query membership: %w", err)
	}
	return member, nil
}

// CreateRoom creates a room with the given participants.
func (s *SQLite) CreateRoom(ctx context.Context, participants ...int64) (*Room, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `INSERT INTO rooms DEFAULT VALUES`)
	if err != nil {
		return nil, fmt.Errorf("insert room: %w", err)
	}
	roomID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	for _, userID := range participants {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO room_participants (room_id, user_id) VALUES (?, ?)`,
			roomID, userID,
		); err != nil {
			return nil, fmt.Errorf("add participant: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return s.GetRoom(ctx, roomID)
}

// GetOrCreateDirectRoom returns the room shared by exactly the two users,
// creating it if needed.
func (s *SQLite) GetOrCreateDirectRoom(ctx context.Context, userA, userB int64) (*Room, bool, error) {
	query := `
		SELECT a.room_id
		FROM room_participants a
		JOIN room_participants b ON a.room_id = b.room_id
		WHERE a.user_id = ? AND b.user_id = ?
		  AND (SELECT COUNT(*) FROM room_participants c WHERE c.room_id = a.room_id) = 2
		ORDER BY a.room_id
		LIMIT 1
	`
	var roomID int64
	err := s.db.QueryRowContext(ctx, query, userA, userB).Scan(&roomID)
	switch {
	case err == nil:
		room, err := s.GetRoom(ctx, roomID)
		return room, false, err
	case errors.Is(err, sql.ErrNoRows):
		room, err := s.CreateRoom(ctx, userA, userB)
		return room, true, err
	default:
		return nil, false, fmt.Errorf("query direct room: %w", err)
	}
}

// GetRoom retrieves a room and its participants.
func (s *SQLite) GetRoom(ctx context.Context, roomID int64) (*Room, error) {
	var room Room
	err := s.db.QueryRowContext(ctx, `SELECT id, created_at FROM rooms WHERE id = ?`, roomID).
		Scan(&room.ID, &room.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("query room: %w", err)
	}

	participants, err := s.ListParticipants(ctx, roomID)
	if err != nil {
		return nil, err
	}
	room.Participants = participants
	return &room, nil
}

// ListParticipants returns the user ids of a room, ascending.
func (s *SQLite) ListParticipants(ctx context.Context, roomID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM room_participants WHERE room_id = ? ORDER BY user_id`, roomID)
	if err != nil {
		return nil, fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
