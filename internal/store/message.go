package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalid is returned when a record fails validation.
var ErrInvalid = errors.New("invalid record")

// Platform is where a message was meant to go.
type Platform string

// Platform constants.
const (
	PlatformChat  Platform = "chat"
	PlatformEmail Platform = "email"
	PlatformSMS   Platform = "sms"
)

// Valid reports whether p is a known platform.
func (p Platform) Valid() bool {
	switch p {
	case PlatformChat, PlatformEmail, PlatformSMS:
		return true
	}
	return false
}

// Message is a piece of text composed from recognized signs.
type Message struct {
	ID         string
	Text       string
	Label      string
	Confidence float32
	Platform   Platform
	Status     string
	CreatedAt  time.Time
}

// MessageRepository provides CRUD operations for messages.
type MessageRepository struct {
	db *sql.DB
}

// Messages returns the message repository for this store.
func (s *Store) Messages() *MessageRepository {
	return &MessageRepository{db: s.db}
}

// Create inserts m, assigning an ID, a timestamp and defaults.
func (r *MessageRepository) Create(m *Message) error {
	if m.Text == "" {
		return fmt.Errorf("%w: message text is empty", ErrInvalid)
	}
	if m.Platform == "" {
		m.Platform = PlatformChat
	}
	if !m.Platform.Valid() {
		return fmt.Errorf("%w: unknown platform %q", ErrInvalid, m.Platform)
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Status == "" {
		m.Status = "sent"
	}
	m.CreatedAt = time.Now()

	_, err := r.db.Exec(
		`INSERT INTO messages (id, text, label, confidence, platform, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Text, m.Label, m.Confidence, string(m.Platform), m.Status, m.CreatedAt,
	)
	return err
}

// GetByID retrieves a message by its ID.
func (r *MessageRepository) GetByID(id string) (*Message, error) {
	m := &Message{}
	var platform string

	err := r.db.QueryRow(
		`SELECT id, text, label, confidence, platform, status, created_at
		 FROM messages WHERE id = ?`,
		id,
	).Scan(&m.ID, &m.Text, &m.Label, &m.Confidence, &platform, &m.Status, &m.CreatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	m.Platform = Platform(platform)
	return m, nil
}

// List returns the newest messages first. A limit of zero or less returns all.
func (r *MessageRepository) List(limit int) ([]*Message, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := r.db.Query(
		`SELECT id, text, label, confidence, platform, status, created_at
		 FROM messages ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		m := &Message{}
		var platform string

		if err := rows.Scan(&m.ID, &m.Text, &m.Label, &m.Confidence, &platform, &m.Status, &m.CreatedAt); err != nil {
			return nil, err
		}

		m.Platform = Platform(platform)
		messages = append(messages, m)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return messages, nil
}

// Delete removes a message by its ID.
func (r *MessageRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM messages WHERE id = ?`, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}
