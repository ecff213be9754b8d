package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go-market/internal/db"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// FindOrCreateConversation inserts c unless a conversation with the same key
// exists, and fills c from the stored row either way.
func (r *Repository) FindOrCreateConversation(ctx context.Context, c *Conversation) error {
	query := `INSERT INTO conversations (id, conversation_key, user_a, user_b)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (conversation_key) DO UPDATE SET conversation_key = EXCLUDED.conversation_key
		RETURNING id, created_at, last_message_at`

	var last sql.NullTime
	err := r.db.QueryRowContext(ctx, query, c.ID, c.Key, c.UserA, c.UserB).Scan(&c.ID, &c.CreatedAt, &last)
	if err != nil {
		return fmt.Errorf("upsert conversation: %w", err)
	}
	if last.Valid {
		c.LastMessageAt = &last.Time
	}
	return nil
}

func (r *Repository) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	if !db.ValidID(id) {
		return nil, ErrNotFound
	}
	var (
		c    Conversation
		last sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `SELECT id, conversation_key, user_a, user_b, created_at, last_message_at
		FROM conversations WHERE id = $1`, id,
	).Scan(&c.ID, &c.Key, &c.UserA, &c.UserB, &c.CreatedAt, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if last.Valid {
		c.LastMessageAt = &last.Time
	}
	return &c, nil
}

// ListConversations returns userID's conversations, most recent activity first,
// with the other participant filled in.
func (r *Repository) ListConversations(ctx context.Context, userID string) ([]Conversation, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT c.id, c.conversation_key, c.user_a, c.user_b, c.created_at, c.last_message_at,
			u.id, u.username
		FROM conversations c
		JOIN users u ON u.id = CASE WHEN c.user_a = $1 THEN c.user_b ELSE c.user_a END
		WHERE c.user_a = $1 OR c.user_b = $1
		ORDER BY COALESCE(c.last_message_at, c.created_at) DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	convs := []Conversation{}
	for rows.Next() {
		var (
			c    Conversation
			last sql.NullTime
		)
		if err := rows.Scan(&c.ID, &c.Key, &c.UserA, &c.UserB, &c.CreatedAt, &last, &c.PeerID, &c.PeerUsername); err != nil {
			return nil, err
		}
		if last.Valid {
			c.LastMessageAt = &last.Time
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

// SaveMessage stores m and bumps the conversation's activity time.
func (r *Repository) SaveMessage(ctx context.Context, m *Message) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx,
		"INSERT INTO messages (id, conversation_id, sender_id, content) VALUES ($1, $2, $3, $4) RETURNING created_at",
		m.ID, m.ConversationID, m.SenderID, m.Content,
	).Scan(&m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "UPDATE conversations SET last_message_at = $2 WHERE id = $1", m.ConversationID, m.CreatedAt); err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return tx.Commit()
}

// Messages returns up to limit messages older than before (any age when zero), newest first.
func (r *Repository) Messages(ctx context.Context, conversationID string, before time.Time, limit int) ([]Message, error) {
	query := `SELECT m.id, m.conversation_id, m.sender_id, u.username, m.content, m.created_at
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.conversation_id = $1`
	args := []any{conversationID}
	if !before.IsZero() {
		query += " AND m.created_at < $2"
		args = append(args, before)
	}
	query += fmt.Sprintf(" ORDER BY m.created_at DESC LIMIT %d", limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := []Message{}
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.SenderUsername, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
