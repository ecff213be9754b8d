package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go-market/internal/cipher"
	"go-market/internal/user"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrNotFound     = errors.New("conversation not found")
	ErrUnknownUser  = errors.New("user not found")
	ErrForbidden    = errors.New("not a participant of this conversation")
	ErrInvalidInput = errors.New("invalid input")
)

const (
	maxMessageLen       = 2000
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// Store is the persistence the service needs. *Repository implements it.
type Store interface {
	FindOrCreateConversation(ctx context.Context, c *Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]Conversation, error)
	SaveMessage(ctx context.Context, m *Message) error
	Messages(ctx context.Context, conversationID string, before time.Time, limit int) ([]Message, error)
}

// Directory resolves users. *user.Service implements it.
type Directory interface {
	Get(ctx context.Context, id string) (*user.User, error)
}

// Broadcaster hands a delivery to whatever pushes it to live connections. *Hub implements it.
type Broadcaster interface {
	Broadcast(ctx context.Context, d Delivery) error
}

type Service struct {
	repo  Store
	users Directory
	keys  *cipher.Deriver
	hub   Broadcaster
	log   *zap.Logger
}

func NewService(repo Store, users Directory, keys *cipher.Deriver, hub Broadcaster, log *zap.Logger) *Service {
	if keys == nil {
		keys = cipher.NewDeriver(nil, log)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{repo: repo, users: users, keys: keys, hub: hub, log: log}
}

// StartConversation returns the conversation between userID and targetID, creating it on first contact.
func (s *Service) StartConversation(ctx context.Context, userID, targetID string) (*Conversation, error) {
	targetID = strings.TrimSpace(targetID)
	if targetID == "" || targetID == userID {
		return nil, fmt.Errorf("%w: pick another user to message", ErrInvalidInput)
	}
	target, err := s.users.Get(ctx, targetID)
	if errors.Is(err, user.ErrNotFound) {
		return nil, ErrUnknownUser
	}
	if err != nil {
		return nil, err
	}

	a, b := userID, targetID
	if b < a {
		a, b = b, a
	}
	c := &Conversation{
		ID:    uuid.NewString(),
		Key:   cipher.ConversationID(a, b),
		UserA: a,
		UserB: b,
	}
	if err := s.repo.FindOrCreateConversation(ctx, c); err != nil {
		return nil, err
	}
	c.PeerID = target.ID
	c.PeerUsername = target.Username
	return c, nil
}

func (s *Service) ListConversations(ctx context.Context, userID string) ([]Conversation, error) {
	return s.repo.ListConversations(ctx, userID)
}

// SendMessage stores an obfuscated copy of content and broadcasts the plaintext to both participants.
func (s *Service) SendMessage(ctx context.Context, senderID, senderName, conversationID, content string) (*Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: message is empty", ErrInvalidInput)
	}
	if utf8.RuneCountInString(content) > maxMessageLen {
		return nil, fmt.Errorf("%w: message is longer than %d characters", ErrInvalidInput, maxMessageLen)
	}

	c, err := s.participant(ctx, senderID, conversationID)
	if err != nil {
		return nil, err
	}

	key := s.keys.Derive(ctx, c.UserA, c.UserB)
	m := &Message{
		ID:             uuid.NewString(),
		ConversationID: c.ID,
		SenderID:       senderID,
		SenderUsername: senderName,
		Content:        cipher.Obfuscate(content, key),
	}
	if err := s.repo.SaveMessage(ctx, m); err != nil {
		return nil, err
	}
	m.Content = content

	if s.hub != nil {
		d := Delivery{Recipients: []string{c.UserA, c.UserB}, Message: *m}
		if err := s.hub.Broadcast(ctx, d); err != nil {
			s.log.Warn("broadcast failed", zap.String("conversation", c.ID), zap.Error(err))
		}
	}
	return m, nil
}

// History returns up to limit messages before the given time, oldest first, readable.
func (s *Service) History(ctx context.Context, userID, conversationID string, limit int, before time.Time) ([]Message, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	c, err := s.participant(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.repo.Messages(ctx, c.ID, before, limit)
	if err != nil {
		return nil, err
	}

	key := s.keys.Derive(ctx, c.UserA, c.UserB)
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		m.Content = cipher.Deobfuscate(m.Content, key)
		out[len(msgs)-1-i] = m
	}
	return out, nil
}

func (s *Service) participant(ctx context.Context, userID, conversationID string) (*Conversation, error) {
	c, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !c.Has(userID) {
		return nil, ErrForbidden
	}
	return c, nil
}
