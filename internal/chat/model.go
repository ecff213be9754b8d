package chat

import "time"

// Conversation is a private thread between two users. UserA is always the
// lexically smaller id and Key is cipher.ConversationID(UserA, UserB).
type Conversation struct {
	ID            string     `json:"id"`
	Key           string     `json:"conversation_key"`
	UserA         string     `json:"user_a"`
	UserB         string     `json:"user_b"`
	PeerID        string     `json:"peer_id,omitempty"`
	PeerUsername  string     `json:"peer_username,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
}

func (c *Conversation) Has(userID string) bool {
	return c.UserA == userID || c.UserB == userID
}

// Peer returns the participant that is not userID.
func (c *Conversation) Peer(userID string) string {
	if c.UserA == userID {
		return c.UserB
	}
	return c.UserA
}

type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	SenderUsername string    `json:"sender_username"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

type StartRequest struct {
	UserID string `json:"user_id"`
}

type SendRequest struct {
	Content string `json:"content"`
}

// WSMessage is the frame a client sends over the websocket.
type WSMessage struct {
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content"`
}

const (
	FrameMessage = "message"
	FrameError   = "error"
)

// Frame is what the server writes to a websocket client.
type Frame struct {
	Type    string   `json:"type"`
	Message *Message `json:"message,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// Delivery travels over Redis so every instance can reach the recipients it holds.
type Delivery struct {
	Recipients []string `json:"recipients"`
	Message    Message  `json:"message"`
}
