package chat

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10 // must be less than pongWait
	maxMessageSize = 8192
	sendBuffer     = 256
)

type messageSender interface {
	SendMessage(ctx context.Context, senderID, senderName, conversationID, content string) (*Message, error)
}

// Client is a middleman between one websocket connection and the hub.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte // owned by the hub, which closes it
	replies  chan []byte // frames for this client only
	sender   messageSender
	userID   string
	username string
	log      *zap.Logger
}

func newClient(hub *Hub, conn *websocket.Conn, sender messageSender, userID, username string, log *zap.Logger) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		replies:  make(chan []byte, 16),
		sender:   sender,
		userID:   userID,
		username: username,
		log:      log,
	}
}

// readPump turns inbound frames into sent messages. The hub delivers them back
// to both participants, so nothing is echoed here.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("websocket read failed", zap.String("user", c.userID), zap.Error(err))
			}
			return
		}

		var in WSMessage
		if err := json.Unmarshal(raw, &in); err != nil {
			c.reply(Frame{Type: FrameError, Error: "malformed frame"})
			continue
		}
		if _, err := c.sender.SendMessage(ctx, c.userID, c.username, in.ConversationID, in.Content); err != nil {
			c.reply(Frame{Type: FrameError, Error: publicError(err)})
		}
	}
}

// reply queues a frame for this client only. It is dropped if the buffer is full.
func (c *Client) reply(f Frame) {
	b, err := json.Marshal(f)
	if err != nil {
		return
	}
	select {
	case c.replies <- b:
	default:
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case message := <-c.replies:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
