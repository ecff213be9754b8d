package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Channel is the Redis pub/sub channel every instance publishes to and listens on.
const Channel = "market-chat"

// Hub tracks the websocket clients connected to this instance and routes
// deliveries from Redis to the ones they are addressed to.
type Hub struct {
	clients    map[string]map[*Client]bool // user id -> connections
	deliveries chan Delivery               // Redis -> clients
	Register   chan *Client
	Unregister chan *Client
	done       chan struct{}
	ready      chan struct{}
	readyOnce  sync.Once
	redis      *redis.Client
	log        *zap.Logger
}

func NewHub(redisClient *redis.Client, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		deliveries: make(chan Delivery),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		done:       make(chan struct{}),
		ready:      make(chan struct{}),
		redis:      redisClient,
		log:        log,
	}
}

// Run owns the client registry until ctx is cancelled. Every remaining
// client's send channel is closed on the way out.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	defer func() {
		for _, conns := range h.clients {
			for c := range conns {
				close(c.send)
			}
		}
		h.clients = map[string]map[*Client]bool{}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.Register:
			if h.clients[c.userID] == nil {
				h.clients[c.userID] = make(map[*Client]bool)
			}
			h.clients[c.userID][c] = true

		case c := <-h.Unregister:
			h.drop(c)

		case d := <-h.deliveries:
			frame, err := json.Marshal(Frame{Type: FrameMessage, Message: &d.Message})
			if err != nil {
				h.log.Error("encode frame", zap.Error(err))
				continue
			}
			for _, id := range unique(d.Recipients) {
				for c := range h.clients[id] {
					select {
					case c.send <- frame:
					default:
						h.log.Warn("client too slow, dropping connection", zap.String("user", id))
						h.drop(c)
					}
				}
			}
		}
	}
}

func (h *Hub) drop(c *Client) {
	conns, ok := h.clients[c.userID]
	if !ok || !conns[c] {
		return
	}
	delete(conns, c)
	close(c.send)
	if len(conns) == 0 {
		delete(h.clients, c.userID)
	}
}

// Broadcast publishes d to every instance, this one included.
func (h *Hub) Broadcast(ctx context.Context, d Delivery) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode delivery: %w", err)
	}
	return h.redis.Publish(ctx, Channel, payload).Err()
}

// Ready is closed once Subscribe has been confirmed by Redis. Deliveries
// broadcast before that may be missed by this instance.
func (h *Hub) Ready() <-chan struct{} {
	return h.ready
}

// Subscribe feeds deliveries published by any instance into Run until ctx is
// cancelled. It returns an error if Redis does not confirm the subscription.
func (h *Hub) Subscribe(ctx context.Context) error {
	pubsub := h.redis.Subscribe(ctx, Channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("subscribe %s: %w", Channel, err)
	}
	h.readyOnce.Do(func() { close(h.ready) })
	h.log.Info("subscribed", zap.String("channel", Channel))
	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var d Delivery
			if err := json.Unmarshal([]byte(msg.Payload), &d); err != nil {
				h.log.Warn("discarding malformed delivery", zap.Error(err))
				continue
			}
			select {
			case h.deliveries <- d:
			case <-ctx.Done():
				return nil
			case <-h.done:
				return nil
			}
		}
	}
}

func (h *Hub) register(c *Client) bool {
	select {
	case h.Register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) unregister(c *Client) {
	select {
	case h.Unregister <- c:
	case <-h.done:
	}
}

func unique(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
