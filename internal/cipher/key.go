// Package cipher derives per-conversation keys and obfuscates chat messages
// with them.
//
// None of this is encryption. Keys are a reversible encoding of the two
// participant ids, and an obfuscated message is a base64 payload that anyone
// can read. It exists so message bodies are not stored as plain text at rest.
package cipher

import (
	"context"
	"encoding/base64"
	"errors"

	"go.uber.org/zap"
)

const (
	idSeparator = "_"
	keySuffix   = "_encryption_key"
)

// ConversationID returns the order-independent identifier of the conversation
// between two users: both ids sorted as strings and joined with "_".
func ConversationID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + idSeparator + b
}

// ConversationKey derives the key for a conversation without consulting any cache.
func ConversationKey(a, b string) string {
	return keyFor(ConversationID(a, b))
}

func keyFor(conversationID string) string {
	return base64.StdEncoding.EncodeToString([]byte(conversationID + keySuffix))
}

// Deriver memoizes conversation keys in an injected cache.
type Deriver struct {
	cache KeyCache
	log   *zap.Logger
}

func NewDeriver(cache KeyCache, log *zap.Logger) *Deriver {
	if cache == nil {
		cache = NewMemoryCache()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Deriver{cache: cache, log: log}
}

// Derive returns the key for the conversation between a and b.
// Cache failures are logged and the key is computed directly; a derivation never fails.
func (d *Deriver) Derive(ctx context.Context, a, b string) string {
	id := ConversationID(a, b)

	key, err := d.cache.Get(ctx, id)
	if err == nil {
		return key
	}
	if !errors.Is(err, ErrMiss) {
		d.log.Warn("conversation key cache read failed", zap.String("conversation", id), zap.Error(err))
	}

	key = keyFor(id)
	if err := d.cache.Set(ctx, id, key); err != nil {
		d.log.Warn("conversation key cache write failed", zap.String("conversation", id), zap.Error(err))
	}
	return key
}
