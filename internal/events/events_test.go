package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	before := time.Now().UTC()
	e := New(TypeListingSold, map[string]string{"listing_id": "l-1"})

	_, err := uuid.Parse(e.ID)
	require.NoError(t, err)
	assert.Equal(t, TypeListingSold, e.Type)
	assert.False(t, e.OccurredAt.Before(before))
	assert.Equal(t, "market.listing.sold", e.Subject())
}

func TestEvent_JSON(t *testing.T) {
	e := New(TypeBidPlaced, map[string]int64{"amount_cents": 500})

	raw, err := json.Marshal(e)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "listing.bid", decoded["type"])
	assert.Equal(t, e.ID, decoded["id"])
	assert.Contains(t, decoded, "occurred_at")
	assert.Equal(t, map[string]any{"amount_cents": float64(500)}, decoded["data"])
	assert.NotContains(t, decoded, "subject", "the subject is derived from the type, not carried in the payload")
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	assert.NoError(t, p.Publish(context.Background(), New(TypeListingCreated, nil)))
	p.Close()
}
