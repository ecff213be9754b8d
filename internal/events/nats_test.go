package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	natstest "github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runJetStream(t *testing.T) *server.Server {
	t.Helper()
	opts := natstest.DefaultTestOptions
	opts.Port = -1
	opts.JetStream = true
	opts.StoreDir = t.TempDir()
	s := natstest.RunServer(&opts)
	t.Cleanup(s.Shutdown)
	return s
}

func newTestPublisher(t *testing.T) *NATSPublisher {
	t.Helper()
	p, err := NewNATSPublisher(context.Background(), runJetStream(t).ClientURL(), nil)
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p
}

func TestNATSPublisher_CreatesStream(t *testing.T) {
	ctx := context.Background()
	p := newTestPublisher(t)

	stream, err := p.js.Stream(ctx, StreamName)
	require.NoError(t, err)
	info, err := stream.Info(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"market.>"}, info.Config.Subjects)
	assert.Equal(t, 7*24*time.Hour, info.Config.MaxAge)
	assert.Equal(t, jetstream.FileStorage, info.Config.Storage)
	assert.Zero(t, info.State.Msgs)
}

func TestNATSPublisher_ReopensExistingStream(t *testing.T) {
	s := runJetStream(t)

	for i := 0; i < 2; i++ {
		p, err := NewNATSPublisher(context.Background(), s.ClientURL(), nil)
		require.NoError(t, err)
		p.Close()
	}
}

func TestNATSPublisher_Publish(t *testing.T) {
	ctx := context.Background()
	p := newTestPublisher(t)

	created := New(TypeListingCreated, map[string]string{"listing_id": "l-1", "handle": "sunset"})
	require.NoError(t, p.Publish(ctx, created))

	stream, err := p.js.Stream(ctx, StreamName)
	require.NoError(t, err)
	msg, err := stream.GetLastMsgForSubject(ctx, "market.listing.created")
	require.NoError(t, err)

	var got Event
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, TypeListingCreated, got.Type)
	assert.True(t, created.OccurredAt.Equal(got.OccurredAt))
	assert.Equal(t, map[string]any{"listing_id": "l-1", "handle": "sunset"}, got.Data)
}

func TestNATSPublisher_DeduplicatesByEventID(t *testing.T) {
	ctx := context.Background()
	p := newTestPublisher(t)

	sold := New(TypeListingSold, map[string]string{"listing_id": "l-1"})
	require.NoError(t, p.Publish(ctx, sold))
	require.NoError(t, p.Publish(ctx, sold))

	stream, err := p.js.Stream(ctx, StreamName)
	require.NoError(t, err)
	info, err := stream.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.State.Msgs, "a republished event is stored once")

	require.NoError(t, p.Publish(ctx, New(TypeBidPlaced, map[string]int64{"amount_cents": 500})))
	info, err = stream.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), info.State.Msgs)
}

func TestNewNATSPublisher_Unreachable(t *testing.T) {
	s := runJetStream(t)
	url := s.ClientURL()
	s.Shutdown()

	_, err := NewNATSPublisher(context.Background(), url, nil)
	assert.Error(t, err)
}
