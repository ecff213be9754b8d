package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"
)

const (
	StreamName      = "MARKET"
	streamRetention = 7 * 24 * time.Hour
)

// NATSPublisher writes events to a JetStream stream.
type NATSPublisher struct {
	nc  *nats.Conn
	js  jetstream.JetStream
	log *zap.Logger
}

// NewNATSPublisher connects to url and makes sure the MARKET stream exists.
func NewNATSPublisher(ctx context.Context, url string, log *zap.Logger) (*NATSPublisher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	nc, err := nats.Connect(url, nats.Name("go-market"))
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Marketplace listing, sale and bid events",
		Subjects:    []string{SubjectPrefix + ".>"},
		MaxAge:      streamRetention,
		Storage:     jetstream.FileStorage,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream %s: %w", StreamName, err)
	}
	log.Info("nats stream ready", zap.String("stream", StreamName))

	return &NATSPublisher{nc: nc, js: js, log: log}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := p.js.Publish(ctx, e.Subject(), data, jetstream.WithMsgID(e.ID)); err != nil {
		return fmt.Errorf("publish to %s: %w", e.Subject(), err)
	}
	p.log.Debug("event published", zap.String("subject", e.Subject()), zap.String("id", e.ID))
	return nil
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}
