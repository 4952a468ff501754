package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Subscriber streams swap events from JetStream.
type Subscriber struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger *slog.Logger
}

// NewSubscriber connects to NATS for consuming swap events.
func NewSubscriber(natsURL string, logger *slog.Logger) (*Subscriber, error) {
	if logger == nil {
		logger = slog.Default()
	}

	nc, err := nats.Connect(natsURL,
		nats.Name("swapper-subscriber"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	logger.Info("NATS subscriber initialized", "url", natsURL)

	return &Subscriber{
		nc:     nc,
		js:     js,
		logger: logger,
	}, nil
}

// Subscribe delivers swap events published after the call. An empty wallet
// subscribes to every wallet. Delivery stops when ctx is done; the channel
// is never closed.
func (s *Subscriber) Subscribe(ctx context.Context, wallet string) (<-chan *SwapEvent, error) {
	subject := StreamSubjects
	if wallet != "" {
		subject = SubjectPrefix + wallet
	}

	// Ephemeral: removed by the server once the connection goes away
	cons, err := s.js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		FilterSubject:     subject,
		AckPolicy:         jetstream.AckExplicitPolicy,
		DeliverPolicy:     jetstream.DeliverNewPolicy,
		InactiveThreshold: time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	out := make(chan *SwapEvent, 10)
	cc, err := cons.Consume(func(msg jetstream.Msg) {
		var event SwapEvent
		if err := json.Unmarshal(msg.Data(), &event); err != nil {
			s.logger.WarnContext(ctx, "failed to unmarshal swap event",
				"subject", msg.Subject(),
				"error", err,
			)
			msg.Ack()
			return
		}
		select {
		case out <- &event:
			msg.Ack()
		case <-ctx.Done():
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	go func() {
		<-ctx.Done()
		cc.Stop()
	}()

	s.logger.DebugContext(ctx, "subscribed to swap events", "subject", subject)
	return out, nil
}

// Close closes the connection to NATS.
func (s *Subscriber) Close() error {
	if s.nc != nil {
		s.nc.Close()
		s.logger.Info("NATS subscriber closed")
	}
	return nil
}
