package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/MStylesMS/ParadoxFX-sub001/internal/logging"
	"github.com/MStylesMS/ParadoxFX-sub001/internal/metrics"
)

// Config configures the NATS JetStream transport.
type Config struct {
	URL              string
	QueueGroup       string
	SubscribersCount int
	DurableName      string
	MaxReconnects    int
	ReconnectWait    time.Duration
	AckWaitTimeout   time.Duration
	CloseTimeout     time.Duration
	MaxDeliver       int
	MaxAckPending    int

	// BreakerFailureThreshold is the number of consecutive publish
	// failures that trips the breaker open.
	BreakerFailureThreshold uint32
	BreakerOpenTimeout      time.Duration
}

func (c Config) withDefaults() Config {
	if c.SubscribersCount <= 0 {
		c.SubscribersCount = 1
	}
	if c.MaxReconnects == 0 {
		c.MaxReconnects = -1
	}
	if c.ReconnectWait <= 0 {
		c.ReconnectWait = 2 * time.Second
	}
	if c.AckWaitTimeout <= 0 {
		c.AckWaitTimeout = 30 * time.Second
	}
	if c.CloseTimeout <= 0 {
		c.CloseTimeout = 5 * time.Second
	}
	if c.MaxDeliver <= 0 {
		c.MaxDeliver = 3
	}
	if c.MaxAckPending <= 0 {
		c.MaxAckPending = 1024
	}
	if c.BreakerFailureThreshold == 0 {
		c.BreakerFailureThreshold = 5
	}
	if c.BreakerOpenTimeout <= 0 {
		c.BreakerOpenTimeout = 15 * time.Second
	}
	return c
}

// wmLoggerAdapter routes Watermill's internal log lines through zerolog
// instead of its own stdlib-backed logger.
type wmLoggerAdapter struct {
	logger zerolog.Logger
}

func (a wmLoggerAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.logger.Error().Err(err).Fields(map[string]interface{}(fields)).Msg(msg)
}
func (a wmLoggerAdapter) Info(msg string, fields watermill.LogFields) {
	a.logger.Info().Fields(map[string]interface{}(fields)).Msg(msg)
}
func (a wmLoggerAdapter) Debug(msg string, fields watermill.LogFields) {
	a.logger.Debug().Fields(map[string]interface{}(fields)).Msg(msg)
}
func (a wmLoggerAdapter) Trace(msg string, fields watermill.LogFields) {
	a.logger.Trace().Fields(map[string]interface{}(fields)).Msg(msg)
}
func (a wmLoggerAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return wmLoggerAdapter{logger: a.logger.With().Fields(map[string]interface{}(fields)).Logger()}
}

// NATSTransport is the Transport implementation used in production,
// built on a Watermill publisher/subscriber pair talking to NATS
// JetStream, with publishes routed through a circuit breaker so a
// wedged broker connection fails fast instead of blocking every zone.
type NATSTransport struct {
	cfg        Config
	publisher  message.Publisher
	subscriber message.Subscriber
	breaker    *gobreaker.CircuitBreaker[any]
	logger     zerolog.Logger
}

var _ Transport = (*NATSTransport)(nil)

// Dial connects to the NATS server at cfg.URL and returns a ready-to-use
// Transport. The publisher and the subscriber each open their own
// connection to cfg.URL.
func Dial(cfg Config) (*NATSTransport, error) {
	cfg = cfg.withDefaults()
	logger := logging.ForComponent("transport")
	wmLogger := wmLoggerAdapter{logger: logger}

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("transport disconnected")
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			metrics.TransportReconnects.Inc()
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("transport reconnected")
		}),
	}

	pubConfig := wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled:      false,
			AutoProvision: true,
			TrackMsgId:    true,
			AckAsync:      false,
		},
	}
	pub, err := wmNats.NewPublisher(pubConfig, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("create transport publisher: %w", err)
	}

	subConfig := wmNats.SubscriberConfig{
		URL:              cfg.URL,
		QueueGroupPrefix: cfg.QueueGroup,
		SubscribersCount: cfg.SubscribersCount,
		AckWaitTimeout:   cfg.AckWaitTimeout,
		CloseTimeout:     cfg.CloseTimeout,
		NatsOptions:      natsOpts,
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled:      false,
			AutoProvision: true,
			AckAsync:      false,
			DurablePrefix: cfg.DurableName,
			SubscribeOptions: []natsgo.SubOpt{
				natsgo.MaxDeliver(cfg.MaxDeliver),
				natsgo.MaxAckPending(cfg.MaxAckPending),
				natsgo.AckWait(cfg.AckWaitTimeout),
				natsgo.DeliverNew(),
			},
		},
	}
	sub, err := wmNats.NewSubscriber(subConfig, wmLogger)
	if err != nil {
		pub.Close()
		return nil, fmt.Errorf("create transport subscriber: %w", err)
	}

	breaker := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "transport-publish",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("transport circuit breaker state change")
		},
	})

	return &NATSTransport{
		cfg:        cfg,
		publisher:  pub,
		subscriber: sub,
		breaker:    breaker,
		logger:     logger,
	}, nil
}

// Publish implements Transport. It sets a dedup header from a fresh
// message UUID so JetStream's TrackMsgId suppresses redelivery-induced
// duplicates, and routes the send through the circuit breaker.
func (t *NATSTransport) Publish(ctx context.Context, topic string, payload []byte) error {
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("Nats-Msg-Id", msg.UUID)
	msg.SetContext(ctx)

	_, err := t.breaker.Execute(func() (any, error) {
		if err := t.publisher.Publish(topic, msg); err != nil {
			return nil, err
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	metrics.RecordTransportPublish(topic)
	return nil
}

// Subscribe implements Transport, translating Watermill's ack/nack
// protocol into the Message.Ack/Nack closures callers use.
func (t *NATSTransport) Subscribe(ctx context.Context, topic string) (<-chan Message, error) {
	wmMessages, err := t.subscriber.Subscribe(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", topic, err)
	}

	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case wmMsg, ok := <-wmMessages:
				if !ok {
					return
				}
				delivery := Message{
					Topic:   topic,
					Payload: wmMsg.Payload,
					Ack:     func() { wmMsg.Ack() },
					Nack:    func() { wmMsg.Nack() },
				}
				select {
				case out <- delivery:
				case <-ctx.Done():
					wmMsg.Nack()
					return
				}
			}
		}
	}()
	return out, nil
}

// Close shuts down both the publisher and subscriber connections.
func (t *NATSTransport) Close() error {
	subErr := t.subscriber.Close()
	pubErr := t.publisher.Close()
	if subErr != nil {
		return subErr
	}
	return pubErr
}
