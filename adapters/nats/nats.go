// Package nats adapts NATS subjects to pipeline origins and destinations.
//
// A Consumer origin subscribes to a subject and produces messages as they
// arrive. A Producer destination publishes delivered messages. NATS is
// at-most-once: messages published while no subscriber is connected are
// dropped, so start the consuming pipeline before producing.
//
// # Subject Semantics
//
// NATS subjects are hierarchical with wildcard support:
//   - "orders.created" matches exactly
//   - "orders.*" matches one token ("orders.created", not "orders.eu.created")
//   - "orders.>" matches one or more tokens
//
// A queue group load-balances messages across consumers in the same group.
//
// # Usage
//
//	consumer := nats.NewConsumer(nats.ConsumerConfig{
//	    URL:     "nats://localhost:4222",
//	    Subject: "orders.>",
//	    Queue:   "order-processor",
//	})
//	if err := consumer.Connect(ctx); err != nil {
//	    return err
//	}
//	defer consumer.Close()
package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/fxsml/gostream"
	"github.com/fxsml/gostream/config"
)

// Message is one NATS message.
type Message struct {
	// Subject the message was received on, or to publish to. When empty
	// on publish, the producer's configured subject is used.
	Subject string

	// Reply is the reply subject, if the sender expects one.
	Reply string

	// Data is the message payload.
	Data []byte
}

// ConsumerConfig configures a Consumer origin.
type ConsumerConfig struct {
	// URL is the NATS server URL ("nats://host:4222").
	URL string

	// Subject to subscribe to. Wildcards are allowed.
	Subject string

	// Queue is the optional queue group. Consumers in the same group
	// share the subject's messages.
	Queue string

	// BufferSize is the receive queue length. Default is 256.
	BufferSize int

	// ConnectTimeout bounds the initial connection. Default is 5s.
	ConnectTimeout time.Duration

	// Logger for operational logging. If nil, uses slog.Default().
	Logger *slog.Logger
}

func (c ConsumerConfig) applyDefaults() ConsumerConfig {
	if c.BufferSize <= 0 {
		c.BufferSize = 256
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Consumer subscribes to a subject as an origin. Connect must be called
// before the pipeline runs. Close ends the stream: already received
// messages still drain, then the origin reports end of stream.
type Consumer struct {
	cfg  ConsumerConfig
	msgs chan *nats.Msg

	mu   sync.Mutex
	conn *nats.Conn
	sub  *nats.Subscription

	done      chan struct{}
	closeOnce sync.Once
}

var _ gostream.Origin[Message] = (*Consumer)(nil)

// NewConsumer creates a Consumer for the configured subject.
func NewConsumer(cfg ConsumerConfig) *Consumer {
	cfg = cfg.applyDefaults()
	return &Consumer{
		cfg:  cfg,
		msgs: make(chan *nats.Msg, cfg.BufferSize),
		done: make(chan struct{}),
	}
}

// ConsumerFromEnv creates a Consumer configured from GOSTREAM_{STAGE}_*
// environment variables. See the config package for the naming scheme.
func ConsumerFromEnv(stage string) (*Consumer, error) {
	var cfg ConsumerConfig
	if err := config.Load(stage, &cfg); err != nil {
		return nil, fmt.Errorf("loading consumer config: %w", err)
	}
	return NewConsumer(cfg), nil
}

// Connect establishes the NATS connection and subscribes to the subject.
func (c *Consumer) Connect(ctx context.Context) error {
	conn, err := nats.Connect(
		c.cfg.URL,
		nats.Timeout(c.cfg.ConnectTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			c.cfg.Logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			c.cfg.Logger.Info("nats reconnected")
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to nats: %w", err)
	}

	var sub *nats.Subscription
	if c.cfg.Queue != "" {
		sub, err = conn.QueueSubscribeSyncWithChan(c.cfg.Subject, c.cfg.Queue, c.msgs)
	} else {
		sub, err = conn.ChanSubscribe(c.cfg.Subject, c.msgs)
	}
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", c.cfg.Subject, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.sub = sub
	c.mu.Unlock()

	c.cfg.Logger.Debug("nats consumer connected",
		"url", c.cfg.URL, "subject", c.cfg.Subject, "queue", c.cfg.Queue)
	return nil
}

// Next produces the next received message. After Close it drains the
// receive queue, then reports end of stream.
func (c *Consumer) Next(ctx context.Context) (Message, bool, error) {
	select {
	case m := <-c.msgs:
		return Message{Subject: m.Subject, Reply: m.Reply, Data: m.Data}, true, nil
	default:
	}

	select {
	case m := <-c.msgs:
		return Message{Subject: m.Subject, Reply: m.Reply, Data: m.Data}, true, nil
	case <-c.done:
		select {
		case m := <-c.msgs:
			return Message{Subject: m.Subject, Reply: m.Reply, Data: m.Data}, true, nil
		default:
			return Message{}, false, nil
		}
	case <-ctx.Done():
		return Message{}, false, ctx.Err()
	}
}

// Close unsubscribes, closes the connection and ends the stream. It is
// safe to call multiple times.
func (c *Consumer) Close() error {
	c.closeOnce.Do(func() { close(c.done) })

	c.mu.Lock()
	defer c.mu.Unlock()

	var lastErr error
	if c.sub != nil {
		if err := c.sub.Unsubscribe(); err != nil {
			lastErr = err
		}
		c.sub = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	return lastErr
}

// ProducerConfig configures a Producer destination.
type ProducerConfig struct {
	// URL is the NATS server URL ("nats://host:4222").
	URL string

	// Subject to publish to when a message does not carry its own.
	Subject string

	// ConnectTimeout bounds the initial connection. Default is 5s.
	ConnectTimeout time.Duration

	// FlushTimeout bounds the final flush on Close. Default is 1s.
	FlushTimeout time.Duration

	// Logger for operational logging. If nil, uses slog.Default().
	Logger *slog.Logger
}

func (c ProducerConfig) applyDefaults() ProducerConfig {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.FlushTimeout <= 0 {
		c.FlushTimeout = time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Producer publishes delivered messages to NATS.
type Producer struct {
	cfg  ProducerConfig
	mu   sync.Mutex
	conn *nats.Conn
}

var _ gostream.Destination[Message] = (*Producer)(nil)

// NewProducer creates a Producer for the configured subject.
func NewProducer(cfg ProducerConfig) *Producer {
	return &Producer{cfg: cfg.applyDefaults()}
}

// ProducerFromEnv creates a Producer configured from GOSTREAM_{STAGE}_*
// environment variables. See the config package for the naming scheme.
func ProducerFromEnv(stage string) (*Producer, error) {
	var cfg ProducerConfig
	if err := config.Load(stage, &cfg); err != nil {
		return nil, fmt.Errorf("loading producer config: %w", err)
	}
	return NewProducer(cfg), nil
}

// Connect establishes the NATS connection.
func (p *Producer) Connect(ctx context.Context) error {
	conn, err := nats.Connect(
		p.cfg.URL,
		nats.Timeout(p.cfg.ConnectTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			p.cfg.Logger.Warn("nats disconnected", "error", err)
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to nats: %w", err)
	}

	p.mu.Lock()
	p.conn = conn
	p.mu.Unlock()
	return nil
}

// Deliver publishes one message. The message's subject wins over the
// configured one.
func (p *Producer) Deliver(ctx context.Context, msg Message) error {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn == nil {
		return errors.New("not connected to nats")
	}

	subject := msg.Subject
	if subject == "" {
		subject = p.cfg.Subject
	}
	if subject == "" {
		return errors.New("no subject: set Message.Subject or ProducerConfig.Subject")
	}

	if err := conn.Publish(subject, msg.Data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// Close flushes pending messages and closes the connection. It is safe to
// call multiple times.
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil {
		return nil
	}
	err := p.conn.FlushTimeout(p.cfg.FlushTimeout)
	p.conn.Close()
	p.conn = nil
	if err != nil {
		return fmt.Errorf("flushing pending messages: %w", err)
	}
	return nil
}
