// Package kafka adapts Kafka topics to pipeline origins and destinations.
//
// A Consumer origin reads one topic through a consumer group, committing
// offsets automatically as messages are produced into the pipeline. A
// Producer destination writes delivered messages.
//
// # Topic Semantics
//
// Kafka topics are partitioned logs:
//   - Ordering holds within a partition, not across partitions
//   - Consumer groups balance partitions across group members
//   - Offsets are committed per group, so a restarted consumer resumes
//
// A pipeline preserves the order the consumer observes. For strictly
// ordered streams, use a single-partition topic.
//
// # Usage
//
//	consumer := kafka.NewConsumer(kafka.ConsumerConfig{
//	    Brokers: []string{"localhost:9092"},
//	    Topic:   "orders",
//	    GroupID: "order-processor",
//	})
//	if err := consumer.Connect(ctx); err != nil {
//	    return err
//	}
//	defer consumer.Close()
package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/fxsml/gostream"
	"github.com/fxsml/gostream/config"
)

// Message is one Kafka message.
type Message struct {
	// Key is the optional partitioning key.
	Key []byte

	// Value is the message payload.
	Value []byte

	// Topic the message was read from, or to write to. On write it is
	// only consulted when the producer has no configured topic.
	Topic string

	// Partition and Offset locate a consumed message. Ignored on write.
	Partition int
	Offset    int64

	// Time is the message timestamp.
	Time time.Time
}

// ConsumerConfig configures a Consumer origin.
type ConsumerConfig struct {
	// Brokers is the list of broker addresses.
	Brokers []string

	// Topic to consume.
	Topic string

	// GroupID is the consumer group. Offsets are committed under it.
	GroupID string

	// StartOffset controls where a new group starts reading. Use
	// kafka.FirstOffset (-2) or kafka.LastOffset (-1). Default is
	// kafka.LastOffset.
	StartOffset int64

	// CommitInterval is how often offsets are committed. Default is 1s.
	CommitInterval time.Duration

	// MaxWait is the longest a fetch waits for new messages. Default
	// is 1s.
	MaxWait time.Duration

	// Logger for operational logging. If nil, uses slog.Default().
	Logger *slog.Logger
}

func (c ConsumerConfig) applyDefaults() ConsumerConfig {
	if c.StartOffset == 0 {
		c.StartOffset = kafka.LastOffset
	}
	if c.CommitInterval <= 0 {
		c.CommitInterval = time.Second
	}
	if c.MaxWait <= 0 {
		c.MaxWait = time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Consumer reads a Kafka topic as an origin. Connect must be called before
// the pipeline runs. Close ends the stream cleanly.
type Consumer struct {
	cfg    ConsumerConfig
	mu     sync.Mutex
	reader *kafka.Reader
}

var _ gostream.Origin[Message] = (*Consumer)(nil)

// NewConsumer creates a Consumer for the configured topic.
func NewConsumer(cfg ConsumerConfig) *Consumer {
	return &Consumer{cfg: cfg.applyDefaults()}
}

// ConsumerFromEnv creates a Consumer configured from GOSTREAM_{STAGE}_*
// environment variables. Brokers parse as a comma-separated list. See the
// config package for the naming scheme.
func ConsumerFromEnv(stage string) (*Consumer, error) {
	var cfg ConsumerConfig
	if err := config.Load(stage, &cfg); err != nil {
		return nil, fmt.Errorf("loading consumer config: %w", err)
	}
	return NewConsumer(cfg), nil
}

// Connect verifies broker reachability and creates the reader.
func (c *Consumer) Connect(ctx context.Context) error {
	if len(c.cfg.Brokers) == 0 {
		return errors.New("no brokers configured")
	}
	conn, err := kafka.DialContext(ctx, "tcp", c.cfg.Brokers[0])
	if err != nil {
		return fmt.Errorf("failed to connect to kafka: %w", err)
	}
	conn.Close()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        c.cfg.Brokers,
		Topic:          c.cfg.Topic,
		GroupID:        c.cfg.GroupID,
		StartOffset:    c.cfg.StartOffset,
		CommitInterval: c.cfg.CommitInterval,
		MaxWait:        c.cfg.MaxWait,
	})

	c.mu.Lock()
	c.reader = reader
	c.mu.Unlock()

	c.cfg.Logger.Debug("kafka consumer connected",
		"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group", c.cfg.GroupID)
	return nil
}

// Next produces the next message in fetch order. Closing the consumer ends
// the stream; cancelling ctx reports the cancellation.
func (c *Consumer) Next(ctx context.Context) (Message, bool, error) {
	c.mu.Lock()
	reader := c.reader
	c.mu.Unlock()
	if reader == nil {
		return Message{}, false, errors.New("not connected to kafka")
	}

	m, err := reader.ReadMessage(ctx)
	if err != nil {
		// ReadMessage returns io.EOF once the reader is closed.
		if errors.Is(err, io.EOF) {
			return Message{}, false, nil
		}
		if ctx.Err() != nil {
			return Message{}, false, ctx.Err()
		}
		return Message{}, false, fmt.Errorf("reading from %s: %w", c.cfg.Topic, err)
	}

	return Message{
		Key:       m.Key,
		Value:     m.Value,
		Topic:     m.Topic,
		Partition: m.Partition,
		Offset:    m.Offset,
		Time:      m.Time,
	}, true, nil
}

// Close stops the reader and ends the stream. It is safe to call multiple
// times.
func (c *Consumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reader != nil {
		err := c.reader.Close()
		c.reader = nil
		return err
	}
	return nil
}

// ProducerConfig configures a Producer destination.
type ProducerConfig struct {
	// Brokers is the list of broker addresses.
	Brokers []string

	// Topic to produce to. When empty, each message must carry its own.
	Topic string

	// BatchSize is the number of messages batched before a write.
	// Default is 100.
	BatchSize int

	// BatchTimeout is the longest a partial batch waits. Default is 1s.
	BatchTimeout time.Duration

	// RequiredAcks controls write durability. Default is
	// kafka.RequireAll.
	RequiredAcks kafka.RequiredAcks

	// Logger for operational logging. If nil, uses slog.Default().
	Logger *slog.Logger
}

func (c ProducerConfig) applyDefaults() ProducerConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = time.Second
	}
	if c.RequiredAcks == 0 {
		c.RequiredAcks = kafka.RequireAll
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Producer writes delivered messages to Kafka.
type Producer struct {
	cfg    ProducerConfig
	mu     sync.Mutex
	writer *kafka.Writer
}

var _ gostream.Destination[Message] = (*Producer)(nil)

// NewProducer creates a Producer for the configured topic.
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

// Connect verifies broker reachability and creates the writer.
func (p *Producer) Connect(ctx context.Context) error {
	if len(p.cfg.Brokers) == 0 {
		return errors.New("no brokers configured")
	}
	conn, err := kafka.DialContext(ctx, "tcp", p.cfg.Brokers[0])
	if err != nil {
		return fmt.Errorf("failed to connect to kafka: %w", err)
	}
	conn.Close()

	writer := &kafka.Writer{
		Addr:         kafka.TCP(p.cfg.Brokers...),
		Topic:        p.cfg.Topic,
		BatchSize:    p.cfg.BatchSize,
		BatchTimeout: p.cfg.BatchTimeout,
		RequiredAcks: p.cfg.RequiredAcks,
	}

	p.mu.Lock()
	p.writer = writer
	p.mu.Unlock()
	return nil
}

// Deliver writes one message. The configured topic wins; a message topic
// is only used when the producer has none.
func (p *Producer) Deliver(ctx context.Context, msg Message) error {
	p.mu.Lock()
	writer := p.writer
	p.mu.Unlock()
	if writer == nil {
		return errors.New("not connected to kafka")
	}

	kmsg := kafka.Message{Key: msg.Key, Value: msg.Value, Time: msg.Time}
	if p.cfg.Topic == "" {
		kmsg.Topic = msg.Topic
	}

	if err := writer.WriteMessages(ctx, kmsg); err != nil {
		return fmt.Errorf("writing to kafka: %w", err)
	}
	return nil
}

// Close flushes batched messages and closes the writer. It is safe to call
// multiple times.
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writer != nil {
		err := p.writer.Close()
		p.writer = nil
		return err
	}
	return nil
}
