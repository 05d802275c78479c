// Package redis adapts Redis Streams to pipeline origins and destinations.
//
// A Consumer origin reads entries from a stream with XREAD, tracking the
// last seen ID so each entry is produced once, in stream order. A Producer
// destination appends entries with XADD. Redis assigns entry IDs unless the
// entry carries one.
//
// # Stream Semantics
//
// Redis Streams are append-only logs:
//   - Entries are field-value maps with monotonically increasing IDs
//   - XREAD after an ID returns only newer entries
//   - MAXLEN trims old entries to bound stream growth
//
// The Consumer reads as a standalone client, not through a consumer group,
// so entries are not load-balanced or acknowledged. One pipeline consumes
// the whole stream.
//
// # Usage
//
//	consumer := redis.NewConsumer(redis.ConsumerConfig{
//	    Addr:   "localhost:6379",
//	    Stream: "orders",
//	})
//	if err := consumer.Connect(ctx); err != nil {
//	    return err
//	}
//	defer consumer.Close()
//
//	p := gostream.To(
//	    gostream.From(consumer, gostream.SourceConfig[redis.Entry]{}),
//	    dest,
//	    gostream.SinkConfig{},
//	)
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/fxsml/gostream"
	"github.com/fxsml/gostream/config"
)

// Entry is one Redis stream entry.
type Entry struct {
	// ID is the stream entry ID ("1526919030474-0"). Set by Redis on
	// produce when empty.
	ID string

	// Values are the entry's field-value pairs.
	Values map[string]any
}

// ConsumerConfig configures a Consumer origin.
type ConsumerConfig struct {
	// Addr is the Redis server address ("host:port").
	Addr string

	// Password is the optional server password.
	Password string

	// DB is the database number.
	DB int

	// Stream is the stream key to read from.
	Stream string

	// StartID is the entry ID to read after. "0" reads the whole stream,
	// "$" reads only entries added after connecting. Default is "0".
	StartID string

	// ReadCount is the maximum entries fetched per XREAD. Default is 64.
	ReadCount int64

	// ReadBlock is how long each XREAD blocks waiting for entries. Close
	// takes effect within this interval. Default is 5s.
	ReadBlock time.Duration

	// Logger for operational logging. If nil, uses slog.Default().
	Logger *slog.Logger
}

func (c ConsumerConfig) applyDefaults() ConsumerConfig {
	if c.StartID == "" {
		c.StartID = "0"
	}
	if c.ReadCount <= 0 {
		c.ReadCount = 64
	}
	if c.ReadBlock <= 0 {
		c.ReadBlock = 5 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Consumer reads a Redis stream as an origin. Connect must be called before
// the pipeline runs. Close ends the stream: already fetched entries still
// drain, then the origin reports end of stream.
type Consumer struct {
	cfg     ConsumerConfig
	client  *goredis.Client
	lastID  string
	pending []goredis.XMessage

	mu        sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

var _ gostream.Origin[Entry] = (*Consumer)(nil)

// NewConsumer creates a Consumer for the configured stream.
func NewConsumer(cfg ConsumerConfig) *Consumer {
	cfg = cfg.applyDefaults()
	return &Consumer{
		cfg:    cfg,
		lastID: cfg.StartID,
		done:   make(chan struct{}),
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

// Connect establishes the Redis connection and verifies it with a ping.
func (c *Consumer) Connect(ctx context.Context) error {
	client := goredis.NewClient(&goredis.Options{
		Addr:     c.cfg.Addr,
		Password: c.cfg.Password,
		DB:       c.cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	c.mu.Lock()
	c.client = client
	c.mu.Unlock()

	c.cfg.Logger.Debug("redis consumer connected",
		"addr", c.cfg.Addr, "stream", c.cfg.Stream, "start_id", c.lastID)
	return nil
}

// Next produces the next stream entry. It blocks until an entry arrives,
// the consumer is closed, or ctx is cancelled.
func (c *Consumer) Next(ctx context.Context) (Entry, bool, error) {
	if len(c.pending) > 0 {
		return c.pop(), true, nil
	}

	c.mu.Lock()
	client := c.client
	c.mu.Unlock()
	if client == nil {
		return Entry{}, false, errors.New("not connected to redis")
	}

	for {
		select {
		case <-c.done:
			return Entry{}, false, nil
		case <-ctx.Done():
			return Entry{}, false, ctx.Err()
		default:
		}

		streams, err := client.XRead(ctx, &goredis.XReadArgs{
			Streams: []string{c.cfg.Stream, c.lastID},
			Count:   c.cfg.ReadCount,
			Block:   c.cfg.ReadBlock,
		}).Result()
		if errors.Is(err, goredis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return Entry{}, false, ctx.Err()
			}
			select {
			case <-c.done:
				return Entry{}, false, nil
			default:
			}
			return Entry{}, false, fmt.Errorf("reading stream %s: %w", c.cfg.Stream, err)
		}

		for _, s := range streams {
			c.pending = append(c.pending, s.Messages...)
		}
		if len(c.pending) > 0 {
			return c.pop(), true, nil
		}
	}
}

func (c *Consumer) pop() Entry {
	m := c.pending[0]
	c.pending = c.pending[1:]
	c.lastID = m.ID
	return Entry{ID: m.ID, Values: m.Values}
}

// Close stops the consumer and closes the connection. It is safe to call
// multiple times.
func (c *Consumer) Close() error {
	c.closeOnce.Do(func() { close(c.done) })

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		err := c.client.Close()
		c.client = nil
		return err
	}
	return nil
}

// ProducerConfig configures a Producer destination.
type ProducerConfig struct {
	// Addr is the Redis server address ("host:port").
	Addr string

	// Password is the optional server password.
	Password string

	// DB is the database number.
	DB int

	// Stream is the stream key to append to.
	Stream string

	// MaxLen trims the stream to approximately this many entries on each
	// append. Zero disables trimming.
	MaxLen int64

	// Logger for operational logging. If nil, uses slog.Default().
	Logger *slog.Logger
}

func (c ProducerConfig) applyDefaults() ProducerConfig {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Producer appends delivered entries to a Redis stream.
type Producer struct {
	cfg    ProducerConfig
	client *goredis.Client
	mu     sync.Mutex
}

var _ gostream.Destination[Entry] = (*Producer)(nil)

// NewProducer creates a Producer for the configured stream.
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

// Connect establishes the Redis connection and verifies it with a ping.
func (p *Producer) Connect(ctx context.Context) error {
	client := goredis.NewClient(&goredis.Options{
		Addr:     p.cfg.Addr,
		Password: p.cfg.Password,
		DB:       p.cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	p.mu.Lock()
	p.client = client
	p.mu.Unlock()
	return nil
}

// Deliver appends one entry to the stream.
func (p *Producer) Deliver(ctx context.Context, e Entry) error {
	p.mu.Lock()
	client := p.client
	p.mu.Unlock()
	if client == nil {
		return errors.New("not connected to redis")
	}

	args := &goredis.XAddArgs{
		Stream: p.cfg.Stream,
		ID:     e.ID,
		Values: e.Values,
	}
	if p.cfg.MaxLen > 0 {
		args.MaxLen = p.cfg.MaxLen
		args.Approx = true
	}

	if err := client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("appending to stream %s: %w", p.cfg.Stream, err)
	}
	return nil
}

// Close closes the Redis connection. It is safe to call multiple times.
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		err := p.client.Close()
		p.client = nil
		return err
	}
	return nil
}
