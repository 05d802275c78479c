// Package cehttp adapts CloudEvents over HTTP to pipeline origins and
// destinations.
//
// A Sender destination posts every delivered event to a target URL using
// the CloudEvents HTTP protocol binding, binary mode by default. A
// Receiver origin is an http.Handler that accepts posted events, single or
// batched, and feeds them into a pipeline. Together they let two pipelines
// on different hosts form one logical stream.
//
// # Delivery Semantics
//
// The Receiver replies 202 Accepted once events are queued for the
// pipeline; it does not wait for downstream processing. A full receive
// queue applies backpressure by holding the HTTP request open until the
// pipeline drains or the request is cancelled.
//
// # Usage
//
//	recv := cehttp.NewReceiver(cehttp.ReceiverConfig{})
//	defer recv.Close()
//
//	mux := http.NewServeMux()
//	mux.Handle("/events", recv)
//	go http.ListenAndServe(":8080", mux)
//
//	p := gostream.To(
//	    gostream.From(recv, gostream.SourceConfig[cloudevents.Event]{}),
//	    cehttp.NewSender(cehttp.SenderConfig{TargetURL: "http://next-hop/events"}),
//	    gostream.SinkConfig{},
//	)
//	err := p.Run(ctx)
package cehttp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/cloudevents/sdk-go/v2/binding"
	ceproto "github.com/cloudevents/sdk-go/v2/protocol/http"
	"github.com/google/uuid"

	"github.com/fxsml/gostream"
)

// SenderConfig configures a Sender destination.
type SenderConfig struct {
	// TargetURL is the full URL events are posted to.
	TargetURL string

	// Client is the HTTP client to use (default: http.DefaultClient).
	Client *http.Client

	// Headers are additional HTTP headers to include in requests.
	Headers http.Header

	// StructuredMode uses structured content mode (metadata in the JSON
	// body). Default is binary mode (metadata in Ce-* headers).
	StructuredMode bool

	// Logger for operational logging. If nil, uses slog.Default().
	Logger *slog.Logger
}

func (c SenderConfig) applyDefaults() SenderConfig {
	if c.Client == nil {
		c.Client = http.DefaultClient
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Sender posts delivered events to a target URL. A non-2xx response is a
// delivery failure, which fails the pipeline.
type Sender struct {
	cfg SenderConfig
}

var _ gostream.Destination[cloudevents.Event] = (*Sender)(nil)

// NewSender creates a Sender destination for the configured target URL.
func NewSender(cfg SenderConfig) *Sender {
	return &Sender{cfg: cfg.applyDefaults()}
}

func (s *Sender) Deliver(ctx context.Context, e cloudevents.Event) error {
	reqCtx := ctx
	if s.cfg.StructuredMode {
		reqCtx = binding.WithForceStructured(ctx)
	}

	req, err := ceproto.NewHTTPRequestFromEvent(reqCtx, s.cfg.TargetURL, e)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	for k, v := range s.cfg.Headers {
		req.Header[k] = v
	}

	resp, err := s.cfg.Client.Do(req)
	if err != nil {
		return fmt.Errorf("sending event: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}
	return nil
}

// ReceiverConfig configures a Receiver origin.
type ReceiverConfig struct {
	// BufferSize is the receive queue length. Default is 256.
	BufferSize int

	// Logger for operational logging. If nil, uses slog.Default().
	Logger *slog.Logger
}

func (c ReceiverConfig) applyDefaults() ReceiverConfig {
	if c.BufferSize <= 0 {
		c.BufferSize = 256
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Receiver accepts CloudEvents posted over HTTP and produces them as an
// origin. It handles binary, structured and batched content modes. Close
// ends the stream: queued events still drain, then the origin reports end
// of stream and the pipeline completes.
type Receiver struct {
	cfg    ReceiverConfig
	events chan cloudevents.Event

	done      chan struct{}
	closeOnce sync.Once
}

var (
	_ gostream.Origin[cloudevents.Event] = (*Receiver)(nil)
	_ http.Handler                       = (*Receiver)(nil)
)

// NewReceiver creates a Receiver origin. Mount it on a mux and pass it to
// gostream.From.
func NewReceiver(cfg ReceiverConfig) *Receiver {
	cfg = cfg.applyDefaults()
	return &Receiver{
		cfg:    cfg,
		events: make(chan cloudevents.Event, cfg.BufferSize),
		done:   make(chan struct{}),
	}
}

// ServeHTTP implements http.Handler. It parses one event or a batch from
// the request and queues them in arrival order.
func (r *Receiver) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	select {
	case <-r.done:
		http.Error(w, "receiver closed", http.StatusServiceUnavailable)
		return
	default:
	}

	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var events []cloudevents.Event
	if ceproto.IsHTTPBatch(req.Header) {
		batch, err := ceproto.NewEventsFromHTTPRequest(req)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		events = batch
	} else {
		e, err := ceproto.NewEventFromHTTPRequest(req)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		events = []cloudevents.Event{*e}
	}

	for _, e := range events {
		select {
		case r.events <- e:
		case <-r.done:
			http.Error(w, "receiver closed", http.StatusServiceUnavailable)
			return
		case <-req.Context().Done():
			http.Error(w, "request cancelled", http.StatusRequestTimeout)
			return
		}
	}

	r.cfg.Logger.Debug("events accepted", "count", len(events))
	w.WriteHeader(http.StatusAccepted)
}

// Next produces the next queued event. After Close it drains the queue,
// then reports end of stream.
func (r *Receiver) Next(ctx context.Context) (cloudevents.Event, bool, error) {
	select {
	case e := <-r.events:
		return e, true, nil
	default:
	}

	select {
	case e := <-r.events:
		return e, true, nil
	case <-r.done:
		select {
		case e := <-r.events:
			return e, true, nil
		default:
			return cloudevents.Event{}, false, nil
		}
	case <-ctx.Done():
		return cloudevents.Event{}, false, ctx.Err()
	}
}

// Close stops accepting requests and ends the stream after queued events
// drain. It is safe to call multiple times.
func (r *Receiver) Close() error {
	r.closeOnce.Do(func() { close(r.done) })
	return nil
}

// NewEvent builds a CloudEvent with a fresh UUID, the current time and the
// given payload. Use it to wrap pipeline chunks for a Sender.
func NewEvent(eventType, source, contentType string, data any) (cloudevents.Event, error) {
	e := cloudevents.NewEvent()
	e.SetID(uuid.NewString())
	e.SetType(eventType)
	e.SetSource(source)
	e.SetTime(time.Now().UTC())
	if err := e.SetData(contentType, data); err != nil {
		return cloudevents.Event{}, fmt.Errorf("encoding event data: %w", err)
	}
	return e, nil
}
