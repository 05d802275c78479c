// Package gostream is a bounded-buffer streaming pipeline core: a
// producer/buffer/consumer chain with signal-driven flow control, chunk
// transformation stages, and all-or-nothing error propagation.
//
// A pipeline composes a Source reading from an Origin, zero or more
// Transform stages, and a Sink writing to a Destination. Adjacent stages
// share nothing but a bounded Buffer: the producer pushes until the
// buffer reports it reached capacity, pauses, and resumes on the buffer's
// drain signal once the consumer catches up. Chunks reach the sink in
// production order, and buffer occupancy never exceeds capacity by more
// than the one chunk that tripped it over.
//
// The first stage failure, from any stage, fails the whole pipeline:
// every buffer is terminated with the attributed error and every other
// stage stops within one step. Run never reports success if any stage
// failed.
//
// # Usage
//
//	origin := gostream.FromValues("a", "b", "c")
//	upper := gostream.Map(strings.ToUpper)
//
//	collector := gostream.NewCollector[string]()
//	pipeline := gostream.To(
//		gostream.Via(
//			gostream.From(origin, gostream.SourceConfig[string]{Capacity: 1}),
//			upper,
//			gostream.TransformConfig[string]{},
//		),
//		collector,
//		gostream.SinkConfig{},
//	)
//
//	if err := pipeline.Run(ctx); err != nil {
//		// errors.As yields a *PipelineError naming the failing stage.
//	}
//
// Origins and destinations for io.Reader/io.Writer, NATS, Kafka,
// RabbitMQ, Redis Streams and CloudEvents HTTP live under adapters/.
package gostream
