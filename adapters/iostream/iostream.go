// Package iostream adapts io.Reader and io.Writer endpoints to pipeline
// origins and destinations.
//
// A Reader origin turns any byte stream into bounded chunks, so a file,
// network connection or decompressor can feed a pipeline without loading
// the stream into memory. A Writer destination appends delivered chunks to
// any byte sink. Pair them with gostream.LineSplitter to process text
// streams line by line.
//
// # Usage
//
//	f, _ := os.Open("input.log")
//	defer f.Close()
//
//	p := gostream.To(
//	    gostream.Via(
//	        gostream.From(
//	            iostream.NewReader(f, iostream.ReaderConfig{}),
//	            gostream.SourceConfig[[]byte]{Size: gostream.ByteLen},
//	        ),
//	        gostream.NewLineSplitter(),
//	        gostream.TransformConfig[string]{},
//	    ),
//	    iostream.NewLineWriter(os.Stdout, iostream.LineWriterConfig{}),
//	    gostream.SinkConfig{},
//	)
//	err := p.Run(ctx)
package iostream

import (
	"context"
	"io"

	"github.com/fxsml/gostream"
)

// DefaultChunkSize is the read size used when ReaderConfig.ChunkSize is zero.
const DefaultChunkSize = 32 * 1024

// ReaderConfig configures a Reader origin.
type ReaderConfig struct {
	// ChunkSize is the maximum chunk length in bytes.
	// Default is DefaultChunkSize.
	ChunkSize int
}

func (c ReaderConfig) applyDefaults() ReaderConfig {
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	return c
}

// Reader is an origin that produces chunks read from an io.Reader. The
// stream ends when the reader reports io.EOF; any other read error fails
// the stream.
//
// Reads do not observe ctx cancellation themselves. The pipeline still
// stops between chunks, which is enough for readers that deliver data
// steadily; wrap the reader if reads can block unboundedly.
type Reader struct {
	r    io.Reader
	buf  []byte
	done bool
}

var _ gostream.Origin[[]byte] = (*Reader)(nil)

// NewReader creates a Reader origin over r.
func NewReader(r io.Reader, cfg ReaderConfig) *Reader {
	cfg = cfg.applyDefaults()
	return &Reader{r: r, buf: make([]byte, cfg.ChunkSize)}
}

// Next reads the next chunk. Each returned chunk is a fresh allocation and
// safe to retain.
func (r *Reader) Next(ctx context.Context) ([]byte, bool, error) {
	if r.done {
		return nil, false, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	for {
		n, err := r.r.Read(r.buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, r.buf[:n])
			if err == io.EOF {
				// Deliver the final data now, report end of stream on
				// the next call.
				r.done = true
				return chunk, true, nil
			}
			if err != nil {
				return nil, false, err
			}
			return chunk, true, nil
		}
		if err == io.EOF {
			r.done = true
			return nil, false, nil
		}
		if err != nil {
			return nil, false, err
		}
		// A zero-byte read with no error; try again.
	}
}

// WriterConfig configures a Writer destination.
type WriterConfig struct{}

// Writer is a destination that appends every delivered chunk to an
// io.Writer. Short writes surface as delivery failures.
type Writer struct {
	w io.Writer
}

var _ gostream.Destination[[]byte] = (*Writer)(nil)

// NewWriter creates a Writer destination over w.
func NewWriter(w io.Writer, _ WriterConfig) *Writer {
	return &Writer{w: w}
}

func (w *Writer) Deliver(_ context.Context, chunk []byte) error {
	_, err := w.w.Write(chunk)
	return err
}

// LineWriterConfig configures a LineWriter destination.
type LineWriterConfig struct {
	// Delimiter is appended after every delivered string.
	// Default is "\n".
	Delimiter string
}

func (c LineWriterConfig) applyDefaults() LineWriterConfig {
	if c.Delimiter == "" {
		c.Delimiter = "\n"
	}
	return c
}

// LineWriter is a destination that writes every delivered string followed
// by a delimiter, the inverse of gostream.LineSplitter.
type LineWriter struct {
	cfg LineWriterConfig
	w   io.Writer
}

var _ gostream.Destination[string] = (*LineWriter)(nil)

// NewLineWriter creates a LineWriter destination over w.
func NewLineWriter(w io.Writer, cfg LineWriterConfig) *LineWriter {
	return &LineWriter{cfg: cfg.applyDefaults(), w: w}
}

func (w *LineWriter) Deliver(_ context.Context, line string) error {
	if _, err := io.WriteString(w.w, line); err != nil {
		return err
	}
	_, err := io.WriteString(w.w, w.cfg.Delimiter)
	return err
}
