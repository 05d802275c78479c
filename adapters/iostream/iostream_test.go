package iostream

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/fxsml/gostream"
)

func TestReader_Chunks(t *testing.T) {
	r := NewReader(strings.NewReader("abcdef"), ReaderConfig{ChunkSize: 4})
	ctx := context.Background()

	chunk, ok, err := r.Next(ctx)
	if err != nil || !ok {
		t.Fatalf("Next: ok=%v err=%v", ok, err)
	}
	if string(chunk) != "abcd" {
		t.Fatalf("expected abcd, got %q", chunk)
	}

	chunk, ok, err = r.Next(ctx)
	if err != nil || !ok {
		t.Fatalf("Next: ok=%v err=%v", ok, err)
	}
	if string(chunk) != "ef" {
		t.Fatalf("expected ef, got %q", chunk)
	}

	if _, ok, err := r.Next(ctx); ok || err != nil {
		t.Fatalf("expected end of stream, got ok=%v err=%v", ok, err)
	}
	// End of stream is stable.
	if _, ok, _ := r.Next(ctx); ok {
		t.Fatal("reader produced after end of stream")
	}
}

func TestReader_DataWithEOF(t *testing.T) {
	// iotest.DataErrReader reports io.EOF together with the final data.
	r := NewReader(iotest.DataErrReader(strings.NewReader("abc")), ReaderConfig{ChunkSize: 8})
	ctx := context.Background()

	chunk, ok, err := r.Next(ctx)
	if err != nil || !ok || string(chunk) != "abc" {
		t.Fatalf("expected final data chunk, got %q ok=%v err=%v", chunk, ok, err)
	}
	if _, ok, err := r.Next(ctx); ok || err != nil {
		t.Fatalf("expected end of stream, got ok=%v err=%v", ok, err)
	}
}

func TestReader_Error(t *testing.T) {
	boom := errors.New("disk gone")
	r := NewReader(iotest.ErrReader(boom), ReaderConfig{})

	if _, _, err := r.Next(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestReader_ChunkIsolation(t *testing.T) {
	r := NewReader(strings.NewReader("aabb"), ReaderConfig{ChunkSize: 2})
	ctx := context.Background()

	first, _, _ := r.Next(ctx)
	second, _, _ := r.Next(ctx)

	if string(first) != "aa" || string(second) != "bb" {
		t.Fatalf("chunks must not share backing memory: %q %q", first, second)
	}
}

func TestWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, WriterConfig{})
	ctx := context.Background()

	w.Deliver(ctx, []byte("hello "))
	w.Deliver(ctx, []byte("world"))

	if buf.String() != "hello world" {
		t.Fatalf("expected %q, got %q", "hello world", buf.String())
	}
}

func TestLineWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewLineWriter(&buf, LineWriterConfig{})
	ctx := context.Background()

	w.Deliver(ctx, "one")
	w.Deliver(ctx, "two")

	if buf.String() != "one\ntwo\n" {
		t.Fatalf("expected two delimited lines, got %q", buf.String())
	}
}

func TestLineWriter_CustomDelimiter(t *testing.T) {
	var buf bytes.Buffer
	w := NewLineWriter(&buf, LineWriterConfig{Delimiter: "\r\n"})

	w.Deliver(context.Background(), "dos")
	if buf.String() != "dos\r\n" {
		t.Fatalf("expected CRLF delimiter, got %q", buf.String())
	}
}

func TestPipeline_CopyLines(t *testing.T) {
	input := "alpha\nbeta\ngamma\n"
	var out bytes.Buffer

	p := gostream.To(
		gostream.Via(
			gostream.From(
				NewReader(strings.NewReader(input), ReaderConfig{ChunkSize: 4}),
				gostream.SourceConfig[[]byte]{Capacity: 8, Size: gostream.ByteLen},
			),
			gostream.NewLineSplitter(),
			gostream.TransformConfig[string]{Capacity: 2},
		),
		NewLineWriter(&out, LineWriterConfig{}),
		gostream.SinkConfig{},
	)

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.String() != input {
		t.Fatalf("expected %q, got %q", input, out.String())
	}
}
