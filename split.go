package gostream

import (
	"bytes"
	"context"
)

// LineSplitter is a stateful transformer that reassembles byte chunks
// into complete lines. Chunk boundaries rarely align with line breaks, so
// the splitter carries the trailing partial line as residue between calls
// and emits it on Flush when the input ends. Line endings ("\n" or
// "\r\n") are stripped from the emitted lines.
type LineSplitter struct {
	residue []byte
}

// NewLineSplitter creates a LineSplitter with no carried residue.
func NewLineSplitter() *LineSplitter {
	return &LineSplitter{}
}

// Transform appends chunk to the carried residue and emits every complete
// line found, keeping the trailing partial line for the next call.
func (s *LineSplitter) Transform(_ context.Context, chunk []byte) ([]string, error) {
	s.residue = append(s.residue, chunk...)

	var lines []string
	for {
		i := bytes.IndexByte(s.residue, '\n')
		if i < 0 {
			return lines, nil
		}
		line := s.residue[:i]
		line = bytes.TrimSuffix(line, []byte{'\r'})
		lines = append(lines, string(line))
		s.residue = s.residue[i+1:]
	}
}

// Flush emits the carried partial line, if any. The residue is cleared so
// the splitter can be reused.
func (s *LineSplitter) Flush(context.Context) ([]string, error) {
	if len(s.residue) == 0 {
		return nil, nil
	}
	line := string(bytes.TrimSuffix(s.residue, []byte{'\r'}))
	s.residue = nil
	return []string{line}, nil
}
