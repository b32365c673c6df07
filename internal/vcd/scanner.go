package vcd

import (
	"bufio"
	"errors"
	"io"
)

// DefaultBufferSize is the read buffer used when none is configured.
const DefaultBufferSize = 64 << 10

// Scanner splits a trace into whitespace separated tokens. It keeps only the
// current token in memory, so arbitrarily large traces can be scanned.
type Scanner struct {
	r *bufio.Reader
	// tok is reused between calls
	tok   []byte
	off   int64 // bytes consumed
	start int64 // offset of the current token
}

// NewScanner creates a scanner with a read buffer of size bytes.
func NewScanner(r io.Reader, size int) *Scanner {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &Scanner{
		r:   bufio.NewReaderSize(r, size),
		tok: make([]byte, 0, 64),
	}
}

// Next returns the next token, or io.EOF once the input is exhausted.
// The returned slice is only valid until the following call.
func (s *Scanner) Next() ([]byte, error) {
	for {
		b, err := s.r.ReadByte()
		if err != nil {
			return nil, err
		}
		s.off++
		if !isSpace(b) {
			s.start = s.off - 1
			s.tok = append(s.tok[:0], b)
			break
		}
	}
	for {
		b, err := s.r.ReadByte()
		if errors.Is(err, io.EOF) {
			return s.tok, nil
		}
		if err != nil {
			return nil, err
		}
		s.off++
		if isSpace(b) {
			return s.tok, nil
		}
		s.tok = append(s.tok, b)
	}
}

// Offset returns the byte offset of the token last returned by Next.
func (s *Scanner) Offset() int64 { return s.start }

// Consumed returns the number of bytes read so far, including the
// delimiter that terminated the last token.
func (s *Scanner) Consumed() int64 { return s.off }

// Words collects the tokens up to the closing `$end` of a directive.
func (s *Scanner) Words() ([]string, error) {
	var words []string
	for {
		tok, err := s.Next()
		if errors.Is(err, io.EOF) {
			return nil, malformed(s.off, "missing $end")
		}
		if err != nil {
			return nil, err
		}
		if string(tok) == "$end" {
			return words, nil
		}
		words = append(words, string(tok))
	}
}

// Skip discards tokens up to and including the next `$end`.
func (s *Scanner) Skip() error {
	for {
		tok, err := s.Next()
		if errors.Is(err, io.EOF) {
			return malformed(s.off, "missing $end")
		}
		if err != nil {
			return err
		}
		if string(tok) == "$end" {
			return nil
		}
	}
}

func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}
