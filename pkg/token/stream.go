package token

import (
	"iter"
	"slices"

	"gitlab.com/tozd/go/errors"
)

// Mode decides how the push order of a stream maps onto its read order.
type Mode int

const (
	// FIFO streams are read in push order.
	FIFO Mode = iota
	// LIFO streams are read in reverse push order. The document lexer emits
	// children before parents and the tree builder reads parents first.
	LIFO
)

var ErrFrozen = errors.New("token stream is frozen")

// Stream is an ordered, replayable token sequence. It is write-only until
// Freeze and read-only afterwards.
type Stream struct {
	source string
	mode   Mode
	pushed []Token
	tokens []Token
	frozen bool
	pos    int
}

// NewStream creates an empty stream over the given source text.
func NewStream(source string, mode Mode) *Stream {
	return &Stream{source: source, mode: mode}
}

// Push appends a token in emission order.
func (s *Stream) Push(t Token) error {
	if s.frozen {
		return ErrFrozen
	}
	s.pushed = append(s.pushed, t)
	return nil
}

// Freeze fixes the read order and rewinds. Calling it again is a no-op.
func (s *Stream) Freeze() {
	if s.frozen {
		return
	}
	s.tokens = slices.Clone(s.pushed)
	if s.mode == LIFO {
		slices.Reverse(s.tokens)
	}
	s.frozen = true
	s.pos = 0
}

func (s *Stream) Frozen() bool { return s.frozen }

func (s *Stream) Mode() Mode { return s.mode }

// Source returns the raw text the stream was produced from.
func (s *Stream) Source() string { return s.source }

func (s *Stream) Len() int { return len(s.pushed) }

// Rewind moves back to the first token in read order.
func (s *Stream) Rewind() { s.pos = 0 }

// Valid reports whether Current points at a token.
func (s *Stream) Valid() bool {
	return s.frozen && s.pos >= 0 && s.pos < len(s.tokens)
}

// Current returns the token at the read position, or nil.
func (s *Stream) Current() Token {
	if !s.Valid() {
		return nil
	}
	return s.tokens[s.pos]
}

// Next advances the read position and returns the new current token, or nil
// once the stream is exhausted.
func (s *Stream) Next() Token {
	if !s.frozen {
		return nil
	}
	if s.pos < len(s.tokens) {
		s.pos++
	}
	return s.Current()
}

// Peek returns the token n positions after the current one without moving.
func (s *Stream) Peek(n int) Token {
	i := s.pos + n
	if !s.frozen || i < 0 || i >= len(s.tokens) {
		return nil
	}
	return s.tokens[i]
}

// All iterates every token in read order, independent of the read position.
func (s *Stream) All() iter.Seq2[int, Token] {
	return func(yield func(int, Token) bool) {
		if !s.frozen {
			return
		}
		for i, t := range s.tokens {
			if !yield(i, t) {
				return
			}
		}
	}
}

// Tokens returns a copy of the tokens in read order.
func (s *Stream) Tokens() []Token {
	return slices.Clone(s.tokens)
}

// Emitted returns a copy of the tokens in push order.
func (s *Stream) Emitted() []Token {
	return slices.Clone(s.pushed)
}
