package iteration

import "github.com/wehubfusion/foreach/pkg/message"

// Sequence is an ordered, finite, single-pass sequence of sub-messages.
// Sub-messages are created as they are consumed; a consumed sequence
// cannot be rewound.
type Sequence struct {
	size int
	pos  int
	build func(index int) *message.Message
}

// NewSequence creates a sequence of size elements. build creates the
// sub-message at a 0-based index and is called once per index, in order.
func NewSequence(size int, build func(index int) *message.Message) *Sequence {
	if size < 0 {
		size = 0
	}
	return &Sequence{size: size, build: build}
}

// FromMessages creates a sequence over already built messages.
func FromMessages(msgs []*message.Message) *Sequence {
	return NewSequence(len(msgs), func(i int) *message.Message { return msgs[i] })
}

// Empty returns a zero-length sequence.
func Empty() *Sequence {
	return &Sequence{}
}

// Next returns the next sub-message, or false when the sequence is exhausted.
func (s *Sequence) Next() (*message.Message, bool) {
	if s.pos >= s.size {
		return nil, false
	}
	msg := s.build(s.pos)
	s.pos++
	return msg, true
}

// Len returns the total number of elements.
func (s *Sequence) Len() int {
	return s.size
}

// Remaining returns the number of elements not yet consumed.
func (s *Sequence) Remaining() int {
	return s.size - s.pos
}
