// Package buffer accumulates streamed text fragments and hands them to a
// flush handler once a fragment threshold is reached.
package buffer

import (
	"errors"
	"strings"
)

// FlushFunc receives the full accumulated text. It may block; the buffer
// waits for it to return so consecutive flushes never overlap.
type FlushFunc func(text string) error

// TokenBuffer counts fragments as delivered by the producer, not linguistic
// tokens. A fragment of any length, including empty, counts as one.
//
// Not safe for concurrent use; the caller serializes Add, typically by
// awaiting each fragment before requesting the next.
type TokenBuffer struct {
	threshold int
	onFlush   FlushFunc
	text      strings.Builder
	pending   int
}

func New(threshold int, onFlush FlushFunc) (*TokenBuffer, error) {
	if threshold < 1 {
		return nil, errors.New("buffer threshold must be at least 1")
	}
	if onFlush == nil {
		return nil, errors.New("flush handler must not be nil")
	}
	return &TokenBuffer{threshold: threshold, onFlush: onFlush}, nil
}

// Add appends the fragment verbatim and flushes synchronously the instant
// the pending count reaches the threshold.
func (b *TokenBuffer) Add(fragment string) error {
	b.text.WriteString(fragment)
	b.pending++
	if b.pending >= b.threshold {
		return b.Flush()
	}
	return nil
}

// Flush invokes the handler with the accumulated text, then resets. A no-op
// when nothing has accumulated, so the handler never sees empty text. State
// resets only on handler success: a failed flush keeps the text for retry.
func (b *TokenBuffer) Flush() error {
	if b.text.Len() == 0 {
		b.pending = 0
		return nil
	}
	if err := b.onFlush(b.text.String()); err != nil {
		return err
	}
	b.text.Reset()
	b.pending = 0
	return nil
}

// Pending reports how many fragments have accumulated since the last flush.
func (b *TokenBuffer) Pending() int { return b.pending }

// Len reports the accumulated text length in bytes.
func (b *TokenBuffer) Len() int { return b.text.Len() }
