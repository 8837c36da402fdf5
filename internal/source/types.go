// Package source hosts the upstream text producers feeding the tone
// pipeline. A producer emits a lazy sequence of text fragments; the
// consumer callback is awaited for every fragment, so delivery is strictly
// ordered.
package source

import (
	"context"
	"time"
)

// Request describes one streaming generation.
type Request struct {
	SessionID string
	Prompt    string
	System    string
	MaxTokens int
}

// Fragment is one unit of streamed producer text. A fragment may be empty;
// Final marks normal termination of the sequence.
type Fragment struct {
	SessionID string
	Text      string
	Final     bool
	Latency   time.Duration
}

// Producer is a pluggable text backend. Stream returns once the sequence is
// exhausted or the consumer rejects a fragment; producer failures surface as
// the returned error and are not retried here.
type Producer interface {
	Stream(ctx context.Context, req Request, consumer func(Fragment) error) error
}
