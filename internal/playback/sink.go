// Package playback renders encoded tone frames into PCM and hands them to
// an output sink in strict frame order.
package playback

import (
	"context"
	"fmt"
	"sync"

	"github.com/tonewirelabs/tonewire-core/internal/config"
)

// RenderedFrame is the synthesized audio for one tone frame.
type RenderedFrame struct {
	SessionID  string
	Sequence   int
	SampleRate int
	Samples    []float32
	DurationMS int
}

// Sink consumes rendered frames. Play blocks until the frame has been fully
// handed off; the service calls it sequentially, never concurrently.
type Sink interface {
	Play(ctx context.Context, frame RenderedFrame) error
}

// NewSink builds the configured sink.
func NewSink(cfg config.PlaybackConfig) (Sink, error) {
	switch cfg.Mode {
	case "wav":
		return NewWavSink(cfg.OutputDir)
	case "mock":
		return NewMockSink(), nil
	default:
		return nil, fmt.Errorf("unknown playback mode %q", cfg.Mode)
	}
}

// MockSink records rendered frames for tests and dry runs.
type MockSink struct {
	mu     sync.Mutex
	frames []RenderedFrame
}

func NewMockSink() *MockSink { return &MockSink{} }

func (m *MockSink) Play(_ context.Context, frame RenderedFrame) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = append(m.frames, frame)
	return nil
}

// Frames returns the frames played so far, in order.
func (m *MockSink) Frames() []RenderedFrame {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RenderedFrame, len(m.frames))
	copy(out, m.frames)
	return out
}
