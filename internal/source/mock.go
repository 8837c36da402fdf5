package source

import (
	"context"
	"strings"
	"time"
)

type mockProducer struct{}

func NewMockProducer() Producer { return &mockProducer{} }

// Stream emits the prompt's words back one at a time, which gives tests and
// local runs a deterministic fragment sequence without a model behind it.
func (m *mockProducer) Stream(ctx context.Context, req Request, consumer func(Fragment) error) error {
	words := strings.Fields(req.Prompt)
	if len(words) == 0 {
		words = []string{"silence"}
	}
	start := time.Now()
	for i, word := range words {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
		text := word
		if i < len(words)-1 {
			text += " "
		}
		if err := consumer(Fragment{
			SessionID: req.SessionID,
			Text:      text,
			Final:     i == len(words)-1,
			Latency:   time.Since(start),
		}); err != nil {
			return err
		}
	}
	return nil
}
