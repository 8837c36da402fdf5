package playback

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WavSink writes each rendered frame as a 16-bit mono WAV file under the
// configured directory, named <session>-<sequence>.wav.
type WavSink struct {
	dir string
}

func NewWavSink(dir string) (*WavSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audio dir: %w", err)
	}
	return &WavSink{dir: dir}, nil
}

func (s *WavSink) Play(_ context.Context, frame RenderedFrame) error {
	name := fmt.Sprintf("%s-%04d.wav", frame.SessionID, frame.Sequence)
	file, err := os.Create(filepath.Join(s.dir, name))
	if err != nil {
		return fmt.Errorf("create wav file: %w", err)
	}
	defer file.Close()

	buffer := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: frame.SampleRate},
		Data:           SamplesToPCM(frame.Samples),
		SourceBitDepth: 16,
	}

	enc := wav.NewEncoder(file, frame.SampleRate, 16, 1, 1)
	if err := enc.Write(buffer); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}

// SamplesToPCM converts normalized float32 samples to 16-bit values.
func SamplesToPCM(samples []float32) []int {
	out := make([]int, len(samples))
	for i, s := range samples {
		if s > 1 {
			s = 1
		}
		if s < -1 {
			s = -1
		}
		out[i] = int(s * 32767)
	}
	return out
}
