// Package synth renders tone events into normalized PCM samples.
package synth

import (
	"math"

	"github.com/tonewirelabs/tonewire-core/internal/encoding"
)

// DefaultSampleRate matches commodity audio hardware and leaves headroom
// for the 20 kHz ultrasonic ceiling.
const DefaultSampleRate = 44100

// fadeDurationMS is the linear fade-in/out window applied at tone boundaries
// to suppress click artifacts.
const fadeDurationMS = 10

// Render produces round(sampleRate*durationMS/1000) float32 samples for the
// given simultaneous frequencies. The summed sines are divided by the number
// of frequencies, keeping every sample within [-1, 1]. An empty frequency
// list yields silence of the same length.
//
// The fade envelope is skipped when the tone is shorter than twice the fade
// window; short ultrasonic symbols are emitted square-edged on purpose.
func Render(frequencies []float64, durationMS, sampleRate int) []float32 {
	n := int(math.Round(float64(sampleRate) * float64(durationMS) / 1000))
	if n < 0 {
		n = 0
	}
	samples := make([]float32, n)
	if len(frequencies) == 0 {
		return samples
	}

	scale := 1 / float64(len(frequencies))
	for i := 0; i < n; i++ {
		t := float64(i) / float64(sampleRate)
		var sum float64
		for _, f := range frequencies {
			sum += math.Sin(2 * math.Pi * f * t)
		}
		samples[i] = float32(sum * scale)
	}

	applyEnvelope(samples, sampleRate)
	return samples
}

// RenderTone renders a single encoded tone event.
func RenderTone(tone encoding.ToneEvent, sampleRate int) []float32 {
	return Render(tone.Frequencies, tone.DurationMS, sampleRate)
}

// RenderFrame renders every tone of a frame in order and concatenates the
// results into one contiguous buffer.
func RenderFrame(frame encoding.Frame, sampleRate int) []float32 {
	var total int
	for _, tone := range frame.Tones {
		total += int(math.Round(float64(sampleRate) * float64(tone.DurationMS) / 1000))
	}
	out := make([]float32, 0, total)
	for _, tone := range frame.Tones {
		out = append(out, RenderTone(tone, sampleRate)...)
	}
	return out
}

func applyEnvelope(samples []float32, sampleRate int) {
	fade := sampleRate * fadeDurationMS / 1000
	if fade <= 0 || len(samples) <= 2*fade {
		return
	}
	for i := 0; i < fade; i++ {
		gain := float32(i) / float32(fade)
		samples[i] *= gain
		samples[len(samples)-1-i] *= gain
	}
}
