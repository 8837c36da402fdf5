// Package benchmark compares the frequency-encoding schemes over a text:
// encode wall time, tone counts, and theoretical playback throughput.
package benchmark

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/tonewirelabs/tonewire-core/internal/encoding"
)

// Result captures one encoder's run over the benchmark text.
type Result struct {
	Method       string
	CharCount    int
	Tones        int
	EncodeTimeMS float64
	PlaybackMS   float64
	BitsPerSec   float64 // 0 when the scheme has no fixed symbol rate
}

// TotalMS is encode plus theoretical playback time.
func (r Result) TotalMS() float64 {
	return r.EncodeTimeMS + r.PlaybackMS
}

// CharsPerSec is end-to-end character throughput.
func (r Result) CharsPerSec() float64 {
	total := r.TotalMS()
	if total == 0 {
		return 0
	}
	return float64(r.CharCount) / (total / 1000)
}

type candidate struct {
	name       string
	scheme     encoding.Scheme
	durationMS int
}

// DefaultText is used when the caller supplies none.
const DefaultText = "The quick brown fox jumps over the lazy dog. " +
	"The quick brown fox jumps over the lazy dog. " +
	"The quick brown fox jumps over the lazy dog. "

var defaultCandidates = []candidate{
	{"DTMF (100ms)", encoding.SchemeDTMF, 100},
	{"FSK (100ms)", encoding.SchemeFSK, 100},
	{"FSK (50ms)", encoding.SchemeFSK, 50},
	{"FSK (10ms)", encoding.SchemeFSK, 10},
	{"Ultrasonic (5ms)", encoding.SchemeUltrasonic, 5},
	{"Ultrasonic (2ms)", encoding.SchemeUltrasonic, 2},
	{"Ultrasonic (1ms)", encoding.SchemeUltrasonic, 1},
}

// Run benchmarks every scheme/duration combination over text. Playback time
// is theoretical (sum of tone durations); nothing is rendered or played.
func Run(text string) ([]Result, error) {
	if text == "" {
		text = DefaultText
	}

	results := make([]Result, 0, len(defaultCandidates))
	for _, c := range defaultCandidates {
		enc, err := encoding.New(c.scheme, c.durationMS)
		if err != nil {
			return nil, fmt.Errorf("build %s encoder: %w", c.scheme, err)
		}

		start := time.Now()
		frame, err := enc.Encode(text)
		encodeMS := float64(time.Since(start).Microseconds()) / 1000
		if err != nil {
			return nil, fmt.Errorf("encode with %s: %w", c.name, err)
		}

		var playbackMS float64
		for _, tone := range frame.Tones {
			playbackMS += float64(tone.DurationMS)
		}

		result := Result{
			Method:       c.name,
			CharCount:    len([]rune(text)),
			Tones:        len(frame.Tones),
			EncodeTimeMS: encodeMS,
			PlaybackMS:   playbackMS,
		}
		if ultra, ok := enc.(*encoding.Ultrasonic); ok {
			result.BitsPerSec = ultra.BitsPerSecond()
		}
		results = append(results, result)
	}
	return results, nil
}

// WriteTable prints results sorted by throughput, fastest first.
func WriteTable(w io.Writer, results []Result) {
	sorted := make([]Result, len(results))
	copy(sorted, results)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].CharsPerSec() > sorted[j].CharsPerSec()
	})

	fmt.Fprintf(w, "%-20s %12s %14s %12s %12s %10s\n",
		"Method", "Encode (ms)", "Playback (ms)", "Total (ms)", "Chars/sec", "Bits/sec")
	for _, r := range sorted {
		bps := "-"
		if r.BitsPerSec > 0 {
			bps = fmt.Sprintf("%.0f", r.BitsPerSec)
		}
		fmt.Fprintf(w, "%-20s %12.2f %14.2f %12.2f %12.1f %10s\n",
			r.Method, r.EncodeTimeMS, r.PlaybackMS, r.TotalMS(), r.CharsPerSec(), bps)
	}
}
