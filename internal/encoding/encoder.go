package encoding

import "fmt"

// Scheme selects one of the fixed frequency-encoding strategies.
type Scheme string

const (
	SchemeDTMF       Scheme = "dtmf"
	SchemeFSK        Scheme = "fsk"
	SchemeUltrasonic Scheme = "ultrasonic"
)

// ToneEvent is one unit of playback: one or two simultaneous frequencies
// held for a fixed duration.
type ToneEvent struct {
	Frequencies []float64 `json:"frequencies"`
	DurationMS  int       `json:"duration_ms"`
}

// Frame is the ordered tone sequence produced by encoding one buffered text
// span. Text is kept for diagnostics only and is never reprocessed.
type Frame struct {
	Tones []ToneEvent `json:"tones"`
	Text  string      `json:"text"`
}

// Encoder maps text to an ordered tone sequence. Implementations are pure:
// encoding the same text twice yields identical frames.
type Encoder interface {
	Encode(text string) (Frame, error)
	Scheme() Scheme
	ToneDurationMS() int
}

// New constructs the encoder for a scheme. A zero toneDurationMS selects the
// variant default (100ms audible, 5ms ultrasonic).
func New(scheme Scheme, toneDurationMS int) (Encoder, error) {
	switch scheme {
	case SchemeDTMF:
		return NewDTMF(toneDurationMS)
	case SchemeFSK:
		return NewFSK(toneDurationMS)
	case SchemeUltrasonic:
		return NewUltrasonic(toneDurationMS)
	default:
		return nil, fmt.Errorf("unknown encoding scheme %q", scheme)
	}
}

// RangeError reports a rune that the selected scheme cannot represent.
type RangeError struct {
	Scheme Scheme
	Rune   rune
	Index  int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s: rune %q (U+%04X) at index %d exceeds encodable range", e.Scheme, e.Rune, e.Rune, e.Index)
}

func resolveDuration(requested, fallback int) (int, error) {
	if requested < 0 {
		return 0, fmt.Errorf("tone duration must be positive, got %dms", requested)
	}
	if requested == 0 {
		return fallback, nil
	}
	return requested, nil
}
