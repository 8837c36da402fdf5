package encoding

// The 15-20 kHz band sits at the edge of adult hearing but is still within
// reach of commodity 44.1 kHz audio hardware, so it trades audibility for
// throughput: 256 symbol frequencies about 19.6 Hz apart.
const (
	ultrasonicMinFrequency = 15000.0
	ultrasonicMaxFrequency = 20000.0
)

const defaultUltrasonicDurationMS = 5

// Ultrasonic applies the same linear code-point mapping as FSK over the
// 15-20 kHz band, with much shorter default tones.
type Ultrasonic struct {
	toneDurationMS int
}

func NewUltrasonic(toneDurationMS int) (*Ultrasonic, error) {
	d, err := resolveDuration(toneDurationMS, defaultUltrasonicDurationMS)
	if err != nil {
		return nil, err
	}
	return &Ultrasonic{toneDurationMS: d}, nil
}

func (e *Ultrasonic) Scheme() Scheme      { return SchemeUltrasonic }
func (e *Ultrasonic) ToneDurationMS() int { return e.toneDurationMS }

func (e *Ultrasonic) Encode(text string) (Frame, error) {
	runes := []rune(text)
	tones := make([]ToneEvent, 0, len(runes))
	for _, r := range runes {
		f := linearFrequency(r, ultrasonicMinFrequency, ultrasonicMaxFrequency)
		tones = append(tones, ToneEvent{Frequencies: []float64{f}, DurationMS: e.toneDurationMS})
	}
	return Frame{Tones: tones, Text: text}, nil
}

// BitsPerSecond reports the theoretical throughput of one full byte per
// tone. Reporting only; nothing branches on it.
func (e *Ultrasonic) BitsPerSecond() float64 {
	return 1000 / float64(e.toneDurationMS) * 8
}
