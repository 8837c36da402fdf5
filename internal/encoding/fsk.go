package encoding

const (
	fskMinFrequency = 400.0
	fskMaxFrequency = 2000.0
)

// FSK maps each rune's code point, clamped to [0,255], linearly into the
// audible 400-2000 Hz band. One single-frequency tone per rune. Unlike DTMF,
// out-of-range runes are clamped, not rejected.
type FSK struct {
	toneDurationMS int
}

const defaultFSKDurationMS = 100

func NewFSK(toneDurationMS int) (*FSK, error) {
	d, err := resolveDuration(toneDurationMS, defaultFSKDurationMS)
	if err != nil {
		return nil, err
	}
	return &FSK{toneDurationMS: d}, nil
}

func (e *FSK) Scheme() Scheme      { return SchemeFSK }
func (e *FSK) ToneDurationMS() int { return e.toneDurationMS }

func (e *FSK) Encode(text string) (Frame, error) {
	runes := []rune(text)
	tones := make([]ToneEvent, 0, len(runes))
	for _, r := range runes {
		f := linearFrequency(r, fskMinFrequency, fskMaxFrequency)
		tones = append(tones, ToneEvent{Frequencies: []float64{f}, DurationMS: e.toneDurationMS})
	}
	return Frame{Tones: tones, Text: text}, nil
}

// linearFrequency interpolates a code point clamped to [0,255] into the
// closed interval [min,max]. 0 maps exactly to min and 255 exactly to max.
func linearFrequency(r rune, min, max float64) float64 {
	code := int(r)
	if code < 0 {
		code = 0
	}
	if code > 255 {
		code = 255
	}
	return min + float64(code)/255*(max-min)
}
