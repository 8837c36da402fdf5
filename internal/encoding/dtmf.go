package encoding

// Standard DTMF keypad layout:
//
//	         1209 Hz   1336 Hz   1477 Hz   1633 Hz
//	697 Hz      1         2         3         A
//	770 Hz      4         5         6         B
//	852 Hz      7         8         9         C
//	941 Hz      *         0         #         D
//
// Hex digits 0-9 map to their keypad digit; a-d map to the row letters and
// e/f to * and #. Tables are indexed by hex digit value (0-15) so Encode
// never allocates maps at runtime.
var dtmfPairs = [16][2]float64{
	{941, 1336},  // 0
	{697, 1209},  // 1
	{697, 1336},  // 2
	{697, 1477},  // 3
	{770, 1209},  // 4
	{770, 1336},  // 5
	{770, 1477},  // 6
	{852, 1209},  // 7
	{852, 1336},  // 8
	{852, 1477},  // 9
	{697, 1633},  // a -> A
	{770, 1633},  // b -> B
	{852, 1633},  // c -> C
	{941, 1633},  // d -> D
	{941, 1209},  // e -> *
	{941, 1477},  // f -> #
}

const dtmfMaxRune = 0xFF

// DTMF encodes each rune as the two hex digits of its code point, high digit
// first, one dual-frequency tone per digit. Runes above 0xFF do not fit the
// two-digit representation and are rejected rather than truncated.
type DTMF struct {
	toneDurationMS int
}

const defaultDTMFDurationMS = 100

func NewDTMF(toneDurationMS int) (*DTMF, error) {
	d, err := resolveDuration(toneDurationMS, defaultDTMFDurationMS)
	if err != nil {
		return nil, err
	}
	return &DTMF{toneDurationMS: d}, nil
}

func (e *DTMF) Scheme() Scheme      { return SchemeDTMF }
func (e *DTMF) ToneDurationMS() int { return e.toneDurationMS }

func (e *DTMF) Encode(text string) (Frame, error) {
	runes := []rune(text)
	tones := make([]ToneEvent, 0, 2*len(runes))
	for i, r := range runes {
		if r < 0 || r > dtmfMaxRune {
			return Frame{}, &RangeError{Scheme: SchemeDTMF, Rune: r, Index: i}
		}
		high := dtmfPairs[(r>>4)&0xF]
		low := dtmfPairs[r&0xF]
		tones = append(tones,
			ToneEvent{Frequencies: []float64{high[0], high[1]}, DurationMS: e.toneDurationMS},
			ToneEvent{Frequencies: []float64{low[0], low[1]}, DurationMS: e.toneDurationMS},
		)
	}
	return Frame{Tones: tones, Text: text}, nil
}
