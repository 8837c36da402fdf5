package benchmark

import (
	"strings"
	"testing"
)

func TestRunCoversAllCandidates(t *testing.T) {
	results, err := Run("hello")
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(results) != len(defaultCandidates) {
		t.Fatalf("expected %d results, got %d", len(defaultCandidates), len(results))
	}
	for _, r := range results {
		if r.CharCount != 5 {
			t.Errorf("%s: expected 5 chars, got %d", r.Method, r.CharCount)
		}
		if r.Tones == 0 {
			t.Errorf("%s: expected tones, got none", r.Method)
		}
		if r.PlaybackMS <= 0 {
			t.Errorf("%s: expected positive playback time, got %f", r.Method, r.PlaybackMS)
		}
	}
}

func TestPlaybackTimeMatchesToneMath(t *testing.T) {
	results, err := Run("hello")
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	for _, r := range results {
		switch r.Method {
		case "DTMF (100ms)":
			// Two tones per character at 100ms each.
			if r.Tones != 10 || r.PlaybackMS != 1000 {
				t.Errorf("DTMF: got %d tones / %.0fms", r.Tones, r.PlaybackMS)
			}
		case "FSK (50ms)":
			if r.Tones != 5 || r.PlaybackMS != 250 {
				t.Errorf("FSK 50ms: got %d tones / %.0fms", r.Tones, r.PlaybackMS)
			}
		case "Ultrasonic (5ms)":
			if r.Tones != 5 || r.PlaybackMS != 25 {
				t.Errorf("ultrasonic 5ms: got %d tones / %.0fms", r.Tones, r.PlaybackMS)
			}
			if r.BitsPerSec != 1600 {
				t.Errorf("ultrasonic 5ms: expected 1600 bps, got %f", r.BitsPerSec)
			}
		}
	}
}

func TestRunDefaultsText(t *testing.T) {
	results, err := Run("")
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	want := len([]rune(DefaultText))
	for _, r := range results {
		if r.CharCount != want {
			t.Fatalf("%s: expected %d chars, got %d", r.Method, want, r.CharCount)
		}
	}
}

func TestWriteTableSortsByThroughput(t *testing.T) {
	results := []Result{
		{Method: "slow", CharCount: 10, EncodeTimeMS: 1, PlaybackMS: 1000},
		{Method: "fast", CharCount: 10, EncodeTimeMS: 1, PlaybackMS: 10, BitsPerSec: 1600},
	}

	var sb strings.Builder
	WriteTable(&sb, results)
	out := sb.String()

	fastIdx := strings.Index(out, "fast")
	slowIdx := strings.Index(out, "slow")
	if fastIdx == -1 || slowIdx == -1 {
		t.Fatalf("table missing rows:\n%s", out)
	}
	if fastIdx > slowIdx {
		t.Errorf("expected fast before slow:\n%s", out)
	}
	if !strings.Contains(out, "1600") {
		t.Errorf("expected bits/sec column populated:\n%s", out)
	}
}
