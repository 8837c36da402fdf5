package protocol

import (
	"time"

	"github.com/tonewirelabs/tonewire-core/internal/encoding"
)

// PromptRequest asks the source service to start streaming text for a session.
type PromptRequest struct {
	SessionID string    `json:"session_id"`
	Prompt    string    `json:"prompt"`
	System    string    `json:"system,omitempty"`
	MaxTokens int       `json:"max_tokens,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// TokenFragment is one unit of producer text on its way to the token buffer.
// Final marks normal producer termination; the fragment text may be empty.
type TokenFragment struct {
	SessionID string    `json:"session_id"`
	Sequence  int       `json:"sequence"`
	Text      string    `json:"text"`
	Final     bool      `json:"final"`
	Timestamp time.Time `json:"timestamp"`
}

// ToneFrame carries one encoded flush: the ordered tone sequence plus the
// text it was derived from.
type ToneFrame struct {
	SessionID string               `json:"session_id"`
	Sequence  int                  `json:"sequence"`
	Scheme    encoding.Scheme      `json:"scheme"`
	Text      string               `json:"text"`
	Tones     []encoding.ToneEvent `json:"tones"`
	Timestamp time.Time            `json:"timestamp"`
}

// AudioChunk is rendered 16-bit little-endian PCM for one tone frame,
// published for remote playback nodes.
type AudioChunk struct {
	SessionID  string `json:"session_id"`
	Sequence   int    `json:"sequence"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	PCM        []byte `json:"pcm"`
	DurationMS int    `json:"duration_ms"`
	Final      bool   `json:"final"`
}

// StreamStatus reports end of a session's tone stream.
type StreamStatus struct {
	SessionID string    `json:"session_id"`
	Frames    int       `json:"frames"`
	Completed bool      `json:"completed"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectSourcePrompt  = "source.prompt"
	SubjectTokenFragment = "token.fragment"
	SubjectToneFrame     = "tone.frame"
	SubjectToneAudio     = "tone.audio"
	SubjectToneDone      = "tone.done"

	SubjectNodeAnnounce        = "ctrl.node.announce"
	SubjectNodeHeartbeatPrefix = "ctrl.node.heartbeat"
)
