package playback

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/tonewirelabs/tonewire-core/internal/bus"
	"github.com/tonewirelabs/tonewire-core/internal/config"
	"github.com/tonewirelabs/tonewire-core/internal/eventstore"
	"github.com/tonewirelabs/tonewire-core/internal/protocol"
	"github.com/tonewirelabs/tonewire-core/internal/synth"
)

type Service struct {
	cfg    config.PlaybackConfig
	bus    *bus.Client
	store  *eventstore.Store
	sink   Sink
	sub    *nats.Subscription
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger
}

func NewService(parent context.Context, cfg config.PlaybackConfig, busClient *bus.Client, store *eventstore.Store, sink Sink, logger *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		cfg:    cfg,
		bus:    busClient,
		store:  store,
		sink:   sink,
		ctx:    ctx,
		cancel: cancel,
		logger: logger.With(slog.String("component", "playback-service")),
	}
}

func (s *Service) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	sub, err := s.bus.Conn().Subscribe(protocol.SubjectToneFrame, s.handleFrame)
	if err != nil {
		return fmt.Errorf("subscribe tone frames: %w", err)
	}
	s.sub = sub
	return nil
}

func (s *Service) Close() {
	s.cancel()
	if s.sub != nil {
		_ = s.sub.Drain()
	}
}

func (s *Service) Healthy() bool { return !s.cfg.Enabled || s.sub != nil }

// handleFrame runs on the subscription dispatcher goroutine, so frames
// render and play strictly in publish order. A tone, once started, renders
// to completion; interruption is only possible between tone events.
func (s *Service) handleFrame(msg *nats.Msg) {
	var frame protocol.ToneFrame
	if err := json.Unmarshal(msg.Data, &frame); err != nil {
		s.logger.Warn("failed to decode tone frame", slogError(err))
		return
	}

	start := time.Now()
	var samples []float32
	var durationMS int
	for _, tone := range frame.Tones {
		samples = append(samples, synth.RenderTone(tone, s.cfg.SampleRate)...)
		durationMS += tone.DurationMS
	}

	rendered := RenderedFrame{
		SessionID:  frame.SessionID,
		Sequence:   frame.Sequence,
		SampleRate: s.cfg.SampleRate,
		Samples:    samples,
		DurationMS: durationMS,
	}
	if err := s.sink.Play(s.ctx, rendered); err != nil {
		s.logger.Warn("sink playback failed", slogError(err), slog.String("session", frame.SessionID))
		return
	}

	s.publishAudio(rendered)

	payload, _ := json.Marshal(map[string]any{"sequence": frame.Sequence, "duration_ms": durationMS, "samples": len(samples)})
	if err := s.store.AppendEvent(s.ctx, eventstore.Event{
		StreamID: frame.SessionID,
		Type:     eventstore.TypeFramePlayed,
		Scheme:   string(frame.Scheme),
		Payload:  payload,
	}); err != nil {
		s.logger.Warn("failed to record playback event", slogError(err))
	}

	s.logger.Debug("frame played",
		slog.String("session", frame.SessionID),
		slog.Int("sequence", frame.Sequence),
		slog.Int("duration_ms", durationMS),
		slog.Duration("render_time", time.Since(start)))
}

// publishAudio re-broadcasts the rendered PCM for remote playback nodes.
func (s *Service) publishAudio(frame RenderedFrame) {
	pcm := make([]byte, 2*len(frame.Samples))
	for i, v := range SamplesToPCM(frame.Samples) {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(v)))
	}
	chunk := protocol.AudioChunk{
		SessionID:  frame.SessionID,
		Sequence:   frame.Sequence,
		SampleRate: frame.SampleRate,
		Channels:   1,
		PCM:        pcm,
		DurationMS: frame.DurationMS,
		Final:      true,
	}
	data, err := json.Marshal(chunk)
	if err != nil {
		s.logger.Warn("failed to marshal audio chunk", slogError(err))
		return
	}
	if err := s.bus.Conn().Publish(protocol.SubjectToneAudio, data); err != nil {
		s.logger.Warn("failed to publish audio chunk", slogError(err))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
