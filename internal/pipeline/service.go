// Package pipeline turns streamed token fragments into encoded tone frames.
// It owns the per-session token buffers and the configured encoding scheme.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/tonewirelabs/tonewire-core/internal/buffer"
	"github.com/tonewirelabs/tonewire-core/internal/bus"
	"github.com/tonewirelabs/tonewire-core/internal/config"
	"github.com/tonewirelabs/tonewire-core/internal/encoding"
	"github.com/tonewirelabs/tonewire-core/internal/eventstore"
	"github.com/tonewirelabs/tonewire-core/internal/protocol"
)

type Service struct {
	cfg     config.EncoderConfig
	bus     *bus.Client
	store   *eventstore.Store
	encoder encoding.Encoder
	logger  *slog.Logger

	sub    *nats.Subscription
	ctx    context.Context
	cancel context.CancelFunc

	// sessions is only touched from the fragment handler, which NATS
	// dispatches sequentially per subscription; the mutex guards the
	// Close path.
	mu       sync.Mutex
	sessions map[string]*session

	meter          metric.Meter
	fragmentsTotal metric.Int64Counter
	flushesTotal   metric.Int64Counter
	tonesTotal     metric.Int64Counter
	encodeFailures metric.Int64Counter
	flushDuration  metric.Float64Histogram
}

type session struct {
	buf    *buffer.TokenBuffer
	frames int
}

func NewService(parent context.Context, cfg config.EncoderConfig, busClient *bus.Client, store *eventstore.Store, logger *slog.Logger) (*Service, error) {
	encoder, err := encoding.New(encoding.Scheme(cfg.Scheme), cfg.ToneDurationMS)
	if err != nil {
		return nil, fmt.Errorf("build encoder: %w", err)
	}
	if cfg.BufferThreshold < 1 {
		return nil, fmt.Errorf("buffer threshold must be at least 1, got %d", cfg.BufferThreshold)
	}

	ctx, cancel := context.WithCancel(parent)
	s := &Service{
		cfg:      cfg,
		bus:      busClient,
		store:    store,
		encoder:  encoder,
		logger:   logger.With(slog.String("component", "pipeline-service")),
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*session),
		meter:    otel.Meter("github.com/tonewirelabs/tonewire-core/pipeline"),
	}
	if err := s.initMetrics(); err != nil {
		s.logger.Warn("failed to initialize metrics", slogError(err))
	}
	return s, nil
}

func (s *Service) initMetrics() error {
	var err error
	if s.fragmentsTotal, err = s.meter.Int64Counter("tonewire.pipeline.fragments",
		metric.WithDescription("Token fragments consumed")); err != nil {
		return err
	}
	if s.flushesTotal, err = s.meter.Int64Counter("tonewire.pipeline.flushes",
		metric.WithDescription("Buffer flushes handed to the encoder")); err != nil {
		return err
	}
	if s.tonesTotal, err = s.meter.Int64Counter("tonewire.pipeline.tones",
		metric.WithDescription("Tone events emitted")); err != nil {
		return err
	}
	if s.encodeFailures, err = s.meter.Int64Counter("tonewire.pipeline.encode_failures",
		metric.WithDescription("Encode calls rejected")); err != nil {
		return err
	}
	if s.flushDuration, err = s.meter.Float64Histogram("tonewire.pipeline.flush_duration_ms",
		metric.WithDescription("Wall time of one flush, encode through publish")); err != nil {
		return err
	}
	return nil
}

func (s *Service) Start() error {
	sub, err := s.bus.Conn().Subscribe(protocol.SubjectTokenFragment, s.handleFragment)
	if err != nil {
		return fmt.Errorf("subscribe token fragments: %w", err)
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

func (s *Service) Healthy() bool { return s.sub != nil }

// Scheme reports the active encoding scheme.
func (s *Service) Scheme() encoding.Scheme { return s.encoder.Scheme() }

// handleFragment runs on the subscription dispatcher goroutine. NATS
// delivers messages for one subscription sequentially, which is exactly the
// single-writer contract the token buffer requires: a fragment's processing,
// including any flush it triggers, finishes before the next one starts.
func (s *Service) handleFragment(msg *nats.Msg) {
	var frag protocol.TokenFragment
	if err := json.Unmarshal(msg.Data, &frag); err != nil {
		s.logger.Warn("failed to decode token fragment", slogError(err))
		return
	}

	sess := s.ensureSession(frag.SessionID)
	attrs := metric.WithAttributes(attribute.String("scheme", string(s.encoder.Scheme())))
	s.fragmentsTotal.Add(s.ctx, 1, attrs)

	if err := sess.buf.Add(frag.Text); err != nil {
		s.recordEncodeError(frag.SessionID, err)
	}

	if frag.Final {
		err := sess.buf.Flush()
		if err != nil {
			s.recordEncodeError(frag.SessionID, err)
		}
		s.finishSession(frag.SessionID, sess, err)
	}
}

func (s *Service) ensureSession(sessionID string) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[sessionID]; ok {
		return sess
	}

	sess := &session{}
	buf, err := buffer.New(s.cfg.BufferThreshold, func(text string) error {
		return s.flushSession(sessionID, sess, text)
	})
	if err != nil {
		// Threshold and handler are validated in NewService.
		panic(err)
	}
	sess.buf = buf
	s.sessions[sessionID] = sess

	if err := s.store.AppendStream(s.ctx, sessionID, string(s.encoder.Scheme()), ""); err != nil {
		s.logger.Warn("failed to record stream", slogError(err))
	}
	return sess
}

// flushSession is the buffer's flush handler: encode the accumulated text
// and publish the frame. Any error leaves the buffer text intact upstream.
func (s *Service) flushSession(sessionID string, sess *session, text string) error {
	start := time.Now()
	attrs := metric.WithAttributes(attribute.String("scheme", string(s.encoder.Scheme())))

	frame, err := s.encoder.Encode(text)
	if err != nil {
		return err
	}

	msg := protocol.ToneFrame{
		SessionID: sessionID,
		Sequence:  sess.frames,
		Scheme:    s.encoder.Scheme(),
		Text:      frame.Text,
		Tones:     frame.Tones,
		Timestamp: time.Now().UTC(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := s.bus.Conn().Publish(protocol.SubjectToneFrame, data); err != nil {
		return fmt.Errorf("publish tone frame: %w", err)
	}
	sess.frames++

	payload, _ := json.Marshal(map[string]any{"sequence": msg.Sequence, "tones": len(frame.Tones), "chars": len([]rune(text))})
	if err := s.store.AppendEvent(s.ctx, eventstore.Event{
		StreamID: sessionID,
		Type:     eventstore.TypeFrameEncoded,
		Scheme:   string(s.encoder.Scheme()),
		Payload:  payload,
	}); err != nil {
		s.logger.Warn("failed to record frame event", slogError(err))
	}

	s.flushesTotal.Add(s.ctx, 1, attrs)
	s.tonesTotal.Add(s.ctx, int64(len(frame.Tones)), attrs)
	s.flushDuration.Record(s.ctx, float64(time.Since(start).Microseconds())/1000, attrs)

	s.logger.Debug("flushed buffer",
		slog.String("session", sessionID),
		slog.Int("sequence", msg.Sequence),
		slog.Int("tones", len(frame.Tones)))
	return nil
}

func (s *Service) recordEncodeError(sessionID string, err error) {
	s.encodeFailures.Add(s.ctx, 1, metric.WithAttributes(attribute.String("scheme", string(s.encoder.Scheme()))))
	s.logger.Warn("flush failed", slogError(err), slog.String("session", sessionID))

	var rangeErr *encoding.RangeError
	if errors.As(err, &rangeErr) {
		payload, _ := json.Marshal(map[string]any{"rune": string(rangeErr.Rune), "index": rangeErr.Index})
		if storeErr := s.store.AppendEvent(s.ctx, eventstore.Event{
			StreamID: sessionID,
			Type:     eventstore.TypeEncodeError,
			Scheme:   string(rangeErr.Scheme),
			Payload:  payload,
		}); storeErr != nil {
			s.logger.Warn("failed to record encode error", slogError(storeErr))
		}
	}
}

func (s *Service) finishSession(sessionID string, sess *session, flushErr error) {
	status := protocol.StreamStatus{
		SessionID: sessionID,
		Frames:    sess.frames,
		Completed: flushErr == nil,
		Timestamp: time.Now().UTC(),
	}
	if flushErr != nil {
		status.Error = flushErr.Error()
	}
	if data, err := json.Marshal(status); err == nil {
		if err := s.bus.Conn().Publish(protocol.SubjectToneDone, data); err != nil {
			s.logger.Warn("failed to publish stream status", slogError(err))
		}
	}

	payload, _ := json.Marshal(map[string]any{"frames": sess.frames, "completed": status.Completed})
	if err := s.store.AppendEvent(s.ctx, eventstore.Event{
		StreamID: sessionID,
		Type:     eventstore.TypeStreamDone,
		Scheme:   string(s.encoder.Scheme()),
		Payload:  payload,
	}); err != nil {
		s.logger.Warn("failed to record stream done", slogError(err))
	}

	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	s.logger.Info("stream finished",
		slog.String("session", sessionID),
		slog.Int("frames", sess.frames),
		slog.Bool("completed", status.Completed))
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
