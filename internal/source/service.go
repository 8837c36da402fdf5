package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/tonewirelabs/tonewire-core/internal/bus"
	"github.com/tonewirelabs/tonewire-core/internal/config"
	"github.com/tonewirelabs/tonewire-core/internal/protocol"
)

// Service bridges prompt requests on the bus to a Producer, publishing the
// resulting fragments in arrival order.
type Service struct {
	cfg      config.SourceConfig
	bus      *bus.Client
	producer Producer
	sub      *nats.Subscription
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	ready    bool
	logger   *slog.Logger
}

func NewService(parent context.Context, cfg config.SourceConfig, busClient *bus.Client, producer Producer, logger *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		cfg:      cfg,
		bus:      busClient,
		producer: producer,
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger.With(slog.String("component", "source-service")),
	}
}

// NewProducer builds the configured backend.
func NewProducer(cfg config.SourceConfig) (Producer, error) {
	switch cfg.Mode {
	case "mock":
		return NewMockProducer(), nil
	case "ollama":
		return NewOllamaProducer(cfg.Endpoint, cfg.Model, cfg.Temperature), nil
	case "exec":
		return NewExecProducer(cfg.Command)
	default:
		return nil, fmt.Errorf("unknown source mode %q", cfg.Mode)
	}
}

func (s *Service) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	sub, err := s.bus.Conn().Subscribe(protocol.SubjectSourcePrompt, s.handlePrompt)
	if err != nil {
		return fmt.Errorf("subscribe source prompts: %w", err)
	}
	s.sub = sub
	s.ready = true
	return nil
}

func (s *Service) Close() {
	s.cancel()
	if s.sub != nil {
		_ = s.sub.Drain()
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool {
	return !s.cfg.Enabled || s.ready
}

func (s *Service) handlePrompt(msg *nats.Msg) {
	var req protocol.PromptRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode prompt request", slogError(err))
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, 5*time.Minute)
		defer cancel()

		maxTokens := req.MaxTokens
		if maxTokens <= 0 {
			maxTokens = s.cfg.MaxTokens
		}

		sequence := 0
		finalSent := false
		start := time.Now()
		err := s.producer.Stream(ctx, Request{
			SessionID: req.SessionID,
			Prompt:    req.Prompt,
			System:    req.System,
			MaxTokens: maxTokens,
		}, func(frag Fragment) error {
			if frag.Final {
				finalSent = true
			}
			if err := s.publishFragment(req.SessionID, sequence, frag.Text, frag.Final); err != nil {
				return err
			}
			sequence++
			return nil
		})
		if err != nil {
			s.logger.Warn("producer stream failed", slogError(err), slog.String("session", req.SessionID))
		}
		// Producer termination, normal or not, is end-of-input for the
		// buffer: make sure a final marker goes out so the remainder drains.
		if !finalSent {
			if err := s.publishFragment(req.SessionID, sequence, "", true); err != nil {
				s.logger.Warn("failed to publish final marker", slogError(err))
			}
		}
		s.logger.Info("producer stream complete",
			slog.String("session", req.SessionID),
			slog.Int("fragments", sequence),
			slog.Duration("latency", time.Since(start)))
	}()
}

func (s *Service) publishFragment(sessionID string, sequence int, text string, final bool) error {
	frag := protocol.TokenFragment{
		SessionID: sessionID,
		Sequence:  sequence,
		Text:      text,
		Final:     final,
		Timestamp: time.Now().UTC(),
	}
	data, err := json.Marshal(frag)
	if err != nil {
		return err
	}
	return s.bus.Conn().Publish(protocol.SubjectTokenFragment, data)
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
