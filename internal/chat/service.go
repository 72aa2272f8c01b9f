package chat

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ent0n29/chatrelay/internal/backend"
	"github.com/ent0n29/chatrelay/internal/logging"
	"github.com/ent0n29/chatrelay/internal/observability"
	"github.com/ent0n29/chatrelay/internal/policy"
	"github.com/ent0n29/chatrelay/internal/protocol"
	"github.com/ent0n29/chatrelay/internal/session"
	"github.com/ent0n29/chatrelay/internal/stream"
)

// Request outcomes, used as metric labels.
const (
	OutcomeDone           = "done"
	OutcomeBackendError   = "backend_error"
	OutcomeTransportError = "transport_error"
	OutcomeClientGone     = "client_gone"
	OutcomeInvalid        = "invalid"
)

// Service relays one chat request at a time per call: it records the user
// turn, opens the backend stream, normalizes it to output events and records
// the assistant reply.
type Service struct {
	store   session.Store
	backend backend.Backend
	metrics *observability.Metrics
	log     zerolog.Logger
}

func NewService(store session.Store, b backend.Backend, metrics *observability.Metrics, logger zerolog.Logger) *Service {
	return &Service{
		store:   store,
		backend: b,
		metrics: metrics,
		log:     logger.With().Str("component", "chat").Str("backend", b.Name()).Logger(),
	}
}

func (s *Service) BackendName() string { return s.backend.Name() }

// Chat runs a validated request to completion, writing events through emit.
// Validation errors are returned before anything is emitted or stored. Every
// other failure has already been reported to the client as an Error event
// (unless the client is gone) when Chat returns.
func (s *Service) Chat(ctx context.Context, req protocol.ChatRequest, emit stream.EmitFunc) (stream.Outcome, error) {
	if err := req.Validate(); err != nil {
		s.observeOutcome(OutcomeInvalid)
		return stream.Outcome{}, err
	}
	log := s.loggerFrom(ctx).With().Str("session_id", req.SessionID).Logger()

	history := s.store.AppendTurn(req.SessionID, session.Turn{Role: session.RoleUser, Content: req.Message})

	started := time.Now()
	body, err := s.backend.Open(ctx, history)
	if err != nil {
		code := backend.ErrorCode(err)
		if s.metrics != nil {
			s.metrics.BackendErrors.WithLabelValues(s.backend.Name(), code).Inc()
		}
		if errors.Is(err, context.Canceled) {
			s.observeOutcome(OutcomeClientGone)
			return stream.Outcome{}, err
		}
		var serr *backend.StatusError
		log.Error().
			Str("error", policy.RedactSecrets(err.Error())).
			Str("code", code).
			Bool("retryable", errors.As(err, &serr) && serr.Retryable()).
			Msg("backend request failed")
		s.observeOutcome(OutcomeBackendError)
		if emitErr := emit(protocol.Error(policy.RedactSecrets(clientMessage(err)))); emitErr != nil {
			return stream.Outcome{}, errors.Join(err, stream.ErrClientGone)
		}
		return stream.Outcome{}, err
	}
	defer body.Close()

	emit = redactErrors(emit)
	fin := newFinalizer(s.store, req.SessionID)
	n := &stream.Normalizer{
		Extractor: s.backend.NewExtractor(s.decodeErrorHandler(log)),
		Emit:      s.instrumentedEmit(emit, started),
		Finalize:  fin.Finalize,
	}
	out, err := n.Run(ctx, body)

	var terr *stream.TransportError
	switch {
	case err == nil:
		s.observeOutcome(OutcomeDone)
		log.Debug().Int("fragments", out.Fragments).Str("reason", string(out.Reason)).Msg("stream completed")
	case errors.As(err, &terr):
		s.observeOutcome(OutcomeTransportError)
		if s.metrics != nil {
			s.metrics.BackendErrors.WithLabelValues(s.backend.Name(), "stream_interrupted").Inc()
		}
		log.Error().Str("error", policy.RedactSecrets(err.Error())).Int("fragments", out.Fragments).Msg("backend stream interrupted; partial reply discarded")
	default:
		s.observeOutcome(OutcomeClientGone)
		log.Info().Err(err).Bool("finalized", fin.Finalized()).Msg("client went away")
	}
	return out, err
}

func (s *Service) loggerFrom(ctx context.Context) *zerolog.Logger {
	// The request logger carries request fields only; component and backend are added here.
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		child := l.With().Str("component", "chat").Str("backend", s.backend.Name()).Logger()
		return &child
	}
	return &s.log
}

func (s *Service) decodeErrorHandler(log zerolog.Logger) stream.DecodeErrorFunc {
	return func(frame []byte, err error) {
		if s.metrics != nil {
			s.metrics.FrameDecodeErrors.WithLabelValues(s.backend.Name()).Inc()
		}
		log.Warn().Err(err).Str("frame", logging.Truncate(policy.ForLog(string(frame)), 256)).Msg("skipping undecodable frame")
	}
}

func (s *Service) instrumentedEmit(emit stream.EmitFunc, started time.Time) stream.EmitFunc {
	if s.metrics == nil {
		return emit
	}
	var first sync.Once
	return func(ev protocol.Event) error {
		if ev.Kind == protocol.EventFragment {
			first.Do(func() { s.metrics.ObserveFirstFragmentLatency(time.Since(started)) })
			s.metrics.Fragments.WithLabelValues(s.backend.Name()).Inc()
		}
		return emit(ev)
	}
}

// redactErrors keeps credentials embedded in transport errors away from clients.
func redactErrors(emit stream.EmitFunc) stream.EmitFunc {
	return func(ev protocol.Event) error {
		if ev.Kind == protocol.EventError {
			ev.Text = policy.RedactSecrets(ev.Text)
		}
		return emit(ev)
	}
}

func (s *Service) observeOutcome(outcome string) {
	if s.metrics != nil {
		s.metrics.ChatRequests.WithLabelValues(outcome).Inc()
	}
}

func clientMessage(err error) string {
	var serr *backend.StatusError
	if errors.As(err, &serr) {
		return serr.Message()
	}
	if errors.Is(err, backend.ErrMissingCredentials) {
		return err.Error()
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return "backend closed the connection"
	}
	return "backend unavailable: " + err.Error()
}
