package session

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"voice-session-orchestrator/internal/events"
	"voice-session-orchestrator/internal/models"
	"voice-session-orchestrator/internal/observability/logging"
	"voice-session-orchestrator/internal/observability/metrics"
	"voice-session-orchestrator/internal/schema"
	"voice-session-orchestrator/internal/service/control"
	"voice-session-orchestrator/internal/service/credential"
	"voice-session-orchestrator/internal/service/detect"
	"voice-session-orchestrator/internal/service/language"
	"voice-session-orchestrator/internal/service/media"
	"voice-session-orchestrator/internal/service/transport"
)

// Config carries the per-deployment session settings.
type Config struct {
	AgentID            string
	ClientVersion      string
	DefaultLanguage    string
	Instructions       string
	DetectionEnabled   bool
	DetectionThreshold float64
	CredentialTimeout  time.Duration
	ConnectTimeout     time.Duration
	Constraints        media.Constraints
}

// Orchestrator drives the session lifecycle. At most one session is active at
// a time; Start while one is in flight returns ErrSessionActive.
type Orchestrator struct {
	cfg         Config
	guard       *media.Guard
	credentials CredentialSource
	negotiator  Negotiator
	detector    detect.Adapter
	recorder    Recorder
	notifier    Notifier
	publisher   *events.Publisher
	validator   *schema.Validator
	metrics     *metrics.Metrics
	logger      zerolog.Logger

	mu         sync.Mutex
	current    *Session
	generation uint64
}

// NewOrchestrator wires the session pipeline. A nil notifier is replaced with
// a no-op one.
func NewOrchestrator(cfg Config, guard *media.Guard, creds CredentialSource, neg Negotiator, detector detect.Adapter, recorder Recorder, publisher *events.Publisher, notifier Notifier) *Orchestrator {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Orchestrator{
		cfg:         cfg,
		guard:       guard,
		credentials: creds,
		negotiator:  neg,
		detector:    detector,
		recorder:    recorder,
		notifier:    notifier,
		publisher:   publisher,
		validator:   schema.New(),
		metrics:     metrics.DefaultMetrics,
		logger:      logging.WithComponent("session"),
	}
}

// Snapshot is the externally visible session status.
type Snapshot struct {
	SessionID string    `json:"sessionId,omitempty"`
	State     string    `json:"state"`
	StartedAt time.Time `json:"startedAt,omitempty"`
	Language  string    `json:"language,omitempty"`
}

// Snapshot reports the current (or most recent) session status.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	s := o.current
	o.mu.Unlock()

	if s == nil {
		return Snapshot{State: StateIdle.String()}
	}
	return Snapshot{
		SessionID: s.ID,
		State:     s.State().String(),
		StartedAt: s.StartedAt,
		Language:  s.Language(),
	}
}

// Start runs the setup pipeline to an active call: microphone, credential,
// negotiation, channel open, initial configuration. On any failure every
// resource acquired so far is released before Start returns. The returned ID
// identifies the session even when setup failed.
func (o *Orchestrator) Start(ctx context.Context) (string, error) {
	o.mu.Lock()
	if o.current != nil && !o.current.lifecycle.IsTerminal() {
		o.mu.Unlock()
		return "", ErrSessionActive
	}
	o.generation++
	gen := o.generation
	s := newSession()
	o.current = s
	o.mu.Unlock()

	o.metrics.RecordSessionStart()
	o.recorder.Reset()
	startLog := logging.WithSession(s.ID)
	startLog.Info().Msg("session starting")

	if err := o.run(ctx, s, gen); err != nil {
		o.finish(s, StateFailed, failureReason(err), err)
		return s.ID, err
	}
	return s.ID, nil
}

// Stop tears down whatever exists right now. Unconditional and idempotent:
// stopping with no session in flight is a no-op.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	s := o.current
	o.mu.Unlock()

	if s == nil || s.lifecycle.IsTerminal() {
		return
	}
	o.finish(s, StateEnded, "stopped", nil)
}

func (o *Orchestrator) run(ctx context.Context, s *Session, gen uint64) error {
	log := logging.WithSession(s.ID)

	o.advance(s, StateAcquiringMedia)
	stream, err := o.guard.Acquire(ctx, o.cfg.Constraints)
	if err != nil {
		return fmt.Errorf("acquire microphone: %w", err)
	}
	s.stream = stream

	o.advance(s, StateFetchingCredential)
	cctx, cancel := context.WithTimeout(ctx, o.cfg.CredentialTimeout)
	cred, err := o.credentials.RequestCredential(cctx, s.ID, o.cfg.DefaultLanguage)
	cancel()
	if err != nil {
		return fmt.Errorf("fetch credential: %w", err)
	}
	s.cred = cred

	o.advance(s, StateNegotiating)
	ch := control.New()
	ch.SetHandler(func(msg control.Message) { o.handleControl(s, gen, msg) })
	s.channel = ch

	handle, err := o.negotiator.Negotiate(ctx, s.ID, stream, cred, ch)
	if err != nil {
		return err
	}
	s.handle = handle

	octx, cancel := context.WithTimeout(ctx, o.cfg.ConnectTimeout)
	err = ch.Open(octx)
	cancel()
	if err != nil {
		return fmt.Errorf("control channel never opened: %w", transport.ErrNegotiationFailed)
	}

	// The full session configuration must be the first outbound message.
	initial := control.NewSessionUpdate(o.sessionConfig(cred, o.cfg.DefaultLanguage))
	if err := ch.Send(initial); err != nil {
		return fmt.Errorf("send initial configuration: %w", err)
	}
	if starter, ok := s.handle.(interface{ StartCapture() }); ok {
		starter.StartCapture()
	}

	if o.detectionActive(cred) {
		s.engine = language.NewEngine(s.ID, o.detector, o.cfg.DetectionThreshold, o.cfg.DefaultLanguage, func(lang string) error {
			return ch.Send(control.NewSessionUpdate(o.sessionConfig(cred, lang)))
		})
	} else {
		s.engine = language.NewEngine(s.ID, o.detector, o.cfg.DetectionThreshold, o.cfg.DefaultLanguage, nil)
	}

	s.StartedAt = time.Now()
	o.advance(s, StateActive)
	o.publishSessionEvent(s, "session.started", "")
	log.Info().Str("language", o.cfg.DefaultLanguage).Msg("session active")

	go o.watch(s, gen)
	return nil
}

func (o *Orchestrator) sessionConfig(cred *credential.Credential, lang string) control.SessionConfig {
	return control.SessionConfig{
		Voice:        cred.Agent.Voice,
		Language:     lang,
		Instructions: o.cfg.Instructions,
		TurnDetection: &control.TurnDetection{
			Type: "server_vad",
		},
	}
}

func (o *Orchestrator) detectionActive(cred *credential.Credential) bool {
	return o.cfg.DetectionEnabled && cred.Agent.AutoDetectLanguage && o.detector != nil
}

// watch consumes transport states and async errors until the session ends.
func (o *Orchestrator) watch(s *Session, gen uint64) {
	for {
		select {
		case <-s.done:
			return
		case st, ok := <-s.handle.States():
			if !ok {
				return
			}
			switch st {
			case transport.StateFailed:
				o.finish(s, StateFailed, "transport", fmt.Errorf("connection lost: %w", transport.ErrTransportFailed))
				return
			case transport.StateClosed:
				o.finish(s, StateEnded, "remote_closed", nil)
				return
			}
		case err, ok := <-s.handle.Errors():
			if !ok {
				return
			}
			o.finish(s, StateFailed, failureReason(err), err)
			return
		}
	}
}

// handleControl processes one inbound control message. Messages for a
// superseded session are dropped.
func (o *Orchestrator) handleControl(s *Session, gen uint64, msg control.Message) {
	if !o.isCurrent(gen) || s.lifecycle.IsTerminal() {
		return
	}
	log := logging.WithSession(s.ID)

	if err := o.validator.Validate(msg); err != nil {
		log.Debug().Err(err).Str("type", msg.Type).Msg("dropping malformed message")
		return
	}

	switch msg.Type {
	case control.TypeSessionCreated:
		log.Debug().Msg("remote session created")

	case control.TypeConversationItemCreated:
		if text, ok := msg.UserText(); ok {
			o.recordTranscript(s, control.RoleUser, text)
			if s.engine != nil {
				s.engine.Submit(context.Background(), text)
			}
			return
		}
		if text, ok := msg.AssistantText(); ok {
			o.recordTranscript(s, control.RoleAssistant, text)
		}

	case control.TypeResponseAudioDelta:
		player, ok := s.handle.(AudioPlayer)
		if !ok {
			return
		}
		data, err := base64.StdEncoding.DecodeString(msg.Delta)
		if err != nil {
			log.Debug().Err(err).Msg("dropping undecodable audio delta")
			return
		}
		if err := player.WriteAudio(data); err != nil {
			log.Warn().Err(err).Msg("audio delta playback failed")
		}

	case control.TypeError:
		if msg.Error != nil {
			log.Warn().Str("code", msg.Error.Code).Str("message", msg.Error.Message).Msg("remote error notification")
		}
	}
}

func (o *Orchestrator) recordTranscript(s *Session, role, text string) {
	f := models.TranscriptFragment{
		EventType: "transcript",
		SessionID: s.ID,
		Timestamp: time.Now().UnixMilli(),
		Role:      role,
		Text:      text,
		Language:  s.Language(),
	}
	o.recorder.Append(f)
	o.notifier.OnTranscript(f)
	if o.publisher != nil {
		if err := o.publisher.PublishTranscript(context.Background(), s.ID, f); err != nil {
			o.logger.Warn().Err(err).Msg("transcript publish failed")
		}
	}
}

// finish is the single teardown path. It runs at most once per session and
// releases resources in reverse acquisition order.
func (o *Orchestrator) finish(s *Session, final State, reason string, cause error) {
	s.closeOnce.Do(func() {
		o.advance(s, StateStopping)
		close(s.done)

		if s.channel != nil {
			s.channel.Close()
		}
		if s.handle != nil {
			s.handle.Teardown()
		}
		if s.stream != nil {
			o.guard.Release(s.stream)
		}

		// Duration counts connected time only; sessions that never reached
		// Active report zero.
		var duration time.Duration
		if !s.StartedAt.IsZero() {
			duration = time.Since(s.StartedAt)
		}
		o.flushRecord(s, duration)
		o.publishSessionEvent(s, "session.ended", reason)
		o.metrics.RecordSessionEnd(final == StateEnded, reason, duration.Seconds())

		o.advance(s, final)
		log := logging.WithSession(s.ID)
		if cause != nil {
			s.errOnce.Do(func() {
				o.notifier.OnError(s.ID, cause)
			})
			log.Error().Err(cause).Str("reason", reason).Msg("session failed")
		} else {
			log.Info().Str("reason", reason).Dur("duration", duration).Msg("session ended")
		}
	})
}

func (o *Orchestrator) flushRecord(s *Session, duration time.Duration) {
	record := models.ConversationRecord{
		SessionID:       s.ID,
		AgentID:         o.cfg.AgentID,
		DurationSeconds: duration.Seconds(),
		FinalLanguage:   o.cfg.DefaultLanguage,
		Metadata: models.ConversationMetadata{
			ClientVersion:    o.cfg.ClientVersion,
			DetectionEnabled: o.cfg.DetectionEnabled,
		},
	}
	if s.engine != nil {
		record.FinalLanguage = s.engine.Current()
		record.DetectedLanguage = s.engine.Detected()
	}
	if s.cred != nil {
		record.Metadata.SupportedLanguages = s.cred.Agent.SupportedLanguages
		record.Metadata.PriorityLanguages = s.cred.Agent.PriorityLanguages
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	o.recorder.Flush(ctx, record)
}

func (o *Orchestrator) publishSessionEvent(s *Session, eventType, reason string) {
	if o.publisher == nil {
		return
	}
	event := models.SessionEvent{
		EventType: eventType,
		SessionID: s.ID,
		Timestamp: time.Now().UnixMilli(),
		State:     s.State().String(),
		Reason:    reason,
	}
	if err := o.publisher.PublishSession(context.Background(), s.ID, event); err != nil {
		o.logger.Warn().Err(err).Str("eventType", eventType).Msg("session event publish failed")
	}
}

func (o *Orchestrator) advance(s *Session, next State) {
	if err := s.lifecycle.Advance(next); err != nil {
		o.logger.Debug().Err(err).Msg("transition skipped")
		return
	}
	o.notifier.OnStateChange(s.ID, next)
}

func (o *Orchestrator) isCurrent(gen uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return gen == o.generation
}

// failureReason maps a pipeline error to a stable metrics label.
func failureReason(err error) string {
	switch {
	case errors.Is(err, media.ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, media.ErrDeviceUnavailable):
		return "device_unavailable"
	case errors.Is(err, credential.ErrRequestFailed), errors.Is(err, credential.ErrMissingSecret):
		return "credential"
	case errors.Is(err, transport.ErrNegotiationFailed):
		return "negotiation"
	case errors.Is(err, transport.ErrTransportFailed):
		return "transport"
	case errors.Is(err, transport.ErrPlaybackFailed):
		return "playback"
	case errors.Is(err, control.ErrChannelNotOpen):
		return "channel"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "internal"
	}
}
