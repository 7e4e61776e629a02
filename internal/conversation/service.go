// ABOUTME: Message pipeline that persists the inbound turn, dispatches to an agent, and persists the reply
// ABOUTME: Record first, then act: storage and agent failures degrade the reply but never fail the request

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/2389/agentdesk/internal/agent"
	"github.com/2389/agentdesk/internal/dedupe"
	"github.com/2389/agentdesk/internal/history"
	"github.com/2389/agentdesk/internal/store"
)

// Fixed replies.
const (
	FallbackReply         = "Sorry, failed to generate the answer to your message."
	ImagePlaceholderReply = "Image received. Image processing will be added in future versions."
)

// DefaultInvokeTimeout bounds one agent invocation when none is configured.
const DefaultInvokeTimeout = 60 * time.Second

// persistTimeout bounds each history write. Writes run detached from the
// request context so a disconnecting client does not lose the exchange.
const persistTimeout = 5 * time.Second

// Pipeline outcomes used in logs and metrics.
const (
	OutcomeOK       = "ok"
	OutcomeFallback = "fallback"
	OutcomeImage    = "image"
	OutcomeInvalid  = "invalid"
	OutcomeReplayed = "replayed"
)

// unresolvedType labels invocations that never reached an agent.
const unresolvedType = "unresolved"

// HistoryStore is what the pipeline needs from the history store.
type HistoryStore interface {
	HistoryReader
	Append(ctx context.Context, p history.AppendParams) (*store.Message, error)
}

// Resolver turns an agent id into a live handle.
type Resolver interface {
	Resolve(ctx context.Context, agentID string) (*agent.Bound, error)
}

// Invoker runs a handle off the calling goroutine under a timeout.
type Invoker interface {
	Invoke(ctx context.Context, h agent.Handle, prompt string, timeout time.Duration) (string, error)
}

// Recorder receives pipeline measurements.
type Recorder interface {
	PipelineRequest(kind, outcome string)
	AgentInvocation(agentType, outcome string, elapsed time.Duration)
	PersistenceFailure(stage string)
}

type nopRecorder struct{}

func (nopRecorder) PipelineRequest(string, string)                {}
func (nopRecorder) AgentInvocation(string, string, time.Duration) {}
func (nopRecorder) PersistenceFailure(string)                     {}

// Options tune the pipeline. The zero value is usable.
type Options struct {
	InvokeTimeout time.Duration
	HistoryWindow int
	Recorder      Recorder
	// Replay, when set, answers exact repeats from earlier responses.
	Replay *dedupe.Cache[Response]
	// Events, when set, receives every persisted message.
	Events *Broadcaster
	Now    func() time.Time
}

// Request is an incoming message as received from a client.
type Request struct {
	MessageType store.MessageKind `json:"message_type"`
	Text        string            `json:"text,omitempty"`
	Image       string            `json:"image,omitempty"`
	SentAt      time.Time         `json:"sent_at"`
	AgentID     string            `json:"agent_id,omitempty"`
	UserID      string            `json:"user_id"`
}

// Response echoes the normalized request with the agent's reply.
type Response struct {
	Request
	AIResponse string `json:"ai_response,omitempty"`
}

// ValidationError reports a malformed request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Service is the message pipeline.
type Service struct {
	history   HistoryStore
	assembler *Assembler
	resolver  Resolver
	invoker   Invoker
	timeout   time.Duration
	recorder  Recorder
	replay    *dedupe.Cache[Response]
	events    *Broadcaster
	now       func() time.Time
	logger    *slog.Logger
}

// New creates the pipeline.
func New(hist HistoryStore, resolver Resolver, invoker Invoker, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.InvokeTimeout <= 0 {
		opts.InvokeTimeout = DefaultInvokeTimeout
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		history:   hist,
		assembler: NewAssembler(hist, opts.HistoryWindow),
		resolver:  resolver,
		invoker:   invoker,
		timeout:   opts.InvokeTimeout,
		recorder:  opts.Recorder,
		replay:    opts.Replay,
		events:    opts.Events,
		now:       opts.Now,
		logger:    logger.With("component", "conversation"),
	}
}

// HandleIncomingMessage runs one request through the pipeline. The only
// error it returns is *ValidationError; every later failure is logged and
// reflected in the reply instead.
func (s *Service) HandleIncomingMessage(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, &ValidationError{Field: "request", Reason: "required"}
	}
	in := *req
	clientTimestamp := !in.SentAt.IsZero()
	if err := in.normalize(s.now); err != nil {
		s.recorder.PipelineRequest(string(in.MessageType), OutcomeInvalid)
		return nil, err
	}
	kind := string(in.MessageType)

	var replayKey string
	if s.replay != nil && clientTimestamp {
		replayKey = in.replayKey()
		if prev, ok := s.replay.Get(replayKey); ok {
			s.logger.Info("replaying earlier response", "user_id", in.UserID, "agent_id", in.AgentID)
			s.recorder.PipelineRequest(kind, OutcomeReplayed)
			return &prev, nil
		}
	}

	log := s.logger.With("user_id", in.UserID, "agent_id", in.AgentID, "kind", kind)

	inbound := s.persist(ctx, log, "inbound", history.AppendParams{
		UserID:  in.UserID,
		AgentID: in.AgentID,
		Role:    store.RoleUser,
		Kind:    in.MessageType,
		Text:    in.Text,
		Image:   in.Image,
		SentAt:  in.SentAt,
	})

	var reply, outcome string
	switch in.MessageType {
	case store.KindText:
		var exclude []string
		if inbound != nil {
			exclude = append(exclude, inbound.ID)
		}
		reply, outcome = s.respond(ctx, log, &in, exclude)
	case store.KindImage:
		reply, outcome = ImagePlaceholderReply, OutcomeImage
	}

	// The reply must not sort before the message it answers.
	replyAt := s.now().UTC()
	if replyAt.Before(in.SentAt) {
		replyAt = in.SentAt
	}
	s.persist(ctx, log, "outbound", history.AppendParams{
		UserID:  in.UserID,
		AgentID: in.AgentID,
		Role:    store.RoleAgent,
		Kind:    store.KindText,
		Text:    reply,
		SentAt:  replyAt,
	})

	s.recorder.PipelineRequest(kind, outcome)
	log.Info("message handled", "outcome", outcome)

	resp := &Response{Request: in, AIResponse: reply}
	if replayKey != "" {
		s.replay.Put(replayKey, *resp)
	}
	return resp, nil
}

// respond builds the transcript and asks the agent for a reply, falling
// back to FallbackReply on any failure.
func (s *Service) respond(ctx context.Context, log *slog.Logger, in *Request, exclude []string) (string, string) {
	prompt, err := s.assembler.BuildPrompt(ctx, in.UserID, in.AgentID, in.Text, exclude...)
	if err != nil {
		log.Error("building context failed", "error", err)
		return FallbackReply, OutcomeFallback
	}

	bound, err := s.resolver.Resolve(ctx, in.AgentID)
	if err != nil {
		if agent.IsResolutionError(err) {
			log.Warn("agent not resolvable", "error", err)
		} else {
			log.Error("agent construction failed", "error", err)
		}
		s.recorder.AgentInvocation(unresolvedType, OutcomeFallback, 0)
		return FallbackReply, OutcomeFallback
	}

	start := s.now()
	reply, err := s.invoker.Invoke(ctx, bound, prompt, s.timeout)
	elapsed := s.now().Sub(start)

	switch {
	case err != nil:
		var failure *agent.Failure
		if errors.As(err, &failure) && errors.Is(err, agent.ErrTimeout) {
			log.Warn("agent timed out", "agent_type", bound.Spec.Type, "timeout", s.timeout)
		} else {
			log.Error("agent invocation failed", "agent_type", bound.Spec.Type, "error", err)
		}
	case strings.TrimSpace(reply) == "":
		log.Warn("agent returned an empty reply", "agent_type", bound.Spec.Type)
		err = errors.New("empty reply")
	}
	if err != nil {
		s.recorder.AgentInvocation(bound.Spec.Type, OutcomeFallback, elapsed)
		return FallbackReply, OutcomeFallback
	}

	s.recorder.AgentInvocation(bound.Spec.Type, OutcomeOK, elapsed)
	log.Debug("agent replied", "agent_type", bound.Spec.Type, "elapsed", elapsed)
	return reply, OutcomeOK
}

// persist appends one message and publishes it. Failures are logged and
// counted, and nil is returned.
func (s *Service) persist(ctx context.Context, log *slog.Logger, stage string, p history.AppendParams) *store.Message {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	msg, err := s.history.Append(writeCtx, p)
	if err != nil {
		s.recordFailure(log, stage, err)
		return nil
	}
	if s.events != nil {
		s.events.Publish(msg)
	}
	return msg
}

func (s *Service) recordFailure(log *slog.Logger, stage string, err error) {
	s.recorder.PersistenceFailure(stage)
	log.Error("persisting message failed", "stage", stage, "error", err)
}

// normalize validates the request in place: kinds are upper-cased,
// identifiers trimmed, and a missing sent_at becomes now.
func (r *Request) normalize(now func() time.Time) error {
	r.UserID = strings.TrimSpace(r.UserID)
	r.AgentID = strings.TrimSpace(r.AgentID)
	r.MessageType = store.MessageKind(strings.ToUpper(strings.TrimSpace(string(r.MessageType))))

	if r.UserID == "" {
		return &ValidationError{Field: "user_id", Reason: "required"}
	}
	switch r.MessageType {
	case store.KindText:
		if strings.TrimSpace(r.Text) == "" {
			return &ValidationError{Field: "text", Reason: "required for TEXT messages"}
		}
		if r.Image != "" {
			return &ValidationError{Field: "image", Reason: "must be empty for TEXT messages"}
		}
	case store.KindImage:
		if r.Image == "" {
			return &ValidationError{Field: "image", Reason: "required for IMAGE messages"}
		}
		if r.Text != "" {
			return &ValidationError{Field: "text", Reason: "must be empty for IMAGE messages"}
		}
	case "":
		return &ValidationError{Field: "message_type", Reason: "required"}
	default:
		return &ValidationError{Field: "message_type", Reason: fmt.Sprintf("unknown kind %q", r.MessageType)}
	}

	if r.SentAt.IsZero() {
		r.SentAt = now()
	}
	r.SentAt = r.SentAt.UTC()
	return nil
}

func (r *Request) replayKey() string {
	return dedupe.Key(r.UserID, r.AgentID, string(r.MessageType), r.SentAt.Format(time.RFC3339Nano), r.Text, r.Image)
}
