package reply

import (
	"context"
	"time"

	"github.com/ClareAI/astra-receptionist-service/internal/config"
	"github.com/ClareAI/astra-receptionist-service/internal/core/engine"
	"github.com/ClareAI/astra-receptionist-service/internal/domain"
	"github.com/ClareAI/astra-receptionist-service/internal/observability"
	"github.com/ClareAI/astra-receptionist-service/internal/prompts"
	"github.com/ClareAI/astra-receptionist-service/pkg/logger"
	"go.uber.org/zap"
)

// Reasons a reply was rewritten
const (
	ReasonFallback  = "fallback"
	ReasonSanitized = "sanitized"
	ReasonLoop      = "loop_detected"
	ReasonGreeting  = "greeting"
)

// Reply is the line to speak for a turn
type Reply struct {
	Text string
	// Terminate asks the caller to end the call after speaking Text
	Terminate bool
	// Reason is set when Text is not the engine's own words
	Reason string
}

// Input is what the synthesizer needs for one turn. Session is a snapshot
// whose context already holds this turn's facts.
type Input struct {
	Utterance string
	Session   *domain.CallSession
	Prompts   *prompts.Builder
}

// Synthesizer produces the spoken reply and applies the loop and leak guards
type Synthesizer struct {
	engine  engine.Engine
	policy  config.PolicyProvider
	metrics *observability.Metrics
}

// NewSynthesizer creates a synthesizer
func NewSynthesizer(eng engine.Engine, policy config.PolicyProvider, metrics *observability.Metrics) *Synthesizer {
	if policy == nil {
		policy = config.NewStaticPolicy(nil)
	}
	return &Synthesizer{engine: eng, policy: policy, metrics: metrics}
}

// Reply generates and guards the reply for the utterance
func (s *Synthesizer) Reply(ctx context.Context, in Input) Reply {
	policy := s.policy.Current()
	builder := in.Prompts
	if builder == nil {
		builder = prompts.NewBuilder(policy, config.BusinessInfo{})
	}
	session := in.Session
	if session == nil {
		session = &domain.CallSession{}
	}
	log := logger.ForCall(session.CallID)
	guards := policy.Guards

	raw, err := s.generate(ctx, policy, builder, in.Utterance, session)
	var out Reply
	if err != nil {
		log.Warn("Reply generation failed, using fallback", zap.Error(err))
		out = Reply{Text: policy.Lines.Fallback, Reason: ReasonFallback}
	} else if text := Sanitize(raw, guards.NarrationVerbs, guards.NarrationMarkers, guards.MinReplyLength); text != "" {
		out = Reply{Text: text}
	} else {
		log.Info("Reply was empty after sanitizing", zap.String("raw", raw))
		out = Reply{Text: cannedLine(builder, session.Context), Reason: ReasonSanitized}
	}
	if out.Reason != "" {
		s.metrics.GuardTriggered(out.Reason)
	}

	if session.Context.IsGreeted() && ContainsGreeting(out.Text, guards.GreetingPhrases) {
		log.Info("Suppressing repeated greeting", zap.String("reply", out.Text))
		s.metrics.GuardTriggered(ReasonGreeting)
		out = Reply{Text: builder.Acknowledgment(session.Context, false), Reason: ReasonGreeting}
	}

	// checked on the text the caller would hear, so a rewritten line that
	// keeps coming back still counts as a loop
	if IsRepeat(out.Text, session.RecentReplies(guards.RepeatWindow)) {
		log.Warn("Loop detected, ending call", zap.String("reply", out.Text))
		s.metrics.GuardTriggered(ReasonLoop)
		return Reply{Text: policy.Lines.LoopTermination, Terminate: true, Reason: ReasonLoop}
	}

	return out
}

func (s *Synthesizer) generate(ctx context.Context, policy *config.Policy, builder *prompts.Builder, utterance string, session *domain.CallSession) (string, error) {
	if s.engine == nil {
		return "", nil
	}
	if timeout := policy.Timeouts.Reply.Duration; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := s.engine.GenerateReply(ctx, engine.ReplyRequest{
		SystemPrompt: builder.ReplyPrompt(session.Context),
		Utterance:    utterance,
		History:      session.RecentHistory(policy.Guards.HistoryWindow),
		Context:      session.Context,
		MaxTokens:    policy.Engine.ReplyMaxTokens,
		Temperature:  policy.Engine.Temperature,
	})
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metrics.RecordEngineRequest("reply", status, time.Since(start).Seconds())
	return text, err
}

// cannedLine replaces a reply that had nothing speakable left
func cannedLine(builder *prompts.Builder, c domain.Context) string {
	switch {
	case c.HasScheduledMeeting():
		return builder.MeetingConfirmed(c.MeetingDetails.When)
	case c.CallerName != "":
		return builder.CallerAcknowledge(c.CallerName)
	default:
		return builder.Policy.Lines.Fallback
	}
}
