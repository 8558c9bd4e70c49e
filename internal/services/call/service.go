package call

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ClareAI/astra-receptionist-service/internal/config"
	"github.com/ClareAI/astra-receptionist-service/internal/core/engine"
	"github.com/ClareAI/astra-receptionist-service/internal/core/event"
	"github.com/ClareAI/astra-receptionist-service/internal/core/normalizer"
	"github.com/ClareAI/astra-receptionist-service/internal/core/reply"
	"github.com/ClareAI/astra-receptionist-service/internal/core/session"
	"github.com/ClareAI/astra-receptionist-service/internal/core/tool"
	"github.com/ClareAI/astra-receptionist-service/internal/domain"
	"github.com/ClareAI/astra-receptionist-service/internal/observability"
	"github.com/ClareAI/astra-receptionist-service/internal/prompts"
	"github.com/ClareAI/astra-receptionist-service/pkg/logger"
	"github.com/ClareAI/astra-receptionist-service/pkg/pubsub"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	// finalizeTimeout bounds the background work after a call ends
	finalizeTimeout = 30 * time.Second
	registryTimeout = 5 * time.Second

	// late durations wait this long for a finalize that is still running
	reportedDurationsSize = 1000
	reportedDurationsTTL  = 2 * finalizeTimeout

	// Turn results recorded in metrics
	turnMissing  = "missing"
	turnEmpty    = "empty"
	turnFarewell = "farewell"
	turnReplied  = "replied"
	turnEnded    = "ended"
	turnAborted  = "aborted"
)

// Deps are the collaborators of the call service. Store, Decider, Executor
// and Responder are required; everything else is optional.
type Deps struct {
	Store     *session.Store
	Registry  *session.Registry
	Decider   Decider
	Executor  Executor
	Responder Responder
	// Engine classifies finished calls. Defaults to the rule-based engine.
	Engine   engine.Engine
	Records  RecordSaver
	Archive  Archiver
	Outcomes OutcomePublisher
	// Telephony hangs up calls the sweeper ends
	Telephony CallHanger
	Business  BusinessSource
	Bus       event.EventBus
	Policy    config.PolicyProvider
	Metrics   *observability.Metrics
	Tracer    *observability.Tracer
	Now       func() time.Time
}

// Service orchestrates live calls: it answers, runs each speech turn and
// finalizes calls when they end.
type Service struct {
	deps     Deps
	inflight sync.WaitGroup
	// reported holds telephony durations that arrived after the call ended
	reported *expirable.LRU[string, int]
}

// NewService creates the call service
func NewService(deps Deps) (*Service, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if deps.Decider == nil || deps.Executor == nil || deps.Responder == nil {
		return nil, fmt.Errorf("decider, executor and responder are required")
	}
	if deps.Engine == nil {
		deps.Engine = engine.NewRules()
	}
	if deps.Policy == nil {
		deps.Policy = config.NewStaticPolicy(nil)
	}
	if deps.Business == nil {
		deps.Business = StaticBusiness{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Service{
		deps:     deps,
		reported: expirable.NewLRU[string, int](reportedDurationsSize, nil, reportedDurationsTTL),
	}, nil
}

// HandleCallStart answers a call. Repeated starts for the same call are
// idempotent and never greet twice.
func (s *Service) HandleCallStart(ctx context.Context, callID, callerAddress string) Instruction {
	policy := s.deps.Policy.Current()
	log := logger.ForCall(callID)

	sess, err := s.deps.Store.Create(callID, callerAddress)
	if errors.Is(err, domain.ErrNotActive) {
		log.Info("Start for a call that already ended, hanging up")
		return SpeakHangup(policy.Lines.MissingCall)
	}
	if err != nil {
		log.Error("Failed to create call session", zap.Error(err))
		return SpeakHangup(policy.Lines.MissingCall)
	}

	instruction := Instruction{
		Action:  ActionListen,
		Prompt:  policy.Lines.GatherPrompt,
		NoInput: policy.Lines.NoInput,
	}
	if sess.Context.IsGreeted() {
		log.Info("Call already answered, resuming gather")
		return instruction
	}

	if err := s.deps.Store.MergeContext(callID, domain.Context{Greeted: domain.Bool(true)}); err != nil {
		log.Warn("Failed to mark call as greeted", zap.Error(err))
	}
	instruction.Say = prompts.NewBuilder(policy, s.deps.Business.BusinessInfo(ctx)).Greeting()

	s.deps.Metrics.CallStarted()
	s.register(callID, callerAddress, sess.StartedAt)
	s.publish(event.CallStarted, &event.CallStartedData{CallID: callID, CallerAddress: callerAddress})
	s.publishTranscript(callID, event.SpeakerAssistant, instruction.Say)

	log.Info("Call answered", zap.String("caller", callerAddress))
	return instruction
}

// HandleSpeech runs one conversational turn for a finalized caller
// utterance. The returned error is only the context's error when the turn
// was abandoned; every other failure becomes a spoken line.
func (s *Service) HandleSpeech(ctx context.Context, callID, utterance string, confidence float64) (Instruction, error) {
	policy := s.deps.Policy.Current()
	log := logger.ForCall(callID)
	start := time.Now()

	ctx, span := s.deps.Tracer.Start(logger.WithCallID(ctx, callID), "call.turn", callID, attribute.Float64("speech.confidence", confidence))
	defer span.End()

	text := strings.TrimSpace(utterance)
	sess, err := s.deps.Store.Get(callID)
	if err != nil {
		log.Warn("Speech for unknown call", zap.Error(err))
		s.deps.Metrics.RecordTurn(turnMissing, time.Since(start).Seconds())
		return SpeakHangup(policy.Lines.MissingCall), nil
	}
	if sess.Status.IsTerminal() {
		s.deps.Metrics.RecordTurn(turnMissing, time.Since(start).Seconds())
		return SpeakHangup(policy.Lines.MissingCall), nil
	}

	if text == "" {
		s.deps.Metrics.RecordTurn(turnEmpty, time.Since(start).Seconds())
		return SpeakListen(policy.Lines.EmptySpeech), nil
	}

	log.Info("Caller speech", zap.String("utterance", text), zap.Float64("confidence", confidence))
	s.publishTranscript(callID, event.SpeakerCaller, text)

	if reply.IsFarewell(text, policy.Guards.FarewellPhrases, policy.Guards.FarewellMaxLength) {
		return s.farewell(callID, text, policy, start), nil
	}

	var turn turnResult
	err = s.deps.Store.Update(callID, func(working *domain.CallSession) error {
		var runErr error
		turn, runErr = s.runTurn(ctx, working, text, policy)
		return runErr
	})
	if err != nil {
		if ctx.Err() != nil {
			log.Info("Turn abandoned, discarding results", zap.Error(ctx.Err()))
			observability.RecordError(span, ctx.Err())
			s.deps.Metrics.RecordTurn(turnAborted, time.Since(start).Seconds())
			return Instruction{}, ctx.Err()
		}
		log.Warn("Failed to apply turn", zap.Error(err))
		observability.RecordError(span, err)
		s.deps.Metrics.RecordTurn(turnMissing, time.Since(start).Seconds())
		return SpeakHangup(policy.Lines.MissingCall), nil
	}

	s.publishTranscript(callID, event.SpeakerAssistant, turn.text)
	span.SetAttributes(attribute.Int("turn.actions", turn.actions), attribute.Bool("turn.terminate", turn.terminate))

	if turn.terminate {
		log.Info("Ending call after turn", zap.String("reason", turn.reason))
		s.deps.Metrics.RecordTurn(turnEnded, time.Since(start).Seconds())
		s.finalizeAsync(callID, domain.CallStatusCompleted, domain.TelephonyStatusCompleted)
		return SpeakHangup(turn.text), nil
	}

	s.deps.Metrics.RecordTurn(turnReplied, time.Since(start).Seconds())
	instruction := SpeakListen(turn.text)
	instruction.FollowUp = policy.Lines.FollowUp
	return instruction, nil
}

type turnResult struct {
	text      string
	terminate bool
	reason    string
	actions   int
}

// runTurn works on the session copy held by Store.Update. Returning an error
// discards every change made to working.
func (s *Service) runTurn(ctx context.Context, working *domain.CallSession, text string, policy *config.Policy) (turnResult, error) {
	callID := working.CallID

	working.TranscriptHistory = append(working.TranscriptHistory, text)
	if working.Status != domain.CallStatusInProgress && working.Status.CanTransition(domain.CallStatusInProgress) {
		working.Status = domain.CallStatusInProgress
	}
	if signals := normalizer.Extract(text); !signals.Empty() {
		working.Context = working.Context.Merge(signals.Patch())
	}

	builder := prompts.NewBuilder(policy, s.deps.Business.BusinessInfo(ctx))
	reqs := s.deps.Decider.Decide(ctx, tool.DecisionInput{
		CallID:    callID,
		Utterance: text,
		History:   working.ConversationHistory,
		Context:   working.Context,
		Prompts:   builder,
	})

	result := turnResult{actions: len(reqs)}
	endCall := false
	if len(reqs) > 0 {
		executed := s.deps.Executor.Execute(ctx, callID, working.Context, reqs)
		working.Context = working.Context.Merge(executed.Patch)
		endCall = executed.EndCall
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	if endCall {
		result.text = firstNonEmpty(working.Context.EndCallMessage, policy.Lines.EndCall)
		result.terminate = true
		result.reason = "end_call"
	} else {
		out := s.deps.Responder.Reply(ctx, reply.Input{Utterance: text, Session: working, Prompts: builder})
		result.text = out.Text
		result.terminate = out.Terminate
		result.reason = out.Reason
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	working.ConversationHistory = append(working.ConversationHistory, domain.Exchange{
		Caller: text,
		Agent:  result.text,
		At:     s.deps.Now(),
	})
	return result, nil
}

func (s *Service) farewell(callID, text string, policy *config.Policy, start time.Time) Instruction {
	log := logger.ForCall(callID)
	goodbye := policy.Lines.Farewell

	err := s.deps.Store.Update(callID, func(working *domain.CallSession) error {
		working.TranscriptHistory = append(working.TranscriptHistory, text)
		if working.Status.CanTransition(domain.CallStatusInProgress) {
			working.Status = domain.CallStatusInProgress
		}
		working.ConversationHistory = append(working.ConversationHistory, domain.Exchange{
			Caller: text,
			Agent:  goodbye,
			At:     s.deps.Now(),
		})
		return nil
	})
	if err != nil {
		log.Warn("Failed to record farewell", zap.Error(err))
		s.deps.Metrics.RecordTurn(turnMissing, time.Since(start).Seconds())
		return SpeakHangup(policy.Lines.MissingCall)
	}

	log.Info("Caller said goodbye")
	s.publishTranscript(callID, event.SpeakerAssistant, goodbye)
	s.deps.Metrics.RecordTurn(turnFarewell, time.Since(start).Seconds())
	s.finalizeAsync(callID, domain.CallStatusCompleted, domain.TelephonyStatusCompleted)
	return SpeakHangup(goodbye)
}

// HandleCallStatus processes a telephony status callback. Non-terminal
// statuses are acknowledged only. A terminal status for a call this pod does
// not hold is forwarded to the owning pod.
func (s *Service) HandleCallStatus(ctx context.Context, callID, status string, durationSeconds int) error {
	log := logger.ForCall(callID)
	if !domain.IsTerminalTelephonyStatus(status) {
		log.Debug("Call status update", zap.String("status", status))
		return nil
	}

	_, err := s.finalize(ctx, callID, terminalStatus(status), status, durationSeconds)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrNotActive) {
		return err
	}
	if s.deps.Store.Ended(callID) {
		s.recordLateDuration(ctx, callID, durationSeconds)
		return nil
	}

	live, lookupErr := s.deps.Registry.Lookup(ctx, callID)
	if lookupErr != nil {
		log.Warn("Failed to look up live call owner", zap.Error(lookupErr))
		return nil
	}
	if live == nil || s.deps.Registry.Owns(live) {
		log.Debug("Status for a call that is already finalized", zap.String("status", status))
		return nil
	}
	return s.deps.Registry.NotifyCleanup(ctx, session.CleanupMessage{
		CallID:          callID,
		Status:          status,
		DurationSeconds: durationSeconds,
	})
}

// HandleCleanup finalizes a call on behalf of another pod
func (s *Service) HandleCleanup(msg session.CleanupMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()

	status := msg.Status
	if !domain.IsTerminalTelephonyStatus(status) {
		status = domain.TelephonyStatusCompleted
	}
	_, err := s.finalize(ctx, msg.CallID, terminalStatus(status), status, msg.DurationSeconds)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotActive):
		if s.deps.Store.Ended(msg.CallID) {
			s.recordLateDuration(ctx, msg.CallID, msg.DurationSeconds)
		}
	default:
		logger.ForCall(msg.CallID).Error("Failed to finalize call from cleanup broadcast", zap.Error(err))
	}
}

// recordLateDuration keeps the telephony duration of a call this pod already
// ended. A finalize still in progress picks it up before saving; a record
// that is already saved is updated in place.
func (s *Service) recordLateDuration(ctx context.Context, callID string, seconds int) {
	if seconds <= 0 {
		return
	}
	log := logger.ForCall(callID)
	s.reported.Add(callID, seconds)
	if s.deps.Records == nil {
		return
	}
	err := s.deps.Records.UpdateDuration(ctx, callID, seconds)
	switch {
	case err == nil:
		s.reported.Remove(callID)
		log.Debug("Updated call duration from status callback", zap.Int("duration_seconds", seconds))
	case errors.Is(err, domain.ErrNotFound):
		log.Debug("Call record not saved yet, keeping reported duration", zap.Int("duration_seconds", seconds))
	default:
		log.Warn("Failed to update call duration", zap.Error(err))
	}
}

// ListenForCleanup handles cleanup broadcasts until ctx is done
func (s *Service) ListenForCleanup(ctx context.Context) error {
	return s.deps.Registry.SubscribeToCleanup(ctx, s.HandleCleanup)
}

// SweepStale finalizes calls that have been idle for longer than idle and
// returns how many were ended
func (s *Service) SweepStale(ctx context.Context, idle time.Duration) int {
	ended := 0
	for _, callID := range s.deps.Store.Stale(idle) {
		logger.ForCall(callID).Info("Call inactive for too long", zap.Duration("idle", idle))
		if _, err := s.finalize(ctx, callID, domain.CallStatusFailed, domain.TelephonyStatusFailed, 0); err != nil {
			if !errors.Is(err, domain.ErrNotActive) {
				logger.ForCall(callID).Error("Failed to finalize stale call", zap.Error(err))
			}
			continue
		}
		if s.deps.Telephony != nil {
			if err := s.deps.Telephony.Hangup(callID); err != nil {
				logger.ForCall(callID).Warn("Failed to hang up stale call", zap.Error(err))
			}
		}
		ended++
	}
	if ended > 0 {
		logger.Base().Info("Cleaned up stale calls", zap.Int("cleaned_count", ended))
	}
	return ended
}

// StartSweeper runs SweepStale on schedule until ctx is done
func (s *Service) StartSweeper(ctx context.Context, schedule string, idle time.Duration) (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		s.SweepStale(ctx, idle)
	}); err != nil {
		return nil, fmt.Errorf("failed to schedule stale call sweeper: %w", err)
	}
	c.Start()
	logger.Base().Info("Started stale call sweeper", zap.String("schedule", schedule), zap.Duration("idle", idle))

	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
		logger.Base().Info("Stale call sweeper stopped")
	}()
	return c, nil
}

// LiveCalls lists the calls this pod is handling
func (s *Service) LiveCalls() []LiveCallView {
	sessions := s.deps.Store.List()
	views := make([]LiveCallView, 0, len(sessions))
	for _, cs := range sessions {
		views = append(views, LiveCallView{
			CallID:        cs.CallID,
			CallerAddress: cs.CallerAddress,
			Status:        string(cs.Status),
			StartedAt:     cs.StartedAt.UTC().Format(time.RFC3339),
			Turns:         cs.TurnCount(),
			CallerName:    cs.Context.CallerName,
		})
	}
	return views
}

// Wait blocks until background finalization has finished
func (s *Service) Wait() {
	s.inflight.Wait()
}

func (s *Service) finalizeAsync(callID string, status domain.CallStatus, telephonyStatus string) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
		defer cancel()
		if _, err := s.finalize(ctx, callID, status, telephonyStatus, 0); err != nil && !errors.Is(err, domain.ErrNotActive) {
			logger.ForCall(callID).Error("Failed to finalize call", zap.Error(err))
		}
	}()
}

// finalize ends the call exactly once. Everything after Complete is best
// effort: a failing store, archive or publisher is logged and skipped.
func (s *Service) finalize(ctx context.Context, callID string, status domain.CallStatus, telephonyStatus string, durationSeconds int) (*domain.CallRecord, error) {
	final, err := s.deps.Store.Complete(callID, status)
	if err != nil {
		return nil, err
	}
	log := logger.ForCall(callID)

	ctx, span := s.deps.Tracer.Start(logger.WithCallID(ctx, callID), "call.finalize", callID, attribute.String("call.status", telephonyStatus))
	defer span.End()

	outcome := s.classify(ctx, final)
	if reported, ok := s.reported.Get(callID); ok {
		durationSeconds = reported
		s.reported.Remove(callID)
	}
	record := domain.NewCallRecord(final, outcome, telephonyStatus, durationSeconds, s.deps.Now())
	record.ID = uuid.New().String()

	if s.deps.Archive != nil {
		if url, err := s.deps.Archive.ArchiveCall(ctx, record); err != nil {
			log.Warn("Failed to archive call transcript", zap.Error(err))
		} else {
			record.ArchiveURL = url
		}
	}
	var saveErr error
	if s.deps.Records != nil {
		if saveErr = s.deps.Records.Save(ctx, record); saveErr != nil {
			observability.RecordError(span, saveErr)
			log.Error("Failed to save call record", zap.Error(saveErr))
		}
	}
	if s.deps.Outcomes != nil {
		if err := s.deps.Outcomes.PublishCallOutcome(ctx, outcomeEvent(record, final)); err != nil {
			log.Error("Failed to publish call outcome", zap.Error(err))
		}
	}
	if err := s.deps.Registry.Unregister(ctx, callID); err != nil {
		log.Warn("Failed to unregister live call", zap.Error(err))
	}

	s.deps.Metrics.CallEnded(telephonyStatus, string(outcome.Decision), float64(record.DurationSeconds))
	// subscribers see an unsaved record as an event error
	s.publishEvent(event.NewCallEvent(event.CallEnded, callID).WithData(&event.CallEndedData{
		CallID:          callID,
		Status:          telephonyStatus,
		Decision:        string(outcome.Decision),
		Summary:         outcome.Summary,
		DurationSeconds: record.DurationSeconds,
	}).WithError(saveErr))

	log.Info("Call finalized",
		zap.String("status", telephonyStatus),
		zap.String("decision", string(outcome.Decision)),
		zap.String("decision_label", outcome.DecisionLabel),
		zap.Int("duration_seconds", record.DurationSeconds))
	return record, nil
}

func (s *Service) classify(ctx context.Context, final *domain.CallSession) domain.CallOutcome {
	if len(final.TranscriptHistory) == 0 {
		return domain.EmptyCallOutcome()
	}
	policy := s.deps.Policy.Current()
	if timeout := policy.Timeouts.Outcome.Duration; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	builder := prompts.NewBuilder(policy, s.deps.Business.BusinessInfo(ctx))
	start := time.Now()
	outcome, err := s.deps.Engine.ClassifyOutcome(ctx, engine.OutcomeRequest{
		SystemPrompt: builder.OutcomePrompt(),
		Transcript:   final.TranscriptHistory,
		MaxTokens:    policy.Engine.OutcomeMaxTokens,
	})
	if err != nil {
		s.deps.Metrics.RecordEngineRequest("outcome", "error", time.Since(start).Seconds())
		logger.ForCall(final.CallID).Error("Failed to analyze call outcome", zap.Error(err))
		return domain.FailedAnalysisOutcome(err)
	}
	s.deps.Metrics.RecordEngineRequest("outcome", "success", time.Since(start).Seconds())
	return outcome.Normalize()
}

func (s *Service) register(callID, callerAddress string, startedAt time.Time) {
	if s.deps.Registry == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), registryTimeout)
	defer cancel()
	if err := s.deps.Registry.Register(ctx, session.LiveCall{
		CallID:        callID,
		CallerAddress: callerAddress,
		StartTime:     startedAt,
	}); err != nil {
		logger.ForCall(callID).Warn("Failed to register live call", zap.Error(err))
	}
}

func (s *Service) publish(eventType event.EventType, data interface{}) {
	if s.deps.Bus == nil {
		return
	}
	if err := s.deps.Bus.Publish(eventType, data); err != nil {
		logger.Base().Debug("Event not published", zap.String("type", string(eventType)), zap.Error(err))
	}
}

func (s *Service) publishEvent(evt *event.CallEvent) {
	if s.deps.Bus == nil {
		return
	}
	if err := s.deps.Bus.PublishEvent(evt); err != nil {
		logger.Base().Debug("Event not published", zap.String("type", string(evt.Type)), zap.Error(err))
	}
}

func (s *Service) publishTranscript(callID, speaker, text string) {
	if text == "" {
		return
	}
	s.publish(event.Transcript, &event.TranscriptData{
		CallID:     callID,
		Speaker:    speaker,
		Transcript: text,
		Timestamp:  s.deps.Now(),
	})
}

func outcomeEvent(record *domain.CallRecord, final *domain.CallSession) pubsub.CallOutcomeEvent {
	return pubsub.CallOutcomeEvent{
		ID:              record.ID,
		CallSID:         record.CallSID,
		CallerNumber:    record.CallerNumber,
		CallerName:      record.IdentifiedName,
		Status:          record.Status,
		Decision:        string(record.Decision),
		DecisionLabel:   record.DecisionLabel,
		Summary:         record.Summary,
		DurationSeconds: record.DurationSeconds,
		TurnCount:       final.TurnCount(),
		StartedAt:       record.StartedAt,
		EndedAt:         record.EndedAt,
	}
}

func terminalStatus(telephonyStatus string) domain.CallStatus {
	if telephonyStatus == domain.TelephonyStatusCompleted {
		return domain.CallStatusCompleted
	}
	return domain.CallStatusFailed
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
