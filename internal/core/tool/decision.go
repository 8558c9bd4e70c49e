package tool

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/ClareAI/astra-receptionist-service/internal/config"
	"github.com/ClareAI/astra-receptionist-service/internal/core/engine"
	"github.com/ClareAI/astra-receptionist-service/internal/core/schedule"
	"github.com/ClareAI/astra-receptionist-service/internal/domain"
	"github.com/ClareAI/astra-receptionist-service/internal/observability"
	"github.com/ClareAI/astra-receptionist-service/internal/prompts"
	"github.com/ClareAI/astra-receptionist-service/pkg/logger"
	"go.uber.org/zap"
)

// DecisionInput is everything the adapter needs for one turn
type DecisionInput struct {
	CallID    string
	Utterance string
	History   []domain.Exchange
	Context   domain.Context
	Prompts   *prompts.Builder
}

// DecisionAdapter turns the engine's action choice into validated tool
// requests. It never fails: any engine problem yields no requests.
type DecisionAdapter struct {
	engine   engine.Engine
	registry *Registry
	policy   config.PolicyProvider
	metrics  *observability.Metrics
}

// NewDecisionAdapter creates a decision adapter
func NewDecisionAdapter(eng engine.Engine, registry *Registry, policy config.PolicyProvider, metrics *observability.Metrics) *DecisionAdapter {
	if registry == nil {
		registry = NewRegistry()
	}
	if policy == nil {
		policy = config.NewStaticPolicy(nil)
	}
	return &DecisionAdapter{engine: eng, registry: registry, policy: policy, metrics: metrics}
}

// Decide returns the actions to run for the utterance, in the order the
// engine asked for them
func (a *DecisionAdapter) Decide(ctx context.Context, in DecisionInput) []domain.ToolRequest {
	policy := a.policy.Current()
	log := logger.ForCall(in.CallID)

	calls, err := a.decide(ctx, policy, in)
	if err != nil {
		a.metrics.ToolDecisionFailed()
		log.Warn("Tool decision failed, continuing without actions", zap.Error(err))
		calls = nil
	}

	requests := make([]domain.ToolRequest, 0, len(calls))
	for _, call := range calls {
		kind := domain.ToolKind(call.Name)
		def, ok := a.registry.Get(kind)
		if !ok {
			a.metrics.ToolDropped("unknown")
			log.Debug("Dropping unknown action", zap.String("tool", call.Name))
			continue
		}
		requests = append(requests, domain.ToolRequest{Kind: kind, Args: a.parseArgs(def, call.Arguments, log)})
	}

	if len(requests) == 0 {
		if fallback, ok := scheduleFallback(in.Utterance, in.Context, policy); ok {
			log.Info("Scheduling intent detected without an action, booking directly",
				zap.Any("args", fallback.Args))
			requests = append(requests, fallback)
		}
	}
	return requests
}

func (a *DecisionAdapter) decide(ctx context.Context, policy *config.Policy, in DecisionInput) ([]engine.ActionCall, error) {
	if a.engine == nil {
		return nil, nil
	}
	if timeout := policy.Timeouts.Decision.Duration; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	builder := in.Prompts
	if builder == nil {
		builder = prompts.NewBuilder(policy, config.BusinessInfo{})
	}

	start := time.Now()
	calls, err := a.engine.DecideActions(ctx, engine.DecisionRequest{
		SystemPrompt: builder.DecisionPrompt(),
		Utterance:    in.Utterance,
		History:      lastN(in.History, policy.Guards.HistoryWindow),
		Context:      in.Context,
		Tools:        a.registry.Specs(),
		MaxTokens:    policy.Engine.DecideMaxTokens,
	})
	status := "success"
	if err != nil {
		status = "error"
	}
	a.metrics.RecordEngineRequest("decide", status, time.Since(start).Seconds())
	return calls, err
}

// parseArgs decodes and validates an argument object. Anything malformed
// becomes an empty bag so the executor reports the missing arguments.
func (a *DecisionAdapter) parseArgs(def *Definition, raw string, log *zap.Logger) map[string]any {
	args := map[string]any{}
	if strings.TrimSpace(raw) == "" {
		return args
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil || args == nil {
		a.metrics.ToolDropped("invalid_args")
		log.Debug("Malformed action arguments", zap.String("tool", string(def.Kind)), zap.String("arguments", raw))
		return map[string]any{}
	}
	if err := def.Validate(args); err != nil {
		a.metrics.ToolDropped("invalid_args")
		log.Debug("Action arguments failed validation", zap.String("tool", string(def.Kind)), zap.Error(err))
		return map[string]any{}
	}
	return args
}

// scheduleFallback books directly when the caller plainly asked for a meeting
// at a time but the engine chose no action
func scheduleFallback(utterance string, callCtx domain.Context, policy *config.Policy) (domain.ToolRequest, bool) {
	meeting, ok := schedule.ExtractMeeting(utterance)
	if !ok {
		return domain.ToolRequest{}, false
	}
	if meeting.Who == "" {
		meeting.Who = callCtx.CallerName
	}
	if meeting.What == "" {
		meeting.What = callCtx.Purpose
	}
	if meeting.What == "" {
		meeting.What = policy.Meeting.DefaultWhat
	}
	return domain.ToolRequest{Kind: domain.ToolScheduleMeeting, Args: meeting.Args()}, true
}

func lastN(history []domain.Exchange, n int) []domain.Exchange {
	if n <= 0 || len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}
