package engine

import (
	"context"
	"fmt"

	"github.com/ClareAI/astra-receptionist-service/internal/domain"
	"golang.org/x/time/rate"
)

// RateLimited wraps an Engine with a process-local token bucket so concurrent
// calls cannot exceed the provider's request budget. Callers block until
// capacity is available or their context ends.
type RateLimited struct {
	next    Engine
	limiter *rate.Limiter
}

var _ Engine = (*RateLimited)(nil)

// NewRateLimited wraps next with a limit of perSecond requests and the given
// burst. A non-positive perSecond disables limiting.
func NewRateLimited(next Engine, perSecond float64, burst int) *RateLimited {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(limit, burst)}
}

func (r *RateLimited) DecideActions(ctx context.Context, req DecisionRequest) ([]ActionCall, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.next.DecideActions(ctx, req)
}

func (r *RateLimited) GenerateReply(ctx context.Context, req ReplyRequest) (string, error) {
	if err := r.wait(ctx); err != nil {
		return "", err
	}
	return r.next.GenerateReply(ctx, req)
}

func (r *RateLimited) ClassifyOutcome(ctx context.Context, req OutcomeRequest) (domain.CallOutcome, error) {
	if err := r.wait(ctx); err != nil {
		return domain.CallOutcome{}, err
	}
	return r.next.ClassifyOutcome(ctx, req)
}

func (r *RateLimited) wait(ctx context.Context) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}
