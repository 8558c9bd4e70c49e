package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/ClareAI/astra-receptionist-service/pkg/logger"
	"github.com/ClareAI/astra-receptionist-service/pkg/redis"
	"go.uber.org/zap"
)

const (
	LiveCallTTL = 1 * time.Hour
)

// LiveCall is the monitoring record of a call owned by some pod
type LiveCall struct {
	CallID        string    `json:"callId"`
	CallerAddress string    `json:"callerAddress"`
	PodID         string    `json:"podId"`
	StartTime     time.Time `json:"startTime"`
}

// CleanupMessage asks the pod owning a call to finalize it
type CleanupMessage struct {
	CallID          string `json:"callId"`
	Status          string `json:"status"`
	DurationSeconds int    `json:"durationSeconds"`
}

// Registry records live calls in Redis so any pod can see and end them.
// A nil *Registry is valid and does nothing.
type Registry struct {
	redisSvc redis.RedisServiceInterface
	podID    string
}

func NewRegistry(redisSvc redis.RedisServiceInterface, podID string) *Registry {
	if redisSvc == nil {
		return nil
	}
	return &Registry{
		redisSvc: redisSvc,
		podID:    podID,
	}
}

// Register records a live call owned by this pod
func (r *Registry) Register(ctx context.Context, call LiveCall) error {
	if r == nil {
		return nil
	}
	call.PodID = r.podID
	if call.StartTime.IsZero() {
		call.StartTime = time.Now()
	}

	data, err := json.Marshal(call)
	if err != nil {
		return fmt.Errorf("failed to marshal live call: %w", err)
	}
	key := r.redisSvc.GenerateKey(redis.LIVE_CALL, call.CallID)

	if err := r.redisSvc.SetValue(ctx, key, string(data), LiveCallTTL); err != nil {
		return fmt.Errorf("failed to register live call: %w", err)
	}
	logger.Base().Info("Live call registered in Redis", zap.String("call_id", call.CallID), zap.String("pod_id", r.podID))
	return nil
}

// Unregister removes a live call
func (r *Registry) Unregister(ctx context.Context, callID string) error {
	if r == nil {
		return nil
	}
	return r.redisSvc.DelValue(ctx, r.redisSvc.GenerateKey(redis.LIVE_CALL, callID))
}

// Lookup returns the live call record, or nil when no pod owns callID
func (r *Registry) Lookup(ctx context.Context, callID string) (*LiveCall, error) {
	if r == nil {
		return nil, nil
	}
	raw, err := r.redisSvc.GetValue(ctx, r.redisSvc.GenerateKey(redis.LIVE_CALL, callID))
	if err != nil {
		if redis.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get live call: %w", err)
	}
	var call LiveCall
	if err := json.Unmarshal([]byte(raw), &call); err != nil {
		return nil, fmt.Errorf("failed to unmarshal live call: %w", err)
	}
	return &call, nil
}

// List returns the live calls of every pod
func (r *Registry) List(ctx context.Context) ([]LiveCall, error) {
	if r == nil {
		return nil, nil
	}
	keys, err := r.redisSvc.ScanKeys(ctx, r.redisSvc.GenerateKey(redis.LIVE_CALL, "*"))
	if err != nil {
		return nil, err
	}

	calls := make([]LiveCall, 0, len(keys))
	for _, key := range keys {
		raw, err := r.redisSvc.GetValue(ctx, key)
		if err != nil {
			// expired between SCAN and GET
			continue
		}
		var call LiveCall
		if err := json.Unmarshal([]byte(raw), &call); err != nil {
			logger.Base().Warn("Skipping malformed live call record", zap.String("key", key), zap.Error(err))
			continue
		}
		calls = append(calls, call)
	}
	sort.Slice(calls, func(i, j int) bool { return calls[i].StartTime.Before(calls[j].StartTime) })
	return calls, nil
}

// Owns reports whether this pod registered call
func (r *Registry) Owns(call *LiveCall) bool {
	return r != nil && call != nil && call.PodID == r.podID
}

// NotifyCleanup broadcasts a cleanup request to all pods
func (r *Registry) NotifyCleanup(ctx context.Context, msg CleanupMessage) error {
	if r == nil {
		return nil
	}
	logger.Base().Info("Broadcasting cleanup request", zap.String("call_id", msg.CallID), zap.String("status", msg.Status))
	channel := r.redisSvc.GenerateKey(redis.CALL_CLEANUP, "broadcast")
	return r.redisSvc.Publish(ctx, channel, msg)
}

// SubscribeToCleanup listens for cleanup broadcasts until ctx is done
func (r *Registry) SubscribeToCleanup(ctx context.Context, handler func(CleanupMessage)) error {
	if r == nil {
		return nil
	}
	channel := r.redisSvc.GenerateKey(redis.CALL_CLEANUP, "broadcast")
	return r.redisSvc.Subscribe(ctx, channel, func(payload string) {
		var msg CleanupMessage
		if err := json.Unmarshal([]byte(payload), &msg); err != nil {
			logger.Base().Error("Failed to unmarshal cleanup message", zap.Error(err))
			return
		}
		handler(msg)
	})
}
