package event

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ClareAI/astra-receptionist-service/pkg/logger"
	"go.uber.org/zap"
)

// EventHandler represents a function that handles events
type EventHandler func(event *CallEvent)

// EventMiddleware represents middleware that can wrap event handlers
type EventMiddleware func(next EventHandler) EventHandler

// SubscriptionID identifies a subscription for Unsubscribe
type SubscriptionID uint64

// EventBus defines the interface for event bus operations
type EventBus interface {
	Publish(eventType EventType, data interface{}) error
	PublishEvent(event *CallEvent) error
	Subscribe(eventType EventType, handler EventHandler) (SubscriptionID, error)
	SubscribeWithTimeout(eventType EventType, handler EventHandler, timeout time.Duration) (SubscriptionID, error)
	Unsubscribe(eventType EventType, id SubscriptionID) error
	Use(middleware EventMiddleware)
	Close() error
	GetStats() BusStats
}

// BusStats contains statistics about the event bus
type BusStats struct {
	TotalEvents     int64            `json:"total_events"`
	EventsByType    map[string]int64 `json:"events_by_type"`
	ActiveHandlers  int              `json:"active_handlers"`
	SubscriberCount map[string]int   `json:"subscriber_count"`
}

type subscription struct {
	id      SubscriptionID
	handler EventHandler
}

// DefaultEventBus is the default implementation of EventBus. Handlers run
// asynchronously, one goroutine per handler per event.
type DefaultEventBus struct {
	subscribers map[EventType][]subscription
	middleware  []EventMiddleware
	mutex       sync.RWMutex
	nextID      atomic.Uint64
	ctx         context.Context
	cancel      context.CancelFunc
	stats       BusStats
	statsMutex  sync.RWMutex
	inflight    sync.WaitGroup
}

// NewEventBus creates a new event bus instance
func NewEventBus() *DefaultEventBus {
	ctx, cancel := context.WithCancel(context.Background())

	return &DefaultEventBus{
		subscribers: make(map[EventType][]subscription),
		middleware:  make([]EventMiddleware, 0),
		ctx:         ctx,
		cancel:      cancel,
		stats: BusStats{
			EventsByType:    make(map[string]int64),
			SubscriberCount: make(map[string]int),
		},
	}
}

// Publish publishes an event with the given type and data
func (b *DefaultEventBus) Publish(eventType EventType, data interface{}) error {
	event := NewCallEvent(eventType, "")
	if data != nil {
		event.Data = data

		switch d := data.(type) {
		case *CallStartedData:
			event.CallID = d.CallID
		case *TranscriptData:
			event.CallID = d.CallID
			if !d.Timestamp.IsZero() {
				event.Timestamp = d.Timestamp
			}
		case *CallEndedData:
			event.CallID = d.CallID
		}
	}

	return b.PublishEvent(event)
}

// PublishEvent publishes a complete event
func (b *DefaultEventBus) PublishEvent(event *CallEvent) error {
	select {
	case <-b.ctx.Done():
		return fmt.Errorf("event bus is closed")
	default:
	}

	b.mutex.RLock()
	subs := b.subscribers[event.Type]
	if len(subs) == 0 {
		b.mutex.RUnlock()
		logger.Base().Debug("No subscribers for event type", zap.String("type", string(event.Type)))
		return nil
	}

	// Copy handlers and middleware to avoid holding the lock during execution
	handlers := make([]EventHandler, len(subs))
	for i, s := range subs {
		handlers[i] = s.handler
	}
	middleware := make([]EventMiddleware, len(b.middleware))
	copy(middleware, b.middleware)
	b.mutex.RUnlock()

	b.updateStats(event.Type)

	for _, handler := range handlers {
		finalHandler := handler
		for i := len(middleware) - 1; i >= 0; i-- {
			finalHandler = middleware[i](finalHandler)
		}

		b.inflight.Add(1)
		go func(h EventHandler) {
			defer b.inflight.Done()
			defer func() {
				if r := recover(); r != nil {
					logger.Base().Error("Event handler panic", zap.String("type", string(event.Type)), zap.Any("panic", r))
				}
			}()
			h(event)
		}(finalHandler)
	}

	return nil
}

// Subscribe subscribes to events of a specific type
func (b *DefaultEventBus) Subscribe(eventType EventType, handler EventHandler) (SubscriptionID, error) {
	return b.SubscribeWithTimeout(eventType, handler, 0)
}

// SubscribeWithTimeout subscribes to events with a timeout
func (b *DefaultEventBus) SubscribeWithTimeout(eventType EventType, handler EventHandler, timeout time.Duration) (SubscriptionID, error) {
	select {
	case <-b.ctx.Done():
		return 0, fmt.Errorf("event bus is closed")
	default:
	}

	if handler == nil {
		return 0, fmt.Errorf("handler cannot be nil")
	}

	finalHandler := handler
	if timeout > 0 {
		finalHandler = b.withTimeout(handler, timeout)
	}
	id := SubscriptionID(b.nextID.Add(1))

	b.mutex.Lock()
	b.subscribers[eventType] = append(b.subscribers[eventType], subscription{id: id, handler: finalHandler})
	b.mutex.Unlock()

	b.statsMutex.Lock()
	b.stats.SubscriberCount[string(eventType)]++
	b.stats.ActiveHandlers++
	b.statsMutex.Unlock()

	logger.Base().Debug("Subscribed to event type", zap.String("event_type", string(eventType)), zap.Uint64("subscription_id", uint64(id)))
	return id, nil
}

// Unsubscribe removes a subscription
func (b *DefaultEventBus) Unsubscribe(eventType EventType, id SubscriptionID) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	subs, exists := b.subscribers[eventType]
	if !exists {
		return fmt.Errorf("no subscribers for event type: %s", eventType)
	}

	for i, s := range subs {
		if s.id != id {
			continue
		}
		remaining := make([]subscription, 0, len(subs)-1)
		remaining = append(remaining, subs[:i]...)
		b.subscribers[eventType] = append(remaining, subs[i+1:]...)

		b.statsMutex.Lock()
		b.stats.SubscriberCount[string(eventType)]--
		b.stats.ActiveHandlers--
		b.statsMutex.Unlock()

		logger.Base().Debug("Unsubscribed from event type", zap.String("event_type", string(eventType)))
		return nil
	}

	return fmt.Errorf("subscription %d not found for event type: %s", id, eventType)
}

// Use adds middleware to the event bus
func (b *DefaultEventBus) Use(middleware EventMiddleware) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.middleware = append(b.middleware, middleware)
}

// Close closes the event bus and waits for running handlers
func (b *DefaultEventBus) Close() error {
	b.cancel()

	b.mutex.Lock()
	b.subscribers = make(map[EventType][]subscription)
	b.middleware = make([]EventMiddleware, 0)
	b.mutex.Unlock()

	b.inflight.Wait()
	logger.Base().Info("Event bus closed")
	return nil
}

// GetStats returns current bus statistics
func (b *DefaultEventBus) GetStats() BusStats {
	b.statsMutex.RLock()
	defer b.statsMutex.RUnlock()

	stats := BusStats{
		TotalEvents:     b.stats.TotalEvents,
		EventsByType:    make(map[string]int64),
		ActiveHandlers:  b.stats.ActiveHandlers,
		SubscriberCount: make(map[string]int),
	}

	for k, v := range b.stats.EventsByType {
		stats.EventsByType[k] = v
	}

	for k, v := range b.stats.SubscriberCount {
		stats.SubscriberCount[k] = v
	}

	return stats
}

// withTimeout wraps a handler with timeout functionality
func (b *DefaultEventBus) withTimeout(handler EventHandler, timeout time.Duration) EventHandler {
	return func(event *CallEvent) {
		done := make(chan struct{})

		go func() {
			defer close(done)
			handler(event)
		}()

		select {
		case <-done:
		case <-time.After(timeout):
			logger.Base().Warn("Event handler timeout", zap.String("type", string(event.Type)), zap.Duration("timeout", timeout))
		case <-b.ctx.Done():
			logger.Base().Info("Event handler cancelled", zap.String("type", string(event.Type)))
		}
	}
}

func (b *DefaultEventBus) updateStats(eventType EventType) {
	b.statsMutex.Lock()
	defer b.statsMutex.Unlock()

	b.stats.TotalEvents++
	b.stats.EventsByType[string(eventType)]++
}
