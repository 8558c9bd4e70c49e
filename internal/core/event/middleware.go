package event

import (
	"fmt"
	"time"

	"github.com/ClareAI/astra-receptionist-service/pkg/logger"
	"go.uber.org/zap"
)

// LoggingMiddleware logs every handled event at debug level
func LoggingMiddleware(next EventHandler) EventHandler {
	return func(event *CallEvent) {
		start := time.Now()

		defer func() {
			if event.IsError() {
				logger.Base().Error("Handled event carrying an error", zap.String("type", string(event.Type)), zap.String("call_id", event.CallID), zap.Error(event.Error))
			} else {
				logger.Base().Debug("Event handler completed", zap.String("type", string(event.Type)), zap.String("call_id", event.CallID), zap.Duration("duration", time.Since(start)))
			}
		}()

		next(event)
	}
}

// RecoveryMiddleware provides panic recovery for event handlers
func RecoveryMiddleware(next EventHandler) EventHandler {
	return func(event *CallEvent) {
		defer func() {
			if r := recover(); r != nil {
				logger.Base().Error("Panic in event handler",
					zap.String("type", string(event.Type)),
					zap.String("call_id", event.CallID),
					zap.Error(fmt.Errorf("handler panic: %v", r)))
			}
		}()

		next(event)
	}
}

// ValidationMiddleware drops events that cannot be attributed to a call
func ValidationMiddleware(next EventHandler) EventHandler {
	return func(event *CallEvent) {
		if event == nil {
			logger.Base().Error("Received nil event")
			return
		}
		if event.Type == "" {
			logger.Base().Error("Event type is empty", zap.String("call_id", event.CallID))
			return
		}
		if event.CallID == "" {
			logger.Base().Error("Call ID is empty", zap.String("type", string(event.Type)))
			return
		}
		if err := validateEventData(event); err != nil {
			logger.Base().Error("Invalid event data", zap.String("type", string(event.Type)), zap.String("call_id", event.CallID), zap.Error(err))
			return
		}

		next(event)
	}
}

func validateEventData(event *CallEvent) error {
	switch event.Type {
	case Transcript:
		data, ok := event.GetTranscriptData()
		if !ok {
			return fmt.Errorf("transcript data is required for %s", event.Type)
		}
		if data.Speaker != SpeakerCaller && data.Speaker != SpeakerAssistant {
			return fmt.Errorf("unknown speaker %q", data.Speaker)
		}
	case CallEnded:
		if _, ok := event.GetCallEndedData(); !ok {
			return fmt.Errorf("call summary is required for %s", event.Type)
		}
	}
	return nil
}

// CreateDefaultMiddlewareChain creates the middleware chain used by the server
func CreateDefaultMiddlewareChain() []EventMiddleware {
	return []EventMiddleware{
		RecoveryMiddleware,
		ValidationMiddleware,
		LoggingMiddleware,
	}
}
