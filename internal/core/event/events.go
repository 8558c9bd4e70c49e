package event

import (
	"time"
)

// EventType represents the type of event
type EventType string

// Call events
const (
	CallStarted EventType = "call.started"
	// Transcript carries one spoken line from either side of the call
	Transcript EventType = "call.transcript"
	CallEnded  EventType = "call.ended"
)

// Transcript speakers
const (
	SpeakerCaller    = "caller"
	SpeakerAssistant = "assistant"
)

// CallEvent is published on the bus for everything that happens on a call
type CallEvent struct {
	Type      EventType   `json:"type"`
	CallID    string      `json:"call_id"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
	Error     error       `json:"-"`
}

// CallStartedData describes an answered call
type CallStartedData struct {
	CallID        string `json:"call_sid"`
	CallerAddress string `json:"caller_number"`
}

// TranscriptData is the payload broadcast to transcript listeners
type TranscriptData struct {
	CallID     string    `json:"call_sid"`
	Speaker    string    `json:"speaker"`
	Transcript string    `json:"transcript"`
	Timestamp  time.Time `json:"timestamp"`
}

// CallEndedData summarizes a finalized call
type CallEndedData struct {
	CallID          string `json:"call_sid"`
	Status          string `json:"status"`
	Decision        string `json:"decision"`
	Summary         string `json:"summary"`
	DurationSeconds int    `json:"duration_seconds"`
}

// NewCallEvent creates a new call event
func NewCallEvent(eventType EventType, callID string) *CallEvent {
	return &CallEvent{
		Type:      eventType,
		CallID:    callID,
		Timestamp: time.Now(),
	}
}

// WithData adds data to the event
func (e *CallEvent) WithData(data interface{}) *CallEvent {
	e.Data = data
	return e
}

// WithError adds error to the event
func (e *CallEvent) WithError(err error) *CallEvent {
	e.Error = err
	return e
}

// IsError returns true if the event contains an error
func (e *CallEvent) IsError() bool {
	return e.Error != nil
}

// GetTranscriptData returns transcript data if available
func (e *CallEvent) GetTranscriptData() (*TranscriptData, bool) {
	if data, ok := e.Data.(*TranscriptData); ok {
		return data, true
	}
	return nil, false
}

// GetCallEndedData returns call summary data if available
func (e *CallEvent) GetCallEndedData() (*CallEndedData, bool) {
	if data, ok := e.Data.(*CallEndedData); ok {
		return data, true
	}
	return nil, false
}
