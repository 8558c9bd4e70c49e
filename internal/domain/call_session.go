package domain

import "time"

// CallStatus is the lifecycle state of a live call.
type CallStatus string

const (
	CallStatusInitiated  CallStatus = "initiated"
	CallStatusInProgress CallStatus = "in_progress"
	CallStatusCompleted  CallStatus = "completed"
	CallStatusFailed     CallStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed.
func (s CallStatus) IsTerminal() bool {
	return s == CallStatusCompleted || s == CallStatusFailed
}

// CanTransition reports whether s may move to next. Terminal states never
// change; a live call never moves back to Initiated.
func (s CallStatus) CanTransition(next CallStatus) bool {
	if s.IsTerminal() {
		return false
	}
	switch next {
	case CallStatusInitiated:
		return s == CallStatusInitiated
	case CallStatusInProgress, CallStatusCompleted, CallStatusFailed:
		return true
	default:
		return false
	}
}

// Exchange is one caller utterance and the reply spoken to it.
type Exchange struct {
	Caller string    `json:"user"`
	Agent  string    `json:"assistant"`
	At     time.Time `json:"at"`
}

// CallSession is the mutable state of one live call.
type CallSession struct {
	CallID              string     `json:"call_id"`
	CallerAddress       string     `json:"caller_address"`
	Status              CallStatus `json:"status"`
	TranscriptHistory   []string   `json:"transcript_history"`
	ConversationHistory []Exchange `json:"conversation_history"`
	Context             Context    `json:"context"`
	StartedAt           time.Time  `json:"started_at"`
	LastActivity        time.Time  `json:"last_activity"`
}

// NewCallSession creates a session in the Initiated state.
func NewCallSession(callID, callerAddress string, now time.Time) *CallSession {
	return &CallSession{
		CallID:              callID,
		CallerAddress:       callerAddress,
		Status:              CallStatusInitiated,
		TranscriptHistory:   []string{},
		ConversationHistory: []Exchange{},
		StartedAt:           now,
		LastActivity:        now,
	}
}

// RecentHistory returns at most the last n exchanges, oldest first.
func (s *CallSession) RecentHistory(n int) []Exchange {
	if n <= 0 || len(s.ConversationHistory) == 0 {
		return nil
	}
	start := len(s.ConversationHistory) - n
	if start < 0 {
		start = 0
	}
	out := make([]Exchange, len(s.ConversationHistory)-start)
	copy(out, s.ConversationHistory[start:])
	return out
}

// RecentReplies returns the agent side of the last n exchanges, newest first.
func (s *CallSession) RecentReplies(n int) []string {
	replies := make([]string, 0, n)
	for i := len(s.ConversationHistory) - 1; i >= 0 && len(replies) < n; i-- {
		replies = append(replies, s.ConversationHistory[i].Agent)
	}
	return replies
}

// TurnCount is the number of caller utterances received so far.
func (s *CallSession) TurnCount() int {
	return len(s.TranscriptHistory)
}

// Duration is the time elapsed since the call started.
func (s *CallSession) Duration(now time.Time) time.Duration {
	return now.Sub(s.StartedAt)
}
