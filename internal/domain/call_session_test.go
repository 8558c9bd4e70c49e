package domain_test

import (
	"testing"
	"time"

	"github.com/ClareAI/astra-receptionist-service/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestCallStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to domain.CallStatus
		want     bool
	}{
		{domain.CallStatusInitiated, domain.CallStatusInProgress, true},
		{domain.CallStatusInProgress, domain.CallStatusInProgress, true},
		{domain.CallStatusInProgress, domain.CallStatusCompleted, true},
		{domain.CallStatusInitiated, domain.CallStatusFailed, true},
		{domain.CallStatusInProgress, domain.CallStatusInitiated, false},
		{domain.CallStatusCompleted, domain.CallStatusInProgress, false},
		{domain.CallStatusFailed, domain.CallStatusCompleted, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.from.CanTransition(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestRecentHistoryAndReplies(t *testing.T) {
	s := domain.NewCallSession("C1", "+15551234567", time.Now())
	for _, reply := range []string{"one", "two", "three", "four", "five", "six", "seven"} {
		s.ConversationHistory = append(s.ConversationHistory, domain.Exchange{Caller: "q", Agent: reply})
	}

	history := s.RecentHistory(5)
	assert.Len(t, history, 5)
	assert.Equal(t, "three", history[0].Agent)
	assert.Equal(t, "seven", history[4].Agent)
	assert.Len(t, s.ConversationHistory, 7)

	assert.Equal(t, []string{"seven", "six"}, s.RecentReplies(2))
}

func TestNewCallRecordCarriesContext(t *testing.T) {
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	s := domain.NewCallSession("C1", "+15551234567", start)
	s.TranscriptHistory = []string{"Hi, this is Alice", "thanks, bye"}
	s.Context = s.Context.Merge(domain.Context{
		CallerName: "Alice",
		Contacts:   []domain.Contact{{Name: "Alice"}, {Name: "Alice Smith", Company: "Acme"}},
	})

	record := domain.NewCallRecord(s, domain.EmptyCallOutcome(), "completed", 0, start.Add(90*time.Second))

	assert.Equal(t, "C1", record.CallSID)
	assert.Equal(t, "Alice", record.IdentifiedName)
	assert.Equal(t, "Acme", record.Company)
	assert.Equal(t, 90, record.DurationSeconds)
	assert.Equal(t, domain.DecisionRejected, record.Decision)
	assert.Len(t, record.Transcript, 2)
}

func TestOutcomeNormalize(t *testing.T) {
	o := domain.CallOutcome{Decision: "maybe"}.Normalize()
	assert.Equal(t, domain.DecisionHandled, o.Decision)
	assert.Equal(t, "No summary available", o.Summary)
	assert.Equal(t, "Call processed", o.DecisionLabel)
}
