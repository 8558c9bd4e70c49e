package prompts

import (
	"testing"

	"github.com/ClareAI/astra-receptionist-service/internal/config"
	"github.com/ClareAI/astra-receptionist-service/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestPersonaPromptInjectsBusiness(t *testing.T) {
	b := NewBuilder(config.DefaultPolicy(), config.BusinessInfo{
		CEOName:     "Harvey Specter",
		CompanyName: "Pearson Specter",
	})

	prompt := b.PersonaPrompt()
	assert.Contains(t, prompt, "You are Donna")
	assert.Contains(t, prompt, "You work for Harvey Specter. The company is Pearson Specter.")
}

func TestPersonaPromptWithoutBusiness(t *testing.T) {
	b := NewBuilder(nil, config.BusinessInfo{})
	assert.NotContains(t, b.PersonaPrompt(), "You work for")
}

func TestReplyPromptIncludesGatheredFacts(t *testing.T) {
	b := NewBuilder(config.DefaultPolicy(), config.BusinessInfo{})
	callCtx := domain.Context{
		CallerName: "Mike Ross",
		Purpose:    "the Q3 contract",
		Contacts:   []domain.Contact{{Name: "Mike Ross", Email: "mike@example.com", Company: "Acme"}},
		Emails: []domain.EmailMatch{
			{Sender: "a@example.com", Subject: "one"},
			{Sender: "b@example.com", Subject: "two"},
			{Sender: "c@example.com", Subject: "three"},
			{Sender: "d@example.com", Subject: "four"},
		},
		EmailsError:  "",
		MeetingError: "Could not understand time: someday",
	}

	prompt := b.ReplyPrompt(callCtx)
	assert.Contains(t, prompt, "- Name: Mike Ross")
	assert.Contains(t, prompt, "Known contacts:\n- Mike Ross: mike@example.com (Acme)")
	assert.Contains(t, prompt, "- From c@example.com: three")
	assert.NotContains(t, prompt, "four")
	assert.Contains(t, prompt, "meeting: Could not understand time: someday")
}

func TestAcknowledgment(t *testing.T) {
	b := NewBuilder(config.DefaultPolicy(), config.BusinessInfo{})

	booked := domain.Context{
		MeetingScheduled: domain.Bool(true),
		MeetingDetails:   &domain.MeetingDetails{When: "Monday, January 05 at 02:00 PM"},
	}
	assert.Equal(t, "You're all set for Monday, January 05 at 02:00 PM. Is there anything else you need?", b.Acknowledgment(booked, true))

	failed := domain.Context{MeetingScheduled: domain.Bool(false), MeetingError: "Failed to create event"}
	assert.Equal(t, b.Policy.Lines.MeetingFailed, b.Acknowledgment(failed, true))

	named := domain.Context{CallerName: "Rachel"}
	assert.Equal(t, "Thanks, Rachel. Is there anything else you need?", b.Acknowledgment(named, true))
	assert.Equal(t, "Got it. Is there anything else you need?", b.Acknowledgment(named, false))
}

func TestOutcomeTranscript(t *testing.T) {
	assert.Equal(t, "Here is the call transcript:\n\nhi\nbye", OutcomeTranscript([]string{"hi", "bye"}))
}
