package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/ClareAI/astra-receptionist-service/internal/core/normalizer"
	"github.com/ClareAI/astra-receptionist-service/internal/core/schedule"
	"github.com/ClareAI/astra-receptionist-service/internal/domain"
)

var (
	availabilityPattern = regexp.MustCompile(`(?i)\b(available|availability|free|busy|calendar|open slot|schedule look)\b`)
	escalationPattern   = regexp.MustCompile(`(?i)\b(urgent|emergency|asap|right away|immediately|speak (?:to|with) (?:him|her|them|someone)|call me back)\b`)
	rejectionPattern    = regexp.MustCompile(`(?i)\b(wrong number|not interested|extended warranty|special offer|sales pitch|survey|unsubscribe)\b`)
)

// Rules is a deterministic Engine built on the transcript normalizer and the
// scheduling parser. It is used when no model endpoint is configured and as
// a reference engine in tests.
type Rules struct{}

var _ Engine = Rules{}

// NewRules creates the rule-based engine
func NewRules() Rules {
	return Rules{}
}

// DecideActions requests a contact lookup for a newly heard name, an email
// search for a newly heard purpose, a calendar check for availability
// questions and a booking for explicit scheduling requests.
func (Rules) DecideActions(_ context.Context, req DecisionRequest) ([]ActionCall, error) {
	var calls []ActionCall
	add := func(kind domain.ToolKind, args map[string]any) {
		raw, _ := json.Marshal(args)
		calls = append(calls, ActionCall{Name: string(kind), Arguments: string(raw)})
	}

	signals := normalizer.Extract(req.Utterance)
	if signals.Name != "" && req.Context.Contacts == nil {
		add(domain.ToolSearchContacts, map[string]any{"name": signals.Name})
	}
	if signals.Purpose != "" && req.Context.Emails == nil {
		add(domain.ToolSearchEmails, map[string]any{"query": signals.Purpose})
	}

	if meeting, ok := schedule.ExtractMeeting(req.Utterance); ok {
		if meeting.Who == "" {
			meeting.Who = req.Context.CallerName
		}
		if meeting.What == "" {
			meeting.What = req.Context.Purpose
		}
		add(domain.ToolScheduleMeeting, meeting.Args())
	} else if availabilityPattern.MatchString(req.Utterance) {
		if when := schedule.FindWhen(req.Utterance); when != "" {
			add(domain.ToolCheckCalendar, map[string]any{"date": when})
		}
	}

	return calls, nil
}

// GenerateReply answers from the facts already gathered for the call
func (Rules) GenerateReply(_ context.Context, req ReplyRequest) (string, error) {
	c := req.Context
	switch {
	case c.HasScheduledMeeting():
		return fmt.Sprintf("You're all set for %s. Is there anything else you need?", c.MeetingDetails.When), nil
	case c.MeetingError != "" && c.MeetingScheduled != nil:
		return "I'm sorry, I wasn't able to book that time. Could you suggest another time?", nil
	case c.CalendarAvailable != nil && *c.CalendarAvailable:
		return fmt.Sprintf("The calendar is open %s. Would you like me to book a time?", c.CalendarDate), nil
	case len(c.CalendarBusy) > 0:
		return fmt.Sprintf("There is already something booked %s. Would another time work?", c.CalendarDate), nil
	case c.CallerName != "" && c.Purpose != "":
		return fmt.Sprintf("Thanks, %s. I'll make sure the message about %s gets passed along. Is there anything else?", c.CallerName, c.Purpose), nil
	case c.Purpose != "":
		return fmt.Sprintf("Understood, this is about %s. May I have your name?", c.Purpose), nil
	case c.CallerName != "":
		return fmt.Sprintf("Thanks, %s. What is the call regarding?", c.CallerName), nil
	default:
		return "Could you tell me your name and what you're calling about?", nil
	}
}

// ClassifyOutcome labels the call from keywords in what the caller said
func (Rules) ClassifyOutcome(_ context.Context, req OutcomeRequest) (domain.CallOutcome, error) {
	if len(req.Transcript) == 0 {
		return domain.EmptyCallOutcome(), nil
	}

	text := strings.Join(req.Transcript, " ")
	summary := "Caller said: " + truncate(req.Transcript[0], 120)

	var outcome domain.CallOutcome
	switch {
	case rejectionPattern.MatchString(text):
		outcome = domain.CallOutcome{
			Decision:      domain.DecisionRejected,
			DecisionLabel: "Spam/Sales",
			Reasoning:     "Caller matched a sales or wrong-number phrase.",
			ActionTaken:   "Call declined.",
		}
	case escalationPattern.MatchString(text):
		outcome = domain.CallOutcome{
			Decision:      domain.DecisionEscalated,
			DecisionLabel: "Urgent",
			Reasoning:     "Caller asked for urgent or direct attention.",
			ActionTaken:   "Flagged for follow-up.",
		}
	case containsIntent(req.Transcript):
		outcome = domain.CallOutcome{
			Decision:      domain.DecisionScheduled,
			DecisionLabel: "Meeting requested",
			Reasoning:     "Caller asked for a meeting at a specific time.",
			ActionTaken:   "Meeting request recorded.",
		}
	default:
		outcome = domain.CallOutcome{
			Decision:      domain.DecisionHandled,
			DecisionLabel: "Information taken",
			Reasoning:     "No scheduling, urgency or spam signals.",
			ActionTaken:   "Message logged.",
		}
	}
	outcome.Summary = summary
	return outcome.Normalize(), nil
}

func containsIntent(lines []string) bool {
	for _, line := range lines {
		if schedule.DetectIntent(line) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
