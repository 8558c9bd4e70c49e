package prompts

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/ClareAI/astra-receptionist-service/internal/config"
	"github.com/ClareAI/astra-receptionist-service/internal/domain"
)

// Builder renders prompts and canned lines from a policy snapshot. A Builder
// is cheap and is created per turn so policy reloads apply on the next turn.
type Builder struct {
	Policy   *config.Policy
	Business config.BusinessInfo
}

// NewBuilder creates a prompt builder for one policy snapshot
func NewBuilder(policy *config.Policy, business config.BusinessInfo) *Builder {
	if policy == nil {
		policy = config.DefaultPolicy()
	}
	return &Builder{Policy: policy, Business: business}
}

// templateData is the set of values available to policy templates
type templateData struct {
	AgentName          string
	CEOName            string
	CompanyName        string
	CompanyDescription string
	CallerName         string
	MeetingWhen        string
}

func (b *Builder) data() templateData {
	return templateData{
		AgentName:          b.Policy.Persona.AgentName,
		CEOName:            b.Business.CEOName,
		CompanyName:        b.Business.CompanyName,
		CompanyDescription: b.Business.CompanyDescription,
	}
}

// PersonaPrompt is the system prompt with business information injected
func (b *Builder) PersonaPrompt() string {
	return joinBlocks(
		b.render("system", b.Policy.Prompts.System, b.data()),
		b.businessBlock(),
	)
}

// DecisionPrompt is the system prompt used when choosing actions
func (b *Builder) DecisionPrompt() string {
	return joinBlocks(
		b.PersonaPrompt(),
		b.render("tool_guidance", b.Policy.Prompts.ToolGuidance, b.data()),
	)
}

// ReplyPrompt is the system prompt used for the spoken reply. Gathered facts
// are appended so the engine can ground its answer.
func (b *Builder) ReplyPrompt(callCtx domain.Context) string {
	rules := b.render("reply", b.Policy.Prompts.Reply, b.data())
	if rules == "" {
		rules = PromptRulesFallback
	}
	return joinBlocks(
		b.PersonaPrompt(),
		rules,
		callerBlock(callCtx),
		contactsBlock(callCtx.Contacts),
		emailsBlock(callCtx.Emails),
		calendarBlock(callCtx),
		meetingBlock(callCtx),
		issuesBlock(callCtx),
	)
}

// OutcomePrompt is the system prompt used for post-call classification
func (b *Builder) OutcomePrompt() string {
	return joinBlocks(
		b.PersonaPrompt(),
		b.render("outcome", b.Policy.Prompts.Outcome, b.data()),
	)
}

// OutcomeTranscript formats the transcript handed to outcome classification
func OutcomeTranscript(transcript []string) string {
	return OutcomeTranscriptIntro + strings.Join(transcript, "\n")
}

// Greeting returns the opening line
func (b *Builder) Greeting() string {
	return b.render("greeting", b.Policy.Lines.Greeting, b.data())
}

// CallerAcknowledge thanks a caller by name
func (b *Builder) CallerAcknowledge(name string) string {
	data := b.data()
	data.CallerName = name
	return b.render("caller_acknowledge", b.Policy.Lines.CallerAcknowledge, data)
}

// MeetingConfirmed confirms a booked meeting
func (b *Builder) MeetingConfirmed(when string) string {
	data := b.data()
	data.MeetingWhen = when
	return b.render("meeting_confirmed", b.Policy.Lines.MeetingConfirmed, data)
}

// Acknowledgment picks the line spoken when the engine produced nothing usable
// or tried to greet again: a meeting confirmation, a meeting failure apology,
// a thanks by name, or the generic acknowledgment.
func (b *Builder) Acknowledgment(callCtx domain.Context, useName bool) string {
	switch {
	case callCtx.HasScheduledMeeting() && callCtx.MeetingDetails != nil:
		return b.MeetingConfirmed(callCtx.MeetingDetails.When)
	case callCtx.MeetingError != "" && b.Policy.Lines.MeetingFailed != "":
		return b.Policy.Lines.MeetingFailed
	case useName && callCtx.CallerName != "":
		return b.CallerAcknowledge(callCtx.CallerName)
	default:
		return b.Policy.Lines.Acknowledge
	}
}

func (b *Builder) businessBlock() string {
	if b.Business.CEOName == "" {
		return ""
	}
	return b.render("business", b.Policy.Prompts.Business, b.data())
}

func (b *Builder) render(name, tmplStr string, data templateData) string {
	if tmplStr == "" {
		return ""
	}
	tmpl, err := template.New(name).Option("missingkey=zero").Parse(tmplStr)
	if err != nil {
		return replaceVariables(tmplStr, data)
	}

	var result strings.Builder
	if err := tmpl.Execute(&result, data); err != nil {
		return replaceVariables(tmplStr, data)
	}
	return strings.TrimSpace(result.String())
}

func replaceVariables(tmpl string, data templateData) string {
	return strings.NewReplacer(
		"{{.AgentName}}", data.AgentName,
		"{{.CEOName}}", data.CEOName,
		"{{.CompanyName}}", data.CompanyName,
		"{{.CompanyDescription}}", data.CompanyDescription,
		"{{.CallerName}}", data.CallerName,
		"{{.MeetingWhen}}", data.MeetingWhen,
	).Replace(tmpl)
}

func callerBlock(c domain.Context) string {
	var lines []string
	if c.CallerName != "" {
		lines = append(lines, "- Name: "+c.CallerName)
	}
	if c.Purpose != "" {
		lines = append(lines, "- Purpose: "+c.Purpose)
	}
	return section(SectionCaller, lines)
}

func contactsBlock(contacts []domain.Contact) string {
	lines := make([]string, 0, len(contacts))
	for _, c := range contacts {
		lines = append(lines, fmt.Sprintf("- %s: %s (%s)", orDefault(c.Name, "Unknown"), c.Email, c.Company))
	}
	return section(SectionContacts, lines)
}

func emailsBlock(emails []domain.EmailMatch) string {
	if len(emails) > MaxPromptEmails {
		emails = emails[:MaxPromptEmails]
	}
	lines := make([]string, 0, len(emails))
	for _, e := range emails {
		lines = append(lines, fmt.Sprintf("- From %s: %s", orDefault(e.Sender, "Unknown"), orDefault(e.Subject, "No subject")))
	}
	return section(SectionEmails, lines)
}

func calendarBlock(c domain.Context) string {
	if c.CalendarDate == "" {
		return ""
	}
	if c.CalendarAvailable != nil && *c.CalendarAvailable {
		return section(SectionCalendar, []string{fmt.Sprintf("- %s is completely free", c.CalendarDate)})
	}
	lines := []string{fmt.Sprintf("- Busy on %s:", c.CalendarDate)}
	for _, slot := range c.CalendarBusy {
		lines = append(lines, "  - "+slot)
	}
	return section(SectionCalendar, lines)
}

func meetingBlock(c domain.Context) string {
	if !c.HasScheduledMeeting() || c.MeetingDetails == nil {
		return ""
	}
	d := c.MeetingDetails
	return section(SectionMeeting, []string{fmt.Sprintf("- Booked %q with %s for %s", d.What, d.Who, d.When)})
}

func issuesBlock(c domain.Context) string {
	var lines []string
	for _, issue := range []struct{ label, err string }{
		{"contacts", c.ContactsError},
		{"emails", c.EmailsError},
		{"calendar", c.CalendarError},
		{"meeting", c.MeetingError},
	} {
		if issue.err != "" {
			lines = append(lines, fmt.Sprintf("- %s: %s", issue.label, issue.err))
		}
	}
	return section(SectionIssues, lines)
}

func section(header string, lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return header + "\n" + strings.Join(lines, "\n")
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// joinBlocks cleans and joins multiple prompt blocks with double newlines.
// It trims whitespace from each block and skips empty ones.
func joinBlocks(blocks ...string) string {
	var validBlocks []string
	for _, b := range blocks {
		trimmed := strings.TrimSpace(b)
		if trimmed != "" {
			validBlocks = append(validBlocks, trimmed)
		}
	}
	return strings.Join(validBlocks, "\n\n")
}
