// Package executor runs the actions chosen for a turn against the retrieval
// and calendar collaborators and folds their results into a context patch.
package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ClareAI/astra-receptionist-service/internal/config"
	"github.com/ClareAI/astra-receptionist-service/internal/core/schedule"
	"github.com/ClareAI/astra-receptionist-service/internal/domain"
	"github.com/ClareAI/astra-receptionist-service/internal/observability"
	"github.com/ClareAI/astra-receptionist-service/pkg/logger"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	// SearchLimit bounds contact and email lookups
	SearchLimit = 3
	// MaxEmailContent bounds the email body kept in context
	MaxEmailContent = 200

	dayLayout  = "Monday, January 02"
	slotLayout = "03:04 PM"
)

// ContactFinder looks up known contacts
type ContactFinder interface {
	FindContactsByName(ctx context.Context, name string, limit int) ([]domain.Contact, error)
}

// EmailSearcher finds emails related to a topic
type EmailSearcher interface {
	SearchEmailsBySimilarity(ctx context.Context, query string, limit int) ([]domain.EmailMatch, error)
}

// Calendar reads and books time on the connected calendar
type Calendar interface {
	ListBusySlots(ctx context.Context, dayStart, dayEnd time.Time) ([]domain.BusySlot, error)
	CreateMeeting(ctx context.Context, event domain.CalendarEvent) (string, error)
}

// Deps are the collaborators an Executor dispatches to. Any of them may be
// nil; the matching action then records an error instead of running.
type Deps struct {
	Contacts ContactFinder
	Emails   EmailSearcher
	Calendar Calendar
	Policy   config.PolicyProvider
	Metrics  *observability.Metrics
	Tracer   *observability.Tracer
	// Location is where spoken times are interpreted. Defaults to UTC.
	Location *time.Location
	Now      func() time.Time
}

// Result is the combined outcome of one turn's actions
type Result struct {
	Patch   domain.Context
	EndCall bool
}

// Executor dispatches tool requests
type Executor struct {
	deps Deps
}

// New creates an executor
func New(deps Deps) *Executor {
	if deps.Policy == nil {
		deps.Policy = config.NewStaticPolicy(nil)
	}
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Executor{deps: deps}
}

type outcome struct {
	patch   domain.Context
	endCall bool
}

// Execute runs every request concurrently and waits for all of them. The
// returned patch applies each action's result in request order, so a later
// request wins when two write the same field. Failures are recorded in the
// patch and never returned.
func (e *Executor) Execute(ctx context.Context, callID string, callCtx domain.Context, reqs []domain.ToolRequest) Result {
	if len(reqs) == 0 {
		return Result{}
	}
	policy := e.deps.Policy.Current()

	results := make([]outcome, len(reqs))
	var wg sync.WaitGroup
	for i, req := range reqs {
		wg.Add(1)
		go func(i int, req domain.ToolRequest) {
			defer wg.Done()
			results[i] = e.run(ctx, callID, callCtx, req, policy)
		}(i, req)
	}
	wg.Wait()

	var res Result
	for _, out := range results {
		res.Patch = res.Patch.Merge(out.patch)
		res.EndCall = res.EndCall || out.endCall
	}
	return res
}

func (e *Executor) run(ctx context.Context, callID string, callCtx domain.Context, req domain.ToolRequest, policy *config.Policy) (out outcome) {
	log := logger.ForCall(callID).With(zap.String("tool", string(req.Kind)))
	start := time.Now()

	ctx, span := e.deps.Tracer.Start(ctx, "tool."+string(req.Kind), callID, attribute.String("tool.kind", string(req.Kind)))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			log.Error("Action panicked", zap.Any("panic", r))
			out = outcome{patch: errorPatch(req.Kind, fmt.Sprintf("internal error: %v", r))}
			e.deps.Metrics.RecordToolExecution(string(req.Kind), "error", time.Since(start).Seconds())
		}
	}()

	if timeout := policy.Timeouts.Tool.Duration; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var err error
	switch req.Kind {
	case domain.ToolSearchContacts:
		out.patch, err = e.searchContacts(ctx, req)
	case domain.ToolSearchEmails:
		out.patch, err = e.searchEmails(ctx, req)
	case domain.ToolCheckCalendar:
		out.patch, err = e.checkCalendar(ctx, req, policy)
	case domain.ToolScheduleMeeting:
		out.patch, err = e.scheduleMeeting(ctx, callCtx, req, policy)
	case domain.ToolEndCall:
		out.patch, out.endCall = endCall(req, policy), true
	default:
		err = fmt.Errorf("unsupported action %s", req.Kind)
	}

	status := "success"
	if err != nil {
		status = "error"
		observability.RecordError(span, err)
		log.Warn("Action failed", zap.Error(err))
	}
	e.deps.Metrics.RecordToolExecution(string(req.Kind), status, time.Since(start).Seconds())
	return out
}

func (e *Executor) searchContacts(ctx context.Context, req domain.ToolRequest) (domain.Context, error) {
	name := strings.TrimSpace(req.StringArg("name"))
	if name == "" {
		return fail(domain.ToolSearchContacts, errors.New("search_contacts requires a name"))
	}
	if e.deps.Contacts == nil {
		return fail(domain.ToolSearchContacts, errors.New("contact search unavailable"))
	}

	contacts, err := e.deps.Contacts.FindContactsByName(ctx, name, SearchLimit)
	if err != nil {
		return fail(domain.ToolSearchContacts, fmt.Errorf("failed to search contacts: %w", err))
	}
	if len(contacts) > SearchLimit {
		contacts = contacts[:SearchLimit]
	}
	if contacts == nil {
		contacts = []domain.Contact{}
	}
	return domain.Context{Contacts: contacts}, nil
}

func (e *Executor) searchEmails(ctx context.Context, req domain.ToolRequest) (domain.Context, error) {
	query := strings.TrimSpace(req.StringArg("query"))
	if query == "" {
		return fail(domain.ToolSearchEmails, errors.New("search_emails requires a query"))
	}
	if e.deps.Emails == nil {
		return fail(domain.ToolSearchEmails, errors.New("email search unavailable"))
	}

	emails, err := e.deps.Emails.SearchEmailsBySimilarity(ctx, query, SearchLimit)
	if err != nil {
		return fail(domain.ToolSearchEmails, fmt.Errorf("failed to search emails: %w", err))
	}
	if len(emails) > SearchLimit {
		emails = emails[:SearchLimit]
	}
	trimmed := make([]domain.EmailMatch, len(emails))
	for i, m := range emails {
		m.Content = truncate(m.Content, MaxEmailContent)
		trimmed[i] = m
	}
	return domain.Context{Emails: trimmed}, nil
}

func (e *Executor) checkCalendar(ctx context.Context, req domain.ToolRequest, policy *config.Policy) (domain.Context, error) {
	date := strings.TrimSpace(req.StringArg("date"))
	if date == "" {
		return fail(domain.ToolCheckCalendar, errors.New("check_calendar requires a date"))
	}
	if e.deps.Calendar == nil {
		return fail(domain.ToolCheckCalendar, domain.ErrCalendarNotConnected)
	}

	day, ok := schedule.Parse(date, e.now(), policy.Meeting.DefaultHour)
	if !ok {
		return fail(domain.ToolCheckCalendar, fmt.Errorf("Could not understand date: %s", date))
	}
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	slots, err := e.deps.Calendar.ListBusySlots(ctx, dayStart, dayEnd)
	if err != nil {
		return fail(domain.ToolCheckCalendar, calendarError(ctx, err, "Failed to read calendar"))
	}

	patch := domain.Context{CalendarDate: dayStart.Format(dayLayout)}
	if len(slots) == 0 {
		patch.CalendarAvailable = domain.Bool(true)
		return patch, nil
	}
	busy := make([]string, len(slots))
	for i, slot := range slots {
		busy[i] = formatSlot(slot, e.deps.Location)
	}
	patch.CalendarBusy = busy
	patch.CalendarAvailable = domain.Bool(false)
	return patch, nil
}

func (e *Executor) scheduleMeeting(ctx context.Context, callCtx domain.Context, req domain.ToolRequest, policy *config.Policy) (domain.Context, error) {
	when := strings.TrimSpace(req.StringArg("when"))
	if when == "" {
		return fail(domain.ToolScheduleMeeting, errors.New("schedule_meeting requires a time"))
	}
	if e.deps.Calendar == nil {
		return fail(domain.ToolScheduleMeeting, domain.ErrCalendarNotConnected)
	}

	start, ok := schedule.Parse(when, e.now(), policy.Meeting.DefaultHour)
	if !ok {
		return fail(domain.ToolScheduleMeeting, fmt.Errorf("Could not understand time: %s", when))
	}

	what := firstNonEmpty(strings.TrimSpace(req.StringArg("what")), policy.Meeting.DefaultWhat, "Meeting")
	who := firstNonEmpty(strings.TrimSpace(req.StringArg("who")), callCtx.CallerName, "caller")
	duration := policy.Meeting.Duration.Duration
	if duration <= 0 {
		duration = 30 * time.Minute
	}

	event := domain.CalendarEvent{
		Title:       fmt.Sprintf("%s with %s", what, who),
		Description: fmt.Sprintf("Scheduled via phone call with %s", who),
		Start:       start,
		End:         start.Add(duration),
	}
	if email := attendeeEmail(callCtx.Contacts, who); email != "" {
		event.Attendees = []string{email}
	}

	link, err := e.deps.Calendar.CreateMeeting(ctx, event)
	if err != nil {
		return fail(domain.ToolScheduleMeeting, calendarError(ctx, err, "Failed to create event"))
	}

	return domain.Context{
		MeetingScheduled: domain.Bool(true),
		MeetingDetails: &domain.MeetingDetails{
			What: what,
			Who:  who,
			When: schedule.Format(start),
			Link: link,
		},
	}, nil
}

func endCall(req domain.ToolRequest, policy *config.Policy) domain.Context {
	message := strings.TrimSpace(req.StringArg("message"))
	if message == "" {
		message = policy.Lines.EndCall
	}
	return domain.Context{EndCallMessage: message}
}

func (e *Executor) now() time.Time {
	return e.deps.Now().In(e.deps.Location)
}

// fail records err under the failure key of kind and returns it for logging
func fail(kind domain.ToolKind, err error) (domain.Context, error) {
	return errorPatch(kind, err.Error()), err
}

func errorPatch(kind domain.ToolKind, msg string) domain.Context {
	switch kind {
	case domain.ToolSearchContacts:
		return domain.Context{ContactsError: msg}
	case domain.ToolSearchEmails:
		return domain.Context{EmailsError: msg}
	case domain.ToolCheckCalendar:
		return domain.Context{CalendarError: msg}
	case domain.ToolScheduleMeeting:
		return domain.Context{MeetingScheduled: domain.Bool(false), MeetingError: msg}
	default:
		return domain.Context{}
	}
}

func calendarError(ctx context.Context, err error, generic string) error {
	if errors.Is(err, domain.ErrCalendarNotConnected) {
		return domain.ErrCalendarNotConnected
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: timed out", generic)
	}
	logger.Debug(ctx, "Calendar call failed", zap.Error(err))
	return errors.New(generic)
}

func formatSlot(slot domain.BusySlot, loc *time.Location) string {
	text := fmt.Sprintf("%s - %s", slot.Start.In(loc).Format(slotLayout), slot.End.In(loc).Format(slotLayout))
	if slot.Title != "" {
		text += " (" + slot.Title + ")"
	}
	return text
}

func attendeeEmail(contacts []domain.Contact, who string) string {
	for _, c := range contacts {
		if c.Email != "" && strings.EqualFold(c.Name, who) {
			return c.Email
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
