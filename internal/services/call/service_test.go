package call

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ClareAI/astra-receptionist-service/internal/config"
	"github.com/ClareAI/astra-receptionist-service/internal/core/engine"
	"github.com/ClareAI/astra-receptionist-service/internal/core/event"
	"github.com/ClareAI/astra-receptionist-service/internal/core/executor"
	"github.com/ClareAI/astra-receptionist-service/internal/core/reply"
	"github.com/ClareAI/astra-receptionist-service/internal/core/session"
	"github.com/ClareAI/astra-receptionist-service/internal/core/tool"
	"github.com/ClareAI/astra-receptionist-service/internal/domain"
	"github.com/ClareAI/astra-receptionist-service/pkg/pubsub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var policy = config.DefaultPolicy()

type fakeDecider struct {
	mu    sync.Mutex
	calls int
	reqs  []domain.ToolRequest
}

func (f *fakeDecider) Decide(ctx context.Context, in tool.DecisionInput) []domain.ToolRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.reqs
}

type fakeExecutor struct {
	result executor.Result
	seen   []domain.ToolRequest
}

func (f *fakeExecutor) Execute(ctx context.Context, callID string, callCtx domain.Context, reqs []domain.ToolRequest) executor.Result {
	f.seen = reqs
	return f.result
}

type fakeResponder struct {
	out    reply.Reply
	calls  int
	before func()
}

func (f *fakeResponder) Reply(ctx context.Context, in reply.Input) reply.Reply {
	f.calls++
	if f.before != nil {
		f.before()
	}
	return f.out
}

type recordStore struct {
	mu      sync.Mutex
	records []*domain.CallRecord
	err     error
}

func (r *recordStore) Save(ctx context.Context, record *domain.CallRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
	return r.err
}

func (r *recordStore) UpdateDuration(ctx context.Context, callSID string, seconds int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, record := range r.records {
		if record.CallSID == callSID {
			record.DurationSeconds = seconds
			return nil
		}
	}
	return domain.ErrNotFound
}

func (r *recordStore) all() []*domain.CallRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*domain.CallRecord{}, r.records...)
}

type fakeArchive struct{}

func (fakeArchive) ArchiveCall(ctx context.Context, record *domain.CallRecord) (string, error) {
	return "gs://calls/" + record.CallSID + ".json", nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []pubsub.CallOutcomeEvent
}

func (p *fakePublisher) PublishCallOutcome(ctx context.Context, e pubsub.CallOutcomeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

type failingEngine struct {
	engine.Rules
}

func (failingEngine) ClassifyOutcome(context.Context, engine.OutcomeRequest) (domain.CallOutcome, error) {
	return domain.CallOutcome{}, errors.New("model unavailable")
}

// gatedEngine holds call classification until release is closed
type gatedEngine struct {
	engine.Rules
	entered chan struct{}
	release chan struct{}
}

func (g gatedEngine) ClassifyOutcome(ctx context.Context, req engine.OutcomeRequest) (domain.CallOutcome, error) {
	close(g.entered)
	<-g.release
	return g.Rules.ClassifyOutcome(ctx, req)
}

// stuckEngine answers every turn with the same opening line
type stuckEngine struct {
	engine.Rules
}

func (stuckEngine) GenerateReply(context.Context, engine.ReplyRequest) (string, error) {
	return "How can I help you?", nil
}

type unavailableCalendar struct{}

func (unavailableCalendar) ListBusySlots(context.Context, time.Time, time.Time) ([]domain.BusySlot, error) {
	return nil, nil
}

func (unavailableCalendar) CreateMeeting(context.Context, domain.CalendarEvent) (string, error) {
	return "", errors.New("calendar returned 503")
}

type contactBook struct{}

func (contactBook) FindContactsByName(ctx context.Context, name string, limit int) ([]domain.Contact, error) {
	return []domain.Contact{{Name: name, Email: "mike@pearson.com", Company: "Pearson"}}, nil
}

type harness struct {
	svc       *Service
	store     *session.Store
	decider   *fakeDecider
	executor  *fakeExecutor
	responder *fakeResponder
	records   *recordStore
}

func newHarness(t *testing.T, mutate func(*Deps)) *harness {
	t.Helper()
	h := &harness{
		store:     session.NewStore(),
		decider:   &fakeDecider{},
		executor:  &fakeExecutor{},
		responder: &fakeResponder{out: reply.Reply{Text: "Thanks, I'll let him know."}},
		records:   &recordStore{},
	}
	deps := Deps{
		Store:     h.store,
		Decider:   h.decider,
		Executor:  h.executor,
		Responder: h.responder,
		Records:   h.records,
	}
	if mutate != nil {
		mutate(&deps)
	}
	svc, err := NewService(deps)
	require.NoError(t, err)
	h.svc = svc
	return h
}

func TestNewServiceRequiresCollaborators(t *testing.T) {
	_, err := NewService(Deps{})
	assert.Error(t, err)
	_, err = NewService(Deps{Store: session.NewStore()})
	assert.Error(t, err)
}

func TestHandleCallStartGreetsOnce(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	first := h.svc.HandleCallStart(ctx, "CA1", "+15550001111")
	assert.Equal(t, Instruction{
		Action:  ActionListen,
		Say:     policy.Lines.Greeting,
		Prompt:  "Please go ahead.",
		NoInput: "I didn't hear anything. Goodbye.",
	}, first)

	second := h.svc.HandleCallStart(ctx, "CA1", "+15550001111")
	assert.Empty(t, second.Say)
	assert.Equal(t, ActionListen, second.Action)

	sess, err := h.store.Get("CA1")
	require.NoError(t, err)
	assert.True(t, sess.Context.IsGreeted())
	assert.Equal(t, 1, h.store.Len())
}

func TestHandleSpeechUnknownCall(t *testing.T) {
	h := newHarness(t, nil)

	out, err := h.svc.HandleSpeech(context.Background(), "CA404", "Hello?", 0.9)
	require.NoError(t, err)
	assert.Equal(t, SpeakHangup("I'm sorry, there was an error. Goodbye."), out)
	assert.Zero(t, h.decider.calls)
}

func TestHandleSpeechEmptyUtterance(t *testing.T) {
	h := newHarness(t, nil)
	h.svc.HandleCallStart(context.Background(), "CA1", "+1555")

	out, err := h.svc.HandleSpeech(context.Background(), "CA1", "   ", 0)
	require.NoError(t, err)
	assert.Equal(t, SpeakListen("I didn't catch that. Could you please repeat?"), out)
	assert.Zero(t, h.decider.calls)

	sess, _ := h.store.Get("CA1")
	assert.Empty(t, sess.TranscriptHistory)
	assert.Equal(t, domain.CallStatusInitiated, sess.Status)
}

func TestHandleSpeechFarewellSkipsEngine(t *testing.T) {
	h := newHarness(t, nil)
	h.svc.HandleCallStart(context.Background(), "CA1", "+1555")

	out, err := h.svc.HandleSpeech(context.Background(), "CA1", "Okay, bye!", 0.8)
	require.NoError(t, err)
	assert.Equal(t, SpeakHangup("Thank you for calling. Goodbye!"), out)
	assert.Zero(t, h.decider.calls)
	assert.Zero(t, h.responder.calls)

	h.svc.Wait()
	records := h.records.all()
	require.Len(t, records, 1)
	assert.Equal(t, "completed", records[0].Status)
	assert.Equal(t, domain.StringList{"Okay, bye!"}, records[0].Transcript)
	require.Len(t, records[0].Conversation, 1)
	assert.Equal(t, "Thank you for calling. Goodbye!", records[0].Conversation[0].Agent)
	assert.Zero(t, h.store.Len())
}

func TestHandleSpeechRunsFullTurn(t *testing.T) {
	h := newHarness(t, nil)
	h.decider.reqs = []domain.ToolRequest{{Kind: domain.ToolSearchContacts, Args: map[string]any{"name": "Mike Ross"}}}
	h.executor.result = executor.Result{Patch: domain.Context{
		Contacts: []domain.Contact{{Name: "Mike Ross", Company: "Pearson"}},
	}}
	h.svc.HandleCallStart(context.Background(), "CA1", "+1555")

	out, err := h.svc.HandleSpeech(context.Background(), "CA1", "Hi, this is Mike Ross calling about the contract.", 0.93)
	require.NoError(t, err)
	assert.Equal(t, Instruction{
		Action:   ActionListen,
		Say:      "Thanks, I'll let him know.",
		FollowUp: "Is there anything else I can help you with?",
	}, out)
	assert.Equal(t, h.decider.reqs, h.executor.seen)

	sess, err := h.store.Get("CA1")
	require.NoError(t, err)
	assert.Equal(t, domain.CallStatusInProgress, sess.Status)
	assert.Equal(t, []string{"Hi, this is Mike Ross calling about the contract."}, sess.TranscriptHistory)
	assert.Equal(t, "Mike Ross", sess.Context.CallerName)
	assert.Equal(t, "the contract", sess.Context.Purpose)
	assert.Equal(t, "Pearson", sess.Context.FirstCompany())
	require.Len(t, sess.ConversationHistory, 1)
	assert.Equal(t, "Thanks, I'll let him know.", sess.ConversationHistory[0].Agent)
}

func TestHandleSpeechEndCallAction(t *testing.T) {
	h := newHarness(t, nil)
	h.decider.reqs = []domain.ToolRequest{{Kind: domain.ToolEndCall}}
	h.executor.result = executor.Result{
		Patch:   domain.Context{EndCallMessage: "Goodbye, Mike."},
		EndCall: true,
	}
	h.svc.HandleCallStart(context.Background(), "CA1", "+1555")

	out, err := h.svc.HandleSpeech(context.Background(), "CA1", "I think we're done here, thanks for the help", 0.9)
	require.NoError(t, err)
	assert.Equal(t, SpeakHangup("Goodbye, Mike."), out)
	assert.Zero(t, h.responder.calls)

	h.svc.Wait()
	require.Len(t, h.records.all(), 1)
}

func TestHandleSpeechLoopGuardEndsCall(t *testing.T) {
	h := newHarness(t, nil)
	h.responder.out = reply.Reply{Text: policy.Lines.LoopTermination, Terminate: true, Reason: reply.ReasonLoop}
	h.svc.HandleCallStart(context.Background(), "CA1", "+1555")

	out, err := h.svc.HandleSpeech(context.Background(), "CA1", "What did you say about the filing deadline", 0.9)
	require.NoError(t, err)
	assert.Equal(t, SpeakHangup(policy.Lines.LoopTermination), out)

	h.svc.Wait()
	assert.Zero(t, h.store.Len())
}

func TestHandleSpeechCancelledTurnIsDiscarded(t *testing.T) {
	h := newHarness(t, nil)
	h.decider.reqs = []domain.ToolRequest{{Kind: domain.ToolSearchContacts, Args: map[string]any{"name": "Mike"}}}
	h.executor.result = executor.Result{Patch: domain.Context{Contacts: []domain.Contact{{Name: "Mike"}}}}
	h.svc.HandleCallStart(context.Background(), "CA1", "+1555")

	ctx, cancel := context.WithCancel(context.Background())
	h.responder.before = cancel

	_, err := h.svc.HandleSpeech(ctx, "CA1", "Hi, it's Mike calling about the lease", 0.9)
	assert.ErrorIs(t, err, context.Canceled)

	sess, err := h.store.Get("CA1")
	require.NoError(t, err)
	assert.Empty(t, sess.TranscriptHistory)
	assert.Empty(t, sess.ConversationHistory)
	assert.Nil(t, sess.Context.Contacts)
	assert.Empty(t, sess.Context.CallerName)
	assert.Equal(t, domain.CallStatusInitiated, sess.Status)
}

func TestHandleCallStatusFinalizesOnce(t *testing.T) {
	publisher := &fakePublisher{}
	h := newHarness(t, func(d *Deps) {
		d.Archive = fakeArchive{}
		d.Outcomes = publisher
	})
	ctx := context.Background()
	h.svc.HandleCallStart(ctx, "CA1", "+15550001111")

	require.NoError(t, h.svc.HandleCallStatus(ctx, "CA1", "in-progress", 0))
	assert.Equal(t, 1, h.store.Len())

	require.NoError(t, h.svc.HandleCallStatus(ctx, "CA1", "no-answer", 0))
	require.NoError(t, h.svc.HandleCallStatus(ctx, "CA1", "completed", 12))

	records := h.records.all()
	require.Len(t, records, 1)
	record := records[0]
	assert.NotEmpty(t, record.ID)
	assert.Equal(t, "no-answer", record.Status)
	assert.Equal(t, domain.DecisionRejected, record.Decision)
	assert.Equal(t, "Empty call", record.Summary)
	assert.Equal(t, "gs://calls/CA1.json", record.ArchiveURL)

	require.Len(t, publisher.events, 1)
	assert.Equal(t, "CA1", publisher.events[0].CallSID)
	assert.Equal(t, "rejected", publisher.events[0].Decision)
}

func TestFinalizeWithFailedAnalysis(t *testing.T) {
	h := newHarness(t, func(d *Deps) { d.Engine = failingEngine{} })
	ctx := context.Background()
	h.svc.HandleCallStart(ctx, "CA1", "+1555")
	_, err := h.svc.HandleSpeech(ctx, "CA1", "I wanted to ask about the invoice from March", 0.9)
	require.NoError(t, err)

	require.NoError(t, h.svc.HandleCallStatus(ctx, "CA1", "completed", 30))
	records := h.records.all()
	require.Len(t, records, 1)
	assert.Equal(t, domain.DecisionHandled, records[0].Decision)
	assert.Equal(t, "Failed to analyze call", records[0].Summary)
	assert.Equal(t, "Processing Error", records[0].DecisionLabel)
	assert.Equal(t, 30, records[0].DurationSeconds)
}

func TestFinalizeKeepsGoingWhenSaveFails(t *testing.T) {
	bus := event.NewEventBus()
	defer bus.Close()
	ended := make(chan *event.CallEvent, 1)
	_, err := bus.Subscribe(event.CallEnded, func(e *event.CallEvent) { ended <- e })
	require.NoError(t, err)

	h := newHarness(t, func(d *Deps) { d.Bus = bus })
	h.records.err = errors.New("db down")
	ctx := context.Background()
	h.svc.HandleCallStart(ctx, "CA1", "+1555")

	require.NoError(t, h.svc.HandleCallStatus(ctx, "CA1", "failed", 0))
	assert.Zero(t, h.store.Len())

	select {
	case e := <-ended:
		assert.Equal(t, "CA1", e.CallID)
		assert.True(t, e.IsError())
		data, ok := e.GetCallEndedData()
		require.True(t, ok)
		assert.Equal(t, "failed", data.Status)
	case <-time.After(time.Second):
		t.Fatal("call ended event not delivered")
	}
}

func TestSweepStaleEndsIdleCalls(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	store := session.NewStore(session.WithClock(func() time.Time { return now }))
	h := newHarness(t, func(d *Deps) { d.Store = store })
	h.store = store
	ctx := context.Background()

	h.svc.HandleCallStart(ctx, "CA-old", "+1555")
	now = now.Add(10 * time.Minute)
	h.svc.HandleCallStart(ctx, "CA-new", "+1666")

	assert.Equal(t, 1, h.svc.SweepStale(ctx, 5*time.Minute))
	assert.Equal(t, 1, store.Len())

	records := h.records.all()
	require.Len(t, records, 1)
	assert.Equal(t, "CA-old", records[0].CallSID)
	assert.Equal(t, "failed", records[0].Status)
}

type hangupRecorder struct {
	mu     sync.Mutex
	callID []string
}

func (h *hangupRecorder) Hangup(callSID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.callID = append(h.callID, callSID)
	return nil
}

func TestSweepStaleHangsUpEndedCalls(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	store := session.NewStore(session.WithClock(func() time.Time { return now }))
	hangups := &hangupRecorder{}
	h := newHarness(t, func(d *Deps) {
		d.Store = store
		d.Telephony = hangups
	})
	ctx := context.Background()

	h.svc.HandleCallStart(ctx, "CA-old", "+1555")
	now = now.Add(10 * time.Minute)

	assert.Equal(t, 1, h.svc.SweepStale(ctx, 5*time.Minute))
	assert.Equal(t, []string{"CA-old"}, hangups.callID)
}

func TestStartSweeperRejectsBadSchedule(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.svc.StartSweeper(context.Background(), "not a schedule", time.Minute)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c, err := h.svc.StartSweeper(ctx, "@every 1h", time.Minute)
	require.NoError(t, err)
	assert.Len(t, c.Entries(), 1)
}

func TestTurnPublishesTranscriptEvents(t *testing.T) {
	bus := event.NewEventBus()
	defer bus.Close()
	got := make(chan *event.TranscriptData, 8)
	_, err := bus.Subscribe(event.Transcript, func(e *event.CallEvent) {
		if data, ok := e.GetTranscriptData(); ok {
			got <- data
		}
	})
	require.NoError(t, err)

	h := newHarness(t, func(d *Deps) { d.Bus = bus })
	ctx := context.Background()
	h.svc.HandleCallStart(ctx, "CA1", "+1555")
	_, err = h.svc.HandleSpeech(ctx, "CA1", "I need to talk about the merger", 0.9)
	require.NoError(t, err)

	speakers := map[string]int{}
	for i := 0; i < 3; i++ {
		select {
		case data := <-got:
			assert.Equal(t, "CA1", data.CallID)
			speakers[data.Speaker]++
		case <-time.After(time.Second):
			t.Fatal("transcript event not delivered")
		}
	}
	assert.Equal(t, map[string]int{event.SpeakerAssistant: 2, event.SpeakerCaller: 1}, speakers)
}

func TestLiveCalls(t *testing.T) {
	h := newHarness(t, nil)
	h.svc.HandleCallStart(context.Background(), "CA1", "+1555")

	views := h.svc.LiveCalls()
	require.Len(t, views, 1)
	assert.Equal(t, "CA1", views[0].CallID)
	assert.Equal(t, "initiated", views[0].Status)
}

func TestTurnWithRuleEngine(t *testing.T) {
	rules := engine.NewRules()
	records := &recordStore{}
	svc, err := NewService(Deps{
		Store:     session.NewStore(),
		Decider:   tool.NewDecisionAdapter(rules, nil, nil, nil),
		Executor:  executor.New(executor.Deps{Contacts: contactBook{}}),
		Responder: reply.NewSynthesizer(rules, nil, nil),
		Engine:    rules,
		Records:   records,
	})
	require.NoError(t, err)
	ctx := context.Background()

	svc.HandleCallStart(ctx, "CA1", "+15550001111")
	out, err := svc.HandleSpeech(ctx, "CA1", "Hi, this is Mike Ross calling about the contract.", 0.95)
	require.NoError(t, err)
	assert.Equal(t, ActionListen, out.Action)
	assert.Equal(t, "Thanks, Mike Ross. I'll make sure the message about the contract gets passed along. Is there anything else?", out.Say)

	require.NoError(t, svc.HandleCallStatus(ctx, "CA1", "completed", 40))
	saved := records.all()
	require.Len(t, saved, 1)
	assert.Equal(t, "Mike Ross", saved[0].IdentifiedName)
	assert.Equal(t, "the contract", saved[0].CallPurpose)
	assert.Equal(t, "Pearson", saved[0].Company)
	assert.Equal(t, domain.DecisionHandled, saved[0].Decision)
}

func TestHandleCallStartAfterCallEnded(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.svc.HandleCallStart(ctx, "CA1", "+1555")
	require.NoError(t, h.svc.HandleCallStatus(ctx, "CA1", "completed", 20))

	out := h.svc.HandleCallStart(ctx, "CA1", "+1555")
	assert.Equal(t, SpeakHangup(policy.Lines.MissingCall), out)
	assert.Zero(t, h.store.Len())

	speech, err := h.svc.HandleSpeech(ctx, "CA1", "Hello? Are you still there?", 0.9)
	require.NoError(t, err)
	assert.Equal(t, SpeakHangup(policy.Lines.MissingCall), speech)
	assert.Len(t, h.records.all(), 1)
}

func TestRepeatedReplyEndsCall(t *testing.T) {
	eng := stuckEngine{}
	store := session.NewStore()
	records := &recordStore{}
	svc, err := NewService(Deps{
		Store:     store,
		Decider:   tool.NewDecisionAdapter(eng, nil, nil, nil),
		Executor:  executor.New(executor.Deps{Contacts: contactBook{}}),
		Responder: reply.NewSynthesizer(eng, nil, nil),
		Engine:    eng,
		Records:   records,
	})
	require.NoError(t, err)
	ctx := context.Background()
	svc.HandleCallStart(ctx, "CA1", "+1555")

	first, err := svc.HandleSpeech(ctx, "CA1", "Hello, is anyone there?", 0.9)
	require.NoError(t, err)
	assert.Equal(t, ActionListen, first.Action)
	assert.Equal(t, policy.Lines.Acknowledge, first.Say)

	second, err := svc.HandleSpeech(ctx, "CA1", "Hello, can you hear me?", 0.9)
	require.NoError(t, err)
	assert.Equal(t, SpeakHangup(policy.Lines.LoopTermination), second)

	svc.Wait()
	assert.Zero(t, store.Len())
	assert.Len(t, records.all(), 1)
}

func TestCalendarFailureKeepsCallGoing(t *testing.T) {
	rules := engine.NewRules()
	store := session.NewStore()
	svc, err := NewService(Deps{
		Store:   store,
		Decider: tool.NewDecisionAdapter(rules, nil, nil, nil),
		Executor: executor.New(executor.Deps{
			Contacts: contactBook{},
			Calendar: unavailableCalendar{},
		}),
		Responder: reply.NewSynthesizer(rules, nil, nil),
		Engine:    rules,
	})
	require.NoError(t, err)
	ctx := context.Background()
	svc.HandleCallStart(ctx, "CA1", "+1555")

	out, err := svc.HandleSpeech(ctx, "CA1", "Could you book a meeting about the merger with Harvey Specter tomorrow at 2pm?", 0.92)
	require.NoError(t, err)
	assert.Equal(t, ActionListen, out.Action)
	assert.NotEmpty(t, out.Say)

	sess, err := store.Get("CA1")
	require.NoError(t, err)
	assert.Equal(t, domain.CallStatusInProgress, sess.Status)
	require.NotNil(t, sess.Context.MeetingScheduled)
	assert.False(t, *sess.Context.MeetingScheduled)
	assert.NotEmpty(t, sess.Context.MeetingError)
	require.Len(t, sess.ConversationHistory, 1)
	assert.Equal(t, out.Say, sess.ConversationHistory[0].Agent)
}

func TestLateStatusUpdatesSavedDuration(t *testing.T) {
	h := newHarness(t, nil)
	h.responder.out = reply.Reply{Text: policy.Lines.LoopTermination, Terminate: true, Reason: reply.ReasonLoop}
	ctx := context.Background()
	h.svc.HandleCallStart(ctx, "CA1", "+1555")
	_, err := h.svc.HandleSpeech(ctx, "CA1", "What did you say about the filing deadline", 0.9)
	require.NoError(t, err)
	h.svc.Wait()
	require.Len(t, h.records.all(), 1)

	require.NoError(t, h.svc.HandleCallStatus(ctx, "CA1", "completed", 47))
	records := h.records.all()
	require.Len(t, records, 1)
	assert.Equal(t, 47, records[0].DurationSeconds)
}

func TestLateStatusDuringFinalizeIsKept(t *testing.T) {
	gate := gatedEngine{entered: make(chan struct{}), release: make(chan struct{})}
	h := newHarness(t, func(d *Deps) { d.Engine = gate })
	h.responder.out = reply.Reply{Text: policy.Lines.LoopTermination, Terminate: true, Reason: reply.ReasonLoop}
	ctx := context.Background()
	h.svc.HandleCallStart(ctx, "CA1", "+1555")
	_, err := h.svc.HandleSpeech(ctx, "CA1", "What did you say about the filing deadline", 0.9)
	require.NoError(t, err)

	select {
	case <-gate.entered:
	case <-time.After(time.Second):
		t.Fatal("finalize did not start")
	}
	require.NoError(t, h.svc.HandleCallStatus(ctx, "CA1", "completed", 63))
	close(gate.release)
	h.svc.Wait()

	records := h.records.all()
	require.Len(t, records, 1)
	assert.Equal(t, 63, records[0].DurationSeconds)
}
