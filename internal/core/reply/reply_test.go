package reply

import (
	"context"
	"errors"
	"testing"

	"github.com/ClareAI/astra-receptionist-service/internal/config"
	"github.com/ClareAI/astra-receptionist-service/internal/core/engine"
	"github.com/ClareAI/astra-receptionist-service/internal/domain"
	"github.com/stretchr/testify/assert"
)

var (
	verbs   = config.DefaultPolicy().Guards.NarrationVerbs
	markers = config.DefaultPolicy().Guards.NarrationMarkers
)

func TestStripReasoning(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"think block", "<think>The caller wants Harvey.</think>Sure, one moment.", "Sure, one moment."},
		{"uppercase multiline", "<THINKING>\nstep one\nstep two\n</THINKING>\nHello Mike.", "Hello Mike."},
		{"reasoning and internal", "<reasoning>x</reasoning>Yes.<internal>y</internal>", "Yes."},
		{"unterminated", "Of course. <think>I should now check", "Of course."},
		{"brackets", "[searching contacts] Mike, I see you're with Pearson.", "Mike, I see you're with Pearson."},
		{"double parens", "((checking calendar)) He is free then.", "He is free then."},
		{"clean", "Thanks for calling.", "Thanks for calling."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CollapseWhitespace(StripReasoning(tc.in)))
		})
	}
}

func TestIsNarration(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"I'll search for your contact details.", true},
		{"Let me check the calendar.", true},
		{"I am going to look up your emails.", true},
		{"Calling search_contacts now.", true},
		{"Using SearchEmails for this.", true},
		{"Action: schedule", true},
		{"Tool: lookup", true},
		{"I'll make sure he gets the message.", false},
		{"Harvey will call you back.", false},
		{"Let me know if there's anything else.", false},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, IsNarration(tc.in, verbs, markers))
		})
	}
}

func TestSanitize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"narration dropped", "Let me search for that. Mike, your contract is ready.", "Mike, your contract is ready."},
		{"narration line dropped", "I'll check the calendar.\nHe is free tomorrow afternoon.", "He is free tomorrow afternoon."},
		{"only reasoning", "<think>hmm</think>", ""},
		{"only narration", "I'll use search_emails.", ""},
		{"too short", "<think>x</think> k", ""},
		{"whitespace", "  Sure,\n\n  Mike.  ", "Sure, Mike."},
		{"decimals and emails kept", "The fee is $12.50. Send it to john.doe@acme.com.", "The fee is $12.50. Send it to john.doe@acme.com."},
		{"abbreviated time kept", "He is free at 3.30 p.m.", "He is free at 3.30 p.m."},
		{"narration beside a decimal", "Let me check the calendar. The total is $12.50!", "The total is $12.50!"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Sanitize(tc.in, verbs, markers, 2))
		})
	}
}

func TestIsFarewell(t *testing.T) {
	phrases := config.DefaultPolicy().Guards.FarewellPhrases
	assert.True(t, IsFarewell("Okay, bye!", phrases, 50))
	assert.True(t, IsFarewell("That's all, thanks", phrases, 50))
	assert.False(t, IsFarewell("Hello, I need to reschedule", phrases, 50))
	assert.False(t, IsFarewell("Before I say goodbye, can you remind Harvey about the filing deadline?", phrases, 50))
}

func TestIsRepeat(t *testing.T) {
	assert.True(t, IsRepeat("Got it.", []string{"Something else", " got it. "}))
	assert.False(t, IsRepeat("Got it.", []string{"Got it!"}))
	assert.False(t, IsRepeat("", []string{""}))
}

type scriptedEngine struct {
	engine.Rules
	reply string
	err   error
	seen  engine.ReplyRequest
}

func (s *scriptedEngine) GenerateReply(ctx context.Context, req engine.ReplyRequest) (string, error) {
	s.seen = req
	return s.reply, s.err
}

func sessionWith(c domain.Context, replies ...string) *domain.CallSession {
	s := &domain.CallSession{CallID: "CA1", Context: c}
	for _, r := range replies {
		s.ConversationHistory = append(s.ConversationHistory, domain.Exchange{Caller: "x", Agent: r})
	}
	return s
}

func TestSynthesizerPassesCleanReply(t *testing.T) {
	eng := &scriptedEngine{reply: "<think>he is Mike</think>Thanks, Mike. I'll pass that on."}
	s := NewSynthesizer(eng, nil, nil)

	out := s.Reply(context.Background(), Input{Utterance: "It's Mike", Session: sessionWith(domain.Context{CallerName: "Mike"})})
	assert.Equal(t, Reply{Text: "Thanks, Mike. I'll pass that on."}, out)
	assert.Equal(t, 300, eng.seen.MaxTokens)
	assert.Contains(t, eng.seen.SystemPrompt, "- Name: Mike")
}

func TestSynthesizerFallbacks(t *testing.T) {
	policy := config.DefaultPolicy()

	out := NewSynthesizer(&scriptedEngine{err: errors.New("timeout")}, nil, nil).
		Reply(context.Background(), Input{Session: sessionWith(domain.Context{})})
	assert.Equal(t, Reply{Text: policy.Lines.Fallback, Reason: ReasonFallback}, out)

	out = NewSynthesizer(&scriptedEngine{reply: "<think>only thoughts</think>"}, nil, nil).
		Reply(context.Background(), Input{Session: sessionWith(domain.Context{CallerName: "Mike"})})
	assert.Equal(t, Reply{Text: "Thanks, Mike. Is there anything else you need?", Reason: ReasonSanitized}, out)

	meeting := domain.Context{
		MeetingScheduled: domain.Bool(true),
		MeetingDetails:   &domain.MeetingDetails{When: "Thursday, March 05 at 02:00 PM"},
	}
	out = NewSynthesizer(&scriptedEngine{reply: "I'll schedule that."}, nil, nil).
		Reply(context.Background(), Input{Session: sessionWith(meeting)})
	assert.Equal(t, "You're all set for Thursday, March 05 at 02:00 PM. Is there anything else you need?", out.Text)
}

func TestSynthesizerLoopGuard(t *testing.T) {
	policy := config.DefaultPolicy()
	s := NewSynthesizer(&scriptedEngine{reply: "Could you spell that?"}, nil, nil)

	out := s.Reply(context.Background(), Input{Session: sessionWith(domain.Context{}, "could you spell that?", "Sure.")})
	assert.Equal(t, Reply{Text: policy.Lines.LoopTermination, Terminate: true, Reason: ReasonLoop}, out)

	out = s.Reply(context.Background(), Input{Session: sessionWith(domain.Context{}, "Could you spell that?", "Sure.", "Okay.")})
	assert.False(t, out.Terminate, "only the two most recent replies count")
}

func TestSynthesizerGreetingGuard(t *testing.T) {
	greeting := "Hello, this is Donna. How can I help you?"

	s := NewSynthesizer(&scriptedEngine{reply: greeting}, nil, nil)
	out := s.Reply(context.Background(), Input{Session: sessionWith(domain.Context{Greeted: domain.Bool(true)})})
	assert.Equal(t, Reply{Text: "Got it. Is there anything else you need?", Reason: ReasonGreeting}, out)

	failed := domain.Context{Greeted: domain.Bool(true), MeetingScheduled: domain.Bool(false), MeetingError: "Failed to create event"}
	out = s.Reply(context.Background(), Input{Session: sessionWith(failed)})
	assert.Equal(t, "I'm sorry, I wasn't able to book that time. Could you suggest another time?", out.Text)

	out = s.Reply(context.Background(), Input{Session: sessionWith(domain.Context{})})
	assert.Equal(t, greeting, out.Text)
}

func TestSynthesizerLoopGuardSeesRewrittenGreeting(t *testing.T) {
	policy := config.DefaultPolicy()
	s := NewSynthesizer(&scriptedEngine{reply: "How can I help you?"}, nil, nil)
	greeted := domain.Context{Greeted: domain.Bool(true)}

	first := s.Reply(context.Background(), Input{Session: sessionWith(greeted)})
	assert.Equal(t, ReasonGreeting, first.Reason)
	assert.False(t, first.Terminate)

	second := s.Reply(context.Background(), Input{Session: sessionWith(greeted, first.Text)})
	assert.Equal(t, Reply{Text: policy.Lines.LoopTermination, Terminate: true, Reason: ReasonLoop}, second)
}
