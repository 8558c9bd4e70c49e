package engine

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ClareAI/astra-receptionist-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLLM(t *testing.T, handler http.HandlerFunc) *LLM {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	llm, err := NewLLM(LLMConfig{
		APIKey:         "test-key",
		BaseURL:        server.URL + "/v1",
		Model:          "test-model",
		EmbeddingModel: "test-embed",
	})
	require.NoError(t, err)
	return llm
}

func chatResponse(message map[string]any) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "test-model",
		"choices": []any{map[string]any{"index": 0, "message": message, "finish_reason": "stop"}},
	}
}

func TestNewLLMRequiresKeyAndModel(t *testing.T) {
	_, err := NewLLM(LLMConfig{Model: "m"})
	assert.Error(t, err)
	_, err = NewLLM(LLMConfig{APIKey: "k"})
	assert.Error(t, err)
}

func TestLLMDecideActions(t *testing.T) {
	var received map[string]any
	llm := newTestLLM(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &received))

		_ = json.NewEncoder(w).Encode(chatResponse(map[string]any{
			"role": "assistant",
			"tool_calls": []any{map[string]any{
				"id":   "call_1",
				"type": "function",
				"function": map[string]any{
					"name":      "search_contacts",
					"arguments": `{"name":"Mike Ross"}`,
				},
			}},
		}))
	})

	calls, err := llm.DecideActions(context.Background(), DecisionRequest{
		SystemPrompt: "decide",
		Utterance:    "This is Mike Ross calling",
		History:      []domain.Exchange{{Caller: "hello", Agent: "hi there"}},
		Tools: []ToolSpec{{
			Name:        "search_contacts",
			Description: "Look up a contact",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"name":{"type":"string"}}}`),
		}},
		MaxTokens: 500,
	})
	require.NoError(t, err)
	assert.Equal(t, []ActionCall{{Name: "search_contacts", Arguments: `{"name":"Mike Ross"}`}}, calls)

	assert.Equal(t, "test-model", received["model"])
	assert.Equal(t, "auto", received["tool_choice"])
	messages := received["messages"].([]any)
	require.Len(t, messages, 4)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
	assert.Equal(t, "This is Mike Ross calling", messages[3].(map[string]any)["content"])
}

func TestLLMGenerateReply(t *testing.T) {
	llm := newTestLLM(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(chatResponse(map[string]any{
			"role":    "assistant",
			"content": "Thanks, Mike. I'll pass that along.",
		}))
	})

	reply, err := llm.GenerateReply(context.Background(), ReplyRequest{SystemPrompt: "reply", Utterance: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "Thanks, Mike. I'll pass that along.", reply)
}

func TestLLMGenerateReplyServerError(t *testing.T) {
	llm := newTestLLM(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	})

	_, err := llm.GenerateReply(context.Background(), ReplyRequest{Utterance: "hi"})
	assert.Error(t, err)
}

func TestLLMClassifyOutcome(t *testing.T) {
	var received map[string]any
	llm := newTestLLM(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &received))
		_ = json.NewEncoder(w).Encode(chatResponse(map[string]any{
			"role":    "assistant",
			"content": "Sure.\n```json\n{\"summary\":\"Mike asked about the contract\",\"decision\":\"bogus\"}\n```",
		}))
	})

	outcome, err := llm.ClassifyOutcome(context.Background(), OutcomeRequest{
		SystemPrompt: "classify",
		Transcript:   []string{"This is Mike", "About the contract"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Mike asked about the contract", outcome.Summary)
	assert.Equal(t, domain.DecisionHandled, outcome.Decision)
	assert.Equal(t, "Call processed", outcome.DecisionLabel)

	format := received["response_format"].(map[string]any)
	assert.Equal(t, "json_object", format["type"])
}

func TestParseOutcomeRejectsNonJSON(t *testing.T) {
	_, err := parseOutcome("I could not decide")
	assert.Error(t, err)
	_, err = parseOutcome("{not json}")
	assert.Error(t, err)
}

func TestLLMEmbed(t *testing.T) {
	llm := newTestLLM(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  "test-embed",
			"data": []any{
				map[string]any{"object": "embedding", "index": 1, "embedding": []float32{0.3, 0.4}},
				map[string]any{"object": "embedding", "index": 0, "embedding": []float32{0.1, 0.2}},
			},
		})
	})

	vectors, err := llm.Embed(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.InDelta(t, 0.1, vectors[0][0], 1e-6)
	assert.InDelta(t, 0.3, vectors[1][0], 1e-6)

	empty, err := llm.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestRulesDecideActions(t *testing.T) {
	rules := NewRules()

	calls, err := rules.DecideActions(context.Background(), DecisionRequest{
		Utterance: "Hi, this is Mike Ross calling about the contract.",
	})
	require.NoError(t, err)
	require.Len(t, calls, 2)
	assert.Equal(t, "search_contacts", calls[0].Name)
	assert.JSONEq(t, `{"name":"Mike Ross"}`, calls[0].Arguments)
	assert.Equal(t, "search_emails", calls[1].Name)
	assert.JSONEq(t, `{"query":"the contract"}`, calls[1].Arguments)

	calls, err = rules.DecideActions(context.Background(), DecisionRequest{
		Utterance: "Can we schedule a meeting tomorrow at 2pm?",
		Context:   domain.Context{CallerName: "Mike Ross", Purpose: "the contract"},
	})
	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, "schedule_meeting", calls[0].Name)
	assert.JSONEq(t, `{"who":"Mike Ross","what":"the contract","when":"tomorrow at 2pm"}`, calls[0].Arguments)

	calls, err = rules.DecideActions(context.Background(), DecisionRequest{Utterance: "Is he free on Friday?"})
	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, "check_calendar", calls[0].Name)
	assert.JSONEq(t, `{"date":"friday"}`, calls[0].Arguments)

	calls, err = rules.DecideActions(context.Background(), DecisionRequest{
		Utterance: "This is Mike Ross calling",
		Context:   domain.Context{Contacts: []domain.Contact{}},
	})
	require.NoError(t, err)
	assert.Empty(t, calls)
}

func TestRulesGenerateReply(t *testing.T) {
	rules := NewRules()
	cases := []struct {
		name string
		ctx  domain.Context
		want string
	}{
		{
			name: "meeting booked",
			ctx: domain.Context{
				MeetingScheduled: domain.Bool(true),
				MeetingDetails:   &domain.MeetingDetails{When: "Thursday, March 05 at 02:00 PM"},
			},
			want: "You're all set for Thursday, March 05 at 02:00 PM. Is there anything else you need?",
		},
		{
			name: "booking failed",
			ctx:  domain.Context{MeetingScheduled: domain.Bool(false), MeetingError: "Failed to create event"},
			want: "I'm sorry, I wasn't able to book that time. Could you suggest another time?",
		},
		{
			name: "name only",
			ctx:  domain.Context{CallerName: "Mike"},
			want: "Thanks, Mike. What is the call regarding?",
		},
		{
			name: "nothing known",
			want: "Could you tell me your name and what you're calling about?",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reply, err := rules.GenerateReply(context.Background(), ReplyRequest{Context: tc.ctx})
			require.NoError(t, err)
			assert.Equal(t, tc.want, reply)
		})
	}
}

func TestRulesClassifyOutcome(t *testing.T) {
	rules := NewRules()
	cases := []struct {
		transcript []string
		want       domain.Decision
	}{
		{nil, domain.DecisionRejected},
		{[]string{"Sorry, wrong number"}, domain.DecisionRejected},
		{[]string{"It's urgent, I need him to call me back"}, domain.DecisionEscalated},
		{[]string{"Can we book a meeting tomorrow at 3pm?"}, domain.DecisionScheduled},
		{[]string{"Just letting him know the report is in"}, domain.DecisionHandled},
	}
	for _, tc := range cases {
		outcome, err := rules.ClassifyOutcome(context.Background(), OutcomeRequest{Transcript: tc.transcript})
		require.NoError(t, err)
		assert.Equal(t, tc.want, outcome.Decision, "%v", tc.transcript)
		assert.NotEmpty(t, outcome.Summary)
	}
}

type countingEngine struct {
	Rules
	calls atomic.Int32
}

func (c *countingEngine) GenerateReply(ctx context.Context, req ReplyRequest) (string, error) {
	c.calls.Add(1)
	return c.Rules.GenerateReply(ctx, req)
}

func TestRateLimitedHonorsContext(t *testing.T) {
	inner := &countingEngine{}
	limited := NewRateLimited(inner, 0.001, 1)

	_, err := limited.GenerateReply(context.Background(), ReplyRequest{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = limited.GenerateReply(ctx, ReplyRequest{})
	assert.Error(t, err)
	assert.Equal(t, int32(1), inner.calls.Load())
}

func TestRateLimitedUnlimited(t *testing.T) {
	inner := &countingEngine{}
	limited := NewRateLimited(inner, 0, 0)
	for range 20 {
		_, err := limited.GenerateReply(context.Background(), ReplyRequest{})
		require.NoError(t, err)
	}
	assert.Equal(t, int32(20), inner.calls.Load())
}
