package handler

import (
	"context"
	"encoding/json"
	"errors"
	"html"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ClareAI/astra-receptionist-service/internal/config"
	"github.com/ClareAI/astra-receptionist-service/internal/core/event"
	"github.com/ClareAI/astra-receptionist-service/internal/domain"
	"github.com/ClareAI/astra-receptionist-service/internal/observability"
	"github.com/ClareAI/astra-receptionist-service/internal/services/call"
	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCalls struct {
	mu sync.Mutex

	started   []string
	utterance string
	status    string
	duration  int

	next     call.Instruction
	speakErr error
	live     []call.LiveCallView
}

func (f *fakeCalls) HandleCallStart(_ context.Context, callID, caller string) call.Instruction {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, callID+"|"+caller)
	return f.next
}

func (f *fakeCalls) HandleSpeech(_ context.Context, _ string, utterance string, _ float64) (call.Instruction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.utterance = utterance
	return f.next, f.speakErr
}

func (f *fakeCalls) HandleCallStatus(_ context.Context, _ string, status string, duration int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
	f.duration = duration
	return nil
}

func (f *fakeCalls) LiveCalls() []call.LiveCallView {
	return f.live
}

type fakeAudio struct {
	clips map[string][]byte
	err   error
}

func (a *fakeAudio) Speak(_ context.Context, text string) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	id := "id" + string(rune('a'+len(a.clips)))
	a.clips[id] = []byte(text)
	return id, nil
}

func (a *fakeAudio) Get(id string) ([]byte, bool) {
	data, ok := a.clips[id]
	return data, ok
}

type fakeRecords struct {
	records   map[string]*domain.CallRecord
	lastLimit int
	err       error
}

func (r *fakeRecords) List(_ context.Context, limit, _ int) ([]*domain.CallRecord, error) {
	r.lastLimit = limit
	if r.err != nil {
		return nil, r.err
	}
	out := make([]*domain.CallRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	return out, nil
}

func (r *fakeRecords) GetByCallSID(_ context.Context, callSID string) (*domain.CallRecord, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.records[callSID], nil
}

func listening() call.Instruction {
	return call.Instruction{
		Action:   call.ActionListen,
		Say:      "Hello, this is Donna.",
		Prompt:   "Please go ahead.",
		FollowUp: "Is there anything else I can help you with?",
		NoInput:  "I didn't hear anything. Goodbye.",
	}
}

func postForm(t *testing.T, h http.HandlerFunc, values url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestRenderListenWithSay(t *testing.T) {
	h := NewVoiceHandler(&fakeCalls{}, nil, "https://example.com", "")

	doc, err := h.Render(context.Background(), listening())
	require.NoError(t, err)

	assert.Contains(t, doc, "Hello, this is Donna.")
	assert.Contains(t, doc, `action="/process-speech"`)
	assert.Contains(t, doc, `speechTimeout="auto"`)
	assert.Contains(t, doc, `speechModel="phone_call"`)
	assert.Contains(t, doc, `enhanced="true"`)
	assert.Contains(t, doc, "Please go ahead.")
	assert.Equal(t, 2, strings.Count(doc, "<Gather"))
	assert.NotContains(t, doc, "<Play")

	// twilio-go escapes apostrophes as &apos;
	text := html.UnescapeString(doc)
	assert.Contains(t, text, "<Say>I didn't hear anything. Goodbye.</Say>")
	followUp := strings.Index(text, "anything else")
	noInput := strings.Index(text, "I didn't hear anything")
	hangup := strings.Index(text, "<Hangup")
	assert.True(t, followUp > 0 && followUp < noInput && noInput < hangup)
}

func TestRenderPlaysSynthesizedAudio(t *testing.T) {
	audio := &fakeAudio{clips: map[string][]byte{}}
	h := NewVoiceHandler(&fakeCalls{}, audio, "https://example.com/", "")

	doc, err := h.Render(context.Background(), call.Instruction{Action: call.ActionHangup, Say: "Goodbye."})
	require.NoError(t, err)

	assert.Contains(t, doc, "<Play")
	assert.Contains(t, doc, "https://example.com/tts/ida")
	assert.NotContains(t, doc, "<Say")
	assert.Contains(t, doc, "<Hangup")
	assert.NotContains(t, doc, "<Gather")
}

func TestRenderFallsBackToSayWhenSynthesisFails(t *testing.T) {
	audio := &fakeAudio{clips: map[string][]byte{}, err: errors.New("401")}
	h := NewVoiceHandler(&fakeCalls{}, audio, "https://example.com", "")

	doc, err := h.Render(context.Background(), call.Instruction{Action: call.ActionHangup, Say: "Goodbye."})
	require.NoError(t, err)
	assert.Contains(t, doc, "Goodbye.")
	assert.NotContains(t, doc, "<Play")
}

func TestIncomingCall(t *testing.T) {
	calls := &fakeCalls{next: listening()}
	h := NewVoiceHandler(calls, nil, "", "")

	rec := postForm(t, h.IncomingCall, url.Values{"CallSid": {"CA1"}, "From": {"+15550001111"}})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/xml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "Hello, this is Donna.")
	assert.Equal(t, []string{"CA1|+15550001111"}, calls.started)
}

func TestIncomingCallRequiresCallSid(t *testing.T) {
	h := NewVoiceHandler(&fakeCalls{}, nil, "", "")
	rec := postForm(t, h.IncomingCall, url.Values{"From": {"+1555"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProcessSpeech(t *testing.T) {
	calls := &fakeCalls{next: call.Instruction{Action: call.ActionHangup, Say: "Goodbye!"}}
	h := NewVoiceHandler(calls, nil, "", "")

	rec := postForm(t, h.ProcessSpeech, url.Values{
		"CallSid":      {"CA1"},
		"SpeechResult": {"bye"},
		"Confidence":   {"0.92"},
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Goodbye!")
	assert.Contains(t, rec.Body.String(), "<Hangup")
	assert.Equal(t, "bye", calls.utterance)
}

func TestProcessSpeechAbandoned(t *testing.T) {
	calls := &fakeCalls{speakErr: context.Canceled}
	h := NewVoiceHandler(calls, nil, "", "")

	rec := postForm(t, h.ProcessSpeech, url.Values{"CallSid": {"CA1"}, "SpeechResult": {"hi"}})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCallStatus(t *testing.T) {
	calls := &fakeCalls{}
	h := NewVoiceHandler(calls, nil, "", "")

	rec := postForm(t, h.CallStatus, url.Values{
		"CallSid":      {"CA1"},
		"CallStatus":   {"completed"},
		"CallDuration": {"42"},
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Equal(t, "completed", calls.status)
	assert.Equal(t, 42, calls.duration)
}

func TestTTSHandler(t *testing.T) {
	router := mux.NewRouter()
	NewTTSHandler(&fakeAudio{clips: map[string][]byte{"abc123": []byte("mp3")}}).SetupTTSRoutes(router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tts/abc123", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio/mpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, "inline; filename=abc123.mp3", rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "public, max-age=3600", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "mp3", rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tts/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCallHistoryRoutes(t *testing.T) {
	records := &fakeRecords{records: map[string]*domain.CallRecord{
		"CA1": {CallSID: "CA1", Decision: domain.DecisionHandled},
	}}
	live := &fakeCalls{live: []call.LiveCallView{{CallID: "CA9", Status: "in-progress"}}}
	router := mux.NewRouter()
	NewCallHistoryHandler(records, live).SetupCallRoutes(router)

	tests := []struct {
		name   string
		path   string
		status int
		body   string
	}{
		{name: "list", path: "/calls?limit=10", status: http.StatusOK, body: `"CA1"`},
		{name: "live", path: "/calls/live", status: http.StatusOK, body: `"CA9"`},
		{name: "get", path: "/calls/CA1", status: http.StatusOK, body: `"call_sid":"CA1"`},
		{name: "missing", path: "/calls/CA404", status: http.StatusNotFound, body: "call not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.body)
		})
	}
	assert.Equal(t, 10, records.lastLimit)
}

func TestCallHistoryWithoutDatabase(t *testing.T) {
	router := mux.NewRouter()
	NewCallHistoryHandler(nil, &fakeCalls{}).SetupCallRoutes(router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/calls", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/calls/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"calls":[],"count":0}`, rec.Body.String())
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestAPIKeyMiddleware(t *testing.T) {
	const secret = "test-secret"
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	valid := signToken(t, secret, jwt.MapClaims{"sub": "ops"})

	tests := []struct {
		name   string
		secret string
		setup  func(r *http.Request)
		status int
	}{
		{name: "no secret configured", secret: "", setup: func(*http.Request) {}, status: http.StatusNoContent},
		{name: "missing key", secret: secret, setup: func(*http.Request) {}, status: http.StatusUnauthorized},
		{name: "header key", secret: secret, setup: func(r *http.Request) { r.Header.Set("X-API-Key", valid) }, status: http.StatusNoContent},
		{name: "bearer", secret: secret, setup: func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+valid) }, status: http.StatusNoContent},
		{name: "query token", secret: secret, setup: func(r *http.Request) { r.URL.RawQuery = "token=" + valid }, status: http.StatusNoContent},
		{name: "wrong secret", secret: secret, setup: func(r *http.Request) {
			r.Header.Set("X-API-Key", signToken(t, "other", jwt.MapClaims{"sub": "ops"}))
		}, status: http.StatusUnauthorized},
		{name: "no subject", secret: secret, setup: func(r *http.Request) {
			r.Header.Set("X-API-Key", signToken(t, secret, jwt.MapClaims{"name": "ops"}))
		}, status: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/calls", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()
			APIKeyMiddleware(tt.secret)(ok).ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

type recordingValidator struct {
	url    string
	params map[string]string
	valid  bool
}

func (v *recordingValidator) ValidateSignature(url string, params map[string]string, _ string) bool {
	v.url = url
	v.params = params
	return v.valid
}

func TestTwilioSignatureMiddleware(t *testing.T) {
	for _, valid := range []bool{true, false} {
		validator := &recordingValidator{valid: valid}
		next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

		req := httptest.NewRequest(http.MethodPost, "/incoming-call", strings.NewReader("CallSid=CA1&From=%2B1555"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("X-Twilio-Signature", "sig")
		rec := httptest.NewRecorder()
		TwilioSignatureMiddleware(validator, "https://donna.example.com/")(next).ServeHTTP(rec, req)

		assert.Equal(t, "https://donna.example.com/incoming-call", validator.url)
		assert.Equal(t, map[string]string{"CallSid": "CA1", "From": "+1555"}, validator.params)
		if valid {
			assert.Equal(t, http.StatusOK, rec.Code)
		} else {
			assert.Equal(t, http.StatusForbidden, rec.Code)
		}
	}
}

func TestTranscriptHubBroadcastsBusEvents(t *testing.T) {
	bus := event.NewEventBus()
	defer bus.Close()

	hub := NewTranscriptHub()
	require.NoError(t, hub.Attach(bus))
	defer hub.Close()

	server := httptest.NewServer(hub)
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	at := time.UnixMilli(1700000000123)
	require.NoError(t, bus.Publish(event.Transcript, &event.TranscriptData{
		CallID:     "CA1",
		Speaker:    event.SpeakerCaller,
		Transcript: "hello",
		Timestamp:  at,
	}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var frame TranscriptFrame
	require.NoError(t, json.Unmarshal(msg, &frame))
	assert.Equal(t, TranscriptFrame{CallID: "CA1", Speaker: "caller", Transcript: "hello", Timestamp: 1700000000123}, frame)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 10*time.Millisecond)
}

func newTestManager(t *testing.T, checks map[string]HealthCheck) (*mux.Router, *fakeCalls) {
	t.Helper()
	registry := prometheus.NewRegistry()
	calls := &fakeCalls{next: listening(), live: []call.LiveCallView{{CallID: "CA1"}}}
	hm, err := NewHandlerManager(Deps{
		Config:   &config.ReceptionistConfig{InstanceID: "pod-1", EnableCORS: true},
		Calls:    calls,
		Audio:    &fakeAudio{clips: map[string][]byte{}},
		Metrics:  observability.NewMetrics(registry),
		Gatherer: registry,
		Checks:   checks,
	})
	require.NoError(t, err)
	t.Cleanup(hm.Close)

	router := mux.NewRouter()
	hm.SetupAllRoutes(router)
	return router, calls
}

func TestHealth(t *testing.T) {
	router, _ := newTestManager(t, map[string]HealthCheck{
		"postgres": func(context.Context) error { return nil },
	})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"active_calls":1`)
	assert.Contains(t, rec.Body.String(), `"postgres":"ok"`)

	router, _ = newTestManager(t, map[string]HealthCheck{
		"redis": func(context.Context) error { return errors.New("connection refused") },
	})
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"degraded"`)
}

func TestRoutesServeWebhooksAndMetrics(t *testing.T) {
	router, calls := newTestManager(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/incoming-call", strings.NewReader("CallSid=CA7&From=%2B1555"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	// TTS is inactive without a Deepgram key, so lines are spoken with <Say>
	assert.Contains(t, rec.Body.String(), "<Say")
	assert.Equal(t, []string{"CA7|+1555"}, calls.started)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/incoming-call")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/calls", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
