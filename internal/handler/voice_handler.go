package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ClareAI/astra-receptionist-service/internal/services/call"
	"github.com/ClareAI/astra-receptionist-service/pkg/logger"
	"github.com/ClareAI/astra-receptionist-service/pkg/twilio"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const (
	processSpeechPath = "/process-speech"
	ttsPathPrefix     = "/tts/"

	speechTimeout = "auto"
	speechModel   = "phone_call"

	// fallbackTwiML is returned when rendering fails so the caller is never
	// left on a dead line.
	fallbackTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response><Say>I'm sorry, there was an error. Goodbye.</Say><Hangup/></Response>`
)

// CallOrchestrator is the call service as seen by the webhooks
type CallOrchestrator interface {
	HandleCallStart(ctx context.Context, callID, callerAddress string) call.Instruction
	HandleSpeech(ctx context.Context, callID, utterance string, confidence float64) (call.Instruction, error)
	HandleCallStatus(ctx context.Context, callID, status string, durationSeconds int) error
	LiveCalls() []call.LiveCallView
}

// Speaker synthesizes text and returns the id of the cached audio
type Speaker interface {
	Speak(ctx context.Context, text string) (string, error)
}

// VoiceHandler serves the Twilio voice webhooks
type VoiceHandler struct {
	calls   CallOrchestrator
	speaker Speaker
	baseURL string
	voice   string
}

// NewVoiceHandler creates the webhook handler. speaker may be nil, in which
// case every line is rendered with <Say>.
func NewVoiceHandler(calls CallOrchestrator, speaker Speaker, baseURL, voice string) *VoiceHandler {
	return &VoiceHandler{
		calls:   calls,
		speaker: speaker,
		baseURL: strings.TrimRight(baseURL, "/"),
		voice:   voice,
	}
}

// SetupVoiceRoutes registers the telephony webhooks
func (h *VoiceHandler) SetupVoiceRoutes(router *mux.Router) {
	router.HandleFunc("/incoming-call", h.IncomingCall).Methods(http.MethodPost)
	router.HandleFunc(processSpeechPath, h.ProcessSpeech).Methods(http.MethodPost)
	router.HandleFunc("/call-status", h.CallStatus).Methods(http.MethodPost)
}

// IncomingCall greets a new caller and starts listening
func (h *VoiceHandler) IncomingCall(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	callID := r.PostFormValue("CallSid")
	if callID == "" {
		http.Error(w, "CallSid is required", http.StatusBadRequest)
		return
	}
	from := r.PostFormValue("From")

	logger.ForCall(callID).Info("Incoming call", zap.String("from", from))
	instruction := h.calls.HandleCallStart(r.Context(), callID, from)
	h.writeInstruction(w, r, callID, instruction)
}

// ProcessSpeech runs one conversational turn for a gathered utterance
func (h *VoiceHandler) ProcessSpeech(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	callID := r.PostFormValue("CallSid")
	if callID == "" {
		http.Error(w, "CallSid is required", http.StatusBadRequest)
		return
	}
	speech := r.PostFormValue("SpeechResult")
	confidence, _ := strconv.ParseFloat(r.PostFormValue("Confidence"), 64)

	logger.ForCall(callID).Info("Speech received",
		zap.String("speech", speech),
		zap.Float64("confidence", confidence))

	instruction, err := h.calls.HandleSpeech(r.Context(), callID, speech, confidence)
	if err != nil {
		// The webhook request was abandoned; nobody is waiting for TwiML.
		logger.ForCall(callID).Warn("Turn abandoned", zap.Error(err))
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	h.writeInstruction(w, r, callID, instruction)
}

// CallStatus records a telephony status change
func (h *VoiceHandler) CallStatus(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	callID := r.PostFormValue("CallSid")
	status := r.PostFormValue("CallStatus")
	duration, _ := strconv.Atoi(r.PostFormValue("CallDuration"))

	if callID != "" && status != "" {
		if err := h.calls.HandleCallStatus(r.Context(), callID, status, duration); err != nil {
			logger.ForCall(callID).Warn("Call status handling failed",
				zap.String("status", status),
				zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *VoiceHandler) writeInstruction(w http.ResponseWriter, r *http.Request, callID string, in call.Instruction) {
	doc, err := h.Render(r.Context(), in)
	if err != nil {
		logger.ForCall(callID).Error("Failed to render TwiML", zap.Error(err))
		doc = fallbackTwiML
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(doc))
}

// Render converts an instruction into TwiML. A listening instruction speaks,
// gathers, speaks the follow-up and gathers again, then says the no-input line
// and hangs up.
func (h *VoiceHandler) Render(ctx context.Context, in call.Instruction) (string, error) {
	resp := twilio.NewResponse(h.voice)
	h.speak(ctx, resp, in.Say)

	if in.Action != call.ActionListen {
		resp.Hangup()
		return resp.Render()
	}

	opts := h.gatherOptions()
	if in.Prompt != "" {
		if url := h.audioURL(ctx, in.Prompt); url != "" {
			opts.PromptURL = url
		} else {
			opts.Prompt = in.Prompt
		}
	}
	resp.Gather(opts)

	if in.FollowUp != "" {
		h.speak(ctx, resp, in.FollowUp)
		resp.Gather(h.gatherOptions())
	}
	if in.NoInput != "" {
		h.speak(ctx, resp, in.NoInput)
		resp.Hangup()
	}
	return resp.Render()
}

func (h *VoiceHandler) gatherOptions() twilio.GatherOptions {
	return twilio.GatherOptions{
		Action:        processSpeechPath,
		SpeechTimeout: speechTimeout,
		SpeechModel:   speechModel,
		Enhanced:      true,
	}
}

// speak plays synthesized audio for text, falling back to <Say>
func (h *VoiceHandler) speak(ctx context.Context, resp *twilio.Response, text string) {
	if text == "" {
		return
	}
	if url := h.audioURL(ctx, text); url != "" {
		resp.Play(url)
		return
	}
	resp.Say(text)
}

func (h *VoiceHandler) audioURL(ctx context.Context, text string) string {
	if h.speaker == nil || h.baseURL == "" {
		return ""
	}
	id, err := h.speaker.Speak(ctx, text)
	if err != nil {
		return ""
	}
	return h.baseURL + ttsPathPrefix + id
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Base().Warn("Failed to write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func millis(t time.Time) int64 {
	return t.UnixNano() / int64(time.Millisecond)
}
