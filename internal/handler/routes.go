package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/ClareAI/astra-receptionist-service/internal/config"
	"github.com/ClareAI/astra-receptionist-service/internal/core/event"
	"github.com/ClareAI/astra-receptionist-service/internal/observability"
	"github.com/ClareAI/astra-receptionist-service/pkg/logger"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const healthCheckTimeout = 2 * time.Second

// AudioService caches synthesized speech and serves it back
type AudioService interface {
	Speaker
	AudioStore
}

// HealthCheck reports whether a dependency is reachable
type HealthCheck func(ctx context.Context) error

// Deps carries everything the HTTP layer needs. Optional dependencies are
// left as nil interfaces.
type Deps struct {
	Config    *config.ReceptionistConfig
	Calls     CallOrchestrator
	Audio     AudioService
	Records   CallHistory
	Bus       event.EventBus
	Signature SignatureValidator
	Metrics   *observability.Metrics
	Gatherer  prometheus.Gatherer
	Checks    map[string]HealthCheck
}

// HandlerManager manages all handlers and their initialization
type HandlerManager struct {
	deps  Deps
	voice *VoiceHandler
	tts   *TTSHandler
	calls *CallHistoryHandler
	hub   *TranscriptHub
}

// NewHandlerManager creates the handlers and subscribes the transcript hub
func NewHandlerManager(deps Deps) (*HandlerManager, error) {
	var speaker Speaker
	if deps.Audio != nil && deps.Config.TTSActive() {
		speaker = deps.Audio
	}

	hub := NewTranscriptHub()
	if deps.Bus != nil {
		if err := hub.Attach(deps.Bus); err != nil {
			return nil, err
		}
	}

	hm := &HandlerManager{
		deps:  deps,
		voice: NewVoiceHandler(deps.Calls, speaker, deps.Config.PublicBaseURL, deps.Config.TwilioVoice),
		calls: NewCallHistoryHandler(deps.Records, deps.Calls),
		hub:   hub,
	}
	if deps.Audio != nil {
		hm.tts = NewTTSHandler(deps.Audio)
	}

	logger.Base().Info("handlers initialized",
		zap.Bool("tts_active", speaker != nil),
		zap.Bool("call_history", deps.Records != nil),
		zap.Bool("signature_validation", deps.Config.TwilioValidateSignature && deps.Signature != nil))
	return hm, nil
}

// SetupAllRoutes sets up all routes with middleware
func (hm *HandlerManager) SetupAllRoutes(router *mux.Router) {
	if hm.deps.Config.EnableCORS {
		router.Use(CORSMiddleware)
	}
	router.Use(GlobalLoggingMiddleware(hm.deps.Metrics))

	hm.SetupVoiceRoutes(router)

	if hm.tts != nil {
		hm.tts.SetupTTSRoutes(router)
	}

	hm.SetupAPIRoutes(router)

	router.Handle("/ws/transcription", APIKeyMiddleware(hm.deps.Config.SecretKey)(hm.hub)).Methods(http.MethodGet)

	router.HandleFunc("/health", hm.Health).Methods(http.MethodGet)
	if hm.deps.Gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(hm.deps.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	logger.Base().Info("all application routes registered")
}

// SetupVoiceRoutes registers the Twilio webhooks, signed when configured
func (hm *HandlerManager) SetupVoiceRoutes(router *mux.Router) {
	voiceRouter := router.NewRoute().Subrouter()
	if hm.deps.Config.TwilioValidateSignature && hm.deps.Signature != nil {
		voiceRouter.Use(TwilioSignatureMiddleware(hm.deps.Signature, hm.deps.Config.PublicBaseURL))
	}
	hm.voice.SetupVoiceRoutes(voiceRouter)
}

// SetupAPIRoutes sets up the monitoring API behind the API key
func (hm *HandlerManager) SetupAPIRoutes(router *mux.Router) {
	apiRouter := router.PathPrefix("/api").Subrouter()
	apiRouter.Use(APIKeyMiddleware(hm.deps.Config.SecretKey))
	hm.calls.SetupCallRoutes(apiRouter)

	router.PathPrefix("/api/").HandlerFunc(handleCORS).Methods(http.MethodOptions)
}

// Health reports liveness and the state of each dependency
func (hm *HandlerManager) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	status := "ok"
	code := http.StatusOK
	checks := make(map[string]string, len(hm.deps.Checks))

	for name, check := range hm.deps.Checks {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	writeJSON(w, code, map[string]interface{}{
		"status":       status,
		"instance_id":  hm.deps.Config.InstanceID,
		"active_calls": len(hm.deps.Calls.LiveCalls()),
		"ws_clients":   hm.hub.ClientCount(),
		"checks":       checks,
	})
}

// Close detaches the transcript hub
func (hm *HandlerManager) Close() {
	hm.hub.Close()
}

// handleCORS handles CORS preflight requests for API routes
func handleCORS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
	w.WriteHeader(http.StatusOK)
}
