package handler

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
)

// AudioStore serves cached synthesized speech
type AudioStore interface {
	Get(id string) ([]byte, bool)
}

// TTSHandler serves audio referenced from TwiML <Play> verbs
type TTSHandler struct {
	audio AudioStore
}

// NewTTSHandler creates a TTS playback handler
func NewTTSHandler(audio AudioStore) *TTSHandler {
	return &TTSHandler{audio: audio}
}

// SetupTTSRoutes registers the playback route
func (h *TTSHandler) SetupTTSRoutes(router *mux.Router) {
	router.HandleFunc("/tts/{id}", h.ServeAudio).Methods(http.MethodGet)
}

// ServeAudio returns cached audio or 404
func (h *TTSHandler) ServeAudio(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	data, ok := h.audio.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "Audio not found")
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%s.mp3", id))
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
