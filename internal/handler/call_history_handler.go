package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/ClareAI/astra-receptionist-service/internal/domain"
	"github.com/ClareAI/astra-receptionist-service/internal/services/call"
	"github.com/ClareAI/astra-receptionist-service/pkg/logger"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// CallHistory reads finalized call records
type CallHistory interface {
	List(ctx context.Context, limit, offset int) ([]*domain.CallRecord, error)
	GetByCallSID(ctx context.Context, callSID string) (*domain.CallRecord, error)
}

// LiveCallLister lists calls in progress
type LiveCallLister interface {
	LiveCalls() []call.LiveCallView
}

// CallHistoryHandler serves the monitoring API
type CallHistoryHandler struct {
	records CallHistory
	live    LiveCallLister
}

// NewCallHistoryHandler creates the monitoring handler. records may be nil
// when no database is configured.
func NewCallHistoryHandler(records CallHistory, live LiveCallLister) *CallHistoryHandler {
	return &CallHistoryHandler{records: records, live: live}
}

// SetupCallRoutes registers the monitoring routes. /calls/live must be
// registered before /calls/{callSid}.
func (h *CallHistoryHandler) SetupCallRoutes(router *mux.Router) {
	router.HandleFunc("/calls", h.ListCalls).Methods(http.MethodGet)
	router.HandleFunc("/calls/live", h.ListLiveCalls).Methods(http.MethodGet)
	router.HandleFunc("/calls/{callSid}", h.GetCall).Methods(http.MethodGet)
}

// ListCalls returns recent call records, newest first
func (h *CallHistoryHandler) ListCalls(w http.ResponseWriter, r *http.Request) {
	if h.records == nil {
		writeError(w, http.StatusServiceUnavailable, "call history is not configured")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}

	records, err := h.records.List(r.Context(), limit, offset)
	if err != nil {
		logger.Base().Error("Failed to list calls", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list calls")
		return
	}
	if records == nil {
		records = []*domain.CallRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"calls":  records,
		"count":  len(records),
		"offset": offset,
	})
}

// ListLiveCalls returns the calls this instance is handling
func (h *CallHistoryHandler) ListLiveCalls(w http.ResponseWriter, r *http.Request) {
	calls := h.live.LiveCalls()
	if calls == nil {
		calls = []call.LiveCallView{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"calls": calls,
		"count": len(calls),
	})
}

// GetCall returns one call record
func (h *CallHistoryHandler) GetCall(w http.ResponseWriter, r *http.Request) {
	if h.records == nil {
		writeError(w, http.StatusServiceUnavailable, "call history is not configured")
		return
	}

	callSID := mux.Vars(r)["callSid"]
	record, err := h.records.GetByCallSID(r.Context(), callSID)
	if err != nil {
		logger.ForCall(callSID).Error("Failed to load call", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load call")
		return
	}
	if record == nil {
		writeError(w, http.StatusNotFound, "call not found")
		return
	}
	writeJSON(w, http.StatusOK, record)
}
