package handler

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/ClareAI/astra-receptionist-service/internal/core/event"
	"github.com/ClareAI/astra-receptionist-service/pkg/logger"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsSendBuffer    = 64
	wsMaxReadBytes  = 4096
	wsPongWait      = 45 * time.Second
	wsPingInterval  = 15 * time.Second
	wsWriteDeadline = 10 * time.Second
)

// TranscriptFrame is one line of live transcription sent to dashboards
type TranscriptFrame struct {
	CallID     string `json:"call_sid"`
	Speaker    string `json:"speaker"`
	Transcript string `json:"transcript"`
	Timestamp  int64  `json:"timestamp"`
}

type hubClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// TranscriptHub fans transcript events out to websocket subscribers. Slow
// subscribers drop frames rather than stall the call.
type TranscriptHub struct {
	upgrader websocket.Upgrader
	clients  map[string]*hubClient
	mu       sync.RWMutex

	bus   event.EventBus
	subID event.SubscriptionID
}

// NewTranscriptHub creates an empty hub
func NewTranscriptHub() *TranscriptHub {
	return &TranscriptHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(*http.Request) bool {
				return true
			},
		},
		clients: make(map[string]*hubClient),
	}
}

// Attach subscribes the hub to transcript events on bus
func (h *TranscriptHub) Attach(bus event.EventBus) error {
	id, err := bus.Subscribe(event.Transcript, func(evt *event.CallEvent) {
		data, ok := evt.GetTranscriptData()
		if !ok {
			return
		}
		h.Broadcast(TranscriptFrame{
			CallID:     data.CallID,
			Speaker:    data.Speaker,
			Transcript: data.Transcript,
			Timestamp:  millis(data.Timestamp),
		})
	})
	if err != nil {
		return err
	}
	h.bus = bus
	h.subID = id
	return nil
}

// Broadcast sends frame to every connected client
func (h *TranscriptHub) Broadcast(frame TranscriptFrame) {
	payload, err := json.Marshal(frame)
	if err != nil {
		logger.Base().Warn("Failed to encode transcript frame", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		select {
		case client.send <- payload:
		default:
			logger.Base().Debug("Dropping transcript frame for slow client", zap.String("client_id", client.id))
		}
	}
}

// ClientCount returns the number of connected subscribers
func (h *TranscriptHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and streams frames until the client leaves
func (h *TranscriptHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Base().Warn("Websocket upgrade failed", zap.Error(err))
		return
	}

	client := &hubClient{id: uuid.NewString(), conn: conn, send: make(chan []byte, wsSendBuffer)}
	h.mu.Lock()
	h.clients[client.id] = client
	h.mu.Unlock()
	logger.Base().Info("Transcription client connected", zap.String("client_id", client.id))

	done := make(chan struct{})
	go h.writeLoop(client, done)
	h.readLoop(client)

	h.remove(client)
	close(done)
	_ = conn.Close()
	logger.Base().Info("Transcription client disconnected", zap.String("client_id", client.id))
}

// Close unsubscribes from the bus and disconnects every client
func (h *TranscriptHub) Close() {
	if h.bus != nil {
		_ = h.bus.Unsubscribe(event.Transcript, h.subID)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, client := range h.clients {
		_ = client.conn.Close()
		delete(h.clients, id)
	}
}

func (h *TranscriptHub) remove(client *hubClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, client.id)
}

// readLoop only drains control frames; the stream is one-way
func (h *TranscriptHub) readLoop(client *hubClient) {
	client.conn.SetReadLimit(wsMaxReadBytes)
	_ = client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *TranscriptHub) writeLoop(client *hubClient, done <-chan struct{}) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case msg := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(wsWriteDeadline))
			if err := client.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				_ = client.conn.Close()
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(wsWriteDeadline))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = client.conn.Close()
				return
			}
		}
	}
}
