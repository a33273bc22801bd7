package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/signlink/internal/classifier"
	"github.com/ayusman/signlink/internal/lgr"
)

const (
	// clientBuffer is how many predictions may queue for a slow client
	// before new ones are dropped for it.
	clientBuffer = 16
	writeTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

type predictionMessage struct {
	Label      string  `json:"label"`
	Confidence float32 `json:"confidence"`
	Timestamp  int64   `json:"timestamp"`
}

// PredictionHub pushes every prediction to connected WebSocket clients.
type PredictionHub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]chan []byte
}

// NewPredictionHub creates an empty hub.
func NewPredictionHub() *PredictionHub {
	return &PredictionHub{
		clients: make(map[*websocket.Conn]chan []byte),
	}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *PredictionHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		lgr.Logger.Warn("websocket upgrade error", slog.Any("error", err))
		return
	}
	defer conn.Close()

	send := make(chan []byte, clientBuffer)
	h.mu.Lock()
	h.clients[conn] = send
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Keep connection alive by reading messages
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case msg := <-send:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

// Publish queues p for every client without blocking.
func (h *PredictionHub) Publish(p classifier.Prediction) {
	msg, err := json.Marshal(predictionMessage{
		Label:      p.Label,
		Confidence: p.Confidence,
		Timestamp:  p.At.UnixMilli(),
	})
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, send := range h.clients {
		select {
		case send <- msg:
		default:
		}
	}
}

// Clients returns the number of connected clients.
func (h *PredictionHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
