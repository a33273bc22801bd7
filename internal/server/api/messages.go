package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ayusman/signlink/internal/classifier"
	"github.com/ayusman/signlink/internal/store"
)

// LatestFunc returns the most recent prediction, if there is one.
type LatestFunc func() (classifier.Prediction, bool)

// MessageHandler handles /api/messages: the "send as text" history.
type MessageHandler struct {
	store  *store.Store
	latest LatestFunc
}

// NewMessageHandler creates a MessageHandler. latest may be nil, in which case
// a message must always carry its own text.
func NewMessageHandler(s *store.Store, latest LatestFunc) *MessageHandler {
	return &MessageHandler{store: s, latest: latest}
}

// ServeHTTP routes collection and item requests.
func (h *MessageHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Expected paths: /api/messages or /api/messages/{id}
	path := strings.TrimPrefix(r.URL.Path, "/api/messages")
	path = strings.TrimPrefix(path, "/")

	if path == "" {
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		case http.MethodPost:
			h.create(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	id := path
	switch r.Method {
	case http.MethodGet:
		h.get(w, r, id)
	case http.MethodDelete:
		h.delete(w, r, id)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

type createMessageRequest struct {
	Text     string `json:"text"`
	Platform string `json:"platform"`
}

type messageResponse struct {
	ID         string  `json:"id"`
	Text       string  `json:"text"`
	Label      string  `json:"label,omitempty"`
	Confidence float32 `json:"confidence,omitempty"`
	Platform   string  `json:"platform"`
	Status     string  `json:"status"`
	CreatedAt  string  `json:"created_at"`
}

type listMessagesResponse struct {
	Messages []messageResponse `json:"messages"`
}

func toResponse(m *store.Message) messageResponse {
	return messageResponse{
		ID:         m.ID,
		Text:       m.Text,
		Label:      m.Label,
		Confidence: m.Confidence,
		Platform:   string(m.Platform),
		Status:     m.Status,
		CreatedAt:  m.CreatedAt.Format(time.RFC3339),
	}
}

// list handles GET /api/messages?limit=N.
func (h *MessageHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	messages, err := h.store.Messages().List(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list messages")
		return
	}

	response := listMessagesResponse{Messages: make([]messageResponse, 0, len(messages))}
	for _, m := range messages {
		response.Messages = append(response.Messages, toResponse(m))
	}
	writeJSON(w, http.StatusOK, response)
}

// create handles POST /api/messages. An empty text sends the latest
// recognized letter.
func (h *MessageHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createMessageRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}
	}

	m := &store.Message{
		Text:     strings.TrimSpace(req.Text),
		Platform: store.Platform(req.Platform),
	}

	if m.Text == "" && h.latest != nil {
		if p, ok := h.latest(); ok {
			m.Text = p.Label
			m.Label = p.Label
			m.Confidence = p.Confidence
		}
	}

	if m.Text == "" {
		writeError(w, http.StatusBadRequest, "No text and no recognized sign to send")
		return
	}

	if err := h.store.Messages().Create(m); err != nil {
		if errors.Is(err, store.ErrInvalid) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to create message")
		return
	}

	writeJSON(w, http.StatusCreated, toResponse(m))
}

// get handles GET /api/messages/{id}.
func (h *MessageHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	m, err := h.store.Messages().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Message not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get message")
		return
	}
	writeJSON(w, http.StatusOK, toResponse(m))
}

// delete handles DELETE /api/messages/{id}.
func (h *MessageHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.store.Messages().Delete(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Message not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete message")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
