package api

import (
	"encoding/json"
	"net/http"

	"github.com/ayusman/signlink/internal/store"
)

// SettingsHandler handles /api/settings: opaque UI preferences.
type SettingsHandler struct {
	store *store.Store
}

// NewSettingsHandler creates a SettingsHandler.
func NewSettingsHandler(s *store.Store) *SettingsHandler {
	return &SettingsHandler{store: s}
}

// ServeHTTP serves GET (all settings) and PUT (merge settings).
func (h *SettingsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.get(w)
	case http.MethodPut:
		h.put(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *SettingsHandler) get(w http.ResponseWriter) {
	settings, err := h.store.Settings().All()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load settings")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (h *SettingsHandler) put(w http.ResponseWriter, r *http.Request) {
	var req map[string]string
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Body must be a JSON object of strings")
		return
	}

	// Reject the whole request before anything is written.
	for key := range req {
		if key == "" {
			writeError(w, http.StatusBadRequest, "Setting keys must not be empty")
			return
		}
	}

	repo := h.store.Settings()
	for key, value := range req {
		if err := repo.Set(key, value); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to save settings")
			return
		}
	}

	h.get(w)
}
