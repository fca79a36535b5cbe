package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/storyagent/internal/interfaces"
)

// ProfileHandler reads and writes profile settings in the key/value store
type ProfileHandler struct {
	kv       interfaces.KeyValueStorage
	validate *validator.Validate
	logger   arbor.ILogger
}

func NewProfileHandler(kv interfaces.KeyValueStorage, logger arbor.ILogger) *ProfileHandler {
	return &ProfileHandler{
		kv:       kv,
		validate: validator.New(),
		logger:   logger,
	}
}

type profileRequest struct {
	Key   string          `json:"key" validate:"required"`
	Value json.RawMessage `json:"value" validate:"required"`
}

// SettingsHandler routes GET and PUT /api/profile
func (h *ProfileHandler) SettingsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.GetSettingHandler(w, r)
	case http.MethodPut:
		h.PutSettingHandler(w, r)
	default:
		RequireMethod(w, r, http.MethodGet, http.MethodPut)
	}
}

// GetSettingHandler handles GET /api/profile?key=K. An unset key has a null value.
func (h *ProfileHandler) GetSettingHandler(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		writeProfileError(w, http.StatusBadRequest, `Missing "key" parameter`)
		return
	}

	var value interface{}
	stored, err := h.kv.Get(r.Context(), key)
	switch {
	case err == nil:
		value = stored
	case errors.Is(err, interfaces.ErrKeyNotFound):
	default:
		h.logger.Error().Err(err).Str("key", key).Msg("Failed to read profile setting")
		writeProfileError(w, http.StatusInternalServerError, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"key":     key,
		"value":   value,
	})
}

// PutSettingHandler handles PUT /api/profile with body {key, value}.
// Non-string values are stored as their JSON text.
func (h *ProfileHandler) PutSettingHandler(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProfileError(w, http.StatusBadRequest, `Missing "key" or "value" in body`)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeProfileError(w, http.StatusBadRequest, `Missing "key" or "value" in body`)
		return
	}

	pair, err := h.kv.Set(r.Context(), req.Key, settingValue(req.Value))
	if err != nil {
		h.logger.Error().Err(err).Str("key", req.Key).Msg("Failed to store profile setting")
		writeProfileError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.logger.Info().Str("key", pair.Key).Msg("Profile setting updated")
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    pair,
	})
}

func settingValue(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

func writeProfileError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}
