package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/resumeforge/resume-ai/internal/domain"
	"github.com/resumeforge/resume-ai/internal/settings"
)

type updateSettingsRequest struct {
	Profile *domain.UserProfile   `json:"profile,omitempty"`
	AI      *domain.AIPreferences `json:"ai,omitempty"`
}

func (h *Handler) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	userSettings := h.settings.GetUserSettings(r.Context(), userID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(userSettings)
}

func (h *Handler) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req updateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request format", nil)
		return
	}

	updated, err := h.settings.UpdateSettings(r.Context(), userID, settings.Update{
		Profile: req.Profile,
		AI:      req.AI,
	})
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request format", map[string]any{
				"reason": err.Error(),
			})
			return
		}
		slog.Error("settings update failed", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to update settings", nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(updated)
}
