package httpapi

import (
	"context"
	"net/http"
	"strings"

	"wisefido-sos/internal/errs"
	"wisefido-sos/internal/models"

	"go.uber.org/zap"
)

// ProfileStore 用户名与设置（store.Storage 实现）
type ProfileStore interface {
	Initialize(ctx context.Context) (models.AppState, error)
	SaveUserName(ctx context.Context, name string) error
	MarkWelcomeSeen(ctx context.Context) error
	GetSettings(ctx context.Context) (models.Settings, error)
	SaveSettings(ctx context.Context, settings models.Settings) error
}

type ProfileHandler struct {
	store  ProfileStore
	logger *zap.Logger
}

func NewProfileHandler(store ProfileStore, logger *zap.Logger) *ProfileHandler {
	return &ProfileHandler{store: store, logger: logger}
}

func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	state, err := h.store.Initialize(r.Context())
	if err != nil {
		h.logger.Error("Failed to load profile", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to load profile"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(state))
}

func (h *ProfileHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserName       string `json:"userName"`
		HasSeenWelcome bool   `json:"hasSeenWelcome"`
	}
	if err := readBodyJSON(r, maxBodyBytes, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}
	name := strings.TrimSpace(body.UserName)
	if name == "" {
		writeError(w, errs.Validation([]errs.FieldError{{Field: "userName", Message: "user name is required"}}))
		return
	}
	if err := h.store.SaveUserName(r.Context(), name); err != nil {
		h.logger.Error("Failed to save user name", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to save profile"))
		return
	}
	if body.HasSeenWelcome {
		if err := h.store.MarkWelcomeSeen(r.Context()); err != nil {
			h.logger.Error("Failed to save onboarding flag", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, Fail("failed to save profile"))
			return
		}
	}
	h.GetProfile(w, r)
}

func (h *ProfileHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.store.GetSettings(r.Context())
	if err != nil {
		h.logger.Error("Failed to load settings", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to load settings"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(settings))
}

// UpdateSettings 未提交的字段保留当前值
func (h *ProfileHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.store.GetSettings(r.Context())
	if err != nil {
		h.logger.Error("Failed to load settings", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to load settings"))
		return
	}
	if err := readBodyJSON(r, maxBodyBytes, &settings); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}
	if err := h.store.SaveSettings(r.Context(), settings); err != nil {
		h.logger.Error("Failed to save settings", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to save settings"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(settings))
}
