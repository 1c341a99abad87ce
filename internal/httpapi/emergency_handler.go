package httpapi

import (
	"context"
	"net/http"
	"strings"

	"wisefido-sos/internal/emergency"
	"wisefido-sos/internal/errs"
	"wisefido-sos/internal/models"

	"go.uber.org/zap"
)

// EmergencyService 紧急流程（emergency.Orchestrator 实现）
type EmergencyService interface {
	Activate(ctx context.Context, userName, credential string) (*emergency.Result, error)
	Retry(ctx context.Context) (*emergency.Result, error)
	Cancel() bool
	Reset()
	Snapshot() emergency.Snapshot
	ShareLocation(ctx context.Context, userName string) (*emergency.ShareResult, error)
}

// LocationService 单次定位（location.Provider 实现）
type LocationService interface {
	GetCurrentFix(ctx context.Context) (models.LocationFix, error)
}

// UserNameSource 已保存的用户名
type UserNameSource interface {
	GetUserName(ctx context.Context) (string, error)
}

type EmergencyHandler struct {
	emergency         EmergencyService
	location          LocationService
	users             UserNameSource
	defaultCredential string
	logger            *zap.Logger
}

// NewEmergencyHandler defaultCredential 在请求未携带 privateKey 时使用，可为空（不上链）
func NewEmergencyHandler(svc EmergencyService, location LocationService, users UserNameSource, defaultCredential string, logger *zap.Logger) *EmergencyHandler {
	return &EmergencyHandler{
		emergency:         svc,
		location:          location,
		users:             users,
		defaultCredential: defaultCredential,
		logger:            logger,
	}
}

type activateRequest struct {
	UserName   string `json:"userName"`
	PrivateKey string `json:"privateKey"`
}

// resolveUserName 请求体优先，其次使用已保存的用户名
func (h *EmergencyHandler) resolveUserName(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name != "" {
		return name, nil
	}
	saved, err := h.users.GetUserName(ctx)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(saved) == "" {
		return "", errs.Validation([]errs.FieldError{{Field: "userName", Message: "user name is required"}})
	}
	return saved, nil
}

func (h *EmergencyHandler) Activate(w http.ResponseWriter, r *http.Request) {
	var req activateRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}
	userName, err := h.resolveUserName(r.Context(), req.UserName)
	if err != nil {
		writeError(w, err)
		return
	}
	credential := req.PrivateKey
	if credential == "" {
		credential = h.defaultCredential
	}

	// 客户端断开不中断流程，取消只能通过 /emergency/cancel
	res, err := h.emergency.Activate(context.WithoutCancel(r.Context()), userName, credential)
	h.writeEmergencyResult(w, res, err)
}

func (h *EmergencyHandler) Retry(w http.ResponseWriter, r *http.Request) {
	res, err := h.emergency.Retry(context.WithoutCancel(r.Context()))
	h.writeEmergencyResult(w, res, err)
}

func (h *EmergencyHandler) writeEmergencyResult(w http.ResponseWriter, res *emergency.Result, err error) {
	if err != nil {
		writeJSON(w, statusFor(err), FailWithResult(err.Error(), res))
		return
	}
	writeJSON(w, http.StatusOK, Ok(res))
}

func (h *EmergencyHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	requested := h.emergency.Cancel()
	writeJSON(w, http.StatusOK, Ok(map[string]any{"cancelRequested": requested}))
}

func (h *EmergencyHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.emergency.Reset()
	writeJSON(w, http.StatusOK, Ok(h.emergency.Snapshot()))
}

func (h *EmergencyHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Ok(h.emergency.Snapshot()))
}

type locationResponse struct {
	models.LocationFix
	AccuracyBand models.AccuracyBand `json:"accuracyBand"`
	Coordinates  string              `json:"coordinates"`
	Links        models.MapLinks     `json:"links"`
}

func (h *EmergencyHandler) CurrentLocation(w http.ResponseWriter, r *http.Request) {
	fix, err := h.location.GetCurrentFix(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(locationResponse{
		LocationFix:  fix,
		AccuracyBand: fix.Band(),
		Coordinates:  models.FormatCoordinates(fix.Latitude, fix.Longitude, 6),
		Links:        models.BuildMapLinks(fix.Latitude, fix.Longitude),
	}))
}

func (h *EmergencyHandler) ShareLocation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserName string `json:"userName"`
	}
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}
	userName, err := h.resolveUserName(r.Context(), req.UserName)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := h.emergency.ShareLocation(r.Context(), userName)
	if err != nil {
		writeJSON(w, statusFor(err), FailWithResult(err.Error(), res))
		return
	}
	writeJSON(w, http.StatusOK, Ok(res))
}
