package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"wisefido-sos/internal/ledger"

	"go.uber.org/zap"
)

// LedgerService 账本查询（ledger.Client 实现）
type LedgerService interface {
	GetConnectionStatus(ctx context.Context) ledger.ConnectionStatus
	GetTotalAlerts(ctx context.Context) (uint64, error)
	GetAlert(ctx context.Context, index uint64) (*ledger.AlertRecord, error)
}

type LedgerHandler struct {
	ledger LedgerService
	logger *zap.Logger
}

// NewLedgerHandler svc 为 nil 表示未配置账本
func NewLedgerHandler(svc LedgerService, logger *zap.Logger) *LedgerHandler {
	return &LedgerHandler{ledger: svc, logger: logger}
}

func (h *LedgerHandler) configured(w http.ResponseWriter) bool {
	if h.ledger == nil {
		writeJSON(w, http.StatusServiceUnavailable, Fail("ledger not configured"))
		return false
	}
	return true
}

func (h *LedgerHandler) Status(w http.ResponseWriter, r *http.Request) {
	if h.ledger == nil {
		writeJSON(w, http.StatusOK, Ok(ledger.ConnectionStatus{Connected: false, Message: "ledger not configured"}))
		return
	}
	writeJSON(w, http.StatusOK, Ok(h.ledger.GetConnectionStatus(r.Context())))
}

func (h *LedgerHandler) Total(w http.ResponseWriter, r *http.Request) {
	if !h.configured(w) {
		return
	}
	total, err := h.ledger.GetTotalAlerts(r.Context())
	if err != nil {
		h.logger.Warn("Failed to read total alerts", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, Fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"total": total}))
}

// Alert GET /api/v1/ledger/alerts/{index}
func (h *LedgerHandler) Alert(w http.ResponseWriter, r *http.Request) {
	if !h.configured(w) {
		return
	}
	raw := strings.TrimPrefix(r.URL.Path, "/api/v1/ledger/alerts/")
	index, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid alert index"))
		return
	}
	rec, err := h.ledger.GetAlert(r.Context(), index)
	if err != nil {
		h.logger.Warn("Failed to read alert", zap.Uint64("index", index), zap.Error(err))
		writeJSON(w, http.StatusBadGateway, Fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, Ok(rec))
}
