package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"wisefido-sos/internal/history"
	"wisefido-sos/internal/models"
	"wisefido-sos/internal/repository"

	"go.uber.org/zap"
)

// HistoryService 历史记录（history.Store 实现）
type HistoryService interface {
	List(ctx context.Context, opts history.ListOptions) ([]models.HistoryRecord, error)
}

// HistoryQuery 分页查询（repository.AlertHistoryRepository 实现，可为 nil）
type HistoryQuery interface {
	ListRecords(ctx context.Context, filters repository.AlertHistoryFilters, page, size int) ([]models.HistoryRecord, int, error)
}

type HistoryHandler struct {
	history HistoryService
	query   HistoryQuery
	logger  *zap.Logger
}

func NewHistoryHandler(svc HistoryService, query HistoryQuery, logger *zap.Logger) *HistoryHandler {
	return &HistoryHandler{history: svc, query: query, logger: logger}
}

func parseSince(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// List GET /api/v1/history?type=&since=&limit=
// 带 page 参数且启用了数据库镜像时走分页查询
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	since, err := parseSince(q.Get("since"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid since, expected RFC3339"))
		return
	}
	recordType := q.Get("type")

	if h.query != nil && q.Get("page") != "" {
		filters := repository.AlertHistoryFilters{StartTime: since}
		if recordType != "" {
			filters.RecordType = &recordType
		}
		page := parseInt(q.Get("page"), 1)
		size := parseInt(q.Get("size"), 20)
		items, total, err := h.query.ListRecords(r.Context(), filters, page, size)
		if err != nil {
			h.logger.Error("Failed to query alert history", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, Fail("failed to query history"))
			return
		}
		writeJSON(w, http.StatusOK, Ok(map[string]any{
			"items": items,
			"total": total,
			"page":  page,
			"size":  size,
		}))
		return
	}

	items, err := h.history.List(r.Context(), history.ListOptions{
		Type:  recordType,
		Since: since,
		Limit: parseInt(q.Get("limit"), 0),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"items": items,
		"total": len(items),
	}))
}

// Export GET /api/v1/history/export 导出 xlsx
func (h *HistoryHandler) Export(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	since, err := parseSince(q.Get("since"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid since, expected RFC3339"))
		return
	}
	items, err := h.history.List(r.Context(), history.ListOptions{Type: q.Get("type"), Since: since})
	if err != nil {
		writeError(w, err)
		return
	}

	data, err := GenerateAlertHistoryExport(items)
	if err != nil {
		h.logger.Error("Failed to generate history export", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to generate export"))
		return
	}

	filename := fmt.Sprintf("alert_history_%s.xlsx", time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
