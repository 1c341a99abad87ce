package emergency

import (
	"context"

	"wisefido-sos/internal/errs"
	"wisefido-sos/internal/models"

	"go.uber.org/zap"
)

// ShareResult 位置分享结果
type ShareResult struct {
	Success  bool                    `json:"success"`
	Location *models.LocationFix     `json:"location,omitempty"`
	Contacts *models.DispatchSummary `json:"contacts,omitempty"`
	Message  string                  `json:"message,omitempty"`
	Error    string                  `json:"error,omitempty"`
}

// ShareLocation 向启用的联系人发送当前位置（非紧急）
// 不经过状态机，也不占用 active 标记
func (o *Orchestrator) ShareLocation(ctx context.Context, userName string) (*ShareResult, error) {
	fix, err := o.deps.Location.GetCurrentFix(ctx)
	if err != nil {
		e := asKind(err, errs.KindUnknown, "failed to get location")
		return &ShareResult{Success: false, Error: e.Error()}, e
	}

	message := o.deps.Messages.Share(userName, fix)
	dispatch, err := o.deps.Notifier.DispatchToAll(ctx, message, userName)
	if err != nil {
		e := asKind(err, errs.KindUnknown, "failed to share location")
		return &ShareResult{Success: false, Location: &fix, Error: e.Error()}, e
	}
	summary := dispatch.Summary

	if _, err := o.deps.History.Append(ctx, models.HistoryRecord{
		Type:     models.HistoryTypeShare,
		Location: &fix,
		Contacts: &summary,
		Message:  message,
	}); err != nil {
		o.logger.Error("Failed to persist location share history", zap.Error(err))
	}

	return &ShareResult{
		Success:  dispatch.Success,
		Location: &fix,
		Contacts: &summary,
		Message:  message,
	}, nil
}
