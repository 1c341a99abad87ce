package emergency

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"wisefido-sos/internal/errs"
	"wisefido-sos/internal/metrics"
	"wisefido-sos/internal/models"

	"go.uber.org/zap"
)

// 各阶段进度
const (
	progressLoading    = 10
	progressLocation   = 30
	progressLedger     = 60
	progressDispatch   = 80
	progressPersisting = 90
	progressDone       = 100
)

// ContactSource 启用中的联系人
type ContactSource interface {
	Active(ctx context.Context) ([]models.Contact, error)
}

// LocationSource 单次定位
type LocationSource interface {
	GetCurrentFix(ctx context.Context) (models.LocationFix, error)
}

// LedgerSubmitter 链上存证；失败折叠在 LedgerResult 中
type LedgerSubmitter interface {
	SubmitAlert(ctx context.Context, credential, userName string, latitude, longitude float64) models.LedgerResult
}

// Notifier 群发通知
type Notifier interface {
	DispatchToAll(ctx context.Context, message, senderName string) (*models.DispatchResult, error)
}

// HistoryAppender 历史记录
type HistoryAppender interface {
	Append(ctx context.Context, rec models.HistoryRecord) (models.HistoryRecord, error)
}

// MessageBuilder 消息模板
type MessageBuilder interface {
	Emergency(userName string, fix models.LocationFix) string
	Share(userName string, fix models.LocationFix) string
}

// Deps 编排器依赖
type Deps struct {
	Contacts ContactSource
	Location LocationSource
	Ledger   LedgerSubmitter
	Notifier Notifier
	History  HistoryAppender
	Messages MessageBuilder
}

// Snapshot 当前告警尝试的状态
type Snapshot struct {
	Step       models.Step             `json:"step"`
	Progress   int                     `json:"progress"`
	IsActive   bool                    `json:"isActive"`
	Location   *models.LocationFix     `json:"location,omitempty"`
	Blockchain *models.LedgerResult    `json:"blockchain,omitempty"`
	Contacts   *models.DispatchSummary `json:"contacts,omitempty"`
	Error      string                  `json:"error,omitempty"`
	ErrorKind  errs.Kind               `json:"errorKind,omitempty"`
	StartedAt  *time.Time              `json:"startedAt,omitempty"`
	FinishedAt *time.Time              `json:"finishedAt,omitempty"`
}

// Result Activate 的返回值
type Result struct {
	Success    bool                    `json:"success"`
	Location   *models.LocationFix     `json:"location,omitempty"`
	Contacts   *models.DispatchSummary `json:"contacts,omitempty"`
	Blockchain *models.LedgerResult    `json:"blockchain"`
	Message    string                  `json:"message,omitempty"`
	Error      string                  `json:"error,omitempty"`
	ErrorKind  errs.Kind               `json:"errorKind,omitempty"`
}

type request struct {
	userName   string
	credential string
}

// Orchestrator 紧急告警流程
// idle → loading → acquiring_location → submitting_ledger(可选) → dispatching → persisting → success
// 任一非终止阶段出错进入 error；success/error 通过 Reset 回到 idle
// 同一时间最多一个运行中的尝试
type Orchestrator struct {
	deps    Deps
	metrics *metrics.Metrics
	logger  *zap.Logger

	mu        sync.Mutex
	snap      Snapshot
	active    bool
	token     *Token
	last      *request
	observers []func(Snapshot)

	now func() time.Time
}

// NewOrchestrator 创建编排器
func NewOrchestrator(deps Deps, m *metrics.Metrics, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		deps:    deps,
		metrics: m,
		logger:  logger,
		snap:    Snapshot{Step: models.StepIdle},
		now:     time.Now,
	}
}

// OnProgress 注册状态观察者，每次状态变化时同步调用
func (o *Orchestrator) OnProgress(fn func(Snapshot)) {
	o.mu.Lock()
	o.observers = append(o.observers, fn)
	o.mu.Unlock()
}

// Snapshot 当前状态
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snap
}

// IsActive 是否有运行中的尝试
func (o *Orchestrator) IsActive() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active
}

// Activate 执行一次紧急告警，阻塞到成功或失败
// 已有运行中的尝试时直接拒绝，不改变任何状态
func (o *Orchestrator) Activate(ctx context.Context, userName, credential string) (*Result, error) {
	o.mu.Lock()
	if o.active {
		o.mu.Unlock()
		o.metrics.RecordAlertAttempt("rejected", 0)
		err := errs.New(errs.KindAlreadyActive, "Emergency already active")
		return &Result{Success: false, Error: err.Message, ErrorKind: err.Kind}, err
	}

	token := &Token{}
	started := o.now().UTC()
	o.active = true
	o.token = token
	o.last = &request{userName: userName, credential: credential}
	o.snap = Snapshot{Step: models.StepIdle, IsActive: true, StartedAt: &started}
	o.mu.Unlock()

	o.logger.Info("Emergency activated", zap.String("user_name", userName), zap.Bool("ledger", credential != ""))

	result, err := o.run(ctx, token, userName, credential)

	o.finish(token, err == nil)

	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	o.metrics.RecordAlertAttempt(outcome, o.now().Sub(started))
	return result, err
}

// run 依次执行各阶段；panic 也落到 error 状态
func (o *Orchestrator) run(ctx context.Context, token *Token, userName, credential string) (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("Emergency workflow panicked", zap.Any("panic", r))
			result, err = o.fail(token, models.StepError, errs.New(errs.KindUnknown, "unexpected error: %v", r))
		}
	}()

	// 1. 联系人
	o.transition(token, models.StepLoading, progressLoading, nil)
	active, err := o.deps.Contacts.Active(ctx)
	if err != nil {
		return o.fail(token, models.StepLoading, asKind(err, errs.KindUnknown, "failed to load contacts"))
	}
	if len(active) == 0 {
		return o.fail(token, models.StepLoading,
			errs.New(errs.KindNoContactsConfigured, "no active emergency contacts configured"))
	}

	// 2. 定位
	o.transition(token, models.StepAcquiringLocation, progressLocation, nil)
	fix, err := o.deps.Location.GetCurrentFix(ctx)
	if err != nil {
		return o.fail(token, models.StepAcquiringLocation, asKind(err, errs.KindUnknown, "failed to get location"))
	}
	o.transition(token, models.StepAcquiringLocation, progressLocation, func(s *Snapshot) {
		f := fix
		s.Location = &f
	})
	if token.Cancelled() {
		return o.fail(token, models.StepAcquiringLocation, errs.New(errs.KindCancelled, "emergency cancelled"))
	}

	message := o.deps.Messages.Emergency(userName, fix)

	// 3. 链上存证（可选，失败不影响后续）
	var ledgerResult *models.LedgerResult
	stage := models.StepAcquiringLocation
	if credential != "" && o.deps.Ledger != nil {
		o.transition(token, models.StepSubmittingLedger, progressLedger, nil)
		stage = models.StepSubmittingLedger
		lr := o.submitLedger(ctx, credential, userName, fix)
		ledgerResult = &lr
		o.transition(token, models.StepSubmittingLedger, progressLedger, func(s *Snapshot) {
			s.Blockchain = ledgerResult
		})
	}
	if token.Cancelled() {
		return o.fail(token, stage, errs.New(errs.KindCancelled, "emergency cancelled"))
	}

	// 4. 通知联系人
	o.transition(token, models.StepDispatching, progressDispatch, nil)
	dispatch, err := o.deps.Notifier.DispatchToAll(ctx, message, userName)
	if err != nil {
		return o.fail(token, models.StepDispatching, asKind(err, errs.KindUnknown, "failed to notify contacts"))
	}
	summary := dispatch.Summary
	o.transition(token, models.StepDispatching, progressDispatch, func(s *Snapshot) {
		s.Contacts = &summary
	})

	// 5. 历史记录（失败只记日志）
	o.transition(token, models.StepPersisting, progressPersisting, nil)
	if _, err := o.deps.History.Append(ctx, models.HistoryRecord{
		Type:       models.HistoryTypeEmergency,
		Location:   &fix,
		Contacts:   &summary,
		Message:    message,
		Blockchain: ledgerResult,
	}); err != nil {
		o.logger.Error("Failed to persist emergency history", zap.Error(err))
	}

	// 6. 完成
	o.transition(token, models.StepSuccess, progressDone, func(s *Snapshot) {
		finished := o.now().UTC()
		s.FinishedAt = &finished
	})

	o.logger.Info("Emergency completed",
		zap.Int("contacts_sent", summary.Sent),
		zap.Int("contacts_failed", summary.Failed),
		zap.Bool("ledger_success", ledgerResult != nil && ledgerResult.Success),
	)

	return &Result{
		Success:    true,
		Location:   &fix,
		Contacts:   &summary,
		Blockchain: ledgerResult,
		Message:    message,
	}, nil
}

// submitLedger 调用账本；panic 也转换为失败结果
func (o *Orchestrator) submitLedger(ctx context.Context, credential, userName string, fix models.LocationFix) (lr models.LedgerResult) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("Ledger submission panicked", zap.Any("panic", r))
			lr = models.LedgerResult{
				Success:   false,
				Error:     fmt.Sprintf("%v", r),
				ErrorKind: string(errs.KindLedgerSubmission),
			}
		}
	}()

	lr = o.deps.Ledger.SubmitAlert(ctx, credential, userName, fix.Latitude, fix.Longitude)
	if !lr.Success {
		o.logger.Warn("Ledger submission failed, continuing",
			zap.String("error", lr.Error),
			zap.String("kind", lr.ErrorKind),
		)
	}
	return lr
}

// transition 更新状态并通知观察者；token 已不是当前尝试时忽略
// 进度只增不减
func (o *Orchestrator) transition(token *Token, step models.Step, progress int, mutate func(*Snapshot)) {
	o.mu.Lock()
	if o.token != token {
		o.mu.Unlock()
		return
	}
	o.snap.Step = step
	if progress > o.snap.Progress {
		o.snap.Progress = progress
	}
	if mutate != nil {
		mutate(&o.snap)
	}
	snap := o.snap
	observers := append([]func(Snapshot){}, o.observers...)
	o.mu.Unlock()

	for _, fn := range observers {
		fn(snap)
	}
}

// fail 进入 error 状态并返回失败结果
func (o *Orchestrator) fail(token *Token, stage models.Step, cause *errs.Error) (*Result, error) {
	e := cause.Clone().WithStage(string(stage))

	o.transition(token, models.StepError, 0, func(s *Snapshot) {
		finished := o.now().UTC()
		s.Error = e.Error()
		s.ErrorKind = e.Kind
		s.FinishedAt = &finished
	})

	o.logger.Warn("Emergency failed",
		zap.String("stage", string(stage)),
		zap.String("kind", string(e.Kind)),
		zap.Error(e),
	)

	return &Result{Success: false, Error: e.Error(), ErrorKind: e.Kind}, e
}

// finish 清理运行标记（所有退出路径都会执行）
// 只有失败的尝试保留参数供 Retry 使用
func (o *Orchestrator) finish(token *Token, succeeded bool) {
	o.mu.Lock()
	if o.token == token {
		o.active = false
		o.token = nil
		o.snap.IsActive = false
		if succeeded {
			o.last = nil
		}
	}
	snap := o.snap
	observers := append([]func(Snapshot){}, o.observers...)
	o.mu.Unlock()

	for _, fn := range observers {
		fn(snap)
	}
}

// Cancel 请求取消当前尝试；只在定位后和存证后的检查点生效，已发出的调用不会被中断
func (o *Orchestrator) Cancel() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.token == nil {
		return false
	}
	o.token.Cancel()
	o.logger.Info("Emergency cancellation requested")
	return true
}

// Reset 回到 idle，清空进度和错误；运行中的尝试被取消并与编排器脱离
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	if o.token != nil {
		o.token.Cancel()
	}
	o.token = nil
	o.active = false
	o.last = nil
	o.snap = Snapshot{Step: models.StepIdle}
	snap := o.snap
	observers := append([]func(Snapshot){}, o.observers...)
	o.mu.Unlock()

	for _, fn := range observers {
		fn(snap)
	}
	o.logger.Info("Emergency state reset")
}

// Retry 在 error 状态下用上一次的参数重新执行
func (o *Orchestrator) Retry(ctx context.Context) (*Result, error) {
	o.mu.Lock()
	step := o.snap.Step
	last := o.last
	o.mu.Unlock()

	if step != models.StepError || last == nil {
		err := errs.New(errs.KindValidation, "retry is only allowed after a failed attempt")
		return &Result{Success: false, Error: err.Message, ErrorKind: err.Kind}, err
	}
	return o.Activate(ctx, last.userName, last.credential)
}

// asKind 保留已有分类；其它错误包装为 fallback
func asKind(err error, fallback errs.Kind, msg string) *errs.Error {
	var e *errs.Error
	if errors.As(err, &e) {
		return e
	}
	return errs.Wrap(fallback, err, "%s", msg)
}
