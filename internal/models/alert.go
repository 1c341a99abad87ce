package models

import "time"

// Step 紧急流程所处阶段
type Step string

const (
	StepIdle              Step = "idle"
	StepLoading           Step = "loading"
	StepAcquiringLocation Step = "acquiring_location"
	StepSubmittingLedger  Step = "submitting_ledger"
	StepDispatching       Step = "dispatching"
	StepPersisting        Step = "persisting"
	StepSuccess           Step = "success"
	StepError             Step = "error"
)

// IsTerminal success/error 为终止状态
func (s Step) IsTerminal() bool {
	return s == StepSuccess || s == StepError
}

// LedgerResult 一次上链提交的结果
// 成功时 TransactionHash/BlockNumber/GasUsed 有值；失败时只有 Error
type LedgerResult struct {
	Success         bool   `json:"success"`
	TransactionHash string `json:"transactionHash,omitempty"`
	BlockNumber     uint64 `json:"blockNumber,omitempty"`
	GasUsed         uint64 `json:"gasUsed,omitempty"`
	ExplorerURL     string `json:"explorerUrl,omitempty"`
	Error           string `json:"error,omitempty"`
	ErrorKind       string `json:"errorKind,omitempty"`
}

// DeliveryResult 单个联系人的发送结果
type DeliveryResult struct {
	Contact string `json:"contact"`
	Phone   string `json:"phone"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// DispatchSummary 发送汇总
type DispatchSummary struct {
	Total  int `json:"total"`
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// DispatchResult 群发结果；至少一个联系人成功时 Success 为 true
type DispatchResult struct {
	Success bool             `json:"success"`
	Results []DeliveryResult `json:"results"`
	Summary DispatchSummary  `json:"summary"`
}

// HistoryType 历史记录类型
const (
	HistoryTypeEmergency = "emergency_alert"
	HistoryTypeShare     = "location_share"
)

// HistoryRecord 告警历史（只追加，写入后不再修改）
type HistoryRecord struct {
	ID         string           `json:"id"`
	Type       string           `json:"type"`
	Location   *LocationFix     `json:"location,omitempty"`
	Contacts   *DispatchSummary `json:"contacts,omitempty"`
	Message    string           `json:"message"`
	Blockchain *LedgerResult    `json:"blockchain"`
	Timestamp  time.Time        `json:"timestamp"`
}

// Settings 应用设置（K/V 键 "app_settings"）
type Settings struct {
	EnableNotifications bool   `json:"enableNotifications"`
	EnableVibration     bool   `json:"enableVibration"`
	EnableSound         bool   `json:"enableSound"`
	Theme               string `json:"theme"`
}

// DefaultSettings 默认设置
func DefaultSettings() Settings {
	return Settings{
		EnableNotifications: true,
		EnableVibration:     true,
		EnableSound:         true,
		Theme:               "light",
	}
}

// AppState 启动时的用户状态
type AppState struct {
	IsFirstTime    bool   `json:"isFirstTime"`
	UserName       string `json:"userName"`
	HasSeenWelcome bool   `json:"hasSeenWelcome"`
}
