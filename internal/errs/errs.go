// Package errs 定义 SOS 服务统一的错误分类。
// 调用方通过 KindOf/IsKind 分支处理，不做错误消息子串匹配。
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Kind 错误类别
type Kind string

const (
	KindValidation           Kind = "ValidationError"
	KindDuplicate            Kind = "DuplicateError"
	KindNotFound             Kind = "NotFoundError"
	KindPermissionDenied     Kind = "PermissionDenied"
	KindPositionUnavailable  Kind = "PositionUnavailable"
	KindTimeout              Kind = "Timeout"
	KindNoContactsConfigured Kind = "NoContactsConfiguredError"
	KindInsufficientFunds    Kind = "InsufficientFundsError"
	KindLedgerSubmission     Kind = "LedgerSubmissionError"
	KindDelivery             Kind = "DeliveryError"
	KindCancelled            Kind = "CancelledError"
	KindAlreadyActive        Kind = "AlreadyActiveError"
	KindUnknown              Kind = "Unknown"
)

// FieldError 单个字段的校验失败
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error 带分类和上下文的错误
type Error struct {
	Kind      Kind
	Stage     string // 失败的流程阶段（可为空）
	Retryable bool
	Message   string
	Fields    []FieldError // 仅 ValidationError 使用
	Err       error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if len(e.Fields) > 0 {
		parts := make([]string, 0, len(e.Fields))
		for _, f := range e.Fields {
			parts = append(parts, f.Field+": "+f.Message)
		}
		msg = msg + " (" + strings.Join(parts, "; ") + ")"
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// New 创建指定类别的错误
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Retryable: defaultRetryable(kind)}
}

// Wrap 包装底层错误
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err, Retryable: defaultRetryable(kind)}
}

// Validation 创建包含全部失败字段的校验错误
func Validation(fields []FieldError) *Error {
	return &Error{Kind: KindValidation, Message: "validation failed", Fields: fields}
}

// Clone 浅拷贝，用于在不修改原错误的情况下补充上下文
func (e *Error) Clone() *Error {
	c := *e
	if e.Fields != nil {
		c.Fields = append([]FieldError(nil), e.Fields...)
	}
	return &c
}

// WithStage 标记失败阶段（返回同一个错误，便于链式调用）
func (e *Error) WithStage(stage string) *Error {
	e.Stage = stage
	return e
}

// KindOf 返回错误类别；非 *Error 返回 KindUnknown，nil 返回空
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind 判断错误链中是否包含指定类别
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsRetryable 判断错误是否可以重试
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

func defaultRetryable(kind Kind) bool {
	switch kind {
	case KindPositionUnavailable, KindTimeout, KindLedgerSubmission, KindDelivery, KindCancelled, KindUnknown:
		return true
	}
	return false
}
