package httpapi

import "wisefido-sos/internal/errs"

// Result 统一响应信封
// - code: 成功 2000，失败 -1
// - type: 'success' | 'error'
// - message: string
// - result: any
type Result[T any] struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
	Result  T      `json:"result"`
}

const (
	ResultSuccess = 2000
	ResultError   = -1
)

// ErrorDetail 失败时 result 中携带的错误分类
type ErrorDetail struct {
	Kind   errs.Kind         `json:"kind"`
	Stage  string            `json:"stage,omitempty"`
	Fields []errs.FieldError `json:"fields,omitempty"`
}

func Ok[T any](result T) Result[T] {
	return Result[T]{Code: ResultSuccess, Type: "success", Message: "ok", Result: result}
}

func Fail(message string) Result[any] {
	return Result[any]{Code: ResultError, Type: "error", Message: message, Result: nil}
}

// FailWithResult 失败信封，result 中保留调用结果（如紧急流程的失败结果）
func FailWithResult[T any](message string, result T) Result[T] {
	return Result[T]{Code: ResultError, Type: "error", Message: message, Result: result}
}

// FailErr 按错误分类生成失败信封
func FailErr(err error) Result[ErrorDetail] {
	detail := ErrorDetail{Kind: errs.KindOf(err)}
	if e := asError(err); e != nil {
		detail.Stage = e.Stage
		detail.Fields = e.Fields
	}
	return Result[ErrorDetail]{Code: ResultError, Type: "error", Message: err.Error(), Result: detail}
}
