package emergency

import "sync/atomic"

// Token 协作式取消标记；只在流程的两个检查点被读取
type Token struct {
	cancelled atomic.Bool
}

// Cancel 请求取消
func (t *Token) Cancel() {
	if t != nil {
		t.cancelled.Store(true)
	}
}

// Cancelled 是否已请求取消
func (t *Token) Cancelled() bool {
	return t != nil && t.cancelled.Load()
}
