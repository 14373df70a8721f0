package dispatch

import (
	"github.com/BaSui01/visionmcp/types"
)

// State 请求在管线中的阶段
type State string

const (
	StateReceived    State = "RECEIVED"
	StateRateChecked State = "RATE_CHECKED"
	StateValidated   State = "VALIDATED"
	StateScanned     State = "SCANNED"
	StateDelegated   State = "DELEGATED"
	StateAudited     State = "AUDITED"
	StateResponded   State = "RESPONDED"
)

// CallRequest 一次工具调用
type CallRequest struct {
	// Identifier 限流与审计使用的调用方标识
	Identifier string
	Tool       string
	Args       map[string]any
	// RequestID 为空时自动生成
	RequestID string
}

// Response 管线输出。失败时 Result 恒为 nil。
type Response struct {
	RequestID        string
	Tool             string
	Result           any
	ProcessingTimeMS int64
	Err              *types.Error
	// FailedAt 失败发生的阶段，成功时为空
	FailedAt State
}

// IsError 是否失败
func (r *Response) IsError() bool {
	return r.Err != nil
}

// ErrorMessage 面向调用方的错误消息
func (r *Response) ErrorMessage() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.PublicMessage()
}

// RetryAfter 限流错误的重试秒数，其他情况为 0
func (r *Response) RetryAfter() int {
	if r.Err == nil {
		return 0
	}
	return r.Err.RetryAfter
}

// Envelope 返回对外的响应信封。
// 成功：success、request_id、processing_time_ms 和 result；失败：success 与 error，限流时附带 retry_after。
func (r *Response) Envelope() map[string]any {
	if r.IsError() {
		env := map[string]any{
			"success": false,
			"error":   r.ErrorMessage(),
		}
		if ra := r.RetryAfter(); ra > 0 {
			env["retry_after"] = ra
		}
		return env
	}
	return map[string]any{
		"success":            true,
		"request_id":         r.RequestID,
		"processing_time_ms": r.ProcessingTimeMS,
		"result":             r.Result,
	}
}
