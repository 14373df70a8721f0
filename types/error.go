package types

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode 统一错误码
type ErrorCode string

// 请求与配置错误码
const (
	ErrConfiguration      ErrorCode = "CONFIGURATION"
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"
	ErrUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrRateLimited        ErrorCode = "RATE_LIMITED"
	ErrToolNotFound       ErrorCode = "TOOL_NOT_FOUND"
	ErrGuardrailsViolated ErrorCode = "GUARDRAILS_VIOLATED"
)

// 外部协作方（模型 / 存储）错误码
const (
	ErrUpstreamError   ErrorCode = "UPSTREAM_ERROR"
	ErrUpstreamTimeout ErrorCode = "UPSTREAM_TIMEOUT"
	ErrInternalError   ErrorCode = "INTERNAL_ERROR"
)

// Error 结构化错误
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	RetryAfter int       `json:"retry_after,omitempty"` // 秒，仅限流错误
	Stage      string    `json:"stage,omitempty"`       // 失败的协作阶段，如 gemini / supabase / fetch
	Cause      error     `json:"-"`
}

// Error 实现 error 接口
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 返回底层错误
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError 创建错误
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause 设置底层错误
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus 设置 HTTP 状态码
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryAfter 设置重试等待秒数
func (e *Error) WithRetryAfter(seconds int) *Error {
	e.RetryAfter = seconds
	return e
}

// WithStage 设置失败阶段
func (e *Error) WithStage(stage string) *Error {
	e.Stage = stage
	return e
}

// PublicMessage 返回可以回传给调用方的消息，不含底层错误细节以外的内部状态。
func (e *Error) PublicMessage() string {
	switch {
	case e.Stage != "" && e.Cause != nil:
		return fmt.Sprintf("%s: %s: %v", e.Stage, e.Message, e.Cause)
	case e.Stage != "":
		return fmt.Sprintf("%s: %s", e.Stage, e.Message)
	default:
		return e.Message
	}
}

// AsError 提取 *Error
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// GetErrorCode 提取错误码
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// IsErrorCode 判断错误码
func IsErrorCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}

// NewConfigurationError 缺少必要配置或凭据
func NewConfigurationError(message string) *Error {
	return NewError(ErrConfiguration, message).WithHTTPStatus(http.StatusServiceUnavailable)
}

// NewValidationError 参数缺失、格式错误、超限、路径穿越、URL 被拦截等
func NewValidationError(message string) *Error {
	return NewError(ErrInvalidRequest, message).WithHTTPStatus(http.StatusBadRequest)
}

// NewGuardrailsError 安全扫描拦截
func NewGuardrailsError(message string) *Error {
	return NewError(ErrGuardrailsViolated, message).WithHTTPStatus(http.StatusBadRequest)
}

// NewRateLimitError 限流错误，携带 retryAfter 秒数
func NewRateLimitError(retryAfter int) *Error {
	return NewError(ErrRateLimited, fmt.Sprintf("rate limit exceeded, retry after %d seconds", retryAfter)).
		WithHTTPStatus(http.StatusTooManyRequests).
		WithRetryAfter(retryAfter)
}

// NewCollaboratorError 外部协作方调用失败，不重试
func NewCollaboratorError(stage string, cause error) *Error {
	return NewError(ErrUpstreamError, "upstream call failed").
		WithStage(stage).
		WithCause(cause).
		WithHTTPStatus(http.StatusBadGateway)
}

// NewTimeoutError 外部协作方调用超时
func NewTimeoutError(stage string, cause error) *Error {
	return NewError(ErrUpstreamTimeout, "timeout").
		WithStage(stage).
		WithCause(cause).
		WithHTTPStatus(http.StatusGatewayTimeout)
}

// NewInternalError 未预期的内部错误
func NewInternalError(message string) *Error {
	return NewError(ErrInternalError, message).WithHTTPStatus(http.StatusInternalServerError)
}

// NewToolNotFoundError 未知工具
func NewToolNotFoundError(name string) *Error {
	return NewError(ErrToolNotFound, fmt.Sprintf("unknown tool: %s", name)).WithHTTPStatus(http.StatusNotFound)
}
