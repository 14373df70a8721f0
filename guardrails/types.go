package guardrails

import (
	"context"
	"fmt"
)

// Validator 验证器接口
// 用于验证工具参数中文本内容的安全性
type Validator interface {
	// Validate 执行验证，返回验证结果
	Validate(ctx context.Context, content string) (*ValidationResult, error)
	// Name 返回验证器名称
	Name() string
	// Priority 返回优先级（数字越小优先级越高）
	Priority() int
}

// ValidationResult 验证结果
type ValidationResult struct {
	Valid    bool              `json:"valid"`
	Tripwire bool              `json:"tripwire,omitempty"` // 触发即中断整个请求
	Errors   []ValidationError `json:"errors,omitempty"`
	Warnings []string          `json:"warnings,omitempty"`
	Metadata map[string]any    `json:"metadata,omitempty"`
}

// NewValidationResult 创建一个有效的验证结果
func NewValidationResult() *ValidationResult {
	return &ValidationResult{
		Valid:    true,
		Errors:   []ValidationError{},
		Warnings: []string{},
		Metadata: make(map[string]any),
	}
}

// AddError 添加验证错误并将结果标记为无效
func (r *ValidationResult) AddError(err ValidationError) {
	r.Valid = false
	r.Errors = append(r.Errors, err)
}

// AddWarning 添加警告信息
func (r *ValidationResult) AddWarning(warning string) {
	r.Warnings = append(r.Warnings, warning)
}

// Merge 合并另一个验证结果
func (r *ValidationResult) Merge(other *ValidationResult) {
	if other == nil {
		return
	}
	if !other.Valid {
		r.Valid = false
	}
	if other.Tripwire {
		r.Tripwire = true
	}
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
	for k, v := range other.Metadata {
		r.Metadata[k] = v
	}
}

// HasCode 是否包含指定错误码
func (r *ValidationResult) HasCode(code string) bool {
	for _, e := range r.Errors {
		if e.Code == code {
			return true
		}
	}
	return false
}

// ValidationError 验证错误
type ValidationError struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Severity string `json:"severity"` // critical, high, medium, low
	Field    string `json:"field,omitempty"`
}

// Severity 常量定义
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
)

// Error 错误代码常量
const (
	ErrCodeInjectionDetected = "INJECTION_DETECTED"
	ErrCodePIIDetected       = "PII_DETECTED"
	ErrCodeMaxLengthExceeded = "MAX_LENGTH_EXCEEDED"
	ErrCodeURLBlocked        = "URL_BLOCKED"
	ErrCodePathRejected      = "PATH_REJECTED"
	ErrCodeValidationFailed  = "VALIDATION_FAILED"
)

// TripwireError 表示 Tripwire 被触发的错误。
type TripwireError struct {
	ValidatorName string
	Result        *ValidationResult
}

// Error 实现 error 接口
func (e *TripwireError) Error() string {
	return fmt.Sprintf("tripwire triggered by validator %q", e.ValidatorName)
}

// compareSeverity 比较严重级别，a 更严重时返回正数
func compareSeverity(a, b string) int {
	rank := map[string]int{
		SeverityLow:      1,
		SeverityMedium:   2,
		SeverityHigh:     3,
		SeverityCritical: 4,
	}
	return rank[a] - rank[b]
}
