package guardrails

import (
	"context"
	"fmt"
	"unicode/utf8"
)

// LengthValidator 文本长度验证器，按 rune 计数
type LengthValidator struct {
	maxLength int
	priority  int
}

// NewLengthValidator 创建长度验证器
func NewLengthValidator(maxLength int) *LengthValidator {
	return &LengthValidator{maxLength: maxLength, priority: 10}
}

// Name 返回验证器名称
func (v *LengthValidator) Name() string {
	return "length_validator"
}

// Priority 返回优先级
func (v *LengthValidator) Priority() int {
	return v.priority
}

// Validate 实现 Validator 接口
func (v *LengthValidator) Validate(ctx context.Context, content string) (*ValidationResult, error) {
	result := NewValidationResult()
	if v.maxLength <= 0 {
		return result, nil
	}
	n := utf8.RuneCountInString(content)
	result.Metadata["length"] = n
	if n > v.maxLength {
		result.AddError(ValidationError{
			Code:     ErrCodeMaxLengthExceeded,
			Message:  fmt.Sprintf("input length %d exceeds maximum %d", n, v.maxLength),
			Severity: SeverityMedium,
		})
	}
	return result, nil
}
