package guardrails

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// PIIType PII 类型
type PIIType string

const (
	PIITypeSSN        PIIType = "ssn"
	PIITypeEmail      PIIType = "email"
	PIITypePhone      PIIType = "phone"
	PIITypeCreditCard PIIType = "credit_card"
)

// PIIAction PII 处理动作。只做检测，不做脱敏。
type PIIAction string

const (
	// PIIActionWarn 仅标记，继续处理
	PIIActionWarn PIIAction = "warn"
	// PIIActionReject 拒绝请求
	PIIActionReject PIIAction = "reject"
)

// PIIResult PII 检测结果
type PIIResult struct {
	Detected bool     `json:"detected"`
	Types    []string `json:"types"`
}

// PIIDetectorConfig PII 检测器配置
type PIIDetectorConfig struct {
	Action   PIIAction
	Priority int
}

// DefaultPIIDetectorConfig 返回默认配置
func DefaultPIIDetectorConfig() *PIIDetectorConfig {
	return &PIIDetectorConfig{
		Action:   PIIActionWarn,
		Priority: 100,
	}
}

type piiPattern struct {
	kind    PIIType
	pattern *regexp.Regexp
}

// PIIDetector PII 检测器。
// 任意格式正确的 16 位数字序列都会被识别为信用卡号。
type PIIDetector struct {
	patterns []piiPattern
	action   PIIAction
	priority int
}

// NewPIIDetector 创建 PII 检测器
func NewPIIDetector(config *PIIDetectorConfig) *PIIDetector {
	if config == nil {
		config = DefaultPIIDetectorConfig()
	}
	action := config.Action
	if action == "" {
		action = PIIActionWarn
	}
	return &PIIDetector{
		patterns: defaultPIIPatterns(),
		action:   action,
		priority: config.Priority,
	}
}

// defaultPIIPatterns 固定顺序：ssn, email, phone, credit_card
func defaultPIIPatterns() []piiPattern {
	return []piiPattern{
		{PIITypeSSN, regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
		{PIITypeEmail, regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
		{PIITypePhone, regexp.MustCompile(`(?:\+?1[-.\s]?)?\(?\b\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`)},
		{PIITypeCreditCard, regexp.MustCompile(`\b(?:\d{4}[-\s]?){3}\d{4}\b`)},
	}
}

// Name 返回验证器名称
func (d *PIIDetector) Name() string {
	return "pii_detector"
}

// Priority 返回优先级
func (d *PIIDetector) Priority() int {
	return d.priority
}

// Detect 检测文本中出现的全部 PII 类型
func (d *PIIDetector) Detect(text string) PIIResult {
	result := PIIResult{Types: []string{}}
	for _, p := range d.patterns {
		if p.pattern.MatchString(text) {
			result.Types = append(result.Types, string(p.kind))
		}
	}
	result.Detected = len(result.Types) > 0
	return result
}

// Validate 执行 PII 检测验证
// 实现 Validator 接口
func (d *PIIDetector) Validate(ctx context.Context, content string) (*ValidationResult, error) {
	result := NewValidationResult()

	detection := d.Detect(content)
	result.Metadata["pii_detected"] = detection.Detected
	result.Metadata["pii_types"] = detection.Types
	if !detection.Detected {
		return result, nil
	}

	msg := fmt.Sprintf("PII detected: %s", strings.Join(detection.Types, ", "))
	if d.action == PIIActionReject {
		result.AddError(ValidationError{
			Code:     ErrCodePIIDetected,
			Message:  msg,
			Severity: SeverityHigh,
		})
		return result, nil
	}
	result.AddWarning(msg)
	return result, nil
}
