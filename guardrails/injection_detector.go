package guardrails

import (
	"context"
	"encoding/base64"
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"
)

// InjectionPattern 注入模式
type InjectionPattern struct {
	Name        string
	Pattern     *regexp.Regexp
	Description string
	Severity    string
}

// InjectionDetectorConfig 注入检测器配置
type InjectionDetectorConfig struct {
	// Threshold 置信度严格大于该值时判定为注入
	Threshold float64
	// MaxDecodeDepth base64 解码递归的最大深度
	MaxDecodeDepth int
	// Block 为 true 时 Validate 在检测到注入时返回无效结果
	Block bool
	// CustomPatterns 自定义注入模式，会计入模式总数
	CustomPatterns []string
	// Priority 验证器优先级
	Priority int
}

// DefaultInjectionDetectorConfig 返回默认配置
func DefaultInjectionDetectorConfig() *InjectionDetectorConfig {
	return &InjectionDetectorConfig{
		Threshold:      0.3,
		MaxDecodeDepth: 1,
		Block:          true,
		Priority:       50, // 在 PII 检测之前
	}
}

// InjectionResult 注入检测结果
type InjectionResult struct {
	Detected   bool     `json:"detected"`
	Confidence float64  `json:"confidence"`
	Patterns   []string `json:"patterns"`
	// Score 命中模式数，解码后的载荷以 2 倍权重计入
	Score int `json:"score"`
}

// InjectionDetector 提示注入检测器。
// 启发式分类器：对新颖措辞会漏报，对包含触发短语的正常文本会误报。
type InjectionDetector struct {
	patterns       []*InjectionPattern
	threshold      float64
	maxDecodeDepth int
	block          bool
	priority       int
}

// base64 形态的子串，至少 16 个字符
var base64Candidate = regexp.MustCompile(`[A-Za-z0-9+/]{16,}={0,2}`)

// NewInjectionDetector 创建注入检测器
func NewInjectionDetector(config *InjectionDetectorConfig) *InjectionDetector {
	if config == nil {
		config = DefaultInjectionDetectorConfig()
	}

	detector := &InjectionDetector{
		patterns:       defaultInjectionPatterns(),
		threshold:      config.Threshold,
		maxDecodeDepth: config.MaxDecodeDepth,
		block:          config.Block,
		priority:       config.Priority,
	}
	if detector.maxDecodeDepth < 0 {
		detector.maxDecodeDepth = 0
	}

	for i, custom := range config.CustomPatterns {
		if re, err := regexp.Compile("(?i)" + custom); err == nil {
			detector.patterns = append(detector.patterns, &InjectionPattern{
				Name:        fmt.Sprintf("custom_%d", i),
				Pattern:     re,
				Description: "Custom injection pattern",
				Severity:    SeverityHigh,
			})
		}
	}

	return detector
}

// defaultInjectionPatterns 返回默认的有序注入模式列表
func defaultInjectionPatterns() []*InjectionPattern {
	return []*InjectionPattern{
		// 指令覆盖
		{
			Name:        "instruction_override",
			Pattern:     regexp.MustCompile(`(?i)\b(ignore|disregard|override|bypass)\s+(all\s+|any\s+|the\s+)?(previous|prior|above|earlier|preceding)\s+(instructions?|prompts?|rules?|guidelines?)`),
			Description: "Attempt to override previous instructions",
			Severity:    SeverityCritical,
		},
		{
			Name:        "prior_instruction_reference",
			Pattern:     regexp.MustCompile(`(?i)\b(previous|prior|earlier|original|initial)\s+(instructions?|directives?|system\s+messages?)\b`),
			Description: "Reference to the model's prior instructions",
			Severity:    SeverityMedium,
		},
		{
			Name:        "context_reset",
			Pattern:     regexp.MustCompile(`(?i)\bforget\s+(everything|all|what)\b|\b(new|updated|different)\s+instructions?\s*:`),
			Description: "Attempt to reset the model's context",
			Severity:    SeverityHigh,
		},
		// 提示词泄露
		{
			Name:        "prompt_exfiltration",
			Pattern:     regexp.MustCompile(`(?i)\b(reveal|show|print|repeat|output|leak|display)\s+(me\s+)?(the\s+|your\s+)?(hidden\s+|initial\s+)?(system\s+)?(prompt|instructions?)`),
			Description: "Attempt to extract the system prompt",
			Severity:    SeverityHigh,
		},
		{
			Name:        "system_prompt_reference",
			Pattern:     regexp.MustCompile(`(?i)\bsystem\s*prompt\b`),
			Description: "Reference to the system prompt",
			Severity:    SeverityMedium,
		},
		// 角色操纵
		{
			Name:        "role_manipulation",
			Pattern:     regexp.MustCompile(`(?i)\byou\s+are\s+now\b|\bact\s+as\s+(if\s+you\s+are\s+)?(a|an|the)\b|\bpretend\s+(to\s+be|you\s+are)\b`),
			Description: "Attempt to change the model's role",
			Severity:    SeverityHigh,
		},
		{
			Name:        "role_marker",
			Pattern:     regexp.MustCompile(`(?im)^\s*(system|assistant)\s*:|<\|im_start\|>|\[/?INST\]|<\s*/?\s*system\s*>`),
			Description: "Chat role marker injection",
			Severity:    SeverityCritical,
		},
		// HTML / 脚本
		{
			Name:        "script_tag",
			Pattern:     regexp.MustCompile(`(?i)<\s*/?\s*(script|iframe|object|embed|svg)\b|\bon(error|load|click)\s*=`),
			Description: "HTML or script tag",
			Severity:    SeverityHigh,
		},
		// 协议处理器
		{
			Name:        "protocol_handler",
			Pattern:     regexp.MustCompile(`(?i)\b(javascript|vbscript)\s*:|\bdata\s*:\s*text/html`),
			Description: "Dangerous protocol handler",
			Severity:    SeverityHigh,
		},
		// 越狱
		{
			Name:        "jailbreak",
			Pattern:     regexp.MustCompile(`(?i)\bjailbreak|\bdo\s+anything\s+now\b|\bdeveloper\s+mode\b`),
			Description: "Jailbreak attempt",
			Severity:    SeverityCritical,
		},
	}
}

// Name 返回验证器名称
func (d *InjectionDetector) Name() string {
	return "injection_detector"
}

// Priority 返回优先级
func (d *InjectionDetector) Priority() int {
	return d.priority
}

// PatternCount 模式总数 N
func (d *InjectionDetector) PatternCount() int {
	return len(d.patterns)
}

// Detect 检测输入中的注入
func (d *InjectionDetector) Detect(input string) InjectionResult {
	return d.DetectDepth(input, 0)
}

// DetectDepth 以显式深度执行检测，depth 达到 maxDecodeDepth 后不再解码 base64。
func (d *InjectionDetector) DetectDepth(input string, depth int) InjectionResult {
	result := InjectionResult{Patterns: []string{}}
	if input == "" || len(d.patterns) == 0 {
		return result
	}

	for _, p := range d.patterns {
		if p.Pattern.MatchString(input) {
			result.Score++
			result.Patterns = append(result.Patterns, p.Name)
		}
	}

	if depth < d.maxDecodeDepth {
		for _, candidate := range base64Candidate.FindAllString(input, -1) {
			decoded, ok := decodeBase64Text(candidate)
			if !ok {
				continue
			}
			inner := d.DetectDepth(decoded, depth+1)
			if inner.Score == 0 {
				continue
			}
			result.Score += 2 * inner.Score
			for _, name := range inner.Patterns {
				result.Patterns = append(result.Patterns, "base64:"+name)
			}
		}
	}

	result.Confidence = math.Min(float64(result.Score)/float64(len(d.patterns)), 1)
	result.Detected = result.Confidence > d.threshold
	return result
}

// decodeBase64Text 解码 base64 子串，只接受可打印的 UTF-8 文本
func decodeBase64Text(s string) (string, bool) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		raw, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
		if err != nil {
			return "", false
		}
	}
	if !utf8.Valid(raw) {
		return "", false
	}
	text := string(raw)
	for _, r := range text {
		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			return "", false
		}
	}
	return text, true
}

// Validate 执行注入检测验证
// 实现 Validator 接口
func (d *InjectionDetector) Validate(ctx context.Context, content string) (*ValidationResult, error) {
	result := NewValidationResult()

	detection := d.Detect(content)
	result.Metadata["injection_detected"] = detection.Detected
	result.Metadata["injection_confidence"] = detection.Confidence
	result.Metadata["injection_patterns"] = detection.Patterns

	if !detection.Detected {
		if detection.Score > 0 {
			result.AddWarning(fmt.Sprintf("suspicious patterns below threshold: %s", strings.Join(detection.Patterns, ", ")))
		}
		return result, nil
	}

	if !d.block {
		result.AddWarning(formatInjectionMessage(detection))
		return result, nil
	}

	result.AddError(ValidationError{
		Code:     ErrCodeInjectionDetected,
		Message:  formatInjectionMessage(detection),
		Severity: d.highestSeverity(detection.Patterns),
	})
	return result, nil
}

func (d *InjectionDetector) highestSeverity(names []string) string {
	highest := SeverityLow
	for _, name := range names {
		name = strings.TrimPrefix(name, "base64:")
		for _, p := range d.patterns {
			if p.Name == name && compareSeverity(p.Severity, highest) > 0 {
				highest = p.Severity
			}
		}
	}
	return highest
}

func formatInjectionMessage(r InjectionResult) string {
	return fmt.Sprintf("potential prompt injection detected (confidence %.2f): %s",
		r.Confidence, strings.Join(r.Patterns, ", "))
}
