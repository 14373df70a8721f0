package guardrails

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	scriptBlock = regexp.MustCompile(`(?is)<\s*(script|style)\b[^>]*>.*?<\s*/\s*(script|style)\s*>`)
	htmlTag     = regexp.MustCompile(`(?s)<\s*/?\s*[a-zA-Z!][^>]*>`)
)

// Sanitizer 输入清洗：去除脚本与 HTML 标签并按 rune 截断。纯函数，无状态。
type Sanitizer struct {
	maxLength int
}

// NewSanitizer 创建清洗器，maxLength <= 0 表示不截断
func NewSanitizer(maxLength int) *Sanitizer {
	return &Sanitizer{maxLength: maxLength}
}

// Sanitize 清洗单个字符串
func (s *Sanitizer) Sanitize(input string) string {
	out := strings.ToValidUTF8(input, "")
	out = strings.ReplaceAll(out, "\x00", "")
	out = scriptBlock.ReplaceAllString(out, "")
	out = htmlTag.ReplaceAllString(out, "")
	out = strings.TrimSpace(out)

	if s.maxLength > 0 && utf8.RuneCountInString(out) > s.maxLength {
		runes := []rune(out)
		out = string(runes[:s.maxLength])
	}
	return out
}

// SanitizeArgs 递归清洗参数中的字符串叶子节点，skip 中的顶层键保持原样。
// 返回新的 map，不修改入参。
func (s *Sanitizer) SanitizeArgs(args map[string]any, skip ...string) map[string]any {
	skipSet := make(map[string]bool, len(skip))
	for _, k := range skip {
		skipSet[k] = true
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		if skipSet[k] {
			out[k] = v
			continue
		}
		out[k] = s.sanitizeValue(v)
	}
	return out
}

func (s *Sanitizer) sanitizeValue(v any) any {
	switch val := v.(type) {
	case string:
		return s.Sanitize(val)
	case map[string]any:
		return s.SanitizeArgs(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = s.sanitizeValue(item)
		}
		return out
	default:
		return v
	}
}
