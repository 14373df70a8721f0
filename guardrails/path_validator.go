package guardrails

import (
	"fmt"
	"path/filepath"
	"strings"
)

// PathValidator 本地文件路径校验：拒绝空路径、NUL 字节、".." 段，
// 配置了基础目录时要求解析符号链接后的真实路径位于其中之一。
type PathValidator struct {
	baseDirs []string
}

// NewPathValidator 创建路径校验器
func NewPathValidator(cfg SecurityConfig) *PathValidator {
	var dirs []string
	for _, d := range cfg.AllowedBaseDirs() {
		abs, err := filepath.Abs(d)
		if err != nil {
			continue
		}
		if real, err := filepath.EvalSymlinks(abs); err == nil {
			abs = real
		}
		dirs = append(dirs, filepath.Clean(abs))
	}
	return &PathValidator{baseDirs: dirs}
}

// Validate 校验并返回清理后的绝对路径
func (v *PathValidator) Validate(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.ContainsRune(path, 0) {
		return "", fmt.Errorf("path contains null byte")
	}
	for _, seg := range strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			return "", fmt.Errorf("path traversal is not allowed")
		}
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("invalid path: %v", err)
	}
	abs = filepath.Clean(abs)

	if len(v.baseDirs) == 0 {
		return abs, nil
	}
	// 链接可能指向目录之外，以真实路径判定并返回真实路径
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("path cannot be resolved")
	}
	for _, base := range v.baseDirs {
		if real == base || strings.HasPrefix(real, base+string(filepath.Separator)) {
			return real, nil
		}
	}
	return "", fmt.Errorf("path is outside the allowed directories")
}

// ValidateObjectPath 校验对象存储内的相对路径
func ValidateObjectPath(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("path is empty")
	}
	if strings.ContainsRune(path, 0) {
		return fmt.Errorf("path contains null byte")
	}
	if strings.HasPrefix(path, "/") || strings.Contains(path, "\\") {
		return fmt.Errorf("path must be relative and use forward slashes")
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == ".." || seg == "." {
			return fmt.Errorf("path traversal is not allowed")
		}
	}
	return nil
}
