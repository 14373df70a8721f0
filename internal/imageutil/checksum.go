package imageutil

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// ChecksumAlgorithm 校验和算法名称
const ChecksumAlgorithm = "sha256"

// GenerateChecksum 返回 buf 的 SHA-256 十六进制摘要
func GenerateChecksum(buf []byte) string {
	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:])
}

// VerifyChecksum 以常量时间比较摘要
func VerifyChecksum(buf []byte, expected string) bool {
	got := GenerateChecksum(buf)
	return subtle.ConstantTimeCompare([]byte(got), []byte(strings.ToLower(expected))) == 1
}

// HashString 对字符串计算摘要，用于审计日志中的输入指纹
func HashString(s string) string {
	return GenerateChecksum([]byte(s))
}
