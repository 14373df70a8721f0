package imageutil

import (
	"bytes"
	"path/filepath"
	"strings"
)

// DefaultMimeType 无法识别时的回退类型
const DefaultMimeType = "image/jpeg"

var extensionTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".gif":  "image/gif",
}

var (
	magicPNG  = []byte{0x89, 0x50, 0x4E, 0x47}
	magicJPEG = []byte{0xFF, 0xD8, 0xFF}
	magicRIFF = []byte{0x52, 0x49, 0x46, 0x46}
	magicGIF  = []byte("GIF8")
)

// DetectMimeType 先查扩展名表，未命中时比较字节签名，最后回退到 image/jpeg。
// 总是返回一个值。
func DetectMimeType(path string, buf []byte) string {
	if ext := strings.ToLower(filepath.Ext(path)); ext != "" {
		if m, ok := extensionTypes[ext]; ok {
			return m
		}
	}
	if m, ok := SniffMimeType(buf); ok {
		return m
	}
	return DefaultMimeType
}

// SniffMimeType 仅根据字节签名识别
func SniffMimeType(buf []byte) (string, bool) {
	switch {
	case bytes.HasPrefix(buf, magicPNG):
		return "image/png", true
	case bytes.HasPrefix(buf, magicJPEG):
		return "image/jpeg", true
	case bytes.HasPrefix(buf, magicRIFF):
		return "image/webp", true
	case bytes.HasPrefix(buf, magicGIF):
		return "image/gif", true
	default:
		return "", false
	}
}
