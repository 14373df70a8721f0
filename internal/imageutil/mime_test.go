package imageutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var (
	pngHeader  = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	jpegHeader = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10}
	webpHeader = []byte{0x52, 0x49, 0x46, 0x46, 0x24, 0x00, 0x00, 0x00, 'W', 'E', 'B', 'P'}
)

func TestDetectMimeType(t *testing.T) {
	tests := []struct {
		name string
		path string
		buf  []byte
		want string
	}{
		{"png ext with png bytes", "x.png", pngHeader, "image/png"},
		{"extension wins", "photo.webp", jpegHeader, "image/webp"},
		{"uppercase extension", "PHOTO.JPEG", nil, "image/jpeg"},
		{"gif extension", "a.gif", nil, "image/gif"},
		{"unknown ext png bytes", "x.bin", pngHeader, "image/png"},
		{"no ext jpeg bytes", "upload", jpegHeader, "image/jpeg"},
		{"no ext riff bytes", "", webpHeader, "image/webp"},
		{"no ext gif bytes", "", []byte("GIF89a\x01\x00"), "image/gif"},
		{"nothing known", "file.dat", []byte("hello"), "image/jpeg"},
		{"empty", "", nil, "image/jpeg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectMimeType(tt.path, tt.buf))
		})
	}
}

func TestSniffMimeType(t *testing.T) {
	m, ok := SniffMimeType(pngHeader)
	assert.True(t, ok)
	assert.Equal(t, "image/png", m)

	m, ok = SniffMimeType([]byte("GIF87a"))
	assert.True(t, ok)
	assert.Equal(t, "image/gif", m)

	_, ok = SniffMimeType([]byte{0x89, 0x50})
	assert.False(t, ok)

	_, ok = SniffMimeType([]byte("root:x:0:0:root:/root:/bin/bash"))
	assert.False(t, ok)
}
