package guardrails

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizer_Sanitize(t *testing.T) {
	s := NewSanitizer(0)

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"script block", "<script>alert(1)</script>hello", "hello"},
		{"html tags", "<b>bold</b> and <i>italic</i>", "bold and italic"},
		{"style block", "<style>body{}</style>text", "text"},
		{"null bytes", "a\x00b", "ab"},
		{"plain", "  a sunny beach  ", "a sunny beach"},
		{"comparison kept", "3 < 4 and 5 > 2", "3 < 4 and 5 > 2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Sanitize(tt.input))
		})
	}
}

func TestSanitizer_TruncatesByRune(t *testing.T) {
	s := NewSanitizer(5)
	assert.Equal(t, "héllo", s.Sanitize("héllo world"))
	assert.Equal(t, "你好世界啊", s.Sanitize("你好世界啊再见"))
}

func TestSanitizer_SanitizeArgs(t *testing.T) {
	s := NewSanitizer(100)
	args := map[string]any{
		"image_data": "<b>kept</b>",
		"bucket":     "<i>images</i>",
		"metadata": map[string]any{
			"title": "<script>x()</script>Shoe",
			"tags":  []any{"<b>red</b>", 3},
		},
		"count": 2,
	}

	out := s.SanitizeArgs(args, "image_data")

	assert.Equal(t, "<b>kept</b>", out["image_data"])
	assert.Equal(t, "images", out["bucket"])
	meta := out["metadata"].(map[string]any)
	assert.Equal(t, "Shoe", meta["title"])
	assert.Equal(t, []any{"red", 3}, meta["tags"])
	assert.Equal(t, 2, out["count"])
	assert.Equal(t, "<i>images</i>", args["bucket"], "input is not modified")
}
