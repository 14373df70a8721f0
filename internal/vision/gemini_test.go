package vision

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BaSui01/visionmcp/internal/imageutil"
	"github.com/BaSui01/visionmcp/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngImage = &imageutil.Image{
	Data:     []byte("\x89PNG\r\n\x1a\nfake-image-bytes"),
	MimeType: "image/png",
}

func geminiReply(text string) map[string]any {
	return map[string]any{
		"candidates": []map[string]any{{
			"content": map[string]any{
				"role":  "model",
				"parts": []map[string]any{{"text": text}},
			},
			"finishReason": "STOP",
		}},
		"modelVersion": "gemini-2.0-flash-001",
	}
}

func newTestAnalyzer(t *testing.T, handler http.HandlerFunc) *GeminiAnalyzer {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewGeminiAnalyzer(GeminiConfig{
		APIKey:     "test-key",
		BaseURL:    server.URL,
		Timeout:    2 * time.Second,
		HTTPClient: server.Client(),
	}, nil)
}

func TestGeminiAnalyzer_Analyze(t *testing.T) {
	var captured geminiRequest
	a := newTestAnalyzer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-2.0-flash:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_ = json.NewEncoder(w).Encode(geminiReply(`{"product_type":"sneaker","brand":"Acme","confidence":0.93}`))
	})

	got, err := a.Analyze(context.Background(), pngImage, types.AnalysisProduct)
	require.NoError(t, err)

	assert.InDelta(t, 0.93, got.Confidence, 1e-9)
	assert.Equal(t, "sneaker", got.Metadata["product_type"])
	assert.NotContains(t, got.Metadata, "confidence")
	assert.Equal(t, "gemini-2.0-flash-001", got.Model)

	require.Len(t, captured.Contents, 1)
	parts := captured.Contents[0].Parts
	require.Len(t, parts, 2)
	assert.Equal(t, productPrompt, parts[0].Text)
	require.NotNil(t, parts[1].InlineData)
	assert.Equal(t, "image/png", parts[1].InlineData.MimeType)
	assert.Equal(t, "application/json", captured.GenerationConfig.ResponseMimeType)
}

func TestGeminiAnalyzer_FencedJSONAndDefaultConfidence(t *testing.T) {
	a := newTestAnalyzer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(geminiReply("```json\n{\"scene\":\"beach\"}\n```"))
	})

	got, err := a.Analyze(context.Background(), pngImage, types.AnalysisLifestyle)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfidence, got.Confidence)
	assert.Equal(t, "beach", got.Metadata["scene"])
}

func TestGeminiAnalyzer_MissingAPIKey(t *testing.T) {
	a := NewGeminiAnalyzer(GeminiConfig{}, nil)
	assert.False(t, a.Configured())

	_, err := a.Analyze(context.Background(), pngImage, types.AnalysisLifestyle)
	require.Error(t, err)
	assert.Equal(t, types.ErrConfiguration, types.GetErrorCode(err))
}

func TestGeminiAnalyzer_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		code    types.ErrorCode
		contain string
	}{
		{
			name: "upstream status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":{"code":403,"message":"API key not valid","status":"PERMISSION_DENIED"}}`))
			},
			code:    types.ErrUpstreamError,
			contain: "API key not valid",
		},
		{
			name: "unparseable output",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(geminiReply("I think this is a cat"))
			},
			code:    types.ErrUpstreamError,
			contain: "unparseable",
		},
		{
			name: "no candidates",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"candidates":[]}`))
			},
			code:    types.ErrUpstreamError,
			contain: "empty response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAnalyzer(t, tt.handler)
			_, err := a.Analyze(context.Background(), pngImage, types.AnalysisLifestyle)
			require.Error(t, err)
			assert.Equal(t, tt.code, types.GetErrorCode(err))

			e, ok := types.AsError(err)
			require.True(t, ok)
			assert.True(t, strings.HasPrefix(e.PublicMessage(), "gemini: "))
			assert.Contains(t, e.PublicMessage(), tt.contain)
		})
	}
}

func TestGeminiAnalyzer_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	a := NewGeminiAnalyzer(GeminiConfig{APIKey: "k", BaseURL: server.URL, Timeout: 50 * time.Millisecond}, nil)
	_, err := a.Analyze(context.Background(), pngImage, types.AnalysisLifestyle)
	require.Error(t, err)
	assert.Equal(t, types.ErrUpstreamTimeout, types.GetErrorCode(err))
}

func TestPromptFor(t *testing.T) {
	assert.Contains(t, PromptFor(types.AnalysisLifestyle), `"mood"`)
	assert.Contains(t, PromptFor(types.AnalysisProduct), `"price_range"`)
	assert.Equal(t, lifestylePrompt, PromptFor("unknown"))
}
