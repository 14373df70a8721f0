package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/visionmcp/internal/imageutil"
	"github.com/BaSui01/visionmcp/internal/tlsutil"
	"github.com/BaSui01/visionmcp/types"

	"go.uber.org/zap"
)

const (
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com"
	DefaultGeminiModel   = "gemini-2.0-flash"
	DefaultGeminiTimeout = 30 * time.Second

	// 模型未给出 confidence 时使用
	DefaultConfidence = 0.8

	stageGemini     = "gemini"
	maxResponseBody = 4 << 20
)

// GeminiConfig Gemini 配置
type GeminiConfig struct {
	APIKey     string        `json:"-" yaml:"api_key"`
	BaseURL    string        `json:"base_url" yaml:"base_url"`
	Model      string        `json:"model" yaml:"model"`
	Timeout    time.Duration `json:"timeout" yaml:"timeout"`
	HTTPClient *http.Client  `json:"-" yaml:"-"`
}

// GeminiAnalyzer 通过 generateContent REST 接口分析图像。
// 使用 x-goog-api-key 请求头认证，图像以 inlineData 传入，要求 JSON 输出。
type GeminiAnalyzer struct {
	cfg    GeminiConfig
	client *http.Client
	logger *zap.Logger
}

// NewGeminiAnalyzer 创建分析器。APIKey 为空时不报错，首次调用时返回 ConfigurationError。
func NewGeminiAnalyzer(cfg GeminiConfig, logger *zap.Logger) *GeminiAnalyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGeminiBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultGeminiTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = tlsutil.SecureHTTPClient(cfg.Timeout)
	}
	return &GeminiAnalyzer{
		cfg:    cfg,
		client: client,
		logger: logger.With(zap.String("component", "gemini_analyzer")),
	}
}

// Name 协作方名称
func (g *GeminiAnalyzer) Name() string { return stageGemini }

// Configured 是否已配置 API Key
func (g *GeminiAnalyzer) Configured() bool { return strings.TrimSpace(g.cfg.APIKey) != "" }

// Model 使用的模型
func (g *GeminiAnalyzer) Model() string { return g.cfg.Model }

type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiGenerationConfig struct {
	Temperature      float32 `json:"temperature"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason,omitempty"`
	} `json:"candidates"`
	ModelVersion string `json:"modelVersion,omitempty"`
}

type geminiErrorResp struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Analyze 调用模型并解析返回的 JSON 文本
func (g *GeminiAnalyzer) Analyze(ctx context.Context, img *imageutil.Image, analysisType types.AnalysisType) (*Analysis, error) {
	if !g.Configured() {
		return nil, types.NewConfigurationError("GEMINI_API_KEY is not configured")
	}
	if img == nil || len(img.Data) == 0 {
		return nil, types.NewValidationError("image data is empty")
	}

	body := geminiRequest{
		Contents: []geminiContent{{
			Role: "user",
			Parts: []geminiPart{
				{Text: PromptFor(analysisType)},
				{InlineData: &geminiInlineData{
					MimeType: img.MimeType,
					Data:     base64.StdEncoding.EncodeToString(img.Data),
				}},
			},
		}},
		GenerationConfig: &geminiGenerationConfig{
			Temperature:      0.2,
			ResponseMimeType: "application/json",
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, types.NewInternalError("failed to encode gemini request").WithCause(err)
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", strings.TrimRight(g.cfg.BaseURL, "/"), g.cfg.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, types.NewInternalError("failed to build gemini request").WithCause(err)
	}
	req.Header.Set("x-goog-api-key", g.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, types.NewTimeoutError(stageGemini, err)
		}
		return nil, types.NewCollaboratorError(stageGemini, err)
	}
	defer resp.Body.Close()

	g.logger.Debug("gemini response",
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
		zap.String("analysis_type", string(analysisType)),
	)

	if resp.StatusCode >= 400 {
		return nil, types.NewCollaboratorError(stageGemini,
			fmt.Errorf("status=%d msg=%s", resp.StatusCode, readGeminiErrMsg(resp.Body)))
	}

	var gr geminiResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&gr); err != nil {
		if isTimeout(ctx, err) {
			return nil, types.NewTimeoutError(stageGemini, err)
		}
		return nil, types.NewCollaboratorError(stageGemini, fmt.Errorf("decode response: %w", err))
	}

	text := responseText(gr)
	if text == "" {
		return nil, types.NewCollaboratorError(stageGemini, errors.New("empty response"))
	}

	metadata, err := parseMetadata(text)
	if err != nil {
		return nil, types.NewCollaboratorError(stageGemini, err)
	}

	model := g.cfg.Model
	if gr.ModelVersion != "" {
		model = gr.ModelVersion
	}
	return &Analysis{
		Confidence: extractConfidence(metadata),
		Metadata:   metadata,
		Model:      model,
	}, nil
}

func responseText(gr geminiResponse) string {
	if len(gr.Candidates) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, p := range gr.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return strings.TrimSpace(sb.String())
}

// parseMetadata 解析模型输出，容忍 ```json 代码块包裹
func parseMetadata(text string) (map[string]any, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
		text = strings.TrimSpace(text)
	}

	var metadata map[string]any
	if err := json.Unmarshal([]byte(text), &metadata); err != nil {
		return nil, fmt.Errorf("unparseable model output: %w", err)
	}
	if metadata == nil {
		return nil, errors.New("unparseable model output: not a JSON object")
	}
	return metadata, nil
}

// extractConfidence 取出并移除 metadata 中的 confidence 字段
func extractConfidence(metadata map[string]any) float64 {
	raw, ok := metadata["confidence"]
	if !ok {
		return DefaultConfidence
	}
	delete(metadata, "confidence")

	c, ok := raw.(float64)
	if !ok || c < 0 || c > 1 {
		return DefaultConfidence
	}
	return c
}

func readGeminiErrMsg(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, 64<<10))
	var errResp geminiErrorResp
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		return fmt.Sprintf("%s (status: %s)", errResp.Error.Message, errResp.Error.Status)
	}
	return strings.TrimSpace(string(data))
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
