package dispatch

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/BaSui01/visionmcp/types"
)

// 工具名称
const (
	ToolAnalyzeImage      = "analyze_image"
	ToolUploadToSupabase  = "upload_to_supabase"
	ToolGetSecurityStatus = "get_security_status"
)

// 参数名称
const (
	argImagePath    = "image_path"
	argImageURL     = "image_url"
	argImageData    = "image_data"
	argAnalysisType = "analysis_type"
	argBucket       = "bucket"
	argPath         = "path"
	argMetadata     = "metadata"
)

// Definition MCP 工具定义
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// prepared 校验后的工具参数
type prepared struct {
	analysisType types.AnalysisType
	imagePath    string
	imageURL     string
	imageData    string
	bucket       string
	path         string
	metadata     map[string]any
}

type toolFunc func(ctx context.Context, p *prepared, scan types.SecurityScanResult) (any, error)

type tool struct {
	def Definition
	// validate 参数校验，发生在任何外部调用之前
	validate func(args map[string]any) (*prepared, error)
	run      toolFunc
	// scanned 是否对文本参数执行安全扫描
	scanned bool
}

func analyzeImageDefinition() Definition {
	return Definition{
		Name: ToolAnalyzeImage,
		Description: "Analyze an image for lifestyle or product insights. " +
			"Provide exactly one of image_path, image_url or image_data.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				argImagePath: map[string]any{
					"type":        "string",
					"description": "Path to a local image file inside an allowed directory",
				},
				argImageURL: map[string]any{
					"type":        "string",
					"description": "Public http(s) URL of the image",
				},
				argImageData: map[string]any{
					"type":        "string",
					"description": "Base64 encoded image data, optionally as a data URI",
				},
				argAnalysisType: map[string]any{
					"type":        "string",
					"enum":        []string{string(types.AnalysisLifestyle), string(types.AnalysisProduct)},
					"default":     string(types.AnalysisLifestyle),
					"description": "Kind of analysis to run",
				},
			},
		},
	}
}

func uploadDefinition() Definition {
	return Definition{
		Name:        ToolUploadToSupabase,
		Description: "Upload a base64 encoded image to Supabase Storage.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				argImageData: map[string]any{
					"type":        "string",
					"description": "Base64 encoded image data",
				},
				argBucket: map[string]any{
					"type":        "string",
					"description": "Storage bucket name",
				},
				argPath: map[string]any{
					"type":        "string",
					"description": "Object path inside the bucket",
				},
				argMetadata: map[string]any{
					"type":        "object",
					"description": "Optional metadata echoed in the result",
				},
			},
			"required": []string{argImageData, argBucket, argPath},
		},
	}
}

func securityStatusDefinition() Definition {
	return Definition{
		Name:        ToolGetSecurityStatus,
		Description: "Report the active security configuration, rate limiter and audit log state.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	}
}

func validateAnalyzeArgs(args map[string]any) (*prepared, error) {
	p := &prepared{}
	var err error
	if p.imagePath, err = stringArg(args, argImagePath); err != nil {
		return nil, err
	}
	if p.imageURL, err = stringArg(args, argImageURL); err != nil {
		return nil, err
	}
	if p.imageData, err = stringArg(args, argImageData); err != nil {
		return nil, err
	}

	provided := 0
	for _, s := range []string{p.imagePath, p.imageURL, p.imageData} {
		if s != "" {
			provided++
		}
	}
	if provided != 1 {
		return nil, types.NewValidationError("exactly one of image_path, image_url or image_data is required")
	}

	raw, err := stringArg(args, argAnalysisType)
	if err != nil {
		return nil, err
	}
	if p.analysisType, err = types.ParseAnalysisType(raw); err != nil {
		return nil, err
	}
	return p, nil
}

func validateUploadArgs(args map[string]any) (*prepared, error) {
	p := &prepared{}
	var err error
	if p.imageData, err = stringArg(args, argImageData); err != nil {
		return nil, err
	}
	if p.bucket, err = stringArg(args, argBucket); err != nil {
		return nil, err
	}
	if p.path, err = stringArg(args, argPath); err != nil {
		return nil, err
	}
	if p.metadata, err = mapArg(args, argMetadata); err != nil {
		return nil, err
	}

	var missing []string
	if p.imageData == "" {
		missing = append(missing, argImageData)
	}
	if p.bucket == "" {
		missing = append(missing, argBucket)
	}
	if p.path == "" {
		missing = append(missing, argPath)
	}
	if len(missing) > 0 {
		return nil, types.NewValidationError("missing required arguments: " + strings.Join(missing, ", "))
	}
	return p, nil
}

func validateNoArgs(map[string]any) (*prepared, error) {
	return &prepared{}, nil
}

// stringArg 读取字符串参数，缺失返回空串，类型错误返回 ValidationError
func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", types.NewValidationError(fmt.Sprintf("%s must be a string", key))
	}
	return strings.TrimSpace(s), nil
}

func mapArg(args map[string]any, key string) (map[string]any, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, types.NewValidationError(fmt.Sprintf("%s must be an object", key))
	}
	return m, nil
}

// scanText 拼接需要扫描的文本参数。image_data 是二进制载荷，不参与扫描。
func scanText(args map[string]any) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		if k != argImageData {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		collectStrings(&b, args[k])
	}
	return strings.TrimSpace(b.String())
}

func collectStrings(b *strings.Builder, v any) {
	switch val := v.(type) {
	case string:
		if val != "" {
			b.WriteString(val)
			b.WriteByte('\n')
		}
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			collectStrings(b, val[k])
		}
	case []any:
		for _, item := range val {
			collectStrings(b, item)
		}
	}
}
