package types

import "time"

// AnalysisType 图像分析类型
type AnalysisType string

const (
	AnalysisLifestyle AnalysisType = "lifestyle"
	AnalysisProduct   AnalysisType = "product"
)

// Valid 是否为受支持的分析类型
func (t AnalysisType) Valid() bool {
	return t == AnalysisLifestyle || t == AnalysisProduct
}

// ParseAnalysisType 解析分析类型，空值默认为 lifestyle
func ParseAnalysisType(s string) (AnalysisType, error) {
	if s == "" {
		return AnalysisLifestyle, nil
	}
	t := AnalysisType(s)
	if !t.Valid() {
		return "", NewValidationError("analysis_type must be one of: lifestyle, product")
	}
	return t, nil
}

// SourceKind 图像来源
type SourceKind string

const (
	SourcePath   SourceKind = "path"
	SourceURL    SourceKind = "url"
	SourceBase64 SourceKind = "base64"
)

// SecurityScanResult 单次请求的安全扫描结果，不落盘
type SecurityScanResult struct {
	PromptInjectionDetected bool     `json:"prompt_injection_detected"`
	PIIDetected             bool     `json:"pii_detected"`
	FileValidated           bool     `json:"file_validated"`
	URLValidated            *bool    `json:"url_validated,omitempty"`
	InjectionConfidence     float64  `json:"injection_confidence,omitempty"`
	InjectionPatterns       []string `json:"injection_patterns,omitempty"`
	PIITypes                []string `json:"pii_types,omitempty"`
}

// IntegrityInfo 图像完整性信息
type IntegrityInfo struct {
	Checksum   string    `json:"checksum"`
	Algorithm  string    `json:"algorithm"`
	SizeBytes  int       `json:"size_bytes"`
	MimeType   string    `json:"mime_type"`
	VerifiedAt time.Time `json:"verified_at"`
}

// SourceInfo 图像来源描述
type SourceInfo struct {
	Kind     SourceKind `json:"type"`
	Location string     `json:"location,omitempty"`
}

// AnalysisResult analyze_image 的返回结构。
// Metadata 由模型生成，结构随分析类型变化，原样透传。
type AnalysisResult struct {
	AnalysisType  AnalysisType       `json:"analysis_type"`
	Confidence    float64            `json:"confidence"`
	Metadata      map[string]any     `json:"metadata"`
	SecurityScan  SecurityScanResult `json:"security_scan"`
	IntegrityInfo IntegrityInfo      `json:"integrity_info"`
	Source        SourceInfo         `json:"source"`
	Model         string             `json:"model,omitempty"`
}

// UploadResult upload_to_supabase 的返回结构
type UploadResult struct {
	Bucket    string         `json:"bucket"`
	Path      string         `json:"path"`
	PublicURL string         `json:"public_url"`
	SizeBytes int            `json:"size_bytes"`
	MimeType  string         `json:"mime_type"`
	Checksum  string         `json:"checksum"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}
