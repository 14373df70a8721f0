package imageutil

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/BaSui01/visionmcp/guardrails"
	"github.com/BaSui01/visionmcp/internal/tlsutil"
	"github.com/BaSui01/visionmcp/types"

	"go.uber.org/zap"
)

// DefaultFetchTimeout URL 抓取超时
const DefaultFetchTimeout = 10 * time.Second

// Source 图像来源，三者恰好提供一个
type Source struct {
	Path string
	URL  string
	Data string
}

// Image 已加载并校验的图像
type Image struct {
	Data         []byte
	MimeType     string
	Checksum     string
	Source       types.SourceInfo
	URLValidated *bool
}

// Integrity 返回完整性信息
func (img *Image) Integrity() types.IntegrityInfo {
	return types.IntegrityInfo{
		Checksum:   img.Checksum,
		Algorithm:  ChecksumAlgorithm,
		SizeBytes:  len(img.Data),
		MimeType:   img.MimeType,
		VerifiedAt: time.Now().UTC(),
	}
}

// LoaderConfig 加载器配置
type LoaderConfig struct {
	Security     guardrails.SecurityConfig
	FetchTimeout time.Duration
	HTTPClient   *http.Client
}

// Loader 从本地路径、URL 或 base64 加载图像，并执行大小与 MIME 白名单校验。
type Loader struct {
	security     guardrails.SecurityConfig
	paths        *guardrails.PathValidator
	validateURL  func(string) guardrails.URLValidation
	client       *http.Client
	fetchTimeout time.Duration
	logger       *zap.Logger
}

// NewLoader 创建加载器
func NewLoader(cfg LoaderConfig, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	urls := guardrails.NewURLValidator(cfg.Security)
	l := &Loader{
		security:     cfg.Security,
		paths:        guardrails.NewPathValidator(cfg.Security),
		validateURL:  urls.Validate,
		fetchTimeout: cfg.FetchTimeout,
		logger:       logger.With(zap.String("component", "image_loader")),
	}
	l.client = cfg.HTTPClient
	if l.client == nil {
		l.client = tlsutil.GuardedHTTPClient(cfg.FetchTimeout, l.checkRedirect)
	}
	return l
}

func (l *Loader) checkRedirect(u *url.URL) error {
	if v := l.validateURL(u.String()); !v.Valid {
		return errors.New(v.Error)
	}
	return nil
}

// Load 加载并校验图像
func (l *Loader) Load(ctx context.Context, src Source) (*Image, error) {
	var (
		img *Image
		err error
	)
	switch {
	case src.Path != "":
		img, err = l.loadPath(src.Path)
	case src.URL != "":
		img, err = l.loadURL(ctx, src.URL)
	case src.Data != "":
		img, err = l.loadBase64(src.Data)
	default:
		return nil, types.NewValidationError("one of image_path, image_data or image_url is required")
	}
	if err != nil {
		return nil, err
	}
	if err := l.validate(img); err != nil {
		return nil, err
	}
	img.Checksum = GenerateChecksum(img.Data)
	return img, nil
}

func (l *Loader) loadPath(path string) (*Image, error) {
	clean, err := l.paths.Validate(path)
	if err != nil {
		return nil, types.NewValidationError("invalid image_path: " + err.Error())
	}
	info, err := os.Stat(clean)
	if err != nil {
		return nil, types.NewValidationError("image_path is not readable").WithCause(err)
	}
	if !info.Mode().IsRegular() {
		return nil, types.NewValidationError("image_path is not a regular file")
	}
	if info.Size() > l.security.MaxFileSize() {
		return nil, l.tooLarge(info.Size())
	}
	data, err := os.ReadFile(clean)
	if err != nil {
		return nil, types.NewValidationError("image_path is not readable").WithCause(err)
	}
	return &Image{
		Data:     data,
		MimeType: detect(clean, data),
		Source:   types.SourceInfo{Kind: types.SourcePath, Location: clean},
	}, nil
}

func (l *Loader) loadURL(ctx context.Context, raw string) (*Image, error) {
	v := l.validateURL(raw)
	if !v.Valid {
		return nil, types.NewValidationError("invalid image_url: " + v.Error)
	}
	validated := true

	ctx, cancel := context.WithTimeout(ctx, l.fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		return nil, types.NewValidationError("invalid image_url").WithCause(err)
	}
	req.Header.Set("Accept", "image/*")

	resp, err := l.client.Do(req)
	if err != nil {
		if errors.Is(err, tlsutil.ErrRedirectBlocked) {
			return nil, types.NewValidationError("invalid image_url: redirect target blocked")
		}
		if isTimeout(ctx, err) {
			return nil, types.NewTimeoutError("fetch", fmt.Errorf("no response within %s", l.fetchTimeout))
		}
		return nil, types.NewCollaboratorError("fetch", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, types.NewCollaboratorError("fetch", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	if resp.ContentLength > l.security.MaxFileSize() {
		return nil, l.tooLarge(resp.ContentLength)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, l.security.MaxFileSize()+1))
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, types.NewTimeoutError("fetch", fmt.Errorf("body not received within %s", l.fetchTimeout))
		}
		return nil, types.NewCollaboratorError("fetch", err)
	}
	if int64(len(data)) > l.security.MaxFileSize() {
		return nil, l.tooLarge(int64(len(data)))
	}

	l.logger.Debug("image fetched", zap.String("host", req.URL.Host), zap.Int("bytes", len(data)))

	u, _ := url.Parse(raw)
	return &Image{
		Data:         data,
		MimeType:     detect(u.Path, data),
		Source:       types.SourceInfo{Kind: types.SourceURL, Location: raw},
		URLValidated: &validated,
	}, nil
}

func (l *Loader) loadBase64(encoded string) (*Image, error) {
	payload := strings.TrimSpace(encoded)
	// data URI 中声明的类型不可信，只取载荷
	if strings.HasPrefix(payload, "data:") {
		comma := strings.IndexByte(payload, ',')
		if comma < 0 || !strings.Contains(payload[:comma], ";base64") {
			return nil, types.NewValidationError("image_data data URI must be base64 encoded")
		}
		payload = payload[comma+1:]
	}

	// 解码前按编码长度预估，避免为超大载荷分配内存
	if int64(base64.StdEncoding.DecodedLen(len(payload))) > l.security.MaxFileSize()+2 {
		return nil, l.tooLarge(int64(base64.StdEncoding.DecodedLen(len(payload))))
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, types.NewValidationError("image_data is not valid base64").WithCause(err)
	}
	if int64(len(data)) > l.security.MaxFileSize() {
		return nil, l.tooLarge(int64(len(data)))
	}

	return &Image{
		Data:     data,
		MimeType: DetectMimeType("", data),
		Source:   types.SourceInfo{Kind: types.SourceBase64},
	}, nil
}

func (l *Loader) validate(img *Image) error {
	if len(img.Data) == 0 {
		return types.NewValidationError("image is empty")
	}
	// 扩展名不能替代字节签名，签名无法识别的内容一律拒绝
	if _, ok := SniffMimeType(img.Data); !ok {
		return types.NewValidationError("content is not a recognised image format")
	}
	if !l.security.IsMimeAllowed(img.MimeType) {
		return types.NewValidationError(fmt.Sprintf("mime type %s is not allowed", img.MimeType))
	}
	return nil
}

func (l *Loader) tooLarge(size int64) error {
	return types.NewValidationError(fmt.Sprintf("image size %d exceeds maximum %d bytes", size, l.security.MaxFileSize()))
}

// detect 字节签名优先于扩展名，内容与扩展名不一致时以内容为准
func detect(path string, data []byte) string {
	if m, ok := SniffMimeType(data); ok {
		return m
	}
	return DetectMimeType(path, data)
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var ne interface{ Timeout() bool }
	return errors.As(err, &ne) && ne.Timeout()
}
