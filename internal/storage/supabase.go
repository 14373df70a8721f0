package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BaSui01/visionmcp/guardrails"
	"github.com/BaSui01/visionmcp/internal/tlsutil"
	"github.com/BaSui01/visionmcp/types"

	"go.uber.org/zap"
)

const (
	DefaultBucket  = "images"
	DefaultTimeout = 30 * time.Second

	stageSupabase = "supabase"
)

var bucketNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{1,62}$`)

// SupabaseConfig Supabase Storage 配置
type SupabaseConfig struct {
	URL            string        `json:"url" yaml:"url"`
	ServiceRoleKey string        `json:"-" yaml:"service_role_key"`
	DefaultBucket  string        `json:"default_bucket" yaml:"default_bucket"`
	Timeout        time.Duration `json:"timeout" yaml:"timeout"`
	HTTPClient     *http.Client  `json:"-" yaml:"-"`
}

// SupabaseUploader 通过 Storage REST 接口上传对象
type SupabaseUploader struct {
	cfg    SupabaseConfig
	client *http.Client
	logger *zap.Logger
}

// NewSupabaseUploader 创建上传器，凭据缺失时首次上传返回 ConfigurationError
func NewSupabaseUploader(cfg SupabaseConfig, logger *zap.Logger) *SupabaseUploader {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultBucket == "" {
		cfg.DefaultBucket = DefaultBucket
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = tlsutil.SecureHTTPClient(cfg.Timeout)
	}
	return &SupabaseUploader{
		cfg:    cfg,
		client: client,
		logger: logger.With(zap.String("component", "supabase_uploader")),
	}
}

// Name 协作方名称
func (u *SupabaseUploader) Name() string { return stageSupabase }

// Configured URL 与密钥均已配置
func (u *SupabaseUploader) Configured() bool {
	return strings.TrimSpace(u.cfg.URL) != "" && strings.TrimSpace(u.cfg.ServiceRoleKey) != ""
}

// DefaultBucket 默认桶
func (u *SupabaseUploader) DefaultBucket() string { return u.cfg.DefaultBucket }

// ValidateBucket 校验桶名字符集
func ValidateBucket(bucket string) error {
	if !bucketNamePattern.MatchString(bucket) {
		return fmt.Errorf("invalid bucket name %q", bucket)
	}
	return nil
}

// Upload 上传对象并返回公开地址
func (u *SupabaseUploader) Upload(ctx context.Context, req UploadRequest) (*types.UploadResult, error) {
	if !u.Configured() {
		return nil, types.NewConfigurationError("SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY must be configured")
	}

	bucket := req.Bucket
	if bucket == "" {
		bucket = u.cfg.DefaultBucket
	}
	if err := ValidateBucket(bucket); err != nil {
		return nil, types.NewValidationError(err.Error())
	}
	if err := guardrails.ValidateObjectPath(req.Path); err != nil {
		return nil, types.NewValidationError("invalid object path: " + err.Error())
	}
	if len(req.Data) == 0 {
		return nil, types.NewValidationError("image data is empty")
	}

	base := strings.TrimRight(u.cfg.URL, "/")
	objectPath := escapeObjectPath(req.Path)
	endpoint := fmt.Sprintf("%s/storage/v1/object/%s/%s", base, url.PathEscape(bucket), objectPath)

	ctx, cancel := context.WithTimeout(ctx, u.cfg.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(req.Data))
	if err != nil {
		return nil, types.NewInternalError("failed to build upload request").WithCause(err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+u.cfg.ServiceRoleKey)
	httpReq.Header.Set("apikey", u.cfg.ServiceRoleKey)
	httpReq.Header.Set("Content-Type", req.MimeType)
	httpReq.Header.Set("x-upsert", strconv.FormatBool(req.Upsert))
	httpReq.Header.Set("Cache-Control", "3600")

	resp, err := u.client.Do(httpReq)
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, types.NewTimeoutError(stageSupabase, err)
		}
		return nil, types.NewCollaboratorError(stageSupabase, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, types.NewCollaboratorError(stageSupabase,
			fmt.Errorf("status=%d msg=%s", resp.StatusCode, readStorageErrMsg(resp.Body)))
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	u.logger.Info("object uploaded",
		zap.String("bucket", bucket),
		zap.String("path", req.Path),
		zap.Int("size", len(req.Data)),
	)

	return &types.UploadResult{
		Bucket:    bucket,
		Path:      req.Path,
		PublicURL: fmt.Sprintf("%s/storage/v1/object/public/%s/%s", base, url.PathEscape(bucket), objectPath),
		SizeBytes: len(req.Data),
		MimeType:  req.MimeType,
		Checksum:  req.Checksum,
		Metadata:  req.Metadata,
	}, nil
}

func escapeObjectPath(p string) string {
	segs := strings.Split(p, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}

func readStorageErrMsg(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, 64<<10))
	var errResp struct {
		StatusCode string `json:"statusCode"`
		Error      string `json:"error"`
		Message    string `json:"message"`
	}
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Message != "" {
		return fmt.Sprintf("%s (%s)", errResp.Message, errResp.Error)
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
