package storage

import (
	"context"

	"github.com/BaSui01/visionmcp/types"
)

// UploadRequest 上传请求
type UploadRequest struct {
	Bucket   string
	Path     string
	Data     []byte
	MimeType string
	Checksum string
	Upsert   bool
	Metadata map[string]any
}

// Uploader 对象存储协作方
type Uploader interface {
	Upload(ctx context.Context, req UploadRequest) (*types.UploadResult, error)
	Name() string
}
