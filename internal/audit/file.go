package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// FileBackendConfig JSONL 文件后端配置
type FileBackendConfig struct {
	Directory   string
	MaxFileSize int64
}

// FileBackend 按天滚动的 JSONL 审计文件
type FileBackend struct {
	dir         string
	maxFileSize int64
	currentFile *os.File
	currentDate string
	mu          sync.Mutex
	logger      *zap.Logger
}

// NewFileBackend 创建文件后端
func NewFileBackend(cfg FileBackendConfig, logger *zap.Logger) (*FileBackend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Directory == "" {
		cfg.Directory = "./audit_logs"
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 100 * 1024 * 1024
	}
	if err := os.MkdirAll(cfg.Directory, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}
	return &FileBackend{
		dir:         cfg.Directory,
		maxFileSize: cfg.MaxFileSize,
		logger:      logger.With(zap.String("component", "audit_file_backend")),
	}, nil
}

// Name 后端名称
func (f *FileBackend) Name() string { return "file" }

// Write 追加一行 JSON
func (f *FileBackend) Write(_ context.Context, entry Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	date := entry.Timestamp.UTC().Format("2006-01-02")
	if f.currentFile == nil || f.currentDate != date {
		if err := f.rotate(date); err != nil {
			return err
		}
	} else if info, err := f.currentFile.Stat(); err == nil && info.Size() >= f.maxFileSize {
		if err := f.rotate(date); err != nil {
			return err
		}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}
	if _, err := f.currentFile.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}

func (f *FileBackend) rotate(date string) error {
	if f.currentFile != nil {
		_ = f.currentFile.Close()
	}
	name := filepath.Join(f.dir, fmt.Sprintf("audit_%s_%d.jsonl", date, time.Now().UnixNano()))
	file, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create audit file: %w", err)
	}
	f.currentFile = file
	f.currentDate = date
	f.logger.Info("rotated audit file", zap.String("filename", name))
	return nil
}

// Close 关闭当前文件
func (f *FileBackend) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.currentFile == nil {
		return nil
	}
	err := f.currentFile.Close()
	f.currentFile = nil
	return err
}
