package audit

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Record audit_logs 表的行
type Record struct {
	ID         string    `gorm:"primaryKey;size:36"`
	Timestamp  time.Time `gorm:"index"`
	Tool       string    `gorm:"size:64;index"`
	Success    bool
	InputHash  string `gorm:"size:64"`
	Error      string `gorm:"type:text"`
	RequestID  string `gorm:"size:64"`
	Identifier string `gorm:"size:255;index"`
	DurationMS int64
}

// TableName 表名
func (Record) TableName() string { return "audit_logs" }

func recordFromEntry(e Entry) Record {
	return Record{
		ID:         e.ID,
		Timestamp:  e.Timestamp.UTC(),
		Tool:       e.Tool,
		Success:    e.Success,
		InputHash:  e.InputHash,
		Error:      e.Error,
		RequestID:  e.RequestID,
		Identifier: e.Identifier,
		DurationMS: e.DurationMS,
	}
}

// SQLBackend 基于 GORM 的持久化后端
type SQLBackend struct {
	db *gorm.DB
}

// NewSQLBackend 创建 SQL 后端，autoMigrate 为 true 时建表
func NewSQLBackend(db *gorm.DB, autoMigrate bool) (*SQLBackend, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if autoMigrate {
		if err := db.AutoMigrate(&Record{}); err != nil {
			return nil, fmt.Errorf("failed to migrate audit_logs: %w", err)
		}
	}
	return &SQLBackend{db: db}, nil
}

// Name 后端名称
func (b *SQLBackend) Name() string { return "sql" }

// Write 插入一行
func (b *SQLBackend) Write(ctx context.Context, entry Entry) error {
	rec := recordFromEntry(entry)
	return b.db.WithContext(ctx).Create(&rec).Error
}

// Recent 按时间倒序查询最近 limit 条
func (b *SQLBackend) Recent(ctx context.Context, limit int) ([]Record, error) {
	var out []Record
	err := b.db.WithContext(ctx).Order("timestamp desc").Limit(limit).Find(&out).Error
	return out, err
}

// Close 连接由 database.PoolManager 管理，这里不关闭
func (b *SQLBackend) Close() error { return nil }
