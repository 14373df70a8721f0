package audit

import (
	"time"

	"github.com/google/uuid"
)

// Entry 一次工具调用的审计记录，写入后不再修改
type Entry struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Tool       string    `json:"tool"`
	Success    bool      `json:"success"`
	InputHash  string    `json:"input_hash"`
	Error      string    `json:"error,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
	Identifier string    `json:"identifier,omitempty"`
	DurationMS int64     `json:"duration_ms"`
}

func newEntryID() string {
	return uuid.NewString()
}
