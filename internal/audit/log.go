package audit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Backend 持久化审计后端
type Backend interface {
	Write(ctx context.Context, entry Entry) error
	Name() string
	Close() error
}

// LogConfig 审计日志配置
type LogConfig struct {
	Capacity       int
	Backends       []Backend
	AsyncQueueSize int
	// AsyncWorkers 后端写入协程数，默认 1；大于 1 时后端收到的顺序不保证与记录顺序一致
	AsyncWorkers int
	WriteTimeout time.Duration
}

// Log 内存环形缓冲区 + 可选持久化后端。
// Record 从不返回错误，后端写入失败只记录日志。
type Log struct {
	ring         *Ring
	backends     []Backend
	queue        chan Entry
	writeTimeout time.Duration
	logger       *zap.Logger
	now          func() time.Time

	wg       sync.WaitGroup
	closeMu  sync.RWMutex
	closed   bool
	dropped  int64
	dropMu   sync.Mutex
	failures map[string]int64
}

// Summary 供 get_security_status 使用的审计摘要
type Summary struct {
	RingStats
	Backends      []string         `json:"backends"`
	Dropped       int64            `json:"dropped"`
	BackendErrors map[string]int64 `json:"backend_errors,omitempty"`
	RecentEntries []Entry          `json:"recent_entries"`
}

// NewLog 创建审计日志
func NewLog(cfg LogConfig, logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.AsyncQueueSize <= 0 {
		cfg.AsyncQueueSize = 1024
	}
	if cfg.AsyncWorkers <= 0 {
		cfg.AsyncWorkers = 1
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}

	l := &Log{
		ring:         NewRing(cfg.Capacity),
		backends:     cfg.Backends,
		writeTimeout: cfg.WriteTimeout,
		logger:       logger.With(zap.String("component", "audit_log")),
		now:          time.Now,
		failures:     make(map[string]int64),
	}

	if len(l.backends) > 0 {
		l.queue = make(chan Entry, cfg.AsyncQueueSize)
		for i := 0; i < cfg.AsyncWorkers; i++ {
			l.wg.Add(1)
			go l.worker()
		}
	}
	return l
}

// Record 追加一条审计记录并异步写入后端
func (l *Log) Record(e Entry) Entry {
	if e.ID == "" {
		e.ID = newEntryID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = l.now()
	}
	l.ring.Append(e)

	l.closeMu.RLock()
	defer l.closeMu.RUnlock()
	if l.queue == nil || l.closed {
		return e
	}

	select {
	case l.queue <- e:
	default:
		l.dropMu.Lock()
		l.dropped++
		l.dropMu.Unlock()
		l.logger.Warn("audit queue full, dropping backend write", zap.String("entry_id", e.ID))
	}
	return e
}

func (l *Log) worker() {
	defer l.wg.Done()
	for e := range l.queue {
		l.writeToBackends(e)
	}
}

func (l *Log) writeToBackends(e Entry) {
	for _, b := range l.backends {
		ctx, cancel := context.WithTimeout(context.Background(), l.writeTimeout)
		err := l.safeWrite(ctx, b, e)
		cancel()
		if err != nil {
			l.dropMu.Lock()
			l.failures[b.Name()]++
			l.dropMu.Unlock()
			l.logger.Error("audit backend write failed",
				zap.String("backend", b.Name()),
				zap.String("entry_id", e.ID),
				zap.Error(err),
			)
		}
	}
}

func (l *Log) safeWrite(ctx context.Context, b Backend, e Entry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &backendPanic{value: r}
		}
	}()
	return b.Write(ctx, e)
}

type backendPanic struct{ value any }

func (p *backendPanic) Error() string { return "audit backend panicked" }

// Ring 返回底层环形缓冲区
func (l *Log) Ring() *Ring { return l.ring }

// Entries 返回内存中的全部记录
func (l *Log) Entries() []Entry { return l.ring.Entries() }

// Len 内存中的记录数
func (l *Log) Len() int { return l.ring.Len() }

// Summary 返回摘要，recent 为最近记录数
func (l *Log) Summary(recent int) Summary {
	names := make([]string, 0, len(l.backends))
	for _, b := range l.backends {
		names = append(names, b.Name())
	}

	l.dropMu.Lock()
	dropped := l.dropped
	var errs map[string]int64
	if len(l.failures) > 0 {
		errs = make(map[string]int64, len(l.failures))
		for k, v := range l.failures {
			errs[k] = v
		}
	}
	l.dropMu.Unlock()

	return Summary{
		RingStats:     l.ring.Stats(),
		Backends:      names,
		Dropped:       dropped,
		BackendErrors: errs,
		RecentEntries: l.ring.Recent(recent),
	}
}

// Close 刷新待写入记录并关闭后端
func (l *Log) Close() error {
	l.closeMu.Lock()
	if l.closed {
		l.closeMu.Unlock()
		return nil
	}
	l.closed = true
	if l.queue != nil {
		close(l.queue)
	}
	l.closeMu.Unlock()

	l.wg.Wait()

	var lastErr error
	for _, b := range l.backends {
		if err := b.Close(); err != nil {
			l.logger.Warn("audit backend close failed", zap.String("backend", b.Name()), zap.Error(err))
			lastErr = err
		}
	}
	l.logger.Info("audit log closed", zap.Int("entries", l.ring.Len()))
	return lastErr
}

const defaultCloseTimeout = 5 * time.Second
