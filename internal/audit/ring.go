package audit

import "sync"

// DefaultCapacity 内存环形缓冲区默认容量
const DefaultCapacity = 1000

// Ring 有界 FIFO 缓冲区，溢出时淘汰最旧的记录
type Ring struct {
	mu      sync.RWMutex
	buf     []Entry
	start   int
	size    int
	total   int64
	failed  int64
	evicted int64
}

// RingStats 环形缓冲区统计
type RingStats struct {
	Capacity int   `json:"capacity"`
	Len      int   `json:"len"`
	Total    int64 `json:"total"`
	Failures int64 `json:"failures"`
	Evicted  int64 `json:"evicted"`
}

// NewRing 创建容量为 capacity 的环形缓冲区，capacity<=0 时使用 DefaultCapacity
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{buf: make([]Entry, capacity)}
}

// Append 追加一条记录
func (r *Ring) Append(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.total++
	if !e.Success {
		r.failed++
	}

	capacity := len(r.buf)
	if r.size < capacity {
		r.buf[(r.start+r.size)%capacity] = e
		r.size++
		return
	}
	r.buf[r.start] = e
	r.start = (r.start + 1) % capacity
	r.evicted++
}

// Entries 按写入顺序（最旧在前）返回副本
func (r *Ring) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastLocked(r.size)
}

// Recent 返回最近 n 条记录（最旧在前）
func (r *Ring) Recent(n int) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n <= 0 {
		return []Entry{}
	}
	if n > r.size {
		n = r.size
	}
	return r.lastLocked(n)
}

func (r *Ring) lastLocked(n int) []Entry {
	out := make([]Entry, n)
	capacity := len(r.buf)
	offset := r.size - n
	for i := 0; i < n; i++ {
		out[i] = r.buf[(r.start+offset+i)%capacity]
	}
	return out
}

// Len 当前记录数
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// Capacity 容量
func (r *Ring) Capacity() int {
	return len(r.buf)
}

// Stats 统计信息
func (r *Ring) Stats() RingStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return RingStats{
		Capacity: len(r.buf),
		Len:      r.size,
		Total:    r.total,
		Failures: r.failed,
		Evicted:  r.evicted,
	}
}
