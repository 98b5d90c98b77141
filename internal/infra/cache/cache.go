package cache

import (
	"errors"
	"strings"
	"sync"
)

// ErrEmptyKey 表示写入时 key 为空。
var ErrEmptyKey = errors.New("cache: empty key")

// DefaultMaxEntries 是 Thumbs 的默认容量上限。
const DefaultMaxEntries = 512

// Thumbs 是按文件 ID 索引的内存预览图缓存。
//
// 约束：
// - 只在内存中存在，随列表一起丢弃（每次扫描后 Reset），不落盘
// - 超过容量时淘汰最早写入的条目（FIFO）
// - 并发安全
type Thumbs struct {
	mu    sync.Mutex
	max   int
	order []string
	data  map[string][]byte
}

func New(maxEntries int) *Thumbs {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Thumbs{
		max:  maxEntries,
		data: make(map[string][]byte),
	}
}

func (t *Thumbs) Get(id string) ([]byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.data[id]
	return b, ok
}

func (t *Thumbs) Put(id string, b []byte) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrEmptyKey
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.data[id]; !ok {
		t.order = append(t.order, id)
	}
	t.data[id] = b

	for len(t.order) > t.max {
		oldest := t.order[0]
		t.order = t.order[1:]
		delete(t.data, oldest)
	}
	return nil
}

// Drop 删除指定 ID 的条目（文件被移动/删除后调用）。
func (t *Thumbs) Drop(ids ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range ids {
		if _, ok := t.data[id]; !ok {
			continue
		}
		delete(t.data, id)
		for i, o := range t.order {
			if o == id {
				t.order = append(t.order[:i], t.order[i+1:]...)
				break
			}
		}
	}
}

// Reset 清空缓存。
func (t *Thumbs) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.order = nil
	t.data = make(map[string][]byte)
}

func (t *Thumbs) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.data)
}
