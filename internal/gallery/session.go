// Package gallery 持有“当前打开的目录”及其 pair 列表，供 Web 界面读取与操作。
//
// 列表只存在于内存中：每次扫描整体替换，移动/删除成功后就地修补。
// 破坏性操作（扫描、移动、删除）互斥执行；并发的第二个请求直接返回 ErrBusy。
package gallery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"

	"github.com/John-Robertt/photosort/internal/app"
	"github.com/John-Robertt/photosort/internal/app/batch"
	"github.com/John-Robertt/photosort/internal/capfs"
	"github.com/John-Robertt/photosort/internal/domain"
	"github.com/John-Robertt/photosort/internal/infra/cache"
	"github.com/John-Robertt/photosort/internal/infra/imgx"
	"github.com/John-Robertt/photosort/internal/scan"
)

var (
	// ErrBusy 表示已有扫描/移动/删除正在进行。
	ErrBusy = errors.New("gallery: another operation is in progress")
	// ErrNotFound 表示 pair ID 不在当前列表中。
	ErrNotFound = errors.New("gallery: pair not found")
	// ErrNoDirectory 表示尚未打开任何目录。
	ErrNoDirectory = errors.New("gallery: no directory opened")
	// ErrNoSelection 表示用户未选择目录（取消或拒绝授权）。
	ErrNoSelection = errors.New("gallery: no directory selected")
)

// Options 配置 Session。零值可用。
type Options struct {
	Logger *log.Logger
	// ThumbSize 是预览图长边上限（像素）。
	ThumbSize int
	// Staged 透传给 batch.Mutator。
	Staged bool
}

// Session 是单个目录的浏览会话。
type Session struct {
	logger    *log.Logger
	thumbSize int
	mutator   *batch.Mutator
	thumbs    *cache.Thumbs

	// busy 串行化破坏性操作（TryLock 失败即 ErrBusy）。
	busy sync.Mutex

	mu    sync.RWMutex
	dir   *capfs.Dir
	pairs []domain.Pair

	progress atomic.Int32
}

func New(opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	size := opts.ThumbSize
	if size <= 0 {
		size = 320
	}
	return &Session{
		logger:    logger,
		thumbSize: size,
		mutator:   &batch.Mutator{Logger: logger, Staged: opts.Staged},
		thumbs:    cache.New(0),
	}
}

// Open 通过 picker 获取目录并扫描。
// 未选择目录时返回 ErrNoSelection，原列表保持不变；扫描失败时原列表同样保持不变。
func (s *Session) Open(ctx context.Context, picker capfs.Picker) error {
	if !s.busy.TryLock() {
		return ErrBusy
	}
	defer s.busy.Unlock()

	dir, err := picker.Pick(ctx)
	if err != nil {
		if capfs.IsNoSelection(err) {
			return fmt.Errorf("%w: %w", ErrNoSelection, err)
		}
		return err
	}
	return s.load(ctx, dir)
}

// Rescan 重新扫描当前目录（ID 全部重新生成）。
func (s *Session) Rescan(ctx context.Context) error {
	if !s.busy.TryLock() {
		return ErrBusy
	}
	defer s.busy.Unlock()

	s.mu.RLock()
	dir := s.dir
	s.mu.RUnlock()
	if dir == nil {
		return ErrNoDirectory
	}
	return s.load(ctx, dir)
}

// load 在 busy 锁内执行：扫描 + 分组 + 整体替换列表。
func (s *Session) load(ctx context.Context, dir *capfs.Dir) error {
	s.progress.Store(0)
	files, err := scan.Enumerate(ctx, dir, func(done, total int) {
		if total > 0 {
			s.progress.Store(int32(done * 99 / total))
		}
	})
	if err != nil {
		s.progress.Store(0)
		s.logger.Printf("扫描失败：%v", err)
		return err
	}
	pairs := app.GroupPairs(files)

	s.mu.Lock()
	prev := s.dir
	s.dir = dir
	s.pairs = pairs
	s.mu.Unlock()

	if prev != nil && prev != dir {
		prev.Revoke()
	}
	s.thumbs.Reset()
	s.progress.Store(100)
	s.logger.Printf("扫描完成：%s files=%d pairs=%d", dir.Path(), len(files), len(pairs))
	return nil
}

// Dir 返回当前目录路径（未打开时为空）。
func (s *Session) Dir() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.dir == nil {
		return ""
	}
	return s.dir.Path()
}

// Pairs 返回当前列表的快照。
func (s *Session) Pairs() []domain.Pair {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Pair(nil), s.pairs...)
}

func (s *Session) Pair(id string) (domain.Pair, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return app.FindPair(s.pairs, id)
}

// Progress 返回扫描进度（0..100）。
func (s *Session) Progress() int { return int(s.progress.Load()) }

// Move 把 pair 移动到 picker 选出的目标目录。
//
// 返回的 error 只表示“操作未开始”（busy / 未找到 / 未选择目标）；
// 单个文件的失败体现在 PairResult 中。
func (s *Session) Move(ctx context.Context, id string, picker capfs.Picker) (domain.PairResult, error) {
	if !s.busy.TryLock() {
		return domain.PairResult{}, ErrBusy
	}
	defer s.busy.Unlock()

	p, ok := s.Pair(id)
	if !ok {
		return domain.PairResult{}, ErrNotFound
	}

	target, err := picker.Pick(ctx)
	if err != nil {
		if capfs.IsNoSelection(err) {
			return domain.PairResult{}, fmt.Errorf("%w: %w", ErrNoSelection, err)
		}
		return domain.PairResult{}, err
	}

	res := s.mutator.MovePair(p, target)
	s.patch(id, res)
	return res, nil
}

// Delete 删除 pair 的全部成员。
func (s *Session) Delete(ctx context.Context, id string) (domain.PairResult, error) {
	if !s.busy.TryLock() {
		return domain.PairResult{}, ErrBusy
	}
	defer s.busy.Unlock()

	p, ok := s.Pair(id)
	if !ok {
		return domain.PairResult{}, ErrNotFound
	}

	res := s.mutator.DeletePair(p)
	s.patch(id, res)
	return res, nil
}

// patch 移除已离开源目录的成员；成员全部离开的 pair 从列表中删除。
func (s *Session) patch(id string, res domain.PairResult) {
	done := res.Done()
	if len(done) == 0 {
		return
	}
	s.thumbs.Drop(done...)

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.pairs {
		if s.pairs[i].ID != id {
			continue
		}
		p := s.pairs[i].Without(done...)
		if p.Empty() {
			s.pairs = append(s.pairs[:i], s.pairs[i+1:]...)
		} else {
			s.pairs[i] = p
		}
		return
	}
}

// Thumbnail 返回 pair 的 JPEG 预览图（优先 JPEG 成员），结果按文件 ID 缓存在内存中。
func (s *Session) Thumbnail(id string) ([]byte, error) {
	p, ok := s.Pair(id)
	if !ok {
		return nil, ErrNotFound
	}
	f := p.Preview()
	if f == nil || f.Handle == nil {
		return nil, ErrNotFound
	}
	if b, ok := s.thumbs.Get(f.ID); ok {
		return b, nil
	}

	r, err := f.Handle.Open()
	if err != nil {
		return nil, err
	}
	defer r.Close()

	b, err := imgx.Thumbnail(r, f.Kind, s.thumbSize)
	if err != nil {
		return nil, err
	}
	_ = s.thumbs.Put(f.ID, b)
	return b, nil
}
