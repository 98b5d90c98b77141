// Package batch 对一个 pair 的成员执行移动/删除。
//
// 单个成员的失败不会中断其它成员，也不会以 error 的形式返回：
// 每个成员的结果记录在 domain.PairResult 中，聚合结论由 PairResult.OK 派生。
package batch

import (
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/John-Robertt/photosort/internal/app/planner"
	"github.com/John-Robertt/photosort/internal/capfs"
	"github.com/John-Robertt/photosort/internal/domain"
)

var (
	// ErrNoTarget 表示 move 没有目标目录（选择被取消）。
	ErrNoTarget = errors.New("batch: no target directory")
	// ErrSameDirectory 表示目标目录就是源文件所在目录（复制后删源会丢失文件）。
	ErrSameDirectory = errors.New("batch: target is the source directory")
)

// writer 是 capfs.Writer 的最小接口：Close 提交，Abort 放弃。
type writer interface {
	io.Writer
	Close() error
	Abort() error
}

// Mutator 执行 pair 级的移动/删除。零值可用（Logger 为空时丢弃日志）。
type Mutator struct {
	Logger *log.Logger
	// Staged 为 true 时 move 分两阶段：先写齐所有副本，再删除源文件。
	Staged bool

	// 测试注入点。
	removeFn func(*capfs.File) error
	createFn func(*capfs.Dir, string) (writer, error)
}

func (m *Mutator) logf(format string, args ...any) {
	if m.Logger == nil {
		return
	}
	m.Logger.Printf(format, args...)
}

func (m *Mutator) remove(f *capfs.File) error {
	if m.removeFn != nil {
		return m.removeFn(f)
	}
	return f.Remove()
}

func (m *Mutator) create(d *capfs.Dir, name string) (writer, error) {
	if m.createFn != nil {
		return m.createFn(d, name)
	}
	w, err := d.Create(name)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// MovePair 把 pair 的成员（JPEG 在前，DNG 在后）复制到 target 后删除源文件。
//
// 目标已有同名文件时直接覆盖。成员之间相互独立：部分成功是可能的，且不会回滚。
// Staged 模式例外：全部成员写完才提交，任一写入失败时放弃全部副本并保留全部源文件。
func (m *Mutator) MovePair(pair domain.Pair, target *capfs.Dir) domain.PairResult {
	st := planner.TargetState{}
	if target != nil {
		st.Path = target.Path()
	}
	plan := planner.PlanMove(pair, st)
	res := newResult(plan)

	if target == nil {
		for i, s := range plan.Steps {
			res.Files[i] = m.fail(plan, s, ErrNoTarget)
		}
		return res
	}

	if m.Staged {
		m.moveStaged(plan, target, &res)
		return res
	}

	for i, s := range plan.Steps {
		if err := m.copyTo(s, target); err != nil {
			res.Files[i] = m.fail(plan, s, err)
			continue
		}
		if err := m.removeSource(s); err != nil {
			res.Files[i] = m.fail(plan, s, fmt.Errorf("已复制到目标，但删除源文件失败：%w", err))
			continue
		}
		res.Files[i] = planner.FileResult(s, domain.FileStatusMoved)
	}
	return res
}

// moveStaged 先把所有成员写入未提交的临时文件；全部写完才依次提交，
// 任一写入失败则放弃全部临时文件，目标目录与源目录都保持原样。
func (m *Mutator) moveStaged(plan planner.Plan, target *capfs.Dir, res *domain.PairResult) {
	pending := make([]writer, len(plan.Steps))
	failed := -1
	for i, s := range plan.Steps {
		w, err := m.stage(s, target)
		if err != nil {
			res.Files[i] = m.fail(plan, s, err)
			failed = i
			break
		}
		pending[i] = w
	}

	if failed >= 0 {
		for i, s := range plan.Steps {
			if i == failed {
				continue
			}
			if pending[i] != nil {
				_ = pending[i].Abort()
			}
			fr := planner.FileResult(s, domain.FileStatusSkipped)
			fr.Error = "同一 pair 的其它成员写入失败"
			res.Files[i] = fr
		}
		return
	}

	// 提交阶段：某个成员提交失败时，其余未提交的放弃，已提交的副本保留，源文件全部保留。
	committed := make([]bool, len(plan.Steps))
	commitFailed := false
	for i, s := range plan.Steps {
		if commitFailed {
			_ = pending[i].Abort()
			continue
		}
		if err := pending[i].Close(); err != nil {
			res.Files[i] = m.fail(plan, s, err)
			commitFailed = true
			continue
		}
		committed[i] = true
	}
	if commitFailed {
		for i, s := range plan.Steps {
			if res.Files[i].Status == domain.FileStatusFailed {
				continue
			}
			fr := planner.FileResult(s, domain.FileStatusSkipped)
			fr.Error = "同一 pair 的其它成员写入失败"
			if committed[i] {
				fr.Error = "已写入目标，但同一 pair 的其它成员提交失败，源文件保留"
			}
			res.Files[i] = fr
		}
		return
	}

	for i, s := range plan.Steps {
		if err := m.removeSource(s); err != nil {
			res.Files[i] = m.fail(plan, s, fmt.Errorf("已复制到目标，但删除源文件失败：%w", err))
			continue
		}
		res.Files[i] = planner.FileResult(s, domain.FileStatusMoved)
	}
}

// DeletePair 删除 pair 的全部成员（JPEG 在前，DNG 在后）。
func (m *Mutator) DeletePair(pair domain.Pair) domain.PairResult {
	plan := planner.PlanDelete(pair)
	res := newResult(plan)
	for i, s := range plan.Steps {
		if err := m.removeSource(s); err != nil {
			res.Files[i] = m.fail(plan, s, err)
			continue
		}
		res.Files[i] = planner.FileResult(s, domain.FileStatusDeleted)
	}
	return res
}

func newResult(plan planner.Plan) domain.PairResult {
	return domain.PairResult{
		PairID:   plan.Pair.ID,
		Basename: plan.Pair.Basename,
		Op:       plan.Op,
		Files:    make([]domain.FileResult, len(plan.Steps)),
	}
}

func (m *Mutator) fail(plan planner.Plan, s planner.Step, err error) domain.FileResult {
	m.logf("%s %s 失败：%v", plan.Op, s.File.Name, err)
	fr := planner.FileResult(s, domain.FileStatusFailed)
	fr.Error = err.Error()
	return fr
}

// copyTo 以流式方式把源文件写入 target；写入在 Close 时原子提交。
func (m *Mutator) copyTo(s planner.Step, target *capfs.Dir) error {
	w, err := m.stage(s, target)
	if err != nil {
		return err
	}
	return w.Close()
}

// stage 把源文件内容写入 target 下的未提交写入器；调用方负责 Close（提交）或 Abort。
func (m *Mutator) stage(s planner.Step, target *capfs.Dir) (writer, error) {
	if s.File.Handle == nil {
		return nil, fmt.Errorf("缺少文件句柄：%s", s.File.Name)
	}
	if s.File.Handle.Dir().SameAs(target) {
		return nil, ErrSameDirectory
	}
	src, err := s.File.Handle.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	w, err := m.create(target, s.DstName)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(w, src); err != nil {
		_ = w.Abort()
		return nil, err
	}
	return w, nil
}

func (m *Mutator) removeSource(s planner.Step) error {
	if s.File.Handle == nil {
		return fmt.Errorf("缺少文件句柄：%s", s.File.Name)
	}
	return m.remove(s.File.Handle)
}
