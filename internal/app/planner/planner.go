package planner

import (
	"context"
	"path/filepath"

	"github.com/John-Robertt/photosort/internal/capfs"
	"github.com/John-Robertt/photosort/internal/domain"
)

// Step 是对单个成员文件的一步操作（move 时带目标名）。
type Step struct {
	File *domain.PhotoFile

	DstName string
	DstPath string
	// Overwrite 表示目标目录已有同名文件（按约定直接覆盖，这里只做标记）。
	Overwrite bool
}

// Plan 是对一个 pair 的最小执行计划。Steps 顺序固定：JPEG 在前，DNG 在后。
type Plan struct {
	Op    string
	Pair  domain.Pair
	Steps []Step
}

// TargetState 描述目标目录的现状（只做 ReadDir，不读内容）。
type TargetState struct {
	Path string
	// ExistingNames 是目录内现有文件名集合，用于 O(1) 覆盖判定。
	ExistingNames map[string]struct{}
}

// ReadTargetState 读取目标目录现状。target 为空时返回空状态。
func ReadTargetState(ctx context.Context, target *capfs.Dir) (TargetState, error) {
	st := TargetState{ExistingNames: map[string]struct{}{}}
	if target == nil {
		return st, nil
	}
	st.Path = target.Path()

	entries, err := target.List(ctx)
	if err != nil {
		return TargetState{}, err
	}
	for _, e := range entries {
		st.ExistingNames[e.Name()] = struct{}{}
	}
	return st, nil
}

// PlanMove 生成确定性的移动计划（不做任何写入/移动）。目标文件名保持源文件名。
func PlanMove(pair domain.Pair, st TargetState) Plan {
	p := Plan{Op: domain.OpMove, Pair: pair}
	for _, f := range pair.Members() {
		_, exists := st.ExistingNames[f.Name]
		dst := ""
		if st.Path != "" {
			dst = filepath.Join(st.Path, f.Name)
		}
		p.Steps = append(p.Steps, Step{
			File:      f,
			DstName:   f.Name,
			DstPath:   dst,
			Overwrite: exists,
		})
	}
	return p
}

// PlanDelete 生成删除计划。
func PlanDelete(pair domain.Pair) Plan {
	p := Plan{Op: domain.OpDelete, Pair: pair}
	for _, f := range pair.Members() {
		p.Steps = append(p.Steps, Step{File: f})
	}
	return p
}

// Planned 把计划转成 dry-run 结果（每个成员 status=planned）。
func Planned(p Plan) domain.PairResult {
	r := domain.PairResult{
		PairID:   p.Pair.ID,
		Basename: p.Pair.Basename,
		Op:       p.Op,
		Files:    make([]domain.FileResult, 0, len(p.Steps)),
	}
	for _, s := range p.Steps {
		r.Files = append(r.Files, FileResult(s, domain.FileStatusPlanned))
	}
	return r
}

// FileResult 以 step 为模板构造成员结果。
func FileResult(s Step, status string) domain.FileResult {
	fr := domain.FileResult{
		ID:     s.File.ID,
		Name:   s.File.Name,
		Kind:   s.File.Kind,
		Dst:    s.DstPath,
		Status: status,
	}
	if status == domain.FileStatusPlanned {
		fr.Overwrite = s.Overwrite
	}
	if s.File.Handle != nil {
		fr.Src = s.File.Handle.Path()
	}
	return fr
}
