package run

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/John-Robertt/photosort/internal/app"
	"github.com/John-Robertt/photosort/internal/app/batch"
	"github.com/John-Robertt/photosort/internal/app/planner"
	"github.com/John-Robertt/photosort/internal/capfs"
	"github.com/John-Robertt/photosort/internal/domain"
	"github.com/John-Robertt/photosort/internal/scan"
)

// Request 描述一次批量运行。
type Request struct {
	Source *capfs.Dir
	// Target 仅 move 需要。
	Target *capfs.Dir

	Op string
	// Only 按 basename 过滤；为空表示源目录内的全部 pair。
	Only []string

	Apply  bool
	Staged bool

	Logger *log.Logger
}

// Execute 执行一次 run（dry-run/apply），并返回对外稳定的 RunReport。
// 错误尽量降级为 item 级失败（单个 pair 失败不影响其它 pair）。
func Execute(ctx context.Context, req Request) domain.RunReport {
	return ExecuteWithObserver(ctx, req, nil)
}

// ExecuteWithObserver 与 Execute 相同，但允许传入 Observer 以输出进度/阶段信息。
//
// pair 之间串行执行；ctx 取消只在两个 pair 之间生效，不会打断正在处理的 pair。
func ExecuteWithObserver(ctx context.Context, req Request, obs Observer) domain.RunReport {
	started := time.Now().UTC()

	if obs != nil {
		obs.OnStart(req)
	}

	rr := domain.RunReport{
		Op:        req.Op,
		DryRun:    !req.Apply,
		Staged:    req.Staged,
		StartedAt: started,
		Items:     make([]domain.ItemResult, 0, 64),
	}
	if req.Source != nil {
		rr.Path = req.Source.Path()
	}
	if req.Target != nil {
		rr.Target = req.Target.Path()
	}

	finish := func() domain.RunReport {
		rr.FinishedAt = time.Now().UTC()
		rr.Finalize()
		if obs != nil {
			obs.OnFinish(rr)
		}
		return rr
	}

	switch {
	case req.Op != domain.OpMove && req.Op != domain.OpDelete:
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeConfigInvalid, fmt.Sprintf("未知操作：%q", req.Op)))
		return finish()
	case req.Source == nil:
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeNoSelection, "未选择源目录"))
		return finish()
	case req.Op == domain.OpMove && req.Target == nil:
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeNoSelection, "未选择目标目录"))
		return finish()
	}

	scanStarted := time.Now()
	files, err := scan.Enumerate(ctx, req.Source, nil)
	if err != nil {
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeScanFailed, fmt.Sprintf("扫描失败：%v", err)))
		return finish()
	}
	scanDur := time.Since(scanStarted)

	pairStarted := time.Now()
	pairs := app.GroupPairs(files)
	selected, missing := app.SelectPairs(pairs, req.Only)
	pairDur := time.Since(pairStarted)

	if obs != nil {
		obs.OnPhaseDone("scan", map[string]any{
			"files": len(files),
		}, scanDur)
		obs.OnPhaseDone("pair", map[string]any{
			"pairs":    len(pairs),
			"selected": len(selected),
			"missing":  len(missing),
		}, pairDur)
	}

	for _, b := range missing {
		rr.Items = append(rr.Items, domain.ItemResult{
			Basename:  b,
			Status:    domain.StatusSkipped,
			ErrorCode: domain.ErrCodeNotFound,
			ErrorMsg:  "源目录中没有该 basename 的照片",
			Files:     []domain.FileResult{},
		})
	}

	// dry-run 读取一次目标目录，用于标注会被覆盖的文件。
	var target planner.TargetState
	if !req.Apply && req.Op == domain.OpMove {
		target, err = planner.ReadTargetState(ctx, req.Target)
		if err != nil {
			rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeScanFailed, fmt.Sprintf("读取目标目录失败：%v", err)))
			return finish()
		}
	}

	if obs != nil {
		obs.OnPhaseDone("exec", map[string]any{
			"op":          req.Op,
			"apply":       req.Apply,
			"total_items": len(selected),
		}, 0)
	}

	logger := req.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	m := &batch.Mutator{Logger: logger, Staged: req.Staged}

	for i, p := range selected {
		if ctx.Err() != nil {
			for _, rest := range selected[i:] {
				rr.Items = append(rr.Items, cancelledItem(rest))
			}
			break
		}

		oneStarted := time.Now()
		var pr domain.PairResult
		switch {
		case !req.Apply && req.Op == domain.OpMove:
			pr = planner.Planned(planner.PlanMove(p, target))
		case !req.Apply:
			pr = planner.Planned(planner.PlanDelete(p))
		case req.Op == domain.OpMove:
			pr = m.MovePair(p, req.Target)
		default:
			pr = m.DeletePair(p)
		}

		item := domain.ItemFromPairResult(pr, !req.Apply)
		rr.Items = append(rr.Items, item)
		if obs != nil {
			obs.OnItemDone(i+1, len(selected), p.Basename, item, time.Since(oneStarted))
		}
	}

	return finish()
}

func cancelledItem(p domain.Pair) domain.ItemResult {
	return domain.ItemResult{
		Basename:  p.Basename,
		PairID:    p.ID,
		Status:    domain.StatusSkipped,
		ErrorCode: domain.ErrCodeCancelled,
		ErrorMsg:  "运行已取消，未处理",
		Files:     []domain.FileResult{},
	}
}

func syntheticFailed(code, msg string) domain.ItemResult {
	return domain.ItemResult{
		Status:    domain.StatusFailed,
		ErrorCode: code,
		ErrorMsg:  msg,
		Files:     []domain.FileResult{},
	}
}
