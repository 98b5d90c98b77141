package run

import (
	"time"

	"github.com/John-Robertt/photosort/internal/domain"
)

// Observer 用于把“运行进度/阶段/条目结果”从核心执行流程中解耦出来。
//
// 约束：
// - run 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）。
// - Observer 的实现必须并发安全：CLI 的 keepalive ticker 与执行流程在不同 goroutine。
type Observer interface {
	// OnStart 在 ExecuteWithObserver 开始时调用。
	OnStart(req Request)
	// OnPhaseDone 在阶段结束/就绪时调用（用于打印阶段统计与耗时）。
	OnPhaseDone(name string, fields map[string]any, dur time.Duration)
	// OnItemDone 在某个 pair 处理完成时调用（用于每条结果的一行输出）。
	OnItemDone(idx, total int, basename string, res domain.ItemResult, dur time.Duration)
	// OnFinish 在运行结束时调用一次（包括提前失败与取消），之后不再有事件。
	OnFinish(rr domain.RunReport)
	// OnProgress 用于 keepalive（由 CLI 自己 ticker 触发；run 层不调用）。
	OnProgress(done, total, ok, fail int, active string, elapsed time.Duration)
}
