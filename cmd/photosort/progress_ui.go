package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/John-Robertt/photosort/internal/app/run"
	"github.com/John-Robertt/photosort/internal/domain"
)

var _ run.Observer = (*progressUI)(nil)

// progressUI 是交互终端下的进度输出。
//
// 所有过程信息写到 stderr（或 fallback 到 stdout），不污染 stdout 的 JSON 输出契约；
// 长时间没有 pair 完成时，ticker 会补一行 keepalive。
type progressUI struct {
	w io.Writer

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time

	total int
	done  int
	ok    int
	fail  int

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{
		w:                  w,
		keepaliveThreshold: 6 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

func (p *progressUI) OnStart(req run.Request) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startedAt.IsZero() {
		p.startedAt = now
	}

	mode := "dry-run"
	modeHint := " (只生成计划，不移动/不删除)"
	if req.Apply {
		mode = "apply"
		modeHint = ""
	}

	fmt.Fprintf(p.w, "[%s] photosort %s (%s)\n", now.Format("15:04:05"), req.Op, mode)
	fmt.Fprintln(p.w, "配置（生效）:")
	if req.Source != nil {
		fmt.Fprintf(p.w, "  path: %s\n", req.Source.Path())
	}
	if req.Op == domain.OpMove && req.Target != nil {
		fmt.Fprintf(p.w, "  target: %s\n", req.Target.Path())
		fmt.Fprintf(p.w, "  staged: %s\n", onOff(req.Staged))
	}
	fmt.Fprintf(p.w, "  mode: %s%s\n", mode, modeHint)
	if len(req.Only) > 0 {
		fmt.Fprintf(p.w, "  only: %s\n", truncate(strings.Join(req.Only, ","), 120))
	}
	fmt.Fprintln(p.w)

	p.lastPrinted = time.Now()
}

func (p *progressUI) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch name {
	case "scan":
		fmt.Fprintf(p.w, "扫描: files=%d (%s)\n", intField(fields, "files"), formatShortDuration(dur))
	case "pair":
		fmt.Fprintf(p.w, "配对: pairs=%d selected=%d missing=%d (%s)\n",
			intField(fields, "pairs"), intField(fields, "selected"), intField(fields, "missing"), formatShortDuration(dur),
		)
	case "exec":
		p.total = intField(fields, "total_items")
		fmt.Fprintf(p.w, "执行: total_items=%d\n\n", p.total)
		if p.total > 0 && !p.tickerStarted {
			p.startTickerLocked()
		}
	default:
		fmt.Fprintf(p.w, "%s (%s)\n", name, formatShortDuration(dur))
	}

	p.lastPrinted = time.Now()
}

func (p *progressUI) OnItemDone(idx, total int, basename string, res domain.ItemResult, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done = idx
	p.total = total

	status := "OK"
	switch res.Status {
	case domain.StatusFailed:
		p.fail++
		status = "FAIL"
	case domain.StatusPlanned:
		p.ok++
		status = "PLAN"
	case domain.StatusSkipped:
		status = "SKIP"
	default:
		p.ok++
	}

	if res.Status == domain.StatusFailed {
		fmt.Fprintf(p.w, "[%d/%d] %s %s %s: %s (%s)\n",
			idx, total, basename, status, res.ErrorCode, truncate(res.ErrorMsg, 160), formatShortDuration(dur),
		)
	} else {
		fmt.Fprintf(p.w, "[%d/%d] %s %s %s (%s)\n",
			idx, total, basename, status, formatFiles(res.Files), formatShortDuration(dur),
		)
	}

	p.lastPrinted = time.Now()

	// 最后一条完成：停止 ticker，避免在结束打印后又冒出 keepalive。
	if p.done >= p.total {
		p.stopTickerLocked()
	}
}

// OnFinish 停止 keepalive；取消时剩余 pair 不会触发 OnItemDone，只能在这里收尾。
func (p *progressUI) OnFinish(rr domain.RunReport) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopTickerLocked()
}

func (p *progressUI) stopTickerLocked() {
	if !p.tickerStarted {
		return
	}
	close(p.stopCh)
	p.tickerStarted = false
}

func (p *progressUI) OnProgress(done, total, ok, fail int, active string, elapsed time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.printProgressLocked(done, total, ok, fail, active, elapsed)
}

func (p *progressUI) printProgressLocked(done, total, ok, fail int, active string, elapsed time.Duration) {
	line := fmt.Sprintf("进度: done=%d/%d ok=%d fail=%d", done, total, ok, fail)
	if active != "" {
		line += " active=" + active
	}
	fmt.Fprintf(p.w, "%s elapsed=%s\n", line, formatElapsed(elapsed))
	p.lastPrinted = time.Now()
}

func (p *progressUI) startTickerLocked() {
	p.stopCh = make(chan struct{})
	p.tickerStarted = true

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 6 * time.Second
	}
	stop := p.stopCh

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				p.mu.Lock()
				if p.total > 0 && p.done >= p.total {
					p.mu.Unlock()
					return
				}
				if p.total > 0 && time.Since(p.lastPrinted) > threshold {
					p.printProgressLocked(p.done, p.total, p.ok, p.fail, "", time.Since(p.startedAt))
				}
				p.mu.Unlock()
			case <-stop:
				return
			}
		}
	}()
}

// formatFiles 把成员结果压成一行："IMG_1.jpg -> /dst/IMG_1.jpg, IMG_1.dng (deleted)"。
func formatFiles(files []domain.FileResult) string {
	if len(files) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(files))
	for _, f := range files {
		s := f.Name
		switch {
		case f.Dst != "":
			s += " -> " + f.Dst
		case f.Status != "":
			s += " (" + f.Status + ")"
		}
		if f.Overwrite {
			s += " [覆盖]"
		}
		if f.Status == domain.FileStatusFailed && f.Error != "" {
			s += " [" + truncate(f.Error, 60) + "]"
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, ", ")
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func intField(fields map[string]any, key string) int {
	if fields == nil {
		return 0
	}
	switch x := fields[key].(type) {
	case int:
		return x
	case int64:
		return int(x)
	default:
		return 0
	}
}
