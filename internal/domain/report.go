package domain

import (
	"sort"
	"time"
)

const (
	StatusOK      = "ok"
	StatusPlanned = "planned"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

const (
	ErrCodeScanFailed        = "scan_failed"
	ErrCodeNoSelection       = "no_selection"
	ErrCodeFileFailed        = "file_failed"
	ErrCodeNotFound          = "pair_not_found"
	ErrCodeCancelled         = "cancelled"
	ErrCodeConfigNotFound    = "config_not_found"
	ErrCodeConfigInvalid     = "config_invalid"
	ErrCodeConfigMissingPath = "config_missing_path"
)

// RunReport 是 CLI 对外稳定输出（stdout JSON）的结构。
type RunReport struct {
	Path   string `json:"path"`
	Target string `json:"target,omitempty"`
	Op     string `json:"op"`
	DryRun bool   `json:"dry_run"`
	Staged bool   `json:"staged"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary ReportSummary `json:"summary"`
	Items   []ItemResult  `json:"items"`
}

type ReportSummary struct {
	OK      int `json:"ok"`
	Planned int `json:"planned"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

type ItemResult struct {
	Basename string `json:"basename"`
	PairID   string `json:"pair_id"`

	Status    string `json:"status"`
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`

	Files []FileResult `json:"files"`
}

// ItemFromPairResult 把批量操作的结果折叠为 report 条目。
func ItemFromPairResult(pr PairResult, dryRun bool) ItemResult {
	it := ItemResult{
		Basename: pr.Basename,
		PairID:   pr.PairID,
		Status:   StatusOK,
		Files:    append([]FileResult{}, pr.Files...),
	}
	switch {
	case dryRun && pr.OK():
		it.Status = StatusPlanned
	case !pr.OK():
		it.Status = StatusFailed
		it.ErrorCode = ErrCodeFileFailed
		for _, f := range pr.Failed() {
			if it.ErrorMsg != "" {
				it.ErrorMsg += "; "
			}
			it.ErrorMsg += f.Name + ": " + f.Error
		}
	}
	return it
}

// Finalize 做三件事：
// 1) 时间统一为 UTC（确保 JSON 为 RFC3339 且后缀 Z）
// 2) items 稳定排序：按 basename 字典序；basename=="" 的合成条目排在最后
// 3) summary 由 items 计算得出
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	sort.SliceStable(r.Items, func(i, j int) bool {
		a := r.Items[i].Basename
		b := r.Items[j].Basename
		if a == "" || b == "" {
			return a != "" && b == ""
		}
		return a < b
	})

	var s ReportSummary
	for _, it := range r.Items {
		switch it.Status {
		case StatusOK:
			s.OK++
		case StatusPlanned:
			s.Planned++
		case StatusFailed:
			s.Failed++
		case StatusSkipped:
			s.Skipped++
		}
	}
	r.Summary = s
}
