package domain

const (
	OpMove   = "move"
	OpDelete = "delete"
)

const (
	FileStatusPlanned = "planned"
	FileStatusMoved   = "moved"
	FileStatusDeleted = "deleted"
	FileStatusSkipped = "skipped" // staged 模式：兄弟成员写入失败，本成员的副本已撤回，源文件保留
	FileStatusFailed  = "failed"
)

// FileResult 是单个成员文件的操作结果。
type FileResult struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Kind   Kind   `json:"kind"`
	Src    string `json:"src"`
	Dst    string `json:"dst"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	// Overwrite 仅出现在 dry-run 计划中：目标目录已有同名文件，执行时会被覆盖。
	Overwrite bool `json:"overwrite,omitempty"`
}

func (f FileResult) Succeeded() bool {
	switch f.Status {
	case FileStatusMoved, FileStatusDeleted, FileStatusPlanned:
		return true
	default:
		return false
	}
}

// PairResult 保留每个成员的结果；聚合布尔值由 OK 派生，不丢失“哪个成员失败”的信息。
type PairResult struct {
	PairID   string       `json:"pair_id"`
	Basename string       `json:"basename"`
	Op       string       `json:"op"`
	Files    []FileResult `json:"files"`
}

// OK 当且仅当每个尝试过的成员都成功时为 true。
// 没有任何成员（空 pair）视为 false：没有东西被移动/删除。
func (r PairResult) OK() bool {
	if len(r.Files) == 0 {
		return false
	}
	for _, f := range r.Files {
		if !f.Succeeded() {
			return false
		}
	}
	return true
}

// Failed 返回失败的成员结果。
func (r PairResult) Failed() []FileResult {
	var out []FileResult
	for _, f := range r.Files {
		if !f.Succeeded() {
			out = append(out, f)
		}
	}
	return out
}

// Done 返回已真正离开源目录的成员 ID（moved/deleted），用于修补内存列表。
func (r PairResult) Done() []string {
	var out []string
	for _, f := range r.Files {
		if f.Status == FileStatusMoved || f.Status == FileStatusDeleted {
			out = append(out, f.ID)
		}
	}
	return out
}
