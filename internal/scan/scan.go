package scan

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/John-Robertt/photosort/internal/capfs"
	"github.com/John-Robertt/photosort/internal/domain"
)

// Error 表示扫描中途失败（I/O 错误等）。与“未选择目录”是两类结果：
// 未选择由 capfs.IsNoSelection 判断，扫描失败由 IsScanFailure 判断。
type Error struct {
	Dir string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("扫描 %q 失败：%v", e.Dir, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func IsScanFailure(err error) bool {
	var e *Error
	return errors.As(err, &e)
}

// Progress 在每处理完一个目录项后调用（done 从 1 开始，total 为目录项总数）。
type Progress func(done, total int)

// Enumerate 列出 dir 下的照片文件（jpg/jpeg/dng，大小写不敏感）。
//
// 规则：
// - 非递归：子目录与其他扩展名的条目直接跳过
// - 每个文件分配新的 ID；size/mtime 是扫描时的快照
// - 扫描阶段只做 stat，不读文件内容，不修改文件系统
// - 任一条目 stat 失败：整次扫描失败，不返回部分结果
func Enumerate(ctx context.Context, dir *capfs.Dir, progress Progress) ([]domain.PhotoFile, error) {
	if dir == nil {
		return nil, capfs.ErrCancelled
	}
	entries, err := dir.List(ctx)
	if err != nil {
		return nil, &Error{Dir: dir.Path(), Err: err}
	}

	files := make([]domain.PhotoFile, 0, len(entries))
	for i, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, &Error{Dir: dir.Path(), Err: err}
		}
		// 跳过的条目同样计入进度。
		name := e.Name()
		kind, ok := domain.KindFromName(name)
		if e.IsDir() || !ok {
			report(progress, i+1, len(entries))
			continue
		}

		info, err := e.Info()
		if err != nil {
			return nil, &Error{Dir: dir.Path(), Err: err}
		}
		if !info.Mode().IsRegular() {
			report(progress, i+1, len(entries))
			continue
		}

		h, err := dir.File(name)
		if err != nil {
			return nil, &Error{Dir: dir.Path(), Err: err}
		}

		files = append(files, domain.PhotoFile{
			ID:      uuid.NewString(),
			Name:    name,
			Path:    name,
			Kind:    kind,
			Size:    info.Size(),
			ModTime: info.ModTime(),
			Handle:  h,
		})
		report(progress, i+1, len(entries))
	}

	// os.ReadDir 已按名称排序；这里再显式排序一次，避免依赖底层实现。
	sort.SliceStable(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

func report(p Progress, done, total int) {
	if p != nil {
		p(done, total)
	}
}
