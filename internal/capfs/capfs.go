// Package capfs 把本地目录/文件包装为“能力句柄”：持有句柄即获得读/写/删的权限，
// 句柄通过外部授权步骤（Picker）获得，可被撤销，按指针传递且不复制。
package capfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/John-Robertt/photosort/internal/infra/fsx"
)

var (
	// ErrCancelled 表示用户关闭/取消了目录选择（不是错误，是“未选择”）。
	ErrCancelled = errors.New("capfs: selection cancelled")
	// ErrPermissionDenied 表示用户或系统拒绝了目录访问。
	ErrPermissionDenied = errors.New("capfs: permission denied")
	// ErrNotDirectory 表示所选路径不存在或不是目录。
	ErrNotDirectory = errors.New("capfs: not a directory")
	// ErrRevoked 表示句柄已被撤销。
	ErrRevoked = errors.New("capfs: handle revoked")
	// ErrInvalidName 表示文件名不是单层目录内的合法名称。
	ErrInvalidName = errors.New("capfs: invalid file name")
)

// IsNoSelection 判断 err 是否属于“未获得目录”（取消或拒绝）：调用方应视为正常的空结果。
func IsNoSelection(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, ErrPermissionDenied)
}

// Dir 是目录能力句柄（非递归：只覆盖目录本身的直接子项）。
type Dir struct {
	path    string
	revoked atomic.Bool
}

// Grant 校验 path 可作为目录能力使用，并返回句柄。
func Grant(path string) (*Dir, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, ErrCancelled
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fi, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, abs)
		}
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotDirectory, abs)
		}
		return nil, err
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, abs)
	}

	// 读权限探测：打开目录本身（不读取条目）。
	f, err := os.Open(abs)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, abs)
		}
		return nil, err
	}
	_ = f.Close()

	return &Dir{path: filepath.Clean(abs)}, nil
}

func (d *Dir) Path() string { return d.path }

// SameAs 判断两个句柄是否指向同一目录（按 inode/文件 ID 比较，符号链接、
// bind mount、大小写不同的路径都视为同一目录）。无法 stat 时返回 false。
func (d *Dir) SameAs(other *Dir) bool {
	if d == nil || other == nil {
		return false
	}
	if d == other || d.path == other.path {
		return true
	}
	a, err := os.Stat(d.path)
	if err != nil {
		return false
	}
	b, err := os.Stat(other.path)
	if err != nil {
		return false
	}
	return os.SameFile(a, b)
}

// Revoke 撤销句柄；之后该目录及其派生文件句柄上的所有操作都返回 ErrRevoked。
func (d *Dir) Revoke() { d.revoked.Store(true) }

func (d *Dir) check() error {
	if d == nil {
		return ErrRevoked
	}
	if d.revoked.Load() {
		return ErrRevoked
	}
	return nil
}

// List 返回目录的直接子项（按名称排序，来自 os.ReadDir）。
func (d *Dir) List(ctx context.Context) ([]fs.DirEntry, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(d.path)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
		return nil, err
	}
	return entries, nil
}

// File 返回目录内 name 的文件句柄（不检查文件是否存在）。
func (d *Dir) File(name string) (*File, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	if err := validName(name); err != nil {
		return nil, err
	}
	return &File{dir: d, name: name}, nil
}

// Create 在目录内创建（或覆盖）name，内容在 Writer.Close 时原子落盘。
func (d *Dir) Create(name string) (*Writer, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	if err := validName(name); err != nil {
		return nil, err
	}
	w, err := fsx.NewAtomicWriter(d.path, name, 0o644)
	if err != nil {
		return nil, err
	}
	return &Writer{dir: d, w: w}, nil
}

func validName(name string) error {
	if name == "" || name == "." || name == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// File 是目录内单个文件的能力句柄，归派生它的 Dir 所有。
type File struct {
	dir  *Dir
	name string
}

func (f *File) Name() string { return f.name }
func (f *File) Dir() *Dir    { return f.dir }
func (f *File) Path() string { return filepath.Join(f.dir.path, f.name) }

func (f *File) Open() (io.ReadCloser, error) {
	if err := f.dir.check(); err != nil {
		return nil, err
	}
	return os.Open(f.Path())
}

func (f *File) Stat() (fs.FileInfo, error) {
	if err := f.dir.check(); err != nil {
		return nil, err
	}
	return os.Stat(f.Path())
}

// Remove 删除文件（目录会被拒绝）。
func (f *File) Remove() error {
	if err := f.dir.check(); err != nil {
		return err
	}
	return fsx.Remove(f.Path())
}

// Writer 是 Dir.Create 返回的写入器：Close 提交，Abort 放弃。
type Writer struct {
	dir *Dir
	w   *fsx.AtomicWriter
}

func (w *Writer) Write(p []byte) (int, error) {
	if err := w.dir.check(); err != nil {
		_ = w.w.Abort()
		return 0, err
	}
	return w.w.Write(p)
}

// Close 提交写入。句柄在写入期间被撤销时放弃写入并返回 ErrRevoked。
func (w *Writer) Close() error {
	if err := w.dir.check(); err != nil {
		_ = w.w.Abort()
		return err
	}
	return w.w.Commit()
}

func (w *Writer) Abort() error { return w.w.Abort() }
