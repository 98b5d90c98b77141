package fsx

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// 通过可替换的函数指针，让测试能稳定模拟 rename/remove 失败。
var (
	renameFunc = os.Rename
	removeFunc = os.Remove
)

// PathTypeConflictError 表示目标路径类型冲突（例如期望文件但实际是目录）。
type PathTypeConflictError struct {
	Path string
	Want string
	Got  string
}

func (e *PathTypeConflictError) Error() string {
	return fmt.Sprintf("目标路径类型冲突：%q（期望 %s，实际 %s）", e.Path, e.Want, e.Got)
}

func IsPathTypeConflict(err error) bool {
	var e *PathTypeConflictError
	return errors.As(err, &e)
}

// Remove 删除一个普通文件。目录一律拒绝（避免误删整个目录）。
func Remove(path string) error {
	fi, err := os.Lstat(path)
	if err != nil {
		return err
	}
	if fi.IsDir() {
		return &PathTypeConflictError{Path: path, Want: "file", Got: "dir"}
	}
	return removeFunc(path)
}

// AtomicWriter 在目标目录内以“临时文件 + rename”的方式写入文件。
//
// 语义：目标已存在则覆盖（replace）；Commit 之前目标文件不可见。
// 临时文件必须与目标文件在同目录，以保证 rename 的原子性。
type AtomicWriter struct {
	dir  string
	dst  string
	perm os.FileMode

	tmp  *os.File
	done bool
}

// NewAtomicWriter 在 dir 下准备写入 name。dir 必须已存在（不会隐式创建目录）。
func NewAtomicWriter(dir, name string, perm os.FileMode) (*AtomicWriter, error) {
	dir = filepath.Clean(dir)
	dst := filepath.Join(dir, name)
	if fi, err := os.Lstat(dst); err == nil {
		if fi.IsDir() {
			return nil, &PathTypeConflictError{Path: dst, Want: "file", Got: "dir"}
		}
		if !fi.Mode().IsRegular() {
			return nil, &PathTypeConflictError{Path: dst, Want: "regular file", Got: fi.Mode().Type().String()}
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	// 前缀带 '.'，避免在扫描/相册视图中出现半成品。
	tmp, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return nil, err
	}
	return &AtomicWriter{dir: dir, dst: dst, perm: perm, tmp: tmp}, nil
}

func (w *AtomicWriter) Write(p []byte) (int, error) {
	if w.done {
		return 0, os.ErrClosed
	}
	return w.tmp.Write(p)
}

// Path 返回最终文件路径。
func (w *AtomicWriter) Path() string { return w.dst }

// Commit 把临时文件落为最终文件。失败时临时文件会被清理。
func (w *AtomicWriter) Commit() error {
	if w.done {
		return os.ErrClosed
	}
	w.done = true
	tmpName := w.tmp.Name()

	err := func() error {
		if err := w.tmp.Chmod(w.perm); err != nil {
			return err
		}
		if err := w.tmp.Sync(); err != nil {
			return err
		}
		if err := w.tmp.Close(); err != nil {
			return err
		}
		return renameFunc(tmpName, w.dst)
	}()
	if err != nil {
		_ = w.tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}

	// 目录 fsync：best-effort（不同平台/文件系统的语义差异很大）。
	_ = syncDirBestEffort(w.dir)
	return nil
}

// Abort 放弃写入并清理临时文件。对已 Commit 的 writer 无效果。
func (w *AtomicWriter) Abort() error {
	if w.done {
		return nil
	}
	w.done = true
	_ = w.tmp.Close()
	return os.Remove(w.tmp.Name())
}

func syncDirBestEffort(dir string) error {
	// Windows 上目录 Sync 的语义与支持情况不稳定，这里直接跳过。
	if runtime.GOOS == "windows" {
		return nil
	}
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
