package fsx

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAtomicWriter_SuccessAndNoTempLeft(t *testing.T) {
	dir := t.TempDir()

	n, err := copyAtomic(dir, "a.jpg", strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if n != 5 {
		t.Fatalf("期望写入 5 字节，实际 %d", n)
	}

	b, err := os.ReadFile(filepath.Join(dir, "a.jpg"))
	if err != nil {
		t.Fatalf("读取文件失败：%v", err)
	}
	if string(b) != "hello" {
		t.Fatalf("内容不一致：%q", string(b))
	}
	assertNoTemp(t, dir, "a.jpg")
}

func TestAtomicWriter_OverwritesExisting(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.jpg"), []byte("old-content"), 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}

	if _, err := copyAtomic(dir, "a.jpg", strings.NewReader("new")); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	b, _ := os.ReadFile(filepath.Join(dir, "a.jpg"))
	if string(b) != "new" {
		t.Fatalf("期望覆盖为 new，实际 %q", string(b))
	}
}

func TestAtomicWriter_RenameFail_CleanupTemp(t *testing.T) {
	dir := t.TempDir()

	old := renameFunc
	renameFunc = func(oldpath, newpath string) error {
		return os.ErrPermission
	}
	defer func() { renameFunc = old }()

	_, err := copyAtomic(dir, "a.jpg", strings.NewReader("hello"))
	if err == nil {
		t.Fatalf("期望失败，但得到 nil")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir 失败：%v", err)
	}
	for _, e := range entries {
		if e.Name() == "a.jpg" {
			t.Fatalf("不应写出最终文件：%q", e.Name())
		}
	}
	assertNoTemp(t, dir, "a.jpg")
}

func TestAtomicWriter_TargetConflictDir(t *testing.T) {
	dir := t.TempDir()

	// 目标路径是目录：应返回 PathTypeConflictError。
	if err := os.Mkdir(filepath.Join(dir, "a.jpg"), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}

	_, err := NewAtomicWriter(dir, "a.jpg", 0o644)
	if !IsPathTypeConflict(err) {
		t.Fatalf("期望 PathTypeConflictError，实际：%T %v", err, err)
	}
}

func TestAtomicWriter_AbortLeavesNothing(t *testing.T) {
	dir := t.TempDir()

	w, err := NewAtomicWriter(dir, "a.jpg", 0o644)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if _, err := w.Write([]byte("partial")); err != nil {
		t.Fatalf("写入失败：%v", err)
	}
	if err := w.Abort(); err != nil {
		t.Fatalf("Abort 失败：%v", err)
	}
	if _, err := w.Write([]byte("x")); !errors.Is(err, os.ErrClosed) {
		t.Fatalf("Abort 后写入应返回 ErrClosed，实际：%v", err)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("Abort 后目录应为空，实际 %d 项", len(entries))
	}
}

func TestRemove_RejectsDirAndUsesSeam(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := Remove(sub); !IsPathTypeConflict(err) {
		t.Fatalf("删除目录应返回 PathTypeConflictError，实际：%v", err)
	}

	f := filepath.Join(dir, "a.dng")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}

	old := removeFunc
	removeFunc = func(string) error { return os.ErrPermission }
	if err := Remove(f); !errors.Is(err, os.ErrPermission) {
		t.Fatalf("期望注入的 ErrPermission，实际：%v", err)
	}
	removeFunc = old

	if err := Remove(f); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if _, err := os.Stat(f); !os.IsNotExist(err) {
		t.Fatalf("文件应已删除，Stat err=%v", err)
	}
}

func assertNoTemp(t *testing.T, dir, name string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir 失败：%v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "."+name+".tmp-") {
			t.Fatalf("临时文件未清理：%q", e.Name())
		}
	}
}

func copyAtomic(dir, name string, r io.Reader) (int64, error) {
	w, err := NewAtomicWriter(dir, name, 0o644)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(w, r)
	if err != nil {
		_ = w.Abort()
		return n, err
	}
	return n, w.Commit()
}
