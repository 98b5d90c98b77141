package capfs

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGrant_EmptyPathIsCancelled(t *testing.T) {
	_, err := Grant("  ")
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("期望 ErrCancelled，实际：%v", err)
	}
	if !IsNoSelection(err) {
		t.Fatalf("取消应被视为未选择")
	}
}

func TestGrant_NotDirectory(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "a.jpg")
	writeFile(t, f, "x")

	if _, err := Grant(f); !errors.Is(err, ErrNotDirectory) {
		t.Fatalf("文件路径应返回 ErrNotDirectory，实际：%v", err)
	}
	if _, err := Grant(filepath.Join(dir, "missing")); !errors.Is(err, ErrNotDirectory) {
		t.Fatalf("不存在的路径应返回 ErrNotDirectory，实际：%v", err)
	}
}

func TestDir_SameAs(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	da, db := grantDir(t, a), grantDir(t, b)
	if !da.SameAs(grantDir(t, a)) {
		t.Fatalf("同一路径应视为同一目录")
	}
	if da.SameAs(db) || da.SameAs(nil) {
		t.Fatalf("不同目录不应相同")
	}

	link := filepath.Join(b, "alias")
	if err := os.Symlink(a, link); err != nil {
		t.Skipf("当前平台不支持符号链接：%v", err)
	}
	if !da.SameAs(grantDir(t, link)) {
		t.Fatalf("符号链接指向的目录应视为同一目录")
	}
}

func grantDir(t *testing.T, path string) *Dir {
	t.Helper()
	d, err := Grant(path)
	if err != nil {
		t.Fatalf("授权目录失败：%v", err)
	}
	return d
}

func TestDir_RevokeBlocksAllOperations(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.jpg"), "x")

	d, err := Grant(dir)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	f, err := d.File("a.jpg")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	d.Revoke()

	if _, err := d.List(context.Background()); !errors.Is(err, ErrRevoked) {
		t.Fatalf("List 期望 ErrRevoked，实际：%v", err)
	}
	if _, err := f.Open(); !errors.Is(err, ErrRevoked) {
		t.Fatalf("Open 期望 ErrRevoked，实际：%v", err)
	}
	if err := f.Remove(); !errors.Is(err, ErrRevoked) {
		t.Fatalf("Remove 期望 ErrRevoked，实际：%v", err)
	}
	if _, err := d.Create("b.jpg"); !errors.Is(err, ErrRevoked) {
		t.Fatalf("Create 期望 ErrRevoked，实际：%v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "a.jpg")); err != nil {
		t.Fatalf("撤销不应影响磁盘上的文件：%v", err)
	}
}

func TestDir_FileRejectsNestedNames(t *testing.T) {
	d, err := Grant(t.TempDir())
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	for _, name := range []string{"", ".", "..", "sub/a.jpg", "../a.jpg"} {
		if _, err := d.File(name); !errors.Is(err, ErrInvalidName) {
			t.Fatalf("%q 期望 ErrInvalidName，实际：%v", name, err)
		}
	}
}

func TestDir_CreateOpenRemove(t *testing.T) {
	dir := t.TempDir()
	d, err := Grant(dir)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	w, err := d.Create("a.dng")
	if err != nil {
		t.Fatalf("Create 失败：%v", err)
	}
	if _, err := io.Copy(w, strings.NewReader("raw")); err != nil {
		t.Fatalf("写入失败：%v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "a.dng")); !os.IsNotExist(err) {
		t.Fatalf("Close 之前目标文件不应可见，Stat err=%v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close 失败：%v", err)
	}

	f, _ := d.File("a.dng")
	rc, err := f.Open()
	if err != nil {
		t.Fatalf("Open 失败：%v", err)
	}
	b, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(b) != "raw" {
		t.Fatalf("内容不一致：%q", string(b))
	}

	if err := f.Remove(); err != nil {
		t.Fatalf("Remove 失败：%v", err)
	}
	if _, err := f.Stat(); !os.IsNotExist(err) {
		t.Fatalf("删除后 Stat 应返回不存在，实际：%v", err)
	}
}

func TestPromptPicker(t *testing.T) {
	dir := t.TempDir()

	var out strings.Builder
	d, err := PromptPicker{In: strings.NewReader(dir + "\n"), Out: &out, Prompt: "目录："}.Pick(context.Background())
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if d.Path() != filepath.Clean(dir) {
		t.Fatalf("期望 %q，实际 %q", dir, d.Path())
	}
	if out.String() != "目录：" {
		t.Fatalf("提示语输出不正确：%q", out.String())
	}

	_, err = PromptPicker{In: strings.NewReader("")}.Pick(context.Background())
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("EOF 应视为取消，实际：%v", err)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}
}
