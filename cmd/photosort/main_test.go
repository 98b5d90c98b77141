package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/John-Robertt/photosort/internal/config"
	"github.com/John-Robertt/photosort/internal/domain"
)

type captured struct {
	stdout, stderr bytes.Buffer
}

func newEnv(cwd string, stdin string, c *captured) *env {
	return &env{
		cwd:    cwd,
		stdin:  strings.NewReader(stdin),
		stdout: &c.stdout,
		stderr: &c.stderr,
	}
}

func writeFile(t *testing.T, path string, b []byte) {
	t.Helper()
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func decodeReport(t *testing.T, b []byte) domain.RunReport {
	t.Helper()
	var rr domain.RunReport
	if err := json.Unmarshal(b, &rr); err != nil {
		t.Fatalf("stdout 不是合法的 RunReport JSON：%v\nstdout=%q", err, string(b))
	}
	return rr
}

func TestMove_NoTTY_StdoutOnlyRunReportJSON(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(src, "IMG_1.jpg"), []byte("j"))
	writeFile(t, filepath.Join(src, "IMG_1.dng"), []byte("d"))
	writeFile(t, filepath.Join(dst, "IMG_1.jpg"), []byte("old"))

	var c captured
	code := execute(context.Background(), []string{"move", src, "--to", dst}, newEnv(src, "", &c))
	if code != 0 {
		t.Fatalf("期望退出码 0，实际 %d：%s", code, c.stderr.String())
	}

	rr := decodeReport(t, c.stdout.Bytes())
	if !rr.DryRun || rr.Summary.Planned != 1 || len(rr.Items) != 1 {
		t.Fatalf("dry-run report 不符合预期：%+v", rr)
	}
	files := rr.Items[0].Files
	if len(files) != 2 || !files[0].Overwrite || files[1].Overwrite {
		t.Fatalf("应标注 JPEG 会覆盖目标同名文件：%+v", files)
	}
	if !exists(filepath.Join(src, "IMG_1.dng")) {
		t.Fatalf("dry-run 不应移动文件")
	}
	if !strings.Contains(c.stderr.String(), "完成：ok=0 planned=1") {
		t.Fatalf("stderr 缺少完成摘要：%q", c.stderr.String())
	}
}

func TestMove_Apply(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(src, "A.JPG"), []byte("j"))
	writeFile(t, filepath.Join(src, "A.dng"), []byte("d"))
	writeFile(t, filepath.Join(src, "B.jpeg"), []byte("j"))

	var c captured
	code := execute(context.Background(), []string{"move", src, "--to", dst, "--only", "A", "--apply"}, newEnv(src, "", &c))
	if code != 0 {
		t.Fatalf("期望退出码 0，实际 %d：%s", code, c.stderr.String())
	}
	rr := decodeReport(t, c.stdout.Bytes())
	if rr.DryRun || rr.Summary.OK != 1 {
		t.Fatalf("report 不符合预期：%+v", rr)
	}
	for _, name := range []string{"A.JPG", "A.dng"} {
		if !exists(filepath.Join(dst, name)) || exists(filepath.Join(src, name)) {
			t.Fatalf("%s 应已移动到目标目录", name)
		}
	}
	if !exists(filepath.Join(src, "B.jpeg")) {
		t.Fatalf("未选中的 pair 不应被处理")
	}
}

func TestMove_StagedApply(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(src, "A.jpg"), []byte("j"))
	writeFile(t, filepath.Join(src, "A.dng"), []byte("d"))

	var c captured
	code := execute(context.Background(), []string{"move", src, "--to", dst, "--apply", "--staged"}, newEnv(src, "", &c))
	if code != 0 {
		t.Fatalf("期望退出码 0，实际 %d：%s", code, c.stderr.String())
	}
	rr := decodeReport(t, c.stdout.Bytes())
	if !rr.Staged || rr.Summary.OK != 1 {
		t.Fatalf("staged report 不符合预期：%+v", rr)
	}
}

func TestMove_NoTargetIsNotAnError(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "A.jpg"), []byte("j"))

	var c captured
	code := execute(context.Background(), []string{"move", src, "--apply"}, newEnv(src, "", &c))
	if code != 0 {
		t.Fatalf("未选择目标目录应退出 0，实际 %d", code)
	}
	if c.stdout.Len() != 0 || !strings.Contains(c.stderr.String(), "未选择目标目录") {
		t.Fatalf("应只在 stderr 提示：stdout=%q stderr=%q", c.stdout.String(), c.stderr.String())
	}
	if !exists(filepath.Join(src, "A.jpg")) {
		t.Fatalf("文件不应被修改")
	}
}

func TestMove_PromptsForTargetOnTTY(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(src, "A.jpg"), []byte("j"))

	var c captured
	e := newEnv(src, dst+"\n", &c)
	e.stdinTTY = true
	code := execute(context.Background(), []string{"move", src, "--apply"}, e)
	if code != 0 {
		t.Fatalf("期望退出码 0，实际 %d：%s", code, c.stderr.String())
	}
	if !strings.Contains(c.stderr.String(), "目标目录：") {
		t.Fatalf("应提示输入目标目录：%q", c.stderr.String())
	}
	if !exists(filepath.Join(dst, "A.jpg")) {
		t.Fatalf("文件应移动到输入的目录")
	}
}

func TestMove_MissingTargetDirectoryFails(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "A.jpg"), []byte("j"))

	var c captured
	code := execute(context.Background(), []string{"move", src, "--to", filepath.Join(src, "nope")}, newEnv(src, "", &c))
	if code != 1 {
		t.Fatalf("目标目录不存在应退出 1，实际 %d", code)
	}
	rr := decodeReport(t, c.stdout.Bytes())
	if rr.Summary.Failed != 1 || rr.Items[0].ErrorCode != domain.ErrCodeNoSelection {
		t.Fatalf("report 不符合预期：%+v", rr)
	}
}

func TestDelete_ApplyAndMissingBasename(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "A.jpg"), []byte("j"))
	writeFile(t, filepath.Join(src, "A.dng"), []byte("d"))

	var c captured
	code := execute(context.Background(), []string{"delete", src, "--only", "A,Z", "--apply"}, newEnv(src, "", &c))
	if code != 0 {
		t.Fatalf("期望退出码 0，实际 %d：%s", code, c.stderr.String())
	}
	rr := decodeReport(t, c.stdout.Bytes())
	if rr.Summary.OK != 1 || rr.Summary.Skipped != 1 {
		t.Fatalf("summary 不符合预期：%+v", rr.Summary)
	}
	if rr.Items[1].Basename != "Z" || rr.Items[1].ErrorCode != domain.ErrCodeNotFound {
		t.Fatalf("缺失的 basename 应记为 skipped：%+v", rr.Items[1])
	}
	if exists(filepath.Join(src, "A.jpg")) || exists(filepath.Join(src, "A.dng")) {
		t.Fatalf("A 的两个成员都应被删除")
	}
}

func TestConfigFile_ApplyOverriddenByFlag(t *testing.T) {
	cwd, src, dst := t.TempDir(), t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(src, "A.jpg"), []byte("j"))
	cfg, _ := json.Marshal(map[string]any{"path": src, "target": dst, "apply": true})
	writeFile(t, filepath.Join(cwd, config.FileName), cfg)

	var c captured
	code := execute(context.Background(), []string{"move", "--apply=false"}, newEnv(cwd, "", &c))
	if code != 0 {
		t.Fatalf("期望退出码 0，实际 %d：%s", code, c.stderr.String())
	}
	rr := decodeReport(t, c.stdout.Bytes())
	if !rr.DryRun || rr.Path != src || rr.Target != dst {
		t.Fatalf("应使用配置中的 path/target，且 --apply=false 生效：%+v", rr)
	}
	if !exists(filepath.Join(src, "A.jpg")) {
		t.Fatalf("dry-run 不应移动文件")
	}
}

func TestConfigNotFound(t *testing.T) {
	cwd := t.TempDir()

	var c captured
	code := execute(context.Background(), []string{"delete"}, newEnv(cwd, "", &c))
	if code != 1 {
		t.Fatalf("期望退出码 1，实际 %d", code)
	}
	rr := decodeReport(t, c.stdout.Bytes())
	if len(rr.Items) != 1 || rr.Items[0].ErrorCode != config.ErrCodeNotFound {
		t.Fatalf("应输出 config_not_found：%+v", rr)
	}
}

func TestConfigNotFound_PromptCancelled(t *testing.T) {
	cwd := t.TempDir()

	var c captured
	e := newEnv(cwd, "\n", &c)
	e.stdinTTY = true
	if code := execute(context.Background(), []string{"delete"}, e); code != 0 {
		t.Fatalf("取消选择应退出 0，实际 %d", code)
	}
	if c.stdout.Len() != 0 {
		t.Fatalf("取消时 stdout 应为空：%q", c.stdout.String())
	}
}

func TestTTYSummary(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "A.jpg"), []byte("j"))

	var c captured
	e := newEnv(src, "", &c)
	e.stdoutTTY = true
	if code := execute(context.Background(), []string{"delete", src, "--only", "Q"}, e); code != 0 {
		t.Fatalf("期望退出码 0，实际 %d", code)
	}
	if !strings.HasPrefix(c.stdout.String(), "完成：") {
		t.Fatalf("TTY 下 stdout 应是摘要：%q", c.stdout.String())
	}
	if !strings.Contains(c.stderr.String(), "Q "+domain.ErrCodeNotFound) {
		t.Fatalf("stderr 应列出 skipped 条目：%q", c.stderr.String())
	}
}

func TestScan_JSON(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "A.jpg"), []byte("j"))
	writeFile(t, filepath.Join(src, "A.dng"), []byte("d"))
	writeFile(t, filepath.Join(src, "B.dng"), []byte("d"))
	writeFile(t, filepath.Join(src, "notes.txt"), []byte("x"))

	var c captured
	if code := execute(context.Background(), []string{"scan", src}, newEnv(src, "", &c)); code != 0 {
		t.Fatalf("期望退出码 0，实际 %d：%s", code, c.stderr.String())
	}
	var l listing
	if err := json.Unmarshal(c.stdout.Bytes(), &l); err != nil {
		t.Fatalf("stdout 不是合法 JSON：%v", err)
	}
	if len(l.Pairs) != 2 || l.Pairs[0].Basename != "A" || l.Pairs[0].JPEG == nil || l.Pairs[1].JPEG != nil {
		t.Fatalf("pairs 不符合预期：%+v", l.Pairs)
	}
}

func TestScan_Table(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "A.jpg"), []byte("j"))

	var c captured
	e := newEnv(src, "", &c)
	e.stdoutTTY = true
	if code := execute(context.Background(), []string{"scan", src}, e); code != 0 {
		t.Fatalf("期望退出码 0，实际 %d", code)
	}
	out := c.stdout.String()
	if !strings.Contains(out, "BASENAME") || !strings.Contains(out, "A.jpg") {
		t.Fatalf("表格输出不符合预期：%q", out)
	}
}

func TestServe_ListsAndShutsDown(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "A.jpg"), []byte("j"))

	var c captured
	e := newEnv(src, "", &c)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ready := make(chan string, 1)
	done := make(chan int, 1)
	go func() {
		done <- serve(ctx, e, config.CLIArgs{Path: src, Listen: "127.0.0.1:0", ListenSet: true}, ready)
	}()

	var addr string
	select {
	case addr = <-ready:
	case code := <-done:
		t.Fatalf("服务提前退出：%d", code)
	case <-time.After(5 * time.Second):
		t.Fatalf("等待服务启动超时")
	}

	resp, err := http.Get("http://" + addr + "/api/pairs")
	if err != nil {
		t.Fatalf("请求失败：%v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(b), `"basename": "A"`) {
		t.Fatalf("响应不符合预期：%d %s", resp.StatusCode, b)
	}

	cancel()
	select {
	case code := <-done:
		if code != 0 {
			t.Fatalf("关闭后应退出 0，实际 %d", code)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("等待服务关闭超时")
	}
}

func TestUnknownCommand(t *testing.T) {
	var c captured
	if code := execute(context.Background(), []string{"bogus"}, newEnv(t.TempDir(), "", &c)); code != 2 {
		t.Fatalf("未知命令应退出 2，实际 %d", code)
	}
}
