package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	cli "github.com/spf13/cobra"

	"github.com/John-Robertt/photosort/internal/app/run"
	"github.com/John-Robertt/photosort/internal/capfs"
	"github.com/John-Robertt/photosort/internal/config"
	"github.com/John-Robertt/photosort/internal/domain"
)

// env 汇总一次进程运行的 I/O 环境；测试里直接构造。
type env struct {
	cwd string

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	stdinTTY  bool
	stdoutTTY bool

	// progress 为 nil 时不输出进度（非交互环境）。
	progress io.Writer
}

func main() {
	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取当前目录失败：%v\n", err)
		os.Exit(1)
	}
	progressW, _ := pickProgressWriter()

	e := &env{
		cwd:       cwd,
		stdin:     os.Stdin,
		stdout:    os.Stdout,
		stderr:    os.Stderr,
		stdinTTY:  isTTY(os.Stdin),
		stdoutTTY: isTTY(os.Stdout),
		progress:  progressW,
	}

	// Ctrl+C：批量运行在两个 pair 之间停下；serve 优雅退出。
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], e)
	stop()
	if code != 0 {
		os.Exit(code)
	}
}

// execute 解析命令行并执行，返回进程退出码：0 成功，1 失败，2 参数错误。
func execute(ctx context.Context, args []string, e *env) int {
	code := 0
	root := newRootCmd(e, &code)
	root.SetArgs(args)
	root.SetIn(e.stdin)
	root.SetOut(e.stdout)
	root.SetErr(e.stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(e.stderr, "参数错误：%v\n", err)
		return 2
	}
	return code
}

func newRootCmd(e *env, code *int) *cli.Command {
	root := &cli.Command{
		Use:   "photosort",
		Short: "按 basename 配对 JPEG/DNG 照片，并成对移动或删除",
		Long: `photosort 扫描单个目录（不递归）中的 jpg/jpeg/dng 文件，按 basename 配对，
然后把 pair 作为整体移动到目标目录或删除。

move/delete 默认 dry-run，只输出计划；加 --apply 才会真正修改文件系统。
未给 path 时读取当前目录下的 photosort.json。`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newScanCmd(e, code),
		newMutateCmd(e, code, domain.OpMove),
		newMutateCmd(e, code, domain.OpDelete),
		newServeCmd(e, code),
	)
	return root
}

// flags 是各子命令共用的参数；是否显式指定由 cmd.Flags().Changed 判断。
type flags struct {
	to     string
	only   []string
	apply  bool
	staged bool
	listen string
}

func cliArgs(cmd *cli.Command, args []string, f *flags) config.CLIArgs {
	c := config.CLIArgs{
		Target:    f.to,
		TargetSet: cmd.Flags().Changed("to"),
		Apply:     f.apply,
		ApplySet:  cmd.Flags().Changed("apply"),
		Staged:    f.staged,
		StagedSet: cmd.Flags().Changed("staged"),
		Listen:    f.listen,
		ListenSet: cmd.Flags().Changed("listen"),
	}
	if len(args) > 0 {
		c.Path = args[0]
	}
	return c
}

func newMutateCmd(e *env, code *int, op string) *cli.Command {
	f := &flags{}
	cmd := &cli.Command{
		Args: cli.MaximumNArgs(1),
		RunE: func(cmd *cli.Command, args []string) error {
			*code = mutate(cmd.Context(), e, op, cliArgs(cmd, args, f), f.only)
			return nil
		},
	}

	switch op {
	case domain.OpMove:
		cmd.Use = "move [path] --to <dir>"
		cmd.Short = "把 pair 成对移动到目标目录（默认 dry-run）"
		cmd.Flags().StringVar(&f.to, "to", "", "目标目录（未指定则读配置文件；交互终端下会询问）")
		cmd.Flags().BoolVar(&f.staged, "staged", false, "先写入全部副本再删除源文件；任一写入失败则撤回，源文件保持不变")
	default:
		cmd.Use = "delete [path]"
		cmd.Short = "删除 pair 的全部成员（默认 dry-run）"
	}
	cmd.Flags().StringSliceVar(&f.only, "only", nil, "只处理这些 basename（可重复或逗号分隔）")
	cmd.Flags().BoolVar(&f.apply, "apply", false, "真正执行（默认 dry-run）；支持 --apply=false 覆盖配置中的 apply=true")
	return cmd
}

func mutate(ctx context.Context, e *env, op string, ca config.CLIArgs, only []string) int {
	eff, err := loadConfig(ctx, e, ca)
	if err != nil {
		if capfs.IsNoSelection(err) {
			fmt.Fprintln(e.stderr, "未选择源目录，未做任何操作。")
			return 0
		}
		emitReport(e, failedReport(e.cwd, op, !(ca.ApplySet && ca.Apply), config.Code(err), err))
		return 1
	}

	src, err := capfs.PathPicker{Path: eff.Path}.Pick(ctx)
	if err != nil {
		if capfs.IsNoSelection(err) {
			fmt.Fprintf(e.stderr, "无法访问源目录（%v），未做任何操作。\n", err)
			return 0
		}
		emitReport(e, failedReport(eff.Path, op, !eff.Apply, domain.ErrCodeNoSelection, err))
		return 1
	}

	var dst *capfs.Dir
	if op == domain.OpMove {
		dst, err = pickTarget(ctx, e, eff.Target)
		if err != nil {
			if capfs.IsNoSelection(err) {
				fmt.Fprintln(e.stderr, "未选择目标目录，未做任何操作。")
				return 0
			}
			emitReport(e, failedReport(eff.Path, op, !eff.Apply, domain.ErrCodeNoSelection, err))
			return 1
		}
	}

	var obs run.Observer
	if e.progress != nil {
		obs = newProgressUI(e.progress)
	}

	rr := run.ExecuteWithObserver(ctx, run.Request{
		Source: src,
		Target: dst,
		Op:     op,
		Only:   only,
		Apply:  eff.Apply,
		Staged: eff.Staged,
		Logger: log.New(e.stderr, "", 0),
	}, obs)

	emitReport(e, rr)
	if rr.Summary.Failed == 0 {
		return 0
	}
	return 1
}

// loadConfig 合并配置；未给 path 且没有可用配置时，交互终端下询问源目录。
func loadConfig(ctx context.Context, e *env, ca config.CLIArgs) (config.EffectiveConfig, error) {
	eff, err := config.LoadEffective(e.cwd, ca)
	if err == nil {
		return eff, nil
	}
	switch config.Code(err) {
	case config.ErrCodeNotFound, config.ErrCodeMissingPath:
	default:
		return config.EffectiveConfig{}, err
	}
	if !e.stdinTTY || ca.Path != "" {
		return config.EffectiveConfig{}, err
	}

	dir, perr := capfs.PromptPicker{In: e.stdin, Out: e.stderr, Prompt: "源目录："}.Pick(ctx)
	if perr != nil {
		return config.EffectiveConfig{}, perr
	}
	ca.Path = dir.Path()
	return config.LoadEffective(e.cwd, ca)
}

func pickTarget(ctx context.Context, e *env, target string) (*capfs.Dir, error) {
	if target != "" {
		return capfs.PathPicker{Path: target}.Pick(ctx)
	}
	if e.stdinTTY {
		return capfs.PromptPicker{In: e.stdin, Out: e.stderr, Prompt: "目标目录："}.Pick(ctx)
	}
	return nil, capfs.ErrCancelled
}

func emitReport(e *env, rr domain.RunReport) {
	summary := fmt.Sprintf("完成：ok=%d planned=%d skipped=%d failed=%d\n",
		rr.Summary.OK, rr.Summary.Planned, rr.Summary.Skipped, rr.Summary.Failed,
	)

	if e.stdoutTTY {
		fmt.Fprint(e.stdout, summary)
		for _, it := range rr.Items {
			if it.Status != domain.StatusFailed && it.Status != domain.StatusSkipped {
				continue
			}
			key := it.Basename
			if key == "" {
				key = "<" + rr.Path + ">"
			}
			fmt.Fprintf(e.stderr, "%s %s: %s\n", key, it.ErrorCode, it.ErrorMsg)
		}
		return
	}

	// stdout 非 TTY：stdout 必须且仅输出一个 RunReport JSON（日志/摘要走 stderr）。
	enc := json.NewEncoder(e.stdout)
	_ = enc.Encode(rr)
	fmt.Fprint(e.stderr, summary)
}

// failedReport 把运行前的错误（配置/目录）包装成只有一个合成条目的 report。
func failedReport(path, op string, dryRun bool, code string, err error) domain.RunReport {
	if code == "" {
		code = domain.ErrCodeConfigInvalid
	}
	now := time.Now().UTC()
	rr := domain.RunReport{
		Path:       path,
		Op:         op,
		DryRun:     dryRun,
		StartedAt:  now,
		FinishedAt: now,
		Items: []domain.ItemResult{{
			Status:    domain.StatusFailed,
			ErrorCode: code,
			ErrorMsg:  err.Error(),
			Files:     []domain.FileResult{},
		}},
	}
	rr.Finalize()
	return rr
}

func isTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func pickProgressWriter() (io.Writer, bool) {
	// 进度输出只在交互终端启用；默认走 stderr（不污染 stdout JSON）。
	if isTTY(os.Stderr) {
		return os.Stderr, true
	}
	// 某些环境（例如仅重定向 stderr）下，stdout 仍是 TTY：退化输出到 stdout。
	if isTTY(os.Stdout) {
		return os.Stdout, true
	}
	return nil, false
}
