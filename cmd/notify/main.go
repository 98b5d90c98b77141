// notify 把一条 title/message 发送到 DISCORD_WEBHOOK_URL 指向的 webhook。
//
// 内容来源：位置参数（>=2 个）优先，否则读取 stdin 的 JSON {"title","message"}。
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	cli "github.com/spf13/cobra"

	"github.com/John-Robertt/photosort/internal/infra/httpx"
	"github.com/John-Robertt/photosort/internal/notify"
)

func main() {
	var stdin io.Reader = os.Stdin
	// 交互终端下不等待输入：直接按“空输入”处理。
	if isTTY(os.Stdin) {
		stdin = nil
	}
	if code := run(os.Args[1:], stdin, os.Stdout, os.Stderr); code != 0 {
		os.Exit(code)
	}
}

// run 执行一次通知并返回进程退出码：0 成功，1 失败，2 参数错误。
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var (
		envFile string
		timeout time.Duration
		code    int
	)

	root := &cli.Command{
		Use:   "notify [title] [message]",
		Short: "发送一条 webhook 通知",
		Long: `发送一条 Discord 风格的 webhook 通知。

环境变量：
  DISCORD_WEBHOOK_URL  webhook 地址（必需）
  PROJECT_NAME         非空时标题前加 "[PROJECT_NAME] "

未给出 title 与 message 时，从 stdin 读取 JSON：{"title": "...", "message": "..."}`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cli.Command, args []string) error {
			code = send(cmd.Context(), args, stdin, envFile, timeout, stdout, stderr)
			return nil
		},
	}
	root.Flags().StringVar(&envFile, "env-file", "", "先从 dotenv 文件加载环境变量（已存在的变量不覆盖）")
	root.Flags().DurationVar(&timeout, "timeout", httpx.DefaultTimeout, "单次投递超时")

	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(stderr, "参数错误：%v\n\n", err)
		fmt.Fprint(stderr, root.UsageString())
		return 2
	}
	return code
}

func send(ctx context.Context, args []string, stdin io.Reader, envFile string, timeout time.Duration, stdout, stderr io.Writer) int {
	if strings.TrimSpace(envFile) != "" {
		if err := godotenv.Load(envFile); err != nil {
			fmt.Fprintf(stderr, "读取 env 文件失败：%v\n", err)
			return 1
		}
	}

	e, err := notify.LoadEnv()
	if err != nil {
		fmt.Fprintf(stderr, "エラー: %v\n", err)
		return 1
	}

	msg, err := notify.Resolve(args, stdin)
	if err != nil {
		// stdin 解析失败不致命：按兜底内容继续发送。
		fmt.Fprintf(stderr, "stdin 解析失败，使用默认内容：%v\n", err)
	}

	payload := notify.Build(msg, e.ProjectName, time.Now())
	if err := notify.Send(ctx, httpx.NewWebhookClient(timeout), e.WebhookURL, payload); err != nil {
		fmt.Fprintf(stderr, "Discord通知の送信に失敗しました: %v\n", err)
		return 1
	}

	fmt.Fprintln(stdout, "Discord通知を送信しました")
	return 0
}

func isTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
