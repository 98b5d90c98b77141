package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	cli "github.com/spf13/cobra"

	"github.com/John-Robertt/photosort/internal/capfs"
	"github.com/John-Robertt/photosort/internal/config"
	"github.com/John-Robertt/photosort/internal/gallery"
	"github.com/John-Robertt/photosort/internal/web"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(e *env, code *int) *cli.Command {
	f := &flags{}
	cmd := &cli.Command{
		Use:   "serve [path]",
		Short: "启动本地图库（HTML 列表 + JSON API）",
		Args:  cli.MaximumNArgs(1),
		RunE: func(cmd *cli.Command, args []string) error {
			*code = serve(cmd.Context(), e, cliArgs(cmd, args, f), nil)
			return nil
		},
	}
	cmd.Flags().StringVar(&f.listen, "listen", "", "监听地址（默认 "+config.DefaultListen+"）")
	cmd.Flags().BoolVar(&f.staged, "staged", false, "移动时先写入全部副本再删除源文件")
	return cmd
}

// serve 一直运行到 ctx 取消。ready 非 nil 时在开始监听后收到实际地址（测试用）。
func serve(ctx context.Context, e *env, ca config.CLIArgs, ready chan<- string) int {
	logger := log.New(e.stderr, "photosort ", log.LstdFlags)

	eff, err := config.LoadEffective(e.cwd, ca)
	switch {
	case err == nil:
	case ca.Path == "" && config.Code(err) == config.ErrCodeNotFound:
		// 没有配置也能启动：目录稍后通过 POST /api/scan 打开。
		eff, err = config.LoadEffective(e.cwd, config.CLIArgs{Path: e.cwd, Listen: ca.Listen, ListenSet: ca.ListenSet, Staged: ca.Staged, StagedSet: ca.StagedSet})
		if err != nil {
			fmt.Fprintf(e.stderr, "%s: %v\n", config.Code(err), err)
			return 1
		}
		eff.Path = ""
	default:
		fmt.Fprintf(e.stderr, "%s: %v\n", config.Code(err), err)
		return 1
	}

	s := gallery.New(gallery.Options{Logger: logger, ThumbSize: eff.ThumbSize, Staged: eff.Staged})
	if eff.Path != "" {
		if err := s.Open(ctx, capfs.PathPicker{Path: eff.Path}); err != nil {
			if !errors.Is(err, gallery.ErrNoSelection) {
				fmt.Fprintf(e.stderr, "打开目录失败：%v\n", err)
				return 1
			}
			logger.Printf("未能访问 %s，等待通过 /api/scan 选择目录", eff.Path)
		}
	}

	ln, err := net.Listen("tcp", eff.Listen)
	if err != nil {
		fmt.Fprintf(e.stderr, "监听 %s 失败：%v\n", eff.Listen, err)
		return 1
	}

	srv := &http.Server{
		Handler:           web.NewHandler(s, logger),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          logger,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	addr := ln.Addr().String()
	logger.Printf("图库已启动：http://%s/ （Ctrl+C 退出）", addr)
	if s.Dir() != "" {
		logger.Printf("目录：%s，pairs=%d", s.Dir(), len(s.Pairs()))
	}
	if ready != nil {
		ready <- addr
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(e.stderr, "服务异常退出：%v\n", err)
			return 1
		}
		return 0
	case <-ctx.Done():
	}

	logger.Printf("收到退出信号，正在关闭……")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		logger.Printf("关闭超时：%v", err)
		return 1
	}
	logger.Printf("已关闭")
	return 0
}
