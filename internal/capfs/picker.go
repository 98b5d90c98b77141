package capfs

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// Picker 代表一次由用户参与的目录授权（选择目录 + 授予读写权限）。
//
// 约束：用户关闭/取消必须返回 ErrCancelled，拒绝授权返回 ErrPermissionDenied；
// 两者都由调用方视为“未选择”，不是硬错误。
type Picker interface {
	Pick(ctx context.Context) (*Dir, error)
}

// PathPicker 使用预先给定的路径（CLI 参数、配置文件或 HTTP 请求体）。空路径视为取消。
type PathPicker struct {
	Path string
}

func (p PathPicker) Pick(ctx context.Context) (*Dir, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Grant(p.Path)
}

// PromptPicker 在交互终端中询问目录：读一行输入；EOF 或空行视为取消。
type PromptPicker struct {
	In     io.Reader
	Out    io.Writer
	Prompt string
}

func (p PromptPicker) Pick(ctx context.Context) (*Dir, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.Out != nil && p.Prompt != "" {
		fmt.Fprint(p.Out, p.Prompt)
	}
	if p.In == nil {
		return nil, ErrCancelled
	}

	line, err := bufio.NewReader(p.In).ReadString('\n')
	if err != nil && err != io.EOF {
		return nil, err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, ErrCancelled
	}
	return Grant(line)
}
