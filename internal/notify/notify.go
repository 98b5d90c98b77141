// Package notify 把一条 title/message 以 Discord 风格的 webhook payload 投递出去。
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/caarlos0/env"

	"github.com/John-Robertt/photosort/internal/infra/httpx"
)

const (
	DefaultTitle   = "Claude Code通知"
	DefaultMessage = "通知です"

	FallbackTitle   = "実装完了"
	FallbackMessage = "Claude Codeによる実装が完了しました。"

	Username = "Claude Code"
	// Color 是 embed 侧边条颜色（绿色）。
	Color = 0x00ff00

	WebhookURLVar  = "DISCORD_WEBHOOK_URL"
	ProjectNameVar = "PROJECT_NAME"
)

// ErrMissingWebhookURL 表示未配置 DISCORD_WEBHOOK_URL。
var ErrMissingWebhookURL = errors.New("環境変数 " + WebhookURLVar + " が設定されていません")

// Message 是待发送的通知内容。
type Message struct {
	Title   string
	Message string
}

// Env 是 notifier 从环境变量读取的配置。
type Env struct {
	WebhookURL  string `env:"DISCORD_WEBHOOK_URL"`
	ProjectName string `env:"PROJECT_NAME"`
}

// LoadEnv 解析环境变量。URL 为空时返回 ErrMissingWebhookURL（在任何网络调用之前）。
func LoadEnv() (Env, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return Env{}, err
	}
	e.WebhookURL = strings.TrimSpace(e.WebhookURL)
	e.ProjectName = strings.TrimSpace(e.ProjectName)
	if e.WebhookURL == "" {
		return Env{}, ErrMissingWebhookURL
	}
	return e, nil
}

// Resolve 决定本次要发送的内容。
//
// - 位置参数 >= 2：取前两个
// - 否则解析 stdin（stdin 为 nil 视为空输入）：
//   - 合法 JSON 对象：title/message 缺失或为空时取 DefaultTitle/DefaultMessage
//   - 合法 JSON 但不是对象（数组、字符串、数字）：按空对象处理
//   - 空输入、非法 JSON 或 null：FallbackTitle/FallbackMessage
//
// 返回的 error 只用于提示（JSON 解析失败），不影响发送。
func Resolve(args []string, stdin io.Reader) (Message, error) {
	if len(args) >= 2 {
		return Message{Title: args[0], Message: args[1]}, nil
	}

	fallback := Message{Title: FallbackTitle, Message: FallbackMessage}
	if stdin == nil {
		return fallback, nil
	}
	b, err := io.ReadAll(stdin)
	if err != nil {
		return fallback, err
	}
	if strings.TrimSpace(string(b)) == "" {
		return fallback, nil
	}

	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return fallback, fmt.Errorf("JSON 解析失败：%w", err)
	}
	// `null` 没有任何字段可读：与解析失败同样处理。
	if v == nil {
		return fallback, errors.New("JSON 解析失败：输入为 null")
	}
	// 数组、字符串、数字等非对象：视为没有字段的对象，取默认值。
	fields, _ := v.(map[string]any)

	return Message{
		Title:   stringField(fields, "title", DefaultTitle),
		Message: stringField(fields, "message", DefaultMessage),
	}, nil
}

// stringField 取字符串字段；缺失、空串或非字符串时返回 def。
func stringField(fields map[string]any, key, def string) string {
	if s, ok := fields[key].(string); ok && s != "" {
		return s
	}
	return def
}

// Payload 是 webhook 请求体。
type Payload struct {
	Username string  `json:"username"`
	Embeds   []Embed `json:"embeds"`
}

type Embed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
	Timestamp   string `json:"timestamp"`
}

// Build 构造 payload。project 非空时标题变为 "[project] title"。
func Build(msg Message, project string, now time.Time) Payload {
	title := msg.Title
	if project != "" {
		title = "[" + project + "] " + title
	}
	return Payload{
		Username: Username,
		Embeds: []Embed{{
			Title:       title,
			Description: msg.Message,
			Color:       Color,
			Timestamp:   now.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		}},
	}
}

// StatusError 表示 webhook 返回了非 2xx。
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("webhook 返回 %s：%s", e.Status, e.Body)
	}
	return "webhook 返回 " + e.Status
}

func IsStatusError(err error) bool {
	var e *StatusError
	return errors.As(err, &e)
}

// Send 以 POST application/json 投递 payload；非 2xx 返回 *StatusError。
func Send(ctx context.Context, c *http.Client, url string, p Payload) error {
	if c == nil {
		c = httpx.NewWebhookClient(0)
	}
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		httpx.DrainClose(resp.Body)
		return &StatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(body)),
		}
	}
	httpx.DrainClose(resp.Body)
	return nil
}
