package httpx

import (
	"errors"
	"io"
	"net/http"
	"time"
)

const (
	DefaultTimeout   = 10 * time.Second
	DefaultUserAgent = "photosort-notify/1.0"

	defaultRetryMax = 1
)

// Transport 固化 webhook 投递的网络策略：固定 UA + 有界重试。
//
// 只在“连接层失败”（RoundTrip 返回 error）时重试；收到任何 HTTP 响应都不重试，
// 状态码由调用方判断。
type Transport struct {
	Base http.RoundTripper

	UserAgent string

	// RetryMax 表示最大重试次数（不含首次尝试）。
	RetryMax int
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	if t.Base == nil {
		return nil, errors.New("nil base transport")
	}

	// 只对可重放的请求重试：无 body，或 body 可以通过 GetBody 重新获取。
	canRetry := req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
	max := t.RetryMax
	if max < 0 || !canRetry {
		max = 0
	}

	var lastErr error
	for attempt := 0; attempt <= max; attempt++ {
		r, err := cloneRequest(req, attempt)
		if err != nil {
			return nil, err
		}
		if r.Header.Get("User-Agent") == "" && t.UserAgent != "" {
			r.Header.Set("User-Agent", t.UserAgent)
		}

		resp, err := t.Base.RoundTrip(r)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if req.Context().Err() != nil {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

// cloneRequest 复制 request；重试时通过 GetBody 取一份新的 body。
func cloneRequest(req *http.Request, attempt int) (*http.Request, error) {
	r := req.Clone(req.Context())
	if attempt > 0 && req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		r.Body = body
	}
	return r, nil
}

// NewWebhookClient 构造用于 webhook 投递的 HTTP client（遵循 HTTP(S)_PROXY 环境变量）。
// timeout<=0 时使用 DefaultTimeout。
func NewWebhookClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	base := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
	}
	return &http.Client{
		Transport: &Transport{
			Base:      base,
			UserAgent: DefaultUserAgent,
			RetryMax:  defaultRetryMax,
		},
		Timeout: timeout,
	}
}

// DrainClose 读尽并关闭响应体，使连接可以复用。
func DrainClose(body io.ReadCloser) {
	if body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64<<10))
	_ = body.Close()
}
