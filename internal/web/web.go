// Package web 把 gallery.Session 暴露为本地 HTTP 接口：一页无样式的 HTML 列表 + JSON API。
package web

import (
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"log"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/John-Robertt/photosort/internal/capfs"
	"github.com/John-Robertt/photosort/internal/domain"
	"github.com/John-Robertt/photosort/internal/gallery"
	"github.com/John-Robertt/photosort/internal/infra/imgx"
	"github.com/John-Robertt/photosort/internal/scan"
)

// 请求体上限：只接收一个路径字段。
const maxBody = 64 << 10

type server struct {
	s      *gallery.Session
	logger *log.Logger
}

// NewHandler 返回绑定到 session 的 http.Handler。
func NewHandler(s *gallery.Session, logger *log.Logger) http.Handler {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	srv := &server{s: s, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", srv.index)
	mux.HandleFunc("GET /api/pairs", srv.listPairs)
	mux.HandleFunc("POST /api/scan", srv.scan)
	mux.HandleFunc("POST /api/pairs/{id}/move", srv.move)
	mux.HandleFunc("DELETE /api/pairs/{id}", srv.delete)
	mux.HandleFunc("GET /api/pairs/{id}/thumbnail", srv.thumbnail)
	return sameOrigin(mux)
}

// sameOrigin 拒绝跨站发起的写操作：其它网页可以向 127.0.0.1 发“简单请求”，
// 所以 GET/HEAD 之外的请求必须来自同源页面（或非浏览器客户端），带 body 时必须是 JSON。
func sameOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}
		switch r.Header.Get("Sec-Fetch-Site") {
		case "", "same-origin", "none":
		default:
			writeError(w, http.StatusForbidden, "cross_origin", "拒绝跨站请求")
			return
		}
		if o := r.Header.Get("Origin"); o != "" {
			u, err := url.Parse(o)
			if err != nil || u.Host != r.Host {
				writeError(w, http.StatusForbidden, "cross_origin", "拒绝跨站请求："+o)
				return
			}
		}
		if r.ContentLength != 0 {
			mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
			if err != nil || mt != "application/json" {
				writeError(w, http.StatusUnsupportedMediaType, "bad_request", "请求体必须是 application/json")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

type fileView struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

type pairView struct {
	ID       string    `json:"id"`
	Basename string    `json:"basename"`
	JPEG     *fileView `json:"jpeg,omitempty"`
	DNG      *fileView `json:"dng,omitempty"`
}

type listView struct {
	Dir      string     `json:"dir"`
	Progress int        `json:"progress"`
	Pairs    []pairView `json:"pairs"`
}

type resultView struct {
	OK     bool              `json:"ok"`
	Result domain.PairResult `json:"result"`
}

type errorView struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func toFileView(f *domain.PhotoFile) *fileView {
	if f == nil {
		return nil
	}
	return &fileView{ID: f.ID, Name: f.Name, Size: f.Size, ModTime: f.ModTime.UTC()}
}

func (srv *server) snapshot() listView {
	pairs := srv.s.Pairs()
	out := listView{
		Dir:      srv.s.Dir(),
		Progress: srv.s.Progress(),
		Pairs:    make([]pairView, 0, len(pairs)),
	}
	for _, p := range pairs {
		out.Pairs = append(out.Pairs, pairView{
			ID:       p.ID,
			Basename: p.Basename,
			JPEG:     toFileView(p.JPEG),
			DNG:      toFileView(p.DNG),
		})
	}
	return out
}

func (srv *server) index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTmpl.Execute(w, srv.snapshot()); err != nil {
		srv.logger.Printf("渲染页面失败：%v", err)
	}
}

func (srv *server) listPairs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, srv.snapshot())
}

// scan：body 可选 {"path": "..."}。给出 path 时打开新目录，否则重新扫描当前目录。
func (srv *server) scan(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Path *string `json:"path"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	var err error
	if body.Path != nil {
		err = srv.s.Open(r.Context(), capfs.PathPicker{Path: *body.Path})
	} else {
		err = srv.s.Rescan(r.Context())
	}
	if err != nil {
		srv.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, srv.snapshot())
}

func (srv *server) move(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Target string `json:"target"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	res, err := srv.s.Move(r.Context(), r.PathValue("id"), capfs.PathPicker{Path: body.Target})
	if err != nil {
		srv.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resultView{OK: res.OK(), Result: res})
}

func (srv *server) delete(w http.ResponseWriter, r *http.Request) {
	res, err := srv.s.Delete(r.Context(), r.PathValue("id"))
	if err != nil {
		srv.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resultView{OK: res.OK(), Result: res})
}

func (srv *server) thumbnail(w http.ResponseWriter, r *http.Request) {
	b, err := srv.s.Thumbnail(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, imgx.ErrNoPreview) {
			writeError(w, http.StatusNotFound, "no_preview", err.Error())
			return
		}
		srv.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(b)
}

// fail 把 gallery/scan 的错误映射为 HTTP 状态码。
func (srv *server) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, gallery.ErrNotFound):
		writeError(w, http.StatusNotFound, domain.ErrCodeNotFound, err.Error())
	case errors.Is(err, gallery.ErrBusy):
		writeError(w, http.StatusConflict, "busy", err.Error())
	case errors.Is(err, gallery.ErrNoSelection):
		writeError(w, http.StatusBadRequest, domain.ErrCodeCancelled, "未选择目录："+err.Error())
	case errors.Is(err, gallery.ErrNoDirectory), errors.Is(err, capfs.ErrNotDirectory):
		writeError(w, http.StatusBadRequest, domain.ErrCodeNoSelection, err.Error())
	case scan.IsScanFailure(err):
		srv.logger.Printf("扫描失败：%v", err)
		writeError(w, http.StatusInternalServerError, domain.ErrCodeScanFailed, err.Error())
	default:
		srv.logger.Printf("请求失败：%v", err)
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorView{Error: code, Message: strings.TrimSpace(msg)})
}

var indexTmpl = template.Must(template.New("index").Parse(`<!doctype html>
<html>
<head><meta charset="utf-8"><title>photosort</title></head>
<body>
<h1>photosort</h1>
<p id="dir">{{if .Dir}}{{.Dir}}{{else}}未打开目录{{end}}</p>
<progress id="progress" value="{{.Progress}}" max="100">{{.Progress}}%</progress>
<ul id="pairs">
{{- range .Pairs}}
<li class="pair" data-id="{{.ID}}" data-basename="{{.Basename}}">
<img src="/api/pairs/{{.ID}}/thumbnail" alt="{{.Basename}}" loading="lazy">
<span class="basename">{{.Basename}}</span>
{{- if .JPEG}} <span class="badge jpg" title="{{.JPEG.Name}}">JPG</span>{{end}}
{{- if .DNG}} <span class="badge dng" title="{{.DNG.Name}}">DNG</span>{{end}}
</li>
{{- else}}
<li class="empty">没有 JPEG/DNG 照片</li>
{{- end}}
</ul>
</body>
</html>
`))
