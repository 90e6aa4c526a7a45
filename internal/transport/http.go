package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"OneBotCAI/internal/onebot"
)

const maxBodySize = 64 << 20

// HTTPConfig HTTP 传输配置
type HTTPConfig struct {
	Addr        string   // 监听地址
	AccessToken string   // 鉴权令牌
	Buffer      *Buffer  // 事件缓冲区，为 nil 时不缓存事件
	Webhook     *Webhook // 事件推送，为 nil 时不推送
}

// HTTP 动作请求走 POST /，事件写入缓冲区或推送到 Webhook
type HTTP struct {
	cfg    HTTPConfig
	disp   Dispatcher
	server *http.Server
}

// NewHTTP 创建 HTTP 传输
func NewHTTP(cfg HTTPConfig, disp Dispatcher) *HTTP {
	return &HTTP{cfg: cfg, disp: disp}
}

func (h *HTTP) Name() string { return "http" }

// Handler 返回路由，鉴权在内容类型检查之前进行
func (h *HTTP) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.With(requireToken(h.cfg.AccessToken)).Post("/", h.serveAction)
	return r
}

// Start 监听端口并在后台提供服务
func (h *HTTP) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", h.cfg.Addr)
	if err != nil {
		return fmt.Errorf("监听 %s: %w", h.cfg.Addr, err)
	}
	h.server = &http.Server{
		Handler:     h.Handler(),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	if h.cfg.Webhook != nil {
		h.cfg.Webhook.Start(ctx)
	}
	go func() {
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP 服务异常退出", "addr", h.cfg.Addr, "error", err)
		}
	}()
	slog.Info("HTTP 服务已启动", "addr", ln.Addr().String())
	return nil
}

func (h *HTTP) Stop(ctx context.Context) error {
	if h.cfg.Webhook != nil {
		h.cfg.Webhook.Stop()
	}
	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(ctx)
}

// Push 将事件写入缓冲区并加入 Webhook 推送队列，不等待推送完成
func (h *HTTP) Push(_ context.Context, ev onebot.Event) error {
	if h.cfg.Buffer != nil && ev.Header().Type != onebot.TypeMeta {
		h.cfg.Buffer.Add(ev)
	}
	if h.cfg.Webhook != nil && !h.cfg.Webhook.Enqueue(ev) {
		return fmt.Errorf("Webhook 队列已满")
	}
	return nil
}

func (h *HTTP) serveAction(w http.ResponseWriter, r *http.Request) {
	var enc onebot.Encoding
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mt {
	case onebot.ContentJSON:
		enc = onebot.JSON
	case onebot.ContentMsgPack:
		enc = onebot.MsgPack
	default:
		http.Error(w, "Unsupported Media Type", http.StatusUnsupportedMediaType)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if enc == onebot.JSON && !json.Valid(body) {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	res := handleFrame(r.Context(), h.disp, enc, body)
	out, err := onebot.Marshal(enc, res)
	if err != nil {
		slog.Error("编码动作响应失败", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", enc.ContentType())
	_, _ = w.Write(out)
}
