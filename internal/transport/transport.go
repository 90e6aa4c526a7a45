// Package transport 通过 HTTP、正向 WebSocket 与反向 WebSocket 对外提供 OneBot 12 接口
package transport

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"OneBotCAI/internal/onebot"
)

// ErrClosed 传输已关闭
var ErrClosed = errors.New("传输已关闭")

const writeWait = 10 * time.Second

// Dispatcher 执行动作请求
type Dispatcher interface {
	Dispatch(ctx context.Context, req onebot.ActionRequest) onebot.ActionResult
}

// Transport 一种对外连接方式
type Transport interface {
	// Name 返回传输名称，用于日志与指标
	Name() string

	// Start 启动传输，监听失败等错误在此返回，之后在后台运行
	Start(ctx context.Context) error

	// Push 推送事件，失败仅影响本传输
	Push(ctx context.Context, ev onebot.Event) error

	// Stop 停止传输
	Stop(ctx context.Context) error
}

// handleFrame 解码一帧动作请求并执行，解码失败时返回 10001
func handleFrame(ctx context.Context, disp Dispatcher, enc onebot.Encoding, data []byte) onebot.ActionResult {
	req, err := onebot.DecodeRequest(enc, data)
	if err != nil {
		return onebot.Failed(onebot.RetBadRequest, nil, err.Error(), req.Echo)
	}
	return disp.Dispatch(ctx, req)
}

// requestToken 从 Authorization 头或 access_token 查询参数中取出令牌
func requestToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok {
			return ""
		}
		return token
	}
	return r.URL.Query().Get("access_token")
}

// authorized 校验请求令牌，未配置令牌时总是通过
func authorized(r *http.Request, token string) bool {
	if token == "" {
		return true
	}
	got := requestToken(r)
	return subtle.ConstantTimeCompare([]byte(got), []byte(token)) == 1
}

// requireToken 鉴权中间件，失败返回 401
func requireToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !authorized(r, token) {
				http.Error(w, "Unauthorized.", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// wsConn 带写锁的 WebSocket 连接，读取只在单个协程中进行
type wsConn struct {
	*websocket.Conn
	mu sync.Mutex
}

func (c *wsConn) write(mt int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.SetWriteDeadline(time.Now().Add(writeWait))
	return c.WriteMessage(mt, data)
}

// closeWith 发送关闭帧后关闭连接
func (c *wsConn) closeWith(code int, reason string) {
	_ = c.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
	_ = c.Close()
}

// frameEncoding WebSocket 帧类型对应的编码
func frameEncoding(mt int) onebot.Encoding {
	if mt == websocket.BinaryMessage {
		return onebot.MsgPack
	}
	return onebot.JSON
}

// frameType 编码对应的 WebSocket 帧类型
func frameType(enc onebot.Encoding) int {
	if enc == onebot.MsgPack {
		return websocket.BinaryMessage
	}
	return websocket.TextMessage
}

// serveConn 读取请求并回复，直到连接断开
func serveConn(ctx context.Context, disp Dispatcher, conn *wsConn) error {
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		enc := frameEncoding(mt)
		res := handleFrame(ctx, disp, enc, data)
		out, err := onebot.Marshal(enc, res)
		if err != nil {
			return err
		}
		if err := conn.write(mt, out); err != nil {
			return err
		}
	}
}
