package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"OneBotCAI/internal/metrics"
	"OneBotCAI/internal/onebot"
)

// maxWebhookPending 待推送事件上限，超出时丢弃新事件
const maxWebhookPending = 4096

// Webhook 以 HTTP POST 推送事件
// 事件先进入队列，由后台协程按顺序推送，推送慢不会阻塞调用方
type Webhook struct {
	url    string
	token  string
	selfID int64
	client *http.Client
	queue  *queue[onebot.Event]

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWebhook 创建 Webhook 推送器
// 参数:
//   - url: 推送地址
//   - token: 鉴权令牌
//   - selfID: 机器人账号
//   - timeout: 单次推送超时，不大于 0 时为 5 秒
func NewWebhook(url, token string, selfID int64, timeout time.Duration) *Webhook {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Webhook{
		url:    url,
		token:  token,
		selfID: selfID,
		client: &http.Client{Timeout: timeout},
		queue:  newQueue[onebot.Event](),
	}
}

// Start 启动后台推送协程，重复调用无效
func (w *Webhook) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done != nil {
		return
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	go w.loop(ctx)
}

// Stop 停止推送协程，队列中尚未推送的事件被丢弃
func (w *Webhook) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	if n := w.queue.Len(); n > 0 {
		slog.Warn("Webhook 停止时仍有事件未推送", "url", w.url, "pending", n)
	}
}

// Enqueue 将事件加入推送队列
// 返回:
//   - bool: 队列已满时为 false，事件被丢弃
func (w *Webhook) Enqueue(ev onebot.Event) bool {
	if w.queue.Len() >= maxWebhookPending {
		metrics.PushFailed("http")
		slog.Warn("Webhook 队列已满，丢弃事件", "url", w.url, "kind", ev.Header().Kind())
		return false
	}
	w.queue.Push(ev)
	return true
}

// Pending 尚未推送的事件数
func (w *Webhook) Pending() int { return w.queue.Len() }

func (w *Webhook) loop(ctx context.Context) {
	defer close(w.done)
	for {
		ev, err := w.queue.Pop(ctx)
		if err != nil {
			return
		}
		if err := w.Post(ctx, ev); err != nil {
			if ctx.Err() != nil {
				return
			}
			metrics.PushFailed("http")
			slog.Warn("Webhook 推送失败", "url", w.url, "kind", ev.Header().Kind(), "error", err)
			continue
		}
		metrics.EventPushed("http")
	}
}

// Post 推送一个事件，非 2xx 视为失败
func (w *Webhook) Post(ctx context.Context, ev onebot.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header = onebot.MakeHeader(w.selfID, w.token, true)

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("意外的状态码 %d", resp.StatusCode)
	}
	return nil
}
