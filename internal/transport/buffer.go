package transport

import (
	"context"
	"sync"
	"time"

	"OneBotCAI/internal/onebot"
)

// Buffer 保存尚未被 get_latest_events 取走的事件，超过容量时丢弃最旧的
type Buffer struct {
	mu     sync.Mutex
	events []onebot.Event
	size   int
	notify chan struct{}
}

// NewBuffer 创建事件缓冲区
// 参数:
//   - size: 容量，不大于 0 时不限制
func NewBuffer(size int) *Buffer {
	return &Buffer{size: size, notify: make(chan struct{})}
}

// Add 追加事件，唤醒所有等待中的调用
func (b *Buffer) Add(ev onebot.Event) {
	b.mu.Lock()
	b.events = append(b.events, ev)
	if b.size > 0 && len(b.events) > b.size {
		b.events = b.events[len(b.events)-b.size:]
	}
	close(b.notify)
	b.notify = make(chan struct{})
	b.mu.Unlock()
}

// Latest 取走最早的至多 limit 个事件
// 缓冲区为空且 timeout 大于 0 时等待新事件，超时返回空列表
// 参数:
//   - ctx: 上下文
//   - limit: 数量上限，不大于 0 时取走全部
//   - timeout: 最长等待时间
func (b *Buffer) Latest(ctx context.Context, limit int, timeout time.Duration) []onebot.Event {
	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}

	for {
		b.mu.Lock()
		if len(b.events) > 0 || expired == nil {
			n := len(b.events)
			if limit > 0 && limit < n {
				n = limit
			}
			out := make([]onebot.Event, n)
			copy(out, b.events)
			b.events = b.events[n:]
			b.mu.Unlock()
			return out
		}
		wait := b.notify
		b.mu.Unlock()

		select {
		case <-wait:
		case <-expired:
			return []onebot.Event{}
		case <-ctx.Done():
			return []onebot.Event{}
		}
	}
}

// Len 当前缓存的事件数
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}
