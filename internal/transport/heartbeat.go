package transport

import (
	"context"
	"sync"
	"time"

	"OneBotCAI/internal/onebot"
)

// Heartbeat 按固定间隔生成心跳元事件
type Heartbeat struct {
	interval time.Duration
	selfID   int64
	status   func() onebot.HeartbeatStatus
	push     func(ctx context.Context, ev onebot.Event)

	once   sync.Once
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHeartbeat 创建心跳
// 参数:
//   - selfID: 机器人账号
//   - interval: 心跳间隔
//   - status: 当前运行状态
//   - push: 推送到所有传输
func NewHeartbeat(selfID int64, interval time.Duration, status func() onebot.HeartbeatStatus, push func(context.Context, onebot.Event)) *Heartbeat {
	return &Heartbeat{interval: interval, selfID: selfID, status: status, push: push, done: make(chan struct{})}
}

// Event 构造一次心跳事件
func (h *Heartbeat) Event() *onebot.HeartbeatEvent {
	return &onebot.HeartbeatEvent{
		Base:     onebot.NewBase(h.selfID, onebot.TypeMeta, onebot.DetailHeartbeat, ""),
		Interval: h.interval.Milliseconds(),
		Status:   h.status(),
	}
}

func (h *Heartbeat) Start(ctx context.Context) {
	ctx, h.cancel = context.WithCancel(ctx)
	go func() {
		defer close(h.done)
		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				h.push(ctx, h.Event())
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop 停止心跳并等待后台协程退出
func (h *Heartbeat) Stop() {
	h.once.Do(func() {
		if h.cancel == nil {
			close(h.done)
			return
		}
		h.cancel()
	})
	<-h.done
}
