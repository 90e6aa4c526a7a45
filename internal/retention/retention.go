// Package retention 按 cron 计划清理过期的消息与事件记录
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"OneBotCAI/internal/metrics"
)

// Pruner 删除早于指定时间的记录
type Pruner interface {
	Prune(before time.Time) (int, error)
}

// Job 定时清理任务
type Job struct {
	cron  string
	keep  time.Duration
	store Pruner
	now   func() time.Time

	once   sync.Once
	cancel context.CancelFunc
	done   chan struct{}
}

// New 创建清理任务
// 参数:
//   - cron: 五段 cron 表达式
//   - days: 保留天数
//   - store: 存储
func New(cron string, days int, store Pruner) (*Job, error) {
	if !gronx.IsValid(cron) {
		return nil, fmt.Errorf("无效的 cron 表达式: %s", cron)
	}
	return &Job{
		cron:  cron,
		keep:  time.Duration(days) * 24 * time.Hour,
		store: store,
		now:   time.Now,
		done:  make(chan struct{}),
	}, nil
}

// RunOnce 立即执行一次清理
func (j *Job) RunOnce() (int, error) {
	before := j.now().Add(-j.keep)
	n, err := j.store.Prune(before)
	if err != nil {
		return 0, err
	}
	metrics.Pruned(n)
	slog.Info("清理过期记录完成", "count", n, "before", before.Format(time.DateTime))
	return n, nil
}

// Start 在后台按计划运行
func (j *Job) Start(ctx context.Context) {
	ctx, j.cancel = context.WithCancel(ctx)
	go j.loop(ctx)
	slog.Info("定时清理已启动", "cron", j.cron, "keep", j.keep)
}

func (j *Job) loop(ctx context.Context) {
	defer close(j.done)
	for {
		next, err := gronx.NextTickAfter(j.cron, j.now(), false)
		wait := time.Until(next)
		if err != nil {
			slog.Error("计算下次清理时间失败", "cron", j.cron, "error", err)
			wait = time.Minute
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
			if err == nil {
				if _, err := j.RunOnce(); err != nil {
					slog.Error("清理过期记录失败", "error", err)
				}
			}
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

// Stop 停止任务并等待后台协程退出
func (j *Job) Stop() {
	j.once.Do(func() {
		if j.cancel == nil {
			close(j.done)
			return
		}
		j.cancel()
	})
	<-j.done
}
