package transport

import (
	"context"
	"sync"
)

// queue 无界有序队列，写入失败的元素可放回队首
type queue[T any] struct {
	mu     sync.Mutex
	items  []T
	notify chan struct{}
}

func newQueue[T any]() *queue[T] {
	return &queue[T]{notify: make(chan struct{}, 1)}
}

func (q *queue[T]) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Push 追加到队尾
func (q *queue[T]) Push(v T) int {
	q.mu.Lock()
	q.items = append(q.items, v)
	n := len(q.items)
	q.mu.Unlock()
	q.signal()
	return n
}

// PushFront 放回队首
func (q *queue[T]) PushFront(v T) int {
	q.mu.Lock()
	q.items = append([]T{v}, q.items...)
	n := len(q.items)
	q.mu.Unlock()
	q.signal()
	return n
}

// Pop 取出队首元素，队列为空时阻塞直到有元素或 ctx 结束
func (q *queue[T]) Pop(ctx context.Context) (T, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			v := q.items[0]
			var zero T
			q.items[0] = zero
			q.items = q.items[1:]
			q.mu.Unlock()
			return v, nil
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

func (q *queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
