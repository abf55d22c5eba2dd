package system

import (
	"context"
	"sync"
	"time"
)

// RichQueue 无界 FIFO 队列，支持延迟入队与多 worker 消费
type RichQueue[T any] struct {
	mu     sync.Mutex
	items  []T
	notify chan struct{}
}

func NewRichQueue[T any]() *RichQueue[T] {
	return &RichQueue[T]{notify: make(chan struct{}, 1)}
}

func (q *RichQueue[T]) Enqueue(v T) {
	q.mu.Lock()
	q.items = append(q.items, v)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// EnqueueWithDelay 在 d 之后入队，用于失败重试
func (q *RichQueue[T]) EnqueueWithDelay(v T, d time.Duration) {
	time.AfterFunc(d, func() { q.Enqueue(v) })
}

func (q *RichQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *RichQueue[T]) pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	v := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	return v, true
}

// ConsumerWithContext 启动 workers 个消费者并阻塞到 ctx 结束。
// wg 统计处理中的元素；handler 派生的 goroutine 可以 Add 到 wg，退出时会等待它们。
func (q *RichQueue[T]) ConsumerWithContext(ctx context.Context, workers int, handler func(v T, wg *sync.WaitGroup)) {
	if workers < 1 {
		workers = 1
	}
	var inflight sync.WaitGroup
	var running sync.WaitGroup
	for i := 0; i < workers; i++ {
		running.Add(1)
		go func() {
			defer running.Done()
			for {
				if ctx.Err() != nil {
					return
				}
				if v, ok := q.pop(); ok {
					inflight.Add(1)
					handler(v, &inflight)
					inflight.Done()
					continue
				}
				select {
				case <-ctx.Done():
					return
				case <-q.notify:
				}
			}
		}()
	}
	running.Wait()
	inflight.Wait()
}
