package queue

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// MemoryQueue 进程内延迟队列（最小堆）
type MemoryQueue struct {
	mu     sync.Mutex
	items  itemHeap
	now    func() time.Time
	closed bool
}

// NewMemoryQueue 创建内存延迟队列
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{now: time.Now}
}

// Schedule 加入队列
func (q *MemoryQueue) Schedule(_ context.Context, item Item, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	item.ReadyAt = q.now().Add(delay)
	heap.Push(&q.items, item)
	return nil
}

// Due 取出到期任务
func (q *MemoryQueue) Due(_ context.Context, now time.Time, limit int) ([]Item, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrClosed
	}

	var out []Item
	for q.items.Len() > 0 && (limit <= 0 || len(out) < limit) {
		if q.items[0].ReadyAt.After(now) {
			break
		}
		out = append(out, heap.Pop(&q.items).(Item))
	}
	return out, nil
}

// Len 队列长度
func (q *MemoryQueue) Len(context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len(), nil
}

// Close 关闭队列，未取出的任务被丢弃
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.items = nil
	return nil
}

type itemHeap []Item

func (h itemHeap) Len() int           { return len(h) }
func (h itemHeap) Less(i, j int) bool { return h[i].ReadyAt.Before(h[j].ReadyAt) }
func (h itemHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *itemHeap) Push(x any) { *h = append(*h, x.(Item)) }

func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
