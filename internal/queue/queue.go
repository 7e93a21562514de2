package queue

import (
	"context"
	"errors"
	"time"
)

// ErrClosed 队列已关闭
var ErrClosed = errors.New("queue: closed")

// Item 一次延迟重试任务
type Item struct {
	JobID      string    `json:"jobId"`
	Email      string    `json:"email"`
	UserID     string    `json:"userId,omitempty"`
	VerifyPlus bool      `json:"verifyPlus"`
	Attempt    int       `json:"attempt"`
	ReadyAt    time.Time `json:"readyAt"`
}

// DelayedQueue 按到期时间出队的延迟队列
type DelayedQueue interface {
	// Schedule 在 delay 之后让 item 可被取出
	Schedule(ctx context.Context, item Item, delay time.Duration) error
	// Due 取出并移除所有在 now 之前到期的任务，最多 limit 个
	Due(ctx context.Context, now time.Time, limit int) ([]Item, error)
	// Len 队列中尚未取出的任务数
	Len(ctx context.Context) (int, error)
	Close() error
}
