package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// RedisQueue 基于 Redis 有序集合的延迟队列
//
// 分值为到期时间（毫秒），多个进程可以同时消费：
// 只有 ZREM 成功的一方拿到任务。
type RedisQueue struct {
	rdb goredis.Cmdable
	key string
}

// envelope 让相同内容的任务在集合中保持唯一
type envelope struct {
	ID   string `json:"id"`
	Item Item   `json:"item"`
}

// NewRedisQueue 创建 Redis 延迟队列
func NewRedisQueue(rdb goredis.Cmdable, key string) *RedisQueue {
	if key == "" {
		key = "mailverify:greylist_retry"
	}
	return &RedisQueue{rdb: rdb, key: key}
}

// Schedule 加入队列
func (q *RedisQueue) Schedule(ctx context.Context, item Item, delay time.Duration) error {
	item.ReadyAt = time.Now().Add(delay)
	data, err := json.Marshal(envelope{ID: uuid.NewString(), Item: item})
	if err != nil {
		return fmt.Errorf("encode queue item: %w", err)
	}
	return q.rdb.ZAdd(ctx, q.key, goredis.Z{
		Score:  float64(item.ReadyAt.UnixMilli()),
		Member: string(data),
	}).Err()
}

// Due 取出到期任务
func (q *RedisQueue) Due(ctx context.Context, now time.Time, limit int) ([]Item, error) {
	opt := &goredis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}
	if limit > 0 {
		opt.Count = int64(limit)
	}

	members, err := q.rdb.ZRangeByScore(ctx, q.key, opt).Result()
	if err != nil {
		return nil, err
	}

	out := make([]Item, 0, len(members))
	for _, m := range members {
		removed, err := q.rdb.ZRem(ctx, q.key, m).Result()
		if err != nil {
			return out, err
		}
		if removed == 0 {
			continue // 已被其他消费者取走
		}
		var env envelope
		if err := json.Unmarshal([]byte(m), &env); err != nil {
			continue
		}
		out = append(out, env.Item)
	}
	return out, nil
}

// Len 队列长度
func (q *RedisQueue) Len(ctx context.Context) (int, error) {
	n, err := q.rdb.ZCard(ctx, q.key).Result()
	return int(n), err
}

// Close 连接由调用方管理
func (q *RedisQueue) Close() error {
	return nil
}
