package ratelimit

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"mailverify/backend/internal/domain"
	"mailverify/backend/internal/monitoring"
)

// ErrUnknownClass 未配置限额的服务商分类
var ErrUnknownClass = errors.New("ratelimit: unknown provider class")

// Limits 单个服务商分类的探测限额
type Limits struct {
	Concurrency int           // 同时打开的探测连接上限
	Spacing     time.Duration // 相邻两次探测启动的最小间隔
	BatchSize   int           // 每批地址数
}

// DefaultLimits 默认限额：大型服务商逐个探测，其他服务商有限并发
func DefaultLimits() map[domain.ProviderClass]Limits {
	return map[domain.ProviderClass]Limits{
		domain.ProviderConservative: {Concurrency: 1, Spacing: 2 * time.Second, BatchSize: 1},
		domain.ProviderGeneral:      {Concurrency: 10, Spacing: 100 * time.Millisecond, BatchSize: 50},
	}
}

// Scheduler 按服务商分类发放探测令牌
//
// 每个分类两个独立限制：
//   - 并发上限（信号量）
//   - 启动间隔（令牌桶，桶容量 1）
type Scheduler struct {
	classes map[domain.ProviderClass]*classLimiter
	metrics *monitoring.Metrics
}

type classLimiter struct {
	limits  Limits
	sem     *semaphore.Weighted
	spacing *rate.Limiter
	current atomic.Int64
	peak    atomic.Int64
}

// NewScheduler 创建调度器
//
// metrics 可以为 nil。
func NewScheduler(limits map[domain.ProviderClass]Limits, metrics *monitoring.Metrics) *Scheduler {
	s := &Scheduler{
		classes: make(map[domain.ProviderClass]*classLimiter, len(limits)),
		metrics: metrics,
	}
	for class, l := range limits {
		if l.Concurrency <= 0 {
			l.Concurrency = 1
		}
		if l.BatchSize <= 0 {
			l.BatchSize = l.Concurrency
		}
		limit := rate.Inf
		if l.Spacing > 0 {
			limit = rate.Every(l.Spacing)
		}
		s.classes[class] = &classLimiter{
			limits:  l,
			sem:     semaphore.NewWeighted(int64(l.Concurrency)),
			spacing: rate.NewLimiter(limit, 1),
		}
	}
	return s
}

// Acquire 获取一个探测令牌，阻塞直到并发和间隔限制都允许
//
// 返回的 release 必须调用且只能调用一次。
func (s *Scheduler) Acquire(ctx context.Context, class domain.ProviderClass) (release func(), err error) {
	c, ok := s.classes[class]
	if !ok {
		return nil, ErrUnknownClass
	}

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	if err := c.spacing.Wait(ctx); err != nil {
		c.sem.Release(1)
		return nil, err
	}

	n := c.current.Add(1)
	for {
		peak := c.peak.Load()
		if n <= peak || c.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	s.setGauge(class, n)

	var released atomic.Bool
	return func() {
		if !released.CompareAndSwap(false, true) {
			return
		}
		s.setGauge(class, c.current.Add(-1))
		c.sem.Release(1)
	}, nil
}

// Do 在令牌保护下执行 fn
func (s *Scheduler) Do(ctx context.Context, class domain.ProviderClass, fn func(ctx context.Context)) error {
	release, err := s.Acquire(ctx, class)
	if err != nil {
		return err
	}
	defer release()

	fn(ctx)
	return nil
}

// Limits 返回分类的限额
func (s *Scheduler) Limits(class domain.ProviderClass) (Limits, bool) {
	c, ok := s.classes[class]
	if !ok {
		return Limits{}, false
	}
	return c.limits, true
}

// Current 当前占用的令牌数
func (s *Scheduler) Current(class domain.ProviderClass) int {
	if c, ok := s.classes[class]; ok {
		return int(c.current.Load())
	}
	return 0
}

// Peak 历史最高占用
func (s *Scheduler) Peak(class domain.ProviderClass) int {
	if c, ok := s.classes[class]; ok {
		return int(c.peak.Load())
	}
	return 0
}

func (s *Scheduler) setGauge(class domain.ProviderClass, n int64) {
	if s.metrics == nil {
		return
	}
	s.metrics.ProbesInFlight.WithLabelValues(string(class)).Set(float64(n))
}
