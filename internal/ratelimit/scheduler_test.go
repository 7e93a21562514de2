package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailverify/backend/internal/domain"
	"mailverify/backend/internal/monitoring"
)

func TestSchedulerNeverExceedsConcurrency(t *testing.T) {
	s := NewScheduler(map[domain.ProviderClass]Limits{
		domain.ProviderGeneral: {Concurrency: 3},
	}, nil)

	var (
		open    atomic.Int64
		maxOpen atomic.Int64
		wg      sync.WaitGroup
	)
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Do(context.Background(), domain.ProviderGeneral, func(ctx context.Context) {
				n := open.Add(1)
				for {
					m := maxOpen.Load()
					if n <= m || maxOpen.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				open.Add(-1)
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, maxOpen.Load(), int64(3))
	assert.LessOrEqual(t, s.Peak(domain.ProviderGeneral), 3)
	assert.Equal(t, 0, s.Current(domain.ProviderGeneral))
}

func TestSchedulerSpacing(t *testing.T) {
	s := NewScheduler(map[domain.ProviderClass]Limits{
		domain.ProviderConservative: {Concurrency: 5, Spacing: 50 * time.Millisecond},
	}, nil)

	start := time.Now()
	for i := 0; i < 3; i++ {
		release, err := s.Acquire(context.Background(), domain.ProviderConservative)
		require.NoError(t, err)
		release()
	}
	// 第一个令牌立即可用，后两个各等一个间隔
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestSchedulerAcquireHonorsContext(t *testing.T) {
	s := NewScheduler(map[domain.ProviderClass]Limits{
		domain.ProviderGeneral: {Concurrency: 1},
	}, nil)

	release, err := s.Acquire(context.Background(), domain.ProviderGeneral)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = s.Acquire(ctx, domain.ProviderGeneral)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	release()
	assert.Equal(t, 0, s.Current(domain.ProviderGeneral))
}

func TestSchedulerUnknownClass(t *testing.T) {
	s := NewScheduler(nil, nil)
	_, err := s.Acquire(context.Background(), domain.ProviderGeneral)
	assert.ErrorIs(t, err, ErrUnknownClass)

	_, ok := s.Limits(domain.ProviderGeneral)
	assert.False(t, ok)
}

func TestSchedulerInFlightGauge(t *testing.T) {
	m := monitoring.NewMetrics(prometheus.NewRegistry())
	s := NewScheduler(DefaultLimits(), m)

	release, err := s.Acquire(context.Background(), domain.ProviderGeneral)
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProbesInFlight.WithLabelValues("general")))

	release()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ProbesInFlight.WithLabelValues("general")))

	l, ok := s.Limits(domain.ProviderConservative)
	require.True(t, ok)
	assert.Equal(t, 1, l.BatchSize)
}
