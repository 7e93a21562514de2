package pool

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mailverify/backend/internal/monitoring"
)

func TestWorkerPoolRunsTasks(t *testing.T) {
	p := NewWorkerPool(4, 16, zap.NewNop(), nil)
	p.Start(context.Background())

	var n atomic.Int64
	for i := 0; i < 100; i++ {
		require.NoError(t, p.Submit(context.Background(), func(context.Context) { n.Add(1) }))
	}
	p.Stop()

	assert.Equal(t, int64(100), n.Load())
}

func TestWorkerPoolRecoversPanic(t *testing.T) {
	m := monitoring.NewMetrics(prometheus.NewRegistry())
	p := NewWorkerPool(1, 4, zap.NewNop(), m)
	p.Start(context.Background())

	var after atomic.Bool
	require.NoError(t, p.Submit(context.Background(), func(context.Context) { panic("boom") }))
	require.NoError(t, p.Submit(context.Background(), func(context.Context) { after.Store(true) }))
	p.Stop()

	assert.True(t, after.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PanicsTotal))
}

func TestWorkerPoolSubmitAfterStop(t *testing.T) {
	p := NewWorkerPool(1, 1, nil, nil)
	p.Start(context.Background())
	p.Stop()
	p.Stop()

	assert.ErrorIs(t, p.Submit(context.Background(), func(context.Context) {}), ErrPoolStopped)
	assert.False(t, p.TrySubmit(func(context.Context) {}))
}

func TestWorkerPoolSubmitHonorsContext(t *testing.T) {
	// 未启动的池，队列容量 1
	p := NewWorkerPool(1, 1, nil, nil)
	assert.True(t, p.TrySubmit(func(context.Context) {}))
	assert.False(t, p.TrySubmit(func(context.Context) {}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Submit(ctx, func(context.Context) {}), context.Canceled)
}
