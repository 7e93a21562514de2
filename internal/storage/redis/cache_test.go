package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mailverify/backend/internal/domain"
	"mailverify/backend/internal/monitoring"
	"mailverify/backend/internal/storage"
	"mailverify/backend/internal/storage/memory"
)

type fakeKV struct {
	mu   sync.Mutex
	data map[string][]byte
	gets    int
	fail    error
	setFail error // 只让 SET 失败
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: make(map[string][]byte)}
}

func (f *fakeKV) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.fail != nil {
		return nil, f.fail
	}
	v, ok := f.data[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	return v, nil
}

func (f *fakeKV) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	if f.setFail != nil {
		return f.setFail
	}
	f.data[key] = value
	return nil
}

func (f *fakeKV) Del(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func (f *fakeKV) Ping(context.Context) error { return f.fail }

// countingRepo 统计底层读取次数
type countingRepo struct {
	*memory.Store
	processedReads int
}

func (r *countingRepo) FindProcessedEmail(ctx context.Context, address string) (*domain.ProcessedEmailRecord, error) {
	r.processedReads++
	return r.Store.FindProcessedEmail(ctx, address)
}

func TestCacheReadThrough(t *testing.T) {
	ctx := context.Background()
	repo := &countingRepo{Store: memory.NewStore()}
	kv := newFakeKV()
	m := monitoring.NewMetrics(prometheus.NewRegistry())
	c := NewCache(repo, kv, DefaultTTLs(), m, zap.NewNop())

	require.NoError(t, repo.Store.SaveProcessedEmail(ctx, &domain.ProcessedEmailRecord{
		EmailAddress: "a@example.com",
		RetryState:   domain.RetryComplete,
		Result:       domain.ValidationResult{Email: "a@example.com", Status: domain.StatusValid},
	}))

	first, err := c.FindProcessedEmail(ctx, "a@example.com")
	require.NoError(t, err)
	second, err := c.FindProcessedEmail(ctx, "A@example.com")
	require.NoError(t, err)

	assert.Equal(t, first.Result, second.Result)
	assert.Equal(t, 1, repo.processedReads)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHits.WithLabelValues("redis_processed_email")))
}

func TestCacheWriteReplacesEntry(t *testing.T) {
	ctx := context.Background()
	c := NewCache(memory.NewStore(), newFakeKV(), DefaultTTLs(), nil, nil)

	require.NoError(t, c.SaveProcessedEmail(ctx, &domain.ProcessedEmailRecord{
		EmailAddress: "a@example.com",
		RetryState:   domain.RetryPending,
		Result:       domain.ValidationResult{Status: domain.StatusUnknown, SubStatus: domain.ReasonGreylisted},
	}))
	require.NoError(t, c.SaveProcessedEmail(ctx, &domain.ProcessedEmailRecord{
		EmailAddress: "a@example.com",
		RetryState:   domain.RetryComplete,
		Result:       domain.ValidationResult{Status: domain.StatusInvalid, SubStatus: domain.ReasonMailboxNotFound},
	}))

	got, err := c.FindProcessedEmail(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, domain.RetryComplete, got.RetryState)
	assert.Equal(t, domain.ReasonMailboxNotFound, got.Result.SubStatus)
}

func TestCacheFailedWriteDropsStaleEntry(t *testing.T) {
	ctx := context.Background()
	kv := newFakeKV()
	c := NewCache(memory.NewStore(), kv, DefaultTTLs(), nil, nil)

	require.NoError(t, c.SaveProcessedEmail(ctx, &domain.ProcessedEmailRecord{
		EmailAddress: "a@example.com",
		RetryState:   domain.RetryComplete,
		Result:       domain.ValidationResult{Status: domain.StatusValid},
	}))
	require.NoError(t, c.SaveDomain(ctx, &domain.DomainRecord{Domain: "example.com", MXHosts: []domain.MXHost{{Host: "old.example.com"}}}))

	kv.setFail = errors.New("READONLY")
	require.NoError(t, c.SaveProcessedEmail(ctx, &domain.ProcessedEmailRecord{
		EmailAddress: "a@example.com",
		RetryState:   domain.RetryComplete,
		Result:       domain.ValidationResult{Status: domain.StatusInvalid, SubStatus: domain.ReasonMailboxNotFound},
	}))
	require.NoError(t, c.SaveDomain(ctx, &domain.DomainRecord{Domain: "example.com", MXHosts: []domain.MXHost{{Host: "new.example.com"}}}))
	assert.NotContains(t, kv.data, processedKey("a@example.com"))
	assert.NotContains(t, kv.data, domainKey("example.com"))

	got, err := c.FindProcessedEmail(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInvalid, got.Result.Status)

	rec, err := c.FindDomain(ctx, "example.com")
	require.NoError(t, err)
	assert.Equal(t, "new.example.com", rec.MXHosts[0].Host)
}

func TestCacheMissPropagatesNotFound(t *testing.T) {
	c := NewCache(memory.NewStore(), newFakeKV(), DefaultTTLs(), nil, nil)

	_, err := c.FindDomain(context.Background(), "example.com")
	assert.ErrorIs(t, err, storage.ErrDomainNotFound)
	_, err = c.FindErrorDomain(context.Background(), "example.com")
	assert.ErrorIs(t, err, storage.ErrErrorDomainNotFound)
}

func TestCacheErrorDomainInvalidation(t *testing.T) {
	ctx := context.Background()
	kv := newFakeKV()
	c := NewCache(memory.NewStore(), kv, DefaultTTLs(), nil, nil)

	require.NoError(t, c.UpsertErrorDomain(ctx, &domain.ErrorDomainRecord{
		Domain:    "example.com",
		LastError: domain.DomainError{Status: domain.StatusCatchAll},
	}))
	_, err := c.FindErrorDomain(ctx, "example.com")
	require.NoError(t, err)
	assert.Contains(t, kv.data, errorDomainKey("example.com"))

	require.NoError(t, c.UpsertErrorDomain(ctx, &domain.ErrorDomainRecord{
		Domain:    "example.com",
		LastError: domain.DomainError{Status: domain.StatusSpamtrap},
	}))
	assert.NotContains(t, kv.data, errorDomainKey("example.com"))

	got, err := c.FindErrorDomain(ctx, "example.com")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSpamtrap, got.LastError.Status)
}

func TestCacheFallsBackWhenRedisFails(t *testing.T) {
	ctx := context.Background()
	kv := newFakeKV()
	kv.fail = errors.New("connection refused")
	c := NewCache(memory.NewStore(), kv, DefaultTTLs(), nil, nil)

	require.NoError(t, c.SaveDomain(ctx, &domain.DomainRecord{Domain: "example.com", MXHosts: []domain.MXHost{{Host: "mx.example.com"}}}))
	rec, err := c.FindDomain(ctx, "example.com")
	require.NoError(t, err)
	assert.Equal(t, "mx.example.com", rec.MXHosts[0].Host)

	assert.Error(t, c.Health())
}
