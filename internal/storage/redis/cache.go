package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"mailverify/backend/internal/domain"
	"mailverify/backend/internal/monitoring"
	"mailverify/backend/internal/storage"
)

// KV 缓存需要的最小键值操作集合，*Client 满足该接口
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, expiration time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Ping(ctx context.Context) error
}

// TTLs 各类记录在 Redis 中的缓存时间
type TTLs struct {
	Domain         time.Duration
	ProcessedEmail time.Duration
	ErrorDomain    time.Duration
}

// DefaultTTLs 默认缓存时间
func DefaultTTLs() TTLs {
	return TTLs{
		Domain:         24 * time.Hour,
		ProcessedEmail: 6 * time.Hour,
		ErrorDomain:    time.Hour,
	}
}

// Cache 为底层存储加一层 Redis 读缓存
//
// 写操作先写底层存储再写缓存（普通 SET，后写者生效）；
// 缓存读写失败只记录日志，不影响底层存储的结果。
type Cache struct {
	storage.Repository
	kv      KV
	ttl     TTLs
	metrics *monitoring.Metrics
	log     *zap.Logger
}

var _ storage.Repository = (*Cache)(nil)

// NewCache 创建缓存装饰器
func NewCache(next storage.Repository, kv KV, ttl TTLs, metrics *monitoring.Metrics, log *zap.Logger) *Cache {
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{
		Repository: next,
		kv:         kv,
		ttl:        ttl,
		metrics:    metrics,
		log:        log,
	}
}

func domainKey(name string) string {
	return fmt.Sprintf("mailverify:domain:%s", strings.ToLower(name))
}

func processedKey(address string) string {
	return fmt.Sprintf("mailverify:processed:%s", strings.ToLower(address))
}

func errorDomainKey(name string) string {
	return fmt.Sprintf("mailverify:error_domain:%s", strings.ToLower(name))
}

// ========== 域名 MX 缓存 ==========

// FindDomain 先查缓存，未命中再查底层存储并回填
func (c *Cache) FindDomain(ctx context.Context, name string) (*domain.DomainRecord, error) {
	var rec domain.DomainRecord
	if c.load(ctx, domainKey(name), &rec, "domain") {
		return &rec, nil
	}

	found, err := c.Repository.FindDomain(ctx, name)
	if err != nil {
		return nil, err
	}
	c.store(ctx, domainKey(name), found, c.ttl.Domain)
	return found, nil
}

// SaveDomain 保存并刷新缓存
func (c *Cache) SaveDomain(ctx context.Context, record *domain.DomainRecord) error {
	if err := c.Repository.SaveDomain(ctx, record); err != nil {
		return err
	}
	c.store(ctx, domainKey(record.Domain), record, c.ttl.Domain)
	return nil
}

// ========== 地址结果缓存 ==========

// FindProcessedEmail 先查缓存，未命中再查底层存储并回填
func (c *Cache) FindProcessedEmail(ctx context.Context, address string) (*domain.ProcessedEmailRecord, error) {
	var rec domain.ProcessedEmailRecord
	if c.load(ctx, processedKey(address), &rec, "processed_email") {
		return &rec, nil
	}

	found, err := c.Repository.FindProcessedEmail(ctx, address)
	if err != nil {
		return nil, err
	}
	c.store(ctx, processedKey(address), found, c.ttl.ProcessedEmail)
	return found, nil
}

// SaveProcessedEmail 保存并整体覆盖缓存
func (c *Cache) SaveProcessedEmail(ctx context.Context, record *domain.ProcessedEmailRecord) error {
	if err := c.Repository.SaveProcessedEmail(ctx, record); err != nil {
		return err
	}
	c.store(ctx, processedKey(record.EmailAddress), record, c.ttl.ProcessedEmail)
	return nil
}

// ========== 错误域名缓存 ==========

// FindErrorDomain 先查缓存，未命中再查底层存储并回填
func (c *Cache) FindErrorDomain(ctx context.Context, name string) (*domain.ErrorDomainRecord, error) {
	var rec domain.ErrorDomainRecord
	if c.load(ctx, errorDomainKey(name), &rec, "error_domain") {
		return &rec, nil
	}

	found, err := c.Repository.FindErrorDomain(ctx, name)
	if err != nil {
		return nil, err
	}
	c.store(ctx, errorDomainKey(name), found, c.ttl.ErrorDomain)
	return found, nil
}

// UpsertErrorDomain 保存并失效缓存
func (c *Cache) UpsertErrorDomain(ctx context.Context, record *domain.ErrorDomainRecord) error {
	if err := c.Repository.UpsertErrorDomain(ctx, record); err != nil {
		return err
	}
	c.invalidate(ctx, errorDomainKey(record.Domain))
	return nil
}

// ========== 工具方法 ==========

// Health 检查底层存储与 Redis
func (c *Cache) Health() error {
	if err := c.Repository.Health(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return c.kv.Ping(ctx)
}

func (c *Cache) load(ctx context.Context, key string, dst any, kind string) bool {
	data, err := c.kv.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			c.log.Warn("redis get failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		c.log.Warn("corrupted cache entry", zap.String("key", key), zap.Error(err))
		_ = c.kv.Del(ctx, key)
		return false
	}
	if c.metrics != nil {
		c.metrics.RecordCacheHit("redis_" + kind)
	}
	return true
}

// store 写入缓存，写入失败时删除旧条目，避免读到被覆盖前的记录
func (c *Cache) store(ctx context.Context, key string, value any, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		c.log.Warn("failed to encode cache entry", zap.String("key", key), zap.Error(err))
		c.invalidate(ctx, key)
		return
	}
	if err := c.kv.Set(ctx, key, data, ttl); err != nil {
		c.log.Warn("redis set failed", zap.String("key", key), zap.Error(err))
		c.invalidate(ctx, key)
	}
}

func (c *Cache) invalidate(ctx context.Context, key string) {
	if err := c.kv.Del(ctx, key); err != nil {
		c.log.Warn("failed to invalidate cache", zap.String("key", key), zap.Error(err))
	}
}
