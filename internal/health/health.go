package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"

	"mailverify/backend/internal/storage"
)

// Pinger 可探活的外部依赖
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker 健康检查器
type HealthChecker struct {
	health healthcheck.Handler
	store  storage.Repository
	redis  Pinger
	logger *zap.Logger
}

// NewHealthChecker 创建健康检查器
//
// redis 为 nil 时不注册 Redis 检查。
func NewHealthChecker(store storage.Repository, redis Pinger, logger *zap.Logger) *HealthChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	hc := &HealthChecker{
		health: healthcheck.NewHandler(),
		store:  store,
		redis:  redis,
		logger: logger,
	}

	hc.addChecks()

	return hc
}

// addChecks 添加健康检查
func (hc *HealthChecker) addChecks() {
	hc.health.AddLivenessCheck("storage", hc.checkStorage)
	hc.health.AddLivenessCheck("goroutines", healthcheck.GoroutineCountCheck(10000))

	if hc.redis != nil {
		hc.health.AddReadinessCheck("redis", hc.checkRedis)
	}
}

func (hc *HealthChecker) checkStorage() error {
	if err := hc.store.Health(); err != nil {
		hc.logger.Warn("Storage health check failed", zap.Error(err))
		return err
	}
	return nil
}

func (hc *HealthChecker) checkRedis() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := hc.redis.Ping(ctx); err != nil {
		hc.logger.Warn("Redis health check failed", zap.Error(err))
		return err
	}
	return nil
}

// Handler 返回健康检查处理器，提供 /live 与 /ready
func (hc *HealthChecker) Handler() http.Handler {
	return hc.health
}

// CheckHealth 执行健康检查
func (hc *HealthChecker) CheckHealth() map[string]string {
	results := make(map[string]string)

	if err := hc.store.Health(); err != nil {
		results["storage"] = fmt.Sprintf("ERROR: %v", err)
	} else {
		results["storage"] = "OK"
	}

	if hc.redis == nil {
		results["redis"] = "NOT_AVAILABLE"
	} else if err := hc.checkRedis(); err != nil {
		results["redis"] = fmt.Sprintf("ERROR: %v", err)
	} else {
		results["redis"] = "OK"
	}

	results["timestamp"] = time.Now().Format(time.RFC3339)

	return results
}
