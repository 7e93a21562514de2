package httptransport

import (
	"context"

	"go.uber.org/zap"

	"mailverify/backend/internal/domain"
	"mailverify/backend/internal/mailer"
	"mailverify/backend/internal/service"
)

// Validator 单地址验证
type Validator interface {
	Validate(ctx context.Context, raw string, opts service.ValidateOptions) *domain.ValidationResult
	HandleDeliveryEvents(ctx context.Context, events []mailer.DeliveryEvent) (int, error)
}

// BatchRunner 批量任务
type BatchRunner interface {
	Submit(ctx context.Context, addresses []string, userID string, verifyPlus bool) (*domain.BatchJob, error)
	GetJob(ctx context.Context, id string) (*domain.BatchJob, error)
}

// MaxBatchAddresses 单个批量任务的地址上限
const MaxBatchAddresses = 100000

// Handler 聚合所有 HTTP 处理逻辑。
type Handler struct {
	validation Validator
	batches    BatchRunner
	logger     *zap.Logger
}
