package storage

import (
	"context"
	"errors"

	"mailverify/backend/internal/domain"
)

var (
	// ErrDomainNotFound 域名 MX 缓存不存在
	ErrDomainNotFound = errors.New("domain record not found")
	// ErrProcessedEmailNotFound 地址结果缓存不存在
	ErrProcessedEmailNotFound = errors.New("processed email not found")
	// ErrErrorDomainNotFound 错误域名记录不存在
	ErrErrorDomainNotFound = errors.New("error domain not found")
	// ErrJobNotFound 批量任务不存在
	ErrJobNotFound = errors.New("batch job not found")
)

// DomainRepository 定义域名 MX 缓存存取操作。
type DomainRepository interface {
	FindDomain(ctx context.Context, name string) (*domain.DomainRecord, error)
	SaveDomain(ctx context.Context, record *domain.DomainRecord) error
}

// ProcessedEmailRepository 定义地址验证结果缓存存取操作。
//
// 保存总是整体替换旧记录。
type ProcessedEmailRepository interface {
	FindProcessedEmail(ctx context.Context, address string) (*domain.ProcessedEmailRecord, error)
	SaveProcessedEmail(ctx context.Context, record *domain.ProcessedEmailRecord) error
}

// ErrorDomainRepository 定义域名级故障冷却记录存取操作。
type ErrorDomainRepository interface {
	FindErrorDomain(ctx context.Context, name string) (*domain.ErrorDomainRecord, error)
	UpsertErrorDomain(ctx context.Context, record *domain.ErrorDomainRecord) error
}

// JobRepository 定义批量任务存取操作。
type JobRepository interface {
	CreateJob(ctx context.Context, job *domain.BatchJob) error
	GetJob(ctx context.Context, id string) (*domain.BatchJob, error)
	UpdateJob(ctx context.Context, job *domain.BatchJob) error
	ListJobsByStatus(ctx context.Context, status domain.BatchStatus) ([]*domain.BatchJob, error)
}

// Repository 定义完整的存储接口。
type Repository interface {
	DomainRepository
	ProcessedEmailRepository
	ErrorDomainRepository
	JobRepository

	// 工具方法
	Close() error
	Health() error
}
