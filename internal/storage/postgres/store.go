package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"mailverify/backend/internal/domain"
	"mailverify/backend/internal/storage"
)

// Store 关系型数据库存储实现（GORM，支持 PostgreSQL 与 MySQL）
//
// 所有写入都是按主键的原子 upsert，并发写同一条记录时后写者生效。
type Store struct {
	db *gorm.DB
}

var _ storage.Repository = (*Store)(nil)

// PoolConfig 连接池参数
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewStore 创建 PostgreSQL 存储实例
func NewStore(dsn string, pool PoolConfig) (*Store, error) {
	return NewStoreWithDialector(postgres.Open(dsn), pool)
}

// NewMySQLStore 创建 MySQL 存储实例
func NewMySQLStore(dsn string, pool PoolConfig) (*Store, error) {
	return NewStoreWithDialector(mysql.Open(dsn), pool)
}

// NewStoreWithDialector 使用指定的GORM dialector创建存储实例
func NewStoreWithDialector(dialector gorm.Dialector, pool PoolConfig) (*Store, error) {
	config := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent), // 静默模式
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	db, err := gorm.Open(dialector, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if pool.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}

	store := &Store{db: db}
	if err := store.Migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Migrate 自动迁移数据库表结构
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(
		&domain.DomainRecord{},
		&domain.ProcessedEmailRecord{},
		&domain.ErrorDomainRecord{},
		&domain.BatchJob{},
	)
}

// ========== Domain Repository ==========

// FindDomain 查询域名 MX 缓存
func (s *Store) FindDomain(ctx context.Context, name string) (*domain.DomainRecord, error) {
	var rec domain.DomainRecord
	err := s.db.WithContext(ctx).Where("domain = ?", name).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrDomainNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// SaveDomain 保存域名 MX 缓存
func (s *Store) SaveDomain(ctx context.Context, record *domain.DomainRecord) error {
	return s.upsert(ctx, record)
}

// ========== Processed Email Repository ==========

// FindProcessedEmail 查询地址结果缓存
func (s *Store) FindProcessedEmail(ctx context.Context, address string) (*domain.ProcessedEmailRecord, error) {
	var rec domain.ProcessedEmailRecord
	err := s.db.WithContext(ctx).Where("email_address = ?", address).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrProcessedEmailNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// SaveProcessedEmail 保存地址结果缓存，所有列整体覆盖
func (s *Store) SaveProcessedEmail(ctx context.Context, record *domain.ProcessedEmailRecord) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	return s.upsert(ctx, record)
}

// ========== Error Domain Repository ==========

// FindErrorDomain 查询错误域名记录
func (s *Store) FindErrorDomain(ctx context.Context, name string) (*domain.ErrorDomainRecord, error) {
	var rec domain.ErrorDomainRecord
	err := s.db.WithContext(ctx).Where("domain = ?", name).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrErrorDomainNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// UpsertErrorDomain 创建或覆盖错误域名记录
func (s *Store) UpsertErrorDomain(ctx context.Context, record *domain.ErrorDomainRecord) error {
	if record.RecordedAt.IsZero() {
		record.RecordedAt = time.Now().UTC()
	}
	return s.upsert(ctx, record)
}

// ========== Job Repository ==========

// CreateJob 创建批量任务
func (s *Store) CreateJob(ctx context.Context, job *domain.BatchJob) error {
	return s.db.WithContext(ctx).Create(job).Error
}

// GetJob 获取批量任务
func (s *Store) GetJob(ctx context.Context, id string) (*domain.BatchJob, error) {
	var job domain.BatchJob
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrJobNotFound
		}
		return nil, err
	}
	return &job, nil
}

// UpdateJob 更新批量任务
func (s *Store) UpdateJob(ctx context.Context, job *domain.BatchJob) error {
	result := s.db.WithContext(ctx).Model(job).Select("*").Omit("created_at").Updates(job)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrJobNotFound
	}
	return nil
}

// ListJobsByStatus 列出指定状态的批量任务
func (s *Store) ListJobsByStatus(ctx context.Context, status domain.BatchStatus) ([]*domain.BatchJob, error) {
	var jobs []*domain.BatchJob
	err := s.db.WithContext(ctx).Where("status = ?", status).Order("created_at ASC").Find(&jobs).Error
	return jobs, err
}

// ========== 工具方法 ==========

// Health 检查数据库连接
func (s *Store) Health() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return sqlDB.PingContext(ctx)
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// upsert 按主键插入或覆盖全部列
func (s *Store) upsert(ctx context.Context, value any) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(value).Error
}
