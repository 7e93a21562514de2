package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"mailverify/backend/internal/domain"
	"mailverify/backend/internal/storage"
)

// Store 使用内存保存验证缓存与批量任务，主要用于开发验证和测试。
//
// 所有读写返回副本，调用方修改返回值不会影响存储内容。
type Store struct {
	mu           sync.RWMutex
	domains      map[string]*domain.DomainRecord         // domain -> record
	processed    map[string]*domain.ProcessedEmailRecord // address -> record
	errorDomains map[string]*domain.ErrorDomainRecord    // domain -> record
	jobs         map[string]*domain.BatchJob             // jobID -> job

	now func() time.Time
}

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{
		domains:      make(map[string]*domain.DomainRecord),
		processed:    make(map[string]*domain.ProcessedEmailRecord),
		errorDomains: make(map[string]*domain.ErrorDomainRecord),
		jobs:         make(map[string]*domain.BatchJob),
		now:          time.Now,
	}
}

var _ storage.Repository = (*Store)(nil)

func key(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ========== Domain Repository ==========

// FindDomain 查询域名 MX 缓存
func (s *Store) FindDomain(_ context.Context, name string) (*domain.DomainRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.domains[key(name)]
	if !ok {
		return nil, storage.ErrDomainNotFound
	}
	return copyDomain(rec), nil
}

// SaveDomain 保存域名 MX 缓存
func (s *Store) SaveDomain(_ context.Context, record *domain.DomainRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.domains[key(record.Domain)] = copyDomain(record)
	return nil
}

// ========== Processed Email Repository ==========

// FindProcessedEmail 查询地址结果缓存
func (s *Store) FindProcessedEmail(_ context.Context, address string) (*domain.ProcessedEmailRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.processed[key(address)]
	if !ok {
		return nil, storage.ErrProcessedEmailNotFound
	}
	return copyProcessed(rec), nil
}

// SaveProcessedEmail 保存地址结果缓存，整体替换旧记录
func (s *Store) SaveProcessedEmail(_ context.Context, record *domain.ProcessedEmailRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := copyProcessed(record)
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = s.now()
	}
	s.processed[key(record.EmailAddress)] = cp
	return nil
}

// ========== Error Domain Repository ==========

// FindErrorDomain 查询错误域名记录
func (s *Store) FindErrorDomain(_ context.Context, name string) (*domain.ErrorDomainRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.errorDomains[key(name)]
	if !ok {
		return nil, storage.ErrErrorDomainNotFound
	}
	cp := *rec
	return &cp, nil
}

// UpsertErrorDomain 创建或覆盖错误域名记录
func (s *Store) UpsertErrorDomain(_ context.Context, record *domain.ErrorDomainRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *record
	if cp.RecordedAt.IsZero() {
		cp.RecordedAt = s.now()
	}
	s.errorDomains[key(record.Domain)] = &cp
	return nil
}

// ========== Job Repository ==========

// CreateJob 创建批量任务
func (s *Store) CreateJob(_ context.Context, job *domain.BatchJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	s.jobs[job.ID] = copyJob(job)
	return nil
}

// GetJob 获取批量任务
func (s *Store) GetJob(_ context.Context, id string) (*domain.BatchJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, storage.ErrJobNotFound
	}
	return copyJob(job), nil
}

// UpdateJob 更新批量任务
func (s *Store) UpdateJob(_ context.Context, job *domain.BatchJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; !ok {
		return storage.ErrJobNotFound
	}
	job.UpdatedAt = s.now()
	s.jobs[job.ID] = copyJob(job)
	return nil
}

// ListJobsByStatus 列出指定状态的批量任务
func (s *Store) ListJobsByStatus(_ context.Context, status domain.BatchStatus) ([]*domain.BatchJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.BatchJob
	for _, job := range s.jobs {
		if job.Status == status {
			out = append(out, copyJob(job))
		}
	}
	return out, nil
}

// ========== 工具方法 ==========

// Health 内存存储始终可用
func (s *Store) Health() error {
	return nil
}

// Close 内存存储无需释放资源
func (s *Store) Close() error {
	return nil
}

func copyDomain(rec *domain.DomainRecord) *domain.DomainRecord {
	cp := *rec
	cp.MXHosts = append([]domain.MXHost(nil), rec.MXHosts...)
	if rec.AgeDays != nil {
		age := *rec.AgeDays
		cp.AgeDays = &age
	}
	return &cp
}

func copyProcessed(rec *domain.ProcessedEmailRecord) *domain.ProcessedEmailRecord {
	cp := *rec
	cp.Result = *rec.Result.Clone()
	return &cp
}

func copyJob(job *domain.BatchJob) *domain.BatchJob {
	cp := *job
	cp.Addresses = append([]string(nil), job.Addresses...)
	cp.Summary = job.Summary.Clone()
	return &cp
}
