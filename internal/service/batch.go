package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mailverify/backend/internal/domain"
	"mailverify/backend/internal/monitoring"
	"mailverify/backend/internal/pool"
	"mailverify/backend/internal/queue"
	"mailverify/backend/internal/ratelimit"
	"mailverify/backend/internal/storage"
)

var (
	ErrEmptyBatch = errors.New("batch has no addresses")
	ErrNilJob     = errors.New("batch job is nil")
)

// Validator 单地址验证
type Validator interface {
	Validate(ctx context.Context, raw string, opts ValidateOptions) *domain.ValidationResult
}

// Notifier 批量任务完成通知
type Notifier interface {
	NotifyBatchComplete(ctx context.Context, job *domain.BatchJob, summary *domain.BatchSummary) error
}

// 分类处理顺序：大型服务商先行
var classOrder = []domain.ProviderClass{domain.ProviderConservative, domain.ProviderGeneral}

// BatchDeps 批量服务的外部依赖
type BatchDeps struct {
	Validator Validator
	Jobs      storage.JobRepository
	Domains   storage.DomainRepository
	Resolver  MXResolver
	Scheduler *ratelimit.Scheduler
	Queue     queue.DelayedQueue
	Pool      *pool.WorkerPool
	Notifier  Notifier
	Metrics   *monitoring.Metrics
	Logger    *zap.Logger
}

// BatchOptions 批量服务参数
type BatchOptions struct {
	GreylistDelay        time.Duration // 灰名单重试延迟
	PollInterval         time.Duration // 轮询延迟队列的间隔
	ConservativeSuffixes []string
}

// BatchService 批量验证协调
//
// 地址按 MX 所属服务商分类，批次之间串行，批次内在调度器限额下并发。
// 灰名单地址只重试一次，全部地址出结果后任务完成并发出通知。
type BatchService struct {
	validator Validator
	jobs      storage.JobRepository
	domains   storage.DomainRepository
	resolver  MXResolver
	scheduler *ratelimit.Scheduler
	queue     queue.DelayedQueue
	pool      *pool.WorkerPool
	notifier  Notifier
	metrics   *monitoring.Metrics
	logger    *zap.Logger

	greylistDelay        time.Duration
	pollInterval         time.Duration
	conservativeSuffixes []string

	mu     sync.Mutex
	active map[string]*jobState
	wg     sync.WaitGroup
	now    func() time.Time
}

// jobState 进行中任务的可变状态
type jobState struct {
	mu      sync.Mutex
	job     *domain.BatchJob
	summary *domain.BatchSummary
}

// NewBatchService 创建批量验证服务
func NewBatchService(deps BatchDeps, opts BatchOptions) *BatchService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.GreylistDelay < 0 {
		opts.GreylistDelay = 0
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if len(opts.ConservativeSuffixes) == 0 {
		opts.ConservativeSuffixes = domain.DefaultConservativeMXSuffixes
	}

	return &BatchService{
		validator:            deps.Validator,
		jobs:                 deps.Jobs,
		domains:              deps.Domains,
		resolver:             deps.Resolver,
		scheduler:            deps.Scheduler,
		queue:                deps.Queue,
		pool:                 deps.Pool,
		notifier:             deps.Notifier,
		metrics:              deps.Metrics,
		logger:               logger,
		greylistDelay:        opts.GreylistDelay,
		pollInterval:         opts.PollInterval,
		conservativeSuffixes: opts.ConservativeSuffixes,
		active:               make(map[string]*jobState),
		now:                  time.Now,
	}
}

// NewJob 构造待处理的批量任务，地址去重并转为小写
func NewJob(addresses []string, userID string, verifyPlus bool) *domain.BatchJob {
	return &domain.BatchJob{
		ID:         uuid.NewString(),
		UserID:     userID,
		Addresses:  dedupe(addresses),
		Status:     domain.BatchPending,
		VerifyPlus: verifyPlus,
	}
}

// Submit 创建任务并在后台执行
func (s *BatchService) Submit(ctx context.Context, addresses []string, userID string, verifyPlus bool) (*domain.BatchJob, error) {
	job := NewJob(addresses, userID, verifyPlus)
	if len(job.Addresses) == 0 {
		return nil, ErrEmptyBatch
	}
	if err := s.jobs.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	s.recordJob(domain.BatchPending)

	snapshot := *job
	bg := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if _, err := s.ValidateBatch(bg, job); err != nil {
			s.logger.Error("Batch job failed",
				zap.String("job_id", job.ID),
				zap.Error(err),
			)
		}
	}()
	return &snapshot, nil
}

// Wait 等待后台任务的首轮验证结束
func (s *BatchService) Wait() {
	s.wg.Wait()
}

// GetJob 查询任务
func (s *BatchService) GetJob(ctx context.Context, id string) (*domain.BatchJob, error) {
	return s.jobs.GetJob(ctx, id)
}

// ValidateBatch 执行批量任务的首轮验证
//
// 返回首轮结束时的统计；存在灰名单地址时任务进入 grey_list_check，
// 重试完成后由 Run 循环把任务置为 complete。
func (s *BatchService) ValidateBatch(ctx context.Context, job *domain.BatchJob) (*domain.BatchSummary, error) {
	if job == nil {
		return nil, ErrNilJob
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.Addresses = dedupe(job.Addresses)
	if len(job.Addresses) == 0 {
		return nil, ErrEmptyBatch
	}

	if _, err := s.jobs.GetJob(ctx, job.ID); errors.Is(err, storage.ErrJobNotFound) {
		job.Status = domain.BatchPending
		if err := s.jobs.CreateJob(ctx, job); err != nil {
			return nil, fmt.Errorf("create job: %w", err)
		}
	}

	st := &jobState{job: job, summary: domain.NewBatchSummary(job.ID)}
	s.track(st)

	job.Status = domain.BatchProcessing
	job.Summary = st.summary.Clone()
	if err := s.jobs.UpdateJob(ctx, job); err != nil {
		s.untrack(job.ID)
		return nil, fmt.Errorf("update job: %w", err)
	}
	s.recordJob(domain.BatchProcessing)

	groups := s.partition(ctx, job.Addresses)
	if len(groups) == 1 {
		for class := range groups {
			job.ProviderClass = class
		}
	}

	opts := ValidateOptions{VerifyPlus: job.VerifyPlus, JobID: job.ID, UserID: job.UserID}
	var greylisted []string
	for _, class := range classOrder {
		addrs := groups[class]
		if len(addrs) == 0 {
			continue
		}
		size := s.batchSize(class)
		for start := 0; start < len(addrs); start += size {
			end := min(start+size, len(addrs))
			for _, r := range s.runBatch(ctx, class, addrs[start:end], opts) {
				st.mu.Lock()
				st.summary.Add(r)
				st.mu.Unlock()
				if r.IsGreylisted() {
					greylisted = append(greylisted, r.Email)
				}
			}
		}
	}

	st.mu.Lock()
	job.PendingRetry = len(greylisted)
	if len(greylisted) == 0 {
		job.Status = domain.BatchComplete
	} else {
		job.Status = domain.BatchGreyListCheck
	}
	job.Summary = st.summary.Clone()
	summary := st.summary.Clone()
	err := s.jobs.UpdateJob(ctx, job)
	st.mu.Unlock()
	if err != nil {
		s.logger.Warn("Failed to update job", zap.String("job_id", job.ID), zap.Error(err))
	}
	s.recordJob(job.Status)

	s.logger.Info("Batch first pass finished",
		zap.String("job_id", job.ID),
		zap.Int("total", summary.Total),
		zap.Int("greylisted", len(greylisted)),
	)

	if len(greylisted) == 0 {
		s.untrack(job.ID)
		s.notify(ctx, job, summary)
		return summary, nil
	}

	for _, email := range greylisted {
		item := queue.Item{
			JobID:      job.ID,
			Email:      email,
			UserID:     job.UserID,
			VerifyPlus: job.VerifyPlus,
			Attempt:    1,
		}
		if err := s.queue.Schedule(ctx, item, s.greylistDelay); err != nil {
			s.logger.Warn("Failed to schedule greylist retry, retrying now",
				zap.String("job_id", job.ID),
				zap.String("email", email),
				zap.Error(err),
			)
			s.retry(ctx, item)
		}
	}
	return summary, nil
}

// runBatch 并发验证一个批次，等待全部地址出结果
func (s *BatchService) runBatch(ctx context.Context, class domain.ProviderClass, addrs []string, opts ValidateOptions) []*domain.ValidationResult {
	results := make([]*domain.ValidationResult, len(addrs))
	var wg sync.WaitGroup
	for i, addr := range addrs {
		wg.Add(1)
		go func(i int, addr string) {
			defer wg.Done()
			err := s.scheduler.Do(ctx, class, func(ctx context.Context) {
				results[i] = s.validator.Validate(ctx, addr, opts)
			})
			if err != nil {
				results[i] = s.unscheduled(addr, err)
			}
		}(i, addr)
	}
	wg.Wait()
	return results
}

// unscheduled 无法取得调度令牌的地址按无法验证处理
func (s *BatchService) unscheduled(addr string, err error) *domain.ValidationResult {
	s.logger.Warn("Probe not scheduled", zap.String("email", addr), zap.Error(err))
	if s.metrics != nil {
		s.metrics.RecordError("schedule", "batch")
	}
	parsed, _ := domain.ParseEmailAddress(addr)
	r := newResult(addr, parsed)
	r.Status, r.SubStatus = domain.StatusUnknown, domain.ReasonUnverifiableEmail
	r.Diagnostic = err.Error()
	return r
}

// partition 按 MX 主机把地址分到服务商分类
func (s *BatchService) partition(ctx context.Context, addrs []string) map[domain.ProviderClass][]string {
	groups := make(map[domain.ProviderClass][]string)
	byDomain := make(map[string]domain.ProviderClass)
	for _, addr := range addrs {
		class := domain.ProviderGeneral
		if parsed, err := domain.ParseEmailAddress(addr); err == nil {
			c, ok := byDomain[parsed.Domain]
			if !ok {
				c = s.classify(ctx, parsed.Domain)
				byDomain[parsed.Domain] = c
			}
			class = c
		}
		groups[class] = append(groups[class], addr)
	}
	return groups
}

// classify 优先使用缓存的 MX 记录，缺失时实时解析
func (s *BatchService) classify(ctx context.Context, name string) domain.ProviderClass {
	var hosts []domain.MXHost
	if s.domains != nil {
		if rec, err := s.domains.FindDomain(ctx, name); err == nil {
			hosts = rec.MXHosts
		}
	}
	if len(hosts) == 0 && s.resolver != nil {
		resolved, err := s.resolver.LookupMX(ctx, name)
		if err != nil {
			s.logger.Debug("MX lookup for partition failed", zap.String("domain", name), zap.Error(err))
		}
		hosts = resolved
	}
	preferred := domain.PreferredMXHosts(hosts)
	if len(preferred) == 0 {
		return domain.ProviderGeneral
	}
	return domain.ClassifyProvider(preferred[0].Host, s.conservativeSuffixes)
}

func (s *BatchService) batchSize(class domain.ProviderClass) int {
	if limits, ok := s.scheduler.Limits(class); ok && limits.BatchSize > 0 {
		return limits.BatchSize
	}
	return 1
}

// Run 轮询延迟队列并把到期的重试交给协程池，直到 ctx 结束
func (s *BatchService) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	s.logger.Info("Greylist retry loop started", zap.Duration("poll_interval", s.pollInterval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Greylist retry loop stopped")
			return nil
		case <-ticker.C:
			if err := s.dispatchDue(ctx); err != nil {
				if errors.Is(err, queue.ErrClosed) || errors.Is(err, pool.ErrPoolStopped) {
					return nil
				}
				s.logger.Warn("Failed to dispatch greylist retries", zap.Error(err))
			}
		}
	}
}

// dispatchDue 取出到期任务提交到协程池
func (s *BatchService) dispatchDue(ctx context.Context) error {
	items, err := s.queue.Due(ctx, s.now(), 100)
	if err != nil {
		return err
	}
	for _, item := range items {
		item := item
		if err := s.pool.Submit(ctx, func(ctx context.Context) { s.retry(ctx, item) }); err != nil {
			// 提交失败的任务放回队列
			if serr := s.queue.Schedule(context.WithoutCancel(ctx), item, 0); serr != nil {
				s.logger.Error("Greylist retry lost",
					zap.String("job_id", item.JobID),
					zap.String("email", item.Email),
					zap.Error(serr),
				)
			}
			return err
		}
	}
	if s.metrics != nil {
		if n, err := s.queue.Len(ctx); err == nil {
			s.metrics.DelayedQueue.Set(float64(n))
		}
	}
	return nil
}

// retry 第二次验证；仍为灰名单时由验证服务转为无效
//
// 重试与首次探测共用分类限额。
func (s *BatchService) retry(ctx context.Context, item queue.Item) {
	class := domain.ProviderGeneral
	if parsed, err := domain.ParseEmailAddress(item.Email); err == nil {
		class = s.classify(ctx, parsed.Domain)
	}

	var r *domain.ValidationResult
	err := s.scheduler.Do(ctx, class, func(ctx context.Context) {
		r = s.validator.Validate(ctx, item.Email, ValidateOptions{
			VerifyPlus:   item.VerifyPlus,
			JobID:        item.JobID,
			UserID:       item.UserID,
			FinalAttempt: true,
		})
	})
	if err != nil {
		r = s.unscheduled(item.Email, err)
	}
	if s.metrics != nil {
		s.metrics.RecordGreylistRetry(string(r.Status))
	}

	st, err := s.state(ctx, item.JobID)
	if err != nil {
		s.logger.Warn("Greylist retry for unknown job",
			zap.String("job_id", item.JobID),
			zap.String("email", item.Email),
			zap.Error(err),
		)
		return
	}

	st.mu.Lock()
	st.summary.Remove(&domain.ValidationResult{Status: domain.StatusUnknown, SubStatus: domain.ReasonGreylisted})
	st.summary.Add(r)
	if st.job.PendingRetry > 0 {
		st.job.PendingRetry--
	}
	done := st.job.PendingRetry == 0
	if done {
		st.job.Status = domain.BatchComplete
	}
	st.job.Summary = st.summary.Clone()
	job := *st.job
	summary := st.summary.Clone()
	err = s.jobs.UpdateJob(ctx, st.job)
	st.mu.Unlock()

	if err != nil {
		s.logger.Warn("Failed to update job", zap.String("job_id", item.JobID), zap.Error(err))
	}
	s.logger.Debug("Greylist retry finished",
		zap.String("job_id", item.JobID),
		zap.String("email", item.Email),
		zap.String("status", string(r.Status)),
		zap.Int("pending", job.PendingRetry),
	)

	if done {
		s.untrack(item.JobID)
		s.recordJob(domain.BatchComplete)
		s.notify(ctx, &job, summary)
	}
}

// state 返回进行中任务的状态，进程重启后从存储恢复
func (s *BatchService) state(ctx context.Context, jobID string) (*jobState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.active[jobID]; ok {
		return st, nil
	}

	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	summary := job.Summary
	if summary == nil {
		summary = domain.NewBatchSummary(job.ID)
	}
	st := &jobState{job: job, summary: summary}
	s.active[jobID] = st
	return st, nil
}

func (s *BatchService) track(st *jobState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[st.job.ID] = st
}

func (s *BatchService) untrack(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, jobID)
}

func (s *BatchService) notify(ctx context.Context, job *domain.BatchJob, summary *domain.BatchSummary) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyBatchComplete(ctx, job, summary); err != nil {
		s.logger.Warn("Batch notification failed", zap.String("job_id", job.ID), zap.Error(err))
	}
}

func (s *BatchService) recordJob(status domain.BatchStatus) {
	if s.metrics != nil {
		s.metrics.RecordBatchJob(string(status))
	}
}

func dedupe(addresses []string) []string {
	seen := make(map[string]struct{}, len(addresses))
	out := make([]string, 0, len(addresses))
	for _, a := range addresses {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == "" {
			continue
		}
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}
