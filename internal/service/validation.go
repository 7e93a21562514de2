package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"go.uber.org/zap"

	"mailverify/backend/internal/config"
	"mailverify/backend/internal/dnsbl"
	"mailverify/backend/internal/domain"
	"mailverify/backend/internal/monitoring"
	"mailverify/backend/internal/resolver"
	"mailverify/backend/internal/smtpprobe"
	"mailverify/backend/internal/storage"
)

// Prober 对单个 MX 主机执行 SMTP 探测
type Prober interface {
	Probe(ctx context.Context, mxHost string, addr domain.EmailAddress, opts smtpprobe.Options) smtpprobe.Outcome
}

// BlacklistChecker 查询域名是否被 DNSBL 收录
type BlacklistChecker interface {
	IsListed(ctx context.Context, domainName string) (dnsbl.Listing, error)
}

// TypoChecker 域名拼写检查
type TypoChecker interface {
	Check(domainName string) (int, bool)
}

// MXResolver MX 记录解析
type MXResolver interface {
	LookupMX(ctx context.Context, name string) ([]domain.MXHost, error)
}

// DomainAger 查询域名注册天数
type DomainAger interface {
	DomainAge(ctx context.Context, domainName string) (int, error)
}

// VerifyPlusSender 发送真实诊断邮件
type VerifyPlusSender interface {
	SendVerifyPlus(ctx context.Context, email string) error
}

// ValidateOptions 单次验证选项
type ValidateOptions struct {
	VerifyPlus   bool   // 账户是否开通真实发信验证
	JobID        string // 所属批量任务
	UserID       string
	FinalAttempt bool // 灰名单重试：仍为灰名单时按无效处理
}

// ValidationDeps 验证服务的外部依赖
//
// Whois 与 VerifyPlus 可以为空。
type ValidationDeps struct {
	Repository storage.Repository
	Prober     Prober
	Blacklist  BlacklistChecker
	Typo       TypoChecker
	Resolver   MXResolver
	Whois      DomainAger
	VerifyPlus VerifyPlusSender
	Lists      *domain.Lists
	Metrics    *monitoring.Metrics
	Logger     *zap.Logger
}

// ValidationService 单地址验证流程
//
// 按固定顺序执行各项检查，任何一步失败都直接产出终态结果。
// 无论成功、失败还是 panic，调用方总能拿到结果对象。
type ValidationService struct {
	repo       storage.Repository
	prober     Prober
	blacklist  BlacklistChecker
	typo       TypoChecker
	resolver   MXResolver
	whois      DomainAger
	verifyPlus VerifyPlusSender
	lists      *domain.Lists
	validator  *domain.EmailValidator
	metrics    *monitoring.Metrics
	logger     *zap.Logger

	cooldown             domain.CooldownPolicy
	mxDayGap             int
	processedDayGap      int
	conservativeSuffixes []string

	now      func() time.Time
	pickHost func(n int) int
}

// NewValidationService 创建验证服务
func NewValidationService(deps ValidationDeps, cfg *config.Config) *ValidationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	lists := deps.Lists
	if lists == nil {
		lists = domain.NewLists()
	}
	suffixes := cfg.Batch.ConservativeMXSuffixes
	if len(suffixes) == 0 {
		suffixes = domain.DefaultConservativeMXSuffixes
	}

	s := &ValidationService{
		repo:       deps.Repository,
		prober:     deps.Prober,
		blacklist:  deps.Blacklist,
		typo:       deps.Typo,
		resolver:   deps.Resolver,
		verifyPlus: deps.VerifyPlus,
		lists:      lists,
		validator:  domain.NewEmailValidator(),
		metrics:    deps.Metrics,
		logger:     logger,
		cooldown: domain.CooldownPolicy{
			SpamtrapDays: cfg.Cache.SpamCooldownDays,
			CatchAllDays: cfg.Cache.CatchAllCooldownDays,
			DefaultDays:  cfg.Cache.ErrorDomainCooldownDays,
		},
		mxDayGap:             cfg.Cache.MXRecordDayGap,
		processedDayGap:      cfg.Cache.ProcessedEmailDayGap,
		conservativeSuffixes: suffixes,
		now:                  time.Now,
		pickHost:             rand.Intn,
	}
	if cfg.Whois.Enabled {
		s.whois = deps.Whois
	}
	return s
}

// ConservativeSuffixes 返回大型服务商 MX 后缀
func (s *ValidationService) ConservativeSuffixes() []string {
	return s.conservativeSuffixes
}

// Validate 验证单个邮箱地址
//
// 结果总会写入已验证地址缓存；缓存写入失败只记录日志。
func (s *ValidationService) Validate(ctx context.Context, raw string, opts ValidateOptions) (result *domain.ValidationResult) {
	start := s.now()
	source := "cascade"

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Validation panicked",
				zap.String("email", raw),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			if s.metrics != nil {
				s.metrics.RecordPanic()
				s.metrics.RecordError("panic", "validation")
			}
			result = s.panicResult(ctx, raw, opts, r)
			source = "panic"
		}
		if s.metrics != nil {
			s.metrics.RecordValidation(string(result.Status), string(result.SubStatus), source, s.now().Sub(start))
		}
	}()

	result, source = s.run(ctx, raw, opts)
	return result
}

// run 执行完整检查链，返回结果及其来源
func (s *ValidationService) run(ctx context.Context, raw string, opts ValidateOptions) (*domain.ValidationResult, string) {
	email := strings.ToLower(strings.TrimSpace(raw))

	// 1. 已验证地址缓存
	if !opts.FinalAttempt {
		if cached := s.cachedResult(ctx, email); cached != nil {
			return cached, "cache"
		}
	}

	// 2. 语法
	if err := s.validator.ValidateEmail(email); err != nil {
		result := newResult(email, domain.EmailAddress{})
		result.Status, result.SubStatus = domain.StatusInvalid, domain.ReasonInvalidFormat
		result.Diagnostic = err.Error()
		s.persist(ctx, result, opts)
		return result, "syntax"
	}
	addr, err := domain.ParseEmailAddress(email)
	if err != nil {
		result := newResult(email, domain.EmailAddress{})
		result.Status, result.SubStatus = domain.StatusInvalid, domain.ReasonInvalidFormat
		s.persist(ctx, result, opts)
		return result, "syntax"
	}

	result := newResult(email, addr)
	result.FreeEmail = s.lists.IsFreeProvider(addr.Domain)

	// 3. 域名故障冷却
	if rec := s.activeErrorDomain(ctx, addr.Domain); rec != nil {
		result.Status, result.SubStatus = rec.LastError.Status, rec.LastError.SubStatus
		if rec.LastError.Status == domain.StatusCatchAll {
			catchAll := true
			result.CatchAll = &catchAll
		}
		s.persist(ctx, result, opts)
		if s.metrics != nil {
			s.metrics.RecordCacheHit("error_domain")
		}
		return result, "error_domain"
	}

	err = s.cascade(ctx, addr, result, opts)
	var verr *domain.VerificationError
	switch {
	case err == nil:
	case errors.As(err, &verr):
		applyFailure(result, verr)
	default:
		result.Status, result.SubStatus = domain.StatusUnknown, domain.ReasonUnverifiableEmail
		result.Diagnostic = err.Error()
		s.logger.Warn("Validation step failed",
			zap.String("email", email),
			zap.Error(err),
		)
	}

	if opts.FinalAttempt && result.IsGreylisted() {
		result.Status, result.SubStatus = domain.StatusInvalid, domain.ReasonMailboxNotFound
		result.Retryable = false
	}

	// 12. 持久化
	s.persist(ctx, result, opts)

	// 13. 域名级故障记录
	if s.isDomainFailure(result) {
		s.recordErrorDomain(ctx, addr.Domain, result)
	}
	return result, "cascade"
}

// cascade 执行 4-11 步，成功时就地填充 result
func (s *ValidationService) cascade(ctx context.Context, addr domain.EmailAddress, result *domain.ValidationResult, opts ValidateOptions) error {
	// 4. 免费邮箱跳过 5-8
	if !result.FreeEmail {
		if err := s.reputationChecks(ctx, addr); err != nil {
			return err
		}
	}

	// 9. MX
	record, err := s.domainRecord(ctx, addr.Domain)
	if err != nil {
		return err
	}
	result.DomainAgeDays = record.AgeDays

	// 10. SMTP 探测
	hosts := domain.PreferredMXHosts(record.MXHosts)
	host := strings.TrimSuffix(hosts[s.pickHost(len(hosts))].Host, ".")
	class := domain.ClassifyProvider(host, s.conservativeSuffixes)

	outcome := s.prober.Probe(ctx, host, addr, smtpprobe.Options{SkipCatchAll: result.FreeEmail})
	if s.metrics != nil {
		s.metrics.RecordProbe(string(outcome.Status), string(outcome.Reason), string(class), outcome.Duration)
	}
	applyOutcome(result, outcome)

	// 11. 超时后的真实发信验证
	if outcome.IsTimeout() && opts.VerifyPlus && s.verifyPlus != nil {
		if err := s.verifyPlus.SendVerifyPlus(ctx, addr.String()); err != nil {
			s.logger.Warn("Verify+ send failed",
				zap.String("email", addr.String()),
				zap.Error(err),
			)
		} else {
			result.VerifyPlus = true
			s.logger.Info("Verify+ message sent",
				zap.String("email", addr.String()),
			)
		}
	}
	return nil
}

// reputationChecks 角色账号、一次性邮箱、黑名单、拼写错误
func (s *ValidationService) reputationChecks(ctx context.Context, addr domain.EmailAddress) error {
	if s.lists.IsRoleAccount(addr.Account) {
		return domain.NewVerificationError(domain.StatusDoNotMail, domain.ReasonRoleBased)
	}
	if s.lists.IsDisposable(addr.Domain) {
		return domain.NewVerificationError(domain.StatusDoNotMail, domain.ReasonDisposableDomain)
	}

	if s.blacklist != nil {
		listing, err := s.blacklist.IsListed(ctx, addr.Domain)
		switch {
		case err != nil:
			s.logger.Warn("Blacklist check failed",
				zap.String("domain", addr.Domain),
				zap.Error(err),
			)
		case listing.Listed:
			verr := domain.NewVerificationError(domain.StatusSpamtrap, domain.ReasonEmpty)
			verr.Detail = fmt.Sprintf("%s listed on %s", listing.IP, listing.Zone)
			return verr
		}
	}

	if s.typo != nil {
		if dist, typo := s.typo.Check(addr.Domain); typo {
			verr := domain.NewVerificationError(domain.StatusInvalid, domain.ReasonPossibleTypo)
			verr.Detail = fmt.Sprintf("edit distance %d", dist)
			return verr
		}
	}
	return nil
}

// domainRecord 读取或刷新域名的 MX 缓存
func (s *ValidationService) domainRecord(ctx context.Context, name string) (*domain.DomainRecord, error) {
	now := s.now()
	existing, err := s.repo.FindDomain(ctx, name)
	if err != nil && !errors.Is(err, storage.ErrDomainNotFound) {
		s.logger.Warn("Failed to read domain record", zap.String("domain", name), zap.Error(err))
		existing = nil
	}
	if existing != nil && !existing.NeedsRefresh(now, s.mxDayGap) {
		if s.metrics != nil {
			s.metrics.RecordCacheHit("domain")
		}
		return existing, nil
	}

	hosts, err := s.resolver.LookupMX(ctx, name)
	switch {
	case errors.Is(err, resolver.ErrNotFound):
		return nil, domain.NewVerificationError(domain.StatusInvalidDomain, domain.ReasonDomainNotFound)
	case err != nil:
		return nil, fmt.Errorf("lookup mx for %s: %w", name, err)
	case len(hosts) == 0:
		return nil, domain.NewVerificationError(domain.StatusInvalid, domain.ReasonNoMXFound)
	}
	domain.SortMXHosts(hosts)

	record := &domain.DomainRecord{
		Domain:        name,
		MXHosts:       hosts,
		LastCheckedAt: now,
	}
	if existing != nil {
		record.AgeDays = existing.AgeDays
		record.IPAddress = existing.IPAddress
	} else if s.whois != nil {
		if days, err := s.whois.DomainAge(ctx, name); err == nil {
			record.AgeDays = &days
		} else {
			s.logger.Debug("Whois lookup failed", zap.String("domain", name), zap.Error(err))
		}
	}

	if err := s.repo.SaveDomain(ctx, record); err != nil {
		s.logger.Warn("Failed to save domain record", zap.String("domain", name), zap.Error(err))
	}
	return record, nil
}

// cachedResult 返回仍在有效期内的终态缓存结果
func (s *ValidationService) cachedResult(ctx context.Context, email string) *domain.ValidationResult {
	rec, err := s.repo.FindProcessedEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, storage.ErrProcessedEmailNotFound) {
			s.logger.Warn("Failed to read processed email", zap.String("email", email), zap.Error(err))
		}
		return nil
	}
	if rec.Expired(s.now(), s.processedDayGap) || !rec.Result.Status.IsStable() {
		return nil
	}
	if s.metrics != nil {
		s.metrics.RecordCacheHit("processed_email")
	}
	return rec.Result.Clone()
}

// activeErrorDomain 返回仍在冷却期内的域名故障记录
func (s *ValidationService) activeErrorDomain(ctx context.Context, name string) *domain.ErrorDomainRecord {
	rec, err := s.repo.FindErrorDomain(ctx, name)
	if err != nil {
		if !errors.Is(err, storage.ErrErrorDomainNotFound) {
			s.logger.Warn("Failed to read error domain", zap.String("domain", name), zap.Error(err))
		}
		return nil
	}
	if !rec.InCooldown(s.now(), s.cooldown) {
		return nil
	}
	return rec
}

// isDomainFailure 判断结果是否需要写入域名故障记录
func (s *ValidationService) isDomainFailure(r *domain.ValidationResult) bool {
	return r.Status != domain.StatusValid &&
		!r.FreeEmail &&
		!r.Retryable &&
		r.SubStatus.IsDomainLevel()
}

// recordErrorDomain 写入域名故障记录
//
// 冷却期内已有不同状态的记录时保持不变；状态相同时只更新错误内容。
func (s *ValidationService) recordErrorDomain(ctx context.Context, name string, r *domain.ValidationResult) {
	now := s.now()
	record := &domain.ErrorDomainRecord{
		Domain:     name,
		LastError:  domain.DomainError{Status: r.Status, SubStatus: r.SubStatus},
		RecordedAt: now,
	}

	existing, err := s.repo.FindErrorDomain(ctx, name)
	switch {
	case err == nil && existing.InCooldown(now, s.cooldown):
		if existing.LastError.Status != r.Status {
			return
		}
		record.RecordedAt = existing.RecordedAt
	case err != nil && !errors.Is(err, storage.ErrErrorDomainNotFound):
		s.logger.Warn("Failed to read error domain", zap.String("domain", name), zap.Error(err))
		return
	}

	if err := s.repo.UpsertErrorDomain(ctx, record); err != nil {
		s.logger.Warn("Failed to save error domain", zap.String("domain", name), zap.Error(err))
	}
}

// persist 保存验证结果，灰名单结果标记为等待重试
func (s *ValidationService) persist(ctx context.Context, r *domain.ValidationResult, opts ValidateOptions) {
	state := domain.RetryComplete
	if r.IsGreylisted() {
		state = domain.RetryPending
	}
	record := &domain.ProcessedEmailRecord{
		EmailAddress: r.Email,
		JobID:        opts.JobID,
		RetryState:   state,
		Result:       *r.Clone(),
		CreatedAt:    s.now(),
	}
	if err := s.repo.SaveProcessedEmail(ctx, record); err != nil {
		s.logger.Warn("Failed to save processed email",
			zap.String("email", r.Email),
			zap.Error(err),
		)
		if s.metrics != nil {
			s.metrics.RecordError("storage", "validation")
		}
	}
}

// panicResult 将 panic 转换为 unknown 结果并尽力保存
func (s *ValidationService) panicResult(ctx context.Context, raw string, opts ValidateOptions, cause any) *domain.ValidationResult {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, _ := domain.ParseEmailAddress(email)
	result := newResult(email, addr)
	result.Status, result.SubStatus = domain.StatusUnknown, domain.ReasonUnverifiableEmail
	result.Diagnostic = fmt.Sprintf("internal error: %v", cause)

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Failed to persist panic result", zap.Any("panic", r))
		}
	}()
	s.persist(ctx, result, opts)
	return result
}

func newResult(email string, addr domain.EmailAddress) *domain.ValidationResult {
	return &domain.ValidationResult{
		Email:   email,
		Account: addr.Account,
		Domain:  addr.Domain,
	}
}

func applyFailure(r *domain.ValidationResult, err *domain.VerificationError) {
	r.Status, r.SubStatus = err.Status, err.Reason
	r.Retryable = err.Retryable
	r.Diagnostic = err.Detail
	if err.SMTPCode > 0 {
		code := err.SMTPCode
		r.SMTPCode = &code
	}
}

func applyOutcome(r *domain.ValidationResult, o smtpprobe.Outcome) {
	r.Status, r.SubStatus = o.Status, o.Reason
	r.Retryable = o.Retryable
	if o.Code > 0 {
		code := o.Code
		r.SMTPCode = &code
	}
	if o.CatchAll || o.CatchAllChecked {
		catchAll := o.CatchAll
		r.CatchAll = &catchAll
	}
	r.Diagnostic = o.Diagnostic
	if r.Diagnostic == "" {
		r.Diagnostic = o.Message
	}
}
