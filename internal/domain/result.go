package domain

import "time"

// ValidationResult 单个地址一次验证的终态结果
//
// 每次探测只产生一个结果，编排器在返回之前会先持久化它。
type ValidationResult struct {
	Email         string      `json:"email" gorm:"type:varchar(255)"`
	Account       string      `json:"account" gorm:"type:varchar(255)"`
	Domain        string      `json:"domain" gorm:"type:varchar(255);index"`
	Status        EmailStatus `json:"status" gorm:"type:varchar(32);index"`
	SubStatus     EmailReason `json:"subStatus" gorm:"type:varchar(64)"`
	SMTPCode      *int        `json:"smtpCode,omitempty"`
	Retryable     bool        `json:"retryable"`
	FreeEmail     bool        `json:"freeEmail"`
	CatchAll      *bool       `json:"catchAll,omitempty"`
	DomainAgeDays *int        `json:"domainAgeDays,omitempty"`
	VerifyPlus    bool        `json:"verifyPlus"`
	Diagnostic    string      `json:"diagnostic,omitempty" gorm:"type:text"`
}

// IsGreylisted 判断结果是否为灰名单（需要延迟重试）
func (r *ValidationResult) IsGreylisted() bool {
	return r.SubStatus == ReasonGreylisted
}

// Clone 返回结果的深拷贝，避免缓存与调用方共享指针字段
func (r *ValidationResult) Clone() *ValidationResult {
	if r == nil {
		return nil
	}
	out := *r
	if r.SMTPCode != nil {
		code := *r.SMTPCode
		out.SMTPCode = &code
	}
	if r.CatchAll != nil {
		catchAll := *r.CatchAll
		out.CatchAll = &catchAll
	}
	if r.DomainAgeDays != nil {
		age := *r.DomainAgeDays
		out.DomainAgeDays = &age
	}
	return &out
}

// RetryState 灰名单重试状态
type RetryState string

const (
	RetryPending  RetryState = "pending"  // 等待第二次探测
	RetryComplete RetryState = "complete" // 结果已是终态
)

// ProcessedEmailRecord 每个地址最近一次的验证结果缓存
//
// 写入总是整体替换旧记录，不做字段级合并。
type ProcessedEmailRecord struct {
	EmailAddress string           `json:"emailAddress" gorm:"primaryKey;type:varchar(255)"`
	JobID        string           `json:"jobId,omitempty" gorm:"type:varchar(36);index"`
	RetryState   RetryState       `json:"retryState" gorm:"type:varchar(16);index"`
	Result       ValidationResult `json:"result" gorm:"embedded;embeddedPrefix:result_"`
	CreatedAt    time.Time        `json:"createdAt"`
}

// Expired 判断缓存记录是否超过了给定的有效天数
func (p *ProcessedEmailRecord) Expired(now time.Time, dayGap int) bool {
	return daysBetween(p.CreatedAt, now) >= dayGap
}

// daysBetween 计算两个时间点之间相差的完整天数
func daysBetween(from, to time.Time) int {
	if to.Before(from) {
		return 0
	}
	return int(to.Sub(from) / (24 * time.Hour))
}
