package domain

import "fmt"

// EmailStatus 邮箱验证的主状态
type EmailStatus string

const (
	StatusValid              EmailStatus = "valid"               // 邮箱有效
	StatusInvalid            EmailStatus = "invalid"             // 邮箱无效
	StatusInvalidDomain      EmailStatus = "invalid_domain"      // 域名不存在或不可达
	StatusCatchAll           EmailStatus = "catch-all"           // 域名接收任意地址
	StatusSpamtrap           EmailStatus = "spamtrap"            // 命中黑名单
	StatusDoNotMail          EmailStatus = "do_not_mail"         // 不建议发送
	StatusServiceUnavailable EmailStatus = "service_unavailable" // 邮件服务器拒绝探测
	StatusUnknown            EmailStatus = "unknown"             // 无法判断
)

// EmailReason 邮箱验证的子状态
type EmailReason string

const (
	ReasonEmpty              EmailReason = ""
	ReasonInvalidFormat      EmailReason = "invalid_email_format"
	ReasonDomainNotFound     EmailReason = "domain_not_found"
	ReasonWhoisDataNotFound  EmailReason = "domain_whois_data_not_found"
	ReasonNoMXFound          EmailReason = "no_mx_found"
	ReasonRoleBased          EmailReason = "role_based"
	ReasonDisposableDomain   EmailReason = "disposable_domain_temporary_email"
	ReasonPossibleTypo       EmailReason = "possible_typo"
	ReasonMailboxNotFound    EmailReason = "mailbox_not_found"
	ReasonDoesNotAcceptMail  EmailReason = "does_not_accept_mail"
	ReasonIPBlocked          EmailReason = "ip_blocked"
	ReasonGreylisted         EmailReason = "greylisted"
	ReasonSMTPTimeout        EmailReason = "smtp_connection_timeout"
	ReasonUnverifiableEmail  EmailReason = "unverifiable_email"
)

// IsStable 判断该状态的缓存结果是否可以直接复用
//
// 只有 valid / catch-all / spamtrap / do_not_mail 四种结论足够稳定，
// 其余结果在下一次请求时都需要重新探测。
func (s EmailStatus) IsStable() bool {
	switch s {
	case StatusValid, StatusCatchAll, StatusSpamtrap, StatusDoNotMail:
		return true
	default:
		return false
	}
}

// errorDomainSkipReasons 这些子状态只说明单个地址有问题，不能据此判定整个域名
var errorDomainSkipReasons = map[EmailReason]struct{}{
	ReasonRoleBased:         {},
	ReasonInvalidFormat:     {},
	ReasonUnverifiableEmail: {},
	ReasonMailboxNotFound:   {},
	ReasonIPBlocked:         {},
	ReasonSMTPTimeout:       {},
}

// IsDomainLevel 判断子状态是否代表域名级别的故障（需要写入错误域名冷却表）
func (r EmailReason) IsDomainLevel() bool {
	_, skip := errorDomainSkipReasons[r]
	return !skip
}

// VerificationError 级联检查中某一步给出的终态失败
//
// 每个检查步骤要么返回 nil，要么返回一个携带状态/子状态的 VerificationError，
// 由编排器统一转换为 ValidationResult。
type VerificationError struct {
	Status    EmailStatus
	Reason    EmailReason
	SMTPCode  int
	Retryable bool
	Detail    string
}

// Error 实现 error 接口
func (e *VerificationError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s/%s: %s", e.Status, e.Reason, e.Detail)
	}
	return fmt.Sprintf("%s/%s", e.Status, e.Reason)
}

// NewVerificationError 创建一个级联失败
func NewVerificationError(status EmailStatus, reason EmailReason) *VerificationError {
	return &VerificationError{Status: status, Reason: reason}
}
