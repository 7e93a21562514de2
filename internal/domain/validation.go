package domain

import (
	"errors"
	"regexp"
	"strings"

	"github.com/badoux/checkmail"
)

// 验证相关的错误定义
var (
	ErrInvalidEmail     = errors.New("invalid email format")
	ErrEmailTooLong     = errors.New("email address too long")
	ErrLocalPartTooLong = errors.New("local part too long (max 64 chars)")
	ErrDomainTooLong    = errors.New("domain too long (max 253 chars)")
	ErrInvalidDomain    = errors.New("invalid domain format")
)

// 验证常量
const (
	// RFC 5321 邮箱地址长度限制
	MaxEmailLength     = 254 // 整个邮箱地址最大长度
	MaxLocalPartLength = 64  // 本地部分最大长度(@前面)
	MaxDomainLength    = 253 // 域名最大长度
)

// 正则表达式
var (
	// 结构化格式：本地部分 + @ + 至少包含一个点、顶级域不少于两个字母的域名
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

	// 域名验证（支持子域名）
	domainRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9-]{0,61}[a-zA-Z0-9]?(\.[a-zA-Z0-9][a-zA-Z0-9-]{0,61}[a-zA-Z0-9]?)*$`)
)

// EmailValidator 邮箱语法验证器
type EmailValidator struct{}

// NewEmailValidator 创建邮箱验证器
func NewEmailValidator() *EmailValidator {
	return &EmailValidator{}
}

// ValidateEmail 校验邮箱地址的结构化格式
//
// 只做语法层面的检查，不访问网络。
func (v *EmailValidator) ValidateEmail(email string) error {
	email = strings.TrimSpace(strings.ToLower(email))

	// 长度检查
	if len(email) > MaxEmailLength {
		return ErrEmailTooLong
	}

	if !emailRegex.MatchString(email) {
		return ErrInvalidEmail
	}

	// checkmail 按 RFC 规则再做一遍格式校验
	if err := checkmail.ValidateFormat(email); err != nil {
		return ErrInvalidEmail
	}

	at := strings.LastIndex(email, "@")
	localPart, domain := email[:at], email[at+1:]

	if len(localPart) > MaxLocalPartLength {
		return ErrLocalPartTooLong
	}
	if strings.HasPrefix(localPart, ".") || strings.HasSuffix(localPart, ".") || strings.Contains(localPart, "..") {
		return ErrInvalidEmail
	}

	return v.ValidateDomain(domain)
}

// ValidateDomain 验证域名
func (v *EmailValidator) ValidateDomain(domain string) error {
	if domain == "" {
		return ErrInvalidDomain
	}

	// 长度检查
	if len(domain) > MaxDomainLength {
		return ErrDomainTooLong
	}

	// 格式检查
	if !domainRegex.MatchString(domain) {
		return ErrInvalidDomain
	}

	// 检查每个标签的长度（不超过63字符）
	labels := strings.Split(domain, ".")
	for _, label := range labels {
		if len(label) > 63 {
			return ErrInvalidDomain
		}
	}

	return nil
}

// ValidateEmail 简化的验证函数，返回bool值
func ValidateEmail(email string) bool {
	return NewEmailValidator().ValidateEmail(email) == nil
}
