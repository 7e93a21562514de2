package domain

import (
	"strings"

	"golang.org/x/net/idna"
)

// EmailAddress 解析后的邮箱地址（不可变值类型）
type EmailAddress struct {
	Account string `json:"account"`
	Domain  string `json:"domain"`
}

// ParseEmailAddress 将原始地址拆分为本地部分与域名
//
// 地址会先去除空白并转为小写，按最后一个 @ 拆分；
// 国际化域名会转换为 punycode 形式，便于后续 DNS 查询。
// 未包含 @ 或任一部分为空时返回 ErrInvalidEmail。
func ParseEmailAddress(raw string) (EmailAddress, error) {
	addr := strings.ToLower(strings.TrimSpace(raw))
	at := strings.LastIndex(addr, "@")
	if at <= 0 || at == len(addr)-1 {
		return EmailAddress{}, ErrInvalidEmail
	}

	account := addr[:at]
	host := strings.TrimSuffix(addr[at+1:], ".")
	if ascii, err := idna.Lookup.ToASCII(host); err == nil {
		host = ascii
	}
	if host == "" {
		return EmailAddress{}, ErrInvalidEmail
	}

	return EmailAddress{Account: account, Domain: host}, nil
}

// String 返回 account@domain 形式
func (e EmailAddress) String() string {
	return e.Account + "@" + e.Domain
}

// IsZero 判断地址是否为空值
func (e EmailAddress) IsZero() bool {
	return e.Account == "" && e.Domain == ""
}
