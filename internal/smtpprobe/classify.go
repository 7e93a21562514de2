package smtpprobe

import (
	"strings"

	"mailverify/backend/internal/domain"
)

// DefaultBlockPhrases 回复文本中表示“发信 IP 被拒绝”的常见短语（大小写不敏感）
var DefaultBlockPhrases = []string{
	"banned",
	"blocked",
	"blocklist",
	"block list",
	"blacklist",
	"black list",
	"spamhaus",
	"spamcop",
	"barracuda",
	"sorbs",
	"poor reputation",
	"bad reputation",
	"not allowed to send",
	"access denied",
	"client host rejected",
	"is listed",
}

// Verdict 单个回复的分类结果
type Verdict struct {
	Status    domain.EmailStatus
	Reason    domain.EmailReason
	Retryable bool
	Known     bool // 是否命中了明确的分类规则
}

// Classifier 按回复码分类 SMTP 回复
type Classifier struct {
	blockPhrases []string
}

// NewClassifier 创建分类器，phrases 为空时使用默认短语
func NewClassifier(phrases []string) *Classifier {
	if len(phrases) == 0 {
		phrases = DefaultBlockPhrases
	}
	lowered := make([]string, 0, len(phrases))
	for _, p := range phrases {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			lowered = append(lowered, p)
		}
	}
	return &Classifier{blockPhrases: lowered}
}

// Classify 根据三位回复码（与文本无关）给出分类
//
// 只有 5xx 的“邮箱不存在”类回复会额外检查文本中的封禁短语。
func (c *Classifier) Classify(code int, text string) Verdict {
	switch code {
	case 250, 251:
		return Verdict{Status: domain.StatusValid, Reason: domain.ReasonEmpty, Known: true}
	case 421, 450, 451, 452:
		return Verdict{Status: domain.StatusUnknown, Reason: domain.ReasonGreylisted, Retryable: true, Known: true}
	case 500, 505, 550, 551, 553, 556:
		if c.IsBlockMessage(text) {
			return Verdict{Status: domain.StatusServiceUnavailable, Reason: domain.ReasonIPBlocked, Known: true}
		}
		return Verdict{Status: domain.StatusInvalid, Reason: domain.ReasonMailboxNotFound, Known: true}
	case 554:
		return Verdict{Status: domain.StatusServiceUnavailable, Reason: domain.ReasonIPBlocked, Known: true}
	}

	switch code / 100 {
	case 4:
		return Verdict{Status: domain.StatusUnknown, Reason: domain.ReasonGreylisted, Retryable: true}
	case 5:
		return Verdict{Status: domain.StatusInvalid, Reason: domain.ReasonMailboxNotFound}
	default:
		return Verdict{Status: domain.StatusUnknown, Reason: domain.ReasonUnverifiableEmail}
	}
}

// IsBlockMessage 判断回复文本是否包含封禁短语
func (c *Classifier) IsBlockMessage(text string) bool {
	lowered := strings.ToLower(text)
	for _, p := range c.blockPhrases {
		if strings.Contains(lowered, p) {
			return true
		}
	}
	return false
}
