package domain

import (
	"strings"
	"time"
)

// BatchStatus 批量任务状态
type BatchStatus string

const (
	BatchPending       BatchStatus = "pending"         // 已创建，等待处理
	BatchProcessing    BatchStatus = "processing"      // 首轮验证进行中
	BatchGreyListCheck BatchStatus = "grey_list_check" // 等待灰名单重试
	BatchComplete      BatchStatus = "complete"        // 全部地址已出结果
)

// ProviderClass 目标邮件服务商分类，决定并发与间隔
type ProviderClass string

const (
	ProviderConservative ProviderClass = "conservative" // 大型服务商：逐个探测
	ProviderGeneral      ProviderClass = "general"      // 其他：有限并发
)

// DefaultConservativeMXSuffixes 需要保守探测的大型服务商 MX 后缀
var DefaultConservativeMXSuffixes = []string{
	"google.com",
	"googlemail.com",
	"outlook.com",
	"protection.outlook.com",
	"yahoodns.net",
	"icloud.com",
	"mail.ru",
	"yandex.net",
}

// ClassifyProvider 根据 MX 主机名推断服务商分类
func ClassifyProvider(mxHost string, conservativeSuffixes []string) ProviderClass {
	host := strings.TrimSuffix(strings.ToLower(mxHost), ".")
	if host == "" {
		return ProviderGeneral
	}
	for _, suffix := range conservativeSuffixes {
		suffix = strings.TrimPrefix(strings.ToLower(suffix), ".")
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return ProviderConservative
		}
	}
	return ProviderGeneral
}

// BatchJob 批量验证任务
//
// 由外部调用方创建，只有批量协调器会修改其状态。
type BatchJob struct {
	ID            string        `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID        string        `json:"userId,omitempty" gorm:"type:varchar(64);index"`
	Addresses     []string      `json:"addresses" gorm:"serializer:json;type:text"`
	ProviderClass ProviderClass `json:"providerClass,omitempty" gorm:"type:varchar(16)"`
	Status        BatchStatus   `json:"status" gorm:"type:varchar(16);index"`
	VerifyPlus    bool          `json:"verifyPlus"`
	PendingRetry  int           `json:"pendingRetry"` // 等待灰名单重试的地址数
	Summary       *BatchSummary `json:"summary,omitempty" gorm:"serializer:json;type:text"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// BatchSummary 批量任务的结果统计
type BatchSummary struct {
	JobID       string         `json:"jobId"`
	Total       int            `json:"total"`
	Valid       int            `json:"valid"`
	Invalid     int            `json:"invalid"`
	CatchAll    int            `json:"catchAll"`
	DoNotMail   int            `json:"doNotMail"`
	Spamtrap    int            `json:"spamtrap"`
	Unknown     int            `json:"unknown"`
	Greylisted  int            `json:"greylisted"`
	ByStatus    map[string]int `json:"byStatus"`
	BySubStatus map[string]int `json:"bySubStatus"`
}

// NewBatchSummary 创建空的统计
func NewBatchSummary(jobID string) *BatchSummary {
	return &BatchSummary{
		JobID:       jobID,
		ByStatus:    make(map[string]int),
		BySubStatus: make(map[string]int),
	}
}

// Add 将一个结果计入统计
//
// invalid_domain 归入 invalid；service_unavailable 归入 unknown；
// unknown/greylisted 单独计数。
func (s *BatchSummary) Add(r *ValidationResult) {
	if r == nil {
		return
	}
	s.Total++
	s.ByStatus[string(r.Status)]++
	if r.SubStatus != ReasonEmpty {
		s.BySubStatus[string(r.SubStatus)]++
	}

	switch r.Status {
	case StatusValid:
		s.Valid++
	case StatusInvalid, StatusInvalidDomain:
		s.Invalid++
	case StatusCatchAll:
		s.CatchAll++
	case StatusDoNotMail:
		s.DoNotMail++
	case StatusSpamtrap:
		s.Spamtrap++
	case StatusUnknown:
		if r.SubStatus == ReasonGreylisted {
			s.Greylisted++
		} else {
			s.Unknown++
		}
	default:
		s.Unknown++
	}
}

// Remove 撤销一次 Add 的计数，用于灰名单重试后替换结果
func (s *BatchSummary) Remove(r *ValidationResult) {
	if r == nil || s.Total == 0 {
		return
	}
	s.Total--
	decrement(s.ByStatus, string(r.Status))
	if r.SubStatus != ReasonEmpty {
		decrement(s.BySubStatus, string(r.SubStatus))
	}

	switch r.Status {
	case StatusValid:
		s.Valid--
	case StatusInvalid, StatusInvalidDomain:
		s.Invalid--
	case StatusCatchAll:
		s.CatchAll--
	case StatusDoNotMail:
		s.DoNotMail--
	case StatusSpamtrap:
		s.Spamtrap--
	case StatusUnknown:
		if r.SubStatus == ReasonGreylisted {
			s.Greylisted--
		} else {
			s.Unknown--
		}
	default:
		s.Unknown--
	}
}

// Clone 深拷贝统计
func (s *BatchSummary) Clone() *BatchSummary {
	if s == nil {
		return nil
	}
	out := *s
	out.ByStatus = make(map[string]int, len(s.ByStatus))
	for k, v := range s.ByStatus {
		out.ByStatus[k] = v
	}
	out.BySubStatus = make(map[string]int, len(s.BySubStatus))
	for k, v := range s.BySubStatus {
		out.BySubStatus[k] = v
	}
	return &out
}

func decrement(m map[string]int, key string) {
	if m[key] <= 1 {
		delete(m, key)
		return
	}
	m[key]--
}
