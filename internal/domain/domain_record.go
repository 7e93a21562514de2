package domain

import (
	"sort"
	"time"
)

// MXHost 单条 MX 记录
type MXHost struct {
	Host     string `json:"exchange"`
	Priority uint16 `json:"priority"`
}

// DomainRecord 域名的 MX 缓存
//
// 首次成功解析 MX 时创建；超过配置的天数后在下一次使用时刷新 MX，
// 本系统不会删除该记录。
type DomainRecord struct {
	Domain        string    `json:"domain" gorm:"primaryKey;type:varchar(255)"`
	MXHosts       []MXHost  `json:"mxHosts" gorm:"serializer:json;type:text"`
	IPAddress     string    `json:"ipAddress,omitempty" gorm:"type:varchar(64)"`
	AgeDays       *int      `json:"ageDays,omitempty"`
	LastCheckedAt time.Time `json:"lastCheckedAt"`
}

// NeedsRefresh 判断 MX 记录是否已超过刷新间隔
func (d *DomainRecord) NeedsRefresh(now time.Time, dayGap int) bool {
	return len(d.MXHosts) == 0 || daysBetween(d.LastCheckedAt, now) >= dayGap
}

// SortMXHosts 按优先级升序排列 MX 记录（优先级相同保持原顺序）
func SortMXHosts(hosts []MXHost) {
	sort.SliceStable(hosts, func(i, j int) bool {
		return hosts[i].Priority < hosts[j].Priority
	})
}

// PreferredMXHosts 返回优先级最高（数值最小）的一组 MX 主机
func PreferredMXHosts(hosts []MXHost) []MXHost {
	if len(hosts) == 0 {
		return nil
	}
	best := hosts[0].Priority
	for _, h := range hosts[1:] {
		if h.Priority < best {
			best = h.Priority
		}
	}
	out := make([]MXHost, 0, len(hosts))
	for _, h := range hosts {
		if h.Priority == best {
			out = append(out, h)
		}
	}
	return out
}

// DomainError 错误域名记录的最近一次故障
type DomainError struct {
	Status    EmailStatus `json:"status" gorm:"type:varchar(32)"`
	SubStatus EmailReason `json:"subStatus" gorm:"type:varchar(64)"`
}

// ErrorDomainRecord 域名级故障的冷却记录
type ErrorDomainRecord struct {
	Domain     string      `json:"domain" gorm:"primaryKey;type:varchar(255)"`
	LastError  DomainError `json:"lastError" gorm:"embedded;embeddedPrefix:error_"`
	RecordedAt time.Time   `json:"recordedAt"`
}

// CooldownPolicy 不同故障类型的冷却天数
type CooldownPolicy struct {
	SpamtrapDays int // 命中黑名单
	CatchAllDays int // catch-all 域名
	DefaultDays  int // 其他域名级故障
}

// DefaultCooldownPolicy 默认冷却策略
func DefaultCooldownPolicy() CooldownPolicy {
	return CooldownPolicy{
		SpamtrapDays: 100,
		CatchAllDays: 100,
		DefaultDays:  180,
	}
}

// InCooldown 判断记录的故障是否仍处于冷却期
func (e *ErrorDomainRecord) InCooldown(now time.Time, policy CooldownPolicy) bool {
	days := daysBetween(e.RecordedAt, now)
	switch e.LastError.Status {
	case StatusSpamtrap:
		return days < policy.SpamtrapDays
	case StatusCatchAll:
		return days < policy.CatchAllDays
	default:
		return days < policy.DefaultDays
	}
}
