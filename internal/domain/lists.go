package domain

import "strings"

// 角色型本地部分（通常由多人共用，不适合营销发送）
var roleAccounts = []string{
	// 通用
	"admin", "administrator", "root", "system", "hostmaster", "postmaster", "webmaster",
	// 客服
	"support", "help", "helpdesk", "desk", "service", "customercare", "customerservice", "servicedesk",
	// 销售与市场
	"sales", "marketing", "advertising", "promotion", "bizdev", "business", "partners",
	// 财务
	"billing", "payments", "invoice", "accounts", "accounting", "finance", "receivables",
	// 人事
	"hr", "jobs", "careers", "recruit", "recruitment",
	// 安全与运维
	"security", "abuse", "alerts", "infra", "it", "noc", "network", "tech", "ops", "operations",
	"sysadmin", "cloud", "datacenter",
	// 法务
	"legal", "compliance", "law", "dmca", "privacy", "terms", "gdpr", "legalteam",
	// 通知
	"info", "information", "newsletter", "updates", "notices", "announce", "announcement",
	// 媒体
	"media", "press", "pr", "publicrelations", "news", "editor", "editorial", "pressrelease", "broadcast",
	// 公共信箱
	"contact", "office", "management", "team", "all", "everyone", "no-reply", "noreply", "donotreply",
	// 管理层
	"ceo", "cto", "cfo", "coo", "founder", "owner", "president",
	// 研发
	"engineering", "developers", "dev", "qa", "design", "ux",
	"supportteam", "salesteam", "marketingteam", "logistics", "supplychain", "warehouse",
	"customer", "feedback", "suggestions", "reviews", "events", "register", "registration", "rsvp",
	"product", "services", "supportservices", "admissions", "enquiries", "enroll", "faculty", "research",
	"claims", "policy", "shipping", "tracking", "community", "membership", "club", "society",
}

// 常见免费邮箱服务商，同时作为拼写检测的参照列表
var freeEmailProviders = []string{
	"gmail.com", "googlemail.com", "yahoo.com", "yahoo.co.uk", "yahoo.co.in", "ymail.com",
	"rocketmail.com", "hotmail.com", "hotmail.co.uk", "outlook.com", "live.com", "msn.com",
	"aol.com", "icloud.com", "me.com", "mac.com", "mail.com", "gmx.com", "gmx.net", "gmx.de",
	"web.de", "yandex.com", "yandex.ru", "mail.ru", "inbox.ru", "list.ru", "bk.ru",
	"protonmail.com", "proton.me", "zoho.com", "zohomail.com", "fastmail.com", "hushmail.com",
	"tutanota.com", "qq.com", "163.com", "126.com", "sina.com", "naver.com", "daum.net",
	"rediffmail.com", "libero.it", "virgilio.it", "orange.fr", "laposte.net", "free.fr",
	"t-online.de", "comcast.net", "verizon.net", "att.net", "sbcglobal.net", "btinternet.com",
}

// 一次性（临时）邮箱域名
var disposableDomains = []string{
	"mailinator.com", "guerrillamail.com", "guerrillamail.net", "sharklasers.com", "10minutemail.com",
	"10minutemail.net", "tempmail.com", "temp-mail.org", "throwawaymail.com", "yopmail.com",
	"yopmail.net", "trashmail.com", "trashmail.net", "getnada.com", "maildrop.cc", "dispostable.com",
	"fakeinbox.com", "mintemail.com", "mohmal.com", "emailondeck.com", "spamgourmet.com",
	"mailnesia.com", "mytemp.email", "tempail.com", "burnermail.io", "tempr.email", "discard.email",
	"moakt.com", "getairmail.com", "mailcatch.com", "inboxkitten.com", "spambox.us", "tempinbox.com",
}

// Lists 验证用到的参考名单
type Lists struct {
	roles      map[string]struct{}
	free       map[string]struct{}
	disposable map[string]struct{}
}

// NewLists 使用内置名单创建 Lists，可通过 extra 追加一次性域名
func NewLists(extraDisposable ...string) *Lists {
	l := &Lists{
		roles:      toSet(roleAccounts),
		free:       toSet(freeEmailProviders),
		disposable: toSet(disposableDomains),
	}
	for _, d := range extraDisposable {
		if d = normalize(d); d != "" {
			l.disposable[d] = struct{}{}
		}
	}
	return l
}

// IsRoleAccount 判断本地部分是否为角色型账号
func (l *Lists) IsRoleAccount(account string) bool {
	_, ok := l.roles[normalize(account)]
	return ok
}

// IsFreeProvider 判断域名是否为免费邮箱服务商
func (l *Lists) IsFreeProvider(domain string) bool {
	_, ok := l.free[normalize(domain)]
	return ok
}

// IsDisposable 判断域名是否为一次性邮箱
func (l *Lists) IsDisposable(domain string) bool {
	_, ok := l.disposable[normalize(domain)]
	return ok
}

// FreeProviders 返回免费邮箱服务商列表的副本
func FreeProviders() []string {
	out := make([]string, len(freeEmailProviders))
	copy(out, freeEmailProviders)
	return out
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
