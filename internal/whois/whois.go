package whois

import (
	"bufio"
	"context"
	"errors"
	"strings"
	"time"

	likexian "github.com/likexian/whois"
)

var (
	// ErrCreationDateNotFound WHOIS 响应中没有注册时间
	ErrCreationDateNotFound = errors.New("whois: creation date not found")
	// ErrLookupFailed WHOIS 查询失败
	ErrLookupFailed = errors.New("whois: lookup failed")
)

// creationKeys 各注册局表示注册时间的字段名（小写）
var creationKeys = []string{
	"creation date",
	"created",
	"created on",
	"registered on",
	"registration time",
	"domain registration date",
	"registered",
	"domain record activated",
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05.0Z",
	"2006-01-02T15:04:05.000Z",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05 MST",
	"2006-01-02",
	"2006.01.02",
	"2006/01/02",
	"02-Jan-2006",
	"02.01.2006",
	"02/01/2006",
	"January 02 2006",
	"Mon Jan 2 15:04:05 MST 2006",
}

// Client 域名注册信息查询
type Client struct {
	lookup func(domain string) (string, error)
	now    func() time.Time
}

// NewClient 创建 WHOIS 客户端
func NewClient(timeout time.Duration) *Client {
	c := likexian.NewClient()
	if timeout > 0 {
		c.SetTimeout(timeout)
	}
	return &Client{
		lookup: func(domain string) (string, error) { return c.Whois(domain) },
		now:    time.Now,
	}
}

// DomainAge 查询域名注册至今的天数
func (c *Client) DomainAge(ctx context.Context, domain string) (int, error) {
	type result struct {
		raw string
		err error
	}
	done := make(chan result, 1)
	go func() {
		raw, err := c.lookup(domain)
		done <- result{raw, err}
	}()

	var res result
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case res = <-done:
	}
	if res.err != nil {
		return 0, errors.Join(ErrLookupFailed, res.err)
	}

	created, err := ParseCreationDate(res.raw)
	if err != nil {
		return 0, err
	}
	age := int(c.now().Sub(created) / (24 * time.Hour))
	if age < 0 {
		age = 0
	}
	return age, nil
}

// ParseCreationDate 从原始 WHOIS 文本中提取注册时间
func ParseCreationDate(raw string) (time.Time, error) {
	scanner := bufio.NewScanner(strings.NewReader(raw))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "%") || strings.HasPrefix(line, "#") {
			continue
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		if !isCreationKey(name) {
			continue
		}
		if t, ok := parseDate(value); ok {
			return t, nil
		}
	}
	return time.Time{}, ErrCreationDateNotFound
}

func isCreationKey(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, k := range creationKeys {
		if name == k {
			return true
		}
	}
	return false
}

func parseDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	// "2001-05-12 (YYYY-MM-DD)" 之类的注释
	if i := strings.Index(value, " ("); i > 0 {
		value = value[:i]
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
