package dnsbl

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mailverify/backend/internal/cache"
	"mailverify/backend/internal/monitoring"
	"mailverify/backend/internal/resolver"
)

// DefaultZones 默认查询的 DNSBL 区域
var DefaultZones = []string{
	"zen.spamhaus.org",
	"bl.spamcop.net",
	"dnsbl.sorbs.net",
	"b.barracudacentral.org",
}

// Lookuper DNSBL 需要的 DNS 查询能力
type Lookuper interface {
	LookupIP(ctx context.Context, name string) ([]net.IP, error)
	LookupA(ctx context.Context, name string) ([]net.IP, error)
}

// Listing 黑名单查询结果
type Listing struct {
	Listed bool   `json:"listed"`
	IP     string `json:"ip,omitempty"`
	Zone   string `json:"zone,omitempty"`
	Answer string `json:"answer,omitempty"`
}

// Config 黑名单检查配置
type Config struct {
	Zones      []string
	Timeout    time.Duration // 单个域名检查的总超时
	VerdictTTL time.Duration // 判定结果缓存时间，0 表示不缓存
}

// Checker 域名黑名单检查
type Checker struct {
	lookup  Lookuper
	zones   []string
	timeout time.Duration
	cache   *cache.LocalCache[Listing]
	metrics *monitoring.Metrics
	logger  *zap.Logger
}

// NewChecker 创建黑名单检查器
func NewChecker(lookup Lookuper, cfg Config, metrics *monitoring.Metrics, logger *zap.Logger) *Checker {
	zones := cfg.Zones
	if len(zones) == 0 {
		zones = DefaultZones
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c := &Checker{
		lookup:  lookup,
		zones:   zones,
		timeout: timeout,
		metrics: metrics,
		logger:  logger,
	}
	if cfg.VerdictTTL > 0 {
		c.cache = cache.NewLocalCache[Listing](10000, cfg.VerdictTTL)
	}
	return c
}

// Close 释放缓存的后台清理协程
func (c *Checker) Close() {
	if c.cache != nil {
		c.cache.Close()
	}
}

// IsListed 检查域名的任一 IP 是否出现在任一区域中
//
// 所有 IP × 区域组合并发查询，首个命中即取消其余查询。
// 域名无法解析出 IP 时视为未列入，不返回错误。
func (c *Checker) IsListed(ctx context.Context, domainName string) (Listing, error) {
	domainName = strings.ToLower(strings.TrimSuffix(domainName, "."))
	if c.cache != nil {
		if v, ok := c.cache.Get(domainName); ok {
			return v, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ips, err := c.lookup.LookupIP(ctx, domainName)
	if err != nil || len(ips) == 0 {
		c.logger.Debug("dnsbl skipped, domain has no address",
			zap.String("domain", domainName),
			zap.Error(err),
		)
		return Listing{}, nil
	}

	listing, err := c.CheckIPs(ctx, ips)
	if err != nil {
		return Listing{}, err
	}

	if c.cache != nil {
		c.cache.Set(domainName, listing, 0)
	}
	if listing.Listed {
		c.logger.Info("domain listed on dnsbl",
			zap.String("domain", domainName),
			zap.String("ip", listing.IP),
			zap.String("zone", listing.Zone),
		)
	}
	return listing, nil
}

// CheckIPs 对给定 IP 执行区域查询
func (c *Checker) CheckIPs(ctx context.Context, ips []net.IP) (Listing, error) {
	g, gctx := errgroup.WithContext(ctx)
	hits := make(chan Listing, 1)

	for _, ip := range ips {
		reversed := ReverseIP(ip.String())
		for _, zone := range c.zones {
			ip, zone := ip, zone
			g.Go(func() error {
				answers, err := c.lookup.LookupA(gctx, reversed+"."+zone)
				switch {
				case errors.Is(err, resolver.ErrNotFound):
					c.observe(zone, "not_listed")
					return nil
				case err != nil:
					if gctx.Err() != nil {
						return nil
					}
					c.observe(zone, "error")
					c.logger.Debug("dnsbl lookup failed",
						zap.String("zone", zone),
						zap.String("ip", ip.String()),
						zap.Error(err),
					)
					return nil
				case len(answers) == 0:
					c.observe(zone, "not_listed")
					return nil
				}

				c.observe(zone, "listed")
				select {
				case hits <- Listing{Listed: true, IP: ip.String(), Zone: zone, Answer: answers[0].String()}:
				default:
				}
				// 返回哨兵错误以取消其余查询
				return errListed
			})
		}
	}

	err := g.Wait()
	select {
	case hit := <-hits:
		return hit, nil
	default:
	}
	if err != nil && !errors.Is(err, errListed) {
		return Listing{}, err
	}
	return Listing{}, nil
}

var errListed = errors.New("dnsbl: listed")

func (c *Checker) observe(zone, result string) {
	if c.metrics != nil {
		c.metrics.DNSBLLookups.WithLabelValues(zone, result).Inc()
	}
}
