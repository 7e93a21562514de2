package resolver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"

	"mailverify/backend/internal/domain"
)

// DNS 查询相关错误
var (
	ErrNotFound      = errors.New("dns: name not found")
	ErrNoNameservers = errors.New("dns: no nameservers configured")
	ErrQueryFailed   = errors.New("dns: query failed")
)

// Config 解析器配置
type Config struct {
	Nameservers []string      // host:port，为空时读取 /etc/resolv.conf
	Timeout     time.Duration // 单次查询超时
	Attempts    int           // 每个服务器的尝试次数
}

// Resolver 基于 miekg/dns 的 DNS 解析器
//
// 只实现验证流程需要的 MX、A、AAAA 查询。
type Resolver struct {
	client      *dns.Client
	nameservers []string
	attempts    int
}

// New 创建解析器
func New(cfg Config) (*Resolver, error) {
	servers := cfg.Nameservers
	if len(servers) == 0 {
		conf, err := dns.ClientConfigFromFile("/etc/resolv.conf")
		if err == nil {
			for _, s := range conf.Servers {
				servers = append(servers, net.JoinHostPort(s, conf.Port))
			}
		}
	}
	if len(servers) == 0 {
		return nil, ErrNoNameservers
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	attempts := cfg.Attempts
	if attempts <= 0 {
		attempts = 2
	}

	normalized := make([]string, 0, len(servers))
	for _, s := range servers {
		if _, _, err := net.SplitHostPort(s); err != nil {
			s = net.JoinHostPort(s, "53")
		}
		normalized = append(normalized, s)
	}

	return &Resolver{
		client:      &dns.Client{Net: "udp", Timeout: timeout},
		nameservers: normalized,
		attempts:    attempts,
	}, nil
}

// LookupMX 查询 MX 记录，按优先级升序返回
//
// 域名不存在时返回 ErrNotFound；域名存在但没有 MX 时返回空切片。
func (r *Resolver) LookupMX(ctx context.Context, name string) ([]domain.MXHost, error) {
	msg, err := r.query(ctx, name, dns.TypeMX)
	if err != nil {
		return nil, err
	}

	hosts := make([]domain.MXHost, 0, len(msg.Answer))
	for _, rr := range msg.Answer {
		mx, ok := rr.(*dns.MX)
		if !ok {
			continue
		}
		host := strings.TrimSuffix(mx.Mx, ".")
		if host == "" {
			// RFC 7505 null MX
			continue
		}
		hosts = append(hosts, domain.MXHost{Host: host, Priority: mx.Preference})
	}
	domain.SortMXHosts(hosts)
	return hosts, nil
}

// LookupA 查询 A 记录
func (r *Resolver) LookupA(ctx context.Context, name string) ([]net.IP, error) {
	msg, err := r.query(ctx, name, dns.TypeA)
	if err != nil {
		return nil, err
	}

	ips := make([]net.IP, 0, len(msg.Answer))
	for _, rr := range msg.Answer {
		if a, ok := rr.(*dns.A); ok {
			ips = append(ips, a.A)
		}
	}
	return ips, nil
}

// LookupAAAA 查询 AAAA 记录
func (r *Resolver) LookupAAAA(ctx context.Context, name string) ([]net.IP, error) {
	msg, err := r.query(ctx, name, dns.TypeAAAA)
	if err != nil {
		return nil, err
	}

	ips := make([]net.IP, 0, len(msg.Answer))
	for _, rr := range msg.Answer {
		if aaaa, ok := rr.(*dns.AAAA); ok {
			ips = append(ips, aaaa.AAAA)
		}
	}
	return ips, nil
}

// LookupIP 同时查询 A 与 AAAA，任一成功即返回
func (r *Resolver) LookupIP(ctx context.Context, name string) ([]net.IP, error) {
	v4, errA := r.LookupA(ctx, name)
	v6, errAAAA := r.LookupAAAA(ctx, name)

	ips := append(v4, v6...)
	if len(ips) > 0 {
		return ips, nil
	}
	if errA != nil {
		return nil, errA
	}
	return nil, errAAAA
}

// query 依次向各服务器发送查询，NXDOMAIN 直接返回 ErrNotFound
func (r *Resolver) query(ctx context.Context, name string, qtype uint16) (*dns.Msg, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), qtype)
	m.RecursionDesired = true

	var lastErr error
	for _, server := range r.nameservers {
		for i := 0; i < r.attempts; i++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			in, _, err := r.client.ExchangeContext(ctx, m, server)
			if err != nil {
				lastErr = err
				continue
			}
			if in.Truncated {
				tcp := &dns.Client{Net: "tcp", Timeout: r.client.Timeout}
				if retry, _, err := tcp.ExchangeContext(ctx, m, server); err == nil {
					in = retry
				}
			}

			switch in.Rcode {
			case dns.RcodeSuccess:
				return in, nil
			case dns.RcodeNameError:
				return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
			default:
				lastErr = fmt.Errorf("%w: %s rcode=%s", ErrQueryFailed, name, dns.RcodeToString[in.Rcode])
			}
		}
	}
	return nil, lastErr
}
