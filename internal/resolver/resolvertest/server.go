// Package resolvertest 提供测试用的本地 DNS 服务器
package resolvertest

import (
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/miekg/dns"
)

// Server 基于 miekg/dns 的内存 DNS 服务器
//
// 未登记的名称返回 NXDOMAIN；名称存在但没有对应类型的记录时返回空应答。
type Server struct {
	Addr    string
	mu      sync.RWMutex
	records map[string][]dns.RR
	queries atomic.Int64
	srv     *dns.Server
}

// NewServer 在 127.0.0.1 的随机 UDP 端口启动服务器，测试结束时自动关闭
func NewServer(t testing.TB, zone ...string) *Server {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen udp: %v", err)
	}

	s := &Server{
		Addr:    pc.LocalAddr().String(),
		records: make(map[string][]dns.RR),
	}
	for _, line := range zone {
		s.Add(t, line)
	}

	started := make(chan struct{})
	s.srv = &dns.Server{
		PacketConn:        pc,
		Handler:           dns.HandlerFunc(s.serve),
		NotifyStartedFunc: func() { close(started) },
	}
	go func() { _ = s.srv.ActivateAndServe() }()
	<-started

	t.Cleanup(func() { _ = s.srv.Shutdown() })
	return s
}

// Add 以 zone 文件格式登记一条记录，如 "example.com. 300 IN MX 10 mx.example.com."
func (s *Server) Add(t testing.TB, line string) {
	t.Helper()

	rr, err := dns.NewRR(line)
	if err != nil {
		t.Fatalf("parse rr %q: %v", line, err)
	}
	name := strings.ToLower(rr.Header().Name)

	s.mu.Lock()
	s.records[name] = append(s.records[name], rr)
	s.mu.Unlock()
}

// Queries 返回服务器收到的查询次数
func (s *Server) Queries() int64 {
	return s.queries.Load()
}

func (s *Server) serve(w dns.ResponseWriter, r *dns.Msg) {
	s.queries.Add(1)

	m := new(dns.Msg)
	m.SetReply(r)

	if len(r.Question) == 0 {
		m.SetRcode(r, dns.RcodeFormatError)
		_ = w.WriteMsg(m)
		return
	}

	q := r.Question[0]
	s.mu.RLock()
	rrs, ok := s.records[strings.ToLower(q.Name)]
	s.mu.RUnlock()

	if !ok {
		m.SetRcode(r, dns.RcodeNameError)
		_ = w.WriteMsg(m)
		return
	}

	for _, rr := range rrs {
		if rr.Header().Rrtype == q.Qtype {
			m.Answer = append(m.Answer, rr)
		}
	}
	_ = w.WriteMsg(m)
}
