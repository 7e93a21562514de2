package dnsbl

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mailverify/backend/internal/resolver"
	"mailverify/backend/internal/resolver/resolvertest"
)

func TestReverseIP(t *testing.T) {
	assert.Equal(t, "1.1.168.192", ReverseIP("192.168.1.1"))
	assert.Equal(t, "4.3.2.1", ReverseIP("1.2.3.4"))
	assert.Equal(t, "not-an-ip", ReverseIP("not-an-ip"))

	reversed := ReverseIP("2001:db8::1")
	assert.Equal(t, "1.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.8.b.d.0.1.0.0.2", reversed)
}

func TestExpandIPv6(t *testing.T) {
	assert.Equal(t, "0000:0000:0000:0000:0000:0000:0000:0001", ExpandIPv6("::1"))
	assert.Equal(t, "2001:0db8:0000:0000:0000:0000:0000:0001", ExpandIPv6("2001:db8::1"))
	// 内嵌 IPv4 转换为两组十六进制
	assert.Equal(t, "0000:0000:0000:0000:0000:ffff:c000:0201", ExpandIPv6("::ffff:192.0.2.1"))
	assert.Equal(t, "", ExpandIPv6("192.0.2.1"))
}

func newChecker(t *testing.T, srv *resolvertest.Server, ttl time.Duration) *Checker {
	t.Helper()
	r, err := resolver.New(resolver.Config{Nameservers: []string{srv.Addr}, Timeout: time.Second, Attempts: 1})
	require.NoError(t, err)

	c := NewChecker(r, Config{
		Zones:      []string{"bl.test", "zen.test"},
		Timeout:    3 * time.Second,
		VerdictTTL: ttl,
	}, nil, zap.NewNop())
	t.Cleanup(c.Close)
	return c
}

func TestIsListed(t *testing.T) {
	srv := resolvertest.NewServer(t,
		"clean.example. 300 IN A 192.0.2.10",
		"bad.example. 300 IN A 192.0.2.66",
		"66.2.0.192.zen.test. 300 IN A 127.0.0.2",
		"bad6.example. 300 IN AAAA 2001:db8::1",
		"1.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.8.b.d.0.1.0.0.2.bl.test. 300 IN A 127.0.0.4",
	)
	c := newChecker(t, srv, 0)
	ctx := context.Background()

	t.Run("未列入", func(t *testing.T) {
		listing, err := c.IsListed(ctx, "clean.example")
		require.NoError(t, err)
		assert.False(t, listing.Listed)
	})

	t.Run("IPv4 命中", func(t *testing.T) {
		listing, err := c.IsListed(ctx, "bad.example")
		require.NoError(t, err)
		assert.True(t, listing.Listed)
		assert.Equal(t, "zen.test", listing.Zone)
		assert.Equal(t, "192.0.2.66", listing.IP)
		assert.Equal(t, "127.0.0.2", listing.Answer)
	})

	t.Run("IPv6 命中", func(t *testing.T) {
		listing, err := c.IsListed(ctx, "bad6.example")
		require.NoError(t, err)
		assert.True(t, listing.Listed)
		assert.Equal(t, "bl.test", listing.Zone)
	})

	t.Run("无法解析的域名视为未列入", func(t *testing.T) {
		listing, err := c.IsListed(ctx, "missing.example")
		require.NoError(t, err)
		assert.False(t, listing.Listed)
	})
}

func TestIsListedUsesVerdictCache(t *testing.T) {
	srv := resolvertest.NewServer(t,
		"bad.example. 300 IN A 192.0.2.66",
		"66.2.0.192.bl.test. 300 IN A 127.0.0.2",
	)
	c := newChecker(t, srv, time.Minute)
	ctx := context.Background()

	first, err := c.IsListed(ctx, "bad.example")
	require.NoError(t, err)
	require.True(t, first.Listed)

	queries := srv.Queries()
	second, err := c.IsListed(ctx, "BAD.example.")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, queries, srv.Queries())
}

type fakeLookup struct {
	ips []net.IP
}

func (f *fakeLookup) LookupIP(ctx context.Context, name string) ([]net.IP, error) {
	return f.ips, nil
}

func (f *fakeLookup) LookupA(ctx context.Context, name string) ([]net.IP, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestIsListedTimeoutIsNotListed(t *testing.T) {
	lookup := &fakeLookup{ips: []net.IP{net.ParseIP("192.0.2.1")}}
	c := NewChecker(lookup, Config{Zones: []string{"bl.test"}, Timeout: 50 * time.Millisecond}, nil, zap.NewNop())

	listing, err := c.IsListed(context.Background(), "slow.example")
	require.NoError(t, err)
	assert.False(t, listing.Listed)
}
