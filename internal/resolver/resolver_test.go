package resolver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailverify/backend/internal/resolver/resolvertest"
)

func newTestResolver(t *testing.T, zone ...string) (*Resolver, *resolvertest.Server) {
	t.Helper()
	srv := resolvertest.NewServer(t, zone...)
	r, err := New(Config{Nameservers: []string{srv.Addr}, Timeout: 2 * time.Second, Attempts: 1})
	require.NoError(t, err)
	return r, srv
}

func TestLookupMX(t *testing.T) {
	r, _ := newTestResolver(t,
		"example.com. 300 IN MX 20 mx2.example.com.",
		"example.com. 300 IN MX 10 mx1.example.com.",
		"nomx.example. 300 IN A 192.0.2.1",
	)
	ctx := context.Background()

	hosts, err := r.LookupMX(ctx, "example.com")
	require.NoError(t, err)
	require.Len(t, hosts, 2)
	assert.Equal(t, "mx1.example.com", hosts[0].Host)
	assert.Equal(t, uint16(10), hosts[0].Priority)
	assert.Equal(t, "mx2.example.com", hosts[1].Host)

	hosts, err = r.LookupMX(ctx, "nomx.example")
	require.NoError(t, err)
	assert.Empty(t, hosts)

	_, err = r.LookupMX(ctx, "missing.example")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLookupIP(t *testing.T) {
	r, _ := newTestResolver(t,
		"host.example. 300 IN A 192.0.2.10",
		"host.example. 300 IN AAAA 2001:db8::10",
		"v6only.example. 300 IN AAAA 2001:db8::20",
	)
	ctx := context.Background()

	ips, err := r.LookupIP(ctx, "host.example")
	require.NoError(t, err)
	require.Len(t, ips, 2)
	assert.Equal(t, "192.0.2.10", ips[0].String())
	assert.Equal(t, "2001:db8::10", ips[1].String())

	ips, err = r.LookupIP(ctx, "v6only.example")
	require.NoError(t, err)
	require.Len(t, ips, 1)

	_, err = r.LookupIP(ctx, "missing.example")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNewNormalizesNameservers(t *testing.T) {
	r, err := New(Config{Nameservers: []string{"127.0.0.1"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"127.0.0.1:53"}, r.nameservers)
	assert.Equal(t, 2, r.attempts)
}

func TestLookupHonoursContext(t *testing.T) {
	r, _ := newTestResolver(t, "example.com. 300 IN A 192.0.2.1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.LookupA(ctx, "example.com")
	assert.ErrorIs(t, err, context.Canceled)
}
