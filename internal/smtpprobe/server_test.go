package smtpprobe

import (
	"bufio"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"io"
	"math/big"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/stretchr/testify/require"
)

// fakeBackend 测试用 MX 服务器的后端
type fakeBackend struct {
	mu       sync.Mutex
	mailbox  map[string]error // 已知地址及其 RCPT 响应（nil 表示接受）
	catchAll bool
	rcpts    []string
}

func (b *fakeBackend) NewSession(_ *gosmtp.Conn) (gosmtp.Session, error) {
	return &fakeSession{backend: b}, nil
}

func (b *fakeBackend) recipients() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.rcpts))
	copy(out, b.rcpts)
	return out
}

type fakeSession struct {
	backend *fakeBackend
}

func (s *fakeSession) Mail(from string, _ *gosmtp.MailOptions) error {
	return nil
}

func (s *fakeSession) Rcpt(to string, _ *gosmtp.RcptOptions) error {
	b := s.backend
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rcpts = append(b.rcpts, to)
	if err, ok := b.mailbox[to]; ok {
		return err
	}
	if b.catchAll {
		return nil
	}
	return &gosmtp.SMTPError{
		Code:         550,
		EnhancedCode: gosmtp.EnhancedCode{5, 1, 1},
		Message:      "No such user here",
	}
}

func (s *fakeSession) Data(r io.Reader) error {
	_, err := io.Copy(io.Discard, r)
	return err
}

func (s *fakeSession) Reset() {}

func (s *fakeSession) Logout() error {
	return nil
}

// startFakeMX 在本地随机端口启动 go-smtp 服务器，返回端口
func startFakeMX(t *testing.T, be *fakeBackend, tlsConfig *tls.Config) int {
	t.Helper()

	srv := gosmtp.NewServer(be)
	srv.Domain = "mx.test"
	srv.ReadTimeout = 5 * time.Second
	srv.WriteTimeout = 5 * time.Second
	srv.TLSConfig = tlsConfig

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = srv.Serve(l) }()
	t.Cleanup(func() { _ = srv.Close() })

	return l.Addr().(*net.TCPAddr).Port
}

// selfSignedTLS 生成自签名证书
func selfSignedTLS(t *testing.T) *tls.Config {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "mx.test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		DNSNames:     []string{"mx.test"},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	return &tls.Config{
		Certificates: []tls.Certificate{{Certificate: [][]byte{der}, PrivateKey: key}},
	}
}

// scriptConn 手写脚本服务器的一端
type scriptConn struct {
	conn     net.Conn
	r        *bufio.Reader
	mu       *sync.Mutex
	commands *[]string
}

func (c *scriptConn) send(lines ...string) {
	for _, line := range lines {
		_, _ = c.conn.Write([]byte(line + "\r\n"))
	}
}

// expect 读取客户端的一条命令并记录
func (c *scriptConn) expect() string {
	_ = c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	line, err := c.r.ReadString('\n')
	if err != nil {
		return ""
	}
	line = strings.TrimRight(line, "\r\n")
	c.mu.Lock()
	*c.commands = append(*c.commands, line)
	c.mu.Unlock()
	return line
}

// scriptServer 为一次连接执行脚本的本地服务器
type scriptServer struct {
	port     int
	mu       sync.Mutex
	commands []string
	done     chan struct{}
}

func startScriptServer(t *testing.T, script func(c *scriptConn)) *scriptServer {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	s := &scriptServer{
		port: l.Addr().(*net.TCPAddr).Port,
		done: make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		script(&scriptConn{conn: conn, r: bufio.NewReader(conn), mu: &s.mu, commands: &s.commands})
	}()
	return s
}

// received 等待脚本结束后返回客户端发送的全部命令
func (s *scriptServer) received(t *testing.T) []string {
	t.Helper()
	select {
	case <-s.done:
	case <-time.After(5 * time.Second):
		t.Fatal("script server did not finish")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.commands))
	copy(out, s.commands)
	return out
}

// quitWhenAsked 读取剩余命令直到 QUIT
func quitWhenAsked(c *scriptConn) {
	for {
		cmd := c.expect()
		if cmd == "" {
			return
		}
		if strings.EqualFold(cmd, "QUIT") {
			c.send("221 bye")
			return
		}
		c.send("250 ok")
	}
}
