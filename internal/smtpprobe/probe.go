package smtpprobe

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mailverify/backend/internal/domain"
)

// Config 探测配置
type Config struct {
	HeloName         string        // EHLO 使用的客户端名称
	MailFrom         string        // MAIL FROM 使用的探测发件人
	Port             int           // 目标端口，默认 25
	ConnectTimeout   time.Duration // TCP 建连超时
	CommandTimeout   time.Duration // 每条命令的收发超时
	SlowThreshold    time.Duration // EHLO 往返超过该值时视为慢服务器
	QuiescenceWindow time.Duration // 慢服务器每次读取后额外等待的时间
	QuitTimeout      time.Duration // 发送 QUIT 后等待回复的时间
	DisableStartTLS  bool
	BlockPhrases     []string
}

// withDefaults 补全未配置的字段
func (c Config) withDefaults() Config {
	if c.HeloName == "" {
		c.HeloName = "localhost"
	}
	if c.Port <= 0 {
		c.Port = 25
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = 5 * time.Second
	}
	if c.QuitTimeout <= 0 {
		c.QuitTimeout = 2 * time.Second
	}
	return c
}

// Options 单次探测的选项
type Options struct {
	SkipCatchAll bool // 跳过 catch-all 预检（免费邮箱）
}

// Outcome 一次探测的分类结果
type Outcome struct {
	Status          domain.EmailStatus
	Reason          domain.EmailReason
	Code            int
	Retryable       bool
	CatchAll        bool
	CatchAllChecked bool   // 是否完成了 catch-all 预检且结论为否
	Message         string // 决定结果的那条回复的文本
	Diagnostic      string // 传输层错误的原始信息
	State           State  // 会话结束时所处的状态
	Slow            bool
	TLS             bool
	Duration        time.Duration
}

// IsTimeout 判断结果是否为超时
func (o Outcome) IsTimeout() bool {
	return o.Reason == domain.ReasonSMTPTimeout
}

// Dialer 建立 TCP 连接
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Prober SMTP 探测器
//
// 每次 Probe 独占一个连接，所有退出路径都会发送 QUIT 并关闭连接。
type Prober struct {
	cfg        Config
	dialer     Dialer
	classifier *Classifier
	localPart  func() string
	logger     *zap.Logger
}

// Option 探测器选项
type Option func(*Prober)

// WithDialer 替换默认的 net.Dialer
func WithDialer(d Dialer) Option {
	return func(p *Prober) { p.dialer = d }
}

// WithCatchAllLocalPart 指定 catch-all 预检使用的本地部分生成函数
func WithCatchAllLocalPart(fn func() string) Option {
	return func(p *Prober) { p.localPart = fn }
}

// NewProber 创建探测器
func NewProber(cfg Config, logger *zap.Logger, opts ...Option) *Prober {
	cfg = cfg.withDefaults()
	p := &Prober{
		cfg:        cfg,
		dialer:     &net.Dialer{Timeout: cfg.ConnectTimeout},
		classifier: NewClassifier(cfg.BlockPhrases),
		localPart:  randomLocalPart,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Classifier 返回探测器使用的分类器
func (p *Prober) Classifier() *Classifier {
	return p.classifier
}

// Probe 对一个 MX 主机探测一个地址
//
// 超时不会返回错误，而是得到 unknown/smtp_connection_timeout 结果。
func (p *Prober) Probe(ctx context.Context, mxHost string, addr domain.EmailAddress, opts Options) Outcome {
	start := time.Now()
	target := net.JoinHostPort(strings.TrimSuffix(mxHost, "."), strconv.Itoa(p.cfg.Port))

	dialCtx, cancel := context.WithTimeout(ctx, p.cfg.ConnectTimeout)
	conn, err := p.dialer.DialContext(dialCtx, "tcp", target)
	cancel()
	if err != nil {
		out := p.dialFailure(err)
		out.Duration = time.Since(start)
		p.logger.Debug("smtp dial failed",
			zap.String("mx", mxHost),
			zap.String("email", addr.String()),
			zap.Error(err),
		)
		return out
	}

	s := &session{
		cfg:        p.cfg,
		opts:       opts,
		host:       strings.TrimSuffix(mxHost, "."),
		addr:       addr,
		raw:        conn,
		classifier: p.classifier,
		catchAll:   p.localPart() + "@" + addr.Domain,
		logger:     p.logger,
	}
	s.attach(conn)
	defer s.close()

	// ctx 取消时立即让阻塞的读写超时返回
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	out := s.run(ctx)
	out.State = s.state
	out.Slow = s.slow
	out.TLS = s.tlsActive
	out.Duration = time.Since(start)

	p.logger.Debug("smtp probe finished",
		zap.String("mx", mxHost),
		zap.String("email", addr.String()),
		zap.String("status", string(out.Status)),
		zap.String("sub_status", string(out.Reason)),
		zap.Int("code", out.Code),
		zap.String("state", out.State.String()),
		zap.Bool("slow", out.Slow),
		zap.Duration("duration", out.Duration),
	)
	return *out
}

// dialFailure 建连失败的分类
func (p *Prober) dialFailure(err error) Outcome {
	switch {
	case isTimeout(err):
		return timeoutOutcome()
	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.EHOSTUNREACH):
		return Outcome{
			Status:     domain.StatusServiceUnavailable,
			Reason:     domain.ReasonIPBlocked,
			Diagnostic: err.Error(),
			State:      StateDisconnected,
		}
	default:
		return Outcome{
			Status:     domain.StatusUnknown,
			Reason:     domain.ReasonUnverifiableEmail,
			Diagnostic: err.Error(),
			State:      StateDisconnected,
		}
	}
}

// session 单个连接上的会话状态，不在连接之间共享
type session struct {
	cfg        Config
	opts       Options
	host       string
	addr       domain.EmailAddress
	catchAll   string
	classifier *Classifier
	logger     *zap.Logger

	raw  net.Conn // 底层 TCP 连接
	conn net.Conn // 当前使用的连接（可能已升级为 TLS）
	text *textproto.Conn

	state           State
	last            *Reply
	sentAt          time.Time
	slow            bool
	startTLSOffered bool
	tlsActive       bool
	catchAllChecked bool
	peerClosed      bool
}

// attach 在连接（或升级后的 TLS 连接）上建立文本协议读写
func (s *session) attach(conn net.Conn) {
	s.conn = conn
	s.text = textproto.NewConn(conn)
}

// run 按状态转移表驱动会话直到得到结果
func (s *session) run(ctx context.Context) *Outcome {
	s.state = StateConnected

	for s.state != StateClosed {
		next, ok := transitions[s.state]
		if !ok {
			return &Outcome{Status: domain.StatusUnknown, Reason: domain.ReasonUnverifiableEmail,
				Diagnostic: "no transition from state " + s.state.String()}
		}
		st := next(s)

		if st.action != nil {
			if err := st.action(ctx, s); err != nil {
				return s.transportFailure(err)
			}
			s.state = st.next
			continue
		}

		// 每条命令只看自己的回复
		s.last = nil
		if st.command != nil {
			if err := s.send(st.command(s)); err != nil {
				return s.transportFailure(err)
			}
		}

		reply, err := s.readReply()
		if err != nil {
			return s.transportFailure(err)
		}
		s.last = reply

		if st.decide != nil {
			state, out := st.decide(s, reply)
			if out != nil {
				s.state = st.next
				return out
			}
			s.state = state
			continue
		}

		if reply.Class() != st.accept {
			return s.rejected(reply)
		}
		s.state = st.next
	}

	return &Outcome{Status: domain.StatusUnknown, Reason: domain.ReasonUnverifiableEmail}
}

func (s *session) ehloCommand() string {
	return "EHLO " + s.cfg.HeloName
}

func (s *session) mailFromCommand() string {
	return "MAIL FROM:<" + s.cfg.MailFrom + ">"
}

func (s *session) catchAllRcptCommand() string {
	return "RCPT TO:<" + s.catchAll + ">"
}

func (s *session) realRcptCommand() string {
	return "RCPT TO:<" + s.addr.String() + ">"
}

// decideEhlo 处理 EHLO 回复：记录往返耗时与 STARTTLS 声明
func (s *session) decideEhlo(r *Reply) (State, *Outcome) {
	if r.Class() != 2 {
		return StateClosed, s.rejected(r)
	}
	if s.cfg.SlowThreshold > 0 && time.Since(s.sentAt) > s.cfg.SlowThreshold {
		s.slow = true
	}
	s.startTLSOffered = r.HasExtension("STARTTLS")
	return StateEhloSent, nil
}

// decideStartTLS 服务器拒绝 STARTTLS 时继续明文会话
func (s *session) decideStartTLS(r *Reply) (State, *Outcome) {
	if r.Class() != 2 {
		s.startTLSOffered = false
		return StateEhloSent, nil
	}
	return StateStartTLSRequested, nil
}

// decideCatchAll 随机地址被接受说明域名是 catch-all
func (s *session) decideCatchAll(r *Reply) (State, *Outcome) {
	if r.Class() == 2 {
		return StateClosed, &Outcome{
			Status:   domain.StatusCatchAll,
			Reason:   domain.ReasonEmpty,
			Code:     r.Code,
			CatchAll: true,
			Message:  r.Text(),
		}
	}
	s.catchAllChecked = true
	return StateCatchAllRcptSent, nil
}

// decideReal 对真实地址的回复做最终分类
func (s *session) decideReal(r *Reply) (State, *Outcome) {
	out := s.classify(r)
	out.CatchAllChecked = s.catchAllChecked
	return StateClosed, out
}

// rejected 非预期回复按回复码分类后结束
func (s *session) rejected(r *Reply) *Outcome {
	return s.classify(r)
}

func (s *session) classify(r *Reply) *Outcome {
	v := s.classifier.Classify(r.Code, r.Text())
	if !v.Known {
		s.logger.Warn("unclassified smtp reply",
			zap.String("mx", s.host),
			zap.String("email", s.addr.String()),
			zap.String("state", s.state.String()),
			zap.String("reply", r.Raw()),
		)
	}
	return &Outcome{
		Status:    v.Status,
		Reason:    v.Reason,
		Code:      r.Code,
		Retryable: v.Retryable,
		Message:   r.Text(),
	}
}

// upgradeTLS 在同一连接上完成 TLS 握手
//
// 这是探测而不是信任决策，接受自签名证书。
func (s *session) upgradeTLS(ctx context.Context) error {
	if err := s.setDeadline(s.cfg.CommandTimeout); err != nil {
		return err
	}
	tlsConn := tls.Client(s.raw, &tls.Config{
		ServerName:         s.host,
		InsecureSkipVerify: true, //nolint:gosec
	})
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return fmt.Errorf("starttls handshake: %w", err)
	}
	s.attach(tlsConn)
	s.tlsActive = true
	return nil
}

// send 发送一条命令
func (s *session) send(cmd string) error {
	if err := s.setDeadline(s.cfg.CommandTimeout); err != nil {
		return err
	}
	s.sentAt = time.Now()
	return s.text.PrintfLine("%s", cmd)
}

// readReply 读取一条完整回复
//
// 慢服务器的多行回复可能分多次到达，此时在回复结束后再等待一个静默窗口，
// 把窗口内到达的行并入同一条回复。
func (s *session) readReply() (*Reply, error) {
	if err := s.setDeadline(s.cfg.CommandTimeout); err != nil {
		return nil, err
	}

	reply := &Reply{}
	for {
		line, err := s.text.ReadLine()
		if err != nil {
			// 多行回复读到一半被断开时保留已收到的部分
			if len(reply.Lines) > 0 {
				if reply.Code == 0 {
					reply.Code, _, _ = splitLine(reply.Lines[0])
				}
				s.last = reply
			}
			return nil, err
		}
		code, _, last := splitLine(line)
		reply.Lines = append(reply.Lines, line)
		if last {
			reply.Code = code
			break
		}
	}

	if s.slow && s.cfg.QuiescenceWindow > 0 {
		s.collectLateLines(reply)
	}
	return reply, nil
}

// collectLateLines 在静默窗口内收集迟到的回复行
func (s *session) collectLateLines(reply *Reply) {
	for {
		if err := s.conn.SetReadDeadline(time.Now().Add(s.cfg.QuiescenceWindow)); err != nil {
			return
		}
		line, err := s.text.ReadLine()
		if err != nil {
			if !isTimeout(err) {
				s.peerClosed = isClosed(err)
			}
			return
		}
		reply.Lines = append(reply.Lines, line)
		if code, _, last := splitLine(line); last && code != 0 {
			reply.Code = code
		}
	}
}

// setDeadline 为下一次读写设置超时
func (s *session) setDeadline(d time.Duration) error {
	return s.conn.SetDeadline(time.Now().Add(d))
}

// transportFailure 传输层错误的分类
func (s *session) transportFailure(err error) *Outcome {
	switch {
	case isTimeout(err):
		out := timeoutOutcome()
		out.Diagnostic = err.Error()
		return &out
	case isClosed(err):
		s.peerClosed = true
		// 当前命令已收到 >=400 的回复后被关闭，视为地址不存在；否则视为 IP 被拒
		if s.last != nil && s.last.Code >= 400 {
			return &Outcome{
				Status:  domain.StatusInvalid,
				Reason:  domain.ReasonMailboxNotFound,
				Code:    s.last.Code,
				Message: s.last.Text(),
			}
		}
		return &Outcome{
			Status:     domain.StatusServiceUnavailable,
			Reason:     domain.ReasonIPBlocked,
			Diagnostic: err.Error(),
		}
	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.EHOSTUNREACH):
		return &Outcome{
			Status:     domain.StatusServiceUnavailable,
			Reason:     domain.ReasonIPBlocked,
			Diagnostic: err.Error(),
		}
	default:
		return &Outcome{
			Status:     domain.StatusUnknown,
			Reason:     domain.ReasonUnverifiableEmail,
			Diagnostic: err.Error(),
		}
	}
}

// close 唯一的清理路径：尽量发送 QUIT，然后关闭连接
func (s *session) close() {
	if !s.peerClosed {
		if err := s.setDeadline(s.cfg.QuitTimeout); err == nil {
			if err := s.text.PrintfLine("QUIT"); err == nil {
				_, _ = s.text.ReadLine()
			}
		}
	}
	_ = s.conn.Close()
	if s.raw != s.conn {
		_ = s.raw.Close()
	}
}

func timeoutOutcome() Outcome {
	return Outcome{
		Status:    domain.StatusUnknown,
		Reason:    domain.ReasonSMTPTimeout,
		Retryable: true,
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func isClosed(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE)
}

func randomLocalPart() string {
	return "mv" + strings.ReplaceAll(uuid.NewString(), "-", "") + strconv.FormatInt(time.Now().UnixMilli(), 36)
}
