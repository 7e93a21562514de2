package smtpprobe

import "context"

// State 探测会话状态
type State int

const (
	StateDisconnected State = iota
	StateConnected
	StateGreetingReceived
	StateEhloSent
	StateStartTLSRequested
	StateTLSEstablished
	StateMailFromSent
	StateCatchAllRcptSent
	StateRealRcptSent
	StateClosed
)

var stateNames = map[State]string{
	StateDisconnected:      "disconnected",
	StateConnected:         "connected",
	StateGreetingReceived:  "greeting_received",
	StateEhloSent:          "ehlo_sent",
	StateStartTLSRequested: "starttls_requested",
	StateTLSEstablished:    "tls_established",
	StateMailFromSent:      "mail_from_sent",
	StateCatchAllRcptSent:  "catch_all_rcpt_sent",
	StateRealRcptSent:      "real_rcpt_sent",
	StateClosed:            "closed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "invalid"
}

// step 从某个状态出发的一步操作
//
// 普通步骤发送 command（为空时只读取回复，如服务器问候），
// 回复类别等于 accept 时进入 next，否则按回复分类结束会话。
// action 非空的步骤不收发命令（如 TLS 握手）；decide 非空时由它处理回复。
type step struct {
	command func(s *session) string
	action  func(ctx context.Context, s *session) error
	accept  int
	next    State
	decide  func(s *session, r *Reply) (State, *Outcome)
}

// transitions 状态转移表，每个状态按会话数据选出唯一的下一步
var transitions = map[State]func(s *session) step{
	StateConnected: func(s *session) step {
		return step{accept: 2, next: StateGreetingReceived}
	},
	StateGreetingReceived: func(s *session) step {
		return step{command: (*session).ehloCommand, next: StateEhloSent, decide: (*session).decideEhlo}
	},
	StateEhloSent: func(s *session) step {
		if s.startTLSOffered && !s.tlsActive && !s.cfg.DisableStartTLS {
			return step{command: constCommand("STARTTLS"), next: StateStartTLSRequested, decide: (*session).decideStartTLS}
		}
		return step{command: (*session).mailFromCommand, accept: 2, next: StateMailFromSent}
	},
	StateStartTLSRequested: func(s *session) step {
		return step{action: func(ctx context.Context, s *session) error { return s.upgradeTLS(ctx) }, next: StateTLSEstablished}
	},
	StateTLSEstablished: func(s *session) step {
		// TLS 建立后必须重新 EHLO，扩展列表以新的回复为准
		return step{command: (*session).ehloCommand, next: StateEhloSent, decide: (*session).decideEhlo}
	},
	StateMailFromSent: func(s *session) step {
		if s.opts.SkipCatchAll {
			return step{command: (*session).realRcptCommand, next: StateRealRcptSent, decide: (*session).decideReal}
		}
		return step{command: (*session).catchAllRcptCommand, next: StateCatchAllRcptSent, decide: (*session).decideCatchAll}
	},
	StateCatchAllRcptSent: func(s *session) step {
		return step{command: (*session).realRcptCommand, next: StateRealRcptSent, decide: (*session).decideReal}
	},
}

func constCommand(cmd string) func(*session) string {
	return func(*session) string { return cmd }
}
