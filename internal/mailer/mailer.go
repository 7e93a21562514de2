package mailer

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"mailverify/backend/internal/config"
)

// ConfigurationSetHeader 投递事件追踪使用的配置集头
const ConfigurationSetHeader = "X-SES-CONFIGURATION-SET"

// ErrDisabled 未配置真实发信通道
var ErrDisabled = errors.New("mailer: disabled")

// Message 一封待发送的邮件
type Message struct {
	To      string
	Subject string
	Body    string
	Headers map[string]string
}

// Mailer 通过 SMTP 中继发送邮件
type Mailer struct {
	from             string
	configurationSet string
	send             func(msgs ...*gomail.Message) error
	logger           *zap.Logger
}

// New 根据配置创建发信器；未启用时返回 nil
func New(cfg config.VerifyPlusConfig, logger *zap.Logger) *Mailer {
	if !cfg.Enabled {
		return nil
	}
	d := gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.Username, cfg.Password)
	return newMailer(cfg, d.DialAndSend, logger)
}

// NewWithSender 使用已建立的发送通道创建发信器
func NewWithSender(cfg config.VerifyPlusConfig, s gomail.Sender, logger *zap.Logger) *Mailer {
	return newMailer(cfg, func(msgs ...*gomail.Message) error {
		return gomail.Send(s, msgs...)
	}, logger)
}

func newMailer(cfg config.VerifyPlusConfig, send func(...*gomail.Message) error, logger *zap.Logger) *Mailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mailer{
		from:             cfg.FromEmail,
		configurationSet: cfg.ConfigurationSet,
		send:             send,
		logger:           logger,
	}
}

// Send 发送邮件
func (m *Mailer) Send(ctx context.Context, msg Message) error {
	if m == nil {
		return ErrDisabled
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	gm := gomail.NewMessage()
	gm.SetHeader("From", m.from)
	gm.SetHeader("To", msg.To)
	gm.SetHeader("Subject", msg.Subject)
	for k, v := range msg.Headers {
		gm.SetHeader(k, v)
	}
	gm.SetBody("text/plain", msg.Body)

	if err := m.send(gm); err != nil {
		m.logger.Warn("Failed to send mail", zap.String("to", msg.To), zap.Error(err))
		return fmt.Errorf("send mail to %s: %w", msg.To, err)
	}
	return nil
}

// SendVerifyPlus 向目标地址发送一封真实的诊断邮件
//
// 投递结果稍后通过配置集的事件回调返回。
func (m *Mailer) SendVerifyPlus(ctx context.Context, email string) error {
	if m == nil {
		return ErrDisabled
	}
	headers := map[string]string{}
	if m.configurationSet != "" {
		headers[ConfigurationSetHeader] = m.configurationSet
	}
	err := m.Send(ctx, Message{
		To:      email,
		Subject: "Address confirmation",
		Body:    "This message confirms that your mailbox can receive mail. No action is required.",
		Headers: headers,
	})
	if err == nil {
		m.logger.Info("Verify+ message sent", zap.String("email", email))
	}
	return err
}
