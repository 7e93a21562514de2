package mailer

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"mailverify/backend/internal/domain"
)

// LogNotifier 把批量任务结果写入日志
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier 创建日志通知器
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// NotifyBatchComplete 记录批量任务完成
func (n *LogNotifier) NotifyBatchComplete(_ context.Context, job *domain.BatchJob, summary *domain.BatchSummary) error {
	n.logger.Info("Batch job complete",
		zap.String("job_id", job.ID),
		zap.String("user_id", job.UserID),
		zap.Int("total", summary.Total),
		zap.Int("valid", summary.Valid),
		zap.Int("invalid", summary.Invalid),
		zap.Int("catch_all", summary.CatchAll),
		zap.Int("do_not_mail", summary.DoNotMail),
		zap.Int("spamtrap", summary.Spamtrap),
		zap.Int("unknown", summary.Unknown),
		zap.Int("greylisted", summary.Greylisted),
	)
	return nil
}

// EmailNotifier 把批量任务结果发送到指定邮箱，同时写日志
type EmailNotifier struct {
	mailer *Mailer
	to     string
	log    *LogNotifier
}

// NewEmailNotifier 创建邮件通知器
func NewEmailNotifier(m *Mailer, to string, logger *zap.Logger) *EmailNotifier {
	return &EmailNotifier{mailer: m, to: to, log: NewLogNotifier(logger)}
}

// NotifyBatchComplete 发送结果统计邮件
func (n *EmailNotifier) NotifyBatchComplete(ctx context.Context, job *domain.BatchJob, summary *domain.BatchSummary) error {
	_ = n.log.NotifyBatchComplete(ctx, job, summary)
	return n.mailer.Send(ctx, Message{
		To:      n.to,
		Subject: fmt.Sprintf("Batch %s complete: %d addresses", job.ID, summary.Total),
		Body:    FormatSummary(summary),
	})
}

// FormatSummary 生成纯文本统计报告
func FormatSummary(s *domain.BatchSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Job: %s\n", s.JobID)
	fmt.Fprintf(&b, "Total: %d\n\n", s.Total)
	rows := []struct {
		name  string
		count int
	}{
		{"valid", s.Valid},
		{"invalid", s.Invalid},
		{"catch-all", s.CatchAll},
		{"do_not_mail", s.DoNotMail},
		{"spamtrap", s.Spamtrap},
		{"unknown", s.Unknown},
		{"greylisted", s.Greylisted},
	}
	for _, r := range rows {
		fmt.Fprintf(&b, "%-12s %d\n", r.name, r.count)
	}

	if len(s.BySubStatus) > 0 {
		b.WriteString("\nBy sub-status:\n")
		keys := make([]string, 0, len(s.BySubStatus))
		for k := range s.BySubStatus {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "  %s: %d\n", k, s.BySubStatus[k])
		}
	}
	return b.String()
}
