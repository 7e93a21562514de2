package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"mailverify/backend/internal/domain"
	"mailverify/backend/internal/mailer"
	"mailverify/backend/internal/storage"
)

// EventOutcome 投递事件对应的验证结论
func EventOutcome(ev mailer.DeliveryEvent) (domain.EmailStatus, domain.EmailReason, bool) {
	switch ev.Type {
	case mailer.EventDelivery:
		return domain.StatusValid, domain.ReasonEmpty, true
	case mailer.EventComplaint:
		return domain.StatusDoNotMail, domain.ReasonEmpty, true
	case mailer.EventBounce:
		switch ev.BounceType {
		case mailer.BouncePermanent:
			return domain.StatusInvalid, domain.ReasonMailboxNotFound, true
		case mailer.BounceTransient:
			return domain.StatusUnknown, domain.ReasonGreylisted, true
		}
	}
	return "", "", false
}

// HandleDeliveryEvents 用真实发信的投递结果覆盖地址缓存
//
// 返回成功写入的事件数；无法识别的事件跳过。
func (s *ValidationService) HandleDeliveryEvents(ctx context.Context, events []mailer.DeliveryEvent) (int, error) {
	var (
		applied int
		errs    []error
	)
	for _, ev := range events {
		ev.Email = strings.ToLower(strings.TrimSpace(ev.Email))
		status, reason, ok := EventOutcome(ev)
		if !ok {
			s.logger.Debug("Ignoring delivery event",
				zap.String("email", ev.Email),
				zap.String("type", string(ev.Type)),
				zap.String("bounce_type", string(ev.BounceType)),
			)
			continue
		}

		record, err := s.repo.FindProcessedEmail(ctx, ev.Email)
		switch {
		case errors.Is(err, storage.ErrProcessedEmailNotFound):
			addr, _ := domain.ParseEmailAddress(ev.Email)
			record = &domain.ProcessedEmailRecord{
				EmailAddress: ev.Email,
				Result:       *newResult(ev.Email, addr),
			}
		case err != nil:
			errs = append(errs, fmt.Errorf("load %s: %w", ev.Email, err))
			continue
		}

		record.Result.Status, record.Result.SubStatus = status, reason
		record.Result.Retryable = reason == domain.ReasonGreylisted
		record.Result.VerifyPlus = true
		if ev.Diagnostic != "" {
			record.Result.Diagnostic = ev.Diagnostic
		}
		record.RetryState = domain.RetryComplete
		record.CreatedAt = s.now()

		if err := s.repo.SaveProcessedEmail(ctx, record); err != nil {
			errs = append(errs, fmt.Errorf("save %s: %w", ev.Email, err))
			continue
		}
		applied++
		s.logger.Info("Verify+ result recorded",
			zap.String("email", ev.Email),
			zap.String("status", string(status)),
			zap.String("sub_status", string(reason)),
		)
	}
	return applied, errors.Join(errs...)
}
