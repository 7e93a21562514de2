package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEmailStatusIsStable(t *testing.T) {
	stable := []EmailStatus{StatusValid, StatusCatchAll, StatusSpamtrap, StatusDoNotMail}
	for _, s := range stable {
		assert.True(t, s.IsStable(), s)
	}

	unstable := []EmailStatus{StatusInvalid, StatusInvalidDomain, StatusServiceUnavailable, StatusUnknown}
	for _, s := range unstable {
		assert.False(t, s.IsStable(), s)
	}
}

func TestEmailReasonIsDomainLevel(t *testing.T) {
	assert.True(t, ReasonNoMXFound.IsDomainLevel())
	assert.True(t, ReasonEmpty.IsDomainLevel())
	assert.True(t, ReasonPossibleTypo.IsDomainLevel())

	for _, r := range []EmailReason{
		ReasonRoleBased, ReasonInvalidFormat, ReasonUnverifiableEmail,
		ReasonMailboxNotFound, ReasonIPBlocked, ReasonSMTPTimeout,
	} {
		assert.False(t, r.IsDomainLevel(), r)
	}
}

func TestVerificationError(t *testing.T) {
	err := error(NewVerificationError(StatusDoNotMail, ReasonRoleBased))
	assert.Equal(t, "do_not_mail/role_based", err.Error())

	var verr *VerificationError
	assert.True(t, errors.As(err, &verr))
	assert.Equal(t, StatusDoNotMail, verr.Status)

	verr.Detail = "support"
	assert.Equal(t, "do_not_mail/role_based: support", verr.Error())
}

func TestErrorDomainCooldown(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	policy := DefaultCooldownPolicy()

	tests := []struct {
		name     string
		status   EmailStatus
		daysAgo  int
		expected bool
	}{
		{"spamtrap 冷却中", StatusSpamtrap, 99, true},
		{"spamtrap 已过期", StatusSpamtrap, 100, false},
		{"catch-all 冷却中", StatusCatchAll, 10, true},
		{"catch-all 已过期", StatusCatchAll, 150, false},
		{"其他故障冷却中", StatusInvalid, 150, true},
		{"其他故障已过期", StatusInvalid, 180, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &ErrorDomainRecord{
				Domain:     "example.com",
				LastError:  DomainError{Status: tt.status},
				RecordedAt: now.AddDate(0, 0, -tt.daysAgo),
			}
			assert.Equal(t, tt.expected, rec.InCooldown(now, policy))
		})
	}
}

func TestDomainRecordNeedsRefresh(t *testing.T) {
	now := time.Now()
	rec := &DomainRecord{
		Domain:        "example.com",
		MXHosts:       []MXHost{{Host: "mx.example.com", Priority: 10}},
		LastCheckedAt: now.AddDate(0, 0, -5),
	}
	assert.False(t, rec.NeedsRefresh(now, 100))
	assert.True(t, rec.NeedsRefresh(now, 5))

	rec.MXHosts = nil
	assert.True(t, rec.NeedsRefresh(now, 100))
}

func TestMXHostOrdering(t *testing.T) {
	hosts := []MXHost{
		{Host: "c.example.com", Priority: 20},
		{Host: "a.example.com", Priority: 10},
		{Host: "b.example.com", Priority: 10},
	}
	SortMXHosts(hosts)
	assert.Equal(t, "a.example.com", hosts[0].Host)
	assert.Equal(t, "b.example.com", hosts[1].Host)
	assert.Equal(t, "c.example.com", hosts[2].Host)

	preferred := PreferredMXHosts(hosts)
	assert.Len(t, preferred, 2)
	assert.Nil(t, PreferredMXHosts(nil))
}

func TestValidationResultClone(t *testing.T) {
	code := 250
	catchAll := false
	orig := &ValidationResult{Email: "a@example.com", SMTPCode: &code, CatchAll: &catchAll}

	cp := orig.Clone()
	*cp.SMTPCode = 550
	*cp.CatchAll = true

	assert.Equal(t, 250, *orig.SMTPCode)
	assert.False(t, *orig.CatchAll)
	assert.Nil(t, (*ValidationResult)(nil).Clone())
}
