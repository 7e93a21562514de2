package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyProvider(t *testing.T) {
	suffixes := DefaultConservativeMXSuffixes

	assert.Equal(t, ProviderConservative, ClassifyProvider("gmail-smtp-in.l.google.com.", suffixes))
	assert.Equal(t, ProviderConservative, ClassifyProvider("example-com.mail.protection.outlook.com", suffixes))
	assert.Equal(t, ProviderConservative, ClassifyProvider("mta5.am0.yahoodns.net", suffixes))
	assert.Equal(t, ProviderGeneral, ClassifyProvider("mx.example.com", suffixes))
	assert.Equal(t, ProviderGeneral, ClassifyProvider("notgoogle.com", suffixes))
	assert.Equal(t, ProviderGeneral, ClassifyProvider("", suffixes))
}

func TestBatchSummaryAdd(t *testing.T) {
	s := NewBatchSummary("job-1")

	s.Add(&ValidationResult{Status: StatusValid})
	s.Add(&ValidationResult{Status: StatusInvalid, SubStatus: ReasonMailboxNotFound})
	s.Add(&ValidationResult{Status: StatusInvalidDomain, SubStatus: ReasonDomainNotFound})
	s.Add(&ValidationResult{Status: StatusCatchAll})
	s.Add(&ValidationResult{Status: StatusDoNotMail, SubStatus: ReasonRoleBased})
	s.Add(&ValidationResult{Status: StatusSpamtrap})
	s.Add(&ValidationResult{Status: StatusUnknown, SubStatus: ReasonGreylisted})
	s.Add(&ValidationResult{Status: StatusUnknown, SubStatus: ReasonSMTPTimeout})
	s.Add(&ValidationResult{Status: StatusServiceUnavailable, SubStatus: ReasonIPBlocked})
	s.Add(nil)

	assert.Equal(t, "job-1", s.JobID)
	assert.Equal(t, 9, s.Total)
	assert.Equal(t, 1, s.Valid)
	assert.Equal(t, 2, s.Invalid)
	assert.Equal(t, 1, s.CatchAll)
	assert.Equal(t, 1, s.DoNotMail)
	assert.Equal(t, 1, s.Spamtrap)
	assert.Equal(t, 1, s.Greylisted)
	assert.Equal(t, 2, s.Unknown)
	assert.Equal(t, 2, s.ByStatus[string(StatusUnknown)])
	assert.Equal(t, 1, s.BySubStatus[string(ReasonIPBlocked)])
}

func TestLists(t *testing.T) {
	l := NewLists("Custom-Throwaway.io")

	assert.True(t, l.IsRoleAccount("support"))
	assert.True(t, l.IsRoleAccount("Admin"))
	assert.False(t, l.IsRoleAccount("john.doe"))

	assert.True(t, l.IsFreeProvider("gmail.com"))
	assert.False(t, l.IsFreeProvider("example.com"))

	assert.True(t, l.IsDisposable("mailinator.com"))
	assert.True(t, l.IsDisposable("custom-throwaway.io"))
	assert.False(t, l.IsDisposable("gmail.com"))

	providers := FreeProviders()
	providers[0] = "changed"
	assert.NotEqual(t, "changed", FreeProviders()[0])
}

func TestBatchSummaryRemove(t *testing.T) {
	s := NewBatchSummary("job-2")
	grey := &ValidationResult{Status: StatusUnknown, SubStatus: ReasonGreylisted}
	s.Add(&ValidationResult{Status: StatusValid})
	s.Add(grey)

	snapshot := s.Clone()

	s.Remove(grey)
	s.Add(&ValidationResult{Status: StatusInvalid, SubStatus: ReasonMailboxNotFound})

	assert.Equal(t, 2, s.Total)
	assert.Equal(t, 0, s.Greylisted)
	assert.Equal(t, 1, s.Invalid)
	assert.NotContains(t, s.BySubStatus, string(ReasonGreylisted))
	assert.Equal(t, 1, s.BySubStatus[string(ReasonMailboxNotFound)])

	assert.Equal(t, 1, snapshot.Greylisted)
	assert.Equal(t, 1, snapshot.BySubStatus[string(ReasonGreylisted)])

	empty := NewBatchSummary("job-3")
	empty.Remove(grey)
	assert.Equal(t, 0, empty.Total)
}
