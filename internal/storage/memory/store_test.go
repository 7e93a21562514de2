package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailverify/backend/internal/domain"
	"mailverify/backend/internal/storage"
)

func TestDomainRecords(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	_, err := s.FindDomain(ctx, "example.com")
	assert.ErrorIs(t, err, storage.ErrDomainNotFound)

	age := 3650
	rec := &domain.DomainRecord{
		Domain:        "Example.com",
		MXHosts:       []domain.MXHost{{Host: "mx.example.com", Priority: 10}},
		AgeDays:       &age,
		LastCheckedAt: time.Now(),
	}
	require.NoError(t, s.SaveDomain(ctx, rec))

	got, err := s.FindDomain(ctx, "example.com")
	require.NoError(t, err)
	assert.Equal(t, "mx.example.com", got.MXHosts[0].Host)

	// 返回副本
	got.MXHosts[0].Host = "changed"
	*got.AgeDays = 1
	again, err := s.FindDomain(ctx, "EXAMPLE.COM")
	require.NoError(t, err)
	assert.Equal(t, "mx.example.com", again.MXHosts[0].Host)
	assert.Equal(t, 3650, *again.AgeDays)
}

func TestProcessedEmailReplacesWholeRecord(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	code := 451
	require.NoError(t, s.SaveProcessedEmail(ctx, &domain.ProcessedEmailRecord{
		EmailAddress: "a@example.com",
		RetryState:   domain.RetryPending,
		Result: domain.ValidationResult{
			Email: "a@example.com", Status: domain.StatusUnknown,
			SubStatus: domain.ReasonGreylisted, SMTPCode: &code, Retryable: true,
		},
	}))

	require.NoError(t, s.SaveProcessedEmail(ctx, &domain.ProcessedEmailRecord{
		EmailAddress: "a@example.com",
		RetryState:   domain.RetryComplete,
		Result:       domain.ValidationResult{Email: "a@example.com", Status: domain.StatusValid},
	}))

	got, err := s.FindProcessedEmail(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusValid, got.Result.Status)
	assert.Equal(t, domain.ReasonEmpty, got.Result.SubStatus)
	assert.Nil(t, got.Result.SMTPCode)
	assert.False(t, got.Result.Retryable)
	assert.False(t, got.CreatedAt.IsZero())

	_, err = s.FindProcessedEmail(ctx, "b@example.com")
	assert.ErrorIs(t, err, storage.ErrProcessedEmailNotFound)
}

func TestErrorDomains(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	_, err := s.FindErrorDomain(ctx, "example.com")
	assert.ErrorIs(t, err, storage.ErrErrorDomainNotFound)

	require.NoError(t, s.UpsertErrorDomain(ctx, &domain.ErrorDomainRecord{
		Domain:    "example.com",
		LastError: domain.DomainError{Status: domain.StatusSpamtrap},
	}))

	got, err := s.FindErrorDomain(ctx, "example.com")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSpamtrap, got.LastError.Status)
	assert.False(t, got.RecordedAt.IsZero())
}

func TestJobs(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	job := &domain.BatchJob{ID: "job-1", Addresses: []string{"a@example.com"}, Status: domain.BatchPending}
	require.NoError(t, s.CreateJob(ctx, job))

	job.Status = domain.BatchProcessing
	job.Summary = domain.NewBatchSummary(job.ID)
	job.Summary.ByStatus["valid"] = 1
	require.NoError(t, s.UpdateJob(ctx, job))

	got, err := s.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.BatchProcessing, got.Status)
	assert.Equal(t, 1, got.Summary.ByStatus["valid"])

	got.Summary.ByStatus["valid"] = 99
	again, _ := s.GetJob(ctx, "job-1")
	assert.Equal(t, 1, again.Summary.ByStatus["valid"])

	jobs, err := s.ListJobsByStatus(ctx, domain.BatchProcessing)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)

	_, err = s.GetJob(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrJobNotFound)
	assert.ErrorIs(t, s.UpdateJob(ctx, &domain.BatchJob{ID: "missing"}), storage.ErrJobNotFound)

	assert.NoError(t, s.Health())
	assert.NoError(t, s.Close())
}
