package service

import (
	"context"

	"github.com/stretchr/testify/mock"

	"mailverify/backend/internal/dnsbl"
	"mailverify/backend/internal/domain"
	"mailverify/backend/internal/smtpprobe"
)

// MockProber 模拟 SMTP 探测
type MockProber struct {
	mock.Mock
}

func (m *MockProber) Probe(_ context.Context, mxHost string, addr domain.EmailAddress, opts smtpprobe.Options) smtpprobe.Outcome {
	args := m.Called(mxHost, addr.String(), opts)
	return args.Get(0).(smtpprobe.Outcome)
}

// MockBlacklist 模拟 DNSBL 查询
type MockBlacklist struct {
	mock.Mock
}

func (m *MockBlacklist) IsListed(_ context.Context, domainName string) (dnsbl.Listing, error) {
	args := m.Called(domainName)
	return args.Get(0).(dnsbl.Listing), args.Error(1)
}

// MockResolver 模拟 MX 查询
type MockResolver struct {
	mock.Mock
}

func (m *MockResolver) LookupMX(_ context.Context, name string) ([]domain.MXHost, error) {
	args := m.Called(name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.MXHost), args.Error(1)
}

// MockWhois 模拟域名注册信息查询
type MockWhois struct {
	mock.Mock
}

func (m *MockWhois) DomainAge(_ context.Context, domainName string) (int, error) {
	args := m.Called(domainName)
	return args.Int(0), args.Error(1)
}

// MockSender 模拟真实发信
type MockSender struct {
	mock.Mock
}

func (m *MockSender) SendVerifyPlus(_ context.Context, email string) error {
	args := m.Called(email)
	return args.Error(0)
}

// MockNotifier 模拟完成通知
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) NotifyBatchComplete(_ context.Context, job *domain.BatchJob, summary *domain.BatchSummary) error {
	args := m.Called(job.ID, summary)
	return args.Error(0)
}
