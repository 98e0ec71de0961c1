package services

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
)

// MockUserRepository implements UserRepository for testing
type MockUserRepository struct {
	GetByUsernameFunc func(ctx context.Context, username string) (*models.User, error)
	CreateFunc        func(ctx context.Context, user *models.User) (*models.User, error)
}

func (m *MockUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	if m.GetByUsernameFunc != nil {
		return m.GetByUsernameFunc(ctx, username)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	return nil, models.ErrInternalServer
}

// MockAuthenticator implements Authenticator for testing
type MockAuthenticator struct {
	AuthenticateFunc func(ctx context.Context, username, credential string) (*models.User, error)
	calls            atomic.Int32
}

func (m *MockAuthenticator) Authenticate(ctx context.Context, username, credential string) (*models.User, error) {
	m.calls.Add(1)
	if m.AuthenticateFunc != nil {
		return m.AuthenticateFunc(ctx, username, credential)
	}
	return nil, models.ErrInvalidCredentials
}

// Calls returns how many times Authenticate ran
func (m *MockAuthenticator) Calls() int {
	return int(m.calls.Load())
}

// MockLedger implements AttemptLedger for testing. Unset funcs fail with
// models.ErrStorageUnavailable.
type MockLedger struct {
	FailureCountFunc  func(ctx context.Context, username string) (int, error)
	RecordFailureFunc func(ctx context.Context, username string, window time.Duration) (int, error)
	ClearFailuresFunc func(ctx context.Context, username string) error
	LockoutExpiryFunc func(ctx context.Context, username string) (*time.Time, error)
	StartLockoutFunc  func(ctx context.Context, username string, duration time.Duration) (time.Time, error)
}

func (m *MockLedger) FailureCount(ctx context.Context, username string) (int, error) {
	if m.FailureCountFunc != nil {
		return m.FailureCountFunc(ctx, username)
	}
	return 0, models.ErrStorageUnavailable
}

func (m *MockLedger) RecordFailure(ctx context.Context, username string, window time.Duration) (int, error) {
	if m.RecordFailureFunc != nil {
		return m.RecordFailureFunc(ctx, username, window)
	}
	return 0, models.ErrStorageUnavailable
}

func (m *MockLedger) ClearFailures(ctx context.Context, username string) error {
	if m.ClearFailuresFunc != nil {
		return m.ClearFailuresFunc(ctx, username)
	}
	return models.ErrStorageUnavailable
}

func (m *MockLedger) LockoutExpiry(ctx context.Context, username string) (*time.Time, error) {
	if m.LockoutExpiryFunc != nil {
		return m.LockoutExpiryFunc(ctx, username)
	}
	return nil, models.ErrStorageUnavailable
}

func (m *MockLedger) StartLockout(ctx context.Context, username string, duration time.Duration) (time.Time, error) {
	if m.StartLockoutFunc != nil {
		return m.StartLockoutFunc(ctx, username, duration)
	}
	return time.Time{}, models.ErrStorageUnavailable
}
