package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/models"
	pkgauth "github.com/BradenHooton/bastion/pkg/auth"
	pkglogger "github.com/BradenHooton/bastion/pkg/logger"
)

// UserRepository defines the user lookups the credential check needs
type UserRepository interface {
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
}

// PasswordAuthenticator checks a username and password against stored bcrypt hashes
type PasswordAuthenticator struct {
	repo   UserRepository
	timing *auth.TimingDelay
	logger *slog.Logger
}

// NewPasswordAuthenticator creates a new PasswordAuthenticator
func NewPasswordAuthenticator(repo UserRepository, timing *auth.TimingDelay, logger *slog.Logger) *PasswordAuthenticator {
	return &PasswordAuthenticator{
		repo:   repo,
		timing: timing,
		logger: logger,
	}
}

// Authenticate returns the user on success. An unknown username and a wrong
// password both wrap models.ErrInvalidCredentials and cost one bcrypt compare.
func (a *PasswordAuthenticator) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	start := time.Now()

	if username == "" || password == "" {
		_ = pkgauth.CompareDummy(password)
		a.timing.WaitFrom(start, false)
		return nil, models.ErrInvalidCredentials
	}

	user, err := a.repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			_ = pkgauth.CompareDummy(password)
			a.timing.WaitFrom(start, false)
			return nil, models.ErrUnknownUser
		}
		a.logger.Error("failed to get user by username", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := pkgauth.ComparePassword(user.PasswordHash, password); err != nil {
		a.timing.WaitFrom(start, false)
		return nil, models.ErrIncorrectPassword
	}

	a.timing.WaitFrom(start, true)
	return user, nil
}

// EnsureUser creates username with password unless it already exists
func (a *PasswordAuthenticator) EnsureUser(ctx context.Context, username, password string) error {
	if username == "" {
		return fmt.Errorf("%w: bootstrap username is empty", models.ErrInvalidInput)
	}

	if _, err := a.repo.GetByUsername(ctx, username); err == nil {
		return nil
	} else if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to look up bootstrap user: %w", err)
	}

	if err := pkgauth.ValidatePassword(password); err != nil {
		return fmt.Errorf("%w: bootstrap password rejected: %v", models.ErrInvalidInput, err)
	}

	hash, err := pkgauth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash bootstrap password: %w", err)
	}

	user, err := a.repo.Create(ctx, &models.User{Username: username, PasswordHash: hash})
	if err != nil {
		return fmt.Errorf("failed to create bootstrap user: %w", err)
	}

	a.logger.Info("bootstrap user created",
		slog.String("user_id", user.ID),
		slog.String("username", pkglogger.SanitizedUsername(username)))
	return nil
}
