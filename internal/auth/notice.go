package auth

import (
	"fmt"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// NoticeManager signs and verifies lockout notices
type NoticeManager struct {
	secret []byte
	now    func() time.Time
}

// NewNoticeManager creates a new NoticeManager
func NewNoticeManager(secret string) *NoticeManager {
	return &NoticeManager{
		secret: []byte(secret),
		now:    time.Now,
	}
}

// WithClock replaces the time source, for tests
func (nm *NoticeManager) WithClock(now func() time.Time) *NoticeManager {
	nm.now = now
	return nm
}

// Issue signs a notice for username that expires with the lockout window
func (nm *NoticeManager) Issue(username string, expiry time.Time) (string, error) {
	now := nm.now()
	claims := &models.NoticeClaims{
		Type:     models.NoticeType,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(expiry),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(nm.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign lockout notice: %w", err)
	}
	return tokenString, nil
}

// Parse verifies a notice and returns its claims. Expired, tampered and
// foreign tokens are rejected.
func (nm *NoticeManager) Parse(tokenString string) (*models.NoticeClaims, error) {
	claims := &models.NoticeClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(token *jwt.Token) (interface{}, error) {
			return nm.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(nm.now),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse lockout notice: %w", err)
	}
	if !token.Valid || claims.Type != models.NoticeType {
		return nil, models.ErrUnauthorized
	}

	return claims, nil
}

// Display returns the minutes to show for a notice, or false when the notice
// should be ignored. An empty username accepts any valid notice.
func (nm *NoticeManager) Display(tokenString, username string) (int, bool) {
	if tokenString == "" {
		return 0, false
	}

	claims, err := nm.Parse(tokenString)
	if err != nil {
		return 0, false
	}
	if username != "" && claims.Username != username {
		return 0, false
	}

	return models.MinutesRemaining(claims.ExpiresAt.Time, nm.now()), true
}
