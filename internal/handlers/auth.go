package handlers

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"time"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/internal/settings"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
	pkglogger "github.com/BradenHooton/bastion/pkg/logger"
)

//go:embed templates/login.html
var templateFS embed.FS

var loginTemplate = template.Must(template.ParseFS(templateFS, "templates/login.html"))

// Generic and distinct credential failure messages
const (
	msgAuthenticationFailed = "Authentication failed"
	msgUnknownUser          = "Unknown username. Check again or try your email address."
	msgIncorrectPassword    = "The password you entered is incorrect."
)

// LoginGate is the credential check the handler calls, normally a services.LockoutGate
type LoginGate interface {
	Authenticate(ctx context.Context, username, credential string) (*models.User, error)
}

// FeatureSettings is the read side of the hardening toggles
type FeatureSettings interface {
	Get(name string) bool
}

// AuthHandler serves the login endpoint and login form
type AuthHandler struct {
	gate     LoginGate
	notices  *auth.NoticeManager
	cookie   auth.CookieConfig
	features FeatureSettings
	ipConfig *pkghttp.IPConfig
	logger   *slog.Logger
	now      func() time.Time
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(gate LoginGate, notices *auth.NoticeManager, cookie auth.CookieConfig, features FeatureSettings, ipConfig *pkghttp.IPConfig, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		gate:     gate,
		notices:  notices,
		cookie:   cookie,
		features: features,
		ipConfig: ipConfig,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock replaces the time source, for tests
func (h *AuthHandler) WithClock(now func() time.Time) *AuthHandler {
	h.now = now
	return h
}

// LoginRequest represents the request body for login
type LoginRequest struct {
	Username string `json:"username" validate:"max=255"`
	Password string `json:"password" validate:"max=1024"`
}

// UserResponse represents a user in the HTTP response
type UserResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// LoginResponse is returned on successful authentication
type LoginResponse struct {
	User UserResponse `json:"user"`
}

type loginPage struct {
	Action         string
	Username       string
	Error          string
	LockoutMessage string
	SignedInAs     string
}

// Login handles a login attempt
// @Summary Log in with username and password
// @Accept json,x-www-form-urlencoded
// @Param request body LoginRequest true "Login request"
// @Produce json,html
// @Success 200 {object} LoginResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	req, fromForm, err := decodeLogin(w, r)
	if err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		if fromForm {
			h.renderForm(w, http.StatusBadRequest, loginPage{Username: req.Username, Error: err.Error()})
			return
		}
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	user, err := h.gate.Authenticate(r.Context(), req.Username, req.Password)
	if err == nil {
		if fromForm {
			h.renderForm(w, http.StatusOK, loginPage{SignedInAs: user.Username})
			return
		}
		pkghttp.WriteJSON(w, http.StatusOK, LoginResponse{
			User: UserResponse{ID: user.ID, Username: user.Username},
		})
		return
	}

	var denial *models.TooManyAttemptsError
	switch {
	case errors.As(err, &denial):
		h.issueNotice(w, denial)
		if fromForm {
			http.Redirect(w, r, loginFormURL(r.URL.Path, req.Username), http.StatusSeeOther)
			return
		}
		pkghttp.WriteLockedOut(w, denial.Message(), denial.RetryAfter(h.now()))

	case errors.Is(err, models.ErrInvalidCredentials), errors.Is(err, models.ErrUnauthorized):
		msg := h.credentialMessage(err)
		if fromForm {
			h.renderForm(w, http.StatusUnauthorized, loginPage{Username: req.Username, Error: msg})
			return
		}
		pkghttp.WriteUnauthorized(w, msg)

	default:
		h.logger.Error("login failed unexpectedly",
			slog.String("client_ip", pkghttp.ExtractClientIP(r, h.ipConfig)),
			slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}

// LoginForm renders the login form, or the lockout message when the caller
// holds a valid notice for the requested username. The notice is cleared
// either way so it is shown at most once.
// @Summary Login form
// @Param username query string false "Username to prefill"
// @Produce html
// @Success 200
// @Router /auth/login [get]
func (h *AuthHandler) LoginForm(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	page := loginPage{Username: username}

	if notice := auth.GetNoticeCookie(r, h.cookie); notice != "" {
		auth.ClearNoticeCookie(w, h.cookie)
		if minutes, ok := h.notices.Display(notice, username); ok {
			page.LockoutMessage = models.DenialMessage(minutes)
		}
	}

	h.renderForm(w, http.StatusOK, page)
}

func (h *AuthHandler) issueNotice(w http.ResponseWriter, denial *models.TooManyAttemptsError) {
	notice, err := h.notices.Issue(denial.Username, denial.Expiry)
	if err != nil {
		h.logger.Error("failed to issue lockout notice",
			slog.String("username", pkglogger.SanitizedUsername(denial.Username)),
			slog.Any("error", err))
		return
	}
	auth.SetNoticeCookie(w, notice, denial.Expiry, h.now(), h.cookie)
}

func (h *AuthHandler) credentialMessage(err error) string {
	if h.features.Get(settings.GenericLoginErrors) {
		return msgAuthenticationFailed
	}
	switch {
	case errors.Is(err, models.ErrUnknownUser):
		return msgUnknownUser
	case errors.Is(err, models.ErrIncorrectPassword):
		return msgIncorrectPassword
	default:
		return msgAuthenticationFailed
	}
}

func (h *AuthHandler) renderForm(w http.ResponseWriter, status int, page loginPage) {
	if page.Action == "" {
		page.Action = "/auth/login"
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := loginTemplate.Execute(w, page); err != nil {
		h.logger.Error("failed to render login form", slog.Any("error", err))
	}
}

// decodeLogin reads JSON or form-encoded credentials and reports which it was
func decodeLogin(w http.ResponseWriter, r *http.Request) (LoginRequest, bool, error) {
	var req LoginRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" {
		if err := r.ParseForm(); err != nil {
			return req, true, err
		}
		req.Username = r.PostForm.Get("username")
		req.Password = r.PostForm.Get("password")
		return req, true, nil
	}

	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		return req, false, err
	}
	return req, false, nil
}

func loginFormURL(path, username string) string {
	if username == "" {
		return path
	}
	return path + "?" + url.Values{"username": {username}}.Encode()
}
