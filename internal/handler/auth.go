package handler

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/amirkhv/member-gate/internal/auth"
	"github.com/amirkhv/member-gate/internal/middleware"
)

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Svc *auth.Service
}

func NewAuthHandler(svc *auth.Service) *AuthHandler { return &AuthHandler{Svc: svc} }

// ----- DTOs -----

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}
type setupPasswordReq struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
	Confirm     string `json:"confirm"`
}
type changePasswordReq struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	Confirm         string `json:"confirm"`
}

type tokenResp struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int    `json:"expires_in"`
	SetupScope   bool   `json:"password_change_required,omitempty"`
}

// Login: verify credentials and return a token pair. Failures are a
// single generic 401 preceded by a randomized delay so code paths
// above the hashing engine add no usable timing signal.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/password required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	_, pair, err := h.Svc.Login(ctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			failureJitter()
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "login failed"})
	}

	return c.JSON(http.StatusOK, tokenResp{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
		SetupScope:   pair.SetupScope,
	})
}

// Refresh: exchange a refresh token for a new pair. The account's
// active flag is re-checked by the service at exchange time.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	_, pair, err := h.Svc.Refresh(ctx, strings.TrimSpace(req.RefreshToken))
	if err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "refresh failed"})
	}

	return c.JSON(http.StatusOK, tokenResp{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
		SetupScope:   pair.SetupScope,
	})
}

// SetupPassword: consume a setup or reset token and install the new
// password. Token and policy failures are safe to name: the caller
// already proved possession of the token.
func (h *AuthHandler) SetupPassword(c echo.Context) error {
	var req setupPasswordReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if strings.TrimSpace(req.Token) == "" || req.NewPassword == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "token/new_password required"})
	}
	if req.NewPassword != req.Confirm {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "passwords do not match"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	if err := h.Svc.ConsumeLifecycleToken(ctx, req.Token, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, auth.ErrTokenInvalid):
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "token_invalid"})
		case errors.Is(err, auth.ErrWeakPassword):
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "weak_password", "message": err.Error()})
		default:
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "password setup failed"})
		}
	}
	return c.NoContent(http.StatusNoContent)
}

// ChangePassword: authenticated password rotation. This is the only
// route a setup-scoped session may reach.
func (h *AuthHandler) ChangePassword(c echo.Context) error {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req changePasswordReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "current_password/new_password required"})
	}
	if req.NewPassword != req.Confirm {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "passwords do not match"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	if err := h.Svc.ChangePassword(ctx, claims.UserID(), req.CurrentPassword, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			failureJitter()
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
		case errors.Is(err, auth.ErrWeakPassword):
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "weak_password", "message": err.Error()})
		case errors.Is(err, auth.ErrUnauthorized):
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
		default:
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "password change failed"})
		}
	}
	return c.NoContent(http.StatusNoContent)
}

// Me: simple protected endpoint echoing the verified claims.
func (h *AuthHandler) Me(c echo.Context) error {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"user_id": claims.UserID(),
		"role":    claims.Role,
	})
}

// failureJitter blurs the timing difference between failure paths
// with a 100-300ms random delay.
func failureJitter() {
	time.Sleep(time.Duration(100+rand.Intn(200)) * time.Millisecond)
}
