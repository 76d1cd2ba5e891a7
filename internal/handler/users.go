package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/amirkhv/member-gate/internal/auth"
	"github.com/amirkhv/member-gate/internal/middleware"
	"github.com/amirkhv/member-gate/internal/model"
)

// UserHandler implements the admin-only account management endpoints.
// Note what is absent: no endpoint on this surface accepts or returns
// a password in any form.
type UserHandler struct {
	Svc *auth.Service
}

func NewUserHandler(svc *auth.Service) *UserHandler { return &UserHandler{Svc: svc} }

type createUserReq struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}
type updateUserReq struct {
	Email    *string `json:"email"`
	Role     *string `json:"role"`
	IsActive *bool   `json:"is_active"`
}

type userResp struct {
	ID                    string    `json:"id"`
	Email                 string    `json:"email"`
	Role                  string    `json:"role"`
	IsActive              bool      `json:"is_active"`
	PasswordSetupRequired bool      `json:"password_setup_required"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

func toUserResp(u model.User) userResp {
	return userResp{
		ID:                    u.ID,
		Email:                 u.Email,
		Role:                  u.Role,
		IsActive:              u.IsActive,
		PasswordSetupRequired: u.PasswordSetupRequired,
		CreatedAt:             u.CreatedAt,
		UpdatedAt:             u.UpdatedAt,
	}
}

// Create provisions an account and dispatches a setup token through
// the delivery channel. The response carries the user, never the token.
func (h *UserHandler) Create(c echo.Context) error {
	var req createUserReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Role == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/role required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Svc.CreateUser(ctx, req.Email, req.Role)
	if err != nil {
		if errors.Is(err, auth.ErrEmailExists) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "email already exists"})
		}
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusCreated, toUserResp(u))
}

// List returns all accounts.
func (h *UserHandler) List(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	users, err := h.Svc.ListUsers(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list failed"})
	}
	out := make([]userResp, 0, len(users))
	for _, u := range users {
		out = append(out, toUserResp(u))
	}
	return c.JSON(http.StatusOK, out)
}

// Get returns a single account.
func (h *UserHandler) Get(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Svc.GetUser(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "get failed"})
	}
	return c.JSON(http.StatusOK, toUserResp(u))
}

// Update applies an admin profile edit (email, role, active flag).
func (h *UserHandler) Update(c echo.Context) error {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req updateUserReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Svc.UpdateUser(ctx, claims.UserID(), c.Param("id"), auth.UserPatch{
		Email:    req.Email,
		Role:     req.Role,
		IsActive: req.IsActive,
	})
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrSelfProtection):
			return c.JSON(http.StatusConflict, echo.Map{"error": "self_protection"})
		case errors.Is(err, auth.ErrNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
		case errors.Is(err, auth.ErrEmailExists):
			return c.JSON(http.StatusConflict, echo.Map{"error": "email already exists"})
		default:
			return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
		}
	}
	return c.JSON(http.StatusOK, toUserResp(u))
}

// Deactivate soft-deletes an account.
func (h *UserHandler) Deactivate(c echo.Context) error {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Svc.DeactivateUser(ctx, claims.UserID(), c.Param("id")); err != nil {
		switch {
		case errors.Is(err, auth.ErrSelfProtection):
			return c.JSON(http.StatusConflict, echo.Map{"error": "self_protection"})
		case errors.Is(err, auth.ErrNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
		default:
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "deactivate failed"})
		}
	}
	return c.NoContent(http.StatusNoContent)
}

// InitiateReset invalidates outstanding lifecycle tokens for the
// target and dispatches a fresh reset token.
func (h *UserHandler) InitiateReset(c echo.Context) error {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Svc.InitiateReset(ctx, claims.UserID(), c.Param("id")); err != nil {
		switch {
		case errors.Is(err, auth.ErrSelfProtection):
			return c.JSON(http.StatusConflict, echo.Map{"error": "self_protection"})
		case errors.Is(err, auth.ErrNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
		default:
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "reset failed"})
		}
	}
	return c.NoContent(http.StatusAccepted)
}
