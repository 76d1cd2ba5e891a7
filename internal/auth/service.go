package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/amirkhv/member-gate/internal/logging"
	"github.com/amirkhv/member-gate/internal/model"
	"github.com/amirkhv/member-gate/internal/queue"
	"github.com/amirkhv/member-gate/internal/repository"
)

// UserStore is the credential store contract the service depends on.
// *repository.UserRepo satisfies it; tests substitute an in-memory fake.
type UserStore interface {
	Create(ctx context.Context, u model.User) error
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id string) (model.User, error)
	List(ctx context.Context) ([]model.User, error)
	UpdateProfile(ctx context.Context, u model.User) error
	SetPassword(ctx context.Context, id, hash string, setupRequired bool) error
	SetSetupRequired(ctx context.Context, id string, required bool) error
	Deactivate(ctx context.Context, id string) error
}

// TokenStore is the lifecycle token store contract.
type TokenStore interface {
	Store(ctx context.Context, t model.LifecycleToken) error
	Lookup(ctx context.Context, tokenHash string) (model.LifecycleToken, error)
	Consume(ctx context.Context, tokenHash, userID, passwordHash string) (bool, error)
	InvalidateOutstanding(ctx context.Context, userID string) error
}

// Publisher hands issued tokens to the delivery channel.
type Publisher func(ctx context.Context, ev queue.TokenIssuedEvent) error

// TokenPair is what a successful login returns. Refresh is empty for
// setup-scoped sessions: a temporary credential must not mint
// long-lived tokens.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int // seconds until the access token expires
	SetupScope   bool
}

// Service implements authentication, the password lifecycle and admin
// user management over the injected stores.
type Service struct {
	Users   UserStore
	Tokens  TokenStore
	Issuer  *TokenIssuer
	Hash    HashParams
	Publish Publisher // nil disables delivery dispatch
	Log     *zap.Logger
}

func NewService(users UserStore, tokens TokenStore, issuer *TokenIssuer, log *zap.Logger) *Service {
	return &Service{Users: users, Tokens: tokens, Issuer: issuer, Hash: DefaultHashParams(), Log: log}
}

// Login verifies credentials and issues a token pair. Unknown email,
// wrong password, inactive account and not-yet-set-up account all
// fail with ErrInvalidCredentials after a hash computation, so none
// of them is distinguishable by response or by timing.
func (s *Service) Login(ctx context.Context, email, password string) (model.User, TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	u, err := s.Users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			VerifyDummy(password)
			return model.User{}, TokenPair{}, ErrInvalidCredentials
		}
		return model.User{}, TokenPair{}, err
	}
	if !u.IsActive || u.PasswordHash == "" {
		VerifyDummy(password)
		return model.User{}, TokenPair{}, ErrInvalidCredentials
	}
	if !VerifyPassword(u.PasswordHash, password) {
		s.Log.Info("login failed", zap.String("email", logging.MaskEmail(email)))
		return model.User{}, TokenPair{}, ErrInvalidCredentials
	}

	pair, err := s.issuePair(u)
	if err != nil {
		return model.User{}, TokenPair{}, err
	}
	s.Log.Info("user authenticated",
		zap.String("user_id", u.ID),
		zap.String("email", logging.MaskEmail(email)),
		zap.Bool("setup_scope", pair.SetupScope))
	return u, pair, nil
}

// Refresh exchanges a refresh token for a new pair. The account's
// is_active flag is re-checked against the store at exchange time so
// a deactivated account cannot keep refreshing, and the role claim is
// re-snapshotted.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (model.User, TokenPair, error) {
	claims, err := s.Issuer.Verify(refreshToken, PurposeRefresh)
	if err != nil {
		return model.User{}, TokenPair{}, err
	}
	u, err := s.Users.GetByID(ctx, claims.UserID())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.User{}, TokenPair{}, ErrUnauthorized
		}
		return model.User{}, TokenPair{}, err
	}
	if !u.IsActive {
		return model.User{}, TokenPair{}, ErrUnauthorized
	}
	pair, err := s.issuePair(u)
	if err != nil {
		return model.User{}, TokenPair{}, err
	}
	return u, pair, nil
}

// issuePair snapshots the user's role into fresh tokens. While a
// password change is mandated the access token is scoped to the
// change-password operation only and no refresh token is issued.
func (s *Service) issuePair(u model.User) (TokenPair, error) {
	setupScope := u.PasswordSetupRequired
	access, exp, err := s.Issuer.IssueAccessToken(u, setupScope)
	if err != nil {
		return TokenPair{}, err
	}
	pair := TokenPair{
		AccessToken: access,
		ExpiresIn:   int(time.Until(exp).Seconds()),
		SetupScope:  setupScope,
	}
	if !setupScope {
		refresh, _, err := s.Issuer.IssueRefreshToken(u)
		if err != nil {
			return TokenPair{}, err
		}
		pair.RefreshToken = refresh
	}
	return pair, nil
}

// Authenticate verifies a bearer access token. This and Authorize are
// the only entry points collaborating modules use.
func (s *Service) Authenticate(token string) (Claims, error) {
	return s.Issuer.Verify(token, PurposeAccess)
}

// CreateUser provisions an account with no usable password and issues
// a setup token for the delivery channel. No caller-supplied password
// is accepted anywhere on this path: an administrator can never
// choose or see another user's password.
func (s *Service) CreateUser(ctx context.Context, email, role string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if role != model.RoleAdmin && role != model.RoleStaff {
		return model.User{}, errors.New("invalid role: must be admin or staff")
	}

	u := model.User{
		ID:                    uuid.NewString(),
		Email:                 email,
		Role:                  role,
		IsActive:              true,
		PasswordSetupRequired: true,
	}
	if err := s.Users.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return model.User{}, ErrEmailExists
		}
		return model.User{}, err
	}
	if err := s.issueLifecycleToken(ctx, u, model.TokenKindSetup, nil); err != nil {
		return model.User{}, err
	}
	s.Log.Info("user created",
		zap.String("user_id", u.ID),
		zap.String("email", logging.MaskEmail(email)),
		zap.String("role", role))
	return u, nil
}

// InitiateReset invalidates any outstanding tokens for the target and
// issues a fresh reset token. The old password is suspended until the
// token is consumed: logging in with it yields only a change-password
// scoped session. Admins reset their own password via ChangePassword,
// not through this path.
func (s *Service) InitiateReset(ctx context.Context, adminID, userID string) error {
	if adminID == userID {
		return ErrSelfProtection
	}
	u, err := s.Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	if err := s.Tokens.InvalidateOutstanding(ctx, u.ID); err != nil {
		return err
	}
	if err := s.Users.SetSetupRequired(ctx, u.ID, true); err != nil {
		return err
	}
	if err := s.issueLifecycleToken(ctx, u, model.TokenKindReset, &adminID); err != nil {
		return err
	}
	s.Log.Info("password reset initiated",
		zap.String("user_id", u.ID),
		zap.String("issued_by", adminID))
	return nil
}

func (s *Service) issueLifecycleToken(ctx context.Context, u model.User, kind string, issuedBy *string) error {
	plain, exp, err := NewLifecycleToken()
	if err != nil {
		return err
	}
	t := model.LifecycleToken{
		UserID:    u.ID,
		TokenHash: HashLifecycleToken(plain),
		Kind:      kind,
		ExpiresAt: exp,
		IssuedBy:  issuedBy,
	}
	if err := s.Tokens.Store(ctx, t); err != nil {
		return err
	}
	if s.Publish != nil {
		ev := queue.TokenIssuedEvent{
			UserID:    u.ID,
			Email:     u.Email,
			Kind:      kind,
			Token:     plain,
			ExpiresAt: exp,
			IssuedAt:  time.Now().UTC(),
		}
		if issuedBy != nil {
			ev.IssuedBy = *issuedBy
		}
		if err := s.Publish(ctx, ev); err != nil {
			// Delivery is best effort here; the admin can re-issue.
			s.Log.Warn("token delivery dispatch failed",
				zap.String("user_id", u.ID), zap.Error(err))
		}
	}
	return nil
}

// ConsumeLifecycleToken validates a setup/reset token, checks the new
// password against the strength policy, then claims the token and
// installs the password hash in one store transaction. A weak password
// leaves the token unconsumed so the user may retry, and a storage
// failure rolls the claim back rather than stranding the account with
// a burned token and no password. Two concurrent submissions of the
// same token result in exactly one success.
func (s *Service) ConsumeLifecycleToken(ctx context.Context, plainToken, newPassword string) error {
	hash := HashLifecycleToken(strings.TrimSpace(plainToken))

	t, err := s.Tokens.Lookup(ctx, hash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrTokenInvalid
		}
		return err
	}
	if t.UsedAt != nil || time.Now().UTC().After(t.ExpiresAt) {
		return ErrTokenInvalid
	}
	if err := CheckPasswordStrength(newPassword); err != nil {
		return err
	}

	pwHash, err := HashPassword(newPassword, s.Hash)
	if err != nil {
		return err
	}
	consumed, err := s.Tokens.Consume(ctx, hash, t.UserID, pwHash)
	if err != nil {
		return err
	}
	if !consumed {
		return ErrTokenInvalid // lost the race or expired between lookup and claim
	}
	s.Log.Info("lifecycle token consumed",
		zap.String("user_id", t.UserID),
		zap.String("kind", t.Kind))
	return nil
}

// ChangePassword lets an authenticated user rotate their own
// password. It is the one operation a setup-scoped session may reach;
// completing it clears the forced-change flag.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	u, err := s.Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUnauthorized
		}
		return err
	}
	if u.PasswordHash == "" || !VerifyPassword(u.PasswordHash, current) {
		return ErrInvalidCredentials
	}
	if err := CheckPasswordStrength(next); err != nil {
		return err
	}
	pwHash, err := HashPassword(next, s.Hash)
	if err != nil {
		return err
	}
	if err := s.Users.SetPassword(ctx, u.ID, pwHash, false); err != nil {
		return err
	}
	s.Log.Info("password changed", zap.String("user_id", u.ID))
	return nil
}

// UserPatch carries the fields an admin profile edit may touch. Nil
// pointers mean "leave unchanged".
type UserPatch struct {
	Email    *string
	Role     *string
	IsActive *bool
}

// UpdateUser applies an admin profile edit. Self-demotion and
// self-deactivation are refused so an install cannot lock out its
// last administrator by accident.
func (s *Service) UpdateUser(ctx context.Context, callerID, userID string, patch UserPatch) (model.User, error) {
	u, err := s.Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, err
	}
	if callerID == userID {
		if patch.Role != nil && *patch.Role != u.Role {
			return model.User{}, ErrSelfProtection
		}
		if patch.IsActive != nil && !*patch.IsActive {
			return model.User{}, ErrSelfProtection
		}
	}
	if patch.Email != nil {
		u.Email = strings.ToLower(strings.TrimSpace(*patch.Email))
	}
	if patch.Role != nil {
		if *patch.Role != model.RoleAdmin && *patch.Role != model.RoleStaff {
			return model.User{}, errors.New("invalid role: must be admin or staff")
		}
		u.Role = *patch.Role
	}
	if patch.IsActive != nil {
		u.IsActive = *patch.IsActive
	}
	if err := s.Users.UpdateProfile(ctx, u); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return model.User{}, ErrEmailExists
		}
		return model.User{}, err
	}
	s.Log.Info("user updated", zap.String("user_id", u.ID))
	return u, nil
}

// DeactivateUser soft-deletes an account. Historical check-in and
// audit rows keep referencing it; it simply can no longer
// authenticate. Self-deactivation is refused.
func (s *Service) DeactivateUser(ctx context.Context, callerID, userID string) error {
	if callerID == userID {
		return ErrSelfProtection
	}
	if err := s.Users.Deactivate(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	s.Log.Info("user deactivated", zap.String("user_id", userID))
	return nil
}

// ListUsers returns all accounts, newest first.
func (s *Service) ListUsers(ctx context.Context) ([]model.User, error) {
	return s.Users.List(ctx)
}

// GetUser returns a single account.
func (s *Service) GetUser(ctx context.Context, userID string) (model.User, error) {
	u, err := s.Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, err
	}
	return u, nil
}
