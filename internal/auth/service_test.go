package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/amirkhv/member-gate/internal/model"
	"github.com/amirkhv/member-gate/internal/queue"
	"github.com/amirkhv/member-gate/internal/repository"
)

// ----- in-memory fakes -----

type fakeUsers struct {
	mu    sync.Mutex
	users map[string]model.User // by id
}

func newFakeUsers() *fakeUsers { return &fakeUsers{users: make(map[string]model.User)} }

func (f *fakeUsers) Create(_ context.Context, u model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if existing.Email == u.Email {
			return repository.ErrEmailExists
		}
	}
	u.CreatedAt = time.Now().UTC()
	u.UpdatedAt = u.CreatedAt
	f.users[u.ID] = u
	return nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == strings.ToLower(email) {
			return u, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) List(_ context.Context) ([]model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.User, 0, len(f.users))
	for _, u := range f.users {
		out = append(out, u)
	}
	return out, nil
}

func (f *fakeUsers) UpdateProfile(_ context.Context, u model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.users[u.ID]
	if !ok {
		return repository.ErrNotFound
	}
	for id, other := range f.users {
		if id != u.ID && other.Email == u.Email {
			return repository.ErrEmailExists
		}
	}
	cur.Email = u.Email
	cur.Role = u.Role
	cur.IsActive = u.IsActive
	cur.UpdatedAt = time.Now().UTC()
	f.users[u.ID] = cur
	return nil
}

func (f *fakeUsers) SetPassword(_ context.Context, id, hash string, setupRequired bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.PasswordHash = hash
	u.PasswordSetupRequired = setupRequired
	f.users[id] = u
	return nil
}

func (f *fakeUsers) SetSetupRequired(_ context.Context, id string, required bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.PasswordSetupRequired = required
	f.users[id] = u
	return nil
}

func (f *fakeUsers) Deactivate(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.IsActive = false
	f.users[id] = u
	return nil
}

type fakeTokens struct {
	mu         sync.Mutex
	tokens     map[string]model.LifecycleToken // by hash
	users      *fakeUsers
	consumeErr error // injected storage failure; the consume rolls back
}

func newFakeTokens(users *fakeUsers) *fakeTokens {
	return &fakeTokens{tokens: make(map[string]model.LifecycleToken), users: users}
}

func (f *fakeTokens) Store(_ context.Context, t model.LifecycleToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t.CreatedAt = time.Now().UTC()
	f.tokens[t.TokenHash] = t
	return nil
}

func (f *fakeTokens) Lookup(_ context.Context, hash string) (model.LifecycleToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tokens[hash]
	if !ok {
		return model.LifecycleToken{}, repository.ErrNotFound
	}
	return t, nil
}

// Consume mirrors the repository transaction: check-and-mark plus the
// password install run under one lock, so only one concurrent caller
// can win and a failure leaves the token unburned.
func (f *fakeTokens) Consume(ctx context.Context, hash, userID, passwordHash string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tokens[hash]
	if !ok || t.UsedAt != nil || time.Now().UTC().After(t.ExpiresAt) {
		return false, nil
	}
	if f.consumeErr != nil {
		return false, f.consumeErr
	}
	if err := f.users.SetPassword(ctx, userID, passwordHash, false); err != nil {
		return false, err
	}
	now := time.Now().UTC()
	t.UsedAt = &now
	f.tokens[hash] = t
	return true, nil
}

func (f *fakeTokens) InvalidateOutstanding(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now().UTC()
	for hash, t := range f.tokens {
		if t.UserID == userID && t.UsedAt == nil {
			t.UsedAt = &now
			f.tokens[hash] = t
		}
	}
	return nil
}

// ----- helpers -----

type capturedEvents struct {
	mu     sync.Mutex
	events []queue.TokenIssuedEvent
}

func (c *capturedEvents) publish(_ context.Context, ev queue.TokenIssuedEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *capturedEvents) last(t *testing.T) queue.TokenIssuedEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.events)
	return c.events[len(c.events)-1]
}

func newTestService() (*Service, *fakeUsers, *fakeTokens, *capturedEvents) {
	users := newFakeUsers()
	tokens := newFakeTokens(users)
	events := &capturedEvents{}
	svc := NewService(users, tokens, testIssuer(), zap.NewNop())
	svc.Hash = lightParams
	svc.Publish = events.publish
	return svc, users, tokens, events
}

func seedUser(t *testing.T, users *fakeUsers, email, role, password string, active, setupRequired bool) model.User {
	t.Helper()
	u := model.User{
		ID:                    uuid.NewString(),
		Email:                 email,
		Role:                  role,
		IsActive:              active,
		PasswordSetupRequired: setupRequired,
	}
	if password != "" {
		hash, err := HashPassword(password, lightParams)
		require.NoError(t, err)
		u.PasswordHash = hash
	}
	require.NoError(t, users.Create(context.Background(), u))
	return u
}

const goodPassword = "Valid#Pass7w"

var errTransient = errors.New("storage unavailable")

// ----- login -----

func TestLoginSuccess(t *testing.T) {
	svc, users, _, _ := newTestService()
	seeded := seedUser(t, users, "staff@example.com", model.RoleStaff, goodPassword, true, false)

	u, pair, err := svc.Login(context.Background(), "Staff@Example.COM", goodPassword)
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, u.ID)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.False(t, pair.SetupScope)
	assert.Greater(t, pair.ExpiresIn, 0)

	claims, err := svc.Authenticate(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, claims.UserID())
	assert.Equal(t, model.RoleStaff, claims.Role)
}

func TestLoginFailsUniformly(t *testing.T) {
	svc, users, _, _ := newTestService()
	seedUser(t, users, "active@example.com", model.RoleStaff, goodPassword, true, false)
	seedUser(t, users, "inactive@example.com", model.RoleStaff, goodPassword, false, false)
	seedUser(t, users, "nopassword@example.com", model.RoleStaff, "", true, true)

	cases := []struct {
		name, email, password string
	}{
		{"wrong password", "active@example.com", "Wrong#Pass7w"},
		{"unknown email", "nobody@example.com", goodPassword},
		{"inactive account", "inactive@example.com", goodPassword},
		{"account without password", "nopassword@example.com", goodPassword},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := svc.Login(context.Background(), tc.email, tc.password)
			// Always the same error value: callers cannot tell the cases apart.
			assert.ErrorIs(t, err, ErrInvalidCredentials)
		})
	}
}

func TestLoginForcedChangeIssuesScopedToken(t *testing.T) {
	svc, users, _, _ := newTestService()
	seedUser(t, users, "temp@example.com", model.RoleStaff, goodPassword, true, true)

	_, pair, err := svc.Login(context.Background(), "temp@example.com", goodPassword)
	require.NoError(t, err)
	assert.True(t, pair.SetupScope)
	assert.Empty(t, pair.RefreshToken, "a mandated-change session must not mint refresh tokens")

	claims, err := svc.Authenticate(pair.AccessToken)
	require.NoError(t, err)
	assert.True(t, claims.SetupScope)
}

// ----- refresh -----

func TestRefreshRechecksActiveFlag(t *testing.T) {
	svc, users, _, _ := newTestService()
	u := seedUser(t, users, "staff@example.com", model.RoleStaff, goodPassword, true, false)

	_, pair, err := svc.Login(context.Background(), u.Email, goodPassword)
	require.NoError(t, err)

	_, _, err = svc.Refresh(context.Background(), pair.RefreshToken)
	require.NoError(t, err)

	require.NoError(t, users.Deactivate(context.Background(), u.ID))
	_, _, err = svc.Refresh(context.Background(), pair.RefreshToken)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestRefreshResnapshotsRole(t *testing.T) {
	svc, users, _, _ := newTestService()
	u := seedUser(t, users, "staff@example.com", model.RoleStaff, goodPassword, true, false)

	_, pair, err := svc.Login(context.Background(), u.Email, goodPassword)
	require.NoError(t, err)

	promoted := u
	promoted.Role = model.RoleAdmin
	require.NoError(t, users.UpdateProfile(context.Background(), promoted))

	_, fresh, err := svc.Refresh(context.Background(), pair.RefreshToken)
	require.NoError(t, err)
	claims, err := svc.Authenticate(fresh.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, claims.Role)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	svc, users, _, _ := newTestService()
	u := seedUser(t, users, "staff@example.com", model.RoleStaff, goodPassword, true, false)

	_, pair, err := svc.Login(context.Background(), u.Email, goodPassword)
	require.NoError(t, err)

	_, _, err = svc.Refresh(context.Background(), pair.AccessToken)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

// ----- user creation and lifecycle tokens -----

func TestCreateUserIssuesSetupToken(t *testing.T) {
	svc, users, tokens, events := newTestService()

	u, err := svc.CreateUser(context.Background(), "New.Staff@Example.com", model.RoleStaff)
	require.NoError(t, err)
	assert.Equal(t, "new.staff@example.com", u.Email)
	assert.Empty(t, u.PasswordHash, "no password may exist before setup")
	assert.True(t, u.PasswordSetupRequired)

	ev := events.last(t)
	assert.Equal(t, model.TokenKindSetup, ev.Kind)
	assert.Equal(t, u.ID, ev.UserID)
	assert.Len(t, ev.Token, 64) // 32 random bytes, hex encoded

	stored, err := tokens.Lookup(context.Background(), HashLifecycleToken(ev.Token))
	require.NoError(t, err)
	assert.Nil(t, stored.UsedAt)
	assert.Nil(t, stored.IssuedBy)

	// The new account cannot authenticate yet.
	_, _, err = svc.Login(context.Background(), u.Email, "anything")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	persisted, err := users.GetByID(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Empty(t, persisted.PasswordHash)
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	svc, _, _, _ := newTestService()
	_, err := svc.CreateUser(context.Background(), "dup@example.com", model.RoleStaff)
	require.NoError(t, err)
	_, err = svc.CreateUser(context.Background(), "dup@example.com", model.RoleAdmin)
	assert.ErrorIs(t, err, ErrEmailExists)
}

func TestConsumeLifecycleToken(t *testing.T) {
	svc, users, _, events := newTestService()
	u, err := svc.CreateUser(context.Background(), "new@example.com", model.RoleStaff)
	require.NoError(t, err)
	plain := events.last(t).Token

	require.NoError(t, svc.ConsumeLifecycleToken(context.Background(), plain, goodPassword))

	stored, err := users.GetByID(context.Background(), u.ID)
	require.NoError(t, err)
	assert.False(t, stored.PasswordSetupRequired)
	assert.True(t, VerifyPassword(stored.PasswordHash, goodPassword))

	// Second use of the same token must fail.
	err = svc.ConsumeLifecycleToken(context.Background(), plain, "Other#Pass8w")
	assert.ErrorIs(t, err, ErrTokenInvalid)

	// And login now works.
	_, _, err = svc.Login(context.Background(), u.Email, goodPassword)
	assert.NoError(t, err)
}

func TestConsumeWeakPasswordLeavesTokenUsable(t *testing.T) {
	svc, _, _, events := newTestService()
	_, err := svc.CreateUser(context.Background(), "new@example.com", model.RoleStaff)
	require.NoError(t, err)
	plain := events.last(t).Token

	err = svc.ConsumeLifecycleToken(context.Background(), plain, "weak")
	assert.ErrorIs(t, err, ErrWeakPassword)

	// The rejection must not burn the token.
	assert.NoError(t, svc.ConsumeLifecycleToken(context.Background(), plain, goodPassword))
}

func TestConsumeStorageFailureLeavesTokenUsable(t *testing.T) {
	svc, users, tokens, events := newTestService()
	u, err := svc.CreateUser(context.Background(), "new@example.com", model.RoleStaff)
	require.NoError(t, err)
	plain := events.last(t).Token

	// A failed install must roll the claim back: the token stays
	// valid and the account is not stranded without a password.
	tokens.consumeErr = errTransient
	err = svc.ConsumeLifecycleToken(context.Background(), plain, goodPassword)
	assert.ErrorIs(t, err, errTransient)

	stored, err := users.GetByID(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.PasswordHash)

	tokens.consumeErr = nil
	assert.NoError(t, svc.ConsumeLifecycleToken(context.Background(), plain, goodPassword))
}

func TestConsumeExpiredToken(t *testing.T) {
	svc, users, tokens, _ := newTestService()
	u := seedUser(t, users, "new@example.com", model.RoleStaff, "", true, true)

	plain, _, err := NewLifecycleToken()
	require.NoError(t, err)
	require.NoError(t, tokens.Store(context.Background(), model.LifecycleToken{
		UserID:    u.ID,
		TokenHash: HashLifecycleToken(plain),
		Kind:      model.TokenKindSetup,
		ExpiresAt: time.Now().UTC().Add(-time.Second),
	}))

	err = svc.ConsumeLifecycleToken(context.Background(), plain, goodPassword)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestConsumeJustBeforeExpiry(t *testing.T) {
	svc, users, tokens, _ := newTestService()
	u := seedUser(t, users, "new@example.com", model.RoleStaff, "", true, true)

	plain, _, err := NewLifecycleToken()
	require.NoError(t, err)
	require.NoError(t, tokens.Store(context.Background(), model.LifecycleToken{
		UserID:    u.ID,
		TokenHash: HashLifecycleToken(plain),
		Kind:      model.TokenKindSetup,
		ExpiresAt: time.Now().UTC().Add(time.Second),
	}))

	assert.NoError(t, svc.ConsumeLifecycleToken(context.Background(), plain, goodPassword))
}

func TestConsumeConcurrentSingleUse(t *testing.T) {
	svc, _, _, events := newTestService()
	_, err := svc.CreateUser(context.Background(), "new@example.com", model.RoleStaff)
	require.NoError(t, err)
	plain := events.last(t).Token

	const attempts = 8
	errs := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- svc.ConsumeLifecycleToken(context.Background(), plain, goodPassword)
		}()
	}
	wg.Wait()
	close(errs)

	var successes, invalids int
	for err := range errs {
		switch {
		case err == nil:
			successes++
		default:
			assert.ErrorIs(t, err, ErrTokenInvalid)
			invalids++
		}
	}
	assert.Equal(t, 1, successes, "exactly one concurrent consumption may win")
	assert.Equal(t, attempts-1, invalids)
}

// ----- reset -----

func TestInitiateResetInvalidatesOutstandingTokens(t *testing.T) {
	svc, users, _, events := newTestService()
	admin := seedUser(t, users, "admin@example.com", model.RoleAdmin, goodPassword, true, false)
	u, err := svc.CreateUser(context.Background(), "staff@example.com", model.RoleStaff)
	require.NoError(t, err)
	setupToken := events.last(t).Token

	require.NoError(t, svc.InitiateReset(context.Background(), admin.ID, u.ID))
	resetEv := events.last(t)
	assert.Equal(t, model.TokenKindReset, resetEv.Kind)
	assert.Equal(t, admin.ID, resetEv.IssuedBy)

	// The earlier setup token died with the reset.
	err = svc.ConsumeLifecycleToken(context.Background(), setupToken, goodPassword)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	// The fresh reset token works.
	assert.NoError(t, svc.ConsumeLifecycleToken(context.Background(), resetEv.Token, goodPassword))
}

func TestInitiateResetSuspendsOldPassword(t *testing.T) {
	svc, users, _, _ := newTestService()
	admin := seedUser(t, users, "admin@example.com", model.RoleAdmin, goodPassword, true, false)
	staff := seedUser(t, users, "staff@example.com", model.RoleStaff, goodPassword, true, false)

	require.NoError(t, svc.InitiateReset(context.Background(), admin.ID, staff.ID))

	// The old password only reaches a change-password-scoped session now.
	_, pair, err := svc.Login(context.Background(), staff.Email, goodPassword)
	require.NoError(t, err)
	assert.True(t, pair.SetupScope)
	assert.Empty(t, pair.RefreshToken)
}

func TestInitiateResetRefusesSelf(t *testing.T) {
	svc, users, _, _ := newTestService()
	admin := seedUser(t, users, "admin@example.com", model.RoleAdmin, goodPassword, true, false)

	err := svc.InitiateReset(context.Background(), admin.ID, admin.ID)
	assert.ErrorIs(t, err, ErrSelfProtection)
}

// ----- change password -----

func TestChangePasswordClearsForcedFlag(t *testing.T) {
	svc, users, _, _ := newTestService()
	u := seedUser(t, users, "staff@example.com", model.RoleStaff, goodPassword, true, true)

	const next = "Fresh!Pass9w"
	require.NoError(t, svc.ChangePassword(context.Background(), u.ID, goodPassword, next))

	stored, err := users.GetByID(context.Background(), u.ID)
	require.NoError(t, err)
	assert.False(t, stored.PasswordSetupRequired)

	_, pair, err := svc.Login(context.Background(), u.Email, next)
	require.NoError(t, err)
	assert.False(t, pair.SetupScope)
}

func TestChangePasswordRequiresCurrent(t *testing.T) {
	svc, users, _, _ := newTestService()
	u := seedUser(t, users, "staff@example.com", model.RoleStaff, goodPassword, true, false)

	err := svc.ChangePassword(context.Background(), u.ID, "Wrong#Pass7w", "Fresh!Pass9w")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	err = svc.ChangePassword(context.Background(), u.ID, goodPassword, "weak")
	assert.ErrorIs(t, err, ErrWeakPassword)
}

// ----- admin edits and self-protection -----

func TestUpdateUserSelfProtection(t *testing.T) {
	svc, users, _, _ := newTestService()
	admin := seedUser(t, users, "admin@example.com", model.RoleAdmin, goodPassword, true, false)
	other := seedUser(t, users, "other@example.com", model.RoleAdmin, goodPassword, true, false)

	staffRole := model.RoleStaff
	inactive := false

	_, err := svc.UpdateUser(context.Background(), admin.ID, admin.ID, UserPatch{Role: &staffRole})
	assert.ErrorIs(t, err, ErrSelfProtection)

	_, err = svc.UpdateUser(context.Background(), admin.ID, admin.ID, UserPatch{IsActive: &inactive})
	assert.ErrorIs(t, err, ErrSelfProtection)

	// The same edits against another admin succeed.
	updated, err := svc.UpdateUser(context.Background(), admin.ID, other.ID, UserPatch{Role: &staffRole})
	require.NoError(t, err)
	assert.Equal(t, model.RoleStaff, updated.Role)
}

func TestGetUser(t *testing.T) {
	svc, users, _, _ := newTestService()
	u := seedUser(t, users, "staff@example.com", model.RoleStaff, goodPassword, true, false)

	got, err := svc.GetUser(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.Email, got.Email)
	assert.Equal(t, u.Role, got.Role)

	_, err = svc.GetUser(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeactivateUserSelfProtection(t *testing.T) {
	svc, users, _, _ := newTestService()
	admin := seedUser(t, users, "admin@example.com", model.RoleAdmin, goodPassword, true, false)
	other := seedUser(t, users, "other@example.com", model.RoleAdmin, goodPassword, true, false)

	assert.ErrorIs(t, svc.DeactivateUser(context.Background(), admin.ID, admin.ID), ErrSelfProtection)
	assert.NoError(t, svc.DeactivateUser(context.Background(), admin.ID, other.ID))

	stored, err := users.GetByID(context.Background(), other.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)
}
