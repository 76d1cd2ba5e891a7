package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/amirkhv/member-gate/internal/auth"
	"github.com/amirkhv/member-gate/internal/limiter"
	"github.com/amirkhv/member-gate/internal/model"
	"github.com/amirkhv/member-gate/internal/rbac"
)

func newIssuer() *auth.TokenIssuer {
	return &auth.TokenIssuer{
		Secret:     []byte("mw-test-secret"),
		Issuer:     "member-gate-test",
		Audience:   "member-gate-test",
		AccessTTL:  5 * time.Minute,
		RefreshTTL: time.Hour,
	}
}

func okHandler(c echo.Context) error { return c.String(http.StatusOK, "ok") }

func request(e *echo.Echo, h echo.HandlerFunc, mws []echo.MiddlewareFunc, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	wrapped := h
	for i := len(mws) - 1; i >= 0; i-- {
		wrapped = mws[i](wrapped)
	}
	_ = wrapped(c)
	return rec
}

func TestJWTAuthAcceptsValidAccessToken(t *testing.T) {
	e := echo.New()
	issuer := newIssuer()
	u := model.User{ID: "u-1", Role: model.RoleStaff}
	token, _, err := issuer.IssueAccessToken(u, false)
	require.NoError(t, err)

	rec := request(e, okHandler, []echo.MiddlewareFunc{JWTAuth(issuer)}, token)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestJWTAuthRejectsUniformly(t *testing.T) {
	e := echo.New()
	issuer := newIssuer()

	// Refresh tokens, garbage and foreign tokens all get the same 401 body.
	refresh, _, err := issuer.IssueRefreshToken(model.User{ID: "u-1", Role: model.RoleStaff})
	require.NoError(t, err)
	foreign := newIssuer()
	foreign.Secret = []byte("other-secret")
	foreignTok, _, err := foreign.IssueAccessToken(model.User{ID: "u-1", Role: model.RoleStaff}, false)
	require.NoError(t, err)

	for _, token := range []string{"", "garbage", refresh, foreignTok} {
		rec := request(e, okHandler, []echo.MiddlewareFunc{JWTAuth(issuer)}, token)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"error":"unauthorized"}`, rec.Body.String())
	}
}

func TestRequireFullSessionBlocksSetupScope(t *testing.T) {
	e := echo.New()
	issuer := newIssuer()
	u := model.User{ID: "u-1", Role: model.RoleStaff}

	scoped, _, err := issuer.IssueAccessToken(u, true)
	require.NoError(t, err)
	full, _, err := issuer.IssueAccessToken(u, false)
	require.NoError(t, err)

	chain := []echo.MiddlewareFunc{JWTAuth(issuer), RequireFullSession()}

	rec := request(e, okHandler, chain, scoped)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = request(e, okHandler, chain, full)
	assert.Equal(t, http.StatusOK, rec.Code)

	// The scoped token still passes plain JWTAuth, which is what the
	// change-password route mounts.
	rec = request(e, okHandler, []echo.MiddlewareFunc{JWTAuth(issuer)}, scoped)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireCapability(t *testing.T) {
	e := echo.New()
	issuer := newIssuer()

	adminTok, _, err := issuer.IssueAccessToken(model.User{ID: "a-1", Role: model.RoleAdmin}, false)
	require.NoError(t, err)
	staffTok, _, err := issuer.IssueAccessToken(model.User{ID: "s-1", Role: model.RoleStaff}, false)
	require.NoError(t, err)

	chain := []echo.MiddlewareFunc{JWTAuth(issuer), RequireCapability(rbac.CapUserAdmin)}

	rec := request(e, okHandler, chain, adminTok)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = request(e, okHandler, chain, staffTok)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// A pending password change strips capabilities from any role, so
	// the denial holds even where RequireFullSession is not mounted.
	scopedTok, _, err := issuer.IssueAccessToken(model.User{ID: "a-2", Role: model.RoleAdmin}, true)
	require.NoError(t, err)
	rec = request(e, okHandler, chain, scopedTok)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestLoginRateLimitRejectsWithRetryAfter(t *testing.T) {
	e := echo.New()
	l := limiter.NewMemoryLimiter(2, time.Minute)
	chain := []echo.MiddlewareFunc{LoginRateLimit(l, zap.NewNop())}

	for i := 0; i < 2; i++ {
		rec := request(e, okHandler, chain, "")
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	rec := request(e, okHandler, chain, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}
