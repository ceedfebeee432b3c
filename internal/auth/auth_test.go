package auth

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/sla-service/internal/domain"
	apperrors "github.com/spec-kit/sla-service/pkg/util/errorutil"
)

func account(role domain.Role) *domain.ServiceAccount {
	return &domain.ServiceAccount{ID: "acct-1", OrgID: "org-1", ClientID: "client", Role: role, Active: true}
}

func TestTokenManager_RoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", time.Hour)
	token, exp, err := tm.GenerateToken(account(domain.RoleScheduler))
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "acct-1", claims.AccountID())
	assert.Equal(t, "org-1", claims.OrgID)
	assert.Equal(t, domain.RoleScheduler, claims.Role)
}

func TestTokenManager_RejectsOtherSecretAndExpired(t *testing.T) {
	token, _, err := NewTokenManager("a", time.Hour).GenerateToken(account(domain.RoleAdmin))
	require.NoError(t, err)
	_, err = NewTokenManager("b", time.Hour).ParseToken(token)
	assert.Error(t, err)

	expired := NewTokenManager("a", time.Minute)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, _, err = expired.GenerateToken(account(domain.RoleAdmin))
	require.NoError(t, err)
	_, err = expired.ParseToken(token)
	assert.Error(t, err)
}

func signed(t *testing.T, method jwt.SigningMethod, key interface{}, claims *Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func TestTokenManager_RejectsForeignTokens(t *testing.T) {
	tm := NewTokenManager("secret", time.Hour)
	valid := func() *Claims {
		return &Claims{
			OrgID: "org-1",
			Role:  domain.RoleAdmin,
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    TokenIssuer,
				Subject:   "acct-1",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}
	}
	_, err := tm.ParseToken(signed(t, jwt.SigningMethodHS256, []byte("secret"), valid()))
	require.NoError(t, err)

	otherIssuer := valid()
	otherIssuer.Issuer = "someone-else"
	noOrg := valid()
	noOrg.OrgID = ""
	noExpiry := valid()
	noExpiry.ExpiresAt = nil
	badRole := valid()
	badRole.Role = "ROOT"

	for name, claims := range map[string]*Claims{
		"issuer": otherIssuer, "org": noOrg, "expiry": noExpiry, "role": badRole,
	} {
		_, err := tm.ParseToken(signed(t, jwt.SigningMethodHS256, []byte("secret"), claims))
		assert.ErrorIs(t, err, ErrInvalidToken, name)
	}

	_, err = tm.ParseToken(signed(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, valid()))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRequireRole(t *testing.T) {
	tm := NewTokenManager("secret", time.Hour)
	mw := NewAuthMiddleware(tm)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.SendStatus(apperrors.ToDomainError(err).HTTPStatus)
		},
	})
	app.Post("/sweeps", mw.Handle, RequireRole(domain.RoleScheduler), func(c *fiber.Ctx) error {
		p, _ := CurrentPrincipal(c)
		return c.SendString(p.OrgID)
	})

	call := func(role *domain.Role) int {
		req := httptest.NewRequest(http.MethodPost, "/sweeps", nil)
		if role != nil {
			token, _, err := tm.GenerateToken(account(*role))
			require.NoError(t, err)
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	scheduler, admin, integration := domain.RoleScheduler, domain.RoleAdmin, domain.RoleIntegration
	assert.Equal(t, http.StatusOK, call(&scheduler))
	assert.Equal(t, http.StatusOK, call(&admin))
	assert.Equal(t, http.StatusForbidden, call(&integration))
	assert.Equal(t, http.StatusUnauthorized, call(nil))
}

func TestSecretHashing(t *testing.T) {
	hash, err := HashSecret("s3cret-value", bcrypt.MinCost)
	require.NoError(t, err)
	assert.True(t, VerifySecret(hash, "s3cret-value"))
	assert.False(t, VerifySecret(hash, "wrong"))
	assert.False(t, VerifySecret("", "s3cret-value"))

	_, err = HashSecret(strings.Repeat("x", 73), bcrypt.MinCost)
	assert.ErrorIs(t, err, ErrSecretTooLong)
}

func TestHashSecret_OutOfRangeCostUsesDefault(t *testing.T) {
	hash, err := HashSecret("s3cret-value", 99)
	require.NoError(t, err)
	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.DefaultCost, cost)
}

func TestBearerToken(t *testing.T) {
	cases := map[string]struct {
		header string
		token  string
		ok     bool
	}{
		"bearer":       {"Bearer abc", "abc", true},
		"lowercase":    {"bearer abc", "abc", true},
		"padded":       {"  Bearer   abc  ", "abc", true},
		"basic":        {"Basic abc", "", false},
		"empty token":  {"Bearer ", "", false},
		"no separator": {"Bearerabc", "", false},
		"empty":        {"", "", false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			token, ok := bearerToken(tc.header)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.token, token)
		})
	}
}

func TestHandle_StoresPrincipalOnUserContext(t *testing.T) {
	tm := NewTokenManager("secret", time.Hour)
	app := fiber.New()
	app.Get("/me", NewAuthMiddleware(tm).Handle, func(c *fiber.Ctx) error {
		p, ok := PrincipalFrom(c.UserContext())
		if !ok {
			return c.SendStatus(http.StatusInternalServerError)
		}
		return c.SendString(p.OrgID + "/" + p.AccountID + "/" + string(p.Role))
	})

	token, _, err := tm.GenerateToken(account(domain.RoleIntegration))
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "org-1/acct-1/INTEGRATION", string(body))
}
