package auth

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/sla-service/internal/domain"
	apperrors "github.com/spec-kit/sla-service/pkg/util/errorutil"
)

const principalLocal = "sla.principal"

type principalCtxKey struct{}

// Principal is the authenticated service account. Every request acts for
// exactly one organization.
type Principal struct {
	AccountID string
	OrgID     string
	Role      domain.Role
}

// AuthMiddleware validates bearer tokens. The token carries org and role so
// requests need no account lookup.
type AuthMiddleware struct {
	tokens *TokenManager
}

func NewAuthMiddleware(tokens *TokenManager) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Handle rejects requests without a valid bearer token and stores the
// principal on the fiber context and the request's user context.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	raw, ok := bearerToken(c.Get(fiber.HeaderAuthorization))
	if !ok {
		return apperrors.NewUnauthorized("bearer token required")
	}
	claims, err := m.tokens.ParseToken(raw)
	if err != nil {
		return apperrors.NewUnauthorized("invalid or expired token")
	}

	p := &Principal{AccountID: claims.AccountID(), OrgID: claims.OrgID, Role: claims.Role}
	c.Locals(principalLocal, p)
	c.SetUserContext(WithPrincipal(c.UserContext(), p))
	return c.Next()
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// CurrentPrincipal returns the principal stored by Handle.
func CurrentPrincipal(c *fiber.Ctx) (*Principal, bool) {
	p, ok := c.Locals(principalLocal).(*Principal)
	return p, ok && p != nil
}

// WithPrincipal attaches p to ctx.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalCtxKey{}, p)
}

// PrincipalFrom returns the principal attached to ctx, if any.
func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalCtxKey{}).(*Principal)
	return p, ok && p != nil
}
