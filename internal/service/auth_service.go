package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/spec-kit/sla-service/internal/auth"
	"github.com/spec-kit/sla-service/internal/domain"
	"github.com/spec-kit/sla-service/internal/repository"
	apperrors "github.com/spec-kit/sla-service/pkg/util/errorutil"
)

// AuthService exchanges service account credentials for access tokens.
type AuthService struct {
	accounts   repository.AccountRepository
	tokens     *auth.TokenManager
	bcryptCost int
}

// NewAuthService builds the service.
func NewAuthService(accounts repository.AccountRepository, tokens *auth.TokenManager, bcryptCost int) *AuthService {
	return &AuthService{accounts: accounts, tokens: tokens, bcryptCost: bcryptCost}
}

// IssuedToken is a signed access token.
type IssuedToken struct {
	AccessToken string
	ExpiresAt   time.Time
	Account     *domain.ServiceAccount
}

// Authenticate verifies client credentials. Unknown clients and wrong
// secrets produce the same error.
func (s *AuthService) Authenticate(ctx context.Context, clientID, secret string) (*IssuedToken, error) {
	if strings.TrimSpace(clientID) == "" || secret == "" {
		return nil, apperrors.NewValidationError("client_id and client_secret required", nil)
	}
	account, err := s.accounts.GetByClientID(ctx, clientID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewUnauthorized("invalid client credentials")
		}
		return nil, err
	}
	if !account.Active {
		return nil, apperrors.NewUnauthorized("invalid client credentials")
	}
	if !auth.VerifySecret(account.SecretHash, secret) {
		return nil, apperrors.NewUnauthorized("invalid client credentials")
	}

	token, exp, err := s.tokens.GenerateToken(account)
	if err != nil {
		return nil, err
	}
	return &IssuedToken{AccessToken: token, ExpiresAt: exp, Account: account}, nil
}

// CreateAccount registers a service account with a hashed secret.
func (s *AuthService) CreateAccount(ctx context.Context, orgID, clientID, secret string, role domain.Role) (*domain.ServiceAccount, error) {
	details := map[string]any{}
	if strings.TrimSpace(orgID) == "" {
		details["org_id"] = "required"
	}
	if strings.TrimSpace(clientID) == "" {
		details["client_id"] = "required"
	}
	if len(secret) < 12 || len(secret) > 72 {
		details["client_secret"] = "must be 12 to 72 characters"
	}
	if !auth.ValidRole(role) {
		details["role"] = "must be ADMIN, SCHEDULER or INTEGRATION"
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid service account", details)
	}

	hash, err := auth.HashSecret(secret, s.bcryptCost)
	if err != nil {
		return nil, err
	}
	account := &domain.ServiceAccount{
		OrgID:      orgID,
		ClientID:   clientID,
		SecretHash: hash,
		Role:       role,
		Active:     true,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.NewConflict("client_id already registered", map[string]any{"client_id": clientID})
		}
		return nil, err
	}
	return account, nil
}
