package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/sla-service/internal/auth"
	"github.com/spec-kit/sla-service/internal/domain"
	"github.com/spec-kit/sla-service/internal/repository/memory"
	apperrors "github.com/spec-kit/sla-service/pkg/util/errorutil"
)

func TestAuthService_CreateAndAuthenticate(t *testing.T) {
	store := memory.NewStore()
	tokens := auth.NewTokenManager("secret", time.Hour)
	svc := NewAuthService(store.Repositories().Accounts, tokens, bcrypt.MinCost)
	ctx := context.Background()

	account, err := svc.CreateAccount(ctx, testOrg, "scheduler", "a-long-client-secret", domain.RoleScheduler)
	require.NoError(t, err)
	assert.NotEqual(t, "a-long-client-secret", account.SecretHash)

	issued, err := svc.Authenticate(ctx, "scheduler", "a-long-client-secret")
	require.NoError(t, err)
	claims, err := tokens.ParseToken(issued.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, testOrg, claims.OrgID)
	assert.Equal(t, domain.RoleScheduler, claims.Role)
	assert.Equal(t, account.ID, claims.AccountID())

	_, err = svc.Authenticate(ctx, "scheduler", "wrong-secret")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))
	_, err = svc.Authenticate(ctx, "nobody", "a-long-client-secret")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))

	_, err = svc.CreateAccount(ctx, testOrg, "scheduler", "another-long-secret", domain.RoleAdmin)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))
}

func TestAuthService_CreateAccountValidates(t *testing.T) {
	svc := NewAuthService(memory.NewStore().Repositories().Accounts, auth.NewTokenManager("s", time.Hour), bcrypt.MinCost)

	_, err := svc.CreateAccount(context.Background(), "", "c", "short", "ROOT")
	require.Error(t, err)
	de := apperrors.ToDomainError(err)
	assert.Equal(t, apperrors.CodeValidationFailed, de.Code)
	assert.Contains(t, de.Details, "org_id")
	assert.Contains(t, de.Details, "client_secret")
	assert.Contains(t, de.Details, "role")

	_, err = svc.Authenticate(context.Background(), "", "")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidationFailed))
}
