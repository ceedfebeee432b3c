package postgres

import (
	"context"

	"github.com/spec-kit/sla-service/internal/domain"
)

type accountRepository struct {
	db DBTX
}

func (r *accountRepository) Create(ctx context.Context, account *domain.ServiceAccount) error {
	const query = `
        INSERT INTO service_accounts (org_id, client_id, secret_hash, role, active)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at, updated_at`
	return mapError(r.db.QueryRow(ctx, query,
		account.OrgID,
		account.ClientID,
		account.SecretHash,
		account.Role,
		account.Active,
	).Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt))
}

func (r *accountRepository) GetByClientID(ctx context.Context, clientID string) (*domain.ServiceAccount, error) {
	const query = `
        SELECT id, org_id, client_id, secret_hash, role, active, created_at, updated_at
        FROM service_accounts WHERE client_id=$1`
	var account domain.ServiceAccount
	if err := r.db.QueryRow(ctx, query, clientID).Scan(
		&account.ID,
		&account.OrgID,
		&account.ClientID,
		&account.SecretHash,
		&account.Role,
		&account.Active,
		&account.CreatedAt,
		&account.UpdatedAt,
	); err != nil {
		return nil, mapError(err)
	}
	return &account, nil
}
