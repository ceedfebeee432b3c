package domain

import "time"

// Role enumerates service account permissions.
type Role string

const (
	RoleAdmin       Role = "ADMIN"
	RoleScheduler   Role = "SCHEDULER"
	RoleIntegration Role = "INTEGRATION"
)

// ServiceAccount is an API client of the SLA service, scoped to one organization.
type ServiceAccount struct {
	ID         string
	OrgID      string
	ClientID   string
	SecretHash string
	Role       Role
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Token represents issued access token metadata.
type Token struct {
	ID        string
	AccountID string
	OrgID     string
	Role      Role
	ExpiresAt time.Time
	IssuedAt  time.Time
}
