// Package repository defines persistence contracts for the SLA engine. Stores
// live in the postgres, sqlite and memory subpackages.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/spec-kit/sla-service/internal/domain"
)

var (
	// ErrNotFound is returned when a record does not exist for the org.
	ErrNotFound = errors.New("repository: not found")
	// ErrVersionConflict is returned when an update lost an optimistic lock race.
	ErrVersionConflict = errors.New("repository: version conflict")
	// ErrDuplicate is returned when a unique key already exists.
	ErrDuplicate = errors.New("repository: duplicate")
)

// ScheduleRepository persists business hours schedules.
type ScheduleRepository interface {
	Create(ctx context.Context, schedule *domain.BusinessHoursSchedule) error
	// Update bumps Version when the stored version matches.
	Update(ctx context.Context, schedule *domain.BusinessHoursSchedule) error
	GetByID(ctx context.Context, orgID, id string) (*domain.BusinessHoursSchedule, error)
	List(ctx context.Context, orgID string) ([]domain.BusinessHoursSchedule, error)
}

// HolidayRepository persists holidays attached to a schedule.
type HolidayRepository interface {
	Create(ctx context.Context, holiday *domain.Holiday) error
	Delete(ctx context.Context, orgID, id string) error
	ListBySchedule(ctx context.Context, orgID, scheduleID string) ([]domain.Holiday, error)
}

// ConfigurationFilter narrows configuration listings.
type ConfigurationFilter struct {
	OrgID      string
	Domain     *domain.Domain
	ActiveOnly bool
}

// ConfigurationRepository persists SLA configurations.
type ConfigurationRepository interface {
	Create(ctx context.Context, cfg *domain.SlaConfiguration) error
	Update(ctx context.Context, cfg *domain.SlaConfiguration) error
	GetByID(ctx context.Context, orgID, id string) (*domain.SlaConfiguration, error)
	// List orders by priority_order, then name.
	List(ctx context.Context, filter ConfigurationFilter) ([]domain.SlaConfiguration, error)
}

// TrackingRef identifies a tracking record across tenants.
type TrackingRef struct {
	OrgID string
	ID    string
}

// SweepFilter pages through running, non-paused tracking records by id.
type SweepFilter struct {
	Domain  *domain.Domain
	AfterID string
	Limit   int
}

// TrackingRepository persists SLA tracking records.
type TrackingRepository interface {
	Create(ctx context.Context, tracking *domain.SlaTracking) error
	GetByID(ctx context.Context, orgID, id string) (*domain.SlaTracking, error)
	// GetForUpdate reads the row under the strongest lock the store offers.
	GetForUpdate(ctx context.Context, orgID, id string) (*domain.SlaTracking, error)
	// FindOpenByEntity returns the unresolved tracking for an entity.
	FindOpenByEntity(ctx context.Context, orgID string, d domain.Domain, entityType, entityID string) (*domain.SlaTracking, error)
	// Update writes the record when its stored version equals tracking.Version
	// and increments Version on success.
	Update(ctx context.Context, tracking *domain.SlaTracking) error
	ListSweepCandidates(ctx context.Context, filter SweepFilter) ([]TrackingRef, error)
	// ListOpenByConfiguration returns unresolved records started from a configuration.
	ListOpenByConfiguration(ctx context.Context, orgID, configurationID string) ([]TrackingRef, error)
}

// EventRepository is the append-only SLA event log.
type EventRepository interface {
	// Append stores the event and reports whether it was inserted. An event
	// whose dedup key already exists for the tracking record is skipped.
	Append(ctx context.Context, event *domain.SlaEvent) (bool, error)
	ListByTracking(ctx context.Context, orgID, trackingID string) ([]domain.SlaEvent, error)
	ListAfter(ctx context.Context, orgID string, after time.Time, limit int) ([]domain.SlaEvent, error)
}

// AccountRepository persists API service accounts.
type AccountRepository interface {
	Create(ctx context.Context, account *domain.ServiceAccount) error
	GetByClientID(ctx context.Context, clientID string) (*domain.ServiceAccount, error)
}

// Repositories groups the repositories bound to one connection or transaction.
type Repositories struct {
	Schedules      ScheduleRepository
	Holidays       HolidayRepository
	Configurations ConfigurationRepository
	Trackings      TrackingRepository
	Events         EventRepository
	Accounts       AccountRepository
}

// Store hands out repositories and runs units of work.
type Store interface {
	Repositories() Repositories
	// WithinTx runs fn in a transaction. fn's error rolls everything back.
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
	Ping(ctx context.Context) error
	Close() error
}
