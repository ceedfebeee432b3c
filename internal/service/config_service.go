package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/sla-service/internal/domain"
	"github.com/spec-kit/sla-service/internal/events"
	"github.com/spec-kit/sla-service/internal/observability"
	"github.com/spec-kit/sla-service/internal/repository"
	apperrors "github.com/spec-kit/sla-service/pkg/util/errorutil"
)

// CacheInvalidator drops cached tenant data after a write.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, orgID string) error
}

// ConfigDependencies bundles collaborators for the configuration service.
type ConfigDependencies struct {
	Store      repository.Store
	Cache      CacheInvalidator
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	Clock      func() time.Time
}

// ConfigService manages schedules, holidays and SLA configurations. Edits
// never touch existing trackings, which keep the snapshot taken at start.
type ConfigService struct {
	store      repository.Store
	cache      CacheInvalidator
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// NewConfigService constructs the service.
func NewConfigService(deps ConfigDependencies) *ConfigService {
	s := &ConfigService{
		store:      deps.Store,
		cache:      deps.Cache,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		now:        deps.Clock,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// CreateSchedule validates and stores a schedule.
func (s *ConfigService) CreateSchedule(ctx context.Context, orgID string, schedule *domain.BusinessHoursSchedule) (*domain.BusinessHoursSchedule, error) {
	schedule.OrgID = orgID
	if err := schedule.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.Repositories().Schedules.Create(ctx, schedule); err != nil {
		return nil, err
	}
	s.invalidate(ctx, orgID)
	return schedule, nil
}

// UpdateSchedule replaces a schedule. A zero Version updates whatever is
// stored; otherwise the stored version must match.
func (s *ConfigService) UpdateSchedule(ctx context.Context, orgID string, schedule *domain.BusinessHoursSchedule) (*domain.BusinessHoursSchedule, error) {
	schedule.OrgID = orgID
	if err := schedule.Validate(); err != nil {
		return nil, err
	}
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		stored, err := repos.Schedules.GetByID(ctx, orgID, schedule.ID)
		if err != nil {
			return err
		}
		if schedule.Version == 0 {
			schedule.Version = stored.Version
		}
		schedule.CreatedAt = stored.CreatedAt
		return repos.Schedules.Update(ctx, schedule)
	})
	if err != nil {
		return nil, configError(err, "business hours schedule", schedule.ID)
	}
	s.invalidate(ctx, orgID)
	return schedule, nil
}

// GetSchedule fetches one schedule.
func (s *ConfigService) GetSchedule(ctx context.Context, orgID, id string) (*domain.BusinessHoursSchedule, error) {
	schedule, err := s.store.Repositories().Schedules.GetByID(ctx, orgID, id)
	if err != nil {
		return nil, configError(err, "business hours schedule", id)
	}
	return schedule, nil
}

// ListSchedules returns the org's schedules.
func (s *ConfigService) ListSchedules(ctx context.Context, orgID string) ([]domain.BusinessHoursSchedule, error) {
	return s.store.Repositories().Schedules.List(ctx, orgID)
}

// AddHoliday attaches a holiday and bumps the schedule version so compiled
// calendars are rebuilt for new trackings.
func (s *ConfigService) AddHoliday(ctx context.Context, orgID, scheduleID string, holiday *domain.Holiday) (*domain.Holiday, error) {
	if strings.TrimSpace(holiday.Name) == "" {
		return nil, apperrors.NewValidationError("invalid holiday", map[string]any{"name": "required"})
	}
	holiday.OrgID = orgID
	holiday.ScheduleID = scheduleID
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		schedule, err := repos.Schedules.GetByID(ctx, orgID, scheduleID)
		if err != nil {
			return err
		}
		if err := repos.Holidays.Create(ctx, holiday); err != nil {
			return err
		}
		return repos.Schedules.Update(ctx, schedule)
	})
	if err != nil {
		return nil, configError(err, "business hours schedule", scheduleID)
	}
	s.invalidate(ctx, orgID)
	return holiday, nil
}

// DeleteHoliday removes a holiday from a schedule.
func (s *ConfigService) DeleteHoliday(ctx context.Context, orgID, scheduleID, holidayID string) error {
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		schedule, err := repos.Schedules.GetByID(ctx, orgID, scheduleID)
		if err != nil {
			return err
		}
		holidays, err := repos.Holidays.ListBySchedule(ctx, orgID, scheduleID)
		if err != nil {
			return err
		}
		found := false
		for _, h := range holidays {
			if h.ID == holidayID {
				found = true
				break
			}
		}
		if !found {
			return apperrors.NewNotFound("holiday", map[string]any{"id": holidayID})
		}
		if err := repos.Holidays.Delete(ctx, orgID, holidayID); err != nil {
			return err
		}
		return repos.Schedules.Update(ctx, schedule)
	})
	if err != nil {
		return configError(err, "business hours schedule", scheduleID)
	}
	s.invalidate(ctx, orgID)
	return nil
}

// ListHolidays returns a schedule's holidays.
func (s *ConfigService) ListHolidays(ctx context.Context, orgID, scheduleID string) ([]domain.Holiday, error) {
	repos := s.store.Repositories()
	if _, err := repos.Schedules.GetByID(ctx, orgID, scheduleID); err != nil {
		return nil, configError(err, "business hours schedule", scheduleID)
	}
	return repos.Holidays.ListBySchedule(ctx, orgID, scheduleID)
}

// CreateConfiguration validates and stores a configuration.
func (s *ConfigService) CreateConfiguration(ctx context.Context, orgID string, cfg *domain.SlaConfiguration) (*domain.SlaConfiguration, error) {
	cfg.OrgID = orgID
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if err := s.checkReferences(ctx, repos, cfg); err != nil {
			return err
		}
		return repos.Configurations.Create(ctx, cfg)
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, orgID)
	return cfg, nil
}

// UpdateConfiguration replaces a configuration and records config_changed on
// every open tracking started from it. Those trackings keep their targets.
func (s *ConfigService) UpdateConfiguration(ctx context.Context, orgID string, cfg *domain.SlaConfiguration) (*domain.SlaConfiguration, error) {
	cfg.OrgID = orgID
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var appended []domain.SlaEvent
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		stored, err := repos.Configurations.GetByID(ctx, orgID, cfg.ID)
		if err != nil {
			return err
		}
		if cfg.Version == 0 {
			cfg.Version = stored.Version
		}
		cfg.CreatedAt = stored.CreatedAt
		if err := s.checkReferences(ctx, repos, cfg); err != nil {
			return err
		}
		oldVersion := stored.Version
		if err := repos.Configurations.Update(ctx, cfg); err != nil {
			return err
		}

		refs, err := repos.Trackings.ListOpenByConfiguration(ctx, orgID, cfg.ID)
		if err != nil {
			return err
		}
		now := s.now()
		for _, ref := range refs {
			key := repository.DedupKey(domain.EventConfigChanged, now) + ":" + cfg.ID
			ev := domain.SlaEvent{
				OrgID:      orgID,
				TrackingID: ref.ID,
				Type:       domain.EventConfigChanged,
				OccurredAt: now,
				DedupKey:   &key,
				Payload: map[string]any{
					"configuration_id": cfg.ID,
					"old_version":      oldVersion,
					"new_version":      cfg.Version,
					"applied":          false,
				},
			}
			inserted, err := repos.Events.Append(ctx, &ev)
			if err != nil {
				return err
			}
			if inserted {
				appended = append(appended, ev)
			}
		}
		return nil
	})
	if err != nil {
		return nil, configError(err, "sla configuration", cfg.ID)
	}

	s.invalidate(ctx, orgID)
	for _, ev := range appended {
		s.metrics.RecordTransition(string(ev.Type))
		if s.dispatcher != nil {
			_ = s.dispatcher.Publish(ctx, events.FromSlaEvent(ev, nil))
		}
	}
	if len(appended) > 0 {
		s.logger.Info("configuration changed with open trackings",
			zap.String("org_id", orgID),
			zap.String("configuration_id", cfg.ID),
			zap.Int("open_trackings", len(appended)))
	}
	return cfg, nil
}

// GetConfiguration fetches one configuration.
func (s *ConfigService) GetConfiguration(ctx context.Context, orgID, id string) (*domain.SlaConfiguration, error) {
	cfg, err := s.store.Repositories().Configurations.GetByID(ctx, orgID, id)
	if err != nil {
		return nil, configError(err, "sla configuration", id)
	}
	return cfg, nil
}

// ListConfigurations lists configurations, optionally for one domain.
func (s *ConfigService) ListConfigurations(ctx context.Context, orgID string, d *domain.Domain, activeOnly bool) ([]domain.SlaConfiguration, error) {
	return s.store.Repositories().Configurations.List(ctx, repository.ConfigurationFilter{
		OrgID:      orgID,
		Domain:     d,
		ActiveOnly: activeOnly,
	})
}

// checkReferences requires the schedule to exist and allows one active
// default per domain.
func (s *ConfigService) checkReferences(ctx context.Context, repos repository.Repositories, cfg *domain.SlaConfiguration) error {
	if cfg.BusinessHoursScheduleID != nil {
		if _, err := repos.Schedules.GetByID(ctx, cfg.OrgID, *cfg.BusinessHoursScheduleID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperrors.NewConfigurationError("business hours schedule not found",
					map[string]any{"business_hours_schedule_id": *cfg.BusinessHoursScheduleID})
			}
			return err
		}
	}
	if !cfg.IsDefault || !cfg.IsActive {
		return nil
	}
	d := cfg.Domain
	existing, err := repos.Configurations.List(ctx, repository.ConfigurationFilter{OrgID: cfg.OrgID, Domain: &d, ActiveOnly: true})
	if err != nil {
		return err
	}
	for _, other := range existing {
		if other.IsDefault && other.ID != cfg.ID {
			return apperrors.NewConflict("domain already has an active default configuration",
				map[string]any{"domain": string(d), "configuration_id": other.ID})
		}
	}
	return nil
}

func (s *ConfigService) invalidate(ctx context.Context, orgID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, orgID); err != nil {
		s.logger.Warn("cache invalidation failed", zap.String("org_id", orgID), zap.Error(err))
	}
}

func configError(err error, resource, id string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound(resource, map[string]any{"id": id})
	case errors.Is(err, repository.ErrVersionConflict):
		return apperrors.NewConflict(resource+" was modified concurrently", map[string]any{"id": id})
	}
	return err
}
