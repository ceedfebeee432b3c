package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-service/internal/domain"
	apperrors "github.com/spec-kit/sla-service/pkg/util/errorutil"
)

func newConfigService(h *harness) *ConfigService {
	return NewConfigService(ConfigDependencies{
		Store:      h.store,
		Cache:      h.cache,
		Dispatcher: h.dispatcher,
		Logger:     zap.NewNop(),
		Clock:      h.clock.Now,
	})
}

func TestConfigService_CreateConfigurationValidates(t *testing.T) {
	h := newHarness(t)
	svc := newConfigService(h)
	ctx := context.Background()

	_, err := svc.CreateConfiguration(ctx, testOrg, &domain.SlaConfiguration{
		Domain: domain.DomainSupport, Name: "Biz", IsActive: true,
		ResolutionTarget: &domain.Target{Value: 4, Unit: domain.UnitBusinessHours},
	})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConfiguration), "business target without schedule")

	missing := "nope"
	_, err = svc.CreateConfiguration(ctx, testOrg, &domain.SlaConfiguration{
		Domain: domain.DomainSupport, Name: "Biz", IsActive: true, BusinessHoursScheduleID: &missing,
		ResolutionTarget: &domain.Target{Value: 4, Unit: domain.UnitBusinessHours},
	})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConfiguration), "unknown schedule")

	cfg, err := svc.CreateConfiguration(ctx, testOrg, &domain.SlaConfiguration{
		Domain: domain.DomainSupport, Name: "Biz", IsActive: true, IsDefault: true, BusinessHoursScheduleID: &h.scheduleID,
		ResolutionTarget: &domain.Target{Value: 4, Unit: domain.UnitBusinessHours},
	})
	require.NoError(t, err)
	assert.Equal(t, testOrg, cfg.OrgID)
	assert.NotEmpty(t, cfg.ID)

	_, err = svc.CreateConfiguration(ctx, testOrg, &domain.SlaConfiguration{
		Domain: domain.DomainSupport, Name: "Other", IsActive: true, IsDefault: true,
		ResolutionTarget: &domain.Target{Value: 4, Unit: domain.UnitHours},
	})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict), "second default")
}

func TestConfigService_NewConfigurationVisibleToResolver(t *testing.T) {
	h := newHarness(t)
	svc := newConfigService(h)
	ctx := context.Background()

	_, err := h.tracker.Start(ctx, StartInput{OrgID: testOrg, Domain: domain.DomainSupport, EntityType: "ticket", EntityID: "T-1"})
	require.True(t, apperrors.HasCode(err, apperrors.CodeNoConfigurationFound))

	_, err = svc.CreateConfiguration(ctx, testOrg, &domain.SlaConfiguration{
		Domain: domain.DomainSupport, Name: "Default", IsActive: true, IsDefault: true,
		ResolutionTarget: &domain.Target{Value: 4, Unit: domain.UnitHours},
	})
	require.NoError(t, err)
	h.start(t, "T-1")
}

func TestConfigService_UpdateKeepsOpenTrackingTargets(t *testing.T) {
	h := newHarness(t)
	svc := newConfigService(h)
	ctx := context.Background()

	cfg := h.seedConfig(t, withResolution(8, domain.UnitHours))
	open := h.start(t, "T-1")
	closed := h.start(t, "T-2")
	_, err := h.tracker.RecordResolution(ctx, testOrg, closed.ID, nil)
	require.NoError(t, err)

	h.clock.Advance(time.Minute)
	cfg.ResolutionTarget = &domain.Target{Value: 2, Unit: domain.UnitHours}
	updated, err := svc.UpdateConfiguration(ctx, testOrg, cfg)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)

	reloaded, err := h.store.Repositories().Trackings.GetByID(ctx, testOrg, open.ID)
	require.NoError(t, err)
	requireSameInstant(t, open.Resolution.DueAt, reloaded.Resolution.DueAt)
	assert.Equal(t, 1, reloaded.Policy.ConfigurationVersion)

	assert.Equal(t, 1, countType(h.eventTypes(t, open.ID), domain.EventConfigChanged))
	assert.Zero(t, countType(h.eventTypes(t, closed.ID), domain.EventConfigChanged))
	assert.Equal(t, 1, h.published.count(domain.EventConfigChanged))

	fresh := h.start(t, "T-3")
	requireSameInstant(t, h.clock.Now().Add(2*time.Hour), fresh.Resolution.DueAt)
}

func TestConfigService_UpdateConflictsOnStaleVersion(t *testing.T) {
	h := newHarness(t)
	svc := newConfigService(h)
	cfg := h.seedConfig(t, withResolution(8, domain.UnitHours))

	stale := *cfg
	stale.Version = 7
	_, err := svc.UpdateConfiguration(context.Background(), testOrg, &stale)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))

	missing := *cfg
	missing.ID = "nope"
	_, err = svc.UpdateConfiguration(context.Background(), testOrg, &missing)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestConfigService_HolidaysBumpScheduleVersion(t *testing.T) {
	h := newHarness(t)
	svc := newConfigService(h)
	ctx := context.Background()

	before, err := svc.GetSchedule(ctx, testOrg, h.scheduleID)
	require.NoError(t, err)

	holiday, err := svc.AddHoliday(ctx, testOrg, h.scheduleID, &domain.Holiday{
		Name: "Founders day", Date: domain.CivilDate{Year: 2024, Month: time.March, Day: 5},
	})
	require.NoError(t, err)
	after, err := svc.GetSchedule(ctx, testOrg, h.scheduleID)
	require.NoError(t, err)
	assert.Equal(t, before.Version+1, after.Version)

	snap, err := h.cache.Calendar(ctx, testOrg, h.scheduleID)
	require.NoError(t, err)
	assert.Equal(t, after.Version, snap.ScheduleVersion)
	require.Len(t, snap.Holidays, 1)

	h.seedConfig(t, withSchedule(h.scheduleID), withResolution(2, domain.UnitBusinessDays))
	tr := h.start(t, "T-1")
	requireSameInstant(t, time.Date(2024, 3, 7, 10, 0, 0, 0, time.UTC), tr.Resolution.DueAt)

	require.NoError(t, svc.DeleteHoliday(ctx, testOrg, h.scheduleID, holiday.ID))
	holidays, err := svc.ListHolidays(ctx, testOrg, h.scheduleID)
	require.NoError(t, err)
	assert.Empty(t, holidays)

	err = svc.DeleteHoliday(ctx, testOrg, h.scheduleID, holiday.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))

	_, err = svc.AddHoliday(ctx, testOrg, h.scheduleID, &domain.Holiday{})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidationFailed))
}

func TestConfigService_ScheduleValidation(t *testing.T) {
	h := newHarness(t)
	svc := newConfigService(h)

	_, err := svc.CreateSchedule(context.Background(), testOrg, &domain.BusinessHoursSchedule{Name: "Bad", Timezone: "Mars/Base"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidationFailed))

	schedule, err := svc.CreateSchedule(context.Background(), testOrg, &domain.BusinessHoursSchedule{
		Name: "Berlin", Timezone: "Europe/Berlin",
		Weekly: domain.WeeklyHours{time.Monday: {Start: 8 * 60, End: 16 * 60}},
	})
	require.NoError(t, err)

	schedule.Name = "Berlin office"
	updated, err := svc.UpdateSchedule(context.Background(), testOrg, schedule)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)

	list, err := svc.ListSchedules(context.Background(), testOrg)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
