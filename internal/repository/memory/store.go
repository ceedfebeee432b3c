// Package memory is an in-process Store for tests and the offline CLI.
// Transactions run serially on a copy of the data that replaces the live
// copy on commit.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/sla-service/internal/domain"
	"github.com/spec-kit/sla-service/internal/repository"
)

type data struct {
	schedules map[string]domain.BusinessHoursSchedule
	holidays  map[string]domain.Holiday
	configs   map[string]domain.SlaConfiguration
	trackings map[string]repository.TrackingRecord
	events    []domain.SlaEvent
	eventKeys map[string]struct{}
	accounts  map[string]domain.ServiceAccount
}

func newData() *data {
	return &data{
		schedules: map[string]domain.BusinessHoursSchedule{},
		holidays:  map[string]domain.Holiday{},
		configs:   map[string]domain.SlaConfiguration{},
		trackings: map[string]repository.TrackingRecord{},
		eventKeys: map[string]struct{}{},
		accounts:  map[string]domain.ServiceAccount{},
	}
}

func (d *data) clone() *data {
	c := newData()
	for k, v := range d.schedules {
		c.schedules[k] = v
	}
	for k, v := range d.holidays {
		c.holidays[k] = v
	}
	for k, v := range d.configs {
		c.configs[k] = v
	}
	for k, v := range d.trackings {
		c.trackings[k] = v
	}
	c.events = append(c.events, d.events...)
	for k := range d.eventKeys {
		c.eventKeys[k] = struct{}{}
	}
	for k, v := range d.accounts {
		c.accounts[k] = v
	}
	return c
}

// Store keeps all records in memory.
type Store struct {
	mu   sync.Mutex
	data *data
	now  func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{data: newData(), now: time.Now}
}

// Repositories returns repositories that lock per call.
func (s *Store) Repositories() repository.Repositories {
	return s.bind(&view{store: s})
}

// WithinTx runs fn against a private copy and publishes it if fn succeeds.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	working := s.data.clone()
	if err := fn(ctx, s.bind(&view{store: s, tx: working})); err != nil {
		return err
	}
	s.data = working
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() error { return nil }

func (s *Store) bind(v *view) repository.Repositories {
	return repository.Repositories{
		Schedules:      scheduleRepo{v},
		Holidays:       holidayRepo{v},
		Configurations: configurationRepo{v},
		Trackings:      trackingRepo{v},
		Events:         eventRepo{v},
		Accounts:       accountRepo{v},
	}
}

// view routes calls either to the live data under the store lock or to a
// transaction's working copy, whose lock WithinTx already holds.
type view struct {
	store *Store
	tx    *data
}

func (v *view) do(fn func(d *data) error) error {
	if v.tx != nil {
		return fn(v.tx)
	}
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	return fn(v.store.data)
}

func (v *view) now() time.Time {
	return v.store.now().UTC()
}

type scheduleRepo struct{ v *view }

func (r scheduleRepo) Create(_ context.Context, schedule *domain.BusinessHoursSchedule) error {
	return r.v.do(func(d *data) error {
		now := r.v.now()
		schedule.ID, schedule.Version, schedule.CreatedAt, schedule.UpdatedAt = uuid.NewString(), 1, now, now
		d.schedules[schedule.ID] = cloneSchedule(*schedule)
		return nil
	})
}

func (r scheduleRepo) Update(_ context.Context, schedule *domain.BusinessHoursSchedule) error {
	return r.v.do(func(d *data) error {
		stored, ok := d.schedules[schedule.ID]
		if !ok || stored.OrgID != schedule.OrgID {
			return repository.ErrNotFound
		}
		if stored.Version != schedule.Version {
			return repository.ErrVersionConflict
		}
		schedule.Version++
		schedule.CreatedAt = stored.CreatedAt
		schedule.UpdatedAt = r.v.now()
		d.schedules[schedule.ID] = cloneSchedule(*schedule)
		return nil
	})
}

func (r scheduleRepo) GetByID(_ context.Context, orgID, id string) (*domain.BusinessHoursSchedule, error) {
	var out *domain.BusinessHoursSchedule
	err := r.v.do(func(d *data) error {
		stored, ok := d.schedules[id]
		if !ok || stored.OrgID != orgID {
			return repository.ErrNotFound
		}
		c := cloneSchedule(stored)
		out = &c
		return nil
	})
	return out, err
}

func (r scheduleRepo) List(_ context.Context, orgID string) ([]domain.BusinessHoursSchedule, error) {
	var out []domain.BusinessHoursSchedule
	err := r.v.do(func(d *data) error {
		for _, s := range d.schedules {
			if s.OrgID == orgID {
				out = append(out, cloneSchedule(s))
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, err
}

func cloneSchedule(s domain.BusinessHoursSchedule) domain.BusinessHoursSchedule {
	weekly := make(domain.WeeklyHours, len(s.Weekly))
	for day, w := range s.Weekly {
		weekly[day] = w
	}
	s.Weekly = weekly
	return s
}

type holidayRepo struct{ v *view }

func (r holidayRepo) Create(_ context.Context, holiday *domain.Holiday) error {
	return r.v.do(func(d *data) error {
		if s, ok := d.schedules[holiday.ScheduleID]; !ok || s.OrgID != holiday.OrgID {
			return repository.ErrNotFound
		}
		holiday.ID, holiday.CreatedAt = uuid.NewString(), r.v.now()
		d.holidays[holiday.ID] = *holiday
		return nil
	})
}

func (r holidayRepo) Delete(_ context.Context, orgID, id string) error {
	return r.v.do(func(d *data) error {
		h, ok := d.holidays[id]
		if !ok || h.OrgID != orgID {
			return repository.ErrNotFound
		}
		delete(d.holidays, id)
		return nil
	})
}

func (r holidayRepo) ListBySchedule(_ context.Context, orgID, scheduleID string) ([]domain.Holiday, error) {
	var out []domain.Holiday
	err := r.v.do(func(d *data) error {
		for _, h := range d.holidays {
			if h.OrgID == orgID && h.ScheduleID == scheduleID {
				out = append(out, h)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Date.String() < out[j].Date.String() })
	return out, err
}

type configurationRepo struct{ v *view }

func (r configurationRepo) Create(_ context.Context, cfg *domain.SlaConfiguration) error {
	return r.v.do(func(d *data) error {
		now := r.v.now()
		cfg.ID, cfg.Version, cfg.CreatedAt, cfg.UpdatedAt = uuid.NewString(), 1, now, now
		d.configs[cfg.ID] = cloneConfiguration(*cfg)
		return nil
	})
}

func (r configurationRepo) Update(_ context.Context, cfg *domain.SlaConfiguration) error {
	return r.v.do(func(d *data) error {
		stored, ok := d.configs[cfg.ID]
		if !ok || stored.OrgID != cfg.OrgID {
			return repository.ErrNotFound
		}
		if stored.Version != cfg.Version {
			return repository.ErrVersionConflict
		}
		cfg.Version++
		cfg.CreatedAt = stored.CreatedAt
		cfg.UpdatedAt = r.v.now()
		d.configs[cfg.ID] = cloneConfiguration(*cfg)
		return nil
	})
}

func (r configurationRepo) GetByID(_ context.Context, orgID, id string) (*domain.SlaConfiguration, error) {
	var out *domain.SlaConfiguration
	err := r.v.do(func(d *data) error {
		stored, ok := d.configs[id]
		if !ok || stored.OrgID != orgID {
			return repository.ErrNotFound
		}
		c := cloneConfiguration(stored)
		out = &c
		return nil
	})
	return out, err
}

func (r configurationRepo) List(_ context.Context, filter repository.ConfigurationFilter) ([]domain.SlaConfiguration, error) {
	var out []domain.SlaConfiguration
	err := r.v.do(func(d *data) error {
		for _, c := range d.configs {
			if c.OrgID != filter.OrgID {
				continue
			}
			if filter.Domain != nil && c.Domain != *filter.Domain {
				continue
			}
			if filter.ActiveOnly && !c.IsActive {
				continue
			}
			out = append(out, cloneConfiguration(c))
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].PriorityOrder != out[j].PriorityOrder {
			return out[i].PriorityOrder < out[j].PriorityOrder
		}
		return out[i].Name < out[j].Name
	})
	return out, err
}

func cloneConfiguration(c domain.SlaConfiguration) domain.SlaConfiguration {
	if c.ResponseTarget != nil {
		t := *c.ResponseTarget
		c.ResponseTarget = &t
	}
	if c.ResolutionTarget != nil {
		t := *c.ResolutionTarget
		c.ResolutionTarget = &t
	}
	conditions := make(map[string]string, len(c.Conditions))
	for k, v := range c.Conditions {
		conditions[k] = v
	}
	c.Conditions = conditions
	return c
}

type trackingRepo struct{ v *view }

func (r trackingRepo) Create(_ context.Context, tracking *domain.SlaTracking) error {
	return r.v.do(func(d *data) error {
		for _, rec := range d.trackings {
			if rec.OrgID == tracking.OrgID && rec.Domain == string(tracking.Domain) &&
				rec.EntityType == tracking.EntityType && rec.EntityID == tracking.EntityID &&
				rec.Status != string(domain.StatusResolved) {
				return repository.ErrDuplicate
			}
		}
		now := r.v.now()
		tracking.ID, tracking.Version, tracking.CreatedAt, tracking.UpdatedAt = uuid.NewString(), 1, now, now
		rec, err := repository.FlattenTracking(tracking)
		if err != nil {
			return err
		}
		d.trackings[tracking.ID] = rec
		return nil
	})
}

func (r trackingRepo) GetByID(_ context.Context, orgID, id string) (*domain.SlaTracking, error) {
	var out *domain.SlaTracking
	err := r.v.do(func(d *data) error {
		rec, ok := d.trackings[id]
		if !ok || rec.OrgID != orgID {
			return repository.ErrNotFound
		}
		var err error
		out, err = rec.Tracking()
		return err
	})
	return out, err
}

// GetForUpdate needs no lock beyond the serial transaction.
func (r trackingRepo) GetForUpdate(ctx context.Context, orgID, id string) (*domain.SlaTracking, error) {
	return r.GetByID(ctx, orgID, id)
}

func (r trackingRepo) FindOpenByEntity(_ context.Context, orgID string, dom domain.Domain, entityType, entityID string) (*domain.SlaTracking, error) {
	var out *domain.SlaTracking
	err := r.v.do(func(d *data) error {
		for _, rec := range d.trackings {
			if rec.OrgID == orgID && rec.Domain == string(dom) && rec.EntityType == entityType &&
				rec.EntityID == entityID && rec.Status != string(domain.StatusResolved) {
				var err error
				out, err = rec.Tracking()
				return err
			}
		}
		return repository.ErrNotFound
	})
	return out, err
}

func (r trackingRepo) Update(_ context.Context, tracking *domain.SlaTracking) error {
	return r.v.do(func(d *data) error {
		stored, ok := d.trackings[tracking.ID]
		if !ok || stored.OrgID != tracking.OrgID {
			return repository.ErrNotFound
		}
		if stored.Version != tracking.Version {
			return repository.ErrVersionConflict
		}
		rec, err := repository.FlattenTracking(tracking)
		if err != nil {
			return err
		}
		rec.Version = stored.Version + 1
		rec.CreatedAt = stored.CreatedAt
		rec.UpdatedAt = r.v.now()
		d.trackings[tracking.ID] = rec
		tracking.Version, tracking.UpdatedAt = rec.Version, rec.UpdatedAt
		return nil
	})
}

func (r trackingRepo) ListSweepCandidates(_ context.Context, filter repository.SweepFilter) ([]repository.TrackingRef, error) {
	var out []repository.TrackingRef
	err := r.v.do(func(d *data) error {
		for id, rec := range d.trackings {
			if rec.Status == string(domain.StatusPaused) || rec.Status == string(domain.StatusResolved) {
				continue
			}
			if filter.Domain != nil && rec.Domain != string(*filter.Domain) {
				continue
			}
			if id <= filter.AfterID {
				continue
			}
			out = append(out, repository.TrackingRef{OrgID: rec.OrgID, ID: id})
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, err
}

func (r trackingRepo) ListOpenByConfiguration(_ context.Context, orgID, configurationID string) ([]repository.TrackingRef, error) {
	type ref struct {
		repository.TrackingRef
		started time.Time
	}
	var found []ref
	err := r.v.do(func(d *data) error {
		for id, rec := range d.trackings {
			if rec.OrgID == orgID && rec.ConfigurationID == configurationID && rec.Status != string(domain.StatusResolved) {
				found = append(found, ref{repository.TrackingRef{OrgID: rec.OrgID, ID: id}, rec.StartedAt})
			}
		}
		return nil
	})
	sort.Slice(found, func(i, j int) bool { return found[i].started.Before(found[j].started) })
	out := make([]repository.TrackingRef, 0, len(found))
	for _, f := range found {
		out = append(out, f.TrackingRef)
	}
	return out, err
}

type eventRepo struct{ v *view }

func (r eventRepo) Append(_ context.Context, event *domain.SlaEvent) (bool, error) {
	inserted := false
	err := r.v.do(func(d *data) error {
		if _, ok := d.trackings[event.TrackingID]; !ok {
			return repository.ErrNotFound
		}
		if event.DedupKey != nil {
			key := event.TrackingID + "|" + *event.DedupKey
			if _, seen := d.eventKeys[key]; seen {
				return nil
			}
			d.eventKeys[key] = struct{}{}
		}
		event.ID, event.CreatedAt = uuid.NewString(), r.v.now()
		d.events = append(d.events, *event)
		inserted = true
		return nil
	})
	return inserted, err
}

func (r eventRepo) ListByTracking(_ context.Context, orgID, trackingID string) ([]domain.SlaEvent, error) {
	var out []domain.SlaEvent
	err := r.v.do(func(d *data) error {
		for _, ev := range d.events {
			if ev.OrgID == orgID && ev.TrackingID == trackingID {
				out = append(out, ev)
			}
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
	return out, err
}

func (r eventRepo) ListAfter(_ context.Context, orgID string, after time.Time, limit int) ([]domain.SlaEvent, error) {
	var out []domain.SlaEvent
	err := r.v.do(func(d *data) error {
		for _, ev := range d.events {
			if ev.OrgID == orgID && ev.OccurredAt.After(after) {
				out = append(out, ev)
			}
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

type accountRepo struct{ v *view }

func (r accountRepo) Create(_ context.Context, account *domain.ServiceAccount) error {
	return r.v.do(func(d *data) error {
		if _, exists := d.accounts[account.ClientID]; exists {
			return repository.ErrDuplicate
		}
		now := r.v.now()
		account.ID, account.CreatedAt, account.UpdatedAt = uuid.NewString(), now, now
		d.accounts[account.ClientID] = *account
		return nil
	})
}

func (r accountRepo) GetByClientID(_ context.Context, clientID string) (*domain.ServiceAccount, error) {
	var out *domain.ServiceAccount
	err := r.v.do(func(d *data) error {
		a, ok := d.accounts[clientID]
		if !ok {
			return repository.ErrNotFound
		}
		out = &a
		return nil
	})
	return out, err
}
