package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/spec-kit/sla-service/internal/domain"
	"github.com/spec-kit/sla-service/internal/repository"
	apperrors "github.com/spec-kit/sla-service/pkg/util/errorutil"
)

// DefaultInvalidateChannel carries org ids whose cached entries are stale.
const DefaultInvalidateChannel = "sla:cache:invalidate"

// CacheOptions tunes a TenantCache.
type CacheOptions struct {
	TTL     time.Duration
	Channel string
	Clock   func() time.Time
}

// TenantCache holds each organization's active configurations and calendar
// snapshots. Entries expire after the TTL and are dropped on invalidation,
// locally and, when Redis is configured, on every replica.
type TenantCache struct {
	store   repository.Store
	redis   *redis.Client
	channel string
	ttl     time.Duration
	now     func() time.Time
	logger  *zap.Logger

	loads   singleflight.Group
	mu      sync.RWMutex
	entries map[string]*tenantEntry

	// generations counts invalidations per org; a load that overlapped one
	// is served but not stored.
	generations map[string]uint64
}

type tenantEntry struct {
	loadedAt  time.Time
	configs   []domain.SlaConfiguration
	mu        sync.Mutex
	calendars map[string]*domain.CalendarSnapshot
}

// NewTenantCache builds the cache. rdb may be nil for single-node setups.
func NewTenantCache(store repository.Store, rdb *redis.Client, opts CacheOptions, logger *zap.Logger) *TenantCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Channel == "" {
		opts.Channel = DefaultInvalidateChannel
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &TenantCache{
		store:       store,
		redis:       rdb,
		channel:     opts.Channel,
		ttl:         opts.TTL,
		now:         opts.Clock,
		logger:      logger,
		entries:     make(map[string]*tenantEntry),
		generations: make(map[string]uint64),
	}
}

// Configurations returns the active configurations of orgID.
func (c *TenantCache) Configurations(ctx context.Context, orgID string) ([]domain.SlaConfiguration, error) {
	entry, err := c.entry(ctx, orgID)
	if err != nil {
		return nil, err
	}
	return entry.configs, nil
}

// Calendar returns the snapshot of a schedule and its holidays.
func (c *TenantCache) Calendar(ctx context.Context, orgID, scheduleID string) (*domain.CalendarSnapshot, error) {
	entry, err := c.entry(ctx, orgID)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if snap, ok := entry.calendars[scheduleID]; ok {
		return snap, nil
	}

	repos := c.store.Repositories()
	schedule, err := repos.Schedules.GetByID(ctx, orgID, scheduleID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewConfigurationError("business hours schedule not found",
			map[string]any{"schedule_id": scheduleID})
	}
	if err != nil {
		return nil, err
	}
	holidays, err := repos.Holidays.ListBySchedule(ctx, orgID, scheduleID)
	if err != nil {
		return nil, err
	}
	snap := domain.SnapshotCalendar(schedule, holidays)
	entry.calendars[scheduleID] = snap
	return snap, nil
}

// Invalidate drops orgID locally and tells other replicas to do the same.
func (c *TenantCache) Invalidate(ctx context.Context, orgID string) error {
	c.drop(orgID)
	if c.redis == nil {
		return nil
	}
	if err := c.redis.Publish(ctx, c.channel, orgID).Err(); err != nil {
		c.logger.Warn("failed to publish cache invalidation", zap.String("org_id", orgID), zap.Error(err))
		return err
	}
	return nil
}

// Listen applies invalidations published by other replicas until ctx ends.
func (c *TenantCache) Listen(ctx context.Context) error {
	if c.redis == nil {
		<-ctx.Done()
		return nil
	}
	sub := c.redis.Subscribe(ctx, c.channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			c.drop(msg.Payload)
			c.logger.Debug("cache invalidated", zap.String("org_id", msg.Payload))
		}
	}
}

func (c *TenantCache) drop(orgID string) {
	c.mu.Lock()
	delete(c.entries, orgID)
	c.generations[orgID]++
	c.mu.Unlock()
	c.loads.Forget(orgID)
}

func (c *TenantCache) entry(ctx context.Context, orgID string) (*tenantEntry, error) {
	c.mu.RLock()
	entry, ok := c.entries[orgID]
	c.mu.RUnlock()
	if ok && (c.ttl <= 0 || c.now().Sub(entry.loadedAt) < c.ttl) {
		return entry, nil
	}

	v, err, _ := c.loads.Do(orgID, func() (any, error) {
		c.mu.RLock()
		generation := c.generations[orgID]
		c.mu.RUnlock()

		configs, err := c.store.Repositories().Configurations.List(ctx, repository.ConfigurationFilter{
			OrgID:      orgID,
			ActiveOnly: true,
		})
		if err != nil {
			return nil, err
		}
		fresh := &tenantEntry{
			loadedAt:  c.now(),
			configs:   configs,
			calendars: make(map[string]*domain.CalendarSnapshot),
		}
		c.mu.Lock()
		if c.generations[orgID] == generation {
			c.entries[orgID] = fresh
		}
		c.mu.Unlock()
		return fresh, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*tenantEntry), nil
}
