package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/sla-service/internal/domain"
	apperrors "github.com/spec-kit/sla-service/pkg/util/errorutil"
)

// Entity describes the tracked thing as far as configuration matching cares.
type Entity struct {
	// ConfigurationID is an explicit assignment made by the caller.
	ConfigurationID *string
	Attributes      map[string]string
}

// Matcher decides whether a non-default configuration applies to an entity.
type Matcher interface {
	Matches(cfg *domain.SlaConfiguration, entity Entity) bool
}

// MatcherFunc adapts a function to Matcher.
type MatcherFunc func(cfg *domain.SlaConfiguration, entity Entity) bool

// Matches calls f.
func (f MatcherFunc) Matches(cfg *domain.SlaConfiguration, entity Entity) bool {
	return f(cfg, entity)
}

// AttributeMatcher accepts a configuration when every condition equals the
// entity attribute of the same key, compared case-insensitively. Empty
// conditions match every entity.
type AttributeMatcher struct{}

// Matches implements Matcher.
func (AttributeMatcher) Matches(cfg *domain.SlaConfiguration, entity Entity) bool {
	for key, want := range cfg.Conditions {
		got, ok := entity.Attributes[key]
		if !ok || !strings.EqualFold(strings.TrimSpace(got), strings.TrimSpace(want)) {
			return false
		}
	}
	return true
}

// ConfigurationSource lists the active configurations of an organization.
type ConfigurationSource interface {
	Configurations(ctx context.Context, orgID string) ([]domain.SlaConfiguration, error)
}

// Resolver picks the configuration that governs a new tracking record.
type Resolver struct {
	source   ConfigurationSource
	matchers map[domain.Domain]Matcher
	fallback Matcher
	logger   *zap.Logger
}

// NewResolver builds a resolver. Domains without a registered matcher use
// AttributeMatcher.
func NewResolver(source ConfigurationSource, matchers map[domain.Domain]Matcher, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	registered := make(map[domain.Domain]Matcher, len(matchers))
	for d, m := range matchers {
		registered[d] = m
	}
	return &Resolver{source: source, matchers: registered, fallback: AttributeMatcher{}, logger: logger}
}

// Resolve applies, in order: an active explicit assignment in the domain, the
// lowest priority active non-default configuration the domain matcher accepts,
// then the domain default.
func (r *Resolver) Resolve(ctx context.Context, orgID string, d domain.Domain, entity Entity) (*domain.SlaConfiguration, error) {
	configs, err := r.source.Configurations(ctx, orgID)
	if err != nil {
		return nil, err
	}

	var candidates []domain.SlaConfiguration
	for _, cfg := range configs {
		if cfg.IsActive && cfg.Domain == d {
			candidates = append(candidates, cfg)
		}
	}

	if entity.ConfigurationID != nil && *entity.ConfigurationID != "" {
		for i := range candidates {
			if candidates[i].ID == *entity.ConfigurationID {
				return copyConfiguration(candidates[i]), nil
			}
		}
		r.logger.Debug("assigned configuration not active in domain; falling back",
			zap.String("org_id", orgID),
			zap.String("domain", string(d)),
			zap.String("configuration_id", *entity.ConfigurationID))
	}

	matcher := r.matcherFor(d)
	var best *domain.SlaConfiguration
	for i := range candidates {
		cfg := &candidates[i]
		if cfg.IsDefault || !matcher.Matches(cfg, entity) {
			continue
		}
		if best == nil || cfg.PriorityOrder < best.PriorityOrder {
			best = cfg
		}
	}
	if best != nil {
		return copyConfiguration(*best), nil
	}

	for i := range candidates {
		if candidates[i].IsDefault {
			return copyConfiguration(candidates[i]), nil
		}
	}

	r.logger.Warn("no sla configuration found", zap.String("org_id", orgID), zap.String("domain", string(d)))
	return nil, apperrors.NewNoConfigurationFound(string(d))
}

func (r *Resolver) matcherFor(d domain.Domain) Matcher {
	if m, ok := r.matchers[d]; ok && m != nil {
		return m
	}
	return r.fallback
}

func copyConfiguration(cfg domain.SlaConfiguration) *domain.SlaConfiguration {
	out := cfg
	if cfg.Conditions != nil {
		out.Conditions = make(map[string]string, len(cfg.Conditions))
		for k, v := range cfg.Conditions {
			out.Conditions[k] = v
		}
	}
	return &out
}
