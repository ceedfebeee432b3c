package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/sla-service/internal/domain"
	apperrors "github.com/spec-kit/sla-service/pkg/util/errorutil"
)

type staticSource struct {
	configs []domain.SlaConfiguration
	err     error
}

func (s staticSource) Configurations(context.Context, string) ([]domain.SlaConfiguration, error) {
	return s.configs, s.err
}

func resolverConfigs() []domain.SlaConfiguration {
	return []domain.SlaConfiguration{
		{ID: "default", Domain: domain.DomainSupport, Name: "Default", IsDefault: true, IsActive: true},
		{ID: "vip", Domain: domain.DomainSupport, Name: "VIP", PriorityOrder: 1, IsActive: true,
			Conditions: map[string]string{"tier": "VIP"}},
		{ID: "urgent", Domain: domain.DomainSupport, Name: "Urgent", PriorityOrder: 5, IsActive: true,
			Conditions: map[string]string{"priority": "urgent"}},
		{ID: "retired", Domain: domain.DomainSupport, Name: "Retired", IsActive: false},
		{ID: "warranty-default", Domain: domain.DomainWarranty, Name: "Warranty", IsDefault: true, IsActive: true},
	}
}

func TestResolver_Precedence(t *testing.T) {
	r := NewResolver(staticSource{configs: resolverConfigs()}, nil, nil)
	ctx := context.Background()
	id := func(s string) *string { return &s }

	cases := []struct {
		name   string
		d      domain.Domain
		entity Entity
		want   string
	}{
		{"explicit assignment wins", domain.DomainSupport, Entity{ConfigurationID: id("urgent"), Attributes: map[string]string{"tier": "vip"}}, "urgent"},
		{"inactive assignment falls back", domain.DomainSupport, Entity{ConfigurationID: id("retired")}, "default"},
		{"assignment from another domain ignored", domain.DomainSupport, Entity{ConfigurationID: id("warranty-default")}, "default"},
		{"lowest priority match", domain.DomainSupport, Entity{Attributes: map[string]string{"tier": "vip", "priority": "URGENT"}}, "vip"},
		{"single match", domain.DomainSupport, Entity{Attributes: map[string]string{"priority": "urgent"}}, "urgent"},
		{"default when nothing matches", domain.DomainSupport, Entity{Attributes: map[string]string{"tier": "basic"}}, "default"},
		{"domain scoped default", domain.DomainWarranty, Entity{Attributes: map[string]string{"tier": "vip"}}, "warranty-default"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := r.Resolve(ctx, testOrg, tc.d, tc.entity)
			require.NoError(t, err)
			assert.Equal(t, tc.want, cfg.ID)
		})
	}
}

func TestResolver_NoConfiguration(t *testing.T) {
	r := NewResolver(staticSource{configs: resolverConfigs()}, nil, nil)
	_, err := r.Resolve(context.Background(), testOrg, domain.DomainJobs, Entity{})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNoConfigurationFound))
}

func TestResolver_DomainMatcherOverride(t *testing.T) {
	never := MatcherFunc(func(*domain.SlaConfiguration, Entity) bool { return false })
	r := NewResolver(staticSource{configs: resolverConfigs()}, map[domain.Domain]Matcher{domain.DomainSupport: never}, nil)

	cfg, err := r.Resolve(context.Background(), testOrg, domain.DomainSupport, Entity{Attributes: map[string]string{"tier": "vip"}})
	require.NoError(t, err)
	assert.Equal(t, "default", cfg.ID)
}

func TestResolver_ReturnsCopy(t *testing.T) {
	configs := resolverConfigs()
	r := NewResolver(staticSource{configs: configs}, nil, nil)

	cfg, err := r.Resolve(context.Background(), testOrg, domain.DomainSupport, Entity{Attributes: map[string]string{"tier": "vip"}})
	require.NoError(t, err)
	cfg.Conditions["tier"] = "changed"
	cfg.Name = "changed"
	assert.Equal(t, "VIP", configs[1].Conditions["tier"])
	assert.Equal(t, "VIP", configs[1].Name)
}

func TestResolver_SourceError(t *testing.T) {
	boom := errors.New("store down")
	r := NewResolver(staticSource{err: boom}, nil, nil)
	_, err := r.Resolve(context.Background(), testOrg, domain.DomainSupport, Entity{})
	assert.ErrorIs(t, err, boom)
}
