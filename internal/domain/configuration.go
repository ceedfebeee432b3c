package domain

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/spec-kit/sla-service/pkg/util/errorutil"
)

// Domain identifies which kind of entity an SLA applies to.
type Domain string

const (
	DomainSupport  Domain = "support"
	DomainWarranty Domain = "warranty"
	DomainJobs     Domain = "jobs"
)

// Valid reports whether d is a known domain.
func (d Domain) Valid() bool {
	switch d {
	case DomainSupport, DomainWarranty, DomainJobs:
		return true
	}
	return false
}

// TargetUnit is the unit a target value is expressed in.
type TargetUnit string

const (
	UnitMinutes       TargetUnit = "minutes"
	UnitHours         TargetUnit = "hours"
	UnitBusinessHours TargetUnit = "business_hours"
	UnitDays          TargetUnit = "days"
	UnitBusinessDays  TargetUnit = "business_days"
)

// Valid reports whether u is a known unit.
func (u TargetUnit) Valid() bool {
	switch u {
	case UnitMinutes, UnitHours, UnitBusinessHours, UnitDays, UnitBusinessDays:
		return true
	}
	return false
}

// IsBusiness reports whether the unit is measured against a business calendar.
func (u TargetUnit) IsBusiness() bool {
	return u == UnitBusinessHours || u == UnitBusinessDays
}

// Target is a value/unit pair such as 4 business_hours.
type Target struct {
	Value int        `json:"value"`
	Unit  TargetUnit `json:"unit"`
}

func (t Target) String() string {
	return fmt.Sprintf("%d %s", t.Value, t.Unit)
}

// NewTarget builds a target from nullable value and unit columns or fields.
// Both absent yields nil; exactly one absent is a configuration error.
func NewTarget(field string, value *int, unit *string) (*Target, error) {
	hasUnit := unit != nil && strings.TrimSpace(*unit) != ""
	if value == nil && !hasUnit {
		return nil, nil
	}
	if value == nil || !hasUnit {
		return nil, apperrors.NewConfigurationError(field+" requires both value and unit", map[string]any{"field": field})
	}
	target := &Target{Value: *value, Unit: TargetUnit(strings.TrimSpace(*unit))}
	if err := target.validate(field); err != nil {
		return nil, err
	}
	return target, nil
}

func (t Target) validate(field string) error {
	if t.Value <= 0 {
		return apperrors.NewConfigurationError(field+" value must be positive", map[string]any{"field": field, "value": t.Value})
	}
	if !t.Unit.Valid() {
		return apperrors.NewConfigurationError(field+" has unknown unit", map[string]any{"field": field, "unit": string(t.Unit)})
	}
	return nil
}

// DefaultAtRiskThresholdPercent applies when a configuration leaves the threshold unset.
const DefaultAtRiskThresholdPercent = 25

// SlaConfiguration holds the targets and escalation policy for a domain.
type SlaConfiguration struct {
	ID                      string
	OrgID                   string
	Domain                  Domain
	Name                    string
	ResponseTarget          *Target
	ResolutionTarget        *Target
	AtRiskThresholdPercent  int
	EscalateOnBreach        bool
	EscalateToUser          *string
	BusinessHoursScheduleID *string
	IsDefault               bool
	PriorityOrder           int
	IsActive                bool
	Conditions              map[string]string
	Version                 int
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// UsesBusinessTime reports whether any target needs a business calendar.
func (c *SlaConfiguration) UsesBusinessTime() bool {
	return (c.ResponseTarget != nil && c.ResponseTarget.Unit.IsBusiness()) ||
		(c.ResolutionTarget != nil && c.ResolutionTarget.Unit.IsBusiness())
}

// ApplyDefaults fills optional fields.
func (c *SlaConfiguration) ApplyDefaults() {
	if c.AtRiskThresholdPercent == 0 {
		c.AtRiskThresholdPercent = DefaultAtRiskThresholdPercent
	}
	if c.Conditions == nil {
		c.Conditions = map[string]string{}
	}
}

// Validate reports structural problems as a configuration error.
func (c *SlaConfiguration) Validate() error {
	if !c.Domain.Valid() {
		return apperrors.NewConfigurationError("unknown domain", map[string]any{"domain": string(c.Domain)})
	}
	if strings.TrimSpace(c.Name) == "" {
		return apperrors.NewConfigurationError("name required", nil)
	}
	if c.ResponseTarget != nil {
		if err := c.ResponseTarget.validate("response_target"); err != nil {
			return err
		}
	}
	if c.ResolutionTarget != nil {
		if err := c.ResolutionTarget.validate("resolution_target"); err != nil {
			return err
		}
	}
	if c.AtRiskThresholdPercent < 1 || c.AtRiskThresholdPercent > 99 {
		return apperrors.NewConfigurationError("at_risk_threshold_percent must be between 1 and 99",
			map[string]any{"at_risk_threshold_percent": c.AtRiskThresholdPercent})
	}
	if c.EscalateOnBreach && (c.EscalateToUser == nil || strings.TrimSpace(*c.EscalateToUser) == "") {
		return apperrors.NewConfigurationError("escalate_to_user required when escalate_on_breach is set", nil)
	}
	if c.UsesBusinessTime() && c.BusinessHoursScheduleID == nil {
		return apperrors.NewConfigurationError("business time targets require a business hours schedule",
			map[string]any{"configuration_id": c.ID})
	}
	return nil
}
