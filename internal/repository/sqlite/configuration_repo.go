package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/sla-service/internal/domain"
	"github.com/spec-kit/sla-service/internal/repository"
)

type configurationRepo struct {
	db  DBTX
	now func() time.Time
}

const configurationColumns = `id, org_id, domain, name, response_target_value, response_target_unit,
	resolution_target_value, resolution_target_unit, at_risk_threshold_percent, escalate_on_breach,
	escalate_to_user, business_hours_schedule_id, is_default, priority_order, is_active, conditions,
	version, created_at, updated_at`

func (r *configurationRepo) Create(ctx context.Context, cfg *domain.SlaConfiguration) error {
	conditions, err := json.Marshal(cfg.Conditions)
	if err != nil {
		return fmt.Errorf("encode conditions: %w", err)
	}
	respValue, respUnit := splitTarget(cfg.ResponseTarget)
	resValue, resUnit := splitTarget(cfg.ResolutionTarget)
	now := utcNow(r.now)
	id := uuid.NewString()
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO sla_configurations (`+configurationColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		id, cfg.OrgID, string(cfg.Domain), cfg.Name, respValue, respUnit, resValue, resUnit,
		cfg.AtRiskThresholdPercent, cfg.EscalateOnBreach, cfg.EscalateToUser, cfg.BusinessHoursScheduleID,
		cfg.IsDefault, cfg.PriorityOrder, cfg.IsActive, string(conditions), now, now,
	)
	if err != nil {
		return mapError(err)
	}
	cfg.ID, cfg.Version, cfg.CreatedAt, cfg.UpdatedAt = id, 1, now, now
	return nil
}

func (r *configurationRepo) Update(ctx context.Context, cfg *domain.SlaConfiguration) error {
	conditions, err := json.Marshal(cfg.Conditions)
	if err != nil {
		return fmt.Errorf("encode conditions: %w", err)
	}
	respValue, respUnit := splitTarget(cfg.ResponseTarget)
	resValue, resUnit := splitTarget(cfg.ResolutionTarget)
	now := utcNow(r.now)
	res, err := r.db.ExecContext(ctx,
		`UPDATE sla_configurations SET name = ?, response_target_value = ?, response_target_unit = ?,
		     resolution_target_value = ?, resolution_target_unit = ?, at_risk_threshold_percent = ?,
		     escalate_on_breach = ?, escalate_to_user = ?, business_hours_schedule_id = ?, is_default = ?,
		     priority_order = ?, is_active = ?, conditions = ?, version = version + 1, updated_at = ?
		 WHERE org_id = ? AND id = ? AND version = ?`,
		cfg.Name, respValue, respUnit, resValue, resUnit, cfg.AtRiskThresholdPercent,
		cfg.EscalateOnBreach, cfg.EscalateToUser, cfg.BusinessHoursScheduleID, cfg.IsDefault,
		cfg.PriorityOrder, cfg.IsActive, string(conditions), now,
		cfg.OrgID, cfg.ID, cfg.Version,
	)
	if err != nil {
		return mapError(err)
	}
	if err := versionChecked(res, func() error {
		_, err := r.GetByID(ctx, cfg.OrgID, cfg.ID)
		return err
	}); err != nil {
		return err
	}
	cfg.Version++
	cfg.UpdatedAt = now
	return nil
}

func (r *configurationRepo) GetByID(ctx context.Context, orgID, id string) (*domain.SlaConfiguration, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+configurationColumns+` FROM sla_configurations WHERE org_id = ? AND id = ?`, orgID, id)
	cfg, err := scanConfiguration(row)
	if err != nil {
		return nil, mapError(err)
	}
	return cfg, nil
}

func (r *configurationRepo) List(ctx context.Context, filter repository.ConfigurationFilter) ([]domain.SlaConfiguration, error) {
	clauses := []string{"org_id = ?"}
	args := []any{filter.OrgID}
	if filter.Domain != nil {
		clauses = append(clauses, "domain = ?")
		args = append(args, string(*filter.Domain))
	}
	if filter.ActiveOnly {
		clauses = append(clauses, "is_active = 1")
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+configurationColumns+` FROM sla_configurations WHERE `+strings.Join(clauses, " AND ")+
			` ORDER BY priority_order, name`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list configurations: %w", err)
	}
	defer rows.Close()

	var configs []domain.SlaConfiguration
	for rows.Next() {
		cfg, err := scanConfiguration(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, *cfg)
	}
	return configs, rows.Err()
}

func scanConfiguration(row rowScanner) (*domain.SlaConfiguration, error) {
	var (
		cfg                 domain.SlaConfiguration
		respValue, resValue *int
		respUnit, resUnit   *string
		conditions          string
	)
	if err := row.Scan(
		&cfg.ID,
		&cfg.OrgID,
		&cfg.Domain,
		&cfg.Name,
		&respValue,
		&respUnit,
		&resValue,
		&resUnit,
		&cfg.AtRiskThresholdPercent,
		&cfg.EscalateOnBreach,
		&cfg.EscalateToUser,
		&cfg.BusinessHoursScheduleID,
		&cfg.IsDefault,
		&cfg.PriorityOrder,
		&cfg.IsActive,
		&conditions,
		&cfg.Version,
		&cfg.CreatedAt,
		&cfg.UpdatedAt,
	); err != nil {
		return nil, err
	}
	var err error
	if cfg.ResponseTarget, err = domain.NewTarget("response_target", respValue, respUnit); err != nil {
		return nil, err
	}
	if cfg.ResolutionTarget, err = domain.NewTarget("resolution_target", resValue, resUnit); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(conditions), &cfg.Conditions); err != nil {
		return nil, fmt.Errorf("decode conditions: %w", err)
	}
	return &cfg, nil
}

func splitTarget(target *domain.Target) (*int, *string) {
	if target == nil {
		return nil, nil
	}
	value := target.Value
	unit := string(target.Unit)
	return &value, &unit
}
