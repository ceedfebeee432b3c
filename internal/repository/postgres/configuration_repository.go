package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/sla-service/internal/domain"
	"github.com/spec-kit/sla-service/internal/repository"
)

type configurationRepository struct {
	db DBTX
}

const configurationColumns = `id, org_id, domain, name, response_target_value, response_target_unit,
        resolution_target_value, resolution_target_unit, at_risk_threshold_percent, escalate_on_breach,
        escalate_to_user, business_hours_schedule_id, is_default, priority_order, is_active, conditions,
        version, created_at, updated_at`

func (r *configurationRepository) Create(ctx context.Context, cfg *domain.SlaConfiguration) error {
	conditions, err := json.Marshal(cfg.Conditions)
	if err != nil {
		return fmt.Errorf("encode conditions: %w", err)
	}
	respValue, respUnit := splitTarget(cfg.ResponseTarget)
	resValue, resUnit := splitTarget(cfg.ResolutionTarget)
	const query = `
        INSERT INTO sla_configurations (org_id, domain, name, response_target_value, response_target_unit,
            resolution_target_value, resolution_target_unit, at_risk_threshold_percent, escalate_on_breach,
            escalate_to_user, business_hours_schedule_id, is_default, priority_order, is_active, conditions)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
        RETURNING id, version, created_at, updated_at`
	return mapError(r.db.QueryRow(ctx, query,
		cfg.OrgID,
		cfg.Domain,
		cfg.Name,
		respValue,
		respUnit,
		resValue,
		resUnit,
		cfg.AtRiskThresholdPercent,
		cfg.EscalateOnBreach,
		cfg.EscalateToUser,
		cfg.BusinessHoursScheduleID,
		cfg.IsDefault,
		cfg.PriorityOrder,
		cfg.IsActive,
		conditions,
	).Scan(&cfg.ID, &cfg.Version, &cfg.CreatedAt, &cfg.UpdatedAt))
}

func (r *configurationRepository) Update(ctx context.Context, cfg *domain.SlaConfiguration) error {
	conditions, err := json.Marshal(cfg.Conditions)
	if err != nil {
		return fmt.Errorf("encode conditions: %w", err)
	}
	respValue, respUnit := splitTarget(cfg.ResponseTarget)
	resValue, resUnit := splitTarget(cfg.ResolutionTarget)
	const query = `
        UPDATE sla_configurations SET name=$1, response_target_value=$2, response_target_unit=$3,
            resolution_target_value=$4, resolution_target_unit=$5, at_risk_threshold_percent=$6,
            escalate_on_breach=$7, escalate_to_user=$8, business_hours_schedule_id=$9, is_default=$10,
            priority_order=$11, is_active=$12, conditions=$13, version=version+1, updated_at=NOW()
        WHERE id=$14 AND org_id=$15 AND version=$16
        RETURNING version, updated_at`
	err = r.db.QueryRow(ctx, query,
		cfg.Name,
		respValue,
		respUnit,
		resValue,
		resUnit,
		cfg.AtRiskThresholdPercent,
		cfg.EscalateOnBreach,
		cfg.EscalateToUser,
		cfg.BusinessHoursScheduleID,
		cfg.IsDefault,
		cfg.PriorityOrder,
		cfg.IsActive,
		conditions,
		cfg.ID,
		cfg.OrgID,
		cfg.Version,
	).Scan(&cfg.Version, &cfg.UpdatedAt)
	if err == pgx.ErrNoRows {
		if _, getErr := r.GetByID(ctx, cfg.OrgID, cfg.ID); getErr != nil {
			return getErr
		}
		return repository.ErrVersionConflict
	}
	return mapError(err)
}

func (r *configurationRepository) GetByID(ctx context.Context, orgID, id string) (*domain.SlaConfiguration, error) {
	query := `SELECT ` + configurationColumns + ` FROM sla_configurations WHERE org_id=$1 AND id=$2`
	cfg, err := scanConfiguration(r.db.QueryRow(ctx, query, orgID, id))
	if err != nil {
		return nil, mapError(err)
	}
	return cfg, nil
}

func (r *configurationRepository) List(ctx context.Context, filter repository.ConfigurationFilter) ([]domain.SlaConfiguration, error) {
	clauses := []string{"org_id=$1"}
	args := []any{filter.OrgID}
	if filter.Domain != nil {
		args = append(args, *filter.Domain)
		clauses = append(clauses, fmt.Sprintf("domain=$%d", len(args)))
	}
	if filter.ActiveOnly {
		clauses = append(clauses, "is_active")
	}
	query := `SELECT ` + configurationColumns + ` FROM sla_configurations WHERE ` +
		strings.Join(clauses, " AND ") + ` ORDER BY priority_order, name`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
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

func scanConfiguration(row pgx.Row) (*domain.SlaConfiguration, error) {
	var (
		cfg                 domain.SlaConfiguration
		respValue, resValue *int
		respUnit, resUnit   *string
		conditions          []byte
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
	if len(conditions) > 0 {
		if err := json.Unmarshal(conditions, &cfg.Conditions); err != nil {
			return nil, fmt.Errorf("decode conditions: %w", err)
		}
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
