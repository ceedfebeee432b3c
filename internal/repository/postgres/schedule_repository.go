package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/sla-service/internal/domain"
	"github.com/spec-kit/sla-service/internal/repository"
)

type scheduleRepository struct {
	db DBTX
}

const scheduleColumns = `id, org_id, name, timezone, weekly, is_default, version, created_at, updated_at`

func (r *scheduleRepository) Create(ctx context.Context, schedule *domain.BusinessHoursSchedule) error {
	weekly, err := json.Marshal(schedule.Weekly)
	if err != nil {
		return fmt.Errorf("encode weekly hours: %w", err)
	}
	const query = `
        INSERT INTO business_hours_schedules (org_id, name, timezone, weekly, is_default)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, version, created_at, updated_at`
	return mapError(r.db.QueryRow(ctx, query,
		schedule.OrgID,
		schedule.Name,
		schedule.Timezone,
		weekly,
		schedule.IsDefault,
	).Scan(&schedule.ID, &schedule.Version, &schedule.CreatedAt, &schedule.UpdatedAt))
}

func (r *scheduleRepository) Update(ctx context.Context, schedule *domain.BusinessHoursSchedule) error {
	weekly, err := json.Marshal(schedule.Weekly)
	if err != nil {
		return fmt.Errorf("encode weekly hours: %w", err)
	}
	const query = `
        UPDATE business_hours_schedules SET name=$1, timezone=$2, weekly=$3, is_default=$4,
            version=version+1, updated_at=NOW()
        WHERE id=$5 AND org_id=$6 AND version=$7
        RETURNING version, updated_at`
	err = r.db.QueryRow(ctx, query,
		schedule.Name,
		schedule.Timezone,
		weekly,
		schedule.IsDefault,
		schedule.ID,
		schedule.OrgID,
		schedule.Version,
	).Scan(&schedule.Version, &schedule.UpdatedAt)
	if err == pgx.ErrNoRows {
		if _, getErr := r.GetByID(ctx, schedule.OrgID, schedule.ID); getErr != nil {
			return getErr
		}
		return repository.ErrVersionConflict
	}
	return mapError(err)
}

func (r *scheduleRepository) GetByID(ctx context.Context, orgID, id string) (*domain.BusinessHoursSchedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM business_hours_schedules WHERE org_id=$1 AND id=$2`
	schedule, err := scanSchedule(r.db.QueryRow(ctx, query, orgID, id))
	if err != nil {
		return nil, mapError(err)
	}
	return schedule, nil
}

func (r *scheduleRepository) List(ctx context.Context, orgID string) ([]domain.BusinessHoursSchedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM business_hours_schedules WHERE org_id=$1 ORDER BY name`
	rows, err := r.db.Query(ctx, query, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schedules []domain.BusinessHoursSchedule
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, *schedule)
	}
	return schedules, rows.Err()
}

func scanSchedule(row pgx.Row) (*domain.BusinessHoursSchedule, error) {
	var (
		schedule domain.BusinessHoursSchedule
		weekly   []byte
	)
	if err := row.Scan(
		&schedule.ID,
		&schedule.OrgID,
		&schedule.Name,
		&schedule.Timezone,
		&weekly,
		&schedule.IsDefault,
		&schedule.Version,
		&schedule.CreatedAt,
		&schedule.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(weekly, &schedule.Weekly); err != nil {
		return nil, fmt.Errorf("decode weekly hours: %w", err)
	}
	return &schedule, nil
}
