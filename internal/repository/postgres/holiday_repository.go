package postgres

import (
	"context"
	"time"

	"github.com/spec-kit/sla-service/internal/domain"
	"github.com/spec-kit/sla-service/internal/repository"
)

type holidayRepository struct {
	db DBTX
}

func (r *holidayRepository) Create(ctx context.Context, holiday *domain.Holiday) error {
	const query = `
        INSERT INTO holidays (org_id, schedule_id, name, holiday_date, is_recurring, description)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at`
	return mapError(r.db.QueryRow(ctx, query,
		holiday.OrgID,
		holiday.ScheduleID,
		holiday.Name,
		holiday.Date.In(time.UTC),
		holiday.IsRecurring,
		holiday.Description,
	).Scan(&holiday.ID, &holiday.CreatedAt))
}

func (r *holidayRepository) Delete(ctx context.Context, orgID, id string) error {
	cmd, err := r.db.Exec(ctx, `DELETE FROM holidays WHERE org_id=$1 AND id=$2`, orgID, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *holidayRepository) ListBySchedule(ctx context.Context, orgID, scheduleID string) ([]domain.Holiday, error) {
	const query = `
        SELECT id, org_id, schedule_id, name, holiday_date, is_recurring, description, created_at
        FROM holidays WHERE org_id=$1 AND schedule_id=$2
        ORDER BY holiday_date`
	rows, err := r.db.Query(ctx, query, orgID, scheduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var holidays []domain.Holiday
	for rows.Next() {
		var (
			h    domain.Holiday
			date time.Time
		)
		if err := rows.Scan(&h.ID, &h.OrgID, &h.ScheduleID, &h.Name, &date, &h.IsRecurring, &h.Description, &h.CreatedAt); err != nil {
			return nil, err
		}
		h.Date = domain.CivilDateOf(date.UTC())
		holidays = append(holidays, h)
	}
	return holidays, rows.Err()
}
