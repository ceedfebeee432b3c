package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/sla-service/internal/domain"
	"github.com/spec-kit/sla-service/internal/repository"
)

type scheduleRepo struct {
	db  DBTX
	now func() time.Time
}

const scheduleColumns = `id, org_id, name, timezone, weekly, is_default, version, created_at, updated_at`

func (r *scheduleRepo) Create(ctx context.Context, schedule *domain.BusinessHoursSchedule) error {
	weekly, err := json.Marshal(schedule.Weekly)
	if err != nil {
		return fmt.Errorf("encode weekly hours: %w", err)
	}
	now := utcNow(r.now)
	id := uuid.NewString()
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO business_hours_schedules (id, org_id, name, timezone, weekly, is_default, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		id, schedule.OrgID, schedule.Name, schedule.Timezone, string(weekly), schedule.IsDefault, now, now,
	)
	if err != nil {
		return mapError(err)
	}
	schedule.ID, schedule.Version, schedule.CreatedAt, schedule.UpdatedAt = id, 1, now, now
	return nil
}

func (r *scheduleRepo) Update(ctx context.Context, schedule *domain.BusinessHoursSchedule) error {
	weekly, err := json.Marshal(schedule.Weekly)
	if err != nil {
		return fmt.Errorf("encode weekly hours: %w", err)
	}
	now := utcNow(r.now)
	res, err := r.db.ExecContext(ctx,
		`UPDATE business_hours_schedules SET name = ?, timezone = ?, weekly = ?, is_default = ?,
		     version = version + 1, updated_at = ?
		 WHERE org_id = ? AND id = ? AND version = ?`,
		schedule.Name, schedule.Timezone, string(weekly), schedule.IsDefault, now,
		schedule.OrgID, schedule.ID, schedule.Version,
	)
	if err != nil {
		return mapError(err)
	}
	if err := versionChecked(res, func() error {
		_, err := r.GetByID(ctx, schedule.OrgID, schedule.ID)
		return err
	}); err != nil {
		return err
	}
	schedule.Version++
	schedule.UpdatedAt = now
	return nil
}

func (r *scheduleRepo) GetByID(ctx context.Context, orgID, id string) (*domain.BusinessHoursSchedule, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+scheduleColumns+` FROM business_hours_schedules WHERE org_id = ? AND id = ?`, orgID, id)
	schedule, err := scanSchedule(row)
	if err != nil {
		return nil, mapError(err)
	}
	return schedule, nil
}

func (r *scheduleRepo) List(ctx context.Context, orgID string) ([]domain.BusinessHoursSchedule, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+scheduleColumns+` FROM business_hours_schedules WHERE org_id = ? ORDER BY name`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row rowScanner) (*domain.BusinessHoursSchedule, error) {
	var (
		schedule domain.BusinessHoursSchedule
		weekly   string
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
	if err := json.Unmarshal([]byte(weekly), &schedule.Weekly); err != nil {
		return nil, fmt.Errorf("decode weekly hours: %w", err)
	}
	return &schedule, nil
}

// versionChecked turns a zero-row optimistic update into ErrVersionConflict,
// or ErrNotFound when exists reports the row is gone.
func versionChecked(res sql.Result, exists func() error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}
	if err := exists(); err != nil {
		return err
	}
	return repository.ErrVersionConflict
}

type holidayRepo struct {
	db  DBTX
	now func() time.Time
}

func (r *holidayRepo) Create(ctx context.Context, holiday *domain.Holiday) error {
	now := utcNow(r.now)
	id := uuid.NewString()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO holidays (id, org_id, schedule_id, name, holiday_date, is_recurring, description, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, holiday.OrgID, holiday.ScheduleID, holiday.Name, holiday.Date.String(), holiday.IsRecurring, holiday.Description, now,
	)
	if err != nil {
		return mapError(err)
	}
	holiday.ID, holiday.CreatedAt = id, now
	return nil
}

func (r *holidayRepo) Delete(ctx context.Context, orgID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM holidays WHERE org_id = ? AND id = ?`, orgID, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *holidayRepo) ListBySchedule(ctx context.Context, orgID, scheduleID string) ([]domain.Holiday, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, org_id, schedule_id, name, holiday_date, is_recurring, description, created_at
		 FROM holidays WHERE org_id = ? AND schedule_id = ? ORDER BY holiday_date`, orgID, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list holidays: %w", err)
	}
	defer rows.Close()

	var holidays []domain.Holiday
	for rows.Next() {
		var (
			h           domain.Holiday
			date        string
			description sql.NullString
		)
		if err := rows.Scan(&h.ID, &h.OrgID, &h.ScheduleID, &h.Name, &date, &h.IsRecurring, &description, &h.CreatedAt); err != nil {
			return nil, err
		}
		if h.Date, err = domain.ParseCivilDate(date); err != nil {
			return nil, err
		}
		if description.Valid {
			h.Description = &description.String
		}
		holidays = append(holidays, h)
	}
	return holidays, rows.Err()
}

type accountRepo struct {
	db  DBTX
	now func() time.Time
}

func (r *accountRepo) Create(ctx context.Context, account *domain.ServiceAccount) error {
	now := utcNow(r.now)
	id := uuid.NewString()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO service_accounts (id, org_id, client_id, secret_hash, role, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, account.OrgID, account.ClientID, account.SecretHash, string(account.Role), account.Active, now, now,
	)
	if err != nil {
		return mapError(err)
	}
	account.ID, account.CreatedAt, account.UpdatedAt = id, now, now
	return nil
}

func (r *accountRepo) GetByClientID(ctx context.Context, clientID string) (*domain.ServiceAccount, error) {
	var account domain.ServiceAccount
	err := r.db.QueryRowContext(ctx,
		`SELECT id, org_id, client_id, secret_hash, role, active, created_at, updated_at
		 FROM service_accounts WHERE client_id = ?`, clientID,
	).Scan(&account.ID, &account.OrgID, &account.ClientID, &account.SecretHash, &account.Role, &account.Active, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &account, nil
}
