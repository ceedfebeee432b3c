package dto

import (
	"time"

	"github.com/spec-kit/sla-service/internal/domain"
)

// ScheduleRequest payload for schedule create and update. Weekly maps
// lowercase day names to {"start":"09:00","end":"17:00"} or null.
type ScheduleRequest struct {
	Name      string             `json:"name"`
	Timezone  string             `json:"timezone"`
	Weekly    domain.WeeklyHours `json:"weekly"`
	IsDefault bool               `json:"is_default"`
	Version   int                `json:"version"`
}

// ScheduleResponse describes a schedule.
type ScheduleResponse struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	Timezone  string             `json:"timezone"`
	Weekly    domain.WeeklyHours `json:"weekly"`
	IsDefault bool               `json:"is_default"`
	Version   int                `json:"version"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// HolidayRequest payload for POST /v1/schedules/:id/holidays.
type HolidayRequest struct {
	Name        string           `json:"name"`
	Date        domain.CivilDate `json:"date"`
	IsRecurring bool             `json:"is_recurring"`
	Description *string          `json:"description"`
}

// HolidayResponse describes a holiday.
type HolidayResponse struct {
	ID          string           `json:"id"`
	ScheduleID  string           `json:"schedule_id"`
	Name        string           `json:"name"`
	Date        domain.CivilDate `json:"date"`
	IsRecurring bool             `json:"is_recurring"`
	Description *string          `json:"description"`
}

// ConfigurationRequest payload for configuration create and update.
type ConfigurationRequest struct {
	Domain                  domain.Domain     `json:"domain"`
	Name                    string            `json:"name"`
	ResponseTarget          *domain.Target    `json:"response_target"`
	ResolutionTarget        *domain.Target    `json:"resolution_target"`
	AtRiskThresholdPercent  int               `json:"at_risk_threshold_percent"`
	EscalateOnBreach        bool              `json:"escalate_on_breach"`
	EscalateToUser          *string           `json:"escalate_to_user"`
	BusinessHoursScheduleID *string           `json:"business_hours_schedule_id"`
	IsDefault               bool              `json:"is_default"`
	PriorityOrder           int               `json:"priority_order"`
	IsActive                *bool             `json:"is_active"`
	Conditions              map[string]string `json:"conditions"`
	Version                 int               `json:"version"`
}

// ConfigurationResponse describes a configuration.
type ConfigurationResponse struct {
	ID                      string            `json:"id"`
	Domain                  domain.Domain     `json:"domain"`
	Name                    string            `json:"name"`
	ResponseTarget          *domain.Target    `json:"response_target"`
	ResolutionTarget        *domain.Target    `json:"resolution_target"`
	AtRiskThresholdPercent  int               `json:"at_risk_threshold_percent"`
	EscalateOnBreach        bool              `json:"escalate_on_breach"`
	EscalateToUser          *string           `json:"escalate_to_user"`
	BusinessHoursScheduleID *string           `json:"business_hours_schedule_id"`
	IsDefault               bool              `json:"is_default"`
	PriorityOrder           int               `json:"priority_order"`
	IsActive                bool              `json:"is_active"`
	Conditions              map[string]string `json:"conditions"`
	Version                 int               `json:"version"`
	CreatedAt               time.Time         `json:"created_at"`
	UpdatedAt               time.Time         `json:"updated_at"`
}
