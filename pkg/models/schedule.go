package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule is the next-fire bookkeeping for one SCHEDULE definition.
type Schedule struct {
	// DefinitionID identifies the workflow definition fired by this schedule
	DefinitionID string `json:"definition_id" validate:"required"`

	// CronExpression uses the standard 5-field format (minute hour day month weekday)
	CronExpression string `json:"cron_expression" validate:"required"`

	// Timezone is an IANA location name, UTC when empty
	Timezone string `json:"timezone,omitempty"`

	// NextDueAt is the precomputed next execution time
	NextDueAt time.Time `json:"next_due_at"`

	schedule cron.Schedule
	location *time.Location
}

var (
	// ErrInvalidSchedule is returned when schedule validation fails
	ErrInvalidSchedule = errors.New("invalid schedule configuration")

	cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
)

// NewSchedule parses the cron expression and computes the first due time after now.
func NewSchedule(definitionID, cronExpression, timezone string, now time.Time) (*Schedule, error) {
	if definitionID == "" {
		return nil, ErrInvalidSchedule
	}

	parsed, location, err := ParseCron(cronExpression, timezone)
	if err != nil {
		return nil, err
	}

	s := &Schedule{
		DefinitionID:   definitionID,
		CronExpression: cronExpression,
		Timezone:       timezone,
		schedule:       parsed,
		location:       location,
	}
	s.Advance(now)

	return s, nil
}

// ParseCron validates a cron expression and timezone pair.
func ParseCron(cronExpression, timezone string) (cron.Schedule, *time.Location, error) {
	if cronExpression == "" {
		return nil, nil, ErrInvalidSchedule
	}

	location := time.UTC

	if timezone != "" {
		loc, err := time.LoadLocation(timezone)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: unknown timezone %q: %w", ErrInvalidSchedule, timezone, err)
		}

		location = loc
	}

	parsed, err := cronParser.Parse(cronExpression)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrInvalidSchedule, err)
	}

	return parsed, location, nil
}

// Advance moves NextDueAt to the first fire time strictly after reference.
func (s *Schedule) Advance(reference time.Time) {
	s.NextDueAt = s.schedule.Next(reference.In(s.location)).UTC()
}

// IsDue checks if this schedule is due for execution at the given time.
func (s *Schedule) IsDue(now time.Time) bool {
	return !s.NextDueAt.After(now)
}
