package sla

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/opsdesk/opsdesk-go/internal/apperr"
)

type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Tier is a named bundle of response/resolution time budgets in hours. A
// ticket references one tier forever; editing a tier never touches the due
// timestamps of tickets already created from it.
type Tier struct {
	ID                  int64  `json:"id"`
	Name                string `json:"name"`
	ResponseTimeHours   int    `json:"response_time_hours"`
	ResolutionTimeHours int    `json:"resolution_time_hours"`
}

// Deadlines computes the response and resolution due timestamps for a ticket
// created at createdAt. Pure; called exactly once per ticket.
func (t Tier) Deadlines(createdAt time.Time) (responseDue, resolutionDue time.Time) {
	responseDue = createdAt.Add(time.Duration(t.ResponseTimeHours) * time.Hour)
	resolutionDue = createdAt.Add(time.Duration(t.ResolutionTimeHours) * time.Hour)
	return responseDue, resolutionDue
}

// GetTier loads one tier. An unknown id is an InvalidReference, matching the
// create-ticket contract.
func GetTier(ctx context.Context, db DB, id int64) (Tier, error) {
	var t Tier
	err := db.QueryRow(ctx, `select id, name, response_time_hours, resolution_time_hours from sla_tiers where id=$1`, id).
		Scan(&t.ID, &t.Name, &t.ResponseTimeHours, &t.ResolutionTimeHours)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Tier{}, apperr.New(apperr.InvalidReference, "unknown sla tier %d", id)
		}
		return Tier{}, apperr.Storage(err, "sla tier")
	}
	return t, nil
}

// Compute resolves the tier and returns both due timestamps.
func Compute(ctx context.Context, db DB, tierID int64, createdAt time.Time) (responseDue, resolutionDue time.Time, err error) {
	t, err := GetTier(ctx, db, tierID)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	responseDue, resolutionDue = t.Deadlines(createdAt)
	return responseDue, resolutionDue, nil
}

// ListTiers returns the catalog ordered by response budget.
func ListTiers(ctx context.Context, db DB) ([]Tier, error) {
	rows, err := db.Query(ctx, `select id, name, response_time_hours, resolution_time_hours from sla_tiers order by response_time_hours, id`)
	if err != nil {
		return nil, apperr.Storage(err, "sla tiers")
	}
	defer rows.Close()
	out := []Tier{}
	for rows.Next() {
		var t Tier
		if err := rows.Scan(&t.ID, &t.Name, &t.ResponseTimeHours, &t.ResolutionTimeHours); err != nil {
			return nil, apperr.Storage(err, "sla tiers")
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage(err, "sla tiers")
	}
	return out, nil
}

// CreateTier adds a catalog entry. Budgets must be non-negative.
func CreateTier(ctx context.Context, db DB, name string, responseHours, resolutionHours int) (Tier, error) {
	if name == "" {
		return Tier{}, apperr.New(apperr.InvalidFormat, "tier name required")
	}
	if responseHours < 0 || resolutionHours < 0 {
		return Tier{}, apperr.New(apperr.InvalidFormat, "time budgets must be non-negative")
	}
	var t Tier
	err := db.QueryRow(ctx, `insert into sla_tiers (name, response_time_hours, resolution_time_hours) values ($1, $2, $3)
returning id, name, response_time_hours, resolution_time_hours`, name, responseHours, resolutionHours).
		Scan(&t.ID, &t.Name, &t.ResponseTimeHours, &t.ResolutionTimeHours)
	if err != nil {
		return Tier{}, apperr.Storage(err, "sla tier")
	}
	return t, nil
}

// UpdateTier edits an existing entry. Existing tickets keep the deadlines
// they were created with.
func UpdateTier(ctx context.Context, db DB, id int64, name string, responseHours, resolutionHours int) (Tier, error) {
	if responseHours < 0 || resolutionHours < 0 {
		return Tier{}, apperr.New(apperr.InvalidFormat, "time budgets must be non-negative")
	}
	var t Tier
	err := db.QueryRow(ctx, `update sla_tiers set name=$2, response_time_hours=$3, resolution_time_hours=$4 where id=$1
returning id, name, response_time_hours, resolution_time_hours`, id, name, responseHours, resolutionHours).
		Scan(&t.ID, &t.Name, &t.ResponseTimeHours, &t.ResolutionTimeHours)
	if err != nil {
		return Tier{}, apperr.Storage(err, "sla tier")
	}
	return t, nil
}
