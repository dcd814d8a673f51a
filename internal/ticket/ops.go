package ticket

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/opsdesk/opsdesk-go/internal/apperr"
	"github.com/opsdesk/opsdesk-go/internal/clock"
	slapkg "github.com/opsdesk/opsdesk-go/internal/sla"
)

type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const cols = `id, title, description, category_id, subcategory_id, priority, status, created_by, assigned_to,
sla_tier_id, response_due, resolution_due, time_worked, due_date, escalated_at, created_at, updated_at`

func scanTicket(row pgx.Row) (Ticket, error) {
	var t Ticket
	err := row.Scan(&t.ID, &t.Title, &t.Description, &t.CategoryID, &t.SubcategoryID, &t.Priority, &t.Status,
		&t.CreatedBy, &t.AssignedTo, &t.SLATierID, &t.ResponseDue, &t.ResolutionDue, &t.TimeWorked,
		&t.DueDate, &t.EscalatedAt, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

// CreateParams carries everything needed to open a ticket. CreatedBy comes
// from the acting session, never from the request body.
type CreateParams struct {
	Title         string
	Description   string
	CategoryID    int64
	SubcategoryID *int64
	Priority      Priority
	SLATierID     int64
	CreatedBy     int64
}

// Create validates every reference, computes both SLA deadlines once, and
// inserts the ticket in Open. The deadlines are never recomputed afterwards.
func Create(ctx context.Context, db DB, clk clock.Clock, p CreateParams) (Ticket, error) {
	if !p.Priority.Valid() {
		return Ticket{}, apperr.New(apperr.InvalidReference, "priority %d does not resolve", p.Priority)
	}
	var ok bool
	if err := db.QueryRow(ctx, `select exists(select 1 from categories where id=$1)`, p.CategoryID).Scan(&ok); err != nil {
		return Ticket{}, apperr.Storage(err, "category")
	}
	if !ok {
		return Ticket{}, apperr.New(apperr.InvalidReference, "unknown category %d", p.CategoryID)
	}
	if p.SubcategoryID != nil {
		if err := db.QueryRow(ctx, `select exists(select 1 from subcategories where id=$1 and category_id=$2)`,
			*p.SubcategoryID, p.CategoryID).Scan(&ok); err != nil {
			return Ticket{}, apperr.Storage(err, "subcategory")
		}
		if !ok {
			return Ticket{}, apperr.New(apperr.InvalidReference, "subcategory %d does not belong to category %d", *p.SubcategoryID, p.CategoryID)
		}
	}
	tier, err := slapkg.GetTier(ctx, db, p.SLATierID)
	if err != nil {
		return Ticket{}, err
	}
	now := clk.Now()
	responseDue, resolutionDue := tier.Deadlines(now)
	row := db.QueryRow(ctx, `insert into tickets
(title, description, category_id, subcategory_id, priority, status, created_by, sla_tier_id,
 response_due, resolution_due, time_worked, created_at, updated_at)
values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, '00:00:00', $11, $11)
returning `+cols,
		p.Title, p.Description, p.CategoryID, p.SubcategoryID, p.Priority, StatusOpen, p.CreatedBy,
		p.SLATierID, responseDue, resolutionDue, now)
	t, err := scanTicket(row)
	if err != nil {
		return Ticket{}, apperr.Storage(err, "ticket")
	}
	return t, nil
}

// Get returns one ticket by id.
func Get(ctx context.Context, db DB, id int64) (Ticket, error) {
	t, err := scanTicket(db.QueryRow(ctx, `select `+cols+` from tickets where id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Ticket{}, apperr.New(apperr.NotFound, "ticket %d not found", id)
		}
		return Ticket{}, apperr.Storage(err, "ticket")
	}
	return t, nil
}

// Exists reports whether a ticket row is present.
func Exists(ctx context.Context, db DB, id int64) (bool, error) {
	var ok bool
	if err := db.QueryRow(ctx, `select exists(select 1 from tickets where id=$1)`, id).Scan(&ok); err != nil {
		return false, apperr.Storage(err, "ticket")
	}
	return ok, nil
}

func collect(rows pgx.Rows) ([]Ticket, error) {
	defer rows.Close()
	out := []Ticket{}
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, apperr.Storage(err, "tickets")
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage(err, "tickets")
	}
	return out, nil
}

// ListByCreator returns a user's tickets, newest first.
func ListByCreator(ctx context.Context, db DB, userID int64) ([]Ticket, error) {
	rows, err := db.Query(ctx, `select `+cols+` from tickets where created_by=$1 order by created_at desc`, userID)
	if err != nil {
		return nil, apperr.Storage(err, "tickets")
	}
	return collect(rows)
}

// ListAgentPool returns the tickets an agent works from: their own plus
// every still-Open ticket awaiting triage.
func ListAgentPool(ctx context.Context, db DB, agentID int64) ([]Ticket, error) {
	rows, err := db.Query(ctx, `select `+cols+` from tickets where assigned_to=$1 or status=$2 order by created_at desc`,
		agentID, StatusOpen)
	if err != nil {
		return nil, apperr.Storage(err, "tickets")
	}
	return collect(rows)
}

// ListAll returns every ticket, most recently touched first.
func ListAll(ctx context.Context, db DB) ([]Ticket, error) {
	rows, err := db.Query(ctx, `select `+cols+` from tickets order by updated_at desc`)
	if err != nil {
		return nil, apperr.Storage(err, "tickets")
	}
	return collect(rows)
}

// SetStatus moves a ticket to any state except back into Open. Entering
// InProgress binds the acting user as assignee when the ticket has none; an
// existing assignee is never displaced by this call.
func SetStatus(ctx context.Context, db DB, id int64, s Status, actingUser int64) (Ticket, error) {
	if _, err := ParseStatus(string(s)); err != nil {
		return Ticket{}, err
	}
	if s == StatusOpen {
		return Ticket{}, apperr.New(apperr.InvalidState, "no transition back into Open")
	}
	var row pgx.Row
	if s == StatusInProgress {
		row = db.QueryRow(ctx, `update tickets set status=$2, assigned_to=coalesce(assigned_to, $3), updated_at=now()
where id=$1 returning `+cols, id, s, actingUser)
	} else {
		row = db.QueryRow(ctx, `update tickets set status=$2, updated_at=now() where id=$1 returning `+cols, id, s)
	}
	t, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Ticket{}, apperr.New(apperr.NotFound, "ticket %d not found", id)
		}
		return Ticket{}, apperr.Storage(err, "ticket")
	}
	return t, nil
}

// SetPriority overwrites the priority.
func SetPriority(ctx context.Context, db DB, id int64, p Priority) (Ticket, error) {
	if !p.Valid() {
		return Ticket{}, apperr.New(apperr.InvalidPriority, "unrecognized priority %d", p)
	}
	t, err := scanTicket(db.QueryRow(ctx, `update tickets set priority=$2, updated_at=now() where id=$1 returning `+cols, id, p))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Ticket{}, apperr.New(apperr.NotFound, "ticket %d not found", id)
		}
		return Ticket{}, apperr.Storage(err, "ticket")
	}
	return t, nil
}

// SetAssignee is the administrator's direct overwrite, independent of status.
func SetAssignee(ctx context.Context, db DB, id int64, agentID int64) (Ticket, error) {
	var ok bool
	if err := db.QueryRow(ctx, `select exists(select 1 from users where id=$1)`, agentID).Scan(&ok); err != nil {
		return Ticket{}, apperr.Storage(err, "user")
	}
	if !ok {
		return Ticket{}, apperr.New(apperr.InvalidReference, "unknown user %d", agentID)
	}
	t, err := scanTicket(db.QueryRow(ctx, `update tickets set assigned_to=$2, updated_at=now() where id=$1 returning `+cols, id, agentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Ticket{}, apperr.New(apperr.NotFound, "ticket %d not found", id)
		}
		return Ticket{}, apperr.Storage(err, "ticket")
	}
	return t, nil
}

// SetDueDate overwrites the administrator soft deadline. It is independent
// of the SLA due timestamps, which never change.
func SetDueDate(ctx context.Context, db DB, id int64, due time.Time) (Ticket, error) {
	t, err := scanTicket(db.QueryRow(ctx, `update tickets set due_date=$2, updated_at=now() where id=$1 returning `+cols, id, due))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Ticket{}, apperr.New(apperr.NotFound, "ticket %d not found", id)
		}
		return Ticket{}, apperr.Storage(err, "ticket")
	}
	return t, nil
}

// SetTimeWorked overwrites the accumulated HH:MM:SS duration.
func SetTimeWorked(ctx context.Context, db DB, id int64, tw string) (Ticket, error) {
	if !ValidTimeWorked(tw) {
		return Ticket{}, apperr.New(apperr.InvalidFormat, "time worked must be HH:MM:SS, got %q", tw)
	}
	t, err := scanTicket(db.QueryRow(ctx, `update tickets set time_worked=$2, updated_at=now() where id=$1 returning `+cols, id, tw))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Ticket{}, apperr.New(apperr.NotFound, "ticket %d not found", id)
		}
		return Ticket{}, apperr.Storage(err, "ticket")
	}
	return t, nil
}
