package escalation

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/opsdesk/opsdesk-go/internal/apperr"
	"github.com/opsdesk/opsdesk-go/internal/clock"
	ticketpkg "github.com/opsdesk/opsdesk-go/internal/ticket"
)

type DB = ticketpkg.DB

// Policy decides where a breaching ticket goes. Returning nil clears the
// assignee to force re-triage.
type Policy interface {
	Reassign(t ticketpkg.Ticket) *int64
}

// AssignTo hands every breaching ticket to a designated escalation handler.
type AssignTo int64

func (a AssignTo) Reassign(ticketpkg.Ticket) *int64 {
	id := int64(a)
	return &id
}

// Unassign clears the assignee so the ticket falls back into the triage pool.
type Unassign struct{}

func (Unassign) Reassign(ticketpkg.Ticket) *int64 { return nil }

// FromConfig builds a policy from the configured mode. Unknown modes fall
// back to Unassign.
func FromConfig(mode string, handlerID int64) Policy {
	if mode == "assign" && handlerID > 0 {
		return AssignTo(handlerID)
	}
	return Unassign{}
}

// Breaching reports whether the response deadline has passed while the
// ticket is still unresolved.
func Breaching(t ticketpkg.Ticket, now time.Time) bool {
	return now.After(t.ResponseDue) && !t.Status.Terminal()
}

// Escalate applies the reassignment policy to a breaching ticket and appends
// one audit comment. It is idempotent: the escalated_at watermark guarantees
// at most one observable state change per breach, so re-invoking on an
// already-escalated ticket is a no-op. Non-breaching tickets are a no-op,
// not an error. Returns whether an escalation was performed.
func Escalate(ctx context.Context, db DB, clk clock.Clock, pol Policy, ticketID int64) (bool, error) {
	t, err := ticketpkg.Get(ctx, db, ticketID)
	if err != nil {
		return false, err
	}
	now := clk.Now()
	if !Breaching(t, now) || t.EscalatedAt != nil {
		return false, nil
	}
	assignee := pol.Reassign(t)
	// The watermark guard makes concurrent escalations of the same ticket
	// collapse to a single winner.
	tag, err := db.Exec(ctx, `update tickets set assigned_to=$2, escalated_at=$3, updated_at=now()
where id=$1 and escalated_at is null`, ticketID, assignee, now)
	if err != nil {
		return false, apperr.Storage(err, "ticket")
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	body := fmt.Sprintf("Escalated at %s: response due %s was missed.",
		now.Format(time.RFC3339), t.ResponseDue.Format(time.RFC3339))
	if _, err := db.Exec(ctx, `insert into ticket_comments (ticket_id, commenter_id, body, created_at) values ($1, null, $2, $3)`,
		ticketID, body, now); err != nil {
		return true, apperr.Storage(err, "audit comment")
	}
	_, _ = db.Exec(ctx, `insert into ticket_events (ticket_id, event_type, payload) values ($1, 'escalated', $2)`,
		ticketID, fmt.Sprintf(`{"response_due":%q,"escalated_at":%q}`, t.ResponseDue.Format(time.RFC3339), now.Format(time.RFC3339)))
	return true, nil
}

// Scan walks every candidate ticket and escalates the breaching ones. Each
// ticket is handled independently; a failure on one is logged and the scan
// moves on. Returns the ids that were escalated.
func Scan(ctx context.Context, db DB, clk clock.Clock, pol Policy) ([]int64, error) {
	rows, err := db.Query(ctx, `select id from tickets
where response_due < $1 and status not in ($2, $3) and escalated_at is null order by id`,
		clk.Now(), ticketpkg.StatusResolved, ticketpkg.StatusClosed)
	if err != nil {
		return nil, apperr.Storage(err, "tickets")
	}
	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, apperr.Storage(err, "tickets")
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage(err, "tickets")
	}

	escalated := []int64{}
	for _, id := range ids {
		done, err := Escalate(ctx, db, clk, pol, id)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Int64("ticket", id).Msg("escalate")
			continue
		}
		if done {
			escalated = append(escalated, id)
		}
	}
	return escalated, nil
}
