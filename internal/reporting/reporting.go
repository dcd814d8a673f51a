package reporting

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/opsdesk/opsdesk-go/internal/apperr"
	ticketpkg "github.com/opsdesk/opsdesk-go/internal/ticket"
)

type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Summary is the on-demand rollup over the whole ticket collection. An empty
// collection yields all zeros rather than an error.
type Summary struct {
	Total         int64   `json:"total"`
	Open          int64   `json:"open"`
	InProgress    int64   `json:"in_progress"`
	Resolved      int64   `json:"resolved"`
	Closed        int64   `json:"closed"`
	Breached      int64   `json:"breached"`
	SLAMet        int64   `json:"sla_met"`
	CompliancePct float64 `json:"compliance_pct"`
}

// Summarize computes the global counters in one pass. A ticket is breached
// when its response deadline passed while it is neither Resolved nor Closed;
// it met its SLA when the last touch happened before the response deadline.
func Summarize(ctx context.Context, db DB, now time.Time) (Summary, error) {
	var s Summary
	err := db.QueryRow(ctx, `select
  count(*),
  count(*) filter (where status=$2),
  count(*) filter (where status=$3),
  count(*) filter (where status=$4),
  count(*) filter (where status=$5),
  count(*) filter (where response_due < $1 and status not in ($4, $5)),
  count(*) filter (where response_due >= updated_at)
from tickets`, now,
		ticketpkg.StatusOpen, ticketpkg.StatusInProgress, ticketpkg.StatusResolved, ticketpkg.StatusClosed).
		Scan(&s.Total, &s.Open, &s.InProgress, &s.Resolved, &s.Closed, &s.Breached, &s.SLAMet)
	if err != nil {
		return Summary{}, apperr.Storage(err, "summary")
	}
	if s.Total > 0 {
		s.CompliancePct = float64(s.SLAMet) * 100 / float64(s.Total)
	}
	return s, nil
}

// AgentStats is the per-agent workload and latency rollup. Latency averages
// are the SLA windows granted to that agent's tickets, in hours; an agent
// with no matching tickets simply does not appear.
type AgentStats struct {
	AgentID            int64   `json:"agent_id"`
	AgentName          string  `json:"agent_name"`
	Assigned           int64   `json:"assigned"`
	Resolved           int64   `json:"resolved"`
	AvgResponseHours   float64 `json:"avg_response_hours"`
	AvgResolutionHours float64 `json:"avg_resolution_hours"`
}

// ByAgent groups the rollup by assignee.
func ByAgent(ctx context.Context, db DB) ([]AgentStats, error) {
	rows, err := db.Query(ctx, `select
  t.assigned_to,
  coalesce(u.display_name, ''),
  count(*),
  count(*) filter (where t.status in ($1, $2)),
  coalesce(avg(extract(epoch from (t.response_due - t.created_at)) / 3600), 0),
  coalesce(avg(extract(epoch from (t.resolution_due - t.created_at)) / 3600), 0)
from tickets t
left join users u on u.id = t.assigned_to
where t.assigned_to is not null
group by t.assigned_to, u.display_name
order by t.assigned_to`, ticketpkg.StatusResolved, ticketpkg.StatusClosed)
	if err != nil {
		return nil, apperr.Storage(err, "agent stats")
	}
	defer rows.Close()
	out := []AgentStats{}
	for rows.Next() {
		var a AgentStats
		if err := rows.Scan(&a.AgentID, &a.AgentName, &a.Assigned, &a.Resolved, &a.AvgResponseHours, &a.AvgResolutionHours); err != nil {
			return nil, apperr.Storage(err, "agent stats")
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage(err, "agent stats")
	}
	return out, nil
}
