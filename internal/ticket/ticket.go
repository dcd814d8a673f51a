package ticket

import (
	"regexp"
	"time"

	"github.com/opsdesk/opsdesk-go/internal/apperr"
)

// Status is the lifecycle state of a ticket. There is no path back into
// Open; jumping straight from Open to Resolved or Closed is allowed.
type Status string

const (
	StatusOpen       Status = "Open"
	StatusInProgress Status = "InProgress"
	StatusResolved   Status = "Resolved"
	StatusClosed     Status = "Closed"
)

// Terminal reports whether the status ends the SLA clock.
func (s Status) Terminal() bool { return s == StatusResolved || s == StatusClosed }

// ParseStatus validates a status value from the outside world.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusOpen, StatusInProgress, StatusResolved, StatusClosed:
		return Status(s), nil
	}
	return "", apperr.New(apperr.InvalidState, "unrecognized status %q", s)
}

// Priority is 1..4, Low through Critical.
type Priority int16

const (
	PriorityLow      Priority = 1
	PriorityMedium   Priority = 2
	PriorityHigh     Priority = 3
	PriorityCritical Priority = 4
)

var priorityNames = map[string]Priority{
	"Low":      PriorityLow,
	"Medium":   PriorityMedium,
	"High":     PriorityHigh,
	"Critical": PriorityCritical,
}

// ParsePriority maps a priority name onto its value.
func ParsePriority(name string) (Priority, error) {
	if p, ok := priorityNames[name]; ok {
		return p, nil
	}
	return 0, apperr.New(apperr.InvalidPriority, "unrecognized priority %q", name)
}

// Valid reports whether p is one of the four defined levels.
func (p Priority) Valid() bool { return p >= PriorityLow && p <= PriorityCritical }

func (p Priority) String() string {
	for name, v := range priorityNames {
		if v == p {
			return name
		}
	}
	return "Unknown"
}

// timeWorkedRE: 00-99 hours, 00-59 minutes and seconds.
var timeWorkedRE = regexp.MustCompile(`^[0-9]{2}:[0-5][0-9]:[0-5][0-9]$`)

// ValidTimeWorked reports whether s is an HH:MM:SS duration.
func ValidTimeWorked(s string) bool { return timeWorkedRE.MatchString(s) }

// Ticket is the fixed record shape for one ticket row.
type Ticket struct {
	ID            int64      `json:"id"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	CategoryID    int64      `json:"category_id"`
	SubcategoryID *int64     `json:"subcategory_id,omitempty"`
	Priority      Priority   `json:"priority"`
	Status        Status     `json:"status"`
	CreatedBy     int64      `json:"created_by"`
	AssignedTo    *int64     `json:"assigned_to,omitempty"`
	SLATierID     int64      `json:"sla_tier_id"`
	ResponseDue   time.Time  `json:"response_due"`
	ResolutionDue time.Time  `json:"resolution_due"`
	TimeWorked    string     `json:"time_worked"`
	DueDate       *time.Time `json:"due_date,omitempty"`
	EscalatedAt   *time.Time `json:"escalated_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}
