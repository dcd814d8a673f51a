package calendar

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apppkg "github.com/opsdesk/opsdesk-go/cmd/api/app"
	authpkg "github.com/opsdesk/opsdesk-go/cmd/api/auth"
	"github.com/opsdesk/opsdesk-go/internal/apperr"
)

// Entry is one day an agent has marked unavailable.
type Entry struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Day       time.Time `json:"day"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// List returns unavailability marks, optionally scoped by the `user` query
// parameter; agents see the whole calendar.
func List(a *apppkg.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.DB == nil {
			c.JSON(http.StatusOK, []Entry{})
			return
		}
		ctx, cancel := a.OpCtx(c)
		defer cancel()
		rows, err := a.DB.Query(ctx, `select id, user_id, day, coalesce(reason,''), created_at
from calendar_unavailability order by day asc`)
		if err != nil {
			apppkg.Fail(c, apperr.Storage(err, "calendar"))
			return
		}
		defer rows.Close()
		out := []Entry{}
		for rows.Next() {
			var e Entry
			if err := rows.Scan(&e.ID, &e.UserID, &e.Day, &e.Reason, &e.CreatedAt); err != nil {
				apppkg.Fail(c, apperr.Storage(err, "calendar"))
				return
			}
			out = append(out, e)
		}
		c.JSON(http.StatusOK, out)
	}
}

type markReq struct {
	Day    string `json:"day" binding:"required"`
	Reason string `json:"reason"`
}

// Mark records the acting agent as unavailable for a day. Marking the same
// day twice is rejected.
func Mark(a *apppkg.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in markReq
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "day is required"})
			return
		}
		day, err := time.Parse("2006-01-02", in.Day)
		if err != nil {
			apppkg.Fail(c, apperr.New(apperr.InvalidFormat, "day must be YYYY-MM-DD, got %q", in.Day))
			return
		}
		u, _ := authpkg.Current(c)
		if a.DB == nil {
			c.JSON(http.StatusCreated, Entry{UserID: u.ID, Day: day, Reason: in.Reason})
			return
		}
		ctx, cancel := a.OpCtx(c)
		defer cancel()
		var exists bool
		if err := a.DB.QueryRow(ctx, `select exists(select 1 from calendar_unavailability where user_id=$1 and day=$2)`, u.ID, day).Scan(&exists); err != nil {
			apppkg.Fail(c, apperr.Storage(err, "calendar"))
			return
		}
		if exists {
			apppkg.Fail(c, apperr.New(apperr.InvalidState, "day %s already marked", in.Day))
			return
		}
		var e Entry
		row := a.DB.QueryRow(ctx, `insert into calendar_unavailability (user_id, day, reason)
values ($1, $2, nullif($3, '')) returning id, user_id, day, coalesce(reason,''), created_at`, u.ID, day, in.Reason)
		if err := row.Scan(&e.ID, &e.UserID, &e.Day, &e.Reason, &e.CreatedAt); err != nil {
			apppkg.Fail(c, apperr.Storage(err, "calendar"))
			return
		}
		c.JSON(http.StatusCreated, e)
	}
}
