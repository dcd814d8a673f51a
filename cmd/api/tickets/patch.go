package tickets

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	app "github.com/opsdesk/opsdesk-go/cmd/api/app"
	authpkg "github.com/opsdesk/opsdesk-go/cmd/api/auth"
	eventspkg "github.com/opsdesk/opsdesk-go/cmd/api/events"
	metricspkg "github.com/opsdesk/opsdesk-go/cmd/api/metrics"
	"github.com/opsdesk/opsdesk-go/internal/apperr"
	ticketpkg "github.com/opsdesk/opsdesk-go/internal/ticket"
)

// SetStatus moves a ticket between lifecycle states. Open is not a valid
// target; moving into InProgress binds the acting agent as assignee when the
// ticket has none.
func SetStatus(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		var in struct {
			Status string `json:"status" binding:"required"`
		}
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": bindErrors(err)})
			return
		}
		if a.DB == nil {
			c.JSON(http.StatusOK, ticketpkg.Ticket{ID: id, Status: ticketpkg.Status(in.Status)})
			return
		}
		u, _ := authpkg.Current(c)
		ctx, cancel := a.OpCtx(c)
		defer cancel()
		t, err := ticketpkg.SetStatus(ctx, a.DB, id, ticketpkg.Status(in.Status), u.ID)
		if err != nil {
			app.Fail(c, err)
			return
		}
		metricspkg.TicketsUpdatedTotal.Inc()
		eventspkg.Emit(ctx, a.DB, t.ID, "status_changed", gin.H{"status": t.Status})
		c.JSON(http.StatusOK, t)
	}
}

// SetPriority overwrites the ticket priority by name.
func SetPriority(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		var in struct {
			Priority string `json:"priority" binding:"required"`
		}
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": bindErrors(err)})
			return
		}
		pr, err := ticketpkg.ParsePriority(in.Priority)
		if err != nil {
			app.Fail(c, err)
			return
		}
		if a.DB == nil {
			c.JSON(http.StatusOK, ticketpkg.Ticket{ID: id, Priority: pr})
			return
		}
		ctx, cancel := a.OpCtx(c)
		defer cancel()
		t, err := ticketpkg.SetPriority(ctx, a.DB, id, pr)
		if err != nil {
			app.Fail(c, err)
			return
		}
		metricspkg.TicketsUpdatedTotal.Inc()
		c.JSON(http.StatusOK, t)
	}
}

// SetAssignee is the admin overwrite of the assigned agent.
func SetAssignee(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		var in struct {
			AssignedTo int64 `json:"assigned_to" binding:"required"`
		}
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": bindErrors(err)})
			return
		}
		if a.DB == nil {
			c.JSON(http.StatusOK, ticketpkg.Ticket{ID: id, AssignedTo: &in.AssignedTo})
			return
		}
		ctx, cancel := a.OpCtx(c)
		defer cancel()
		t, err := ticketpkg.SetAssignee(ctx, a.DB, id, in.AssignedTo)
		if err != nil {
			app.Fail(c, err)
			return
		}
		metricspkg.TicketsUpdatedTotal.Inc()
		eventspkg.Emit(ctx, a.DB, t.ID, "assignee_changed", gin.H{"assigned_to": in.AssignedTo})
		c.JSON(http.StatusOK, t)
	}
}

// SetDueDate overwrites the admin soft deadline. SLA deadlines are untouched.
func SetDueDate(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		var in struct {
			DueDate time.Time `json:"due_date" binding:"required"`
		}
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": bindErrors(err)})
			return
		}
		if a.DB == nil {
			c.JSON(http.StatusOK, ticketpkg.Ticket{ID: id, DueDate: &in.DueDate})
			return
		}
		ctx, cancel := a.OpCtx(c)
		defer cancel()
		t, err := ticketpkg.SetDueDate(ctx, a.DB, id, in.DueDate)
		if err != nil {
			app.Fail(c, err)
			return
		}
		metricspkg.TicketsUpdatedTotal.Inc()
		c.JSON(http.StatusOK, t)
	}
}

// SetTimeWorked overwrites the accumulated HH:MM:SS work duration.
func SetTimeWorked(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		var in struct {
			TimeWorked string `json:"time_worked" binding:"required"`
		}
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": bindErrors(err)})
			return
		}
		if !ticketpkg.ValidTimeWorked(in.TimeWorked) {
			app.Fail(c, apperr.New(apperr.InvalidFormat, "time worked must be HH:MM:SS, got %q", in.TimeWorked))
			return
		}
		if a.DB == nil {
			c.JSON(http.StatusOK, ticketpkg.Ticket{ID: id, TimeWorked: in.TimeWorked})
			return
		}
		ctx, cancel := a.OpCtx(c)
		defer cancel()
		t, err := ticketpkg.SetTimeWorked(ctx, a.DB, id, in.TimeWorked)
		if err != nil {
			app.Fail(c, err)
			return
		}
		metricspkg.TicketsUpdatedTotal.Inc()
		c.JSON(http.StatusOK, t)
	}
}
