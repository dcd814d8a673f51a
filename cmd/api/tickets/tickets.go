package tickets

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	app "github.com/opsdesk/opsdesk-go/cmd/api/app"
	authpkg "github.com/opsdesk/opsdesk-go/cmd/api/auth"
	eventspkg "github.com/opsdesk/opsdesk-go/cmd/api/events"
	metricspkg "github.com/opsdesk/opsdesk-go/cmd/api/metrics"
	"github.com/opsdesk/opsdesk-go/internal/apperr"
	ticketpkg "github.com/opsdesk/opsdesk-go/internal/ticket"
)

// createTicketReq mirrors the JSON body for creating a ticket.
type createTicketReq struct {
	Title         string `json:"title" binding:"required,min=3"`
	Description   string `json:"description"`
	CategoryID    int64  `json:"category_id" binding:"required"`
	SubcategoryID *int64 `json:"subcategory_id"`
	Priority      string `json:"priority" binding:"required"`
	SLATierID     int64  `json:"sla_tier_id" binding:"required"`
}

func bindErrors(err error) map[string]string {
	errs := map[string]string{}
	if ve, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range ve {
			errs[strings.ToLower(fe.Field())] = fe.Tag()
		}
	}
	return errs
}

// Create inserts a new ticket with both SLA deadlines stamped at creation.
func Create(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in createTicketReq
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": bindErrors(err)})
			return
		}
		pr, err := ticketpkg.ParsePriority(in.Priority)
		if err != nil {
			app.Fail(c, err)
			return
		}
		u, _ := authpkg.Current(c)
		// Test mode: no DB attached
		if a.DB == nil {
			c.JSON(http.StatusCreated, ticketpkg.Ticket{
				Title:    in.Title,
				Priority: pr,
				Status:   ticketpkg.StatusOpen,
			})
			return
		}
		ctx, cancel := a.OpCtx(c)
		defer cancel()
		t, err := ticketpkg.Create(ctx, a.DB, a.Clk, ticketpkg.CreateParams{
			Title:         in.Title,
			Description:   in.Description,
			CategoryID:    in.CategoryID,
			SubcategoryID: in.SubcategoryID,
			Priority:      pr,
			SLATierID:     in.SLATierID,
			CreatedBy:     u.ID,
		})
		if err != nil {
			app.Fail(c, err)
			return
		}
		metricspkg.TicketsCreatedTotal.Inc()
		eventspkg.Emit(ctx, a.DB, t.ID, "ticket_created", gin.H{"id": t.ID, "priority": t.Priority.String()})
		a.EnqueueEmail(ctx, u.Email, "ticket_created", gin.H{"ID": t.ID, "Title": t.Title})
		c.JSON(http.StatusCreated, t)
	}
}

func paramID(c *gin.Context, name string) (int64, bool) { return app.ParamID(c, name) }

// queryID parses an optional integer query parameter, 0 when absent or bad.
func queryID(c *gin.Context, name string) int64 {
	v, err := strconv.ParseInt(c.Query(name), 10, 64)
	if err != nil || v <= 0 {
		return 0
	}
	return v
}

func canView(u authpkg.AuthUser, t ticketpkg.Ticket) bool {
	switch u.Role {
	case "admin", "agent":
		return true
	}
	return t.CreatedBy == u.ID
}

// Get returns a ticket by id. Requesters only see their own tickets.
func Get(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		if a.DB == nil {
			c.JSON(http.StatusOK, ticketpkg.Ticket{ID: id})
			return
		}
		ctx, cancel := a.OpCtx(c)
		defer cancel()
		t, err := ticketpkg.Get(ctx, a.DB, id)
		if err != nil {
			app.Fail(c, err)
			return
		}
		u, _ := authpkg.Current(c)
		if !canView(u, t) {
			app.Fail(c, apperr.New(apperr.Forbidden, "not your ticket"))
			return
		}
		c.JSON(http.StatusOK, t)
	}
}

// List returns the caller's view of the queue: requesters get the tickets
// they filed, agents get their working pool (assigned to them, or any
// unassigned open ticket). Agents and admins may scope to another user with
// the creator= or agent= query parameters.
func List(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.DB == nil {
			c.JSON(http.StatusOK, []ticketpkg.Ticket{})
			return
		}
		u, _ := authpkg.Current(c)
		ctx, cancel := a.OpCtx(c)
		defer cancel()
		var (
			out []ticketpkg.Ticket
			err error
		)
		switch u.Role {
		case "agent", "admin":
			creator := queryID(c, "creator")
			agent := queryID(c, "agent")
			switch {
			case creator > 0:
				out, err = ticketpkg.ListByCreator(ctx, a.DB, creator)
			case agent > 0:
				out, err = ticketpkg.ListAgentPool(ctx, a.DB, agent)
			default:
				out, err = ticketpkg.ListAgentPool(ctx, a.DB, u.ID)
			}
		default:
			out, err = ticketpkg.ListByCreator(ctx, a.DB, u.ID)
		}
		if err != nil {
			app.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

// ListMine always returns tickets filed by the caller, regardless of role.
func ListMine(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.DB == nil {
			c.JSON(http.StatusOK, []ticketpkg.Ticket{})
			return
		}
		u, _ := authpkg.Current(c)
		ctx, cancel := a.OpCtx(c)
		defer cancel()
		out, err := ticketpkg.ListByCreator(ctx, a.DB, u.ID)
		if err != nil {
			app.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

// ListAll is the admin rollup across every ticket.
func ListAll(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.DB == nil {
			c.JSON(http.StatusOK, []ticketpkg.Ticket{})
			return
		}
		ctx, cancel := a.OpCtx(c)
		defer cancel()
		out, err := ticketpkg.ListAll(ctx, a.DB)
		if err != nil {
			app.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}
