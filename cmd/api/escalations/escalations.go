package escalations

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apppkg "github.com/opsdesk/opsdesk-go/cmd/api/app"
	eventspkg "github.com/opsdesk/opsdesk-go/cmd/api/events"
	metricspkg "github.com/opsdesk/opsdesk-go/cmd/api/metrics"
	escpkg "github.com/opsdesk/opsdesk-go/internal/escalation"
)

// Escalate checks one ticket against its response deadline and escalates it
// if breaching. Repeat calls on an already-escalated ticket are quiet no-ops,
// as are calls on tickets still inside their window.
func Escalate(a *apppkg.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := apppkg.ParamID(c, "id")
		if !ok {
			return
		}
		if a.DB == nil {
			c.JSON(http.StatusOK, gin.H{"escalated": false})
			return
		}
		ctx, cancel := a.OpCtx(c)
		defer cancel()
		done, err := escpkg.Escalate(ctx, a.DB, a.Clk, a.Pol, id)
		if err != nil {
			apppkg.Fail(c, err)
			return
		}
		if done {
			metricspkg.TicketsEscalatedTotal.Inc()
			eventspkg.Emit(ctx, a.DB, id, "ticket_escalated", gin.H{"id": id})
		}
		c.JSON(http.StatusOK, gin.H{"escalated": done})
	}
}

// Run sweeps every non-terminal ticket past its response deadline. Individual
// failures are logged inside the scan and do not stop it.
func Run(a *apppkg.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.DB == nil {
			c.JSON(http.StatusOK, gin.H{"escalated": []int64{}})
			return
		}
		ctx, cancel := a.OpCtx(c)
		defer cancel()
		ids, err := escpkg.Scan(ctx, a.DB, a.Clk, a.Pol)
		if err != nil {
			apppkg.Fail(c, err)
			return
		}
		for _, id := range ids {
			metricspkg.TicketsEscalatedTotal.Inc()
			eventspkg.Emit(ctx, a.DB, id, "ticket_escalated", gin.H{"id": id})
		}
		c.JSON(http.StatusOK, gin.H{"escalated": ids})
	}
}
