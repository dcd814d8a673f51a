package reports

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apppkg "github.com/opsdesk/opsdesk-go/cmd/api/app"
	"github.com/opsdesk/opsdesk-go/internal/reporting"
)

// Summary returns the collection rollup: status counts, breach count, and
// SLA compliance percentage.
func Summary(a *apppkg.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.DB == nil {
			c.JSON(http.StatusOK, reporting.Summary{})
			return
		}
		ctx, cancel := a.OpCtx(c)
		defer cancel()
		s, err := reporting.Summarize(ctx, a.DB, a.Clk.Now())
		if err != nil {
			apppkg.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, s)
	}
}

// Agents returns per-agent workload and latency statistics.
func Agents(a *apppkg.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.DB == nil {
			c.JSON(http.StatusOK, []reporting.AgentStats{})
			return
		}
		ctx, cancel := a.OpCtx(c)
		defer cancel()
		out, err := reporting.ByAgent(ctx, a.DB)
		if err != nil {
			apppkg.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}
