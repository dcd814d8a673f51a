package kb

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apppkg "github.com/opsdesk/opsdesk-go/cmd/api/app"
	kbsvc "github.com/opsdesk/opsdesk-go/internal/kb"
)

// List returns knowledge-base articles, optionally filtered by the query
// parameter `q`.
func List(a *apppkg.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.DB == nil {
			c.JSON(http.StatusOK, []kbsvc.Article{})
			return
		}
		ctx, cancel := a.OpCtx(c)
		defer cancel()
		arts, err := kbsvc.List(ctx, a.DB, c.Query("q"))
		if err != nil {
			apppkg.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, arts)
	}
}
