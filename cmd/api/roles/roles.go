package roles

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apppkg "github.com/opsdesk/opsdesk-go/cmd/api/app"
)

// List returns all role names defined in the roles table.
func List(a *apppkg.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.DB == nil {
			c.JSON(http.StatusOK, []string{})
			return
		}
		ctx, cancel := a.OpCtx(c)
		defer cancel()
		rows, err := a.DB.Query(ctx, `select name from roles order by name`)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		defer rows.Close()
		var out []string
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			out = append(out, name)
		}
		c.JSON(http.StatusOK, out)
	}
}
