package slas

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apppkg "github.com/opsdesk/opsdesk-go/cmd/api/app"
	slapkg "github.com/opsdesk/opsdesk-go/internal/sla"
)

// List returns the SLA tier catalog.
func List(a *apppkg.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.DB == nil {
			c.JSON(http.StatusOK, []slapkg.Tier{})
			return
		}
		ctx, cancel := a.OpCtx(c)
		defer cancel()
		tiers, err := slapkg.ListTiers(ctx, a.DB)
		if err != nil {
			apppkg.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, tiers)
	}
}

type tierReq struct {
	Name                string `json:"name" binding:"required"`
	ResponseTimeHours   int    `json:"response_time_hours" binding:"min=0"`
	ResolutionTimeHours int    `json:"resolution_time_hours" binding:"min=0"`
}

// Create adds a tier to the catalog. Existing tickets keep the deadlines they
// were created with.
func Create(a *apppkg.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in tierReq
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "name and non-negative hour budgets required"})
			return
		}
		if a.DB == nil {
			c.JSON(http.StatusCreated, slapkg.Tier{Name: in.Name, ResponseTimeHours: in.ResponseTimeHours, ResolutionTimeHours: in.ResolutionTimeHours})
			return
		}
		ctx, cancel := a.OpCtx(c)
		defer cancel()
		t, err := slapkg.CreateTier(ctx, a.DB, in.Name, in.ResponseTimeHours, in.ResolutionTimeHours)
		if err != nil {
			apppkg.Fail(c, err)
			return
		}
		c.JSON(http.StatusCreated, t)
	}
}

// Update rewrites a tier's budgets. Only future tickets are affected.
func Update(a *apppkg.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := apppkg.ParamID(c, "id")
		if !ok {
			return
		}
		var in tierReq
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "name and non-negative hour budgets required"})
			return
		}
		if a.DB == nil {
			c.JSON(http.StatusOK, slapkg.Tier{ID: id, Name: in.Name, ResponseTimeHours: in.ResponseTimeHours, ResolutionTimeHours: in.ResolutionTimeHours})
			return
		}
		ctx, cancel := a.OpCtx(c)
		defer cancel()
		t, err := slapkg.UpdateTier(ctx, a.DB, id, in.Name, in.ResponseTimeHours, in.ResolutionTimeHours)
		if err != nil {
			apppkg.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, t)
	}
}
