package attachments

import (
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	app "github.com/opsdesk/opsdesk-go/cmd/api/app"
	"github.com/opsdesk/opsdesk-go/internal/apperr"
	"github.com/opsdesk/opsdesk-go/internal/thread"
	ticketpkg "github.com/opsdesk/opsdesk-go/internal/ticket"
)

// ListByTicket returns every attachment across a ticket's thread.
func ListByTicket(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := app.ParamID(c, "id")
		if !ok {
			return
		}
		if a.DB == nil {
			c.JSON(http.StatusOK, []thread.Attachment{})
			return
		}
		ctx, cancel := a.OpCtx(c)
		defer cancel()
		if ok, err := ticketpkg.Exists(ctx, a.DB, id); err != nil {
			app.Fail(c, err)
			return
		} else if !ok {
			app.Fail(c, apperr.New(apperr.NotFound, "ticket %d not found", id))
			return
		}
		out, err := thread.ListTicketAttachments(ctx, a.DB, id)
		if err != nil {
			app.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

// ListByComment returns one comment's attachment batch.
func ListByComment(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := app.ParamID(c, "id")
		if !ok {
			return
		}
		if a.DB == nil {
			c.JSON(http.StatusOK, []thread.Attachment{})
			return
		}
		ctx, cancel := a.OpCtx(c)
		defer cancel()
		out, err := thread.ListCommentAttachments(ctx, a.DB, id)
		if err != nil {
			app.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

// Download streams an attachment body. Only the filesystem store serves
// bytes directly; MinIO deployments front objects with their own endpoint.
func Download(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := app.ParamID(c, "id")
		if !ok {
			return
		}
		if a.DB == nil {
			c.Status(http.StatusOK)
			return
		}
		ctx, cancel := a.OpCtx(c)
		defer cancel()
		const q = `select object_key, filename from ticket_attachments where id=$1`
		var key, fn string
		if err := a.DB.QueryRow(ctx, q, id).Scan(&key, &fn); err != nil {
			app.Fail(c, apperr.New(apperr.NotFound, "attachment %d not found", id))
			return
		}
		fs, ok := a.M.(*app.FsObjectStore)
		if !ok {
			c.JSON(http.StatusNotImplemented, gin.H{"error": "download not implemented"})
			return
		}
		rc, err := fs.ReadObject(a.Cfg.MinIOBucket, key)
		if err != nil {
			app.Fail(c, apperr.New(apperr.NotFound, "attachment %d not found", id))
			return
		}
		defer rc.Close()
		ct := mime.TypeByExtension(filepath.Ext(fn))
		if ct == "" {
			ct = "application/octet-stream"
		}
		c.Writer.Header().Set("Content-Type", ct)
		c.Writer.Header().Set("Content-Disposition", "attachment; filename=\""+strings.ReplaceAll(fn, "\"", "")+"\"")
		c.Status(http.StatusOK)
		_, _ = io.Copy(c.Writer, rc)
	}
}
