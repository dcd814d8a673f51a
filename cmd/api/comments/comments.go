package comments

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	app "github.com/opsdesk/opsdesk-go/cmd/api/app"
	authpkg "github.com/opsdesk/opsdesk-go/cmd/api/auth"
	eventspkg "github.com/opsdesk/opsdesk-go/cmd/api/events"
	metricspkg "github.com/opsdesk/opsdesk-go/cmd/api/metrics"
	"github.com/opsdesk/opsdesk-go/internal/apperr"
	"github.com/opsdesk/opsdesk-go/internal/thread"
)

func paramID(c *gin.Context, name string) (int64, bool) { return app.ParamID(c, name) }

// List returns a ticket's thread in chronological order, attachments joined
// onto their owning comments.
func List(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		if a.DB == nil {
			c.JSON(http.StatusOK, []thread.Comment{})
			return
		}
		ctx, cancel := a.OpCtx(c)
		defer cancel()
		out, err := thread.ListComments(ctx, a.DB, id)
		if err != nil {
			app.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

// Add appends a comment with optional file attachments. The request is
// multipart: a `body` field, optional `time_worked`, and any number of
// `files` parts. The comment survives individual attachment failures.
func Add(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		body := c.PostForm("body")
		timeWorked := c.PostForm("time_worked")
		form, err := c.MultipartForm()
		if err != nil && err != http.ErrNotMultipart {
			app.Fail(c, apperr.New(apperr.InvalidFormat, "malformed multipart request"))
			return
		}
		var files []thread.File
		if form != nil {
			for _, fh := range form.File["files"] {
				f, err := fh.Open()
				if err != nil {
					log.Ctx(c.Request.Context()).Error().Err(err).Str("filename", fh.Filename).Msg("open upload")
					continue
				}
				defer f.Close()
				files = append(files, thread.File{Name: fh.Filename, Size: fh.Size, Reader: f})
			}
		}
		if a.DB == nil {
			if body == "" {
				app.Fail(c, apperr.New(apperr.EmptyComment, "comment text is required"))
				return
			}
			c.JSON(http.StatusCreated, thread.Comment{TicketID: id, Body: body})
			return
		}
		u, _ := authpkg.Current(c)
		ctx, cancel := a.OpCtx(c)
		defer cancel()
		cm, err := thread.AddComment(ctx, a.DB, a.Blobs(), a.Clk, id, u.ID, body, timeWorked, files)
		if err != nil {
			app.Fail(c, err)
			return
		}
		metricspkg.CommentsAddedTotal.Inc()
		metricspkg.AttachmentsUploadedTotal.Add(float64(len(cm.Attachments)))
		eventspkg.Emit(ctx, a.DB, id, "comment_added", gin.H{"comment_id": cm.ID})
		c.JSON(http.StatusCreated, cm)
	}
}
