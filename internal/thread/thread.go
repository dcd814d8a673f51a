package thread

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog/log"

	"github.com/opsdesk/opsdesk-go/internal/apperr"
	"github.com/opsdesk/opsdesk-go/internal/clock"
	ticketpkg "github.com/opsdesk/opsdesk-go/internal/ticket"
)

type DB = ticketpkg.DB

// BlobStore persists attachment bytes and returns the storage key the ledger
// records. The ledger never touches the bytes again.
type BlobStore interface {
	Put(ctx context.Context, ticketID, commentID int64, filename string, r io.Reader, size int64) (objectKey string, err error)
}

// Comment is one entry of a ticket's append-only thread. A nil CommenterID
// marks a system-generated audit entry. Comments are immutable once written.
type Comment struct {
	ID          int64        `json:"id"`
	TicketID    int64        `json:"ticket_id"`
	CommenterID *int64       `json:"commenter_id,omitempty"`
	Body        string       `json:"body"`
	CreatedAt   time.Time    `json:"created_at"`
	Attachments []Attachment `json:"attachments"`
}

// Attachment is file metadata hanging off exactly one comment. TicketID is
// denormalized for direct per-ticket lookup.
type Attachment struct {
	ID         int64     `json:"id"`
	CommentID  int64     `json:"comment_id"`
	TicketID   int64     `json:"ticket_id"`
	Filename   string    `json:"filename"`
	ObjectKey  string    `json:"object_key"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// File is one uploaded attachment to be stored alongside a comment.
type File struct {
	Name   string
	Size   int64
	Reader io.Reader
}

var bodyPolicy = bluemonday.UGCPolicy()

// AddComment appends a comment and its attachment batch. Validation happens
// before any write: a blank body is EmptyComment and a missing ticket is
// NotFound, both leaving zero rows behind. The comment row is created first
// so attachments have a parent; each attachment is then stored and recorded
// individually — one failing file is logged and skipped without invalidating
// the comment or the files already recorded. A well-formed timeWorked value
// is written back onto the ticket.
func AddComment(ctx context.Context, db DB, store BlobStore, clk clock.Clock, ticketID, commenterID int64, body, timeWorked string, files []File) (Comment, error) {
	if strings.TrimSpace(body) == "" {
		return Comment{}, apperr.New(apperr.EmptyComment, "comment text is blank")
	}
	ok, err := ticketpkg.Exists(ctx, db, ticketID)
	if err != nil {
		return Comment{}, err
	}
	if !ok {
		return Comment{}, apperr.New(apperr.NotFound, "ticket %d not found", ticketID)
	}
	body = bodyPolicy.Sanitize(body)

	var cm Comment
	cm.TicketID = ticketID
	cm.CommenterID = &commenterID
	cm.Body = body
	cm.CreatedAt = clk.Now()
	err = db.QueryRow(ctx, `insert into ticket_comments (ticket_id, commenter_id, body, created_at) values ($1, $2, $3, $4) returning id`,
		ticketID, commenterID, body, cm.CreatedAt).Scan(&cm.ID)
	if err != nil {
		return Comment{}, apperr.Storage(err, "comment")
	}

	cm.Attachments = []Attachment{}
	for _, f := range files {
		key, err := store.Put(ctx, ticketID, cm.ID, f.Name, f.Reader, f.Size)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Str("file", f.Name).Int64("comment", cm.ID).Msg("attachment store failed")
			continue
		}
		var at Attachment
		at.CommentID = cm.ID
		at.TicketID = ticketID
		at.Filename = f.Name
		at.ObjectKey = key
		err = db.QueryRow(ctx, `insert into ticket_attachments (comment_id, ticket_id, filename, object_key) values ($1, $2, $3, $4) returning id, uploaded_at`,
			cm.ID, ticketID, f.Name, key).Scan(&at.ID, &at.UploadedAt)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Str("file", f.Name).Int64("comment", cm.ID).Msg("attachment record failed")
			continue
		}
		cm.Attachments = append(cm.Attachments, at)
	}

	if timeWorked != "" {
		if _, err := ticketpkg.SetTimeWorked(ctx, db, ticketID, timeWorked); err != nil {
			log.Ctx(ctx).Error().Err(err).Int64("ticket", ticketID).Msg("time worked update failed")
		}
	}
	return cm, nil
}

// ListComments returns the thread oldest-first, each comment carrying its
// attachment metadata.
func ListComments(ctx context.Context, db DB, ticketID int64) ([]Comment, error) {
	ok, err := ticketpkg.Exists(ctx, db, ticketID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.New(apperr.NotFound, "ticket %d not found", ticketID)
	}
	rows, err := db.Query(ctx, `select id, ticket_id, commenter_id, body, created_at from ticket_comments where ticket_id=$1 order by created_at asc, id asc`, ticketID)
	if err != nil {
		return nil, apperr.Storage(err, "comments")
	}
	defer rows.Close()
	out := []Comment{}
	byID := map[int64]int{}
	for rows.Next() {
		var cm Comment
		if err := rows.Scan(&cm.ID, &cm.TicketID, &cm.CommenterID, &cm.Body, &cm.CreatedAt); err != nil {
			return nil, apperr.Storage(err, "comments")
		}
		cm.Attachments = []Attachment{}
		byID[cm.ID] = len(out)
		out = append(out, cm)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage(err, "comments")
	}

	atts, err := ListTicketAttachments(ctx, db, ticketID)
	if err != nil {
		return nil, err
	}
	for _, at := range atts {
		if i, ok := byID[at.CommentID]; ok {
			out[i].Attachments = append(out[i].Attachments, at)
		}
	}
	return out, nil
}

func collectAttachments(ctx context.Context, db DB, q string, arg int64) ([]Attachment, error) {
	rows, err := db.Query(ctx, q, arg)
	if err != nil {
		return nil, apperr.Storage(err, "attachments")
	}
	defer rows.Close()
	out := []Attachment{}
	for rows.Next() {
		var at Attachment
		if err := rows.Scan(&at.ID, &at.CommentID, &at.TicketID, &at.Filename, &at.ObjectKey, &at.UploadedAt); err != nil {
			return nil, apperr.Storage(err, "attachments")
		}
		out = append(out, at)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage(err, "attachments")
	}
	return out, nil
}

// ListTicketAttachments projects every attachment on a ticket.
func ListTicketAttachments(ctx context.Context, db DB, ticketID int64) ([]Attachment, error) {
	return collectAttachments(ctx, db,
		`select id, comment_id, ticket_id, filename, object_key, uploaded_at from ticket_attachments where ticket_id=$1 order by id asc`, ticketID)
}

// ListCommentAttachments projects the attachments of one comment.
func ListCommentAttachments(ctx context.Context, db DB, commentID int64) ([]Attachment, error) {
	return collectAttachments(ctx, db,
		`select id, comment_id, ticket_id, filename, object_key, uploaded_at from ticket_attachments where comment_id=$1 order by id asc`, commentID)
}
