package kb

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/opsdesk/opsdesk-go/internal/apperr"
)

type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Article is one knowledge-base entry. Problem and solution are unbounded
// text, materialized as plain strings at the storage boundary.
type Article struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Problem   string    `json:"problem"`
	Solution  string    `json:"solution"`
	CreatedAt time.Time `json:"created_at"`
}

// List returns articles newest-first, optionally filtered by a substring
// match on title or problem text.
func List(ctx context.Context, db DB, q string) ([]Article, error) {
	q = strings.TrimSpace(q)
	var rows pgx.Rows
	var err error
	if q == "" {
		rows, err = db.Query(ctx, `select id, title, problem, solution, created_at from kb_articles order by created_at desc`)
	} else {
		rows, err = db.Query(ctx, `select id, title, problem, solution, created_at from kb_articles
where title ilike '%'||$1||'%' or problem ilike '%'||$1||'%' order by created_at desc`, q)
	}
	if err != nil {
		return nil, apperr.Storage(err, "kb articles")
	}
	defer rows.Close()
	out := []Article{}
	for rows.Next() {
		var a Article
		if err := rows.Scan(&a.ID, &a.Title, &a.Problem, &a.Solution, &a.CreatedAt); err != nil {
			return nil, apperr.Storage(err, "kb articles")
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage(err, "kb articles")
	}
	return out, nil
}
