package comments_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	apppkg "github.com/opsdesk/opsdesk-go/cmd/api/app"
	authpkg "github.com/opsdesk/opsdesk-go/cmd/api/auth"
	comments "github.com/opsdesk/opsdesk-go/cmd/api/comments"
)

func newTestApp(role string) *apppkg.App {
	gin.SetMode(gin.TestMode)
	cfg := apppkg.Config{Env: "test", TestBypassAuth: true, TestBypassRole: role}
	return apppkg.NewApp(cfg, nil, nil, nil, nil)
}

func TestListEmptyWithoutStorage(t *testing.T) {
	a := newTestApp("requester")
	a.R.GET("/tickets/:id/comments", authpkg.Middleware(a), comments.List(a))

	rr := httptest.NewRecorder()
	a.R.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/tickets/5/comments", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Fatalf("expected empty thread, got %s", rr.Body.String())
	}
}

func TestAddRejectsEmptyBody(t *testing.T) {
	a := newTestApp("requester")
	a.R.POST("/tickets/:id/comments", authpkg.Middleware(a), comments.Add(a))

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/tickets/5/comments", strings.NewReader("time_worked=00%3A10%3A00"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	a.R.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "empty_comment") {
		t.Fatalf("expected empty_comment code, got %s", rr.Body.String())
	}
}

func TestAddMultipart(t *testing.T) {
	a := newTestApp("agent")
	a.R.POST("/tickets/:id/comments", authpkg.Middleware(a), comments.Add(a))

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("body", "rebooted the print server"); err != nil {
		t.Fatalf("write field: %v", err)
	}
	fw, err := w.CreateFormFile("files", "before.log")
	if err != nil {
		t.Fatalf("create file part: %v", err)
	}
	if _, err := fw.Write([]byte("log contents")); err != nil {
		t.Fatalf("write file part: %v", err)
	}
	w.Close()

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/tickets/5/comments", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	a.R.ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var got struct {
		TicketID int64  `json:"ticket_id"`
		Body     string `json:"body"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.TicketID != 5 || got.Body != "rebooted the print server" {
		t.Fatalf("unexpected comment: %+v", got)
	}
}

func TestAddRejectsBadTicketID(t *testing.T) {
	a := newTestApp("agent")
	a.R.POST("/tickets/:id/comments", authpkg.Middleware(a), comments.Add(a))

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/tickets/zero/comments", strings.NewReader("body=x"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	a.R.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}
