package tickets_test

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	authpkg "github.com/opsdesk/opsdesk-go/cmd/api/auth"
	tickets "github.com/opsdesk/opsdesk-go/cmd/api/tickets"
)

func TestSetStatusRequiresBody(t *testing.T) {
	a := newTestApp("agent")
	a.R.PATCH("/tickets/:id/status", authpkg.Middleware(a), tickets.SetStatus(a))

	rr := doJSON(t, a, http.MethodPatch, "/tickets/1/status", `{}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"status":"required"`) {
		t.Fatalf("expected status flagged required, got %s", rr.Body.String())
	}
}

func TestSetStatusEchoesWithoutStorage(t *testing.T) {
	a := newTestApp("agent")
	a.R.PATCH("/tickets/:id/status", authpkg.Middleware(a), tickets.SetStatus(a))

	rr := doJSON(t, a, http.MethodPatch, "/tickets/7/status", `{"status":"Resolved"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var got struct {
		ID     int64  `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.ID != 7 || got.Status != "Resolved" {
		t.Fatalf("unexpected echo: %+v", got)
	}
}

func TestSetPriorityRejectsUnknownName(t *testing.T) {
	a := newTestApp("agent")
	a.R.PATCH("/tickets/:id/priority", authpkg.Middleware(a), tickets.SetPriority(a))

	rr := doJSON(t, a, http.MethodPatch, "/tickets/1/priority", `{"priority":"Blocker"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "invalid_priority") {
		t.Fatalf("expected invalid_priority code, got %s", rr.Body.String())
	}
}

func TestSetTimeWorkedRejectsBadFormat(t *testing.T) {
	a := newTestApp("agent")
	a.R.PATCH("/tickets/:id/timeworked", authpkg.Middleware(a), tickets.SetTimeWorked(a))

	for _, tw := range []string{"90 minutes", "1:2:3x", "aa:bb:cc"} {
		rr := doJSON(t, a, http.MethodPatch, "/tickets/1/timeworked", `{"time_worked":"`+tw+`"}`)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%q: expected 400, got %d", tw, rr.Code)
		}
		if !strings.Contains(rr.Body.String(), "invalid_format") {
			t.Errorf("%q: expected invalid_format code, got %s", tw, rr.Body.String())
		}
	}
}

func TestSetTimeWorkedAcceptsDuration(t *testing.T) {
	a := newTestApp("agent")
	a.R.PATCH("/tickets/:id/timeworked", authpkg.Middleware(a), tickets.SetTimeWorked(a))

	rr := doJSON(t, a, http.MethodPatch, "/tickets/3/timeworked", `{"time_worked":"01:30:00"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "01:30:00") {
		t.Fatalf("expected duration echoed, got %s", rr.Body.String())
	}
}

func TestSetDueDateRequiresTimestamp(t *testing.T) {
	a := newTestApp("admin")
	a.R.PATCH("/tickets/:id/duedate", authpkg.Middleware(a), tickets.SetDueDate(a))

	rr := doJSON(t, a, http.MethodPatch, "/tickets/1/duedate", `{}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}

	rr = doJSON(t, a, http.MethodPatch, "/tickets/1/duedate", `{"due_date":"2026-09-01T12:00:00Z"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
}
