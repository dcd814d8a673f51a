package main

import (
	"context"
	"encoding/json"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/opsdesk/opsdesk-go/internal/clock"
	"github.com/opsdesk/opsdesk-go/internal/escalation"
)

func TestSanitizeAndValidateEmail(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"user@example.com", "user@example.com", true},
		{"  user@example.com\n", "user@example.com", true},
		{"", "", false},
		{"not-an-email", "", false},
		{"user@example.com\r\nBcc: evil@example.com", "", false},
	}
	for _, tc := range cases {
		got, err := sanitizeAndValidateEmail(tc.in)
		if tc.ok && (err != nil || got != tc.want) {
			t.Errorf("%q: expected %q, got %q err=%v", tc.in, tc.want, got, err)
		}
		if !tc.ok && err == nil {
			t.Errorf("%q: expected rejection", tc.in)
		}
	}
}

func TestSendEmailSanitizesSubject(t *testing.T) {
	c := Config{SMTPHost: "mail", SMTPPort: "25", SMTPFrom: "ops@example.com"}
	var gotMsg []byte
	var gotTo []string
	send := func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotMsg = msg
		gotTo = to
		return nil
	}
	j := EmailJob{To: "user@example.com", Template: "ticket_escalated", Data: map[string]any{
		"ID":    7,
		"Title": "printer\r\nX-Evil: 1 down",
	}}
	if err := sendEmail(c, send, j); err != nil {
		t.Fatalf("sendEmail: %v", err)
	}
	if len(gotTo) != 1 || gotTo[0] != "user@example.com" {
		t.Fatalf("unexpected recipients: %v", gotTo)
	}
	if strings.Contains(string(gotMsg), "\nX-Evil") {
		t.Fatal("expected injected header to be neutralized")
	}
	if !strings.Contains(string(gotMsg), "Subject: Ticket #7 escalated") {
		t.Fatalf("expected rendered subject, got %q", gotMsg)
	}
}

func TestSendEmailRejectsBadRecipient(t *testing.T) {
	c := Config{SMTPHost: "mail", SMTPPort: "25", SMTPFrom: "ops@example.com"}
	called := false
	send := func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		called = true
		return nil
	}
	j := EmailJob{To: "nope", Template: "ticket_escalated", Data: map[string]any{"ID": 1, "Title": "x"}}
	if err := sendEmail(c, send, j); err == nil {
		t.Fatal("expected error for invalid recipient")
	}
	if called {
		t.Fatal("sender must not be invoked for invalid recipient")
	}
}

func TestHandleJobDispatchesEmail(t *testing.T) {
	c := Config{SMTPHost: "mail", SMTPPort: "25", SMTPFrom: "ops@example.com"}
	calls := 0
	send := func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		calls++
		return nil
	}
	data, _ := json.Marshal(EmailJob{To: "user@example.com", Template: "ticket_created", Data: map[string]any{"ID": 3, "Title": "vpn"}})
	job := Job{Type: "send_email", Data: data}
	handleJob(context.Background(), nil, clock.System{}, escalation.FromConfig("unassign", 0), c, nil, send, job)
	if calls != 1 {
		t.Fatalf("expected one send, got %d", calls)
	}
}

func TestHandleJobIgnoresUnknownType(t *testing.T) {
	calls := 0
	send := func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		calls++
		return nil
	}
	handleJob(context.Background(), nil, clock.System{}, escalation.FromConfig("unassign", 0), Config{}, nil, send, Job{Type: "reticulate"})
	if calls != 0 {
		t.Fatalf("expected no sends, got %d", calls)
	}
}

func TestRecordScan(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	recordScan(context.Background(), rdb, clock.System{}, 3)

	val, err := rdb.Get(context.Background(), "escalation:last_scan").Result()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var got struct {
		At        time.Time `json:"at"`
		Escalated int       `json:"escalated"`
	}
	if err := json.Unmarshal([]byte(val), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Escalated != 3 || got.At.IsZero() {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func TestTemplatesRender(t *testing.T) {
	for _, name := range []string{"ticket_created", "ticket_escalated"} {
		var sb strings.Builder
		if err := mailTemplates.ExecuteTemplate(&sb, name+"_subject", map[string]any{"ID": 1, "Title": "x"}); err != nil {
			t.Errorf("%s subject: %v", name, err)
		}
		sb.Reset()
		if err := mailTemplates.ExecuteTemplate(&sb, name+"_body", map[string]any{"ID": 1, "Title": "x"}); err != nil {
			t.Errorf("%s body: %v", name, err)
		}
	}
}
