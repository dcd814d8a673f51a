package slas_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	apppkg "github.com/opsdesk/opsdesk-go/cmd/api/app"
	authpkg "github.com/opsdesk/opsdesk-go/cmd/api/auth"
	slas "github.com/opsdesk/opsdesk-go/cmd/api/slas"
)

func newTestApp() *apppkg.App {
	gin.SetMode(gin.TestMode)
	cfg := apppkg.Config{Env: "test", TestBypassAuth: true, TestBypassRole: "admin"}
	return apppkg.NewApp(cfg, nil, nil, nil, nil)
}

func doJSON(a *apppkg.App, method, url, body string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(method, url, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	a.R.ServeHTTP(rr, req)
	return rr
}

func TestListEmptyWithoutStorage(t *testing.T) {
	a := newTestApp()
	a.R.GET("/slas", authpkg.Middleware(a), slas.List(a))

	rr := httptest.NewRecorder()
	a.R.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/slas", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Fatalf("expected empty catalog, got %s", rr.Body.String())
	}
}

func TestCreateValidation(t *testing.T) {
	a := newTestApp()
	a.R.POST("/slas", authpkg.Middleware(a), slas.Create(a))

	for _, body := range []string{`{}`, `{"response_time_hours":4}`, `{"name":"Gold","response_time_hours":-1}`} {
		rr := doJSON(a, http.MethodPost, "/slas", body)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("body %s: expected 400, got %d", body, rr.Code)
		}
	}
}

func TestCreateAccepted(t *testing.T) {
	a := newTestApp()
	a.R.POST("/slas", authpkg.Middleware(a), slas.Create(a))

	rr := doJSON(a, http.MethodPost, "/slas", `{"name":"Gold","response_time_hours":2,"resolution_time_hours":12}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var got struct {
		Name                string `json:"name"`
		ResponseTimeHours   int    `json:"response_time_hours"`
		ResolutionTimeHours int    `json:"resolution_time_hours"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Name != "Gold" || got.ResponseTimeHours != 2 || got.ResolutionTimeHours != 12 {
		t.Fatalf("unexpected tier: %+v", got)
	}
}

func TestUpdateRejectsBadID(t *testing.T) {
	a := newTestApp()
	a.R.PUT("/slas/:id", authpkg.Middleware(a), slas.Update(a))

	rr := doJSON(a, http.MethodPut, "/slas/zero", `{"name":"Gold","response_time_hours":2,"resolution_time_hours":12}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}
