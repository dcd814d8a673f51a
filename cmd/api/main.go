package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	apppkg "github.com/opsdesk/opsdesk-go/cmd/api/app"
	attachmentspkg "github.com/opsdesk/opsdesk-go/cmd/api/attachments"
	authpkg "github.com/opsdesk/opsdesk-go/cmd/api/auth"
	calendarpkg "github.com/opsdesk/opsdesk-go/cmd/api/calendar"
	commentspkg "github.com/opsdesk/opsdesk-go/cmd/api/comments"
	escalationspkg "github.com/opsdesk/opsdesk-go/cmd/api/escalations"
	eventspkg "github.com/opsdesk/opsdesk-go/cmd/api/events"
	kbpkg "github.com/opsdesk/opsdesk-go/cmd/api/kb"
	metricspkg "github.com/opsdesk/opsdesk-go/cmd/api/metrics"
	"github.com/opsdesk/opsdesk-go/cmd/api/migrations"
	reportspkg "github.com/opsdesk/opsdesk-go/cmd/api/reports"
	rolespkg "github.com/opsdesk/opsdesk-go/cmd/api/roles"
	slaspkg "github.com/opsdesk/opsdesk-go/cmd/api/slas"
	ticketspkg "github.com/opsdesk/opsdesk-go/cmd/api/tickets"
	userspkg "github.com/opsdesk/opsdesk-go/cmd/api/users"
	"github.com/opsdesk/opsdesk-go/internal/ratelimit"
)

func main() {
	_ = godotenv.Load()
	cfg := apppkg.GetConfig()
	if cfg.Env == "dev" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	defer pool.Close()

	if err := migrations.Up(ctx, cfg.DatabaseURL); err != nil {
		log.Fatal().Err(err).Msg("migrate up")
	}

	keyf := jwksKeyfunc(ctx, cfg)

	var store apppkg.ObjectStore
	if cfg.MinIOEndpoint != "" {
		mc, err := minio.New(cfg.MinIOEndpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.MinIOAccess, cfg.MinIOSecret, ""),
			Secure: cfg.MinIOUseSSL,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("minio init")
		}
		store = mc
	} else if cfg.FileStorePath != "" {
		if err := os.MkdirAll(cfg.FileStorePath, 0o755); err != nil {
			log.Fatal().Err(err).Str("path", cfg.FileStorePath).Msg("create filestore path")
		}
		store = &apppkg.FsObjectStore{Base: cfg.FileStorePath}
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Error().Err(err).Msg("redis ping")
		}
		defer rdb.Close()
	}

	if cfg.AuthMode == "local" && cfg.Env == "dev" {
		if err := seedLocalAdmin(ctx, pool); err != nil {
			log.Error().Err(err).Msg("seed local admin")
		}
	}

	a := apppkg.NewApp(cfg, pool, keyf, store, rdb)
	registerRoutes(a)

	srv := &http.Server{
		Addr:           cfg.Addr,
		Handler:        a.R,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
	log.Info().Str("addr", cfg.Addr).Msg("api listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("listen")
	}
}

func registerRoutes(a *apppkg.App) {
	a.R.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })
	a.R.GET("/metrics", metricspkg.Handler())

	if a.Cfg.AuthMode == "local" {
		login := a.R.Group("/")
		if a.Q != nil {
			// Brute-force guard on credential checks, keyed per client IP.
			lim := ratelimit.New(a.Q, 10, time.Minute, "login")
			lim.OnReject = func(string) {
				metricspkg.RateLimitRejectionsTotal.WithLabelValues("/login").Inc()
			}
			login.Use(lim.Middleware(func(c *gin.Context) string { return c.ClientIP() }))
		}
		login.POST("/login", authpkg.Login(a))
		a.R.POST("/logout", authpkg.Logout())
	}

	auth := a.R.Group("/")
	auth.Use(authpkg.Middleware(a))
	auth.GET("/me", authpkg.Me)
	auth.GET("/events", eventspkg.Stream(a))

	// Tickets
	auth.POST("/tickets", ticketspkg.Create(a))
	auth.GET("/tickets", ticketspkg.List(a))
	auth.GET("/tickets/mine", ticketspkg.ListMine(a))
	auth.GET("/tickets/:id", ticketspkg.Get(a))
	auth.PATCH("/tickets/:id/status", authpkg.RequireRole("agent"), ticketspkg.SetStatus(a))
	auth.PATCH("/tickets/:id/priority", authpkg.RequireRole("agent"), ticketspkg.SetPriority(a))
	auth.PATCH("/tickets/:id/assignee", authpkg.RequireRole("admin"), ticketspkg.SetAssignee(a))
	auth.PATCH("/tickets/:id/duedate", authpkg.RequireRole("admin"), ticketspkg.SetDueDate(a))
	auth.PATCH("/tickets/:id/timeworked", authpkg.RequireRole("agent"), ticketspkg.SetTimeWorked(a))

	// Thread
	auth.GET("/tickets/:id/comments", commentspkg.List(a))
	auth.POST("/tickets/:id/comments", commentspkg.Add(a))
	auth.GET("/tickets/:id/attachments", attachmentspkg.ListByTicket(a))
	auth.GET("/comments/:id/attachments", attachmentspkg.ListByComment(a))
	auth.GET("/attachments/:id", attachmentspkg.Download(a))

	// Escalation
	auth.POST("/tickets/:id/escalate", authpkg.RequireRole("agent"), escalationspkg.Escalate(a))
	auth.POST("/escalations/run", authpkg.RequireRole("admin"), escalationspkg.Run(a))

	// SLA catalog
	auth.GET("/slas", slaspkg.List(a))
	auth.POST("/slas", authpkg.RequireRole("admin"), slaspkg.Create(a))
	auth.PUT("/slas/:id", authpkg.RequireRole("admin"), slaspkg.Update(a))

	// Reporting
	auth.GET("/reports/summary", authpkg.RequireRole("agent"), reportspkg.Summary(a))
	auth.GET("/reports/agents", authpkg.RequireRole("agent"), reportspkg.Agents(a))
	auth.GET("/admin/tickets", authpkg.RequireRole("admin"), ticketspkg.ListAll(a))

	// Directory
	auth.GET("/agents", authpkg.RequireRole("agent"), userspkg.ListAgents(a))
	auth.GET("/users/:id", authpkg.RequireRole("agent"), userspkg.Get(a))
	auth.POST("/users", authpkg.RequireRole("admin"), userspkg.CreateLocal(a))
	auth.POST("/users/password", userspkg.ChangePassword(a))
	auth.PATCH("/users/profile", userspkg.UpdateProfile(a))
	auth.GET("/roles", authpkg.RequireRole("admin"), rolespkg.List(a))

	// Knowledge base & calendar
	auth.GET("/kb", kbpkg.List(a))
	auth.GET("/calendar/unavailability", authpkg.RequireRole("agent"), calendarpkg.List(a))
	auth.POST("/calendar/unavailability", authpkg.RequireRole("agent"), calendarpkg.Mark(a))
}

// jwksKeyfunc fetches the OIDC JWKS on startup and refreshes it periodically.
func jwksKeyfunc(ctx context.Context, cfg apppkg.Config) jwt.Keyfunc {
	if cfg.JWKSURL == "" {
		return nil
	}
	httpClient := &http.Client{Timeout: 10 * time.Second}
	set, err := jwk.Fetch(ctx, cfg.JWKSURL, jwk.WithHTTPClient(httpClient))
	if err != nil {
		log.Fatal().Err(err).Str("jwks_url", cfg.JWKSURL).Msg("fetch jwks")
	}
	setPtr := &set
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			if newSet, err := jwk.Fetch(context.Background(), cfg.JWKSURL, jwk.WithHTTPClient(httpClient)); err == nil {
				*setPtr = newSet
			}
		}
	}()
	return func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		if kid != "" {
			if key, ok := (*setPtr).LookupKeyID(kid); ok {
				var pub any
				if err := key.Raw(&pub); err != nil {
					return nil, err
				}
				return pub, nil
			}
		}
		// fallback: use the first key in the set
		it := (*setPtr).Iterate(context.Background())
		if it.Next(context.Background()) {
			pair := it.Pair()
			if key, ok := pair.Value.(jwk.Key); ok {
				var pub any
				if err := key.Raw(&pub); err != nil {
					return nil, err
				}
				return pub, nil
			}
		}
		return nil, fmt.Errorf("no jwk for kid: %s", kid)
	}
}

func seedLocalAdmin(ctx context.Context, db *pgxpool.Pool) error {
	var exists bool
	if err := db.QueryRow(ctx, `select exists(select 1 from users where email='admin@example.com')`).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return nil
	}
	pw := "admin"
	hash, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx, `insert into users (email, display_name, password_hash, role_id)
values ('admin@example.com', 'Admin', $1, (select id from roles where name='admin'))`, string(hash))
	if err != nil {
		return err
	}
	log.Info().Str("email", "admin@example.com").Str("password", pw).Msg("seeded local admin user (dev)")
	return nil
}
