package auth

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	app "github.com/opsdesk/opsdesk-go/cmd/api/app"
)

const cookieName = "opsdesk_auth"

// AuthUser represents the authenticated user.
type AuthUser struct {
	ID          int64  `json:"id"`
	ExternalID  string `json:"external_id,omitempty"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

// Current returns the authenticated user from the request context.
func Current(c *gin.Context) (AuthUser, bool) {
	v, ok := c.Get("user")
	if !ok {
		return AuthUser{}, false
	}
	u, ok := v.(AuthUser)
	return u, ok
}

// Middleware authenticates the request. In order: test bypass, local session
// cookie, OIDC bearer token.
func Middleware(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.Cfg.TestBypassAuth {
			c.Set("user", AuthUser{
				ID:          1,
				ExternalID:  "test",
				Email:       "test@example.com",
				DisplayName: "Test User",
				Role:        a.Cfg.TestBypassRole,
			})
			c.Next()
			return
		}

		if tok, err := c.Cookie(cookieName); err == nil && tok != "" && a.Cfg.AuthLocalSecret != "" {
			if u, ok := parseLocalToken(tok, a.Cfg.AuthLocalSecret); ok {
				c.Set("user", u)
				c.Next()
				return
			}
		}

		auth := c.GetHeader("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}
		if a.Keyf == nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "jwks not configured"})
			return
		}
		tokenStr := strings.TrimPrefix(auth, "Bearer ")
		token, err := jwt.Parse(tokenStr, a.Keyf)
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		u := AuthUser{
			ExternalID:  getStringClaim(claims, "sub"),
			Email:       getStringClaim(claims, "email"),
			DisplayName: getStringClaim(claims, "name"),
		}
		if u.DisplayName == "" {
			u.DisplayName = getStringClaim(claims, "preferred_username")
		}
		u.Role = getStringClaim(claims, a.Cfg.OIDCRoleClaim)
		// Resolve the directory row so downstream handlers have a stable id
		// and the role assigned in the database wins over the token claim.
		if a.DB != nil && u.Email != "" {
			const q = `select u.id, coalesce(r.name, '') from users u
left join roles r on r.id = u.role_id
where lower(u.email) = lower($1)`
			var dbRole string
			if err := a.DB.QueryRow(c.Request.Context(), q, u.Email).Scan(&u.ID, &dbRole); err == nil && dbRole != "" {
				u.Role = dbRole
			}
		}
		c.Set("user", u)
		c.Next()
	}
}

func getStringClaim(c jwt.MapClaims, key string) string {
	if v, ok := c[key].(string); ok {
		return v
	}
	return ""
}

type localClaims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

func parseLocalToken(tok, secret string) (AuthUser, bool) {
	var claims localClaims
	token, err := jwt.ParseWithClaims(tok, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return AuthUser{}, false
	}
	id, _ := strconv.ParseInt(claims.Subject, 10, 64)
	return AuthUser{
		ID:          id,
		Email:       claims.Email,
		DisplayName: claims.Name,
		Role:        claims.Role,
	}, true
}

type loginReq struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Login verifies local credentials and sets a signed session cookie.
func Login(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in loginReq
		if err := c.ShouldBindJSON(&in); err != nil {
			app.AbortError(c, http.StatusBadRequest, "invalid_format", "email and password are required", nil)
			return
		}
		if a.Cfg.AuthLocalSecret == "" {
			app.AbortError(c, http.StatusInternalServerError, "internal", "local auth not configured", nil)
			return
		}
		if a.DB == nil {
			c.JSON(http.StatusOK, gin.H{"ok": true})
			return
		}
		ctx, cancel := a.OpCtx(c)
		defer cancel()
		const q = `select u.id, u.display_name, coalesce(u.password_hash, ''), coalesce(r.name, '')
from users u left join roles r on r.id = u.role_id
where lower(u.email) = lower($1)`
		var (
			id   int64
			name string
			hash string
			role string
		)
		if err := a.DB.QueryRow(ctx, q, in.Email).Scan(&id, &name, &hash, &role); err != nil {
			// Same response for unknown user and bad password.
			app.AbortError(c, http.StatusUnauthorized, "forbidden", "invalid credentials", nil)
			return
		}
		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(in.Password)) != nil {
			app.AbortError(c, http.StatusUnauthorized, "forbidden", "invalid credentials", nil)
			return
		}
		now := a.Clk.Now()
		claims := localClaims{
			Email: strings.ToLower(in.Email),
			Name:  name,
			Role:  role,
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   strconv.FormatInt(id, 10),
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(now.Add(12 * time.Hour)),
			},
		}
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(a.Cfg.AuthLocalSecret))
		if err != nil {
			log.Ctx(c.Request.Context()).Error().Err(err).Msg("sign session token")
			app.AbortError(c, http.StatusInternalServerError, "internal", "could not establish session", nil)
			return
		}
		secure := a.Cfg.Env != "dev"
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(cookieName, tok, int((12 * time.Hour).Seconds()), "/", "", secure, true)
		c.JSON(http.StatusOK, AuthUser{ID: id, Email: strings.ToLower(in.Email), DisplayName: name, Role: role})
	}
}

// Logout clears the session cookie.
func Logout() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.SetCookie(cookieName, "", -1, "/", "", false, true)
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

// Me returns the authenticated user.
func Me(c *gin.Context) {
	u, ok := Current(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	c.JSON(http.StatusOK, u)
}

// RequireRole ensures the user holds one of the given roles. Admins pass any
// gate.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, ok := Current(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}
		if u.Role == "admin" {
			c.Next()
			return
		}
		for _, want := range roles {
			if u.Role == want {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	}
}
