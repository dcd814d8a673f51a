package users

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	apppkg "github.com/opsdesk/opsdesk-go/cmd/api/app"
	authpkg "github.com/opsdesk/opsdesk-go/cmd/api/auth"
	"github.com/opsdesk/opsdesk-go/internal/apperr"
)

// User is the directory projection exposed by this package.
type User struct {
	ID          int64  `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

// ListAgents returns every user holding the agent role, for assignment
// pickers and the escalation handler setting.
func ListAgents(a *apppkg.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.DB == nil {
			c.JSON(http.StatusOK, []User{})
			return
		}
		ctx, cancel := a.OpCtx(c)
		defer cancel()
		const q = `select u.id, coalesce(u.email,''), coalesce(u.display_name,''), r.name
from users u join roles r on r.id = u.role_id
where r.name = 'agent'
order by u.display_name, u.email`
		rows, err := a.DB.Query(ctx, q)
		if err != nil {
			apppkg.Fail(c, apperr.Storage(err, "users"))
			return
		}
		defer rows.Close()
		out := []User{}
		for rows.Next() {
			var u User
			if err := rows.Scan(&u.ID, &u.Email, &u.DisplayName, &u.Role); err != nil {
				apppkg.Fail(c, apperr.Storage(err, "users"))
				return
			}
			out = append(out, u)
		}
		c.JSON(http.StatusOK, out)
	}
}

// Get returns a single user by id.
func Get(a *apppkg.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := apppkg.ParamID(c, "id")
		if !ok {
			return
		}
		if a.DB == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		ctx, cancel := a.OpCtx(c)
		defer cancel()
		var u User
		row := a.DB.QueryRow(ctx, `select u.id, coalesce(u.email,''), coalesce(u.display_name,''), coalesce(r.name,'')
from users u left join roles r on r.id = u.role_id where u.id=$1`, id)
		if err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.Role); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusOK, u)
	}
}

// CreateLocal provisions a local-auth user with a bcrypt password hash and a
// role by name. Admin only; routed behind RequireRole.
func CreateLocal(a *apppkg.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in struct {
			Email       string `json:"email" binding:"required,email"`
			DisplayName string `json:"display_name" binding:"required"`
			Password    string `json:"password" binding:"required,min=8"`
			Role        string `json:"role" binding:"required"`
		}
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "email, display_name, role and a password of at least 8 characters are required"})
			return
		}
		if a.DB == nil {
			c.JSON(http.StatusCreated, gin.H{"id": int64(0)})
			return
		}
		ph, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "hash failure"})
			return
		}
		ctx, cancel := a.OpCtx(c)
		defer cancel()
		const q = `
insert into users (email, display_name, password_hash, role_id)
values (lower($1), $2, $3, (select id from roles where name=$4))
returning id`
		var id int64
		if err := a.DB.QueryRow(ctx, q, in.Email, in.DisplayName, string(ph), in.Role).Scan(&id); err != nil {
			apppkg.Fail(c, apperr.Storage(err, "users"))
			return
		}
		c.JSON(http.StatusCreated, gin.H{"id": id})
	}
}

// ChangePassword changes the password for local-auth users.
func ChangePassword(a *apppkg.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.Cfg.AuthMode != "local" {
			c.JSON(http.StatusConflict, gin.H{"error": "password managed by identity provider"})
			return
		}
		au, ok := authpkg.Current(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}
		var in struct {
			OldPassword string `json:"old_password" binding:"required"`
			NewPassword string `json:"new_password" binding:"required,min=8"`
		}
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "old and new password required"})
			return
		}
		if a.DB == nil {
			c.JSON(http.StatusOK, gin.H{"ok": true})
			return
		}
		ctx, cancel := a.OpCtx(c)
		defer cancel()
		var hash string
		if err := a.DB.QueryRow(ctx, `select coalesce(password_hash,'') from users where id=$1`, au.ID).Scan(&hash); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		if hash == "" || bcrypt.CompareHashAndPassword([]byte(hash), []byte(in.OldPassword)) != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid old password"})
			return
		}
		ph, err := bcrypt.GenerateFromPassword([]byte(in.NewPassword), bcrypt.DefaultCost)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "hash failure"})
			return
		}
		if _, err := a.DB.Exec(ctx, `update users set password_hash=$1 where id=$2`, string(ph), au.ID); err != nil {
			apppkg.Fail(c, apperr.Storage(err, "users"))
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

// UpdateProfile updates email/display_name for local auth only.
func UpdateProfile(a *apppkg.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.Cfg.AuthMode != "local" {
			c.JSON(http.StatusConflict, gin.H{"error": "profile managed by identity provider"})
			return
		}
		au, ok := authpkg.Current(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}
		var in struct {
			Email       *string `json:"email"`
			DisplayName *string `json:"display_name"`
		}
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
		if in.Email == nil && in.DisplayName == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no fields"})
			return
		}
		if a.DB == nil {
			c.JSON(http.StatusOK, gin.H{"ok": true})
			return
		}
		ctx, cancel := a.OpCtx(c)
		defer cancel()
		if in.Email != nil {
			if _, err := a.DB.Exec(ctx, `update users set email=lower($1) where id=$2`, strings.TrimSpace(*in.Email), au.ID); err != nil {
				apppkg.Fail(c, apperr.Storage(err, "users"))
				return
			}
		}
		if in.DisplayName != nil {
			if _, err := a.DB.Exec(ctx, `update users set display_name=$1 where id=$2`, *in.DisplayName, au.ID); err != nil {
				apppkg.Fail(c, apperr.Storage(err, "users"))
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}
