package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/shareloom/core/internal/models"
	"github.com/shareloom/core/internal/pkg/jwt"
	"github.com/shareloom/core/internal/pkg/response"
)

const (
	ContextKeyUserID = "user_id"
	ContextKeyRole   = "user_role"
)

// Auth enforces bearer token authentication and loads the caller's role.
func Auth(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, role, err := resolveUser(db, extractToken(c))
		if err != nil {
			response.Unauthorized(c)
			return
		}
		c.Set(ContextKeyUserID, userID)
		c.Set(ContextKeyRole, string(role))
		c.Next()
	}
}

// OptionalAuth sets the user ID if a valid token is present, but does not
// block anonymous requests.
func OptionalAuth(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID, role, err := resolveUser(db, extractToken(c)); err == nil && userID != "" {
			c.Set(ContextKeyUserID, userID)
			c.Set(ContextKeyRole, string(role))
		}
		c.Next()
	}
}

func resolveUser(db *gorm.DB, token string) (string, models.UserRole, error) {
	claims, err := jwt.Parse(token)
	if err != nil {
		return "", "", err
	}

	// the token carries a verified uid; the role comes from our own row
	var user models.UserModel
	if err := db.Select("id", "role").First(&user, "id = ?", claims.UserID).Error; err != nil {
		return "", "", err
	}
	return user.ID, user.Role, nil
}

// CurrentUserID extracts the authenticated user ID from context.
func CurrentUserID(c *gin.Context) string {
	v, _ := c.Get(ContextKeyUserID)
	id, _ := v.(string)
	return id
}

// IsAdmin reports whether the authenticated caller holds the admin role.
func IsAdmin(c *gin.Context) bool {
	v, _ := c.Get(ContextKeyRole)
	role, _ := v.(string)
	return role == string(models.RoleAdmin)
}

// IsAuthenticated returns true if the request has a valid auth token.
func IsAuthenticated(c *gin.Context) bool {
	return CurrentUserID(c) != ""
}

func extractToken(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	if auth != "" {
		return NormalizeToken(auth)
	}
	return NormalizeToken(c.Query("token"))
}

// NormalizeToken trims spaces and strips an optional Bearer prefix.
func NormalizeToken(raw string) string {
	token := strings.TrimSpace(raw)
	if token == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		return strings.TrimSpace(token[7:])
	}
	return token
}
