package middleware

import (
	"net/http"
	"strings"

	"school_resources_backend/internal/models"
	"school_resources_backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

const principalKey = "principal"

// AuthMiddleware creates a Gin middleware for JWT authentication.
// The verified claims become the request's Principal.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusUnauthorized, utils.ErrCodeUnauthorized, "Authorization header required", ""))
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusUnauthorized, utils.ErrCodeUnauthorized, "Invalid authorization header format. Use Bearer <token>", ""))
			return
		}

		claims, err := utils.ValidateToken(parts[1])
		if err != nil {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusUnauthorized, utils.ErrCodeUnauthorized, "Invalid or expired token", err.Error()))
			return
		}

		role, ok := models.ParseRole(claims.Role)
		if !ok || claims.UserID <= 0 {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusUnauthorized, utils.ErrCodeUnauthorized, "Token does not name a known principal", ""))
			return
		}

		c.Set(principalKey, models.Principal{ID: claims.UserID, Username: claims.Username, Role: role})
		c.Next()
	}
}

// PrincipalFrom returns the principal set by AuthMiddleware.
func PrincipalFrom(c *gin.Context) (models.Principal, bool) {
	v, exists := c.Get(principalKey)
	if !exists {
		return models.Principal{}, false
	}
	p, ok := v.(models.Principal)
	return p, ok
}

// RoleAuthMiddleware creates a Gin middleware for role-based authorization.
// It checks if the principal's role is one of the allowed roles.
func RoleAuthMiddleware(allowedRoles ...models.Role) gin.HandlerFunc {
	allowed := models.NewRoleSet(allowedRoles...)
	return func(c *gin.Context) {
		p, ok := PrincipalFrom(c)
		if !ok {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusForbidden, utils.ErrCodeForbidden, "Principal not found. Ensure AuthMiddleware runs first.", ""))
			return
		}

		if !allowed.Has(p.Role) {
			names := make([]string, len(allowedRoles))
			for i, r := range allowedRoles {
				names[i] = string(r)
			}
			utils.RespondWithError(c, utils.NewAPIError(http.StatusForbidden, utils.ErrCodeForbidden,
				"You do not have permission to access this resource", "Required roles: "+strings.Join(names, ", ")))
			return
		}

		c.Next()
	}
}
