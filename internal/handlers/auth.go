package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/casdoor/casdoor-go-sdk/casdoorsdk"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/ccingram94/galileo-sub000/internal/config"
	"github.com/ccingram94/galileo-sub000/internal/models"
)

// AuthMiddleware authenticates requests either against a Casdoor instance or
// a locally-signed HMAC token, depending on configuration.
type AuthMiddleware struct {
	client *casdoorsdk.Client
	config *config.Config
}

// NewAuthMiddleware creates the authentication middleware for the configured mode.
func NewAuthMiddleware(cfg *config.Config) *AuthMiddleware {
	am := &AuthMiddleware{config: cfg}

	if cfg.AuthMode == config.AuthModeCasdoor {
		am.client = casdoorsdk.NewClient(
			cfg.Casdoor.Endpoint,
			cfg.Casdoor.ClientID,
			cfg.Casdoor.ClientSecret,
			cfg.Casdoor.Cert,
			cfg.Casdoor.Application,
			cfg.Casdoor.Organization,
		)
	}

	return am
}

// AuthMiddleware returns a Gin middleware function that validates the bearer token.
func (am *AuthMiddleware) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			return
		}

		var (
			userID string
			role   models.UserRole
			err    error
		)
		if am.config.AuthMode == config.AuthModeCasdoor {
			userID, role, err = am.parseCasdoorToken(token)
		} else {
			userID, role, err = am.parseLocalToken(token)
		}
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": fmt.Sprintf("invalid token: %v", err),
			})
			c.Abort()
			return
		}

		c.Set("user_id", userID)
		c.Set("user_role", role)
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "unauthorized",
			"message": "authorization header missing",
		})
		c.Abort()
		return "", false
	}

	tokenParts := strings.Split(authHeader, " ")
	if len(tokenParts) != 2 || strings.ToLower(tokenParts[0]) != "bearer" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "unauthorized",
			"message": "invalid authorization header format",
		})
		c.Abort()
		return "", false
	}

	return tokenParts[1], true
}

func (am *AuthMiddleware) parseCasdoorToken(token string) (string, models.UserRole, error) {
	claims, err := am.client.ParseJwtToken(token)
	if err != nil {
		return "", "", err
	}
	if claims.Id == "" {
		return "", "", fmt.Errorf("missing user id in token")
	}
	return claims.Id, mapExternalRole(claims.User.Type), nil
}

func (am *AuthMiddleware) parseLocalToken(tokenString string) (string, models.UserRole, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(am.config.JWTSecret), nil
	})
	if err != nil {
		return "", "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", "", fmt.Errorf("invalid token claims")
	}

	userID, _ := claims["sub"].(string)
	if userID == "" {
		return "", "", fmt.Errorf("missing user id in token")
	}

	roleClaim, _ := claims["role"].(string)
	return userID, mapExternalRole(roleClaim), nil
}

func mapExternalRole(external string) models.UserRole {
	switch strings.ToLower(external) {
	case "admin", "administrator":
		return models.RoleAdmin
	case "teacher", "instructor", "educator":
		return models.RoleTeacher
	default:
		return models.RoleStudent
	}
}

// RequireRoleMiddleware checks if the authenticated user has one of the required roles.
func (am *AuthMiddleware) RequireRoleMiddleware(requiredRoles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		userRole, exists := c.Get("user_role")
		if !exists {
			c.JSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "user role not found in context",
			})
			c.Abort()
			return
		}

		role, ok := userRole.(models.UserRole)
		if !ok {
			c.JSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "invalid user role format",
			})
			c.Abort()
			return
		}

		hasRequiredRole := false
		for _, requiredRole := range requiredRoles {
			if role == requiredRole || role == models.RoleAdmin {
				hasRequiredRole = true
				break
			}
		}

		if !hasRequiredRole {
			c.JSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": fmt.Sprintf("insufficient permissions, required role: %v", requiredRoles),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// GetUserIDFromContext extracts the authenticated user's id from the Gin context.
func GetUserIDFromContext(c *gin.Context) (string, error) {
	userID, exists := c.Get("user_id")
	if !exists {
		return "", fmt.Errorf("user ID not found in context")
	}

	id, ok := userID.(string)
	if !ok {
		return "", fmt.Errorf("invalid user ID type in context")
	}

	return id, nil
}
