package middleware

import (
	"net/http"
	"strings"

	"github.com/casdoor/casdoor-go-sdk/casdoorsdk"
	"github.com/gin-gonic/gin"

	"github.com/brightclass/quiz-service/internal/config"
	"github.com/brightclass/quiz-service/internal/models"
	"github.com/brightclass/quiz-service/internal/utils"
)

// AuthMiddleware verifies Casdoor-issued bearer tokens and places the
// caller's identity on the gin context as "user_id" and "user_role".
type AuthMiddleware struct {
	client *casdoorsdk.Client
	logger utils.Logger
}

func NewAuthMiddleware(cfg *config.Config, logger utils.Logger) *AuthMiddleware {
	client := casdoorsdk.NewClient(
		cfg.CasdoorEndpoint,
		cfg.CasdoorClientID,
		cfg.CasdoorClientSecret,
		cfg.CasdoorCertificate,
		cfg.CasdoorOrganization,
		cfg.CasdoorApplication,
	)
	return &AuthMiddleware{client: client, logger: logger}
}

func (m *AuthMiddleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"message": "Missing or malformed Authorization header",
			})
			return
		}

		claims, err := m.client.ParseJwtToken(token)
		if err != nil {
			m.logger.Warn("Token verification failed",
				"remote_addr", c.ClientIP(),
				"error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"message": "Invalid or expired token",
			})
			return
		}

		c.Set("user_id", claims.User.Id)
		c.Set("user_name", claims.User.Name)
		c.Set("user_role", roleFromClaims(&claims.User))
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// roleFromClaims maps the Casdoor user onto the service's role set.
// Anything unrecognized degrades to student.
func roleFromClaims(user *casdoorsdk.User) models.UserRole {
	if user.IsAdmin {
		return models.RoleAdmin
	}
	switch strings.ToLower(user.Tag) {
	case "teacher", "staff":
		return models.RoleTeacher
	case "admin":
		return models.RoleAdmin
	default:
		return models.RoleStudent
	}
}
