package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/weavetrack/erp-api/internal/models"
)

// Roles
const (
	RoleAdmin      = "admin"
	RoleSupervisor = "supervisor"
	RoleOperator   = "operator"
	RoleViewer     = "viewer"
)

const (
	ctxClaims    = "claims"
	ctxUserID    = "userID"
	ctxUserRole  = "userRole"
	ctxCompanyID = "companyID"

	headerSessionID = "X-Session-ID"
)

// Claims represents the JWT claims structure
type Claims struct {
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	CompanyID string `json:"company_id"`
	jwt.RegisteredClaims
}

// Auth returns a middleware that validates JWT tokens
func Auth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		tokenString := ""

		if authHeader == "" {
			// Download links carry the token in the query string
			tokenString = c.Query("token")
			if tokenString == "" {
				abort(c, http.StatusUnauthorized, "Authorization header is required")
				return
			}
		} else {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				abort(c, http.StatusUnauthorized, "Invalid authorization header format")
				return
			}
			tokenString = parts[1]
		}

		claims, err := validateToken(tokenString, jwtSecret)
		if err != nil {
			abort(c, http.StatusUnauthorized, err.Error())
			return
		}
		if claims.UserID == "" {
			abort(c, http.StatusUnauthorized, "token has no user")
			return
		}

		c.Set(ctxUserID, claims.UserID)
		c.Set(ctxUserRole, claims.Role)
		c.Set(ctxClaims, claims)

		c.Next()
	}
}

func validateToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return []byte(secret), nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.New("token has expired")
		}
		return nil, errors.New("invalid token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}

	return claims, nil
}

// NewToken signs claims with HS256, expiring after ttl.
func NewToken(secret string, claims Claims, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"message": message,
	})
}

// GetClaims returns the verified token claims, or nil before Auth ran.
func GetClaims(c *gin.Context) *Claims {
	v, exists := c.Get(ctxClaims)
	if !exists {
		return nil
	}
	claims, _ := v.(*Claims)
	return claims
}

// GetUserID extracts the user ID from the Gin context
func GetUserID(c *gin.Context) string {
	return c.GetString(ctxUserID)
}

// GetUserRole extracts the user role from the Gin context
func GetUserRole(c *gin.Context) string {
	return c.GetString(ctxUserRole)
}

// IsAdmin checks if the current user is an admin
func IsAdmin(c *gin.Context) bool {
	return GetUserRole(c) == RoleAdmin
}

// RequireRole returns a middleware that requires specific roles
func RequireRole(allowedRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userRole := GetUserRole(c)
		for _, role := range allowedRoles {
			if userRole == role {
				c.Next()
				return
			}
		}
		abort(c, http.StatusForbidden, "You do not have access to this resource")
	}
}

// CurrentActor snapshots the authenticated user for audit entries.
func CurrentActor(c *gin.Context) models.Actor {
	claims := GetClaims(c)
	if claims == nil {
		return models.Actor{}
	}
	return models.Actor{
		UserID: claims.UserID,
		Name:   claims.Name,
		Email:  claims.Email,
		Role:   claims.Role,
	}
}

// CurrentRequest captures where the request came from for audit entries.
func CurrentRequest(c *gin.Context) models.RequestInfo {
	return models.RequestInfo{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		SessionID: c.GetHeader(headerSessionID),
		Method:    c.Request.Method,
		URL:       c.Request.URL.RequestURI(),
	}
}
