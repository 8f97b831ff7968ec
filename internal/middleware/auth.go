package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	userIDKey   = "userID"
	userRoleKey = "userRole"
)

type policyKind int

const (
	policyPublic policyKind = iota
	policyAuthenticated
	policyRole
)

// Policy is the access rule attached to a route.
type Policy struct {
	kind policyKind
	role string
}

var (
	Public        = Policy{kind: policyPublic}
	Authenticated = Policy{kind: policyAuthenticated}
)

// RoleOnly admits authenticated callers whose token carries role.
func RoleOnly(role string) Policy { return Policy{kind: policyRole, role: role} }

func (p Policy) String() string {
	switch p.kind {
	case policyPublic:
		return "public"
	case policyAuthenticated:
		return "authenticated"
	default:
		return "role:" + p.role
	}
}

// Require enforces p before the route handler runs. Missing or invalid
// tokens get 401, a valid token with the wrong role gets 403.
func Require(p Policy, secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if p.kind == policyPublic {
			c.Next()
			return
		}
		if !authenticate(c, secret) {
			return
		}
		if p.kind == policyRole && GetUserRole(c) != p.role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// AuthMiddleware admits any caller with a valid token.
func AuthMiddleware(secret string) gin.HandlerFunc { return Require(Authenticated, secret) }

func authenticate(c *gin.Context, secret string) bool {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return false
	}

	token, err := jwt.Parse(strings.TrimPrefix(header, "Bearer "), func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return false
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid claims"})
		return false
	}

	sub, _ := claims["sub"].(string)
	userID, err := uuid.Parse(sub)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid user id"})
		return false
	}

	role, _ := claims["role"].(string)
	c.Set(userIDKey, userID)
	c.Set(userRoleKey, role)
	return true
}

func GetUserID(c *gin.Context) uuid.UUID {
	id, _ := c.Get(userIDKey)
	uid, _ := id.(uuid.UUID)
	return uid
}

func GetUserRole(c *gin.Context) string {
	role, _ := c.Get(userRoleKey)
	r, _ := role.(string)
	return r
}
