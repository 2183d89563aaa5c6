package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Domenick1991/deskbooking/internal/domain"
	"github.com/Domenick1991/deskbooking/internal/logging"
	"github.com/gin-gonic/gin"
	jwt "github.com/golang-jwt/jwt/v5"
)

const principalKey = "principal"

type Claims struct {
	Admin bool `json:"admin,omitempty"`
	jwt.RegisteredClaims
}

// NewAccessToken signs an HS256 token for the account. Tokens are normally issued by the
// identity service; this helper serves local setups and tests.
func NewAccessToken(userID string, admin bool, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Admin: admin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ParseToken(tokenString, secret string) (*Claims, error) {
	tok, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if claims, ok := tok.Claims.(*Claims); ok && tok.Valid && claims.Subject != "" {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

// JWTAuth resolves the bearer token into the request principal.
func JWTAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Code: "unauthorized", Error: "missing bearer token"})
			return
		}
		claims, err := ParseToken(strings.TrimPrefix(h, "Bearer "), secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Code: "unauthorized", Error: "invalid token"})
			return
		}
		c.Set(principalKey, domain.Principal{UserID: claims.Subject, IsAdmin: claims.Admin})
		c.Next()
	}
}

// RequestLogger attaches a logger carrying the route and caller to the request context.
func RequestLogger(base *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := base.With("method", c.Request.Method, "route", c.FullPath())
		if p, ok := principalFrom(c); ok {
			logger = logger.With("principal", p.UserID)
		}
		c.Request = c.Request.WithContext(logging.ContextWithLogger(c.Request.Context(), logger))

		start := time.Now()
		c.Next()
		logger.Debug("request served", "status", c.Writer.Status(), "duration", time.Since(start))
	}
}

func principalFrom(c *gin.Context) (domain.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return domain.Principal{}, false
	}
	p, ok := v.(domain.Principal)
	return p, ok && p.UserID != ""
}

// requirePrincipal aborts with 401 when no principal was resolved.
func requirePrincipal(c *gin.Context) (domain.Principal, bool) {
	p, ok := principalFrom(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Code: "unauthorized", Error: "authentication required"})
	}
	return p, ok
}
