package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccountKey is the gin context key holding the authenticated account key.
const AccountKey = "account_key"

const (
	TokenAccess  = "access"
	TokenRefresh = "refresh"
)

// Claims carried by access and refresh tokens.
type Claims struct {
	AccountKey string `json:"account_key"`
	TokenType  string `json:"typ"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token of the given type for accountKey.
func IssueToken(secret []byte, accountKey, tokenType string, ttl time.Duration, now time.Time) (string, error) {
	claims := Claims{
		AccountKey: accountKey,
		TokenType:  tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   accountKey,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ParseToken validates signature, expiry and token type.
func ParseToken(secret []byte, tokenString, tokenType string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token expired or invalid")
	}
	if claims.TokenType != tokenType || claims.AccountKey == "" {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

func JWTAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		claims, err := ParseToken(secret, tokenString, TokenAccess)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "Invalid token",
				"details": err.Error(),
			})
			return
		}

		c.Set(AccountKey, claims.AccountKey)
		c.Next()
	}
}
