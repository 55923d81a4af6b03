package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"crypto-portfolio/middleware"
	"crypto-portfolio/models"
	"crypto-portfolio/portfolio"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"golang.org/x/crypto/bcrypt"
)

const (
	accessTokenTTL  = 24 * time.Hour
	refreshTokenTTL = 7 * 24 * time.Hour
)

// AccountStore is what sign-up and login need from the ledger.
type AccountStore interface {
	LoadAccount(ctx context.Context, key string) (*models.Account, error)
	EnsureAccount(ctx context.Context, key string) (*models.Account, error)
	SetPasswordHash(ctx context.Context, accountID uint, hash string) error
}

type Auth struct {
	accounts AccountStore
	rdb      *redis.Client
	secret   []byte
	clock    func() time.Time
}

func NewAuth(accounts AccountStore, rdb *redis.Client, secret []byte) *Auth {
	return &Auth{accounts: accounts, rdb: rdb, secret: secret, clock: time.Now}
}

type AuthInput struct {
	AccountKey string `json:"account_key" binding:"required"`
	Password   string `json:"password" binding:"required,min=8"`
}

type RefreshInput struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

func refreshKey(token string) string {
	return "refresh:" + token
}

// Signup sets a password on a new account, or on one the bot created without
// credentials.
func (h *Auth) Signup(c *gin.Context) {
	var input AuthInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	key := portfolio.NormalizeAccountKey(input.AccountKey)
	ctx := c.Request.Context()

	account, err := h.accounts.EnsureAccount(ctx, key)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error", "details": err.Error()})
		return
	}
	if account.PasswordHash != "" {
		c.JSON(http.StatusConflict, gin.H{"error": "Account already registered"})
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error hashing password"})
		return
	}
	err = h.accounts.SetPasswordHash(ctx, account.ID, string(hashed))
	if errors.Is(err, portfolio.ErrAccountRegistered) {
		c.JSON(http.StatusConflict, gin.H{"error": "Account already registered"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error saving credentials", "details": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "Account registered successfully"})
}

func (h *Auth) Login(c *gin.Context) {
	var input AuthInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	account, err := h.accounts.LoadAccount(c.Request.Context(), portfolio.NormalizeAccountKey(input.AccountKey))
	if errors.Is(err, portfolio.ErrAccountNotFound) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error", "details": err.Error()})
		return
	}
	if account.PasswordHash == "" ||
		bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(input.Password)) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	h.issuePair(c, account.Key)
}

// Refresh trades a stored refresh token for a new pair; the old one is revoked.
func (h *Auth) Refresh(c *gin.Context) {
	var input RefreshInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	claims, err := middleware.ParseToken(h.secret, input.RefreshToken, middleware.TokenRefresh)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid refresh token", "details": err.Error()})
		return
	}

	ctx := c.Request.Context()
	deleted, err := h.rdb.Del(ctx, refreshKey(input.RefreshToken)).Result()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error checking refresh token", "details": err.Error()})
		return
	}
	if deleted == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Refresh token revoked or unknown"})
		return
	}

	h.issuePair(c, claims.AccountKey)
}

func (h *Auth) issuePair(c *gin.Context, accountKey string) {
	now := h.clock()
	accessToken, err := middleware.IssueToken(h.secret, accountKey, middleware.TokenAccess, accessTokenTTL, now)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error generating token", "details": err.Error()})
		return
	}
	refreshToken, err := middleware.IssueToken(h.secret, accountKey, middleware.TokenRefresh, refreshTokenTTL, now)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error generating refresh token", "details": err.Error()})
		return
	}

	if err := h.rdb.Set(c.Request.Context(), refreshKey(refreshToken), accountKey, refreshTokenTTL).Err(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error storing refresh token", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
	})
}
