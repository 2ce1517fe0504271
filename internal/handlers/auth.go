package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"reward-ledger/internal/auth"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct{}

func NewAuthHandler() *AuthHandler {
	return &AuthHandler{}
}

// WalletLogin authenticates a user by their Solana wallet address and a signature of
// auth.LoginMessage. The wallet address becomes the user id.
// POST /auth/wallet
func (h *AuthHandler) WalletLogin(c *gin.Context) {
	var req struct {
		WalletAddress string `json:"wallet_address" binding:"required"`
		Signature     string `json:"signature" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if len(req.WalletAddress) < 32 || len(req.WalletAddress) > 44 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid wallet address"})
		return
	}

	err := auth.VerifyWalletSignature(req.WalletAddress, req.Signature, []byte(auth.LoginMessage))
	if errors.Is(err, auth.ErrInvalidSignature) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, err := auth.GenerateToken(req.WalletAddress, req.WalletAddress)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"user_id":    req.WalletAddress,
		"expires_in": int64(auth.TokenTTL().Seconds()),
	})
}

// GetMe returns the identity carried by the token
// GET /api/me
func (h *AuthHandler) GetMe(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	wallet, _ := auth.GetWalletAddress(c)
	c.JSON(http.StatusOK, gin.H{
		"user_id":        userID,
		"wallet_address": wallet,
	})
}
