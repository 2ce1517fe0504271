package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"reward-ledger/internal/auth"
	"reward-ledger/internal/services"
)

// UserHandler serves a user's own ledger position
type UserHandler struct {
	accounts *services.AccountService
	rewards  *services.RewardService
}

func NewUserHandler(accounts *services.AccountService, rewards *services.RewardService) *UserHandler {
	return &UserHandler{accounts: accounts, rewards: rewards}
}

// RegisterWallet sets the address transfers are sent to. Defaults to the login wallet.
// PUT /api/user/wallet
func (h *UserHandler) RegisterWallet(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	var req struct {
		WalletAddress string `json:"wallet_address"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.WalletAddress == "" {
		req.WalletAddress, _ = auth.GetWalletAddress(c)
	}

	account, err := h.accounts.RegisterWallet(c.Request.Context(), userID, req.WalletAddress)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    account,
	})
}

// GetBalance returns available and locked balances with the outstanding locks
// GET /api/user/balance
func (h *UserHandler) GetBalance(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	balance, err := h.accounts.GetBalance(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    balance,
	})
}

// GetLocks returns the outstanding locks only
// GET /api/user/locks
func (h *UserHandler) GetLocks(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	balance, err := h.accounts.GetBalance(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"data":           balance.Locks,
		"locked_balance": balance.LockedBalance,
	})
}

// GetRewards returns the reward log
// GET /api/user/rewards
func (h *UserHandler) GetRewards(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	entries, err := h.rewards.History(c.Request.Context(), userID, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    entries,
		"limit":   limit,
		"offset":  offset,
	})
}

// GetTransfers returns queued and settled transfers
// GET /api/user/transfers
func (h *UserHandler) GetTransfers(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	transfers, err := h.accounts.ListTransfers(c.Request.Context(), userID, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    transfers,
	})
}
