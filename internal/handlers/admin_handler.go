package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"reward-ledger/internal/auth"
	"reward-ledger/internal/blockchain"
	"reward-ledger/internal/jobs"
	"reward-ledger/internal/services"
)

// JobRunner triggers and lists background jobs
type JobRunner interface {
	Trigger(ctx context.Context, name string) error
	Status() []jobs.JobStatus
}

// Diagnoser checks the settlement network connection
type Diagnoser interface {
	RunDiagnostics(ctx context.Context) *blockchain.DiagnosticResult
}

type AdminHandler struct {
	admin      *services.AdminService
	settlement *services.SettlementService
	jobs       JobRunner
	diagnoser  Diagnoser
}

func NewAdminHandler(admin *services.AdminService, settlement *services.SettlementService, runner JobRunner, diagnoser Diagnoser) *AdminHandler {
	return &AdminHandler{
		admin:      admin,
		settlement: settlement,
		jobs:       runner,
		diagnoser:  diagnoser,
	}
}

// ForceUnlock releases a lock ahead of schedule
// POST /api/admin/users/:user_id/locks/:lock_id/unlock
func (h *AdminHandler) ForceUnlock(c *gin.Context) {
	adminID, _ := auth.GetUserID(c)

	lockID, err := uuid.Parse(c.Param("lock_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid lock id"})
		return
	}

	var req struct {
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entry, err := h.admin.ForceUnlock(c.Request.Context(), adminID, c.Param("user_id"), lockID, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    entry,
	})
}

// GetUserLocks lists a user's outstanding locks
// GET /api/admin/users/:user_id/locks
func (h *AdminHandler) GetUserLocks(c *gin.Context) {
	locks, err := h.admin.ListLocks(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    locks,
	})
}

// SetPaused stops or resumes reward distribution
// POST /api/admin/pause
func (h *AdminHandler) SetPaused(c *gin.Context) {
	adminID, _ := auth.GetUserID(c)

	var req struct {
		Paused *bool  `json:"paused" binding:"required"`
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.admin.SetPaused(c.Request.Context(), adminID, *req.Paused, req.Reason); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"paused":  *req.Paused,
	})
}

// GetStats returns ledger totals and the transfer queue state
// GET /api/admin/stats
func (h *AdminHandler) GetStats(c *gin.Context) {
	stats, err := h.admin.GetSystemStats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    stats,
	})
}

// RetryFailedTransfers requeues FAILED transfers
// POST /api/admin/transfers/retry
func (h *AdminHandler) RetryFailedTransfers(c *gin.Context) {
	adminID, _ := auth.GetUserID(c)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	n, err := h.admin.RetryFailedTransfers(c.Request.Context(), adminID, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"requeued": n,
	})
}

// GetQueueStats returns the transfer queue counts
// GET /api/admin/transfers/stats
func (h *AdminHandler) GetQueueStats(c *gin.Context) {
	stats, err := h.settlement.GetQueueStats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    stats,
	})
}

// ListJobs returns the registered background jobs
// GET /api/admin/jobs
func (h *AdminHandler) ListJobs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    h.jobs.Status(),
	})
}

// RunJob runs a background job now and waits for it
// POST /api/admin/jobs/:name/run
func (h *AdminHandler) RunJob(c *gin.Context) {
	adminID, _ := auth.GetUserID(c)
	if err := h.admin.RequireOperator(c.Request.Context(), adminID); err != nil {
		respondError(c, err)
		return
	}

	name := c.Param("name")
	if err := h.jobs.Trigger(c.Request.Context(), name); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"job":     name,
	})
}

// GrantRole assigns an admin role
// POST /api/admin/roles
func (h *AdminHandler) GrantRole(c *gin.Context) {
	adminID, _ := auth.GetUserID(c)

	var req struct {
		UserID string `json:"user_id" binding:"required"`
		Role   string `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	admin, err := h.admin.GrantRole(c.Request.Context(), adminID, req.UserID, req.Role)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    admin,
	})
}

// GetActions returns the admin audit trail
// GET /api/admin/actions
func (h *AdminHandler) GetActions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	actions, err := h.admin.RecentActions(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    actions,
	})
}

// GetDiagnostics checks the settlement network
// GET /api/admin/diagnostics
func (h *AdminHandler) GetDiagnostics(c *gin.Context) {
	if h.diagnoser == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "settlement ledger not configured"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    h.diagnoser.RunDiagnostics(c.Request.Context()),
	})
}
