package api

import (
	"net/http"
	"strconv"

	"github.com/mehrbod2002/mtdesk/internal/service"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type LogHandler struct {
	logService service.LogService
}

func NewLogHandler(logService service.LogService) *LogHandler {
	return &LogHandler{logService: logService}
}

func pagination(c *gin.Context) (int, int) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if err != nil || limit < 1 {
		limit = 10
	}
	return page, limit
}

// @Summary Get all logs
// @Description Retrieves audit logs, newest first (admin only)
// @Tags Logs
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Success 200 {array} models.LogEntry
// @Failure 500 {object} map[string]string "Failed to retrieve logs"
// @Router /admin/logs [get]
func (h *LogHandler) GetAllLogs(c *gin.Context) {
	page, limit := pagination(c)
	logs, err := h.logService.GetAllLogs(c.Request.Context(), page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve logs"})
		return
	}
	c.JSON(http.StatusOK, logs)
}

// @Summary Get logs by user ID
// @Description Retrieves logs associated with a specific user ID (admin only)
// @Tags Logs
// @Produce json
// @Security BearerAuth
// @Param user_id path string true "User ID"
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Success 200 {array} models.LogEntry
// @Failure 400 {object} map[string]string "Invalid user ID"
// @Router /admin/logs/user/{user_id} [get]
func (h *LogHandler) GetLogsByUser(c *gin.Context) {
	page, limit := pagination(c)
	logs, err := h.logService.GetLogsByUserID(c.Request.Context(), c.Param("user_id"), page, limit)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}
	c.JSON(http.StatusOK, logs)
}

// @Summary Get logs by trading account
// @Description Retrieves audit logs of one trading account (admin only)
// @Tags Logs
// @Produce json
// @Security BearerAuth
// @Param account_id path string true "Trading account ID"
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Success 200 {array} models.LogEntry
// @Failure 400 {object} map[string]string "Invalid account ID"
// @Failure 500 {object} map[string]string "Failed to retrieve logs"
// @Router /admin/logs/account/{account_id} [get]
func (h *LogHandler) GetLogsByAccount(c *gin.Context) {
	accountID, err := primitive.ObjectIDFromHex(c.Param("account_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid account ID"})
		return
	}
	page, limit := pagination(c)
	logs, err := h.logService.GetLogsByAccountID(c.Request.Context(), accountID, page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve logs"})
		return
	}
	c.JSON(http.StatusOK, logs)
}
