package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/mehrbod2002/mtdesk/interfaces"
	"github.com/mehrbod2002/mtdesk/internal/mtapi"
	"github.com/mehrbod2002/mtdesk/internal/service"

	"github.com/gin-gonic/gin"
	logger "github.com/sirupsen/logrus"
)

type AccountHandler struct {
	accountService interfaces.AccountService
}

func NewAccountHandler(accountService interfaces.AccountService) *AccountHandler {
	return &AccountHandler{accountService: accountService}
}

// respondError maps core errors to HTTP responses. Connection failures carry
// the last known account state.
func respondError(c *gin.Context, err error) {
	var connErr *service.ConnectionError
	switch {
	case errors.As(err, &connErr):
		if errors.Is(err, service.ErrSessionNotPersisted) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save the new trading session"})
			return
		}
		message := "Failed to connect to trading account"
		if errors.Is(err, service.ErrNeverConnected) {
			message = "Trading account has never been connected. Please add it again."
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"error":      message,
			"details":    mtapi.Message(connErr.Err),
			"connection": connErr.Result,
			"account":    connErr.Account,
			"cached":     true,
		})
	case errors.Is(err, service.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrAccountExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrAccountNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Trading account not found"})
	case mtapi.KindOf(err) != 0:
		c.JSON(http.StatusBadGateway, gin.H{"error": "Trading bridge request failed", "details": mtapi.Message(err)})
	default:
		logger.WithField("path", c.FullPath()).WithError(err).Error("account request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

// @Summary Add trading account
// @Description Connects a MetaTrader account through the bridge and stores it
// @Tags Accounts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param account body service.AddAccountRequest true "Account credentials"
// @Success 201 {object} service.AccountView
// @Failure 400 {object} map[string]string "Invalid request or connection failed"
// @Failure 409 {object} map[string]string "Account already added"
// @Router /accounts [post]
func (h *AccountHandler) AddAccount(c *gin.Context) {
	var req service.AddAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "All fields are required: accountNumber, serverName, platform, password"})
		return
	}

	view, err := h.accountService.AddAccount(c.Request.Context(), c.GetString("user_id"), req, c.ClientIP())
	if err != nil {
		if mtapi.KindOf(err) != 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Failed to connect account. Please check your credentials.",
				"details": mtapi.Message(err),
			})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

// @Summary List trading accounts
// @Description Lists the user's active accounts, optionally checking every bridge session
// @Tags Accounts
// @Produce json
// @Security BearerAuth
// @Param live query bool false "Check connections before returning"
// @Success 200 {array} service.AccountView
// @Router /accounts [get]
func (h *AccountHandler) ListAccounts(c *gin.Context) {
	live, _ := strconv.ParseBool(c.DefaultQuery("live", "false"))
	views, err := h.accountService.ListAccounts(c.Request.Context(), c.GetString("user_id"), live)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, views)
}

// @Summary Get trading account
// @Description Ensures the bridge session and returns the refreshed account summary
// @Tags Accounts
// @Produce json
// @Security BearerAuth
// @Param accountNumber path string true "Account number"
// @Success 200 {object} service.AccountView
// @Failure 400 {object} map[string]interface{} "Connection failed, cached data attached"
// @Failure 404 {object} map[string]string "Account not found"
// @Router /accounts/{accountNumber} [get]
func (h *AccountHandler) GetAccount(c *gin.Context) {
	view, err := h.accountService.GetAccount(c.Request.Context(), c.GetString("user_id"), c.Param("accountNumber"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// @Summary Open positions
// @Tags Accounts
// @Produce json
// @Security BearerAuth
// @Param accountNumber path string true "Account number"
// @Success 200 {array} models.Position
// @Router /accounts/{accountNumber}/positions [get]
func (h *AccountHandler) GetPositions(c *gin.Context) {
	positions, err := h.accountService.OpenPositions(c.Request.Context(), c.GetString("user_id"), c.Param("accountNumber"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": positions, "count": len(positions)})
}

// @Summary Closed orders
// @Tags Accounts
// @Produce json
// @Security BearerAuth
// @Param accountNumber path string true "Account number"
// @Success 200 {array} models.Order
// @Router /accounts/{accountNumber}/closed-orders [get]
func (h *AccountHandler) GetClosedOrders(c *gin.Context) {
	orders, err := h.accountService.ClosedOrders(c.Request.Context(), c.GetString("user_id"), c.Param("accountNumber"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders, "count": len(orders)})
}

// @Summary Order history
// @Description Syncs and returns the order history of the last days
// @Tags Accounts
// @Produce json
// @Security BearerAuth
// @Param accountNumber path string true "Account number"
// @Param days query int false "Window in days"
// @Success 200 {object} service.HistoryResult
// @Router /accounts/{accountNumber}/orders [get]
func (h *AccountHandler) GetOrderHistory(c *gin.Context) {
	days := 0
	if raw := c.Query("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "days must be a positive integer"})
			return
		}
		days = n
	}

	history, err := h.accountService.OrderHistory(c.Request.Context(), c.GetString("user_id"), c.Param("accountNumber"), days)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}

// @Summary Sync account
// @Description Refreshes the summary and recent history together
// @Tags Accounts
// @Produce json
// @Security BearerAuth
// @Param accountNumber path string true "Account number"
// @Success 200 {object} service.SyncResult
// @Router /accounts/{accountNumber}/sync [post]
func (h *AccountHandler) SyncAccount(c *gin.Context) {
	res, err := h.accountService.Sync(c.Request.Context(), c.GetString("user_id"), c.Param("accountNumber"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// @Summary Check connection
// @Description Ensures the bridge session and reports whether it was recovered
// @Tags Accounts
// @Produce json
// @Security BearerAuth
// @Param accountNumber path string true "Account number"
// @Success 200 {object} service.AccountView
// @Router /accounts/{accountNumber}/status [put]
func (h *AccountHandler) UpdateConnectionStatus(c *gin.Context) {
	view, err := h.accountService.ConnectionStatus(c.Request.Context(), c.GetString("user_id"), c.Param("accountNumber"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"account":     view.Account,
		"connected":   view.Connection.Connected,
		"reconnected": view.Connection.SessionChanged,
		"status":      view.Connection.Status,
	})
}

// @Summary Delete trading account
// @Tags Accounts
// @Produce json
// @Security BearerAuth
// @Param accountNumber path string true "Account number"
// @Success 200 {object} map[string]string "Account deleted"
// @Failure 404 {object} map[string]string "Account not found"
// @Router /accounts/{accountNumber} [delete]
func (h *AccountHandler) DeleteAccount(c *gin.Context) {
	if err := h.accountService.DeleteAccount(c.Request.Context(), c.GetString("user_id"), c.Param("accountNumber"), c.ClientIP()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Trading account deleted"})
}
