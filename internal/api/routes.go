package api

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/mehrbod2002/mtdesk/interfaces"
	"github.com/mehrbod2002/mtdesk/internal/config"
	"github.com/mehrbod2002/mtdesk/internal/middleware"
	"github.com/mehrbod2002/mtdesk/internal/service"
	"github.com/mehrbod2002/mtdesk/internal/ws"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func SetupRoutes(r *gin.Engine, cfg *config.Config, accountService interfaces.AccountService, logService service.LogService, wsHandler *ws.WebSocketHandler, broadcaster interfaces.AccountStatusBroadcaster) {
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
		AllowCredentials: true,
	}))

	accountHandler := NewAccountHandler(accountService)
	logHandler := NewLogHandler(logService)

	swaggerJSONPath := "docs/swagger.json"
	if wd, err := os.Getwd(); err == nil {
		swaggerJSONPath = filepath.Join(wd, "docs", "swagger.json")
	}
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/docs/swagger.json")))
	r.GET("/docs/swagger.json", func(c *gin.Context) {
		if _, err := os.Stat(swaggerJSONPath); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "swagger.json not generated"})
			return
		}
		c.File(swaggerJSONPath)
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "ws_clients": broadcaster.ClientCount()})
	})

	v1 := r.Group("/api/v1")
	{
		user := v1.Group("/").Use(middleware.UserAuthMiddleware(cfg))
		{
			user.POST("/accounts", accountHandler.AddAccount)
			user.GET("/accounts", accountHandler.ListAccounts)
			user.GET("/accounts/:accountNumber", accountHandler.GetAccount)
			user.GET("/accounts/:accountNumber/positions", accountHandler.GetPositions)
			user.GET("/accounts/:accountNumber/closed-orders", accountHandler.GetClosedOrders)
			user.GET("/accounts/:accountNumber/orders", accountHandler.GetOrderHistory)
			user.POST("/accounts/:accountNumber/sync", accountHandler.SyncAccount)
			user.PUT("/accounts/:accountNumber/status", accountHandler.UpdateConnectionStatus)
			user.DELETE("/accounts/:accountNumber", accountHandler.DeleteAccount)
		}

		admin := v1.Group("/admin").Use(middleware.AdminAuthMiddleware(cfg))
		{
			admin.GET("/logs", logHandler.GetAllLogs)
			admin.GET("/logs/user/:user_id", logHandler.GetLogsByUser)
			admin.GET("/logs/account/:account_id", logHandler.GetLogsByAccount)
		}
	}

	r.GET("/ws", middleware.UserAuthMiddleware(cfg), wsHandler.HandleConnection)
}
