package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/salesdesk/backend/internal/application/services"
	"github.com/salesdesk/backend/internal/interfaces/middleware"
)

// SetupRouter builds the gin engine with all API routes registered.
func SetupRouter(svcMgr *services.ServiceManager) *gin.Engine {
	router := gin.Default()

	router.Use(middleware.Cors())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authHandler := NewAuthHandler(svcMgr.Auth)
	rowHandler := NewRowHandler(svcMgr.Rows, svcMgr.Query, svcMgr.Locks, svcMgr.Import, svcMgr.Activity)
	schemaHandler := NewSchemaHandler(svcMgr.Schema)

	api := router.Group("/api")
	{
		api.POST("/auth/login", authHandler.Login)
	}

	protected := api.Group("")
	protected.Use(middleware.RequireAuth(svcMgr.Auth))
	{
		rows := protected.Group("/rows")
		{
			rows.GET("", rowHandler.List)
			rows.POST("", rowHandler.Create)
			rows.POST("/bulk-update", rowHandler.BulkUpdate)
			rows.POST("/bulk-delete", rowHandler.BulkDelete)
			rows.POST("/import", rowHandler.Import)
			rows.GET("/:id", rowHandler.Get)
			rows.PATCH("/:id", rowHandler.Update)
			rows.DELETE("/:id", rowHandler.Delete)
			rows.POST("/:id/restore", rowHandler.Restore)
			rows.POST("/:id/lock", rowHandler.Lock)
			rows.POST("/:id/unlock", rowHandler.Unlock)
			rows.GET("/:id/lock", rowHandler.LockState)
			rows.GET("/:id/activity", rowHandler.Activity)
			rows.DELETE("/:id/purge", middleware.RequireAdmin(), rowHandler.Purge)
		}

		columns := protected.Group("/columns")
		{
			columns.GET("", schemaHandler.ListColumns)
			columns.POST("", schemaHandler.CreateColumn)
			columns.PUT("/:id", schemaHandler.UpdateColumn)
			columns.DELETE("/:id", schemaHandler.DeleteColumn)
		}

		dropdowns := protected.Group("/dropdowns")
		{
			dropdowns.GET("/scopes", schemaHandler.ListScopes)
			dropdowns.GET("/:scope/options", schemaHandler.ListOptions)
			dropdowns.POST("/:scope/options", schemaHandler.CreateOption)
			dropdowns.PUT("/options/:id", schemaHandler.UpdateOption)
			dropdowns.DELETE("/options/:id", schemaHandler.DeleteOption)
		}
	}

	return router
}
