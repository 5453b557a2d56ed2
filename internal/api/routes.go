package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/bms-bridge/internal/api/middleware"
	"github.com/taoyao-code/bms-bridge/internal/session"
	"github.com/taoyao-code/bms-bridge/internal/storage"
	pgstorage "github.com/taoyao-code/bms-bridge/internal/storage/pg"
)

// RegisterRoutes 注册电池API路由
func RegisterRoutes(
	r *gin.Engine,
	mgr *session.Manager,
	repo storage.Repo,
	history *pgstorage.MeasurementWriter,
	authCfg middleware.AuthConfig,
	logger *zap.Logger,
) {
	if r == nil || mgr == nil {
		return
	}

	handler := NewHandler(mgr, repo, history, logger)

	api := r.Group("/api")
	if authCfg.Enabled {
		api.Use(middleware.APIKeyAuth(authCfg, logger))
		logger.Info("api authentication enabled", zap.Int("api_keys_count", len(authCfg.APIKeys)))
	} else {
		logger.Warn("api authentication disabled - only for development!")
	}

	api.GET("/fields", handler.ListFields)
	api.GET("/batteries", handler.ListBatteries)
	api.GET("/batteries/:id/values", handler.GetValues)
	api.GET("/batteries/:id/writes", handler.ListWrites)
	api.POST("/batteries/:id/fields/:key/read", handler.TriggerRead)
	api.PUT("/batteries/:id/fields/:key", handler.WriteField)
	api.GET("/batteries/:id/fields/:key/history", handler.GetHistory)

	logger.Info("battery api routes registered", zap.Int("endpoints", 7))
}
