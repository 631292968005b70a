package routes

import (
	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"

	"github.com/vaultsweep/vaultsweep/internal/api/handlers"
	"github.com/vaultsweep/vaultsweep/internal/api/middleware"
	"github.com/vaultsweep/vaultsweep/internal/config"
	"github.com/vaultsweep/vaultsweep/internal/db"
	"github.com/vaultsweep/vaultsweep/internal/kms"
	"github.com/vaultsweep/vaultsweep/internal/policy"
	"github.com/vaultsweep/vaultsweep/internal/retention"
)

func Register(e *echo.Echo, db *db.DB, kms *kms.Encryptor, jwtCfg config.JWTConfig, queue *asynq.Client, engine *retention.Engine, table policy.Table) {
	h := handlers.NewHandlers(db, kms, queue, engine, table, jwtCfg)

	// Public — self-registration only; profile reads require auth (own-record only).
	e.POST("/users", h.CreateUser)

	// API-key protected
	api := e.Group("/api/v1")
	api.Use(middleware.APIKeyAuth(db))

	api.GET("/users/:id", h.GetUser) // own record only
	api.PUT("/users/storage-creds", h.UpdateStorageCreds)
	api.POST("/auth/token", h.IssueToken)

	api.POST("/api-keys", h.CreateAPIKey)
	api.GET("/api-keys", h.ListAPIKeys)
	api.DELETE("/api-keys/:key_id", h.RevokeAPIKey)

	api.GET("/policies", h.Policies)
	api.POST("/prune/:category", h.TriggerPrune)
	api.GET("/stats", h.Stats)
	api.GET("/snapshots/:category", h.SnapshotInventory)
	api.GET("/runs", h.ListRuns)
	api.GET("/runs/:run_id", h.GetRun)

	// JWT protected (dashboard / internal)
	dash := e.Group("/dashboard")
	dash.Use(middleware.JWTAuth(jwtCfg.Secret))

	dash.GET("/users/:id", h.GetUser) // own record only

	dash.GET("/policies", h.Policies)
	dash.POST("/prune/:category", h.TriggerPrune)
	dash.GET("/stats", h.Stats)
	dash.GET("/snapshots/:category", h.SnapshotInventory)
	dash.GET("/runs", h.ListRuns)
	dash.GET("/runs/:run_id", h.GetRun)
}
