package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/mehra/filevault-backend/auth"
	"github.com/mehra/filevault-backend/auth/middleware"
	"github.com/mehra/filevault-backend/config"
	"github.com/mehra/filevault-backend/handlers"
)

func Register(r *gin.Engine, h *handlers.Handler, tokens *auth.Manager, cfg config.Config) {
	authGroup := r.Group("/api/auth")
	authGroup.POST("/register", h.Register)
	authGroup.POST("/login", h.Login)

	fileGroup := r.Group("/api/files")

	// Token-bearing paths stay open; the tokens are the credential.
	fileGroup.GET("/secure/:id",
		h.RateLimit("secure_access", cfg.FileRead, handlers.KeyByIP),
		h.SecureAccess)
	fileGroup.GET("/download/:token",
		h.RateLimit("download_access", cfg.FileRead, handlers.KeyByIP),
		middleware.AuthOptional(tokens),
		h.LegacyDownload)

	fileGroup.Use(middleware.AuthRequired(tokens))

	fileGroup.POST("/upload", h.UploadFile)
	fileGroup.GET("", h.ListFiles)
	fileGroup.PUT("/:id/rename", h.RenameFile)
	fileGroup.DELETE("/:id",
		h.RateLimit("delete", cfg.Delete, handlers.KeyByUser),
		h.DeleteFile)
	fileGroup.POST("/delete",
		h.RateLimit("delete_batch", cfg.DeleteBatch, handlers.KeyByUser),
		h.DeleteFilesBatch)

	fileGroup.POST("/:id/share-url",
		h.RateLimit("issue_url", cfg.IssueURL, handlers.KeyByUser),
		h.IssueShareURL)
	fileGroup.POST("/share-urls",
		h.RateLimit("issue_batch", cfg.IssueBatch, handlers.KeyByUser),
		h.IssueShareURLBatch)
	fileGroup.GET("/:id/share-qr",
		h.RateLimit("issue_url", cfg.IssueURL, handlers.KeyByUser),
		h.ShareQR)

	fileGroup.POST("/:id/revoke", h.RevokeAccess)
	fileGroup.GET("/logs", h.AccessLogs)
	fileGroup.GET("/:id/anomaly", h.AnomalyReport)
}
