package routes

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"maintenance-query-agent/internal/ai"
	"maintenance-query-agent/internal/auth"
	"maintenance-query-agent/internal/config"
	"maintenance-query-agent/internal/logger"
	"maintenance-query-agent/internal/store"
	"maintenance-query-agent/middleware"
	"maintenance-query-agent/models"
	"maintenance-query-agent/services"
	"maintenance-query-agent/utils"
)

func SetupAdminRoutes(
	router *gin.Engine,
	cfg *config.Config,
	st *store.Store,
	tokens *auth.TokenService,
	authMW *middleware.AuthMiddleware,
	pipeline *services.Pipeline,
	export *services.ExportService,
) {
	admin := router.Group("/admin")

	// Login endpoint. The response is deliberately identical for unknown
	// usernames and wrong passwords.
	admin.POST("/login", func(c *gin.Context) {
		var req models.LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		user, err := st.GetAdminUser(c.Request.Context(), req.Username)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				logger.Error("Admin lookup failed", "error", err)
			}
			utils.RespondWithUnauthorized(c, "Invalid username or password")
			return
		}

		if !utils.CheckPassword(req.Password, user.PasswordHash) {
			utils.RespondWithUnauthorized(c, "Invalid username or password")
			return
		}

		token, err := tokens.Issue(c.Request.Context(), user.Username)
		if err != nil {
			logger.Error("Failed to issue token", "error", err)
			utils.RespondWithInternalError(c, "Failed to generate token", nil)
			return
		}

		c.JSON(http.StatusOK, models.LoginResponse{
			Token:              token,
			Username:           user.Username,
			MustChangePassword: user.MustChangePassword,
		})
	})

	protected := admin.Group("")
	protected.Use(authMW.RequireAuth())

	protected.POST("/change-password", func(c *gin.Context) {
		var req models.ChangePasswordRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		// Validate the new password before touching anything.
		if err := utils.ValidatePasswordStrength(req.NewPassword); err != nil {
			utils.RespondWithBadRequest(c, err.Error(), nil)
			return
		}

		username := middleware.GetUsername(c)
		user, err := st.GetAdminUser(c.Request.Context(), username)
		if err != nil {
			logger.Error("Admin lookup failed", "error", err)
			utils.RespondWithInternalError(c, "Failed to load account", nil)
			return
		}

		if !utils.CheckPassword(req.CurrentPassword, user.PasswordHash) {
			utils.RespondWithUnauthorized(c, "Current password is incorrect")
			return
		}

		newHash, err := utils.HashPassword(req.NewPassword, cfg.BcryptCost)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to process password", nil)
			return
		}

		if err := st.UpdateAdminPassword(c.Request.Context(), username, newHash); err != nil {
			logger.Error("Failed to update password", "error", err)
			utils.RespondWithInternalError(c, "Failed to update password", nil)
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "Password updated successfully"})
	})

	protected.POST("/upload", func(c *gin.Context) {
		if err := c.Request.ParseMultipartForm(cfg.MaxFileSize); err != nil {
			utils.RespondWithError(c, http.StatusBadRequest, "file_too_large",
				"File size exceeds maximum limit", nil)
			return
		}

		file, header, err := c.Request.FormFile("file")
		if err != nil {
			utils.RespondWithError(c, http.StatusBadRequest, "no_file",
				"No file provided", nil)
			return
		}
		defer file.Close()

		filename := utils.SanitizeFilename(header.Filename)
		if filename == "" {
			utils.RespondWithBadRequest(c, "Invalid filename", nil)
			return
		}

		if !utils.ValidFileType(filename, cfg.AllowedExts) {
			utils.RespondWithError(c, http.StatusBadRequest, "invalid_file_type",
				fmt.Sprintf("Only %v files are allowed", cfg.AllowedExts), nil)
			return
		}

		if header.Size > cfg.MaxFileSize {
			utils.RespondWithError(c, http.StatusBadRequest, "file_too_large",
				"File size exceeds maximum limit", nil)
			return
		}

		// Spool to disk so the extractors can work from a path.
		uploadDir := filepath.Join(cfg.DataDir, "uploads")
		if err := os.MkdirAll(uploadDir, 0o755); err != nil {
			utils.RespondWithInternalError(c, "Failed to create upload directory", nil)
			return
		}
		tmpPath := filepath.Join(uploadDir, uuid.NewString()+filepath.Ext(filename))
		dst, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to save file", nil)
			return
		}
		if _, err := io.Copy(dst, io.LimitReader(file, cfg.MaxFileSize)); err != nil {
			dst.Close()
			os.Remove(tmpPath)
			utils.RespondWithInternalError(c, "Failed to save file", nil)
			return
		}
		dst.Close()
		defer os.Remove(tmpPath)

		text, err := services.ExtractText(tmpPath)
		if err != nil {
			logger.Error("Text extraction failed", "filename", filename, "error", err)
			switch {
			case errors.Is(err, services.ErrUnsupportedFileType):
				utils.RespondWithError(c, http.StatusBadRequest, "invalid_file_type",
					"Unsupported file type", nil)
			case errors.Is(err, services.ErrNoTextExtracted):
				utils.RespondWithError(c, http.StatusBadRequest, "no_text",
					"No text could be extracted from the file", nil)
			default:
				utils.RespondWithError(c, http.StatusBadRequest, "extraction_failed",
					"Failed to extract text from the file", nil)
			}
			return
		}

		documentID, err := st.AddDocument(c.Request.Context(), filename)
		if err != nil {
			logger.Error("Failed to record document", "error", err)
			utils.RespondWithInternalError(c, "Failed to record document", nil)
			return
		}

		start := time.Now()
		chunks, err := pipeline.Ingest(c.Request.Context(), documentID, text)
		if err != nil {
			logger.Error("Document ingestion failed", "document_id", documentID, "error", err)
			if errors.Is(err, ai.ErrEmbeddingUnavailable) {
				utils.RespondWithUpstreamError(c, "embedding_unavailable",
					"Embedding service is temporarily unavailable")
				return
			}
			utils.RespondWithInternalError(c, "Failed to process document", nil)
			return
		}

		logger.Info("Document ingested",
			"document_id", documentID,
			"filename", filename,
			"chunks", chunks,
			"duration", time.Since(start).String())

		c.JSON(http.StatusOK, models.UploadResponse{
			Message:         "Document processed successfully",
			Filename:        filename,
			ChunksProcessed: chunks,
			TotalChunks:     chunks,
		})
	})

	protected.POST("/logout", func(c *gin.Context) {
		if err := tokens.Revoke(c.Request.Context(), middleware.GetTokenID(c)); err != nil {
			logger.Error("Failed to revoke session", "error", err)
			utils.RespondWithInternalError(c, "Failed to log out", nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
	})

	protected.GET("/export/history", func(c *gin.Context) {
		data, err := export.ExportHistoryExcel(c.Request.Context())
		if err != nil {
			logger.Error("History export failed", "error", err)
			utils.RespondWithInternalError(c, "Failed to export history", nil)
			return
		}

		filename := fmt.Sprintf("chat_history_%s.xlsx", time.Now().UTC().Format("20060102_150405"))
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
		c.Data(http.StatusOK,
			"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
	})
}
