package routes

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"maintenance-query-agent/internal/store"
	"maintenance-query-agent/internal/vectorindex"
	"maintenance-query-agent/models"
	"maintenance-query-agent/utils"
)

func SetupPublicRoutes(router *gin.Engine, st *store.Store, index *vectorindex.Index) {
	// Health endpoint
	router.GET("/health", func(c *gin.Context) {
		dbStatus := "ok"
		status := "ok"
		if err := st.Ping(c.Request.Context()); err != nil {
			dbStatus = "unavailable"
			status = "degraded"
		}

		code := http.StatusOK
		if status != "ok" {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":           status,
			"database":         dbStatus,
			"embeddings_count": index.Size(),
			"checked_at":       time.Now().UTC(),
		})
	})

	// Chat history, newest first
	router.GET("/history", func(c *gin.Context) {
		limit := 20
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				utils.RespondWithBadRequest(c, "limit must be a positive integer", nil)
				return
			}
			limit = n
		}

		records, err := st.ListHistory(c.Request.Context(), limit)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to load history", nil)
			return
		}

		summaries := make([]models.HistorySummary, 0, len(records))
		for _, rec := range records {
			summaries = append(summaries, models.HistorySummary{
				ID:        rec.ID,
				Query:     rec.Query,
				CreatedAt: rec.CreatedAt,
			})
		}
		c.JSON(http.StatusOK, summaries)
	})

	router.DELETE("/history/clear", func(c *gin.Context) {
		if err := st.ClearHistory(c.Request.Context()); err != nil {
			utils.RespondWithInternalError(c, "Failed to clear history", nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "History cleared"})
	})

	router.DELETE("/history/:id", func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			utils.RespondWithBadRequest(c, "Invalid history ID", nil)
			return
		}

		deleted, err := st.DeleteHistory(c.Request.Context(), id)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to delete history record", nil)
			return
		}
		if !deleted {
			utils.RespondWithNotFound(c, "History record not found")
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "History record deleted"})
	})

	// Uploaded documents and their ingestion status
	router.GET("/sources", func(c *gin.Context) {
		docs, err := st.ListDocuments(c.Request.Context())
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to load documents", nil)
			return
		}
		c.JSON(http.StatusOK, docs)
	})
}
