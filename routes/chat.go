package routes

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"maintenance-query-agent/internal/ai"
	"maintenance-query-agent/internal/logger"
	"maintenance-query-agent/models"
	"maintenance-query-agent/services"
	"maintenance-query-agent/utils"
)

func SetupChatRoutes(router *gin.Engine, chat *services.ChatService) {
	router.POST("/chat", func(c *gin.Context) {
		var req models.ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		query := strings.TrimSpace(req.Query)
		if query == "" {
			utils.RespondWithBadRequest(c, "Query must not be blank", nil)
			return
		}

		resp, err := chat.Answer(c.Request.Context(), query)
		if err != nil {
			logger.Error("Chat request failed", "error", err)
			switch {
			case errors.Is(err, ai.ErrEmbeddingUnavailable):
				utils.RespondWithUpstreamError(c, "embedding_unavailable", "Embedding service is temporarily unavailable")
			case errors.Is(err, ai.ErrLLMUnavailable):
				utils.RespondWithUpstreamError(c, "llm_unavailable", "Language model is temporarily unavailable")
			default:
				utils.RespondWithInternalError(c, "Failed to answer query", nil)
			}
			return
		}

		c.JSON(http.StatusOK, resp)
	})
}
