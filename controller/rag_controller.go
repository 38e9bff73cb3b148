package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github/itish2003/medchat/models"
	"github/itish2003/medchat/services"
)

// RAGController handles the HTTP requests for the chat page. It depends on
// the RAGService to perform the actual retrieval and generation.
type RAGController struct {
	ragService services.RAGService
	log        *zap.Logger
}

// NewRAGController is called from main.go to inject the service dependency.
func NewRAGController(service services.RAGService, log *zap.Logger) *RAGController {
	return &RAGController{
		ragService: service,
		log:        log,
	}
}

// Index is the Gin handler for GET /. It serves the static chat page.
func (c *RAGController) Index(ctx *gin.Context) {
	ctx.HTML(http.StatusOK, "chat.html", nil)
}

// Chat is the Gin handler for POST /get. The answer is returned as plain
// text; a generation failure is still a 200 with the error description.
func (c *RAGController) Chat(ctx *gin.Context) {
	var req models.ChatRequest
	if err := ctx.ShouldBind(&req); err != nil {
		ctx.String(http.StatusBadRequest, "No message provided")
		return
	}

	answer, err := c.ragService.Answer(ctx.Request.Context(), req.Msg)
	if errors.Is(err, services.ErrEmptyQuery) {
		ctx.String(http.StatusBadRequest, "No message provided")
		return
	}
	if err != nil {
		c.log.Error("failed to answer question", zap.Error(err), zap.String("request_id", RequestID(ctx)))
		ctx.String(http.StatusInternalServerError, "Failed to retrieve context")
		return
	}

	ctx.String(http.StatusOK, answer)
}

// Health is the Gin handler for GET /health.
func (c *RAGController) Health(ctx *gin.Context) {
	chunks, err := c.ragService.GetTotalChunks(ctx.Request.Context())
	if err != nil {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "medchat",
		"chunks":  chunks,
	})
}
