package handlers

import (
	"net/http"
	"strings"

	"github.com/tubelens/tubelens/internal/gateway"

	"github.com/gin-gonic/gin"
)

// OptimizeHandler serves AI metadata optimization through the OpenAI gateway.
type OptimizeHandler struct {
	openai *gateway.OpenAIGateway
}

// NewOptimizeHandler constructs an OptimizeHandler.
func NewOptimizeHandler(openai *gateway.OpenAIGateway) *OptimizeHandler {
	return &OptimizeHandler{openai: openai}
}

// optimizeRequest defines the request body for optimization.
type optimizeRequest struct {
	Kind        string `json:"kind"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Optimize generates an improved title, description, or tag set for a video.
func (h *OptimizeHandler) Optimize(c *gin.Context) {
	ownerID := getOwnerID(c)
	if ownerID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var body optimizeRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(body.Title) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing title"})
		return
	}

	ctx := c.Request.Context()
	switch strings.TrimSpace(body.Kind) {
	case "title":
		title, errOptimize := h.openai.OptimizeTitle(ctx, ownerID, body.Title, body.Description)
		if errOptimize != nil {
			respondGatewayError(c, errOptimize)
			return
		}
		c.JSON(http.StatusOK, gin.H{"kind": "title", "result": title})
	case "description":
		description, errOptimize := h.openai.OptimizeDescription(ctx, ownerID, body.Title, body.Description)
		if errOptimize != nil {
			respondGatewayError(c, errOptimize)
			return
		}
		c.JSON(http.StatusOK, gin.H{"kind": "description", "result": description})
	case "tags":
		tags, errOptimize := h.openai.SuggestTags(ctx, ownerID, body.Title, body.Description)
		if errOptimize != nil {
			respondGatewayError(c, errOptimize)
			return
		}
		c.JSON(http.StatusOK, gin.H{"kind": "tags", "tags": tags})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid kind"})
	}
}
