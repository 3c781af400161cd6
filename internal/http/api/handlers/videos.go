package handlers

import (
	"net/http"
	"strings"

	"github.com/tubelens/tubelens/internal/gateway"

	"github.com/gin-gonic/gin"
)

// VideoHandler serves channel and video data through the YouTube gateway.
type VideoHandler struct {
	youtube *gateway.YouTubeGateway
}

// NewVideoHandler constructs a VideoHandler.
func NewVideoHandler(youtube *gateway.YouTubeGateway) *VideoHandler {
	return &VideoHandler{youtube: youtube}
}

// listVideosQuery defines query parameters for the video listing.
type listVideosQuery struct {
	ChannelID  string `form:"channel_id"`
	MaxResults int    `form:"max_results,default=25"`
	WithStats  bool   `form:"with_stats"`
}

// List returns the channel's recent videos, optionally joined with
// per-video statistics.
func (h *VideoHandler) List(c *gin.Context) {
	ownerID := getOwnerID(c)
	if ownerID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var q listVideosQuery
	if errBind := c.ShouldBindQuery(&q); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query"})
		return
	}
	if strings.TrimSpace(q.ChannelID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing channel_id"})
		return
	}

	ctx := c.Request.Context()
	videos, errList := h.youtube.ListVideos(ctx, ownerID, q.ChannelID, q.MaxResults)
	if errList != nil {
		respondGatewayError(c, errList)
		return
	}

	out := gin.H{
		"videos": videos,
		"total":  len(videos),
	}
	if q.WithStats && len(videos) > 0 {
		ids := make([]string, 0, len(videos))
		for _, video := range videos {
			ids = append(ids, video.ID)
		}
		stats, errStats := h.youtube.VideoStats(ctx, ownerID, ids)
		if errStats != nil {
			respondGatewayError(c, errStats)
			return
		}
		out["stats"] = stats
	}
	c.JSON(http.StatusOK, out)
}

// Channel returns a channel summary.
func (h *VideoHandler) Channel(c *gin.Context) {
	ownerID := getOwnerID(c)
	if ownerID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	channelID := strings.TrimSpace(c.Query("channel_id"))
	if channelID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing channel_id"})
		return
	}

	channel, errChannel := h.youtube.Channel(c.Request.Context(), ownerID, channelID)
	if errChannel != nil {
		respondGatewayError(c, errChannel)
		return
	}
	c.JSON(http.StatusOK, channel)
}
