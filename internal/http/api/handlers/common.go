package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/tubelens/tubelens/internal/gateway"
	"github.com/tubelens/tubelens/internal/rotation"
	"github.com/tubelens/tubelens/internal/store"

	"github.com/gin-gonic/gin"
)

// ownerIDHeader carries the authenticated owner's id, set by the session
// layer in front of this API.
const ownerIDHeader = "X-Owner-ID"

// getOwnerID extracts the owner id from the request, zero when absent.
func getOwnerID(c *gin.Context) uint64 {
	raw := strings.TrimSpace(c.GetHeader(ownerIDHeader))
	if raw == "" {
		return 0
	}
	ownerID, errParse := strconv.ParseUint(raw, 10, 64)
	if errParse != nil {
		return 0
	}
	return ownerID
}

// respondGatewayError maps core error classes onto HTTP statuses: missing
// configuration is the caller's problem to fix, provider failures are a bad
// gateway, anything else is the storage layer being unavailable.
func respondGatewayError(c *gin.Context, err error) {
	if errors.Is(err, rotation.ErrNotConfigured) {
		c.JSON(http.StatusFailedDependency, gin.H{"error": "integration not configured"})
		return
	}
	var remoteErr *gateway.RemoteError
	if errors.As(err, &remoteErr) {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":    "provider call failed",
			"provider": remoteErr.Provider,
			"status":   remoteErr.StatusCode,
		})
		return
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service unavailable"})
}

// parseIDParam parses the :id path parameter.
func parseIDParam(c *gin.Context) (uint64, bool) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

// notFoundOr500 maps a store error onto 404 or 500.
func notFoundOr500(c *gin.Context, err error, action string) {
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": action + " failed"})
}
