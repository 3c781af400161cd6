package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/tubelens/tubelens/internal/models"
	"github.com/tubelens/tubelens/internal/store"
	"github.com/tubelens/tubelens/internal/util"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// CredentialHandler handles credential management endpoints. These are
// administrative: they go straight to the store and never touch selection or
// usage recording.
type CredentialHandler struct {
	db    *gorm.DB
	store *store.CredentialStore
}

// NewCredentialHandler constructs a CredentialHandler.
func NewCredentialHandler(db *gorm.DB, credStore *store.CredentialStore) *CredentialHandler {
	return &CredentialHandler{db: db, store: credStore}
}

// listCredentialsQuery defines query parameters for listing credentials.
type listCredentialsQuery struct {
	Provider string `form:"provider"`
	Search   string `form:"search"`
}

// List returns the owner's credentials with masked secrets.
func (h *CredentialHandler) List(c *gin.Context) {
	ownerID := getOwnerID(c)
	if ownerID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var q listCredentialsQuery
	if errBind := c.ShouldBindQuery(&q); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query"})
		return
	}
	providerType := models.ProviderType(strings.TrimSpace(q.Provider))
	if providerType != "" && !providerType.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid provider"})
		return
	}

	rows, errList := h.store.ListByOwner(c.Request.Context(), ownerID, providerType, q.Search)
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list credentials failed"})
		return
	}

	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, serializeCredential(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{
		"credentials": out,
		"total":       len(out),
	})
}

// serializeCredential converts a credential to a display payload. The secret
// is always masked here; the full value is only ever returned once, from
// Create and Rotate.
func serializeCredential(row *models.Credential) gin.H {
	return gin.H{
		"id":            row.ID,
		"provider_type": row.ProviderType,
		"display_name":  row.DisplayName,
		"secret_masked": util.HideAPIKey(row.SecretValue),
		"is_active":     row.IsActive,
		"quota_limit":   row.QuotaLimit,
		"quota_used":    row.QuotaUsed,
		"status":        row.Status(),
		"last_used_at":  row.LastUsedAt,
		"created_at":    row.CreatedAt,
		"updated_at":    row.UpdatedAt,
	}
}

// createCredentialRequest defines the request body for registering a
// credential.
type createCredentialRequest struct {
	ProviderType string `json:"provider_type"`
	DisplayName  string `json:"display_name"`
	SecretValue  string `json:"secret_value"`
	QuotaLimit   int64  `json:"quota_limit"`
	IsActive     *bool  `json:"is_active"`
}

// Create registers a new credential for the owner.
func (h *CredentialHandler) Create(c *gin.Context) {
	ownerID := getOwnerID(c)
	if ownerID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var body createCredentialRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	providerType := models.ProviderType(strings.TrimSpace(body.ProviderType))
	if !providerType.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid provider"})
		return
	}
	if strings.TrimSpace(body.DisplayName) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing display name"})
		return
	}
	if strings.TrimSpace(body.SecretValue) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing secret value"})
		return
	}
	if body.QuotaLimit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "negative quota limit"})
		return
	}

	row, errCreate := h.store.Create(c.Request.Context(), store.CreateParams{
		OwnerID:      ownerID,
		ProviderType: providerType,
		DisplayName:  body.DisplayName,
		SecretValue:  strings.TrimSpace(body.SecretValue),
		IsActive:     body.IsActive,
		QuotaLimit:   body.QuotaLimit,
	})
	if errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create credential failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":           row.ID,
		"display_name": row.DisplayName,
		"secret_value": row.SecretValue,
	})
}

// updateCredentialRequest defines the request body for editing a credential.
type updateCredentialRequest struct {
	DisplayName *string `json:"display_name"`
	IsActive    *bool   `json:"is_active"`
	QuotaLimit  *int64  `json:"quota_limit"`
}

// Update edits credential metadata, activation, or quota ceiling.
func (h *CredentialHandler) Update(c *gin.Context) {
	ownerID := getOwnerID(c)
	if ownerID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var body updateCredentialRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	updates := map[string]any{}
	if body.DisplayName != nil {
		name := strings.TrimSpace(*body.DisplayName)
		if name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "empty display name"})
			return
		}
		updates["display_name"] = name
	}
	if body.IsActive != nil {
		updates["is_active"] = *body.IsActive
	}
	if body.QuotaLimit != nil {
		if *body.QuotaLimit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "negative quota limit"})
			return
		}
		updates["quota_limit"] = *body.QuotaLimit
	}
	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no fields to update"})
		return
	}

	if !h.ownsCredential(c, ownerID, id) {
		return
	}
	row, errUpdate := h.store.Update(c.Request.Context(), id, updates)
	if errUpdate != nil {
		notFoundOr500(c, errUpdate, "update")
		return
	}
	c.JSON(http.StatusOK, serializeCredential(row))
}

// rotateCredentialRequest defines the request body for secret rotation.
type rotateCredentialRequest struct {
	SecretValue string `json:"secret_value"`
}

// Rotate replaces the credential's secret value only.
func (h *CredentialHandler) Rotate(c *gin.Context) {
	ownerID := getOwnerID(c)
	if ownerID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var body rotateCredentialRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	secret := strings.TrimSpace(body.SecretValue)
	if secret == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing secret value"})
		return
	}

	if !h.ownsCredential(c, ownerID, id) {
		return
	}
	row, errUpdate := h.store.Update(c.Request.Context(), id, map[string]any{"secret_value": secret})
	if errUpdate != nil {
		notFoundOr500(c, errUpdate, "rotate")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":           row.ID,
		"secret_value": row.SecretValue,
	})
}

// Delete removes a credential permanently.
func (h *CredentialHandler) Delete(c *gin.Context) {
	ownerID := getOwnerID(c)
	if ownerID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	if !h.ownsCredential(c, ownerID, id) {
		return
	}
	if errDelete := h.store.Delete(c.Request.Context(), id); errDelete != nil {
		notFoundOr500(c, errDelete, "delete")
		return
	}
	c.Status(http.StatusNoContent)
}

// Stats returns 30-day usage aggregates for one credential.
func (h *CredentialHandler) Stats(c *gin.Context) {
	ownerID := getOwnerID(c)
	if ownerID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	if !h.ownsCredential(c, ownerID, id) {
		return
	}

	ctx := c.Request.Context()
	thirtyDaysAgo := time.Now().UTC().AddDate(0, 0, -30)

	// summary aggregates the credential's recent usage events.
	var summary struct {
		TotalUnits  int64 `gorm:"column:total_units"`
		TotalCalls  int64 `gorm:"column:total_calls"`
		FailedCalls int64 `gorm:"column:failed_calls"`
	}
	if errSummary := h.db.WithContext(ctx).
		Model(&models.UsageEvent{}).
		Select(`
			COALESCE(SUM(units), 0) AS total_units,
			COUNT(*) AS total_calls,
			COALESCE(SUM(CASE WHEN failed THEN 1 ELSE 0 END), 0) AS failed_calls
		`).
		Where("credential_id = ? AND owner_id = ? AND requested_at >= ?", id, ownerID, thirtyDaysAgo).
		Scan(&summary).Error; errSummary != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stats failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"credential_id":    id,
		"total_units_30d":  summary.TotalUnits,
		"total_calls_30d":  summary.TotalCalls,
		"failed_calls_30d": summary.FailedCalls,
	})
}

// ownsCredential verifies the credential belongs to the owner, responding
// with the appropriate status when it does not.
func (h *CredentialHandler) ownsCredential(c *gin.Context, ownerID, id uint64) bool {
	row, errGet := h.store.GetByID(c.Request.Context(), id)
	if errGet != nil {
		notFoundOr500(c, errGet, "lookup")
		return false
	}
	if row.OwnerID != ownerID {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return false
	}
	return true
}
