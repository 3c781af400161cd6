package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tubelens/tubelens/internal/models"
	"github.com/tubelens/tubelens/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupCredentialRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:handlers_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := conn.AutoMigrate(&models.Credential{}, &models.UsageEvent{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	handler := NewCredentialHandler(conn, store.NewCredentialStore(conn))
	router := gin.New()
	group := router.Group("/api/credentials")
	group.GET("", handler.List)
	group.POST("", handler.Create)
	group.PATCH("/:id", handler.Update)
	group.POST("/:id/rotate", handler.Rotate)
	group.DELETE("/:id", handler.Delete)
	group.GET("/:id/stats", handler.Stats)
	return router, conn
}

func doJSON(t *testing.T, router *gin.Engine, method, path, ownerID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, errMarshal := json.Marshal(body)
		if errMarshal != nil {
			t.Fatalf("marshal body: %v", errMarshal)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if ownerID != "" {
		req.Header.Set("X-Owner-ID", ownerID)
	}
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if errDecode := json.Unmarshal(recorder.Body.Bytes(), &out); errDecode != nil {
		t.Fatalf("decode body %q: %v", recorder.Body.String(), errDecode)
	}
	return out
}

func TestCreateReturnsSecretOnceListMasksIt(t *testing.T) {
	router, _ := setupCredentialRouter(t)

	created := doJSON(t, router, http.MethodPost, "/api/credentials", "1", gin.H{
		"provider_type": "youtube",
		"display_name":  "primary key",
		"secret_value":  "AIzaSyExampleSecretValue",
		"quota_limit":   10000,
	})
	if created.Code != http.StatusCreated {
		t.Fatalf("create status %d: %s", created.Code, created.Body.String())
	}
	createdBody := decodeBody(t, created)
	if createdBody["secret_value"] != "AIzaSyExampleSecretValue" {
		t.Fatalf("create must return the full secret once, got %v", createdBody["secret_value"])
	}

	listed := doJSON(t, router, http.MethodGet, "/api/credentials", "1", nil)
	if listed.Code != http.StatusOK {
		t.Fatalf("list status %d: %s", listed.Code, listed.Body.String())
	}
	listedBody := decodeBody(t, listed)
	rows, ok := listedBody["credentials"].([]any)
	if !ok || len(rows) != 1 {
		t.Fatalf("expected one credential, got %v", listedBody["credentials"])
	}
	row := rows[0].(map[string]any)
	if _, exposed := row["secret_value"]; exposed {
		t.Fatal("list must not expose the raw secret")
	}
	masked, _ := row["secret_masked"].(string)
	if masked == "" || masked == "AIzaSyExampleSecretValue" || !strings.Contains(masked, "...") {
		t.Fatalf("unexpected masked secret %q", masked)
	}
	if row["status"] != "active" {
		t.Fatalf("expected active status, got %v", row["status"])
	}
}

func TestListRequiresOwnerHeader(t *testing.T) {
	router, _ := setupCredentialRouter(t)

	recorder := doJSON(t, router, http.MethodGet, "/api/credentials", "", nil)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
}

func TestCreateRejectsUnknownProvider(t *testing.T) {
	router, _ := setupCredentialRouter(t)

	recorder := doJSON(t, router, http.MethodPost, "/api/credentials", "1", gin.H{
		"provider_type": "bing",
		"display_name":  "x",
		"secret_value":  "s",
	})
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", recorder.Code, recorder.Body.String())
	}
}

func TestUpdateOtherOwnersCredentialIsNotFound(t *testing.T) {
	router, conn := setupCredentialRouter(t)
	row := models.Credential{
		OwnerID: 2, ProviderType: models.ProviderYouTube, DisplayName: "theirs",
		SecretValue: "secret", IsActive: true,
	}
	if errCreate := conn.Create(&row).Error; errCreate != nil {
		t.Fatalf("seed: %v", errCreate)
	}

	recorder := doJSON(t, router, http.MethodPatch, fmt.Sprintf("/api/credentials/%d", row.ID), "1", gin.H{
		"display_name": "mine now",
	})
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", recorder.Code, recorder.Body.String())
	}
}

func TestUpdateQuotaLimitAndDeactivate(t *testing.T) {
	router, conn := setupCredentialRouter(t)
	row := models.Credential{
		OwnerID: 1, ProviderType: models.ProviderOpenAI, DisplayName: "main",
		SecretValue: "sk-secret", IsActive: true, QuotaLimit: 100,
	}
	if errCreate := conn.Create(&row).Error; errCreate != nil {
		t.Fatalf("seed: %v", errCreate)
	}

	isActive := false
	recorder := doJSON(t, router, http.MethodPatch, fmt.Sprintf("/api/credentials/%d", row.ID), "1", gin.H{
		"quota_limit": 500,
		"is_active":   isActive,
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("update status %d: %s", recorder.Code, recorder.Body.String())
	}

	var reloaded models.Credential
	if errFind := conn.First(&reloaded, row.ID).Error; errFind != nil {
		t.Fatalf("reload: %v", errFind)
	}
	if reloaded.QuotaLimit != 500 || reloaded.IsActive {
		t.Fatalf("unexpected state: limit=%d active=%v", reloaded.QuotaLimit, reloaded.IsActive)
	}
}

func TestRotateReplacesSecretOnly(t *testing.T) {
	router, conn := setupCredentialRouter(t)
	row := models.Credential{
		OwnerID: 1, ProviderType: models.ProviderYouTube, DisplayName: "main",
		SecretValue: "old-secret", IsActive: true, QuotaLimit: 100, QuotaUsed: 42,
	}
	if errCreate := conn.Create(&row).Error; errCreate != nil {
		t.Fatalf("seed: %v", errCreate)
	}

	recorder := doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/credentials/%d/rotate", row.ID), "1", gin.H{
		"secret_value": "new-secret-value",
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("rotate status %d: %s", recorder.Code, recorder.Body.String())
	}
	body := decodeBody(t, recorder)
	if body["secret_value"] != "new-secret-value" {
		t.Fatalf("rotate must return the new secret, got %v", body["secret_value"])
	}

	var reloaded models.Credential
	if errFind := conn.First(&reloaded, row.ID).Error; errFind != nil {
		t.Fatalf("reload: %v", errFind)
	}
	if reloaded.SecretValue != "new-secret-value" {
		t.Fatalf("secret not rotated: %q", reloaded.SecretValue)
	}
	if reloaded.QuotaUsed != 42 || reloaded.DisplayName != "main" {
		t.Fatalf("rotation must not touch other fields: %+v", reloaded)
	}
}

func TestDeleteCredential(t *testing.T) {
	router, conn := setupCredentialRouter(t)
	row := models.Credential{
		OwnerID: 1, ProviderType: models.ProviderYouTube, DisplayName: "gone",
		SecretValue: "secret", IsActive: true,
	}
	if errCreate := conn.Create(&row).Error; errCreate != nil {
		t.Fatalf("seed: %v", errCreate)
	}

	recorder := doJSON(t, router, http.MethodDelete, fmt.Sprintf("/api/credentials/%d", row.ID), "1", nil)
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("delete status %d: %s", recorder.Code, recorder.Body.String())
	}

	var count int64
	if errCount := conn.Model(&models.Credential{}).Where("id = ?", row.ID).Count(&count).Error; errCount != nil {
		t.Fatalf("count: %v", errCount)
	}
	if count != 0 {
		t.Fatal("credential still present after delete")
	}
}

func TestStatsAggregatesRecentEvents(t *testing.T) {
	router, conn := setupCredentialRouter(t)
	row := models.Credential{
		OwnerID: 1, ProviderType: models.ProviderYouTube, DisplayName: "main",
		SecretValue: "secret", IsActive: true,
	}
	if errCreate := conn.Create(&row).Error; errCreate != nil {
		t.Fatalf("seed: %v", errCreate)
	}

	now := time.Now().UTC()
	events := []models.UsageEvent{
		{OwnerID: 1, Provider: models.ProviderYouTube, Endpoint: "channels.list", CredentialID: &row.ID, Units: 1, RequestedAt: now},
		{OwnerID: 1, Provider: models.ProviderYouTube, Endpoint: "search.list", CredentialID: &row.ID, Units: 100, RequestedAt: now.AddDate(0, 0, -5)},
		{OwnerID: 1, Provider: models.ProviderYouTube, Endpoint: "search.list", CredentialID: &row.ID, Units: 0, Failed: true, RequestedAt: now},
		// Outside the 30 day window, must be excluded.
		{OwnerID: 1, Provider: models.ProviderYouTube, Endpoint: "channels.list", CredentialID: &row.ID, Units: 1, RequestedAt: now.AddDate(0, 0, -40)},
	}
	for i := range events {
		if errCreate := conn.Create(&events[i]).Error; errCreate != nil {
			t.Fatalf("seed event: %v", errCreate)
		}
	}

	recorder := doJSON(t, router, http.MethodGet, fmt.Sprintf("/api/credentials/%d/stats", row.ID), "1", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("stats status %d: %s", recorder.Code, recorder.Body.String())
	}
	body := decodeBody(t, recorder)
	if body["total_units_30d"] != float64(101) {
		t.Fatalf("expected 101 units, got %v", body["total_units_30d"])
	}
	if body["total_calls_30d"] != float64(3) {
		t.Fatalf("expected 3 calls, got %v", body["total_calls_30d"])
	}
	if body["failed_calls_30d"] != float64(1) {
		t.Fatalf("expected 1 failed call, got %v", body["failed_calls_30d"])
	}
}
