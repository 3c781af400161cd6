package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tubelens/tubelens/internal/db"
	"github.com/tubelens/tubelens/internal/models"

	"gorm.io/gorm"
)

// ErrNotFound indicates the requested credential does not exist.
var ErrNotFound = errors.New("store: credential not found")

// CredentialStore provides durable storage for provider credentials.
type CredentialStore struct {
	db *gorm.DB
}

// NewCredentialStore constructs a CredentialStore backed by GORM.
func NewCredentialStore(db *gorm.DB) *CredentialStore {
	return &CredentialStore{db: db}
}

// CreateParams holds inputs for credential creation.
type CreateParams struct {
	OwnerID      uint64
	ProviderType models.ProviderType
	DisplayName  string
	SecretValue  string
	IsActive     *bool
	QuotaLimit   int64
}

// ListActiveByOwnerAndType returns all active credentials for the owner and
// provider type, ordered by ascending usage with ties broken by ascending id.
// Rows carry the full secret value; callers serving UI listings must mask it.
func (s *CredentialStore) ListActiveByOwnerAndType(ctx context.Context, ownerID uint64, providerType models.ProviderType) ([]models.Credential, error) {
	var rows []models.Credential
	if errFind := s.db.WithContext(ctx).
		Where("owner_id = ? AND provider_type = ? AND is_active = ?", ownerID, providerType, true).
		Order("quota_used ASC, id ASC").
		Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("store: list credentials: %w", errFind)
	}
	return rows, nil
}

// ListByOwner returns every credential for the owner, optionally filtered by
// provider type and a case-insensitive display name search.
func (s *CredentialStore) ListByOwner(ctx context.Context, ownerID uint64, providerType models.ProviderType, search string) ([]models.Credential, error) {
	query := s.db.WithContext(ctx).Model(&models.Credential{}).Where("owner_id = ?", ownerID)
	if providerType != "" {
		query = query.Where("provider_type = ?", providerType)
	}
	if search = strings.TrimSpace(search); search != "" {
		query = query.Where(
			db.CaseInsensitiveLikeExpr(s.db, "display_name"),
			db.NormalizeLikePattern(s.db, "%"+search+"%"),
		)
	}

	var rows []models.Credential
	if errFind := query.Order("created_at DESC, id DESC").Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("store: list credentials: %w", errFind)
	}
	return rows, nil
}

// GetByID returns a single credential by id.
func (s *CredentialStore) GetByID(ctx context.Context, id uint64) (*models.Credential, error) {
	var row models.Credential
	errFirst := s.db.WithContext(ctx).First(&row, id).Error
	switch {
	case errFirst == nil:
		return &row, nil
	case errors.Is(errFirst, gorm.ErrRecordNotFound):
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("store: get credential: %w", errFirst)
	}
}

// Create inserts a new credential. QuotaUsed starts at zero and IsActive
// defaults to true unless explicitly set.
func (s *CredentialStore) Create(ctx context.Context, params CreateParams) (*models.Credential, error) {
	if !params.ProviderType.Valid() {
		return nil, fmt.Errorf("store: invalid provider type: %s", params.ProviderType)
	}
	if params.QuotaLimit < 0 {
		return nil, fmt.Errorf("store: negative quota limit")
	}

	active := true
	if params.IsActive != nil {
		active = *params.IsActive
	}

	now := time.Now().UTC()
	row := models.Credential{
		OwnerID:      params.OwnerID,
		ProviderType: params.ProviderType,
		DisplayName:  strings.TrimSpace(params.DisplayName),
		SecretValue:  params.SecretValue,
		IsActive:     active,
		QuotaLimit:   params.QuotaLimit,
		QuotaUsed:    0,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if errCreate := s.db.WithContext(ctx).Create(&row).Error; errCreate != nil {
		return nil, fmt.Errorf("store: create credential: %w", errCreate)
	}
	return &row, nil
}

// Update patches mutable credential fields and returns the updated row.
// QuotaUsed is owned by IncrementUsage and cannot be patched here.
func (s *CredentialStore) Update(ctx context.Context, id uint64, updates map[string]any) (*models.Credential, error) {
	if len(updates) == 0 {
		return s.GetByID(ctx, id)
	}
	for column := range updates {
		switch column {
		case "display_name", "secret_value", "is_active", "quota_limit":
		default:
			return nil, fmt.Errorf("store: column not updatable: %s", column)
		}
	}
	updates["updated_at"] = time.Now().UTC()

	res := s.db.WithContext(ctx).Model(&models.Credential{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("store: update credential: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return s.GetByID(ctx, id)
}

// IncrementUsage atomically adds units to the credential's cumulative usage
// and stamps the last-used time, returning the post-increment row. The add is
// evaluated by the database itself so concurrent increments never lose an
// update.
func (s *CredentialStore) IncrementUsage(ctx context.Context, id uint64, units int64) (*models.Credential, error) {
	if units < 0 {
		return nil, fmt.Errorf("store: negative usage units")
	}

	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&models.Credential{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"quota_used":   gorm.Expr("quota_used + ?", units),
			"last_used_at": &now,
			"updated_at":   now,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("store: increment usage: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return s.GetByID(ctx, id)
}

// Delete removes a credential permanently.
func (s *CredentialStore) Delete(ctx context.Context, id uint64) error {
	res := s.db.WithContext(ctx).Delete(&models.Credential{}, id)
	if res.Error != nil {
		return fmt.Errorf("store: delete credential: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
