package models

import "time"

// ProviderType identifies the external metered API family a credential
// authenticates against.
type ProviderType string

// Supported provider types.
const (
	ProviderYouTube ProviderType = "youtube"
	ProviderOpenAI  ProviderType = "openai"
	ProviderVision  ProviderType = "vision"
	ProviderOther   ProviderType = "other"
)

// Valid reports whether the provider type is one of the supported values.
func (t ProviderType) Valid() bool {
	switch t {
	case ProviderYouTube, ProviderOpenAI, ProviderVision, ProviderOther:
		return true
	}
	return false
}

// Credential represents one stored API key for one provider, owned by a user.
type Credential struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	OwnerID      uint64       `gorm:"not null;index:idx_credentials_owner_provider"`           // Owning user ID.
	ProviderType ProviderType `gorm:"type:text;not null;index:idx_credentials_owner_provider"` // Provider family.

	DisplayName string `gorm:"type:text;not null"` // Human-readable label.
	SecretValue string `gorm:"type:text;not null"` // Opaque credential string.

	// No column default: GORM drops zero-value fields on insert when one is
	// set, which would turn an explicitly inactive credential active.
	IsActive bool `gorm:"not null"` // Whether the credential may be selected.

	QuotaLimit int64 `gorm:"not null;default:0"` // Usage ceiling for the period; 0 means unlimited.
	QuotaUsed  int64 `gorm:"not null;default:0"` // Cumulative units consumed.

	LastUsedAt *time.Time // Last successful usage time.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// Exhausted reports whether the credential has reached its quota ceiling.
// A zero limit never exhausts.
func (c *Credential) Exhausted() bool {
	return c.QuotaLimit > 0 && c.QuotaUsed >= c.QuotaLimit
}

// Status returns the current credential status for display purposes.
func (c *Credential) Status() string {
	if !c.IsActive {
		return "inactive"
	}
	if c.Exhausted() {
		return "exhausted"
	}
	return "active"
}
