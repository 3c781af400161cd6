package models

import (
	"time"

	"gorm.io/datatypes"
)

// UsageEvent records metering data for a single outbound provider call.
type UsageEvent struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	OwnerID  uint64       `gorm:"not null;index"`           // Owning user ID.
	Provider ProviderType `gorm:"type:text;not null;index"` // Provider family.
	Endpoint string       `gorm:"type:text;not null"`       // Provider endpoint identifier.

	CredentialID *uint64 `gorm:"index"` // Stored credential used, nil for the environment fallback.

	Units  int64 `gorm:"not null;default:0"`     // Quota units charged for the call.
	Failed bool  `gorm:"not null;default:false"` // Failure flag.

	ErrorDetail datatypes.JSON `gorm:"type:jsonb"` // Structured error detail for failed calls.

	RequestedAt time.Time `gorm:"not null;index"`          // Call timestamp.
	CreatedAt   time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}
