package rotation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tubelens/tubelens/internal/models"
	"github.com/tubelens/tubelens/internal/store"
	"github.com/tubelens/tubelens/internal/util"

	log "github.com/sirupsen/logrus"
)

// ErrNotConfigured indicates no usable credential of any kind exists for a
// provider type. This is a configuration problem, not a transient failure.
var ErrNotConfigured = errors.New("rotation: no usable credential configured")

// Kind distinguishes the origin of a selected credential.
type Kind string

const (
	// KindStored means the credential came from the credential store.
	KindStored Kind = "stored"
	// KindEnvironment means the credential is the process-wide fallback.
	KindEnvironment Kind = "environment"
)

// SelectedCredential is the outcome of a selection: either a stored,
// quota-tracked credential or the unmetered environment fallback.
type SelectedCredential struct {
	Kind         Kind
	CredentialID uint64 // Zero for environment credentials.
	SecretValue  string
}

// Selector implements the rotation policy: among the owner's active
// credentials for a provider, pick the least-used one that still has
// headroom, falling back to the environment secret only when every stored
// credential is exhausted or none exist.
type Selector struct {
	store     *store.CredentialStore
	fallbacks map[models.ProviderType]string
}

// NewSelector constructs a Selector. fallbacks maps provider types to their
// environment fallback secrets; absent or empty entries mean no fallback.
func NewSelector(credStore *store.CredentialStore, fallbacks map[models.ProviderType]string) *Selector {
	cleaned := make(map[models.ProviderType]string, len(fallbacks))
	for providerType, secret := range fallbacks {
		if trimmed := strings.TrimSpace(secret); trimmed != "" {
			cleaned[providerType] = trimmed
		}
	}
	return &Selector{store: credStore, fallbacks: cleaned}
}

// Select picks the credential a gateway should use for the owner's next call
// to the given provider. Storage errors propagate as-is: they never trigger
// the environment fallback.
func (s *Selector) Select(ctx context.Context, ownerID uint64, providerType models.ProviderType) (SelectedCredential, error) {
	rows, errList := s.store.ListActiveByOwnerAndType(ctx, ownerID, providerType)
	if errList != nil {
		return SelectedCredential{}, fmt.Errorf("rotation: list credentials: %w", errList)
	}

	// Rows arrive ordered by ascending usage, ties by ascending id, so the
	// first non-exhausted row is the selection.
	for i := range rows {
		row := &rows[i]
		if row.Exhausted() {
			continue
		}
		log.WithFields(log.Fields{
			"owner":      ownerID,
			"provider":   providerType,
			"credential": row.ID,
			"secret":     util.HideAPIKey(row.SecretValue),
		}).Debug("rotation: selected stored credential")
		return SelectedCredential{
			Kind:         KindStored,
			CredentialID: row.ID,
			SecretValue:  row.SecretValue,
		}, nil
	}

	if secret, ok := s.fallbacks[providerType]; ok {
		if len(rows) > 0 {
			log.WithFields(log.Fields{
				"owner":    ownerID,
				"provider": providerType,
			}).Warn("rotation: all stored credentials exhausted, using environment fallback")
		}
		return SelectedCredential{Kind: KindEnvironment, SecretValue: secret}, nil
	}

	return SelectedCredential{}, fmt.Errorf("%w: provider=%s", ErrNotConfigured, providerType)
}
