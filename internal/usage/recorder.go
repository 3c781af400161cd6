package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tubelens/tubelens/internal/models"
	"github.com/tubelens/tubelens/internal/rotation"
	"github.com/tubelens/tubelens/internal/store"

	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// recordTimeout bounds accounting writes so they outlive aborted requests
// without hanging forever.
const recordTimeout = 5 * time.Second

// Recorder charges completed provider calls against the credential that was
// used and reports whether that credential just crossed its quota ceiling.
type Recorder struct {
	store *store.CredentialStore
	db    *gorm.DB
}

// NewRecorder constructs a Recorder.
func NewRecorder(credStore *store.CredentialStore, db *gorm.DB) *Recorder {
	return &Recorder{store: credStore, db: db}
}

// Outcome is the explicit result of a recording attempt. A failed attempt is
// reported here rather than surfaced to the caller: the provider call already
// succeeded, so accounting hiccups stay invisible to the user.
type Outcome struct {
	Recorded      bool
	JustExhausted bool
	Err           error // Cause when a stored-credential increment failed.
}

// Event carries audit metadata for the usage event log.
type Event struct {
	OwnerID     uint64
	Provider    models.ProviderType
	Endpoint    string
	RequestedAt time.Time
}

// Record charges units against the selected credential. Environment
// selections are untracked and return a zero outcome. Increment failures are
// logged and absorbed.
func (r *Recorder) Record(ctx context.Context, selected rotation.SelectedCredential, units int64, event Event) Outcome {
	if selected.Kind == rotation.KindEnvironment {
		return Outcome{}
	}
	if units < 0 {
		err := fmt.Errorf("usage: negative units for credential %d", selected.CredentialID)
		log.WithError(err).Warn("usage: refusing to record")
		return Outcome{Err: err}
	}

	// Accounting writes deliberately detach from the request context: a call
	// that already succeeded upstream still gets charged even if the caller
	// went away.
	dbCtx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	row, errIncrement := r.store.IncrementUsage(dbCtx, selected.CredentialID, units)
	if errIncrement != nil {
		log.WithError(errIncrement).
			WithField("credential", selected.CredentialID).
			Warn("usage: failed to record usage")
		return Outcome{Err: errIncrement}
	}

	r.writeEvent(dbCtx, event, &selected.CredentialID, units, nil)

	return Outcome{
		Recorded:      true,
		JustExhausted: row.Exhausted(),
	}
}

// RecordFailure logs a failed provider call in the usage event log without
// charging any units. Best-effort: write errors are logged and dropped.
func (r *Recorder) RecordFailure(ctx context.Context, selected rotation.SelectedCredential, event Event, statusCode int, cause error) {
	dbCtx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	var credentialID *uint64
	if selected.Kind == rotation.KindStored {
		id := selected.CredentialID
		credentialID = &id
	}

	detail := buildErrorDetail(statusCode, cause)
	r.writeEvent(dbCtx, event, credentialID, 0, detail)
}

// writeEvent persists one usage event row, swallowing failures.
func (r *Recorder) writeEvent(ctx context.Context, event Event, credentialID *uint64, units int64, errorDetail datatypes.JSON) {
	if r.db == nil {
		return
	}
	row := models.UsageEvent{
		OwnerID:      event.OwnerID,
		Provider:     event.Provider,
		Endpoint:     event.Endpoint,
		CredentialID: credentialID,
		Units:        units,
		Failed:       errorDetail != nil,
		ErrorDetail:  errorDetail,
		RequestedAt:  normalizeTime(event.RequestedAt),
		CreatedAt:    time.Now().UTC(),
	}
	if errCreate := r.db.WithContext(ctx).Create(&row).Error; errCreate != nil {
		log.WithError(errCreate).Warn("usage: failed to persist usage event")
	}
}

// errorDetail is the JSON shape stored for failed calls.
type errorDetail struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
}

func buildErrorDetail(statusCode int, cause error) datatypes.JSON {
	if statusCode == 0 {
		statusCode = http.StatusInternalServerError
	}
	message := ""
	if cause != nil {
		message = strings.TrimSpace(cause.Error())
	}
	if message == "" {
		message = strings.TrimSpace(http.StatusText(statusCode))
	}
	payload, errMarshal := json.Marshal(errorDetail{
		StatusCode: statusCode,
		Message:    message,
	})
	if errMarshal != nil {
		return nil
	}
	return datatypes.JSON(payload)
}

// normalizeTime returns a UTC timestamp, defaulting to now if zero.
func normalizeTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}
