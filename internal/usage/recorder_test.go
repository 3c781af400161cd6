package usage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/tubelens/tubelens/internal/models"
	"github.com/tubelens/tubelens/internal/rotation"
	"github.com/tubelens/tubelens/internal/store"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func openRecorderTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:recorder_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := conn.AutoMigrate(&models.Credential{}, &models.UsageEvent{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn
}

func newTestRecorder(conn *gorm.DB) *Recorder {
	return NewRecorder(store.NewCredentialStore(conn), conn)
}

func seedRecorderCredential(t *testing.T, conn *gorm.DB, row models.Credential) models.Credential {
	t.Helper()
	if errCreate := conn.Create(&row).Error; errCreate != nil {
		t.Fatalf("seed credential: %v", errCreate)
	}
	return row
}

func TestRecordEnvironmentSelectionIsNoOp(t *testing.T) {
	conn := openRecorderTestDB(t)
	recorder := newTestRecorder(conn)

	outcome := recorder.Record(context.Background(), rotation.SelectedCredential{
		Kind:        rotation.KindEnvironment,
		SecretValue: "env",
	}, 100, Event{OwnerID: 1, Provider: models.ProviderYouTube, Endpoint: "search.list"})

	if outcome.Recorded || outcome.JustExhausted || outcome.Err != nil {
		t.Fatalf("expected zero outcome, got %+v", outcome)
	}
	var count int64
	if errCount := conn.Model(&models.UsageEvent{}).Count(&count).Error; errCount != nil {
		t.Fatalf("count events: %v", errCount)
	}
	if count != 0 {
		t.Fatalf("expected no usage events, got %d", count)
	}
}

func TestRecordChargesAndReportsCrossing(t *testing.T) {
	conn := openRecorderTestDB(t)
	recorder := newTestRecorder(conn)
	row := seedRecorderCredential(t, conn, models.Credential{
		OwnerID: 1, ProviderType: models.ProviderYouTube, DisplayName: "a",
		SecretValue: "sa", IsActive: true, QuotaLimit: 3, QuotaUsed: 2,
	})

	selected := rotation.SelectedCredential{Kind: rotation.KindStored, CredentialID: row.ID, SecretValue: "sa"}
	outcome := recorder.Record(context.Background(), selected, 1, Event{OwnerID: 1, Provider: models.ProviderYouTube, Endpoint: "videos.list"})
	if outcome.Err != nil {
		t.Fatalf("record: %v", outcome.Err)
	}
	if !outcome.Recorded {
		t.Fatal("expected Recorded")
	}
	if !outcome.JustExhausted {
		t.Fatal("expected JustExhausted when usage reaches the limit")
	}

	var reloaded models.Credential
	if errFind := conn.First(&reloaded, row.ID).Error; errFind != nil {
		t.Fatalf("reload: %v", errFind)
	}
	if reloaded.QuotaUsed != 3 {
		t.Fatalf("expected quota_used 3, got %d", reloaded.QuotaUsed)
	}
	if reloaded.LastUsedAt == nil {
		t.Fatal("expected last_used_at to be stamped")
	}

	var event models.UsageEvent
	if errFind := conn.First(&event).Error; errFind != nil {
		t.Fatalf("load event: %v", errFind)
	}
	if event.CredentialID == nil || *event.CredentialID != row.ID {
		t.Fatalf("expected event bound to credential %d, got %v", row.ID, event.CredentialID)
	}
	if event.Units != 1 || event.Failed {
		t.Fatalf("unexpected event: units=%d failed=%v", event.Units, event.Failed)
	}
}

func TestRecordUnlimitedNeverExhausts(t *testing.T) {
	conn := openRecorderTestDB(t)
	recorder := newTestRecorder(conn)
	row := seedRecorderCredential(t, conn, models.Credential{
		OwnerID: 1, ProviderType: models.ProviderOpenAI, DisplayName: "a",
		SecretValue: "sa", IsActive: true, QuotaLimit: 0, QuotaUsed: 0,
	})

	selected := rotation.SelectedCredential{Kind: rotation.KindStored, CredentialID: row.ID, SecretValue: "sa"}
	outcome := recorder.Record(context.Background(), selected, 1_000_000, Event{OwnerID: 1, Provider: models.ProviderOpenAI, Endpoint: "chat.completions"})
	if outcome.Err != nil {
		t.Fatalf("record: %v", outcome.Err)
	}
	if outcome.JustExhausted {
		t.Fatal("unlimited credentials must never report exhaustion")
	}
}

func TestRecordMissingCredentialIsAbsorbed(t *testing.T) {
	conn := openRecorderTestDB(t)
	recorder := newTestRecorder(conn)

	selected := rotation.SelectedCredential{Kind: rotation.KindStored, CredentialID: 12345, SecretValue: "gone"}
	outcome := recorder.Record(context.Background(), selected, 1, Event{OwnerID: 1, Provider: models.ProviderYouTube, Endpoint: "channels.list"})
	if outcome.Recorded {
		t.Fatal("expected Recorded=false for missing credential")
	}
	if !errors.Is(outcome.Err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound cause, got %v", outcome.Err)
	}
}

func TestRecordRejectsNegativeUnits(t *testing.T) {
	conn := openRecorderTestDB(t)
	recorder := newTestRecorder(conn)
	row := seedRecorderCredential(t, conn, models.Credential{
		OwnerID: 1, ProviderType: models.ProviderYouTube, DisplayName: "a",
		SecretValue: "sa", IsActive: true, QuotaLimit: 10, QuotaUsed: 0,
	})

	selected := rotation.SelectedCredential{Kind: rotation.KindStored, CredentialID: row.ID, SecretValue: "sa"}
	outcome := recorder.Record(context.Background(), selected, -1, Event{OwnerID: 1, Provider: models.ProviderYouTube, Endpoint: "channels.list"})
	if outcome.Recorded || outcome.Err == nil {
		t.Fatalf("expected rejection, got %+v", outcome)
	}

	var reloaded models.Credential
	if errFind := conn.First(&reloaded, row.ID).Error; errFind != nil {
		t.Fatalf("reload: %v", errFind)
	}
	if reloaded.QuotaUsed != 0 {
		t.Fatalf("expected quota untouched, got %d", reloaded.QuotaUsed)
	}
}

func TestRecordFailureWritesFailedEvent(t *testing.T) {
	conn := openRecorderTestDB(t)
	recorder := newTestRecorder(conn)
	row := seedRecorderCredential(t, conn, models.Credential{
		OwnerID: 1, ProviderType: models.ProviderYouTube, DisplayName: "a",
		SecretValue: "sa", IsActive: true, QuotaLimit: 10, QuotaUsed: 0,
	})

	selected := rotation.SelectedCredential{Kind: rotation.KindStored, CredentialID: row.ID, SecretValue: "sa"}
	recorder.RecordFailure(context.Background(), selected, Event{
		OwnerID: 1, Provider: models.ProviderYouTube, Endpoint: "search.list",
	}, 403, errors.New("quota exceeded"))

	var event models.UsageEvent
	if errFind := conn.First(&event).Error; errFind != nil {
		t.Fatalf("load event: %v", errFind)
	}
	if !event.Failed {
		t.Fatal("expected failed event")
	}
	if event.Units != 0 {
		t.Fatalf("failed calls must not charge units, got %d", event.Units)
	}
	if len(event.ErrorDetail) == 0 {
		t.Fatal("expected error detail payload")
	}

	// No units charged against the credential either.
	var reloaded models.Credential
	if errFind := conn.First(&reloaded, row.ID).Error; errFind != nil {
		t.Fatalf("reload: %v", errFind)
	}
	if reloaded.QuotaUsed != 0 {
		t.Fatalf("expected quota untouched, got %d", reloaded.QuotaUsed)
	}
}
