package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tubelens/tubelens/internal/models"
	"github.com/tubelens/tubelens/internal/rotation"
	"github.com/tubelens/tubelens/internal/store"
	"github.com/tubelens/tubelens/internal/usage"

	"gorm.io/gorm"
)

func newOpenAITestGateway(conn *gorm.DB, serverURL string, cost OpenAICostConfig) *OpenAIGateway {
	credStore := store.NewCredentialStore(conn)
	selector := rotation.NewSelector(credStore, nil)
	recorder := usage.NewRecorder(credStore, conn)
	return NewOpenAIGateway(selector, recorder, serverURL, cost)
}

func TestDollarsToUnitsRoundsUp(t *testing.T) {
	cases := []struct {
		dollars float64
		want    int64
	}{
		{0, 0},
		{-1, 0},
		{0.005, 1},
		{0.01, 1},
		{0.031, 4},
		{0.02, 2},
		{1.0, 100},
	}
	for _, tc := range cases {
		if got := dollarsToUnits(tc.dollars); got != tc.want {
			t.Errorf("dollarsToUnits(%v) = %d, want %d", tc.dollars, got, tc.want)
		}
	}
}

func TestEstimateUnits(t *testing.T) {
	g := NewOpenAIGateway(nil, nil, "", OpenAICostConfig{})

	// Default rate is $0.002 per 1k tokens with a $0.02 per-call fallback.
	cases := []struct {
		tokens int64
		want   int64
	}{
		{0, 2},     // no usage metadata, fallback estimate
		{1000, 1},  // $0.002 rounds up to one cent
		{15500, 4}, // $0.031 rounds up to four cents
		{20000, 4}, // $0.04 exactly
	}
	for _, tc := range cases {
		if got := g.estimateUnits(tc.tokens); got != tc.want {
			t.Errorf("estimateUnits(%d) = %d, want %d", tc.tokens, got, tc.want)
		}
	}
}

func TestOptimizeTitleChargesEstimatedUnits(t *testing.T) {
	conn := openGatewayTestDB(t)
	cred := seedGatewayCredential(t, conn, models.Credential{
		OwnerID: 1, ProviderType: models.ProviderOpenAI, DisplayName: "a",
		SecretValue: "sk-a", IsActive: true, QuotaLimit: 1000, QuotaUsed: 0,
	})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sk-a" {
			t.Errorf("unexpected authorization header %q", got)
		}
		fmt.Fprint(w, `{"choices":[{"message":{"content":"Better Title"}}],"usage":{"total_tokens":15500}}`)
	}))
	defer server.Close()

	oa := newOpenAITestGateway(conn, server.URL, OpenAICostConfig{})
	title, errOptimize := oa.OptimizeTitle(context.Background(), 1, "old title", "desc")
	if errOptimize != nil {
		t.Fatalf("optimize: %v", errOptimize)
	}
	if title != "Better Title" {
		t.Fatalf("unexpected title %q", title)
	}
	// 15500 tokens at $0.002/1k is $0.031, charged as 4 cents.
	if used := quotaUsedOf(t, conn, cred.ID); used != 4 {
		t.Fatalf("expected 4 units charged, got %d", used)
	}
}

func TestSuggestTagsParsesCommaList(t *testing.T) {
	conn := openGatewayTestDB(t)
	seedGatewayCredential(t, conn, models.Credential{
		OwnerID: 1, ProviderType: models.ProviderOpenAI, DisplayName: "a",
		SecretValue: "sk-a", IsActive: true, QuotaLimit: 0, QuotaUsed: 0,
	})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[{"message":{"content":"go, #testing, \"http\", ,api"}}],"usage":{"total_tokens":100}}`)
	}))
	defer server.Close()

	oa := newOpenAITestGateway(conn, server.URL, OpenAICostConfig{})
	tags, errSuggest := oa.SuggestTags(context.Background(), 1, "t", "d")
	if errSuggest != nil {
		t.Fatalf("suggest tags: %v", errSuggest)
	}
	want := []string{"go", "testing", "http", "api"}
	if len(tags) != len(want) {
		t.Fatalf("expected tags %v, got %v", want, tags)
	}
	for i := range want {
		if tags[i] != want[i] {
			t.Fatalf("expected tags %v, got %v", want, tags)
		}
	}
}

func TestInsufficientQuotaIsRejection(t *testing.T) {
	conn := openGatewayTestDB(t)
	seedGatewayCredential(t, conn, models.Credential{
		OwnerID: 1, ProviderType: models.ProviderOpenAI, DisplayName: "a",
		SecretValue: "sk-a", IsActive: true, QuotaLimit: 1000, QuotaUsed: 0,
	})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"type":"insufficient_quota","code":"insufficient_quota"}}`)
	}))
	defer server.Close()

	oa := newOpenAITestGateway(conn, server.URL, OpenAICostConfig{})
	_, errOptimize := oa.OptimizeTitle(context.Background(), 1, "t", "d")

	var remoteErr *RemoteError
	if !errors.As(errOptimize, &remoteErr) {
		t.Fatalf("expected RemoteError, got %v", errOptimize)
	}
	if !remoteErr.Rejected {
		t.Fatal("insufficient_quota must be reported as a rejection")
	}
}

func TestPlainRateLimitIsNotRejection(t *testing.T) {
	conn := openGatewayTestDB(t)
	seedGatewayCredential(t, conn, models.Credential{
		OwnerID: 1, ProviderType: models.ProviderOpenAI, DisplayName: "a",
		SecretValue: "sk-a", IsActive: true, QuotaLimit: 1000, QuotaUsed: 0,
	})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"type":"rate_limit_exceeded","code":"rate_limit_exceeded"}}`)
	}))
	defer server.Close()

	oa := newOpenAITestGateway(conn, server.URL, OpenAICostConfig{})
	_, errOptimize := oa.OptimizeTitle(context.Background(), 1, "t", "d")

	var remoteErr *RemoteError
	if !errors.As(errOptimize, &remoteErr) {
		t.Fatalf("expected RemoteError, got %v", errOptimize)
	}
	if remoteErr.Rejected {
		t.Fatal("a transient rate limit must not count as a credential rejection")
	}
}
