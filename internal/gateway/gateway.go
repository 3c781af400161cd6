package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tubelens/tubelens/internal/models"
	"github.com/tubelens/tubelens/internal/rotation"
	"github.com/tubelens/tubelens/internal/usage"

	log "github.com/sirupsen/logrus"
)

// requestTimeout bounds a single outbound provider call.
const requestTimeout = 20 * time.Second

// maxErrorBodyBytes limits how much of a provider error body is retained.
const maxErrorBodyBytes = 512

// RemoteError describes a failed call to an external provider.
type RemoteError struct {
	Provider   models.ProviderType
	Endpoint   string
	StatusCode int
	Rejected   bool // Provider rejected the credential as exhausted or unauthorized.
	Body       string
	Err        error
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("gateway: %s %s: %v", e.Provider, e.Endpoint, e.Err)
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("gateway: %s %s: status=%d", e.Provider, e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("gateway: %s %s: request failed", e.Provider, e.Endpoint)
}

// Unwrap returns the underlying cause.
func (e *RemoteError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// callResult is the typed outcome of one remote invocation: success with a
// unit cost, a quota/authorization rejection, or a plain failure.
type callResult struct {
	units    int64
	rejected bool
	err      error
}

func callOK(units int64) callResult {
	return callResult{units: units}
}

func callRejected(err error) callResult {
	return callResult{rejected: true, err: err}
}

func callFailed(err error) callResult {
	return callResult{err: err}
}

// gateway composes credential selection, the remote call, and usage
// recording for one provider. It keeps a short-lived per-owner cache of the
// selected credential so healthy credentials are not re-selected on every
// call.
type gateway struct {
	provider models.ProviderType
	selector *rotation.Selector
	recorder *usage.Recorder

	mu    sync.Mutex
	cache map[uint64]rotation.SelectedCredential
}

func newGateway(provider models.ProviderType, selector *rotation.Selector, recorder *usage.Recorder) gateway {
	return gateway{
		provider: provider,
		selector: selector,
		recorder: recorder,
		cache:    make(map[uint64]rotation.SelectedCredential),
	}
}

// credentialFor returns the cached selection for the owner, selecting a fresh
// one on a cache miss. Selection errors propagate unchanged.
func (g *gateway) credentialFor(ctx context.Context, ownerID uint64) (rotation.SelectedCredential, error) {
	g.mu.Lock()
	cached, ok := g.cache[ownerID]
	g.mu.Unlock()
	if ok {
		return cached, nil
	}

	selected, errSelect := g.selector.Select(ctx, ownerID, g.provider)
	if errSelect != nil {
		return rotation.SelectedCredential{}, errSelect
	}

	g.mu.Lock()
	g.cache[ownerID] = selected
	g.mu.Unlock()
	return selected, nil
}

// clearCache drops the owner's cached selection, forcing re-selection on the
// next call.
func (g *gateway) clearCache(ownerID uint64) {
	g.mu.Lock()
	delete(g.cache, ownerID)
	g.mu.Unlock()
}

// do runs one remote call through the select/invoke/record sequence. The
// cache survives generic failures; it is cleared only when the provider
// rejects the credential or recording reports the ceiling was just crossed.
func (g *gateway) do(ctx context.Context, ownerID uint64, endpoint string, call func(ctx context.Context, secret string) callResult) error {
	selected, errSelect := g.credentialFor(ctx, ownerID)
	if errSelect != nil {
		return errSelect
	}

	event := usage.Event{
		OwnerID:     ownerID,
		Provider:    g.provider,
		Endpoint:    endpoint,
		RequestedAt: time.Now().UTC(),
	}

	res := call(ctx, selected.SecretValue)
	if res.err != nil {
		if res.rejected {
			g.clearCache(ownerID)
			log.WithFields(log.Fields{
				"owner":    ownerID,
				"provider": g.provider,
				"endpoint": endpoint,
			}).Warn("gateway: provider rejected credential, cleared cached selection")
		}
		g.recorder.RecordFailure(ctx, selected, event, statusCodeOf(res.err), res.err)
		return res.err
	}

	outcome := g.recorder.Record(ctx, selected, res.units, event)
	if outcome.JustExhausted {
		g.clearCache(ownerID)
	}
	return nil
}

// statusCodeOf extracts the HTTP status from a RemoteError, if any.
func statusCodeOf(err error) int {
	var remoteErr *RemoteError
	if errors.As(err, &remoteErr) {
		return remoteErr.StatusCode
	}
	return 0
}
