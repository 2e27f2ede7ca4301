package tracker

import (
	"context"
	"time"

	"github.com/darry-Jnr/codemap-server-go/internal/model"
)

// Fix is a single position reading from the device location provider.
type Fix struct {
	Point model.GeoPoint
	At    time.Time
}

// ProviderErrorKind distinguishes the failure modes a location provider can
// report. None of them stop the store subscription; tracking resumes on the
// next good fix.
type ProviderErrorKind string

const (
	ProviderPermissionDenied ProviderErrorKind = "permission_denied"
	ProviderUnavailable      ProviderErrorKind = "unavailable"
	ProviderTimeout          ProviderErrorKind = "timeout"
)

type ProviderError struct {
	Kind ProviderErrorKind
	Err  error
}

func (e ProviderError) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Err.Error()
	}
	return string(e.Kind)
}

// LocationProvider is the continuous device position stream. Fixes and
// errors arrive on independent channels; both are drained by the tracker
// loop. Stop tears the stream down and is safe to call more than once.
type LocationProvider interface {
	Fixes() <-chan Fix
	Errors() <-chan ProviderError
	Stop()
}

// StoreClient is the slice of the session store the engine writes through:
// the throttled location publish and the one-shot arrival signal.
// *service.SessionService satisfies it.
type StoreClient interface {
	PublishLocation(ctx context.Context, sessionID string, role model.Role, selfID string, point model.GeoPoint) error
	SignalArrival(ctx context.Context, sessionID, name string) error
}
