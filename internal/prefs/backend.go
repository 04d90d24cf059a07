package prefs

import (
	"context"
	"errors"
)

// ErrBackendUnavailable is returned when the preference store itself cannot
// be reached. It is fatal for the remainder of a reconciliation pass.
var ErrBackendUnavailable = errors.New("preference backend unavailable")

// GlobalDomain is the distinguished domain holding host-global preferences.
const GlobalDomain = "NSGlobalDomain"

// Backend is the preference store capability consumed by the engine and the
// snapshot restore path. Implementations must be safe for sequential use
// within a run; callers do not issue concurrent operations.
type Backend interface {
	// Read returns the current value for (domain, key). The second return
	// is false when the key is not set.
	Read(ctx context.Context, domain, key string) (Value, bool, error)

	// Write sets (domain, key) to v, creating the domain if needed.
	Write(ctx context.Context, domain, key string, v Value) error

	// Delete removes (domain, key). Deleting an absent key is an error.
	Delete(ctx context.Context, domain, key string) error

	// DomainExists reports whether the backend knows the domain.
	DomainExists(ctx context.Context, domain string) (bool, error)

	// ListDomains returns every domain known to the backend.
	ListDomains(ctx context.Context) ([]string, error)
}
