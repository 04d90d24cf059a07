// Package engine converges live preference-store state toward the declared
// target, writing only keys that differ, and produces the read-only diff the
// status command reports.
package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"prefsync/internal/config"
	"prefsync/internal/prefs"
	"prefsync/internal/snapshot"
)

// ErrUnknownDomain means the target references a domain the backend does not
// recognize. Recoverable with the explicit override option.
var ErrUnknownDomain = errors.New("unknown preference domain")

// DiffState classifies one key against live state.
type DiffState int

const (
	InSync DiffState = iota
	Diverged
	MissingDomain
)

func (s DiffState) String() string {
	switch s {
	case InSync:
		return "in-sync"
	case Diverged:
		return "diverged"
	case MissingDomain:
		return "missing-domain"
	default:
		return fmt.Sprintf("DiffState(%d)", int(s))
	}
}

// KeyDiff is the comparison outcome for one target assignment. Current is
// nil when the key is not set. Err records a per-key read problem; such keys
// are neither in sync nor writable.
type KeyDiff struct {
	Domain  string
	Key     string
	State   DiffState
	Current *prefs.Value
	Target  prefs.Value
	Err     error
}

// Engine reconciles target state against a backend, recording originals in
// the snapshot store before each first mutation. All state is passed in
// explicitly; the engine holds no process-wide globals.
type Engine struct {
	backend prefs.Backend
	snap    *snapshot.Store
	log     *zap.SugaredLogger
}

func New(backend prefs.Backend, snap *snapshot.Store, log *zap.SugaredLogger) *Engine {
	return &Engine{backend: backend, snap: snap, log: log}
}

// Diff compares every target assignment against live state without writing
// anything. The apply path uses the identical comparison, so a key reported
// Diverged here is exactly a key apply would write.
//
// Live state is read on demand and never cached across calls. Only backend
// unavailability is returned as an error; per-key read problems are recorded
// on the KeyDiff.
func (e *Engine) Diff(ctx context.Context, target config.TargetState) ([]KeyDiff, error) {
	domainKnown := make(map[string]bool)
	diffs := make([]KeyDiff, 0, len(target))

	for _, s := range target {
		known, ok := domainKnown[s.Domain]
		if !ok {
			var err error
			known, err = e.backend.DomainExists(ctx, s.Domain)
			if err != nil {
				if errors.Is(err, prefs.ErrBackendUnavailable) {
					return diffs, err
				}
				diffs = append(diffs, KeyDiff{Domain: s.Domain, Key: s.Key, State: Diverged, Target: s.Value, Err: err})
				continue
			}
			domainKnown[s.Domain] = known
		}

		if !known {
			diffs = append(diffs, KeyDiff{Domain: s.Domain, Key: s.Key, State: MissingDomain, Target: s.Value})
			continue
		}

		current, present, err := e.backend.Read(ctx, s.Domain, s.Key)
		if err != nil {
			if errors.Is(err, prefs.ErrBackendUnavailable) {
				return diffs, err
			}
			diffs = append(diffs, KeyDiff{Domain: s.Domain, Key: s.Key, State: Diverged, Target: s.Value, Err: err})
			continue
		}

		d := KeyDiff{Domain: s.Domain, Key: s.Key, Target: s.Value}
		if present {
			cur := current
			d.Current = &cur
			if current.Equal(s.Value) {
				d.State = InSync
			} else {
				d.State = Diverged
			}
		} else {
			d.State = Diverged
		}
		diffs = append(diffs, d)
	}
	return diffs, nil
}
