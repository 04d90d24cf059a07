package snapshot

import (
	"context"
	"errors"
	"fmt"

	"prefsync/internal/prefs"
)

// ErrNoEntry is returned when restoring a key the snapshot never recorded.
var ErrNoEntry = errors.New("no snapshot entry for key")

// RestoreResult is the outcome for one entry during RestoreAll.
type RestoreResult struct {
	Domain  string
	Key     string
	Deleted bool // key was removed rather than rewritten
	Err     error
}

// Restore puts one key back to its recorded original state and removes the
// entry. An entry that recorded "did not exist" deletes the key if currently
// present. The entry removal is flushed before returning.
func (s *Store) Restore(ctx context.Context, backend prefs.Backend, domain, key string) (deleted bool, err error) {
	idx, ok := s.index[entryID(domain, key)]
	if !ok {
		return false, fmt.Errorf("%w: %s %s", ErrNoEntry, domain, key)
	}
	e := s.snap.Settings[idx]

	if e.Existed {
		if e.Original == nil {
			return false, fmt.Errorf("%w: %s %s existed but has no recorded value", ErrCorrupt, domain, key)
		}
		if err := backend.Write(ctx, domain, key, *e.Original); err != nil {
			return false, fmt.Errorf("restore %s %s: %w", domain, key, err)
		}
	} else {
		_, present, err := backend.Read(ctx, domain, key)
		if err != nil {
			return false, fmt.Errorf("restore %s %s: %w", domain, key, err)
		}
		if present {
			if err := backend.Delete(ctx, domain, key); err != nil {
				return false, fmt.Errorf("restore %s %s: %w", domain, key, err)
			}
			deleted = true
		}
	}

	s.remove(domain, key)
	if err := s.Flush(); err != nil {
		return deleted, fmt.Errorf("flush after restore of %s %s: %w", domain, key, err)
	}
	return deleted, nil
}

// RestoreAll restores every entry in reverse recording order, continuing
// past individual failures. Backend unavailability aborts the remainder; a
// corrupt entry fails only itself.
func (s *Store) RestoreAll(ctx context.Context, backend prefs.Backend) []RestoreResult {
	entries := s.Entries()
	results := make([]RestoreResult, 0, len(entries))

	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		res := RestoreResult{Domain: e.Domain, Key: e.Key}

		if err := ctx.Err(); err != nil {
			res.Err = err
			results = append(results, res)
			continue
		}

		deleted, err := s.Restore(ctx, backend, e.Domain, e.Key)
		res.Deleted = deleted
		res.Err = err
		results = append(results, res)

		if errors.Is(err, prefs.ErrBackendUnavailable) {
			for j := i - 1; j >= 0; j-- {
				rem := entries[j]
				results = append(results, RestoreResult{Domain: rem.Domain, Key: rem.Key, Err: prefs.ErrBackendUnavailable})
			}
			break
		}
	}
	return results
}
