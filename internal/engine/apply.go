package engine

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"

	"prefsync/internal/config"
	"prefsync/internal/logging"
	"prefsync/internal/prefs"
)

// ApplyOptions tune a single convergence pass.
type ApplyOptions struct {
	// DryRun reports what would change without writing preferences or
	// mutating the snapshot.
	DryRun bool

	// AllowMissingDomains writes into unknown domains, letting the backend
	// create them on first write, instead of failing those keys.
	AllowMissingDomains bool

	// Digest of the document being applied, recorded in the snapshot.
	Digest string
}

// KeyChange is one applied (or dry-run planned) write.
type KeyChange struct {
	Domain   string
	Key      string
	Previous *prefs.Value
	Value    prefs.Value
}

// KeyFailure is one accumulated per-key failure.
type KeyFailure struct {
	Domain string
	Key    string
	Err    error
}

// Report is the structured outcome of one apply pass.
type Report struct {
	RunID   string
	DryRun  bool
	InSync  int
	Changed []KeyChange
	Failed  []KeyFailure

	// ChangedDomains lists domains with at least one successful write, for
	// the service-restart step. Sorted.
	ChangedDomains []string

	// Fatal is set when the pass aborted before visiting every key.
	Fatal error
}

// Converged reports a fully successful pass.
func (r *Report) Converged() bool { return r.Fatal == nil && len(r.Failed) == 0 }

// Partial reports a pass where some keys succeeded and some failed.
func (r *Report) Partial() bool {
	return r.Fatal == nil && len(r.Failed) > 0 && len(r.Changed)+r.InSync > 0
}

// Apply converges live state toward target. Per key: unequal or absent
// values are written after the original value is durably recorded; equal
// values are left untouched, so re-applying a converged target performs zero
// writes. Per-key failures accumulate; backend unavailability aborts the
// remaining pass.
func (e *Engine) Apply(ctx context.Context, target config.TargetState, opts ApplyOptions) *Report {
	report := &Report{RunID: uuid.NewString(), DryRun: opts.DryRun}
	changedDomains := make(map[string]struct{})

	diffs, err := e.Diff(ctx, target)
	if err != nil {
		report.Fatal = err
		return report
	}

	for _, d := range diffs {
		switch {
		case d.Err != nil:
			report.Failed = append(report.Failed, KeyFailure{Domain: d.Domain, Key: d.Key, Err: d.Err})
			continue
		case d.State == InSync:
			report.InSync++
			e.log.Debugf("skipping unchanged %s %s", d.Domain, d.Key)
			continue
		case d.State == MissingDomain && !opts.AllowMissingDomains:
			report.Failed = append(report.Failed, KeyFailure{
				Domain: d.Domain, Key: d.Key,
				Err: ErrUnknownDomain,
			})
			continue
		}

		if opts.DryRun {
			logging.Dry(e.log, "would write %s %s -> %s", d.Domain, d.Key, d.Target)
			report.Changed = append(report.Changed, KeyChange{Domain: d.Domain, Key: d.Key, Previous: d.Current, Value: d.Target})
			changedDomains[d.Domain] = struct{}{}
			continue
		}

		// The rollback record must be durable before the write is issued.
		if e.snap.RecordIfAbsent(d.Domain, d.Key, d.Current) {
			if err := e.snap.Flush(); err != nil {
				// Without a durable record the key is not written, so the
				// in-memory entry must not survive into a later flush.
				e.snap.Forget(d.Domain, d.Key)
				report.Failed = append(report.Failed, KeyFailure{Domain: d.Domain, Key: d.Key, Err: err})
				continue
			}
		}

		if err := e.backend.Write(ctx, d.Domain, d.Key, d.Target); err != nil {
			report.Failed = append(report.Failed, KeyFailure{Domain: d.Domain, Key: d.Key, Err: err})
			if errors.Is(err, prefs.ErrBackendUnavailable) {
				report.Fatal = err
				break
			}
			continue
		}

		e.log.Infof("applied %s %s -> %s", d.Domain, d.Key, d.Target)
		report.Changed = append(report.Changed, KeyChange{Domain: d.Domain, Key: d.Key, Previous: d.Current, Value: d.Target})
		changedDomains[d.Domain] = struct{}{}
	}

	if !opts.DryRun && len(report.Changed) > 0 {
		e.snap.SetDigest(opts.Digest)
		if err := e.snap.Flush(); err != nil && report.Fatal == nil {
			report.Fatal = err
		}
	}

	for dom := range changedDomains {
		report.ChangedDomains = append(report.ChangedDomains, dom)
	}
	sort.Strings(report.ChangedDomains)
	return report
}
