package engine

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"prefsync/internal/config"
	"prefsync/internal/prefs"
	"prefsync/internal/snapshot"
)

func newTestEngine(t *testing.T, backend prefs.Backend) (*Engine, *snapshot.Store) {
	t.Helper()
	snap := snapshot.OpenEmpty(filepath.Join(t.TempDir(), "snapshot.json"), "test")
	return New(backend, snap, zap.NewNop().Sugar()), snap
}

func dockTarget() config.TargetState {
	return config.TargetState{
		{Domain: "com.apple.dock", Key: "autohide", Value: prefs.Bool(true)},
		{Domain: "com.apple.dock", Key: "tilesize", Value: prefs.Int(46)},
	}
}

func TestDiffClassification(t *testing.T) {
	backend := prefs.NewMemoryBackend()
	backend.Seed("com.apple.dock", "tilesize", prefs.Int(44))
	backend.Seed("com.apple.dock", "autohide", prefs.Bool(true))
	e, _ := newTestEngine(t, backend)

	target := append(dockTarget(),
		config.Setting{Domain: "com.apple.dock", Key: "orientation", Value: prefs.String("left")},
		config.Setting{Domain: "com.example.ghost", Key: "anything", Value: prefs.Int(1)},
	)

	diffs, err := e.Diff(context.Background(), target)
	require.NoError(t, err)
	require.Len(t, diffs, 4)

	byKey := make(map[string]KeyDiff)
	for _, d := range diffs {
		byKey[d.Key] = d
	}

	assert.Equal(t, InSync, byKey["autohide"].State)
	assert.Equal(t, Diverged, byKey["tilesize"].State)
	require.NotNil(t, byKey["tilesize"].Current)
	assert.True(t, byKey["tilesize"].Current.Equal(prefs.Int(44)))
	assert.Equal(t, Diverged, byKey["orientation"].State, "absent key diverges")
	assert.Nil(t, byKey["orientation"].Current)
	assert.Equal(t, MissingDomain, byKey["anything"].State)
}

func TestDiffNeverCoercesAcrossTypes(t *testing.T) {
	backend := prefs.NewMemoryBackend()
	backend.Seed("com.apple.dock", "tilesize", prefs.String("46"))
	e, _ := newTestEngine(t, backend)

	diffs, err := e.Diff(context.Background(), config.TargetState{
		{Domain: "com.apple.dock", Key: "tilesize", Value: prefs.Int(46)},
	})
	require.NoError(t, err)
	assert.Equal(t, Diverged, diffs[0].State, "string \"46\" must not equal int 46")
}

func TestApplyWritesOnlyDivergedKeys(t *testing.T) {
	backend := prefs.NewMemoryBackend()
	backend.Seed("com.apple.dock", "tilesize", prefs.Int(44))
	backend.Seed("com.apple.dock", "autohide", prefs.Bool(true))
	e, snap := newTestEngine(t, backend)

	report := e.Apply(context.Background(), dockTarget(), ApplyOptions{Digest: "d1"})
	require.NoError(t, report.Fatal)
	assert.True(t, report.Converged())
	assert.Equal(t, 1, report.InSync)
	require.Len(t, report.Changed, 1)
	assert.Equal(t, "tilesize", report.Changed[0].Key)
	assert.Equal(t, 1, backend.Writes)
	assert.Equal(t, []string{"com.apple.dock"}, report.ChangedDomains)

	// The rollback entry holds the pre-change value.
	require.Equal(t, 1, snap.Len())
	entry := snap.Entries()[0]
	require.NotNil(t, entry.Original)
	assert.True(t, entry.Original.Equal(prefs.Int(44)))
	assert.Equal(t, "d1", snap.Digest())
}

func TestApplyIsIdempotent(t *testing.T) {
	backend := prefs.NewMemoryBackend()
	backend.Seed("com.apple.dock", "tilesize", prefs.Int(44))
	backend.SeedDomain("com.apple.dock")
	e, _ := newTestEngine(t, backend)

	first := e.Apply(context.Background(), dockTarget(), ApplyOptions{})
	require.True(t, first.Converged())
	writesAfterFirst := backend.Writes

	second := e.Apply(context.Background(), dockTarget(), ApplyOptions{})
	require.True(t, second.Converged())
	assert.Empty(t, second.Changed)
	assert.Equal(t, len(dockTarget()), second.InSync)
	assert.Equal(t, writesAfterFirst, backend.Writes, "second pass must perform zero writes")
}

func TestDiffAndApplyAgree(t *testing.T) {
	backend := prefs.NewMemoryBackend()
	backend.Seed("com.apple.dock", "tilesize", prefs.Int(44))
	backend.Seed("com.apple.finder", "ShowPathbar", prefs.Bool(true))
	backend.Seed("NSGlobalDomain", "InitialKeyRepeat", prefs.Int(15))
	e, _ := newTestEngine(t, backend)

	target := config.TargetState{
		{Domain: "NSGlobalDomain", Key: "InitialKeyRepeat", Value: prefs.Int(15)},
		{Domain: "com.apple.dock", Key: "tilesize", Value: prefs.Int(46)},
		{Domain: "com.apple.finder", Key: "AppleShowAllFiles", Value: prefs.Bool(true)},
		{Domain: "com.apple.finder", Key: "ShowPathbar", Value: prefs.Bool(true)},
	}

	diffs, err := e.Diff(context.Background(), target)
	require.NoError(t, err)
	var diverged []string
	for _, d := range diffs {
		if d.State == Diverged {
			diverged = append(diverged, d.Domain+"/"+d.Key)
		}
	}

	report := e.Apply(context.Background(), target, ApplyOptions{})
	require.True(t, report.Converged())
	var written []string
	for _, c := range report.Changed {
		written = append(written, c.Domain+"/"+c.Key)
	}

	if diff := cmp.Diff(diverged, written); diff != "" {
		t.Errorf("apply wrote a different key set than diff reported (-diff +apply):\n%s", diff)
	}
}

func TestApplyUnknownDomain(t *testing.T) {
	backend := prefs.NewMemoryBackend()
	e, _ := newTestEngine(t, backend)
	target := config.TargetState{
		{Domain: "com.example.ghost", Key: "mode", Value: prefs.String("on")},
	}

	report := e.Apply(context.Background(), target, ApplyOptions{})
	require.NoError(t, report.Fatal, "an unknown domain fails the key, not the pass")
	require.Len(t, report.Failed, 1)
	assert.ErrorIs(t, report.Failed[0].Err, ErrUnknownDomain)
	assert.Equal(t, 0, backend.Writes)

	// The override lets the backend create the domain on first write.
	report = e.Apply(context.Background(), target, ApplyOptions{AllowMissingDomains: true})
	require.True(t, report.Converged())
	got, present, err := backend.Read(context.Background(), "com.example.ghost", "mode")
	require.NoError(t, err)
	require.True(t, present)
	assert.True(t, got.Equal(prefs.String("on")))
}

func TestApplyDryRunTouchesNothing(t *testing.T) {
	backend := prefs.NewMemoryBackend()
	backend.Seed("com.apple.dock", "tilesize", prefs.Int(44))
	e, snap := newTestEngine(t, backend)

	report := e.Apply(context.Background(), dockTarget(), ApplyOptions{DryRun: true})
	require.True(t, report.DryRun)
	require.NoError(t, report.Fatal)
	assert.Len(t, report.Changed, 2, "dry run still reports the would-be writes")
	assert.Equal(t, 0, backend.Writes)
	assert.Equal(t, 0, snap.Len(), "dry run must not record rollback entries")
}

func TestApplyAccumulatesWriteFailures(t *testing.T) {
	backend := prefs.NewMemoryBackend()
	backend.Seed("com.apple.dock", "tilesize", prefs.Int(44))
	backend.Seed("com.apple.dock", "autohide", prefs.Bool(false))
	backend.FailWrites = map[string]error{"com.apple.dock/autohide": assert.AnError}
	e, _ := newTestEngine(t, backend)

	report := e.Apply(context.Background(), dockTarget(), ApplyOptions{})
	require.NoError(t, report.Fatal)
	assert.True(t, report.Partial())
	require.Len(t, report.Failed, 1)
	assert.Equal(t, "autohide", report.Failed[0].Key)
	require.Len(t, report.Changed, 1)
	assert.Equal(t, "tilesize", report.Changed[0].Key, "one rejected write must not block the rest")
}

func TestApplyFlushFailureLeavesNoPhantomEntry(t *testing.T) {
	backend := prefs.NewMemoryBackend()
	backend.Seed("com.apple.dock", "tilesize", prefs.Int(44))

	// The snapshot path is an existing directory, so every flush fails.
	snap := snapshot.OpenEmpty(t.TempDir(), "test")
	e := New(backend, snap, zap.NewNop().Sugar())

	report := e.Apply(context.Background(), config.TargetState{
		{Domain: "com.apple.dock", Key: "tilesize", Value: prefs.Int(46)},
	}, ApplyOptions{})

	require.Len(t, report.Failed, 1)
	assert.Empty(t, report.Changed)
	assert.Equal(t, 0, backend.Writes, "no write may happen without a durable rollback record")
	assert.Equal(t, 0, snap.Len(), "the unflushed entry must not linger in memory")
}

func TestApplyAbortsWhenBackendUnavailable(t *testing.T) {
	backend := prefs.NewMemoryBackend()
	backend.Unavailable = true
	e, snap := newTestEngine(t, backend)

	report := e.Apply(context.Background(), dockTarget(), ApplyOptions{})
	assert.ErrorIs(t, report.Fatal, prefs.ErrBackendUnavailable)
	assert.Empty(t, report.Changed)
	assert.Equal(t, 0, snap.Len())
}

func TestApplyThenRestoreRoundTrip(t *testing.T) {
	backend := prefs.NewMemoryBackend()
	backend.Seed("com.apple.dock", "tilesize", prefs.Int(44))
	backend.SeedDomain("com.apple.dock")
	e, snap := newTestEngine(t, backend)

	report := e.Apply(context.Background(), dockTarget(), ApplyOptions{})
	require.True(t, report.Converged())

	results := snap.RestoreAll(context.Background(), backend)
	for _, r := range results {
		require.NoError(t, r.Err)
	}

	got, present, err := backend.Read(context.Background(), "com.apple.dock", "tilesize")
	require.NoError(t, err)
	require.True(t, present)
	assert.True(t, got.Equal(prefs.Int(44)), "tilesize must return to its pre-apply value")

	_, present, err = backend.Read(context.Background(), "com.apple.dock", "autohide")
	require.NoError(t, err)
	assert.False(t, present, "a key created by apply must be deleted on restore")
	assert.Equal(t, 0, snap.Len())
}
