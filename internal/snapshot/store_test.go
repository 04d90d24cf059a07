package snapshot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prefsync/internal/prefs"
)

func tempStore(t *testing.T) *Store {
	t.Helper()
	return OpenEmpty(filepath.Join(t.TempDir(), "snapshot.json"), "0.4.0")
}

func ptr(v prefs.Value) *prefs.Value { return &v }

func TestRecordIfAbsentFirstTouchWins(t *testing.T) {
	s := tempStore(t)

	require.True(t, s.RecordIfAbsent("com.apple.dock", "tilesize", ptr(prefs.Int(44))))
	assert.False(t, s.RecordIfAbsent("com.apple.dock", "tilesize", ptr(prefs.Int(46))),
		"second record for the same key must be a no-op")
	require.Equal(t, 1, s.Len())

	e := s.Entries()[0]
	assert.True(t, e.Existed)
	require.NotNil(t, e.Original)
	assert.True(t, e.Original.Equal(prefs.Int(44)), "original value must survive later records")
}

func TestRecordAbsentKey(t *testing.T) {
	s := tempStore(t)
	require.True(t, s.RecordIfAbsent("com.apple.dock", "autohide", nil))

	e := s.Entries()[0]
	assert.False(t, e.Existed)
	assert.Nil(t, e.Original)
}

func TestForgetDropsEntryAndAllowsReRecord(t *testing.T) {
	s := tempStore(t)
	require.True(t, s.RecordIfAbsent("com.apple.dock", "tilesize", ptr(prefs.Int(44))))

	s.Forget("com.apple.dock", "tilesize")
	assert.Equal(t, 0, s.Len())
	assert.True(t, s.RecordIfAbsent("com.apple.dock", "tilesize", ptr(prefs.Int(44))),
		"a forgotten key records fresh on the next attempt")

	s.Forget("com.apple.dock", "never-recorded")
	assert.Equal(t, 1, s.Len())
}

func TestFlushAndReopen(t *testing.T) {
	s := tempStore(t)
	s.RecordIfAbsent("com.apple.dock", "tilesize", ptr(prefs.Int(44)))
	s.RecordIfAbsent("com.apple.dock", "magnification", ptr(prefs.Float(1.0)))
	s.RecordIfAbsent("com.apple.finder", "AppleShowAllFiles", nil)
	s.SetDigest("abc123")
	s.AddExecRuns(2)
	require.NoError(t, s.Flush())

	re, err := Open(s.Path(), "0.4.0")
	require.NoError(t, err)
	require.Equal(t, 3, re.Len())
	assert.Equal(t, "abc123", re.Digest())
	assert.Equal(t, 2, re.ExecRuns())

	entries := re.Entries()
	assert.Equal(t, "tilesize", entries[0].Key, "insertion order must survive a reopen")
	require.NotNil(t, entries[0].Original)
	assert.Equal(t, prefs.KindInt, entries[0].Original.Kind())
	require.NotNil(t, entries[1].Original)
	assert.Equal(t, prefs.KindFloat, entries[1].Original.Kind(),
		"whole floats must not decode back as integers")
	assert.Nil(t, entries[2].Original)
}

func TestOpenMissingFileIsEmpty(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "absent.json"), "0.4.0")
	require.NoError(t, err)
	assert.Equal(t, 0, s.Len())
}

func TestOpenSettingsOnlyFallback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	legacy := `{"settings":[{"domain":"com.apple.dock","key":"tilesize","existed":true,"original_value":44}],"exec_run_count":"three"}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o644))

	s, err := Open(path, "0.4.0")
	require.NoError(t, err)
	require.Equal(t, 1, s.Len())
	assert.Equal(t, 0, s.ExecRuns(), "unreadable envelope fields reset to zero")
	e := s.Entries()[0]
	require.NotNil(t, e.Original)
	assert.True(t, e.Original.Equal(prefs.Int(44)))
}

func TestOpenUnreadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	require.NoError(t, os.WriteFile(path, []byte("not json at all"), 0o644))

	_, err := Open(path, "0.4.0")
	assert.ErrorIs(t, err, ErrUnreadable)
}

func TestRestoreExistedWritesOriginal(t *testing.T) {
	s := tempStore(t)
	backend := prefs.NewMemoryBackend()
	backend.Seed("com.apple.dock", "tilesize", prefs.Int(46))
	s.RecordIfAbsent("com.apple.dock", "tilesize", ptr(prefs.Int(44)))

	deleted, err := s.Restore(context.Background(), backend, "com.apple.dock", "tilesize")
	require.NoError(t, err)
	assert.False(t, deleted)

	got, present, err := backend.Read(context.Background(), "com.apple.dock", "tilesize")
	require.NoError(t, err)
	require.True(t, present)
	assert.True(t, got.Equal(prefs.Int(44)))
	assert.Equal(t, 0, s.Len(), "restored entry must be removed")
}

func TestRestoreAbsentDeletesKey(t *testing.T) {
	s := tempStore(t)
	backend := prefs.NewMemoryBackend()
	backend.Seed("com.apple.dock", "autohide", prefs.Bool(true))
	s.RecordIfAbsent("com.apple.dock", "autohide", nil)

	deleted, err := s.Restore(context.Background(), backend, "com.apple.dock", "autohide")
	require.NoError(t, err)
	assert.True(t, deleted)

	_, present, err := backend.Read(context.Background(), "com.apple.dock", "autohide")
	require.NoError(t, err)
	assert.False(t, present)
}

func TestRestoreAbsentKeyAlreadyGone(t *testing.T) {
	s := tempStore(t)
	backend := prefs.NewMemoryBackend()
	backend.SeedDomain("com.apple.dock")
	s.RecordIfAbsent("com.apple.dock", "autohide", nil)

	deleted, err := s.Restore(context.Background(), backend, "com.apple.dock", "autohide")
	require.NoError(t, err)
	assert.False(t, deleted, "nothing to delete when the key is already absent")
	assert.Equal(t, 0, backend.Deletes)
}

func TestRestoreUnknownEntry(t *testing.T) {
	s := tempStore(t)
	_, err := s.Restore(context.Background(), prefs.NewMemoryBackend(), "com.apple.dock", "nope")
	assert.ErrorIs(t, err, ErrNoEntry)
}

func TestRestoreCorruptEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	raw := `{"settings":[{"domain":"com.apple.dock","key":"tilesize","existed":true}],"version":"0.4.0"}`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))
	s, err := Open(path, "0.4.0")
	require.NoError(t, err)

	_, err = s.Restore(context.Background(), prefs.NewMemoryBackend(), "com.apple.dock", "tilesize")
	assert.ErrorIs(t, err, ErrCorrupt)
	assert.Equal(t, 1, s.Len(), "a corrupt entry stays recorded")
}

func TestRestoreAllReverseOrderContinuesPastFailures(t *testing.T) {
	s := tempStore(t)
	backend := prefs.NewMemoryBackend()
	backend.Seed("com.apple.dock", "tilesize", prefs.Int(46))
	backend.Seed("com.apple.dock", "magnification", prefs.Bool(true))
	backend.Seed("com.apple.finder", "ShowPathbar", prefs.Bool(true))
	backend.FailWrites = map[string]error{"com.apple.dock/magnification": errors.New("rejected")}

	s.RecordIfAbsent("com.apple.dock", "tilesize", ptr(prefs.Int(44)))
	s.RecordIfAbsent("com.apple.dock", "magnification", ptr(prefs.Bool(false)))
	s.RecordIfAbsent("com.apple.finder", "ShowPathbar", ptr(prefs.Bool(false)))

	results := s.RestoreAll(context.Background(), backend)
	require.Len(t, results, 3)

	// Reverse recording order.
	assert.Equal(t, "ShowPathbar", results[0].Key)
	assert.Equal(t, "magnification", results[1].Key)
	assert.Equal(t, "tilesize", results[2].Key)

	assert.NoError(t, results[0].Err)
	assert.Error(t, results[1].Err)
	assert.NoError(t, results[2].Err, "a rejected write must not block later entries")

	got, _, _ := backend.Read(context.Background(), "com.apple.dock", "tilesize")
	assert.True(t, got.Equal(prefs.Int(44)))
	assert.Equal(t, 1, s.Len(), "only the failed entry remains recorded")
}

func TestRestoreAllAbortsWhenBackendUnavailable(t *testing.T) {
	s := tempStore(t)
	backend := prefs.NewMemoryBackend()
	s.RecordIfAbsent("com.apple.dock", "a", ptr(prefs.Int(1)))
	s.RecordIfAbsent("com.apple.dock", "b", ptr(prefs.Int(2)))
	s.RecordIfAbsent("com.apple.dock", "c", ptr(prefs.Int(3)))
	backend.Unavailable = true

	results := s.RestoreAll(context.Background(), backend)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.ErrorIs(t, r.Err, prefs.ErrBackendUnavailable)
	}
	assert.Equal(t, 3, s.Len(), "no entry may be dropped while the backend is down")
}

func TestDeleteRemovesFile(t *testing.T) {
	s := tempStore(t)
	s.RecordIfAbsent("com.apple.dock", "tilesize", ptr(prefs.Int(44)))
	require.NoError(t, s.Flush())
	require.NoError(t, s.Delete())
	_, err := os.Stat(s.Path())
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, s.Delete(), "deleting an absent file is not an error")
}
