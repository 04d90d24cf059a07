// Package snapshot persists pre-change preference values so that every apply
// can be rolled back exactly.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"prefsync/internal/prefs"
)

// ErrCorrupt marks a snapshot entry whose recorded value cannot be decoded
// or is inconsistent. It is fatal only for restoring that entry.
var ErrCorrupt = errors.New("snapshot entry corrupt")

// ErrUnreadable means the snapshot file exists but cannot be decoded at all,
// even through the settings-only fallback.
var ErrUnreadable = errors.New("snapshot file unreadable")

// Entry records the original state of one (domain, key) pair before the
// first mutation that ever touched it.
type Entry struct {
	Domain   string       `json:"domain"`
	Key      string       `json:"key"`
	Existed  bool         `json:"existed"`
	Original *prefs.Value `json:"original_value,omitempty"`
}

type snapshotFile struct {
	Settings []Entry `json:"settings"`
	ExecRuns int     `json:"exec_run_count"`
	Version  string  `json:"version"`
	Digest   string  `json:"digest"`
}

// Store owns the snapshot file. Entries are written at most once per key;
// Flush must complete before the corresponding preference write is issued so
// an interruption never leaves a mutation without a rollback path.
type Store struct {
	path  string
	snap  snapshotFile
	index map[string]int
}

func entryID(domain, key string) string { return domain + "\x00" + key }

// OpenEmpty returns a store with no entries bound to path.
func OpenEmpty(path, version string) *Store {
	return &Store{
		path:  path,
		snap:  snapshotFile{Version: version},
		index: make(map[string]int),
	}
}

// Open loads the snapshot at path, or an empty store when the file does not
// exist. A full decode failure retries a settings-only decode before giving
// up with ErrUnreadable.
func Open(path, version string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return OpenEmpty(path, version), nil
		}
		return nil, err
	}

	var snap snapshotFile
	if err := json.Unmarshal(data, &snap); err != nil {
		// Older snapshot layouts may lack the envelope fields.
		var settingsOnly struct {
			Settings []Entry `json:"settings"`
		}
		if err2 := json.Unmarshal(data, &settingsOnly); err2 != nil || settingsOnly.Settings == nil {
			return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
		}
		snap = snapshotFile{Settings: settingsOnly.Settings, Version: version}
	}

	s := &Store{path: path, snap: snap, index: make(map[string]int, len(snap.Settings))}
	for i, e := range snap.Settings {
		s.index[entryID(e.Domain, e.Key)] = i
	}
	return s, nil
}

func (s *Store) Path() string { return s.path }
func (s *Store) Len() int     { return len(s.snap.Settings) }

// Entries returns a copy in insertion order.
func (s *Store) Entries() []Entry {
	out := make([]Entry, len(s.snap.Settings))
	copy(out, s.snap.Settings)
	return out
}

func (s *Store) Digest() string     { return s.snap.Digest }
func (s *Store) SetDigest(d string) { s.snap.Digest = d }
func (s *Store) ExecRuns() int      { return s.snap.ExecRuns }
func (s *Store) AddExecRuns(n int)  { s.snap.ExecRuns += n }

// RecordIfAbsent stores the original value for (domain, key) unless an entry
// already exists. Reports whether a new entry was recorded. original nil
// means the key did not exist before the first mutation.
func (s *Store) RecordIfAbsent(domain, key string, original *prefs.Value) bool {
	if _, ok := s.index[entryID(domain, key)]; ok {
		return false
	}
	e := Entry{Domain: domain, Key: key, Existed: original != nil, Original: original}
	s.snap.Settings = append(s.snap.Settings, e)
	s.index[entryID(domain, key)] = len(s.snap.Settings) - 1
	return true
}

// Forget drops an in-memory entry without flushing. The apply path uses it
// when the durable record for a key could not be written, so a later flush
// never persists a rollback entry for a key that was never mutated.
func (s *Store) Forget(domain, key string) {
	s.remove(domain, key)
}

func (s *Store) remove(domain, key string) {
	idx, ok := s.index[entryID(domain, key)]
	if !ok {
		return
	}
	s.snap.Settings = append(s.snap.Settings[:idx], s.snap.Settings[idx+1:]...)
	delete(s.index, entryID(domain, key))
	for i := idx; i < len(s.snap.Settings); i++ {
		e := s.snap.Settings[i]
		s.index[entryID(e.Domain, e.Key)] = i
	}
}

// Flush durably writes the snapshot: temp file, fsync, rename, directory
// sync. Callers must not issue the preference write this flush covers until
// Flush returns.
func (s *Store) Flush() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(&s.snap, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".snapshot-*.json")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return err
	}
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}

// Delete removes the snapshot file.
func (s *Store) Delete() error {
	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
