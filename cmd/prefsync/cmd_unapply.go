package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"prefsync/internal/config"
	"prefsync/internal/lockfile"
	"prefsync/internal/logging"
	"prefsync/internal/services"
	"prefsync/internal/snapshot"
)

var unapplyCmd = &cobra.Command{
	Use:     "unapply",
	Aliases: []string{"undo"},
	Short:   "Restore every snapshotted key to its pre-apply state",
	Long: `Walks the snapshot in reverse order: keys that existed before the first
apply get their original value back, keys that did not are deleted. The
snapshot entry is removed after each successful restore.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runUnapply(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(unapplyCmd)
}

func runUnapply(ctx context.Context) error {
	a := newApp()

	// The document may be gone while a snapshot still exists; rollback must
	// still work then. The lock gate applies only when a document loads.
	doc, err := a.cfg.Load()
	switch {
	case errors.Is(err, config.ErrNotFound):
		log.Warnf("no config document found; restoring from snapshot alone")
		doc = nil
	case err != nil:
		return err
	default:
		if err := doc.EnsureUnlocked(); err != nil {
			return fmt.Errorf("%w; run `prefsync unlock` first", err)
		}
	}

	snap, err := snapshot.Open(a.snapshotPath(), version)
	if err != nil {
		return fmt.Errorf("cannot read snapshot: %w; use `prefsync reset` to hard-reset declared keys", err)
	}
	if snap.Len() == 0 {
		log.Warnf("no snapshot found, nothing to revert")
		return nil
	}

	if doc != nil {
		if digest, err := a.cfg.Digest(); err == nil && snap.Digest() != "" && digest != snap.Digest() {
			log.Warnf("config changed since the last apply; only previously applied changes are reverted")
		}
	}

	if flagDryRun {
		for _, e := range snap.Entries() {
			if e.Existed {
				logging.Dry(log, "would restore %s %s -> %s", e.Domain, e.Key, e.Original)
			} else {
				logging.Dry(log, "would delete %s %s", e.Domain, e.Key)
			}
		}
		logging.Dry(log, "would remove snapshot %s", snap.Path())
		return nil
	}

	lock, err := lockfile.Acquire(a.runLockPath())
	if err != nil {
		return err
	}
	defer lock.Unlock()

	results := snap.RestoreAll(ctx, a.backend)

	restored := 0
	failed := 0
	domains := make(map[string]struct{})
	for _, res := range results {
		if res.Err != nil {
			failed++
			log.Warnf("restore %s %s: %v", res.Domain, res.Key, res.Err)
			continue
		}
		restored++
		domains[res.Domain] = struct{}{}
		if res.Deleted {
			log.Infof("deleted %s %s", res.Domain, res.Key)
		} else {
			log.Infof("restored %s %s", res.Domain, res.Key)
		}
	}

	if snap.ExecRuns() > 0 {
		log.Warnf("%d commands were executed by previous applies; revert their effects manually", snap.ExecRuns())
	}

	if restored > 0 && !flagNoRestart {
		var changed []string
		for d := range domains {
			changed = append(changed, d)
		}
		services.Restart(ctx, services.ForDomains(changed), false, log)
	}

	if snap.Len() == 0 {
		if err := snap.Delete(); err != nil {
			log.Warnf("could not remove snapshot file: %v", err)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%w: %d of %d keys failed to restore", errPartial, failed, restored+failed)
	}
	log.Infof("unapply complete: %d keys restored", restored)
	return nil
}
