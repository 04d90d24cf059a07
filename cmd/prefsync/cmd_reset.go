package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"prefsync/internal/lockfile"
	"prefsync/internal/logging"
	"prefsync/internal/services"
	"prefsync/internal/snapshot"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete every declared key outright (hard reset)",
	Long: `Deletes every key the document declares, regardless of snapshot state,
returning them to their factory defaults. Use unapply instead when a
snapshot exists; reset is the recovery path for a lost or corrupt one.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReset(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(resetCmd)
}

func runReset(ctx context.Context) error {
	a := newApp()
	doc, err := a.cfg.Load()
	if err != nil {
		return err
	}
	if err := doc.EnsureUnlocked(); err != nil {
		return fmt.Errorf("%w; run `prefsync unlock` first", err)
	}
	target, err := doc.Target()
	if err != nil {
		return err
	}

	if !flagDryRun && !confirm(fmt.Sprintf("Hard-delete all %d declared keys?", len(target))) {
		return fmt.Errorf("reset aborted")
	}

	if !flagDryRun {
		lock, err := lockfile.Acquire(a.runLockPath())
		if err != nil {
			return err
		}
		defer lock.Unlock()
	}

	deleted := 0
	failed := 0
	domains := make(map[string]struct{})
	for _, s := range target {
		if flagDryRun {
			logging.Dry(log, "would delete %s %s", s.Domain, s.Key)
			continue
		}
		_, present, err := a.backend.Read(ctx, s.Domain, s.Key)
		if err != nil || !present {
			continue
		}
		if err := a.backend.Delete(ctx, s.Domain, s.Key); err != nil {
			failed++
			log.Warnf("delete %s %s: %v", s.Domain, s.Key, err)
			continue
		}
		deleted++
		domains[s.Domain] = struct{}{}
	}

	if flagDryRun {
		return nil
	}

	if deleted > 0 && !flagNoRestart {
		var changed []string
		for d := range domains {
			changed = append(changed, d)
		}
		services.Restart(ctx, services.ForDomains(changed), false, log)
	}

	// A hard reset invalidates any recorded rollback state.
	snap := snapshot.OpenEmpty(a.snapshotPath(), version)
	if err := snap.Delete(); err != nil {
		log.Warnf("could not remove snapshot file: %v", err)
	}

	if failed > 0 {
		return fmt.Errorf("%w: %d keys failed to delete", errPartial, failed)
	}
	log.Infof("reset complete: %d keys deleted", deleted)
	return nil
}
