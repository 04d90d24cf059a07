package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"prefsync/internal/config"
	"prefsync/internal/engine"
	"prefsync/internal/lockfile"
	"prefsync/internal/pkgs"
	"prefsync/internal/remote"
	"prefsync/internal/runner"
	"prefsync/internal/services"
	"prefsync/internal/snapshot"
)

var (
	applyURL        string
	applyNoCmd      bool
	applyAllCmd     bool
	applyFlaggedCmd bool
	applyNoDomCheck bool
	applyPackages   bool
)

var applyCmd = &cobra.Command{
	Use:     "apply",
	Aliases: []string{"set"},
	Short:   "Converge live preferences toward the document",
	Long: `Reads the target-state document, writes every preference key whose live
value differs, and records pre-change values in the snapshot so the run
can be reverted with unapply. External commands run afterwards unless
--no-cmd is given.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runApply(cmd.Context())
	},
}

func init() {
	f := applyCmd.Flags()
	f.StringVarP(&applyURL, "url", "u", "", "download the document from this URL before applying")
	f.BoolVar(&applyNoCmd, "no-cmd", false, "skip external commands")
	f.BoolVar(&applyAllCmd, "all-cmd", false, "run every external command, flagged ones included")
	f.BoolVar(&applyFlaggedCmd, "flagged-cmd", false, "run flag-gated external commands only")
	f.BoolVar(&applyNoDomCheck, "no-dom-check", false, "write into domains the backend does not know yet")
	f.BoolVar(&applyPackages, "packages", false, "install missing packages from the packages section")
	applyCmd.MarkFlagsMutuallyExclusive("no-cmd", "all-cmd", "flagged-cmd")
	rootCmd.AddCommand(applyCmd)
}

func runApply(ctx context.Context) error {
	a := newApp()

	if applyURL != "" {
		if a.cfg.Exists() && !confirm("Local config exists but a URL was passed. Overwrite it?") {
			return fmt.Errorf("apply aborted")
		}
		data, err := remote.New(applyURL, log).Fetch(ctx)
		if err != nil {
			return err
		}
		if err := a.cfg.SaveRaw(data); err != nil {
			return err
		}
		log.Infof("downloaded config to %s", a.cfg.Path())
	}

	doc, err := a.cfg.Load()
	if err != nil {
		return err
	}
	doc = remote.MaybeRefresh(ctx, a.cfg, doc, flagNoSync || doc.Lock, log)

	if err := doc.EnsureUnlocked(); err != nil {
		return fmt.Errorf("%w; run `prefsync unlock` first", err)
	}

	if !flagDryRun {
		lock, err := lockfile.Acquire(a.runLockPath())
		if err != nil {
			return err
		}
		defer lock.Unlock()
	}

	target, err := doc.Target()
	if err != nil {
		return err
	}
	digest, err := a.cfg.Digest()
	if err != nil {
		return err
	}

	snap, err := snapshot.Open(a.snapshotPath(), version)
	if err != nil {
		log.Warnf("snapshot unreadable (%v); starting a new one", err)
		log.Warnf("unapply will only cover changes from this run onward")
		snap = snapshot.OpenEmpty(a.snapshotPath(), version)
	}

	report := engine.New(a.backend, snap, log).Apply(ctx, target, engine.ApplyOptions{
		DryRun:              flagDryRun,
		AllowMissingDomains: applyNoDomCheck,
		Digest:              digest,
	})

	for _, f := range report.Failed {
		log.Warnf("failed %s %s: %v", f.Domain, f.Key, f.Err)
	}
	if report.Fatal != nil {
		return fmt.Errorf("apply aborted: %w", report.Fatal)
	}

	if len(report.ChangedDomains) > 0 && !flagNoRestart {
		services.Restart(ctx, services.ForDomains(report.ChangedDomains), flagDryRun, log)
	}

	pkgFailures := 0
	if applyPackages && doc.Packages != nil {
		pkgFailures = applyPackageLists(ctx, doc.Packages)
	}

	cmdFailed := 0
	if !applyNoCmd && len(doc.Commands) > 0 {
		mode := runner.ModeRegular
		switch {
		case applyAllCmd:
			mode = runner.ModeAll
		case applyFlaggedCmd:
			mode = runner.ModeFlagged
		}
		plan := runner.BuildPlan(runner.FromConfig(doc.Commands), mode)
		results := runner.New(log, runner.Options{Vars: doc.Vars, DryRun: flagDryRun}).Run(ctx, plan)

		completed, failed, skipped := runner.Summarize(results)
		cmdFailed = failed
		for _, res := range results {
			switch res.State {
			case runner.StateFailed:
				log.Warnf("command %s failed: %v", res.Name, res.Err)
			case runner.StateSkipped:
				log.Infof("command %s skipped: %s", res.Name, res.Reason)
			}
		}
		log.Infof("commands: %d completed, %d failed, %d skipped", completed, failed, skipped)

		if !flagDryRun && completed > 0 {
			snap.AddExecRuns(completed)
			if err := snap.Flush(); err != nil {
				log.Warnf("could not record command runs in snapshot: %v", err)
			}
		}
	}

	switch {
	case flagDryRun:
		log.Infof("dry-run: %d would change, %d in sync, %d failed", len(report.Changed), report.InSync, len(report.Failed))
		return nil
	case len(report.Failed) > 0 || cmdFailed > 0 || pkgFailures > 0:
		return fmt.Errorf("%w: %d keys failed, %d commands failed", errPartial, len(report.Failed), cmdFailed)
	default:
		log.Infof("apply complete: %d changed, %d already in sync", len(report.Changed), report.InSync)
		return nil
	}
}

func applyPackageLists(ctx context.Context, declared *config.Packages) int {
	mgr := pkgs.New(log)
	if !mgr.Installed(ctx) {
		log.Warnf("package manager not available, skipping package sync")
		return 0
	}
	diff, err := mgr.DiffState(ctx, declared)
	if err != nil {
		log.Warnf("could not diff packages: %v", err)
		return 1
	}
	if diff.Empty() {
		log.Infof("packages already in sync")
		return 0
	}
	return mgr.Install(ctx, diff, pkgs.InstallOptions{DryRun: flagDryRun})
}
