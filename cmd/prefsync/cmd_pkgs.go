package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"prefsync/internal/logging"
	"prefsync/internal/pkgs"
)

var (
	pkgsForce       bool
	pkgsSkipCasks   bool
	pkgsSkipFormula bool
	pkgsNoDeps      bool
)

var pkgsCmd = &cobra.Command{
	Use:   "pkgs",
	Short: "Manage the auxiliary package lists",
}

var pkgsInstallCmd = &cobra.Command{
	Use:     "install",
	Aliases: []string{"apply"},
	Short:   "Install missing packages from the document",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPkgsInstall(cmd.Context())
	},
}

var pkgsBackupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Write the installed package state into the document",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPkgsBackup(cmd.Context())
	},
}

func init() {
	f := pkgsInstallCmd.Flags()
	f.BoolVar(&pkgsForce, "force", false, "pass --force to individual installs")
	f.BoolVar(&pkgsSkipCasks, "skip-casks", false, "do not install casks")
	f.BoolVar(&pkgsSkipFormula, "skip-formulae", false, "do not install formulae")
	pkgsBackupCmd.Flags().BoolVar(&pkgsNoDeps, "no-deps", false, "exclude packages installed only as dependencies")
	pkgsCmd.AddCommand(pkgsInstallCmd)
	pkgsCmd.AddCommand(pkgsBackupCmd)
	rootCmd.AddCommand(pkgsCmd)
}

func runPkgsInstall(ctx context.Context) error {
	a := newApp()
	doc, err := a.cfg.Load()
	if err != nil {
		return err
	}
	if err := doc.EnsureUnlocked(); err != nil {
		return fmt.Errorf("%w; run `prefsync unlock` first", err)
	}
	if doc.Packages == nil {
		log.Warnf("no packages section in the document")
		return nil
	}

	mgr := pkgs.New(log)
	if !mgr.Installed(ctx) {
		return fmt.Errorf("package manager not found in PATH")
	}
	diff, err := mgr.DiffState(ctx, doc.Packages)
	if err != nil {
		return err
	}
	if diff.Empty() {
		log.Infof("packages already in sync")
		return nil
	}
	failed := mgr.Install(ctx, diff, pkgs.InstallOptions{
		DryRun:      flagDryRun,
		Force:       pkgsForce,
		SkipCasks:   pkgsSkipCasks,
		SkipFormula: pkgsSkipFormula,
	})
	if failed > 0 {
		return fmt.Errorf("%w: %d packages failed to install", errPartial, failed)
	}
	return nil
}

func runPkgsBackup(ctx context.Context) error {
	a := newApp()
	doc, err := a.cfg.Load()
	if err != nil {
		return err
	}
	if err := doc.EnsureUnlocked(); err != nil {
		return fmt.Errorf("%w; run `prefsync unlock` first", err)
	}

	mgr := pkgs.New(log)
	if !mgr.Installed(ctx) {
		return fmt.Errorf("package manager not found in PATH")
	}
	captured, err := mgr.Backup(ctx, pkgsNoDeps)
	if err != nil {
		return err
	}

	if flagDryRun {
		logging.Dry(log, "would record %d formulae, %d casks, %d taps in %s",
			len(captured.Formulae), len(captured.Casks), len(captured.Taps), a.cfg.Path())
		return nil
	}

	doc.Packages = captured
	if err := a.cfg.Save(doc); err != nil {
		return err
	}
	log.Infof("recorded %d formulae, %d casks, %d taps", len(captured.Formulae), len(captured.Casks), len(captured.Taps))
	return nil
}
