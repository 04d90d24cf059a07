package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"prefsync/internal/engine"
	"prefsync/internal/pkgs"
	"prefsync/internal/remote"
)

var statusNoPkgs bool

var statusCmd = &cobra.Command{
	Use:     "status",
	Aliases: []string{"s"},
	Short:   "Compare live state against the document without changing anything",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStatus(cmd.Context())
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusNoPkgs, "no-pkgs", false, "skip the package-list check")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(ctx context.Context) error {
	a := newApp()

	doc, err := a.cfg.Load()
	if err != nil {
		return err
	}
	doc = remote.MaybeRefresh(ctx, a.cfg, doc, flagNoSync || doc.Lock, log)

	target, err := doc.Target()
	if err != nil {
		return err
	}

	diffs, err := engine.New(a.backend, nil, log).Diff(ctx, target)
	if err != nil {
		return fmt.Errorf("status aborted: %w", err)
	}

	diverged := 0
	lastDomain := ""
	for _, d := range diffs {
		if d.Domain != lastDomain {
			fmt.Println(d.Domain)
			lastDomain = d.Domain
		}
		switch {
		case d.Err != nil:
			diverged++
			fmt.Printf("  %s: unreadable (%v)\n", d.Key, d.Err)
		case d.State == engine.MissingDomain:
			diverged++
			fmt.Printf("  %s: domain missing, should be %s\n", d.Key, d.Target)
		case d.State == engine.Diverged:
			diverged++
			current := "not set"
			if d.Current != nil {
				current = d.Current.String()
			}
			fmt.Printf("  %s: should be %s (now: %s)\n", d.Key, d.Target, current)
		default:
			fmt.Printf("  [ok] %s: %s\n", d.Key, d.Target)
		}
	}

	if diverged > 0 {
		log.Warnf("%d of %d keys diverged; run `prefsync apply` to converge", diverged, len(diffs))
	} else {
		log.Infof("all %d keys in sync", len(diffs))
	}

	if doc.Packages != nil && !statusNoPkgs {
		mgr := pkgs.New(log)
		if !mgr.Installed(ctx) {
			log.Warnf("package manager not available, skipping package check")
			return nil
		}
		diff, err := mgr.DiffState(ctx, doc.Packages)
		if err != nil {
			log.Warnf("could not check packages: %v", err)
			return nil
		}
		fmt.Println("packages")
		printPackagesStatus(diff)
	}
	return nil
}

// printPackagesStatus reports declared-vs-installed package divergence.
func printPackagesStatus(missing pkgs.Diff) {
	checks := []struct {
		label string
		items []string
	}{
		{"formulae missing", missing.MissingFormulae},
		{"extra formulae installed", missing.ExtraFormulae},
		{"casks missing", missing.MissingCasks},
		{"extra casks installed", missing.ExtraCasks},
		{"taps missing", missing.MissingTaps},
		{"extra taps", missing.ExtraTaps},
	}
	found := false
	for _, c := range checks {
		if len(c.items) > 0 {
			found = true
			fmt.Printf("  %s: %s\n", c.label, strings.Join(c.items, ", "))
		}
	}
	if !found {
		log.Infof("packages in sync")
	}
}
