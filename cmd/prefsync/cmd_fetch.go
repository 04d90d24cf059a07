package main

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"prefsync/internal/logging"
	"prefsync/internal/remote"
)

var fetchForce bool

var fetchCmd = &cobra.Command{
	Use:     "fetch",
	Aliases: []string{"get"},
	Short:   "Replace the local document with the declared remote source",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFetch(cmd.Context())
	},
}

func init() {
	fetchCmd.Flags().BoolVarP(&fetchForce, "force", "f", false, "overwrite even when the remote document is identical")
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(ctx context.Context) error {
	a := newApp()
	doc, err := a.cfg.Load()
	if err != nil {
		return err
	}
	if err := doc.EnsureUnlocked(); err != nil {
		return fmt.Errorf("%w; run `prefsync unlock` first", err)
	}
	if doc.Remote == nil || doc.Remote.URL == "" {
		return fmt.Errorf("no remote source declared; add a remote section with a url first")
	}

	data, err := remote.New(doc.Remote.URL, log).Fetch(ctx)
	if err != nil {
		return err
	}

	local, err := os.ReadFile(a.cfg.Path())
	if err != nil {
		return err
	}
	if !fetchForce && bytes.Equal(bytes.TrimSpace(local), bytes.TrimSpace(data)) {
		log.Infof("local document already matches %s", doc.Remote.URL)
		return nil
	}

	if flagDryRun {
		logging.Dry(log, "would overwrite %s with document from %s", a.cfg.Path(), doc.Remote.URL)
		return nil
	}
	if !confirm("Overwrite local document with remote version?") {
		return fmt.Errorf("fetch aborted")
	}
	if err := a.cfg.SaveRaw(data); err != nil {
		return err
	}
	log.Infof("saved remote document to %s", a.cfg.Path())
	return nil
}
