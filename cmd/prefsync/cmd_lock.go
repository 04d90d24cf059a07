package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"prefsync/internal/config"
	"prefsync/internal/logging"
)

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Set the document lock flag, blocking all mutating operations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return setLock(true)
	},
}

var unlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Clear the document lock flag",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return setLock(false)
	},
}

func init() {
	rootCmd.AddCommand(lockCmd)
	rootCmd.AddCommand(unlockCmd)
}

func setLock(locked bool) error {
	a := newApp()
	verb := "lock"
	if !locked {
		verb = "unlock"
	}
	if flagDryRun {
		logging.Dry(log, "would %s %s", verb, a.cfg.Path())
		return nil
	}
	err := a.cfg.SetLock(locked)
	switch {
	case errors.Is(err, config.ErrLockUnchanged):
		return fmt.Errorf("already %sed", verb)
	case err != nil:
		return err
	}
	log.Infof("%sed %s", verb, a.cfg.Path())
	return nil
}
