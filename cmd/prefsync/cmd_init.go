package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"prefsync/internal/config"
	"prefsync/internal/logging"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a commented starter document",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInit()
	},
}

var configCmd = &cobra.Command{
	Use:     "config",
	Aliases: []string{"conf"},
	Short:   "Show the current document",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := newApp()
		data, err := os.ReadFile(a.cfg.Path())
		if err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("%w: %s", config.ErrNotFound, a.cfg.Path())
			}
			return err
		}
		fmt.Print(string(data))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(configCmd)
}

func runInit() error {
	a := newApp()
	if a.cfg.Exists() {
		if !confirm(fmt.Sprintf("Document %s exists. Overwrite it?", a.cfg.Path())) {
			return fmt.Errorf("init aborted")
		}
	}
	if flagDryRun {
		logging.Dry(log, "would write starter document to %s", a.cfg.Path())
		return nil
	}
	if err := a.cfg.SaveRaw([]byte(config.Starter)); err != nil {
		return err
	}
	log.Infof("wrote starter document to %s", a.cfg.Path())
	return nil
}
