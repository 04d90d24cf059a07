package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"prefsync/internal/runner"
)

var (
	execAll     bool
	execFlagged bool
)

var execCmd = &cobra.Command{
	Use:     "exec [name]",
	Aliases: []string{"x"},
	Short:   "Run one or all external commands from the document",
	Long: `Without a name, runs all commands selected by the execution mode:
ensure-first commands sequentially in declaration order, the rest
concurrently. With a name, runs exactly that command, bypassing mode
filtering and ordering.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := ""
		if len(args) == 1 {
			name = args[0]
		}
		return runExec(cmd.Context(), name)
	},
}

func init() {
	f := execCmd.Flags()
	f.BoolVarP(&execAll, "all", "a", false, "run every command, flagged ones included")
	f.BoolVarP(&execFlagged, "flagged", "f", false, "run flag-gated commands only")
	execCmd.MarkFlagsMutuallyExclusive("all", "flagged")
	rootCmd.AddCommand(execCmd)
}

func runExec(ctx context.Context, name string) error {
	a := newApp()
	doc, err := a.cfg.Load()
	if err != nil {
		return err
	}
	if err := doc.EnsureUnlocked(); err != nil {
		return fmt.Errorf("%w; run `prefsync unlock` first", err)
	}
	if len(doc.Commands) == 0 {
		log.Warnf("no commands declared in the document")
		return nil
	}

	specs := runner.FromConfig(doc.Commands)
	r := runner.New(log, runner.Options{Vars: doc.Vars, DryRun: flagDryRun})

	if name != "" {
		res, err := r.RunOne(ctx, specs, name)
		if err != nil {
			return err
		}
		switch res.State {
		case runner.StateFailed:
			return fmt.Errorf("command %s failed: %w", res.Name, res.Err)
		case runner.StateSkipped:
			return fmt.Errorf("command %s skipped: %s", res.Name, res.Reason)
		}
		return nil
	}

	mode := runner.ModeRegular
	switch {
	case execAll:
		mode = runner.ModeAll
	case execFlagged:
		mode = runner.ModeFlagged
	}

	plan := runner.BuildPlan(specs, mode)
	if plan.Size() == 0 {
		log.Warnf("no commands matched the execution mode; try --all or --flagged")
		return nil
	}

	results := r.Run(ctx, plan)
	completed, failed, skipped := runner.Summarize(results)
	for _, res := range results {
		switch res.State {
		case runner.StateFailed:
			log.Warnf("command %s failed: %v", res.Name, res.Err)
		case runner.StateSkipped:
			log.Infof("command %s skipped: %s", res.Name, res.Reason)
		}
	}
	log.Infof("commands: %d completed, %d failed, %d skipped", completed, failed, skipped)

	if failed > 0 {
		return fmt.Errorf("%w: %d commands failed", errPartial, failed)
	}
	return nil
}
