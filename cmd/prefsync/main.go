// Package main implements the prefsync command-line tool: a declarative
// reconciler for host preference domains with exact rollback, external
// command orchestration, and package-list management.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"prefsync/internal/config"
	"prefsync/internal/logging"
	"prefsync/internal/prefs"
)

const version = "0.4.0"

// errPartial marks runs where some keys or commands succeeded and others
// failed. It maps to a distinct exit code.
var errPartial = errors.New("run partially failed")

var (
	// Global flags.
	flagConfig    string
	flagVerbose   bool
	flagQuiet     bool
	flagDryRun    bool
	flagAcceptAll bool
	flagNoRestart bool
	flagNoSync    bool

	log *zap.SugaredLogger
)

// app bundles the explicit state handles every command receives: the config
// document handle, the snapshot location, and the preference backend.
type app struct {
	cfg     *config.Config
	backend prefs.Backend
}

func newApp() *app {
	path := flagConfig
	if path == "" {
		path = config.DefaultPath()
	}
	return &app{
		cfg:     config.New(path),
		backend: prefs.NewDefaultsBackend(),
	}
}

// snapshotPath keeps the snapshot next to the config document.
func (a *app) snapshotPath() string {
	return filepath.Join(filepath.Dir(a.cfg.Path()), "snapshot.json")
}

// runLockPath is the exclusive run lock guarding the snapshot file.
func (a *app) runLockPath() string {
	return filepath.Join(filepath.Dir(a.cfg.Path()), ".run.lock")
}

// confirm asks a yes/no question on the terminal. --accept-all answers yes.
func confirm(prompt string) bool {
	if flagAcceptAll {
		log.Infof("%s (auto-accepted)", prompt)
		return true
	}
	fmt.Fprintf(os.Stderr, "%s [y/N]: ", prompt)
	line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	line = strings.ToLower(strings.TrimSpace(line))
	return line == "y" || line == "yes"
}

var rootCmd = &cobra.Command{
	Use:     "prefsync",
	Version: version,
	Short:   "Declarative preference-domain manager with exact rollback",
	Long: `prefsync converges host preference domains toward a declarative YAML
document, records pre-change values so every apply can be rolled back
exactly, and runs externally defined commands under ordering and
concurrency constraints.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log = logging.New(flagVerbose, flagQuiet)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flagConfig, "config", "c", "", "path to the target-state document")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "increase output verbosity")
	pf.BoolVarP(&flagQuiet, "quiet", "q", false, "suppress all output except warnings and errors")
	pf.BoolVar(&flagDryRun, "dry-run", false, "report what would change without changing anything")
	pf.BoolVarP(&flagAcceptAll, "accept-all", "y", false, "answer yes to every prompt")
	pf.BoolVarP(&flagNoRestart, "no-restart-services", "N", false, "do not restart system services after changes")
	pf.BoolVar(&flagNoSync, "no-sync", false, "skip remote document sync even when autosync is enabled")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	stop()
	switch {
	case err == nil:
		os.Exit(0)
	case errors.Is(err, errPartial):
		os.Exit(2)
	default:
		os.Exit(1)
	}
}
