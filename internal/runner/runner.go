package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"prefsync/internal/logging"
)

// DefaultLimit bounds the concurrent phase when Options.Limit is zero.
const DefaultLimit = 4

// Result captures one command's outcome. Failures never cross command
// boundaries; each Result stands alone.
type Result struct {
	Name     string
	State    State
	Reason   string
	Err      error
	ExitCode int
	Started  time.Time
	Finished time.Time
}

// Options configure a Runner for one run.
type Options struct {
	// Vars is the document variable table for command-text substitution.
	Vars map[string]string

	// DryRun plans and reports without launching processes.
	DryRun bool

	// Limit bounds the concurrent phase. Zero means DefaultLimit.
	Limit int
}

// Runner executes a Plan. The serial group fully drains before the
// concurrent group is dispatched.
type Runner struct {
	log  *zap.SugaredLogger
	opts Options

	// lookPath and start are replaceable in tests.
	lookPath func(string) (string, error)
	start    func(ctx context.Context, argv []string) error
}

func New(log *zap.SugaredLogger, opts Options) *Runner {
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	return &Runner{
		log:      log,
		opts:     opts,
		lookPath: exec.LookPath,
		start:    startProcess,
	}
}

func startProcess(ctx context.Context, argv []string) error {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// Expand substitutes $name and ${name} in command text from the variable
// table, then the process environment. Unknown names stay as ${name} so the
// shell (or the operator) can spot them.
func Expand(text string, vars map[string]string) string {
	return os.Expand(text, func(name string) string {
		if v, ok := vars[name]; ok {
			return v
		}
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		return "${" + name + "}"
	})
}

// missingBinaries returns required executables absent from the search path.
func (r *Runner) missingBinaries(spec Spec) []string {
	var missing []string
	for _, bin := range spec.Required {
		if _, err := r.lookPath(bin); err != nil {
			missing = append(missing, bin)
		}
	}
	return missing
}

func (r *Runner) transition(res *Result, to State) {
	if !allowedTransition(res.State, to) {
		// Programming error in the scheduler, not a user-visible failure.
		res.Err = fmt.Errorf("invalid state transition for %q: %s -> %s", res.Name, res.State, to)
		res.State = StateFailed
		return
	}
	res.State = to
}

// runOne drives a single command through its state machine.
func (r *Runner) runOne(ctx context.Context, spec Spec) Result {
	res := Result{Name: spec.Name, State: StatePlanned}

	if missing := r.missingBinaries(spec); len(missing) > 0 {
		r.transition(&res, StateSkipped)
		res.Reason = "missing binaries: " + strings.Join(missing, ", ")
		r.log.Warnf("skipping %s: %s", spec.Name, res.Reason)
		return res
	}

	text := Expand(spec.Run, r.opts.Vars)
	argv := []string{"sh", "-c", text}
	if spec.Sudo {
		argv = append([]string{"sudo"}, argv...)
	}

	if r.opts.DryRun {
		logging.Dry(r.log, "would execute %s: %s", spec.Name, strings.Join(argv, " "))
		res.Reason = "dry-run"
		return res
	}

	r.transition(&res, StateRunning)
	res.Started = time.Now()
	r.log.Infof("executing %s", spec.Name)

	err := r.start(ctx, argv)
	res.Finished = time.Now()

	if err != nil {
		r.transition(&res, StateFailed)
		res.Err = err
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		}
		if ctx.Err() != nil {
			res.Reason = "cancelled"
		}
		r.log.Warnf("command %s failed: %v", spec.Name, err)
		return res
	}

	r.transition(&res, StateCompleted)
	return res
}

// Run executes the plan: the serial group one at a time in order (a failure
// is recorded but later serial commands still run), then the concurrent
// group under the configured limit, each command isolated from its siblings.
func (r *Runner) Run(ctx context.Context, plan Plan) []Result {
	results := make([]Result, 0, plan.Size())

	for _, spec := range plan.Serial {
		results = append(results, r.runOne(ctx, spec))
	}

	concurrent := make([]Result, len(plan.Concurrent))
	var g errgroup.Group
	g.SetLimit(r.opts.Limit)
	for i, spec := range plan.Concurrent {
		g.Go(func() error {
			concurrent[i] = r.runOne(ctx, spec)
			return nil
		})
	}
	// Workers never return errors; results carry per-command outcomes.
	_ = g.Wait()

	return append(results, concurrent...)
}

// RunOne executes exactly one named command, bypassing mode filtering and
// ordering.
func (r *Runner) RunOne(ctx context.Context, specs []Spec, name string) (Result, error) {
	for _, spec := range specs {
		if spec.Name == name {
			return r.runOne(ctx, spec), nil
		}
	}
	return Result{}, fmt.Errorf("no such command %q", name)
}

// Summarize counts terminal outcomes.
func Summarize(results []Result) (completed, failed, skipped int) {
	for _, res := range results {
		switch res.State {
		case StateCompleted:
			completed++
		case StateFailed:
			failed++
		case StateSkipped:
			skipped++
		}
	}
	return completed, failed, skipped
}
