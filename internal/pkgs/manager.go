// Package pkgs wraps the system package manager for the auxiliary package
// lists in the target document. It is a boundary component: prefsync only
// diffs, installs missing entries, and backs installed state into the
// document.
package pkgs

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"

	"go.uber.org/zap"

	"prefsync/internal/config"
	"prefsync/internal/logging"
)

// ListType selects which package class to list.
type ListType string

const (
	Formula    ListType = "--formula"
	Cask       ListType = "--cask"
	Tap        ListType = "tap"
	Dependency ListType = "--installed-as-dependency"
)

// Diff is the divergence between declared and installed packages.
type Diff struct {
	MissingFormulae []string
	ExtraFormulae   []string
	MissingCasks    []string
	ExtraCasks      []string
	MissingTaps     []string
	ExtraTaps       []string
}

// Empty reports a fully converged package state.
func (d Diff) Empty() bool {
	return len(d.MissingFormulae) == 0 && len(d.ExtraFormulae) == 0 &&
		len(d.MissingCasks) == 0 && len(d.ExtraCasks) == 0 &&
		len(d.MissingTaps) == 0 && len(d.ExtraTaps) == 0
}

// Manager shells out to the package manager binary.
type Manager struct {
	bin string
	log *zap.SugaredLogger

	run func(ctx context.Context, args ...string) (string, error)
}

func New(log *zap.SugaredLogger) *Manager {
	m := &Manager{bin: "brew", log: log}
	m.run = func(ctx context.Context, args ...string) (string, error) {
		cmd := exec.CommandContext(ctx, m.bin, args...)
		cmd.Env = append(os.Environ(),
			"HOMEBREW_NO_AUTO_UPDATE=1",
			"HOMEBREW_NO_ANALYTICS=1",
			"HOMEBREW_NO_ENV_HINTS=1",
		)
		out, err := cmd.Output()
		return string(out), err
	}
	return m
}

// Installed reports whether the package manager is available at all.
func (m *Manager) Installed(ctx context.Context) bool {
	_, err := m.run(ctx, "--version")
	return err == nil
}

// List returns installed entries of the given class, one per line of tool
// output.
func (m *Manager) List(ctx context.Context, t ListType) ([]string, error) {
	var args []string
	if t == Tap {
		args = []string{"tap"}
	} else {
		args = []string{"list", "--quiet", "--full-name", "-1", string(t)}
	}
	out, err := m.run(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", t, err)
	}
	var lines []string
	for _, l := range strings.Split(out, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines, nil
}

// flattenTapPrefix adds the bare name next to fully tap-qualified entries so
// declared short names match installed full names.
func flattenTapPrefix(entries []string) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e)
		if parts := strings.Split(e, "/"); len(parts) == 3 {
			out = append(out, parts[2])
		}
	}
	return out
}

func missingAndExtra(declared, installed []string) (missing, extra []string) {
	decl := make(map[string]struct{}, len(declared))
	inst := make(map[string]struct{}, len(installed))
	for _, d := range declared {
		decl[d] = struct{}{}
	}
	for _, i := range installed {
		inst[i] = struct{}{}
	}
	for _, d := range declared {
		if _, ok := inst[d]; !ok {
			missing = append(missing, d)
		}
	}
	for _, i := range installed {
		if _, ok := decl[i]; !ok {
			extra = append(extra, i)
		}
	}
	sort.Strings(missing)
	sort.Strings(extra)
	return missing, extra
}

// DiffState compares the declared package lists against installed state.
func (m *Manager) DiffState(ctx context.Context, declared *config.Packages) (Diff, error) {
	formulae, err := m.List(ctx, Formula)
	if err != nil {
		return Diff{}, err
	}
	casks, err := m.List(ctx, Cask)
	if err != nil {
		return Diff{}, err
	}
	taps, err := m.List(ctx, Tap)
	if err != nil {
		return Diff{}, err
	}

	if declared.NoDeps {
		deps, err := m.List(ctx, Dependency)
		if err != nil {
			return Diff{}, err
		}
		depSet := make(map[string]struct{}, len(deps))
		for _, d := range flattenTapPrefix(deps) {
			depSet[d] = struct{}{}
		}
		kept := formulae[:0]
		for _, f := range formulae {
			if _, ok := depSet[f]; !ok {
				kept = append(kept, f)
			}
		}
		formulae = kept
	}

	var d Diff
	d.MissingFormulae, d.ExtraFormulae = missingAndExtra(flattenTapPrefix(declared.Formulae), flattenTapPrefix(formulae))
	d.MissingCasks, d.ExtraCasks = missingAndExtra(flattenTapPrefix(declared.Casks), flattenTapPrefix(casks))
	d.MissingTaps, d.ExtraTaps = missingAndExtra(declared.Taps, taps)
	return d, nil
}

// InstallOptions tune Install.
type InstallOptions struct {
	DryRun      bool
	Force       bool
	SkipCasks   bool
	SkipFormula bool
}

// Install converges missing taps, formulae, and casks. Individual install
// failures are logged and counted, not fatal to the rest.
func (m *Manager) Install(ctx context.Context, d Diff, opts InstallOptions) (failed int) {
	install := func(kind string, args []string, name string) {
		if opts.DryRun {
			logging.Dry(m.log, "would install %s %s", kind, name)
			return
		}
		if _, err := m.run(ctx, append(args, name)...); err != nil {
			m.log.Warnf("install %s %s: %v", kind, name, err)
			failed++
			return
		}
		m.log.Infof("installed %s %s", kind, name)
	}

	for _, t := range d.MissingTaps {
		install("tap", []string{"tap"}, t)
	}
	if !opts.SkipFormula {
		args := []string{"install", "--formula"}
		if opts.Force {
			args = append(args, "--force")
		}
		for _, f := range d.MissingFormulae {
			install("formula", args, f)
		}
	}
	if !opts.SkipCasks {
		args := []string{"install", "--cask"}
		if opts.Force {
			args = append(args, "--force")
		}
		for _, c := range d.MissingCasks {
			install("cask", args, c)
		}
	}
	return failed
}

// Backup captures installed state as a Packages section for the document.
func (m *Manager) Backup(ctx context.Context, noDeps bool) (*config.Packages, error) {
	p := &config.Packages{NoDeps: noDeps}
	var err error
	if p.Formulae, err = m.List(ctx, Formula); err != nil {
		return nil, err
	}
	if p.Casks, err = m.List(ctx, Cask); err != nil {
		return nil, err
	}
	if p.Taps, err = m.List(ctx, Tap); err != nil {
		return nil, err
	}
	if noDeps {
		deps, err := m.List(ctx, Dependency)
		if err != nil {
			return nil, err
		}
		depSet := make(map[string]struct{}, len(deps))
		for _, d := range deps {
			depSet[d] = struct{}{}
		}
		kept := p.Formulae[:0]
		for _, f := range p.Formulae {
			if _, ok := depSet[f]; !ok {
				kept = append(kept, f)
			}
		}
		p.Formulae = kept
	}
	sort.Strings(p.Formulae)
	sort.Strings(p.Casks)
	sort.Strings(p.Taps)
	return p, nil
}
