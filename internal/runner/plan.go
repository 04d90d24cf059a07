// Package runner schedules and executes the externally defined commands from
// the target document: a strictly sequential ensure-first phase followed by
// a bounded-concurrency phase, with per-command result isolation.
package runner

import (
	"fmt"

	"prefsync/internal/config"
)

// Mode selects which commands an all-commands run includes.
type Mode int

const (
	// ModeRegular runs unflagged commands only.
	ModeRegular Mode = iota
	// ModeAll runs every command.
	ModeAll
	// ModeFlagged runs flag-gated commands only.
	ModeFlagged
)

// State is the per-command lifecycle within one run.
type State int

const (
	StatePlanned State = iota
	StateRunning
	StateCompleted
	StateFailed
	StateSkipped
)

func (s State) String() string {
	switch s {
	case StatePlanned:
		return "planned"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateSkipped:
		return "skipped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateSkipped
}

func allowedTransition(from, to State) bool {
	switch from {
	case StatePlanned:
		return to == StateRunning || to == StateSkipped
	case StateRunning:
		return to == StateCompleted || to == StateFailed
	default:
		return false
	}
}

// Spec is one command to run, immutable for the duration of a run.
type Spec struct {
	Name        string
	Run         string
	Sudo        bool
	EnsureFirst bool
	Flag        bool
	Required    []string
}

// FromConfig converts document commands in declaration order.
func FromConfig(cmds config.Commands) []Spec {
	out := make([]Spec, len(cmds))
	for i, c := range cmds {
		out[i] = Spec{
			Name:        c.Name,
			Run:         c.Run,
			Sudo:        c.Sudo,
			EnsureFirst: c.EnsureFirst,
			Flag:        c.Flag,
			Required:    c.Required,
		}
	}
	return out
}

// Plan is the derived execution order: ensure-first commands in declaration
// order, then the set eligible for concurrent execution.
type Plan struct {
	Serial     []Spec
	Concurrent []Spec
}

// BuildPlan filters specs by mode and splits them into the serial and
// concurrent groups. Declaration order is preserved within each group.
func BuildPlan(specs []Spec, mode Mode) Plan {
	var plan Plan
	for _, s := range specs {
		if (mode == ModeRegular && s.Flag) || (mode == ModeFlagged && !s.Flag) {
			continue
		}
		if s.EnsureFirst {
			plan.Serial = append(plan.Serial, s)
		} else {
			plan.Concurrent = append(plan.Concurrent, s)
		}
	}
	return plan
}

// Size returns the total number of planned commands.
func (p Plan) Size() int { return len(p.Serial) + len(p.Concurrent) }
