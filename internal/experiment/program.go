// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package experiment

import (
	"fmt"
	"time"
)

// Phase of the staged program.
type Phase int

const (
	PhaseInitial Phase = iota
	PhaseBaselineEnded
	PhaseRecoveryArmed
	PhaseFinished
)

func (p Phase) String() string {
	switch p {
	case PhaseInitial:
		return "initial"
	case PhaseBaselineEnded:
		return "baseline-ended"
	case PhaseRecoveryArmed:
		return "recovery-armed"
	case PhaseFinished:
		return "finished"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// ActionKind tells the worker what a program step asks for.
type ActionKind int

const (
	ActionApply ActionKind = iota // apply the preset of Action.Code
	ActionFinish
)

type Action struct {
	Kind ActionKind
	Code int
}

// Program is the staged exposure schedule. It holds no clock; the caller
// passes the time of every step.
//
// The requested code runs for Baseline, then the baseline preset is applied.
// Once humidity rises above Threshold the requested code is applied again,
// and Recovery later the program finishes.
type Program struct {
	Code      int
	Baseline  time.Duration
	Recovery  time.Duration
	Threshold float64 // kg/m³

	phase         Phase
	start         time.Time
	recoveryStart time.Time
}

// NewProgram starts a program at start.
func NewProgram(code int, start time.Time, baseline, recovery time.Duration, threshold float64) *Program {
	return &Program{
		Code:      code,
		Baseline:  baseline,
		Recovery:  recovery,
		Threshold: threshold,
		start:     start,
	}
}

func (p *Program) Phase() Phase {
	return p.phase
}

// RecoveryStart is zero until recovery is armed.
func (p *Program) RecoveryStart() time.Time {
	return p.recoveryStart
}

// Step advances the program given the last observed humidity. Several
// transitions may fire in one step; each fires at most once.
func (p *Program) Step(now time.Time, humidity float64) []Action {
	var actions []Action

	if p.phase == PhaseInitial && now.Sub(p.start) >= p.Baseline {
		actions = append(actions, Action{Kind: ActionApply, Code: CodeBaseline})
		p.phase = PhaseBaselineEnded
	}
	if p.phase == PhaseBaselineEnded && humidity > p.Threshold {
		actions = append(actions, Action{Kind: ActionApply, Code: p.Code})
		p.phase = PhaseRecoveryArmed
		p.recoveryStart = now
	}
	if p.phase == PhaseRecoveryArmed && now.Sub(p.recoveryStart) >= p.Recovery {
		actions = append(actions, Action{Kind: ActionFinish})
		p.phase = PhaseFinished
	}
	return actions
}
