package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownType indicates a workflow type outside the supported set.
	ErrUnknownType = errors.New("unknown workflow type")

	// ErrInvalidTransition is returned when a state record is asked to
	// move backwards through (or out of order in) the pipeline.
	ErrInvalidTransition = errors.New("invalid transition")
)

// Type is the workflow variant of a run.
type Type string

const (
	PrinterOffline Type = "printer_offline"
	InkError       Type = "ink_error"
)

// Types returns the supported workflow types.
func Types() []Type {
	return []Type{PrinterOffline, InkError}
}

// Valid reports whether t is a supported workflow type.
func (t Type) Valid() bool {
	for _, v := range Types() {
		if t == v {
			return true
		}
	}
	return false
}

func (t Type) String() string {
	return string(t)
}

// ParseType converts s into a supported workflow type.
func ParseType(s string) (Type, error) {
	t := Type(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
	}
	return t, nil
}

// Stage is the point in the remediation pipeline a run has reached.
type Stage string

const (
	StageTriggered  Stage = "triggered"
	StageDiagnosing Stage = "diagnosing"
	StageActing     Stage = "acting"
	StageVerifying  Stage = "verifying"
	StageClosing    Stage = "closing"
	StageEscalated  Stage = "escalated"
	StageCompleted  Stage = "completed"
	StageFailed     Stage = "failed"
)

// Terminal reports whether no further stage follows s.
func (s Stage) Terminal() bool {
	return s == StageEscalated || s == StageCompleted || s == StageFailed
}

// CanTransitionTo reports whether a run at stage s may move to target.
// Staying at the same stage is always permitted for non-terminal stages.
// The only edge leading back up the pipeline is the verification retry
// (verifying to diagnosing).
func (s Stage) CanTransitionTo(target Stage) bool {
	if s.Terminal() {
		return false
	}
	if target == s || target == StageFailed {
		return true
	}
	switch s {
	case StageTriggered:
		return target == StageDiagnosing
	case StageDiagnosing:
		return target == StageActing
	case StageActing:
		return target == StageVerifying
	case StageVerifying:
		return target == StageDiagnosing || target == StageClosing
	case StageClosing:
		return target == StageEscalated || target == StageCompleted
	default:
		return false
	}
}

// Status is the coarse outcome of a run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusEscalated Status = "escalated"
	StatusFailed    Status = "failed"
)

// Terminal reports whether s is a final status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusEscalated || s == StatusFailed
}

// CanTransitionTo reports whether a run with status s may move to target.
func (s Status) CanTransitionTo(target Status) bool {
	switch s {
	case StatusPending:
		return target == StatusPending || target == StatusRunning || target == StatusFailed
	case StatusRunning:
		return target != StatusPending
	default:
		return false
	}
}
