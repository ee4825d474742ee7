package workflow

import (
	"fmt"
	"time"
)

// now is the clock used for state timestamps.
var now = func() time.Time { return time.Now().UTC() }

// KeyIntent is the diagnosis key holding the classified intent.
const KeyIntent = "intent"

// LogLevel is the severity of an audit log entry.
type LogLevel string

const (
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// LogEntry is a single audit log event of a run.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     LogLevel  `json:"level"`
	Message   string    `json:"message"`
	Data      Fields    `json:"data"`
}

// ActionResult records one executed remediation action.
type ActionResult struct {
	Name        string    `json:"name"`
	Success     bool      `json:"success"`
	Details     string    `json:"details,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// VerificationResult is the outcome of a verification pass.
type VerificationResult struct {
	Success bool            `json:"success"`
	Checks  map[string]bool `json:"checks"`
	Details string          `json:"details,omitempty"`
}

// EscalationInfo is the outcome of the escalation decision.
type EscalationInfo struct {
	Required    bool   `json:"required"`
	Reason      string `json:"reason,omitempty"`
	TargetQueue string `json:"target_queue,omitempty"`
}

// State is the mutable record of a single run.
// Actions and Logs are append-only.
type State struct {
	ID               string              `json:"id"`
	WorkflowType     Type                `json:"workflow_type"`
	Stage            Stage               `json:"stage"`
	Status           Status              `json:"status"`
	Attempts         int                 `json:"attempts"`
	Diagnosis        Fields              `json:"diagnosis"`
	Actions          []ActionResult      `json:"actions"`
	Verification     *VerificationResult `json:"verification,omitempty"`
	Escalation       *EscalationInfo     `json:"escalation,omitempty"`
	Summary          string              `json:"summary,omitempty"`
	ResolutionReason string              `json:"resolution_reason,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
	Logs             []LogEntry          `json:"logs"`
}

// NewState creates the initial record of a run.
func NewState(id string, t Type) *State {
	ts := now()
	return &State{
		ID:           id,
		WorkflowType: t,
		Stage:        StageTriggered,
		Status:       StatusPending,
		Diagnosis:    Fields{},
		Actions:      []ActionResult{},
		CreatedAt:    ts,
		UpdatedAt:    ts,
		Logs:         []LogEntry{},
	}
}

// Terminal reports whether the run has reached a final status.
func (s *State) Terminal() bool {
	return s.Status.Terminal()
}

// Transition moves s to stage and status.
// Moves that are not allowed by the pipeline return ErrInvalidTransition
// and leave s unchanged.
func (s *State) Transition(stage Stage, status Status) error {
	if !s.Stage.CanTransitionTo(stage) {
		return fmt.Errorf("%w: stage %s to %s", ErrInvalidTransition, s.Stage, stage)
	}
	if s.Status != status && !s.Status.CanTransitionTo(status) {
		return fmt.Errorf("%w: status %s to %s", ErrInvalidTransition, s.Status, status)
	}
	s.Stage = stage
	s.Status = status
	return nil
}

// Fail short-circuits s to the terminal failed stage and status.
func (s *State) Fail() {
	s.Stage = StageFailed
	s.Status = StatusFailed
}

// Log appends an audit entry and refreshes UpdatedAt.
// Entry timestamps never go backwards.
func (s *State) Log(level LogLevel, msg string, data Fields) {
	ts := now()
	if n := len(s.Logs); n > 0 && ts.Before(s.Logs[n-1].Timestamp) {
		ts = s.Logs[n-1].Timestamp
	}
	if data == nil {
		data = Fields{}
	}
	s.Logs = append(s.Logs, LogEntry{
		Timestamp: ts,
		Level:     level,
		Message:   msg,
		Data:      data,
	})
	if ts.After(s.UpdatedAt) {
		s.UpdatedAt = ts
	}
}

// SetDiagnosis sets (overwriting, never merging) the diagnosis at key.
func (s *State) SetDiagnosis(key string, v Value) {
	if s.Diagnosis == nil {
		s.Diagnosis = Fields{}
	}
	s.Diagnosis[key] = v
}

// RootCause returns the diagnosed root cause for workflow type t.
func (s *State) RootCause(t Type) string {
	return s.Diagnosis[string(t)].Get("root_cause").Str()
}

// AppendAction records an executed action.
func (s *State) AppendAction(a ActionResult) {
	s.Actions = append(s.Actions, a)
}

// ActionNames returns the names of executed actions in order.
func (s *State) ActionNames() []string {
	names := make([]string, 0, len(s.Actions))
	for _, a := range s.Actions {
		names = append(names, a.Name)
	}
	return names
}

// Clone returns a deep copy of s.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	c := *s
	c.Diagnosis = s.Diagnosis.Clone()
	c.Actions = append([]ActionResult(nil), s.Actions...)
	if s.Verification != nil {
		v := *s.Verification
		v.Checks = make(map[string]bool, len(s.Verification.Checks))
		for k, ok := range s.Verification.Checks {
			v.Checks[k] = ok
		}
		c.Verification = &v
	}
	if s.Escalation != nil {
		e := *s.Escalation
		c.Escalation = &e
	}
	c.Logs = make([]LogEntry, len(s.Logs))
	for i, l := range s.Logs {
		l.Data = l.Data.Clone()
		c.Logs[i] = l
	}
	return &c
}
