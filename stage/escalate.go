package stage

import (
	"context"

	"github.com/micromdm/nanoheal/workflow"
)

// Default escalation target queues.
const (
	QueueNetworking = "L2-Networking"
	QueueHardware   = "L2-Hardware"
)

// EscalateAfterAttempts is the attempt count after which a failed
// verification escalates.
const EscalateAfterAttempts = 2

// unresolvedInkCauses escalate an ink_error run on any failed verification.
var unresolvedInkCauses = map[string]bool{
	RootPhysical:     true,
	RootUndetermined: true,
}

// EscalationDecider decides whether a run is handed to a human queue.
type EscalationDecider struct {
	cfg *config
}

// NewEscalationDecider creates a new EscalationDecider.
func NewEscalationDecider(opts ...Option) *EscalationDecider {
	return &EscalationDecider{cfg: newConfig(opts)}
}

// Name returns the name of the stage.
func (e *EscalationDecider) Name() string {
	return "escalation_decision"
}

// Queue returns the escalation target queue for t.
func (e *EscalationDecider) Queue(t workflow.Type) string {
	return e.cfg.queues[t]
}

// Decide evaluates the escalation rules for st without modifying it.
func (e *EscalationDecider) Decide(t workflow.Type, st *workflow.State) (*workflow.EscalationInfo, error) {
	info := &workflow.EscalationInfo{}
	failed := st.Verification != nil && !st.Verification.Success
	switch t {
	case workflow.PrinterOffline:
		if failed && st.Attempts >= EscalateAfterAttempts {
			info.Required = true
			info.Reason = "Automated recovery attempts failed for printer_offline."
		}
	case workflow.InkError:
		if failed && (unresolvedInkCauses[st.RootCause(t)] || st.Attempts >= EscalateAfterAttempts) {
			info.Required = true
			info.Reason = "Ink error unresolved; possible physical damage or repeated failure."
		}
	default:
		return nil, newErrUnsupportedType(t)
	}
	if info.Required {
		info.TargetQueue = e.Queue(t)
	}
	return info, nil
}

// Run records the escalation decision and closes the run as either
// escalated or completed.
func (e *EscalationDecider) Run(_ context.Context, wc *workflow.Context, st *workflow.State) error {
	st.Log(workflow.LevelInfo, "Evaluating escalation rules", nil)
	if err := st.Transition(workflow.StageClosing, st.Status); err != nil {
		return err
	}

	info, err := e.Decide(wc.Type, st)
	if err != nil {
		return err
	}
	st.Escalation = info

	if !info.Required {
		if err = st.Transition(workflow.StageCompleted, workflow.StatusCompleted); err != nil {
			return err
		}
		st.Log(workflow.LevelInfo, "Workflow completed without escalation", nil)
		return nil
	}

	if err = st.Transition(workflow.StageEscalated, workflow.StatusEscalated); err != nil {
		return err
	}
	st.Log(workflow.LevelWarn, "Workflow escalated", workflow.Fields{
		"reason":       workflow.String(info.Reason),
		"target_queue": workflow.String(info.TargetQueue),
	})
	return nil
}
