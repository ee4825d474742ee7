package engine

import (
	"strings"

	"github.com/micromdm/nanoheal/workflow"
)

// headline returns the summary sentence for workflow type t.
func headline(t workflow.Type) string {
	if t == workflow.PrinterOffline {
		return "Printer offline self-heal workflow executed."
	}
	return "Printer ink error self-heal workflow executed."
}

// summarize sets the human-readable summary and resolution reason of a
// closed run.
func summarize(st *workflow.State) {
	base := headline(st.WorkflowType)

	actions := strings.Join(st.ActionNames(), ", ")
	if actions == "" {
		actions = "no actions taken"
	}

	verification := "did not fully succeed"
	if st.Verification != nil && st.Verification.Success {
		verification = "succeeded"
	}

	var b strings.Builder
	b.WriteString(base)
	b.WriteString(" Actions: " + actions + ".")
	b.WriteString(" Verification " + verification + ".")
	if e := st.Escalation; e != nil && e.Required {
		b.WriteString(" Case escalated to " + e.TargetQueue + ": " + strings.TrimSuffix(e.Reason, ".") + ".")
	} else {
		b.WriteString(" Issue resolved without human intervention.")
	}

	st.Summary = base
	st.ResolutionReason = b.String()
}
