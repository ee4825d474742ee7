package stage

import (
	"context"

	"github.com/micromdm/nanoheal/workflow"
)

// Verifier checks whether the remediation resolved the issue.
// It re-reads the trigger time telemetry snapshot; nothing is re-queried.
type Verifier struct {
	cfg *config
}

// NewVerifier creates a new Verifier.
func NewVerifier(opts ...Option) *Verifier {
	return &Verifier{cfg: newConfig(opts)}
}

// Name returns the name of the stage.
func (v *Verifier) Name() string {
	return "verification"
}

// Run computes the verification checks and records the outcome.
func (v *Verifier) Run(ctx context.Context, wc *workflow.Context, st *workflow.State) error {
	st.Log(workflow.LevelInfo, "Starting verification phase", nil)
	if err := st.Transition(workflow.StageVerifying, st.Status); err != nil {
		return err
	}

	var (
		checks         map[string]bool
		passed, failed string
	)
	switch wc.Type {
	case workflow.PrinterOffline:
		checks = printerOfflineChecks(&wc.Telemetry)
		passed, failed = "All checks passed", "One or more verification checks failed"
	case workflow.InkError:
		checks = inkErrorChecks(&wc.Telemetry)
		passed, failed = "Ink system healthy", "Ink error persists or levels invalid"
	default:
		return newErrUnsupportedType(wc.Type)
	}

	if err := sleep(ctx, v.cfg.latency); err != nil {
		return err
	}

	result := &workflow.VerificationResult{Success: allTrue(checks), Checks: checks, Details: failed}
	if result.Success {
		result.Details = passed
	}
	st.Verification = result

	checkFields := make(workflow.Fields, len(checks))
	for k, ok := range checks {
		checkFields[k] = workflow.Bool(ok)
	}
	st.Log(workflow.LevelInfo, "Verification completed", workflow.Fields{
		"success": workflow.Bool(result.Success),
		"checks":  workflow.Map(checkFields),
	})
	return nil
}

func allTrue(checks map[string]bool) bool {
	for _, ok := range checks {
		if !ok {
			return false
		}
	}
	return true
}

func printerOfflineChecks(t *workflow.Telemetry) map[string]bool {
	return map[string]bool{
		"device_online":    isTrue(t.Online),
		"heartbeat_recent": t.LastHeartbeat != nil,
		"spooler_healthy":  isTrue(t.SpoolerHealthy),
	}
}

func inkErrorChecks(t *workflow.Telemetry) map[string]bool {
	nonZero := true
	for _, level := range t.InkLevels() {
		if level != nil && *level <= 0 {
			nonZero = false
		}
	}
	return map[string]bool{
		"no_error_codes":      len(t.ErrorCodes) == 0,
		"ink_levels_non_zero": nonZero,
	}
}
