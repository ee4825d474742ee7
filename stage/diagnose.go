package stage

import (
	"context"
	"strings"

	"github.com/micromdm/nanoheal/workflow"
)

// Root causes assigned by the Diagnoser.
const (
	RootNetworkConnectivity = "network_connectivity_issue"
	RootSpoolerFailure      = "spooler_failure"
	RootUnknownOffline      = "unknown_offline_state"
	RootIntermittent        = "intermittent_issue_or_resolved"

	RootNotAuthentic  = "cartridge_not_authentic"
	RootFirmware      = "firmware_incompatibility"
	RootEmpty         = "empty_cartridge"
	RootPhysical      = "physical_damage"
	RootUndetermined  = "undetermined_ink_issue"
	inkAuthCodePrefix = "INK_AUTH"
	inkFWCodePrefix   = "INK_FW"
)

// Diagnoser assigns a root cause from the telemetry snapshot.
type Diagnoser struct {
	cfg *config
}

// NewDiagnoser creates a new Diagnoser.
func NewDiagnoser(opts ...Option) *Diagnoser {
	return &Diagnoser{cfg: newConfig(opts)}
}

// Name returns the name of the stage.
func (d *Diagnoser) Name() string {
	return "diagnostic"
}

// Run diagnoses the run and writes the diagnostic record keyed by workflow type.
// An unsupported workflow type fails the run rather than returning an error.
func (d *Diagnoser) Run(ctx context.Context, wc *workflow.Context, st *workflow.State) error {
	st.Log(workflow.LevelInfo, "Starting diagnostic phase", nil)
	if err := st.Transition(workflow.StageDiagnosing, workflow.StatusRunning); err != nil {
		return err
	}

	var diag workflow.Fields
	switch wc.Type {
	case workflow.PrinterOffline:
		diag = diagnosePrinterOffline(&wc.Telemetry)
	case workflow.InkError:
		diag = diagnoseInkError(&wc.Telemetry)
	default:
		st.Log(workflow.LevelError, "Unsupported workflow type", workflow.Fields{
			"workflow_type": workflow.String(string(wc.Type)),
		})
		st.Fail()
		return nil
	}

	// querying the device platform
	if err := sleep(ctx, d.cfg.latency); err != nil {
		return err
	}

	st.SetDiagnosis(string(wc.Type), workflow.Map(diag))
	st.Log(workflow.LevelInfo, "Diagnostics completed for "+string(wc.Type), workflow.Fields{
		"diagnosis": workflow.Map(diag.Clone()),
	})
	return nil
}

func printerOfflineRootCause(t *workflow.Telemetry) string {
	switch {
	case isTrue(t.Online):
		return RootIntermittent
	case !isTrue(t.NetworkReachable):
		return RootNetworkConnectivity
	case !isTrue(t.SpoolerHealthy):
		return RootSpoolerFailure
	default:
		return RootUnknownOffline
	}
}

func diagnosePrinterOffline(t *workflow.Telemetry) workflow.Fields {
	return workflow.Fields{
		"heartbeat_seen":    workflow.Bool(t.LastHeartbeat != nil),
		"online":            workflow.OptBool(t.Online),
		"network_reachable": workflow.OptBool(t.NetworkReachable),
		"spooler_healthy":   workflow.OptBool(t.SpoolerHealthy),
		"error_codes":       workflow.Strings(t.ErrorCodes),
		"root_cause":        workflow.String(printerOfflineRootCause(t)),
	}
}

func hasCodePrefix(codes []string, prefix string) bool {
	for _, code := range codes {
		if strings.HasPrefix(code, prefix) {
			return true
		}
	}
	return false
}

func inkErrorRootCause(t *workflow.Telemetry) string {
	if hasCodePrefix(t.ErrorCodes, inkAuthCodePrefix) {
		return RootNotAuthentic
	}
	if hasCodePrefix(t.ErrorCodes, inkFWCodePrefix) {
		return RootFirmware
	}
	for _, level := range t.InkLevels() {
		if level != nil && *level == 0 {
			return RootEmpty
		}
	}
	return RootUndetermined
}

func diagnoseInkError(t *workflow.Telemetry) workflow.Fields {
	levels := workflow.Fields{}
	for color, level := range t.InkLevels() {
		levels[color] = workflow.OptInt(level)
	}
	return workflow.Fields{
		"error_codes": workflow.Strings(t.ErrorCodes),
		"ink_levels":  workflow.Map(levels),
		"root_cause":  workflow.String(inkErrorRootCause(t)),
	}
}
