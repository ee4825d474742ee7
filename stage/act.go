package stage

import (
	"context"

	"github.com/micromdm/nanoheal/workflow"
)

// Remediation action names.
const (
	ActionRestartSpooler   = "restart_spooler"
	ActionRebindIP         = "rebind_printer_ip"
	ActionResetPrintQueue  = "reset_print_queue"
	ActionNoop             = "noop"
	ActionSyncSubscription = "sync_subscription"
	ActionRefreshFirmware  = "refresh_firmware"
	ActionReplacement      = "create_replacement_shipment"
	ActionResetCartridge   = "reset_cartridge_state"
)

type action struct {
	name    string
	details string
}

var (
	printerOfflineActions = map[string]action{
		RootSpoolerFailure:      {ActionRestartSpooler, "Spooler restart command issued."},
		RootNetworkConnectivity: {ActionRebindIP, "Rebound printer to correct IP."},
		RootUnknownOffline:      {ActionResetPrintQueue, "Cleared and reset print queue."},
	}
	printerOfflineDefault = action{ActionNoop, "No obvious issue detected; recorded observation for monitoring."}

	inkErrorActions = map[string]action{
		RootNotAuthentic: {ActionSyncSubscription, "Synced subscription and revalidated cartridge entitlement."},
		RootFirmware:     {ActionRefreshFirmware, "Queued firmware refresh for printer and cartridges."},
		RootEmpty:        {ActionReplacement, "Auto-created replacement cartridge shipment for customer."},
	}
	inkErrorDefault = action{ActionResetCartridge, "Reset cartridge state and requested device to re-enumerate cartridges."}
)

// selectAction picks exactly one remediation action for t and rootCause.
func selectAction(t workflow.Type, rootCause string) (action, error) {
	var (
		table map[string]action
		def   action
	)
	switch t {
	case workflow.PrinterOffline:
		table, def = printerOfflineActions, printerOfflineDefault
	case workflow.InkError:
		table, def = inkErrorActions, inkErrorDefault
	default:
		return action{}, newErrUnsupportedType(t)
	}
	if a, ok := table[rootCause]; ok {
		return a, nil
	}
	return def, nil
}

// Actor executes a remediation action for the diagnosed root cause.
// Actions are modeled as always succeeding.
type Actor struct {
	cfg *config
}

// NewActor creates a new Actor.
func NewActor(opts ...Option) *Actor {
	return &Actor{cfg: newConfig(opts)}
}

// Name returns the name of the stage.
func (a *Actor) Name() string {
	return "action_execution"
}

// Run executes and records one remediation action.
func (a *Actor) Run(ctx context.Context, wc *workflow.Context, st *workflow.State) error {
	st.Log(workflow.LevelInfo, "Starting action phase", nil)
	if err := st.Transition(workflow.StageActing, st.Status); err != nil {
		return err
	}

	act, err := selectAction(wc.Type, st.RootCause(wc.Type))
	if err != nil {
		return err
	}

	started := now()
	// this is where device management or RPA would be called
	if err = sleep(ctx, a.cfg.latency); err != nil {
		return err
	}
	result := workflow.ActionResult{
		Name:        act.name,
		Success:     true,
		Details:     act.details,
		StartedAt:   started,
		CompletedAt: now(),
	}

	st.AppendAction(result)
	level := workflow.LevelInfo
	if !result.Success {
		level = workflow.LevelError
	}
	st.Log(level, "Action executed: "+result.Name, workflow.Fields{
		"success": workflow.Bool(result.Success),
		"details": workflow.String(result.Details),
	})
	return nil
}
