// Package logkeys defines some static logging keys for consistent structured logging output.
// Mostly exists as a mental aid when drafting log messages.
package logkeys

const (
	Message = "msg"
	Error   = "err"

	// unique identifier of a remediation run
	RunID = "run_id"

	WorkflowType = "workflow_type"

	// pipeline position and outcome of a run
	Stage  = "stage"
	Status = "status"

	// name of the decision stage being executed
	StageName = "stage_name"

	// a printer device ID
	DeviceID = "device_id"

	// in cases where we might need to log multiple device IDs but only
	// want to log the first (to avoid massive lists in logs).
	FirstDeviceID = "device_id_first"

	Attempt = "attempt"

	// a context-dependent numerical count/length of something
	GenericCount = "count"
)
