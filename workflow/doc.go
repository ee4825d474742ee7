/*
Package workflow defines the types of remediation runs.

# Runs

A run is one execution of the self-heal pipeline for a single customer
incident. Runs are started from a TriggerRequest which carries the
customer interaction, device metadata, a telemetry snapshot and the
account entitlement. From that a Context is built once; it is never
modified while the run executes. Notably the telemetry a run diagnoses
and verifies against is the snapshot supplied at trigger time, not any
live or polled telemetry.

Every run is tracked by a State record. The record is created at
trigger time (stage triggered, status pending) and then moves through
the pipeline:

	triggered -> diagnosing -> acting -> verifying -> closing -> escalated|completed

A failed verification may send the run back to diagnosing exactly once.
Any unexpected fault moves the run to the failed stage and status. The
CanTransitionTo methods on Stage and Status encode these rules and
State.Transition refuses to move a record backwards.

Once a record reaches a terminal status (completed, escalated or failed)
it should be treated as final.

# Payloads

Diagnosis results and audit log data are open ended. Rather than
arbitrary interface{} values they use Value, a small closed set of
shapes (null, string, number, bool, list, map) that always round-trips
through JSON.

# Workflow types

Two workflow types are supported: printer_offline and ink_error. Code
dispatching on a Type should switch over it exhaustively and reject
anything else with ErrUnknownType.
*/
package workflow
