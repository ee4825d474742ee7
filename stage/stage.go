// Package stage implements the decision stages of a remediation run.
//
// Every stage is a stateless transformation of a run's State given its
// immutable Context. Stages never talk to each other; the engine drives
// them strictly in sequence for a single run.
package stage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/micromdm/nanoheal/workflow"
)

// DefaultLatency is the simulated latency of stages that stand in for
// external calls (device APIs, RPA actions).
const DefaultLatency = 100 * time.Millisecond

// ErrUnsupportedType is returned by stages for workflow types they do not handle.
var ErrUnsupportedType = errors.New("unsupported workflow type")

func newErrUnsupportedType(t workflow.Type) error {
	return fmt.Errorf("%w: %s", ErrUnsupportedType, t)
}

var now = func() time.Time { return time.Now().UTC() }

// Stage transforms the state of a run.
type Stage interface {
	// Name identifies the stage in logs and metrics.
	Name() string

	// Run executes the stage against st.
	// Returned errors are unexpected faults; expected outcomes
	// (including unsupported input for the Diagnoser) are recorded on st.
	Run(ctx context.Context, wc *workflow.Context, st *workflow.State) error
}

type config struct {
	latency time.Duration
	queues  map[workflow.Type]string
}

// Option configures stages.
type Option func(*config)

// WithLatency sets the simulated external call latency.
func WithLatency(d time.Duration) Option {
	return func(c *config) {
		c.latency = d
	}
}

// WithQueue sets the escalation target queue for workflow type t.
func WithQueue(t workflow.Type, queue string) Option {
	return func(c *config) {
		if queue != "" {
			c.queues[t] = queue
		}
	}
}

func newConfig(opts []Option) *config {
	c := &config{
		latency: DefaultLatency,
		queues: map[workflow.Type]string{
			workflow.PrinterOffline: QueueNetworking,
			workflow.InkError:       QueueHardware,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// sleep simulates an external call, returning early if ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// isTrue treats unreported (nil) telemetry flags as false.
func isTrue(b *bool) bool {
	return b != nil && *b
}

// Stages holds one of each decision stage, configured alike.
type Stages struct {
	Intent     *IntentClassifier
	Diagnose   *Diagnoser
	Act        *Actor
	Verify     *Verifier
	Escalation *EscalationDecider
}

// New creates all decision stages.
func New(opts ...Option) *Stages {
	return &Stages{
		Intent:     NewIntentClassifier(),
		Diagnose:   NewDiagnoser(opts...),
		Act:        NewActor(opts...),
		Verify:     NewVerifier(opts...),
		Escalation: NewEscalationDecider(opts...),
	}
}
