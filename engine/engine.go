// Package engine implements the NanoHeal remediation workflow engine.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/micromdm/nanoheal/engine/storage"
	"github.com/micromdm/nanoheal/log/logkeys"
	"github.com/micromdm/nanoheal/stage"
	"github.com/micromdm/nanoheal/utils/ider"
	"github.com/micromdm/nanoheal/workflow"

	"github.com/micromdm/nanolib/log"
	"github.com/micromdm/nanolib/log/ctxlog"
)

// MaxAttempts is the maximum number of diagnose, act and verify cycles
// of a single run. Only a failed verification triggers another cycle.
const MaxAttempts = 2

// ErrStagePanic indicates a decision stage panicked.
var ErrStagePanic = errors.New("stage panic")

// Engine drives remediation runs through the decision stages.
//
// Every triggered run executes in its own goroutine. The stages of a
// single run execute strictly in sequence; runs execute concurrently
// with each other and share only the run storage.
type Engine struct {
	storage storage.RunStorage
	stages  *stage.Stages

	// drives the pipeline of a run; overridden in tests
	diagnose, act, verify, escalate stage.Stage

	logger  log.Logger
	ider    ider.IDer
	metrics *Metrics

	wg sync.WaitGroup
}

// Options configure the engine.
type Option func(*config)

type config struct {
	logger    log.Logger
	ider      ider.IDer
	metrics   *Metrics
	stageOpts []stage.Option
}

// WithLogger sets the engine logger.
func WithLogger(logger log.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithIDer sets the run ID generator.
func WithIDer(ider ider.IDer) Option {
	return func(c *config) {
		c.ider = ider
	}
}

// WithMetrics turns on metrics collection.
func WithMetrics(m *Metrics) Option {
	return func(c *config) {
		c.metrics = m
	}
}

// WithStageOptions configures the decision stages.
func WithStageOptions(opts ...stage.Option) Option {
	return func(c *config) {
		c.stageOpts = append(c.stageOpts, opts...)
	}
}

// New creates a new NanoHeal engine.
// The engine owns s for the lifetime of the process.
func New(s storage.RunStorage, opts ...Option) *Engine {
	cfg := &config{
		logger: log.NopLogger,
		ider:   ider.NewUUID(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	stages := stage.New(cfg.stageOpts...)
	return &Engine{
		storage:  s,
		stages:   stages,
		diagnose: stages.Diagnose,
		act:      stages.Act,
		verify:   stages.Verify,
		escalate: stages.Escalation,
		logger:   cfg.logger,
		ider:     cfg.ider,
		metrics:  cfg.metrics,
	}
}

// classify infers the workflow type of req by running intent
// classification against a throwaway state.
func (e *Engine) classify(ctx context.Context, req *workflow.TriggerRequest) workflow.Type {
	st := workflow.NewState("", workflow.PrinterOffline)
	wc := req.NewContext(workflow.PrinterOffline)
	if err := e.stages.Intent.Run(ctx, wc, st); err != nil {
		return workflow.PrinterOffline
	}
	t, err := workflow.ParseType(st.Diagnosis[workflow.KeyIntent].Str())
	if err != nil {
		return workflow.PrinterOffline
	}
	return t
}

// Trigger creates a new run for req and starts it in the background.
//
// The returned record is the initial (triggered, pending) state. Trigger
// does not wait for the pipeline: its result races the background run
// and callers observe progress by polling RetrieveRun. The background
// run is detached from the cancellation of ctx and always proceeds to a
// terminal stage.
func (e *Engine) Trigger(ctx context.Context, req *workflow.TriggerRequest) (*workflow.State, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("validating trigger: %w", err)
	}

	t := req.WorkflowType
	if t == "" {
		t = e.classify(ctx, req)
	}

	st := workflow.NewState(e.ider.ID(), t)
	st.SetDiagnosis(workflow.KeyIntent, workflow.String(string(t)))

	logger := ctxlog.Logger(ctx, e.logger).With(
		logkeys.RunID, st.ID,
		logkeys.WorkflowType, t,
		logkeys.DeviceID, req.Device.DeviceID,
	)

	if err := e.storage.StoreRun(ctx, st); err != nil {
		return nil, fmt.Errorf("storing run: %w", err)
	}

	initial := st.Clone()
	wc := req.NewContext(t)

	e.metrics.triggered(t)
	e.wg.Add(1)
	go e.run(context.WithoutCancel(ctx), logger, wc, st)

	logger.Debug(logkeys.Message, "triggered workflow")
	return initial, nil
}

// RetrieveRun returns the current state of the run id.
func (e *Engine) RetrieveRun(ctx context.Context, id string) (*workflow.State, error) {
	return e.storage.RetrieveRun(ctx, id)
}

// Wait blocks until all triggered runs have reached a terminal stage.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// run is the background task of a single run. It exclusively owns st.
func (e *Engine) run(ctx context.Context, logger log.Logger, wc *workflow.Context, st *workflow.State) {
	defer e.wg.Done()
	e.metrics.start()
	defer func() { e.metrics.finish(wc.Type, st.Status) }()

	if err := e.execute(ctx, logger, wc, st); err != nil {
		e.fail(ctx, logger, st, err)
		return
	}

	logger.Debug(
		logkeys.Message, "workflow finished",
		logkeys.Status, st.Status,
		logkeys.Attempt, st.Attempts,
	)
}

// execute drives st through the pipeline, persisting after every stage.
func (e *Engine) execute(ctx context.Context, logger log.Logger, wc *workflow.Context, st *workflow.State) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrStagePanic, r)
		}
	}()

	for st.Attempts = 1; ; st.Attempts++ {
		for _, s := range []stage.Stage{e.diagnose, e.act, e.verify} {
			if err = e.step(ctx, logger, s, wc, st); err != nil {
				return err
			}
			if st.Status == workflow.StatusFailed {
				// unsupported input recorded by the stage itself
				return nil
			}
		}

		if v := st.Verification; (v != nil && v.Success) || st.Attempts >= MaxAttempts {
			break
		}

		e.metrics.retry(wc.Type)
		st.Log(workflow.LevelInfo, "Verification failed; retrying automated remediation.", workflow.Fields{
			"attempt": workflow.Int(st.Attempts + 1),
		})
		logger.Debug(logkeys.Message, "retrying", logkeys.Attempt, st.Attempts+1)
	}

	if err = e.step(ctx, logger, e.escalate, wc, st); err != nil {
		return err
	}

	summarize(st)
	if err = e.storage.StoreRun(ctx, st); err != nil {
		return fmt.Errorf("storing run: %w", err)
	}
	return nil
}

// step runs a single stage against st and persists the result.
func (e *Engine) step(ctx context.Context, logger log.Logger, s stage.Stage, wc *workflow.Context, st *workflow.State) error {
	start := time.Now()
	err := s.Run(ctx, wc, st)
	e.metrics.observeStage(s.Name(), time.Since(start))
	if err != nil {
		return fmt.Errorf("%s stage: %w", s.Name(), err)
	}

	if err = e.storage.StoreRun(ctx, st); err != nil {
		return fmt.Errorf("storing run after %s: %w", s.Name(), err)
	}

	logger.Debug(
		logkeys.Message, "stage completed",
		logkeys.StageName, s.Name(),
		logkeys.Stage, st.Stage,
		logkeys.Status, st.Status,
	)
	return nil
}

// fail moves st to the failed state, records err and persists st.
// The last known good record plus the failure log remain retrievable.
func (e *Engine) fail(ctx context.Context, logger log.Logger, st *workflow.State, err error) {
	logger.Info(
		logkeys.Message, "workflow execution failed",
		logkeys.Stage, st.Stage,
		logkeys.Error, err,
	)
	st.Fail()
	st.Log(workflow.LevelError, "Workflow execution failed", workflow.Fields{
		"error": workflow.String(err.Error()),
	})
	if err = e.storage.StoreRun(ctx, st); err != nil {
		logger.Info(
			logkeys.Message, "storing failed run",
			logkeys.Error, err,
		)
	}
}
