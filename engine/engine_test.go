package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/micromdm/nanoheal/engine/storage"
	"github.com/micromdm/nanoheal/engine/storage/inmem"
	"github.com/micromdm/nanoheal/stage"
	"github.com/micromdm/nanoheal/utils/ider"
	"github.com/micromdm/nanoheal/workflow"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func boolp(b bool) *bool { return &b }

func intp(i int) *int { return &i }

func newRequest(t workflow.Type, text string, tel workflow.Telemetry) *workflow.TriggerRequest {
	return &workflow.TriggerRequest{
		WorkflowType: t,
		Interaction:  workflow.Interaction{Channel: workflow.ChannelChat, Text: text},
		Device: workflow.Device{
			DeviceID:        "PRN-001",
			Model:           "LaserJet 400",
			OS:              "Windows 11",
			FirmwareVersion: "2.4.1",
		},
		Telemetry: tel,
		Entitlement: workflow.Entitlement{
			AccountID:           "ACC-42",
			Tier:                "standard",
			SLAMinutes:          240,
			ReplacementEligible: true,
		},
	}
}

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithStageOptions(stage.WithLatency(0))}, opts...)
	return New(inmem.New(), opts...)
}

// runToEnd triggers req and returns the final stored state.
func runToEnd(t *testing.T, e *Engine, req *workflow.TriggerRequest) *workflow.State {
	t.Helper()
	ctx := context.Background()
	st, err := e.Trigger(ctx, req)
	require.NoError(t, err)
	e.Wait()
	final, err := e.RetrieveRun(ctx, st.ID)
	require.NoError(t, err)
	assertConsistent(t, final)
	return final
}

// assertConsistent checks the invariants every terminal run holds.
func assertConsistent(t *testing.T, st *workflow.State) {
	t.Helper()
	require.True(t, st.Terminal(), "run %s not terminal: %s/%s", st.ID, st.Stage, st.Status)
	switch st.Stage {
	case workflow.StageCompleted:
		assert.Equal(t, workflow.StatusCompleted, st.Status)
	case workflow.StageEscalated:
		assert.Equal(t, workflow.StatusEscalated, st.Status)
	case workflow.StageFailed:
		assert.Equal(t, workflow.StatusFailed, st.Status)
	default:
		t.Errorf("unexpected terminal stage: %s", st.Stage)
	}
	assert.LessOrEqual(t, st.Attempts, MaxAttempts)
	if st.Status != workflow.StatusFailed {
		assert.Len(t, st.Actions, st.Attempts)
		require.NotNil(t, st.Escalation)
		assert.Equal(t, st.Status == workflow.StatusEscalated, st.Escalation.Required)
	}
	for i := 1; i < len(st.Logs); i++ {
		assert.False(t, st.Logs[i].Timestamp.Before(st.Logs[i-1].Timestamp))
	}
}

func hasLog(st *workflow.State, level workflow.LogLevel, msg string) bool {
	for _, l := range st.Logs {
		if l.Level == level && l.Message == msg {
			return true
		}
	}
	return false
}

func TestScenarios(t *testing.T) {
	heartbeat := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

	for _, test := range []struct {
		name      string
		req       *workflow.TriggerRequest
		root      string
		actions   []string
		status    workflow.Status
		queue     string
		attempts  int
		reasonHas string
	}{
		{
			name: "offline network unreachable escalates after retry",
			req: newRequest(workflow.PrinterOffline, "my printer is offline", workflow.Telemetry{
				Online:           boolp(false),
				NetworkReachable: boolp(false),
			}),
			root:      stage.RootNetworkConnectivity,
			actions:   []string{stage.ActionRebindIP, stage.ActionRebindIP},
			status:    workflow.StatusEscalated,
			queue:     stage.QueueNetworking,
			attempts:  2,
			reasonHas: "Case escalated to L2-Networking: Automated recovery attempts failed for printer_offline.",
		},
		{
			name: "online healthy printer resolves first pass",
			req: newRequest(workflow.PrinterOffline, "cannot print", workflow.Telemetry{
				Online:         boolp(true),
				LastHeartbeat:  &heartbeat,
				SpoolerHealthy: boolp(true),
			}),
			root:      stage.RootIntermittent,
			actions:   []string{stage.ActionNoop},
			status:    workflow.StatusCompleted,
			attempts:  1,
			reasonHas: "Actions: noop. Verification succeeded. Issue resolved without human intervention.",
		},
		{
			name: "non authentic cartridge",
			req: newRequest(workflow.InkError, "ink cartridge error", workflow.Telemetry{
				ErrorCodes: []string{"INK_AUTH_001"},
			}),
			root:      stage.RootNotAuthentic,
			actions:   []string{stage.ActionSyncSubscription, stage.ActionSyncSubscription},
			status:    workflow.StatusEscalated,
			queue:     stage.QueueHardware,
			attempts:  2,
			reasonHas: "Verification did not fully succeed. Case escalated to L2-Hardware:",
		},
		{
			name: "empty cartridge",
			req: newRequest(workflow.InkError, "ink is empty", workflow.Telemetry{
				InkLevelCyan:    intp(0),
				InkLevelMagenta: intp(50),
				InkLevelYellow:  intp(60),
				InkLevelBlack:   intp(70),
			}),
			root:     stage.RootEmpty,
			actions:  []string{stage.ActionReplacement, stage.ActionReplacement},
			status:   workflow.StatusEscalated,
			queue:    stage.QueueHardware,
			attempts: 2,
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			e := newTestEngine(t)
			st := runToEnd(t, e, test.req)

			assert.Equal(t, test.root, st.RootCause(test.req.WorkflowType))
			assert.Equal(t, test.actions, st.ActionNames())
			assert.Equal(t, test.status, st.Status)
			assert.Equal(t, test.attempts, st.Attempts)
			assert.Equal(t, test.queue, st.Escalation.TargetQueue)
			assert.Equal(t, headline(test.req.WorkflowType), st.Summary)
			assert.True(t, strings.HasPrefix(st.ResolutionReason, st.Summary))
			if test.reasonHas != "" {
				assert.Contains(t, st.ResolutionReason, test.reasonHas)
			}
			if test.attempts > 1 {
				assert.True(t, hasLog(st, workflow.LevelInfo, "Verification failed; retrying automated remediation."))
			}
		})
	}
}

func TestTriggerIntent(t *testing.T) {
	for _, test := range []struct {
		text string
		want workflow.Type
	}{
		{"The printer stopped working yesterday", workflow.PrinterOffline},
		{"Printer is NOT RESPONDING", workflow.PrinterOffline},
		{"low on ink", workflow.InkError},
		{"cartridge light blinking", workflow.InkError},
	} {
		t.Run(test.text, func(t *testing.T) {
			e := newTestEngine(t)
			st, err := e.Trigger(context.Background(), newRequest("", test.text, workflow.Telemetry{}))
			require.NoError(t, err)
			e.Wait()

			assert.Equal(t, test.want, st.WorkflowType)
			assert.Equal(t, string(test.want), st.Diagnosis[workflow.KeyIntent].Str())
		})
	}
}

func TestTriggerInitialRecord(t *testing.T) {
	e := newTestEngine(t, WithIDer(ider.NewStaticIDs("run-a")))
	req := newRequest(workflow.PrinterOffline, "offline", workflow.Telemetry{Online: boolp(false)})

	st, err := e.Trigger(context.Background(), req)
	require.NoError(t, err)
	e.Wait()

	assert.Equal(t, "run-a", st.ID)
	assert.Equal(t, workflow.StageTriggered, st.Stage)
	assert.Equal(t, workflow.StatusPending, st.Status)
	assert.Equal(t, 0, st.Attempts)
	assert.Empty(t, st.Actions)

	final, err := e.RetrieveRun(context.Background(), "run-a")
	require.NoError(t, err)
	assert.True(t, final.Terminal())
	assert.True(t, st.CreatedAt.Equal(final.CreatedAt))
	assert.Equal(t, workflow.StageTriggered, st.Stage, "returned record must not track the background run")
}

func TestTriggerInvalid(t *testing.T) {
	e := newTestEngine(t)
	req := newRequest(workflow.PrinterOffline, "offline", workflow.Telemetry{})
	req.Device.DeviceID = ""

	_, err := e.Trigger(context.Background(), req)
	assert.ErrorIs(t, err, workflow.ErrNoDeviceID)

	req = newRequest(workflow.PrinterOffline, "offline", workflow.Telemetry{})
	req.Entitlement.Tier = ""
	_, err = e.Trigger(context.Background(), req)
	assert.ErrorIs(t, err, workflow.ErrMissingField)
}

func TestTriggerCancelledContext(t *testing.T) {
	e := newTestEngine(t, WithStageOptions(stage.WithLatency(5*time.Millisecond)))
	ctx, cancel := context.WithCancel(context.Background())

	st, err := e.Trigger(ctx, newRequest(workflow.PrinterOffline, "offline", workflow.Telemetry{}))
	require.NoError(t, err)
	cancel()
	e.Wait()

	final, err := e.RetrieveRun(context.Background(), st.ID)
	require.NoError(t, err)
	assert.NotEqual(t, workflow.StatusFailed, final.Status)
	assertConsistent(t, final)
}

func TestUnsupportedType(t *testing.T) {
	e := newTestEngine(t)
	st := runToEnd(t, e, newRequest("paper_jam", "paper stuck", workflow.Telemetry{}))

	assert.Equal(t, workflow.StageFailed, st.Stage)
	assert.Equal(t, workflow.StatusFailed, st.Status)
	assert.Empty(t, st.Actions)
	assert.True(t, hasLog(st, workflow.LevelError, "Unsupported workflow type"))
	assert.Empty(t, st.Summary)
}

func TestRetrieveRunNotFound(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.RetrieveRun(context.Background(), "nope")
	assert.ErrorIs(t, err, storage.ErrRunNotFound)
}

func TestRetrieveRunIdempotent(t *testing.T) {
	e := newTestEngine(t)
	st := runToEnd(t, e, newRequest(workflow.InkError, "ink", workflow.Telemetry{}))

	again, err := e.RetrieveRun(context.Background(), st.ID)
	require.NoError(t, err)
	assert.Equal(t, st, again)

	// retrieved records are copies
	again.Logs = append(again.Logs, workflow.LogEntry{Message: "local only"})
	third, err := e.RetrieveRun(context.Background(), st.ID)
	require.NoError(t, err)
	assert.Equal(t, st, third)
}

// faultStage is a stage that errors or panics.
type faultStage struct {
	err   error
	panic bool
}

func (s *faultStage) Name() string { return "fault" }

func (s *faultStage) Run(_ context.Context, _ *workflow.Context, st *workflow.State) error {
	st.Log(workflow.LevelInfo, "fault stage running", nil)
	if s.panic {
		panic("boom")
	}
	return s.err
}

func TestStageFaults(t *testing.T) {
	for _, test := range []struct {
		name   string
		fault  *faultStage
		errHas string
	}{
		{"error", &faultStage{err: errors.New("device api unavailable")}, "device api unavailable"},
		{"panic", &faultStage{panic: true}, "boom"},
	} {
		t.Run(test.name, func(t *testing.T) {
			e := newTestEngine(t)
			e.act = test.fault

			st := runToEnd(t, e, newRequest(workflow.PrinterOffline, "offline", workflow.Telemetry{}))

			assert.Equal(t, workflow.StageFailed, st.Stage)
			assert.Equal(t, workflow.StatusFailed, st.Status)
			assert.False(t, st.Diagnosis[string(workflow.PrinterOffline)].IsNull(), "diagnosis before the fault must be retained")

			last := st.Logs[len(st.Logs)-1]
			assert.Equal(t, workflow.LevelError, last.Level)
			assert.Equal(t, "Workflow execution failed", last.Message)
			assert.Contains(t, last.Data["error"].Str(), test.errHas)
		})
	}
}

func TestConcurrentRuns(t *testing.T) {
	e := newTestEngine(t, WithIDer(ider.NewULID()))
	ctx := context.Background()

	const n = 25
	ids := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := newRequest("", fmt.Sprintf("request %d offline", i), workflow.Telemetry{})
			if i%2 == 0 {
				req.Interaction.Text = fmt.Sprintf("request %d ink", i)
			}
			st, err := e.Trigger(ctx, req)
			if err != nil {
				t.Error(err)
				return
			}
			// poll while the run is in flight
			if _, err = e.RetrieveRun(ctx, st.ID); err != nil {
				t.Error(err)
			}
			ids <- st.ID
		}(i)
	}
	wg.Wait()
	e.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		require.False(t, seen[id], "duplicate run id %s", id)
		seen[id] = true

		st, err := e.RetrieveRun(ctx, id)
		require.NoError(t, err)
		assertConsistent(t, st)
	}
	assert.Len(t, seen, n)
}
