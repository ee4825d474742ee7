// Package test contains shared tests for engine run storage backends.
package test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/micromdm/nanoheal/engine/storage"
	"github.com/micromdm/nanoheal/workflow"
)

func TestRunStorage(t *testing.T, newStorage func() storage.RunStorage) {
	s := newStorage()
	mainTest(t, s)

	t.Run("testNotFound", func(t *testing.T) {
		testNotFound(t, newStorage())
	})

	t.Run("testConcurrent", func(t *testing.T) {
		testConcurrent(t, newStorage())
	})
}

func mainTest(t *testing.T, s storage.RunStorage) {
	ctx := context.Background()

	st := workflow.NewState("run-main", workflow.PrinterOffline)
	st.SetDiagnosis(workflow.KeyIntent, workflow.String("printer_offline"))
	st.Log(workflow.LevelInfo, "triggered", nil)

	if err := s.StoreRun(ctx, st); err != nil {
		t.Fatal(err)
	}

	// modify after storing; the stored copy must not change
	st.Log(workflow.LevelInfo, "not yet stored", nil)

	st2, err := s.RetrieveRun(ctx, st.ID)
	if err != nil {
		t.Fatal(err)
	}
	if have, want := len(st2.Logs), 1; have != want {
		t.Errorf("log count: have: %v, want: %v", have, want)
	}
	if have, want := st2.Diagnosis[workflow.KeyIntent].Str(), "printer_offline"; have != want {
		t.Errorf("intent: have: %v, want: %v", have, want)
	}

	// replace wholesale
	st.Attempts = 1
	if err = st.Transition(workflow.StageDiagnosing, workflow.StatusRunning); err != nil {
		t.Fatal(err)
	}
	if err = s.StoreRun(ctx, st); err != nil {
		t.Fatal(err)
	}
	st3, err := s.RetrieveRun(ctx, st.ID)
	if err != nil {
		t.Fatal(err)
	}
	if have, want := st3.Stage, workflow.StageDiagnosing; have != want {
		t.Errorf("stage: have: %v, want: %v", have, want)
	}
	if have, want := len(st3.Logs), 2; have != want {
		t.Errorf("log count: have: %v, want: %v", have, want)
	}

	// modifying a retrieved copy must not change the stored record
	st3.Stage = workflow.StageFailed
	st4, err := s.RetrieveRun(ctx, st.ID)
	if err != nil {
		t.Fatal(err)
	}
	if have, want := st4.Stage, workflow.StageDiagnosing; have != want {
		t.Errorf("stage: have: %v, want: %v", have, want)
	}

	if err = s.StoreRun(ctx, nil); !errors.Is(err, storage.ErrEmptyRun) {
		t.Errorf("expected ErrEmptyRun, have: %v", err)
	}
	if err = s.StoreRun(ctx, &workflow.State{}); !errors.Is(err, storage.ErrMissingRunID) {
		t.Errorf("expected ErrMissingRunID, have: %v", err)
	}
}

func testNotFound(t *testing.T, s storage.RunStorage) {
	_, err := s.RetrieveRun(context.Background(), "does-not-exist")
	if !errors.Is(err, storage.ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, have: %v", err)
	}
}

func testConcurrent(t *testing.T, s storage.RunStorage) {
	ctx := context.Background()
	const runs = 20
	const updates = 10

	var wg sync.WaitGroup
	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			st := workflow.NewState(fmt.Sprintf("run-%d", i), workflow.InkError)
			for j := 0; j < updates; j++ {
				st.Log(workflow.LevelInfo, fmt.Sprintf("update %d", j), nil)
				if err := s.StoreRun(ctx, st); err != nil {
					t.Error(err)
					return
				}
				if _, err := s.RetrieveRun(ctx, st.ID); err != nil {
					t.Error(err)
					return
				}
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < runs; i++ {
		st, err := s.RetrieveRun(ctx, fmt.Sprintf("run-%d", i))
		if err != nil {
			t.Fatal(err)
		}
		if have, want := len(st.Logs), updates; have != want {
			t.Errorf("run-%d log count: have: %v, want: %v", i, have, want)
		}
	}
}
