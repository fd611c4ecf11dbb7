package agentmem

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/youssefsiam38/agentmem/types"
)

func TestSaveSubTaskRunNormalization(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	t.Run("defaults and derived child id", func(t *testing.T) {
		runID, err := engine.SaveSubTaskRun(ctx, types.SubTaskRunData{
			ParentSessionID: "parent-1",
			Mode:            types.RunModeBackground,
			Description:     "summarize the report",
		})
		if err != nil {
			t.Fatalf("SaveSubTaskRun() error = %v", err)
		}
		if runID == "" {
			t.Fatal("SaveSubTaskRun() returned empty id")
		}

		run, err := engine.GetSubTaskRun(runID)
		if err != nil {
			t.Fatalf("GetSubTaskRun() error = %v", err)
		}
		if run.Status != types.RunQueued {
			t.Errorf("Status = %q, want %q", run.Status, types.RunQueued)
		}
		if want := types.ChildSessionID("parent-1", runID); run.ChildSessionID != want {
			t.Errorf("ChildSessionID = %q, want %q", run.ChildSessionID, want)
		}
	})

	t.Run("message count derived and messages stripped", func(t *testing.T) {
		runID, err := engine.SaveSubTaskRun(ctx, types.SubTaskRunData{
			ParentSessionID: "parent-1",
			Messages: []types.Message{
				types.NewUserMessage("a"),
				types.NewAssistantMessage("b"),
			},
		})
		if err != nil {
			t.Fatalf("SaveSubTaskRun() error = %v", err)
		}

		run, _ := engine.GetSubTaskRun(runID)
		if run.MessageCount == nil || *run.MessageCount != 2 {
			t.Errorf("MessageCount = %v, want 2", run.MessageCount)
		}
		if run.Messages != nil {
			t.Errorf("Messages = %v, want nil", run.Messages)
		}
	})

	t.Run("explicit message count wins", func(t *testing.T) {
		five := 5
		runID, err := engine.SaveSubTaskRun(ctx, types.SubTaskRunData{
			ParentSessionID: "parent-1",
			MessageCount:    &five,
			Messages:        []types.Message{types.NewUserMessage("a")},
		})
		if err != nil {
			t.Fatalf("SaveSubTaskRun() error = %v", err)
		}

		run, _ := engine.GetSubTaskRun(runID)
		if run.MessageCount == nil || *run.MessageCount != 5 {
			t.Errorf("MessageCount = %v, want 5", run.MessageCount)
		}
	})

	t.Run("explicit child session id preserved", func(t *testing.T) {
		runID, err := engine.SaveSubTaskRun(ctx, types.SubTaskRunData{
			ParentSessionID: "parent-1",
			ChildSessionID:  "custom-child",
		})
		if err != nil {
			t.Fatalf("SaveSubTaskRun() error = %v", err)
		}

		run, _ := engine.GetSubTaskRun(runID)
		if run.ChildSessionID != "custom-child" {
			t.Errorf("ChildSessionID = %q, want custom-child", run.ChildSessionID)
		}
	})
}

func TestSaveSubTaskRunTransitions(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	runID, err := engine.SaveSubTaskRun(ctx, types.SubTaskRunData{
		RunID:           "r1",
		ParentSessionID: "p",
		Status:          types.RunQueued,
	})
	if err != nil {
		t.Fatalf("SaveSubTaskRun() error = %v", err)
	}

	// A regular lifecycle progresses without complaint.
	for _, status := range []types.RunStatus{types.RunRunning, types.RunCompleted} {
		if _, err := engine.SaveSubTaskRun(ctx, types.SubTaskRunData{
			RunID:           runID,
			ParentSessionID: "p",
			Status:          status,
		}); err != nil {
			t.Fatalf("SaveSubTaskRun(%s) error = %v", status, err)
		}
	}

	// Leaving a terminal status is irregular but still accepted: the record
	// mirrors what the worker reports.
	if _, err := engine.SaveSubTaskRun(ctx, types.SubTaskRunData{
		RunID:           runID,
		ParentSessionID: "p",
		Status:          types.RunRunning,
	}); err != nil {
		t.Fatalf("SaveSubTaskRun(irregular) error = %v", err)
	}

	run, _ := engine.GetSubTaskRun(runID)
	if run.Status != types.RunRunning {
		t.Errorf("Status = %q, want %q", run.Status, types.RunRunning)
	}
}

func TestSaveSubTaskRunPreservesCreatedAt(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	created := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	if _, err := engine.SaveSubTaskRun(ctx, types.SubTaskRunData{
		RunID:           "r-keep",
		ParentSessionID: "p",
		CreatedAt:       created,
	}); err != nil {
		t.Fatalf("SaveSubTaskRun() error = %v", err)
	}

	if _, err := engine.SaveSubTaskRun(ctx, types.SubTaskRunData{
		RunID:           "r-keep",
		ParentSessionID: "p",
		Status:          types.RunRunning,
	}); err != nil {
		t.Fatalf("SaveSubTaskRun() upsert error = %v", err)
	}

	run, _ := engine.GetSubTaskRun("r-keep")
	if !run.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want %v", run.CreatedAt, created)
	}
}

func TestQuerySubTaskRuns(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	at := func(day int) time.Time { return time.Date(2024, 7, day, 0, 0, 0, 0, time.UTC) }
	seed := []types.SubTaskRunData{
		{RunID: "r1", ParentSessionID: "p1", Mode: types.RunModeForeground, Status: types.RunCompleted, CreatedAt: at(1)},
		{RunID: "r2", ParentSessionID: "p1", Mode: types.RunModeBackground, Status: types.RunRunning, CreatedAt: at(2)},
		{RunID: "r3", ParentSessionID: "p2", Mode: types.RunModeBackground, Status: types.RunQueued, CreatedAt: at(3)},
		{RunID: "r4", ParentSessionID: "p2", Mode: types.RunModeBackground, Status: types.RunFailed, CreatedAt: at(4)},
	}
	for _, run := range seed {
		if _, err := engine.SaveSubTaskRun(ctx, run); err != nil {
			t.Fatalf("SaveSubTaskRun(%s) error = %v", run.RunID, err)
		}
	}

	tests := []struct {
		name   string
		filter *RunFilter
		want   []string
	}{
		{"all", nil, []string{"r1", "r2", "r3", "r4"}},
		{"by parent", &RunFilter{ParentSessionID: "p1"}, []string{"r1", "r2"}},
		{"by child", &RunFilter{ChildSessionID: types.ChildSessionID("p2", "r3")}, []string{"r3"}},
		{"by status", &RunFilter{Status: types.RunRunning}, []string{"r2"}},
		{"by mode", &RunFilter{Mode: types.RunModeBackground}, []string{"r2", "r3", "r4"}},
		{"active only", &RunFilter{ActiveOnly: true}, []string{"r2", "r3"}},
		{"active in parent", &RunFilter{ParentSessionID: "p2", ActiveOnly: true}, []string{"r3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs, err := engine.QuerySubTaskRuns(tt.filter)
			if err != nil {
				t.Fatalf("QuerySubTaskRuns() error = %v", err)
			}
			got := make([]string, len(runs))
			for i, run := range runs {
				got[i] = run.RunID
			}
			if len(got) != len(tt.want) {
				t.Fatalf("QuerySubTaskRuns() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("QuerySubTaskRuns()[%d] = %s, want %s", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestDeleteSubTaskRun(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	if _, err := engine.SaveSubTaskRun(ctx, types.SubTaskRunData{RunID: "r-del", ParentSessionID: "p"}); err != nil {
		t.Fatalf("SaveSubTaskRun() error = %v", err)
	}

	if err := engine.DeleteSubTaskRun(ctx, "r-del"); err != nil {
		t.Fatalf("DeleteSubTaskRun() error = %v", err)
	}
	if _, err := engine.GetSubTaskRun("r-del"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetSubTaskRun() after delete error = %v, want ErrRunNotFound", err)
	}

	// Deleting twice is a no-op.
	if err := engine.DeleteSubTaskRun(ctx, "r-del"); err != nil {
		t.Errorf("DeleteSubTaskRun() again error = %v", err)
	}
}

func TestSubTaskRunsSurviveReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	engine := newTestEngineAt(t, dir)
	if _, err := engine.SaveSubTaskRun(ctx, types.SubTaskRunData{
		RunID:           "r-persist",
		ParentSessionID: "p",
		Mode:            types.RunModeBackground,
		Status:          types.RunCompleted,
		Messages:        []types.Message{types.NewUserMessage("hidden")},
	}); err != nil {
		t.Fatalf("SaveSubTaskRun() error = %v", err)
	}
	if err := engine.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened := newTestEngineAt(t, dir)
	run, err := reopened.GetSubTaskRun("r-persist")
	if err != nil {
		t.Fatalf("GetSubTaskRun() after reopen error = %v", err)
	}
	if run.Status != types.RunCompleted {
		t.Errorf("Status = %q, want %q", run.Status, types.RunCompleted)
	}
	if run.MessageCount == nil || *run.MessageCount != 1 {
		t.Errorf("MessageCount = %v, want 1", run.MessageCount)
	}
	if run.Messages != nil {
		t.Errorf("Messages = %v, want nil after round trip", run.Messages)
	}
}
