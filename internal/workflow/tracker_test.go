package workflow

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	return NewTracker("wf-test", zap.NewNop())
}

func TestDependencyGating(t *testing.T) {
	tr := newTestTracker(t)
	if err := tr.RegisterTask("a", "A", nil); err != nil {
		t.Fatalf("register a: %v", err)
	}
	if err := tr.RegisterTask("b", "B", []string{"a"}); err != nil {
		t.Fatalf("register b: %v", err)
	}

	if !tr.CanExecute("a") {
		t.Error("a has no dependencies, expected executable")
	}
	if tr.CanExecute("b") {
		t.Error("b depends on incomplete a, expected not executable")
	}

	tr.StartTask("a")
	if tr.CanExecute("b") {
		t.Error("b must not be executable while a is running")
	}

	tr.CompleteTask("a", map[string]string{"out": "done"})
	if !tr.CanExecute("b") {
		t.Error("b expected executable after a completed")
	}
}

func TestReadyTasksRegistrationOrder(t *testing.T) {
	tr := newTestTracker(t)
	tr.RegisterTask("c", "C", nil)
	tr.RegisterTask("a", "A", nil)
	tr.RegisterTask("b", "B", []string{"missing"})

	ready := tr.ReadyTasks()
	if len(ready) != 2 || ready[0] != "c" || ready[1] != "a" {
		t.Fatalf("ready = %v, want [c a]", ready)
	}

	limited := tr.NextExecutable(1)
	if len(limited) != 1 || limited[0] != "c" {
		t.Fatalf("next executable = %v, want [c]", limited)
	}
}

func TestCycleRejected(t *testing.T) {
	tr := newTestTracker(t)
	if err := tr.RegisterTask("a", "A", []string{"b"}); err != nil {
		t.Fatalf("forward reference must be allowed: %v", err)
	}
	if err := tr.RegisterTask("b", "B", []string{"a"}); err == nil {
		t.Fatal("expected cycle rejection for b -> a -> b")
	}

	// Rejection leaves no partial state behind.
	if _, ok := tr.Status("b"); ok {
		t.Error("rejected task b must not be registered")
	}

	if err := tr.RegisterTask("c", "C", []string{"c"}); err == nil {
		t.Error("expected self-cycle rejection")
	}
}

func TestUnregisteredDependencyBlocks(t *testing.T) {
	tr := newTestTracker(t)
	tr.RegisterTask("a", "A", []string{"ghost"})
	if tr.CanExecute("a") {
		t.Error("task with unregistered dependency must never execute")
	}
}

func TestRetryAndCriticalFailure(t *testing.T) {
	tr := newTestTracker(t)
	tr.RegisterTask("a", "A", nil)

	for i := 0; i < 3; i++ {
		tr.StartTask("a")
		tr.FailTask("a", "transient")
		if i < 2 && tr.HasCriticalFailure() {
			t.Fatalf("retry %d should not be critical yet", i)
		}
		tr.RetryTask("a")
	}
	tr.StartTask("a")
	tr.FailTask("a", "still broken")

	if !tr.HasCriticalFailure() {
		t.Error("expected critical failure after 3 retries")
	}
	failed := tr.FailedTasks()
	if len(failed) != 1 || failed[0].RetryCount != 3 || failed[0].Error != "still broken" {
		t.Errorf("failed tasks = %+v", failed)
	}
}

func TestSkippedNeverReady(t *testing.T) {
	tr := newTestTracker(t)
	tr.RegisterTask("a", "A", nil)
	tr.SkipTask("a")
	if len(tr.ReadyTasks()) != 0 {
		t.Error("skipped task must not be ready")
	}
	status, _ := tr.Status("a")
	if status != TaskSkipped {
		t.Errorf("status = %s, want skipped", status)
	}
}

func TestResultOnlyWhenCompleted(t *testing.T) {
	tr := newTestTracker(t)
	tr.RegisterTask("a", "A", nil)
	if _, ok := tr.Result("a"); ok {
		t.Error("pending task must have no result")
	}
	tr.StartTask("a")
	tr.CompleteTask("a", 42)
	res, ok := tr.Result("a")
	if !ok || res.(int) != 42 {
		t.Errorf("result = %v ok=%v, want 42 true", res, ok)
	}
}

func TestUnregisteredOpsIgnored(t *testing.T) {
	tr := newTestTracker(t)
	// None of these may panic or create state.
	tr.StartTask("ghost")
	tr.CompleteTask("ghost", nil)
	tr.FailTask("ghost", "x")
	tr.SkipTask("ghost")
	tr.RetryTask("ghost")
	if p := tr.GetWorkflowProgress(); p.Total != 0 {
		t.Errorf("total = %d, want 0", p.Total)
	}
}

func TestWorkflowProgress(t *testing.T) {
	tr := newTestTracker(t)
	tr.RegisterTask("a", "A", nil)
	tr.RegisterTask("b", "B", nil)
	tr.RegisterTask("c", "C", nil)
	tr.RegisterTask("d", "D", nil)

	tr.StartTask("a")
	tr.CompleteTask("a", nil)
	tr.StartTask("b")
	tr.FailTask("b", "boom")
	tr.StartTask("c")

	p := tr.GetWorkflowProgress()
	if p.Total != 4 || p.Completed != 1 || p.Failed != 1 || p.Running != 1 || p.Pending != 1 {
		t.Errorf("progress = %+v", p)
	}
	if p.PercentComplete != 25 {
		t.Errorf("percent = %.1f, want 25", p.PercentComplete)
	}
}

func TestExportState(t *testing.T) {
	tr := newTestTracker(t)
	tr.RegisterTask("a", "A", nil)
	tr.RegisterTask("b", "B", []string{"a"})
	tr.StartTask("a")
	tr.CompleteTask("a", "done")
	tr.StartTask("b")

	path := filepath.Join(t.TempDir(), "results", "state.json")
	if err := tr.ExportState(path); err != nil {
		t.Fatalf("export: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read state: %v", err)
	}
	var summary executionSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	if summary.WorkflowID != "wf-test" {
		t.Errorf("workflow ID = %s", summary.WorkflowID)
	}
	if len(summary.ExecutionOrder) != 2 || summary.ExecutionOrder[0] != "a" {
		t.Errorf("execution order = %v", summary.ExecutionOrder)
	}
	if summary.Progress.Completed != 1 || summary.Progress.Running != 1 {
		t.Errorf("progress = %+v", summary.Progress)
	}
}
