package gate

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestGate(t *testing.T) *Gate {
	t.Helper()
	g, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return g
}

func TestCheckMissingReviewer(t *testing.T) {
	g := newTestGate(t)
	status, err := g.Check("task-1")
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if status.ReviewerVerdict != VerdictMissing {
		t.Fatalf("expected missing verdict, got %+v", status)
	}
	if status.GatePassed {
		t.Fatalf("expected gate not passed")
	}
}

func TestWriteAndCheckPassingGate(t *testing.T) {
	g := newTestGate(t)
	if err := g.WritePlanner("task-2", "alice", "do the thing", "2026-07-29T00:00:00Z"); err != nil {
		t.Fatalf("WritePlanner() error = %v", err)
	}
	err := g.WriteReviewer("task-2", WriteReviewerInput{
		Reviewer: "bob",
		Verdict:  VerdictPass,
		Checklist: Checklist{
			PolicySafety: true, Correctness: true, Tests: true, Rollback: true, ApprovalConstraints: true,
		},
		Timestamp: "2026-07-29T00:05:00Z",
	})
	if err != nil {
		t.Fatalf("WriteReviewer() error = %v", err)
	}

	status, err := g.Check("task-2")
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if !status.GatePassed {
		t.Fatalf("expected gate passed, got %+v", status)
	}
	if !status.ChecklistComplete {
		t.Fatalf("expected checklist complete")
	}
}

func TestCheckFailVerdictBlocksGate(t *testing.T) {
	g := newTestGate(t)
	if err := g.WritePlanner("task-3", "alice", "do the thing", "ts"); err != nil {
		t.Fatalf("WritePlanner() error = %v", err)
	}
	err := g.WriteReviewer("task-3", WriteReviewerInput{
		Reviewer:   "bob",
		Verdict:    VerdictFail,
		ReasonCode: ReasonMissingTests,
		Checklist: Checklist{
			PolicySafety: true, Correctness: true, Tests: false, Rollback: true, ApprovalConstraints: true,
		},
		Timestamp: "ts",
	})
	if err != nil {
		t.Fatalf("WriteReviewer() error = %v", err)
	}

	status, err := g.Check("task-3")
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if status.GatePassed {
		t.Fatalf("expected gate blocked on fail verdict")
	}
	if status.ReasonCode != ReasonMissingTests {
		t.Fatalf("expected reason code to round-trip, got %+v", status)
	}
}

func TestCheckFalseChecklistValueBlocksGateButIsStillComplete(t *testing.T) {
	g := newTestGate(t)
	if err := g.WritePlanner("task-4", "alice", "do the thing", "ts"); err != nil {
		t.Fatalf("WritePlanner() error = %v", err)
	}
	// Written directly (bypassing the writer's own invariant) to exercise
	// Check()'s independent checklist-completeness judgement: all five
	// fields are present and typed bool, so checklist_complete is true even
	// though "tests" is false and the gate itself stays blocked.
	raw := `{"reviewer":"bob","verdict":"pass","checklist":{"policy_safety":true,"correctness":true,"tests":false,"rollback":true,"approval_constraints":true},"timestamp":"ts"}`
	if err := os.WriteFile(filepath.Join(g.TaskDir("task-4"), reviewerFileName), []byte(raw), 0o644); err != nil {
		t.Fatalf("write raw reviewer artifact: %v", err)
	}

	status, err := g.Check("task-4")
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if !status.ChecklistComplete {
		t.Fatalf("expected checklist complete despite a false value")
	}
	if status.GatePassed {
		t.Fatalf("expected gate blocked by the false checklist value")
	}
}

func TestCheckFailVerdictWithCompleteChecklistReportsComplete(t *testing.T) {
	g := newTestGate(t)
	if err := g.WritePlanner("task-7", "alice", "do the thing", "ts"); err != nil {
		t.Fatalf("WritePlanner() error = %v", err)
	}
	err := g.WriteReviewer("task-7", WriteReviewerInput{
		Reviewer:   "bob",
		Verdict:    VerdictFail,
		ReasonCode: ReasonMissingTests,
		Checklist: Checklist{
			PolicySafety: true, Correctness: true, Tests: false, Rollback: true, ApprovalConstraints: true,
		},
		Timestamp: "ts",
	})
	if err != nil {
		t.Fatalf("WriteReviewer() error = %v", err)
	}

	status, err := g.Check("task-7")
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if !status.ChecklistComplete {
		t.Fatalf("expected a properly-structured fail review to report checklist_complete=true, got %+v", status)
	}
	if status.GatePassed {
		t.Fatalf("expected gate blocked on fail verdict")
	}
}

func TestCheckInvalidJSONYieldsInvalidVerdict(t *testing.T) {
	g := newTestGate(t)
	dir := g.TaskDir("task-5")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, reviewerFileName), []byte("{not valid json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	status, err := g.Check("task-5")
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if status.ReviewerVerdict != VerdictInvalid {
		t.Fatalf("expected invalid verdict, got %+v", status)
	}
}

func TestCheckSchemaViolationYieldsInvalidVerdict(t *testing.T) {
	g := newTestGate(t)
	dir := g.TaskDir("task-6")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	// Missing required "checklist" key entirely.
	raw := `{"reviewer":"bob","verdict":"pass","timestamp":"ts"}`
	if err := os.WriteFile(filepath.Join(dir, reviewerFileName), []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	status, err := g.Check("task-6")
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if status.ReviewerVerdict != VerdictInvalid {
		t.Fatalf("expected invalid verdict for schema violation, got %+v", status)
	}
}
