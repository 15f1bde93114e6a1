// Package gate implements the Artifact Gate (spec.md §4.4): it reads the
// planner and reviewer artifacts from a task's artifact directory and
// judges whether a HEAVY task is cleared to dispatch.
package gate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	plannerFileName  = "planner.md"
	reviewerFileName = "reviewer.json"
)

// Verdict is the closed set of reviewer verdicts (spec.md §4.4).
type Verdict string

const (
	VerdictPass    Verdict = "pass"
	VerdictFail    Verdict = "fail"
	VerdictMissing Verdict = "missing"
	VerdictInvalid Verdict = "invalid"
)

// ReasonCode is the closed set of fail reason tags, taken from the reviewer
// command's argument contract: policy_conflict, missing_tests,
// insufficient_plan, high_risk_unmitigated, artifact_incomplete, or other.
type ReasonCode string

const (
	ReasonPolicyConflict      ReasonCode = "policy_conflict"
	ReasonMissingTests        ReasonCode = "missing_tests"
	ReasonInsufficientPlan    ReasonCode = "insufficient_plan"
	ReasonHighRiskUnmitigated ReasonCode = "high_risk_unmitigated"
	ReasonArtifactIncomplete  ReasonCode = "artifact_incomplete"
	ReasonOther               ReasonCode = "other"
)

// Checklist is the five required boolean checks a reviewer records
// alongside a verdict (spec.md §4.4: "all five required boolean checks
// present and typed bool").
type Checklist struct {
	PolicySafety        bool `json:"policy_safety"`
	Correctness         bool `json:"correctness"`
	Tests               bool `json:"tests"`
	Rollback            bool `json:"rollback"`
	ApprovalConstraints bool `json:"approval_constraints"`
}

// AllTrue reports whether every checklist entry is true.
func (c Checklist) AllTrue() bool {
	return c.PolicySafety && c.Correctness && c.Tests && c.Rollback && c.ApprovalConstraints
}

// PlannerArtifact is the content of planner.md.
type PlannerArtifact struct {
	Author    string `json:"author"`
	Summary   string `json:"summary"`
	Timestamp string `json:"timestamp"`
}

// ReviewerArtifact is the content of reviewer.json, schema-validated before
// its business rules (verdict/checklist/reason_code) are applied.
type ReviewerArtifact struct {
	Reviewer   string     `json:"reviewer"`
	Verdict    Verdict    `json:"verdict"`
	ReasonCode ReasonCode `json:"reason_code,omitempty"`
	Checklist  Checklist  `json:"checklist"`
	Notes      string     `json:"notes,omitempty"`
	Timestamp  string     `json:"timestamp"`
}

// Status is the Artifact Gate's judgement for a task (spec.md §4.4).
type Status struct {
	PlannerPresent    bool       `json:"planner_present"`
	ReviewerPresent   bool       `json:"reviewer_present"`
	ReviewerVerdict   Verdict    `json:"reviewer_verdict"`
	ReasonCode        ReasonCode `json:"reason_code,omitempty"`
	ChecklistComplete bool       `json:"checklist_complete"`
	GatePassed        bool       `json:"gate_passed"`
}

// Gate reads planner/reviewer artifacts from a per-task directory tree
// rooted at storageRoot/tasks/<task_id>/, validating reviewer.json against
// an embedded JSON Schema compiled once at construction.
type Gate struct {
	storageRoot string
	schema      *jsonschema.Schema
}

// New compiles the embedded reviewer.json schema and returns a ready Gate.
func New(storageRoot string) (*Gate, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("reviewer.schema.json", bytes.NewReader(reviewerSchemaJSON)); err != nil {
		return nil, fmt.Errorf("load reviewer schema: %w", err)
	}
	compiled, err := compiler.Compile("reviewer.schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile reviewer schema: %w", err)
	}
	return &Gate{storageRoot: storageRoot, schema: compiled}, nil
}

// TaskDir returns the artifact directory for taskID.
func (g *Gate) TaskDir(taskID string) string {
	return filepath.Join(g.storageRoot, "tasks", taskID)
}

// StorageRoot returns the storage root the gate was constructed with.
func (g *Gate) StorageRoot() string {
	return g.storageRoot
}

// Check reads and judges the planner/reviewer artifacts for taskID
// (spec.md §4.4). A missing reviewer.json yields reviewer_verdict=missing;
// an unparseable or schema-invalid one yields reviewer_verdict=invalid with
// reason_code=other, distinct from a recorded fail verdict.
func (g *Gate) Check(taskID string) (Status, error) {
	dir := g.TaskDir(taskID)

	plannerPresent := fileExists(filepath.Join(dir, plannerFileName))

	reviewerPath := filepath.Join(dir, reviewerFileName)
	if !fileExists(reviewerPath) {
		return Status{
			PlannerPresent:  plannerPresent,
			ReviewerPresent: false,
			ReviewerVerdict: VerdictMissing,
		}, nil
	}

	raw, err := os.ReadFile(reviewerPath)
	if err != nil {
		return Status{}, fmt.Errorf("read reviewer artifact: %w", err)
	}

	var payload interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Status{
			PlannerPresent:  plannerPresent,
			ReviewerPresent: true,
			ReviewerVerdict: VerdictInvalid,
			ReasonCode:      ReasonOther,
		}, nil
	}
	if err := g.schema.Validate(payload); err != nil {
		return Status{
			PlannerPresent:  plannerPresent,
			ReviewerPresent: true,
			ReviewerVerdict: VerdictInvalid,
			ReasonCode:      ReasonOther,
		}, nil
	}

	var artifact ReviewerArtifact
	if err := json.Unmarshal(raw, &artifact); err != nil {
		return Status{}, fmt.Errorf("decode reviewer artifact: %w", err)
	}

	// checklist_complete means the five required checks are present and
	// typed bool (spec.md §4.4) — already proven by the schema validation
	// above, which marks every checklist field required. It is independent
	// of whether those checks are true; a fail verdict with a complete
	// checklist where only one field is false is still checklist_complete.
	checklistComplete := true
	gatePassed := plannerPresent && artifact.Verdict == VerdictPass && artifact.Checklist.AllTrue()

	return Status{
		PlannerPresent:    plannerPresent,
		ReviewerPresent:   true,
		ReviewerVerdict:   artifact.Verdict,
		ReasonCode:        artifact.ReasonCode,
		ChecklistComplete: checklistComplete,
		GatePassed:        gatePassed,
	}, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
