package gate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// WritePlanner writes the planner artifact for taskID, overwriting any
// prior plan (spec.md §4.5: "the latest artifact wins and the event log
// reflects both").
func (g *Gate) WritePlanner(taskID, author, summary, timestamp string) error {
	dir := g.TaskDir(taskID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create task artifact directory: %w", err)
	}

	body := fmt.Sprintf("# Plan for %s\n\n- author: %s\n- timestamp: %s\n\n%s\n", taskID, author, timestamp, summary)
	if err := os.WriteFile(filepath.Join(dir, plannerFileName), []byte(body), 0o644); err != nil {
		return fmt.Errorf("write planner artifact: %w", err)
	}
	return nil
}

// WriteReviewerInput is the validated input to WriteReviewer; the checklist
// and reason_code rules (spec.md §4.5: "enforces reason_code requirement on
// fail and checklist-all-true on pass") are enforced by the caller before
// this is invoked so the written artifact is always schema-valid.
type WriteReviewerInput struct {
	Reviewer   string
	Verdict    Verdict
	ReasonCode ReasonCode
	Checklist  Checklist
	Notes      string
	Timestamp  string
}

// WriteReviewer writes the reviewer artifact for taskID, overwriting any
// prior review.
func (g *Gate) WriteReviewer(taskID string, in WriteReviewerInput) error {
	dir := g.TaskDir(taskID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create task artifact directory: %w", err)
	}

	artifact := ReviewerArtifact{
		Reviewer:   in.Reviewer,
		Verdict:    in.Verdict,
		ReasonCode: in.ReasonCode,
		Checklist:  in.Checklist,
		Notes:      in.Notes,
		Timestamp:  in.Timestamp,
	}
	raw, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return fmt.Errorf("encode reviewer artifact: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, reviewerFileName), raw, 0o644); err != nil {
		return fmt.Errorf("write reviewer artifact: %w", err)
	}
	return nil
}
