package router

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"k8s.io/client-go/util/workqueue"

	"github.com/zerohandoff/zhc-plane/internal/ops"
	"github.com/zerohandoff/zhc-plane/internal/registry"
)

// dispatchOutcome is dispatch()'s result, folded into attemptOrBlock's
// RouteResult.
type dispatchOutcome struct {
	Status  registry.Status
	Pending []string
	Detail  string
}

// dispatch runs the at-most-once dispatch algorithm for taskID (spec.md
// §4.5 steps 2-10; step 1's blocker computation already ran in
// attemptOrBlock). traceID is carried through for event/log correlation.
func (rt *Router) dispatch(ctx context.Context, taskID, traceID string) (dispatchOutcome, error) {
	detail, err := rt.registry.GetTask(ctx, taskID)
	if err != nil {
		return dispatchOutcome{}, err
	}
	task := detail.Task
	owner := rt.dispatchCfg.ResolvedOwner()

	// Step 2: build and persist the compacted context payload.
	recentTasks, err := rt.registry.ListTasks(ctx, registry.ListTasksFilter{TaskType: task.TaskType, Limit: 5})
	if err != nil {
		return dispatchOutcome{}, err
	}
	memorySnippets := recentMemorySnippets(rt.gate.StorageRoot(), 3)
	budget := rt.contextCfg.BudgetFor(string(task.RouteClass))
	payload := buildContextPayload(&task, recentTasks, memorySnippets, budget)
	if err := rt.persistArtifact(taskID, "context_compacted.txt", []byte(payload.Text)); err != nil {
		return dispatchOutcome{}, err
	}

	// Step 3: estimate cost and persist the cost-estimate artifact.
	model := rt.provider.DefaultModel
	costEstimate := rt.cost.Estimate(ctx, string(task.RouteClass), model, payload.InputTokens)
	costJSON, err := json.MarshalIndent(costEstimate, "", "  ")
	if err != nil {
		return dispatchOutcome{}, fmt.Errorf("marshal cost estimate: %w", err)
	}
	if err := rt.persistArtifact(taskID, "cost_estimate.json", costJSON); err != nil {
		return dispatchOutcome{}, err
	}

	// Step 4: enqueue then claim the dispatch lease.
	if _, err := rt.registry.EnqueueDispatchLease(ctx, taskID, owner, rt.dispatchCfg.LeaseSeconds); err != nil {
		return dispatchOutcome{}, err
	}
	claim, err := rt.registry.ClaimDispatchLease(ctx, taskID, owner, rt.dispatchCfg.LeaseSeconds)
	if err != nil {
		return dispatchOutcome{}, err
	}
	if !claim.Claimed {
		return dispatchOutcome{
			Status:  registry.StatusRunning,
			Pending: []string{"held_by_other"},
			Detail:  fmt.Sprintf("trace_id=%s dispatch lease held by another owner", traceID),
		}, nil
	}
	attemptCount := claim.Lease.AttemptCount

	// Step 5: idempotency gate, keyed on (task_id, attempt_count).
	idempotencyKey := fmt.Sprintf("dispatch:%s:%d", taskID, attemptCount)
	payloadHash := dispatchPayloadHash(task, rt.runtimeCfg.Mode, owner, attemptCount)
	begin, err := rt.registry.BeginIdempotency(ctx, idempotencyKey, "dispatch", payloadHash, taskID)
	if err != nil {
		return dispatchOutcome{}, err
	}
	if begin.Conflict {
		ops.RecordIdempotencyConflict()
		return dispatchOutcome{
			Status:  registry.StatusBlocked,
			Pending: []string{"idempotency_conflict"},
			Detail:  fmt.Sprintf("trace_id=%s idempotency conflict for %s", traceID, idempotencyKey),
		}, nil
	}
	if begin.Exists {
		if begin.Status == registry.IdempotencyProcessing {
			return dispatchOutcome{
				Status:  registry.StatusRunning,
				Pending: []string{"dispatch_inflight"},
				Detail:  fmt.Sprintf("trace_id=%s dispatch %s already in flight", traceID, idempotencyKey),
			}, nil
		}
		return dispatchOutcomeFromReplay(begin.Result, traceID), nil
	}

	// Step 6: queued -> running.
	if _, err := rt.registry.UpdateTask(ctx, taskID, registry.StatusRunning,
		fmt.Sprintf("trace_id=%s dispatch attempt=%d", traceID, attemptCount), false); err != nil {
		return dispatchOutcome{}, err
	}

	// Step 7: invoke the worker, retrying transient failures.
	start := time.Now()
	invokeResult, invokeErr := rt.invokeWithRetry(ctx, task, taskID, payload.Text)
	dispatchDurationMs := time.Since(start).Milliseconds()

	finalStatus := registry.StatusSucceeded
	dispatchDetail := fmt.Sprintf("trace_id=%s worker exit_code=%d", traceID, invokeResult.ExitCode)
	switch {
	case invokeErr != nil:
		finalStatus = registry.StatusFailed
		dispatchDetail = fmt.Sprintf("trace_id=%s dispatch failed: %v", traceID, invokeErr)
	case invokeResult.ExitCode != 0:
		finalStatus = registry.StatusFailed
		dispatchDetail = fmt.Sprintf("trace_id=%s worker exit_code=%d stderr=%s", traceID, invokeResult.ExitCode, invokeResult.Stderr)
	}

	// Step 8: complete idempotency with the final outcome.
	completeResult := map[string]any{
		"dispatch_status":      string(finalStatus),
		"dispatch_detail":      dispatchDetail,
		"dispatch_duration_ms": dispatchDurationMs,
	}
	if err := rt.registry.CompleteIdempotency(ctx, idempotencyKey, registry.IdempotencyCompleted, completeResult); err != nil {
		return dispatchOutcome{}, err
	}

	// Step 9: terminal leases finish; otherwise heartbeat.
	if registry.IsTerminalStatus(finalStatus) {
		leaseStatus := registry.LeaseSucceeded
		lastErr := ""
		if finalStatus == registry.StatusFailed {
			leaseStatus = registry.LeaseFailed
			lastErr = dispatchDetail
		}
		if _, err := rt.registry.FinishDispatchLease(ctx, taskID, owner, leaseStatus, lastErr); err != nil {
			return dispatchOutcome{}, err
		}
	} else if _, err := rt.registry.HeartbeatDispatchLease(ctx, taskID, owner, rt.dispatchCfg.LeaseSeconds); err != nil {
		return dispatchOutcome{}, err
	}

	// Step 10: final status + telemetry.
	if _, err := rt.registry.UpdateTask(ctx, taskID, finalStatus, dispatchDetail, false); err != nil {
		return dispatchOutcome{}, err
	}
	ops.RecordDispatchDuration(float64(dispatchDurationMs))
	ops.RecordTaskStatus(string(finalStatus))
	telemetry := map[string]any{
		"dispatch_duration_ms":    dispatchDurationMs,
		"estimated_input_tokens":  payload.InputTokens,
		"estimated_output_tokens": costEstimate.OutputTokensEst,
		"compression_ratio":       payload.CompressionRatio,
		"estimated_cost_usd":      costEstimate.EstimatedCostUSD,
		"cost_source":             costEstimate.CostSource,
		"retrieval_sources":       payload.RetrievalSources,
		"model":                   model,
		"pricing_model":           costEstimate.PricingModel,
	}
	if _, err := rt.registry.MergeMetadata(ctx, taskID, telemetry, fmt.Sprintf("trace_id=%s dispatch telemetry recorded", traceID)); err != nil {
		return dispatchOutcome{}, err
	}

	return dispatchOutcome{Status: finalStatus, Detail: dispatchDetail}, nil
}

// invokeWithRetry invokes the worker wrapper for task, retrying a
// transient result with exponential backoff plus bounded jitter up to
// retry_max attempts (spec.md §4.5 step 7), grounded on the teacher's
// client-go workqueue rate limiter.
func (rt *Router) invokeWithRetry(ctx context.Context, task registry.Task, taskID, contextText string) (InvokeResult, error) {
	const retryItem = "worker-invocation"

	baseDelay := time.Duration(rt.dispatchCfg.RetryBackoffSeconds * float64(time.Second))
	maxDelay := baseDelay * time.Duration(1<<uint(rt.dispatchCfg.RetryMax+1))
	rateLimiter := workqueue.NewItemExponentialFailureRateLimiter(baseDelay, maxDelay)
	defer rateLimiter.Forget(retryItem)

	req := InvokeRequest{
		TaskType: task.TaskType,
		Prompt:   contextText,
		TaskID:   taskID,
		Command:  rt.runtimeCfg.WorkerCommand(string(task.RouteClass)),
	}

	var result InvokeResult
	attempts := rt.dispatchCfg.RetryMax + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := rateLimiter.When(retryItem)
			jitter := time.Duration(rand.Float64() * rt.dispatchCfg.RetryJitterSeconds * float64(time.Second))
			select {
			case <-time.After(delay + jitter):
			case <-ctx.Done():
				return result, errorf(ErrTimeout, "dispatch retry loop cancelled")
			}
		}

		invokeCtx, cancel := context.WithTimeout(ctx, rt.dispatchCfg.Timeout())
		var err error
		result, err = rt.invoker.Invoke(invokeCtx, req)
		cancel()
		if err != nil {
			return result, err
		}
		if result.ExitCode == 0 || !result.Transient {
			return result, nil
		}
	}
	return result, nil
}

// persistArtifact writes data to a dispatch artifact under taskID's
// artifact directory, creating the directory if needed.
func (rt *Router) persistArtifact(taskID, name string, data []byte) error {
	dir := rt.gate.TaskDir(taskID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("persist %s: mkdir: %w", name, err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return fmt.Errorf("persist %s: write: %w", name, err)
	}
	return nil
}

// dispatchPayloadHash hashes the fields that must match for an idempotency
// replay to be considered the same logical attempt (spec.md §4.5 step 5).
func dispatchPayloadHash(task registry.Task, runtimeMode, owner string, attemptCount int) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%s|%s|%d", task.TaskID, task.TaskType, task.Prompt, task.RouteClass, runtimeMode, owner, attemptCount)
	return hex.EncodeToString(h.Sum(nil))
}

// dispatchOutcomeFromReplay reconstructs a dispatchOutcome from a cached
// complete_idempotency result (spec.md §4.5 step 5 "replay" branch).
func dispatchOutcomeFromReplay(result map[string]any, traceID string) dispatchOutcome {
	status := registry.StatusSucceeded
	if s, ok := result["dispatch_status"].(string); ok && registry.Status(s).IsValid() {
		status = registry.Status(s)
	}
	detail := fmt.Sprintf("trace_id=%s replayed cached dispatch outcome", traceID)
	if d, ok := result["dispatch_detail"].(string); ok && d != "" {
		detail = d
	}
	return dispatchOutcome{Status: status, Detail: detail}
}

// recentMemorySnippets reads a short excerpt from the most recently
// modified files under storageRoot/memory, up to limit files (spec.md
// §4.5 step 2 "a few recent memory files").
func recentMemorySnippets(storageRoot string, limit int) []string {
	dir := filepath.Join(storageRoot, "memory")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	type fileInfo struct {
		name    string
		modTime time.Time
	}
	var files []fileInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, fileInfo{name: e.Name(), modTime: info.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].modTime.After(files[j].modTime) })

	var snippets []string
	for i, f := range files {
		if i >= limit {
			break
		}
		raw, err := os.ReadFile(filepath.Join(dir, f.name))
		if err != nil {
			continue
		}
		excerpt := raw
		if len(excerpt) > 200 {
			excerpt = excerpt[:200]
		}
		snippets = append(snippets, fmt.Sprintf("memory[%s]: %s", f.name, string(excerpt)))
	}
	return snippets
}
