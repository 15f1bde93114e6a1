package router

import (
	"strings"

	"github.com/zerohandoff/zhc-plane/internal/registry"
)

// estimateTokens applies the heuristic token count from spec.md §4.5 step
// 2: ceil(chars/4).
func estimateTokens(s string) int {
	if s == "" {
		return 0
	}
	return (len(s) + 3) / 4
}

// ContextPayload is the compacted context handed to a dispatched worker
// (spec.md §4.5 step 2), persisted verbatim to context_compacted.txt.
type ContextPayload struct {
	Text             string  `json:"-"`
	InputTokens      int     `json:"input_tokens"`
	CompactedTokens  int     `json:"compacted_tokens"`
	CompressionRatio float64 `json:"compression_ratio"`
	RetrievalSources int     `json:"retrieval_sources"`
}

// buildContextPayload assembles the essential + retrieval lines for a task
// and compacts them to budget tokens, preserving essential lines first and
// dropping retrieval lines from the tail until the budget is met.
//
// essential lines are the task's own identity/prompt; retrieval lines are
// recent-memory snippets (recent same-type tasks, recent memory files)
// that are nice-to-have context, not required for correctness.
func buildContextPayload(task *registry.Task, recentTasks []*registry.Task, memorySnippets []string, budget int) ContextPayload {
	essential := []string{
		"task_id: " + task.TaskID,
		"task_type: " + task.TaskType,
		"prompt: " + task.Prompt,
	}

	var retrieval []string
	for _, rt := range recentTasks {
		retrieval = append(retrieval, "recent_task: "+rt.TaskID+" ("+rt.TaskType+") "+string(rt.Status))
	}
	retrieval = append(retrieval, memorySnippets...)

	allLines := append(append([]string{}, essential...), retrieval...)
	inputTokens := estimateTokens(strings.Join(allLines, "\n"))

	kept := append([]string{}, essential...)
	keptTokens := estimateTokens(strings.Join(kept, "\n"))

	retrievalKept := 0
	for _, line := range retrieval {
		candidate := estimateTokens(strings.Join(append(kept, line), "\n"))
		if candidate > budget {
			break
		}
		kept = append(kept, line)
		keptTokens = candidate
		retrievalKept++
	}

	ratio := 1.0
	if inputTokens > 0 {
		ratio = float64(keptTokens) / float64(inputTokens)
	}

	return ContextPayload{
		Text:             strings.Join(kept, "\n"),
		InputTokens:      inputTokens,
		CompactedTokens:  keptTokens,
		CompressionRatio: ratio,
		RetrievalSources: retrievalKept,
	}
}
