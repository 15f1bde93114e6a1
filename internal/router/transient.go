package router

import "strings"

// transientMarkers is the closed set of substrings that mark a
// child-process failure as eligible for retry (spec.md §4.5 step 7,
// §6 "child-process contract"). Matching is case-insensitive and applied
// to the combined stderr/error text of a failed invocation.
var transientMarkers = []string{
	"timed out",
	"temporarily unavailable",
	"connection reset",
	"broken pipe",
	"too many requests",
	"service unavailable",
}

// isTransientFailure reports whether errText matches one of the closed
// transient markers. Centralised here so the classification is identical
// wherever a child-process failure needs to be judged retry-eligible.
func isTransientFailure(errText string) bool {
	lowered := strings.ToLower(errText)
	for _, marker := range transientMarkers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}
