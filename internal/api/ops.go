package api

import (
	"encoding/json"
	"net/http"

	"github.com/zerohandoff/zhc-plane/internal/ops"
)

const defaultOpsWindowHours = 24

// handleOpsHealth returns the windowed ops summary (spec.md §4.1).
// @Summary Windowed ops health summary
// @Router /v1/ops/health [get]
func (s *Server) handleOpsHealth(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	windowHours := queryInt(r.URL.Query(), "window_hours", defaultOpsWindowHours)

	report, err := ops.BuildHealthReport(r.Context(), s.registry, windowHours)
	if err != nil {
		s.writeErrorResponse(w, http.StatusInternalServerError, "failed to build health report", []string{err.Error()}, requestID)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(report)
}

// handleOpsTelemetry returns just the telemetry summary half of the
// windowed report.
// @Summary Windowed telemetry summary
// @Router /v1/ops/telemetry [get]
func (s *Server) handleOpsTelemetry(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	windowHours := queryInt(r.URL.Query(), "window_hours", defaultOpsWindowHours)

	telemetry, err := s.registry.TelemetrySummary(r.Context(), windowHours)
	if err != nil {
		s.writeErrorResponse(w, http.StatusInternalServerError, "failed to build telemetry summary", []string{err.Error()}, requestID)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(telemetry)
}

// handleOpsSelfCheck runs the chaos-lite lease/idempotency round trip.
// @Summary Run the operational self-check
// @Router /v1/ops/selfcheck [post]
func (s *Server) handleOpsSelfCheck(w http.ResponseWriter, r *http.Request) {
	report := ops.SelfCheck(r.Context(), s.registry)

	status := http.StatusOK
	if report.Error != "" {
		status = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(report)
}
