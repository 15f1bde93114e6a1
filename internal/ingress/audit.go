package ingress

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// AuditRecord is one structured audit line (spec.md §6: "ts, update_id,
// chat_id, actor, text, trace_id, status, result?, error?").
type AuditRecord struct {
	UpdateID int64  `json:"update_id,omitempty"`
	ChatID   int64  `json:"chat_id,omitempty"`
	Actor    string `json:"actor,omitempty"`
	Text     string `json:"text,omitempty"`
	TraceID  string `json:"trace_id,omitempty"`
	Status   string `json:"status"`
	Result   any    `json:"result,omitempty"`
	Error    string `json:"error,omitempty"`

	ErrorCount     int     `json:"error_count,omitempty"`
	BackoffSeconds float64 `json:"backoff_seconds,omitempty"`
}

// newAuditLogger builds a newline-delimited JSON audit sink rotated via
// lumberjack, grounded on the teacher's zap-core construction pattern;
// log rotation is an addition the teacher does not carry (documented in
// the grounding ledger).
func newAuditLogger(path string) *zap.Logger {
	sink := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	}
	encoderCfg := zapcore.EncoderConfig{
		TimeKey:    "ts",
		MessageKey: "",
		LevelKey:   "",
		EncodeTime: zapcore.ISO8601TimeEncoder,
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(sink), zapcore.InfoLevel)
	return zap.New(core)
}

// Audit appends one structured record to the audit log.
func audit(logger *zap.Logger, rec AuditRecord) {
	fields := []zap.Field{zap.String("status", rec.Status)}
	if rec.UpdateID != 0 {
		fields = append(fields, zap.Int64("update_id", rec.UpdateID))
	}
	if rec.ChatID != 0 {
		fields = append(fields, zap.Int64("chat_id", rec.ChatID))
	}
	if rec.Actor != "" {
		fields = append(fields, zap.String("actor", rec.Actor))
	}
	if rec.Text != "" {
		fields = append(fields, zap.String("text", rec.Text))
	}
	if rec.TraceID != "" {
		fields = append(fields, zap.String("trace_id", rec.TraceID))
	}
	if rec.Result != nil {
		fields = append(fields, zap.Any("result", rec.Result))
	}
	if rec.Error != "" {
		fields = append(fields, zap.String("error", rec.Error))
	}
	if rec.ErrorCount != 0 {
		fields = append(fields, zap.Int("error_count", rec.ErrorCount))
	}
	if rec.BackoffSeconds != 0 {
		fields = append(fields, zap.Float64("backoff_seconds", rec.BackoffSeconds))
	}
	logger.Info("", fields...)
}
