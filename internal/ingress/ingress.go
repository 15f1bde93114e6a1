// Package ingress implements the Long-Poll Ingress: a single-writer
// Telegram command surface for the control plane (spec.md §4.6), adapted
// from the original bot_longpoll.py poll loop into an in-process Go
// dispatcher over Registry and Router.
package ingress

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/zerohandoff/zhc-plane/internal/config"
	"github.com/zerohandoff/zhc-plane/internal/registry"
	"github.com/zerohandoff/zhc-plane/internal/router"
)

const dedupCacheSize = 4096

// Ingress is the long-poll loop's top-level handle: one instance per
// process, guarded by a single-writer lock file (spec.md §4.6 "at most one
// ingress process may hold the lock at a time").
type Ingress struct {
	cfg      config.IngressConfig
	registry *registry.Registry
	router   *router.Router
	logger   *zap.Logger

	lock      *fileLock
	telegram  *telegramClient
	limiter   *chatLimiter
	audit     *zap.Logger
	dedup     *lru.Cache[int64, time.Time]
	allowlist map[int64]bool
	handler   *commandHandler

	offset        int
	errorCount    int
	lastErrorTime time.Time
}

// New acquires the single-writer lock and wires the ingress loop's
// dependencies. Callers must call Close when done, whether or not Run is
// ever invoked.
func New(cfg config.IngressConfig, reg *registry.Registry, rt *router.Router, logger *zap.Logger) (*Ingress, error) {
	lock, err := acquireLock(cfg.LockPath)
	if err != nil {
		return nil, fmt.Errorf("ingress: %w", err)
	}

	allowlist, err := cfg.AllowedChatIDs()
	if err != nil {
		lock.Release()
		return nil, fmt.Errorf("ingress: %w", err)
	}

	dedup, err := lru.New[int64, time.Time](dedupCacheSize)
	if err != nil {
		lock.Release()
		return nil, fmt.Errorf("ingress: dedup cache: %w", err)
	}

	return &Ingress{
		cfg:       cfg,
		registry:  reg,
		router:    rt,
		logger:    logger,
		lock:      lock,
		telegram:  newTelegramClient(cfg.BotToken, cfg.PollTimeout()),
		limiter:   newChatLimiter(cfg.RateLimitPerMinute, cfg.RateLimitBurst),
		audit:     newAuditLogger(cfg.AuditLogPath),
		dedup:     dedup,
		allowlist: allowlist,
		handler:   &commandHandler{registry: reg, router: rt},
		offset:    readOffset(cfg.OffsetPath),
	}, nil
}

// Close releases the single-writer lock and flushes the audit sink.
func (ing *Ingress) Close() error {
	ing.audit.Sync()
	return ing.lock.Release()
}

// Run polls for updates until ctx is cancelled, processing each update in
// turn and persisting the offset after every processed update.
func (ing *Ingress) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		updates, err := ing.telegram.GetUpdates(ctx, ing.offset, ing.cfg.PollTimeoutSeconds)
		if err != nil {
			ing.onPollError(ctx, err)
			continue
		}
		ing.onPollRecovered()

		for _, upd := range updates {
			ing.processUpdate(ctx, upd)
			ing.offset = upd.UpdateID + 1
			if err := writeOffset(ing.cfg.OffsetPath, ing.offset); err != nil {
				ing.logger.Error("ingress: persist offset failed", zap.Error(err))
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(ing.cfg.PollInterval()):
		}
	}
}

// onPollError records a getUpdates failure and sleeps out an exponential
// backoff capped at MaxBackoffSeconds (spec.md §4.6 "poll_error").
func (ing *Ingress) onPollError(ctx context.Context, err error) {
	ing.errorCount++
	ing.lastErrorTime = time.Now()
	backoff := backoffFor(ing.errorCount, ing.cfg.MaxBackoff())

	audit(ing.audit, AuditRecord{
		Status:         "poll_error",
		Error:          err.Error(),
		ErrorCount:     ing.errorCount,
		BackoffSeconds: backoff.Seconds(),
	})
	ing.logger.Warn("ingress: poll failed", zap.Error(err), zap.Int("error_count", ing.errorCount))

	select {
	case <-ctx.Done():
	case <-time.After(backoff):
	}
}

func (ing *Ingress) onPollRecovered() {
	if ing.errorCount == 0 {
		return
	}
	audit(ing.audit, AuditRecord{Status: "poll_recovered", ErrorCount: ing.errorCount})
	ing.errorCount = 0
}

// backoffFor computes an exponential backoff with bounded jitter, capped
// at maxBackoff.
func backoffFor(attempt int, maxBackoff time.Duration) time.Duration {
	base := time.Second * time.Duration(1<<uint(min(attempt, 6)))
	if base > maxBackoff {
		base = maxBackoff
	}
	jitter := time.Duration(rand.Int63n(int64(time.Second)))
	total := base + jitter
	if total > maxBackoff {
		total = maxBackoff
	}
	return total
}

// processUpdate runs the allowlist/rate-limit/idempotency/dispatch
// pipeline for a single update (spec.md §4.6's process_update), never
// returning an error: all failures are recorded in the audit log and, best
// effort, replied to the chat.
func (ing *Ingress) processUpdate(ctx context.Context, upd Update) {
	msg := upd.EffectiveMessage()
	if msg == nil || msg.Text == "" {
		return
	}
	chatID := msg.Chat.ID
	actor := msg.Actor()

	if ing.cfg.RequireAllowlist && !ing.allowlist[chatID] {
		audit(ing.audit, AuditRecord{UpdateID: upd.UpdateID, ChatID: chatID, Actor: actor, Text: msg.Text, Status: "rejected_not_allowlisted"})
		return
	}

	if !ing.limiter.Allow(chatID) {
		audit(ing.audit, AuditRecord{UpdateID: upd.UpdateID, ChatID: chatID, Actor: actor, Text: msg.Text, Status: "rate_limited"})
		ing.reply(ctx, chatID, "Rate limit exceeded, try again shortly.")
		return
	}

	if seenAt, ok := ing.dedup.Get(upd.UpdateID); ok {
		audit(ing.audit, AuditRecord{UpdateID: upd.UpdateID, ChatID: chatID, Actor: actor, Status: "duplicate_update", Text: seenAt.String()})
		return
	}
	ing.dedup.Add(upd.UpdateID, time.Now())

	cmd, args := parseCommand(msg.Text)
	if cmd == "" {
		return
	}

	traceID := fmt.Sprintf("telegram-%d-%d", chatID, upd.UpdateID)
	idemKey := fmt.Sprintf("telegram_command:%d:%d", chatID, upd.UpdateID)
	payloadHash := hashUpdatePayload(upd.UpdateID, chatID, msg.Text)

	begin, err := ing.registry.BeginIdempotency(ctx, idemKey, "telegram_command", payloadHash, "")
	if err != nil {
		audit(ing.audit, AuditRecord{UpdateID: upd.UpdateID, ChatID: chatID, Actor: actor, Text: msg.Text, TraceID: traceID, Status: "idempotency_error", Error: err.Error()})
		return
	}
	if begin.Conflict {
		audit(ing.audit, AuditRecord{UpdateID: upd.UpdateID, ChatID: chatID, Actor: actor, Text: msg.Text, TraceID: traceID, Status: "idempotency_conflict"})
		return
	}
	if begin.Exists && begin.Status == registry.IdempotencyCompleted {
		audit(ing.audit, AuditRecord{UpdateID: upd.UpdateID, ChatID: chatID, Actor: actor, Text: msg.Text, TraceID: traceID, Status: "idempotency_replay", Result: begin.Result})
		return
	}
	if begin.Exists && begin.Status == registry.IdempotencyProcessing {
		audit(ing.audit, AuditRecord{UpdateID: upd.UpdateID, ChatID: chatID, Actor: actor, Text: msg.Text, TraceID: traceID, Status: "idempotency_inflight"})
		return
	}

	cmdCtx, cancel := context.WithTimeout(ctx, ing.commandTimeout(cmd))
	reply, result, cmdErr := ing.handler.Handle(cmdCtx, cmd, args, actor)
	cancel()

	status := "ok"
	errText := ""
	if cmdErr != nil {
		status = "command_error"
		errText = cmdErr.Error()
		reply = "Error: " + errText
	}

	if completeErr := ing.registry.CompleteIdempotency(ctx, idemKey, registry.IdempotencyCompleted, map[string]any{"reply": reply, "status": status}); completeErr != nil {
		ing.logger.Error("ingress: complete idempotency failed", zap.Error(completeErr))
	}

	audit(ing.audit, AuditRecord{
		UpdateID: upd.UpdateID, ChatID: chatID, Actor: actor, Text: msg.Text, TraceID: traceID,
		Status: status, Result: result, Error: errText,
	})

	ing.reply(ctx, chatID, reply)
}

func (ing *Ingress) commandTimeout(cmd string) time.Duration {
	if cmd == "/resume" {
		return ing.cfg.ResumeTimeout()
	}
	return ing.cfg.CommandTimeout()
}

func (ing *Ingress) reply(ctx context.Context, chatID int64, text string) {
	if text == "" {
		return
	}
	if err := ing.telegram.SendMessage(ctx, chatID, text); err != nil {
		ing.logger.Warn("ingress: reply failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func hashUpdatePayload(updateID, chatID int64, text string) string {
	h := sha256.New()
	enc := json.NewEncoder(h)
	enc.Encode(struct {
		UpdateID int64  `json:"update_id"`
		ChatID   int64  `json:"chat_id"`
		Text     string `json:"text"`
	}{updateID, chatID, text})
	return hex.EncodeToString(h.Sum(nil))
}
