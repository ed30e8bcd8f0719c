package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// AuditEventType names a structured audit event.
type AuditEventType string

const (
	AuditSessionStart  AuditEventType = "session_start"
	AuditExchangeStart AuditEventType = "exchange_start"
	AuditExchangeEnd   AuditEventType = "exchange_end"
	AuditLLMCall       AuditEventType = "llm_call"
	AuditBlockVersion  AuditEventType = "block_version"
	AuditBranchSwitch  AuditEventType = "branch_switch"
	AuditMemoryRecall  AuditEventType = "memory_recall"
	AuditDegraded      AuditEventType = "degraded"
)

// AuditEvent is one JSON line in the audit log.
type AuditEvent struct {
	EventType  AuditEventType
	SessionID  string
	Target     string
	Success    bool
	DurationMs int64
	Error      string
	Fields     map[string]interface{}
}

var (
	auditMu   sync.Mutex
	auditFile *os.File
	auditZap  *zap.Logger
)

// AuditLogger writes audit events scoped to a session.
type AuditLogger struct {
	sessionID string
}

// InitAudit opens <workspace>/.loom/logs/audit.jsonl. No-op outside debug mode.
func InitAudit(workspace string) error {
	if !IsDebugMode() {
		return nil
	}
	auditMu.Lock()
	defer auditMu.Unlock()
	if auditZap != nil {
		return nil
	}

	dir := filepath.Join(workspace, ".loom", "logs")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create audit directory: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, "audit.jsonl"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}

	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "ts"
	enc.EncodeTime = zapcore.EpochMillisTimeEncoder
	enc.MessageKey = "event"
	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.AddSync(f), zapcore.DebugLevel)

	auditFile = f
	auditZap = zap.New(core)
	return nil
}

// CloseAudit flushes and closes the audit log.
func CloseAudit() {
	auditMu.Lock()
	defer auditMu.Unlock()
	if auditZap != nil {
		_ = auditZap.Sync()
		auditZap = nil
	}
	if auditFile != nil {
		auditFile.Close()
		auditFile = nil
	}
}

// Audit returns an audit logger for the given session.
func Audit(sessionID string) *AuditLogger {
	return &AuditLogger{sessionID: sessionID}
}

// Log writes the event. Silently dropped when the audit log is closed.
func (a *AuditLogger) Log(e AuditEvent) {
	auditMu.Lock()
	z := auditZap
	auditMu.Unlock()
	if z == nil {
		return
	}
	if e.SessionID == "" {
		e.SessionID = a.sessionID
	}
	fields := []zap.Field{
		zap.String("session", e.SessionID),
		zap.String("target", e.Target),
		zap.Bool("success", e.Success),
	}
	if e.DurationMs > 0 {
		fields = append(fields, zap.Int64("dur_ms", e.DurationMs))
	}
	if e.Error != "" {
		fields = append(fields, zap.String("error", e.Error))
	}
	if len(e.Fields) > 0 {
		fields = append(fields, zap.Any("fields", e.Fields))
	}
	z.Info(string(e.EventType), fields...)
}

// ExchangeEnd records a completed (or failed) prompt/response exchange.
func (a *AuditLogger) ExchangeEnd(turnID string, d time.Duration, err error) {
	e := AuditEvent{EventType: AuditExchangeEnd, Target: turnID, Success: err == nil, DurationMs: d.Milliseconds()}
	if err != nil {
		e.Error = err.Error()
	}
	a.Log(e)
}

// LLMCall records a provider call with its token usage.
func (a *AuditLogger) LLMCall(model string, inputTokens, outputTokens int, d time.Duration, err error) {
	e := AuditEvent{
		EventType:  AuditLLMCall,
		Target:     model,
		Success:    err == nil,
		DurationMs: d.Milliseconds(),
		Fields:     map[string]interface{}{"input_tokens": inputTokens, "output_tokens": outputTokens},
	}
	if err != nil {
		e.Error = err.Error()
	}
	a.Log(e)
}

// Degraded records a recovered sub-failure (memory search, diff, render).
func (a *AuditLogger) Degraded(component string, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	a.Log(AuditEvent{EventType: AuditDegraded, Target: component, Success: false, Error: msg})
}
