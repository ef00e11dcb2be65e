package logger

import (
	"context"
	"log/slog"
	"sort"
	"time"
)

// AuditEvent represents a security audit event
type AuditEvent struct {
	EventType     string
	AccountID     string
	IPAddress     string
	Success       bool
	FailureReason string
	Metadata      map[string]string
}

// AuditLogger writes audit records for credential checks and money
// movement. Records go through the application logger with audit_type set.
type AuditLogger struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
		now:    time.Now,
	}
}

// LogAuthAttempt logs one credential check. Failures log at warn.
func (al *AuditLogger) LogAuthAttempt(event AuditEvent) {
	attrs := al.base("auth", event.EventType)
	attrs = append(attrs, slog.Bool("success", event.Success))

	if event.AccountID != "" {
		attrs = append(attrs, slog.String("account_id", event.AccountID))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}
	attrs = appendMetadata(attrs, event.Metadata)

	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(context.Background(), level, "audit", attrs...)
}

// LogCredentialChange logs a password or PIN reset
func (al *AuditLogger) LogCredentialChange(credential, accountID string, success bool) {
	attrs := al.base("credential", credential+"_change")
	attrs = append(attrs,
		slog.Bool("success", success),
		slog.String("account_id", accountID),
	)

	level := slog.LevelInfo
	if !success {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(context.Background(), level, "audit", attrs...)
}

// LogAccountAction logs general account actions
func (al *AuditLogger) LogAccountAction(eventType, accountID string, metadata map[string]string) {
	attrs := al.base("account", eventType)
	attrs = append(attrs, slog.String("account_id", accountID))
	attrs = appendMetadata(attrs, metadata)

	al.logger.LogAttrs(context.Background(), slog.LevelInfo, "audit", attrs...)
}

func (al *AuditLogger) base(auditType, eventType string) []slog.Attr {
	return []slog.Attr{
		slog.String("audit_type", auditType),
		slog.String("event_type", eventType),
		slog.String("timestamp", al.now().UTC().Format(time.RFC3339)),
	}
}

// appendMetadata adds metadata in key order so records are stable
func appendMetadata(attrs []slog.Attr, metadata map[string]string) []slog.Attr {
	if len(metadata) == 0 {
		return attrs
	}
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	group := make([]any, 0, len(keys))
	for _, k := range keys {
		group = append(group, slog.String(k, metadata[k]))
	}
	return append(attrs, slog.Group("metadata", group...))
}
