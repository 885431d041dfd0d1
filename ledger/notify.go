package ledger

import (
	"context"
	"log"
)

// =============================================================================
// NOTIFIER - Fire-and-forget user notifications
// =============================================================================

// Notification is a message for a user after a balance-affecting event.
type Notification struct {
	UserID   UserID
	Title    string
	Message  string
	Category string // "deposit", "withdrawal", "investment", "balance"
}

// Notifier delivers notifications. The contract is best-effort: a delivery
// failure must never roll back or block the ledger operation that emitted
// it. Callers send after commit and log failures.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NopNotifier drops every notification. Default when none is configured.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Notification) error { return nil }

// LogNotifier writes notifications to the process log. Useful in dev.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, n Notification) error {
	log.Printf("notify [%s] %s: %s: %s", n.Category, n.UserID, n.Title, n.Message)
	return nil
}

// BestEffortNotify sends and swallows any failure.
func BestEffortNotify(ctx context.Context, notifier Notifier, n Notification) {
	if notifier == nil {
		return
	}
	if err := notifier.Notify(ctx, n); err != nil {
		log.Printf("notification delivery failed for %s: %v", n.UserID, err)
	}
}

// BestEffortAudit appends and swallows any failure.
func BestEffortAudit(ctx context.Context, audit AuditLog, entry AuditEntry) {
	if audit == nil {
		return
	}
	if err := audit.AppendAudit(ctx, entry); err != nil {
		log.Printf("audit write failed for %s: %v", entry.Action, err)
	}
}
