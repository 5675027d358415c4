// Package notifier evaluates alert rules against the engine's own
// change events and delivers matching ones over a webhook. Adapted
// from the teacher's notifier package: same rule-matching shape and
// sendWebhook idiom, re-pointed at this engine's imported-asset index
// changes and bulk-import completions instead of model.ChangeEvent.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/vaultbridge/importengine/internal/model"
	"go.uber.org/zap"
)

// Event kinds an AlertRule can react to.
const (
	EventImportedAdded   = "imported.added"
	EventImportedUpdated = "imported.updated"
	EventImportedRemoved = "imported.removed"
	EventImportCompleted = "import.completed"
)

// Event is the payload matched against AlertRules and, for a webhook
// channel, marshaled straight into the POST body.
type Event struct {
	Kind    string            `json:"kind"`
	Trigger string            `json:"trigger,omitempty"`
	Status  string            `json:"status,omitempty"`
	Assets  []model.TrackedID `json:"assets,omitempty"`
}

// AlertRule defines a condition that triggers a notification.
type AlertRule struct {
	Name     string   `json:"name"`
	Kinds    []string `json:"kinds"`    // event kinds this rule reacts to; empty matches all
	Channels []string `json:"channels"` // "webhook" is the only channel currently delivered
}

// Notifier evaluates alert rules against change events and sends
// notifications.
type Notifier struct {
	rules      []AlertRule
	webhookURL string
	logger     *zap.Logger
}

// New creates a new Notifier. webhookURL may be empty; rules still
// evaluate and log a match, but the webhook channel has nowhere to
// post and is skipped.
func New(logger *zap.Logger, webhookURL string) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		rules:      []AlertRule{},
		webhookURL: webhookURL,
		logger:     logger,
	}
}

// AddRule registers a new alert rule.
func (n *Notifier) AddRule(rule AlertRule) {
	n.rules = append(n.rules, rule)
}

// Evaluate checks event against every rule and delivers it on each
// matching rule's channels.
func (n *Notifier) Evaluate(ctx context.Context, event Event) {
	for _, rule := range n.rules {
		if !n.matches(rule, event) {
			continue
		}
		n.logger.Info("alert rule matched",
			zap.String("rule", rule.Name),
			zap.String("kind", event.Kind),
		)
		for _, ch := range rule.Channels {
			switch ch {
			case "webhook":
				n.sendWebhook(ctx, event)
			default:
				n.logger.Warn("unsupported notification channel", zap.String("channel", ch))
			}
		}
	}
}

func (n *Notifier) matches(rule AlertRule, event Event) bool {
	if len(rule.Kinds) == 0 {
		return true
	}
	for _, k := range rule.Kinds {
		if k == event.Kind {
			return true
		}
	}
	return false
}

func (n *Notifier) sendWebhook(ctx context.Context, event Event) {
	if n.webhookURL == "" {
		return
	}

	payload, _ := json.Marshal(event)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(payload))
	if err != nil {
		n.logger.Error("creating webhook request", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		n.logger.Error("sending webhook", zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		n.logger.Warn("webhook returned non-success",
			zap.Int("status", resp.StatusCode),
			zap.String("url", n.webhookURL),
		)
	}
}

// NotifyIndexChange fires one Event per non-empty change kind in ev,
// meant to be registered with internal/index.Index.Subscribe.
func (n *Notifier) NotifyIndexChange(ctx context.Context, ev model.IndexChangeEvent) {
	if len(ev.Added) > 0 {
		n.Evaluate(ctx, Event{Kind: EventImportedAdded, Assets: ev.Added})
	}
	if len(ev.Updated) > 0 {
		n.Evaluate(ctx, Event{Kind: EventImportedUpdated, Assets: ev.Updated})
	}
	if len(ev.Removed) > 0 {
		n.Evaluate(ctx, Event{Kind: EventImportedRemoved, Assets: ev.Removed})
	}
}

// NotifyImportCompleted fires one Event when a bulk import operation
// reaches a terminal status.
func (n *Notifier) NotifyImportCompleted(ctx context.Context, trigger string, status model.OperationStatus) {
	n.Evaluate(ctx, Event{Kind: EventImportCompleted, Trigger: trigger, Status: string(status)})
}

var _ fmt.Stringer = (*AlertRule)(nil)

// String returns a human-readable representation of the alert rule.
func (r *AlertRule) String() string {
	return fmt.Sprintf("AlertRule{name=%s, kinds=%v, channels=%v}", r.Name, r.Kinds, r.Channels)
}
