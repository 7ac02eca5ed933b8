// ABOUTME: The send_alert job handler: resolves the check from the payload and
// ABOUTME: delivers a status-change notification over the configured channels.
package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/pulsewatch/pulsewatch/internal/jobs"
	"github.com/pulsewatch/pulsewatch/internal/notify"
	"github.com/pulsewatch/pulsewatch/internal/store"
)

// Alerter delivers check status-change alerts. Channels with empty
// configuration are skipped; with no channels configured the alert is
// logged and the job still succeeds.
type Alerter struct {
	store   *store.Store
	client  *http.Client
	webhook notify.WebhookConfig
	smtp    notify.SMTPConfig
	emails  []string
}

// Options configures the delivery channels for New.
type Options struct {
	Webhook notify.WebhookConfig
	SMTP    notify.SMTPConfig
	Emails  []string
}

// New creates an Alerter. client should be the production safeurl-wrapped
// client from notify.BuildSafeClient — webhook targets are operator-supplied
// URLs and must never reach internal addresses.
func New(s *store.Store, client *http.Client, opts Options) *Alerter {
	return &Alerter{
		store:   s,
		client:  client,
		webhook: opts.Webhook,
		smtp:    opts.SMTP,
		emails:  opts.Emails,
	}
}

// Register installs the handler under the send_alert job type.
func (a *Alerter) Register(reg *jobs.Registry) {
	reg.Register(store.JobTypeSendAlert, a.HandleSendAlert)
}

// alertBody is the webhook payload shape.
type alertBody struct {
	CheckCode string `json:"check_code"`
	CheckName string `json:"check_name"`
	NewStatus string `json:"new_status"`
}

// HandleSendAlert validates the payload, resolves the referenced check, and
// fans the alert out. Returned errors carry the offending key or code so
// the message survives in the job's error field for operators.
func (a *Alerter) HandleSendAlert(ctx context.Context, payload map[string]any) error {
	codeStr, ok := payload["check_code"].(string)
	if !ok || codeStr == "" {
		return errors.New("send_alert payload missing check_code")
	}
	newStatus, ok := payload["new_status"].(string)
	if !ok || newStatus == "" {
		return errors.New("send_alert payload missing new_status")
	}

	code, err := uuid.Parse(codeStr)
	if err != nil {
		return fmt.Errorf("invalid check_code %q: %w", codeStr, err)
	}
	check, err := a.store.GetCheckByCode(ctx, code)
	if err != nil {
		return err
	}
	if check == nil {
		return fmt.Errorf("check %s not found", code)
	}

	var errs []error

	if a.webhook.URL != "" {
		body, err := json.Marshal(alertBody{
			CheckCode: check.Code.String(),
			CheckName: check.Name,
			NewStatus: newStatus,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("encode alert body: %w", err))
		} else if err := notify.Send(ctx, a.client, a.webhook, body); err != nil {
			errs = append(errs, err)
		}
	}

	if len(a.emails) > 0 {
		subject := fmt.Sprintf("%s is %s", displayName(check), newStatus)
		body := fmt.Sprintf("Check %s (%s) changed status to %s.\n",
			displayName(check), check.Code, newStatus)
		if err := notify.EmailSend(ctx, a.smtp, a.emails, subject, body); err != nil {
			errs = append(errs, err)
		}
	}

	if a.webhook.URL == "" && len(a.emails) == 0 {
		slog.Info("alert (no delivery channels configured)",
			"check", check.Code, "new_status", newStatus)
	}

	return errors.Join(errs...)
}

func displayName(c *store.Check) string {
	if c.Name != "" {
		return c.Name
	}
	return c.Code.String()
}
