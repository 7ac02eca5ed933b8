// ABOUTME: Outbound webhook delivery: HMAC signing, response body discard.
// ABOUTME: Send is a pure function; the http.Client is injected by the caller.
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// WebhookConfig holds the delivery-time parameters for a webhook target.
type WebhookConfig struct {
	URL           string
	SigningSecret string // empty disables signing
}

// Send posts payload to the webhook URL and discards the response body.
// When a signing secret is configured, the request carries an HMAC-SHA256
// signature over "timestamp.body" so receivers can verify origin and bound
// replay windows. The caller constructs client once at startup
// (safeurl-wrapped, redirect-disabled, 10s timeout).
func Send(ctx context.Context, client *http.Client, cfg WebhookConfig, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if cfg.SigningSecret != "" {
		ts := strconv.FormatInt(time.Now().Unix(), 10)
		mac := hmac.New(sha256.New, []byte(cfg.SigningSecret))
		mac.Write([]byte(ts + "." + string(payload)))
		req.Header.Set("X-Pulsewatch-Timestamp", ts)
		req.Header.Set("X-Pulsewatch-Signature", "sha256="+hex.EncodeToString(mac.Sum(nil)))
	}

	resp, err := client.Do(req) //nolint:gosec // G107: SSRF is enforced architecturally by the safeurl-wrapped client injected at startup
	if err != nil {
		return fmt.Errorf("webhook POST: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	// Discard response body to allow connection reuse; cap at 4 KiB.
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook POST: unexpected status %d", resp.StatusCode)
	}
	return nil
}
