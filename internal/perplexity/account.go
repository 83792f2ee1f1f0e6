package perplexity

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/baalimago/go_away_boilerplate/pkg/ancli"
)

const signinSubject = "Sign in to Perplexity"

// Mailbox is one disposable inbox used to intercept the sign-in email.
type Mailbox interface {
	Address() string
	// WaitFor polls the inbox until a message matches or the timeout lapses.
	WaitFor(ctx context.Context, match func(subject string) bool, timeout time.Duration) (messageID string, err error)
	Open(ctx context.Context, messageID string) (body string, err error)
}

// MailboxFactory produces a fresh mailbox per provisioning attempt.
type MailboxFactory func(ctx context.Context) (Mailbox, error)

// RetryPolicy bounds the provisioning loop. The upstream web flow retried
// forever with no deadline, which is a liveness hazard, so attempts are
// capped here and the whole call respects ctx.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
	PollTimeout time.Duration
}

var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 5,
	Backoff:     2 * time.Second,
	PollTimeout: 20 * time.Second,
}

// SetRetryPolicy replaces the provisioning retry policy. Must be called
// before CreateAccount.
func (c *Client) SetRetryPolicy(p RetryPolicy) {
	c.retry = p
}

// CreateAccount promotes the session to a fresh authenticated account: it
// obtains a disposable mailbox, triggers a sign-in email, intercepts it and
// follows the callback link. On success the session owns the account and
// both budgets are reset to the new-account entitlements.
//
// Not idempotent: each call manufactures a distinct upstream account and
// overwrites the session's cookies.
func (c *Client) CreateAccount(ctx context.Context, newMailbox MailboxFactory) error {
	if err := c.requireConnected(); err != nil {
		return err
	}
	var lastErr error
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = c.provisionOnce(ctx, newMailbox)
		if lastErr == nil {
			c.quota.grant(newAccountCopilot, newAccountFileUpload)
			c.mu.Lock()
			c.ownsAccount = true
			c.mu.Unlock()
			return nil
		}
		ancli.Warnf("account provisioning attempt %v/%v failed: %v\n", attempt, c.retry.MaxAttempts, lastErr)
		if attempt < c.retry.MaxAttempts {
			select {
			case <-time.After(c.retry.Backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return fmt.Errorf("account provisioning failed after %v attempts: %w", c.retry.MaxAttempts, lastErr)
}

// provisionOnce runs a single attempt: new mailbox, sign-in POST, inbox
// poll, callback GET.
func (c *Client) provisionOnce(ctx context.Context, newMailbox MailboxFactory) error {
	mailbox, err := newMailbox(ctx)
	if err != nil {
		return fmt.Errorf("failed to obtain mailbox: %w", err)
	}

	// The csrf cookie value carries a URL-encoded separator, only the part
	// before it is the token.
	csrfToken, _, _ := strings.Cut(c.cookieValue("next-auth.csrf-token"), "%")
	form := url.Values{
		"email":       {mailbox.Address()},
		"csrfToken":   {csrfToken},
		"callbackUrl": {c.BaseURL + "/"},
		"json":        {"true"},
	}
	req, err := c.newRequest(ctx, http.MethodPost, c.BaseURL+"/api/auth/signin/email", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create sign-in request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	res, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to request sign-in email: %w", err)
	}
	res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("sign-in request answered %v", res.Status)
	}

	messageID, err := mailbox.WaitFor(ctx, func(subject string) bool {
		return subject == signinSubject
	}, c.retry.PollTimeout)
	if err != nil {
		return fmt.Errorf("sign-in email never arrived: %w", err)
	}
	body, err := mailbox.Open(ctx, messageID)
	if err != nil {
		return fmt.Errorf("failed to open sign-in email: %w", err)
	}
	match := c.signinRe.FindStringSubmatch(body)
	if match == nil {
		return fmt.Errorf("no callback link found in sign-in email from %v", mailbox.Address())
	}

	callbackReq, err := c.newRequest(ctx, http.MethodGet, match[1], nil)
	if err != nil {
		return fmt.Errorf("failed to create callback request: %w", err)
	}
	callbackRes, err := c.client.Do(callbackReq)
	if err != nil {
		return fmt.Errorf("failed to follow callback link: %w", err)
	}
	callbackRes.Body.Close()
	return nil
}
