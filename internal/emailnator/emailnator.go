// Package emailnator is a small unofficial client for the Emailnator
// disposable mailbox service, used to intercept sign-in emails during
// account provisioning.
package emailnator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"time"

	"github.com/baalimago/go_away_boilerplate/pkg/ancli"
	"github.com/baalimago/go_away_boilerplate/pkg/misc"
	"golang.org/x/net/publicsuffix"
)

const DefaultBaseURL = "https://www.emailnator.com"

// defaultPollInterval paces the inbox polling loop.
const defaultPollInterval = 1500 * time.Millisecond

// Message is one inbox entry as reported by the message list endpoint.
type Message struct {
	MessageID string `json:"messageID"`
	From      string `json:"from"`
	Subject   string `json:"subject"`
	Time      string `json:"time"`
}

// Client is one disposable mailbox. Create with New, which provisions a
// fresh address. The inbox entries present at creation time are ads seeded
// by the service and are excluded from every poll result.
type Client struct {
	BaseURL      string
	PollInterval time.Duration

	client    *http.Client
	xsrfToken string
	email     string
	seen      map[string]bool
	debug     bool
}

// New provisions a fresh mailbox using the seed cookies of an existing
// Emailnator browser session.
func New(ctx context.Context, cookies map[string]string) (*Client, error) {
	return NewWithBaseURL(ctx, DefaultBaseURL, cookies)
}

func NewWithBaseURL(ctx context.Context, baseURL string, cookies map[string]string) (*Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}
	seed := make([]*http.Cookie, 0, len(cookies))
	for name, value := range cookies {
		seed = append(seed, &http.Cookie{Name: name, Value: value, Path: "/"})
	}
	jar.SetCookies(base, seed)

	// The service reads the XSRF token from a header mirroring the cookie,
	// URL-decoded.
	xsrfToken, err := url.QueryUnescape(cookies["XSRF-TOKEN"])
	if err != nil {
		xsrfToken = cookies["XSRF-TOKEN"]
	}

	c := &Client{
		BaseURL:      baseURL,
		PollInterval: defaultPollInterval,
		client:       &http.Client{Jar: jar},
		xsrfToken:    xsrfToken,
		seen:         map[string]bool{},
		debug:        misc.Truthy(os.Getenv("DEBUG")),
	}
	if err := c.generateEmail(ctx); err != nil {
		return nil, err
	}
	// Snapshot the pre-seeded ad messages so polls only surface real mail
	ads, err := c.list(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot inbox: %w", err)
	}
	for _, msg := range ads {
		c.seen[msg.MessageID] = true
	}
	if c.debug {
		ancli.PrintOK(fmt.Sprintf("mailbox %v ready, %v ad message(s) ignored\n", c.email, len(ads)))
	}
	return c, nil
}

// Address returns the provisioned mail address.
func (c *Client) Address() string {
	return c.email
}

func (c *Client) generateEmail(ctx context.Context) error {
	var res struct {
		Email []string `json:"email"`
	}
	err := c.post(ctx, "/generate-email", map[string]any{
		"email": []string{"dotGmail", "plusGmail", "googleMail"},
	}, &res)
	if err != nil {
		return fmt.Errorf("failed to generate email: %w", err)
	}
	if len(res.Email) == 0 {
		return errors.New("mailbox service returned no address")
	}
	c.email = res.Email[0]
	return nil
}

func (c *Client) list(ctx context.Context) ([]Message, error) {
	var res struct {
		MessageData []Message `json:"messageData"`
	}
	err := c.post(ctx, "/message-list", map[string]any{"email": c.email}, &res)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return res.MessageData, nil
}

// WaitFor polls the inbox until a new message's subject matches or the
// timeout lapses. Matched and unmatched new messages alike are marked seen.
func (c *Client) WaitFor(ctx context.Context, match func(subject string) bool, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	for {
		msgs, err := c.list(ctx)
		if err != nil {
			return "", err
		}
		var found string
		for _, msg := range msgs {
			if c.seen[msg.MessageID] {
				continue
			}
			c.seen[msg.MessageID] = true
			if c.debug {
				ancli.PrintOK(fmt.Sprintf("new message from %v: %v\n", msg.From, msg.Subject))
			}
			if found == "" && match(msg.Subject) {
				found = msg.MessageID
			}
		}
		if found != "" {
			return found, nil
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("no matching message within %v", timeout)
		}
		select {
		case <-time.After(c.PollInterval):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// Open fetches the raw body of one message.
func (c *Client) Open(ctx context.Context, messageID string) (string, error) {
	payload, err := json.Marshal(map[string]any{"email": c.email, "messageID": messageID})
	if err != nil {
		return "", fmt.Errorf("failed to encode open request: %w", err)
	}
	req, err := c.newRequest(ctx, "/message-list", payload)
	if err != nil {
		return "", err
	}
	res, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to open message: %w", err)
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read message body: %w", err)
	}
	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("message open answered %v", res.Status)
	}
	return string(body), nil
}

func (c *Client) post(ctx context.Context, path string, payload map[string]any, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := c.newRequest(ctx, path, data)
	if err != nil {
		return err
	}
	res, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("unexpected status %v, body: %.200s", res.Status, string(body))
	}
	return json.NewDecoder(res.Body).Decode(out)
}

func (c *Client) newRequest(ctx context.Context, path string, payload []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("X-XSRF-TOKEN", c.xsrfToken)
	return req, nil
}
