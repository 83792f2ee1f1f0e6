package perplexity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"regexp"
	"sync"

	"github.com/baalimago/go_away_boilerplate/pkg/ancli"
	"github.com/baalimago/go_away_boilerplate/pkg/misc"
	"golang.org/x/net/publicsuffix"
)

const DefaultBaseURL = "https://www.perplexity.ai"

// browserHeaders is the literal identity of the Chrome session the upstream
// service expects. The service has no official API, so the values are
// carried over verbatim from a captured browser session.
var browserHeaders = map[string]string{
	"accept":                      "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7",
	"accept-language":             "en-US,en;q=0.9",
	"cache-control":               "max-age=0",
	"dnt":                         "1",
	"priority":                    "u=0, i",
	"sec-ch-ua":                   `"Not;A=Brand";v="24", "Chromium";v="128"`,
	"sec-ch-ua-arch":              `"x86"`,
	"sec-ch-ua-bitness":           `"64"`,
	"sec-ch-ua-full-version":      `"128.0.6613.120"`,
	"sec-ch-ua-full-version-list": `"Not;A=Brand";v="24.0.0.0", "Chromium";v="128.0.6613.120"`,
	"sec-ch-ua-mobile":            "?0",
	"sec-ch-ua-model":             `""`,
	"sec-ch-ua-platform":          `"Windows"`,
	"sec-ch-ua-platform-version":  `"19.0.0"`,
	"sec-fetch-dest":              "document",
	"sec-fetch-mode":              "navigate",
	"sec-fetch-site":              "same-origin",
	"sec-fetch-user":              "?1",
	"upgrade-insecure-requests":   "1",
	"user-agent":                  "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/128.0.0.0 Safari/537.36",
}

// Client is a single logical session against the answer service. Construct
// with New, then realize the session with Connect before the first search.
type Client struct {
	// BaseURL may be overridden between New and Connect.
	BaseURL string

	client      *http.Client
	cookies     map[string]string
	ownsAccount bool
	salt        string
	quota       *ledger
	retry       RetryPolicy
	signinRe    *regexp.Regexp
	debug       bool

	mu        sync.Mutex
	connected bool
}

// New stores the session parameters without performing any I/O. A non-empty
// cookie set marks the session as account-owning with unbounded budgets.
// An empty one yields an anonymous session with zero budgets, which only
// ModeAuto queries without files can pass.
func New(cookies map[string]string) *Client {
	copilot, fileUpload := 0, 0
	if len(cookies) > 0 {
		copilot, fileUpload = unlimitedBudget, unlimitedBudget
	}
	return &Client{
		BaseURL:     DefaultBaseURL,
		cookies:     cookies,
		ownsAccount: len(cookies) > 0,
		salt:        fmt.Sprintf("%08x", rand.Uint32()),
		quota:       newLedger(copilot, fileUpload),
		retry:       DefaultRetryPolicy,
		debug:       misc.Truthy(os.Getenv("DEBUG")),
	}
}

// Connect realizes the session: it builds the cookie-bearing connection and
// warms it up with a single session-introspection GET. It must be called
// exactly once, a second call is a programming error. A failing warm-up is
// logged and swallowed, the first real query will surface genuine
// authentication problems.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		return errors.New("client is already connected")
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return fmt.Errorf("failed to create cookie jar: %w", err)
	}
	base, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("failed to parse base URL: %w", err)
	}
	seed := make([]*http.Cookie, 0, len(c.cookies))
	for name, value := range c.cookies {
		seed = append(seed, &http.Cookie{Name: name, Value: value, Path: "/"})
	}
	jar.SetCookies(base, seed)
	c.client = &http.Client{Jar: jar}
	c.signinRe = regexp.MustCompile(`"(` + regexp.QuoteMeta(c.BaseURL) + `/api/auth/callback/email\?callbackUrl=.*?)"`)
	c.connected = true

	req, err := c.newRequest(ctx, http.MethodGet, c.BaseURL+"/api/auth/session", nil)
	if err != nil {
		return fmt.Errorf("failed to create warm-up request: %w", err)
	}
	res, err := c.client.Do(req)
	if err != nil {
		ancli.PrintWarn(fmt.Sprintf("session warm-up failed: %v\n", err))
		return nil
	}
	res.Body.Close()
	if c.debug {
		ancli.PrintOK(fmt.Sprintf("session warm-up status: %v\n", res.Status))
	}
	return nil
}

func (c *Client) requireConnected() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return errors.New("client is not connected, call Connect first")
	}
	return nil
}

// OwnsAccount reports whether the session is backed by an account, either
// through supplied cookies or through CreateAccount.
func (c *Client) OwnsAccount() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ownsAccount
}

// Balances returns the remaining elevated-query and file-upload budgets.
// Unbounded budgets report -1.
func (c *Client) Balances() (copilot, fileUpload int) {
	return c.quota.balances()
}

func (c *Client) newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	r, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	for name, value := range browserHeaders {
		r.Header.Set(name, value)
	}
	return r, nil
}

// cookieValue reads a cookie from the live jar, preferring jar state over
// the construction-time seed since the service rotates cookies on responses.
func (c *Client) cookieValue(name string) string {
	base, err := url.Parse(c.BaseURL)
	if err != nil {
		return ""
	}
	for _, ck := range c.client.Jar.Cookies(base) {
		if ck.Name == name {
			return ck.Value
		}
	}
	return c.cookies[name]
}
