package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// zyxelPasswordAlphabet is the character set used to pad the obfuscated
// login payload around the embedded password bytes.
const zyxelPasswordAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// EncodeZyxelPassword reproduces the legacy Zyxel web login obfuscation: a
// 321-character buffer where the password is written backwards at every
// 5th position, its tens digit is placed at offset 123 and its ones digit
// at offset 289, and every other position is filled with a random
// alphanumeric character. This is not cryptographic; it mirrors the
// browser-side JavaScript the device's login page itself runs, so the
// transport must reproduce it byte for byte.
func EncodeZyxelPassword(pwd string) string {
	var out strings.Builder
	pwdLen := len(pwd)
	charIdx := pwdLen

	for i := 1; i < 322-pwdLen; i++ {
		switch {
		case i%5 == 0 && charIdx > 0:
			charIdx--
			out.WriteByte(pwd[charIdx])
		case i == 123:
			if pwdLen < 10 {
				out.WriteByte('0')
			} else {
				out.WriteString(fmt.Sprintf("%d", pwdLen/10))
			}
		case i == 289:
			out.WriteString(fmt.Sprintf("%d", pwdLen%10))
		default:
			out.WriteByte(zyxelPasswordAlphabet[rand.Intn(len(zyxelPasswordAlphabet))])
		}
	}
	return out.String()
}

var xssidPattern = regexp.MustCompile(`name="XSSID"\s+value="([^"]+)"`)

// WebFormConfig configures a WebFormTransport.
type WebFormConfig struct {
	Host     string
	Username string
	Password string
	Timeout  time.Duration
}

// WebFormTransport is the stateful web-CGI transport used by the Zyxel
// legacy web dialect: a cookie-jar-backed HTTP client authenticates
// through the obfuscated login handshake, then every mutating operation
// first fetches a page to harvest a per-session XSSID anti-CSRF token
// before POSTing form data back to the same dispatcher endpoint. There is
// no HTML-parsing library in use here — the XSSID token and any other
// form-embedded state are pulled out with a targeted regexp, following
// the obfuscation routine's own regex-driven extraction.
type WebFormTransport struct {
	cfg     WebFormConfig
	client  *http.Client
	baseURL string
}

// NewWebFormTransport constructs a transport without connecting.
func NewWebFormTransport(cfg WebFormConfig) *WebFormTransport {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &WebFormTransport{cfg: cfg, baseURL: fmt.Sprintf("http://%s", cfg.Host)}
}

// Connect establishes the cookie jar and performs the login handshake:
// POST the obfuscated credentials, then confirm the resulting auth id with
// a login_chk round trip.
func (t *WebFormTransport) Connect(ctx context.Context) error {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return fmt.Errorf("webform cookie jar: %w", err)
	}
	t.client = &http.Client{Timeout: t.cfg.Timeout, Jar: jar}

	encoded := EncodeZyxelPassword(t.cfg.Password)
	loginBody := fmt.Sprintf("username=%s&password=%s&login=true;", url.QueryEscape(t.cfg.Username), encoded)
	resp, err := t.post(ctx, loginBody)
	if err != nil {
		return fmt.Errorf("webform login: %w", err)
	}
	authID := strings.TrimSpace(resp)

	time.Sleep(500 * time.Millisecond)
	checkResp, err := t.post(ctx, fmt.Sprintf("authId=%s&login_chk=true", url.QueryEscape(authID)))
	if err != nil {
		return fmt.Errorf("webform login check: %w", err)
	}
	if !strings.Contains(checkResp, "OK") {
		return fmt.Errorf("webform login rejected for %s", t.cfg.Username)
	}
	return nil
}

// Close is a no-op; the transport holds no persistent connection beyond
// the cookie jar.
func (t *WebFormTransport) Close() error {
	t.client = nil
	return nil
}

// FetchXSSID loads the given dispatcher page and extracts its XSSID
// anti-CSRF token, required before any mutating POST to that page.
func (t *WebFormTransport) FetchXSSID(ctx context.Context, cmd int) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/cgi-bin/dispatcher.cgi?cmd=%d", t.baseURL, cmd), nil)
	if err != nil {
		return "", fmt.Errorf("webform xssid request: %w", err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("webform xssid fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("webform xssid read: %w", err)
	}
	m := xssidPattern.FindSubmatch(body)
	if m == nil {
		return "", fmt.Errorf("webform xssid token not found on cmd=%d", cmd)
	}
	return string(m[1]), nil
}

// Submit POSTs a pre-built form (typically including an XSSID from
// FetchXSSID) to the dispatcher endpoint.
func (t *WebFormTransport) Submit(ctx context.Context, form url.Values) (string, error) {
	return t.post(ctx, form.Encode())
}

// FetchPage loads a dispatcher page and returns its raw body, for callers
// that need to scrape more than the XSSID token (e.g. existing VLAN
// membership state before a preserve-and-modify POST).
func (t *WebFormTransport) FetchPage(ctx context.Context, cmd int, query string) (string, error) {
	u := fmt.Sprintf("%s/cgi-bin/dispatcher.cgi?cmd=%d", t.baseURL, cmd)
	if query != "" {
		u += "&" + query
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("webform page request: %w", err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("webform page fetch: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("webform page read: %w", err)
	}
	return string(body), nil
}

func (t *WebFormTransport) post(ctx context.Context, body string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		t.baseURL+"/cgi-bin/dispatcher.cgi", bytes.NewBufferString(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
