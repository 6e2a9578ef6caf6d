package transport

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"
)

// BrocadePromptPattern matches the Brocade FCX prompt, with or without a
// config-mode suffix, e.g. "Router>", "Router#", "Router(config)#".
var BrocadePromptPattern = regexp.MustCompile(`(?m)Router(\([\w-]+\))?[>#]\s*$`)

const (
	morePrompt          = "--More--"
	brocadeInterCommand = 500 * time.Millisecond
	brocadeEnableDeadline = 5 * time.Second
)

// TelnetConfig configures a TelnetTransport.
type TelnetConfig struct {
	Host            string
	Port            int
	EnablePassword  string
	Timeout         time.Duration
	PromptPattern   *regexp.Regexp
	SkipPagingCmd   string
}

// TelnetTransport is the prompt-driven telnet transport used by Brocade
// FCX switches: a raw TCP connection scanned byte-by-byte for a prompt
// regex, with transparent "--More--" paging and an enable-password
// handshake. There is no telnet client library in use here — this mirrors
// how the device driver layer elsewhere in this module reads raw bytes off
// an io.Reader until a prompt is matched, generalized from an SSH pipe to
// a plain net.Conn.
type TelnetTransport struct {
	cfg    TelnetConfig
	conn   net.Conn
	reader *bufio.Reader
	prompt *regexp.Regexp
}

// NewTelnetTransport constructs a transport without connecting.
func NewTelnetTransport(cfg TelnetConfig) *TelnetTransport {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.PromptPattern == nil {
		cfg.PromptPattern = BrocadePromptPattern
	}
	if cfg.SkipPagingCmd == "" {
		cfg.SkipPagingCmd = "skip-page-display"
	}
	return &TelnetTransport{cfg: cfg, prompt: cfg.PromptPattern}
}

// Connect dials the device, waits for the initial prompt, and
// unconditionally disables paging.
func (t *TelnetTransport) Connect(ctx context.Context) error {
	dialer := net.Dialer{Timeout: t.cfg.Timeout}
	addr := fmt.Sprintf("%s:%d", t.cfg.Host, t.cfg.Port)
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("telnet dial %s: %w", addr, err)
	}
	t.conn = conn
	t.reader = bufio.NewReader(conn)

	if _, err := t.readUntilPrompt(ctx); err != nil {
		conn.Close()
		return fmt.Errorf("telnet initial prompt: %w", err)
	}

	if _, err := t.SendCommand(ctx, t.cfg.SkipPagingCmd); err != nil {
		conn.Close()
		return fmt.Errorf("telnet disable paging: %w", err)
	}
	return nil
}

// Close terminates the connection.
func (t *TelnetTransport) Close() error {
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}

// EnterPrivileged runs the enable handshake: send "enable", then within a
// 5s deadline either see a password prompt (send the secret and verify a
// trailing "#"), see an immediate "#" (no secret required), or time out.
func (t *TelnetTransport) EnterPrivileged(ctx context.Context) error {
	if err := t.writeLine("enable"); err != nil {
		return err
	}

	deadline := time.Now().Add(brocadeEnableDeadline)
	var buf strings.Builder
	for time.Now().Before(deadline) {
		t.conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		line, err := t.reader.ReadString('\n')
		buf.WriteString(line)
		text := buf.String()
		if strings.Contains(strings.ToLower(text), "password") {
			if err := t.writeLine(t.cfg.EnablePassword); err != nil {
				return err
			}
			follow, _ := t.readUntilPrompt(ctx)
			if !strings.Contains(follow, "#") {
				return fmt.Errorf("enable password rejected")
			}
			return nil
		}
		if strings.Contains(text, "#") {
			return nil
		}
		if err != nil && !isTimeoutErr(err) {
			return fmt.Errorf("enable handshake read: %w", err)
		}
	}
	return fmt.Errorf("enable handshake timed out after %s", brocadeEnableDeadline)
}

// SendCommand sends a single command with CRLF line ending and reads the
// response up to the next prompt, transparently paging through any
// "--More--" interstitials.
func (t *TelnetTransport) SendCommand(ctx context.Context, cmd string) (string, error) {
	if err := t.writeLine(cmd); err != nil {
		return "", err
	}
	time.Sleep(brocadeInterCommand)
	out, err := t.readUntilPrompt(ctx)
	if err != nil {
		return out, err
	}
	return stripCommandEcho(out, cmd), nil
}

// SendBatch joins commands with newlines and sends them as one payload,
// reading to the final prompt; callers split the consolidated output back
// into per-command results (see device/brocade.go splitBatchOutput).
func (t *TelnetTransport) SendBatch(ctx context.Context, cmds []string) (string, error) {
	payload := strings.Join(cmds, "\r\n")
	if err := t.writeRaw(payload + "\r\n"); err != nil {
		return "", err
	}
	time.Sleep(brocadeInterCommand)
	return t.readUntilPrompt(ctx)
}

func (t *TelnetTransport) writeLine(s string) error {
	return t.writeRaw(s + "\r\n")
}

func (t *TelnetTransport) writeRaw(s string) error {
	_, err := t.conn.Write([]byte(s))
	if err != nil {
		return fmt.Errorf("telnet write: %w", err)
	}
	return nil
}

// readUntilPrompt reads chunks and scans the accumulated buffer for the
// prompt regex at end-of-line, transparently paging through "--More--".
func (t *TelnetTransport) readUntilPrompt(ctx context.Context) (string, error) {
	var buf strings.Builder
	for {
		select {
		case <-ctx.Done():
			return buf.String(), ctx.Err()
		default:
		}

		t.conn.SetReadDeadline(time.Now().Add(t.cfg.Timeout))
		line, err := t.reader.ReadString('\n')
		buf.WriteString(line)

		if strings.Contains(line, morePrompt) {
			if _, werr := t.conn.Write([]byte(" ")); werr != nil {
				return buf.String(), fmt.Errorf("telnet page continue: %w", werr)
			}
			continue
		}
		if t.prompt.MatchString(strings.TrimRight(buf.String(), "\r\n")) {
			return buf.String(), nil
		}
		if err != nil {
			return buf.String(), fmt.Errorf("telnet read: %w", err)
		}
	}
}

func stripCommandEcho(output, cmd string) string {
	lines := strings.Split(output, "\n")
	if len(lines) > 0 && strings.Contains(lines[0], cmd) {
		lines = lines[1:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func isTimeoutErr(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}
