package transport

import (
	"context"
	"fmt"
	"regexp"
	"time"

	expect "github.com/google/goexpect"
	"golang.org/x/crypto/ssh"
)

// ZyxelPromptPattern matches the Zyxel managed-switch CLI prompt in both
// unprivileged and config-mode forms.
var ZyxelPromptPattern = regexp.MustCompile(`(?m)[\w.-]+(\(config[\w-]*\))?#\s*$`)

// legacyHostKeyAlgorithms restores the rsa-ssh host key algorithm ordering
// that golang.org/x/crypto/ssh's default client config de-prioritizes; the
// Zyxel CLI's SSH server offers only legacy RSA signature schemes during
// key exchange and rejects the modern rsa-sha2-256/512 variants outright.
var legacyHostKeyAlgorithms = []string{
	ssh.KeyAlgoRSA,
	ssh.KeyAlgoDSA,
	ssh.KeyAlgoECDSA256,
	ssh.KeyAlgoECDSA384,
	ssh.KeyAlgoECDSA521,
	ssh.KeyAlgoED25519,
}

// SSHShellConfig configures an SSHShellTransport.
type SSHShellConfig struct {
	Host           string
	Port           int
	Username       string
	Password       string
	EnablePassword string
	Timeout        time.Duration
	PromptPattern  *regexp.Regexp
}

// SSHShellTransport is the interactive SSH-shell transport used by the
// Zyxel CLI dialect: a single long-lived PTY session scanned for a prompt
// regex via goexpect, generalized from the expect-style session wrapper
// used for the prompt-paged vendor CLI elsewhere in this module, with the
// host key algorithm list pruned for the vendor's legacy SSH server.
type SSHShellTransport struct {
	cfg    SSHShellConfig
	client *ssh.Client
	exp    *expect.GExpect
	done   <-chan error
	prompt *regexp.Regexp
}

// NewSSHShellTransport constructs a transport without connecting.
func NewSSHShellTransport(cfg SSHShellConfig) *SSHShellTransport {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.PromptPattern == nil {
		cfg.PromptPattern = ZyxelPromptPattern
	}
	return &SSHShellTransport{cfg: cfg, prompt: cfg.PromptPattern}
}

// Connect dials the SSH server with the legacy algorithm set, opens a PTY
// shell session, and waits for the first prompt.
func (t *SSHShellTransport) Connect(ctx context.Context) error {
	clientCfg := &ssh.ClientConfig{
		User:              t.cfg.Username,
		Auth:              []ssh.AuthMethod{ssh.Password(t.cfg.Password)},
		HostKeyCallback:   ssh.InsecureIgnoreHostKey(),
		HostKeyAlgorithms: legacyHostKeyAlgorithms,
		Timeout:           t.cfg.Timeout,
	}

	addr := fmt.Sprintf("%s:%d", t.cfg.Host, t.cfg.Port)
	client, err := ssh.Dial("tcp", addr, clientCfg)
	if err != nil {
		return fmt.Errorf("ssh dial %s: %w", addr, err)
	}
	t.client = client

	exp, _, err := expect.SpawnSSH(client, t.cfg.Timeout)
	if err != nil {
		client.Close()
		return fmt.Errorf("ssh shell spawn: %w", err)
	}
	t.exp = exp

	if _, _, err := exp.Expect(t.prompt, t.cfg.Timeout); err != nil {
		t.Close()
		return fmt.Errorf("ssh shell initial prompt: %w", err)
	}
	return nil
}

// Close terminates the shell session and the underlying SSH connection.
func (t *SSHShellTransport) Close() error {
	if t.exp != nil {
		t.exp.Close()
		t.exp = nil
	}
	if t.client != nil {
		err := t.client.Close()
		t.client = nil
		return err
	}
	return nil
}

// EnterPrivileged issues "enable" and, if a password prompt appears,
// answers it with the configured enable password.
func (t *SSHShellTransport) EnterPrivileged(ctx context.Context) error {
	if err := t.exp.Send("enable\n"); err != nil {
		return fmt.Errorf("ssh shell enable: %w", err)
	}
	passwordOrPrompt := regexp.MustCompile(`(?i)password:|#\s*$`)
	out, _, err := t.exp.Expect(passwordOrPrompt, t.cfg.Timeout)
	if err != nil {
		return fmt.Errorf("ssh shell enable prompt: %w", err)
	}
	if regexp.MustCompile(`(?i)password:`).MatchString(out) {
		if err := t.exp.Send(t.cfg.EnablePassword + "\n"); err != nil {
			return fmt.Errorf("ssh shell enable password: %w", err)
		}
		if _, _, err := t.exp.Expect(t.prompt, t.cfg.Timeout); err != nil {
			return fmt.Errorf("ssh shell enable confirm: %w", err)
		}
	}
	return nil
}

// SendCommand sends one command and reads to the next prompt.
func (t *SSHShellTransport) SendCommand(ctx context.Context, cmd string) (string, error) {
	if err := t.exp.Send(cmd + "\n"); err != nil {
		return "", fmt.Errorf("ssh shell send %q: %w", cmd, err)
	}
	out, _, err := t.exp.Expect(t.prompt, t.cfg.Timeout)
	if err != nil {
		return out, fmt.Errorf("ssh shell read %q: %w", cmd, err)
	}
	return stripCommandEcho(out, cmd), nil
}

// SendBatch sends a sequence of commands and returns the consolidated
// output up to the final prompt.
func (t *SSHShellTransport) SendBatch(ctx context.Context, cmds []string) (string, error) {
	var all string
	for _, cmd := range cmds {
		out, err := t.SendCommand(ctx, cmd)
		all += out + "\n"
		if err != nil {
			return all, err
		}
	}
	return all, nil
}
