package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"slices"
	"strings"
	"sync"
)

// StdioTransportConfig configures a subprocess transport.
type StdioTransportConfig struct {
	Command string
	Args    []string
	Env     map[string]string
	Dir     string
}

// StdioTransport speaks newline-delimited JSON-RPC over a subprocess's
// stdin and stdout.
type StdioTransport struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	recvCh chan Message
	done   chan struct{}
	stop   chan struct{}

	mu      sync.Mutex
	closed  bool
	readErr error
}

// NewStdioTransport starts the subprocess. The process outlives ctx; stop it
// with Close.
func NewStdioTransport(cfg StdioTransportConfig) (*StdioTransport, error) {
	if strings.TrimSpace(cfg.Command) == "" {
		return nil, errors.New("mcp: stdio command is required")
	}

	// #nosec G204 -- command and args come from operator configuration.
	cmd := exec.Command(cfg.Command, slices.Clone(cfg.Args)...)
	cmd.Dir = cfg.Dir
	cmd.Stderr = io.Discard
	if len(cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), flattenEnv(cfg.Env)...)
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("mcp: stdio open stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("mcp: stdio open stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("mcp: stdio start %q: %w", cfg.Command, err)
	}

	t := &StdioTransport{
		cmd:    cmd,
		stdin:  stdin,
		recvCh: make(chan Message, 64),
		done:   make(chan struct{}),
		stop:   make(chan struct{}),
	}
	go t.readLoop(stdout)
	return t, nil
}

func (t *StdioTransport) readLoop(stdout io.Reader) {
	defer close(t.done)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var msg Message
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			// Servers may log to stdout; skip lines that are not JSON-RPC.
			continue
		}
		select {
		case t.recvCh <- msg:
		case <-t.stop:
			t.mu.Lock()
			t.readErr = errors.New("mcp: stdio transport is closed")
			t.mu.Unlock()
			return
		}
	}

	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	t.mu.Lock()
	t.readErr = fmt.Errorf("mcp: stdio stream ended: %w", err)
	t.mu.Unlock()
}

// Send writes one message line.
func (t *StdioTransport) Send(_ context.Context, message Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errors.New("mcp: stdio transport is closed")
	}
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("mcp: encode request: %w", err)
	}
	if _, err := t.stdin.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("mcp: write request: %w", err)
	}
	return nil
}

// Receive waits for the next message from the subprocess.
func (t *StdioTransport) Receive(ctx context.Context) (Message, error) {
	select {
	case <-ctx.Done():
		return Message{}, ctx.Err()
	case msg := <-t.recvCh:
		return msg, nil
	case <-t.done:
		select {
		case msg := <-t.recvCh:
			return msg, nil
		default:
		}
		t.mu.Lock()
		defer t.mu.Unlock()
		return Message{}, t.readErr
	}
}

// Close stops the subprocess.
func (t *StdioTransport) Close(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	close(t.stop)
	_ = t.stdin.Close()
	if t.cmd.Process != nil {
		_ = t.cmd.Process.Kill()
	}
	waitErr := make(chan error, 1)
	go func() { waitErr <- t.cmd.Wait() }()
	select {
	case <-waitErr:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func flattenEnv(values map[string]string) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	out := make([]string, 0, len(values))
	for _, key := range keys {
		out = append(out, key+"="+values[key])
	}
	return out
}
