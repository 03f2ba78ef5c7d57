package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"sync"
)

const sessionHeader = "Mcp-Session-Id"

// HTTPTransportConfig configures a streamable HTTP transport.
type HTTPTransportConfig struct {
	Endpoint string
	Headers  map[string]string
	Client   *http.Client
}

// HTTPTransport posts each message to the endpoint and queues the JSON or
// event-stream response messages for Receive.
type HTTPTransport struct {
	cfg    HTTPTransportConfig
	recvCh chan Message

	mu        sync.Mutex
	sessionID string
	closed    bool
}

// NewHTTPTransport creates an HTTP transport.
func NewHTTPTransport(cfg HTTPTransportConfig) (*HTTPTransport, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("mcp: http endpoint is required")
	}
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}
	return &HTTPTransport{cfg: cfg, recvCh: make(chan Message, 64)}, nil
}

// Send posts one message.
func (t *HTTPTransport) Send(ctx context.Context, message Message) error {
	t.mu.Lock()
	closed, sessionID := t.closed, t.sessionID
	t.mu.Unlock()
	if closed {
		return errors.New("mcp: http transport is closed")
	}

	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("mcp: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("mcp: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	if sessionID != "" {
		req.Header.Set(sessionHeader, sessionID)
	}
	for key, value := range t.cfg.Headers {
		req.Header.Set(key, value)
	}

	resp, err := t.cfg.Client.Do(req)
	if err != nil {
		return fmt.Errorf("mcp: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("mcp: endpoint returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if id := resp.Header.Get(sessionHeader); id != "" {
		t.mu.Lock()
		t.sessionID = id
		t.mu.Unlock()
	}

	messages, err := decodeHTTPResponse(resp)
	if err != nil {
		return err
	}
	for _, msg := range messages {
		select {
		case t.recvCh <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func decodeHTTPResponse(resp *http.Response) ([]Message, error) {
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType == "text/event-stream" {
		return decodeEventStream(resp.Body)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("mcp: read response: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("mcp: decode response: %w", err)
	}
	return []Message{msg}, nil
}

// decodeEventStream collects the JSON-RPC messages carried in data fields.
func decodeEventStream(r io.Reader) ([]Message, error) {
	var (
		out  []Message
		data strings.Builder
	)
	flush := func() error {
		if data.Len() == 0 {
			return nil
		}
		var msg Message
		if err := json.Unmarshal([]byte(data.String()), &msg); err != nil {
			return fmt.Errorf("mcp: decode event: %w", err)
		}
		data.Reset()
		out = append(out, msg)
		return nil
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if err := flush(); err != nil {
				return nil, err
			}
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("mcp: read event stream: %w", err)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return out, nil
}

// Receive returns the next queued message.
func (t *HTTPTransport) Receive(ctx context.Context) (Message, error) {
	select {
	case <-ctx.Done():
		return Message{}, ctx.Err()
	case message := <-t.recvCh:
		return message, nil
	default:
	}
	// Every response arrives during Send, so an empty queue means none is coming.
	return Message{}, errors.New("mcp: no response received")
}

// Close marks the transport closed.
func (t *HTTPTransport) Close(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}
