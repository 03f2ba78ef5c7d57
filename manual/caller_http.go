package manual

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"mime"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultBodyField  = "body"
	maxResponseBytes  = 10 << 20
	requestIDHeader   = "X-Request-ID"
	contentTypeJSON   = "application/json"
	contentTypeForm   = "application/x-www-form-urlencoded"
	contentTypeNDJSON = "application/x-ndjson"
	contentTypeSSE    = "text/event-stream"

	defaultHTTPTimeout = 60 * time.Second
)

var pathParamPattern = regexp.MustCompile(`\{([^{}]+)\}`)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 256 {
		body = body[:256] + "..."
	}
	if body == "" {
		return fmt.Sprintf("manual: http status %d", e.StatusCode)
	}
	return fmt.Sprintf("manual: http status %d: %s", e.StatusCode, body)
}

// HTTPCaller executes http, sse and streamable_http call templates.
//
// Template fields: url (required, may hold {param} placeholders), http_method
// (default GET), content_type (default application/json), headers,
// header_fields, body_field (default "body"), auth, timeout_ms and retry.
// A nil Client uses a shared pooled client per timeout.
type HTTPCaller struct {
	Client *http.Client
}

// Call implements Caller. A "retry" template field retries throttled and
// unavailable responses.
func (h *HTTPCaller) Call(ctx context.Context, call Call) (any, error) {
	client := h.Client
	if client == nil {
		timeout := defaultHTTPTimeout
		if ms := intField(call.Template.Fields["timeout_ms"]); ms > 0 {
			timeout = time.Duration(ms) * time.Millisecond
		}
		client = sharedHTTPClients.forTimeout(timeout)
	}
	policy := retryPolicyFrom(call.Template.Fields["retry"])
	return withRetry(ctx, policy, func(int) (any, error) {
		return h.do(ctx, client, call)
	})
}

func (h *HTTPCaller) do(ctx context.Context, client *http.Client, call Call) (any, error) {
	req, err := buildRequest(ctx, call)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("manual: %s %s: %w", req.Method, req.URL.Redacted(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return decodeResponse(resp)
}

func buildRequest(ctx context.Context, call Call) (*http.Request, error) {
	tmpl := call.Template
	rawURL := tmpl.String("url")
	if rawURL == "" {
		return nil, fmt.Errorf("manual: tool %q: call template has no url", call.Tool)
	}
	method := strings.ToUpper(tmpl.String("http_method"))
	if method == "" {
		method = http.MethodGet
	}
	contentType := tmpl.String("content_type")
	if contentType == "" {
		contentType = contentTypeJSON
	}
	bodyField := tmpl.String("body_field")
	if bodyField == "" {
		bodyField = defaultBodyField
	}

	remaining := maps.Clone(call.Args)
	if remaining == nil {
		remaining = map[string]any{}
	}

	var missing []string
	rawURL = pathParamPattern.ReplaceAllStringFunc(rawURL, func(match string) string {
		key := match[1 : len(match)-1]
		value, ok := remaining[key]
		if !ok {
			missing = append(missing, key)
			return match
		}
		delete(remaining, key)
		return url.PathEscape(fmt.Sprint(value))
	})
	if len(missing) > 0 {
		return nil, fmt.Errorf("manual: tool %q: missing path parameters %v", call.Tool, missing)
	}

	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("manual: tool %q: parse url: %w", call.Tool, err)
	}

	headers := http.Header{}
	for key, value := range stringMap(tmpl.Fields["headers"]) {
		headers.Set(key, os.ExpandEnv(value))
	}
	for _, field := range stringList(tmpl.Fields["header_fields"]) {
		if value, ok := remaining[field]; ok {
			headers.Set(field, fmt.Sprint(value))
			delete(remaining, field)
		}
	}

	var body io.Reader
	query := target.Query()
	switch method {
	case http.MethodGet, http.MethodDelete, http.MethodHead:
		addQuery(query, remaining)
	default:
		payload, ok := remaining[bodyField]
		if ok {
			delete(remaining, bodyField)
			addQuery(query, remaining)
		} else {
			payload = remaining
		}
		encoded, err := encodeBody(payload, contentType)
		if err != nil {
			return nil, fmt.Errorf("manual: tool %q: %w", call.Tool, err)
		}
		body = bytes.NewReader(encoded)
		headers.Set("Content-Type", contentType)
	}

	if err := applyAuth(tmpl.Fields["auth"], headers, query); err != nil {
		return nil, fmt.Errorf("manual: tool %q: %w", call.Tool, err)
	}
	target.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("manual: tool %q: build request: %w", call.Tool, err)
	}
	req.Header = headers
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json, text/event-stream, text/plain;q=0.9, */*;q=0.5")
	}
	req.Header.Set(requestIDHeader, uuid.NewString())
	return req, nil
}

func addQuery(query url.Values, args map[string]any) {
	keys := slices.Sorted(maps.Keys(args))
	for _, key := range keys {
		switch value := args[key].(type) {
		case nil:
		case []any:
			for _, item := range value {
				query.Add(key, fmt.Sprint(item))
			}
		case map[string]any:
			encoded, _ := json.Marshal(value)
			query.Set(key, string(encoded))
		default:
			query.Set(key, fmt.Sprint(value))
		}
	}
}

func encodeBody(payload any, contentType string) ([]byte, error) {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	switch {
	case mediaType == contentTypeForm:
		values := url.Values{}
		if obj, ok := payload.(map[string]any); ok {
			addQuery(values, obj)
		}
		return []byte(values.Encode()), nil
	case strings.HasPrefix(mediaType, "text/"):
		if s, ok := payload.(string); ok {
			return []byte(s), nil
		}
		return []byte(fmt.Sprint(payload)), nil
	default:
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		return encoded, nil
	}
}

// applyAuth supports api_key (header, query or cookie) and basic auth.
// Secret values may reference environment variables as ${NAME}.
func applyAuth(raw any, headers http.Header, query url.Values) error {
	auth, ok := raw.(map[string]any)
	if !ok || len(auth) == 0 {
		return nil
	}
	authType, _ := auth["auth_type"].(string)
	switch authType {
	case "api_key":
		key := os.ExpandEnv(fmt.Sprint(auth["api_key"]))
		name, _ := auth["var_name"].(string)
		if name == "" {
			name = "X-Api-Key"
		}
		location, _ := auth["location"].(string)
		switch location {
		case "", "header":
			headers.Set(name, key)
		case "query":
			query.Set(name, key)
		case "cookie":
			headers.Add("Cookie", (&http.Cookie{Name: name, Value: key}).String())
		default:
			return fmt.Errorf("unsupported api_key location %q", location)
		}
	case "basic":
		username := os.ExpandEnv(fmt.Sprint(auth["username"]))
		password := os.ExpandEnv(fmt.Sprint(auth["password"]))
		req := &http.Request{Header: headers}
		req.SetBasicAuth(username, password)
	default:
		return fmt.Errorf("unsupported auth_type %q", authType)
	}
	return nil
}

func decodeResponse(resp *http.Response) (any, error) {
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	body := io.LimitReader(resp.Body, maxResponseBytes)

	switch mediaType {
	case contentTypeSSE:
		return decodeEvents(body)
	case contentTypeNDJSON:
		return decodeLines(body)
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("manual: read response: %w", err)
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if mediaType == contentTypeJSON || strings.HasSuffix(mediaType, "+json") || json.Valid(trimmed) {
		return json.RawMessage(trimmed), nil
	}
	return string(data), nil
}

// decodeEvents collects the data of each server-sent event.
func decodeEvents(r io.Reader) ([]any, error) {
	var (
		out  []any
		data []string
	)
	flush := func() {
		if len(data) == 0 {
			return
		}
		out = append(out, jsonOrString(strings.Join(data, "\n")))
		data = data[:0]
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxResponseBytes)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("manual: read event stream: %w", err)
	}
	flush()
	return out, nil
}

func decodeLines(r io.Reader) ([]any, error) {
	var out []any
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxResponseBytes)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		out = append(out, jsonOrString(line))
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("manual: read stream: %w", err)
	}
	return out, nil
}

func jsonOrString(text string) any {
	trimmed := strings.TrimSpace(text)
	if json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed)
	}
	return text
}

func stringMap(raw any) map[string]string {
	out := map[string]string{}
	switch typed := raw.(type) {
	case map[string]any:
		for key, value := range typed {
			out[key] = fmt.Sprint(value)
		}
	case map[string]string:
		maps.Copy(out, typed)
	}
	return out
}

func stringList(raw any) []string {
	switch typed := raw.(type) {
	case []string:
		return typed
	case []any:
		out := make([]string, 0, len(typed))
		for _, item := range typed {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
