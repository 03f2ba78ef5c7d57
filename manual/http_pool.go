package manual

import (
	"net/http"
	"sync"
	"time"
)

// timeoutClients hands out clients that differ only in timeout. All of them
// share one transport, so call templates with different timeout_ms values
// still reuse connections to the same host.
type timeoutClients struct {
	transport *http.Transport

	mu        sync.Mutex
	byTimeout map[time.Duration]*http.Client
}

func newTimeoutClients() *timeoutClients {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = 16
	return &timeoutClients{
		transport: transport,
		byTimeout: make(map[time.Duration]*http.Client),
	}
}

var sharedHTTPClients = newTimeoutClients()

func (c *timeoutClients) forTimeout(timeout time.Duration) *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	client, ok := c.byTimeout[timeout]
	if !ok {
		client = &http.Client{Timeout: timeout, Transport: c.transport}
		c.byTimeout[timeout] = client
	}
	return client
}

// closeIdle drops idle pooled connections.
func (c *timeoutClients) closeIdle() {
	c.transport.CloseIdleConnections()
}
