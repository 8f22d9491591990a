// Package supabase implements the storage adapter contract against a
// hosted Supabase project through its PostgREST endpoint. Every
// operation is one stateless HTTP request; there are no sessions to
// pool and no native transactions, so the capability-gated operations
// of the contract report not-supported instead of pretending.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"codeweave/backend/internal/config"
	"codeweave/backend/internal/logging"
	"codeweave/backend/internal/storage"
)

const defaultTimeoutSeconds = 30

// Client holds the HTTP client and credentials shared by every
// supabase adapter the factory constructs. Connect and Disconnect are
// idempotent; Connect verifies reachability with a probe request.
type Client struct {
	baseURL string
	apiKey  string
	token   string
	logger  *logging.Logger
	http    *http.Client

	mu        sync.Mutex
	connected bool
}

// NewClient creates a client for the given configuration. No request
// is made until Connect.
func NewClient(cfg config.SupabaseConfig, logger *logging.Logger) *Client {
	timeout := cfg.TimeoutSeconds
	if timeout <= 0 {
		timeout = defaultTimeoutSeconds
	}
	// The service role key bypasses row level security for server-side
	// use; requests fall back to the anon key when it is absent.
	token := cfg.ServiceRoleKey
	if token == "" {
		token = cfg.AnonKey
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/") + "/rest/v1",
		apiKey:  cfg.AnonKey,
		token:   token,
		logger:  logger,
		http:    &http.Client{Timeout: time.Duration(timeout) * time.Second},
	}
}

// Connect probes the REST endpoint with a minimal request so a bad URL
// or key fails at startup rather than on the first real operation.
// Calling Connect on a connected client is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	query := url.Values{}
	query.Set("select", "id")
	query.Set("limit", "1")
	resp, err := c.roundTrip(ctx, http.MethodGet, "user_profiles", query, nil, "")
	if err != nil {
		return storage.NewDatabaseError("supabase.connect", "failed to reach rest endpoint", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return storage.NewDatabaseError("supabase.connect",
			fmt.Sprintf("rest endpoint rejected the probe with status %d", resp.StatusCode), nil)
	}

	c.connected = true
	c.logger.Info("supabase backend connected")
	return nil
}

// Disconnect drops idle connections. Calling Disconnect on a
// disconnected client is a no-op.
func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil
	}
	c.http.CloseIdleConnections()
	c.connected = false
	c.logger.Info("supabase backend disconnected")
	return nil
}

// do performs one REST call for an adapter operation, enforcing that
// Connect ran first.
func (c *Client) do(ctx context.Context, op, method, table string, query url.Values, body any, prefer string) (*http.Response, error) {
	c.mu.Lock()
	connected := c.connected
	c.mu.Unlock()
	if !connected {
		return nil, storage.NewDatabaseError(op, "backend is not connected", nil)
	}

	resp, err := c.roundTrip(ctx, method, table, query, body, prefer)
	if err != nil {
		return nil, storage.NewDatabaseError(op, "request failed", err)
	}
	return resp, nil
}

func (c *Client) roundTrip(ctx context.Context, method, table string, query url.Values, body any, prefer string) (*http.Response, error) {
	endpoint := c.baseURL + "/" + table
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	return c.http.Do(req)
}
