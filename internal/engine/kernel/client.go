package kernel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client talks to the Jupyter Server kernels REST API and opens kernel
// channel websockets.
type Client struct {
	baseURL    *url.URL
	token      string
	httpClient *http.Client
	dialer     *websocket.Dialer
}

// Kernel is the kernel model returned by the server.
type Kernel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// NewClient creates a client for the server at serverURL.
func NewClient(serverURL, token string) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(serverURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server url %q: %w", serverURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid server url %q: scheme must be http or https", serverURL)
	}
	return &Client{
		baseURL:    u,
		token:      token,
		httpClient: &http.Client{},
		dialer:     websocket.DefaultDialer,
	}, nil
}

func (c *Client) endpoint(parts ...string) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/api/kernels"
	for _, p := range parts {
		u.Path += "/" + url.PathEscape(p)
	}
	return u.String()
}

func (c *Client) authHeader() http.Header {
	h := http.Header{}
	if c.token != "" {
		h.Set("Authorization", "token "+c.token)
	}
	return h
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, want int, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create kernel request: %w", err)
	}
	req.Header = c.authHeader()
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("kernel request %s %s failed: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("kernel request %s %s failed with status %s: %s", method, endpoint, resp.Status, strings.TrimSpace(string(msg)))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode kernel response: %w", err)
		}
	}
	return nil
}

// StartKernel starts a kernel of the given kernelspec name. path, when not
// empty, is the kernel's working directory relative to the server root.
func (c *Client) StartKernel(ctx context.Context, name, path string) (*Kernel, error) {
	body := map[string]string{"name": name}
	if path != "" {
		body["path"] = path
	}
	var k Kernel
	if err := c.do(ctx, http.MethodPost, c.endpoint(), body, http.StatusCreated, &k); err != nil {
		return nil, err
	}
	if k.ID == "" {
		return nil, fmt.Errorf("server returned a kernel without an id")
	}
	return &k, nil
}

// InterruptKernel interrupts the running cell of kernel id.
func (c *Client) InterruptKernel(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, c.endpoint(id, "interrupt"), nil, http.StatusNoContent, nil)
}

// ShutdownKernel stops kernel id.
func (c *Client) ShutdownKernel(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, c.endpoint(id), nil, http.StatusNoContent, nil)
}

// Connect opens the multiplexed channels websocket of kernel id.
func (c *Client) Connect(ctx context.Context, id string) (*Session, error) {
	u, err := url.Parse(c.endpoint(id, "channels"))
	if err != nil {
		return nil, err
	}
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	sessionID := uuid.NewString()
	u.RawQuery = url.Values{"session_id": {sessionID}}.Encode()

	conn, resp, err := c.dialer.DialContext(ctx, u.String(), c.authHeader())
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to connect to kernel channels (status %s): %w", resp.Status, err)
		}
		return nil, fmt.Errorf("failed to connect to kernel channels: %w", err)
	}
	return newSession(conn, sessionID), nil
}
