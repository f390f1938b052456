package dahuaapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/icholy/digest"
	"github.com/pkg/errors"

	"github.com/jake-scott/dahua-bridge/internal/pkg/logging"
)

var _ DeviceAPI = (*Live)(nil)

// Live talks to a real device over its digest-authenticated CGI API
type Live struct {
	username          string
	password          string
	address           string
	port              int
	rtspPort          int
	base              string
	timeout           time.Duration
	streamIdleTimeout time.Duration
	client            *http.Client
}

func NewLiveClient(address string, port int, rtspPort int, username string, password string) *Live {
	address = strings.TrimSuffix(address, "/")

	scheme := "http"
	if port == 443 {
		scheme = "https"
	}

	return &Live{
		username: username,
		password: password,
		address:  address,
		port:     port,
		rtspPort: rtspPort,
		base:     fmt.Sprintf("%s://%s:%d", scheme, address, port),
		client: &http.Client{
			Transport: &digest.Transport{
				Username: username,
				Password: password,
			},
		},
	}
}

func (c *Live) WithTimeout(d time.Duration) DeviceAPI {
	nc := *c
	nc.timeout = d
	return &nc
}

// WithStreamIdleTimeout drops the event stream if nothing, not even a
// heartbeat, arrives for d.  Zero disables the check.
func (c *Live) WithStreamIdleTimeout(d time.Duration) *Live {
	nc := *c
	nc.streamIdleTimeout = d
	return &nc
}

// WithHTTPClient replaces the underlying HTTP client, including its
// authentication transport
func (c *Live) WithHTTPClient(client *http.Client) *Live {
	nc := *c
	nc.client = client
	return &nc
}

// WithBaseURL points the client at a different origin, eg. a test server
func (c *Live) WithBaseURL(base string) *Live {
	nc := *c
	nc.base = strings.TrimSuffix(base, "/")
	return &nc
}

func (c *Live) Address() string {
	return c.address
}

func (c *Live) BaseURL() string {
	return c.base
}

func (c *Live) MakeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}

	var cancel context.CancelFunc = func() {}
	if c.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
	}

	return ctx, cancel
}

// RTSPStreamURL builds the realmonitor URL for a channel (1-based) and
// subtype (0 main, 1+ sub streams)
func (c *Live) RTSPStreamURL(channel int, subtype int) string {
	return fmt.Sprintf("rtsp://%s:%s@%s:%d/cam/realmonitor?channel=%d&subtype=%d",
		c.username, c.password, c.address, c.rtspPort, channel, subtype)
}

func (c *Live) do(ctx context.Context, method string, path string, body []byte, contentType string) ([]byte, error) {
	url := c.base + path

	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, rdr)
	if err != nil {
		return nil, errors.Wrap(err, "building request")
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	logging.Logger(ctx).Debugf("%s %s", method, url)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, newTransportError(url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// drain so the connection can be reused
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{URL: url, Code: resp.StatusCode, Status: resp.Status}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newTransportError(url, err)
	}

	return data, nil
}

// Get issues a GET and parses the key=value response
func (c *Live) Get(ctx context.Context, path string) (map[string]string, error) {
	ctx, cancel := c.MakeContext(ctx)
	defer cancel()

	data, err := c.do(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return nil, err
	}

	return ParseResponse(string(data)), nil
}

// GetVerifyOK is Get, but fails unless the device answered OK
func (c *Live) GetVerifyOK(ctx context.Context, path string) (map[string]string, error) {
	ctx, cancel := c.MakeContext(ctx)
	defer cancel()

	data, err := c.do(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return nil, err
	}

	result := ParseResponse(string(data))
	if !isOK(result) {
		return nil, &CommandFailedError{URL: c.base + path, Body: string(data)}
	}

	return result, nil
}

// GetBytes issues a GET and returns the raw body
func (c *Live) GetBytes(ctx context.Context, path string) ([]byte, error) {
	ctx, cancel := c.MakeContext(ctx)
	defer cancel()

	return c.do(ctx, http.MethodGet, path, nil, "")
}

// command runs a mutating GET and reports failure with context
func (c *Live) command(ctx context.Context, path string, what string) error {
	if _, err := c.GetVerifyOK(ctx, path); err != nil {
		return errors.Wrap(err, what)
	}
	return nil
}
