package client

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"syscall"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Client talks to the swerve daemon over its unix socket.
type Client struct {
	socketPath string
	httpClient *http.Client
}

func NewClient(socketPath string) *Client {
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			conn, err := d.DialContext(ctx, "unix", socketPath)
			if err != nil {
				if errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ECONNREFUSED) {
					return nil, ErrDaemonNotRunning
				}
				if errors.Is(err, os.ErrPermission) {
					return nil, ErrPermissionDenied
				}
				logrus.Errorf("failed to connect to unix socket: %v", err)
				return nil, err
			}
			return conn, nil
		},
	}

	return &Client{
		socketPath: socketPath,
		httpClient: &http.Client{Transport: transport},
	}
}

func (c *Client) do(ctx context.Context, method, path, data string) (*http.Response, error) {
	logrus.WithFields(logrus.Fields{
		"method": method,
		"path":   path,
		"data":   data,
		"unix":   c.socketPath,
	}).Debug("sending request")

	var body io.Reader
	if data != "" {
		body = strings.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, "http://unix"+path, body)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to create request")
	}
	if data != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to send request")
	}
	return resp, nil
}

// Send sends a request and returns the response body.
func (c *Client) Send(method string, path string, data string) (string, error) {
	resp, err := c.do(context.Background(), method, path, data)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logrus.Errorf("failed to close response body: %v", err)
		}
	}()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to read response body")
	}
	body := string(b)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", pkgerrors.Wrapf(ErrNotFound, "%s %s", method, path)
	case resp.StatusCode == http.StatusConflict:
		return "", pkgerrors.Wrapf(ErrConflict, "%s", unquote(body))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return "", pkgerrors.Errorf("got %d: %s", resp.StatusCode, body)
	}

	return body, nil
}

func (c *Client) Get(path string) (string, error) {
	return c.Send(http.MethodGet, path, "")
}

func (c *Client) Put(path string, data string) (string, error) {
	return c.Send(http.MethodPut, path, data)
}

func (c *Client) Post(path string, data string) (string, error) {
	return c.Send(http.MethodPost, path, data)
}
