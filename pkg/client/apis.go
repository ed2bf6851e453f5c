package client

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/swervelabs/swerve/pkg/command"
	"github.com/swervelabs/swerve/pkg/config"
	"github.com/swervelabs/swerve/pkg/events"
	"github.com/swervelabs/swerve/pkg/startup"
	"github.com/swervelabs/swerve/pkg/vision"
)

func (c *Client) GetConfig() (*config.RawFileConfig, error) {
	ret, err := c.Get("/config")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get config")
	}

	var conf config.RawFileConfig
	if err := json.Unmarshal([]byte(ret), &conf); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal config")
	}

	return &conf, nil
}

func (c *Client) GetVersion() (string, error) {
	ret, err := c.Get("/version")
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to get version")
	}
	return unquote(ret), nil
}

func (c *Client) GetStartup() (*startup.Status, error) {
	ret, err := c.Get("/startup")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get startup status")
	}

	var st startup.Status
	if err := json.Unmarshal([]byte(ret), &st); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal startup status")
	}
	return &st, nil
}

// Recheck asks the daemon to run the startup check again and returns the
// id of the new run.
func (c *Client) Recheck() (string, error) {
	ret, err := c.Post("/startup/recheck", "")
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to request startup recheck")
	}
	return unquote(ret), nil
}

// SkipRecheck skips the next scheduled recheck and returns when the one
// after it is due.
func (c *Client) SkipRecheck() (time.Time, error) {
	ret, err := c.Post("/startup/recheck/skip", "")
	if err != nil {
		return time.Time{}, pkgerrors.Wrapf(err, "failed to skip scheduled recheck")
	}

	var next time.Time
	if err := json.Unmarshal([]byte(ret), &next); err != nil {
		return time.Time{}, pkgerrors.Wrapf(err, "failed to unmarshal next recheck time")
	}
	return next, nil
}

func (c *Client) GetMode() (command.Mode, error) {
	ret, err := c.Get("/mode")
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to get robot mode")
	}
	return command.Mode(unquote(ret)), nil
}

func (c *Client) SetMode(m command.Mode) (string, error) {
	payload, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	ret, err := c.Put("/mode", string(payload))
	if err != nil {
		return "", err
	}
	return unquote(ret), nil
}

func (c *Client) GetStdDevs(distance float64) (*vision.Estimate, error) {
	q := url.Values{}
	q.Set("distance", strconv.FormatFloat(distance, 'f', -1, 64))
	ret, err := c.Get("/vision/stddevs?" + q.Encode())
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get vision std devs")
	}

	var e vision.Estimate
	if err := json.Unmarshal([]byte(ret), &e); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal vision std devs")
	}
	return &e, nil
}

func (c *Client) GetModel() (*vision.ModelInfo, error) {
	ret, err := c.Get("/vision/model")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get vision model")
	}

	var info vision.ModelInfo
	if err := json.Unmarshal([]byte(ret), &info); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal vision model")
	}
	return &info, nil
}

// Events streams daemon events to fn until ctx is done, the daemon closes
// the stream, or fn returns false. With names only those events are sent.
func (c *Client) Events(ctx context.Context, fn func(events.Event) bool, names ...string) error {
	path := "/events"
	if len(names) > 0 {
		path += "?" + url.Values{"name": names}.Encode()
	}
	resp, err := c.do(ctx, http.MethodGet, path, "")
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to subscribe to events")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return pkgerrors.Errorf("failed to subscribe to events: got %d", resp.StatusCode)
	}

	var ev events.Event
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if ev.Name == "" && len(ev.Data) == 0 {
				continue
			}
			if !fn(ev) {
				return nil
			}
			ev = events.Event{}
		case strings.HasPrefix(line, "event:"):
			ev.Name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			ev.Data = append(ev.Data, strings.TrimSpace(strings.TrimPrefix(line, "data:"))...)
		}
	}
	if err := sc.Err(); err != nil && ctx.Err() == nil {
		return pkgerrors.Wrapf(err, "failed to read events")
	}
	return nil
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if u, err := strconv.Unquote(s); err == nil {
		return u
	}
	return s
}
