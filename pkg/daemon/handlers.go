package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/swervelabs/swerve/pkg/command"
	"github.com/swervelabs/swerve/pkg/config"
	"github.com/swervelabs/swerve/pkg/events"
	"github.com/swervelabs/swerve/pkg/version"
)

func getConfig(c *gin.Context) {
	fc, err := config.NewRawFileConfigFromConfig(conf)
	if err != nil {
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusOK, fc)
}

func getVersion(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, version.Version)
}

func getStartup(c *gin.Context) {
	st := checks.Status()
	expr, next, _ := scheduler.Status()
	st.RecheckCron = expr
	if !next.IsZero() {
		st.NextRecheck = &next
	}
	c.IndentedJSON(http.StatusOK, st)
}

func postRecheck(c *gin.Context) {
	// The check outlives the request.
	chk, err := checks.Start()
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, ErrCheckRunning):
			status = http.StatusConflict
		case errors.Is(err, ErrShuttingDown):
			status = http.StatusServiceUnavailable
		}
		c.IndentedJSON(status, err.Error())
		_ = c.AbortWithError(status, err)
		return
	}

	logrus.WithField("runId", chk.ID()).Info("startup recheck requested")
	c.IndentedJSON(http.StatusAccepted, chk.ID())
}

func postSkipRecheck(c *gin.Context) {
	next, err := scheduler.Skip()
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrNoSchedule) {
			status = http.StatusConflict
		}
		c.IndentedJSON(status, err.Error())
		_ = c.AbortWithError(status, err)
		return
	}

	logrus.WithField("nextRecheck", next.Format(time.DateTime)).Info("next scheduled recheck skipped")
	c.IndentedJSON(http.StatusOK, next)
}

func getMode(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, gate.Mode())
}

func setMode(c *gin.Context) {
	var m command.Mode
	if err := c.BindJSON(&m); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	if m != command.ModeEnabled && m != command.ModeDisabled {
		err := fmt.Errorf("mode must be %q or %q, got %q", command.ModeEnabled, command.ModeDisabled, m)
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	gate.SetMode(m)
	hub.PublishMode(string(m))

	c.IndentedJSON(http.StatusCreated, fmt.Sprintf("robot %s", m))
}

func getStdDevs(c *gin.Context) {
	raw := c.Query("distance")
	d, err := strconv.ParseFloat(raw, 64)
	if err == nil && (math.IsNaN(d) || math.IsInf(d, 0) || d < 0) {
		err = fmt.Errorf("distance must be a finite non-negative number, got %s", raw)
	}
	if err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	c.IndentedJSON(http.StatusOK, currentModel().StdDevs(d))
}

func getModel(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, currentModel().Info())
}

// streamEvents relays hub events as server-sent events until the client
// goes away. Repeated name query parameters restrict the stream to those
// events. The current robot mode and the last startup result are sent first.
func streamEvents(c *gin.Context) {
	names := c.QueryArray("name")
	ch := hub.Subscribe(names...)
	defer hub.Unsubscribe(ch)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	for _, name := range []string{events.RobotMode, events.StartupResult} {
		if len(names) > 0 && !slices.Contains(names, name) {
			continue
		}
		if ev, ok := hub.Last(name); ok {
			c.SSEvent(ev.Name, json.RawMessage(ev.Data))
		}
	}
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(ev.Name, json.RawMessage(ev.Data))
			return true
		}
	})
}
