package main

import (
	"bytes"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	color.NoColor = true

	cmd := NewCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--config", filepath.Join(t.TempDir(), "swerve.json")))
	err := cmd.Execute()
	return out.String(), err
}

func TestFitCommand(t *testing.T) {
	out, err := run(t, "fit", "--x", "0.5,1,1.5", "--y", "0.014,0.020,0.150", "--degree", "3", "--reduce-degree", "--at", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Degree reduced from 3 to 2")
	assert.Contains(t, out, "f(1) = 0.02")

	_, err = run(t, "fit", "--x", "0.5,1,1.5", "--y", "0.014,0.020,0.150", "--degree", "3")
	assert.Error(t, err)
}

func TestStdDevLocal(t *testing.T) {
	out, err := run(t, "stddev", "1.0", "--local")
	require.NoError(t, err)
	assert.Contains(t, out, "0.0200 m")
	assert.Contains(t, out, "0.1490 rad")
}

func TestCheckCommand(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	go func() {
		for {
			c, err := l.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()

	out, err := run(t, "check", "--target", l.Addr().String(), "--timeout", "2s", "--quiet")
	require.NoError(t, err)
	assert.Contains(t, out, "Succeeded")
}

func TestCheckCommandFails(t *testing.T) {
	// Grab a free port and close it so nothing answers there.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	out, err := run(t, "check", "--target", addr, "--timeout", "2s", "--max-attempts", "1", "--quiet")
	assert.ErrorIs(t, err, errConnectionFailed)
	assert.Contains(t, out, "Failed")
}

// fakeDaemon serves h on a unix socket and returns the socket path.
func fakeDaemon(t *testing.T, h *http.ServeMux) string {
	t.Helper()
	h.HandleFunc("/version", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `"v0.0.0-dev"`)
	})

	dir, err := os.MkdirTemp("", "swerve")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	sock := filepath.Join(dir, "d.sock")

	l, err := net.Listen("unix", sock)
	require.NoError(t, err)
	srv := &http.Server{Handler: h}
	go func() { _ = srv.Serve(l) }()
	t.Cleanup(func() { _ = srv.Close() })
	return sock
}

func TestRecheckWaitFindsRunInHistory(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/startup/recheck", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		fmt.Fprint(w, `"r1"`)
	})
	// A scheduled recheck finished right after ours and is now the latest.
	mux.HandleFunc("/startup", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"id":"r2","state":"Completed","phase":"Done","outcome":"Succeeded",
			"latest":{"id":"r2","outcome":"Succeeded","branch":"success"},
			"history":[
				{"id":"r1","outcome":"TimedOut","connectionFailed":true,"branch":"failure"},
				{"id":"r2","outcome":"Succeeded","branch":"success"}
			]}`)
	})
	sock := fakeDaemon(t, mux)

	out, err := run(t, "recheck", "--wait", "--daemon-socket", sock)
	require.NoError(t, err)
	assert.Contains(t, out, "TimedOut")
	assert.Contains(t, out, "branch: failure")
}

func TestRecheckSkipNext(t *testing.T) {
	scheduled := make(chan bool, 2)
	scheduled <- true
	scheduled <- false
	mux := http.NewServeMux()
	mux.HandleFunc("/startup/recheck/skip", func(w http.ResponseWriter, _ *http.Request) {
		if !<-scheduled {
			w.WriteHeader(http.StatusConflict)
			fmt.Fprint(w, `"no active schedule"`)
			return
		}
		fmt.Fprint(w, `"2026-03-14T09:30:00Z"`)
	})
	sock := fakeDaemon(t, mux)

	out, err := run(t, "recheck", "--skip-next", "--daemon-socket", sock)
	require.NoError(t, err)
	assert.Contains(t, out, "Next recheck:")

	_, err = run(t, "recheck", "--skip-next", "--daemon-socket", sock)
	assert.ErrorIs(t, err, errNoRecheckSchedule)
}
