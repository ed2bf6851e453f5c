package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/swervelabs/swerve/pkg/command"
	"github.com/swervelabs/swerve/pkg/config"
	"github.com/swervelabs/swerve/pkg/events"
	"github.com/swervelabs/swerve/pkg/vision"
)

var (
	conf      config.Config
	gate      *command.Gate
	hub       *events.Hub
	checks    *checkRunner
	scheduler *Scheduler

	modelMu sync.RWMutex
	model   *vision.NoiseModel
)

func setupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logrus.StandardLogger()))
	router.GET("/config", getConfig)
	router.GET("/version", getVersion)
	router.GET("/startup", getStartup)
	router.POST("/startup/recheck", postRecheck)
	router.POST("/startup/recheck/skip", postSkipRecheck)
	router.GET("/mode", getMode)
	router.PUT("/mode", setMode)
	router.GET("/vision/stddevs", getStdDevs)
	router.GET("/vision/model", getModel)
	router.GET("/events", streamEvents)

	return router
}

// setup initializes the daemon state from a loaded config. Checks started
// afterwards are interrupted when ctx is done.
func setup(ctx context.Context, c config.Config) error {
	conf = c
	gate = command.NewGate()
	hub = events.NewHub()
	checks = newCheckRunner(ctx)
	hub.PublishMode(string(gate.Mode()))

	if err := reloadModel(); err != nil {
		return err
	}

	scheduler = NewScheduler(recheck, recheckPreCheck, func(err error) {
		logrus.WithError(err).Warn("scheduled startup recheck did not run")
	})
	if err := scheduler.Schedule(conf.RecheckCron()); err != nil {
		return err
	}
	return nil
}

func reloadModel() error {
	m, err := conf.Vision().NoiseModel()
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to fit vision noise model")
	}

	modelMu.Lock()
	model = m
	modelMu.Unlock()

	info := m.Info()
	logrus.WithFields(logrus.Fields{
		"xy":    info.XY.Formula,
		"theta": info.Theta.Formula,
	}).Info("vision noise model fitted")
	return nil
}

func currentModel() *vision.NoiseModel {
	modelMu.RLock()
	defer modelMu.RUnlock()
	return model
}

func recheck() error {
	_, err := checks.Start()
	return err
}

func recheckPreCheck() error {
	if checks.Running() {
		return ErrCheckRunning
	}
	return nil
}

// reloadConfig re-reads the config file. The file is validated and its
// vision tables fitted before anything is replaced, so a bad file leaves the
// running config and model untouched.
func reloadConfig() {
	err := conf.Load()
	if err != nil {
		logrus.Errorf("failed to reload config: %v", err)
		return
	}
	if err := reloadModel(); err != nil {
		logrus.WithError(err).Error("keeping previous vision noise model")
	}
	if err := scheduler.Schedule(conf.RecheckCron()); err != nil {
		logrus.WithError(err).Error("failed to update recheck schedule")
	}
	logrus.WithFields(conf.LogrusFields()).Info("config reloaded")
}

func Run(configPath string, unixSocketPath string, allowNonRoot bool) error {
	router := setupRoutes()

	c, err := config.NewFile(configPath)
	if err != nil {
		logrus.Fatalf("failed to parse config during startup: %v", err)
	}
	logrus.WithFields(c.LogrusFields()).Infof("config loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := setup(ctx, c); err != nil {
		return err
	}

	// The robot boots disabled; the check is allowed to run anyway.
	if _, err := checks.Start(); err != nil {
		return pkgerrors.Wrapf(err, "failed to start startup check")
	}
	scheduler.Start()

	// Receive SIGHUP to reload config
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGHUP)
		for range sigc {
			reloadConfig()
		}
	}()

	srv := &http.Server{
		Handler: router,
	}

	// Remove a stale socket left by a previous run.
	if _, err := os.Stat(unixSocketPath); err == nil {
		if err := os.Remove(unixSocketPath); err != nil {
			return pkgerrors.Wrapf(err, "failed to remove stale socket %s", unixSocketPath)
		}
	}

	l, err := net.Listen("unix", unixSocketPath)
	if err != nil {
		logrus.Fatal(err)
	}

	if conf.AllowNonRootAccess() || allowNonRoot {
		logrus.Infof("non-root access is allowed, changing permissions of %s to 0777", unixSocketPath)
		err = os.Chmod(unixSocketPath, 0777)
		if err != nil {
			logrus.Fatal(err)
		}
	}

	go func() {
		logrus.Infof("http server listening on %s", l.Addr().String())
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatal(err)
		}
	}()

	// Handle common process-killing signals, so we can gracefully shut down:
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigc
	logrus.Infof("caught signal \"%s\": shutting down.", sig)

	logrus.Info("stopping recheck scheduler")
	scheduler.Stop()

	logrus.Info("shutting down http server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = srv.Shutdown(shutdownCtx)
	if err != nil {
		logrus.Errorf("failed to shutdown http server: %v", err)
	}
	shutdownCancel()

	logrus.Info("interrupting startup checks")
	cancel()
	checks.Wait()

	logrus.Info("exiting")
	return nil
}
