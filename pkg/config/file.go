package config

import (
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/swervelabs/swerve/pkg/utils/ptr"
)

var (
	defaultFileConfig = &RawFileConfig{
		// The radio of team 0. Real robots use 10.TE.AM.1.
		RadioAddress:            ptr.To("10.0.0.1:80"),
		StartupTimeoutSeconds:   ptr.To(30.0),
		IndicatorIntervalMillis: ptr.To(500),
		RecheckCron:             ptr.To(""),
		AllowNonRootAccess:      ptr.To(false),
	}
)

var _ Config = &File{}

type File struct {
	c        *RawFileConfig
	mu       *sync.RWMutex
	filepath string
}

func NewFile(configPath string) (*File, error) {
	f := &File{
		filepath: configPath,
		mu:       &sync.RWMutex{},
	}
	err := f.Load()
	if err != nil {
		return nil, err
	}

	return f, nil
}

func NewFileFromConfig(c *RawFileConfig, configPath string) *File {
	if c == nil {
		c = &RawFileConfig{}
	}

	f := &File{
		c:        c,
		mu:       &sync.RWMutex{},
		filepath: configPath,
	}

	return f
}

type RawFileConfig struct {
	RadioAddress            *string          `json:"radioAddress,omitempty"`
	StartupTimeoutSeconds   *float64         `json:"startupTimeoutSeconds,omitempty"`
	IndicatorIntervalMillis *int             `json:"indicatorIntervalMillis,omitempty"`
	RecheckCron             *string          `json:"recheckCron,omitempty"`
	AllowNonRootAccess      *bool            `json:"allowNonRootAccess,omitempty"`
	Vision                  *RawVisionConfig `json:"vision,omitempty"`
}

func NewRawFileConfigFromConfig(c Config) (*RawFileConfig, error) {
	if c == nil {
		return nil, pkgerrors.New("config is nil")
	}

	rawConfig := &RawFileConfig{
		RadioAddress:            ptr.To(c.RadioAddress()),
		StartupTimeoutSeconds:   ptr.To(c.StartupTimeout().Seconds()),
		IndicatorIntervalMillis: ptr.To(int(c.IndicatorInterval().Milliseconds())),
		RecheckCron:             ptr.To(c.RecheckCron()),
		AllowNonRootAccess:      ptr.To(c.AllowNonRootAccess()),
		Vision:                  newRawVisionConfig(c.Vision()),
	}

	return rawConfig, nil
}

func (f *File) RadioAddress() string {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c.RadioAddress != nil {
		return *f.c.RadioAddress
	}
	return *defaultFileConfig.RadioAddress
}

func (f *File) StartupTimeout() time.Duration {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	seconds := *defaultFileConfig.StartupTimeoutSeconds
	if f.c.StartupTimeoutSeconds != nil {
		seconds = *f.c.StartupTimeoutSeconds
	}
	return time.Duration(seconds * float64(time.Second))
}

func (f *File) IndicatorInterval() time.Duration {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	millis := *defaultFileConfig.IndicatorIntervalMillis
	if f.c.IndicatorIntervalMillis != nil {
		millis = *f.c.IndicatorIntervalMillis
	}
	return time.Duration(millis) * time.Millisecond
}

func (f *File) RecheckCron() string {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c.RecheckCron != nil {
		return *f.c.RecheckCron
	}
	return *defaultFileConfig.RecheckCron
}

func (f *File) AllowNonRootAccess() bool {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c.AllowNonRootAccess != nil {
		return *f.c.AllowNonRootAccess
	}
	return *defaultFileConfig.AllowNonRootAccess
}

// Vision returns a copy of the vision calibration config.
func (f *File) Vision() VisionConfig {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.c.Vision.resolve()
}

func (f *File) SetRadioAddress(addr string) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.RadioAddress = &addr
}

func (f *File) SetStartupTimeout(d time.Duration) {
	if f.c == nil {
		panic("config is nil")
	}
	if d <= 0 {
		panic("startup timeout must be positive")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.StartupTimeoutSeconds = ptr.To(d.Seconds())
}

func (f *File) SetIndicatorInterval(d time.Duration) {
	if f.c == nil {
		panic("config is nil")
	}
	if d <= 0 {
		panic("indicator interval must be positive")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.IndicatorIntervalMillis = ptr.To(int(d.Milliseconds()))
}

func (f *File) SetRecheckCron(expr string) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.RecheckCron = &expr
}

func (f *File) SetAllowNonRootAccess(b bool) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.c.AllowNonRootAccess = &b
}

func (f *File) SetVision(v VisionConfig) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.c.Vision = newRawVisionConfig(v)
}

func (f *File) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fp, err := os.Open(f.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			// If the file does not exist, return the empty config.
			// Do not make f.c a nil.
			f.c = &RawFileConfig{}
			return nil
		}
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	// Since we want to tell if the file is empty, using json.Decoder will
	// not work.
	b, err := io.ReadAll(fp)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to read file %s", f.filepath)
	}

	if strings.TrimSpace(string(b)) == "" {
		f.c = &RawFileConfig{}
		return nil
	}

	conf := RawFileConfig{}
	err = json.Unmarshal(b, &conf)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to unmarshal config from file %s", f.filepath)
	}
	if err := conf.validate(); err != nil {
		return pkgerrors.Wrapf(err, "invalid config in file %s", f.filepath)
	}
	f.c = &conf

	return nil
}

func (c *RawFileConfig) validate() error {
	if c.StartupTimeoutSeconds != nil && *c.StartupTimeoutSeconds <= 0 {
		return pkgerrors.Errorf("startupTimeoutSeconds must be positive, got %v", *c.StartupTimeoutSeconds)
	}
	if c.IndicatorIntervalMillis != nil && *c.IndicatorIntervalMillis <= 0 {
		return pkgerrors.Errorf("indicatorIntervalMillis must be positive, got %d", *c.IndicatorIntervalMillis)
	}
	if c.RecheckCron != nil && *c.RecheckCron != "" {
		if _, err := ParseCron(*c.RecheckCron); err != nil {
			return pkgerrors.Wrapf(err, "invalid recheckCron %q", *c.RecheckCron)
		}
	}
	v := c.Vision.resolve()
	if len(v.XYStdDevs) != len(v.Distances) || len(v.ThetaStdDevs) != len(v.Distances) {
		return pkgerrors.Errorf("vision tables must match distances: %d distances, %d xy, %d theta",
			len(v.Distances), len(v.XYStdDevs), len(v.ThetaStdDevs))
	}
	if _, err := v.NoiseModel(); err != nil {
		return pkgerrors.Wrap(err, "vision tables cannot be fitted")
	}
	return nil
}

// ParseCron parses a recheck schedule. Seconds are optional and descriptors
// such as @every 10m are accepted.
func ParseCron(expr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return parser.Parse(expr)
}

func (f *File) Save() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c == nil {
		return pkgerrors.New("config is nil")
	}

	fp, err := os.OpenFile(f.filepath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	enc := json.NewEncoder(fp)
	enc.SetIndent("", "  ")
	err = enc.Encode(f.c)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to encode config to file %s", f.filepath)
	}

	return nil
}

func (f *File) LogrusFields() logrus.Fields {
	if f.c == nil {
		panic("config is nil")
	}

	v := f.Vision()
	return logrus.Fields{
		"radioAddress":       f.RadioAddress(),
		"startupTimeout":     f.StartupTimeout(),
		"indicatorInterval":  f.IndicatorInterval(),
		"recheckCron":        f.RecheckCron(),
		"allowNonRootAccess": f.AllowNonRootAccess(),
		"visionSamples":      len(v.Distances),
		"visionDegree":       v.Degree,
	}
}
