package config

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/swervelabs/swerve/pkg/utils/ptr"
	"github.com/swervelabs/swerve/pkg/vision"
)

type Config interface {
	RadioAddress() string
	StartupTimeout() time.Duration
	IndicatorInterval() time.Duration
	RecheckCron() string
	AllowNonRootAccess() bool
	Vision() VisionConfig

	SetRadioAddress(string)
	SetStartupTimeout(time.Duration)
	SetIndicatorInterval(time.Duration)
	SetRecheckCron(string)
	SetAllowNonRootAccess(bool)
	SetVision(VisionConfig)

	LogrusFields() logrus.Fields

	// Load reads the configuration from the source.
	Load() error
	// Save saves the configuration to the source.
	Save() error
}

// VisionConfig holds the camera calibration tables. Both tables share the
// distances they were measured at.
type VisionConfig struct {
	Distances    []float64 `json:"distances"`
	XYStdDevs    []float64 `json:"xyStdDevs"`
	ThetaStdDevs []float64 `json:"thetaStdDevs"`
	Degree       int       `json:"degree"`
	// ReduceDegree fits a table with too few samples for Degree at the
	// highest degree it supports instead of rejecting it.
	ReduceDegree bool `json:"reduceDegree"`
}

// Tables splits the config into per-axis calibration tables.
func (v VisionConfig) Tables() (xy, theta vision.Table) {
	xy = vision.Table{Distances: v.Distances, StdDevs: v.XYStdDevs, Degree: v.Degree}
	theta = vision.Table{Distances: v.Distances, StdDevs: v.ThetaStdDevs, Degree: v.Degree}
	return xy, theta
}

// NoiseModel fits the vision noise model described by v.
func (v VisionConfig) NoiseModel() (*vision.NoiseModel, error) {
	xy, theta := v.Tables()
	return vision.NewNoiseModel(xy, theta, v.ReduceDegree)
}

func defaultVisionConfig() VisionConfig {
	return VisionConfig{
		Distances:    append([]float64(nil), vision.DefaultDistances...),
		XYStdDevs:    append([]float64(nil), vision.DefaultXYTable.StdDevs...),
		ThetaStdDevs: append([]float64(nil), vision.DefaultThetaTable.StdDevs...),
		Degree:       vision.DefaultXYTable.Degree,
		ReduceDegree: true,
	}
}

// RawVisionConfig is the vision section as stored in the config file. Any
// field left out falls back to the shipped calibration.
type RawVisionConfig struct {
	Distances    []float64 `json:"distances,omitempty"`
	XYStdDevs    []float64 `json:"xyStdDevs,omitempty"`
	ThetaStdDevs []float64 `json:"thetaStdDevs,omitempty"`
	Degree       *int      `json:"degree,omitempty"`
	ReduceDegree *bool     `json:"reduceDegree,omitempty"`
}

func newRawVisionConfig(v VisionConfig) *RawVisionConfig {
	return &RawVisionConfig{
		Distances:    append([]float64(nil), v.Distances...),
		XYStdDevs:    append([]float64(nil), v.XYStdDevs...),
		ThetaStdDevs: append([]float64(nil), v.ThetaStdDevs...),
		Degree:       ptr.To(v.Degree),
		ReduceDegree: ptr.To(v.ReduceDegree),
	}
}

// resolve fills the fields missing from r with defaults. The returned slices
// never alias r.
func (r *RawVisionConfig) resolve() VisionConfig {
	v := defaultVisionConfig()
	if r == nil {
		return v
	}
	if r.Distances != nil {
		v.Distances = append([]float64{}, r.Distances...)
	}
	if r.XYStdDevs != nil {
		v.XYStdDevs = append([]float64{}, r.XYStdDevs...)
	}
	if r.ThetaStdDevs != nil {
		v.ThetaStdDevs = append([]float64{}, r.ThetaStdDevs...)
	}
	if r.Degree != nil {
		v.Degree = *r.Degree
	}
	if r.ReduceDegree != nil {
		v.ReduceDegree = *r.ReduceDegree
	}
	return v
}
