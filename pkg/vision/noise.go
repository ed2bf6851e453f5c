// Package vision turns camera target distance into measurement standard
// deviations for pose fusion.
package vision

import (
	"math"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/swervelabs/swerve/pkg/regression"
)

// MinStdDev is the smallest standard deviation ever reported. A fitted curve
// can dip below zero between or beyond samples; a covariance cannot.
const MinStdDev = 1e-4

// Table is a calibration table: measured standard deviation by target
// distance in meters.
type Table struct {
	Distances []float64 `json:"distances"`
	StdDevs   []float64 `json:"stdDevs"`
	Degree    int       `json:"degree"`
}

var (
	// DefaultDistances are the distances the shipped tables were measured at.
	DefaultDistances = []float64{0.50, 1.00, 1.50}

	// DefaultXYTable holds the translational standard deviations.
	DefaultXYTable = Table{
		Distances: DefaultDistances,
		StdDevs:   []float64{0.014, 0.020, 0.150},
		Degree:    3,
	}

	// DefaultThetaTable holds the heading standard deviations.
	DefaultThetaTable = Table{
		Distances: DefaultDistances,
		StdDevs:   []float64{0.115, 0.149, 0.190},
		Degree:    3,
	}
)

// Estimate is the per-axis noise at one distance.
type Estimate struct {
	Distance float64 `json:"distance"`
	XY       float64 `json:"xy"`
	Theta    float64 `json:"theta"`
}

// CurveInfo describes a fitted curve.
type CurveInfo struct {
	RequestedDegree int       `json:"requestedDegree"`
	Degree          int       `json:"degree"`
	Coefficients    []float64 `json:"coefficients"`
	R2              float64   `json:"r2"`
	Formula         string    `json:"formula"`
}

// ModelInfo describes both fitted curves.
type ModelInfo struct {
	XY    CurveInfo `json:"xy"`
	Theta CurveInfo `json:"theta"`
}

// NoiseModel maps distance to standard deviations. It is immutable and safe
// for concurrent use.
type NoiseModel struct {
	xy    *regression.Polynomial
	theta *regression.Polynomial
}

// NewNoiseModel fits both tables. With reduceDegree a table with too few
// samples for its degree is fitted at the highest degree it supports;
// without it such a table is an error.
func NewNoiseModel(xy, theta Table, reduceDegree bool) (*NoiseModel, error) {
	var opts []regression.Option
	if reduceDegree {
		opts = append(opts, regression.WithDegreeReduction())
	}

	xyFit, err := regression.New(xy.Distances, xy.StdDevs, xy.Degree, opts...)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to fit xy table")
	}
	thetaFit, err := regression.New(theta.Distances, theta.StdDevs, theta.Degree, opts...)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to fit theta table")
	}

	m := &NoiseModel{xy: xyFit, theta: thetaFit}
	logrus.WithFields(logrus.Fields{
		"xy":    xyFit.String(),
		"theta": thetaFit.String(),
	}).Debug("vision noise model fitted")
	if xyFit.Degree() != xy.Degree || thetaFit.Degree() != theta.Degree {
		logrus.WithFields(logrus.Fields{
			"xyDegree":    xyFit.Degree(),
			"thetaDegree": thetaFit.Degree(),
		}).Warn("vision noise model fitted with reduced degree")
	}
	return m, nil
}

// NewDefaultNoiseModel fits the shipped tables.
func NewDefaultNoiseModel() (*NoiseModel, error) {
	return NewNoiseModel(DefaultXYTable, DefaultThetaTable, true)
}

// StdDevs returns the standard deviations at distance.
func (m *NoiseModel) StdDevs(distance float64) Estimate {
	return Estimate{
		Distance: distance,
		XY:       clamp(m.xy.Evaluate(distance)),
		Theta:    clamp(m.theta.Evaluate(distance)),
	}
}

// MeasurementStdDevs returns the (x, y, heading) standard deviation vector
// used to scale a vision measurement before it is fused into the pose
// estimate.
func (m *NoiseModel) MeasurementStdDevs(distance float64) *mat.VecDense {
	e := m.StdDevs(distance)
	return mat.NewVecDense(3, []float64{e.XY, e.XY, e.Theta})
}

// Covariance returns the diagonal measurement covariance at distance.
func (m *NoiseModel) Covariance(distance float64) *mat.DiagDense {
	v := m.MeasurementStdDevs(distance)
	d := make([]float64, v.Len())
	for i := range d {
		d[i] = v.AtVec(i) * v.AtVec(i)
	}
	return mat.NewDiagDense(len(d), d)
}

// Info describes the fitted curves.
func (m *NoiseModel) Info() ModelInfo {
	return ModelInfo{
		XY:    curveInfo(m.xy),
		Theta: curveInfo(m.theta),
	}
}

func curveInfo(p *regression.Polynomial) CurveInfo {
	return CurveInfo{
		RequestedDegree: p.RequestedDegree(),
		Degree:          p.Degree(),
		Coefficients:    p.Coefficients(),
		R2:              p.R2(),
		Formula:         p.String(),
	}
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < MinStdDev {
		return MinStdDev
	}
	return v
}
