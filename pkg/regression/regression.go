// Package regression fits least-squares polynomials to small calibration
// tables and evaluates them.
//
// A Polynomial is immutable once built, so Evaluate may be called from any
// number of goroutines without synchronization.
package regression

import (
	"errors"
	"fmt"
	"math"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// rankTolerance is the smallest |R_ii| / max|R_jj| ratio accepted as full rank.
const rankTolerance = 1e-10

var (
	// ErrInsufficientSamples is returned when there are not enough samples
	// for the requested degree, or the sample slices are malformed.
	ErrInsufficientSamples = errors.New("insufficient samples for polynomial fit")

	// ErrSingularFit is returned when the design matrix is rank deficient,
	// e.g. because of duplicate x values.
	ErrSingularFit = errors.New("singular polynomial fit")

	// ErrInvalidSample is returned when a sample is NaN or infinite.
	ErrInvalidSample = errors.New("invalid sample")
)

// Option configures New.
type Option func(*options)

type options struct {
	reduceDegree bool
}

// WithDegreeReduction lowers the degree one step at a time until the design
// matrix has full column rank, instead of failing. A table with n samples is
// therefore fitted with degree at most n-1.
func WithDegreeReduction() Option {
	return func(o *options) {
		o.reduceDegree = true
	}
}

// Polynomial is a fitted polynomial y = c0 + c1*x + ... + cd*x^d.
type Polynomial struct {
	requested int
	degree    int
	coef      []float64
	sse       float64
	sst       float64
}

// New fits a polynomial of the given degree to the samples (xs[i], ys[i]) by
// least squares, using a QR decomposition of the Vandermonde matrix.
func New(xs, ys []float64, degree int, opts ...Option) (*Polynomial, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	if degree < 0 {
		return nil, pkgerrors.Wrapf(ErrInsufficientSamples, "degree must be non-negative, got %d", degree)
	}
	if len(xs) != len(ys) {
		return nil, pkgerrors.Wrapf(ErrInsufficientSamples, "got %d x values and %d y values", len(xs), len(ys))
	}
	if len(xs) == 0 {
		return nil, pkgerrors.Wrap(ErrInsufficientSamples, "no samples")
	}
	if err := validate(xs, ys); err != nil {
		return nil, err
	}

	n := len(xs)
	d := degree
	if n <= d {
		if !o.reduceDegree {
			return nil, pkgerrors.Wrapf(ErrInsufficientSamples, "degree %d needs at least %d samples, got %d", d, d+1, n)
		}
		d = n - 1
	}

	for {
		x := vandermonde(xs, d)
		var qr mat.QR
		qr.Factorize(x)

		if fullRank(&qr, d+1) {
			coef, err := solve(&qr, ys)
			if err != nil {
				return nil, pkgerrors.Wrapf(ErrSingularFit, "degree %d: %v", d, err)
			}
			p := &Polynomial{requested: degree, degree: d, coef: coef}
			p.sse, p.sst = sumsOfSquares(p, xs, ys)
			return p, nil
		}

		if !o.reduceDegree || d == 0 {
			return nil, pkgerrors.Wrapf(ErrSingularFit, "design matrix for degree %d is rank deficient", d)
		}
		d--
	}
}

func validate(xs, ys []float64) error {
	seen := make(map[float64]struct{}, len(xs))
	for i := range xs {
		if math.IsNaN(xs[i]) || math.IsInf(xs[i], 0) || math.IsNaN(ys[i]) || math.IsInf(ys[i], 0) {
			return pkgerrors.Wrapf(ErrInvalidSample, "sample %d is (%v, %v)", i, xs[i], ys[i])
		}
		if _, ok := seen[xs[i]]; ok {
			return pkgerrors.Wrapf(ErrSingularFit, "duplicate x value %v", xs[i])
		}
		seen[xs[i]] = struct{}{}
	}
	return nil
}

func vandermonde(xs []float64, degree int) *mat.Dense {
	m := mat.NewDense(len(xs), degree+1, nil)
	for i, x := range xs {
		v := 1.0
		for j := 0; j <= degree; j++ {
			m.Set(i, j, v)
			v *= x
		}
	}
	return m
}

func fullRank(qr *mat.QR, cols int) bool {
	var r mat.Dense
	qr.RTo(&r)

	maxDiag := 0.0
	for i := 0; i < cols; i++ {
		maxDiag = math.Max(maxDiag, math.Abs(r.At(i, i)))
	}
	if maxDiag == 0 {
		return false
	}
	for i := 0; i < cols; i++ {
		if math.Abs(r.At(i, i)) <= rankTolerance*maxDiag {
			return false
		}
	}
	return true
}

func solve(qr *mat.QR, ys []float64) ([]float64, error) {
	b := mat.NewVecDense(len(ys), append([]float64(nil), ys...))
	var c mat.VecDense
	if err := qr.SolveVecTo(&c, false, b); err != nil {
		return nil, err
	}

	coef := make([]float64, c.Len())
	for i := range coef {
		coef[i] = c.AtVec(i)
	}
	return coef, nil
}

func sumsOfSquares(p *Polynomial, xs, ys []float64) (sse, sst float64) {
	mean := 0.0
	for _, y := range ys {
		mean += y
	}
	mean /= float64(len(ys))

	for i, y := range ys {
		dev := y - mean
		sst += dev * dev
		res := p.Evaluate(xs[i]) - y
		sse += res * res
	}
	return sse, sst
}

// Evaluate returns the value of the polynomial at x. Values outside the
// sampled range are extrapolated.
func (p *Polynomial) Evaluate(x float64) float64 {
	y := 0.0
	for j := p.degree; j >= 0; j-- {
		y = p.coef[j] + x*y
	}
	return y
}

// Degree returns the degree actually fitted. It is lower than the requested
// degree only when WithDegreeReduction was used.
func (p *Polynomial) Degree() int {
	return p.degree
}

// RequestedDegree returns the degree passed to New.
func (p *Polynomial) RequestedDegree() int {
	return p.requested
}

// Coefficient returns the coefficient of x^j, or 0 if j is above the degree.
func (p *Polynomial) Coefficient(j int) float64 {
	if j < 0 || j > p.degree {
		return 0
	}
	return p.coef[j]
}

// Coefficients returns a copy of the coefficients, lowest order first.
func (p *Polynomial) Coefficients() []float64 {
	return append([]float64(nil), p.coef...)
}

// SSE returns the residual sum of squares of the fit.
func (p *Polynomial) SSE() float64 {
	return p.sse
}

// R2 returns the coefficient of determination. A table with constant y is
// reported as a perfect fit.
func (p *Polynomial) R2() float64 {
	if p.sst == 0 {
		return 1
	}
	return 1 - p.sse/p.sst
}

func (p *Polynomial) String() string {
	var b strings.Builder
	for j := p.degree; j >= 0; j-- {
		c := p.coef[j]
		switch {
		case j == p.degree:
			fmt.Fprintf(&b, "%.4f", c)
		case c < 0:
			fmt.Fprintf(&b, " - %.4f", -c)
		default:
			fmt.Fprintf(&b, " + %.4f", c)
		}

		switch j {
		case 0:
		case 1:
			b.WriteString(" x")
		default:
			fmt.Fprintf(&b, " x^%d", j)
		}
	}
	fmt.Fprintf(&b, " (R^2 = %.3f)", p.R2())
	return b.String()
}
