package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/swervelabs/swerve/pkg/config"
	"github.com/swervelabs/swerve/pkg/regression"
	"github.com/swervelabs/swerve/pkg/vision"
)

func NewStdDevCommand() *cobra.Command {
	var local bool

	cmd := &cobra.Command{
		Use:     "stddev [distance]",
		GroupID: gVision,
		Short:   "Print vision measurement standard deviations at a distance",
		Long: `Print vision measurement standard deviations at a distance in meters.

By default the daemon answers with the model it has fitted. With --local the
model is fitted from the config file instead, so no daemon is needed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := parseFloatArg(args, "distance")
			if err != nil {
				return err
			}

			var e *vision.Estimate
			if local {
				m, err := localNoiseModel()
				if err != nil {
					return err
				}
				if d < 0 {
					return fmt.Errorf("distance must be non-negative, got %v", d)
				}
				est := m.StdDevs(d)
				e = &est
			} else {
				e, err = apiClient.GetStdDevs(d)
				if err != nil {
					return err
				}
			}

			cmd.Printf("Distance: %s\n", bold("%.3f m", e.Distance))
			cmd.Printf("  x, y:  %s\n", bold("%.4f m", e.XY))
			cmd.Printf("  theta: %s\n", bold("%.4f rad", e.Theta))
			return nil
		},
	}

	cmd.Flags().BoolVar(&local, "local", false, "Fit the model from the config file instead of asking the daemon")

	return cmd
}

func localNoiseModel() (*vision.NoiseModel, error) {
	c, err := config.NewFile(configPath)
	if err != nil {
		return nil, err
	}
	return c.Vision().NoiseModel()
}

func NewFitCommand() *cobra.Command {
	var (
		xs, ys, at   []float64
		degree       int
		reduceDegree bool
	)

	cmd := &cobra.Command{
		Use:         "fit",
		GroupID:     gVision,
		Annotations: offline,
		Short:       "Fit a polynomial to calibration samples",
		Long: `Fit a least-squares polynomial to calibration samples.

Useful to check a new calibration table before putting it in the config.`,
		Example: `  swerve fit --x 0.5,1,1.5 --y 0.014,0.020,0.150 --degree 3 --reduce-degree --at 1.25`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var opts []regression.Option
			if reduceDegree {
				opts = append(opts, regression.WithDegreeReduction())
			}

			p, err := regression.New(xs, ys, degree, opts...)
			if err != nil {
				return fmt.Errorf("failed to fit: %w", err)
			}

			cmd.Printf("Polynomial: %s\n", bold("%s", p))
			if p.Degree() != p.RequestedDegree() {
				cmd.Printf("  Degree reduced from %d to %d\n", p.RequestedDegree(), p.Degree())
			}
			cmd.Printf("  SSE: %.6g\n", p.SSE())
			for j, c := range p.Coefficients() {
				cmd.Printf("  beta[%d] = %.6g\n", j, c)
			}
			for _, x := range at {
				cmd.Printf("  f(%g) = %s\n", x, bold("%.6g", p.Evaluate(x)))
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.Float64SliceVar(&xs, "x", nil, "Sample x values")
	f.Float64SliceVar(&ys, "y", nil, "Sample y values")
	f.IntVarP(&degree, "degree", "d", 2, "Polynomial degree")
	f.BoolVar(&reduceDegree, "reduce-degree", false, "Lower the degree until the fit is well-determined")
	f.Float64SliceVar(&at, "at", nil, "Evaluate the fit at these x values")
	_ = cmd.MarkFlagRequired("x")
	_ = cmd.MarkFlagRequired("y")

	return cmd
}
