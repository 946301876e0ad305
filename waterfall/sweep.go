/*
sweep.go - Sensitivity sweeps for line charts

PURPOSE:
  Varies one rate across a range of values and compares both regimes at
  each point, e.g. "GP take vs LP return multiple". Every point is an
  independent Compare call, so points are fanned out over an errgroup.

EXAMPLE:
  values := waterfall.LinearSweepValues(1.0, 2.0, 11)
  points, err := waterfall.Sweep(ctx, p, waterfall.AxisLPReturnRate, values)
*/
package waterfall

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Axis is the parameter a sweep varies.
type Axis string

const (
	AxisLPReturnRate        Axis = "lp_return_rate"
	AxisCatchUpRate         Axis = "catch_up_rate"
	AxisPreferredReturnRate Axis = "preferred_return_rate"
	AxisCarriedInterestRate Axis = "carried_interest_rate"
)

// ParseAxis converts a wire value into an Axis.
func ParseAxis(s string) (Axis, error) {
	switch a := Axis(s); a {
	case AxisLPReturnRate, AxisCatchUpRate, AxisPreferredReturnRate, AxisCarriedInterestRate:
		return a, nil
	}
	return "", &UnknownValueError{Kind: "axis", Value: s, sentinel: ErrUnknownAxis}
}

// With returns a copy of p with the axis field set to v.
func (a Axis) With(p Parameters, v float64) Parameters {
	switch a {
	case AxisLPReturnRate:
		p.LPReturnRate = v
	case AxisCatchUpRate:
		p.CatchUpRate = v
	case AxisPreferredReturnRate:
		p.PreferredReturnRate = v
	case AxisCarriedInterestRate:
		p.CarriedInterestRate = v
	}
	return p
}

// SweepPoint is the comparison at one axis value.
type SweepPoint struct {
	Value float64 `json:"value"`
	Comparison
}

// Sweep compares both regimes at each value of axis.
// Points come back in the order of values.
func Sweep(ctx context.Context, p Parameters, axis Axis, values []float64) ([]SweepPoint, error) {
	if _, err := ParseAxis(string(axis)); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	points := make([]SweepPoint, len(values))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i, v := range values {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			points[i] = SweepPoint{Value: v, Comparison: Compare(axis.With(p, v))}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return points, nil
}

// LinearSweepValues returns steps evenly spaced values from..to inclusive.
func LinearSweepValues(from, to float64, steps int) []float64 {
	if steps < 2 {
		return []float64{from}
	}
	values := make([]float64, steps)
	step := (to - from) / float64(steps-1)
	for i := range values {
		values[i] = from + step*float64(i)
	}
	values[steps-1] = to
	return values
}
