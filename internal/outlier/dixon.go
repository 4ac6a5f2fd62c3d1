// Package outlier implements Dixon's Q-test for a single outlier at either end
// of a small sample. It is used to find candidate move scores that stand apart
// from their siblings.
package outlier

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrPrecondition is wrapped by every input validation failure of Detect.
var ErrPrecondition = errors.New("outlier precondition violated")

var (
	ErrNoSide         = fmt.Errorf("%w: at least one of low or high must be tested", ErrPrecondition)
	ErrTooFewScores   = fmt.Errorf("%w: at least 3 scores are required", ErrPrecondition)
	ErrSampleTooLarge = fmt.Errorf("%w: sample size too large for table", ErrPrecondition)
)

// MinSamples is the smallest sample the test is defined for.
const MinSamples = 3

// Verdict holds the flagged extremes. Low is the minimum value when it is an
// outlier, High the maximum. Both are set only when the two margins tie.
type Verdict struct {
	Low  *float64
	High *float64
}

// Empty reports whether no outlier was found.
func (v Verdict) Empty() bool {
	return v.Low == nil && v.High == nil
}

func (v Verdict) String() string {
	f := func(p *float64) string {
		if p == nil {
			return "none"
		}
		return fmt.Sprintf("%g", *p)
	}
	return fmt.Sprintf("(%s, %s)", f(v.Low), f(v.High))
}

// Detect runs the Q-test over scores. The gap between the two smallest
// (largest) values is divided by the range and compared with the critical value
// for len(scores); the side whose ratio exceeds it by more wins. A zero range
// gives a ratio of zero. Disabled sides contribute a zero margin.
//
// scores is not modified.
func Detect(scores []float64, table Table, low, high bool) (Verdict, error) {
	if !low && !high {
		return Verdict{}, ErrNoSide
	}
	n := len(scores)
	if n < MinSamples {
		return Verdict{}, fmt.Errorf("%w (got %d)", ErrTooFewScores, n)
	}
	if n > table.MaxN() {
		return Verdict{}, fmt.Errorf("%w (got %d, table max %d)", ErrSampleTooLarge, n, table.MaxN())
	}
	critical, ok := table[n]
	if !ok {
		return Verdict{}, fmt.Errorf("%w: no critical value for N=%d", ErrPrecondition, n)
	}

	sorted := make([]float64, n)
	copy(sorted, scores)
	sort.Float64s(sorted)
	smallest, largest := sorted[0], sorted[n-1]

	var lowMargin, highMargin float64
	if low {
		lowMargin = ratio(sorted[1]-smallest, largest-smallest) - critical
	}
	if high {
		highMargin = ratio(math.Abs(sorted[n-2]-largest), math.Abs(smallest-largest)) - critical
	}

	switch {
	case !(lowMargin > 0) && !(highMargin > 0):
		return Verdict{}, nil
	case lowMargin == highMargin:
		return Verdict{Low: &smallest, High: &largest}, nil
	case lowMargin > highMargin:
		return Verdict{Low: &smallest}, nil
	default:
		return Verdict{High: &largest}, nil
	}
}

func ratio(gap, span float64) float64 {
	if span == 0 {
		return 0
	}
	return gap / span
}
