package outlier

import "fmt"

// Table maps a sample size N to the critical Q value for one confidence level.
type Table map[int]float64

// MaxN returns the largest sample size in the table.
func (t Table) MaxN() int {
	largest := 0
	for n := range t {
		if n > largest {
			largest = n
		}
	}
	return largest
}

// Critical values of Dixon's Q for N = 3..30 (Rorabacher, 1991).
var (
	Q90 = build(0.941, 0.765, 0.642, 0.560, 0.507, 0.468, 0.437, 0.412, 0.392, 0.376,
		0.361, 0.349, 0.338, 0.329, 0.320, 0.313, 0.306, 0.300, 0.295, 0.290,
		0.285, 0.281, 0.277, 0.273, 0.269, 0.266, 0.263, 0.260)
	Q95 = build(0.970, 0.829, 0.710, 0.625, 0.568, 0.526, 0.493, 0.466, 0.444, 0.426,
		0.410, 0.396, 0.384, 0.374, 0.365, 0.356, 0.349, 0.342, 0.337, 0.331,
		0.326, 0.321, 0.317, 0.312, 0.308, 0.305, 0.301, 0.290)
	Q99 = build(0.994, 0.926, 0.821, 0.740, 0.680, 0.634, 0.598, 0.568, 0.542, 0.522,
		0.503, 0.488, 0.475, 0.463, 0.452, 0.442, 0.433, 0.425, 0.418, 0.411,
		0.404, 0.399, 0.393, 0.388, 0.384, 0.380, 0.376, 0.372)
)

func build(values ...float64) Table {
	t := make(Table, len(values))
	for i, v := range values {
		t[i+3] = v
	}
	return t
}

// TableFor returns the table for a confidence level: "90", "95" or "99".
func TableFor(confidence string) (Table, error) {
	switch confidence {
	case "90", "0.90", "90%":
		return Q90, nil
	case "95", "0.95", "95%":
		return Q95, nil
	case "99", "0.99", "99%":
		return Q99, nil
	}
	return nil, fmt.Errorf("unknown confidence level %q (want 90, 95 or 99)", confidence)
}
