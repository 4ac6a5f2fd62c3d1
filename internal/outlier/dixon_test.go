package outlier

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func val(v Verdict) (low, high any) {
	if v.Low != nil {
		low = *v.Low
	}
	if v.High != nil {
		high = *v.High
	}
	return low, high
}

func TestDetectReferenceFixtures(t *testing.T) {
	tests := []struct {
		name     string
		data     []float64
		wantLow  any
		wantHigh any
	}{
		{"all equal", []float64{1, 1, 1}, nil, nil},
		{"high outlier", []float64{5, 1, 1}, nil, 5.0},
		{"low outlier", []float64{5, 1, 5}, 1.0, nil},
		{"candidate cluster", []float64{10, 12, 90}, nil, 90.0},
		{"narrow band", []float64{31, 28, 25, 30, 27}, nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Detect(tt.data, Q90, true, true)
			require.NoError(t, err)
			low, high := val(v)
			assert.Equal(t, tt.wantLow, low)
			assert.Equal(t, tt.wantHigh, high)
		})
	}
}

func TestDetectIdenticalValuesNeverFlag(t *testing.T) {
	for n := MinSamples; n <= Q90.MaxN(); n++ {
		data := make([]float64, n)
		for i := range data {
			data[i] = 42
		}
		for _, table := range []Table{Q90, Q95, Q99} {
			v, err := Detect(data, table, true, true)
			require.NoError(t, err)
			assert.True(t, v.Empty(), "n=%d verdict=%s", n, v)
		}
	}
}

func TestDetectTieFlagsBothSides(t *testing.T) {
	v, err := Detect([]float64{0, 50, 100}, Table{3: 0.3}, true, true)
	require.NoError(t, err)
	low, high := val(v)
	assert.Equal(t, 0.0, low)
	assert.Equal(t, 100.0, high)

	// Both gaps are 45% of the range against a critical value of 0.412.
	data := []float64{0, 45, 45, 45, 45, 55, 55, 55, 55, 100}
	v, err = Detect(data, Q90, true, true)
	require.NoError(t, err)
	low, high = val(v)
	assert.Equal(t, 0.0, low)
	assert.Equal(t, 100.0, high)
}

func TestDetectSingleSide(t *testing.T) {
	// Low outlier exists but only the high side is tested.
	v, err := Detect([]float64{5, 1, 5}, Q90, false, true)
	require.NoError(t, err)
	assert.True(t, v.Empty())

	v, err = Detect([]float64{5, 1, 5}, Q90, true, false)
	require.NoError(t, err)
	low, high := val(v)
	assert.Equal(t, 1.0, low)
	assert.Nil(t, high)

	v, err = Detect([]float64{5, 1, 1}, Q90, false, true)
	require.NoError(t, err)
	low, high = val(v)
	assert.Nil(t, low)
	assert.Equal(t, 5.0, high)
}

func TestDetectDoesNotMutateInput(t *testing.T) {
	data := []float64{90, 10, 12}
	_, err := Detect(data, Q90, true, true)
	require.NoError(t, err)
	assert.Equal(t, []float64{90, 10, 12}, data)
}

func TestDetectPreconditions(t *testing.T) {
	tests := []struct {
		name      string
		data      []float64
		table     Table
		low, high bool
		want      error
	}{
		{"no side", []float64{1, 2, 3}, Q90, false, false, ErrNoSide},
		{"too few", []float64{1, 2}, Q90, true, true, ErrTooFewScores},
		{"empty", nil, Q90, true, true, ErrTooFewScores},
		{"too many", make([]float64, 31), Q90, true, true, ErrSampleTooLarge},
		{"beyond small table", []float64{1, 2, 3, 4}, Table{3: 0.9}, true, true, ErrSampleTooLarge},
		{"gap in table", []float64{1, 2, 3, 4}, Table{3: 0.9, 5: 0.7}, true, true, ErrPrecondition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Detect(tt.data, tt.table, tt.low, tt.high)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.True(t, errors.Is(err, ErrPrecondition))
		})
	}
}

func TestTableFor(t *testing.T) {
	for conf, want := range map[string]float64{"90": 0.941, "95": 0.970, "99": 0.994} {
		table, err := TableFor(conf)
		require.NoError(t, err)
		assert.Equal(t, want, table[3])
		assert.Equal(t, 30, table.MaxN())
	}
	_, err := TableFor("80")
	assert.Error(t, err)
}
