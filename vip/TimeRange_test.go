package vip

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    TimeRangeList
		expected TimeRangeList
	}{
		{
			name:     "empty",
			input:    nil,
			expected: nil,
		},
		{
			name:     "overlapping ranges are merged",
			input:    TimeRangeList{{50, 150}, {0, 100}},
			expected: TimeRangeList{{0, 150}},
		},
		{
			name:     "touching ranges are merged",
			input:    TimeRangeList{{0, 10}, {10, 20}},
			expected: TimeRangeList{{0, 20}},
		},
		{
			name:     "disjoint ranges stay apart and sorted",
			input:    TimeRangeList{{30, 40}, {0, 10}},
			expected: TimeRangeList{{0, 10}, {30, 40}},
		},
		{
			name:     "descending ranges are reoriented",
			input:    TimeRangeList{{20, 10}},
			expected: TimeRangeList{{10, 20}},
		},
		{
			name:     "invalid ends are dropped",
			input:    TimeRangeList{{InvalidTime, 10}, {5, 6}},
			expected: TimeRangeList{{5, 6}},
		},
		{
			name:     "duplicates collapse",
			input:    TimeRangeList{{1, 2}, {1, 2}, {1, 2}},
			expected: TimeRangeList{{1, 2}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.input)
			if diff := cmp.Diff(tt.expected, got); diff != "" {
				t.Errorf("Normalize() mismatch (-want +got):\n%s", diff)
			}
			for i := 1; i < len(got); i++ {
				assert.Greater(t, got[i].Start, got[i-1].End, "ranges must be strictly separated")
			}
		})
	}
}

func TestReorderDescending(t *testing.T) {
	got := Reorder(TimeRangeList{{0, 10}, {20, 30}}, Descending, true)
	assert.Equal(t, TimeRangeList{{30, 20}, {10, 0}}, got)
}

func TestIntersectUnion(t *testing.T) {
	assert.Equal(t, TimeRange{5, 10}, Intersect(TimeRange{0, 10}, TimeRange{5, 20}))
	assert.Equal(t, InvalidTimeRange, Intersect(TimeRange{0, 4}, TimeRange{5, 20}))
	assert.Equal(t, TimeRange{0, 20}, Union(TimeRange{0, 4}, TimeRange{5, 20}))
	assert.Equal(t, InvalidTimeRange, Union(InvalidTimeRange, TimeRange{5, 20}))
}

func TestDistance(t *testing.T) {
	l := TimeRangeList{{0, 10}, {100, 110}}

	dist, closest, idx := l.Distance(5)
	assert.Equal(t, int64(0), dist)
	assert.Equal(t, int64(5), closest)
	assert.Equal(t, 0, idx)

	dist, closest, idx = l.Distance(80)
	assert.Equal(t, int64(20), dist)
	assert.Equal(t, int64(100), closest)
	assert.Equal(t, 1, idx)

	_, closest, idx = TimeRangeList(nil).Distance(3)
	assert.Equal(t, InvalidTime, closest)
	assert.Equal(t, -1, idx)
}

func TestClamp(t *testing.T) {
	l := TimeRangeList{{0, 10}, {20, 30}, {40, 50}}
	assert.Equal(t, TimeRangeList{{5, 10}, {20, 25}}, l.Clamp(5, 25))
	assert.Equal(t, TimeRangeList{{20, 30}}, l.Clamp(15, 35))
	assert.Equal(t, l, l.Clamp(MinTime, MaxTime))
	assert.Nil(t, l.Clamp(30, 20))
}

func TestBoundsAndLimits(t *testing.T) {
	l := TimeRangeList{{0, 10}, {20, 30}}
	assert.Equal(t, TimeRange{0, 30}, l.Bounds())
	assert.Equal(t, TimeRange{0, 30}, l.Limits())
	assert.Equal(t, InvalidTimeRange, TimeRangeList(nil).Limits())
}

func TestAddAndMergeLists(t *testing.T) {
	l := TimeRangeList{{0, 10}}
	l2 := l.Add(TimeRange{5, 15})
	assert.Equal(t, TimeRangeList{{0, 15}}, l2)
	assert.Equal(t, TimeRangeList{{0, 10}}, l, "Add must not modify the receiver")

	merged := MergeLists(TimeRangeList{{0, 10}}, TimeRangeList{{30, 40}}, TimeRangeList{{10, 20}})
	assert.Equal(t, TimeRangeList{{0, 20}, {30, 40}}, merged)
}

func TestFromTimestamps(t *testing.T) {
	got := FromTimestamps([]int64{0, 10, 20, 100, 110}, 15)
	assert.Equal(t, TimeRangeList{{0, 20}, {100, 110}}, got)
	assert.Nil(t, FromTimestamps(nil, 10))
}

func TestParseTimeRange(t *testing.T) {
	tests := []struct {
		input    string
		expected TimeRange
		wantErr  bool
	}{
		{input: "0-100", expected: TimeRange{0, 100}},
		{input: " 5 - 7 ", expected: TimeRange{5, 7}},
		{input: "42", expected: TimeRange{42, 42}},
		{input: "-", expected: TimeRange{MinTime, MaxTime}},
		{input: "-10", expected: TimeRange{MinTime, 10}},
		{input: "10-", expected: TimeRange{10, MaxTime}},
		{input: "", wantErr: true},
		{input: "a-b", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseTimeRange(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)

			back, err := ParseTimeRange(got.String())
			require.NoError(t, err)
			assert.Equal(t, got, back, "String() must parse back")
		})
	}
}

func TestParseTimeRangeList(t *testing.T) {
	l, err := ParseTimeRangeList("0-10, 20-30,")
	require.NoError(t, err)
	assert.Equal(t, TimeRangeList{{0, 10}, {20, 30}}, l)
	assert.Equal(t, "0-10,20-30", l.String())

	_, err = ParseTimeRangeList("0-10,x")
	assert.Error(t, err)
}
