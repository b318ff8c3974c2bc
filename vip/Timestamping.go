package vip

import (
	"math"

	"golang.org/x/exp/slices"
)

// RangeTransform maps one input range onto one output range.
type RangeTransform struct {
	From TimeRange `json:"from" yaml:"from"`
	To   TimeRange `json:"to" yaml:"to"`
}

// linearTransform maps t to To + (t-From)*Slope. It is anchored on the range
// start so that large epoch timestamps keep their integer precision.
type linearTransform struct {
	From  int64
	To    int64
	Slope float64
}

func (tr linearTransform) apply(t int64) int64 {
	switch tr.Slope {
	case 0:
		return tr.To
	case 1:
		return tr.To + (t - tr.From)
	}
	return tr.To + int64(math.Round(float64(t-tr.From)*tr.Slope))
}

type rangeHelper struct {
	key TimeRange
	tr  linearTransform
}

// TimestampingFilter remaps a device raw time axis onto a visible time axis
// through a list of piecewise linear range transforms. The zero value is an
// empty (identity) filter.
type TimestampingFilter struct {
	transforms []RangeTransform
	valid      []RangeTransform
	input      TimeRangeList
	output     TimeRangeList
	helper     []rangeHelper
	invHelper  []rangeHelper
}

// NewTimestampingFilter creates a filter from the given transforms.
func NewTimestampingFilter(transforms ...RangeTransform) *TimestampingFilter {
	f := &TimestampingFilter{}
	f.SetTransforms(transforms)
	return f
}

// Clone returns a deep copy. A nil filter clones to nil.
func (f *TimestampingFilter) Clone() *TimestampingFilter {
	if f == nil {
		return nil
	}
	res := NewTimestampingFilter(f.transforms...)
	res.SetInputTimeRangeList(f.input)
	return res
}

// IsEmpty reports whether the filter has no transform.
func (f *TimestampingFilter) IsEmpty() bool {
	return f == nil || len(f.transforms) == 0
}

// Reset removes all transforms and the input window.
func (f *TimestampingFilter) Reset() {
	*f = TimestampingFilter{}
}

// Transforms returns the transforms as given by the user.
func (f *TimestampingFilter) Transforms() []RangeTransform {
	if f == nil {
		return nil
	}
	return slices.Clone(f.transforms)
}

// ValidTransforms returns the transforms once MinTime/MaxTime placeholders are replaced.
func (f *TimestampingFilter) ValidTransforms() []RangeTransform {
	if f == nil {
		return nil
	}
	return slices.Clone(f.valid)
}

func (f *TimestampingFilter) InputTimeRangeList() TimeRangeList {
	if f == nil {
		return nil
	}
	return slices.Clone(f.input)
}

// OutputTimeRangeList is the normalized visible window.
func (f *TimestampingFilter) OutputTimeRangeList() TimeRangeList {
	if f == nil {
		return nil
	}
	return slices.Clone(f.output)
}

// SetInputTimeRangeList sets the raw device window and re-applies the transforms.
func (f *TimestampingFilter) SetInputTimeRangeList(l TimeRangeList) {
	f.input = slices.Clone(l)
	if len(f.transforms) > 0 {
		f.SetTransforms(f.transforms)
	}
}

// SetTransforms replaces the transforms. Transforms are kept sorted by input
// range; a later transform with the same input range replaces an earlier one.
func (f *TimestampingFilter) SetTransforms(transforms []RangeTransform) {
	minBound, maxBound := MinTime, MaxTime
	if len(f.input) > 0 {
		minBound = f.input[0].Start
		maxBound = f.input[len(f.input)-1].End
	}

	sorted := make([]RangeTransform, 0, len(transforms))
	for _, tr := range transforms {
		idx := slices.IndexFunc(sorted, func(o RangeTransform) bool { return o.From == tr.From })
		if idx >= 0 {
			sorted[idx] = tr
		} else {
			sorted = append(sorted, tr)
		}
	}
	slices.SortFunc(sorted, func(a, b RangeTransform) int { return compareRanges(a.From, b.From) })

	f.transforms = sorted
	f.valid = make([]RangeTransform, 0, len(sorted))
	f.helper = make([]rangeHelper, 0, len(sorted))
	f.invHelper = make([]rangeHelper, 0, len(sorted))
	var output TimeRangeList

	for _, t := range sorted {
		key := t.From.ReplaceMinMaxTime(minBound, maxBound)
		value := t.To.ReplaceMinMaxTime(minBound, maxBound)
		output = append(output, value)
		f.valid = append(f.valid, RangeTransform{From: key, To: value})
		f.helper = append(f.helper, rangeHelper{key: key, tr: linearFor(key, value)})
		f.invHelper = append(f.invHelper, rangeHelper{key: value, tr: linearFor(value, key)})
	}
	slices.SortFunc(f.invHelper, func(a, b rangeHelper) int { return compareRanges(a.key, b.key) })
	f.output = Normalize(output)
}

// linearFor computes the transform mapping key onto value.
func linearFor(key, value TimeRange) linearTransform {
	if key.Start == key.End {
		if value.Start == value.End {
			// translation
			return linearTransform{From: key.Start, To: value.Start, Slope: 1}
		}
		return linearTransform{From: key.Start, To: value.Start, Slope: 0}
	}
	slope := float64(value.End-value.Start) / float64(key.End-key.Start)
	return linearTransform{From: key.Start, To: value.Start, Slope: slope}
}

func applyClosest(helpers []rangeHelper, t int64) (int64, bool) {
	if len(helpers) == 0 {
		return t, true
	}
	closestTr := helpers[0].tr
	closestTime := MaxTime
	distToClosest := MaxTime
	for _, h := range helpers {
		if h.key.Contains(t) {
			return h.tr.apply(t), true
		}
		if dist, c := h.key.Distance(t); dist < distToClosest {
			closestTr, distToClosest, closestTime = h.tr, dist, c
		}
	}
	return closestTr.apply(closestTime), false
}

// Transform maps a raw time to a visible time. Outside every input range the
// closest range boundary is transformed and inside is false.
func (f *TimestampingFilter) Transform(t int64) (res int64, inside bool) {
	if f == nil {
		return t, true
	}
	return applyClosest(f.helper, t)
}

// InvTransform maps a visible time back to a raw time.
func (f *TimestampingFilter) InvTransform(t int64) (res int64, inside bool) {
	if f == nil {
		return t, true
	}
	return applyClosest(f.invHelper, t)
}
