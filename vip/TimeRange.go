package vip

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/exp/slices"
)

const (
	// InvalidPosition is the position returned by devices without a notion of position
	InvalidPosition int64 = -math.MaxInt64
	// InvalidTime marks an unknown or undefined time
	InvalidTime int64 = -math.MaxInt64
	// MinTime stands for -infinite
	MinTime int64 = InvalidTime + 1
	// MaxTime stands for +infinite
	MaxTime int64 = math.MaxInt64
)

// Order is the orientation of a time range
type Order int

const (
	Ascending Order = iota
	Descending
)

// TimeRange is a closed interval of nanosecond timestamps.
// Start may be greater than End for descending ranges.
type TimeRange struct {
	Start int64 `json:"start" yaml:"start"`
	End   int64 `json:"end" yaml:"end"`
}

// InvalidTimeRange is returned when no range could be computed
var InvalidTimeRange = TimeRange{InvalidTime, InvalidTime}

// TimeRangeList is a list of time ranges. Lists returned by Normalize are
// sorted ascending and contain no overlapping or touching ranges.
type TimeRangeList []TimeRange

func (r TimeRange) IsValid() bool {
	return r.Start != InvalidTime && r.End != InvalidTime && r.End >= r.Start
}

// Less orders ranges by start, then end.
func (r TimeRange) Less(o TimeRange) bool {
	if r.Start != o.Start {
		return r.Start < o.Start
	}
	return r.End < o.End
}

func compareRanges(a, b TimeRange) int {
	switch {
	case a.Less(b):
		return -1
	case b.Less(a):
		return 1
	}
	return 0
}

// Contains reports whether t lies inside r, whatever the orientation of r.
func (r TimeRange) Contains(t int64) bool {
	if r.Start < r.End {
		return t >= r.Start && t <= r.End
	}
	return t <= r.Start && t >= r.End
}

// Width returns the absolute length of the range
func (r TimeRange) Width() int64 {
	if r.End < r.Start {
		return r.Start - r.End
	}
	return r.End - r.Start
}

// Reorder returns r oriented as requested.
func (r TimeRange) Reorder(order Order) TimeRange {
	if order == Descending {
		if r.Start < r.End {
			return TimeRange{r.End, r.Start}
		}
		return r
	}
	if r.Start > r.End {
		return TimeRange{r.End, r.Start}
	}
	return r
}

// Intersect returns the intersection of two valid ranges, or InvalidTimeRange.
func Intersect(a, b TimeRange) TimeRange {
	if !a.IsValid() || !b.IsValid() {
		return InvalidTimeRange
	}
	if a.End < b.Start || a.Start > b.End {
		return InvalidTimeRange
	}
	return TimeRange{max(a.Start, b.Start), min(a.End, b.End)}
}

// Union returns the smallest range containing both valid ranges.
func Union(a, b TimeRange) TimeRange {
	if !a.IsValid() || !b.IsValid() {
		return InvalidTimeRange
	}
	return TimeRange{min(a.Start, b.Start), max(a.End, b.End)}
}

// Distance returns the distance between t and r, and the closest time of r to t.
func (r TimeRange) Distance(t int64) (dist int64, closest int64) {
	lo, hi := r.Start, r.End
	if lo > hi {
		lo, hi = hi, lo
	}
	switch {
	case t > hi:
		return t - hi, hi
	case t < lo:
		return lo - t, lo
	}
	return 0, t
}

// Merge merges two ranges if they overlap or touch.
func Merge(a, b TimeRange, order Order) (TimeRange, bool) {
	ta, tb := a.Reorder(order), b.Reorder(order)
	if order == Descending {
		if (ta.Start <= tb.Start && ta.Start >= tb.End) || (tb.Start <= ta.Start && tb.Start >= ta.End) {
			return TimeRange{max(ta.Start, tb.Start), min(ta.End, tb.End)}, true
		}
		return InvalidTimeRange, false
	}
	if (ta.Start >= tb.Start && ta.Start <= tb.End) || (tb.Start >= ta.Start && tb.Start <= ta.End) {
		return TimeRange{min(ta.Start, tb.Start), max(ta.End, tb.End)}, true
	}
	return InvalidTimeRange, false
}

// ReplaceMinMaxTime replaces MinTime and MaxTime placeholders by the given bounds.
func (r TimeRange) ReplaceMinMaxTime(minValue, maxValue int64) TimeRange {
	res := r
	switch res.Start {
	case MinTime:
		res.Start = minValue
	case MaxTime:
		res.Start = maxValue
	}
	switch res.End {
	case MinTime:
		res.End = minValue
	case MaxTime:
		res.End = maxValue
	}
	return res
}

func (r TimeRange) String() string {
	if r.Start == InvalidTime || r.End == InvalidTime {
		return ""
	}
	var sb strings.Builder
	if r.Start != MinTime {
		sb.WriteString(strconv.FormatInt(r.Start, 10))
	}
	sb.WriteByte('-')
	if r.End != MaxTime {
		sb.WriteString(strconv.FormatInt(r.End, 10))
	}
	return sb.String()
}

// ParseTimeRange parses "a-b". Missing bounds are MinTime / MaxTime,
// a single value gives a degenerate range.
func ParseTimeRange(s string) (TimeRange, error) {
	s = strings.Join(strings.Fields(s), "")
	if s == "" {
		return InvalidTimeRange, fmt.Errorf("empty time range")
	}
	if s == "-" {
		return TimeRange{MinTime, MaxTime}, nil
	}
	// a leading '-' is either an open start or the sign of the first value
	sep := strings.Index(s[1:], "-")
	if sep < 0 {
		if s[0] == '-' {
			v, err := strconv.ParseInt(s[1:], 10, 64)
			if err != nil {
				return InvalidTimeRange, fmt.Errorf("invalid time range %q: %w", s, err)
			}
			return TimeRange{MinTime, v}, nil
		}
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return InvalidTimeRange, fmt.Errorf("invalid time range %q: %w", s, err)
		}
		return TimeRange{v, v}, nil
	}
	sep++
	r := TimeRange{MinTime, MaxTime}
	if first := s[:sep]; first != "" {
		v, err := strconv.ParseInt(first, 10, 64)
		if err != nil {
			return InvalidTimeRange, fmt.Errorf("invalid time range %q: %w", s, err)
		}
		r.Start = v
	}
	if second := s[sep+1:]; second != "" {
		v, err := strconv.ParseInt(second, 10, 64)
		if err != nil {
			return InvalidTimeRange, fmt.Errorf("invalid time range %q: %w", s, err)
		}
		r.End = v
	}
	return r, nil
}

// ParseTimeRangeList parses a comma separated list of ranges.
func ParseTimeRangeList(s string) (TimeRangeList, error) {
	var res TimeRangeList
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		r, err := ParseTimeRange(part)
		if err != nil {
			return nil, err
		}
		res = append(res, r)
	}
	return res, nil
}

func (l TimeRangeList) String() string {
	parts := make([]string, 0, len(l))
	for _, r := range l {
		if s := r.String(); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ",")
}

// Contains reports whether t is inside one of the ranges
func (l TimeRangeList) Contains(t int64) bool {
	for _, r := range l {
		if r.Contains(t) {
			return true
		}
	}
	return false
}

// Distance returns the distance from t to the closest range, the closest
// time and the index of that range (-1 for an empty list).
func (l TimeRangeList) Distance(t int64) (dist int64, closest int64, index int) {
	dist, closest, index = MaxTime, InvalidTime, -1
	for i, r := range l {
		d, c := r.Distance(t)
		if d == 0 {
			return 0, t, i
		}
		if d < dist {
			dist, closest, index = d, c, i
		}
	}
	return dist, closest, index
}

// Bounds returns the range enclosing every range of the list.
func (l TimeRangeList) Bounds() TimeRange {
	res := InvalidTimeRange
	for _, r := range l {
		if res.Start == InvalidTime {
			res.Start = r.Start
		} else {
			res.Start = min(res.Start, r.Start, r.End)
		}
		if res.End == InvalidTime {
			res.End = r.End
		} else {
			res.End = max(res.End, r.Start, r.End)
		}
	}
	return res
}

// Limits returns the first start and last end of the list, or InvalidTimeRange.
func (l TimeRangeList) Limits() TimeRange {
	if len(l) == 0 {
		return InvalidTimeRange
	}
	return TimeRange{l[0].Start, l[len(l)-1].End}
}

// Reorder sorts the list, removes ranges with invalid ends and optionally
// merges overlapping or touching ranges.
func Reorder(l TimeRangeList, order Order, mergeRanges bool) TimeRangeList {
	if len(l) == 0 {
		return nil
	}
	sorted := make(TimeRangeList, 0, len(l))
	for _, r := range l {
		if r.Start != InvalidTime && r.End != InvalidTime {
			sorted = append(sorted, r.Reorder(Ascending))
		}
	}
	slices.SortFunc(sorted, compareRanges)
	sorted = slices.Compact(sorted)
	if len(sorted) == 0 {
		return nil
	}

	res := sorted
	if mergeRanges {
		res = TimeRangeList{sorted[0]}
		for _, r := range sorted[1:] {
			if merged, ok := Merge(r, res[len(res)-1], Ascending); ok {
				res[len(res)-1] = merged
			} else {
				res = append(res, r)
			}
		}
	}

	if order == Descending {
		desc := make(TimeRangeList, 0, len(res))
		for i := len(res) - 1; i >= 0; i-- {
			desc = append(desc, res[i].Reorder(Descending))
		}
		res = desc
	}
	return res
}

// Normalize returns the ascending merged form of the list
func Normalize(l TimeRangeList) TimeRangeList {
	return Reorder(l, Ascending, true)
}

// Add inserts r into the list and normalizes the result.
func (l TimeRangeList) Add(r TimeRange) TimeRangeList {
	return Normalize(append(slices.Clone(l), r))
}

// MergeLists returns the normalized union of several lists.
func MergeLists(lists ...TimeRangeList) TimeRangeList {
	var all TimeRangeList
	for _, l := range lists {
		all = append(all, l...)
	}
	return Normalize(all)
}

// Clamp restricts an ascending list to [first, last].
func (l TimeRangeList) Clamp(first, last int64) TimeRangeList {
	if last < first {
		return nil
	}
	var res TimeRangeList
	for _, r := range l {
		if first <= r.Start {
			switch {
			case last >= r.End:
				res = append(res, r)
			case last >= r.Start:
				return append(res, TimeRange{r.Start, last})
			default:
				return res
			}
		} else if first <= r.End {
			switch {
			case last >= r.End:
				res = append(res, TimeRange{first, r.End})
			case last >= r.Start:
				return append(res, TimeRange{first, last})
			default:
				return res
			}
		}
	}
	return res
}

// FromTimestamps builds ranges from sorted timestamps, a gap greater than sampling starts a new range.
func FromTimestamps(timestamps []int64, sampling int64) TimeRangeList {
	if len(timestamps) == 0 {
		return nil
	}
	var ranges TimeRangeList
	current := TimeRange{timestamps[0], timestamps[0]}
	for _, t := range timestamps[1:] {
		if t-current.End > sampling {
			ranges = append(ranges, current)
			current = TimeRange{t, t}
		} else {
			current.End = t
		}
	}
	return append(ranges, current)
}
