package utils

// Range is a half-open interval [From, To) of work items.
type Range struct {
	From int
	To   int
}

// Size returns the number of items in the range.
func (r Range) Size() int {
	return r.To - r.From
}

// GroupRanges splits totalSize work items into contiguous groups. Every group gets
// floor(totalSize/groups) items and the remainder is appended to the last group, so the ranges
// cover [0, totalSize) exactly once. The number of groups is clamped to totalSize so that no
// group is empty.
func GroupRanges(totalSize, groups int) []Range {
	if totalSize <= 0 {
		return nil
	}
	if groups <= 0 {
		groups = 1
	}
	if groups > totalSize {
		groups = totalSize
	}
	groupSize := totalSize / groups
	extra := totalSize % groups

	ranges := make([]Range, 0, groups)
	for groupNum := 0; groupNum < groups; groupNum++ {
		from := groupSize * groupNum
		to := groupSize * (groupNum + 1)
		if groupNum == groups-1 {
			to += extra
		}
		ranges = append(ranges, Range{From: from, To: to})
	}
	return ranges
}
