package scheduler

import "sort"

// BuildDaySlots segments every configured working day into period-aligned
// SlotSegments, skipping break windows, per spec §4.1: a cursor scans from
// day_start; if the next period-length window would overlap a break that
// starts at or after the cursor, the cursor jumps to the break's end instead
// of emitting a slot.
func BuildDaySlots(policy SchedulePolicy) map[string][]SlotSegment {
	out := make(map[string][]SlotSegment, len(policy.Days))
	for _, entry := range policy.Days {
		out[entry.Day] = buildOneDay(entry, policy.PeriodMinutes)
	}
	return out
}

func buildOneDay(entry WorkingHoursEntry, period int) []SlotSegment {
	breaks := append([]BreakWindow(nil), entry.Breaks...)
	sort.Slice(breaks, func(i, j int) bool { return breaks[i].Start < breaks[j].Start })

	var segments []SlotSegment
	cursor := entry.DayStart
	for cursor+period <= entry.DayEnd {
		candidate := TimeWindow{Start: cursor, End: cursor + period}
		if b, hit := overlappingBreak(candidate, breaks); hit {
			if b.Start >= cursor {
				cursor = b.End
				continue
			}
			// cursor already inside a break (shouldn't happen with sane config); skip past it.
			cursor = b.End
			continue
		}
		segments = append(segments, SlotSegment{Start: candidate.Start, End: candidate.End})
		cursor += period
	}
	return segments
}

func overlappingBreak(w TimeWindow, breaks []BreakWindow) (BreakWindow, bool) {
	for _, b := range breaks {
		if w.Start < b.End && b.Start < w.End {
			return b, true
		}
	}
	return BreakWindow{}, false
}

// TeachingSegments groups a day's SlotSegments into maximal abutting runs.
func TeachingSegments(slots []SlotSegment) [][]SlotSegment {
	var runs [][]SlotSegment
	var current []SlotSegment
	for i, s := range slots {
		if i > 0 && slots[i-1].End != s.Start {
			runs = append(runs, current)
			current = nil
		}
		current = append(current, s)
	}
	if len(current) > 0 {
		runs = append(runs, current)
	}
	return runs
}

// LongestTeachingSegment returns the most contiguous periods available on any configured day.
func LongestTeachingSegment(daySlots map[string][]SlotSegment) int {
	longest := 0
	for _, slots := range daySlots {
		for _, run := range TeachingSegments(slots) {
			if len(run) > longest {
				longest = len(run)
			}
		}
	}
	return longest
}

// windowFor returns the aligned [start,end) minute window for a block of blockSize
// contiguous periods starting at startIndex on the given day's slot list.
func windowFor(daySlots []SlotSegment, startIndex, blockSize int) (TimeWindow, bool) {
	if startIndex < 0 || startIndex+blockSize > len(daySlots) {
		return TimeWindow{}, false
	}
	for i := startIndex; i < startIndex+blockSize-1; i++ {
		if daySlots[i].End != daySlots[i+1].Start {
			return TimeWindow{}, false
		}
	}
	return TimeWindow{Start: daySlots[startIndex].Start, End: daySlots[startIndex+blockSize-1].End}, true
}
