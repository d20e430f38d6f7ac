package scheduler

import "fmt"

// Verifier re-validates a decoded payload independent of any genotype or
// eval_cache: the publish gate of record (spec §4.10). It must be strictly
// stricter than the driver's internal notion of hard conflict, so persistence
// is refused unless the payload the solver produced, or a human edit
// replacing it, passes every check here.
type Verifier struct {
	snap *Snapshot
}

// NewVerifier binds a Verifier to one immutable snapshot.
func NewVerifier(snap *Snapshot) *Verifier {
	return &Verifier{snap: snap}
}

// Verify returns the first violated rule as a KindVerifierRejection error, or
// nil if the payload may be published. force=true skips the extra checks
// beyond the full hard-constraint set (spec §4.10 "A force=true flag...").
func (v *Verifier) Verify(p Payload, force bool) error {
	if err := v.hardConstraints(p); err != nil {
		return err
	}
	if force {
		return nil
	}
	checks := []func(Payload) error{
		v.alignment,
		v.breakOverlap,
		v.scheduledDuration,
		v.labContiguity,
		v.singleFacultyPerCourseSection,
		v.creditCoverage,
		v.prerequisites,
		v.sharedLectureMatch,
		v.electiveNoOverlap,
		v.facultyPreferences,
	}
	for _, check := range checks {
		if err := check(p); err != nil {
			return err
		}
	}
	return nil
}

// hardConstraints re-runs the §4.3 per-slot hard checks directly against the
// payload, independent of the evaluator's genotype-keyed cache.
func (v *Verifier) hardConstraints(p Payload) error {
	type key struct {
		day  string
		slot int
		id   string
	}
	roomBuckets := make(map[key][]PlacedSlot)
	facultyBuckets := make(map[key][]PlacedSlot)
	sectionBuckets := make(map[key][]PlacedSlot)

	for _, s := range p.Slots {
		room, ok := v.snap.Rooms[s.RoomID]
		if !ok {
			return newError(KindVerifierRejection, "slot %s references unknown room %s", s.ID, s.RoomID)
		}
		if room.Capacity < s.StudentCount {
			return newError(KindVerifierRejection, "slot %s: room %s capacity %d below student count %d", s.ID, room.Name, room.Capacity, s.StudentCount)
		}
		isLab := s.SessionType == SessionLab
		if isLab != (room.Kind == RoomLab) {
			return newError(KindVerifierRejection, "slot %s: room type mismatch for session %s", s.ID, s.SessionType)
		}
		fac, ok := v.snap.Faculty[s.FacultyID]
		if !ok {
			return newError(KindVerifierRejection, "slot %s references unknown faculty %s", s.ID, s.FacultyID)
		}
		w, ok := parseWindow(s.StartTime, s.EndTime)
		if !ok {
			return newError(KindVerifierRejection, "slot %s has an unparsable time window", s.ID)
		}
		if !fac.allowsDay(s.Day) || !fac.availableOn(s.Day, w) {
			return newError(KindVerifierRejection, "slot %s: faculty %s not available %s %s-%s", s.ID, fac.Name, s.Day, s.StartTime, s.EndTime)
		}
		if !room.availableOn(s.Day, w) {
			return newError(KindVerifierRejection, "slot %s: room %s not available %s %s-%s", s.ID, room.Name, s.Day, s.StartTime, s.EndTime)
		}
		if !v.snap.withinSemesterWindow(w) {
			return newError(KindVerifierRejection, "slot %s falls outside the semester window", s.ID)
		}
		for slot := s.StartIndex; slot < s.StartIndex+s.BlockSize; slot++ {
			roomBuckets[key{s.Day, slot, s.RoomID}] = append(roomBuckets[key{s.Day, slot, s.RoomID}], s)
			facultyBuckets[key{s.Day, slot, s.FacultyID}] = append(facultyBuckets[key{s.Day, slot, s.FacultyID}], s)
			sectionBuckets[key{s.Day, slot, s.Section}] = append(sectionBuckets[key{s.Day, slot, s.Section}], s)
		}
	}

	for k, members := range roomBuckets {
		if len(members) < 2 {
			continue
		}
		if !allSharedLecture(members) {
			return newError(KindVerifierRejection, "room %s double-booked on %s", k.id, k.day)
		}
	}
	for k, members := range facultyBuckets {
		if len(members) < 2 {
			continue
		}
		if !allSharedLecture(members) {
			return newError(KindVerifierRejection, "faculty %s double-booked on %s", k.id, k.day)
		}
	}
	for k, members := range sectionBuckets {
		if len(members) < 2 {
			continue
		}
		if allParallelLab(members) || allSharedLecture(members) {
			continue
		}
		return newError(KindVerifierRejection, "section %s double-booked on %s", k.id, k.day)
	}
	return nil
}

func allSharedLecture(members []PlacedSlot) bool {
	first := members[0]
	for _, m := range members[1:] {
		if m.CourseID != first.CourseID || m.Section == first.Section || m.SessionType == SessionLab {
			return false
		}
		if m.RoomID != first.RoomID || m.FacultyID != first.FacultyID || m.StartTime != first.StartTime || m.EndTime != first.EndTime {
			return false
		}
	}
	return true
}

func allParallelLab(members []PlacedSlot) bool {
	first := members[0]
	if first.SessionType != SessionLab || first.Batch == "" {
		return false
	}
	seenBatch := map[string]bool{first.Batch: true}
	for _, m := range members[1:] {
		if m.CourseID != first.CourseID || m.Section != first.Section || m.SessionType != SessionLab || m.Batch == "" {
			return false
		}
		if seenBatch[m.Batch] {
			return false
		}
		seenBatch[m.Batch] = true
	}
	return true
}

// alignment checks working-day/working-hour/period-alignment (spec §8 property 1).
func (v *Verifier) alignment(p Payload) error {
	for _, s := range p.Slots {
		slots, ok := v.snap.DaySlots[s.Day]
		if !ok || len(slots) == 0 {
			return newError(KindVerifierRejection, "slot %s: %s is not a configured working day", s.ID, s.Day)
		}
		w, ok := parseWindow(s.StartTime, s.EndTime)
		if !ok || !windowAligned(slots, w) {
			return newError(KindVerifierRejection, "slot %s: %s-%s does not align to the configured period grid", s.ID, s.StartTime, s.EndTime)
		}
	}
	return nil
}

func windowAligned(slots []SlotSegment, w TimeWindow) bool {
	for i := range slots {
		if slots[i].Start != w.Start {
			continue
		}
		end := slots[i].Start
		for j := i; j < len(slots) && end < w.End; j++ {
			end = slots[j].End
		}
		return end == w.End
	}
	return false
}

// breakOverlap rejects any slot window overlapping a configured break (spec §8 property 1).
func (v *Verifier) breakOverlap(p Payload) error {
	for _, entry := range v.snap.Policy.Days {
		for _, s := range p.Slots {
			if s.Day != entry.Day {
				continue
			}
			w, ok := parseWindow(s.StartTime, s.EndTime)
			if !ok {
				continue
			}
			for _, b := range entry.Breaks {
				if w.overlaps(TimeWindow{Start: b.Start, End: b.End}) {
					return newError(KindVerifierRejection, "slot %s overlaps the %s window", s.ID, b.Name)
				}
			}
		}
	}
	return nil
}

// scheduledDuration checks Σminutes == hours_per_week·P per (course, section)
// for courses without lab hours; courses with lab hours are skipped here (spec §8 property 2).
func (v *Verifier) scheduledDuration(p Payload) error {
	period := v.snap.Policy.PeriodMinutes
	type key struct{ course, section, batch string }
	minutes := make(map[key]int)
	for _, s := range p.Slots {
		k := key{s.CourseID, s.Section, s.Batch}
		minutes[k] += s.BlockSize * period
	}
	for _, pc := range v.snap.ProgramCourses {
		course, ok := v.snap.Courses[pc.CourseID]
		if !ok {
			continue
		}
		for _, sec := range v.snap.Sections {
			if sec.Program != pc.Program || sec.TermNumber != pc.TermNumber {
				continue
			}
			expected := course.HoursPerWeek * period
			if course.LabHours == 0 {
				got := minutes[key{course.ID, sec.Name, ""}]
				if got != expected {
					return newError(KindVerifierRejection, "course %s section %s: scheduled minutes %d != required %d", course.Code, sec.Name, got, expected)
				}
			}
		}
	}
	return nil
}

// labContiguity checks each lab (course,section,batch) is exactly
// lab_h/lab_contiguous_slots contiguous blocks (spec §8 property 2).
func (v *Verifier) labContiguity(p Payload) error {
	type key struct{ course, section, batch string }
	grouped := make(map[key][]PlacedSlot)
	for _, s := range p.Slots {
		if s.SessionType != SessionLab {
			continue
		}
		k := key{s.CourseID, s.Section, s.Batch}
		grouped[k] = append(grouped[k], s)
	}
	for k, members := range grouped {
		course, ok := v.snap.Courses[k.course]
		if !ok || course.LabContiguous <= 0 {
			continue
		}
		expectedBlocks := course.LabHours / course.LabContiguous
		if len(members) != expectedBlocks {
			return newError(KindVerifierRejection, "course %s section %s batch %s: %d lab blocks, expected %d", course.Code, k.section, k.batch, len(members), expectedBlocks)
		}
		for _, m := range members {
			if m.BlockSize != course.LabContiguous {
				return newError(KindVerifierRejection, "course %s section %s batch %s: lab block size %d != %d", course.Code, k.section, k.batch, m.BlockSize, course.LabContiguous)
			}
		}
	}
	return nil
}

// singleFacultyPerCourseSection checks |{faculty}| == 1 for non-lab blocks (spec §8 property 7).
func (v *Verifier) singleFacultyPerCourseSection(p Payload) error {
	type key struct{ course, section string }
	byKey := make(map[key]map[string]bool)
	for _, s := range p.Slots {
		if s.SessionType == SessionLab {
			continue
		}
		k := key{s.CourseID, s.Section}
		if byKey[k] == nil {
			byKey[k] = make(map[string]bool)
		}
		byKey[k][s.FacultyID] = true
	}
	for k, set := range byKey {
		if len(set) > 1 {
			return newError(KindVerifierRejection, "course %s section %s is taught by more than one faculty", k.course, k.section)
		}
	}
	return nil
}

// creditCoverage checks every required course is scheduled, no stray
// courses, and Σcredits equals the term requirement when positive (spec §4.10).
func (v *Verifier) creditCoverage(p Payload) error {
	scheduled := make(map[string]bool)
	for _, s := range p.Slots {
		scheduled[s.CourseID] = true
	}
	byProgram := make(map[string]int)
	for _, pc := range v.snap.ProgramCourses {
		if !pc.IsRequired {
			continue
		}
		if !scheduled[pc.CourseID] {
			course := v.snap.Courses[pc.CourseID]
			return newError(KindVerifierRejection, "required course %s is not scheduled", course.Code)
		}
		course := v.snap.Courses[pc.CourseID]
		byProgram[pc.Program] += course.Credits
	}
	requiredCredits := v.snap.Constraint.RequiredCredits
	if requiredCredits > 0 {
		for program, total := range byProgram {
			if total != requiredCredits {
				return newError(KindVerifierRejection, "program %s: scheduled credits %d != term requirement %d", program, total, requiredCredits)
			}
		}
	}
	return nil
}

// prerequisites checks every prerequisite course is in a strictly earlier
// term of the same program (spec §8 property 6).
func (v *Verifier) prerequisites(p Payload) error {
	termOf := make(map[string]map[string]int) // program -> courseID -> term
	for _, pc := range v.snap.ProgramCourses {
		if termOf[pc.Program] == nil {
			termOf[pc.Program] = make(map[string]int)
		}
		termOf[pc.Program][pc.CourseID] = pc.TermNumber
	}
	for _, pc := range v.snap.ProgramCourses {
		for _, prereqID := range pc.PrerequisiteCourseIDs {
			prereqTerm, ok := termOf[pc.Program][prereqID]
			if !ok || prereqTerm >= pc.TermNumber {
				course := v.snap.Courses[pc.CourseID]
				return newError(KindVerifierRejection, "course %s: prerequisite %s is not in a strictly earlier term", course.Code, prereqID)
			}
		}
	}
	return nil
}

// sharedLectureMatch checks every shared group's sections share the exact
// five-tuple signature (spec §8 property 9).
func (v *Verifier) sharedLectureMatch(p Payload) error {
	for _, group := range v.snap.SharedGroups {
		bySection := make(map[string]map[string]bool)
		for _, s := range p.Slots {
			if s.CourseID != group.CourseID || !group.Sections[s.Section] || s.SessionType == SessionLab {
				continue
			}
			sig := fmt.Sprintf("%s|%s|%s|%s|%d", s.Day, s.StartTime, s.RoomID, s.FacultyID, s.BlockSize)
			if bySection[s.Section] == nil {
				bySection[s.Section] = make(map[string]bool)
			}
			bySection[s.Section][sig] = true
		}
		var baseline map[string]bool
		for _, sigs := range bySection {
			if baseline == nil {
				baseline = sigs
				continue
			}
			if !sameSet(baseline, sigs) {
				course := v.snap.Courses[group.CourseID]
				return newError(KindVerifierRejection, "shared lecture group for %s: sections do not share an identical slot", course.Code)
			}
		}
	}
	return nil
}

func sameSet(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

// electiveNoOverlap checks elective-overlap-group members never share a time
// window for the same section (spec §8 property 8, glossary "elective overlap group").
func (v *Verifier) electiveNoOverlap(p Payload) error {
	for _, group := range v.snap.ElectiveGroups {
		if !group.NoOverlap {
			continue
		}
		bySection := make(map[string][]PlacedSlot)
		for _, s := range p.Slots {
			if !group.Courses[s.CourseID] {
				continue
			}
			bySection[s.Section] = append(bySection[s.Section], s)
		}
		for section, slots := range bySection {
			for i := 0; i < len(slots); i++ {
				wi, _ := parseWindow(slots[i].StartTime, slots[i].EndTime)
				for j := i + 1; j < len(slots); j++ {
					if slots[i].Day != slots[j].Day {
						continue
					}
					wj, _ := parseWindow(slots[j].StartTime, slots[j].EndTime)
					if wi.overlaps(wj) {
						return newError(KindVerifierRejection, "section %s: elective overlap between %s and %s", section, slots[i].CourseCode, slots[j].CourseCode)
					}
				}
			}
		}
	}
	return nil
}

// facultyPreferences checks per-faculty min_break_minutes and
// avoid_back_to_back (spec §4.10).
func (v *Verifier) facultyPreferences(p Payload) error {
	byFacultyDay := make(map[string]map[string][]PlacedSlot)
	for _, s := range p.Slots {
		if byFacultyDay[s.FacultyID] == nil {
			byFacultyDay[s.FacultyID] = make(map[string][]PlacedSlot)
		}
		byFacultyDay[s.FacultyID][s.Day] = append(byFacultyDay[s.FacultyID][s.Day], s)
	}
	for facultyID, byDay := range byFacultyDay {
		fac, ok := v.snap.Faculty[facultyID]
		if !ok {
			continue
		}
		for day, slots := range byDay {
			for i := 0; i < len(slots); i++ {
				wi, _ := parseWindow(slots[i].StartTime, slots[i].EndTime)
				for j := i + 1; j < len(slots); j++ {
					wj, _ := parseWindow(slots[j].StartTime, slots[j].EndTime)
					adjacent := wi.End == wj.Start || wj.End == wi.Start
					if adjacent && fac.AvoidBackToBack {
						return newError(KindVerifierRejection, "faculty %s: back-to-back blocks on %s violate preference", fac.Name, day)
					}
					if fac.MinBreakMinutes > 0 {
						gap := wj.Start - wi.End
						if wi.Start > wj.Start {
							gap = wi.Start - wj.End
						}
						if gap >= 0 && gap < fac.MinBreakMinutes && !adjacent {
							return newError(KindVerifierRejection, "faculty %s: gap on %s shorter than preferred %d minutes", fac.Name, day, fac.MinBreakMinutes)
						}
					}
				}
			}
		}
	}
	return nil
}

func parseWindow(start, end string) (TimeWindow, bool) {
	s, ok1 := parseClock(start)
	e, ok2 := parseClock(end)
	if !ok1 || !ok2 {
		return TimeWindow{}, false
	}
	return TimeWindow{Start: s, End: e}, true
}

func parseClock(hhmm string) (int, bool) {
	if len(hhmm) != 5 || hhmm[2] != ':' {
		return 0, false
	}
	h := int(hhmm[0]-'0')*10 + int(hhmm[1]-'0')
	m := int(hhmm[3]-'0')*10 + int(hhmm[4]-'0')
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}
