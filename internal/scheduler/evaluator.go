package scheduler

import "sort"

type resourceKey struct {
	Day  string
	Slot int
	ID   string
}

// Evaluate computes (hard_conflicts, soft_penalty, fitness) for a genotype in
// one pass over BlockRequests, memoised by genotype (spec §4.3).
func (rc *RunContext) Evaluate(g Genotype) Evaluation {
	key := genotypeKey(g)
	rc.evalCacheMu.Lock()
	if cached, ok := rc.evalCache[key]; ok {
		rc.evalCacheMu.Unlock()
		return cached
	}
	rc.evalCacheMu.Unlock()

	result := rc.evaluateUncached(g)

	rc.evalCacheMu.Lock()
	rc.evalCache[key] = result
	rc.evalCacheMu.Unlock()
	return result
}

func (rc *RunContext) evaluateUncached(g Genotype) Evaluation {
	hard := 0
	var soft float64
	w := rc.Weights
	snap := rc.Snapshot

	placements := rc.placementWindows(g)

	roomBuckets := make(map[resourceKey][]int)
	facultyBuckets := make(map[resourceKey][]int)
	sectionBuckets := make(map[resourceKey][]int)

	for i, req := range rc.Requests {
		p := placements[i]
		room := snap.Rooms[p.opt.RoomID]
		fac := snap.Faculty[p.opt.FacultyID]

		if room.Capacity < req.StudentCount {
			hard += int(w.RoomCapacity)
		}
		wantLab := req.IsLab
		if wantLab != (room.Kind == RoomLab) {
			hard += int(w.RoomType)
		}
		if !snap.withinSemesterWindow(p.window) {
			hard += int(w.SemesterLimit)
		}
		if roomConflict, facultyConflict := snap.reservedConflictFlags(p.opt.Day, p.window, p.opt.RoomID, p.opt.FacultyID); roomConflict || facultyConflict {
			if roomConflict {
				hard += int(w.RoomConflict)
			}
			if facultyConflict {
				hard += int(w.FacultyConflict)
			}
		}
		if !fac.allowsDay(p.opt.Day) || !fac.availableOn(p.opt.Day, p.window) {
			hard += int(w.FacultyAvailability)
		}
		if !room.availableOn(p.opt.Day, p.window) {
			hard += int(w.RoomType)
		}

		for slot := p.startIdx; slot < p.startIdx+req.BlockSize; slot++ {
			roomBuckets[resourceKey{p.opt.Day, slot, p.opt.RoomID}] = append(roomBuckets[resourceKey{p.opt.Day, slot, p.opt.RoomID}], i)
			facultyBuckets[resourceKey{p.opt.Day, slot, p.opt.FacultyID}] = append(facultyBuckets[resourceKey{p.opt.Day, slot, p.opt.FacultyID}], i)
			sectionBuckets[resourceKey{p.opt.Day, slot, req.Section}] = append(sectionBuckets[resourceKey{p.opt.Day, slot, req.Section}], i)
		}

		if !req.PreferredFacultyIDs[p.opt.FacultyID] {
			soft += w.FacultySubjectPreference * float64(req.BlockSize)
		} else if req.PrimaryFacultyID != "" && p.opt.FacultyID != req.PrimaryFacultyID {
			soft += 0.5 * w.FacultySubjectPreference * float64(req.BlockSize)
		}
	}

	hard += int(w.RoomConflict) * rc.countCollisionPairs(roomBuckets, placements, collisionRoom)
	hard += int(w.FacultyConflict) * rc.countCollisionPairs(facultyBuckets, placements, collisionFaculty)
	hard += int(w.SectionConflict) * rc.countCollisionPairs(sectionBuckets, placements, collisionSection)

	soft += rc.backToBackPenalty(placements)
	hard += int(w.FacultyConflict) * rc.courseSectionFacultyConsistency(placements)
	hard += int(w.FacultyConflict) * rc.singleFacultyPerCourse(placements)
	hard += rc.electiveSync(placements)
	hard += rc.sharedLectureSync(placements)
	hard += rc.parallelLabSync(placements)
	h, s := rc.semesterRules(placements)
	hard += h
	soft += s
	h, s = rc.workload(placements)
	hard += h
	soft += s
	soft += rc.spread(placements)

	fitness := -(float64(hard)*hardPenaltyScale + soft)
	return Evaluation{HardConflicts: hard, SoftPenalty: soft, Fitness: fitness}
}

type placement struct {
	opt      PlacementOption
	window   TimeWindow
	startIdx int
}

func (rc *RunContext) placementWindows(g Genotype) []placement {
	out := make([]placement, len(rc.Requests))
	for i, req := range rc.Requests {
		idx := g[i]
		if idx < 0 || idx >= len(req.Options) {
			idx = 0
		}
		opt := req.Options[idx]
		w, ok := windowFor(rc.Snapshot.DaySlots[opt.Day], opt.StartIndex, req.BlockSize)
		if !ok {
			w = TimeWindow{}
		}
		out[i] = placement{opt: opt, window: w, startIdx: opt.StartIndex}
	}
	return out
}

type collisionKind int

const (
	collisionRoom collisionKind = iota
	collisionFaculty
	collisionSection
)

// countCollisionPairs counts every unordered pair sharing a (day,slot,resource)
// bucket as one violation, honouring the two documented exceptions (spec §4.3).
// The caller scales the raw pair count by the matching objective weight.
func (rc *RunContext) countCollisionPairs(buckets map[resourceKey][]int, placements []placement, kind collisionKind) int {
	hard := 0
	for key, members := range buckets {
		if key.ID == "" || len(members) < 2 {
			continue
		}
		for a := 0; a < len(members); a++ {
			for b := a + 1; b < len(members); b++ {
				i, j := members[a], members[b]
				if rc.isAllowedOverlap(i, j, placements, kind) {
					continue
				}
				hard++
			}
		}
	}
	return hard
}

func (rc *RunContext) isAllowedOverlap(i, j int, placements []placement, kind collisionKind) bool {
	ri, rj := rc.Requests[i], rc.Requests[j]
	pi, pj := placements[i], placements[j]

	if rc.isSharedLectureOverlap(ri, rj, pi, pj) {
		return true
	}
	return rc.isParallelLabOverlap(ri, rj)
}

func (rc *RunContext) isSharedLectureOverlap(a, b BlockRequest, pa, pb placement) bool {
	if a.IsLab || b.IsLab || a.CourseID != b.CourseID || a.Section == b.Section {
		return false
	}
	if a.Batch != "" || b.Batch != "" {
		return false
	}
	if pa.opt.FacultyID != pb.opt.FacultyID || pa.opt.RoomID != pb.opt.RoomID {
		return false
	}
	if pa.window != pb.window || a.BlockSize != b.BlockSize {
		return false
	}
	for _, g := range rc.Snapshot.SharedGroups {
		if g.CourseID == a.CourseID && g.Sections[a.Section] && g.Sections[b.Section] {
			return true
		}
	}
	return false
}

func (rc *RunContext) isParallelLabOverlap(a, b BlockRequest) bool {
	if !a.IsLab || !b.IsLab || a.CourseID != b.CourseID || a.Section != b.Section {
		return false
	}
	if a.Batch == "" || b.Batch == "" || a.Batch == b.Batch {
		return false
	}
	return a.AllowParallelBatches && b.AllowParallelBatches
}

func (rc *RunContext) backToBackPenalty(placements []placement) float64 {
	type key struct {
		faculty string
		day     string
	}
	byFacultyDay := make(map[key][]int)
	for i, req := range rc.Requests {
		p := placements[i]
		k := key{p.opt.FacultyID, p.opt.Day}
		byFacultyDay[k] = append(byFacultyDay[k], i)
		_ = req
	}
	penalty := 0.0
	unit := rc.Weights.SpreadBalance * 0.75
	if unit < 1 {
		unit = 1
	}
	for _, members := range byFacultyDay {
		for a := 0; a < len(members); a++ {
			for b := a + 1; b < len(members); b++ {
				wa, wb := placements[members[a]].window, placements[members[b]].window
				if wa.End == wb.Start || wb.End == wa.Start {
					penalty += unit
				}
			}
		}
	}
	return penalty
}

func (rc *RunContext) courseSectionFacultyConsistency(placements []placement) int {
	hard := 0
	for _, members := range rc.requestsByCourseSection {
		nonLab := filterNonLab(rc.Requests, members)
		if len(nonLab) < 2 {
			continue
		}
		faculties := make(map[string]int)
		for _, idx := range nonLab {
			faculties[placements[idx].opt.FacultyID]++
		}
		if len(faculties) <= 1 {
			continue
		}
		majority := 0
		for _, c := range faculties {
			if c > majority {
				majority = c
			}
		}
		hard += len(nonLab) - majority
	}
	return hard
}

func filterNonLab(requests []BlockRequest, indices []int) []int {
	var out []int
	for _, i := range indices {
		if !requests[i].IsLab {
			out = append(out, i)
		}
	}
	return out
}

func (rc *RunContext) singleFacultyRequired(courseID string) bool {
	course, ok := rc.Snapshot.Courses[courseID]
	if !ok || course.AssignedFacultyID == "" {
		return false
	}
	fac, ok := rc.Snapshot.Faculty[course.AssignedFacultyID]
	if !ok {
		return false
	}
	minutesNeeded := 0
	period := rc.Snapshot.Policy.PeriodMinutes
	for _, i := range rc.requestsByCourse[courseID] {
		if !rc.Requests[i].IsLab {
			minutesNeeded += rc.Requests[i].BlockSize * period
		}
	}
	return minutesNeeded <= fac.MaxHoursPerWeek*60
}

func (rc *RunContext) singleFacultyPerCourse(placements []placement) int {
	hard := 0
	for courseID, members := range rc.requestsByCourse {
		if !rc.singleFacultyRequired(courseID) {
			continue
		}
		nonLab := filterNonLab(rc.Requests, members)
		if len(nonLab) < 2 {
			continue
		}
		faculties := make(map[string]int)
		for _, idx := range nonLab {
			faculties[placements[idx].opt.FacultyID]++
		}
		if len(faculties) <= 1 {
			continue
		}
		majority := 0
		for _, c := range faculties {
			if c > majority {
				majority = c
			}
		}
		hard += len(nonLab) - majority
	}
	return hard
}

type blockSignature struct {
	day       string
	start     int
	blockSize int
	extra     string
}

func (rc *RunContext) electiveSync(placements []placement) int {
	bySection := make(map[string][]blockSignature)
	for i, req := range rc.Requests {
		if !req.isElective() {
			continue
		}
		if !rc.isInElectiveGroup(req.CourseID) {
			continue
		}
		p := placements[i]
		bySection[req.Section] = append(bySection[req.Section], blockSignature{p.opt.Day, p.startIdx, req.BlockSize, string(req.SessionType)})
	}
	return compareSignatureSets(bySection, rc.Weights.SectionConflict)
}

func (rc *RunContext) isInElectiveGroup(courseID string) bool {
	for _, g := range rc.Snapshot.ElectiveGroups {
		if g.Courses[courseID] {
			return true
		}
	}
	return false
}

func (rc *RunContext) sharedLectureSync(placements []placement) int {
	hard := 0
	for _, group := range rc.Snapshot.SharedGroups {
		bySection := make(map[string][]blockSignature)
		for i, req := range rc.Requests {
			if req.CourseID != group.CourseID || !group.Sections[req.Section] || req.IsLab {
				continue
			}
			p := placements[i]
			bySection[req.Section] = append(bySection[req.Section], blockSignature{p.opt.Day, p.startIdx, req.BlockSize, p.opt.RoomID + "|" + p.opt.FacultyID})
		}
		hard += compareSignatureSets(bySection, rc.Weights.SectionConflict)
	}
	return hard
}

func (rc *RunContext) parallelLabSync(placements []placement) int {
	hard := 0
	type groupKey struct {
		course, section string
	}
	groups := make(map[groupKey][]int)
	for i, req := range rc.Requests {
		if !req.IsLab || !req.AllowParallelBatches || req.Batch == "" {
			continue
		}
		groups[groupKey{req.CourseID, req.Section}] = append(groups[groupKey{req.CourseID, req.Section}], i)
	}
	for _, members := range groups {
		byBatch := make(map[string][]blockSignature)
		for _, i := range members {
			req := rc.Requests[i]
			p := placements[i]
			byBatch[req.Batch] = append(byBatch[req.Batch], blockSignature{p.opt.Day, p.startIdx, req.BlockSize, ""})
		}
		hard += compareSignatureSets(byBatch, rc.Weights.SectionConflict)
	}
	return hard
}

// compareSignatureSets penalises symmetric-difference size between the
// multi-sets of every group member vs. the first (baseline) group, only when
// the comparable counts match (spec: "only when the multi-sets have the same size").
func compareSignatureSets(groups map[string][]blockSignature, weight float64) int {
	if len(groups) < 2 {
		return 0
	}
	var keys []string
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	baseline := groups[keys[0]]
	hard := 0
	for _, k := range keys[1:] {
		members := groups[k]
		if len(members) != len(baseline) {
			continue
		}
		diff := symmetricDifference(baseline, members)
		if diff == 0 {
			continue
		}
		hard += int(weight) * diff
	}
	return hard
}

func symmetricDifference(a, b []blockSignature) int {
	counts := make(map[blockSignature]int)
	for _, s := range a {
		counts[s]++
	}
	for _, s := range b {
		counts[s]--
	}
	diff := 0
	for _, c := range counts {
		if c < 0 {
			c = -c
		}
		diff += c
	}
	return diff
}

func (rc *RunContext) semesterRules(placements []placement) (int, float64) {
	c := rc.Snapshot.Constraint
	period := rc.Snapshot.Policy.PeriodMinutes
	limitWeight := int(rc.Weights.SemesterLimit)

	type sectionDay struct {
		section string
		day     string
	}
	minutesByDay := make(map[sectionDay]int)
	slotsByDay := make(map[sectionDay][]int)
	minutesBySection := make(map[string]int)

	for i, req := range rc.Requests {
		p := placements[i]
		sd := sectionDay{req.Section, p.opt.Day}
		minutes := req.BlockSize * period
		minutesByDay[sd] += minutes
		minutesBySection[req.Section] += minutes
		for s := p.startIdx; s < p.startIdx+req.BlockSize; s++ {
			slotsByDay[sd] = append(slotsByDay[sd], s)
		}
	}

	hard := 0
	soft := 0.0

	if c.MaxPerDayMinutes > 0 {
		for _, m := range minutesByDay {
			if m > c.MaxPerDayMinutes {
				hard += limitWeight * periods(m-c.MaxPerDayMinutes, period)
			}
		}
	}
	if c.MaxPerWeekMinutes > 0 {
		for _, m := range minutesBySection {
			if m > c.MaxPerWeekMinutes {
				hard += limitWeight * periods(m-c.MaxPerWeekMinutes, period)
			}
		}
	}
	if c.MaxConsecutiveMin > 0 {
		maxConsecutivePeriods := c.MaxConsecutiveMin / period
		for _, slots := range slotsByDay {
			run := longestRun(slots)
			if run > maxConsecutivePeriods {
				hard += limitWeight * (run - maxConsecutivePeriods)
			}
		}
	}
	if c.MinBreakMinutes > 0 {
		minGapPeriods := (c.MinBreakMinutes + period - 1) / period
		for _, slots := range slotsByDay {
			hard += limitWeight * shortGapViolations(slots, minGapPeriods)
		}
	}
	expected := rc.expectedSectionMinutes()
	for section, minutes := range minutesBySection {
		exp, ok := expected[section]
		if !ok {
			continue
		}
		if minutes != exp {
			hard += limitWeight * (absInt(minutes-exp) / max1(period))
		}
	}

	return hard, soft
}

// expectedSectionMinutes sums each program course's hours_per_week for every
// section of its program/term, giving the weekly-minutes target spec §4.3
// checks each section's placed minutes against.
func (rc *RunContext) expectedSectionMinutes() map[string]int {
	out := make(map[string]int)
	period := rc.Snapshot.Policy.PeriodMinutes
	for _, pc := range rc.Snapshot.ProgramCourses {
		course, ok := rc.Snapshot.Courses[pc.CourseID]
		if !ok {
			continue
		}
		for _, s := range rc.Snapshot.Sections {
			if s.Program == pc.Program && s.TermNumber == pc.TermNumber {
				out[s.Name] += course.HoursPerWeek * period
			}
		}
	}
	return out
}

func (rc *RunContext) workload(placements []placement) (int, float64) {
	period := rc.Snapshot.Policy.PeriodMinutes
	minutesByFaculty := make(map[string]int)
	for i, req := range rc.Requests {
		p := placements[i]
		minutesByFaculty[p.opt.FacultyID] += req.BlockSize * period
	}
	hard := 0
	soft := 0.0
	for facultyID, minutes := range minutesByFaculty {
		fac, ok := rc.Snapshot.Faculty[facultyID]
		if !ok {
			continue
		}
		capMinutes := fac.MaxHoursPerWeek * 60
		if capMinutes > 0 && minutes > capMinutes {
			hard += int(rc.Weights.WorkloadOverflow) * periods(minutes-capMinutes, period)
		}
		targetMinutes := fac.WorkloadTargetHours * 60
		if targetMinutes > minutes {
			soft += float64(targetMinutes-minutes) * rc.Weights.WorkloadUnderflow
		}
	}
	return hard, soft
}

func (rc *RunContext) spread(placements []placement) float64 {
	bySection := make(map[string]map[string]int)
	for i, req := range rc.Requests {
		p := placements[i]
		if bySection[req.Section] == nil {
			bySection[req.Section] = make(map[string]int)
		}
		bySection[req.Section][p.opt.Day] += req.BlockSize
	}
	total := 0.0
	for _, days := range bySection {
		minV, maxV := -1, -1
		for _, v := range days {
			if minV == -1 || v < minV {
				minV = v
			}
			if v > maxV {
				maxV = v
			}
		}
		if minV >= 0 {
			total += float64(maxV-minV) * rc.Weights.SpreadBalance
		}
	}
	return total
}

// ConflictedRequests returns the block indices participating in any hard
// violation (spec §4.4): a lighter routine used by repair to target blocks.
func (rc *RunContext) ConflictedRequests(g Genotype) map[int]bool {
	placements := rc.placementWindows(g)
	conflicted := make(map[int]bool)
	snap := rc.Snapshot

	roomBuckets := make(map[resourceKey][]int)
	facultyBuckets := make(map[resourceKey][]int)
	sectionBuckets := make(map[resourceKey][]int)

	for i, req := range rc.Requests {
		p := placements[i]
		room := snap.Rooms[p.opt.RoomID]
		fac := snap.Faculty[p.opt.FacultyID]

		if room.Capacity < req.StudentCount ||
			req.IsLab != (room.Kind == RoomLab) ||
			!snap.withinSemesterWindow(p.window) ||
			snap.reservedConflict(p.opt.Day, p.window, p.opt.RoomID, p.opt.FacultyID) ||
			!fac.allowsDay(p.opt.Day) || !fac.availableOn(p.opt.Day, p.window) ||
			!room.availableOn(p.opt.Day, p.window) {
			conflicted[i] = true
		}
		for slot := p.startIdx; slot < p.startIdx+req.BlockSize; slot++ {
			roomBuckets[resourceKey{p.opt.Day, slot, p.opt.RoomID}] = append(roomBuckets[resourceKey{p.opt.Day, slot, p.opt.RoomID}], i)
			facultyBuckets[resourceKey{p.opt.Day, slot, p.opt.FacultyID}] = append(facultyBuckets[resourceKey{p.opt.Day, slot, p.opt.FacultyID}], i)
			sectionBuckets[resourceKey{p.opt.Day, slot, req.Section}] = append(sectionBuckets[resourceKey{p.opt.Day, slot, req.Section}], i)
		}
	}
	markCollisions := func(buckets map[resourceKey][]int, kind collisionKind) {
		for key, members := range buckets {
			if key.ID == "" || len(members) < 2 {
				continue
			}
			for a := 0; a < len(members); a++ {
				for b := a + 1; b < len(members); b++ {
					i, j := members[a], members[b]
					if rc.isAllowedOverlap(i, j, placements, kind) {
						continue
					}
					conflicted[i] = true
					conflicted[j] = true
				}
			}
		}
	}
	markCollisions(roomBuckets, collisionRoom)
	markCollisions(facultyBuckets, collisionFaculty)
	markCollisions(sectionBuckets, collisionSection)

	for _, members := range rc.requestsByCourseSection {
		nonLab := filterNonLab(rc.Requests, members)
		if len(nonLab) < 2 {
			continue
		}
		seen := map[string]bool{}
		mismatch := false
		for _, idx := range nonLab {
			seen[placements[idx].opt.FacultyID] = true
			if len(seen) > 1 {
				mismatch = true
			}
		}
		if mismatch {
			for _, idx := range nonLab {
				conflicted[idx] = true
			}
		}
	}
	return conflicted
}

func periods(overMinutes, period int) int {
	if period <= 0 {
		return overMinutes
	}
	return (overMinutes + period - 1) / period
}

func longestRun(slots []int) int {
	if len(slots) == 0 {
		return 0
	}
	sorted := append([]int(nil), slots...)
	sort.Ints(sorted)
	longest, run := 1, 1
	for i := 1; i < len(sorted); i++ {
		if sorted[i] == sorted[i-1]+1 {
			run++
		} else if sorted[i] != sorted[i-1] {
			run = 1
		}
		if run > longest {
			longest = run
		}
	}
	return longest
}

func shortGapViolations(slots []int, minGapPeriods int) int {
	if len(slots) < 2 {
		return 0
	}
	sorted := append([]int(nil), slots...)
	sort.Ints(sorted)
	violations := 0
	for i := 1; i < len(sorted); i++ {
		gap := sorted[i] - sorted[i-1]
		if gap > 1 && gap-1 < minGapPeriods {
			violations++
		}
	}
	return violations
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func max1(v int) int {
	if v <= 0 {
		return 1
	}
	return v
}
