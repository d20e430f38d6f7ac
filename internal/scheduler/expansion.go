package scheduler

import (
	"fmt"
	"sort"
)

const (
	maxOptionsPerRequest       = 640
	labFacultyCandidateCap     = 24
	lectureFacultyCandidateCap = 32
	labRoomCandidateCap        = 14
	lectureRoomCandidateCap    = 28
)

// Expander turns a Snapshot's program courses and sections into the ordered
// list of BlockRequests the rest of the solver consumes (spec §4.2).
type Expander struct {
	snap *Snapshot
	seed int64
}

// NewExpander constructs an Expander bound to one immutable snapshot.
func NewExpander(snap *Snapshot, seed int64) *Expander {
	return &Expander{snap: snap, seed: seed}
}

// Expand validates capacity invariants and enumerates every BlockRequest with
// its feasible PlacementOptions, failing fast per spec §4.2's listed error
// conditions.
func (e *Expander) Expand() ([]BlockRequest, error) {
	if err := e.validateHourSplits(); err != nil {
		return nil, err
	}
	if err := e.validateLabFits(); err != nil {
		return nil, err
	}
	if err := e.validateFacultyCapacity(); err != nil {
		return nil, err
	}
	if err := e.validateSectionTimeCapacity(); err != nil {
		return nil, err
	}

	var requests []BlockRequest
	nextID := 0
	for _, pc := range e.snap.ProgramCourses {
		course, ok := e.snap.Courses[pc.CourseID]
		if !ok {
			return nil, newError(KindConfigurationInvalid, "program course references unknown course %s", pc.CourseID)
		}
		for _, section := range e.sectionsFor(pc) {
			built, err := e.expandOne(pc, course, section, &nextID)
			if err != nil {
				return nil, err
			}
			requests = append(requests, built...)
		}
	}
	for i := range requests {
		if len(requests[i].Options) == 0 {
			return nil, newError(KindInfeasiblePlacement,
				"block %d (%s/%s) has zero feasible placement options even after relaxed fallback",
				requests[i].ID, requests[i].CourseCode, requests[i].Section)
		}
	}
	return requests, nil
}

func (e *Expander) sectionsFor(pc ProgramCourse) []ProgramSection {
	var out []ProgramSection
	for _, s := range e.snap.Sections {
		if s.Program == pc.Program && s.TermNumber == pc.TermNumber {
			out = append(out, s)
		}
	}
	return out
}

func (e *Expander) expandOne(pc ProgramCourse, course Course, section ProgramSection, nextID *int) ([]BlockRequest, error) {
	var out []BlockRequest

	emit := func(sessionType SessionType, blockSize int, batch string, studentCount int) error {
		facultyCandidates := e.facultyCandidatesFor(course)
		roomCandidates := e.roomCandidatesFor(course, studentCount)
		options := e.enumerateOptions(pc, course, section, sessionType, blockSize, batch, facultyCandidates, roomCandidates)

		req := BlockRequest{
			ID:                   *nextID,
			CourseID:             course.ID,
			CourseCode:           course.Code,
			Section:              section.Name,
			Batch:                batch,
			StudentCount:         studentCount,
			BlockSize:            blockSize,
			SessionType:          sessionType,
			IsLab:                sessionType == SessionLab,
			AllowParallelBatches: pc.AllowParallelBatches,
			PrimaryFacultyID:     course.AssignedFacultyID,
			PreferredFacultyIDs:  preferredSet(facultyCandidates, course.Code, e.snap),
			Options:              options,
		}
		*nextID++
		out = append(out, req)
		return nil
	}

	for i := 0; i < course.TheoryHours; i++ {
		if err := emit(SessionTheory, 1, "", section.Capacity); err != nil {
			return nil, err
		}
	}
	for i := 0; i < course.TutorialHours; i++ {
		if err := emit(SessionTutorial, 1, "", section.Capacity); err != nil {
			return nil, err
		}
	}
	if course.LabHours > 0 {
		contiguous := course.LabContiguous
		if contiguous <= 0 {
			contiguous = 2
		}
		blocksPerBatch := course.LabHours / contiguous
		batchCount := pc.LabBatchCount
		if batchCount <= 0 {
			batchCount = 1
		}
		batchStudents := (section.Capacity + batchCount - 1) / batchCount
		for b := 0; b < batchCount; b++ {
			batchName := fmt.Sprintf("B%d", b+1)
			for i := 0; i < blocksPerBatch; i++ {
				if err := emit(SessionLab, contiguous, batchName, batchStudents); err != nil {
					return nil, err
				}
			}
		}
	}
	return out, nil
}

func preferredSet(ids []string, courseCode string, snap *Snapshot) map[string]bool {
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		f := snap.Faculty[id]
		if f.prefersSubject(0, courseCode) {
			out[id] = true
		}
	}
	return out
}

// facultyCandidatesFor ranks candidates per spec §4.2 step 3.
func (e *Expander) facultyCandidatesFor(course Course) []string {
	cap := lectureFacultyCandidateCap
	if course.Kind == CourseLab {
		cap = labFacultyCandidateCap
	}

	var declared []string
	if course.AssignedFacultyID != "" {
		if _, ok := e.snap.Faculty[course.AssignedFacultyID]; ok {
			declared = append(declared, course.AssignedFacultyID)
		}
	}

	type scored struct {
		id    string
		score int // 0 = declared, 1 = preferred, 2 = other
		key   string
	}
	var rest []scored
	for id, f := range e.snap.Faculty {
		if id == course.AssignedFacultyID {
			continue
		}
		score := 2
		if f.prefersSubject(0, course.Code) {
			score = 1
		}
		rest = append(rest, scored{id: id, score: score, key: facultyTieBreakKey(e.seed, course.Code, id)})
	}
	sort.Slice(rest, func(i, j int) bool {
		if rest[i].score != rest[j].score {
			return rest[i].score < rest[j].score
		}
		return rest[i].key < rest[j].key
	})

	out := declared
	for _, r := range rest {
		if len(out) >= cap {
			break
		}
		out = append(out, r.id)
	}
	return out
}

// roomCandidatesFor ranks candidates per spec §4.2 step 4.
func (e *Expander) roomCandidatesFor(course Course, studentCount int) []string {
	capBound := lectureRoomCandidateCap
	wantKind := func(k RoomKind) bool { return k != RoomLab }
	if course.Kind == CourseLab {
		capBound = labRoomCandidateCap
		wantKind = func(k RoomKind) bool { return k == RoomLab }
	}

	type scored struct {
		id    string
		fits  bool
		waste int
		name  string
	}
	var candidates []scored
	for id, r := range e.snap.Rooms {
		if !wantKind(r.Kind) {
			continue
		}
		if r.Capacity < studentCount {
			continue
		}
		candidates = append(candidates, scored{id: id, fits: true, waste: r.Capacity - studentCount, name: r.Name})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].waste != candidates[j].waste {
			return candidates[i].waste < candidates[j].waste
		}
		return candidates[i].name < candidates[j].name
	})
	out := make([]string, 0, capBound)
	for _, c := range candidates {
		if len(out) >= capBound {
			break
		}
		out = append(out, c.id)
	}
	return out
}

type enumTier int

const (
	tierStrict enumTier = iota
	tierRelaxWindows
	tierRelaxAll
)

// enumerateOptions builds PlacementOptions with the two-tier relaxation fallback (spec §4.2 step 6).
func (e *Expander) enumerateOptions(pc ProgramCourse, course Course, section ProgramSection, sessionType SessionType, blockSize int, batch string, facultyCandidates, roomCandidates []string) []PlacementOption {
	for tier := tierStrict; tier <= tierRelaxAll; tier++ {
		opts := e.enumerateTier(pc, course, section, sessionType, blockSize, facultyCandidates, roomCandidates, tier)
		if len(opts) > 0 {
			return opts
		}
	}
	return nil
}

func (e *Expander) enumerateTier(pc ProgramCourse, course Course, section ProgramSection, sessionType SessionType, blockSize int, facultyCandidates, roomCandidates []string, tier enumTier) []PlacementOption {
	var options []PlacementOption
	perDayCap := 120
	perDayStartCap := 48

	for _, day := range WorkingDays {
		slots, ok := e.snap.DaySlots[day]
		if !ok {
			continue
		}
		dayCount := 0
		for start := 0; start+blockSize <= len(slots); start++ {
			w, ok := windowFor(slots, start, blockSize)
			if !ok {
				continue
			}
			if tier < tierRelaxAll && !e.snap.withinSemesterWindow(w) {
				continue
			}
			startCount := 0
			for _, roomID := range roomCandidates {
				room := e.snap.Rooms[roomID]
				if tier < tierRelaxWindows && !room.availableOn(day, w) {
					continue
				}
				for _, facultyID := range facultyCandidates {
					fac := e.snap.Faculty[facultyID]
					if tier < tierRelaxAll && !fac.allowsDay(day) {
						continue
					}
					if tier < tierRelaxWindows && !fac.availableOn(day, w) {
						continue
					}
					if tier < tierRelaxWindows && e.snap.reservedConflict(day, w, roomID, facultyID) {
						continue
					}
					options = append(options, PlacementOption{Day: day, StartIndex: start, RoomID: roomID, FacultyID: facultyID})
					startCount++
					if startCount >= 8 {
						break
					}
				}
				if startCount >= 8 {
					break
				}
			}
			if startCount > 0 {
				dayCount += startCount
			}
			if dayCount >= perDayCap || len(options) >= maxOptionsPerRequest {
				break
			}
			_ = perDayStartCap
		}
		if len(options) >= maxOptionsPerRequest {
			break
		}
	}
	if len(options) > maxOptionsPerRequest {
		options = options[:maxOptionsPerRequest]
	}
	return options
}

// --- fail-fast validations (spec §4.2 final paragraph) ---

func (e *Expander) validateHourSplits() error {
	for _, c := range e.snap.Courses {
		if err := c.validateHourSplit(); err != nil {
			return wrapError(KindConfigurationInvalid, err, "weekly-hour split inconsistent with credits")
		}
	}
	return nil
}

func (e *Expander) validateLabFits() error {
	longest := LongestTeachingSegment(e.snap.DaySlots)
	for _, c := range e.snap.Courses {
		if c.Kind != CourseLab || c.LabContiguous <= 0 {
			continue
		}
		if c.LabContiguous > longest {
			return newError(KindConfigurationInvalid,
				"course %s: lab block size %d exceeds the longest teaching segment (%d periods)",
				c.Code, c.LabContiguous, longest)
		}
	}
	return nil
}

func (e *Expander) validateFacultyCapacity() error {
	period := e.snap.Policy.PeriodMinutes
	totalFacultyMinutes := 0
	for _, f := range e.snap.Faculty {
		totalFacultyMinutes += f.MaxHoursPerWeek * 60
	}
	totalDemandMinutes := 0
	for _, pc := range e.snap.ProgramCourses {
		course, ok := e.snap.Courses[pc.CourseID]
		if !ok {
			continue
		}
		sections := e.sectionsFor(pc)
		totalDemandMinutes += course.HoursPerWeek * period * len(sections)
	}
	if totalDemandMinutes > totalFacultyMinutes {
		return newError(KindConfigurationInvalid,
			"total faculty capacity (%d minutes) is less than total demand (%d minutes)",
			totalFacultyMinutes, totalDemandMinutes)
	}
	return nil
}

func (e *Expander) validateSectionTimeCapacity() error {
	totalWeeklySlots := 0
	for _, slots := range e.snap.DaySlots {
		totalWeeklySlots += len(slots)
	}
	period := e.snap.Policy.PeriodMinutes
	weeklyMinutesAvailable := totalWeeklySlots * period
	for _, pc := range e.snap.ProgramCourses {
		course, ok := e.snap.Courses[pc.CourseID]
		if !ok {
			continue
		}
		needed := course.HoursPerWeek * period
		if needed > weeklyMinutesAvailable {
			return newError(KindConfigurationInvalid,
				"course %s needs %d weekly minutes but only %d are available across working days",
				course.Code, needed, weeklyMinutesAvailable)
		}
	}
	return nil
}
