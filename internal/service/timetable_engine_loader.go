package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/noah-isme/sma-adp-api/internal/models"
	"github.com/noah-isme/sma-adp-api/internal/scheduler"
)

// timetableRoomReader, timetableTeacherReader etc. narrow the repository
// surface the loader needs, mirroring schedule_generator_service.go's
// per-dependency interfaces.
type timetableRoomReader interface {
	List(ctx context.Context, f models.RoomFilter) ([]models.Room, error)
}

type timetableProgramCourseReader interface {
	ListByProgramTerm(ctx context.Context, program string, term int) ([]models.ProgramCourse, error)
}

type timetableProgramSectionReader interface {
	ListByProgramTerm(ctx context.Context, program string, term int) ([]models.ProgramSection, error)
}

type timetableElectiveGroupReader interface {
	ListByTerm(ctx context.Context, term int) ([]models.ElectiveOverlapGroup, error)
}

type timetableSharedGroupReader interface {
	ListByTerm(ctx context.Context, term int) ([]models.SharedLectureGroup, error)
}

type timetableConstraintReader interface {
	GetByTerm(ctx context.Context, term int) (*models.SemesterConstraint, error)
}

type timetableLockReader interface {
	ListActive(ctx context.Context, program string, term int) ([]models.SlotLock, error)
}

type timetableSubjectReader interface {
	FindByID(ctx context.Context, id string) (*models.Subject, error)
}

type timetableEngineCourseReader interface {
	ListBySubjectIDs(ctx context.Context, subjectIDs []string) ([]models.EngineCourse, error)
}

type timetableTeacherReader interface {
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
}

type timetableFacultyProfileReader interface {
	ListByTeacherIDs(ctx context.Context, teacherIDs []string) ([]models.EngineFacultyProfile, error)
}

type timetableConfigReader interface {
	Get(ctx context.Context, key string) (*models.Configuration, error)
}

// workingHoursConfig is the JSON shape stored under the "scheduler.working_hours"
// configuration key, decoded into a scheduler.SchedulePolicy.
type workingHoursConfig struct {
	PeriodMinutes int `json:"period_minutes"`
	Days          []struct {
		Day      string `json:"day"`
		DayStart int    `json:"day_start"`
		DayEnd   int    `json:"day_end"`
		Breaks   []struct {
			Name  string `json:"name"`
			Start int    `json:"start"`
			End   int    `json:"end"`
		} `json:"breaks"`
	} `json:"days"`
}

const workingHoursConfigKey = "scheduler.working_hours"

// TimetableSnapshotLoader assembles a scheduler.Snapshot from the persistence
// layer for one program/term solver run.
type TimetableSnapshotLoader struct {
	rooms       timetableRoomReader
	progCourses timetableProgramCourseReader
	progSects   timetableProgramSectionReader
	electives   timetableElectiveGroupReader
	shared      timetableSharedGroupReader
	constraint  timetableConstraintReader
	locks       timetableLockReader
	subjects    timetableSubjectReader
	courses     timetableEngineCourseReader
	teachers    timetableTeacherReader
	profiles    timetableFacultyProfileReader
	config      timetableConfigReader
}

// NewTimetableSnapshotLoader wires the narrow repository readers the loader needs.
func NewTimetableSnapshotLoader(
	rooms timetableRoomReader,
	progCourses timetableProgramCourseReader,
	progSects timetableProgramSectionReader,
	electives timetableElectiveGroupReader,
	shared timetableSharedGroupReader,
	constraint timetableConstraintReader,
	locks timetableLockReader,
	subjects timetableSubjectReader,
	courses timetableEngineCourseReader,
	teachers timetableTeacherReader,
	profiles timetableFacultyProfileReader,
	config timetableConfigReader,
) *TimetableSnapshotLoader {
	return &TimetableSnapshotLoader{
		rooms: rooms, progCourses: progCourses, progSects: progSects,
		electives: electives, shared: shared, constraint: constraint, locks: locks,
		subjects: subjects, courses: courses, teachers: teachers, profiles: profiles, config: config,
	}
}

// Load builds one immutable Snapshot for the given program/term.
func (l *TimetableSnapshotLoader) Load(ctx context.Context, program string, term int) (*scheduler.Snapshot, error) {
	policy, daySlots, err := l.loadPolicy(ctx)
	if err != nil {
		return nil, err
	}

	progCourses, err := l.progCourses.ListByProgramTerm(ctx, program, term)
	if err != nil {
		return nil, fmt.Errorf("load program courses: %w", err)
	}
	sections, err := l.progSects.ListByProgramTerm(ctx, program, term)
	if err != nil {
		return nil, fmt.Errorf("load program sections: %w", err)
	}
	electiveRows, err := l.electives.ListByTerm(ctx, term)
	if err != nil {
		return nil, fmt.Errorf("load elective overlap groups: %w", err)
	}
	sharedRows, err := l.shared.ListByTerm(ctx, term)
	if err != nil {
		return nil, fmt.Errorf("load shared lecture groups: %w", err)
	}
	constraintRow, err := l.constraint.GetByTerm(ctx, term)
	if err != nil {
		return nil, fmt.Errorf("load semester constraint: %w", err)
	}
	lockRows, err := l.locks.ListActive(ctx, program, term)
	if err != nil {
		return nil, fmt.Errorf("load active slot locks: %w", err)
	}
	roomRows, err := l.rooms.List(ctx, models.RoomFilter{})
	if err != nil {
		return nil, fmt.Errorf("load rooms: %w", err)
	}

	snap := &scheduler.Snapshot{
		Program:        program,
		TermNumber:     term,
		Policy:         policy,
		DaySlots:       daySlots,
		Rooms:          buildRooms(roomRows),
		Faculty:        make(map[string]scheduler.Faculty),
		Courses:        make(map[string]scheduler.Course),
		ProgramCourses: convertProgramCourses(progCourses),
		Sections:       convertSections(sections),
		ElectiveGroups: convertElectiveGroups(electiveRows),
		SharedGroups:   convertSharedGroups(sharedRows),
		Constraint:     convertConstraint(constraintRow),
		Locks:          convertLocks(lockRows),
		ReservedSlots:  make(map[string][]scheduler.ReservedSlot),
		CompletedTerms: make(map[string]map[int]bool),
	}

	subjectIDs := make([]string, 0, len(progCourses))
	for _, pc := range progCourses {
		subjectIDs = append(subjectIDs, pc.CourseID)
	}
	engineCourses, err := l.courses.ListBySubjectIDs(ctx, subjectIDs)
	if err != nil {
		return nil, fmt.Errorf("load engine courses: %w", err)
	}
	bySubject := make(map[string]models.EngineCourse, len(engineCourses))
	for _, ec := range engineCourses {
		bySubject[ec.SubjectID] = ec
	}
	facultyIDs := make(map[string]bool)
	for _, id := range subjectIDs {
		subj, err := l.subjects.FindByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load subject %s: %w", id, err)
		}
		ec, ok := bySubject[id]
		if !ok {
			return nil, fmt.Errorf("course %s: no engine course definition configured", id)
		}
		snap.Courses[id] = scheduler.Course{
			ID:                id,
			Code:              subj.Code,
			Kind:              scheduler.CourseKind(ec.Kind),
			Credits:           ec.Credits,
			TheoryHours:       ec.TheoryHours,
			LabHours:          ec.LabHours,
			TutorialHours:     ec.TutorialHours,
			HoursPerWeek:      ec.HoursPerWeek,
			LabContiguous:     ec.LabContiguous,
			AssignedFacultyID: ec.AssignedFacultyID,
		}
		if ec.AssignedFacultyID != "" {
			facultyIDs[ec.AssignedFacultyID] = true
		}
	}

	ids := make([]string, 0, len(facultyIDs))
	for id := range facultyIDs {
		ids = append(ids, id)
	}
	profileRows, err := l.profiles.ListByTeacherIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load faculty profiles: %w", err)
	}
	for _, id := range ids {
		teacher, err := l.teachers.FindByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load teacher %s: %w", id, err)
		}
		fac, ferr := buildFaculty(teacher, findProfile(profileRows, id))
		if ferr != nil {
			return nil, ferr
		}
		snap.Faculty[id] = fac
	}

	return snap, nil
}

func findProfile(rows []models.EngineFacultyProfile, teacherID string) *models.EngineFacultyProfile {
	for i := range rows {
		if rows[i].TeacherID == teacherID {
			return &rows[i]
		}
	}
	return nil
}

func buildRooms(rows []models.Room) map[string]scheduler.Room {
	out := make(map[string]scheduler.Room, len(rows))
	for _, r := range rows {
		avail := make(map[string][]scheduler.TimeWindow)
		if len(r.Availability) > 0 {
			_ = json.Unmarshal(r.Availability, &avail)
		}
		out[r.ID] = scheduler.Room{
			ID:           r.ID,
			Name:         r.Name,
			Capacity:     r.Capacity,
			Kind:         scheduler.RoomKind(r.Kind),
			Availability: avail,
		}
	}
	return out
}

func buildFaculty(t *models.Teacher, profile *models.EngineFacultyProfile) (scheduler.Faculty, error) {
	fac := scheduler.Faculty{ID: t.ID, Name: t.FullName}
	if profile == nil {
		return fac, fmt.Errorf("faculty %s: no engine profile configured", t.ID)
	}
	fac.MaxHoursPerWeek = profile.MaxHoursPerWeek
	fac.WorkloadTargetHours = profile.WorkloadTargetHours
	fac.MinBreakMinutes = profile.MinBreakMinutes
	fac.AvoidBackToBack = profile.AvoidBackToBack

	if len(profile.AvailabilityDays) > 0 {
		var days map[string]bool
		if err := json.Unmarshal(profile.AvailabilityDays, &days); err != nil {
			return fac, fmt.Errorf("faculty %s: decode availability days: %w", t.ID, err)
		}
		fac.AvailabilityDays = days
	}
	if len(profile.AvailabilityWindows) > 0 {
		var windows map[string][]scheduler.TimeWindow
		if err := json.Unmarshal(profile.AvailabilityWindows, &windows); err != nil {
			return fac, fmt.Errorf("faculty %s: decode availability windows: %w", t.ID, err)
		}
		fac.AvailabilityWindows = windows
	}
	if len(profile.PreferredSubjectCodes) > 0 {
		var codes map[string]bool
		if err := json.Unmarshal(profile.PreferredSubjectCodes, &codes); err != nil {
			return fac, fmt.Errorf("faculty %s: decode preferred subject codes: %w", t.ID, err)
		}
		fac.PreferredSubjectCodes = codes
	}
	if len(profile.SemesterPreferredCodes) > 0 {
		var codes map[int]map[string]bool
		if err := json.Unmarshal(profile.SemesterPreferredCodes, &codes); err != nil {
			return fac, fmt.Errorf("faculty %s: decode semester preferred codes: %w", t.ID, err)
		}
		fac.SemesterPreferredCodes = codes
	}
	return fac, nil
}

func (l *TimetableSnapshotLoader) loadPolicy(ctx context.Context) (scheduler.SchedulePolicy, map[string][]scheduler.SlotSegment, error) {
	cfg, err := l.config.Get(ctx, workingHoursConfigKey)
	if err != nil {
		return scheduler.SchedulePolicy{}, nil, fmt.Errorf("load working hours configuration: %w", err)
	}
	var raw workingHoursConfig
	if err := json.Unmarshal([]byte(cfg.Value), &raw); err != nil {
		return scheduler.SchedulePolicy{}, nil, fmt.Errorf("decode working hours configuration: %w", err)
	}

	policy := scheduler.SchedulePolicy{PeriodMinutes: raw.PeriodMinutes}
	for _, d := range raw.Days {
		entry := scheduler.WorkingHoursEntry{Day: d.Day, DayStart: d.DayStart, DayEnd: d.DayEnd}
		for _, b := range d.Breaks {
			entry.Breaks = append(entry.Breaks, scheduler.BreakWindow{Name: b.Name, Start: b.Start, End: b.End})
		}
		policy.Days = append(policy.Days, entry)
	}
	return policy, scheduler.BuildDaySlots(policy), nil
}

func convertProgramCourses(rows []models.ProgramCourse) []scheduler.ProgramCourse {
	out := make([]scheduler.ProgramCourse, 0, len(rows))
	for _, pc := range rows {
		var prereqs []string
		if len(pc.PrerequisiteCourseIDs) > 0 {
			_ = json.Unmarshal(pc.PrerequisiteCourseIDs, &prereqs)
		}
		out = append(out, scheduler.ProgramCourse{
			Program:               pc.Program,
			TermNumber:            pc.TermNumber,
			CourseID:              pc.CourseID,
			IsRequired:            pc.IsRequired,
			LabBatchCount:         pc.LabBatchCount,
			AllowParallelBatches:  pc.AllowParallelBatches,
			PrerequisiteCourseIDs: prereqs,
		})
	}
	return out
}

func convertSections(rows []models.ProgramSection) []scheduler.ProgramSection {
	out := make([]scheduler.ProgramSection, 0, len(rows))
	for _, s := range rows {
		out = append(out, scheduler.ProgramSection{
			Program: s.Program, TermNumber: s.TermNumber, Name: s.Name, Capacity: s.Capacity,
		})
	}
	return out
}

func convertElectiveGroups(rows []models.ElectiveOverlapGroup) []scheduler.ElectiveOverlapGroup {
	out := make([]scheduler.ElectiveOverlapGroup, 0, len(rows))
	for _, g := range rows {
		var ids []string
		if len(g.CourseIDs) > 0 {
			_ = json.Unmarshal(g.CourseIDs, &ids)
		}
		courses := make(map[string]bool, len(ids))
		for _, id := range ids {
			courses[id] = true
		}
		out = append(out, scheduler.ElectiveOverlapGroup{TermNumber: g.TermNumber, Courses: courses, NoOverlap: g.NoOverlap})
	}
	return out
}

func convertSharedGroups(rows []models.SharedLectureGroup) []scheduler.SharedLectureGroup {
	out := make([]scheduler.SharedLectureGroup, 0, len(rows))
	for _, g := range rows {
		var sects []string
		if len(g.Sections) > 0 {
			_ = json.Unmarshal(g.Sections, &sects)
		}
		sections := make(map[string]bool, len(sects))
		for _, s := range sects {
			sections[s] = true
		}
		out = append(out, scheduler.SharedLectureGroup{TermNumber: g.TermNumber, CourseID: g.CourseID, Sections: sections})
	}
	return out
}

func convertConstraint(row *models.SemesterConstraint) scheduler.SemesterConstraint {
	if row == nil {
		return scheduler.SemesterConstraint{}
	}
	return scheduler.SemesterConstraint{
		TermNumber:        row.TermNumber,
		EarliestStart:     row.EarliestStartMin,
		LatestEnd:         row.LatestEndMin,
		MaxPerDayMinutes:  row.MaxPerDayMinutes,
		MaxPerWeekMinutes: row.MaxPerWeekMinutes,
		MinBreakMinutes:   row.MinBreakMinutes,
		MaxConsecutiveMin: row.MaxConsecutiveMin,
		RequiredCredits:   row.RequiredCredits,
	}
}

func convertLocks(rows []models.SlotLock) []scheduler.SlotLock {
	out := make([]scheduler.SlotLock, 0, len(rows))
	for _, l := range rows {
		out = append(out, scheduler.SlotLock{
			Program: l.Program, TermNumber: l.TermNumber, Section: l.Section, Batch: l.Batch,
			CourseID: l.CourseID, Day: l.DayOfWeek, Start: l.StartMin, End: l.EndMin,
			RoomID: l.RoomID, FacultyID: l.FacultyID, Active: l.Active,
		})
	}
	return out
}
