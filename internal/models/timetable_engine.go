package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// Room is a bookable teaching space fed into the timetable engine.
type Room struct {
	ID           string         `db:"id" json:"id"`
	Name         string         `db:"name" json:"name"`
	Capacity     int            `db:"capacity" json:"capacity"`
	Kind         string         `db:"kind" json:"kind"` // lecture | seminar | lab
	Availability types.JSONText `db:"availability" json:"availability,omitempty"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updated_at"`
}

// RoomFilter describes query params for listing rooms.
type RoomFilter struct {
	Kind     string
	Page     int
	PageSize int
}

// ProgramCourse links a course into one program/term's required curriculum.
type ProgramCourse struct {
	ID                    string         `db:"id" json:"id"`
	Program               string         `db:"program" json:"program"`
	TermNumber            int            `db:"term_number" json:"term_number"`
	CourseID              string         `db:"course_id" json:"course_id"`
	IsRequired            bool           `db:"is_required" json:"is_required"`
	LabBatchCount         int            `db:"lab_batch_count" json:"lab_batch_count"`
	AllowParallelBatches  bool           `db:"allow_parallel_batches" json:"allow_parallel_batches"`
	PrerequisiteCourseIDs types.JSONText `db:"prerequisite_course_ids" json:"prerequisite_course_ids,omitempty"`
}

// EngineCourse extends a Subject with the load-split and lab-contiguity
// fields the timetable engine needs that a plain Subject does not carry.
type EngineCourse struct {
	ID                string `db:"id" json:"id"`
	SubjectID         string `db:"subject_id" json:"subject_id"`
	Kind              string `db:"kind" json:"kind"` // theory | lab | elective
	Credits           int    `db:"credits" json:"credits"`
	TheoryHours       int    `db:"theory_hours" json:"theory_hours"`
	LabHours          int    `db:"lab_hours" json:"lab_hours"`
	TutorialHours     int    `db:"tutorial_hours" json:"tutorial_hours"`
	HoursPerWeek      int    `db:"hours_per_week" json:"hours_per_week"`
	LabContiguous     int    `db:"lab_contiguous_slots" json:"lab_contiguous_slots"`
	AssignedFacultyID string `db:"assigned_faculty_id" json:"assigned_faculty_id,omitempty"`
}

// EngineFacultyProfile extends a Teacher with the workload caps, availability
// windows, and subject preferences the timetable engine needs.
type EngineFacultyProfile struct {
	ID                     string         `db:"id" json:"id"`
	TeacherID              string         `db:"teacher_id" json:"teacher_id"`
	MaxHoursPerWeek        int            `db:"max_hours_per_week" json:"max_hours_per_week"`
	WorkloadTargetHours    int            `db:"workload_target_hours" json:"workload_target_hours"`
	AvailabilityDays       types.JSONText `db:"availability_days" json:"availability_days,omitempty"`
	AvailabilityWindows    types.JSONText `db:"availability_windows" json:"availability_windows,omitempty"`
	PreferredSubjectCodes  types.JSONText `db:"preferred_subject_codes" json:"preferred_subject_codes,omitempty"`
	SemesterPreferredCodes types.JSONText `db:"semester_preferred_codes" json:"semester_preferred_codes,omitempty"`
	MinBreakMinutes        int            `db:"min_break_minutes" json:"min_break_minutes"`
	AvoidBackToBack        bool           `db:"avoid_back_to_back" json:"avoid_back_to_back"`
}

// ProgramSection is an enrolled cohort of a program/term.
type ProgramSection struct {
	ID         string `db:"id" json:"id"`
	Program    string `db:"program" json:"program"`
	TermNumber int    `db:"term_number" json:"term_number"`
	Name       string `db:"name" json:"name"`
	Capacity   int    `db:"capacity" json:"capacity"`
}

// ElectiveOverlapGroup forbids time overlap between its member courses.
type ElectiveOverlapGroup struct {
	ID         string         `db:"id" json:"id"`
	TermNumber int            `db:"term_number" json:"term_number"`
	CourseIDs  types.JSONText `db:"course_ids" json:"course_ids"`
	NoOverlap  bool           `db:"no_overlap" json:"no_overlap"`
}

// SharedLectureGroup names sections that must share one lecture signature for a course.
type SharedLectureGroup struct {
	ID         string         `db:"id" json:"id"`
	TermNumber int            `db:"term_number" json:"term_number"`
	CourseID   string         `db:"course_id" json:"course_id"`
	Sections   types.JSONText `db:"sections" json:"sections"`
}

// SemesterConstraint bounds daily/weekly teaching load and breaks for a term.
type SemesterConstraint struct {
	ID                string `db:"id" json:"id"`
	TermNumber        int    `db:"term_number" json:"term_number"`
	EarliestStartMin  int    `db:"earliest_start_min" json:"earliest_start_min"`
	LatestEndMin      int    `db:"latest_end_min" json:"latest_end_min"`
	MaxPerDayMinutes  int    `db:"max_per_day_minutes" json:"max_per_day_minutes"`
	MaxPerWeekMinutes int    `db:"max_per_week_minutes" json:"max_per_week_minutes"`
	MinBreakMinutes   int    `db:"min_break_minutes" json:"min_break_minutes"`
	MaxConsecutiveMin int    `db:"max_consecutive_minutes" json:"max_consecutive_minutes"`
	RequiredCredits   int    `db:"required_credits" json:"required_credits"`
}

// SlotLock pins one block to a specific placement ahead of a solver run.
type SlotLock struct {
	ID         string `db:"id" json:"id"`
	Program    string `db:"program" json:"program"`
	TermNumber int    `db:"term_number" json:"term_number"`
	Section    string `db:"section" json:"section"`
	Batch      string `db:"batch" json:"batch"`
	CourseID   string `db:"course_id" json:"course_id"`
	DayOfWeek  string `db:"day_of_week" json:"day_of_week"`
	StartMin   int    `db:"start_min" json:"start_min"`
	EndMin     int    `db:"end_min" json:"end_min"`
	RoomID     string `db:"room_id" json:"room_id"`
	FacultyID  string `db:"faculty_id" json:"faculty_id"`
	Active     bool   `db:"active" json:"active"`
}

// TimetableRun records one solver invocation's settings and outcome for audit
// and for re-decoding a persisted alternative later.
type TimetableRun struct {
	ID              string    `db:"id" json:"id"`
	Program         string    `db:"program" json:"program"`
	TermNumber      int       `db:"term_number" json:"term_number"`
	Strategy        string    `db:"strategy" json:"strategy"`
	RandomSeed      int64     `db:"random_seed" json:"random_seed"`
	HardConflicts   int       `db:"hard_conflicts" json:"hard_conflicts"`
	SoftPenalty     float64   `db:"soft_penalty" json:"soft_penalty"`
	PublishWarning  bool      `db:"publish_warning" json:"publish_warning"`
	RuntimeMS       int64     `db:"runtime_ms" json:"runtime_ms"`
	Genotype        []byte    `db:"genotype" json:"-"`
	PersistOfficial bool      `db:"persist_official" json:"persist_official"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// TimetableConflict is one open conflict on a published timetable, shown to
// an operator for a yes/no resolution decision.
type TimetableConflict struct {
	ID        string    `db:"id" json:"id"`
	RunID     string    `db:"run_id" json:"run_id"`
	Kind      string    `db:"kind" json:"kind"`
	SlotID    string    `db:"slot_id" json:"slot_id"`
	OtherID   string    `db:"other_id" json:"other_id,omitempty"`
	Message   string    `db:"message" json:"message"`
	Resolved  bool      `db:"resolved" json:"resolved"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
