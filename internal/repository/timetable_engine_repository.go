package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-adp-api/internal/models"
)

// RoomRepository manages bookable teaching spaces.
type RoomRepository struct {
	db *sqlx.DB
}

// NewRoomRepository builds repository.
func NewRoomRepository(db *sqlx.DB) *RoomRepository {
	return &RoomRepository{db: db}
}

// List returns rooms matching an optional kind filter, paginated.
func (r *RoomRepository) List(ctx context.Context, f models.RoomFilter) ([]models.Room, error) {
	query := `SELECT id, name, capacity, kind, availability, created_at, updated_at FROM rooms WHERE 1=1`
	args := []interface{}{}
	if f.Kind != "" {
		args = append(args, f.Kind)
		query += fmt.Sprintf(" AND kind = $%d", len(args))
	}
	query += " ORDER BY name ASC"
	if f.PageSize > 0 {
		args = append(args, f.PageSize)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
		if f.Page > 0 {
			args = append(args, f.Page*f.PageSize)
			query += fmt.Sprintf(" OFFSET $%d", len(args))
		}
	}
	var rooms []models.Room
	if err := r.db.SelectContext(ctx, &rooms, query, args...); err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return rooms, nil
}

// Create inserts a new room.
func (r *RoomRepository) Create(ctx context.Context, room *models.Room) error {
	if room.ID == "" {
		room.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	room.CreatedAt, room.UpdatedAt = now, now
	const query = `
INSERT INTO rooms (id, name, capacity, kind, availability, created_at, updated_at)
VALUES (:id, :name, :capacity, :kind, :availability, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, room); err != nil {
		return fmt.Errorf("create room: %w", err)
	}
	return nil
}

// EngineCourseRepository manages the engine's richer course definitions.
type EngineCourseRepository struct {
	db *sqlx.DB
}

// NewEngineCourseRepository builds repository.
func NewEngineCourseRepository(db *sqlx.DB) *EngineCourseRepository {
	return &EngineCourseRepository{db: db}
}

// ListBySubjectIDs loads the engine course rows for a set of subjects.
func (r *EngineCourseRepository) ListBySubjectIDs(ctx context.Context, subjectIDs []string) ([]models.EngineCourse, error) {
	if len(subjectIDs) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT id, subject_id, kind, credits, theory_hours, lab_hours, tutorial_hours,
hours_per_week, lab_contiguous_slots, assigned_faculty_id FROM engine_courses WHERE subject_id IN (%s)`, placeholders(len(subjectIDs)))
	args := make([]interface{}, len(subjectIDs))
	for i, id := range subjectIDs {
		args[i] = id
	}
	var rows []models.EngineCourse
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list engine courses: %w", err)
	}
	return rows, nil
}

// EngineFacultyProfileRepository manages workload/availability/preference rows for faculty.
type EngineFacultyProfileRepository struct {
	db *sqlx.DB
}

// NewEngineFacultyProfileRepository builds repository.
func NewEngineFacultyProfileRepository(db *sqlx.DB) *EngineFacultyProfileRepository {
	return &EngineFacultyProfileRepository{db: db}
}

// ListByTeacherIDs loads the engine profile rows for a set of teachers.
func (r *EngineFacultyProfileRepository) ListByTeacherIDs(ctx context.Context, teacherIDs []string) ([]models.EngineFacultyProfile, error) {
	if len(teacherIDs) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT id, teacher_id, max_hours_per_week, workload_target_hours, availability_days,
availability_windows, preferred_subject_codes, semester_preferred_codes, min_break_minutes, avoid_back_to_back
FROM engine_faculty_profiles WHERE teacher_id IN (%s)`, placeholders(len(teacherIDs)))
	args := make([]interface{}, len(teacherIDs))
	for i, id := range teacherIDs {
		args[i] = id
	}
	var rows []models.EngineFacultyProfile
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list engine faculty profiles: %w", err)
	}
	return rows, nil
}

// ProgramCourseRepository manages per-program/term required curriculum rows.
type ProgramCourseRepository struct {
	db *sqlx.DB
}

// NewProgramCourseRepository builds repository.
func NewProgramCourseRepository(db *sqlx.DB) *ProgramCourseRepository {
	return &ProgramCourseRepository{db: db}
}

// ListByProgramTerm returns the required curriculum for one program/term.
func (r *ProgramCourseRepository) ListByProgramTerm(ctx context.Context, program string, term int) ([]models.ProgramCourse, error) {
	const query = `SELECT id, program, term_number, course_id, is_required, lab_batch_count, allow_parallel_batches, prerequisite_course_ids
FROM program_courses WHERE program = $1 AND term_number = $2`
	var rows []models.ProgramCourse
	if err := r.db.SelectContext(ctx, &rows, query, program, term); err != nil {
		return nil, fmt.Errorf("list program courses: %w", err)
	}
	return rows, nil
}

// ProgramSectionRepository manages enrolled cohorts.
type ProgramSectionRepository struct {
	db *sqlx.DB
}

// NewProgramSectionRepository builds repository.
func NewProgramSectionRepository(db *sqlx.DB) *ProgramSectionRepository {
	return &ProgramSectionRepository{db: db}
}

// ListByProgramTerm returns the sections enrolled for one program/term.
func (r *ProgramSectionRepository) ListByProgramTerm(ctx context.Context, program string, term int) ([]models.ProgramSection, error) {
	const query = `SELECT id, program, term_number, name, capacity FROM program_sections WHERE program = $1 AND term_number = $2 ORDER BY name ASC`
	var rows []models.ProgramSection
	if err := r.db.SelectContext(ctx, &rows, query, program, term); err != nil {
		return nil, fmt.Errorf("list program sections: %w", err)
	}
	return rows, nil
}

// ElectiveOverlapGroupRepository manages elective no-overlap groupings.
type ElectiveOverlapGroupRepository struct {
	db *sqlx.DB
}

// NewElectiveOverlapGroupRepository builds repository.
func NewElectiveOverlapGroupRepository(db *sqlx.DB) *ElectiveOverlapGroupRepository {
	return &ElectiveOverlapGroupRepository{db: db}
}

// ListByTerm returns the elective overlap groups configured for one term.
func (r *ElectiveOverlapGroupRepository) ListByTerm(ctx context.Context, term int) ([]models.ElectiveOverlapGroup, error) {
	const query = `SELECT id, term_number, course_ids, no_overlap FROM elective_overlap_groups WHERE term_number = $1`
	var rows []models.ElectiveOverlapGroup
	if err := r.db.SelectContext(ctx, &rows, query, term); err != nil {
		return nil, fmt.Errorf("list elective overlap groups: %w", err)
	}
	return rows, nil
}

// SharedLectureGroupRepository manages shared-lecture section groupings.
type SharedLectureGroupRepository struct {
	db *sqlx.DB
}

// NewSharedLectureGroupRepository builds repository.
func NewSharedLectureGroupRepository(db *sqlx.DB) *SharedLectureGroupRepository {
	return &SharedLectureGroupRepository{db: db}
}

// ListByTerm returns the shared-lecture groups configured for one term.
func (r *SharedLectureGroupRepository) ListByTerm(ctx context.Context, term int) ([]models.SharedLectureGroup, error) {
	const query = `SELECT id, term_number, course_id, sections FROM shared_lecture_groups WHERE term_number = $1`
	var rows []models.SharedLectureGroup
	if err := r.db.SelectContext(ctx, &rows, query, term); err != nil {
		return nil, fmt.Errorf("list shared lecture groups: %w", err)
	}
	return rows, nil
}

// SemesterConstraintRepository manages per-term load/break policy rows.
type SemesterConstraintRepository struct {
	db *sqlx.DB
}

// NewSemesterConstraintRepository builds repository.
func NewSemesterConstraintRepository(db *sqlx.DB) *SemesterConstraintRepository {
	return &SemesterConstraintRepository{db: db}
}

// GetByTerm returns the constraint row for one term, if configured.
func (r *SemesterConstraintRepository) GetByTerm(ctx context.Context, term int) (*models.SemesterConstraint, error) {
	const query = `SELECT id, term_number, earliest_start_min, latest_end_min, max_per_day_minutes, max_per_week_minutes,
min_break_minutes, max_consecutive_minutes, required_credits FROM semester_constraints WHERE term_number = $1`
	var row models.SemesterConstraint
	if err := r.db.GetContext(ctx, &row, query, term); err != nil {
		return nil, fmt.Errorf("get semester constraint: %w", err)
	}
	return &row, nil
}

// SlotLockRepository manages pre-pinned placements.
type SlotLockRepository struct {
	db *sqlx.DB
}

// NewSlotLockRepository builds repository.
func NewSlotLockRepository(db *sqlx.DB) *SlotLockRepository {
	return &SlotLockRepository{db: db}
}

// ListActive returns the active locks for one program/term.
func (r *SlotLockRepository) ListActive(ctx context.Context, program string, term int) ([]models.SlotLock, error) {
	const query = `SELECT id, program, term_number, section, batch, course_id, day_of_week, start_min, end_min, room_id, faculty_id, active
FROM slot_locks WHERE program = $1 AND term_number = $2 AND active = true`
	var rows []models.SlotLock
	if err := r.db.SelectContext(ctx, &rows, query, program, term); err != nil {
		return nil, fmt.Errorf("list active slot locks: %w", err)
	}
	return rows, nil
}

// TimetableRunRepository persists solver invocations for audit and replay.
type TimetableRunRepository struct {
	db *sqlx.DB
}

// NewTimetableRunRepository builds repository.
func NewTimetableRunRepository(db *sqlx.DB) *TimetableRunRepository {
	return &TimetableRunRepository{db: db}
}

// Create persists one run record.
func (r *TimetableRunRepository) Create(ctx context.Context, run *models.TimetableRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	const query = `
INSERT INTO timetable_runs (id, program, term_number, strategy, random_seed, hard_conflicts, soft_penalty,
publish_warning, runtime_ms, genotype, persist_official, created_at)
VALUES (:id, :program, :term_number, :strategy, :random_seed, :hard_conflicts, :soft_penalty,
:publish_warning, :runtime_ms, :genotype, :persist_official, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, run); err != nil {
		return fmt.Errorf("create timetable run: %w", err)
	}
	return nil
}

// GetByID loads one run for re-decoding its stored genotype.
func (r *TimetableRunRepository) GetByID(ctx context.Context, id string) (*models.TimetableRun, error) {
	const query = `SELECT id, program, term_number, strategy, random_seed, hard_conflicts, soft_penalty,
publish_warning, runtime_ms, genotype, persist_official, created_at FROM timetable_runs WHERE id = $1`
	var run models.TimetableRun
	if err := r.db.GetContext(ctx, &run, query, id); err != nil {
		return nil, fmt.Errorf("get timetable run: %w", err)
	}
	return &run, nil
}

// Update overwrites a run's scored genotype after the resolver edits it in
// place, so a later VerifyRun/ResolveConflict call decodes the resolved
// payload instead of the stale one originally solved.
func (r *TimetableRunRepository) Update(ctx context.Context, run *models.TimetableRun) error {
	const query = `
UPDATE timetable_runs SET hard_conflicts = :hard_conflicts, soft_penalty = :soft_penalty,
publish_warning = :publish_warning, genotype = :genotype WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, run); err != nil {
		return fmt.Errorf("update timetable run: %w", err)
	}
	return nil
}

// TimetableConflictRepository manages open conflicts awaiting operator decisions.
type TimetableConflictRepository struct {
	db *sqlx.DB
}

// NewTimetableConflictRepository builds repository.
func NewTimetableConflictRepository(db *sqlx.DB) *TimetableConflictRepository {
	return &TimetableConflictRepository{db: db}
}

func (r *TimetableConflictRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// BulkCreate persists a batch of freshly detected conflicts for one run.
func (r *TimetableConflictRepository) BulkCreate(ctx context.Context, exec sqlx.ExtContext, conflicts []models.TimetableConflict) error {
	if len(conflicts) == 0 {
		return nil
	}
	target := r.exec(exec)
	now := time.Now().UTC()
	const query = `
INSERT INTO timetable_conflicts (id, run_id, kind, slot_id, other_id, message, resolved, created_at)
VALUES (:id, :run_id, :kind, :slot_id, :other_id, :message, :resolved, :created_at)`
	for i := range conflicts {
		c := &conflicts[i]
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		if _, err := sqlx.NamedExecContext(ctx, target, query, c); err != nil {
			return fmt.Errorf("create timetable conflict: %w", err)
		}
	}
	return nil
}

// ListOpen returns unresolved conflicts for one run.
func (r *TimetableConflictRepository) ListOpen(ctx context.Context, runID string) ([]models.TimetableConflict, error) {
	const query = `SELECT id, run_id, kind, slot_id, other_id, message, resolved, created_at
FROM timetable_conflicts WHERE run_id = $1 AND resolved = false ORDER BY created_at ASC`
	var rows []models.TimetableConflict
	if err := r.db.SelectContext(ctx, &rows, query, runID); err != nil {
		return nil, fmt.Errorf("list open timetable conflicts: %w", err)
	}
	return rows, nil
}

// GetByID loads a single conflict for a decision lookup.
func (r *TimetableConflictRepository) GetByID(ctx context.Context, id string) (*models.TimetableConflict, error) {
	const query = `SELECT id, run_id, kind, slot_id, other_id, message, resolved, created_at FROM timetable_conflicts WHERE id = $1`
	var row models.TimetableConflict
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, fmt.Errorf("get timetable conflict: %w", err)
	}
	return &row, nil
}

// MarkResolved flips a conflict's resolved flag.
func (r *TimetableConflictRepository) MarkResolved(ctx context.Context, id string) error {
	const query = `UPDATE timetable_conflicts SET resolved = true WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("mark timetable conflict resolved: %w", err)
	}
	return nil
}
