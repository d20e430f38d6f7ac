package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-adp-api/internal/dto"
	"github.com/noah-isme/sma-adp-api/internal/models"
	"github.com/noah-isme/sma-adp-api/internal/scheduler"
	appErrors "github.com/noah-isme/sma-adp-api/pkg/errors"
)

type timetableRunWriter interface {
	Create(ctx context.Context, run *models.TimetableRun) error
	GetByID(ctx context.Context, id string) (*models.TimetableRun, error)
	Update(ctx context.Context, run *models.TimetableRun) error
}

// timetableVersionSigner issues an opaque, verifiable version label for a
// resolver-edited payload, the same signed-token shape export_service.go and
// archive_service.go already use for download tokens.
type timetableVersionSigner interface {
	Generate(jobID, relPath string) (string, time.Time, error)
}

type timetableConflictReader interface {
	GetByID(ctx context.Context, id string) (*models.TimetableConflict, error)
	MarkResolved(ctx context.Context, id string) error
	ListOpen(ctx context.Context, runID string) ([]models.TimetableConflict, error)
}

// TimetableEngineService orchestrates loader -> expansion -> solver drivers
// -> decode -> publish gate for the constraint-based timetable engine,
// alongside (not instead of) ScheduleGeneratorService's legacy path.
type TimetableEngineService struct {
	loader    *TimetableSnapshotLoader
	runs      timetableRunWriter
	conflicts timetableConflictReader
	signer    timetableVersionSigner
	logger    *zap.Logger
}

// NewTimetableEngineService wires the loader, run/conflict audit repositories,
// and the version-label signer for resolved conflicts.
func NewTimetableEngineService(loader *TimetableSnapshotLoader, runs timetableRunWriter, conflicts timetableConflictReader, signer timetableVersionSigner, logger *zap.Logger) *TimetableEngineService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimetableEngineService{loader: loader, runs: runs, conflicts: conflicts, signer: signer, logger: logger}
}

func settingsFromRequest(override *dto.GenerationSettingsRequest) scheduler.Settings {
	s := scheduler.DefaultSettings()
	if override == nil {
		return s
	}
	if override.SolverStrategy != "" {
		s.Strategy = scheduler.SolverStrategy(override.SolverStrategy)
	}
	if override.PopulationSize > 0 {
		s.PopulationSize = override.PopulationSize
	}
	if override.Generations > 0 {
		s.Generations = override.Generations
	}
	if override.EliteCount > 0 {
		s.EliteCount = override.EliteCount
	}
	if override.TournamentSize > 0 {
		s.TournamentSize = override.TournamentSize
	}
	if override.StagnationLimit > 0 {
		s.StagnationLimit = override.StagnationLimit
	}
	if override.MutationRate > 0 {
		s.MutationRate = override.MutationRate
	}
	if override.CrossoverRate > 0 {
		s.CrossoverRate = override.CrossoverRate
	}
	if override.AnnealingIterations > 0 {
		s.AnnealingIterations = override.AnnealingIterations
	}
	if override.AnnealingInitialTemperature > 0 {
		s.AnnealingInitialTemperature = override.AnnealingInitialTemperature
	}
	if override.AnnealingCoolingRate > 0 {
		s.AnnealingCoolingRate = override.AnnealingCoolingRate
	}
	if override.RandomSeed != nil {
		s.RandomSeed = *override.RandomSeed
	}
	if w := override.ObjectiveWeights; w != nil {
		s.Weights = scheduler.ObjectiveWeights{
			RoomConflict: w.RoomConflict, FacultyConflict: w.FacultyConflict, SectionConflict: w.SectionConflict,
			RoomCapacity: w.RoomCapacity, RoomType: w.RoomType, FacultyAvailability: w.FacultyAvailability,
			LockedSlot: w.LockedSlot, SemesterLimit: w.SemesterLimit, WorkloadOverflow: w.WorkloadOverflow,
			WorkloadUnderflow: w.WorkloadUnderflow, FacultySubjectPreference: w.FacultySubjectPreference,
			SpreadBalance: w.SpreadBalance,
		}
	}
	return s
}

// Generate runs one full solver pass for a program/term and returns the
// ranked alternatives (spec §6 "Generate request"/"Generate response").
func (s *TimetableEngineService) Generate(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.GenerateTimetableResponse, error) {
	start := time.Now()
	settings := settingsFromRequest(req.SettingsOverride)
	settings.AlternativeCount = req.AlternativeCount

	snap, err := s.loader.Load(ctx, req.ProgramID, req.TermNumber)
	if err != nil {
		return nil, appErrors.Wrap(err, "TIMETABLE_LOAD_FAILED", 500, "failed to load timetable inputs")
	}
	mergeReservedSlots(snap, req.ReservedSlots)

	expander := scheduler.NewExpander(snap, settings.RandomSeed)
	requests, err := expander.Expand()
	if err != nil {
		return nil, translateSchedulerError(err)
	}

	rc, err := scheduler.NewRunContext(ctx, snap, requests, settings)
	if err != nil {
		return nil, translateSchedulerError(err)
	}

	result := scheduler.Run(rc, settings)
	alternatives, publishWarning := rc.DecodeAlternatives(result, req.AlternativeCount)

	resp := &dto.GenerateTimetableResponse{
		SettingsUsed: settingsToResponse(settings),
		RuntimeMS:    time.Since(start).Milliseconds(),
	}
	if publishWarning {
		resp.PublishWarning = "no conflict-free alternative was found among the generated candidates"
	}
	for _, alt := range alternatives {
		resp.Alternatives = append(resp.Alternatives, alternativeToResponse(alt))
	}

	if req.PersistOfficial && len(alternatives) > 0 {
		best := alternatives[0]
		run := &models.TimetableRun{
			Program: req.ProgramID, TermNumber: req.TermNumber, Strategy: string(result.Strategy),
			RandomSeed: settings.RandomSeed, HardConflicts: best.HardConflicts, SoftPenalty: best.SoftPenalty,
			PublishWarning: publishWarning, RuntimeMS: resp.RuntimeMS, PersistOfficial: true,
			Genotype: scheduler.EncodeGenotype(result.Best),
		}
		if err := s.runs.Create(ctx, run); err != nil {
			s.logger.Error("persist timetable run failed", zap.Error(err))
			return nil, appErrors.Wrap(err, "TIMETABLE_PERSIST_FAILED", 500, "failed to persist timetable run")
		}
	}
	return resp, nil
}

// mergeReservedSlots folds operator-supplied or carried-forward reserved
// slots into a freshly loaded snapshot before expansion, so already-placed
// resources from a sibling term or request block out candidate options.
func mergeReservedSlots(snap *scheduler.Snapshot, reserved []dto.ReservedSlotRequest) {
	if len(reserved) == 0 {
		return
	}
	if snap.ReservedSlots == nil {
		snap.ReservedSlots = make(map[string][]scheduler.ReservedSlot)
	}
	for _, rs := range reserved {
		slot, ok := scheduler.NewReservedSlot(rs.Day, rs.StartTime, rs.EndTime, rs.RoomID, rs.FacultyID)
		if !ok {
			continue
		}
		snap.ReservedSlots[rs.Day] = append(snap.ReservedSlots[rs.Day], slot)
	}
}

// carryForwardReserved converts one term's best alternative into reserved
// slots for the next term in a cycle (spec §6 "Cycle generation").
func carryForwardReserved(dest map[string][]scheduler.ReservedSlot, payload scheduler.Payload) {
	for _, slot := range payload.Slots {
		rs, ok := scheduler.ReservedSlotFromPlacedSlot(slot)
		if !ok {
			continue
		}
		dest[slot.Day] = append(dest[slot.Day], rs)
	}
}

// GenerateCycle chains per-term generations for a program, carrying each
// solved term's placed resources forward as reserved slots for the next term,
// then builds the combined cross-term Pareto front across shared alternative
// ranks (spec §6 "Cycle generation").
func (s *TimetableEngineService) GenerateCycle(ctx context.Context, req dto.CycleGenerateRequest) (*dto.CycleGenerateResponse, error) {
	start := time.Now()
	reserved := make(map[string][]scheduler.ReservedSlot)
	terms := make([]dto.GenerateTimetableResponse, 0, len(req.TermNumbers))
	var perTermEvals [][]scheduler.Evaluation

	for _, term := range req.TermNumbers {
		settings := settingsFromRequest(req.SettingsOverride)
		settings.AlternativeCount = req.AlternativeCount

		snap, err := s.loader.Load(ctx, req.ProgramID, term)
		if err != nil {
			return nil, appErrors.Wrap(err, "TIMETABLE_LOAD_FAILED", 500, "failed to load timetable inputs")
		}
		for day, slots := range reserved {
			snap.ReservedSlots[day] = append(snap.ReservedSlots[day], slots...)
		}

		expander := scheduler.NewExpander(snap, settings.RandomSeed)
		requests, err := expander.Expand()
		if err != nil {
			return nil, translateSchedulerError(err)
		}
		rc, err := scheduler.NewRunContext(ctx, snap, requests, settings)
		if err != nil {
			return nil, translateSchedulerError(err)
		}

		result := scheduler.Run(rc, settings)
		alternatives, publishWarning := rc.DecodeAlternatives(result, req.AlternativeCount)

		resp := dto.GenerateTimetableResponse{SettingsUsed: settingsToResponse(settings)}
		if publishWarning {
			resp.PublishWarning = "no conflict-free alternative was found among the generated candidates"
		}
		evals := make([]scheduler.Evaluation, 0, len(alternatives))
		for _, alt := range alternatives {
			resp.Alternatives = append(resp.Alternatives, alternativeToResponse(alt))
			evals = append(evals, scheduler.Evaluation{HardConflicts: alt.HardConflicts, SoftPenalty: alt.SoftPenalty, Fitness: alt.Fitness})
		}
		terms = append(terms, resp)
		perTermEvals = append(perTermEvals, evals)

		if len(alternatives) > 0 {
			carryForwardReserved(reserved, alternatives[0].Payload)
			if req.PersistOfficial {
				best := alternatives[0]
				run := &models.TimetableRun{
					Program: req.ProgramID, TermNumber: term, Strategy: string(result.Strategy),
					RandomSeed: settings.RandomSeed, HardConflicts: best.HardConflicts, SoftPenalty: best.SoftPenalty,
					PublishWarning: publishWarning, RuntimeMS: time.Since(start).Milliseconds(), PersistOfficial: true,
					Genotype: scheduler.EncodeGenotype(result.Best),
				}
				if err := s.runs.Create(ctx, run); err != nil {
					s.logger.Error("persist timetable run failed", zap.Error(err))
					return nil, appErrors.Wrap(err, "TIMETABLE_PERSIST_FAILED", 500, "failed to persist timetable run")
				}
			}
		}
	}

	return &dto.CycleGenerateResponse{
		Terms:     terms,
		Front:     buildCrossTermFront(perTermEvals),
		RuntimeMS: time.Since(start).Milliseconds(),
	}, nil
}

// buildCrossTermFront aggregates hard/soft totals across terms at each shared
// alternative rank, then keeps only the non-dominated combinations, sorted
// ascending by (hard, soft) (spec §6 "combined cross-term Pareto front").
func buildCrossTermFront(perTerm [][]scheduler.Evaluation) []dto.CycleFrontEntry {
	if len(perTerm) == 0 {
		return nil
	}
	minLen := len(perTerm[0])
	for _, evals := range perTerm[1:] {
		if len(evals) < minLen {
			minLen = len(evals)
		}
	}
	if minLen == 0 {
		return nil
	}

	type combo struct {
		index int
		hard  int
		soft  float64
	}
	combos := make([]combo, minLen)
	for k := 0; k < minLen; k++ {
		var hard int
		var soft float64
		for _, evals := range perTerm {
			hard += evals[k].HardConflicts
			soft += evals[k].SoftPenalty
		}
		combos[k] = combo{index: k, hard: hard, soft: soft}
	}

	var kept []combo
	for _, c := range combos {
		dominated := false
		for _, other := range combos {
			if other.index == c.index {
				continue
			}
			if other.hard <= c.hard && other.soft <= c.soft && (other.hard < c.hard || other.soft < c.soft) {
				dominated = true
				break
			}
		}
		if !dominated {
			kept = append(kept, c)
		}
	}
	sort.Slice(kept, func(i, j int) bool {
		if kept[i].hard != kept[j].hard {
			return kept[i].hard < kept[j].hard
		}
		return kept[i].soft < kept[j].soft
	})

	out := make([]dto.CycleFrontEntry, len(kept))
	for i, c := range kept {
		out[i] = dto.CycleFrontEntry{Rank: i + 1, HardConflicts: c.hard, SoftPenalty: c.soft, AlternativeIndex: c.index}
	}
	return out
}

// Verify independently re-validates a payload against the publish gate
// (spec §6 "Verifier"), stricter than the evaluator used during search.
func (s *TimetableEngineService) Verify(ctx context.Context, program string, term int, payload scheduler.Payload, force bool) error {
	snap, err := s.loader.Load(ctx, program, term)
	if err != nil {
		return appErrors.Wrap(err, "TIMETABLE_LOAD_FAILED", 500, "failed to load timetable inputs")
	}
	verifier := scheduler.NewVerifier(snap)
	if err := verifier.Verify(payload, force); err != nil {
		return appErrors.Wrap(err, "VERIFIER_REJECTION", 422, "published timetable failed verification")
	}
	return nil
}

// VerifyRun re-decodes a persisted run's genotype and independently
// re-validates it against the publish gate (spec §6 "Verifier").
func (s *TimetableEngineService) VerifyRun(ctx context.Context, req dto.VerifyTimetableRequest) (*dto.VerifyTimetableResponse, error) {
	run, err := s.runs.GetByID(ctx, req.RunID)
	if err != nil {
		return nil, appErrors.Wrap(err, "TIMETABLE_RUN_NOT_FOUND", 404, "run not found")
	}
	snap, err := s.loader.Load(ctx, run.Program, run.TermNumber)
	if err != nil {
		return nil, appErrors.Wrap(err, "TIMETABLE_LOAD_FAILED", 500, "failed to load timetable inputs")
	}
	expander := scheduler.NewExpander(snap, run.RandomSeed)
	requests, err := expander.Expand()
	if err != nil {
		return nil, translateSchedulerError(err)
	}
	rc, err := scheduler.NewRunContext(ctx, snap, requests, scheduler.Settings{RandomSeed: run.RandomSeed, Weights: scheduler.DefaultObjectiveWeights()})
	if err != nil {
		return nil, translateSchedulerError(err)
	}
	payload := rc.DecodePayload(scheduler.DecodeGenotype(run.Genotype))

	verifier := scheduler.NewVerifier(snap)
	if err := verifier.Verify(payload, req.Force); err != nil {
		return &dto.VerifyTimetableResponse{Passed: false, Message: err.Error()}, nil
	}
	return &dto.VerifyTimetableResponse{Passed: true}, nil
}

// Resolve drives the auto-resolver for one named conflict against a given
// payload (spec §6 "Conflict decision").
func (s *TimetableEngineService) Resolve(ctx context.Context, program string, term int, payload scheduler.Payload, conflict scheduler.Conflict) (scheduler.ResolveOutcome, error) {
	snap, err := s.loader.Load(ctx, program, term)
	if err != nil {
		return scheduler.ResolveOutcome{}, appErrors.Wrap(err, "TIMETABLE_LOAD_FAILED", 500, "failed to load timetable inputs")
	}
	resolver := scheduler.NewResolver(snap, scheduler.DefaultObjectiveWeights())
	return resolver.Resolve(payload, conflict), nil
}

// ResolveConflict looks up a persisted open conflict and its run, re-decodes
// the run's stored genotype into the payload it placed, and drives the
// resolver against it. On success the conflict is marked resolved, the run's
// stored genotype/scores are overwritten with the resolved payload, and a
// signed version label is returned for the caller to display.
func (s *TimetableEngineService) ResolveConflict(ctx context.Context, conflictID string) (scheduler.ResolveOutcome, string, error) {
	tc, err := s.conflicts.GetByID(ctx, conflictID)
	if err != nil {
		return scheduler.ResolveOutcome{}, "", appErrors.Wrap(err, "TIMETABLE_CONFLICT_NOT_FOUND", 404, "conflict not found")
	}
	run, err := s.runs.GetByID(ctx, tc.RunID)
	if err != nil {
		return scheduler.ResolveOutcome{}, "", appErrors.Wrap(err, "TIMETABLE_RUN_NOT_FOUND", 404, "run not found")
	}

	snap, err := s.loader.Load(ctx, run.Program, run.TermNumber)
	if err != nil {
		return scheduler.ResolveOutcome{}, "", appErrors.Wrap(err, "TIMETABLE_LOAD_FAILED", 500, "failed to load timetable inputs")
	}
	weights := scheduler.DefaultObjectiveWeights()
	expander := scheduler.NewExpander(snap, run.RandomSeed)
	requests, err := expander.Expand()
	if err != nil {
		return scheduler.ResolveOutcome{}, "", translateSchedulerError(err)
	}
	rc, err := scheduler.NewRunContext(ctx, snap, requests, scheduler.Settings{RandomSeed: run.RandomSeed, Weights: weights})
	if err != nil {
		return scheduler.ResolveOutcome{}, "", translateSchedulerError(err)
	}
	baseGenotype := scheduler.DecodeGenotype(run.Genotype)
	payload := rc.DecodePayload(baseGenotype)

	conflict := scheduler.Conflict{ID: tc.ID, Kind: scheduler.ConflictKind(tc.Kind), SlotID: tc.SlotID, OtherID: tc.OtherID}
	resolver := scheduler.NewResolver(snap, weights)
	outcome := resolver.Resolve(payload, conflict)
	if !outcome.Resolved {
		return outcome, "", nil
	}

	newGenotype := rc.EncodeGenotypeFromPayload(baseGenotype, outcome.Payload)
	eval := rc.Evaluate(newGenotype)
	run.Genotype = scheduler.EncodeGenotype(newGenotype)
	run.HardConflicts = eval.HardConflicts
	run.SoftPenalty = eval.SoftPenalty
	run.PublishWarning = eval.HardConflicts > 0
	if err := s.runs.Update(ctx, run); err != nil {
		s.logger.Error("persist resolved timetable run failed", zap.Error(err))
		return outcome, "", appErrors.Wrap(err, "TIMETABLE_RUN_UPDATE_FAILED", 500, "resolved but failed to persist the updated run")
	}
	if err := s.conflicts.MarkResolved(ctx, conflictID); err != nil {
		s.logger.Error("mark conflict resolved failed", zap.Error(err))
		return outcome, "", appErrors.Wrap(err, "TIMETABLE_CONFLICT_UPDATE_FAILED", 500, "resolved but failed to persist the decision")
	}

	version := ""
	if s.signer != nil {
		sum := sha256.Sum256(run.Genotype)
		if token, _, err := s.signer.Generate(run.ID, hex.EncodeToString(sum[:])); err == nil {
			version = token
		} else {
			s.logger.Warn("version label signing failed", zap.Error(err))
		}
	}
	return outcome, version, nil
}

// ListOpenConflicts returns the unresolved conflicts for a persisted run
// (spec §6 supplemented conflict-listing surface; see DESIGN.md).
func (s *TimetableEngineService) ListOpenConflicts(ctx context.Context, runID string) ([]dto.ConflictListItem, error) {
	rows, err := s.conflicts.ListOpen(ctx, runID)
	if err != nil {
		return nil, appErrors.Wrap(err, "TIMETABLE_CONFLICT_LIST_FAILED", 500, "failed to list open conflicts")
	}
	out := make([]dto.ConflictListItem, 0, len(rows))
	for _, c := range rows {
		out = append(out, dto.ConflictListItem{
			ConflictID: c.ID, Kind: c.Kind, SlotID: c.SlotID, OtherID: c.OtherID, Message: c.Message,
		})
	}
	return out, nil
}

func translateSchedulerError(err error) error {
	var schedErr *scheduler.Error
	if !errors.As(err, &schedErr) {
		return appErrors.Wrap(err, "TIMETABLE_ENGINE_ERROR", 500, "timetable engine failed")
	}
	switch schedErr.Kind {
	case scheduler.KindLockUnrepresentable:
		return appErrors.Wrap(err, "TIMETABLE_LOCK_UNREPRESENTABLE", 422, schedErr.Error())
	case scheduler.KindInfeasiblePlacement:
		return appErrors.Wrap(err, "TIMETABLE_INFEASIBLE", 422, schedErr.Error())
	case scheduler.KindConfigurationInvalid:
		return appErrors.Wrap(err, "TIMETABLE_CONFIGURATION_INVALID", 422, schedErr.Error())
	default:
		return appErrors.Wrap(err, "TIMETABLE_ENGINE_ERROR", 500, schedErr.Error())
	}
}

func settingsToResponse(s scheduler.Settings) dto.GenerationSettingsRequest {
	return dto.GenerationSettingsRequest{
		SolverStrategy:              string(s.Strategy),
		PopulationSize:              s.PopulationSize,
		Generations:                 s.Generations,
		EliteCount:                  s.EliteCount,
		TournamentSize:              s.TournamentSize,
		StagnationLimit:             s.StagnationLimit,
		MutationRate:                s.MutationRate,
		CrossoverRate:               s.CrossoverRate,
		AnnealingIterations:         s.AnnealingIterations,
		AnnealingInitialTemperature: s.AnnealingInitialTemperature,
		AnnealingCoolingRate:        s.AnnealingCoolingRate,
		RandomSeed:                  &s.RandomSeed,
		ObjectiveWeights: &dto.ObjectiveWeightsRequest{
			RoomConflict: s.Weights.RoomConflict, FacultyConflict: s.Weights.FacultyConflict,
			SectionConflict: s.Weights.SectionConflict, RoomCapacity: s.Weights.RoomCapacity,
			RoomType: s.Weights.RoomType, FacultyAvailability: s.Weights.FacultyAvailability,
			LockedSlot: s.Weights.LockedSlot, SemesterLimit: s.Weights.SemesterLimit,
			WorkloadOverflow: s.Weights.WorkloadOverflow, WorkloadUnderflow: s.Weights.WorkloadUnderflow,
			FacultySubjectPreference: s.Weights.FacultySubjectPreference, SpreadBalance: s.Weights.SpreadBalance,
		},
	}
}

func alternativeToResponse(alt scheduler.AlternativeResult) dto.AlternativeResponse {
	out := dto.AlternativeResponse{
		Rank: alt.Rank, Fitness: alt.Fitness, HardConflicts: alt.HardConflicts, SoftPenalty: alt.SoftPenalty,
		Program: alt.Payload.Program, TermNumber: alt.Payload.TermNumber,
	}
	for _, slot := range alt.Payload.Slots {
		out.Slots = append(out.Slots, dto.PlacedSlotResponse{
			ID: slot.ID, Day: slot.Day, StartTime: slot.StartTime, EndTime: slot.EndTime,
			CourseID: slot.CourseID, CourseCode: slot.CourseCode, RoomID: slot.RoomID, FacultyID: slot.FacultyID,
			Section: slot.Section, Batch: slot.Batch, StudentCount: slot.StudentCount, SessionType: string(slot.SessionType),
		})
	}
	return out
}
