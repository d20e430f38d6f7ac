package scheduler

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// PlacedSlot is one decoded block placement, the unit the response payload
// and the verifier both operate on (spec §6).
type PlacedSlot struct {
	ID           string
	Day          string
	StartTime    string
	EndTime      string
	CourseID     string
	CourseCode   string
	RoomID       string
	FacultyID    string
	Section      string
	Batch        string
	StudentCount int
	SessionType  SessionType
	BlockSize    int
	StartIndex   int
}

// Payload is the decoded working set plus placed slots returned to the
// caller for one alternative (spec §6 "payload").
type Payload struct {
	Program    string
	TermNumber int
	Slots      []PlacedSlot
}

// DecodePayload turns a genotype into the response payload, resolving each
// option's slot index into clock time via the snapshot's day grid.
func (rc *RunContext) DecodePayload(g Genotype) Payload {
	slots := make([]PlacedSlot, 0, len(rc.Requests))
	for i, req := range rc.Requests {
		idx := g[i]
		if idx < 0 || idx >= len(req.Options) {
			idx = 0
		}
		opt := req.Options[idx]
		w, _ := windowFor(rc.Snapshot.DaySlots[opt.Day], opt.StartIndex, req.BlockSize)
		slots = append(slots, PlacedSlot{
			ID:           uuid.NewString(),
			Day:          opt.Day,
			StartTime:    formatMinutes(w.Start),
			EndTime:      formatMinutes(w.End),
			CourseID:     req.CourseID,
			CourseCode:   req.CourseCode,
			RoomID:       opt.RoomID,
			FacultyID:    opt.FacultyID,
			Section:      req.Section,
			Batch:        req.Batch,
			StudentCount: req.StudentCount,
			SessionType:  req.SessionType,
			BlockSize:    req.BlockSize,
			StartIndex:   opt.StartIndex,
		})
	}
	return Payload{Program: rc.Snapshot.Program, TermNumber: rc.Snapshot.TermNumber, Slots: slots}
}

func formatMinutes(m int) string {
	h := (m / 60) % 24
	mm := m % 60
	return fmt.Sprintf("%02d:%02d", h, mm)
}

// Fingerprint returns the canonical payload fingerprint used for cross-driver
// deduplication (spec §4.9 "auto... merging deduplicates by a canonical
// payload fingerprint (sorted tuples of slot signatures)").
func (p Payload) Fingerprint() string {
	sigs := make([]string, len(p.Slots))
	for i, s := range p.Slots {
		sigs[i] = fmt.Sprintf("%s|%s|%s|%s|%s|%s|%s", s.Day, s.StartTime, s.EndTime, s.CourseID, s.Section, s.Batch, s.RoomID)
	}
	sort.Strings(sigs)
	out := ""
	for _, s := range sigs {
		out += s + ";"
	}
	return out
}

// AlternativeResult is one ranked, decoded alternative in the generate
// response (spec §6 "alternatives: [{rank, fitness, hard_conflicts,
// soft_penalty, payload, …}]").
type AlternativeResult struct {
	Rank          int
	Fitness       float64
	HardConflicts int
	SoftPenalty   float64
	Payload       Payload
}

// DecodeAlternatives ranks and decodes a Result's genotypes into the external
// response shape, deduplicating by payload fingerprint and setting aside any
// candidate with hard conflicts behind conflict-free ones (spec §4.9
// "Alternatives, ranking, and deduplication").
func (rc *RunContext) DecodeAlternatives(result Result, count int) ([]AlternativeResult, bool) {
	type decoded struct {
		payload Payload
		eval    Evaluation
	}
	seen := make(map[string]bool)
	var clean, conflicted []decoded
	for _, g := range result.Alternatives {
		payload := rc.DecodePayload(g)
		fp := payload.Fingerprint()
		if seen[fp] {
			continue
		}
		seen[fp] = true
		eval := rc.Evaluate(g)
		d := decoded{payload: payload, eval: eval}
		if eval.HardConflicts == 0 {
			clean = append(clean, d)
		} else {
			conflicted = append(conflicted, d)
		}
	}
	ordered := append(clean, conflicted...)
	if count > len(ordered) {
		count = len(ordered)
	}
	out := make([]AlternativeResult, count)
	for i := 0; i < count; i++ {
		out[i] = AlternativeResult{
			Rank:          i + 1,
			Fitness:       ordered[i].eval.Fitness,
			HardConflicts: ordered[i].eval.HardConflicts,
			SoftPenalty:   ordered[i].eval.SoftPenalty,
			Payload:       ordered[i].payload,
		}
	}
	publishWarning := len(clean) == 0 && len(ordered) > 0
	return out, publishWarning
}

// NewReservedSlot parses an operator-supplied (day, start, end, room?,
// faculty?) tuple into a ReservedSlot, for generate/cycle requests that
// reserve an already-placed resource against this run's candidates.
func NewReservedSlot(day, startTime, endTime, roomID, facultyID string) (ReservedSlot, bool) {
	w, ok := parseWindow(startTime, endTime)
	if !ok {
		return ReservedSlot{}, false
	}
	return ReservedSlot{Day: day, Window: w, RoomID: roomID, FacultyID: facultyID}, true
}

// ReservedSlotFromPlacedSlot converts one solved term's placed slot into a
// ReservedSlot so a cycle generation can carry it forward and reserve it
// against the next term's candidates (spec §6 "Cycle generation").
func ReservedSlotFromPlacedSlot(s PlacedSlot) (ReservedSlot, bool) {
	return NewReservedSlot(s.Day, s.StartTime, s.EndTime, s.RoomID, s.FacultyID)
}
