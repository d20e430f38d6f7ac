package scheduler

import "sort"

// ConflictKind names the category of conflict the resolver was asked to fix.
type ConflictKind string

const (
	ConflictRoomOverlap     ConflictKind = "room-overlap"
	ConflictCapacity        ConflictKind = "capacity"
	ConflictRoomAvailable   ConflictKind = "availability"
	ConflictFacultyOverlap  ConflictKind = "faculty-overlap"
	ConflictFacultyOverload ConflictKind = "workload"
)

// Conflict identifies one violation the auto-resolver should try to fix,
// naming the offending slot and (for overlaps) its counterpart (spec §4.11).
type Conflict struct {
	ID      string
	Kind    ConflictKind
	SlotID  string
	OtherID string // "" unless the conflict is a pairwise overlap
}

// ResolveOutcome reports what the resolver did (spec §4.11, §7 "Resolver could not fix").
type ResolveOutcome struct {
	Resolved bool
	Message  string
	Payload  Payload
}

// Resolver attempts minimum-churn fixes for a single named conflict against
// the currently published payload.
type Resolver struct {
	snap    *Snapshot
	ver     *Verifier
	weights ObjectiveWeights
}

// NewResolver binds a Resolver to one immutable snapshot. weights is used
// only to gate the lock guard below: a non-zero LockedSlot weight means the
// operator wants active locks protected from auto-resolution edits.
func NewResolver(snap *Snapshot, weights ObjectiveWeights) *Resolver {
	return &Resolver{snap: snap, ver: NewVerifier(snap), weights: weights}
}

// Resolve tries, in order, a room swap, a faculty swap, and a time move,
// committing only the first edit that both removes the targeted conflict and
// introduces no new hard conflict (spec §4.11). A locked slot is never
// touched while LockedSlot carries a positive weight (spec §4.11's "Active
// lock not representable" invariant extended to resolver edits).
func (r *Resolver) Resolve(payload Payload, c Conflict) ResolveOutcome {
	before := r.hardConflictSet(payload)
	if !before[conflictKey(c)] {
		return ResolveOutcome{Resolved: false, Message: "named conflict is not present in the current payload", Payload: payload}
	}
	if r.weights.LockedSlot > 0 {
		if target := findSlot(payload, c.SlotID); target != nil && r.isLockedTarget(target) {
			return ResolveOutcome{Resolved: false, Message: "slot is protected by an active lock; manual action required", Payload: payload}
		}
	}

	if out, ok := r.tryRoomSwap(payload, c, before); ok {
		return out
	}
	if out, ok := r.tryFacultySwap(payload, c, before); ok {
		return out
	}
	if out, ok := r.tryTimeMove(payload, c, before); ok {
		return out
	}
	return ResolveOutcome{Resolved: false, Message: "no candidate edit cleared the conflict without introducing a new one; manual action required", Payload: payload}
}

// isLockedTarget reports whether s matches an active SlotLock, by course,
// section, batch, day, and time window.
func (r *Resolver) isLockedTarget(s *PlacedSlot) bool {
	w, ok := parseWindow(s.StartTime, s.EndTime)
	if !ok {
		return false
	}
	for _, lock := range r.snap.Locks {
		if !lock.Active || lock.CourseID != s.CourseID || lock.Section != s.Section || lock.Day != s.Day {
			continue
		}
		if lock.Batch != "" && lock.Batch != s.Batch {
			continue
		}
		if lock.Start == w.Start && lock.End == w.End {
			return true
		}
	}
	return false
}

func conflictKey(c Conflict) string {
	a, b := c.SlotID, c.OtherID
	if b != "" && a > b {
		a, b = b, a
	}
	return string(c.Kind) + "|" + a + "|" + b
}

// hardConflictSet mirrors the evaluator's hard-violation logic directly over
// a decoded payload, keyed the same way Conflict identifies violations, so
// the resolver can check "has this exact conflict disappeared".
func (r *Resolver) hardConflictSet(payload Payload) map[string]bool {
	out := make(map[string]bool)

	for _, s := range payload.Slots {
		room, ok := r.snap.Rooms[s.RoomID]
		if ok && room.Capacity < s.StudentCount {
			out[conflictKey(Conflict{Kind: ConflictCapacity, SlotID: s.ID})] = true
		}
		w, wok := parseWindow(s.StartTime, s.EndTime)
		if ok && wok && !room.availableOn(s.Day, w) {
			out[conflictKey(Conflict{Kind: ConflictRoomAvailable, SlotID: s.ID})] = true
		}
	}

	type key struct {
		day  string
		slot int
		id   string
	}
	roomBuckets := make(map[key][]PlacedSlot)
	facultyBuckets := make(map[key][]PlacedSlot)
	for _, s := range payload.Slots {
		for slot := s.StartIndex; slot < s.StartIndex+s.BlockSize; slot++ {
			roomBuckets[key{s.Day, slot, s.RoomID}] = append(roomBuckets[key{s.Day, slot, s.RoomID}], s)
			facultyBuckets[key{s.Day, slot, s.FacultyID}] = append(facultyBuckets[key{s.Day, slot, s.FacultyID}], s)
		}
	}
	for _, members := range roomBuckets {
		if len(members) < 2 || allSharedLecture(members) {
			continue
		}
		markPairwise(out, members, ConflictRoomOverlap)
	}
	for _, members := range facultyBuckets {
		if len(members) < 2 || allSharedLecture(members) {
			continue
		}
		markPairwise(out, members, ConflictFacultyOverlap)
	}
	return out
}

func markPairwise(out map[string]bool, members []PlacedSlot, kind ConflictKind) {
	for a := 0; a < len(members); a++ {
		for b := a + 1; b < len(members); b++ {
			out[conflictKey(Conflict{Kind: kind, SlotID: members[a].ID, OtherID: members[b].ID})] = true
		}
	}
}

// tryRoomSwap handles room-overlap, capacity, and room-availability conflicts
// by substituting the offending slot's room, ranked by least capacity waste
// (spec §4.11 step 1).
func (r *Resolver) tryRoomSwap(payload Payload, c Conflict, before map[string]bool) (ResolveOutcome, bool) {
	if c.Kind != ConflictRoomOverlap && c.Kind != ConflictCapacity && c.Kind != ConflictRoomAvailable {
		return ResolveOutcome{}, false
	}
	target := findSlot(payload, c.SlotID)
	if target == nil {
		return ResolveOutcome{}, false
	}
	w, ok := parseWindow(target.StartTime, target.EndTime)
	if !ok {
		return ResolveOutcome{}, false
	}

	var candidates []Room
	for _, room := range r.snap.Rooms {
		wantLab := target.SessionType == SessionLab
		if wantLab != (room.Kind == RoomLab) {
			continue
		}
		if room.Capacity < target.StudentCount {
			continue
		}
		if !room.availableOn(target.Day, w) {
			continue
		}
		candidates = append(candidates, room)
	}
	sort.Slice(candidates, func(i, j int) bool {
		wi, wj := candidates[i].Capacity-target.StudentCount, candidates[j].Capacity-target.StudentCount
		if wi != wj {
			return wi < wj
		}
		return candidates[i].Name < candidates[j].Name
	})

	for _, room := range candidates {
		if room.ID == target.RoomID {
			continue
		}
		attempt := payload
		attempt.Slots = cloneSlots(payload.Slots)
		setRoom(attempt.Slots, target.ID, room.ID)
		if out, ok := r.evaluateAttempt(attempt, c, before); ok {
			return out, true
		}
	}
	return ResolveOutcome{}, false
}

// tryFacultySwap handles faculty-overlap and faculty-availability conflicts,
// ranked by preference match then remaining workload (spec §4.11 step 2).
func (r *Resolver) tryFacultySwap(payload Payload, c Conflict, before map[string]bool) (ResolveOutcome, bool) {
	if c.Kind != ConflictFacultyOverlap && c.Kind != ConflictRoomAvailable {
		return ResolveOutcome{}, false
	}
	target := findSlot(payload, c.SlotID)
	if target == nil {
		return ResolveOutcome{}, false
	}
	w, ok := parseWindow(target.StartTime, target.EndTime)
	if !ok {
		return ResolveOutcome{}, false
	}

	minutesByFaculty := make(map[string]int)
	for _, s := range payload.Slots {
		minutesByFaculty[s.FacultyID] += s.BlockSize * r.snap.Policy.PeriodMinutes
	}

	type scored struct {
		id        string
		preferred bool
		remaining int
	}
	var candidates []scored
	needed := target.BlockSize * r.snap.Policy.PeriodMinutes
	for id, fac := range r.snap.Faculty {
		if !fac.allowsDay(target.Day) || !fac.availableOn(target.Day, w) {
			continue
		}
		remaining := fac.MaxHoursPerWeek*60 - minutesByFaculty[id]
		if remaining < needed {
			continue
		}
		candidates = append(candidates, scored{id: id, preferred: fac.prefersSubject(0, target.CourseCode), remaining: remaining})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].preferred != candidates[j].preferred {
			return candidates[i].preferred
		}
		return candidates[i].remaining > candidates[j].remaining
	})

	for _, cand := range candidates {
		if cand.id == target.FacultyID {
			continue
		}
		attempt := payload
		attempt.Slots = cloneSlots(payload.Slots)
		setFaculty(attempt.Slots, target.ID, cand.id)
		if out, ok := r.evaluateAttempt(attempt, c, before); ok {
			return out, true
		}
	}
	return ResolveOutcome{}, false
}

// tryTimeMove relocates the offending slot to the nearest valid teaching
// block, re-swapping room/faculty if needed (spec §4.11 step 3, last resort).
func (r *Resolver) tryTimeMove(payload Payload, c Conflict, before map[string]bool) (ResolveOutcome, bool) {
	target := findSlot(payload, c.SlotID)
	if target == nil {
		return ResolveOutcome{}, false
	}
	room := r.snap.Rooms[target.RoomID]
	fac := r.snap.Faculty[target.FacultyID]

	for _, day := range WorkingDays {
		slots := r.snap.DaySlots[day]
		for start := 0; start+target.BlockSize <= len(slots); start++ {
			w, ok := windowFor(slots, start, target.BlockSize)
			if !ok || (day == target.Day && w.Start == mustStart(target)) {
				continue
			}
			if !room.availableOn(day, w) || !fac.allowsDay(day) || !fac.availableOn(day, w) {
				continue
			}
			if !r.snap.withinSemesterWindow(w) {
				continue
			}
			attempt := payload
			attempt.Slots = cloneSlots(payload.Slots)
			moveSlot(attempt.Slots, target.ID, day, w, start)
			if out, ok := r.evaluateAttempt(attempt, c, before); ok {
				return out, true
			}
		}
	}
	return ResolveOutcome{}, false
}

func mustStart(s *PlacedSlot) int {
	w, _ := parseWindow(s.StartTime, s.EndTime)
	return w.Start
}

// evaluateAttempt re-runs the hard-conflict scan on an edited payload and
// commits only if the targeted conflict is gone and no new one appeared.
func (r *Resolver) evaluateAttempt(attempt Payload, c Conflict, before map[string]bool) (ResolveOutcome, bool) {
	after := r.hardConflictSet(attempt)
	if after[conflictKey(c)] {
		return ResolveOutcome{}, false
	}
	for k := range after {
		if !before[k] {
			return ResolveOutcome{}, false
		}
	}
	return ResolveOutcome{Resolved: true, Message: "conflict resolved", Payload: attempt}, true
}

func findSlot(p Payload, id string) *PlacedSlot {
	for i := range p.Slots {
		if p.Slots[i].ID == id {
			return &p.Slots[i]
		}
	}
	return nil
}

func cloneSlots(slots []PlacedSlot) []PlacedSlot {
	out := make([]PlacedSlot, len(slots))
	copy(out, slots)
	return out
}

func setRoom(slots []PlacedSlot, id, roomID string) {
	for i := range slots {
		if slots[i].ID == id {
			slots[i].RoomID = roomID
			return
		}
	}
}

func setFaculty(slots []PlacedSlot, id, facultyID string) {
	for i := range slots {
		if slots[i].ID == id {
			slots[i].FacultyID = facultyID
			return
		}
	}
}

func moveSlot(slots []PlacedSlot, id, day string, w TimeWindow, startIndex int) {
	for i := range slots {
		if slots[i].ID == id {
			slots[i].Day = day
			slots[i].StartTime = formatMinutes(w.Start)
			slots[i].EndTime = formatMinutes(w.End)
			slots[i].StartIndex = startIndex
			return
		}
	}
}
