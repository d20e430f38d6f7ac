package scheduler

import "sort"

// Constructor builds seed genotypes using the priority-ordered best-fit/GRASP
// builder described in spec §4.5.
type Constructor struct {
	rc *RunContext

	order []int // request indices in construction priority order

	occupiedRoom           map[resourceKey]bool
	occupiedFaculty        map[resourceKey]bool
	occupiedSection        map[resourceKey]bool
	minutesBySection       map[string]int
	minutesByFaculty       map[string]int
	facultyByCourseSection map[[2]string]string
	labSignatureByGroup    map[[4]string]TimeWindow

	plannedFacultyByCourseSection map[[2]string]string
	plannedFacultyByCourse        map[string]string
}

// NewConstructor prepares priority ordering and the planned-faculty map (spec §4.5, "Plan faculty up front").
func NewConstructor(rc *RunContext) *Constructor {
	c := &Constructor{
		rc:                     rc,
		occupiedRoom:           make(map[resourceKey]bool),
		occupiedFaculty:        make(map[resourceKey]bool),
		occupiedSection:        make(map[resourceKey]bool),
		minutesBySection:       make(map[string]int),
		minutesByFaculty:       make(map[string]int),
		facultyByCourseSection: make(map[[2]string]string),
		labSignatureByGroup:    make(map[[4]string]TimeWindow),
	}
	c.order = c.priorityOrder()
	c.plannedFacultyByCourseSection, c.plannedFacultyByCourse = c.planFaculty()
	return c
}

// priorityOrder sorts BlockRequests by (lab first, fewest options, largest
// block size, largest student count, deterministic tie-break).
func (c *Constructor) priorityOrder() []int {
	order := make([]int, len(c.rc.Requests))
	for i := range order {
		order[i] = i
	}
	seed := c.rc.Seed
	sort.Slice(order, func(i, j int) bool {
		a, b := c.rc.Requests[order[i]], c.rc.Requests[order[j]]
		if a.IsLab != b.IsLab {
			return a.IsLab
		}
		if len(a.Options) != len(b.Options) {
			return len(a.Options) < len(b.Options)
		}
		if a.BlockSize != b.BlockSize {
			return a.BlockSize > b.BlockSize
		}
		if a.StudentCount != b.StudentCount {
			return a.StudentCount > b.StudentCount
		}
		return facultyTieBreakKey(seed, a.CourseCode, a.Section) < facultyTieBreakKey(seed, b.CourseCode, b.Section)
	})
	return order
}

// planFaculty computes, per (course,section) and per course, the common
// faculty candidate set and assigns the best-ranked faculty with enough
// remaining capacity (spec §4.5 "Plan faculty up front").
func (c *Constructor) planFaculty() (map[[2]string]string, map[string]string) {
	bySection := make(map[[2]string]string)
	byCourse := make(map[string]string)
	period := c.rc.Snapshot.Policy.PeriodMinutes

	remaining := make(map[string]int)
	for id, f := range c.rc.Snapshot.Faculty {
		remaining[id] = f.MaxHoursPerWeek * 60
	}

	assign := func(candidates []string, minutesNeeded int) string {
		best := ""
		bestRemaining := -1
		for _, id := range candidates {
			if remaining[id] >= minutesNeeded && remaining[id] > bestRemaining {
				best = id
				bestRemaining = remaining[id]
			}
		}
		if best != "" {
			remaining[best] -= minutesNeeded
		}
		return best
	}

	for key, members := range c.rc.requestsByCourseSection {
		candidates := commonFacultyCandidates(c.rc.Requests, members)
		minutesNeeded := 0
		for _, i := range members {
			minutesNeeded += c.rc.Requests[i].BlockSize * period
		}
		if picked := assign(candidates, minutesNeeded); picked != "" {
			bySection[[2]string{key[0], key[1]}] = picked
		}
	}
	for courseID, members := range c.rc.requestsByCourse {
		candidates := commonFacultyCandidates(c.rc.Requests, members)
		minutesNeeded := 0
		for _, i := range members {
			minutesNeeded += c.rc.Requests[i].BlockSize * period
		}
		if picked := assign(candidates, minutesNeeded); picked != "" {
			byCourse[courseID] = picked
		}
	}
	return bySection, byCourse
}

func commonFacultyCandidates(requests []BlockRequest, members []int) []string {
	set := make(map[string]int)
	for _, i := range members {
		seen := make(map[string]bool)
		for _, opt := range requests[i].Options {
			if !seen[opt.FacultyID] {
				seen[opt.FacultyID] = true
				set[opt.FacultyID]++
			}
		}
	}
	var out []string
	for id, count := range set {
		if count == len(members) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// ConstructorMode selects strict (dead-end aware) vs tolerant behaviour.
type ConstructorMode int

const (
	ModeTolerant ConstructorMode = iota
	ModeStrict
)

// Build runs one constructive pass. In ModeStrict it returns ok=false as soon
// as a block has no hard-feasible option (spec §4.5 step 5); in ModeTolerant
// it always returns a complete genotype, accepting the least-damaging option.
func (c *Constructor) Build(mode ConstructorMode, grasp float64) (Genotype, bool) {
	c.reset()
	g := make(Genotype, len(c.rc.Requests))
	for _, i := range c.order {
		if c.rc.Cancelled() {
			return g, false
		}
		req := c.rc.Requests[i]
		if oi, ok := c.rc.fixedGenes[i]; ok {
			g[i] = oi
			c.commit(req, req.Options[oi])
			continue
		}
		choice, feasible := c.chooseOption(req, grasp)
		if !feasible && mode == ModeStrict {
			return g, false
		}
		g[i] = choice
		c.commit(req, req.Options[choice])
	}
	return g, true
}

func (c *Constructor) reset() {
	c.occupiedRoom = make(map[resourceKey]bool)
	c.occupiedFaculty = make(map[resourceKey]bool)
	c.occupiedSection = make(map[resourceKey]bool)
	c.minutesBySection = make(map[string]int)
	c.minutesByFaculty = make(map[string]int)
	c.facultyByCourseSection = make(map[[2]string]string)
	c.labSignatureByGroup = make(map[[4]string]TimeWindow)
}

// chooseOption picks an option per spec §4.5 steps 2-5.
func (c *Constructor) chooseOption(req BlockRequest, grasp float64) (int, bool) {
	snap := c.rc.Snapshot
	candidates := c.windowedCandidates(req)

	if sibling, ok := c.facultyByCourseSection[[2]string{req.CourseID, req.Section}]; ok {
		candidates = filterByFaculty(req.Options, candidates, sibling)
	}
	if key, ok := parallelLabKey(req); ok {
		if sig, ok2 := c.labSignatureByGroup[key]; ok2 {
			candidates = filterBySignature(snap, req, candidates, sig)
		}
	}

	type scored struct {
		idx  int
		hard int
		soft float64
		key  string
	}
	var feasible []scored
	var fallback []scored
	for _, idx := range candidates {
		opt := req.Options[idx]
		hard, soft := c.incrementalPenalty(req, opt)
		s := scored{idx: idx, hard: hard, soft: soft, key: facultyTieBreakKey(c.rc.Seed, req.CourseCode, opt.FacultyID)}
		if hard == 0 {
			feasible = append(feasible, s)
		}
		fallback = append(fallback, s)
	}

	pool := feasible
	ok := true
	if len(pool) == 0 {
		pool = fallback
		ok = len(pool) > 0
	}
	if len(pool) == 0 {
		return 0, false
	}
	sort.Slice(pool, func(i, j int) bool {
		if pool[i].hard != pool[j].hard {
			return pool[i].hard < pool[j].hard
		}
		if pool[i].soft != pool[j].soft {
			return pool[i].soft < pool[j].soft
		}
		return pool[i].key < pool[j].key
	})

	if grasp <= 0 {
		return pool[0].idx, ok
	}
	best := pool[0].soft + float64(pool[0].hard)*hardPenaltyScale
	var restricted []scored
	for _, s := range pool {
		score := s.soft + float64(s.hard)*hardPenaltyScale
		if score <= best*(1+grasp) || best == 0 {
			restricted = append(restricted, s)
		}
	}
	pick := restricted[c.rc.Rand.Intn(len(restricted))]
	return pick.idx, ok
}

// windowedCandidates caps the candidate list per spec §4.5 step 2.
func (c *Constructor) windowedCandidates(req BlockRequest) []int {
	cap := 128
	if req.IsLab {
		cap = 72
	}
	idx := make([]int, len(req.Options))
	for i := range idx {
		idx[i] = i
	}
	if len(idx) > cap {
		idx = idx[:cap]
	}
	return idx
}

func filterByFaculty(options []PlacementOption, candidates []int, facultyID string) []int {
	var out []int
	for _, idx := range candidates {
		if options[idx].FacultyID == facultyID {
			out = append(out, idx)
		}
	}
	if len(out) == 0 {
		return candidates
	}
	return out
}

func parallelLabKey(req BlockRequest) ([4]string, bool) {
	if !req.IsLab || !req.AllowParallelBatches || req.Batch == "" {
		return [4]string{}, false
	}
	return [4]string{req.CourseID, req.Section, string(req.SessionType), itoa(req.BlockSize)}, true
}

func itoa(v int) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func filterBySignature(snap *Snapshot, req BlockRequest, candidates []int, sig TimeWindow) []int {
	var out []int
	for _, idx := range candidates {
		opt := req.Options[idx]
		w, ok := windowFor(snap.DaySlots[opt.Day], opt.StartIndex, req.BlockSize)
		if ok && w == sig {
			out = append(out, idx)
		}
	}
	if len(out) == 0 {
		return candidates
	}
	return out
}

// incrementalPenalty scores one option against the partial construction state
// (spec §4.5 steps 3-4): immediate conflict-freeness plus capacity waste and a
// small bonus for honouring the planned faculty map.
func (c *Constructor) incrementalPenalty(req BlockRequest, opt PlacementOption) (int, float64) {
	snap := c.rc.Snapshot
	weights := c.rc.Weights
	win, ok := windowFor(snap.DaySlots[opt.Day], opt.StartIndex, req.BlockSize)
	if !ok {
		return 1, 0
	}
	hard := 0
	room := snap.Rooms[opt.RoomID]
	fac := snap.Faculty[opt.FacultyID]

	if room.Capacity < req.StudentCount {
		hard += int(weights.RoomCapacity)
	}
	if req.IsLab != (room.Kind == RoomLab) {
		hard += int(weights.RoomType)
	}
	if !room.availableOn(opt.Day, win) {
		hard += int(weights.RoomType)
	}
	if !fac.allowsDay(opt.Day) || !fac.availableOn(opt.Day, win) {
		hard += int(weights.FacultyAvailability)
	}
	if !snap.withinSemesterWindow(win) {
		hard += int(weights.SemesterLimit)
	}
	if roomConflict, facultyConflict := snap.reservedConflictFlags(opt.Day, win, opt.RoomID, opt.FacultyID); roomConflict || facultyConflict {
		if roomConflict {
			hard += int(weights.RoomConflict)
		}
		if facultyConflict {
			hard += int(weights.FacultyConflict)
		}
	}

	for slot := opt.StartIndex; slot < opt.StartIndex+req.BlockSize; slot++ {
		if c.occupiedRoom[resourceKey{opt.Day, slot, opt.RoomID}] {
			hard += int(weights.RoomConflict)
		}
		if c.occupiedFaculty[resourceKey{opt.Day, slot, opt.FacultyID}] {
			hard += int(weights.FacultyConflict)
		}
		if c.occupiedSection[resourceKey{opt.Day, slot, req.Section}] {
			hard += int(weights.SectionConflict)
		}
	}

	capMinutes := fac.MaxHoursPerWeek * 60
	period := snap.Policy.PeriodMinutes
	if capMinutes > 0 && c.minutesByFaculty[opt.FacultyID]+req.BlockSize*period > capMinutes {
		hard += int(weights.WorkloadOverflow)
	}

	soft := float64(room.Capacity-req.StudentCount) * 0.5
	if planned, ok := c.plannedFacultyByCourseSection[[2]string{req.CourseID, req.Section}]; ok && planned == opt.FacultyID {
		soft -= 2
	} else if planned, ok := c.plannedFacultyByCourse[req.CourseID]; ok && planned == opt.FacultyID {
		soft -= 1
	}
	return hard, soft
}

// commit records a placed block's resource usage into the partial-construction indices.
func (c *Constructor) commit(req BlockRequest, opt PlacementOption) {
	snap := c.rc.Snapshot
	period := snap.Policy.PeriodMinutes
	for slot := opt.StartIndex; slot < opt.StartIndex+req.BlockSize; slot++ {
		c.occupiedRoom[resourceKey{opt.Day, slot, opt.RoomID}] = true
		c.occupiedFaculty[resourceKey{opt.Day, slot, opt.FacultyID}] = true
		c.occupiedSection[resourceKey{opt.Day, slot, req.Section}] = true
	}
	c.minutesBySection[req.Section] += req.BlockSize * period
	c.minutesByFaculty[opt.FacultyID] += req.BlockSize * period
	if !req.IsLab {
		c.facultyByCourseSection[[2]string{req.CourseID, req.Section}] = opt.FacultyID
	}
	if key, ok := parallelLabKey(req); ok {
		if w, ok2 := windowFor(snap.DaySlots[opt.Day], opt.StartIndex, req.BlockSize); ok2 {
			if _, exists := c.labSignatureByGroup[key]; !exists {
				c.labSignatureByGroup[key] = w
			}
		}
	}
}

// RandomIndividual builds a uniformly random genotype honouring only fixed locks.
func (rc *RunContext) RandomIndividual() Genotype {
	g := make(Genotype, len(rc.Requests))
	for i, req := range rc.Requests {
		if oi, ok := rc.fixedGenes[i]; ok {
			g[i] = oi
			continue
		}
		g[i] = rc.Rand.Intn(len(req.Options))
	}
	return g
}
