package scheduler

import "sort"

// Repairer applies local and intensive repair passes on top of a genotype
// produced by the constructor or a driver (spec §4.6, §4.7, §4.8).
type Repairer struct {
	rc *RunContext
}

// NewRepairer binds a Repairer to one run.
func NewRepairer(rc *RunContext) *Repairer {
	return &Repairer{rc: rc}
}

// LocalRepair retries each conflicted block against its own option list,
// picking the replacement with the best lexicographic (hard, soft) pair when
// it strictly improves on the current one, then separately harmonises faculty assignments within a
// course/section and finally attempts a room-only swap for any capacity/type
// mismatch that survives (spec §4.6).
func (r *Repairer) LocalRepair(g Genotype, maxPasses int) Genotype {
	cur := g.Clone()
	for pass := 0; pass < maxPasses; pass++ {
		if r.rc.Cancelled() {
			return cur
		}
		improved := r.repairPass(cur)
		r.harmonizeFaculty(cur)
		roomImproved := r.roomOnlyRepair(cur)
		if !improved && !roomImproved {
			break
		}
	}
	return cur
}

func (r *Repairer) repairPass(g Genotype) bool {
	conflicted := r.rc.ConflictedRequests(g)
	if len(conflicted) == 0 {
		return false
	}
	var indices []int
	for i := range conflicted {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	anyImproved := false
	for _, i := range indices {
		if _, locked := r.rc.fixedGenes[i]; locked {
			continue
		}
		req := r.rc.Requests[i]
		before := r.rc.Evaluate(g)
		bestIdx := g[i]
		best := before
		for oi := range req.Options {
			if oi == g[i] {
				continue
			}
			g[i] = oi
			cand := r.rc.Evaluate(g)
			if cand.Less(best) {
				best = cand
				bestIdx = oi
			}
		}
		g[i] = bestIdx
		if best.Less(before) {
			anyImproved = true
		}
	}
	return anyImproved
}

// harmonizeFaculty re-assigns each non-lab block within a course/section to
// the majority faculty when its own option list holds a majority-faculty
// option at the same day and start, undoing the move if it adds hard
// conflicts (spec §4.6 "harmonize faculty").
func (r *Repairer) harmonizeFaculty(g Genotype) {
	for _, members := range r.rc.requestsByCourseSection {
		nonLab := filterNonLab(r.rc.Requests, members)
		if len(nonLab) < 2 {
			continue
		}
		counts := make(map[string]int)
		for _, i := range nonLab {
			opt := r.rc.Requests[i].Options[g[i]]
			counts[opt.FacultyID]++
		}
		majorityFaculty, majorityCount := "", 0
		for f, c := range counts {
			if c > majorityCount {
				majorityFaculty, majorityCount = f, c
			}
		}
		if majorityFaculty == "" || majorityCount == len(nonLab) {
			continue
		}
		for _, i := range nonLab {
			if _, locked := r.rc.fixedGenes[i]; locked {
				continue
			}
			req := r.rc.Requests[i]
			opt := req.Options[g[i]]
			if opt.FacultyID == majorityFaculty {
				continue
			}
			for oi, cand := range req.Options {
				if cand.FacultyID == majorityFaculty && cand.Day == opt.Day && cand.StartIndex == opt.StartIndex {
					before := r.rc.Evaluate(g)
					prev := g[i]
					g[i] = oi
					after := r.rc.Evaluate(g)
					if after.Less(before) || after.HardConflicts == before.HardConflicts {
						break
					}
					g[i] = prev
					break
				}
			}
		}
	}
}

// roomOnlyRepair tries swapping only the room for any block whose current
// room mismatches capacity or kind, keeping day/start/faculty fixed (spec §4.6).
func (r *Repairer) roomOnlyRepair(g Genotype) bool {
	snap := r.rc.Snapshot
	improved := false
	for i, req := range r.rc.Requests {
		if _, locked := r.rc.fixedGenes[i]; locked {
			continue
		}
		opt := req.Options[g[i]]
		room := snap.Rooms[opt.RoomID]
		needsFix := room.Capacity < req.StudentCount || (req.IsLab != (room.Kind == RoomLab))
		if !needsFix {
			continue
		}
		before := r.rc.Evaluate(g)
		bestIdx := g[i]
		best := before
		for oi, cand := range req.Options {
			if cand.Day != opt.Day || cand.StartIndex != opt.StartIndex || cand.FacultyID != opt.FacultyID {
				continue
			}
			g[i] = oi
			score := r.rc.Evaluate(g)
			if score.Less(best) {
				best = score
				bestIdx = oi
			}
		}
		g[i] = bestIdx
		if best.Less(before) {
			improved = true
		}
	}
	return improved
}

// IntensiveRepair runs LocalRepair to a fixed point, then escapes plateaus by
// perturbing a random subset of the conflicted blocks to diversify the
// search before repairing again, keeping the best genotype seen (spec §4.7).
func (r *Repairer) IntensiveRepair(g Genotype, rounds, perturbSize int) Genotype {
	best := r.LocalRepair(g, 8)
	bestEval := r.rc.Evaluate(best)

	for round := 0; round < rounds; round++ {
		if r.rc.Cancelled() || bestEval.HardConflicts == 0 {
			break
		}
		candidate := best.Clone()
		r.perturb(candidate, perturbSize)
		candidate = r.LocalRepair(candidate, 8)
		candEval := r.rc.Evaluate(candidate)
		if candEval.Less(bestEval) {
			best, bestEval = candidate, candEval
		}
	}
	return best
}

// perturb reassigns a random subset of the conflicted blocks (or of all
// unlocked blocks when none is conflicted) to a randomly chosen option, to
// diversify a stalled local search.
func (r *Repairer) perturb(g Genotype, count int) {
	conflicted := r.rc.ConflictedRequests(g)
	var indices []int
	for i := range conflicted {
		if _, locked := r.rc.fixedGenes[i]; !locked {
			indices = append(indices, i)
		}
	}
	if len(indices) == 0 {
		for i := range g {
			if _, locked := r.rc.fixedGenes[i]; !locked {
				indices = append(indices, i)
			}
		}
	}
	r.rc.Rand.Shuffle(len(indices), func(a, b int) { indices[a], indices[b] = indices[b], indices[a] })
	if count > len(indices) {
		count = len(indices)
	}
	for _, i := range indices[:count] {
		req := r.rc.Requests[i]
		if len(req.Options) <= 1 {
			continue
		}
		g[i] = r.rc.Rand.Intn(len(req.Options))
	}
}

// OverlapOnlyRepair is the cheap pass the fast driver runs: it greedily
// moves each block ConflictedRequests flags to the option that clears its
// hard violation, ignoring soft penalties, in deterministic request order
// (spec §4.8).
func (r *Repairer) OverlapOnlyRepair(g Genotype, maxPasses int) Genotype {
	cur := g.Clone()
	for pass := 0; pass < maxPasses; pass++ {
		if r.rc.Cancelled() {
			return cur
		}
		conflicted := r.rc.ConflictedRequests(cur)
		if len(conflicted) == 0 {
			break
		}
		var indices []int
		for i := range conflicted {
			indices = append(indices, i)
		}
		sort.Ints(indices)
		changed := false
		for _, i := range indices {
			if _, locked := r.rc.fixedGenes[i]; locked {
				continue
			}
			req := r.rc.Requests[i]
			before := countHardAt(r.rc, cur, i)
			bestIdx := cur[i]
			bestHard := before
			for oi := range req.Options {
				if oi == cur[i] {
					continue
				}
				cur[i] = oi
				h := countHardAt(r.rc, cur, i)
				if h < bestHard {
					bestHard = h
					bestIdx = oi
				}
			}
			cur[i] = bestIdx
			if bestHard < before {
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return cur
}

// countHardAt is a cheap single-block proxy for OverlapOnlyRepair: 1 when
// block i is still conflicted and 0 otherwise, used only to rank candidate
// options for block i without re-running the full evaluator.
func countHardAt(rc *RunContext, g Genotype, i int) int {
	conflicted := rc.ConflictedRequests(g)
	if conflicted[i] {
		return 1
	}
	return 0
}
