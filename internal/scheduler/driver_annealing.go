package scheduler

import "math"

// RunAnnealing implements the simulated-annealing driver (spec §4.9
// "simulated_annealing"): starts from a constructed solution, proposes a
// single-gene move each iteration, accepts improving moves always and
// worsening moves with Metropolis probability, and cools geometrically.
func RunAnnealing(rc *RunContext, s Settings) Genotype {
	cons := NewConstructor(rc)
	repairer := NewRepairer(rc)

	cur, _ := cons.Build(ModeTolerant, 0.1)
	cur = repairer.LocalRepair(cur, 4)
	curEval := rc.Evaluate(cur)

	best := cur.Clone()
	bestEval := curEval

	temperature := s.AnnealingInitialTemperature
	if temperature <= 0 {
		temperature = 1
	}

	movable := make([]int, 0, len(rc.Requests))
	for i, req := range rc.Requests {
		if _, locked := rc.fixedGenes[i]; locked {
			continue
		}
		if len(req.Options) > 1 {
			movable = append(movable, i)
		}
	}
	if len(movable) == 0 {
		return best
	}

	for iter := 0; iter < s.AnnealingIterations; iter++ {
		if rc.Cancelled() {
			break
		}
		idx := movable[rc.Rand.Intn(len(movable))]
		req := rc.Requests[idx]
		prev := cur[idx]
		next := rc.Rand.Intn(len(req.Options))
		if next == prev {
			continue
		}
		cur[idx] = next
		candEval := rc.Evaluate(cur)

		delta := (float64(candEval.HardConflicts)*hardPenaltyScale + candEval.SoftPenalty) -
			(float64(curEval.HardConflicts)*hardPenaltyScale + curEval.SoftPenalty)

		accept := delta <= 0
		if !accept && temperature > 1e-9 {
			accept = rc.Rand.Float64() < math.Exp(-delta/temperature)
		}
		if accept {
			curEval = candEval
			if curEval.Less(bestEval) {
				best = cur.Clone()
				bestEval = curEval
			}
		} else {
			cur[idx] = prev
		}

		temperature *= s.AnnealingCoolingRate
		if temperature < 1e-6 {
			temperature = 1e-6
		}
	}

	return repairer.LocalRepair(best, 8)
}
