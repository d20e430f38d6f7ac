package scheduler

// RunFast implements the "fast" driver (spec §4.9): a single deterministic
// constructive pass followed by the cheap overlap-only repair, trading
// solution quality for latency. Used by auto when the request is large or the
// caller asks for speed over polish.
func RunFast(rc *RunContext, s Settings) Genotype {
	cons := NewConstructor(rc)
	repairer := NewRepairer(rc)

	g, ok := cons.Build(ModeTolerant, 0)
	if !ok {
		g = repairer.OverlapOnlyRepair(g, 6)
	}
	g = repairer.OverlapOnlyRepair(g, 6)
	return repairer.LocalRepair(g, 2)
}
