package scheduler

import (
	"context"
	"math/rand"
	"sync"
)

// RunContext owns everything mutable for one solver run: the evaluation memo,
// the random generator, and derived per-request indices. It is created once
// per Run call and must never be shared across concurrent runs (spec §5).
type RunContext struct {
	Snapshot *Snapshot
	Requests []BlockRequest
	Weights  ObjectiveWeights
	Rand     *rand.Rand
	Seed     int64

	evalCache   map[string]Evaluation
	evalCacheMu sync.Mutex

	requestsByCourseSection map[[2]string][]int
	requestsByCourse        map[string][]int
	sharedGroupBaseline     map[string][]int
	fixedGenes              map[int]int // request id -> forced option index, from SlotLocks

	cancel func() bool
}

// NewRunContext builds the derived indices a run needs once expansion has produced requests.
func NewRunContext(ctx context.Context, snap *Snapshot, requests []BlockRequest, settings Settings) (*RunContext, error) {
	rc := &RunContext{
		Snapshot:  snap,
		Requests:  requests,
		Weights:   settings.Weights,
		Rand:      rand.New(rand.NewSource(settings.RandomSeed)),
		Seed:      settings.RandomSeed,
		evalCache: make(map[string]Evaluation),
		cancel:    cancelledFunc(ctx),
	}
	rc.requestsByCourseSection = make(map[[2]string][]int)
	rc.requestsByCourse = make(map[string][]int)
	for i, r := range requests {
		key := [2]string{r.CourseID, r.Section}
		rc.requestsByCourseSection[key] = append(rc.requestsByCourseSection[key], i)
		rc.requestsByCourse[r.CourseID] = append(rc.requestsByCourse[r.CourseID], i)
	}
	fixed, err := resolveLocks(snap, requests)
	if err != nil {
		return nil, err
	}
	rc.fixedGenes = fixed
	return rc, nil
}

func cancelledFunc(ctx context.Context) func() bool {
	if ctx == nil {
		return func() bool { return false }
	}
	return func() bool {
		select {
		case <-ctx.Done():
			return true
		default:
			return false
		}
	}
}

// Cancelled reports whether the caller's context/deadline has fired. Checked
// between driver iterations and between block placements (spec §5).
func (rc *RunContext) Cancelled() bool {
	return rc.cancel != nil && rc.cancel()
}

// resolveLocks maps every active SlotLock onto exactly one BlockRequest's option index (spec §4.2, §7).
func resolveLocks(snap *Snapshot, requests []BlockRequest) (map[int]int, error) {
	fixed := make(map[int]int)
	for _, lock := range snap.Locks {
		if !lock.Active {
			continue
		}
		matched := false
		for i, req := range requests {
			if req.CourseID != lock.CourseID || req.Section != lock.Section || req.Batch != lock.Batch {
				continue
			}
			for oi, opt := range req.Options {
				if opt.Day != lock.Day {
					continue
				}
				w, ok := windowFor(snap.DaySlots[opt.Day], opt.StartIndex, req.BlockSize)
				if !ok || w.Start != lock.Start || w.End != lock.End {
					continue
				}
				if lock.RoomID != "" && opt.RoomID != lock.RoomID {
					continue
				}
				if lock.FacultyID != "" && opt.FacultyID != lock.FacultyID {
					continue
				}
				fixed[i] = oi
				matched = true
				break
			}
			if matched {
				break
			}
		}
		if !matched {
			return nil, newError(KindLockUnrepresentable,
				"active slot lock on %s/%s (%s %d-%d) does not match any feasible placement option",
				lock.CourseID, lock.Section, lock.Day, lock.Start, lock.End)
		}
	}
	return fixed, nil
}

func genotypeKey(g Genotype) string {
	return string(EncodeGenotype(g))
}

// EncodeGenotypeFromPayload re-derives a genotype from an edited payload by
// matching each request's slot back to its option index, for persisting a
// resolver's edit (spec §4.11 "persist the resolved payload"). A slot that no
// longer matches any enumerated option (e.g. a resolver time move onto a
// window not among the original candidates) keeps its prior gene, since the
// payload itself - not the genotype - is the source of truth once the
// resolver has committed an edit.
func (rc *RunContext) EncodeGenotypeFromPayload(base Genotype, payload Payload) Genotype {
	out := append(Genotype(nil), base...)
	for i, req := range rc.Requests {
		if i >= len(payload.Slots) {
			break
		}
		s := payload.Slots[i]
		for oi, opt := range req.Options {
			if opt.Day == s.Day && opt.StartIndex == s.StartIndex && opt.RoomID == s.RoomID && opt.FacultyID == s.FacultyID {
				out[i] = oi
				break
			}
		}
	}
	return out
}

// EncodeGenotype serializes a genotype for persistence (spec §6 "re-decoding
// a persisted alternative"); DecodeGenotype is its exact inverse.
func EncodeGenotype(g Genotype) []byte {
	b := make([]byte, 0, len(g)*4)
	for _, v := range g {
		b = append(b, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
	}
	return b
}

// DecodeGenotype reverses EncodeGenotype.
func DecodeGenotype(b []byte) Genotype {
	g := make(Genotype, len(b)/4)
	for i := range g {
		off := i * 4
		g[i] = int(int32(uint32(b[off]) | uint32(b[off+1])<<8 | uint32(b[off+2])<<16 | uint32(b[off+3])<<24))
	}
	return g
}
