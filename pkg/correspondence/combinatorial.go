package correspondence

import (
	"fmt"
	"math"
	"math/bits"

	"fixelmatch/internal/models"
)

// Defaults for the combinatorial matching algorithms.
const (
	// DefaultMaxOrigins bounds how many source fixels may feed one
	// target fixel.
	DefaultMaxOrigins = 3

	// DefaultMaxObjectives bounds how many target fixels one source
	// fixel may feed.
	DefaultMaxObjectives = 3

	// DefaultAlpha weights the fan-out multiplicity cost term.
	DefaultAlpha = 1.0

	// DefaultBeta weights the coverage / density-mismatch cost term.
	DefaultBeta = 1.0
)

// CombinatorialVariant selects the cost-term blend used by the
// combinatorial search. The search structure and tractability bounds
// are shared; only the weighting of cost terms differs.
type CombinatorialVariant int

const (
	// VariantAngular sums the raw angular penalty over assigned pairs
	// and charges a flat unit penalty for every unassigned source
	// fixel and unmatched target fixel.
	VariantAngular CombinatorialVariant = iota

	// VariantWeighted weights each pair's angular penalty by the
	// source fixel's density share, and replaces the flat coverage
	// penalty with the absolute density mismatch per target fixel, so
	// that dense fixels dominate the optimisation.
	VariantWeighted
)

// CombinatorialParams configures a combinatorial matching algorithm.
type CombinatorialParams struct {
	// MaxOrigins is the maximal number of source fixels assignable to
	// a single target fixel.
	MaxOrigins int

	// MaxObjectives is the maximal number of target fixels a single
	// source fixel may be assigned to.
	MaxObjectives int

	// Alpha and Beta scale the fan-out multiplicity term and the
	// coverage / density-mismatch term of the cost function.
	Alpha, Beta float64

	// PruningMinFixels is the minimum per-voxel direction count at
	// which the convexity-based grouping restriction is applied.
	PruningMinFixels int

	// CostResolution is the bin count of the angular penalty lookup.
	CostResolution int
}

// DefaultCombinatorialParams returns the parameter set used when the
// caller configures nothing.
func DefaultCombinatorialParams() CombinatorialParams {
	return CombinatorialParams{
		MaxOrigins:       DefaultMaxOrigins,
		MaxObjectives:    DefaultMaxObjectives,
		Alpha:            DefaultAlpha,
		Beta:             DefaultBeta,
		PruningMinFixels: DefaultPruningMinFixels,
		CostResolution:   DefaultCostResolution,
	}
}

// Combinatorial matches source to target fixels within each voxel by
// exhaustive search over candidate assignments, bounded by the
// fan-in/fan-out limits and pruned by the convexity grouping
// restriction, selecting the assignment with minimal total cost.
type Combinatorial struct {
	variant          CombinatorialVariant
	maxOrigins       int
	maxObjectives    int
	alpha, beta      float64
	pruningMinFixels int
	penalty          *AngleCost
	costVolume       *models.Volume
}

// NewCombinatorial creates a combinatorial matching algorithm of the
// given variant. Fan-in/fan-out bounds below one are rejected.
func NewCombinatorial(variant CombinatorialVariant, params CombinatorialParams) (*Combinatorial, error) {
	if params.MaxOrigins < 1 {
		return nil, fmt.Errorf("maximum origins per target fixel must be at least 1, got %d", params.MaxOrigins)
	}
	if params.MaxObjectives < 1 {
		return nil, fmt.Errorf("maximum objectives per source fixel must be at least 1, got %d", params.MaxObjectives)
	}
	// Negative constants would break the branch-and-bound pruning,
	// which assumes every remaining cost term is non-negative.
	if params.Alpha < 0 || params.Beta < 0 {
		return nil, fmt.Errorf("cost constants must be non-negative, got alpha %v, beta %v", params.Alpha, params.Beta)
	}
	if params.PruningMinFixels < 1 {
		params.PruningMinFixels = DefaultPruningMinFixels
	}
	if params.CostResolution < 1 {
		params.CostResolution = DefaultCostResolution
	}
	penalty, err := NewAngleCost(params.CostResolution)
	if err != nil {
		return nil, err
	}
	return &Combinatorial{
		variant:          variant,
		maxOrigins:       params.MaxOrigins,
		maxObjectives:    params.MaxObjectives,
		alpha:            params.Alpha,
		beta:             params.Beta,
		pruningMinFixels: params.PruningMinFixels,
		penalty:          penalty,
	}, nil
}

// SetCostVolume attaches a volume receiving the per-voxel optimal cost.
func (c *Combinatorial) SetCostVolume(vol *models.Volume) {
	c.costVolume = vol
}

// Match implements the Algorithm interface. The search enumerates, for
// every source fixel, the candidate subsets of target fixels it could
// feed (bounded by MaxObjectives and restricted to convex-connected
// groups), and walks the cross product depth-first with
// branch-and-bound, enforcing MaxOrigins per target along the way.
// The cheapest complete assignment wins; its total cost is recorded in
// the cost volume when one is attached.
func (c *Combinatorial) Match(v models.Voxel, source, target []models.Fixel) [][]uint32 {
	result := emptyAssignments(len(target))
	if len(source) == 0 || len(target) == 0 {
		c.recordCost(v, 0)
		return result
	}
	if len(source) >= maxFixelsPerVoxel || len(target) >= maxFixelsPerVoxel {
		// At the capacity of the mask representation; degrade to
		// nearest-fixel assignment so the run still completes.
		c.recordCost(v, 0)
		nearest := &Nearest{maxAngle: math.Pi / 2}
		return nearest.Match(v, source, target)
	}

	search := newCombSearch(c, source, target)
	search.run()

	for s, mask := range search.bestMasks {
		for t := 0; t < len(target); t++ {
			if mask&(1<<uint(t)) != 0 {
				result[t] = append(result[t], uint32(s))
			}
		}
	}
	c.recordCost(v, search.bestCost)
	return result
}

func (c *Combinatorial) recordCost(v models.Voxel, cost float64) {
	if c.costVolume != nil {
		c.costVolume.Set(v, cost)
	}
}

// combSearch holds the per-voxel state of one branch-and-bound run.
type combSearch struct {
	alg    *Combinatorial
	source []models.Fixel
	target []models.Fixel

	pairPenalty [][]float64 // angular penalty per source/target pair
	candidates  [][]uint32  // per source: permissible target subsets
	srcAdj      []uint32    // grouping adjacency between source fixels

	masks     []uint32 // current target subset per source
	origins   []int    // current origin count per target
	bestMasks []uint32
	bestCost  float64
}

func newCombSearch(alg *Combinatorial, source, target []models.Fixel) *combSearch {
	s := &combSearch{
		alg:       alg,
		source:    source,
		target:    target,
		masks:     make([]uint32, len(source)),
		origins:   make([]int, len(target)),
		bestMasks: make([]uint32, len(source)),
		bestCost:  math.Inf(1),
	}

	s.pairPenalty = make([][]float64, len(source))
	for i, sf := range source {
		row := make([]float64, len(target))
		for j, tf := range target {
			dp := sf.Direction.AbsDot(tf.Direction)
			if dp > 1 {
				dp = 1
			}
			row[j] = alg.penalty.Penalty(dp)
		}
		s.pairPenalty[i] = row
	}

	tgtDirs := make([]models.Vec3, len(target))
	for i, tf := range target {
		tgtDirs[i] = tf.Direction
	}
	srcDirs := make([]models.Vec3, len(source))
	for i, sf := range source {
		srcDirs[i] = sf.Direction
	}
	tgtAdj := directionAdjacency(tgtDirs, alg.pruningMinFixels)
	s.srcAdj = directionAdjacency(srcDirs, alg.pruningMinFixels)

	// Candidate target subsets are shared across source fixels: any
	// connected group of up to MaxObjectives targets, or no target at
	// all. Enumeration order is fixed, which keeps the winning
	// assignment deterministic under cost ties.
	var cands []uint32
	for mask := uint32(0); mask < 1<<uint(len(target)); mask++ {
		if bits.OnesCount32(mask) > alg.maxObjectives {
			continue
		}
		if !maskConnected(mask, tgtAdj) {
			continue
		}
		cands = append(cands, mask)
	}
	s.candidates = make([][]uint32, len(source))
	for i := range s.candidates {
		s.candidates[i] = cands
	}
	return s
}

func (s *combSearch) run() {
	s.step(0, 0)
}

// step assigns a candidate target subset to source fixel index si and
// recurses. partial carries all cost terms decided so far; every
// remaining term is non-negative, so any partial cost at or above the
// incumbent can be pruned.
func (s *combSearch) step(si int, partial float64) {
	if partial >= s.bestCost {
		return
	}
	if si == len(s.source) {
		leaf, ok := s.leafCost()
		if !ok {
			return
		}
		total := partial + leaf
		if total < s.bestCost {
			s.bestCost = total
			copy(s.bestMasks, s.masks)
		}
		return
	}

	for _, mask := range s.candidates[si] {
		if !s.fitsOrigins(mask) {
			continue
		}
		s.apply(si, mask, +1)
		s.step(si+1, partial+s.sourceCost(si, mask))
		s.apply(si, mask, -1)
	}
}

func (s *combSearch) fitsOrigins(mask uint32) bool {
	for t := 0; mask != 0; t, mask = t+1, mask>>1 {
		if mask&1 != 0 && s.origins[t]+1 > s.alg.maxOrigins {
			return false
		}
	}
	return true
}

func (s *combSearch) apply(si int, mask uint32, delta int) {
	if delta > 0 {
		s.masks[si] = mask
	} else {
		s.masks[si] = 0
	}
	for t := 0; mask != 0; t, mask = t+1, mask>>1 {
		if mask&1 != 0 {
			s.origins[t] += delta
		}
	}
}

// sourceCost returns the cost terms fully determined by one source
// fixel's own assignment: its pair penalties, its fan-out multiplicity
// penalty, and (if left unassigned) its coverage penalty.
func (s *combSearch) sourceCost(si int, mask uint32) float64 {
	alg := s.alg
	if mask == 0 {
		if alg.variant == VariantWeighted {
			return alg.beta * s.source[si].Value
		}
		return alg.beta
	}
	fanout := bits.OnesCount32(mask)
	weight := 1.0
	if alg.variant == VariantWeighted {
		weight = s.source[si].Value / float64(fanout)
	}
	cost := alg.alpha * float64(fanout-1)
	for t := 0; mask != 0; t, mask = t+1, mask>>1 {
		if mask&1 != 0 {
			cost += weight * s.pairPenalty[si][t]
		}
	}
	return cost
}

// leafCost evaluates the terms that depend on a complete assignment:
// the grouping restriction on each target's origin set, and either the
// density mismatch (weighted variant) or the unmatched-target penalty
// (angular variant). Returns ok=false when a target's origins form a
// disconnected group, which invalidates the whole candidate.
func (s *combSearch) leafCost() (float64, bool) {
	alg := s.alg
	cost := 0.0
	for t := range s.target {
		var originMask uint32
		projected := 0.0
		for si, mask := range s.masks {
			if mask&(1<<uint(t)) != 0 {
				originMask |= 1 << uint(si)
				projected += s.source[si].Value / float64(bits.OnesCount32(mask))
			}
		}
		if !maskConnected(originMask, s.srcAdj) {
			return 0, false
		}
		switch alg.variant {
		case VariantWeighted:
			cost += alg.beta * math.Abs(projected-s.target[t].Value)
		case VariantAngular:
			if originMask == 0 {
				cost += alg.beta
			}
		}
	}
	return cost, true
}
