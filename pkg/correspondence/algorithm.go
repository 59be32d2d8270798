package correspondence

import (
	"math/bits"

	"fixelmatch/internal/models"
)

// Algorithm decides, for one voxel, which source fixels correspond to
// which target fixels. Match returns one entry per target fixel
// holding the local indices (into the given source set) assigned to
// it. An entry may be empty (no correspondence) and the same source
// index may appear under several targets.
//
// Match depends only on the two fixel sets it is given; its only side
// effect is an optional write of the voxel's optimal cost into an
// attached cost volume, which is safe because every voxel owns its own
// element of that volume.
type Algorithm interface {
	Match(v models.Voxel, source, target []models.Fixel) [][]uint32
}

// CostRecorder is implemented by algorithms that can record the
// per-voxel optimal cost into a dense volume.
type CostRecorder interface {
	SetCostVolume(vol *models.Volume)
}

// maxFixelsPerVoxel is the per-voxel fixel count at which the
// combinatorial search hands off to nearest matching. Group membership
// is tracked in 32-bit masks and the candidate enumeration needs one
// bit of headroom, so the search itself handles at most 31 fixels per
// side.
const maxFixelsPerVoxel = 32

// DefaultPruningMinFixels is the minimum number of directions a voxel
// must contain before the convexity-based grouping restriction is
// applied. Below this the grouping of directions is not meaningful and
// every subset is treated as permissible; this fallback is an
// approximation, which is why the threshold is exposed as a tunable.
const DefaultPruningMinFixels = 4

// directionAdjacency computes, for each direction, the bitmask of
// directions it may legally be grouped with. Two directions are
// disconnected when a third direction of the same voxel lies strictly
// between them (closer to both than they are to each other); grouping
// such a pair while skipping the intervening fixel is never a sensible
// assignment and excluding it keeps the combinatorial search tractable.
//
// Voxels with fewer than minFixels directions yield fully-connected
// adjacency.
func directionAdjacency(dirs []models.Vec3, minFixels int) []uint32 {
	n := len(dirs)
	adj := make([]uint32, n)
	if n < minFixels {
		full := uint32(1)<<uint(n) - 1
		for i := range adj {
			adj[i] = full
		}
		return adj
	}
	for i := 0; i < n; i++ {
		adj[i] |= 1 << uint(i)
		for j := i + 1; j < n; j++ {
			dp := dirs[i].AbsDot(dirs[j])
			connected := true
			for k := 0; k < n; k++ {
				if k == i || k == j {
					continue
				}
				if dirs[k].AbsDot(dirs[i]) > dp && dirs[k].AbsDot(dirs[j]) > dp {
					connected = false
					break
				}
			}
			if connected {
				adj[i] |= 1 << uint(j)
				adj[j] |= 1 << uint(i)
			}
		}
	}
	return adj
}

// maskConnected reports whether the set of fixels in mask forms a
// connected group under the given adjacency. Empty and single-element
// sets are trivially connected.
func maskConnected(mask uint32, adj []uint32) bool {
	if mask == 0 || mask&(mask-1) == 0 {
		return true
	}
	start := uint32(1) << uint(bits.TrailingZeros32(mask))
	reached := start
	for {
		grown := reached
		for i := 0; i < len(adj); i++ {
			if reached&(1<<uint(i)) != 0 {
				grown |= adj[i] & mask
			}
		}
		if grown == reached {
			break
		}
		reached = grown
	}
	return reached == mask
}

// emptyAssignments returns one empty entry per target fixel; used for
// degenerate voxels where no matching is possible.
func emptyAssignments(numTargets int) [][]uint32 {
	return make([][]uint32, numTargets)
}
