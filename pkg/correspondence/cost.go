// Package correspondence implements matching of fixels between two
// datasets defined on a common voxel grid, the persistent sparse
// mapping that records the match, and the projection of per-fixel
// measurements from one dataset onto the other through that mapping.
package correspondence

import (
	"fmt"
	"math"
)

// DefaultCostResolution is the number of lookup bins used by the
// angular penalty table when no resolution is configured.
const DefaultCostResolution = 1000

// AngleCost maps the absolute dot product between two unit directions
// to a scalar penalty: zero at perfect alignment, unbounded as the
// directions approach orthogonality (the tangent of the angle).
//
// The penalty sits on the hot path of the combinatorial search, so it
// is backed by a precomputed table with linear interpolation rather
// than evaluating tan(acos(dp)) per call.
type AngleCost struct {
	table      []float64
	multiplier float64
}

// NewAngleCost builds the lookup table with the given number of bins
// spanning dot products in [0, 1].
func NewAngleCost(resolution int) (*AngleCost, error) {
	if resolution < 1 {
		return nil, fmt.Errorf("cost lookup resolution must be positive, got %d", resolution)
	}
	c := &AngleCost{
		table:      make([]float64, resolution+2),
		multiplier: float64(resolution),
	}
	for bin := 0; bin <= resolution; bin++ {
		dp := float64(bin) / float64(resolution)
		c.table[bin] = math.Tan(math.Acos(dp))
	}
	// Pad the table so that interpolation at dp = 1.0 reads one slot
	// past the final bin without branching.
	c.table[resolution+1] = 0
	return c, nil
}

// Penalty returns the interpolated angular penalty for an absolute dot
// product dp in [0, 1]. Values outside that range indicate a caller
// bug, not a data condition, and panic.
func (c *AngleCost) Penalty(dp float64) float64 {
	if dp < 0 || dp > 1 {
		panic(fmt.Sprintf("angular penalty queried with dot product %v outside [0,1]", dp))
	}
	position := dp * c.multiplier
	lower := int(position)
	mu := position - float64(lower)
	return (1-mu)*c.table[lower] + mu*c.table[lower+1]
}
