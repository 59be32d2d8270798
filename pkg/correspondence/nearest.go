package correspondence

import (
	"fmt"
	"math"

	"fixelmatch/internal/models"
)

// DefaultNearestMaxAngle is the default angular acceptance threshold
// of the nearest-fixel algorithm, in degrees.
const DefaultNearestMaxAngle = 45.0

// Nearest matches each target fixel to the single source fixel in the
// same voxel with the smallest angular distance, accepting the match
// only when that angle falls below a configured threshold. Source
// fixels not selected by any target are left unassigned.
type Nearest struct {
	maxAngle float64 // radians
}

// NewNearest creates the nearest-fixel algorithm with the acceptance
// threshold given in degrees.
func NewNearest(maxAngleDegrees float64) (*Nearest, error) {
	if maxAngleDegrees < 0 || maxAngleDegrees > 90 {
		return nil, fmt.Errorf("nearest-fixel angle threshold must lie within [0, 90] degrees, got %v", maxAngleDegrees)
	}
	return &Nearest{maxAngle: maxAngleDegrees * math.Pi / 180}, nil
}

// Match implements the Algorithm interface. Ties on angular distance
// are broken deterministically in favour of the lowest source index.
func (n *Nearest) Match(v models.Voxel, source, target []models.Fixel) [][]uint32 {
	result := emptyAssignments(len(target))
	if len(source) == 0 {
		return result
	}
	for t, tf := range target {
		best := -1
		bestAngle := math.Inf(1)
		for s, sf := range source {
			angle := tf.Direction.AngleTo(sf.Direction)
			if angle < bestAngle {
				bestAngle = angle
				best = s
			}
		}
		if best >= 0 && bestAngle < n.maxAngle {
			result[t] = []uint32{uint32(best)}
		}
	}
	return result
}
