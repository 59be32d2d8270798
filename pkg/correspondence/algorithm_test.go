package correspondence

import (
	"math"
	"testing"

	"fixelmatch/internal/models"
)

// unit returns the normalised direction through (x, y, z)
func unit(x, y, z float64) models.Vec3 {
	return models.Vec3{x, y, z}.Normalized()
}

// fixelSet builds a fixel list from alternating direction/value pairs
func fixelSet(dirs []models.Vec3, values []float64) []models.Fixel {
	fixels := make([]models.Fixel, len(dirs))
	for i := range dirs {
		fixels[i] = models.Fixel{Direction: dirs[i], Value: values[i]}
	}
	return fixels
}

// TestDirectionAdjacencySmallVoxel verifies that voxels below the
// pruning threshold treat every grouping as permissible
func TestDirectionAdjacencySmallVoxel(t *testing.T) {
	dirs := []models.Vec3{unit(1, 0, 0), unit(0, 1, 0), unit(0, 0, 1)}
	adj := directionAdjacency(dirs, DefaultPruningMinFixels)

	full := uint32(1)<<3 - 1
	for i, mask := range adj {
		if mask != full {
			t.Errorf("Direction %d: expected full adjacency %03b, got %03b", i, full, mask)
		}
	}
}

// TestDirectionAdjacencyInterveningFixel verifies that two directions
// separated by an intervening third direction are disconnected
func TestDirectionAdjacencyInterveningFixel(t *testing.T) {
	// Four coplanar directions fanning from the x axis; the outer
	// pair (0 and 3) has directions 1 and 2 lying between them.
	dirs := []models.Vec3{
		unit(1, 0, 0),
		unit(1, 0.4, 0),
		unit(1, 0.8, 0),
		unit(1, 1.2, 0),
	}
	adj := directionAdjacency(dirs, DefaultPruningMinFixels)

	if adj[0]&(1<<3) != 0 {
		t.Error("Directions 0 and 3 should be disconnected by the intervening directions")
	}
	if adj[0]&(1<<1) == 0 {
		t.Error("Adjacent directions 0 and 1 should be connected")
	}
	if adj[1]&(1<<2) == 0 {
		t.Error("Adjacent directions 1 and 2 should be connected")
	}
}

// TestMaskConnected verifies group connectivity over an adjacency chain
func TestMaskConnected(t *testing.T) {
	// Chain topology: 0-1-2-3
	adj := []uint32{
		0b0011,
		0b0111,
		0b1110,
		0b1100,
	}

	cases := []struct {
		mask      uint32
		connected bool
	}{
		{0b0000, true},  // empty
		{0b0100, true},  // singleton
		{0b0011, true},  // direct neighbours
		{0b0111, true},  // chain segment
		{0b1111, true},  // whole chain
		{0b0101, false}, // 0 and 2 without the link through 1
		{0b1001, false}, // chain endpoints only
	}
	for _, c := range cases {
		if got := maskConnected(c.mask, adj); got != c.connected {
			t.Errorf("maskConnected(%04b) = %v, expected %v", c.mask, got, c.connected)
		}
	}
}

// approxEqual compares floats with an absolute tolerance
func approxEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}
