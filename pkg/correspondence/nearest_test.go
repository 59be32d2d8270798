package correspondence

import (
	"testing"

	"fixelmatch/internal/models"
)

// TestNearestPicksSmallestAngle verifies the end-to-end scenario of a
// single voxel with two source fixels and one target fixel
func TestNearestPicksSmallestAngle(t *testing.T) {
	alg, err := NewNearest(45)
	if err != nil {
		t.Fatalf("Failed to create nearest algorithm: %v", err)
	}

	source := fixelSet(
		[]models.Vec3{unit(1, 0, 0), unit(0, 1, 0)},
		[]float64{0.4, 0.6},
	)
	target := fixelSet(
		[]models.Vec3{unit(0.9, 0.1, 0)},
		[]float64{1.0},
	)

	result := alg.Match(models.Voxel{}, source, target)
	if len(result) != 1 {
		t.Fatalf("Expected 1 assignment list, got %d", len(result))
	}
	if len(result[0]) != 1 || result[0][0] != 0 {
		t.Errorf("Expected target assigned source 0, got %v", result[0])
	}
}

// TestNearestThreshold verifies that no pair beyond the threshold is
// ever assigned, and that a zero threshold assigns nothing
func TestNearestThreshold(t *testing.T) {
	source := fixelSet(
		[]models.Vec3{unit(1, 1, 0)}, // 45 degrees from the x axis
		[]float64{1.0},
	)
	target := fixelSet(
		[]models.Vec3{unit(1, 0, 0)},
		[]float64{1.0},
	)

	// 40 degree threshold excludes the only candidate
	alg, err := NewNearest(40)
	if err != nil {
		t.Fatalf("Failed to create nearest algorithm: %v", err)
	}
	result := alg.Match(models.Voxel{}, source, target)
	if len(result[0]) != 0 {
		t.Errorf("Expected no assignment beyond threshold, got %v", result[0])
	}

	// Zero threshold assigns nothing even for aligned directions
	zero, err := NewNearest(0)
	if err != nil {
		t.Fatalf("Failed to create nearest algorithm: %v", err)
	}
	aligned := fixelSet([]models.Vec3{unit(1, 0, 0)}, []float64{1.0})
	result = zero.Match(models.Voxel{}, aligned, target)
	if len(result[0]) != 0 {
		t.Errorf("Expected no assignment with zero threshold, got %v", result[0])
	}
}

// TestNearestTieBreak verifies the deterministic tie-break in favour
// of the lowest source index
func TestNearestTieBreak(t *testing.T) {
	alg, err := NewNearest(45)
	if err != nil {
		t.Fatalf("Failed to create nearest algorithm: %v", err)
	}

	// Both sources sit exactly 30 degrees from the target direction
	s := 0.5
	c := 0.8660254037844387
	source := fixelSet(
		[]models.Vec3{unit(s, 0, c), unit(0, s, c)},
		[]float64{1.0, 1.0},
	)
	target := fixelSet([]models.Vec3{unit(0, 0, 1)}, []float64{1.0})

	result := alg.Match(models.Voxel{}, source, target)
	if len(result[0]) != 1 || result[0][0] != 0 {
		t.Errorf("Expected tie broken in favour of source 0, got %v", result[0])
	}
}

// TestNearestAntipodalEquivalence verifies that a source fixel pointing
// the opposite way still matches, since direction sign is meaningless
func TestNearestAntipodalEquivalence(t *testing.T) {
	alg, err := NewNearest(45)
	if err != nil {
		t.Fatalf("Failed to create nearest algorithm: %v", err)
	}

	source := fixelSet([]models.Vec3{unit(-1, 0, 0)}, []float64{1.0})
	target := fixelSet([]models.Vec3{unit(1, 0.05, 0)}, []float64{1.0})

	result := alg.Match(models.Voxel{}, source, target)
	if len(result[0]) != 1 || result[0][0] != 0 {
		t.Errorf("Expected antipodal source matched, got %v", result[0])
	}
}

// TestNearestDegenerateVoxels verifies that empty fixel sets yield
// empty assignments rather than errors
func TestNearestDegenerateVoxels(t *testing.T) {
	alg, err := NewNearest(45)
	if err != nil {
		t.Fatalf("Failed to create nearest algorithm: %v", err)
	}

	target := fixelSet([]models.Vec3{unit(1, 0, 0)}, []float64{1.0})
	result := alg.Match(models.Voxel{}, nil, target)
	if len(result) != 1 || len(result[0]) != 0 {
		t.Errorf("Expected one empty assignment for empty source voxel, got %v", result)
	}

	result = alg.Match(models.Voxel{}, target, nil)
	if len(result) != 0 {
		t.Errorf("Expected no assignments for empty target voxel, got %v", result)
	}
}

// TestNearestInvalidThreshold verifies configuration validation
func TestNearestInvalidThreshold(t *testing.T) {
	if _, err := NewNearest(-1); err == nil {
		t.Error("Expected error for negative threshold")
	}
	if _, err := NewNearest(120); err == nil {
		t.Error("Expected error for threshold beyond 90 degrees")
	}
}
