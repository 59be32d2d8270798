package correspondence

import (
	"math"
	"testing"

	"fixelmatch/internal/models"
)

// buildMapping constructs a mapping from a literal entry table
func buildMapping(sourceFixels, targetFixels uint32, entries map[uint32][]uint32) *Mapping {
	m := NewMapping(sourceFixels, targetFixels)
	for target, sources := range entries {
		m.Set(target, sources)
	}
	return m
}

func runProjector(t *testing.T, p *Projector) []float64 {
	t.Helper()
	output, err := p.Run(4)
	if err != nil {
		t.Fatalf("Projection failed: %v", err)
	}
	return output
}

// TestProjectorConservationUnderSum verifies that a pure partition
// (every source fixel feeding exactly one target) conserves the total
func TestProjectorConservationUnderSum(t *testing.T) {
	m := buildMapping(4, 3, map[uint32][]uint32{
		0: {0},
		1: {1, 2},
		2: {3},
	})
	values := []float64{1, 2, 3, 4}

	p, err := NewProjector(m, MetricSum, FillSettings{}, values, nil, nil, nil)
	if err != nil {
		t.Fatalf("Failed to create projector: %v", err)
	}
	output := runProjector(t, p)

	totalIn := 0.0
	for _, v := range values {
		totalIn += v
	}
	totalOut := 0.0
	for _, v := range output {
		totalOut += v
	}
	if !approxEqual(totalIn, totalOut, 1e-12) {
		t.Errorf("Sum projection lost mass: in %v, out %v", totalIn, totalOut)
	}
	if output[1] != 5 {
		t.Errorf("Expected fan-in sum 5, got %v", output[1])
	}
}

// TestProjectorFanOutSplitsContribution verifies the implicit weight:
// a source fixel spread over two targets contributes half to each
func TestProjectorFanOutSplitsContribution(t *testing.T) {
	m := buildMapping(1, 2, map[uint32][]uint32{
		0: {0},
		1: {0},
	})

	p, err := NewProjector(m, MetricSum, FillSettings{}, []float64{1}, nil, nil, nil)
	if err != nil {
		t.Fatalf("Failed to create projector: %v", err)
	}
	output := runProjector(t, p)

	if !approxEqual(output[0], 0.5, 1e-12) || !approxEqual(output[1], 0.5, 1e-12) {
		t.Errorf("Expected 0.5 per target, got %v", output)
	}
}

// TestProjectorFillValue verifies that targets with no origins receive
// the configured fill value under every metric
func TestProjectorFillValue(t *testing.T) {
	m := buildMapping(1, 2, map[uint32][]uint32{0: {0}})
	dirs := []models.Vec3{unit(1, 0, 0)}
	targetDirs := []models.Vec3{unit(1, 0, 0), unit(0, 1, 0)}
	fill := FillSettings{Value: 7.5}

	for _, metric := range []Metric{MetricSum, MetricMean, MetricCount, MetricAngle} {
		p, err := NewProjector(m, metric, fill, []float64{1}, nil, dirs, targetDirs)
		if err != nil {
			t.Fatalf("Metric %v: failed to create projector: %v", metric, err)
		}
		output := runProjector(t, p)
		if output[1] != 7.5 {
			t.Errorf("Metric %v: expected fill value 7.5 for empty target, got %v", metric, output[1])
		}
	}
}

// TestProjectorManyToOneFlag verifies the NaN policy for ambiguous
// fan-in aggregation
func TestProjectorManyToOneFlag(t *testing.T) {
	m := buildMapping(2, 2, map[uint32][]uint32{
		0: {0, 1},
		1: {0},
	})
	// Source 0 feeds two targets, so without one-to-many flagging its
	// weight is halved; with many-to-one flagging target 0 becomes NaN
	p, err := NewProjector(m, MetricSum, FillSettings{NaNManyToOne: true}, []float64{1, 1}, nil, nil, nil)
	if err != nil {
		t.Fatalf("Failed to create projector: %v", err)
	}
	output := runProjector(t, p)

	if !math.IsNaN(output[0]) {
		t.Errorf("Expected NaN for many-to-one target, got %v", output[0])
	}
	if math.IsNaN(output[1]) {
		t.Errorf("Single-origin target should not be flagged, got NaN")
	}
}

// TestProjectorManyToOneFlagAllMetrics verifies that the many-to-one
// flag forces NaN under every metric, including count
func TestProjectorManyToOneFlagAllMetrics(t *testing.T) {
	m := buildMapping(2, 1, map[uint32][]uint32{0: {0, 1}})
	sourceDirs := []models.Vec3{unit(1, 0, 0), unit(0, 1, 0)}
	targetDirs := []models.Vec3{unit(1, 0, 0)}

	for _, metric := range []Metric{MetricSum, MetricMean, MetricCount, MetricAngle} {
		p, err := NewProjector(m, metric, FillSettings{NaNManyToOne: true},
			[]float64{1, 1}, nil, sourceDirs, targetDirs)
		if err != nil {
			t.Fatalf("Metric %v: failed to create projector: %v", metric, err)
		}
		output := runProjector(t, p)
		if !math.IsNaN(output[0]) {
			t.Errorf("Metric %v: expected NaN for many-to-one target, got %v", metric, output[0])
		}
	}
}

// TestProjectorOneToManyFlag verifies the NaN policy when an origin
// also feeds another target
func TestProjectorOneToManyFlag(t *testing.T) {
	m := buildMapping(2, 2, map[uint32][]uint32{
		0: {0},
		1: {0, 1},
	})

	p, err := NewProjector(m, MetricSum, FillSettings{NaNOneToMany: true}, []float64{1, 1}, nil, nil, nil)
	if err != nil {
		t.Fatalf("Failed to create projector: %v", err)
	}
	output := runProjector(t, p)

	if !math.IsNaN(output[0]) || !math.IsNaN(output[1]) {
		t.Errorf("Expected NaN wherever the shared origin contributes, got %v", output)
	}
}

// TestProjectorMeanScenario verifies the unweighted mean of the
// two-source one-target scenario
func TestProjectorMeanScenario(t *testing.T) {
	m := buildMapping(2, 1, map[uint32][]uint32{0: {0, 1}})

	p, err := NewProjector(m, MetricMean, FillSettings{}, []float64{0.4, 0.6}, nil, nil, nil)
	if err != nil {
		t.Fatalf("Failed to create projector: %v", err)
	}
	output := runProjector(t, p)

	if !approxEqual(output[0], 0.5, 1e-12) {
		t.Errorf("Expected mean 0.5, got %v", output[0])
	}
}

// TestProjectorExplicitWeights verifies that explicit weights modulate
// the aggregation on top of the implicit ones
func TestProjectorExplicitWeights(t *testing.T) {
	m := buildMapping(2, 1, map[uint32][]uint32{0: {0, 1}})

	p, err := NewProjector(m, MetricMean, FillSettings{}, []float64{0.4, 0.6}, []float64{0.4, 0.6}, nil, nil)
	if err != nil {
		t.Fatalf("Failed to create projector: %v", err)
	}
	output := runProjector(t, p)

	expected := (0.4*0.4 + 0.6*0.6) / (0.4 + 0.6)
	if !approxEqual(output[0], expected, 1e-12) {
		t.Errorf("Expected weighted mean %v, got %v", expected, output[0])
	}
}

// TestProjectorCountMetric verifies that count ignores values and
// weights entirely
func TestProjectorCountMetric(t *testing.T) {
	m := buildMapping(3, 2, map[uint32][]uint32{
		0: {0, 1, 2},
	})

	p, err := NewProjector(m, MetricCount, FillSettings{}, []float64{5, 6, 7}, []float64{0.1, 0.2, 0.3}, nil, nil)
	if err != nil {
		t.Fatalf("Failed to create projector: %v", err)
	}
	output := runProjector(t, p)

	if output[0] != 3 {
		t.Errorf("Expected count 3, got %v", output[0])
	}
	if output[1] != 0 {
		t.Errorf("Expected fill 0 for empty target, got %v", output[1])
	}
}

// TestProjectorAngleScenario verifies the angle metric against the
// density-weighted mean of two orthogonal source directions
func TestProjectorAngleScenario(t *testing.T) {
	m := buildMapping(2, 1, map[uint32][]uint32{0: {0, 1}})
	sourceDirs := []models.Vec3{unit(1, 0, 0), unit(0, 1, 0)}
	targetDirs := []models.Vec3{unit(0.9, 0.1, 0)}

	p, err := NewProjector(m, MetricAngle, FillSettings{},
		[]float64{0.4, 0.6}, []float64{0.4, 0.6}, sourceDirs, targetDirs)
	if err != nil {
		t.Fatalf("Failed to create projector: %v", err)
	}
	output := runProjector(t, p)

	mean := unit(0.4, 0.6, 0)
	expected := math.Acos(targetDirs[0].Dot(mean))
	if !approxEqual(output[0], expected, 1e-9) {
		t.Errorf("Expected angle %v, got %v", expected, output[0])
	}
}

// TestProjectorAngleSignAlignment verifies that antipodal source
// directions are flipped into the target's hemisphere before averaging
func TestProjectorAngleSignAlignment(t *testing.T) {
	m := buildMapping(1, 1, map[uint32][]uint32{0: {0}})
	sourceDirs := []models.Vec3{unit(-1, 0, 0)}
	targetDirs := []models.Vec3{unit(1, 0, 0)}

	p, err := NewProjector(m, MetricAngle, FillSettings{}, []float64{1}, nil, sourceDirs, targetDirs)
	if err != nil {
		t.Fatalf("Failed to create projector: %v", err)
	}
	output := runProjector(t, p)

	if !approxEqual(output[0], 0, 1e-9) {
		t.Errorf("Expected zero angle after sign alignment, got %v", output[0])
	}
}

// TestProjectorInputValidation verifies that shape and configuration
// errors are rejected before any processing
func TestProjectorInputValidation(t *testing.T) {
	m := buildMapping(2, 1, map[uint32][]uint32{0: {0, 1}})

	// Mismatched value count
	if _, err := NewProjector(m, MetricSum, FillSettings{}, []float64{1}, nil, nil, nil); err == nil {
		t.Error("Expected error for mismatched value count")
	}

	// Mismatched explicit weight count
	if _, err := NewProjector(m, MetricSum, FillSettings{}, []float64{1, 2}, []float64{1}, nil, nil); err == nil {
		t.Error("Expected error for mismatched weight count")
	}

	// Angle metric without directions
	if _, err := NewProjector(m, MetricAngle, FillSettings{}, []float64{1, 2}, nil, nil, nil); err == nil {
		t.Error("Expected error for angle metric without directions")
	}
}

// TestParseMetric verifies metric name parsing
func TestParseMetric(t *testing.T) {
	for name, expected := range map[string]Metric{
		"sum": MetricSum, "mean": MetricMean, "count": MetricCount, "angle": MetricAngle,
	} {
		got, err := ParseMetric(name)
		if err != nil || got != expected {
			t.Errorf("ParseMetric(%q) = %v, %v; expected %v", name, got, err, expected)
		}
	}
	if _, err := ParseMetric("median"); err == nil {
		t.Error("Expected error for unknown metric name")
	}
}
