package correspondence

import (
	"fmt"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"fixelmatch/internal/models"
	"fixelmatch/pkg/fixel"
)

// Matcher drives one matching algorithm across every voxel of the
// shared grid and assembles the per-voxel results into one global
// Mapping. Target fixel indices are partitioned by voxel in ascending
// grid order, so every voxel owns a disjoint slice of the Mapping and
// workers never contend for entries.
type Matcher struct {
	source, target             *fixel.Dataset
	sourceValues, targetValues []float64
	algorithm                  Algorithm
	mapping                    *Mapping
	costVolume                 *models.Volume
}

// NewMatcher prepares a matching run. The two datasets must be defined
// on identical grid dimensions, and each value array must carry one
// scalar per fixel of its dataset.
func NewMatcher(source, target *fixel.Dataset, sourceValues, targetValues []float64, algorithm Algorithm) (*Matcher, error) {
	if source.Dimensions() != target.Dimensions() {
		return nil, fmt.Errorf("source grid %v does not match target grid %v; datasets must share a voxel grid",
			source.Dimensions(), target.Dimensions())
	}
	if len(sourceValues) != source.NumFixels() {
		return nil, fmt.Errorf("source data holds %d values, dataset has %d fixels", len(sourceValues), source.NumFixels())
	}
	if len(targetValues) != target.NumFixels() {
		return nil, fmt.Errorf("target data holds %d values, dataset has %d fixels", len(targetValues), target.NumFixels())
	}
	return &Matcher{
		source:       source,
		target:       target,
		sourceValues: sourceValues,
		targetValues: targetValues,
		algorithm:    algorithm,
		mapping:      NewMapping(uint32(source.NumFixels()), uint32(target.NumFixels())),
	}, nil
}

// EnableCostVolume allocates a per-voxel cost volume and attaches it
// to the algorithm. Fails if the configured algorithm does not record
// per-voxel costs.
func (m *Matcher) EnableCostVolume() (*models.Volume, error) {
	recorder, ok := m.algorithm.(CostRecorder)
	if !ok {
		return nil, fmt.Errorf("the configured matching algorithm does not produce a per-voxel cost")
	}
	dims := m.target.Dimensions()
	m.costVolume = models.NewVolume(dims[0], dims[1], dims[2])
	recorder.SetCostVolume(m.costVolume)
	return m.costVolume, nil
}

// Run visits every voxel exactly once using numWorkers goroutines.
// Each worker extracts the voxel's source and target fixel sets, runs
// the algorithm, converts the returned local source indices to global
// ones, and writes the result into the voxel's slice of the Mapping.
func (m *Matcher) Run(numWorkers int) error {
	if numWorkers < 1 {
		return fmt.Errorf("number of workers must be positive, got %d", numWorkers)
	}

	numVoxels := m.source.NumVoxels()
	jobs := make(chan int, numWorkers)
	done := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				m.matchVoxel(m.source.VoxelAt(idx))
				done <- idx
			}
		}()
	}

	go func() {
		for idx := 0; idx < numVoxels; idx++ {
			jobs <- idx
		}
		close(jobs)
		wg.Wait()
		close(done)
	}()

	completed := 0
	lastPercent := -1
	for range done {
		completed++
		percent := completed * 100 / numVoxels
		if percent != lastPercent {
			fmt.Printf("\rDetermining fixel correspondence: %d%% complete", percent)
			lastPercent = percent
		}
	}
	fmt.Println()
	return nil
}

// matchVoxel processes one voxel: the per-voxel fixel sets go through
// the algorithm and the assignments land in the Mapping entries owned
// by this voxel's target fixels.
func (m *Matcher) matchVoxel(v models.Voxel) {
	sourceFixels := m.source.FixelsAt(v, m.sourceValues)
	targetFixels := m.target.FixelsAt(v, m.targetValues)

	assignments := m.algorithm.Match(v, sourceFixels, targetFixels)

	sourceOffset := m.source.OffsetAt(v)
	targetOffset := m.target.OffsetAt(v)
	for t, locals := range assignments {
		if len(locals) == 0 {
			continue
		}
		globals := make([]uint32, len(locals))
		for i, s := range locals {
			globals[i] = sourceOffset + s
		}
		m.mapping.Set(targetOffset+uint32(t), globals)
	}
}

// Mapping returns the correspondence assembled by Run.
func (m *Matcher) Mapping() *Mapping {
	return m.mapping
}

// ExportRemapped writes a new fixel dataset aligned one-to-one with
// the target layout, re-expressing the matched source fixels in target
// fixel space for visual comparison: each target fixel receives the
// implicit-weighted mean of its origin directions (sign-aligned so
// none is antipodal to the target) and the implicit-weighted sum of
// its origin values. Unmatched target fixels keep the target direction
// with a zero value.
func (m *Matcher) ExportRemapped(dir string) error {
	dims := m.target.Dimensions()
	counts := make([]uint32, m.target.NumVoxels())
	for idx := range counts {
		counts[idx] = m.target.CountAt(m.target.VoxelAt(idx))
	}

	inverse := m.mapping.Inverse()
	directions := make([]models.Vec3, m.target.NumFixels())
	values := make([]float64, m.target.NumFixels())

	for t := 0; t < m.mapping.Len(); t++ {
		targetDir := m.target.Direction(uint32(t))
		origins := m.mapping.Get(uint32(t))
		if len(origins) == 0 {
			directions[t] = targetDir
			continue
		}
		var mean models.Vec3
		for _, s := range origins {
			weight := 1.0 / float64(len(inverse[s]))
			sourceDir := m.source.Direction(s)
			if targetDir.Dot(sourceDir) < 0 {
				sourceDir = sourceDir.Negated()
			}
			mean = mean.Plus(sourceDir.Scaled(weight * m.sourceValues[s]))
			values[t] += weight * m.sourceValues[s]
		}
		if mean.Norm() == 0 {
			mean = targetDir
		}
		directions[t] = mean.Normalized()
	}

	remapped, err := fixel.Create(dir, dims, counts, directions)
	if err != nil {
		return fmt.Errorf("failed to create remapped fixel dataset: %w", err)
	}
	return remapped.SaveData("density.bin", values)
}

// CostSummary reports the mean and maximum per-voxel cost of a cost
// volume; used for the run summary printed after matching.
func CostSummary(vol *models.Volume) (mean, max float64) {
	if len(vol.Data) == 0 {
		return 0, 0
	}
	return stat.Mean(vol.Data, nil), floats.Max(vol.Data)
}
