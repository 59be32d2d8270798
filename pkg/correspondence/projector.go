package correspondence

import (
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/mat"

	"fixelmatch/internal/models"
)

// Metric selects how the values of multiple source fixels aggregate
// into one target fixel value.
type Metric int

const (
	// MetricSum is the implicit-weighted sum of source values.
	MetricSum Metric = iota

	// MetricMean is the weighted mean of source values.
	MetricMean

	// MetricCount is the number of assigned source fixels.
	MetricCount

	// MetricAngle is the angle between the target direction and the
	// weighted mean direction of the assigned source fixels.
	MetricAngle
)

// ParseMetric converts a metric name from the command line.
func ParseMetric(name string) (Metric, error) {
	switch name {
	case "sum":
		return MetricSum, nil
	case "mean":
		return MetricMean, nil
	case "count":
		return MetricCount, nil
	case "angle":
		return MetricAngle, nil
	}
	return 0, fmt.Errorf("unknown projection metric %q (options are: sum, mean, count, angle)", name)
}

// String returns the command-line name of the metric.
func (m Metric) String() string {
	switch m {
	case MetricSum:
		return "sum"
	case MetricMean:
		return "mean"
	case MetricCount:
		return "count"
	case MetricAngle:
		return "angle"
	}
	return fmt.Sprintf("Metric(%d)", int(m))
}

// FillSettings controls what a target fixel receives when no regular
// aggregation applies. The three policies are independent.
type FillSettings struct {
	// Value is written to target fixels with no corresponding source
	// fixel.
	Value float64

	// NaNManyToOne writes NaN whenever more than one source fixel is
	// assigned to a target fixel, flagging the ambiguous aggregation
	// instead of silently combining.
	NaNManyToOne bool

	// NaNOneToMany writes NaN whenever any assigned source fixel also
	// feeds at least one other target fixel.
	NaNOneToMany bool
}

// projectionBatch is the number of target fixel indices handed to a
// worker at a time.
const projectionBatch = 128

// Projector aggregates a per-source-fixel measurement into a
// per-target-fixel measurement under a loaded Mapping.
//
// Each source fixel contributes with an implicit weight of one over
// its fan-out count (zero if unmapped), derived once from the
// Mapping's inverse relation, so that a source fixel spread over
// several target fixels still contributes its total exactly once.
// Explicit weights, when supplied, multiply the implicit ones.
type Projector struct {
	mapping         *Mapping
	metric          Metric
	fill            FillSettings
	values          []float64
	explicitWeights []float64
	implicitWeights []float64
	sourceDirs      []models.Vec3
	targetDirs      []models.Vec3
}

// NewProjector validates all inputs against the mapping's declared
// fixel counts before any processing begins. Directions are required
// only by the angle metric; explicitWeights may be nil.
func NewProjector(mapping *Mapping, metric Metric, fill FillSettings,
	sourceValues, explicitWeights []float64,
	sourceDirs, targetDirs []models.Vec3) (*Projector, error) {

	sourceFixels := int(mapping.SourceFixels())
	if len(sourceValues) != sourceFixels {
		return nil, fmt.Errorf("input data holds %d values, correspondence declares %d source fixels",
			len(sourceValues), sourceFixels)
	}
	if explicitWeights != nil && len(explicitWeights) != sourceFixels {
		return nil, fmt.Errorf("weights file holds %d values, correspondence declares %d source fixels",
			len(explicitWeights), sourceFixels)
	}
	if metric == MetricAngle {
		if len(sourceDirs) != sourceFixels {
			return nil, fmt.Errorf("angle metric requires %d source directions, got %d", sourceFixels, len(sourceDirs))
		}
		if len(targetDirs) != mapping.Len() {
			return nil, fmt.Errorf("angle metric requires %d target directions, got %d", mapping.Len(), len(targetDirs))
		}
	}
	p := &Projector{
		mapping:         mapping,
		metric:          metric,
		fill:            fill,
		values:          sourceValues,
		explicitWeights: explicitWeights,
		sourceDirs:      sourceDirs,
		targetDirs:      targetDirs,
	}

	p.implicitWeights = make([]float64, sourceFixels)
	for s, targets := range mapping.Inverse() {
		if len(targets) > 0 {
			p.implicitWeights[s] = 1 / float64(len(targets))
		}
	}
	return p, nil
}

// Run projects every target fixel using numWorkers goroutines fed by a
// single producer handing out index batches in increasing order. Each
// worker writes only its own output slots, so the output array needs
// no locking.
func (p *Projector) Run(numWorkers int) ([]float64, error) {
	if numWorkers < 1 {
		return nil, fmt.Errorf("number of workers must be positive, got %d", numWorkers)
	}

	output := make([]float64, p.mapping.Len())

	type batch struct{ start, end int }
	batches := make(chan batch, numWorkers)

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for b := range batches {
				for t := b.start; t < b.end; t++ {
					output[t] = p.projectOne(uint32(t))
				}
			}
		}()
	}

	for start := 0; start < len(output); start += projectionBatch {
		end := start + projectionBatch
		if end > len(output) {
			end = len(output)
		}
		batches <- batch{start, end}
	}
	close(batches)
	wg.Wait()

	return output, nil
}

// projectOne computes the output value of one target fixel.
func (p *Projector) projectOne(target uint32) float64 {
	origins := p.mapping.Get(target)
	if len(origins) == 0 {
		return p.fill.Value
	}
	if len(origins) > 1 && p.fill.NaNManyToOne {
		return math.NaN()
	}

	weights := make([]float64, len(origins))
	for i, s := range origins {
		if p.fill.NaNOneToMany && p.implicitWeights[s] < 1 {
			return math.NaN()
		}
		weights[i] = p.implicitWeights[s]
		if p.explicitWeights != nil {
			weights[i] *= p.explicitWeights[s]
		}
	}

	switch p.metric {
	case MetricSum:
		result := 0.0
		for i, s := range origins {
			result += p.values[s] * weights[i]
		}
		return result

	case MetricMean:
		result := 0.0
		sumWeights := 0.0
		for i, s := range origins {
			result += p.values[s] * weights[i]
			sumWeights += weights[i]
		}
		return result / sumWeights

	case MetricCount:
		return float64(len(origins))

	case MetricAngle:
		targetDir := p.targetDirs[target]
		out := mat.NewVecDense(3, []float64{targetDir[0], targetDir[1], targetDir[2]})
		mean := mat.NewVecDense(3, nil)
		for i, s := range origins {
			dir := p.sourceDirs[s]
			// Flip each origin into the target's hemisphere before
			// averaging; fixel orientations are sign-free.
			sign := 1.0
			if targetDir.Dot(dir) < 0 {
				sign = -1
			}
			mean.AddScaledVec(mean, sign*weights[i], mat.NewVecDense(3, []float64{dir[0], dir[1], dir[2]}))
		}
		norm := mat.Norm(mean, 2)
		if norm == 0 {
			return math.NaN()
		}
		mean.ScaleVec(1/norm, mean)
		dp := mat.Dot(out, mean)
		if dp > 1 {
			dp = 1
		} else if dp < -1 {
			dp = -1
		}
		return math.Acos(dp)
	}
	panic(fmt.Sprintf("unhandled projection metric %v", p.metric))
}
