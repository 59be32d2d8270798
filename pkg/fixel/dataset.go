// Package fixel implements the on-disk fixel dataset directory format:
// a self-describing YAML header plus flat little-endian binary files
// holding the per-voxel fixel index, the fixel directions, and any
// number of named per-fixel scalar data files.
package fixel

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"fixelmatch/internal/models"
)

const (
	headerFile     = "header.yaml"
	indexFile      = "index.bin"
	directionsFile = "directions.bin"
)

// header is the YAML metadata stored at the root of a dataset directory.
type header struct {
	// Dimensions are the voxel grid dimensions (width, height, depth).
	Dimensions [3]int `yaml:"dimensions"`

	// FixelCount is the total number of fixels across all voxels.
	FixelCount uint32 `yaml:"fixelCount"`
}

// Dataset is an open fixel dataset: a voxel grid where each voxel
// holds zero or more fixels, stored contiguously in ascending voxel
// order. Fixel indices are global (flattened across the whole grid);
// each voxel owns the contiguous index range [offset, offset+count).
type Dataset struct {
	dir        string
	dims       [3]int
	counts     []uint32
	offsets    []uint32
	directions []models.Vec3
}

// Open reads the header, index and directions of a dataset directory
// and validates that the index tiles the global fixel range in
// ascending voxel order.
func Open(dir string) (*Dataset, error) {
	raw, err := os.ReadFile(filepath.Join(dir, headerFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read fixel dataset header: %w", err)
	}
	var h header
	if err := yaml.Unmarshal(raw, &h); err != nil {
		return nil, fmt.Errorf("failed to parse fixel dataset header: %w", err)
	}
	if h.Dimensions[0] < 1 || h.Dimensions[1] < 1 || h.Dimensions[2] < 1 {
		return nil, fmt.Errorf("fixel dataset %q has invalid dimensions %v", dir, h.Dimensions)
	}

	numVoxels := h.Dimensions[0] * h.Dimensions[1] * h.Dimensions[2]
	index := make([]uint32, 2*numVoxels)
	if err := readBinary(filepath.Join(dir, indexFile), index); err != nil {
		return nil, err
	}

	d := &Dataset{
		dir:     dir,
		dims:    h.Dimensions,
		counts:  make([]uint32, numVoxels),
		offsets: make([]uint32, numVoxels),
	}
	expected := uint32(0)
	for i := 0; i < numVoxels; i++ {
		d.counts[i] = index[2*i]
		d.offsets[i] = index[2*i+1]
		if d.offsets[i] != expected {
			return nil, fmt.Errorf("fixel dataset %q index is not contiguous at voxel %d: offset %d, expected %d",
				dir, i, d.offsets[i], expected)
		}
		expected += d.counts[i]
	}
	if expected != h.FixelCount {
		return nil, fmt.Errorf("fixel dataset %q index covers %d fixels but header declares %d", dir, expected, h.FixelCount)
	}

	dirData := make([]float32, 3*h.FixelCount)
	if err := readBinary(filepath.Join(dir, directionsFile), dirData); err != nil {
		return nil, err
	}
	d.directions = make([]models.Vec3, h.FixelCount)
	for i := range d.directions {
		v := models.Vec3{
			float64(dirData[3*i]),
			float64(dirData[3*i+1]),
			float64(dirData[3*i+2]),
		}
		n := v.Norm()
		if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
			return nil, fmt.Errorf("fixel dataset %q contains a degenerate direction at fixel %d", dir, i)
		}
		d.directions[i] = v
	}
	return d, nil
}

// Create writes a new dataset directory from per-voxel fixel counts
// (in ascending voxel order) and the concatenated fixel directions.
func Create(dir string, dims [3]int, counts []uint32, directions []models.Vec3) (*Dataset, error) {
	numVoxels := dims[0] * dims[1] * dims[2]
	if len(counts) != numVoxels {
		return nil, fmt.Errorf("fixel count list covers %d voxels, grid has %d", len(counts), numVoxels)
	}
	total := uint32(0)
	offsets := make([]uint32, numVoxels)
	for i, c := range counts {
		offsets[i] = total
		total += c
	}
	if uint32(len(directions)) != total {
		return nil, fmt.Errorf("direction list has %d entries, index requires %d", len(directions), total)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create fixel dataset directory: %w", err)
	}
	raw, err := yaml.Marshal(&header{Dimensions: dims, FixelCount: total})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal fixel dataset header: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, headerFile), raw, 0644); err != nil {
		return nil, fmt.Errorf("failed to write fixel dataset header: %w", err)
	}

	index := make([]uint32, 2*numVoxels)
	for i := 0; i < numVoxels; i++ {
		index[2*i] = counts[i]
		index[2*i+1] = offsets[i]
	}
	if err := writeBinary(filepath.Join(dir, indexFile), index); err != nil {
		return nil, err
	}

	dirData := make([]float32, 3*len(directions))
	for i, v := range directions {
		dirData[3*i] = float32(v[0])
		dirData[3*i+1] = float32(v[1])
		dirData[3*i+2] = float32(v[2])
	}
	if err := writeBinary(filepath.Join(dir, directionsFile), dirData); err != nil {
		return nil, err
	}

	return &Dataset{
		dir:        dir,
		dims:       dims,
		counts:     counts,
		offsets:    offsets,
		directions: directions,
	}, nil
}

// Dimensions returns the voxel grid dimensions.
func (d *Dataset) Dimensions() [3]int {
	return d.dims
}

// NumVoxels returns the number of voxels in the grid.
func (d *Dataset) NumVoxels() int {
	return d.dims[0] * d.dims[1] * d.dims[2]
}

// NumFixels returns the total fixel count of the dataset.
func (d *Dataset) NumFixels() int {
	return len(d.directions)
}

// VoxelIndex returns the flat grid index of a voxel (x fastest).
func (d *Dataset) VoxelIndex(v models.Voxel) int {
	return v.Z*d.dims[0]*d.dims[1] + v.Y*d.dims[0] + v.X
}

// VoxelAt returns the voxel at a flat grid index.
func (d *Dataset) VoxelAt(index int) models.Voxel {
	plane := d.dims[0] * d.dims[1]
	return models.Voxel{
		X: index % d.dims[0],
		Y: (index % plane) / d.dims[0],
		Z: index / plane,
	}
}

// CountAt returns the number of fixels in a voxel.
func (d *Dataset) CountAt(v models.Voxel) uint32 {
	return d.counts[d.VoxelIndex(v)]
}

// OffsetAt returns the global index of a voxel's first fixel.
func (d *Dataset) OffsetAt(v models.Voxel) uint32 {
	return d.offsets[d.VoxelIndex(v)]
}

// Direction returns the direction of one fixel by global index.
func (d *Dataset) Direction(fixel uint32) models.Vec3 {
	return d.directions[fixel]
}

// Directions returns all fixel directions in global index order. The
// returned slice is owned by the dataset and must not be modified.
func (d *Dataset) Directions() []models.Vec3 {
	return d.directions
}

// FixelsAt extracts the fixel set of one voxel, pairing each direction
// with the corresponding entry of a per-fixel value array (typically a
// density data file). The returned slice is freshly allocated.
func (d *Dataset) FixelsAt(v models.Voxel, values []float64) []models.Fixel {
	offset := d.OffsetAt(v)
	count := d.CountAt(v)
	fixels := make([]models.Fixel, count)
	for i := uint32(0); i < count; i++ {
		fixels[i] = models.Fixel{
			Direction: d.directions[offset+i],
			Value:     values[offset+i],
		}
	}
	return fixels
}

// LoadData reads a named per-fixel scalar data file from the dataset
// directory and validates its length against the fixel count.
func (d *Dataset) LoadData(name string) ([]float64, error) {
	data := make([]float32, len(d.directions))
	if err := readBinary(filepath.Join(d.dir, name), data); err != nil {
		return nil, err
	}
	values := make([]float64, len(data))
	for i, v := range data {
		values[i] = float64(v)
	}
	return values, nil
}

// SaveData writes a named per-fixel scalar data file into the dataset
// directory. The value count must match the dataset's fixel count.
func (d *Dataset) SaveData(name string, values []float64) error {
	if len(values) != len(d.directions) {
		return fmt.Errorf("data file %q holds %d values, dataset has %d fixels", name, len(values), len(d.directions))
	}
	data := make([]float32, len(values))
	for i, v := range values {
		data[i] = float32(v)
	}
	return writeBinary(filepath.Join(d.dir, name), data)
}

// readBinary fills dst from a little-endian binary file, requiring the
// file to hold exactly the expected number of elements.
func readBinary(path string, dst interface{}) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", filepath.Base(path), err)
	}
	defer file.Close()

	if err := binary.Read(file, binary.LittleEndian, dst); err != nil {
		return fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	var probe [1]byte
	if n, _ := file.Read(probe[:]); n != 0 {
		return fmt.Errorf("%s holds more data than the header declares", filepath.Base(path))
	}
	return nil
}

// writeBinary writes src to a little-endian binary file.
func writeBinary(path string, src interface{}) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Base(path), err)
	}
	defer file.Close()

	if err := binary.Write(file, binary.LittleEndian, src); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return file.Close()
}
