package models

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Vec3 is a 3-component vector, used for fixel directions.
type Vec3 [3]float64

// Dot returns the dot product of two vectors.
func (v Vec3) Dot(w Vec3) float64 {
	return floats.Dot(v[:], w[:])
}

// AbsDot returns the absolute dot product of two vectors.
// Fixel directions are antipodally symmetric: a direction and its
// negation represent the same orientation, so all angular comparisons
// between fixels go through this rather than Dot.
func (v Vec3) AbsDot(w Vec3) float64 {
	return math.Abs(floats.Dot(v[:], w[:]))
}

// Norm returns the Euclidean length of the vector.
func (v Vec3) Norm() float64 {
	return math.Sqrt(floats.Dot(v[:], v[:]))
}

// Normalized returns the unit vector with the same orientation.
// The zero vector is returned unchanged.
func (v Vec3) Normalized() Vec3 {
	n := v.Norm()
	if n == 0 {
		return v
	}
	return Vec3{v[0] / n, v[1] / n, v[2] / n}
}

// Scaled returns the vector multiplied by s.
func (v Vec3) Scaled(s float64) Vec3 {
	return Vec3{v[0] * s, v[1] * s, v[2] * s}
}

// Plus returns the component-wise sum of two vectors.
func (v Vec3) Plus(w Vec3) Vec3 {
	return Vec3{v[0] + w[0], v[1] + w[1], v[2] + w[2]}
}

// Negated returns the antipodal direction.
func (v Vec3) Negated() Vec3 {
	return Vec3{-v[0], -v[1], -v[2]}
}

// AngleTo returns the angle in radians between the orientations of two
// unit vectors, ignoring direction sign. The result lies in [0, pi/2].
func (v Vec3) AngleTo(w Vec3) float64 {
	dp := v.AbsDot(w)
	if dp > 1 {
		dp = 1
	}
	return math.Acos(dp)
}

// Fixel is one discrete directional element within a voxel: a unit
// direction plus a non-negative scalar attribute (typically a measure
// of fibre density).
type Fixel struct {
	// Direction is the unit orientation vector of the fixel.
	Direction Vec3

	// Value is the scalar attribute carried by the fixel.
	Value float64
}

// Voxel identifies one cell of the 3D image grid.
type Voxel struct {
	X, Y, Z int
}

// Volume represents a dense scalar 3D volume defined on a voxel grid.
type Volume struct {
	// Data is the volume data as a 1D array in x-fastest row-major order.
	Data []float64

	// Width, Height, Depth are the grid dimensions in voxels.
	Width, Height, Depth int
}

// NewVolume allocates a zero-filled volume with the given dimensions.
func NewVolume(width, height, depth int) *Volume {
	return &Volume{
		Data:   make([]float64, width*height*depth),
		Width:  width,
		Height: height,
		Depth:  depth,
	}
}

// Index returns the flat data index of a voxel.
func (v *Volume) Index(vox Voxel) int {
	return vox.Z*v.Width*v.Height + vox.Y*v.Width + vox.X
}

// At returns the value stored at a voxel.
func (v *Volume) At(vox Voxel) float64 {
	return v.Data[v.Index(vox)]
}

// Set stores a value at a voxel.
func (v *Volume) Set(vox Voxel, value float64) {
	v.Data[v.Index(vox)] = value
}
