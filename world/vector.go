package world

import "math"

type Vector struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

var (
	Zero = Vector{}
	Up   = Vector{Y: 1}
)

func (v Vector) Add(o Vector) Vector {
	return Vector{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

func (v Vector) Sub(o Vector) Vector {
	return Vector{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

func (v Vector) Scale(s float64) Vector {
	return Vector{X: v.X * s, Y: v.Y * s, Z: v.Z * s}
}

func (v Vector) Negate() Vector {
	return v.Scale(-1)
}

func (v Vector) Dot(o Vector) float64 {
	return v.X*o.X + v.Y*o.Y + v.Z*o.Z
}

// Len is computed with Hypot so the squared length cannot underflow or
// overflow for finite components.
func (v Vector) Len() float64 {
	return math.Hypot(math.Hypot(v.X, v.Y), v.Z)
}

// unitTolerance is how far from 1 a length may be for v to already count as
// unit length.
const unitTolerance = 1e-15

// Normalize returns v scaled to unit length. The zero vector normalizes to
// itself and a unit vector is returned unchanged.
func (v Vector) Normalize() Vector {
	l := v.Len()
	if l == 0 {
		return Zero
	}
	if math.Abs(l-1) <= unitTolerance {
		return v
	}
	return Vector{X: v.X / l, Y: v.Y / l, Z: v.Z / l}
}

// Lerp moves t of the way from v toward o.
func (v Vector) Lerp(o Vector, t float64) Vector {
	return v.Add(o.Sub(v).Scale(t))
}

func (v Vector) Dist(o Vector) float64 {
	return v.Sub(o).Len()
}

func (v Vector) Finite() bool {
	for _, f := range [...]float64{v.X, v.Y, v.Z} {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// OutOfBounds reports whether any axis lies beyond ±halfExtent.
func (v Vector) OutOfBounds(halfExtent float64) bool {
	return math.Abs(v.X) > halfExtent || math.Abs(v.Y) > halfExtent || math.Abs(v.Z) > halfExtent
}
