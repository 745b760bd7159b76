// Package noise provides deterministic hash functions and tileable coherent
// noise fields.
//
// The hashes are pure float64 functions with no hidden state: identical inputs
// give identical outputs on every run and platform. They follow the
// "hash without sine" construction:
//
//	Hash13(p): q = fract(p * 0.1031)
//	           q += dot(q, q.yzx + 33.33)
//	           return fract((q.x + q.y) * q.z)
//
//	Hash21(p): q = fract((p, p, p) * (0.1031, 0.1030, 0.0973))
//	           q += dot(q, q.yzx + 33.33)
//	           return fract((q.x+q.y)*q.z), fract((q.x+q.z)*q.y)
//
// where fract(v) = v - floor(v). Tests and stored masks depend on these exact
// constants, so changing them changes every baked mask.
package noise

import "math"

// Hash constants.
const (
	hashK1     = 0.1031
	hashK2     = 0.1030
	hashK3     = 0.0973
	hashOffset = 33.33
)

// Fract returns the fractional part of v in [0,1).
func Fract(v float64) float64 {
	f := v - math.Floor(v)
	// v - floor(v) rounds to 1 for tiny negative v
	if f >= 1 {
		return 0
	}
	return f
}

// Hash13 maps a 3-component coordinate to a scalar in [0,1).
func Hash13(x, y, z float64) float64 {
	qx := Fract(x * hashK1)
	qy := Fract(y * hashK1)
	qz := Fract(z * hashK1)

	d := qx*(qy+hashOffset) + qy*(qz+hashOffset) + qz*(qx+hashOffset)
	qx += d
	qy += d
	qz += d

	return Fract((qx + qy) * qz)
}

// Hash21 maps a scalar seed to a pair of values in [0,1).
func Hash21(p float64) (float64, float64) {
	qx := Fract(p * hashK1)
	qy := Fract(p * hashK2)
	qz := Fract(p * hashK3)

	d := qx*(qy+hashOffset) + qy*(qz+hashOffset) + qz*(qx+hashOffset)
	qx += d
	qy += d
	qz += d

	return Fract((qx + qy) * qz), Fract((qx + qz) * qy)
}

// HashLattice returns a pseudo-random value in [0,1) for integer lattice
// coordinates. It backs the value-noise fields and uses 24 bits of an
// integer avalanche mix.
func HashLattice(ix, iy int, seed uint32) float64 {
	x := uint32(ix)
	y := uint32(iy)
	h := x*374761393 + y*668265263 + seed*1442695041
	h = (h ^ (h >> 13)) * 1274126177
	h ^= h >> 16
	return float64(h&0x00FFFFFF) / float64(0x01000000)
}
