// Package heading implements compass ring arithmetic for gyro headings.
//
// A gyro reports an unbounded signed accumulator; a Ring is the same heading
// folded into [0, 360). Distances on the ring are computed by modular
// subtraction, never by walking degree by degree.
package heading

// FullCircle is the number of degrees on the ring.
const FullCircle = 360

// Ring is a heading in degrees, always in [0, 360).
type Ring int

// FromRaw folds a raw sensor heading of any sign or magnitude into the ring.
func FromRaw(raw int) Ring {
	return Ring(mod(raw))
}

// Add returns the heading deg degrees clockwise from r.
func (r Ring) Add(deg int) Ring {
	return FromRaw(int(r) + deg)
}

// Sub returns the heading deg degrees counter-clockwise from r.
func (r Ring) Sub(deg int) Ring {
	return FromRaw(int(r) - deg)
}

// Int returns the heading as a plain int in [0, 360).
func (r Ring) Int() int {
	return int(r)
}

// RightDistance is the number of degrees to travel clockwise (increasing,
// wrapping 359 -> 0) from current to want. Result is in [0, 360).
func RightDistance(want, current Ring) int {
	return mod(int(want) - int(current))
}

// LeftDistance is the number of degrees to travel counter-clockwise
// (decreasing, wrapping 0 -> 359) from current to want. Result is in [0, 360).
func LeftDistance(want, current Ring) int {
	return mod(int(current) - int(want))
}

// Shortest picks the direction with fewer degrees of travel and returns it
// with that distance. A half-circle tie goes right. Equal headings return
// None and 0.
func Shortest(want, current Ring) (Direction, int) {
	right := RightDistance(want, current)
	left := LeftDistance(want, current)
	switch {
	case right == 0:
		return None, 0
	case right > left:
		return Left, left
	default:
		return Right, right
	}
}

// Relative converts a ring target into the signed turn, in (-180, 180],
// needed to reach it from current along the shortest arc.
func Relative(want, current Ring) int {
	dir, dist := Shortest(want, current)
	return dir.Sign() * dist
}

func mod(deg int) int {
	d := deg % FullCircle
	if d < 0 {
		d += FullCircle
	}
	return d
}
