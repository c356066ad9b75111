package heading

// Direction is the rotational direction of a turn.
// Right is clockwise: the gyro reading increases and steering is positive.
type Direction int

const (
	None Direction = iota
	Left
	Right
)

func (d Direction) String() string {
	switch d {
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return "none"
	}
}

// Sign returns +1 for Right, -1 for Left and 0 for None.
func (d Direction) Sign() int {
	switch d {
	case Left:
		return -1
	case Right:
		return 1
	default:
		return 0
	}
}

// Of returns the direction of a signed relative turn.
func Of(turn int) Direction {
	switch {
	case turn > 0:
		return Right
	case turn < 0:
		return Left
	default:
		return None
	}
}
