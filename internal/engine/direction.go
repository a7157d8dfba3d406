package engine

type Direction string

const (
	DirRight Direction = "right"
	DirLeft  Direction = "left"
	DirUp    Direction = "up"
	DirDown  Direction = "down"
)

// TypingDirections is the fixed cycle walked by CycleTypingDirection.
var TypingDirections = []Direction{
	DirRight,
	DirLeft,
	DirUp,
	DirDown,
}

// DirectionAt wraps any index (negative included) onto the cycle.
func DirectionAt(index int) Direction {
	n := len(TypingDirections)
	return TypingDirections[((index%n)+n)%n]
}

func IndexOf(d Direction) (int, bool) {
	for i, dir := range TypingDirections {
		if dir == d {
			return i, true
		}
	}
	return 0, false
}

// delta is the (row, col) offset of one step in d.
func (d Direction) delta() (int, int) {
	switch d {
	case DirRight:
		return 0, 1
	case DirLeft:
		return 0, -1
	case DirUp:
		return -1, 0
	case DirDown:
		return 1, 0
	}
	return 0, 0
}

func (d Direction) Opposite() Direction {
	switch d {
	case DirRight:
		return DirLeft
	case DirLeft:
		return DirRight
	case DirUp:
		return DirDown
	case DirDown:
		return DirUp
	}
	return d
}
