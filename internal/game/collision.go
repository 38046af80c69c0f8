package game

import (
	"math"
)

// Corner is one chamfered corner of the field. The chamfer is the line
// through P1 and P2; Inside is any point on the playing side of that line.
// The corner only applies while the ball is strictly inside its region.
type Corner struct {
	P1, P2 Vec2
	Inside Vec2

	minX, maxX float64
	minY, maxY float64

	// line a*x + b*y + c = 0, oriented so the interior is positive
	a, b, c float64
}

// NewCorner precomputes the oriented line for a chamfer.
func NewCorner(p1, p2, inside Vec2, minX, maxX, minY, maxY float64) Corner {
	a := p2.Y - p1.Y
	b := -(p2.X - p1.X)
	c := (p2.X-p1.X)*p1.Y - (p2.Y-p1.Y)*p1.X

	norm := math.Hypot(a, b)
	if norm == 0 {
		norm = 1
	}
	sign := 1.0
	if a*inside.X+b*inside.Y+c < 0 {
		sign = -1
	}

	return Corner{
		P1:     p1,
		P2:     p2,
		Inside: inside,
		minX:   minX,
		maxX:   maxX,
		minY:   minY,
		maxY:   maxY,
		a:      a / norm * sign,
		b:      b / norm * sign,
		c:      c / norm * sign,
	}
}

// CornerDefinitions returns the four chamfers of a width x height field
// with legs of length size, in top-left, top-right, bottom-left,
// bottom-right order.
func CornerDefinitions(width, height, size float64) []Corner {
	inf := math.Inf(1)
	farX := math.Max(width-size*2, width/2)
	farY := math.Max(height-size*2, height/2)

	return []Corner{
		NewCorner(
			Vec2{0, size}, Vec2{size, 0}, Vec2{size * 2, size * 2},
			-inf, size, -inf, size,
		),
		NewCorner(
			Vec2{width - size, 0}, Vec2{width, size}, Vec2{farX, size * 2},
			width-size, inf, -inf, size,
		),
		NewCorner(
			Vec2{0, height - size}, Vec2{size, height}, Vec2{size * 2, farY},
			-inf, size, height-size, inf,
		),
		NewCorner(
			Vec2{width - size, height}, Vec2{width, height - size}, Vec2{farX, farY},
			width-size, inf, height-size, inf,
		),
	}
}

// Contains reports whether (x, y) lies in the corner's region.
func (c Corner) Contains(x, y float64) bool {
	return x > c.minX && x < c.maxX && y > c.minY && y < c.maxY
}

// SignedDistance is the distance from (x, y) to the chamfer line, positive
// on the playing side.
func (c Corner) SignedDistance(x, y float64) float64 {
	return c.a*x + c.b*y + c.c
}

// Normal is the unit normal of the chamfer pointing into the field.
func (c Corner) Normal() Vec2 {
	return Vec2{c.a, c.b}
}
