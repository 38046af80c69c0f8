package game

import (
	"github.com/pitch/server/config"
)

// Physics handles all physics calculations. All quantities are per tick;
// the scheduler drives it at a fixed rate so there is no dt.
type Physics struct {
	cfg config.GameConfig
}

// NewPhysics creates a new physics engine
func NewPhysics(cfg config.GameConfig) *Physics {
	return &Physics{cfg: cfg}
}

// InputVelocity is the per-tick displacement the input flags ask for.
// Opposing flags cancel.
func (ph *Physics) InputVelocity(in Input) Vec2 {
	var v Vec2
	if in.Right {
		v.X += ph.cfg.PlayerSpeed
	}
	if in.Left {
		v.X -= ph.cfg.PlayerSpeed
	}
	if in.Down {
		v.Y += ph.cfg.PlayerSpeed
	}
	if in.Up {
		v.Y -= ph.cfg.PlayerSpeed
	}
	return v
}

// MovePlayer moves a player by its input and keeps it inside the field.
func (ph *Physics) MovePlayer(p *Player, width, height float64) {
	v := ph.InputVelocity(p.Input)
	r := ph.cfg.PlayerRadius

	p.X = Clamp(p.X+v.X, r, width-r)
	p.Y = Clamp(p.Y+v.Y, r, height-r)
}

// CollideBall resolves a player touching the ball. The ball is pushed out
// along the contact normal and its velocity is replaced by a fixed kick plus
// the player's own velocity. Returns true on contact.
func (ph *Physics) CollideBall(p *Player, b *Ball) bool {
	delta := Vec2{b.X, b.Y}.Sub(Vec2{p.X, p.Y})
	dist := delta.Len()
	reach := ph.cfg.PlayerRadius + b.Radius

	if dist >= reach {
		return false
	}

	normal := delta.Normalize(Vec2{X: 1})
	push := normal.Scale((reach - dist) * ph.cfg.KickOvershoot)
	b.X += push.X
	b.Y += push.Y

	kick := normal.Scale(ph.cfg.KickSpeed).Add(ph.InputVelocity(p.Input))
	b.SpeedX = kick.X
	b.SpeedY = kick.Y

	return true
}

// IntegrateBall advances the ball and applies friction.
func (ph *Physics) IntegrateBall(b *Ball) {
	b.X += b.SpeedX
	b.Y += b.SpeedY

	b.SpeedX *= ph.cfg.BallFriction
	b.SpeedY *= ph.cfg.BallFriction
}

// ReflectWalls bounces the ball off the four sides. The goal mouths are not
// cut out of the walls: the goal band is deeper than the ball radius, so a
// clamped ball is still detected inside it.
func (ph *Physics) ReflectWalls(b *Ball, width, height float64) {
	r := b.Radius

	if b.X < r || b.X > width-r {
		b.SpeedX *= -ph.cfg.WallRestitution
		b.X = Clamp(b.X, r, width-r)
	}

	if b.Y < r || b.Y > height-r {
		b.SpeedY *= -ph.cfg.WallRestitution
		b.Y = Clamp(b.Y, r, height-r)
	}
}

// EnforceCorners keeps the ball out of the chamfered corners. Only the first
// corner whose region holds the ball is handled. Returns true if the ball was
// pushed.
func (ph *Physics) EnforceCorners(b *Ball, corners []Corner) bool {
	for _, c := range corners {
		if !c.Contains(b.X, b.Y) {
			continue
		}

		dist := c.SignedDistance(b.X, b.Y)
		if dist >= b.Radius {
			continue
		}

		n := c.Normal()
		pen := b.Radius - dist
		b.X += n.X * pen
		b.Y += n.Y * pen

		vn := Vec2{b.SpeedX, b.SpeedY}.Dot(n)
		if vn < 0 {
			k := (1 + ph.cfg.CornerDamping) * vn
			b.SpeedX -= k * n.X
			b.SpeedY -= k * n.Y
		}
		return true
	}
	return false
}
