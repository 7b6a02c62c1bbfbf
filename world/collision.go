package world

// impactDepth is how far from the closest approach toward the player's centre
// the reported impact point sits.
const impactDepth = 0.9

// Collider tests bullet travel against player spheres.
type Collider struct {
	PlayerRadius float64
	BulletRadius float64
}

type Hit struct {
	Player *Player
	Point  Vector
	Normal Vector
}

// ClosestPointOnSegment returns the point of the segment a-b nearest to p. A
// degenerate segment yields a.
func ClosestPointOnSegment(a, b, p Vector) Vector {
	move := b.Sub(a)
	length := move.Len()
	dir := move.Normalize()
	t := clamp(p.Sub(a).Dot(dir), 0, length)
	return a.Add(dir.Scale(t))
}

// DetectHit tests the segment prev-next against each candidate in order and
// returns the first one it passes through. The bullet's owner and dead players
// are never hit.
func (c Collider) DetectHit(prev, next, direction Vector, owner string, candidates []*Player) (Hit, bool) {
	reach := c.PlayerRadius + c.BulletRadius
	for _, p := range candidates {
		if p.ID == owner || p.IsDead {
			continue
		}
		closest := ClosestPointOnSegment(prev, next, p.Position)
		if closest.Dist(p.Position) >= reach {
			continue
		}
		return Hit{
			Player: p,
			Point:  closest.Lerp(p.Position, impactDepth),
			Normal: direction.Negate().Normalize(),
		}, true
	}
	return Hit{}, false
}
