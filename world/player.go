package world

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

type Player struct {
	ID       string  `json:"id"`
	Position Vector  `json:"position"`
	Rotation float64 `json:"rotation"`
	Color    string  `json:"color"`
	IsDead   bool    `json:"isDead"`

	respawn *Respawn
}

// Respawn is the pending revival of a dead player. It is owned by the player
// record it was scheduled on and cancelled when that player leaves.
type Respawn struct {
	Deadline  time.Time
	cancelled bool
}

func (r *Respawn) Cancel() {
	if r != nil {
		r.cancelled = true
	}
}

func (r *Respawn) Cancelled() bool {
	return r != nil && r.cancelled
}

func (r *Respawn) Due(now time.Time) bool {
	return r != nil && !r.cancelled && !now.Before(r.Deadline)
}

// PendingRespawn returns the scheduled respawn, if any.
func (p *Player) PendingRespawn() *Respawn {
	return p.respawn
}

// Kill marks the player dead and schedules its respawn at deadline.
func (p *Player) Kill(deadline time.Time) *Respawn {
	p.IsDead = true
	p.respawn.Cancel()
	p.respawn = &Respawn{Deadline: deadline}
	return p.respawn
}

// Revive clears the dead flag and moves the player to position.
func (p *Player) Revive(position Vector) {
	p.IsDead = false
	p.respawn = nil
	p.Position = position
}

func (p *Player) cancelRespawn() {
	p.respawn.Cancel()
	p.respawn = nil
}

// SpawnPoint picks a uniformly random ground-level point within ±halfExtent
// on x and z.
func SpawnPoint(rng *rand.Rand, halfExtent, groundHeight float64) Vector {
	return Vector{
		X: rng.Float64()*2*halfExtent - halfExtent,
		Y: groundHeight,
		Z: rng.Float64()*2*halfExtent - halfExtent,
	}
}

func RandomColor(rng *rand.Rand) string {
	return fmt.Sprintf("#%06x", rng.Intn(0xffffff))
}

// ClampToPlayArea keeps a player position inside ±halfExtent on x and z and
// above the ground plane.
func ClampToPlayArea(v Vector, halfExtent float64) Vector {
	return Vector{
		X: clamp(v.X, -halfExtent, halfExtent),
		Y: math.Max(v.Y, 0),
		Z: clamp(v.Z, -halfExtent, halfExtent),
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
