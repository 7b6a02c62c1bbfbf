package world

import (
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// Tuning holds the fixed physical constants of an arena.
type Tuning struct {
	TickInterval   time.Duration
	BulletSpeed    float64 // units per tick
	BulletLifetime time.Duration
	RespawnDelay   time.Duration
	PlayerRadius   float64
	BulletRadius   float64
	// WorldHalfExtent bounds bullets on every axis.
	WorldHalfExtent float64
	// PlayHalfExtent bounds player movement on x and z.
	PlayHalfExtent float64
	// SpawnHalfExtent bounds spawn and respawn points on x and z.
	SpawnHalfExtent float64
}

func DefaultTuning() Tuning {
	return Tuning{
		TickInterval:    16 * time.Millisecond,
		BulletSpeed:     0.5,
		BulletLifetime:  5 * time.Second,
		RespawnDelay:    5 * time.Second,
		PlayerRadius:    1,
		BulletRadius:    0.2,
		WorldHalfExtent: 100,
		PlayHalfExtent:  49,
		SpawnHalfExtent: 40,
	}
}

// GroundHeight is the y coordinate of a player resting on the ground.
func (t Tuning) GroundHeight() float64 {
	return t.PlayerRadius
}

func (t Tuning) Collider() Collider {
	return Collider{PlayerRadius: t.PlayerRadius, BulletRadius: t.BulletRadius}
}

// Simulation advances bullets, resolves hits and revives dead players. Step
// must be called from the same goroutine that drives Sessions.
type Simulation struct {
	store    *Store
	tuning   Tuning
	collider Collider
	out      Publisher
	rng      *rand.Rand
	log      *zap.Logger
	tick     int64
}

func NewSimulation(store *Store, tuning Tuning, out Publisher, rng *rand.Rand, log *zap.Logger) *Simulation {
	return &Simulation{
		store:    store,
		tuning:   tuning,
		collider: tuning.Collider(),
		out:      out,
		rng:      rng,
		log:      log,
	}
}

func (s *Simulation) Tick() int64 {
	return s.tick
}

// Step runs one tick at wall-clock time now.
func (s *Simulation) Step(now time.Time) {
	s.tick++
	for _, b := range s.store.Bullets() {
		s.stepBulletIsolated(b, now)
	}
	s.respawnDue(now)
}

// stepBulletIsolated keeps one broken bullet from aborting the tick: a panic
// retires the bullet and the loop moves on.
func (s *Simulation) stepBulletIsolated(b *Bullet, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("bullet step panicked", zap.String("bullet", b.ID), zap.Any("panic", r))
			s.retire(b)
		}
	}()
	s.stepBullet(b, now)
}

func (s *Simulation) stepBullet(b *Bullet, now time.Time) {
	// Already retired earlier in this pass.
	if _, ok := s.store.Bullet(b.ID); !ok {
		return
	}

	if b.Age(now) > s.tuning.BulletLifetime {
		s.retire(b)
		return
	}

	prev := b.Position
	b.Position = b.Position.Add(b.Direction.Scale(s.tuning.BulletSpeed))

	if !b.Position.Finite() {
		panic(fmt.Sprintf("non-finite bullet position %+v", b.Position))
	}

	if b.Position.OutOfBounds(s.tuning.WorldHalfExtent) {
		s.retire(b)
		return
	}

	if b.Position.Y < s.tuning.BulletRadius {
		s.out.Publish(Broadcast(EventBulletImpact, BulletImpactPayload{
			Position: Vector{X: b.Position.X, Y: s.tuning.BulletRadius, Z: b.Position.Z},
			Normal:   Up,
		}))
		s.retire(b)
		return
	}

	hit, ok := s.collider.DetectHit(prev, b.Position, b.Direction, b.OwnerID, s.store.Players())
	if !ok {
		return
	}
	hit.Player.Kill(now.Add(s.tuning.RespawnDelay))
	s.out.Publish(Broadcast(EventBulletImpact, BulletImpactPayload{
		Position: hit.Point,
		Normal:   hit.Normal,
	}))
	s.out.Publish(Broadcast(EventPlayerHit, hit.Player.ID))
	s.retire(b)
}

// retire removes the bullet and broadcasts its removal, at most once.
func (s *Simulation) retire(b *Bullet) {
	if s.store.RemoveBullet(b.ID) {
		s.out.Publish(Broadcast(EventRemoveBullet, b.ID))
	}
}

func (s *Simulation) respawnDue(now time.Time) {
	for _, p := range s.store.Players() {
		if !p.IsDead || !p.PendingRespawn().Due(now) {
			continue
		}
		p.Revive(SpawnPoint(s.rng, s.tuning.SpawnHalfExtent, s.tuning.GroundHeight()))
		s.out.Publish(Broadcast(EventPlayerRespawn, PlayerRespawnPayload{
			ID:       p.ID,
			Position: p.Position,
		}))
	}
}
