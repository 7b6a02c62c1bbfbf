package world

import (
	"math/rand"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type SessionState uint8

const (
	Connecting SessionState = iota
	Active
	Disconnected
)

func (s SessionState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Active:
		return "active"
	default:
		return "disconnected"
	}
}

// Admission limits what a single connection may spawn. Zero values disable
// the corresponding limit.
type Admission struct {
	ShotsPerSecond     float64
	ShotBurst          int
	MaxBulletsPerOwner int
}

type session struct {
	ID    string
	State SessionState
	shots *rate.Limiter
}

// Sessions runs the per-connection lifecycle: join, input and leave. Every
// method must be called from the game loop goroutine.
type Sessions struct {
	store     *Store
	tuning    Tuning
	admission Admission
	out       Publisher
	rng       *rand.Rand
	log       *zap.Logger
	sessions  map[string]*session
}

func NewSessions(store *Store, tuning Tuning, admission Admission, out Publisher, rng *rand.Rand, log *zap.Logger) *Sessions {
	return &Sessions{
		store:     store,
		tuning:    tuning,
		admission: admission,
		out:       out,
		rng:       rng,
		log:       log,
		sessions:  make(map[string]*session),
	}
}

// State reports the lifecycle state of a connection. Unknown ids are
// Disconnected.
func (m *Sessions) State(ID string) SessionState {
	if s, ok := m.sessions[ID]; ok {
		return s.State
	}
	return Disconnected
}

func (m *Sessions) newLimiter() *rate.Limiter {
	if m.admission.ShotsPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := m.admission.ShotBurst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(m.admission.ShotsPerSecond), burst)
}

// Connect spawns a player for a new connection, sends it the full snapshot
// and announces it to everyone else. Connecting an id twice is a no-op.
func (m *Sessions) Connect(ID string) *Player {
	if _, ok := m.sessions[ID]; ok {
		p, _ := m.store.Player(ID)
		return p
	}
	s := &session{ID: ID, State: Connecting, shots: m.newLimiter()}
	m.sessions[ID] = s

	p := &Player{
		ID:       ID,
		Position: SpawnPoint(m.rng, m.tuning.SpawnHalfExtent, m.tuning.GroundHeight()),
		Color:    RandomColor(m.rng),
	}
	m.store.AddPlayer(p)

	players, bullets := m.store.Snapshot()
	m.out.Publish(SendTo(ID, EventInit, InitPayload{
		ID:      ID,
		Players: players,
		Bullets: bullets,
	}))
	m.out.Publish(Relay(ID, EventNewPlayer, *p))

	s.State = Active
	m.log.Info("player joined", zap.String("player", ID), zap.Int("players", m.store.PlayerCount()))
	return p
}

// active returns the live player behind an Active session.
func (m *Sessions) active(ID string) (*Player, bool) {
	s, ok := m.sessions[ID]
	if !ok || s.State != Active {
		return nil, false
	}
	return m.store.Player(ID)
}

// UpdatePosition applies a movement report and relays it to the other
// clients. Dead players and unknown ids are ignored.
func (m *Sessions) UpdatePosition(ID string, msg *UpdatePosition) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	p, ok := m.active(ID)
	if !ok {
		return nil
	}
	if p.IsDead {
		return ErrPlayerDead
	}
	p.Position = ClampToPlayArea(*msg.Position, m.tuning.PlayHalfExtent)
	p.Rotation = *msg.Rotation
	m.out.Publish(Relay(ID, EventPlayerMoved, PlayerMovedPayload{
		ID:       ID,
		Position: p.Position,
		Rotation: p.Rotation,
	}))
	return nil
}

// Shoot spawns a bullet owned by the sender and broadcasts it to everyone,
// shooter included.
func (m *Sessions) Shoot(ID string, msg *Shoot, now time.Time) (*Bullet, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	p, ok := m.active(ID)
	if !ok {
		return nil, nil
	}
	if p.IsDead {
		return nil, ErrPlayerDead
	}
	if limit := m.admission.MaxBulletsPerOwner; limit > 0 && m.store.BulletsOwnedBy(ID) >= limit {
		return nil, ErrBulletCap
	}
	if !m.sessions[ID].shots.AllowN(now, 1) {
		return nil, ErrRateLimited
	}

	b := NewBullet(ID, *msg.Position, *msg.Direction, now)
	m.store.AddBullet(b)
	m.out.Publish(Broadcast(EventNewBullet, *b))
	return b, nil
}

// Disconnect cancels the player's pending respawn, retires its bullets and
// removes it. It is idempotent.
func (m *Sessions) Disconnect(ID string) {
	s, ok := m.sessions[ID]
	if !ok || s.State == Disconnected {
		return
	}
	s.State = Disconnected
	delete(m.sessions, ID)

	if p, ok := m.store.Player(ID); ok {
		p.cancelRespawn()
	}
	for _, bulletID := range m.store.RemoveBulletsOwnedBy(ID) {
		m.out.Publish(Broadcast(EventRemoveBullet, bulletID))
	}
	if _, ok := m.store.RemovePlayer(ID); !ok {
		return
	}
	m.out.Publish(Broadcast(EventPlayerDisconnected, ID))
	m.log.Info("player left", zap.String("player", ID), zap.Int("players", m.store.PlayerCount()))
}

// Resync rebroadcasts every live player's position so clients that missed a
// relay converge.
func (m *Sessions) Resync() {
	m.store.ForEachPlayer(func(p *Player) {
		if p.IsDead {
			return
		}
		m.out.Publish(Broadcast(EventPlayerMoved, PlayerMovedPayload{
			ID:       p.ID,
			Position: p.Position,
			Rotation: p.Rotation,
		}))
	})
}

func (m *Sessions) Len() int {
	return len(m.sessions)
}
