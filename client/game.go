package client

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"arenagame/protocol"
	"arenagame/world"
)

const historySize = 256

// Game is a client-side mirror of the arena, rebuilt from server events.
type Game struct {
	mu       sync.RWMutex
	playerID string
	players  map[string]world.Player
	bullets  map[string]world.Bullet
	// impacts counts bulletImpact events; they carry no state.
	impacts int
	history *History

	ready chan struct{}
	once  sync.Once

	codec protocol.Codec
	log   *zap.Logger
}

func NewGame(codec protocol.Codec, log *zap.Logger) *Game {
	return &Game{
		players: make(map[string]world.Player),
		bullets: make(map[string]world.Bullet),
		history: NewHistory(historySize),
		ready:   make(chan struct{}),
		codec:   codec,
		log:     log,
	}
}

// History returns the recently applied events, oldest first.
func (g *Game) History() []Record {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.history.Records()
}

// Ready is closed once the init snapshot has arrived.
func (g *Game) Ready() <-chan struct{} {
	return g.ready
}

func (g *Game) PlayerID() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.playerID
}

func (g *Game) Self() (world.Player, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	p, ok := g.players[g.playerID]
	return p, ok
}

func (g *Game) Player(ID string) (world.Player, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	p, ok := g.players[ID]
	return p, ok
}

func (g *Game) Players() []world.Player {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]world.Player, 0, len(g.players))
	for _, p := range g.players {
		out = append(out, p)
	}
	return out
}

func (g *Game) Bullets() []world.Bullet {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]world.Bullet, 0, len(g.bullets))
	for _, b := range g.bullets {
		out = append(out, b)
	}
	return out
}

func (g *Game) Impacts() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.impacts
}

func (g *Game) moveSelf(position world.Vector, rotation float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if p, ok := g.players[g.playerID]; ok {
		p.Position = position
		p.Rotation = rotation
		g.players[g.playerID] = p
	}
}

// Apply folds one server event into the mirror.
func (g *Game) Apply(env protocol.Envelope) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch env.Event {
	case world.EventInit:
		snapshot, err := protocol.DecodeData[world.InitPayload](env)
		if err != nil {
			return err
		}
		g.playerID = snapshot.ID
		g.players = snapshot.Players
		g.bullets = snapshot.Bullets
		if g.players == nil {
			g.players = make(map[string]world.Player)
		}
		if g.bullets == nil {
			g.bullets = make(map[string]world.Bullet)
		}
		g.once.Do(func() { close(g.ready) })

	case world.EventNewPlayer:
		p, err := protocol.DecodeData[world.Player](env)
		if err != nil {
			return err
		}
		g.players[p.ID] = p

	case world.EventPlayerMoved:
		moved, err := protocol.DecodeData[world.PlayerMovedPayload](env)
		if err != nil {
			return err
		}
		if p, ok := g.players[moved.ID]; ok {
			p.Position = moved.Position
			p.Rotation = moved.Rotation
			g.players[moved.ID] = p
		}

	case world.EventPlayerDisconnected:
		ID, err := protocol.DecodeData[string](env)
		if err != nil {
			return err
		}
		delete(g.players, ID)

	case world.EventNewBullet:
		b, err := protocol.DecodeData[world.Bullet](env)
		if err != nil {
			return err
		}
		g.bullets[b.ID] = b

	case world.EventRemoveBullet:
		ID, err := protocol.DecodeData[string](env)
		if err != nil {
			return err
		}
		delete(g.bullets, ID)

	case world.EventBulletImpact:
		g.impacts++

	case world.EventPlayerHit:
		ID, err := protocol.DecodeData[string](env)
		if err != nil {
			return err
		}
		if p, ok := g.players[ID]; ok {
			p.IsDead = true
			g.players[ID] = p
		}

	case world.EventPlayerRespawn:
		respawn, err := protocol.DecodeData[world.PlayerRespawnPayload](env)
		if err != nil {
			return err
		}
		if p, ok := g.players[respawn.ID]; ok {
			p.IsDead = false
			p.Position = respawn.Position
			g.players[respawn.ID] = p
		}

	default:
		return fmt.Errorf("unknown event %q", env.Event)
	}
	g.history.Add(env)
	return nil
}

// Predict advances mirrored bullets by the given number of ticks so they
// keep moving between server updates. The server stays authoritative: a
// removeBullet still deletes the bullet wherever it was predicted to be.
func (g *Game) Predict(ticks int, speed float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for ID, b := range g.bullets {
		b.Position = b.Position.Add(b.Direction.Scale(speed * float64(ticks)))
		g.bullets[ID] = b
	}
}

// ReadMessages reads server frames until the connection fails or ctx ends.
func (g *Game) ReadMessages(ctx context.Context, c *websocket.Conn) error {
	for {
		_, b, err := c.Read(ctx)
		if err != nil {
			return err
		}
		env, err := g.codec.Decode(b)
		if err != nil {
			g.log.Debug("dropping malformed frame", zap.Error(err))
			continue
		}
		if err := g.Apply(env); err != nil {
			g.log.Debug("dropping event", zap.String("event", string(env.Event)), zap.Error(err))
		}
	}
}
