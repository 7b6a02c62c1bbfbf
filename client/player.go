package client

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"nhooyr.io/websocket"

	"arenagame/protocol"
	"arenagame/world"
)

var ErrNotReady = errors.New("client: no init received yet")

type Outgoing struct {
	Event world.EventType
	Data  any
}

// LocalPlayer turns intents into client events for the server.
type LocalPlayer struct {
	game   *Game
	codec  protocol.Codec
	Events chan Outgoing
}

func NewLocalPlayer(game *Game, codec protocol.Codec) *LocalPlayer {
	return &LocalPlayer{
		game:   game,
		codec:  codec,
		Events: make(chan Outgoing, 1024),
	}
}

func (p *LocalPlayer) send(ctx context.Context, out Outgoing) error {
	select {
	case p.Events <- out:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Move reports a new position. The server relays it only to the other
// clients, so the mirrored self record is updated here.
func (p *LocalPlayer) Move(ctx context.Context, position world.Vector, rotation float64) error {
	p.game.moveSelf(position, rotation)
	return p.send(ctx, Outgoing{
		Event: world.EventUpdatePosition,
		Data:  world.UpdatePosition{Position: &position, Rotation: &rotation},
	})
}

func (p *LocalPlayer) Shoot(ctx context.Context, origin, direction world.Vector) error {
	return p.send(ctx, Outgoing{
		Event: world.EventShoot,
		Data:  world.Shoot{Position: &origin, Direction: &direction},
	})
}

// ShootAt fires from the player's mirrored position toward target.
func (p *LocalPlayer) ShootAt(ctx context.Context, target world.Vector) error {
	self, ok := p.game.Self()
	if !ok {
		return ErrNotReady
	}
	return p.Shoot(ctx, self.Position, target.Sub(self.Position))
}

// Wander moves the player around at random and fires at other players until
// ctx is done.
func (p *LocalPlayer) Wander(ctx context.Context, rng *rand.Rand, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		self, ok := p.game.Self()
		if !ok || self.IsDead {
			continue
		}
		step := world.Vector{X: rng.Float64()*2 - 1, Z: rng.Float64()*2 - 1}
		if err := p.Move(ctx, self.Position.Add(step), math.Atan2(step.X, step.Z)); err != nil {
			return err
		}

		if rng.Intn(4) != 0 {
			continue
		}
		for _, other := range p.game.Players() {
			if other.ID == self.ID || other.IsDead {
				continue
			}
			if err := p.ShootAt(ctx, other.Position); err != nil {
				return err
			}
			break
		}
	}
}

// WriteMessages sends queued events to the server until ctx is done or a
// write fails.
func (p *LocalPlayer) WriteMessages(ctx context.Context, c *websocket.Conn) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out := <-p.Events:
			b, err := p.codec.Encode(out.Event, out.Data)
			if err != nil {
				return err
			}
			if err := c.Write(ctx, p.codec.MessageType(), b); err != nil {
				return err
			}
		}
	}
}
