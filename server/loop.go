package server

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"arenagame/protocol"
	"arenagame/world"
)

// Commands posted by connection goroutines to the game loop.
type (
	join  struct{ sub *subscriber }
	leave struct{ sub *subscriber }
	input struct {
		ID  string
		env protocol.Envelope
	}
)

// enqueue hands a command to the game loop. It gives up when ctx is done or
// the loop has stopped.
func (s *Server) enqueue(ctx context.Context, cmd any) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.inbox <- cmd:
		return true
	case <-ctx.Done():
		return false
	case <-s.done:
		return false
	}
}

// Run is the game loop. Connection events and simulation ticks are handled
// one at a time on this goroutine, so the world needs no further locking.
func (s *Server) Run(ctx context.Context) error {
	defer close(s.done)

	tick := time.NewTicker(s.tuning.TickInterval)
	defer tick.Stop()

	var resync <-chan time.Time
	if interval := s.cfg.Server.ResyncInterval.Duration; interval > 0 {
		t := time.NewTicker(interval)
		defer t.Stop()
		resync = t.C
	}

	for {
		select {
		case <-ctx.Done():
			s.closeAll()
			return nil
		case cmd := <-s.inbox:
			s.onCommand(cmd)
		case now := <-tick.C:
			s.sim.Step(now)
		case <-resync:
			s.sessions.Resync()
		}
	}
}

func (s *Server) onCommand(cmd any) {
	switch c := cmd.(type) {
	case join:
		s.addSubscriber(c.sub)
		s.sessions.Connect(c.sub.ID)
	case leave:
		s.removeSubscriber(c.sub)
		s.sessions.Disconnect(c.sub.ID)
	case input:
		if err := s.onInput(c); err != nil {
			s.log.Debug("dropped client event",
				zap.String("player", c.ID),
				zap.String("event", string(c.env.Event)),
				zap.Error(err))
		}
	}
}

func (s *Server) onInput(in input) error {
	switch in.env.Event {
	case world.EventUpdatePosition:
		msg, err := protocol.DecodeData[world.UpdatePosition](in.env)
		if err != nil {
			return fmt.Errorf("%w: %v", world.ErrMalformedPayload, err)
		}
		return s.sessions.UpdatePosition(in.ID, &msg)

	case world.EventShoot:
		msg, err := protocol.DecodeData[world.Shoot](in.env)
		if err != nil {
			return fmt.Errorf("%w: %v", world.ErrMalformedPayload, err)
		}
		_, err = s.sessions.Shoot(in.ID, &msg, s.now())
		return err
	}
	return fmt.Errorf("unknown event %q", in.env.Event)
}

func (s *Server) closeAll() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.subscribers {
		sub.close(websocket.StatusGoingAway, "server shutting down")
	}
}
