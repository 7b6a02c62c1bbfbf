package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"arenagame/client"
	"arenagame/protocol"
	"arenagame/utils"
	"arenagame/world"
)

const waitFor = 3 * time.Second

func testConfig() *utils.Config {
	cfg := utils.DefaultConfig()
	cfg.Server.StaticDir = ""
	cfg.Server.ResyncInterval = utils.Duration{}
	cfg.Game.TickInterval = utils.Duration{Duration: 5 * time.Millisecond}
	cfg.Game.RespawnDelay = utils.Duration{Duration: 200 * time.Millisecond}
	cfg.Game.Seed = 7
	return cfg
}

type harness struct {
	t      *testing.T
	ctx    context.Context
	server *Server
	url    string
}

func newHarness(t *testing.T, cfg *utils.Config) *harness {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewServer(cfg, zap.NewNop())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	ts := httptest.NewServer(s)

	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
		ts.Close()
	})
	return &harness{
		t:      t,
		ctx:    ctx,
		server: s,
		url:    "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws",
	}
}

func (h *harness) join(codec protocol.Codec) *client.Client {
	c, err := client.Dial(h.ctx, h.url, codec, zap.NewNop())
	require.NoError(h.t, err)
	go c.Run(h.ctx)
	h.t.Cleanup(func() { c.Close() })

	select {
	case <-c.Ready():
	case <-time.After(waitFor):
		h.t.Fatal("no init received")
	}
	return c
}

func sees(c *client.Client, ID string, check func(world.Player) bool) func() bool {
	return func() bool {
		p, ok := c.Player(ID)
		return ok && check(p)
	}
}

func TestJoinSeesEachOther(t *testing.T) {
	h := newHarness(t, testConfig())

	a := h.join(protocol.JSON)
	self, ok := a.Self()
	require.True(t, ok)
	assert.Equal(t, 1.0, self.Position.Y)
	assert.Len(t, a.Players(), 1)

	b := h.join(protocol.JSON)
	assert.Len(t, b.Players(), 2)
	require.Eventually(t, sees(a, b.PlayerID(), func(world.Player) bool { return true }), waitFor, 5*time.Millisecond)

	require.NoError(t, b.Move(h.ctx, world.Vector{X: 12, Y: 1, Z: -3}, 0.25))
	require.Eventually(t, sees(a, b.PlayerID(), func(p world.Player) bool {
		return p.Position == world.Vector{X: 12, Y: 1, Z: -3} && p.Rotation == 0.25
	}), waitFor, 5*time.Millisecond)

	assert.Equal(t, Stats{Players: 2, Bullets: 0, Subscribers: 2}, h.server.Stats())
}

func TestShootHitRespawn(t *testing.T) {
	h := newHarness(t, testConfig())
	a := h.join(protocol.JSON)
	b := h.join(protocol.JSON)
	target := b.PlayerID()

	require.NoError(t, a.Move(h.ctx, world.Vector{X: 5, Y: 1}, 0))
	require.NoError(t, b.Move(h.ctx, world.Vector{X: 10, Y: 1}, 0))
	require.Eventually(t, sees(a, target, func(p world.Player) bool { return p.Position.X == 10 }), waitFor, 5*time.Millisecond)
	require.Eventually(t, sees(b, a.PlayerID(), func(p world.Player) bool { return p.Position.X == 5 }), waitFor, 5*time.Millisecond)

	require.NoError(t, a.Shoot(h.ctx, world.Vector{X: 5, Y: 1}, world.Vector{X: 1}))

	dead := func(p world.Player) bool { return p.IsDead }
	require.Eventually(t, sees(a, target, dead), waitFor, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		self, ok := b.Self()
		return ok && self.IsDead
	}, waitFor, 5*time.Millisecond)

	alive := func(p world.Player) bool { return !p.IsDead && p.Position.Y == 1 }
	require.Eventually(t, sees(a, target, alive), waitFor, 5*time.Millisecond)

	for _, c := range []*client.Client{a, b} {
		assert.Empty(t, c.Bullets())
		assert.Equal(t, 1, c.Impacts())
		assert.Equal(t, []world.EventType{
			world.EventNewBullet,
			world.EventBulletImpact,
			world.EventPlayerHit,
			world.EventRemoveBullet,
			world.EventPlayerRespawn,
		}, combatEvents(c))
	}
}

func combatEvents(c *client.Client) []world.EventType {
	var out []world.EventType
	for _, r := range c.History() {
		switch r.Envelope.Event {
		case world.EventNewBullet, world.EventBulletImpact, world.EventPlayerHit,
			world.EventRemoveBullet, world.EventPlayerRespawn:
			out = append(out, r.Envelope.Event)
		}
	}
	return out
}

func TestBulletExpires(t *testing.T) {
	cfg := testConfig()
	cfg.Game.BulletLifetime = utils.Duration{Duration: 100 * time.Millisecond}
	h := newHarness(t, cfg)
	a := h.join(protocol.JSON)
	b := h.join(protocol.Proto)

	require.NoError(t, a.Move(h.ctx, world.Vector{Y: 1}, 0))
	require.NoError(t, b.Move(h.ctx, world.Vector{X: 20, Y: 1}, 0))
	require.Eventually(t, sees(a, b.PlayerID(), func(p world.Player) bool { return p.Position.X == 20 }), waitFor, 5*time.Millisecond)
	require.Eventually(t, sees(b, a.PlayerID(), func(p world.Player) bool { return p.Position == world.Vector{Y: 1} }), waitFor, 5*time.Millisecond)

	// Twenty ticks at 0.5 per tick stay well clear of B and the bounds.
	require.NoError(t, a.Shoot(h.ctx, world.Vector{Y: 1}, world.Vector{Z: 1}))

	require.Eventually(t, func() bool {
		return len(bulletEvents(a, world.EventRemoveBullet)) == 1 && len(bulletEvents(b, world.EventRemoveBullet)) == 1
	}, waitFor, 5*time.Millisecond)

	fired := bulletEvents(a, world.EventNewBullet)
	require.Len(t, fired, 1)
	assert.True(t, strings.HasPrefix(fired[0], "bullet_"+a.PlayerID()+"_"), fired[0])
	for _, c := range []*client.Client{a, b} {
		assert.Equal(t, fired, bulletEvents(c, world.EventNewBullet))
		assert.Equal(t, fired, bulletEvents(c, world.EventRemoveBullet))
		assert.Empty(t, c.Bullets())
		assert.Zero(t, c.Impacts())
	}
	assert.Zero(t, h.server.Stats().Bullets)
}

// bulletEvents returns the bullet ids carried by newBullet or removeBullet
// events in c's history.
func bulletEvents(c *client.Client, event world.EventType) []string {
	var ids []string
	for _, r := range c.History() {
		switch {
		case r.Envelope.Event != event:
		case event == world.EventNewBullet:
			b, err := protocol.DecodeData[world.Bullet](r.Envelope)
			if err == nil {
				ids = append(ids, b.ID)
			}
		default:
			ID, err := protocol.DecodeData[string](r.Envelope)
			if err == nil {
				ids = append(ids, ID)
			}
		}
	}
	return ids
}

func TestDisconnectRemovesPlayerAndBullets(t *testing.T) {
	cfg := testConfig()
	cfg.Game.TickInterval = utils.Duration{Duration: time.Hour}
	h := newHarness(t, cfg)
	a := h.join(protocol.JSON)
	b := h.join(protocol.JSON)
	leaving := b.PlayerID()

	require.NoError(t, b.Shoot(h.ctx, world.Vector{Y: 1}, world.Vector{X: 1}))
	require.Eventually(t, func() bool { return len(a.Bullets()) == 1 }, waitFor, 5*time.Millisecond)

	require.NoError(t, b.Close())

	require.Eventually(t, func() bool {
		_, ok := a.Player(leaving)
		return !ok && len(a.Bullets()) == 0
	}, waitFor, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return h.server.Stats() == Stats{Players: 1, Subscribers: 1}
	}, waitFor, 5*time.Millisecond)
}

func TestProtoSubprotocol(t *testing.T) {
	h := newHarness(t, testConfig())
	a := h.join(protocol.JSON)
	b := h.join(protocol.Proto)

	require.Len(t, b.Players(), 2)
	require.NoError(t, b.Move(h.ctx, world.Vector{X: -7, Y: 1, Z: 2}, 1))
	require.Eventually(t, sees(a, b.PlayerID(), func(p world.Player) bool {
		return p.Position == world.Vector{X: -7, Y: 1, Z: 2}
	}), waitFor, 5*time.Millisecond)

	require.NoError(t, a.Move(h.ctx, world.Vector{X: 3, Y: 1, Z: 3}, 0))
	require.Eventually(t, sees(b, a.PlayerID(), func(p world.Player) bool {
		return p.Position == world.Vector{X: 3, Y: 1, Z: 3}
	}), waitFor, 5*time.Millisecond)
}

func TestMalformedInputIsDropped(t *testing.T) {
	h := newHarness(t, testConfig())
	a := h.join(protocol.JSON)
	b := h.join(protocol.JSON)

	// Missing rotation, then a well-formed move: only the second lands.
	b.Events <- client.Outgoing{Event: world.EventUpdatePosition, Data: map[string]any{
		"position": world.Vector{X: 20, Y: 1},
	}}
	b.Events <- client.Outgoing{Event: "teleport", Data: world.Vector{}}
	require.NoError(t, b.Move(h.ctx, world.Vector{X: 21, Y: 1}, 0))

	require.Eventually(t, sees(a, b.PlayerID(), func(p world.Player) bool { return p.Position.X == 21 }), waitFor, 5*time.Millisecond)
	for _, r := range a.History() {
		if r.Envelope.Event != world.EventPlayerMoved {
			continue
		}
		moved, err := protocol.DecodeData[world.PlayerMovedPayload](r.Envelope)
		require.NoError(t, err)
		assert.NotEqual(t, 20.0, moved.Position.X)
	}
}

type brokenCodec struct {
	protocol.Codec
}

func (brokenCodec) Encode(world.EventType, any) ([]byte, error) {
	return nil, errors.New("codec unavailable")
}

func TestPublishSkipsOnlyFailingCodec(t *testing.T) {
	s := NewServer(testConfig(), zap.NewNop())
	s.addSubscriber(&subscriber{ID: "broken", Messages: make(chan []byte, 1), codec: brokenCodec{protocol.JSON}})
	for _, codec := range []protocol.Codec{protocol.JSON, protocol.Proto} {
		for i := 0; i < 4; i++ {
			s.addSubscriber(&subscriber{
				ID:       fmt.Sprintf("%s-%d", codec.Subprotocol(), i),
				Messages: make(chan []byte, 1),
				codec:    codec,
			})
		}
	}

	s.Publish(world.Broadcast(world.EventPlayerHit, "B"))

	for ID, sub := range s.subscribers {
		if ID == "broken" {
			assert.Empty(t, sub.Messages)
			continue
		}
		require.Len(t, sub.Messages, 1, ID)
		env, err := sub.codec.Decode(<-sub.Messages)
		require.NoError(t, err)
		assert.Equal(t, world.EventPlayerHit, env.Event)
	}
}

func TestServesDebugAndRejectsPlainHTTP(t *testing.T) {
	s := NewServer(testConfig(), zap.NewNop())

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.NotEqual(t, http.StatusSwitchingProtocols, rec.Code)

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRunStopsCleanly(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx, cancel := context.WithCancel(context.Background())
	s := NewServer(testConfig(), zap.NewNop())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("Run did not return")
	}
	assert.False(t, s.enqueue(context.Background(), leave{}))
}
