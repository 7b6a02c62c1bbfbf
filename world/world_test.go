package world

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	events []Event
}

func (r *recorder) Publish(e Event) {
	r.events = append(r.events, e)
}

func (r *recorder) types() []EventType {
	out := make([]EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func (r *recorder) reset() {
	r.events = nil
}

func newRand() *rand.Rand {
	return rand.New(rand.NewSource(1))
}

var epoch = time.UnixMilli(1_700_000_000_000)

func TestStoreOrder(t *testing.T) {
	s := NewStore()
	for _, ID := range []string{"c", "a", "b"} {
		s.AddPlayer(&Player{ID: ID})
	}
	// Replacing keeps the original position in the order.
	s.AddPlayer(&Player{ID: "a", Color: "#000000"})

	var ids []string
	s.ForEachPlayer(func(p *Player) { ids = append(ids, p.ID) })
	assert.Equal(t, []string{"c", "a", "b"}, ids)

	_, ok := s.RemovePlayer("a")
	require.True(t, ok)
	_, ok = s.RemovePlayer("a")
	assert.False(t, ok)
	s.AddPlayer(&Player{ID: "a"})

	ids = ids[:0]
	for _, p := range s.Players() {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"c", "b", "a"}, ids)
	assert.Equal(t, 3, s.PlayerCount())
}

func TestStoreBullets(t *testing.T) {
	s := NewStore()
	s.AddBullet(&Bullet{ID: "1", OwnerID: "A"})
	s.AddBullet(&Bullet{ID: "2", OwnerID: "B"})
	s.AddBullet(&Bullet{ID: "3", OwnerID: "A"})

	assert.Equal(t, 2, s.BulletsOwnedBy("A"))
	assert.Equal(t, []string{"1", "3"}, s.RemoveBulletsOwnedBy("A"))
	assert.Equal(t, 1, s.BulletCount())
	assert.Empty(t, s.RemoveBulletsOwnedBy("A"))

	assert.True(t, s.RemoveBullet("2"))
	assert.False(t, s.RemoveBullet("2"))
}

func TestStoreRemovePlayerCancelsRespawn(t *testing.T) {
	s := NewStore()
	p := &Player{ID: "A"}
	s.AddPlayer(p)
	r := p.Kill(epoch.Add(time.Second))

	s.RemovePlayer("A")
	assert.True(t, r.Cancelled())
	assert.False(t, r.Due(epoch.Add(time.Hour)))
	assert.Nil(t, p.PendingRespawn())
}

func TestSnapshotCopies(t *testing.T) {
	s := NewStore()
	p := &Player{ID: "A", Position: Vector{X: 1}}
	s.AddPlayer(p)
	s.AddBullet(&Bullet{ID: "b", OwnerID: "A"})

	players, bullets := s.Snapshot()
	p.Position.X = 2
	assert.Equal(t, 1.0, players["A"].Position.X)
	assert.Contains(t, bullets, "b")
}

func TestKillReplacesPendingRespawn(t *testing.T) {
	p := &Player{ID: "A"}
	first := p.Kill(epoch)
	second := p.Kill(epoch.Add(time.Second))
	assert.True(t, first.Cancelled())
	assert.Same(t, second, p.PendingRespawn())
	assert.False(t, second.Due(epoch))
	assert.True(t, second.Due(epoch.Add(time.Second)))

	p.Revive(Vector{Y: 1})
	assert.False(t, p.IsDead)
	assert.Nil(t, p.PendingRespawn())
}

func TestSpawnPointAndColor(t *testing.T) {
	rng := newRand()
	for i := 0; i < 1000; i++ {
		v := SpawnPoint(rng, 40, 1)
		require.Equal(t, 1.0, v.Y)
		require.LessOrEqual(t, v.X, 40.0)
		require.GreaterOrEqual(t, v.X, -40.0)
		require.LessOrEqual(t, v.Z, 40.0)
		require.GreaterOrEqual(t, v.Z, -40.0)
		require.Regexp(t, `^#[0-9a-f]{6}$`, RandomColor(rng))
	}
}

func TestClampToPlayArea(t *testing.T) {
	assert.Equal(t, Vector{X: 49, Y: 0, Z: -49}, ClampToPlayArea(Vector{X: 60, Y: -3, Z: -80}, 49))
	assert.Equal(t, Vector{X: 1, Y: 7, Z: 2}, ClampToPlayArea(Vector{X: 1, Y: 7, Z: 2}, 49))
}

func TestEventAudience(t *testing.T) {
	assert.True(t, Broadcast(EventPlayerHit, "A").Reaches("A"))
	assert.True(t, SendTo("A", EventInit, nil).Reaches("A"))
	assert.False(t, SendTo("A", EventInit, nil).Reaches("B"))
	assert.False(t, Relay("A", EventNewPlayer, nil).Reaches("A"))
	assert.True(t, Relay("A", EventNewPlayer, nil).Reaches("B"))
}
