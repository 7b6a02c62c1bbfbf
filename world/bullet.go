package world

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/segmentio/ksuid"
)

type Bullet struct {
	ID        string `json:"id"`
	Position  Vector `json:"position"`
	Direction Vector `json:"direction"`
	OwnerID   string `json:"ownerId"`
	// CreationTime is in unix milliseconds, as the browser client expects.
	CreationTime int64 `json:"creationTime"`

	created time.Time
}

var bulletSeq atomic.Uint64

// NewBullet creates a bullet fired by owner from origin. The direction is
// normalized, so a zero direction yields a bullet that never moves.
func NewBullet(owner string, origin, direction Vector, now time.Time) *Bullet {
	return &Bullet{
		ID:           bulletID(owner, now),
		Position:     origin,
		Direction:    direction.Normalize(),
		OwnerID:      owner,
		CreationTime: now.UnixMilli(),
		created:      now,
	}
}

// bulletID derives an id from the owner and the creation time. The ksuid
// carries the timestamp plus random payload, so two shots in the same
// millisecond still differ.
func bulletID(owner string, now time.Time) string {
	id, err := ksuid.NewRandomWithTime(now)
	if err != nil {
		return fmt.Sprintf("bullet_%s_%d_%d", owner, now.UnixMilli(), bulletSeq.Add(1))
	}
	return fmt.Sprintf("bullet_%s_%s", owner, id)
}

func (b *Bullet) Created() time.Time {
	return b.created
}

func (b *Bullet) Age(now time.Time) time.Duration {
	return now.Sub(b.created)
}
