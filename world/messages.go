package world

import "errors"

var (
	ErrMalformedPayload = errors.New("malformed payload")
	ErrPlayerDead       = errors.New("player is dead")
	ErrRateLimited      = errors.New("shot rate exceeded")
	ErrBulletCap        = errors.New("too many live bullets")
)

// Fields are pointers so a missing field can be told apart from a zero one.

type UpdatePosition struct {
	Position *Vector  `json:"position"`
	Rotation *float64 `json:"rotation"`
}

func (u *UpdatePosition) Validate() error {
	if u == nil || u.Position == nil || u.Rotation == nil {
		return ErrMalformedPayload
	}
	if !u.Position.Finite() || !finite(*u.Rotation) {
		return ErrMalformedPayload
	}
	return nil
}

type Shoot struct {
	Position  *Vector `json:"position"`
	Direction *Vector `json:"direction"`
}

func (s *Shoot) Validate() error {
	if s == nil || s.Position == nil || s.Direction == nil {
		return ErrMalformedPayload
	}
	if !s.Position.Finite() || !s.Direction.Finite() {
		return ErrMalformedPayload
	}
	return nil
}

func finite(f float64) bool {
	return Vector{X: f}.Finite()
}
