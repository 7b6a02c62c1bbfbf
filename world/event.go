package world

type EventType string

// Server to client.
const (
	EventInit               EventType = "init"
	EventNewPlayer          EventType = "newPlayer"
	EventPlayerMoved        EventType = "playerMoved"
	EventPlayerDisconnected EventType = "playerDisconnected"
	EventNewBullet          EventType = "newBullet"
	EventRemoveBullet       EventType = "removeBullet"
	EventBulletImpact       EventType = "bulletImpact"
	EventPlayerHit          EventType = "playerHit"
	EventPlayerRespawn      EventType = "playerRespawn"
)

// Client to server.
const (
	EventUpdatePosition EventType = "updatePosition"
	EventShoot          EventType = "shoot"
)

type Audience uint8

const (
	AudienceAll Audience = iota
	AudienceOne
	AudienceOthers
)

// Event is a state change addressed to some set of connected clients.
type Event struct {
	Type     EventType
	Data     any
	Audience Audience
	// Target is the recipient for AudienceOne and the excluded sender for
	// AudienceOthers.
	Target string
}

func Broadcast(t EventType, data any) Event {
	return Event{Type: t, Data: data, Audience: AudienceAll}
}

func SendTo(ID string, t EventType, data any) Event {
	return Event{Type: t, Data: data, Audience: AudienceOne, Target: ID}
}

// Relay addresses everyone except the sender.
func Relay(from string, t EventType, data any) Event {
	return Event{Type: t, Data: data, Audience: AudienceOthers, Target: from}
}

func (e Event) Reaches(ID string) bool {
	switch e.Audience {
	case AudienceOne:
		return ID == e.Target
	case AudienceOthers:
		return ID != e.Target
	default:
		return true
	}
}

// Publisher delivers events. Delivery is fire-and-forget.
type Publisher interface {
	Publish(Event)
}

type PublisherFunc func(Event)

func (f PublisherFunc) Publish(e Event) { f(e) }

type InitPayload struct {
	ID      string            `json:"id"`
	Players map[string]Player `json:"players"`
	Bullets map[string]Bullet `json:"bullets"`
}

type PlayerMovedPayload struct {
	ID       string  `json:"id"`
	Position Vector  `json:"position"`
	Rotation float64 `json:"rotation"`
}

type BulletImpactPayload struct {
	Position Vector `json:"position"`
	Normal   Vector `json:"normal"`
}

type PlayerRespawnPayload struct {
	ID       string `json:"id"`
	Position Vector `json:"position"`
}
