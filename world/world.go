package world

import "sync"

// Store is the authoritative set of live players and bullets. It is mutated
// only from the game loop; the lock lets other goroutines read counts and
// snapshots safely.
type Store struct {
	mu      sync.RWMutex
	players ordered[*Player]
	bullets ordered[*Bullet]
}

func NewStore() *Store {
	return &Store{
		players: newOrdered[*Player](),
		bullets: newOrdered[*Bullet](),
	}
}

// AddPlayer inserts or replaces p. New players go to the end of the join
// order.
func (s *Store) AddPlayer(p *Player) {
	s.mu.Lock()
	s.players.put(p.ID, p)
	s.mu.Unlock()
}

func (s *Store) Player(ID string) (*Player, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.players.get(ID)
}

// RemovePlayer deletes the player and cancels any pending respawn. Removing an
// unknown id is a no-op.
func (s *Store) RemovePlayer(ID string) (*Player, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players.remove(ID)
	if ok {
		p.cancelRespawn()
	}
	return p, ok
}

// Players returns live players in join order.
func (s *Store) Players() []*Player {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.players.values()
}

func (s *Store) ForEachPlayer(callback func(*Player)) {
	for _, p := range s.Players() {
		callback(p)
	}
}

func (s *Store) PlayerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.players.len()
}

func (s *Store) AddBullet(b *Bullet) {
	s.mu.Lock()
	s.bullets.put(b.ID, b)
	s.mu.Unlock()
}

func (s *Store) Bullet(ID string) (*Bullet, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bullets.get(ID)
}

// RemoveBullet deletes the bullet and reports whether it was present.
func (s *Store) RemoveBullet(ID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.bullets.remove(ID)
	return ok
}

// Bullets returns live bullets in creation order.
func (s *Store) Bullets() []*Bullet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bullets.values()
}

func (s *Store) BulletCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bullets.len()
}

func (s *Store) BulletsOwnedBy(owner string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, b := range s.bullets.items {
		if b.OwnerID == owner {
			n++
		}
	}
	return n
}

// RemoveBulletsOwnedBy deletes every bullet fired by owner and returns their
// ids.
func (s *Store) RemoveBulletsOwnedBy(owner string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed []string
	for _, b := range s.bullets.values() {
		if b.OwnerID == owner {
			s.bullets.remove(b.ID)
			removed = append(removed, b.ID)
		}
	}
	return removed
}

// Snapshot copies every player and bullet record.
func (s *Store) Snapshot() (map[string]Player, map[string]Bullet) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	players := make(map[string]Player, s.players.len())
	for ID, p := range s.players.items {
		players[ID] = *p
	}
	bullets := make(map[string]Bullet, s.bullets.len())
	for ID, b := range s.bullets.items {
		bullets[ID] = *b
	}
	return players, bullets
}

// ordered is a map that remembers insertion order.
type ordered[V any] struct {
	items map[string]V
	keys  []string
}

func newOrdered[V any]() ordered[V] {
	return ordered[V]{items: make(map[string]V)}
}

func (o *ordered[V]) put(key string, v V) {
	if _, ok := o.items[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.items[key] = v
}

func (o *ordered[V]) get(key string) (V, bool) {
	v, ok := o.items[key]
	return v, ok
}

func (o *ordered[V]) remove(key string) (V, bool) {
	v, ok := o.items[key]
	if !ok {
		return v, false
	}
	delete(o.items, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
	return v, true
}

func (o *ordered[V]) values() []V {
	out := make([]V, 0, len(o.keys))
	for _, k := range o.keys {
		out = append(out, o.items[k])
	}
	return out
}

func (o *ordered[V]) len() int {
	return len(o.items)
}
