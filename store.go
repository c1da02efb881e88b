// The room document store: the single place the canonical room entity is
// read and written. It wraps a storage adapter with JSON (de)serialization
// and treats a missing or unparsable document as absent rather than as an
// error, so a corrupted store degrades to "no room yet" instead of taking
// the API down. It also tracks the optional re-creation cooldown after a
// host nukes the room.

package main

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

type roomStore struct {
	backend  storage
	cooldown time.Duration

	mu           sync.Mutex
	blockedUntil time.Time
}

func newRoomStore(backend storage, cooldown time.Duration) *roomStore {
	return &roomStore{
		backend:  backend,
		cooldown: cooldown,
	}
}

// load returns the current room, or ok=false when no usable document
// exists. Backend failures are surfaced; decode failures are not.
func (s *roomStore) load(ctx context.Context) (*Room, bool, error) {
	data, ok, err := s.backend.Get(ctx)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	var room Room
	if err := json.Unmarshal(data, &room); err != nil {
		return nil, false, nil
	}
	room.normalize()

	return &room, true, nil
}

func (s *roomStore) save(ctx context.Context, room *Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return err
	}

	return s.backend.Set(ctx, data)
}

// delete removes the room and starts the re-creation cooldown, if one is
// configured.
func (s *roomStore) delete(ctx context.Context) error {
	if err := s.backend.Delete(ctx); err != nil {
		return err
	}

	if s.cooldown > 0 {
		s.mu.Lock()
		s.blockedUntil = time.Now().Add(s.cooldown)
		s.mu.Unlock()
	}

	return nil
}

// creationBlocked reports whether room creation is inside the post-nuke
// cooldown window.
func (s *roomStore) creationBlocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return time.Now().Before(s.blockedUntil)
}
