package store

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/hollowdong/chatbridge/internal/bridge"
)

// legacyRef is a record from the old bridge_user_ref.json table. The file
// is loaded when present so pre-existing ref ids keep resolving, but the
// bridge no longer writes it: ref ids live inline on the user records.
type legacyRef struct {
	ID string `json:"id"`
}

// UserStore is the sole authority over the bridge-user table. Adapters
// never mutate user records directly.
type UserStore struct {
	mu         sync.RWMutex
	path       string
	users      []bridge.User
	legacyRefs []legacyRef
}

// OpenUserStore loads data/bridge_user.json (and the optional legacy
// bridge_user_ref.json) from dir.
func OpenUserStore(dir string) (*UserStore, error) {
	s := &UserStore{path: filepath.Join(dir, "bridge_user.json")}
	if err := loadJSON(s.path, &s.users); err != nil {
		return nil, err
	}
	if err := loadJSON(filepath.Join(dir, "bridge_user_ref.json"), &s.legacyRefs); err != nil {
		return nil, err
	}
	return s, nil
}

// Get looks a user up by bridge-user id.
func (s *UserStore) Get(id string) (bridge.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findLocked(func(u bridge.User) bool { return u.ID == id })
}

// FindByOrigin looks a user up by its platform-native id.
func (s *UserStore) FindByOrigin(originID string, platform bridge.Platform) (bridge.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findLocked(func(u bridge.User) bool {
		return u.OriginID == originID && u.Platform == platform
	})
}

// FindOrCreate returns the user for (platform, originID), creating it on
// first sight. DisplayText is never refreshed on this path: the stored
// label stays as first seen, for auditability.
func (s *UserStore) FindOrCreate(originID string, platform bridge.Platform, displayText string) (bridge.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.findLocked(func(u bridge.User) bool {
		return u.OriginID == originID && u.Platform == platform
	}); ok {
		return u, nil
	}
	u := bridge.User{
		ID:          uuid.NewString(),
		Platform:    platform,
		OriginID:    originID,
		DisplayText: displayText,
	}
	s.users = append(s.users, u)
	if err := saveJSON(s.path, s.users); err != nil {
		s.users = s.users[:len(s.users)-1]
		return bridge.User{}, err
	}
	return u, nil
}

// FindCounterpart returns the user on the given platform sharing refID.
func (s *UserStore) FindCounterpart(refID string, platform bridge.Platform) (bridge.User, bool) {
	if refID == "" {
		return bridge.User{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findLocked(func(u bridge.User) bool {
		return u.RefID == refID && u.Platform == platform
	})
}

// BatchUpdate writes the listed records atomically and returns how many
// were updated. Unknown ids fail the whole batch.
func (s *UserStore) BatchUpdate(users []bridge.User) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated := make([]bridge.User, len(s.users))
	copy(updated, s.users)
	count := 0
	for _, in := range users {
		found := false
		for i := range updated {
			if updated[i].ID == in.ID {
				updated[i] = in
				found = true
				count++
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("user %s not found", in.ID)
		}
	}
	if err := saveJSON(s.path, updated); err != nil {
		return 0, err
	}
	s.users = updated
	return count, nil
}

// Unlink clears the user's ref id. Returns false when the id is unknown
// and true whether or not a link existed.
func (s *UserStore) Unlink(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.users {
		if s.users[i].ID != id {
			continue
		}
		if s.users[i].RefID == "" {
			return true, nil
		}
		prev := s.users[i].RefID
		s.users[i].RefID = ""
		if err := saveJSON(s.path, s.users); err != nil {
			s.users[i].RefID = prev
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// List returns a copy of the whole user table.
func (s *UserStore) List() []bridge.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]bridge.User, len(s.users))
	copy(out, s.users)
	return out
}

func (s *UserStore) findLocked(match func(bridge.User) bool) (bridge.User, bool) {
	for _, u := range s.users {
		if match(u) {
			return u, true
		}
	}
	return bridge.User{}, false
}
