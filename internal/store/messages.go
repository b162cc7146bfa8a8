package store

import (
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hollowdong/chatbridge/internal/bridge"
)

// ErrAmbiguousRef means a native message id mapped to more than one bridge
// message. The store never silently picks one.
var ErrAmbiguousRef = errors.New("ref matches multiple bridge messages")

// MessageStore maintains the many-to-many correspondence between bridge
// message ids and per-platform native message ids.
type MessageStore struct {
	mu      sync.RWMutex
	path    string
	records []bridge.Record

	// horizon prunes records older than this on open. Zero keeps all;
	// callers must not configure it below 24h.
	horizon time.Duration
}

// OpenMessageStore loads data/bridge_message.json from dir, pruning
// records older than horizon when horizon is non-zero.
func OpenMessageStore(dir string, horizon time.Duration) (*MessageStore, error) {
	s := &MessageStore{
		path:    filepath.Join(dir, "bridge_message.json"),
		horizon: horizon,
	}
	if err := loadJSON(s.path, &s.records); err != nil {
		return nil, err
	}
	if horizon > 0 {
		cutoff := time.Now().Add(-horizon)
		kept := s.records[:0]
		for _, r := range s.records {
			if r.CreatedAt.IsZero() || r.CreatedAt.After(cutoff) {
				kept = append(kept, r)
			}
		}
		s.records = kept
	}
	return s, nil
}

// Save creates a bridge-message record seeded with the originating
// platform's ref and returns the new bridge id.
func (s *MessageStore) Save(form bridge.SendForm) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := bridge.Record{
		ID:        uuid.NewString(),
		SenderID:  form.SenderID,
		AvatarURL: form.AvatarURL,
		Chain:     form.Chain,
		Refs:      []bridge.Ref{form.Origin},
		CreatedAt: time.Now().UTC(),
	}
	s.records = append(s.records, rec)
	if err := saveJSON(s.path, s.records); err != nil {
		s.records = s.records[:len(s.records)-1]
		return "", err
	}
	return rec.ID, nil
}

// AddRef appends the native id a receiving adapter got back from its
// platform. A second ref for the same platform is a no-op. Returns false
// when the bridge id is unknown.
func (s *MessageStore) AddRef(bridgeID string, platform bridge.Platform, originID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		if s.records[i].ID != bridgeID {
			continue
		}
		if _, exists := s.records[i].RefFor(platform); exists {
			return true, nil
		}
		s.records[i].Refs = append(s.records[i].Refs, bridge.Ref{
			Platform: platform,
			OriginID: originID,
		})
		if err := saveJSON(s.path, s.records); err != nil {
			s.records[i].Refs = s.records[i].Refs[:len(s.records[i].Refs)-1]
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// Get looks a record up by bridge-message id.
func (s *MessageStore) Get(bridgeID string) (bridge.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.records {
		if r.ID == bridgeID {
			return r, true
		}
	}
	return bridge.Record{}, false
}

// FindByRef resolves a native message id back to its bridge record for
// inbound reply rewriting. Returns nil when no record matches and
// ErrAmbiguousRef when more than one does.
func (s *MessageStore) FindByRef(originID string, platform bridge.Platform) (*bridge.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found *bridge.Record
	for i := range s.records {
		if id, ok := s.records[i].RefFor(platform); ok && id == originID {
			if found != nil {
				return nil, ErrAmbiguousRef
			}
			rec := s.records[i]
			found = &rec
		}
	}
	return found, nil
}
