package command

import (
	"fmt"
	"sync"
	"time"

	"github.com/hollowdong/chatbridge/internal/bridge"
)

// CacheTimeout is how long a bind session stays live before silent expiry.
const CacheTimeout = 24 * time.Hour

// TokenLength is the length of a bind token: 6 lowercase hex characters.
const TokenLength = 6

type session struct {
	token       string
	applicantID string
	responderID string
	createdAt   time.Time
}

// userResolver is the slice of the identity store the bind protocol needs.
type userResolver interface {
	Get(id string) (bridge.User, bool)
}

// Sessions is the bind-protocol session table. Sessions are keyed by
// token for responder lookup and scanned by applicant for confirm lookup.
type Sessions struct {
	mu      sync.Mutex
	byToken map[string]*session
	timeout time.Duration

	// injectable for tests
	now      func() time.Time
	newToken func() string
}

func NewSessions() *Sessions {
	return &Sessions{
		byToken:  make(map[string]*session),
		timeout:  CacheTimeout,
		now:      time.Now,
		newToken: newToken,
	}
}

// newToken derives a token from the low-order bits of the monotonic
// high-resolution clock. 24 bits of entropy is enough for a table of live
// sessions; collisions are handled by regenerating.
func newToken() string {
	return fmt.Sprintf("%06x", uint32(time.Now().UnixNano())&0xffffff)
}

func validToken(s string) bool {
	if len(s) != TokenLength {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// Create opens a bind session for the applicant and returns the token.
// An existing session by the same applicant is replaced atomically.
// Tokens are unique across live sessions.
func (s *Sessions) Create(applicantID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeLocked()

	for token, sess := range s.byToken {
		if sess.applicantID == applicantID {
			delete(s.byToken, token)
		}
	}
	token := s.newToken()
	for {
		if _, taken := s.byToken[token]; !taken {
			break
		}
		token = s.newToken()
	}
	s.byToken[token] = &session{
		token:       token,
		applicantID: applicantID,
		createdAt:   s.now(),
	}
	return token
}

// Respond attaches a responder to the session identified by token.
// Rejections: malformed token, unknown token, responder identical to the
// applicant or on the applicant's platform (SelfReference), and pairs that
// are already linked (AlreadyMapping). Responding twice with the same user
// is a no-op.
func (s *Sessions) Respond(token string, responder bridge.User, users userResolver) Outcome {
	if !validToken(token) {
		return OutcomeInvalidToken
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeLocked()

	sess, ok := s.byToken[token]
	if !ok {
		return OutcomeNotFoundToken
	}
	if sess.applicantID == responder.ID {
		return OutcomeSelfReference
	}
	applicant, ok := users.Get(sess.applicantID)
	if !ok {
		return OutcomeNotFoundBridgeUser
	}
	if applicant.Platform == responder.Platform {
		return OutcomeSelfReference
	}
	if sess.responderID == responder.ID {
		return OutcomeBindResponded
	}
	if applicant.Linked() && applicant.RefID == responder.RefID {
		return OutcomeAlreadyMapping
	}
	sess.responderID = responder.ID
	return OutcomeBindResponded
}

// Confirm closes the applicant's session and returns the attached
// responder id. The session is removed only on success.
func (s *Sessions) Confirm(applicantID string) (string, Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeLocked()

	for token, sess := range s.byToken {
		if sess.applicantID != applicantID {
			continue
		}
		if sess.responderID == "" {
			return "", OutcomeNoResponed
		}
		delete(s.byToken, token)
		return sess.responderID, OutcomeBindConfirmed
	}
	return "", OutcomeNoApply
}

// Live reports how many sessions are currently cached.
func (s *Sessions) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeLocked()
	return len(s.byToken)
}

func (s *Sessions) purgeLocked() {
	cutoff := s.now().Add(-s.timeout)
	for token, sess := range s.byToken {
		if sess.createdAt.Before(cutoff) {
			delete(s.byToken, token)
		}
	}
}
