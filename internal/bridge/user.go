package bridge

import "time"

// User is one platform-scoped identity record. Users on different
// platforms that share a non-empty RefID represent the same human.
type User struct {
	ID          string   `json:"id"`
	Platform    Platform `json:"platform"`
	OriginID    string   `json:"origin_id"`
	DisplayText string   `json:"display_text"`
	RefID       string   `json:"ref_id,omitempty"`
}

// Linked reports whether the user is associated with counterparts on
// other platforms.
func (u User) Linked() bool { return u.RefID != "" }

// Record is the persisted correlation entry for one bridge message:
// its canonical content plus the native message id it maps to on each
// platform. Refs hold at most one entry per platform.
type Record struct {
	ID        string    `json:"id"`
	SenderID  string    `json:"sender_id"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	Chain     Chain     `json:"message_chain"`
	Refs      []Ref     `json:"refs"`
	CreatedAt time.Time `json:"created_at"`
}

// RefFor returns the native id recorded for the given platform.
func (r Record) RefFor(p Platform) (string, bool) {
	for _, ref := range r.Refs {
		if ref.Platform == p {
			return ref.OriginID, true
		}
	}
	return "", false
}
