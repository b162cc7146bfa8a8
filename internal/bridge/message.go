package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/hollowdong/chatbridge/internal/config"
)

// Segment is one unit of a canonical message chain.
type Segment interface {
	segmentType() string
}

// Plain is UTF-8 text.
type Plain struct {
	Text string `json:"text"`
}

// At mentions one bridge user by its bridge-user id.
type At struct {
	ID string `json:"id"`
}

// AtAll is a broadcast mention (@everyone / @全体成员).
type AtAll struct{}

// ImageSeg carries an image by URL, local cache path or raw bytes.
// Exactly one field is set.
type ImageSeg struct {
	URL  string `json:"url,omitempty"`
	Path string `json:"path,omitempty"`
	Data []byte `json:"data,omitempty"`
}

// Reply references the bridge message this message replies to. ID may be
// empty when the referenced message is not in the correlation store.
type Reply struct {
	ID string `json:"id,omitempty"`
}

// ErrSeg is a placeholder for a segment whose translation failed.
type ErrSeg struct {
	Message string `json:"message"`
}

// Other is an opaque fallback for native content the bridge cannot carry.
type Other struct{}

func (Plain) segmentType() string    { return "Plain" }
func (At) segmentType() string       { return "At" }
func (AtAll) segmentType() string    { return "AtAll" }
func (ImageSeg) segmentType() string { return "Image" }
func (Reply) segmentType() string    { return "Reply" }
func (ErrSeg) segmentType() string   { return "Err" }
func (Other) segmentType() string    { return "Other" }

// ImageURL builds an image segment backed by a remote URL.
func ImageURL(u string) ImageSeg { return ImageSeg{URL: u} }

// ImagePath builds an image segment backed by a local file.
func ImagePath(p string) ImageSeg { return ImageSeg{Path: p} }

// ImageBytes builds an image segment backed by raw data.
func ImageBytes(b []byte) ImageSeg { return ImageSeg{Data: b} }

// Load resolves the image to raw bytes regardless of its source.
func (img ImageSeg) Load(ctx context.Context) ([]byte, error) {
	switch {
	case len(img.Data) > 0:
		return img.Data, nil
	case img.Path != "":
		return os.ReadFile(img.Path)
	case img.URL != "":
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, img.URL, nil)
		if err != nil {
			return nil, err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch image: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetch image: status %s", resp.Status)
		}
		return io.ReadAll(resp.Body)
	}
	return nil, fmt.Errorf("empty image segment")
}

// Chain is the ordered segment list of one canonical message.
type Chain []Segment

type segmentEnvelope struct {
	Type    string          `json:"type"`
	Text    string          `json:"text,omitempty"`
	ID      string          `json:"id,omitempty"`
	URL     string          `json:"url,omitempty"`
	Path    string          `json:"path,omitempty"`
	Data    []byte          `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
	Raw     json.RawMessage `json:"-"`
}

// MarshalJSON encodes each segment as a tagged object with a "type"
// discriminator, matching the persisted record format.
func (c Chain) MarshalJSON() ([]byte, error) {
	out := make([]segmentEnvelope, 0, len(c))
	for _, seg := range c {
		env := segmentEnvelope{Type: seg.segmentType()}
		switch s := seg.(type) {
		case Plain:
			env.Text = s.Text
		case At:
			env.ID = s.ID
		case Reply:
			env.ID = s.ID
		case ImageSeg:
			env.URL, env.Path, env.Data = s.URL, s.Path, s.Data
		case ErrSeg:
			env.Message = s.Message
		}
		out = append(out, env)
	}
	return json.Marshal(out)
}

func (c *Chain) UnmarshalJSON(data []byte) error {
	var envs []segmentEnvelope
	if err := json.Unmarshal(data, &envs); err != nil {
		return err
	}
	chain := make(Chain, 0, len(envs))
	for _, env := range envs {
		switch env.Type {
		case "Plain":
			chain = append(chain, Plain{Text: env.Text})
		case "At":
			chain = append(chain, At{ID: env.ID})
		case "AtAll":
			chain = append(chain, AtAll{})
		case "Image":
			chain = append(chain, ImageSeg{URL: env.URL, Path: env.Path, Data: env.Data})
		case "Reply":
			chain = append(chain, Reply{ID: env.ID})
		case "Err":
			chain = append(chain, ErrSeg{Message: env.Message})
		default:
			chain = append(chain, Other{})
		}
	}
	*c = chain
	return nil
}

// FirstPlain returns the text of the first Plain segment, or "".
func (c Chain) FirstPlain() string {
	for _, seg := range c {
		if p, ok := seg.(Plain); ok {
			return p.Text
		}
	}
	return ""
}

// Preview renders the chain as a one-line text summary for quoted reply
// previews. resolveAt maps a bridge-user id to a display label.
func (c Chain) Preview(resolveAt func(id string) string) string {
	var b strings.Builder
	for _, seg := range c {
		switch s := seg.(type) {
		case Plain:
			b.WriteString(s.Text)
		case At:
			b.WriteString("@" + resolveAt(s.ID))
		case AtAll:
			b.WriteString("@全体成员")
		case ImageSeg:
			b.WriteString("[图片]")
		case Reply:
			b.WriteString("[回复消息]")
		}
	}
	return b.String()
}

// Quote prefixes every line of text with "> " for inline reply rendering.
func Quote(text string) string {
	lines := strings.Split(text, "\n")
	var b strings.Builder
	for _, line := range lines {
		b.WriteString("> ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

// Message is a canonical message as delivered over the bus.
type Message struct {
	ID        string        `json:"id"`
	SenderID  string        `json:"sender_id"`
	AvatarURL string        `json:"avatar_url,omitempty"`
	Config    config.Bridge `json:"bridge_config"`
	Chain     Chain         `json:"message_chain"`
}

// Ref associates a bridge message with the native message id it received
// on one platform.
type Ref struct {
	Platform Platform `json:"platform"`
	OriginID string   `json:"origin_id"`
}

// SendForm is what an adapter hands to the bus when publishing: the
// canonical content plus the native origin ref of the source platform.
type SendForm struct {
	SenderID  string        `json:"sender_id"`
	AvatarURL string        `json:"avatar_url,omitempty"`
	Config    config.Bridge `json:"bridge_config"`
	Chain     Chain         `json:"message_chain"`
	Origin    Ref           `json:"origin_message"`
}
