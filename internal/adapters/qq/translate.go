package qq

import (
	"context"
	"encoding/base64"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/hollowdong/chatbridge/internal/bridge"
)

const replyPlaceholder = "> {回复消息}\n"

// missingContent replaces a message that renders to nothing at all.
const missingContent = "{本次发送的消息没有内容}"

// miraiSegment is one element of a backend message chain, in both
// directions. Unused fields stay zero and are omitted on the wire.
type miraiSegment struct {
	Type    string `json:"type"`
	ID      int64  `json:"id,omitempty"`      // Source, Quote
	Text    string `json:"text,omitempty"`    // Plain
	Target  int64  `json:"target,omitempty"`  // At
	Display string `json:"display,omitempty"` // At
	URL     string `json:"url,omitempty"`     // Image
	Base64  string `json:"base64,omitempty"`  // Image (outbound upload)
}

// translateInbound converts a backend message chain to canonical form and
// extracts the native message id from its Source segment. Failed segments
// degrade to placeholders; translation never aborts the message.
func (a *Adapter) translateInbound(ctx context.Context, native []miraiSegment) (bridge.Chain, string) {
	var chain bridge.Chain
	sourceID := ""
	for _, seg := range native {
		switch seg.Type {
		case "Source":
			sourceID = strconv.FormatInt(seg.ID, 10)
		case "Plain":
			chain = append(chain, bridge.Plain{Text: seg.Text})
		case "AtAll":
			chain = append(chain, bridge.AtAll{})
		case "At":
			chain = append(chain, a.resolveMention(seg))
		case "Image":
			if seg.URL == "" {
				continue
			}
			if path, err := a.core.Media.Fetch(ctx, seg.URL); err == nil {
				chain = append(chain, bridge.ImagePath(path))
			} else {
				slog.Warn("qq image download failed", "url", seg.URL, "error", err)
				chain = append(chain, bridge.ImageURL(seg.URL))
			}
		case "Quote":
			chain = append(bridge.Chain{a.resolveReply(seg.ID)}, chain...)
		default:
			chain = append(chain, bridge.Other{})
		}
	}
	return chain, sourceID
}

// resolveMention maps a native At to a bridge user, registering the
// target on first sight. The display label the backend attaches ("@name")
// seeds the user's display text.
func (a *Adapter) resolveMention(seg miraiSegment) bridge.Segment {
	originID := strconv.FormatInt(seg.Target, 10)
	display := strings.TrimPrefix(seg.Display, "@")
	if display == "" {
		display = originID
	}
	target, err := a.core.Users.FindOrCreate(originID, bridge.PlatformQQ, display)
	if err != nil {
		return bridge.Plain{Text: "@" + display}
	}
	return bridge.At{ID: target.ID}
}

// resolveReply maps a quoted native message id to its bridge message.
// Ambiguous or missing correlations degrade to a quoted placeholder.
func (a *Adapter) resolveReply(nativeID int64) bridge.Segment {
	originID := strconv.FormatInt(nativeID, 10)
	rec, err := a.core.Messages.FindByRef(originID, bridge.PlatformQQ)
	if err != nil {
		slog.Error("qq reply lookup failed", "origin_id", originID, "error", err)
		return bridge.Plain{Text: replyPlaceholder}
	}
	if rec == nil {
		return bridge.Plain{Text: replyPlaceholder}
	}
	return bridge.Reply{ID: rec.ID}
}

// translateOutbound renders a canonical message as a backend chain plus
// the native message id to quote (0 when not replying).
func (a *Adapter) translateOutbound(ctx context.Context, msg bridge.Message) ([]miraiSegment, int64) {
	var (
		chain []miraiSegment
		quote int64
	)

	sender := "[UN] " + msg.SenderID
	if u, ok := a.core.Users.Get(msg.SenderID); ok {
		sender = u.DisplayText
	}
	chain = append(chain, miraiSegment{Type: "Plain", Text: sender + ":\n"})

	hasContent := false
	for _, seg := range msg.Chain {
		switch s := seg.(type) {
		case bridge.Plain:
			chain = append(chain, miraiSegment{Type: "Plain", Text: s.Text})
			hasContent = hasContent || strings.TrimSpace(s.Text) != ""
		case bridge.AtAll:
			chain = append(chain, miraiSegment{Type: "AtAll"})
			hasContent = true
		case bridge.At:
			chain = append(chain, a.renderMention(s.ID))
			hasContent = true
		case bridge.ImageSeg:
			if img, ok := renderImage(ctx, s); ok {
				chain = append(chain, img)
				hasContent = true
			}
		case bridge.Reply:
			if native, preview := a.renderReply(s.ID); native != 0 {
				quote = native
			} else {
				chain = append(chain, miraiSegment{Type: "Plain", Text: preview})
				hasContent = true
			}
		case bridge.ErrSeg:
			chain = append(chain, miraiSegment{Type: "Plain", Text: s.Message})
			hasContent = true
		}
	}

	if !hasContent {
		chain = append(chain, miraiSegment{Type: "Plain", Text: missingContent})
	}
	return chain, quote
}

// renderMention rewrites an At segment as a native mention when the
// target has a linked QQ account, else as plain "@display".
func (a *Adapter) renderMention(bridgeUserID string) miraiSegment {
	target, ok := a.core.Users.Get(bridgeUserID)
	if !ok {
		return miraiSegment{Type: "Plain", Text: "@[UN] " + bridgeUserID}
	}
	if counterpart, ok := a.core.Users.FindCounterpart(target.RefID, bridge.PlatformQQ); ok {
		if id, err := strconv.ParseInt(counterpart.OriginID, 10, 64); err == nil {
			return miraiSegment{Type: "At", Target: id}
		}
	}
	return miraiSegment{Type: "Plain", Text: "@" + target.DisplayText}
}

// renderReply resolves the replied-to bridge message to a native quote
// id, or to a quoted preview string when QQ holds no ref for it.
func (a *Adapter) renderReply(bridgeID string) (int64, string) {
	if bridgeID == "" {
		return 0, replyPlaceholder
	}
	rec, ok := a.core.Messages.Get(bridgeID)
	if !ok {
		return 0, replyPlaceholder
	}
	if originID, ok := rec.RefFor(bridge.PlatformQQ); ok {
		if id, err := strconv.ParseInt(originID, 10, 64); err == nil {
			return id, ""
		}
	}

	author := "[UN] " + rec.SenderID
	if sender, ok := a.core.Users.Get(rec.SenderID); ok {
		author = sender.DisplayText
	}
	preview := rec.Chain.Preview(func(id string) string {
		if u, ok := a.core.Users.Get(id); ok {
			return u.DisplayText
		}
		return "[UN] " + id
	})
	return 0, bridge.Quote("回复 @" + author + " 的消息\n" + preview)
}

// renderImage resolves an image segment to an uploadable backend segment.
// Local files upload as base64; bare URLs pass through for the backend to
// fetch.
func renderImage(ctx context.Context, img bridge.ImageSeg) (miraiSegment, bool) {
	switch {
	case img.Path != "":
		data, err := os.ReadFile(img.Path)
		if err != nil {
			slog.Warn("qq image read failed", "path", img.Path, "error", err)
			return miraiSegment{}, false
		}
		return miraiSegment{Type: "Image", Base64: base64.StdEncoding.EncodeToString(data)}, true
	case len(img.Data) > 0:
		return miraiSegment{Type: "Image", Base64: base64.StdEncoding.EncodeToString(img.Data)}, true
	case img.URL != "":
		return miraiSegment{Type: "Image", URL: img.URL}, true
	}
	return miraiSegment{}, false
}
