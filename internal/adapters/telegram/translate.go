package telegram

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/hollowdong/chatbridge/internal/bridge"
)

const replyPlaceholder = "> {回复消息}\n"

// missingContent replaces a message that renders to nothing at all.
const missingContent = "{本次发送的消息没有内容}"

// translateInbound converts a native Telegram message to a canonical
// chain. Failed segments degrade to placeholders; translation never
// aborts the message.
func (a *Adapter) translateInbound(ctx context.Context, bot *telego.Bot, msg *telego.Message) bridge.Chain {
	var chain bridge.Chain

	if msg.ReplyToMessage != nil {
		chain = append(chain, a.resolveReply(msg.ReplyToMessage.MessageID))
	}

	if msg.Text != "" {
		chain = append(chain, a.splitEntities(msg.Text, msg.Entities)...)
	}
	if msg.Caption != "" {
		chain = append(chain, a.splitEntities(msg.Caption, msg.CaptionEntities)...)
	}

	if len(msg.Photo) > 0 {
		// The photo array is ordered by resolution; take the largest.
		best := msg.Photo[len(msg.Photo)-1]
		if seg, ok := a.fetchPhoto(ctx, bot, best.FileID); ok {
			chain = append(chain, seg)
		}
	}
	return chain
}

// splitEntities cuts message text along its entity list, turning mention
// entities into At/AtAll segments. Offsets and lengths count UTF-16 code
// units, per the Bot API.
func (a *Adapter) splitEntities(text string, entities []telego.MessageEntity) bridge.Chain {
	units := utf16.Encode([]rune(text))
	var chain bridge.Chain
	last := 0
	for _, ent := range entities {
		if ent.Offset < last || ent.Offset+ent.Length > len(units) {
			continue
		}
		if ent.Offset > last {
			chain = append(chain, bridge.Plain{Text: string(utf16.Decode(units[last:ent.Offset]))})
		}
		raw := string(utf16.Decode(units[ent.Offset : ent.Offset+ent.Length]))
		switch {
		case ent.Type == telego.EntityTypeTextMention && ent.User != nil:
			originID := strconv.FormatInt(ent.User.ID, 10)
			if target, err := a.core.Users.FindOrCreate(originID, bridge.PlatformTelegram, displayText(ent.User)); err == nil {
				chain = append(chain, bridge.At{ID: target.ID})
			} else {
				chain = append(chain, bridge.Plain{Text: raw})
			}
		default:
			// @username mentions carry no numeric id; they pass through
			// as text like any other entity.
			chain = append(chain, bridge.Plain{Text: raw})
		}
		last = ent.Offset + ent.Length
	}
	if last < len(units) {
		chain = append(chain, bridge.Plain{Text: string(utf16.Decode(units[last:]))})
	}
	return chain
}

// fetchPhoto pulls a photo through the media cache so every receiving
// adapter can upload the same local file.
func (a *Adapter) fetchPhoto(ctx context.Context, bot *telego.Bot, fileID string) (bridge.Segment, bool) {
	file, err := bot.GetFile(ctx, &telego.GetFileParams{FileID: fileID})
	if err != nil || file.FilePath == "" {
		slog.Warn("telegram photo lookup failed", "file_id", fileID, "error", err)
		return nil, false
	}
	url := a.fileURL(file.FilePath)
	path, err := a.core.Media.Fetch(ctx, url)
	if err != nil {
		slog.Warn("telegram photo download failed", "file_id", fileID, "error", err)
		return bridge.ImageURL(url), true
	}
	return bridge.ImagePath(path), true
}

// resolveReply maps a native reply target to its bridge message.
// Ambiguous or missing correlations degrade to a quoted placeholder.
func (a *Adapter) resolveReply(messageID int) bridge.Segment {
	originID := strconv.Itoa(messageID)
	rec, err := a.core.Messages.FindByRef(originID, bridge.PlatformTelegram)
	if err != nil {
		slog.Error("telegram reply lookup failed", "origin_id", originID, "error", err)
		return bridge.Plain{Text: replyPlaceholder}
	}
	if rec == nil {
		return bridge.Plain{Text: replyPlaceholder}
	}
	return bridge.Reply{ID: rec.ID}
}

// outbound is one canonical message rendered to Bot API send parameters.
type outbound struct {
	text     string
	entities []telego.MessageEntity
	photos   []telego.InputFile
	replyTo  int
}

// translateOutbound renders a canonical message: "sender: content" text
// with native text_mention entities, photo uploads and reply targeting.
func (a *Adapter) translateOutbound(ctx context.Context, msg bridge.Message) outbound {
	var out outbound
	var b strings.Builder
	offset := 0 // UTF-16 length of what b holds

	write := func(s string) {
		b.WriteString(s)
		offset += len(utf16.Encode([]rune(s)))
	}

	sender := "[UN] " + msg.SenderID
	if u, ok := a.core.Users.Get(msg.SenderID); ok {
		sender = u.DisplayText
	}
	write(sender + ":\n")

	for _, seg := range msg.Chain {
		switch s := seg.(type) {
		case bridge.Plain:
			write(s.Text)
		case bridge.AtAll:
			write("@全体成员")
		case bridge.At:
			a.writeMention(&out, write, &offset, s.ID)
		case bridge.ImageSeg:
			if photo, ok := loadPhoto(ctx, s); ok {
				out.photos = append(out.photos, photo)
			} else if s.URL != "" {
				write(s.URL)
			}
		case bridge.Reply:
			a.writeReply(&out, write, s.ID)
		case bridge.ErrSeg:
			write(s.Message)
		}
	}

	out.text = b.String()
	if strings.TrimSpace(strings.TrimPrefix(out.text, sender+":")) == "" && len(out.photos) == 0 {
		out.text = sender + ":\n" + missingContent
	}
	return out
}

// writeMention renders an At segment. A target with a linked Telegram
// account gets a native text_mention entity; anyone else is plain
// "@display".
func (a *Adapter) writeMention(out *outbound, write func(string), offset *int, bridgeUserID string) {
	target, ok := a.core.Users.Get(bridgeUserID)
	if !ok {
		write("@[UN] " + bridgeUserID)
		return
	}
	counterpart, ok := a.core.Users.FindCounterpart(target.RefID, bridge.PlatformTelegram)
	if !ok {
		write(mentionLabel(target.DisplayText))
		return
	}
	userID, err := strconv.ParseInt(counterpart.OriginID, 10, 64)
	if err != nil {
		write(mentionLabel(counterpart.DisplayText))
		return
	}
	label := mentionLabel(counterpart.DisplayText)
	start := *offset
	write(label)
	out.entities = append(out.entities, telego.MessageEntity{
		Type:   telego.EntityTypeTextMention,
		Offset: start,
		Length: *offset - start,
		User:   &telego.User{ID: userID},
	})
}

// mentionLabel renders "@name" without doubling the prefix Telegram
// display texts already carry.
func mentionLabel(display string) string {
	return "@" + strings.TrimPrefix(display, "@")
}

// writeReply targets the native message when Telegram holds a ref for the
// replied-to bridge message, else prepends a quoted preview.
func (a *Adapter) writeReply(out *outbound, write func(string), bridgeID string) {
	if bridgeID == "" {
		write(replyPlaceholder)
		return
	}
	rec, ok := a.core.Messages.Get(bridgeID)
	if !ok {
		write(replyPlaceholder)
		return
	}
	if originID, ok := rec.RefFor(bridge.PlatformTelegram); ok {
		if id, err := strconv.Atoi(originID); err == nil {
			out.replyTo = id
			return
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
	write(bridge.Quote("回复 @" + author + " 的消息\n" + preview))
}

// loadPhoto resolves an image segment to an uploadable input file.
func loadPhoto(ctx context.Context, img bridge.ImageSeg) (telego.InputFile, bool) {
	switch {
	case img.Path != "":
		data, err := os.ReadFile(img.Path)
		if err != nil {
			slog.Warn("telegram image read failed", "path", img.Path, "error", err)
			return telego.InputFile{}, false
		}
		return tu.File(tu.NameReader(bytes.NewReader(data), filepath.Base(img.Path))), true
	case len(img.Data) > 0:
		return tu.File(tu.NameReader(bytes.NewReader(img.Data), "image")), true
	case img.URL != "":
		data, err := img.Load(ctx)
		if err != nil {
			return telego.InputFile{}, false
		}
		return tu.File(tu.NameReader(bytes.NewReader(data), "image")), true
	}
	return telego.InputFile{}, false
}
