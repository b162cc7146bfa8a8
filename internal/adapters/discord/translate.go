package discord

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/hollowdong/chatbridge/internal/bridge"
	"github.com/hollowdong/chatbridge/internal/config"
)

const replyPlaceholder = "> {回复消息}\n"

// missingContent replaces a message that renders to nothing at all.
const missingContent = "{本次发送的消息没有内容}"

// mentionPattern matches user mentions and the broadcast mentions inside
// raw Discord message content.
var mentionPattern = regexp.MustCompile(`<@!?(\d+)>|@everyone|@here`)

// translateInbound converts a native Discord message to a canonical chain.
// Failed segments degrade to placeholders; translation never aborts the
// message.
func (a *Adapter) translateInbound(ctx context.Context, m *discordgo.MessageCreate) bridge.Chain {
	var chain bridge.Chain

	if m.MessageReference != nil && m.MessageReference.MessageID != "" {
		chain = append(chain, a.resolveReply(m.MessageReference.MessageID))
	}

	chain = append(chain, a.splitContent(m.Content, m.Mentions)...)

	for _, att := range m.Attachments {
		if att.URL == "" {
			continue
		}
		if path, err := a.core.Media.Fetch(ctx, att.URL); err == nil {
			chain = append(chain, bridge.ImagePath(path))
		} else {
			slog.Warn("discord attachment download failed", "url", att.URL, "error", err)
			chain = append(chain, bridge.ImageURL(att.URL))
		}
	}
	return chain
}

// splitContent turns raw content with mention markup into Plain/At/AtAll
// segments. A mention of a user the identity store cannot resolve
// degrades to plain text.
func (a *Adapter) splitContent(content string, mentions []*discordgo.User) bridge.Chain {
	var chain bridge.Chain
	last := 0
	for _, loc := range mentionPattern.FindAllStringSubmatchIndex(content, -1) {
		if loc[0] > last {
			chain = append(chain, bridge.Plain{Text: content[last:loc[0]]})
		}
		token := content[loc[0]:loc[1]]
		switch {
		case token == "@everyone" || token == "@here":
			chain = append(chain, bridge.AtAll{})
		default:
			nativeID := content[loc[2]:loc[3]]
			chain = append(chain, a.resolveMention(nativeID, mentions))
		}
		last = loc[1]
	}
	if last < len(content) {
		chain = append(chain, bridge.Plain{Text: content[last:]})
	}
	return chain
}

func (a *Adapter) resolveMention(nativeID string, mentions []*discordgo.User) bridge.Segment {
	for _, u := range mentions {
		if u.ID == nativeID {
			target, err := a.core.Users.FindOrCreate(nativeID, bridge.PlatformDiscord, displayText(u))
			if err != nil {
				break
			}
			return bridge.At{ID: target.ID}
		}
	}
	if target, ok := a.core.Users.FindByOrigin(nativeID, bridge.PlatformDiscord); ok {
		return bridge.At{ID: target.ID}
	}
	return bridge.Plain{Text: "@" + nativeID}
}

// resolveReply maps a native reply target to its bridge message. Ambiguous
// or missing correlations degrade to a quoted placeholder.
func (a *Adapter) resolveReply(nativeID string) bridge.Segment {
	rec, err := a.core.Messages.FindByRef(nativeID, bridge.PlatformDiscord)
	if err != nil {
		slog.Error("discord reply lookup failed", "origin_id", nativeID, "error", err)
		return bridge.Plain{Text: replyPlaceholder}
	}
	if rec == nil {
		return bridge.Plain{Text: replyPlaceholder}
	}
	return bridge.Reply{ID: rec.ID}
}

// translateOutbound renders a canonical message into webhook params:
// sender identity override, mention rewriting, file uploads and reply
// quoting.
func (a *Adapter) translateOutbound(ctx context.Context, session *discordgo.Session, msg bridge.Message) *discordgo.WebhookParams {
	var (
		content strings.Builder
		reply   strings.Builder
		files   []*discordgo.File
	)

	for _, seg := range msg.Chain {
		switch s := seg.(type) {
		case bridge.Plain:
			content.WriteString(s.Text)
		case bridge.AtAll:
			content.WriteString("@everyone")
		case bridge.At:
			content.WriteString(a.renderMention(s.ID))
		case bridge.ImageSeg:
			if f := a.renderImage(ctx, s); f != nil {
				files = append(files, f)
			} else if s.URL != "" {
				content.WriteString(s.URL)
			}
		case bridge.Reply:
			reply.WriteString(a.renderReply(session, msg.Config, s.ID))
		case bridge.ErrSeg:
			content.WriteString(s.Message)
		}
	}

	username := msg.SenderID
	if sender, ok := a.core.Users.Get(msg.SenderID); ok {
		username = sender.DisplayText
	}

	text := reply.String() + content.String()
	if text == "" && len(files) == 0 {
		text = missingContent
	}
	return &discordgo.WebhookParams{
		Content:   text,
		Username:  username,
		AvatarURL: msg.AvatarURL,
		Files:     files,
		AllowedMentions: &discordgo.MessageAllowedMentions{
			Parse: []discordgo.AllowedMentionType{
				discordgo.AllowedMentionTypeUsers,
				discordgo.AllowedMentionTypeEveryone,
			},
		},
	}
}

// renderMention rewrites an At segment as a native mention when the
// target has a linked Discord account, else as plain "@display".
func (a *Adapter) renderMention(bridgeUserID string) string {
	target, ok := a.core.Users.Get(bridgeUserID)
	if !ok {
		return "@[UN] " + bridgeUserID
	}
	if counterpart, ok := a.core.Users.FindCounterpart(target.RefID, bridge.PlatformDiscord); ok {
		return "<@" + counterpart.OriginID + ">"
	}
	return "@" + target.DisplayText
}

func (a *Adapter) renderImage(ctx context.Context, img bridge.ImageSeg) *discordgo.File {
	switch {
	case img.Path != "":
		data, err := os.ReadFile(img.Path)
		if err != nil {
			slog.Warn("discord image read failed", "path", img.Path, "error", err)
			return nil
		}
		return &discordgo.File{Name: filepath.Base(img.Path), Reader: bytes.NewReader(data)}
	case len(img.Data) > 0:
		return &discordgo.File{Name: "image", Reader: bytes.NewReader(img.Data)}
	case img.URL != "":
		data, err := img.Load(ctx)
		if err != nil {
			return nil
		}
		return &discordgo.File{Name: "image", Reader: bytes.NewReader(data)}
	}
	return nil
}

// renderReply renders the referenced bridge message as a quoted preview,
// appending a jump link when Discord holds a native id for it.
func (a *Adapter) renderReply(session *discordgo.Session, mapping config.Bridge, bridgeID string) string {
	if bridgeID == "" {
		return replyPlaceholder
	}
	rec, ok := a.core.Messages.Get(bridgeID)
	if !ok {
		return replyPlaceholder
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
	quoted := bridge.Quote("回复 @" + author + " 的消息\n" + preview)

	if nativeID, ok := rec.RefFor(bridge.PlatformDiscord); ok {
		if guild := a.guildID(session, mapping.Discord); guild != "" {
			quoted += "https://discord.com/channels/" + guild + "/" +
				strconv.FormatUint(mapping.Discord.ChannelID, 10) + "/" + nativeID + "\n"
		}
	}
	return quoted
}
