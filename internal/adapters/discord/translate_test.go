package discord

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/hollowdong/chatbridge/internal/bridge"
	"github.com/hollowdong/chatbridge/internal/config"
	"github.com/hollowdong/chatbridge/internal/core"
	"github.com/hollowdong/chatbridge/internal/media"
	"github.com/hollowdong/chatbridge/internal/store"
)

func testAdapter(t *testing.T) *Adapter {
	t.Helper()
	dir := t.TempDir()
	users, err := store.OpenUserStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	messages, err := store.OpenMessageStore(dir, 0)
	if err != nil {
		t.Fatal(err)
	}
	c := core.New(users, messages, media.NewCache(t.TempDir()), config.NewRuntime(&config.Config{}))
	return New(c, nil, config.DiscordConfig{})
}

func TestSplitContent(t *testing.T) {
	a := testAdapter(t)
	bob := &discordgo.User{ID: "111", Username: "bob", Discriminator: "0"}

	tests := []struct {
		name     string
		content  string
		mentions []*discordgo.User
		want     []string // segment type tags, in order
	}{
		{"plain only", "hello world", nil, []string{"Plain"}},
		{"mention in middle", "hi <@111> there", []*discordgo.User{bob}, []string{"Plain", "At", "Plain"}},
		{"nickname mention", "<@!111>", []*discordgo.User{bob}, []string{"At"}},
		{"everyone", "@everyone wake up", nil, []string{"AtAll", "Plain"}},
		{"here", "ping @here", nil, []string{"Plain", "AtAll"}},
		{"unresolvable mention", "<@999>", nil, []string{"Plain"}},
		{"empty", "", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain := a.splitContent(tt.content, tt.mentions)
			if len(chain) != len(tt.want) {
				t.Fatalf("got %d segments %#v, want %d", len(chain), chain, len(tt.want))
			}
			for i, seg := range chain {
				var tag string
				switch seg.(type) {
				case bridge.Plain:
					tag = "Plain"
				case bridge.At:
					tag = "At"
				case bridge.AtAll:
					tag = "AtAll"
				}
				if tag != tt.want[i] {
					t.Errorf("segment %d = %T, want %s", i, seg, tt.want[i])
				}
			}
		})
	}
}

func TestSplitContentRegistersMentionTarget(t *testing.T) {
	a := testAdapter(t)
	bob := &discordgo.User{ID: "111", Username: "bob", Discriminator: "0"}

	chain := a.splitContent("<@111>", []*discordgo.User{bob})
	at, ok := chain[0].(bridge.At)
	if !ok {
		t.Fatalf("got %T, want At", chain[0])
	}
	target, found := a.core.Users.Get(at.ID)
	if !found || target.OriginID != "111" || target.Platform != bridge.PlatformDiscord {
		t.Errorf("mention target not registered: %+v, %v", target, found)
	}
}

func TestResolveReply(t *testing.T) {
	a := testAdapter(t)
	bridgeID, err := a.core.Messages.Save(bridge.SendForm{
		SenderID: "u-1",
		Chain:    bridge.Chain{bridge.Plain{Text: "original"}},
		Origin:   bridge.Ref{Platform: bridge.PlatformDiscord, OriginID: "555"},
	})
	if err != nil {
		t.Fatal(err)
	}

	if seg := a.resolveReply("555"); seg != (bridge.Reply{ID: bridgeID}) {
		t.Errorf("known reply = %#v, want Reply{%s}", seg, bridgeID)
	}
	if seg := a.resolveReply("000"); seg != (bridge.Plain{Text: replyPlaceholder}) {
		t.Errorf("unknown reply = %#v, want placeholder", seg)
	}
}

func TestTranslateOutbound(t *testing.T) {
	a := testAdapter(t)
	ctx := context.Background()

	sender, _ := a.core.Users.FindOrCreate("10001", bridge.PlatformQQ, "alice")
	peerQQ, _ := a.core.Users.FindOrCreate("10002", bridge.PlatformQQ, "bob")
	peerDC, _ := a.core.Users.FindOrCreate("222", bridge.PlatformDiscord, "bob#1")
	peerQQ.RefID = "ref-1"
	peerDC.RefID = "ref-1"
	if _, err := a.core.Users.BatchUpdate([]bridge.User{peerQQ, peerDC}); err != nil {
		t.Fatal(err)
	}

	msg := bridge.Message{
		ID:        "m-1",
		SenderID:  sender.ID,
		AvatarURL: "https://example.com/a.png",
		Chain: bridge.Chain{
			bridge.Plain{Text: "hey "},
			bridge.At{ID: peerQQ.ID},
			bridge.Plain{Text: " and "},
			bridge.At{ID: sender.ID},
			bridge.AtAll{},
		},
	}
	params := a.translateOutbound(ctx, nil, msg)

	if params.Username != "alice" {
		t.Errorf("username = %q, want alice", params.Username)
	}
	if params.AvatarURL != msg.AvatarURL {
		t.Errorf("avatar = %q", params.AvatarURL)
	}
	// The linked peer becomes a native mention; the unlinked sender
	// degrades to @display.
	want := "hey <@222> and @alice@everyone"
	if params.Content != want {
		t.Errorf("content = %q, want %q", params.Content, want)
	}
}

func TestTranslateOutboundEmpty(t *testing.T) {
	a := testAdapter(t)
	params := a.translateOutbound(context.Background(), nil, bridge.Message{ID: "m", SenderID: "ghost"})
	if params.Content != missingContent {
		t.Errorf("empty message content = %q, want placeholder", params.Content)
	}
}

// Rendering a Plain/AtAll chain natively and splitting the result back
// must reproduce the chain, and a second render must be stable.
func TestRoundTripPlainAtAll(t *testing.T) {
	a := testAdapter(t)
	ctx := context.Background()

	original := bridge.Chain{
		bridge.Plain{Text: "hi "},
		bridge.AtAll{},
		bridge.Plain{Text: " all"},
	}
	first := a.translateOutbound(ctx, nil, bridge.Message{ID: "m-1", SenderID: "ghost", Chain: original})

	recovered := a.splitContent(first.Content, nil)
	if !reflect.DeepEqual(recovered, original) {
		t.Fatalf("recovered chain = %#v, want %#v", recovered, original)
	}

	second := a.translateOutbound(ctx, nil, bridge.Message{ID: "m-2", SenderID: "ghost", Chain: recovered})
	if second.Content != first.Content {
		t.Errorf("second render = %q, want %q", second.Content, first.Content)
	}
}

func TestRenderReplyWithoutNativeRef(t *testing.T) {
	a := testAdapter(t)
	sender, _ := a.core.Users.FindOrCreate("1", bridge.PlatformQQ, "alice")
	bridgeID, _ := a.core.Messages.Save(bridge.SendForm{
		SenderID: sender.ID,
		Chain:    bridge.Chain{bridge.Plain{Text: "first line\nsecond"}},
		Origin:   bridge.Ref{Platform: bridge.PlatformQQ, OriginID: "9"},
	})

	got := a.renderReply(nil, config.Bridge{}, bridgeID)
	if !strings.HasPrefix(got, "> 回复 @alice 的消息\n") {
		t.Errorf("quoted preview = %q", got)
	}
	for _, line := range strings.Split(strings.TrimSuffix(got, "\n"), "\n") {
		if !strings.HasPrefix(line, "> ") {
			t.Errorf("unquoted line %q", line)
		}
	}
	if strings.Contains(got, "discord.com/channels") {
		t.Error("jump link rendered without a native ref")
	}
}

func TestDisplayText(t *testing.T) {
	tests := []struct {
		user *discordgo.User
		want string
	}{
		{&discordgo.User{Username: "bob", Discriminator: "0"}, "bob"},
		{&discordgo.User{Username: "bob", Discriminator: ""}, "bob"},
		{&discordgo.User{Username: "bob", Discriminator: "1234"}, "bob#1234"},
	}
	for _, tt := range tests {
		if got := displayText(tt.user); got != tt.want {
			t.Errorf("displayText(%+v) = %q, want %q", tt.user, got, tt.want)
		}
	}
}
