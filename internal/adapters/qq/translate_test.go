package qq

import (
	"context"
	"strings"
	"testing"

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
	return New(c, nil, config.QQConfig{BotID: 99})
}

func TestTranslateInbound(t *testing.T) {
	a := testAdapter(t)
	native := []miraiSegment{
		{Type: "Source", ID: 4321},
		{Type: "Plain", Text: "hi "},
		{Type: "At", Target: 10002, Display: "@bob"},
		{Type: "AtAll"},
	}

	chain, sourceID := a.translateInbound(context.Background(), native)
	if sourceID != "4321" {
		t.Errorf("source id = %q, want 4321", sourceID)
	}
	if len(chain) != 3 {
		t.Fatalf("got %d segments %#v, want 3", len(chain), chain)
	}
	if p, ok := chain[0].(bridge.Plain); !ok || p.Text != "hi " {
		t.Errorf("segment 0 = %#v", chain[0])
	}
	at, ok := chain[1].(bridge.At)
	if !ok {
		t.Fatalf("segment 1 = %T, want At", chain[1])
	}
	target, found := a.core.Users.Get(at.ID)
	if !found || target.OriginID != "10002" || target.DisplayText != "bob" {
		t.Errorf("mention target = %+v, %v", target, found)
	}
	if _, ok := chain[2].(bridge.AtAll); !ok {
		t.Errorf("segment 2 = %T, want AtAll", chain[2])
	}
}

func TestTranslateInboundQuote(t *testing.T) {
	a := testAdapter(t)
	bridgeID, err := a.core.Messages.Save(bridge.SendForm{
		SenderID: "u-1",
		Chain:    bridge.Chain{bridge.Plain{Text: "original"}},
		Origin:   bridge.Ref{Platform: bridge.PlatformQQ, OriginID: "777"},
	})
	if err != nil {
		t.Fatal(err)
	}

	native := []miraiSegment{
		{Type: "Source", ID: 800},
		{Type: "Quote", ID: 777},
		{Type: "Plain", Text: "agreed"},
	}
	chain, _ := a.translateInbound(context.Background(), native)
	if len(chain) == 0 {
		t.Fatal("empty chain")
	}
	// The reply segment leads the chain regardless of native order.
	if r, ok := chain[0].(bridge.Reply); !ok || r.ID != bridgeID {
		t.Errorf("chain head = %#v, want Reply{%s}", chain[0], bridgeID)
	}
}

func TestTranslateInboundUnknownSegment(t *testing.T) {
	a := testAdapter(t)
	native := []miraiSegment{
		{Type: "Source", ID: 1},
		{Type: "MarketFace"},
	}
	chain, _ := a.translateInbound(context.Background(), native)
	if len(chain) != 1 {
		t.Fatalf("got %d segments, want 1", len(chain))
	}
	if _, ok := chain[0].(bridge.Other); !ok {
		t.Errorf("unknown native type = %T, want Other", chain[0])
	}
}

func TestTranslateOutbound(t *testing.T) {
	a := testAdapter(t)
	ctx := context.Background()

	sender, _ := a.core.Users.FindOrCreate("200", bridge.PlatformDiscord, "alice#1")
	peerDC, _ := a.core.Users.FindOrCreate("201", bridge.PlatformDiscord, "bob#1")
	peerQQ, _ := a.core.Users.FindOrCreate("10002", bridge.PlatformQQ, "bob")
	peerDC.RefID = "ref-1"
	peerQQ.RefID = "ref-1"
	if _, err := a.core.Users.BatchUpdate([]bridge.User{peerDC, peerQQ}); err != nil {
		t.Fatal(err)
	}

	msg := bridge.Message{
		ID:       "m-1",
		SenderID: sender.ID,
		Chain: bridge.Chain{
			bridge.Plain{Text: "hey "},
			bridge.At{ID: peerDC.ID},
			bridge.At{ID: sender.ID},
		},
	}
	chain, quote := a.translateOutbound(ctx, msg)
	if quote != 0 {
		t.Errorf("quote = %d, want 0", quote)
	}
	if chain[0].Type != "Plain" || chain[0].Text != "alice#1:\n" {
		t.Errorf("sender prefix = %+v", chain[0])
	}
	// Linked peer becomes a native At; the unlinked sender degrades to
	// @display.
	if chain[2].Type != "At" || chain[2].Target != 10002 {
		t.Errorf("linked mention = %+v", chain[2])
	}
	if chain[3].Type != "Plain" || chain[3].Text != "@alice#1" {
		t.Errorf("unlinked mention = %+v", chain[3])
	}
}

func TestTranslateOutboundQuote(t *testing.T) {
	a := testAdapter(t)
	withRef, _ := a.core.Messages.Save(bridge.SendForm{
		SenderID: "u-1",
		Chain:    bridge.Chain{bridge.Plain{Text: "x"}},
		Origin:   bridge.Ref{Platform: bridge.PlatformQQ, OriginID: "555"},
	})
	withoutRef, _ := a.core.Messages.Save(bridge.SendForm{
		SenderID: "u-1",
		Chain:    bridge.Chain{bridge.Plain{Text: "y"}},
		Origin:   bridge.Ref{Platform: bridge.PlatformDiscord, OriginID: "666"},
	})

	msg := bridge.Message{ID: "m", SenderID: "ghost", Chain: bridge.Chain{
		bridge.Reply{ID: withRef},
		bridge.Plain{Text: "ok"},
	}}
	_, quote := a.translateOutbound(context.Background(), msg)
	if quote != 555 {
		t.Errorf("quote = %d, want 555", quote)
	}

	msg.Chain[0] = bridge.Reply{ID: withoutRef}
	chain, quote := a.translateOutbound(context.Background(), msg)
	if quote != 0 {
		t.Errorf("quote without native ref = %d, want 0", quote)
	}
	found := false
	for _, seg := range chain {
		if seg.Type == "Plain" && strings.HasPrefix(seg.Text, "> ") {
			found = true
		}
	}
	if !found {
		t.Error("missing quoted preview fallback")
	}
}

func TestTranslateOutboundEmpty(t *testing.T) {
	a := testAdapter(t)
	chain, _ := a.translateOutbound(context.Background(), bridge.Message{ID: "m", SenderID: "ghost"})
	last := chain[len(chain)-1]
	if last.Type != "Plain" || last.Text != missingContent {
		t.Errorf("empty message tail = %+v, want placeholder", last)
	}
}
