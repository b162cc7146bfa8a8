// Package discord bridges Discord group channels: gateway events in,
// webhook executions out.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"

	"github.com/hollowdong/chatbridge/internal/adapters"
	"github.com/hollowdong/chatbridge/internal/bridge"
	"github.com/hollowdong/chatbridge/internal/bus"
	"github.com/hollowdong/chatbridge/internal/config"
	"github.com/hollowdong/chatbridge/internal/core"
)

type Adapter struct {
	core    *core.Core
	client  *bus.Client
	cfg     config.DiscordConfig
	limiter *rate.Limiter

	mu      sync.Mutex
	ctx     context.Context
	session *discordgo.Session

	// webhook id → guild id, for reply jump links
	guilds sync.Map
}

func New(c *core.Core, client *bus.Client, cfg config.DiscordConfig) *Adapter {
	return &Adapter{
		core:    c,
		client:  client,
		cfg:     cfg,
		limiter: adapters.NewEgressLimiter(),
	}
}

func (a *Adapter) Name() string { return "discord" }

// Start opens the gateway connection and runs the egress loop until ctx
// cancels. A fresh session is built on every start so the supervisor can
// restart the adapter cleanly.
func (a *Adapter) Start(ctx context.Context) error {
	session, err := discordgo.New("Bot " + a.cfg.BotToken)
	if err != nil {
		return fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	a.mu.Lock()
	a.ctx = ctx
	a.session = session
	a.mu.Unlock()

	session.AddHandler(a.handleMessage)
	if err := session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}
	defer session.Close()
	slog.Info("discord bridge connected", "bot_id", a.cfg.BotID)

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-a.client.Recv():
			if !ok {
				return nil
			}
			a.sync(ctx, session, msg)
		}
	}
}

// handleMessage translates a native Discord message to canonical form and
// publishes it on the bus.
func (a *Adapter) handleMessage(_ *discordgo.Session, m *discordgo.MessageCreate) {
	// Webhook echoes of bridged messages arrive as bot authors; dropping
	// all bot senders closes the relay loop.
	if m.Author == nil || m.Author.Bot {
		return
	}
	channelID, err := strconv.ParseUint(m.ChannelID, 10, 64)
	if err != nil {
		return
	}
	mapping, ok := a.core.Runtime.FindByDiscordChannel(channelID)
	if !ok {
		return
	}

	a.mu.Lock()
	ctx := a.ctx
	a.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}

	sender, err := a.core.Users.FindOrCreate(m.Author.ID, bridge.PlatformDiscord, displayText(m.Author))
	if err != nil {
		slog.Error("discord sender lookup failed", "error", err)
		return
	}

	chain := a.translateInbound(ctx, m)
	if len(chain) == 0 {
		return
	}
	form := bridge.SendForm{
		SenderID:  sender.ID,
		AvatarURL: m.Author.AvatarURL("128"),
		Config:    mapping,
		Chain:     chain,
		Origin: bridge.Ref{
			Platform: bridge.PlatformDiscord,
			OriginID: m.ID,
		},
	}
	if _, err := a.client.Send(form); err != nil {
		slog.Error("discord publish failed", "error", err)
	}
}

// sync renders a canonical message natively and records the resulting
// message id against the bridge id.
func (a *Adapter) sync(ctx context.Context, session *discordgo.Session, msg bridge.Message) {
	hook := msg.Config.Discord
	if hook.ID == 0 || !a.core.Runtime.Enabled(msg.Config) {
		return
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return
	}

	params := a.translateOutbound(ctx, session, msg)
	sent, err := session.WebhookExecute(
		strconv.FormatUint(hook.ID, 10),
		hook.Token,
		true,
		params,
	)
	if err != nil {
		slog.Error("discord webhook send failed", "bridge_id", msg.ID, "error", err)
		return
	}
	if sent == nil {
		slog.Error("discord webhook returned no message id", "bridge_id", msg.ID)
		return
	}
	if _, err := a.core.Messages.AddRef(msg.ID, bridge.PlatformDiscord, sent.ID); err != nil {
		slog.Error("discord ref append failed", "bridge_id", msg.ID, "error", err)
	}
}

// guildID resolves (and caches) the guild a webhook posts into, used to
// build reply jump links.
func (a *Adapter) guildID(session *discordgo.Session, hook config.DiscordBridge) string {
	key := hook.ID
	if v, ok := a.guilds.Load(key); ok {
		return v.(string)
	}
	wh, err := session.WebhookWithToken(strconv.FormatUint(hook.ID, 10), hook.Token)
	if err != nil {
		slog.Warn("discord webhook lookup failed", "webhook_id", hook.ID, "error", err)
		return ""
	}
	a.guilds.Store(key, wh.GuildID)
	return wh.GuildID
}

func displayText(u *discordgo.User) string {
	if u.Discriminator != "" && u.Discriminator != "0" {
		return u.Username + "#" + u.Discriminator
	}
	return u.Username
}
