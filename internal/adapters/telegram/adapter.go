// Package telegram bridges Telegram group chats through the Bot API with
// long polling.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
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
	cfg     config.TelegramConfig
	limiter *rate.Limiter

	// sender user id → profile photo URL
	avatars sync.Map
}

func New(c *core.Core, client *bus.Client, cfg config.TelegramConfig) *Adapter {
	return &Adapter{
		core:    c,
		client:  client,
		cfg:     cfg,
		limiter: adapters.NewEgressLimiter(),
	}
}

func (a *Adapter) Name() string { return "telegram" }

// Start runs long polling and the egress loop until ctx cancels. The bot
// is rebuilt on every start so the supervisor can restart cleanly.
func (a *Adapter) Start(ctx context.Context) error {
	bot, err := telego.NewBot(a.cfg.BotToken)
	if err != nil {
		return fmt.Errorf("create telegram bot: %w", err)
	}

	pollCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	updates, err := bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout:        30,
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		return fmt.Errorf("start long polling: %w", err)
	}
	slog.Info("telegram bridge connected", "username", bot.Username())

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return fmt.Errorf("telegram updates channel closed")
			}
			if update.Message != nil {
				a.handleMessage(pollCtx, bot, update.Message)
			}
		case msg, ok := <-a.client.Recv():
			if !ok {
				return nil
			}
			a.sync(pollCtx, bot, msg)
		}
	}
}

// handleMessage translates a native group message to canonical form and
// publishes it on the bus.
func (a *Adapter) handleMessage(ctx context.Context, bot *telego.Bot, msg *telego.Message) {
	// Other bots include our own egress; dropping them closes the relay
	// loop.
	if msg.From == nil || msg.From.IsBot {
		return
	}
	mapping, ok := a.core.Runtime.FindByTGGroup(msg.Chat.ID)
	if !ok {
		return
	}

	originID := strconv.FormatInt(msg.From.ID, 10)
	sender, err := a.core.Users.FindOrCreate(originID, bridge.PlatformTelegram, displayText(msg.From))
	if err != nil {
		slog.Error("telegram sender lookup failed", "error", err)
		return
	}

	chain := a.translateInbound(ctx, bot, msg)
	if len(chain) == 0 {
		return
	}
	form := bridge.SendForm{
		SenderID:  sender.ID,
		AvatarURL: a.avatarURL(ctx, bot, msg.From.ID),
		Config:    mapping,
		Chain:     chain,
		Origin: bridge.Ref{
			Platform: bridge.PlatformTelegram,
			OriginID: strconv.Itoa(msg.MessageID),
		},
	}
	if _, err := a.client.Send(form); err != nil {
		slog.Error("telegram publish failed", "error", err)
	}
}

// sync renders a canonical message natively and records the resulting
// message id against the bridge id.
func (a *Adapter) sync(ctx context.Context, bot *telego.Bot, msg bridge.Message) {
	if msg.Config.TGGroup == 0 || !a.core.Runtime.Enabled(msg.Config) {
		return
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return
	}

	out := a.translateOutbound(ctx, msg)
	chatID := tu.ID(msg.Config.TGGroup)

	var (
		sent *telego.Message
		err  error
	)
	if len(out.photos) > 0 {
		// First photo carries the text as its caption; the rest follow
		// bare.
		params := tu.Photo(chatID, out.photos[0])
		params.Caption = out.text
		params.CaptionEntities = out.entities
		if out.replyTo != 0 {
			params.ReplyParameters = &telego.ReplyParameters{MessageID: out.replyTo}
		}
		sent, err = bot.SendPhoto(ctx, params)
		for _, photo := range out.photos[1:] {
			if _, perr := bot.SendPhoto(ctx, tu.Photo(chatID, photo)); perr != nil {
				slog.Error("telegram photo send failed", "bridge_id", msg.ID, "error", perr)
			}
		}
	} else {
		params := tu.Message(chatID, out.text)
		params.Entities = out.entities
		if out.replyTo != 0 {
			params.ReplyParameters = &telego.ReplyParameters{MessageID: out.replyTo}
		}
		sent, err = bot.SendMessage(ctx, params)
	}
	if err != nil {
		slog.Error("telegram send failed", "bridge_id", msg.ID, "error", err)
		return
	}
	if sent == nil {
		return
	}
	originID := strconv.Itoa(sent.MessageID)
	if _, err := a.core.Messages.AddRef(msg.ID, bridge.PlatformTelegram, originID); err != nil {
		slog.Error("telegram ref append failed", "bridge_id", msg.ID, "error", err)
	}
}

// avatarURL resolves (and caches) the sender's newest profile photo as a
// Bot API file URL. Failures degrade to an empty avatar.
func (a *Adapter) avatarURL(ctx context.Context, bot *telego.Bot, userID int64) string {
	if v, ok := a.avatars.Load(userID); ok {
		return v.(string)
	}
	photos, err := bot.GetUserProfilePhotos(ctx, &telego.GetUserProfilePhotosParams{
		UserID: userID,
		Limit:  1,
	})
	if err != nil || photos == nil || len(photos.Photos) == 0 || len(photos.Photos[0]) == 0 {
		return ""
	}
	best := photos.Photos[0][len(photos.Photos[0])-1]
	file, err := bot.GetFile(ctx, &telego.GetFileParams{FileID: best.FileID})
	if err != nil || file.FilePath == "" {
		return ""
	}
	url := a.fileURL(file.FilePath)
	a.avatars.Store(userID, url)
	return url
}

func (a *Adapter) fileURL(filePath string) string {
	return fmt.Sprintf("https://api.telegram.org/file/bot%s/%s", a.cfg.BotToken, filePath)
}

func displayText(u *telego.User) string {
	if u.Username != "" {
		return "@" + u.Username
	}
	name := u.FirstName
	if u.LastName != "" {
		name += " " + u.LastName
	}
	return name
}
