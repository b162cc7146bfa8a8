// Package qq bridges QQ group chats through a Mirai-style HTTP API
// backend over its websocket adapter.
package qq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

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
	cfg     config.QQConfig
	limiter *rate.Limiter
}

func New(c *core.Core, client *bus.Client, cfg config.QQConfig) *Adapter {
	return &Adapter{
		core:    c,
		client:  client,
		cfg:     cfg,
		limiter: adapters.NewEgressLimiter(),
	}
}

func (a *Adapter) Name() string { return "qq" }

// Start connects to the backend and runs the event and egress loops until
// ctx cancels. The connection is rebuilt on every start so the supervisor
// can restart the adapter cleanly.
func (a *Adapter) Start(ctx context.Context) error {
	ws, err := dialWS(ctx, a.cfg.Host, a.cfg.VerifyKey, a.cfg.BotID)
	if err != nil {
		return err
	}
	defer ws.Close()
	slog.Info("qq bridge connected", "bot_id", a.cfg.BotID, "host", a.cfg.Host)

	readErr := make(chan error, 1)
	go func() { readErr <- ws.ReadLoop(ctx) }()

	// Egress runs in its own goroutine: a sendGroupMessage round-trip can
	// wait on the backend, and draining Events must not stall behind it or
	// the response the call is waiting for never gets read. Scoped to this
	// start so a restarted adapter is the sole bus consumer.
	egressCtx, stopEgress := context.WithCancel(ctx)
	defer stopEgress()
	go func() {
		for {
			select {
			case <-egressCtx.Done():
				return
			case msg, ok := <-a.client.Recv():
				if !ok {
					return
				}
				a.sync(egressCtx, ws, msg)
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			return err
		case raw, ok := <-ws.Events():
			if !ok {
				return <-readErr
			}
			a.handleEvent(ctx, raw)
		}
	}
}

// groupEvent is the slice of a backend event the bridge cares about.
type groupEvent struct {
	Type   string `json:"type"`
	Sender struct {
		ID         int64  `json:"id"`
		MemberName string `json:"memberName"`
		Group      struct {
			ID int64 `json:"id"`
		} `json:"group"`
	} `json:"sender"`
	MessageChain []miraiSegment `json:"messageChain"`
}

// handleEvent translates a pushed group message to canonical form and
// publishes it on the bus.
func (a *Adapter) handleEvent(ctx context.Context, raw json.RawMessage) {
	var ev groupEvent
	if err := json.Unmarshal(raw, &ev); err != nil || ev.Type != "GroupMessage" {
		return
	}
	// The backend echoes the bot's own sends as group messages; dropping
	// them closes the relay loop.
	if ev.Sender.ID == a.cfg.BotID {
		return
	}
	mapping, ok := a.core.Runtime.FindByQQGroup(ev.Sender.Group.ID)
	if !ok {
		return
	}

	originID := strconv.FormatInt(ev.Sender.ID, 10)
	sender, err := a.core.Users.FindOrCreate(originID, bridge.PlatformQQ, ev.Sender.MemberName)
	if err != nil {
		slog.Error("qq sender lookup failed", "error", err)
		return
	}

	chain, sourceID := a.translateInbound(ctx, ev.MessageChain)
	if len(chain) == 0 || sourceID == "" {
		return
	}
	form := bridge.SendForm{
		SenderID:  sender.ID,
		AvatarURL: avatarURL(ev.Sender.ID),
		Config:    mapping,
		Chain:     chain,
		Origin: bridge.Ref{
			Platform: bridge.PlatformQQ,
			OriginID: sourceID,
		},
	}
	if _, err := a.client.Send(form); err != nil {
		slog.Error("qq publish failed", "error", err)
	}
}

// sendResult is the backend's answer to sendGroupMessage.
type sendResult struct {
	Code      int    `json:"code"`
	Msg       string `json:"msg"`
	MessageID int64  `json:"messageId"`
}

// sync renders a canonical message natively and records the resulting
// message id against the bridge id.
func (a *Adapter) sync(ctx context.Context, ws *wsClient, msg bridge.Message) {
	if msg.Config.QQGroup == 0 || !a.core.Runtime.Enabled(msg.Config) {
		return
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return
	}

	chain, quote := a.translateOutbound(ctx, msg)
	content := map[string]any{
		"target":       msg.Config.QQGroup,
		"messageChain": chain,
	}
	if quote != 0 {
		content["quote"] = quote
	}
	raw, err := ws.Call(ctx, "sendGroupMessage", content)
	if err != nil {
		slog.Error("qq send failed", "bridge_id", msg.ID, "error", err)
		return
	}
	var res sendResult
	if err := json.Unmarshal(raw, &res); err != nil {
		slog.Error("qq send response malformed", "bridge_id", msg.ID, "error", err)
		return
	}
	if res.Code != 0 {
		slog.Error("qq send rejected", "bridge_id", msg.ID, "code", res.Code, "msg", res.Msg)
		return
	}
	originID := strconv.FormatInt(res.MessageID, 10)
	if _, err := a.core.Messages.AddRef(msg.ID, bridge.PlatformQQ, originID); err != nil {
		slog.Error("qq ref append failed", "bridge_id", msg.ID, "error", err)
	}
}

func avatarURL(qqID int64) string {
	return fmt.Sprintf("https://q1.qlogo.cn/g?b=qq&nk=%d&s=100", qqID)
}
