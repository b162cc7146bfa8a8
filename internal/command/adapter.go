package command

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/hollowdong/chatbridge/internal/bridge"
	"github.com/hollowdong/chatbridge/internal/bus"
	"github.com/hollowdong/chatbridge/internal/core"
)

const (
	cmdOriginID    = "00000001"
	cmdDisplayText = "桥命令Bot"
	cmdAvatarURL   = "https://q1.qlogo.cn/g?b=qq&nk=3245538509&s=100"
)

// Adapter is the command pseudo-platform: a bus peer that consumes
// messages whose first text segment starts with "!" and emits exactly one
// feedback message per command back onto the originating channel.
type Adapter struct {
	core     *core.Core
	client   *bus.Client
	sessions *Sessions
	self     bridge.User
}

func NewAdapter(c *core.Core, client *bus.Client) *Adapter {
	return &Adapter{
		core:     c,
		client:   client,
		sessions: NewSessions(),
	}
}

func (a *Adapter) Name() string { return "cmd" }

// Start consumes the bus subscription until ctx cancels.
func (a *Adapter) Start(ctx context.Context) error {
	self, err := a.core.Users.FindOrCreate(cmdOriginID, bridge.PlatformCmd, cmdDisplayText)
	if err != nil {
		return fmt.Errorf("cmd: ensure bridge user: %w", err)
	}
	a.self = self
	slog.Info("command processor ready", "user_id", self.ID)

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-a.client.Recv():
			if !ok {
				return nil
			}
			cmd, isCmd := Parse(msg.Chain)
			if !isCmd {
				continue
			}
			slog.Info("command received", "kind", cmd.Kind, "sender", msg.SenderID)
			feedback := a.Execute(cmd, msg.SenderID)
			a.reply(msg, feedback)
		}
	}
}

// Execute runs one command for the given bridge user and returns the
// rendered feedback text.
func (a *Adapter) Execute(cmd Command, senderID string) string {
	switch cmd.Kind {
	case KindHelp:
		topic := ""
		if len(cmd.Args) > 0 {
			topic = cmd.Args[0]
		}
		return OutcomeHelp.Feedback(topic)
	case KindBind:
		return a.bind(cmd.Args, senderID)
	case KindConfirmBind:
		return a.confirmBind(senderID)
	case KindUnbind:
		return a.unbind(cmd.Args, senderID)
	}
	return OutcomeHelp.Feedback("")
}

// bind opens a session (no argument) or responds to one (token argument).
func (a *Adapter) bind(args []string, senderID string) string {
	sender, ok := a.core.Users.Get(senderID)
	if !ok {
		return OutcomeNotFoundBridgeUser.Feedback("")
	}
	if len(args) == 0 {
		token := a.sessions.Create(senderID)
		return OutcomeBindRequested.Feedback(token)
	}
	out := a.sessions.Respond(args[0], sender, a.core.Users)
	return out.Feedback("")
}

// confirmBind commits the applicant's pending session: both users get the
// shared ref id (reusing an existing one from either side) and are written
// in one batch.
func (a *Adapter) confirmBind(senderID string) string {
	responderID, out := a.sessions.Confirm(senderID)
	if out != OutcomeBindConfirmed {
		return out.Feedback("")
	}
	applicant, okA := a.core.Users.Get(senderID)
	responder, okB := a.core.Users.Get(responderID)
	if !okA || !okB {
		return OutcomeNotFoundBridgeUser.Feedback("")
	}
	refID := applicant.RefID
	if refID == "" {
		refID = responder.RefID
	}
	if refID == "" {
		refID = uuid.NewString()
	}
	applicant.RefID = refID
	responder.RefID = refID
	count, err := a.core.Users.BatchUpdate([]bridge.User{applicant, responder})
	if err != nil {
		slog.Error("bind commit failed", "error", err)
		return OutcomeUpdateBridgeUserFailure.Feedback("")
	}
	slog.Info("bridge users linked", "ref_id", refID, "updated", count)
	return out.Feedback("")
}

// unbind breaks the caller's link with the named platform. The caller's
// own ref id remains until every remaining counterpart is unbound too.
func (a *Adapter) unbind(args []string, senderID string) string {
	if len(args) == 0 {
		return OutcomeHelp.Feedback("unbind")
	}
	platform, err := bridge.ParsePlatform(args[0])
	if err != nil {
		return OutcomeHelp.Feedback("unbind")
	}
	caller, ok := a.core.Users.Get(senderID)
	if !ok {
		return OutcomeNotFoundBridgeUser.Feedback("")
	}
	if caller.Platform == platform {
		return OutcomeSelfReference.Feedback("")
	}
	if !caller.Linked() {
		return OutcomeUnbound.Feedback("")
	}
	target, ok := a.core.Users.FindCounterpart(caller.RefID, platform)
	if !ok {
		return OutcomeUnbound.Feedback("")
	}
	if _, err := a.core.Users.Unlink(target.ID); err != nil {
		slog.Error("unbind commit failed", "error", err)
		return OutcomeUpdateBridgeUserFailure.Feedback("")
	}
	return OutcomeUnbound.Feedback("")
}

// reply publishes the feedback as a CMD-origin message addressed to the
// originating channel mapping.
func (a *Adapter) reply(src bridge.Message, text string) {
	form := bridge.SendForm{
		SenderID:  a.self.ID,
		AvatarURL: cmdAvatarURL,
		Config:    src.Config,
		Chain:     bridge.Chain{bridge.Plain{Text: text}},
		Origin: bridge.Ref{
			Platform: bridge.PlatformCmd,
			OriginID: uuid.NewString(),
		},
	}
	if _, err := a.client.Send(form); err != nil {
		slog.Error("command feedback publish failed", "error", err)
	}
}
