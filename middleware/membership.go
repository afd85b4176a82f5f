package middleware

import (
	"context"

	log "github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"

	"vehicle-info-bot/utils"
)

// VerifyUnique is the callback data of the "verify membership" button.
const VerifyUnique = "verify_membership"

// ChatMemberGetter is the part of *telebot.Bot the gate needs.
type ChatMemberGetter interface {
	ChatMemberOf(chat, user telebot.Recipient) (*telebot.ChatMember, error)
}

// Channel is a chat addressed by its public @username or numeric id.
type Channel string

func (c Channel) Recipient() string { return string(c) }

// Gate checks that users belong to the required channel.
type Gate struct {
	api     ChatMemberGetter
	channel Channel
	link    string
}

func NewGate(api ChatMemberGetter, channel, link string) *Gate {
	return &Gate{api: api, channel: Channel(channel), link: link}
}

// IsMember reports whether userID is in the channel. Lookup failures count as
// not a member.
func (g *Gate) IsMember(ctx context.Context, userID int64) bool {
	if ctx.Err() != nil {
		return false
	}

	member, err := g.api.ChatMemberOf(g.channel, &telebot.User{ID: userID})
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"user_id": userID,
			"channel": g.channel,
		}).Warn("⚠️ Membership check failed")
		return false
	}
	if member == nil {
		return false
	}

	switch member.Role {
	case telebot.Member, telebot.Administrator, telebot.Creator:
		return true
	case telebot.Restricted:
		return member.Member
	default:
		return false
	}
}

// JoinPrompt returns the escaped join message and its keyboard.
func (g *Gate) JoinPrompt() (string, *telebot.ReplyMarkup) {
	kb := &telebot.ReplyMarkup{}
	kb.Inline(
		kb.Row(kb.URL("📢 Join Channel", g.link)),
		kb.Row(kb.Data("✅ Verify Membership", VerifyUnique)),
	)

	text := utils.EscapeMarkdown("⚠️ Channel Membership Required!\n\nJoin the channel, then press Verify Membership.")
	return text, kb
}

// SendJoinPrompt replies to c with the join prompt.
func (g *Gate) SendJoinPrompt(c telebot.Context) error {
	text, kb := g.JoinPrompt()
	return c.Send(text, kb, telebot.ModeMarkdownV2)
}

// Require runs next only for channel members and shows the join prompt to
// everyone else.
func (g *Gate) Require(next telebot.HandlerFunc) telebot.HandlerFunc {
	return func(c telebot.Context) error {
		sender := c.Sender()
		if sender == nil {
			return nil
		}
		if !g.IsMember(context.Background(), sender.ID) {
			log.WithField("user_id", sender.ID).Debug("Blocked non-member")
			return g.SendJoinPrompt(c)
		}
		return next(c)
	}
}
