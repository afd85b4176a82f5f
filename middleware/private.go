package middleware

import (
	"gopkg.in/telebot.v3"

	"vehicle-info-bot/utils"
)

// PrivateOnly refuses updates coming from anything but a private chat. The
// owner is let through everywhere.
func PrivateOnly(ownerID int64) telebot.MiddlewareFunc {
	return func(next telebot.HandlerFunc) telebot.HandlerFunc {
		return func(c telebot.Context) error {
			if sender := c.Sender(); sender != nil && ownerID != 0 && sender.ID == ownerID {
				return next(c)
			}
			if chat := c.Chat(); chat != nil && chat.Type != telebot.ChatPrivate {
				return c.Send(utils.EscapeMarkdown("❌ This bot only works in direct messages."), telebot.ModeMarkdownV2)
			}
			return next(c)
		}
	}
}
