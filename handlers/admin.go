package handlers

import (
	"context"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"

	"vehicle-info-bot/export"
	"vehicle-info-bot/ledger"
	"vehicle-info-bot/utils"
)

// Broadcast sends the payload to every known user one at a time. Failed
// sends are counted and skipped.
func (h *Handler) Broadcast(c telebot.Context) error {
	if !h.requireOwner(c) {
		return reply(c, "❌ Not authorized")
	}

	text := ""
	if msg := c.Message(); msg != nil {
		text = strings.TrimSpace(msg.Payload)
	}
	if text == "" {
		return reply(c, "Usage: /broadcast <msg>")
	}

	ids, err := h.ledger.UserIDs(context.Background())
	if err != nil {
		log.WithError(err).Error("❌ Failed to list users for broadcast")
		return reply(c, "❌ Error occurred")
	}

	if err := reply(c, "Broadcast started..."); err != nil {
		return err
	}

	body := utils.EscapeMarkdown("📢 Broadcast:\n\n" + text)
	sent, failed := 0, 0
	for _, id := range ids {
		if _, err := h.api.Send(telebot.ChatID(id), body, telebot.ModeMarkdownV2); err != nil {
			failed++
			log.WithError(err).WithField("user_id", id).Warn("⚠️ Broadcast send failed")
			continue
		}
		sent++
		h.sleep(h.cfg.BroadcastDelay)
	}

	log.WithFields(log.Fields{"sent": sent, "failed": failed}).Info("✅ Broadcast finished")
	return reply(c, h.printer.Sprintf("Broadcast done. Sent: %d, Failed: %d", sent, failed))
}

func (h *Handler) Stats(c telebot.Context) error {
	if !h.requireOwner(c) {
		return reply(c, "❌ Not authorized")
	}

	s, err := h.ledger.Stats(context.Background())
	if err != nil {
		log.WithError(err).Error("❌ Failed to compute stats")
		return reply(c, "❌ Error occurred")
	}

	return reply(c, h.printer.Sprintf(
		"📊 Bot Stats\n\n"+
			"👥 Users: %d\n"+
			"🔍 Total checks: %d\n"+
			"💳 Outstanding credits: %d\n"+
			"🎟 Codes issued: %d (claimed: %d)\n"+
			"💰 Credits in codes: %d",
		s.Users, s.TotalChecks, s.OpenCredits, s.CodesIssued, s.CodesClaimed, s.CreditsIssued,
	))
}

func (h *Handler) Export(c telebot.Context) error {
	if !h.requireOwner(c) {
		return reply(c, "❌ Not authorized")
	}
	if h.exporter == nil {
		return reply(c, "Export is not configured")
	}

	ctx := context.Background()
	users, err := h.ledger.Users(ctx)
	if err != nil {
		log.WithError(err).Error("❌ Failed to list users for export")
		return reply(c, "❌ Error occurred")
	}

	rows := make([]export.Row, 0, len(users))
	for _, e := range users {
		rows = append(rows, export.Row{
			ID:          e.ID,
			Credits:     ledger.BalanceOf(e.User).String(),
			TotalChecks: e.User.TotalChecks,
			Referrals:   len(e.User.Referrals),
			ReferredBy:  e.User.ReferredBy,
			JoinedDate:  e.User.JoinedDate,
		})
	}

	if err := h.exporter.WriteUsers(ctx, rows); err != nil {
		log.WithError(err).Error("❌ Export failed")
		return reply(c, "❌ Export failed")
	}
	return reply(c, h.printer.Sprintf("✅ Exported %d users", len(rows)))
}

// Unban clears warnings, bans and the command timer for one user.
func (h *Handler) Unban(c telebot.Context) error {
	if !h.requireOwner(c) {
		return reply(c, "❌ Not authorized")
	}
	if h.spam == nil {
		return reply(c, "Spam protection is not enabled")
	}

	args := c.Args()
	if len(args) == 0 {
		return reply(c, "Usage: /unban <user_id>")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return reply(c, "Usage: /unban <user_id>")
	}

	h.spam.Reset(id)
	return reply(c, "✅ Spam protection reset for "+strconv.FormatInt(id, 10))
}
