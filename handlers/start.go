package handlers

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/skip2/go-qrcode"
	"gopkg.in/telebot.v3"

	"vehicle-info-bot/ledger"
	"vehicle-info-bot/models"
	"vehicle-info-bot/utils"
)

const referralPrefix = "ref_"

func referrerFromPayload(args []string) int64 {
	if len(args) == 0 || !strings.HasPrefix(args[0], referralPrefix) {
		return 0
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(args[0], referralPrefix), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func (h *Handler) Start(c telebot.Context) error {
	ctx := context.Background()
	user := c.Sender()

	var (
		u   models.User
		err error
	)
	if ref := referrerFromPayload(c.Args()); ref != 0 {
		u, _, err = h.ledger.RegisterReferral(ctx, user.ID, ref)
	} else {
		u, err = h.ledger.GetOrCreateUser(ctx, user.ID)
	}
	if err != nil {
		log.WithError(err).WithField("user_id", user.ID).Error("❌ Failed to load user")
		return reply(c, "❌ Error occurred")
	}

	welcome := fmt.Sprintf(
		"👋 %s, %s! Welcome.\n"+
			"💳 Credits: %s\n"+
			"Use /check <vehicle_no>",
		utils.GetGreeting(h.now()), user.FirstName, ledger.BalanceOf(u),
	)
	return reply(c, welcome)
}

func (h *Handler) Credits(c telebot.Context) error {
	user := c.Sender()

	u, err := h.ledger.GetOrCreateUser(context.Background(), user.ID)
	if err != nil {
		log.WithError(err).WithField("user_id", user.ID).Error("❌ Failed to load user")
		return reply(c, "❌ Error occurred")
	}

	return reply(c, h.printer.Sprintf(
		"💳 Credits: %s\nTotal checks: %d",
		ledger.BalanceOf(u), u.TotalChecks,
	))
}

func (h *Handler) referralLink(userID int64) string {
	return fmt.Sprintf("https://t.me/%s?start=%s%d", h.botUsername, referralPrefix, userID)
}

// Refer sends the user's referral link, followed by the same link as a QR
// code when one can be rendered.
func (h *Handler) Refer(c telebot.Context) error {
	user := c.Sender()

	u, err := h.ledger.GetOrCreateUser(context.Background(), user.ID)
	if err != nil {
		log.WithError(err).WithField("user_id", user.ID).Error("❌ Failed to load user")
		return reply(c, "❌ Error occurred")
	}

	link := h.referralLink(user.ID)
	text := fmt.Sprintf("Your referral link:\n%s\n\n👥 Referred users: %d", link, len(u.Referrals))
	if err := reply(c, text, telebot.NoPreview); err != nil {
		return err
	}

	png, err := qrcode.Encode(link, qrcode.Medium, 256)
	if err != nil {
		log.WithError(err).WithField("user_id", user.ID).Error("❌ Failed to generate referral QR")
		return nil
	}

	photo := &telebot.Photo{
		File:    telebot.FromReader(bytes.NewReader(png)),
		Caption: utils.EscapeMarkdown("Scan to open your referral link"),
	}
	if err := c.Send(photo, telebot.ModeMarkdownV2); err != nil {
		log.WithError(err).WithField("user_id", user.ID).Error("❌ Failed to send referral QR")
	}
	return nil
}

const helpText = "/check <vehicle_no> - Check vehicle info\n" +
	"/credits - View credits\n" +
	"/refer - Referral link\n" +
	"/claim <CODE> - Claim redeem code\n" +
	"Owner:\n" +
	"/createcode <5|10> - Create code\n" +
	"/broadcast <msg> - Broadcast message\n" +
	"/stats - Bot statistics\n" +
	"/export - Export users to the sheet"

func (h *Handler) Help(c telebot.Context) error {
	return reply(c, helpText)
}

// VerifyMembership answers the verify button by editing the prompt in place.
func (h *Handler) VerifyMembership(c telebot.Context) error {
	if err := c.Respond(); err != nil {
		log.WithError(err).Warn("⚠️ Failed to answer callback")
	}

	user := c.Sender()
	if h.gate.IsMember(context.Background(), user.ID) {
		return c.Edit(utils.EscapeMarkdown("✅ Verified!"), telebot.ModeMarkdownV2)
	}

	if err := c.Edit(utils.EscapeMarkdown("❌ Not Verified! Join channel first."), telebot.ModeMarkdownV2); err != nil {
		log.WithError(err).WithField("user_id", user.ID).Warn("⚠️ Failed to edit verify message")
	}
	return h.gate.SendJoinPrompt(c)
}
