package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	log "github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"

	"vehicle-info-bot/ledger"
)

func (h *Handler) CreateCode(c telebot.Context) error {
	if !h.requireOwner(c) {
		return reply(c, "❌ Not authorized")
	}

	args := c.Args()
	if len(args) == 0 {
		return reply(c, "Usage: /createcode <5|10>")
	}
	value, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return reply(c, "Invalid value")
	}

	code, _, err := h.ledger.IssueCode(context.Background(), c.Sender().ID, value)
	switch {
	case errors.Is(err, ledger.ErrInvalidDenomination):
		return reply(c, "Only 5 or 10 allowed")
	case errors.Is(err, ledger.ErrCodeGeneration):
		log.WithError(err).Error("❌ Failed to generate code")
		return reply(c, "Failed to generate code")
	case err != nil:
		log.WithError(err).Error("❌ Failed to create code")
		return reply(c, "❌ Error occurred")
	}

	return reply(c, fmt.Sprintf("✅ Code: %s (%d credits)", code, value))
}

func (h *Handler) Claim(c telebot.Context) error {
	args := c.Args()
	if len(args) == 0 {
		return reply(c, "Usage: /claim <CODE>")
	}

	user := c.Sender()
	res, err := h.ledger.ClaimCode(context.Background(), user.ID, args[0])
	switch {
	case errors.Is(err, ledger.ErrCodeNotFound):
		return reply(c, "❌ Invalid code")
	case errors.Is(err, ledger.ErrCodeAlreadyClaimed):
		return reply(c, "❌ Already claimed")
	case err != nil:
		log.WithError(err).WithField("user_id", user.ID).Error("❌ Failed to claim code")
		return reply(c, "❌ Error occurred")
	}

	if res.Balance.Unlimited {
		return reply(c, "Owner: unlimited credits. Code marked claimed.")
	}
	return reply(c, fmt.Sprintf("✅ Claimed! +%d credits\n💳 Credits: %s", res.Value, res.Balance))
}
