package handlers

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"

	"vehicle-info-bot/ledger"
	"vehicle-info-bot/utils"
	"vehicle-info-bot/vehicle"
)

// Check looks a registration number up and charges for it on success only.
func (h *Handler) Check(c telebot.Context) error {
	ctx := context.Background()
	user := c.Sender()
	fields := log.Fields{"user_id": user.ID}

	u, err := h.ledger.GetOrCreateUser(ctx, user.ID)
	if err != nil {
		log.WithError(err).WithFields(fields).Error("❌ Failed to load user")
		return reply(c, "❌ Error occurred")
	}
	if !u.IsOwner && u.Credits < h.cfg.CreditsPerCheck {
		return reply(c, "❌ Insufficient credits!")
	}

	args := c.Args()
	if len(args) == 0 {
		return reply(c, "Provide vehicle number\nUsage: /check <vehicle_no>")
	}
	plate, err := vehicle.NormalizePlate(args[0])
	if err != nil {
		return reply(c, "❌ Invalid vehicle number!")
	}
	fields["plate"] = plate

	status, err := h.api.Send(c.Chat(), utils.EscapeMarkdown("🔍 Fetching vehicle details..."), telebot.ModeMarkdownV2)
	if err != nil {
		log.WithError(err).WithFields(fields).Warn("⚠️ Failed to send status message")
	}

	var rec vehicle.Record
	balance, err := h.ledger.ChargeLookup(ctx, user.ID, func(ctx context.Context) error {
		var lookupErr error
		rec, lookupErr = h.vehicles.Lookup(ctx, plate)
		return lookupErr
	})
	if err != nil {
		var msg string
		switch {
		case errors.Is(err, ledger.ErrInsufficientCredits):
			msg = "❌ Insufficient credits!"
		case errors.Is(err, vehicle.ErrUnexpectedStatus):
			msg = "⚠️ API error"
		case errors.Is(err, vehicle.ErrNoData):
			msg = "❌ No data found"
		default:
			msg = "❌ Error occurred"
		}
		log.WithError(err).WithFields(fields).Warn("⚠️ Vehicle check failed")
		return h.updateStatus(c, status, msg)
	}

	log.WithFields(fields).Info("✅ Vehicle check done")

	if status != nil {
		if err := h.api.Delete(status); err != nil {
			log.WithError(err).WithFields(fields).Warn("⚠️ Failed to delete status message")
		}
	}

	text := formatVehicle(plate, rec, balance, user, h.cfg.DeveloperHandle)
	return reply(c, text, telebot.NoPreview)
}

// updateStatus replaces the status message with msg, or replies when there
// is nothing to edit.
func (h *Handler) updateStatus(c telebot.Context, status *telebot.Message, msg string) error {
	if status != nil {
		_, err := h.api.Edit(status, utils.EscapeMarkdown(msg), telebot.ModeMarkdownV2)
		if err == nil {
			return nil
		}
		log.WithError(err).Warn("⚠️ Failed to edit status message")
	}
	return reply(c, msg)
}
