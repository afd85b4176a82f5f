// Package handlers implements the bot commands.
package handlers

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/telebot.v3"

	"vehicle-info-bot/config"
	"vehicle-info-bot/export"
	"vehicle-info-bot/ledger"
	"vehicle-info-bot/middleware"
	"vehicle-info-bot/utils"
	"vehicle-info-bot/vehicle"
)

// BotAPI is the part of *telebot.Bot used outside of a reply.
type BotAPI interface {
	Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error)
	Edit(msg telebot.Editable, what interface{}, opts ...interface{}) (*telebot.Message, error)
	Delete(msg telebot.Editable) error
}

// Gate decides who may use the gated commands.
type Gate interface {
	IsMember(ctx context.Context, userID int64) bool
	SendJoinPrompt(c telebot.Context) error
	Require(next telebot.HandlerFunc) telebot.HandlerFunc
}

// VehicleLookup fetches the record for a normalised plate.
type VehicleLookup interface {
	Lookup(ctx context.Context, plate string) (vehicle.Record, error)
}

// Exporter writes the user table somewhere outside the bot.
type Exporter interface {
	WriteUsers(ctx context.Context, rows []export.Row) error
}

// SpamResetter clears anti-spam state for a user.
type SpamResetter interface {
	Reset(userID int64)
}

// Router registers endpoints. Both *telebot.Bot and *telebot.Group qualify.
type Router interface {
	Handle(endpoint interface{}, h telebot.HandlerFunc, m ...telebot.MiddlewareFunc)
}

// Deps bundles what a Handler needs. Exporter and Spam may be nil.
type Deps struct {
	Config      *config.Config
	Ledger      *ledger.Ledger
	Gate        Gate
	Vehicles    VehicleLookup
	API         BotAPI
	Exporter    Exporter
	Spam        SpamResetter
	BotUsername string

	Now   func() time.Time
	Sleep func(time.Duration)
}

type Handler struct {
	cfg         *config.Config
	ledger      *ledger.Ledger
	gate        Gate
	vehicles    VehicleLookup
	api         BotAPI
	exporter    Exporter
	spam        SpamResetter
	botUsername string

	now     func() time.Time
	sleep   func(time.Duration)
	printer *message.Printer
}

func New(d Deps) *Handler {
	h := &Handler{
		cfg:         d.Config,
		ledger:      d.Ledger,
		gate:        d.Gate,
		vehicles:    d.Vehicles,
		api:         d.API,
		exporter:    d.Exporter,
		spam:        d.Spam,
		botUsername: d.BotUsername,
		now:         d.Now,
		sleep:       d.Sleep,
		printer:     message.NewPrinter(language.English),
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.sleep == nil {
		h.sleep = time.Sleep
	}
	return h
}

// Register wires every command. Member-facing commands sit behind the gate.
func (h *Handler) Register(r Router) {
	gated := h.gate.Require

	r.Handle("/start", h.Start, gated)
	r.Handle("/credits", h.Credits, gated)
	r.Handle("/refer", h.Refer, gated)
	r.Handle("/check", h.Check, gated)
	r.Handle("/claim", h.Claim, gated)
	r.Handle("/help", h.Help)

	r.Handle("/createcode", h.CreateCode)
	r.Handle("/broadcast", h.Broadcast)
	r.Handle("/stats", h.Stats)
	r.Handle("/export", h.Export)
	r.Handle("/unban", h.Unban)

	r.Handle("\f"+middleware.VerifyUnique, h.VerifyMembership)
}

// Commands is the menu shown by Telegram clients.
func Commands() []telebot.Command {
	return []telebot.Command{
		{Text: "start", Description: "Start the bot"},
		{Text: "check", Description: "Check vehicle info"},
		{Text: "credits", Description: "View credits"},
		{Text: "refer", Description: "Referral link"},
		{Text: "claim", Description: "Claim a redeem code"},
		{Text: "help", Description: "List commands"},
	}
}

// reply escapes text and sends it as MarkdownV2.
func reply(c telebot.Context, text string, opts ...interface{}) error {
	opts = append(opts, telebot.ModeMarkdownV2)
	if err := c.Send(utils.EscapeMarkdown(text), opts...); err != nil {
		log.WithError(err).WithField("chat_id", chatID(c)).Error("❌ Failed to send reply")
		return err
	}
	return nil
}

func chatID(c telebot.Context) int64 {
	if chat := c.Chat(); chat != nil {
		return chat.ID
	}
	return 0
}

func (h *Handler) requireOwner(c telebot.Context) bool {
	return c.Sender() != nil && h.cfg.IsOwner(c.Sender().ID)
}
