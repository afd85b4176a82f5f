package handlers

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/telebot.v3"

	"vehicle-info-bot/ledger"
	"vehicle-info-bot/vehicle"
)

const divider = "━━━━━━━━━━━━"

func requesterName(u *telebot.User) string {
	if u.Username != "" {
		return "@" + u.Username
	}
	return strconv.FormatInt(u.ID, 10)
}

// formatVehicle renders a lookup result as plain text; escape before sending.
func formatVehicle(plate string, rec vehicle.Record, remaining ledger.Balance, requester *telebot.User, developer string) string {
	lines := []string{
		"🚘 Vehicle Info: " + plate,
		divider,
	}
	for _, f := range rec {
		lines = append(lines, fmt.Sprintf("• %s: %s", f.Name, f.Value.Format()))
	}
	lines = append(lines,
		divider,
		"💳 Remaining Credits: "+remaining.String(),
		fmt.Sprintf("Requested by: %s (ID: %d)", requesterName(requester), requester.ID),
		"Made by: "+developer,
	)
	return strings.Join(lines, "\n")
}
