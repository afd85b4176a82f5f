// Package export writes the user table to a Google Sheet.
package export

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const (
	usersRange = "Users!A1:F"
	usersStart = "Users!A1"
)

var header = []interface{}{"User ID", "Credits", "Total Checks", "Referrals", "Referred By", "Joined"}

// Row is one user line of the export.
type Row struct {
	ID          int64
	Credits     string
	TotalChecks int64
	Referrals   int
	ReferredBy  *int64
	JoinedDate  time.Time
}

func (r Row) values() []interface{} {
	referredBy := ""
	if r.ReferredBy != nil {
		referredBy = strconv.FormatInt(*r.ReferredBy, 10)
	}
	joined := ""
	if !r.JoinedDate.IsZero() {
		joined = r.JoinedDate.Format("2006-01-02 15:04:05")
	}
	return []interface{}{
		strconv.FormatInt(r.ID, 10),
		r.Credits,
		r.TotalChecks,
		r.Referrals,
		referredBy,
		joined,
	}
}

// Values lays the rows out under a header row.
func Values(rows []Row) [][]interface{} {
	out := make([][]interface{}, 0, len(rows)+1)
	out = append(out, header)
	for _, r := range rows {
		out = append(out, r.values())
	}
	return out
}

type Sheets struct {
	srv           *sheets.Service
	spreadsheetID string
}

// NewSheets authenticates with a service-account key file.
func NewSheets(ctx context.Context, credentialsFile, spreadsheetID string) (*Sheets, error) {
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}

	config, err := google.JWTConfigFromJSON(b, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}

	return NewSheetsWithOptions(ctx, spreadsheetID, option.WithHTTPClient(config.Client(ctx)))
}

// NewSheetsWithOptions builds the exporter from explicit client options.
func NewSheetsWithOptions(ctx context.Context, spreadsheetID string, opts ...option.ClientOption) (*Sheets, error) {
	srv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	return &Sheets{srv: srv, spreadsheetID: spreadsheetID}, nil
}

// WriteUsers replaces the Users sheet with rows.
func (s *Sheets) WriteUsers(ctx context.Context, rows []Row) error {
	_, err := s.srv.Spreadsheets.Values.Clear(s.spreadsheetID, usersRange, &sheets.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to clear sheet: %w", err)
	}

	vr := &sheets.ValueRange{Values: Values(rows)}
	_, err = s.srv.Spreadsheets.Values.Update(s.spreadsheetID, usersStart, vr).
		ValueInputOption("RAW").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to write sheet: %w", err)
	}

	log.WithField("rows", len(rows)).Info("✅ Users exported to sheet")
	return nil
}
