package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"golang.org/x/oauth2"
	goauth "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"prestiti/internal/amort"
	"prestiti/internal/core"
	ports "prestiti/internal/sheets"
)

// Client exports amortization schedules to a Google spreadsheet, one tab
// per loan.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	// Tab names are "<sheetPrefix> <loanID>", e.g. "Loan 42".
	sheetPrefix string
}

// Ensure interface conformance
var _ ports.ScheduleWriter = (*Client)(nil)

// Config selects the target spreadsheet and the credentials used to reach it.
type Config struct {
	SpreadsheetID string
	// SheetPrefix names loan tabs, default "Loan".
	SheetPrefix string
	OAuth       OAuthCredentials
}

// OAuthCredentials holds an OAuth client plus a stored user token. The token
// is the one cmd/oauth-init writes after the consent flow. Inline JSON takes
// precedence over the file variant.
type OAuthCredentials struct {
	ClientJSON string
	ClientFile string
	TokenJSON  string
	TokenFile  string
}

func (c OAuthCredentials) configured() bool {
	return c.ClientJSON != "" || c.ClientFile != ""
}

// New creates a Sheets client for the given configuration. When no OAuth
// client is configured, credentials come from GOOGLE_SERVICE_ACCOUNT_JSON,
// GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS (falls back
// to ADC).
func New(ctx context.Context, cfg Config) (*Client, error) {
	spreadsheetID := strings.TrimSpace(cfg.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet ID")
	}

	prefix := strings.TrimSpace(cfg.SheetPrefix)
	if prefix == "" {
		prefix = "Loan"
	}

	svc, err := newSheetsService(ctx, cfg.OAuth)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetPrefix:   prefix,
	}, nil
}

// newSheetsService initializes a Sheets Service. An OAuth client plus stored
// token wins over Service Account credentials from the environment.
func newSheetsService(ctx context.Context, oauth OAuthCredentials) (*gsheet.Service, error) {
	if oauth.configured() {
		httpClient, err := oauthHTTPClient(ctx, oauth)
		if err != nil {
			return nil, fmt.Errorf("oauth credentials: %w", err)
		}
		svc, err := gsheet.NewService(ctx, goption.WithHTTPClient(httpClient))
		if err != nil {
			return nil, fmt.Errorf("create sheets service: %w", err)
		}
		return svc, nil
	}

	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))

	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var opts []goption.ClientOption
	switch {
	case serviceAccountJSON != "":
		opts = append(opts, goption.WithCredentialsJSON([]byte(serviceAccountJSON)))
	case serviceAccountFile != "":
		data, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		opts = append(opts, goption.WithCredentialsJSON(data))
	default:
		slog.InfoContext(ctx, "No explicit service account, using application default credentials")
	}
	opts = append(opts, goption.WithScopes(gsheet.SpreadsheetsScope))

	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return svc, nil
}

// oauthHTTPClient builds an HTTP client from an OAuth client config and the
// token stored by cmd/oauth-init. The oauth2 transport refreshes the token
// as needed.
func oauthHTTPClient(ctx context.Context, creds OAuthCredentials) (*http.Client, error) {
	clientJSON, err := readCredential(creds.ClientJSON, creds.ClientFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth client: %w", err)
	}
	conf, err := goauth.ConfigFromJSON(clientJSON, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse oauth client: %w", err)
	}

	tokenJSON, err := readCredential(creds.TokenJSON, creds.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth token (run oauth-init first): %w", err)
	}
	var token oauth2.Token
	if err := json.Unmarshal(tokenJSON, &token); err != nil {
		return nil, fmt.Errorf("parse oauth token: %w", err)
	}

	return conf.Client(ctx, &token), nil
}

func readCredential(inline, file string) ([]byte, error) {
	if inline != "" {
		return []byte(inline), nil
	}
	if file == "" {
		return nil, errors.New("no credential provided")
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// WriteSchedule writes the schedule into the loan's tab, creating the tab
// when missing and replacing any previous export.
func (c *Client) WriteSchedule(ctx context.Context, loan core.Loan, schedule amort.Schedule) (string, error) {
	if len(schedule.Entries) == 0 {
		return "", fmt.Errorf("empty schedule for loan %d", loan.ID)
	}

	tab := fmt.Sprintf("%s %d", c.sheetPrefix, loan.ID)
	if err := c.ensureSheet(ctx, tab); err != nil {
		return "", fmt.Errorf("ensure sheet %q: %w", tab, err)
	}

	clearRange := fmt.Sprintf("'%s'!A:E", tab)
	_, err := c.svc.Spreadsheets.Values.
		Clear(c.spreadsheetID, clearRange, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("clear sheet %q: %w", tab, err)
	}

	values := &gsheet.ValueRange{Values: scheduleRows(loan, schedule)}
	_, err = c.svc.Spreadsheets.Values.
		Update(c.spreadsheetID, fmt.Sprintf("'%s'!A1", tab), values).
		ValueInputOption("RAW").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("write sheet %q: %w", tab, err)
	}

	slog.InfoContext(ctx, "Schedule exported to Google Sheets",
		"loan_id", loan.ID,
		"sheet", tab,
		"rows", len(schedule.Entries)+1)

	return c.spreadsheetID + "!" + tab, nil
}

// ensureSheet creates the tab if it does not exist yet.
func (c *Client) ensureSheet(ctx context.Context, title string) error {
	meta, err := c.svc.Spreadsheets.Get(c.spreadsheetID).
		Fields("sheets.properties.title").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("get spreadsheet: %w", err)
	}
	for _, sh := range meta.Sheets {
		if sh.Properties != nil && sh.Properties.Title == title {
			return nil
		}
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{
				Properties: &gsheet.SheetProperties{Title: title},
			},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		// A concurrent export may have created the tab in the meantime.
		if strings.Contains(err.Error(), "already exists") {
			return nil
		}
		return fmt.Errorf("add sheet: %w", err)
	}
	return nil
}

// scheduleRows renders the header and one row per month. Amounts are plain
// decimal strings so the spreadsheet never sees binary floats.
func scheduleRows(loan core.Loan, schedule amort.Schedule) [][]interface{} {
	rows := make([][]interface{}, 0, len(schedule.Entries)+1)
	rows = append(rows, []interface{}{
		"Month", "Payment", "Interest", "Principal", "Remaining balance",
	})
	for _, e := range schedule.Entries {
		rows = append(rows, []interface{}{
			e.Month,
			e.Payment.String(),
			e.Interest.String(),
			e.Principal.String(),
			e.Remaining.String(),
		})
	}
	return rows
}
