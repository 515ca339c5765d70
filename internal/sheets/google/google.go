package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"pilotage/internal/core"
	"pilotage/internal/log"
	ports "pilotage/internal/sheets"
)

// Settings selects the spreadsheet and the service account used to reach it.
type Settings struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
}

// Client stores the dataset in a single sheet, one record per row under a
// header row, columns A to E.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	logger        *log.Logger
}

var _ ports.Store = (*Client)(nil)

// NewFromSettings authenticates with a service account and returns a client.
func NewFromSettings(ctx context.Context, s Settings, logger *log.Logger) (*Client, error) {
	creds, err := loadCredentials(s)
	if err != nil {
		return nil, err
	}
	return New(ctx, s.SpreadsheetID, s.SheetName, logger,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope))
}

// New builds a client from raw API options. Tests pass an endpoint and
// goption.WithoutAuthentication.
func New(ctx context.Context, spreadsheetID, sheetName string, logger *log.Logger, opts ...goption.ClientOption) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	sheetName = strings.TrimSpace(sheetName)
	if sheetName == "" {
		return nil, errors.New("missing sheet name")
	}
	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		logger:        log.OrDiscard(logger).WithComponent(log.ComponentSheets),
	}, nil
}

func loadCredentials(s Settings) ([]byte, error) {
	switch {
	case strings.TrimSpace(s.CredentialsJSON) != "":
		return []byte(s.CredentialsJSON), nil
	case strings.TrimSpace(s.CredentialsFile) != "":
		b, err := os.ReadFile(s.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE)")
	}
}

func (c *Client) dataRange() string {
	return fmt.Sprintf("%s!A:E", c.sheetName)
}

// ReadAll returns every record of the sheet.
func (c *Client) ReadAll(ctx context.Context) (core.Dataset, error) {
	rng := c.dataRange()
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).
		ValueRenderOption("UNFORMATTED_VALUE").
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	ds, err := parseValues(resp.Values)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", rng, err)
	}
	c.logger.DebugContext(ctx, "Sheet read", log.FieldRows, len(ds))
	return ds, nil
}

// WriteAll overwrites the sheet from A1 with the header and ds in a single
// update. Rows left over from a longer previous dataset are blanked by the
// same request, so the sheet holds either the old or the new dataset.
func (c *Client) WriteAll(ctx context.Context, ds core.Dataset) error {
	prev, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, fmt.Sprintf("%s!A:A", c.sheetName)).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read sheet length: %w", err)
	}

	values := padValues(encodeValues(ds), len(prev.Values))
	rng := fmt.Sprintf("%s!A1:E%d", c.sheetName, len(values))
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, &gsheet.ValueRange{Values: values}).
		ValueInputOption("RAW").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update %s: %w", rng, err)
	}
	c.logger.InfoContext(ctx, "Sheet written", log.FieldRows, len(ds))
	return nil
}
