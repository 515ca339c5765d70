//go:build integration

package google

import (
	"context"
	"os"
	"testing"
)

// Integration tests require a real spreadsheet and service account.
// Run with: go test -tags=integration ./internal/sheets/google

func TestIntegration_ReadAll(t *testing.T) {
	spreadsheetID := os.Getenv("GOOGLE_SPREADSHEET_ID")
	if spreadsheetID == "" {
		t.Skip("GOOGLE_SPREADSHEET_ID not set, skipping integration test")
	}
	sheet := os.Getenv("GOOGLE_SHEET_NAME")
	if sheet == "" {
		sheet = "Ventes"
	}

	c, err := NewFromSettings(context.Background(), Settings{
		SpreadsheetID:   spreadsheetID,
		SheetName:       sheet,
		CredentialsJSON: os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"),
		CredentialsFile: os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"),
	}, nil)
	if err != nil {
		t.Skipf("credentials not usable: %v", err)
	}

	ds, err := c.ReadAll(context.Background())
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	t.Logf("read %d records from %s", len(ds), sheet)
}
